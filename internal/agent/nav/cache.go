package nav

import (
	"sync"
)

// Cache maps navigation targets to rendered page content. Each page is
// stored under its normalized name and under the raw path it arrived
// with, so lookups succeed regardless of which form a link uses.
type Cache struct {
	mu    sync.RWMutex
	pages map[string]string
}

// NewCache creates an empty page cache.
func NewCache() *Cache {
	return &Cache{pages: make(map[string]string)}
}

// Put stores page content under both its normalized name and the raw
// path form it was addressed by.
func (c *Cache) Put(path, content string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.pages[NormalizePageName(path)] = content
	c.pages[path] = content
}

// Lookup probes the cache by normalized name, by raw path, and by the
// "/name.html" form. First hit wins.
func (c *Cache) Lookup(target string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	name := NormalizePageName(target)
	for _, key := range []string{name, target, "/" + name + ".html"} {
		if content, ok := c.pages[key]; ok {
			return content, true
		}
	}
	return "", false
}

// Warm fills the cache from a manifest of path -> content entries.
func (c *Cache) Warm(pages map[string]string) {
	for path, content := range pages {
		c.Put(path, content)
	}
}

// Len reports the number of cache keys (a page contributes up to two).
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.pages)
}
