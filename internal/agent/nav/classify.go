package nav

import (
	"strings"
)

// Kind classifies a navigation target.
type Kind int

const (
	// KindAnchor targets an in-document element; no message crosses the
	// boundary.
	KindAnchor Kind = iota
	// KindExternal targets another origin. Popups are disallowed by
	// policy, so external links are re-expressed as synthetic internal
	// pages and routed through the generation pipeline.
	KindExternal
	// KindInternal targets a page of this site, resolved cache-then-
	// generate.
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindAnchor:
		return "anchor"
	case KindExternal:
		return "external"
	default:
		return "internal"
	}
}

// Classify determines how a navigation target is resolved.
func Classify(target string) Kind {
	t := strings.TrimSpace(target)
	if strings.HasPrefix(t, "#") {
		return KindAnchor
	}
	lower := strings.ToLower(t)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return KindExternal
	}
	return KindInternal
}

// NormalizePageName reduces a path to a bare page name: strip the leading
// slash, a trailing ".html", and a trailing slash; empty becomes "index".
func NormalizePageName(path string) string {
	name := strings.TrimSpace(path)
	name = strings.TrimPrefix(name, "/")
	name = strings.TrimSuffix(name, "/")
	name = strings.TrimSuffix(name, ".html")
	name = strings.TrimSuffix(name, "/")
	if name == "" {
		return "index"
	}
	return name
}

// ExternalSlug derives a synthetic internal page name from an external
// URL, so off-site links flow through the same generation pipeline.
func ExternalSlug(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.TrimPrefix(s, "http://")
	s = strings.TrimPrefix(s, "https://")
	if i := strings.IndexAny(s, "?#"); i >= 0 {
		s = s[:i]
	}

	var b strings.Builder
	lastDash := true // suppress a leading dash
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			lastDash = false
			continue
		}
		if !lastDash {
			b.WriteByte('-')
			lastDash = true
		}
	}
	slug := strings.TrimSuffix(b.String(), "-")
	if slug == "" {
		return "external"
	}
	return slug
}
