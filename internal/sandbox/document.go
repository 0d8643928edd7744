package sandbox

import (
	"bytes"
	"fmt"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
	"github.com/microcosm-cc/bluemonday"
	"github.com/saintfish/chardet"
	"golang.org/x/net/html/charset"
)

// MaxHTMLSize limits document input to 10MB to prevent memory exhaustion.
const MaxHTMLSize = 10 * 1024 * 1024

// Document is the isolated page the content agent operates on. It
// models the pieces of a live page the preview protocol cares about:
// the parsed tree, extracted inline scripts, and presentation state
// (scroll target, focus, loading affordance, user notices).
type Document struct {
	mu      sync.RWMutex
	doc     *goquery.Document
	scripts []string

	scrollTarget string
	focused      string
	loading      bool
	notices      []string
}

// sanitizer keeps the structure intent resolution depends on: forms,
// their controls, and every data-* attribute. UGC policy alone strips
// all of those.
var sanitizer = newPolicy()

func newPolicy() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.AllowElements("form", "input", "textarea", "select", "option", "button", "label")
	p.AllowElements("section", "header", "footer", "nav", "main", "article", "aside", "figure", "figcaption")
	p.AllowAttrs("id", "class", "title", "role").Globally()
	p.AllowAttrs("name", "type", "value", "placeholder", "required", "disabled",
		"checked", "selected", "min", "max", "step", "rows", "cols", "for").
		OnElements("form", "input", "textarea", "select", "option", "button", "label")
	p.AllowAttrs("action", "method").OnElements("form")
	p.AllowDataAttributes()
	return p
}

// Sanitize strips active content from generated HTML while keeping the
// markup the resolver needs.
func Sanitize(htmlStr string) string {
	return sanitizer.Sanitize(htmlStr)
}

func validateHTML(htmlStr string) error {
	if len(htmlStr) == 0 {
		return fmt.Errorf("html content required")
	}
	if len(htmlStr) > MaxHTMLSize {
		return fmt.Errorf("html exceeds maximum size of %d bytes", MaxHTMLSize)
	}
	return nil
}

// detectCharset returns the best-guess charset of raw HTML bytes.
func detectCharset(data []byte) string {
	detector := chardet.NewTextDetector()
	result, err := detector.DetectBest(data)
	if err != nil || result == nil {
		return "utf-8"
	}
	return strings.ToLower(result.Charset)
}

// parseHTML parses with automatic charset detection, falling back to
// direct parsing when conversion is unavailable.
func parseHTML(htmlStr string) (*goquery.Document, error) {
	data := []byte(htmlStr)
	reader := bytes.NewReader(data)
	utf8Reader, err := charset.NewReader(reader, detectCharset(data))
	if err != nil {
		return goquery.NewDocumentFromReader(strings.NewReader(htmlStr))
	}
	return goquery.NewDocumentFromReader(utf8Reader)
}

// extractScripts pulls inline script bodies out of the tree, in
// document order, removing the nodes. Must run before sanitization,
// which would silently drop them.
func extractScripts(doc *goquery.Document) []string {
	var scripts []string
	doc.Find("script").Each(func(_ int, s *goquery.Selection) {
		if src, ok := s.Attr("src"); ok && src != "" {
			return // external scripts never execute in the preview
		}
		if body := s.Text(); strings.TrimSpace(body) != "" {
			scripts = append(scripts, body)
		}
	})
	doc.Find("script").Remove()
	return scripts
}

// NewDocument parses, extracts scripts, and sanitizes page content.
func NewDocument(htmlStr string) (*Document, error) {
	if err := validateHTML(htmlStr); err != nil {
		return nil, err
	}

	raw, err := parseHTML(htmlStr)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	scripts := extractScripts(raw)

	markup, err := raw.Html()
	if err != nil {
		return nil, fmt.Errorf("render html: %w", err)
	}
	clean, err := goquery.NewDocumentFromReader(strings.NewReader(Sanitize(markup)))
	if err != nil {
		return nil, fmt.Errorf("reparse sanitized html: %w", err)
	}

	return &Document{doc: clean, scripts: scripts}, nil
}

// Scripts returns the inline script bodies extracted at load time.
func (d *Document) Scripts() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]string(nil), d.scripts...)
}

// Find proxies a CSS query against the current tree.
func (d *Document) Find(selector string) *goquery.Selection {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.doc.Find(selector)
}

// Root exposes the underlying tree for read-mostly collaborators.
func (d *Document) Root() *goquery.Document {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.doc
}

// HTML renders the current tree back to markup.
func (d *Document) HTML() (string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.doc.Html()
}

// XPath evaluates an xpath expression against the current tree and
// returns the matching nodes' rendered markup.
func (d *Document) XPath(expr string) ([]string, error) {
	markup, err := d.HTML()
	if err != nil {
		return nil, err
	}
	root, err := htmlquery.Parse(strings.NewReader(markup))
	if err != nil {
		return nil, fmt.Errorf("parse for xpath: %w", err)
	}
	nodes, err := htmlquery.QueryAll(root, expr)
	if err != nil {
		return nil, fmt.Errorf("xpath query: %w", err)
	}
	out := make([]string, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, htmlquery.OutputHTML(n, true))
	}
	return out, nil
}

// ScrollTo records the element the viewport should move to. Reports
// whether the target exists.
func (d *Document) ScrollTo(selector string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.doc.Find(selector).Length() == 0 {
		return false
	}
	d.scrollTarget = selector
	return true
}

// ScrollTop resets the viewport to the top of the page.
func (d *Document) ScrollTop() {
	d.mu.Lock()
	d.scrollTarget = ""
	d.mu.Unlock()
}

// ScrollTarget returns the selector the viewport was last moved to,
// empty meaning top of page.
func (d *Document) ScrollTarget() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.scrollTarget
}

// FocusFirstInput focuses the first non-hidden field within scope
// (the whole document when scope is empty). Reports success.
func (d *Document) FocusFirstInput(scope string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	root := d.doc.Selection
	if scope != "" {
		root = d.doc.Find(scope)
	}
	found := false
	root.Find("input, textarea, select").EachWithBreak(func(_ int, el *goquery.Selection) bool {
		if typ, _ := el.Attr("type"); strings.EqualFold(typ, "hidden") {
			return true
		}
		d.focused = fieldSelector(el)
		found = true
		return false
	})
	return found
}

// Focused returns the selector of the currently focused field.
func (d *Document) Focused() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.focused
}

// SetLoading toggles the loading affordance.
func (d *Document) SetLoading(v bool) {
	d.mu.Lock()
	d.loading = v
	d.mu.Unlock()
}

// Loading reports whether the loading affordance is showing.
func (d *Document) Loading() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.loading
}

// Notice records a user-facing message (generation failure, timeout).
func (d *Document) Notice(msg string) {
	d.mu.Lock()
	d.notices = append(d.notices, msg)
	d.mu.Unlock()
}

// Notices returns the accumulated user-facing messages.
func (d *Document) Notices() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]string(nil), d.notices...)
}

// UpdateElement replaces the inner markup of the first element
// matching selector.
func (d *Document) UpdateElement(selector, inner string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	sel := d.doc.Find(selector)
	if sel.Length() == 0 {
		return fmt.Errorf("no element matches %q", selector)
	}
	sel.First().SetHtml(Sanitize(inner))
	return nil
}

// DeleteElement removes every element matching selector.
func (d *Document) DeleteElement(selector string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	sel := d.doc.Find(selector)
	if sel.Length() == 0 {
		return fmt.Errorf("no element matches %q", selector)
	}
	sel.Remove()
	return nil
}

// DuplicateElement clones the first element matching selector and
// inserts the copy immediately after the original. The clone's id is
// dropped so ids stay unique.
func (d *Document) DuplicateElement(selector string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	sel := d.doc.Find(selector)
	if sel.Length() == 0 {
		return fmt.Errorf("no element matches %q", selector)
	}
	orig := sel.First()
	clone := orig.Clone()
	clone.RemoveAttr("id")
	orig.AfterSelection(clone)
	return nil
}

// SetAttr sets an attribute on every element matching selector.
func (d *Document) SetAttr(selector, attr, value string) {
	d.mu.Lock()
	d.doc.Find(selector).SetAttr(attr, value)
	d.mu.Unlock()
}

// RemoveAttrAll removes an attribute from every element matching selector.
func (d *Document) RemoveAttrAll(selector, attr string) {
	d.mu.Lock()
	d.doc.Find(selector).RemoveAttr(attr)
	d.mu.Unlock()
}

// swapTree replaces the underlying tree, resetting presentation state.
// Replacement strategies call this; scroll preservation is the host's
// concern, not the document's.
func (d *Document) swapTree(doc *goquery.Document) {
	d.mu.Lock()
	d.doc = doc
	d.scrollTarget = ""
	d.focused = ""
	d.loading = false
	d.mu.Unlock()
}

// EscapeSelector backslash-escapes CSS selector metacharacters so raw
// ids and class names from page content can be queried safely.
func EscapeSelector(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z',
			r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('\\')
			b.WriteRune(r)
		}
	}
	return b.String()
}

// fieldSelector builds a stable selector for a form control, for
// reporting which field holds focus.
func fieldSelector(el *goquery.Selection) string {
	if id, ok := el.Attr("id"); ok && id != "" {
		return "#" + EscapeSelector(id)
	}
	tag := goquery.NodeName(el)
	if name, ok := el.Attr("name"); ok && name != "" {
		return fmt.Sprintf("%s[name='%s']", tag, name)
	}
	return tag
}
