package sandbox

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/draftforge/preview/internal/logging"
)

// ReloadFunc asks the host to rebuild the preview out-of-band. Last
// resort when no in-place technique can apply new content.
type ReloadFunc func(reason string) error

// ReplaceStrategy is one technique for applying new page content to a
// live document. Apply returns the inline scripts extracted from the
// new content so the caller can execute them.
type ReplaceStrategy struct {
	Name  string
	Apply func(d *Document, content string) ([]string, error)
}

// Replacer applies new content through an ordered strategy chain:
// build a detached snapshot and swap it in wholesale; failing that,
// substitute the body directly; failing that, ask the host to reload.
type Replacer struct {
	doc    *Document
	reload ReloadFunc
	logger *logging.Logger
}

func NewReplacer(doc *Document, reload ReloadFunc, logger *logging.Logger) *Replacer {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Replacer{doc: doc, reload: reload, logger: logger}
}

// Strategies returns the chain in evaluation order.
func (r *Replacer) Strategies() []ReplaceStrategy {
	return []ReplaceStrategy{
		{Name: "snapshot-swap", Apply: snapshotSwap},
		{Name: "direct-substitution", Apply: directSubstitution},
		{Name: "host-reload", Apply: r.hostReload},
	}
}

// Replace tries each strategy in order and returns the scripts of the
// applied content plus the name of the strategy that succeeded.
func (r *Replacer) Replace(content string) ([]string, string, error) {
	var lastErr error
	for _, s := range r.Strategies() {
		scripts, err := s.Apply(r.doc, content)
		if err == nil {
			return scripts, s.Name, nil
		}
		lastErr = err
		r.logger.Warn("replacement strategy failed",
			zap.String("strategy", s.Name), zap.Error(err))
	}
	return nil, "", fmt.Errorf("all replacement strategies failed: %w", lastErr)
}

// snapshotSwap builds a complete detached document from the new
// content, then swaps it in atomically. The snapshot is discarded
// immediately after adoption.
func snapshotSwap(d *Document, content string) ([]string, error) {
	snapshot, err := NewDocument(content)
	if err != nil {
		return nil, fmt.Errorf("build snapshot: %w", err)
	}
	scripts := snapshot.Scripts()
	d.swapTree(snapshot.doc)
	d.mu.Lock()
	d.scripts = scripts
	d.mu.Unlock()
	return scripts, nil
}

// directSubstitution keeps the outer tree and replaces only the body.
// Used when a full snapshot cannot be built, e.g. fragment content
// with no document structure.
func directSubstitution(d *Document, content string) ([]string, error) {
	frag, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("parse fragment: %w", err)
	}
	scripts := extractScripts(frag)

	inner, err := frag.Find("body").Html()
	if err != nil {
		return nil, fmt.Errorf("render fragment body: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	body := d.doc.Find("body")
	if body.Length() == 0 {
		return nil, fmt.Errorf("document has no body to substitute")
	}
	body.SetHtml(Sanitize(inner))
	d.scripts = scripts
	d.scrollTarget = ""
	d.focused = ""
	d.loading = false
	return scripts, nil
}

// hostReload hands the problem back to the host controller.
func (r *Replacer) hostReload(_ *Document, _ string) ([]string, error) {
	if r.reload == nil {
		return nil, fmt.Errorf("no reload path configured")
	}
	if err := r.reload("in-place replacement failed"); err != nil {
		return nil, fmt.Errorf("request host reload: %w", err)
	}
	return nil, nil
}
