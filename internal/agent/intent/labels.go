package intent

import (
	_ "embed"
	"fmt"
	"strings"
	"unicode"

	"github.com/goccy/go-yaml"
)

// Well-known intent names. Navigation intents are detected ahead of the
// resolver (see the nav package) and bypass it entirely.
const (
	BookingCreate       = "booking.create"
	ContactSubmit       = "contact.submit"
	QuoteRequest        = "quote.request"
	AuthLogin           = "auth.login"
	AuthSignup          = "auth.signup"
	NewsletterSubscribe = "newsletter.subscribe"
	WaitlistJoin        = "waitlist.join"

	NavGoto     = "nav.goto"
	NavAnchor   = "nav.anchor"
	NavExternal = "nav.external"
)

//go:embed labels.yaml
var labelsYAML []byte

// LabelRule maps a normalized label phrase to an intent name.
type LabelRule struct {
	Label  string `yaml:"label"`
	Intent string `yaml:"intent"`
}

type labelTable struct {
	Labels []LabelRule `yaml:"labels"`
}

// loadLabelTable parses the embedded priority-ordered table.
func loadLabelTable() ([]LabelRule, error) {
	var table labelTable
	if err := yaml.Unmarshal(labelsYAML, &table); err != nil {
		return nil, fmt.Errorf("parse label table: %w", err)
	}
	if len(table.Labels) == 0 {
		return nil, fmt.Errorf("label table is empty")
	}
	return table.Labels, nil
}

// NormalizeLabel collapses whitespace, trims, lowercases and strips
// punctuation so visible text compares stably against the table.
func NormalizeLabel(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(unicode.ToLower(r))
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// matchLabel resolves a normalized label against the table: exact match
// first across the whole table, then bidirectional substring containment.
// First match in table order wins within each pass.
func matchLabel(table []LabelRule, label string) (string, bool) {
	if label == "" {
		return "", false
	}
	for _, rule := range table {
		if label == rule.Label {
			return rule.Intent, true
		}
	}
	for _, rule := range table {
		if strings.Contains(label, rule.Label) || strings.Contains(rule.Label, label) {
			return rule.Intent, true
		}
	}
	return "", false
}
