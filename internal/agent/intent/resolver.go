// Package intent maps DOM interactions to named application intents.
//
// Resolution precedence: explicit intent attribute (with opt-out values
// checked first), then element-kind eligibility, then visible-label
// inference against a curated priority-ordered table, then form-id
// heuristics. Navigation targets never reach this package; they are
// classified upstream and bypass the resolver entirely.
package intent

import (
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

const (
	attrIntent   = "data-intent"
	attrNoIntent = "data-no-intent"
	attrCTA      = "data-cta"

	// minResearchRunes is the link-text length at which an unresolved
	// anchor becomes a research request rather than a dead click.
	minResearchRunes = 12
)

// Source records how a binding was produced.
type Source string

const (
	SourceExplicit  Source = "explicit-attribute"
	SourceInferred  Source = "inferred-label"
	SourceHeuristic Source = "form-heuristic"
)

// Binding is a resolved interaction: an intent name plus its payload.
type Binding struct {
	Source  Source
	Intent  string
	Payload map[string]any
}

// Research is the UX fallback for long-text anchors that resolve to no
// intent: open a research flow instead of navigating.
type Research struct {
	Query string
	Href  string
}

// Resolver resolves clicks and form submissions to intent bindings.
type Resolver struct {
	table []LabelRule
}

// NewResolver loads the embedded label table.
func NewResolver() (*Resolver, error) {
	table, err := loadLabelTable()
	if err != nil {
		return nil, err
	}
	return &Resolver{table: table}, nil
}

// Table exposes the label rules for validation.
func (r *Resolver) Table() []LabelRule {
	return r.table
}

// OptedOut reports whether the element explicitly suppresses resolution.
// Callers that short-circuit ahead of the resolver (navigation, booking)
// still honor the opt-out first.
func OptedOut(sel *goquery.Selection) bool {
	return optedOut(sel)
}

// Explicit returns a verbatim intent attribute value. Opt-out values do
// not count as explicit intents.
func Explicit(sel *goquery.Selection) (string, bool) {
	if optedOut(sel) {
		return "", false
	}
	return explicitIntent(sel)
}

// optedOut reports whether the element explicitly suppresses resolution.
// Explicit opt-out always wins and is checked before anything else.
func optedOut(sel *goquery.Selection) bool {
	if _, ok := sel.Attr(attrNoIntent); ok {
		return true
	}
	v := strings.ToLower(strings.TrimSpace(sel.AttrOr(attrIntent, "")))
	return v == "none" || v == "ignore"
}

// explicitIntent returns a verbatim intent attribute value, if any.
func explicitIntent(sel *goquery.Selection) (string, bool) {
	v, ok := sel.Attr(attrIntent)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	if v == "" {
		return "", false
	}
	return v, true
}

func tagName(sel *goquery.Selection) string {
	if sel.Length() == 0 {
		return ""
	}
	return strings.ToLower(sel.Nodes[0].Data)
}

// eligible reports whether an element qualifies for label inference.
// Anchors always do; buttons only when submit-typed or CTA-marked.
func eligible(sel *goquery.Selection) bool {
	switch tagName(sel) {
	case "a":
		return true
	case "button":
		typ := strings.ToLower(sel.AttrOr("type", "submit"))
		if typ == "submit" {
			return true
		}
		_, cta := sel.Attr(attrCTA)
		return cta
	case "input":
		return strings.ToLower(sel.AttrOr("type", "")) == "submit"
	default:
		return false
	}
}

// resolveName runs the attribute and label steps without payload
// collection. Shared by click and submit resolution.
func (r *Resolver) resolveName(sel *goquery.Selection) (string, Source, bool) {
	if sel.Length() == 0 || optedOut(sel) {
		return "", "", false
	}
	if name, ok := explicitIntent(sel); ok {
		return name, SourceExplicit, true
	}
	if !eligible(sel) {
		return "", "", false
	}
	if name, ok := matchLabel(r.table, NormalizeLabel(sel.Text())); ok {
		return name, SourceInferred, true
	}
	return "", "", false
}

// ResolveClick produces a binding for a clicked element, or nil when the
// interaction should not be intercepted.
func (r *Resolver) ResolveClick(sel *goquery.Selection) *Binding {
	name, source, ok := r.resolveName(sel)
	if !ok {
		return nil
	}
	return &Binding{Source: source, Intent: name, Payload: clickPayload(sel)}
}

// formIDIntent applies substring heuristics to a form's id attribute.
var formIDKeywords = []struct {
	keyword string
	intent  string
}{
	{"contact", ContactSubmit},
	{"newsletter", NewsletterSubscribe},
	{"subscribe", NewsletterSubscribe},
	{"waitlist", WaitlistJoin},
	{"booking", BookingCreate},
	{"reservation", BookingCreate},
	{"quote", QuoteRequest},
}

func formIDIntent(form *goquery.Selection) (string, bool) {
	idAttr := strings.ToLower(form.AttrOr("id", ""))
	if idAttr == "" {
		return "", false
	}
	for _, kw := range formIDKeywords {
		if strings.Contains(idAttr, kw.keyword) {
			return kw.intent, true
		}
	}
	return "", false
}

// submitControl finds the form's effective submit control.
func submitControl(form *goquery.Selection) *goquery.Selection {
	return form.Find("button[type='submit'], button:not([type]), input[type='submit']").First()
}

// ResolveSubmit produces a binding for a submitted form, or nil to allow
// default behavior. Falls back from the form's own attributes to its
// submit control's resolution, then to form-id heuristics.
func (r *Resolver) ResolveSubmit(form *goquery.Selection) *Binding {
	if form.Length() == 0 || optedOut(form) {
		return nil
	}

	control := submitControl(form)

	if name, ok := explicitIntent(form); ok {
		return &Binding{Source: SourceExplicit, Intent: name, Payload: submitPayload(form, control)}
	}

	if control.Length() > 0 {
		if name, source, ok := r.resolveName(control); ok {
			return &Binding{Source: source, Intent: name, Payload: submitPayload(form, control)}
		}
	}

	if name, ok := formIDIntent(form); ok {
		return &Binding{Source: SourceHeuristic, Intent: name, Payload: submitPayload(form, control)}
	}
	return nil
}

// ResolveResearch returns the research fallback for an anchor with
// non-trivial link text and a real destination, or nil.
func ResolveResearch(sel *goquery.Selection) *Research {
	if tagName(sel) != "a" {
		return nil
	}

	text := strings.Join(strings.Fields(sel.Text()), " ")
	if utf8.RuneCountInString(text) < minResearchRunes {
		return nil
	}

	href := strings.TrimSpace(sel.AttrOr("href", ""))
	lower := strings.ToLower(href)
	if href == "" || strings.HasPrefix(href, "#") ||
		strings.HasPrefix(lower, "mailto:") ||
		strings.HasPrefix(lower, "tel:") ||
		strings.HasPrefix(lower, "javascript:") {
		return nil
	}

	return &Research{Query: text, Href: href}
}
