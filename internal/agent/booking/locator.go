// Package booking finds an on-page booking form so that a
// booking-creation intent can be satisfied locally, by scrolling the
// visitor to the form, instead of round-tripping through the host.
package booking

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Strategy is one named way of locating a booking form. Locate returns
// nil when the strategy finds nothing; the locator tries the next one.
type Strategy struct {
	Name   string
	Locate func(doc *goquery.Document, trigger *goquery.Selection) *goquery.Selection
}

// explicit selectors an author can use to mark the booking section.
var markerSelectors = []string{
	"[data-booking-form]",
	"form[data-booking]",
	"#booking-form",
	".booking-form",
}

// section ids commonly given to the booking area of a landing page. A
// match only counts when the section actually contains a form with at
// least one input.
var sectionIDs = []string{
	"booking", "book", "appointment", "appointments",
	"schedule", "scheduling", "reserve", "reservation", "reservations",
}

// Strategies returns the locator chain in evaluation order.
func Strategies() []Strategy {
	return []Strategy{
		{Name: "hash-target", Locate: hashTarget},
		{Name: "explicit-marker", Locate: explicitMarker},
		{Name: "known-section", Locate: knownSection},
		{Name: "field-shape", Locate: fieldShape},
		{Name: "any-form", Locate: anyForm},
	}
}

// Locate runs the strategy chain and returns the first hit plus the
// name of the strategy that produced it. trigger may be nil.
func Locate(doc *goquery.Document, trigger *goquery.Selection) (*goquery.Selection, string, bool) {
	for _, s := range Strategies() {
		if sel := s.Locate(doc, trigger); sel != nil && sel.Length() > 0 {
			return sel.First(), s.Name, true
		}
	}
	return nil, "", false
}

// hashTarget resolves the triggering anchor's own in-page hash, e.g. a
// "Book Now" link pointing at "#booking".
func hashTarget(doc *goquery.Document, trigger *goquery.Selection) *goquery.Selection {
	if trigger == nil {
		return nil
	}
	href, ok := trigger.Attr("href")
	if !ok {
		return nil
	}
	frag, found := strings.CutPrefix(strings.TrimSpace(href), "#")
	if !found || frag == "" {
		return nil
	}
	if sel := doc.Find("#" + escapeID(frag)); sel.Length() > 0 {
		return sel
	}
	return nil
}

func explicitMarker(doc *goquery.Document, _ *goquery.Selection) *goquery.Selection {
	for _, sel := range markerSelectors {
		if found := doc.Find(sel); found.Length() > 0 {
			return found
		}
	}
	return nil
}

func knownSection(doc *goquery.Document, _ *goquery.Selection) *goquery.Selection {
	for _, id := range sectionIDs {
		section := doc.Find("#" + id)
		if section.Length() == 0 {
			continue
		}
		form := section.Find("form").FilterFunction(func(_ int, f *goquery.Selection) bool {
			return f.Find("input, textarea, select").Length() > 0
		})
		if form.Length() > 0 {
			return form
		}
		// The section itself may be the form.
		if goquery.NodeName(section) == "form" && section.Find("input, textarea, select").Length() > 0 {
			return section
		}
	}
	return nil
}

// fieldShape scans every form for field combinations that only a
// booking flow plausibly collects.
func fieldShape(doc *goquery.Document, _ *goquery.Selection) *goquery.Selection {
	var hit *goquery.Selection
	doc.Find("form").EachWithBreak(func(_ int, form *goquery.Selection) bool {
		f := fields(form)
		switch {
		case f.date && f.time,
			f.email && (f.date || f.time),
			f.name && f.phone,
			f.service && (f.date || f.time || f.name):
			hit = form
			return false
		}
		return true
	})
	return hit
}

// anyForm is the last resort: the first form with at least two
// non-hidden fields.
func anyForm(doc *goquery.Document, _ *goquery.Selection) *goquery.Selection {
	var hit *goquery.Selection
	doc.Find("form").EachWithBreak(func(_ int, form *goquery.Selection) bool {
		if visibleFieldCount(form) >= 2 {
			hit = form
			return false
		}
		return true
	})
	return hit
}

type fieldSet struct {
	date, time, email, name, phone, service bool
}

func fields(form *goquery.Selection) fieldSet {
	var f fieldSet
	form.Find("input, textarea, select").Each(func(_ int, el *goquery.Selection) {
		typ, _ := el.Attr("type")
		nameAttr, _ := el.Attr("name")
		if nameAttr == "" {
			nameAttr, _ = el.Attr("id")
		}
		key := strings.ToLower(nameAttr)
		switch strings.ToLower(typ) {
		case "date", "datetime-local":
			f.date = true
		case "time":
			f.time = true
		case "email":
			f.email = true
		case "tel":
			f.phone = true
		}
		switch {
		case strings.Contains(key, "date"):
			f.date = true
		case strings.Contains(key, "time"):
			f.time = true
		case strings.Contains(key, "email"):
			f.email = true
		case strings.Contains(key, "phone"):
			f.phone = true
		case strings.Contains(key, "name"):
			f.name = true
		case strings.Contains(key, "service"):
			f.service = true
		}
	})
	return f
}

func visibleFieldCount(form *goquery.Selection) int {
	count := 0
	form.Find("input, textarea, select").Each(func(_ int, el *goquery.Selection) {
		typ, _ := el.Attr("type")
		if strings.EqualFold(typ, "hidden") {
			return
		}
		count++
	})
	return count
}

// escapeID backslash-escapes characters goquery's selector parser would
// otherwise treat as syntax. Hash fragments in the wild contain dots
// and colons.
func escapeID(id string) string {
	var b strings.Builder
	for _, r := range id {
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
