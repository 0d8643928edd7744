package intent

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/bytedance/sonic"
)

// camelCaseDataKey converts a data attribute name ("data-service-id") to a
// payload key ("serviceId").
func camelCaseDataKey(attr string) string {
	parts := strings.Split(strings.TrimPrefix(attr, "data-"), "-")
	var b strings.Builder
	for i, p := range parts {
		if p == "" {
			continue
		}
		if i == 0 {
			b.WriteString(p)
			continue
		}
		b.WriteString(strings.ToUpper(p[:1]))
		b.WriteString(p[1:])
	}
	return b.String()
}

// decodeValue attempts JSON decoding of an attribute value, falling back
// to the raw string.
func decodeValue(raw string) any {
	var v any
	if err := sonic.Unmarshal([]byte(raw), &v); err != nil {
		return raw
	}
	return v
}

// dataAttrPayload collects every data-* attribute except the intent
// attribute itself, camel-cased, with JSON decoding attempted per value.
func dataAttrPayload(sel *goquery.Selection, into map[string]any) {
	if sel.Length() == 0 {
		return
	}
	for _, attr := range sel.Nodes[0].Attr {
		if !strings.HasPrefix(attr.Key, "data-") || attr.Key == attrIntent {
			continue
		}
		key := camelCaseDataKey(attr.Key)
		if key == "" {
			continue
		}
		into[key] = decodeValue(attr.Val)
	}
}

// formFieldPayload merges every named form field value. Buttons are
// excluded; checkboxes and radios contribute only when checked.
func formFieldPayload(form *goquery.Selection, into map[string]any) {
	form.Find("input[name], textarea[name], select[name]").Each(func(_ int, field *goquery.Selection) {
		name := field.AttrOr("name", "")
		if name == "" {
			return
		}

		if field.Is("textarea") {
			into[name] = strings.TrimSpace(field.Text())
			return
		}
		if field.Is("select") {
			if opt := field.Find("option[selected]").First(); opt.Length() > 0 {
				into[name] = opt.AttrOr("value", strings.TrimSpace(opt.Text()))
			} else if opt := field.Find("option").First(); opt.Length() > 0 {
				into[name] = opt.AttrOr("value", strings.TrimSpace(opt.Text()))
			}
			return
		}

		typ := strings.ToLower(field.AttrOr("type", "text"))
		switch typ {
		case "button", "submit", "reset":
			return
		case "checkbox", "radio":
			if _, checked := field.Attr("checked"); !checked {
				return
			}
			into[name] = field.AttrOr("value", "on")
		default:
			into[name] = field.AttrOr("value", "")
		}
	})
}

// clickPayload builds the payload for a clicked element: form field values
// first when the element sits inside a form, then the element's own data
// attributes applied after, so explicit data attributes always win.
func clickPayload(sel *goquery.Selection) map[string]any {
	payload := map[string]any{}
	if form := sel.Closest("form"); form.Length() > 0 {
		formFieldPayload(form, payload)
	}
	dataAttrPayload(sel, payload)
	return payload
}

// ClickPayload builds a click payload for callers that resolve the
// intent name themselves (explicit attributes checked upstream).
func ClickPayload(sel *goquery.Selection) map[string]any {
	return clickPayload(sel)
}

// submitPayload builds the payload for a form submission: field values,
// then the submit control's data attributes, then the form's own.
func submitPayload(form, control *goquery.Selection) map[string]any {
	payload := map[string]any{}
	formFieldPayload(form, payload)
	if control != nil && control.Length() > 0 {
		dataAttrPayload(control, payload)
	}
	dataAttrPayload(form, payload)
	return payload
}
