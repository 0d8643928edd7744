package sandbox

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const samplePage = `<html><head><title>Acme</title></head><body>
<nav><a href="/about.html">About Us</a></nav>
<section id="contact">
  <form id="contact-form" data-plan="pro">
    <input type="hidden" name="csrf" value="x">
    <input type="email" name="email" placeholder="Email">
    <textarea name="message"></textarea>
    <button type="submit">Send Message</button>
  </form>
</section>
<script>console.log("boot");</script>
<script src="https://cdn.example.com/lib.js"></script>
</body></html>`

func TestNewDocumentExtractsAndStripsScripts(t *testing.T) {
	doc, err := NewDocument(samplePage)
	require.NoError(t, err)

	// Inline bodies captured, external references discarded.
	require.Len(t, doc.Scripts(), 1)
	assert.Contains(t, doc.Scripts()[0], `console.log("boot")`)
	assert.Zero(t, doc.Find("script").Length())
}

func TestSanitizationKeepsFormsAndDataAttributes(t *testing.T) {
	doc, err := NewDocument(samplePage)
	require.NoError(t, err)

	form := doc.Find("#contact-form")
	require.Equal(t, 1, form.Length())
	plan, _ := form.Attr("data-plan")
	assert.Equal(t, "pro", plan)
	assert.Equal(t, 1, doc.Find("input[type='email']").Length())
	assert.Equal(t, 1, doc.Find("button[type='submit']").Length())
}

func TestNewDocumentRejectsEmptyAndOversized(t *testing.T) {
	_, err := NewDocument("")
	assert.Error(t, err)

	big := make([]byte, MaxHTMLSize+1)
	for i := range big {
		big[i] = 'a'
	}
	_, err = NewDocument(string(big))
	assert.Error(t, err)
}

func TestScrollToAndTop(t *testing.T) {
	doc, err := NewDocument(samplePage)
	require.NoError(t, err)

	assert.False(t, doc.ScrollTo("#nowhere"))
	assert.Empty(t, doc.ScrollTarget())

	assert.True(t, doc.ScrollTo("#contact"))
	assert.Equal(t, "#contact", doc.ScrollTarget())

	doc.ScrollTop()
	assert.Empty(t, doc.ScrollTarget())
}

func TestFocusFirstInputSkipsHidden(t *testing.T) {
	doc, err := NewDocument(samplePage)
	require.NoError(t, err)

	require.True(t, doc.FocusFirstInput("#contact"))
	assert.Equal(t, "input[name='email']", doc.Focused())

	assert.False(t, doc.FocusFirstInput("#nowhere"))
}

func TestElementOps(t *testing.T) {
	doc, err := NewDocument(samplePage)
	require.NoError(t, err)

	require.NoError(t, doc.UpdateElement("nav", `<a href="/team.html">Team</a>`))
	assert.Equal(t, "Team", doc.Find("nav a").Text())

	require.NoError(t, doc.DuplicateElement("nav a"))
	assert.Equal(t, 2, doc.Find("nav a").Length())

	require.NoError(t, doc.DeleteElement("nav a"))
	assert.Zero(t, doc.Find("nav a").Length())

	assert.Error(t, doc.UpdateElement("#nope", "x"))
	assert.Error(t, doc.DeleteElement("#nope"))
	assert.Error(t, doc.DuplicateElement("#nope"))
}

func TestDuplicateDropsCloneID(t *testing.T) {
	doc, err := NewDocument(`<div id="card">hello</div>`)
	require.NoError(t, err)

	require.NoError(t, doc.DuplicateElement("#card"))
	assert.Equal(t, 1, doc.Find("#card").Length())
	assert.Equal(t, 2, doc.Find("div").Length())
}

func TestXPath(t *testing.T) {
	doc, err := NewDocument(samplePage)
	require.NoError(t, err)

	out, err := doc.XPath("//form//input[@type='email']")
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Contains(t, out[0], `name="email"`)

	_, err = doc.XPath("///broken[")
	assert.Error(t, err)
}

func TestEscapeSelector(t *testing.T) {
	assert.Equal(t, `a\.b\:c`, EscapeSelector("a.b:c"))
	assert.Equal(t, "plain-id_1", EscapeSelector("plain-id_1"))
}
