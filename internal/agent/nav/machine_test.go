package nav

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/draftforge/preview/internal/protocol"
)

type fakeUI struct {
	mu      sync.Mutex
	loading bool
	notices []string
}

func (f *fakeUI) SetLoading(v bool) {
	f.mu.Lock()
	f.loading = v
	f.mu.Unlock()
}

func (f *fakeUI) Notice(msg string) {
	f.mu.Lock()
	f.notices = append(f.notices, msg)
	f.mu.Unlock()
}

func (f *fakeUI) noticeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.notices)
}

type harness struct {
	machine *Machine
	ui      *fakeUI

	mu      sync.Mutex
	sent    []protocol.Message
	swapped []string
}

func newHarness(t *testing.T, timeout time.Duration) *harness {
	t.Helper()
	h := &harness{ui: &fakeUI{}}

	seq := 0
	h.machine = NewMachine(Options{
		Timeout: timeout,
		Send: func(m protocol.Message) error {
			h.mu.Lock()
			h.sent = append(h.sent, m)
			h.mu.Unlock()
			return nil
		},
		Swap: func(content string) error {
			h.mu.Lock()
			h.swapped = append(h.swapped, content)
			h.mu.Unlock()
			return nil
		},
		UI: h.ui,
		NewID: func() string {
			seq++
			return fmt.Sprintf("req_%d", seq)
		},
	})
	return h
}

func (h *harness) generates() []*protocol.NavPageGenerate {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []*protocol.NavPageGenerate
	for _, m := range h.sent {
		if gen, ok := m.(*protocol.NavPageGenerate); ok {
			out = append(out, gen)
		}
	}
	return out
}

func (h *harness) swaps() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.swapped...)
}

func TestCacheHitProducesZeroGenerationMessages(t *testing.T) {
	h := newHarness(t, time.Minute)
	h.machine.Cache().Put("/about.html", "<h1>About</h1>")

	h.machine.Navigate("/about.html", "About")

	assert.Empty(t, h.generates())
	require.Len(t, h.swaps(), 1)
	assert.Equal(t, "<h1>About</h1>", h.swaps()[0])

	// The completed switch is still reported, informationally.
	h.mu.Lock()
	sw, ok := h.sent[0].(*protocol.NavPageSwitch)
	h.mu.Unlock()
	require.True(t, ok)
	assert.Equal(t, "about", sw.PageName)
}

func TestCacheLookupTriesAllKeyForms(t *testing.T) {
	h := newHarness(t, time.Minute)
	h.machine.Cache().Warm(map[string]string{
		"/about.html": "<about>",
		"pricing":     "<pricing>",
	})

	h.machine.Navigate("about", "")
	h.machine.Navigate("/pricing.html", "")

	assert.Empty(t, h.generates())
	assert.Equal(t, []string{"<about>", "<pricing>"}, h.swaps())
}

func TestMissSendsCorrelatedGeneration(t *testing.T) {
	h := newHarness(t, time.Minute)

	h.machine.Navigate("/services.html", "Our Services")

	gens := h.generates()
	require.Len(t, gens, 1)
	assert.Equal(t, "req_1", gens[0].RequestID)
	assert.Equal(t, "services", gens[0].PageName)
	assert.Equal(t, "Our Services", gens[0].NavLabel)

	inflight, ok := h.machine.Inflight()
	require.True(t, ok)
	assert.Equal(t, StateInFlight, inflight.State)

	h.machine.HandleReady("req_1", "<services>")

	_, ok = h.machine.Inflight()
	assert.False(t, ok)
	assert.Equal(t, []string{"<services>"}, h.swaps())

	// The resolved page is cached for instant future hits.
	content, ok := h.machine.Cache().Lookup("services")
	require.True(t, ok)
	assert.Equal(t, "<services>", content)
}

func TestLabelFallsBackToPageName(t *testing.T) {
	h := newHarness(t, time.Minute)
	h.machine.Navigate("/team.html", "")

	gens := h.generates()
	require.Len(t, gens, 1)
	assert.Equal(t, "team", gens[0].NavLabel)
}

func TestSecondRequestQueuesFIFO(t *testing.T) {
	h := newHarness(t, time.Minute)

	h.machine.Navigate("alpha", "")
	h.machine.Navigate("beta", "")
	h.machine.Navigate("gamma", "")

	// Only the first goes out; the rest wait.
	require.Len(t, h.generates(), 1)
	assert.Equal(t, 2, h.machine.QueueLen())

	h.machine.HandleReady("req_1", "<alpha>")

	gens := h.generates()
	require.Len(t, gens, 2)
	assert.Equal(t, "beta", gens[1].PageName)

	h.machine.HandleReady("req_2", "<beta>")

	gens = h.generates()
	require.Len(t, gens, 3)
	assert.Equal(t, "gamma", gens[2].PageName)
	assert.Equal(t, []string{"<alpha>", "<beta>"}, h.swaps())
}

func TestQueuedTargetCachedMeanwhileResolvesInstantly(t *testing.T) {
	h := newHarness(t, time.Minute)

	h.machine.Navigate("alpha", "")
	h.machine.Navigate("beta", "")

	// A manifest arrives while alpha is in flight.
	h.machine.Cache().Warm(map[string]string{"beta": "<beta>"})

	h.machine.HandleReady("req_1", "<alpha>")

	// Beta drained from cache; no second generation round trip.
	require.Len(t, h.generates(), 1)
	assert.Equal(t, []string{"<alpha>", "<beta>"}, h.swaps())
}

func TestStaleOrForeignCorrelationIDIgnored(t *testing.T) {
	h := newHarness(t, time.Minute)

	h.machine.Navigate("alpha", "")

	h.machine.HandleReady("req_999", "<imposter>")
	h.machine.HandleError("req_998", "nope")

	inflight, ok := h.machine.Inflight()
	require.True(t, ok)
	assert.Equal(t, "req_1", inflight.RequestID)
	assert.Empty(t, h.swaps())

	h.machine.HandleReady("req_1", "<alpha>")
	assert.Equal(t, []string{"<alpha>"}, h.swaps())
}

func TestExplicitFailureRecoversAndDrains(t *testing.T) {
	h := newHarness(t, time.Minute)

	h.machine.Navigate("alpha", "")
	h.machine.Navigate("beta", "")

	h.machine.HandleError("req_1", "generation backend exploded")

	assert.Equal(t, 1, h.ui.noticeCount())
	assert.Empty(t, h.swaps())

	// The queued follow-up goes out.
	gens := h.generates()
	require.Len(t, gens, 2)
	assert.Equal(t, "beta", gens[1].PageName)
}

func TestTimeoutFiresOnceAndDrainsOneFollowUp(t *testing.T) {
	h := newHarness(t, 30*time.Millisecond)

	h.machine.Navigate("alpha", "")
	h.machine.Navigate("beta", "")

	require.Eventually(t, func() bool {
		return len(h.generates()) == 2
	}, 2*time.Second, 5*time.Millisecond)

	// Exactly one timeout notice; beta is now in flight.
	assert.Equal(t, 1, h.ui.noticeCount())
	inflight, ok := h.machine.Inflight()
	require.True(t, ok)
	assert.Equal(t, "beta", inflight.PageName)

	// The timed-out request's late response changes nothing.
	h.machine.HandleReady("req_1", "<late>")
	assert.Empty(t, h.swaps())
}

func TestTimerStoppedOnResolution(t *testing.T) {
	h := newHarness(t, 40*time.Millisecond)

	h.machine.Navigate("alpha", "")
	h.machine.HandleReady("req_1", "<alpha>")

	time.Sleep(80 * time.Millisecond)
	assert.Zero(t, h.ui.noticeCount())
}

func TestNormalizePageName(t *testing.T) {
	cases := map[string]string{
		"":                "index",
		"/":               "index",
		"/about.html":     "about",
		"about.html":      "about",
		"/pricing/":       "pricing",
		"team":            "team",
		"/docs/setup.html": "docs/setup",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizePageName(in), "input %q", in)
	}
}

func TestClassify(t *testing.T) {
	assert.Equal(t, KindAnchor, Classify("#contact"))
	assert.Equal(t, KindExternal, Classify("https://example.com/pricing"))
	assert.Equal(t, KindExternal, Classify("http://example.com"))
	assert.Equal(t, KindInternal, Classify("/about.html"))
	assert.Equal(t, KindInternal, Classify("about"))
	assert.Equal(t, KindInternal, Classify("docs/setup.html"))
}

func TestExternalSlug(t *testing.T) {
	assert.Equal(t, "example-com-pricing", ExternalSlug("https://example.com/pricing"))
	assert.Equal(t, "example-com", ExternalSlug("http://example.com/?utm=1"))
	assert.Equal(t, "external", ExternalSlug("https://???"))
}
