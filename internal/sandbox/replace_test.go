package sandbox

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/draftforge/preview/internal/protocol"
)

func TestSnapshotSwapAppliesNewContent(t *testing.T) {
	doc, err := NewDocument(`<h1>Old</h1>`)
	require.NoError(t, err)
	doc.ScrollTo("h1")

	r := NewReplacer(doc, nil, nil)
	scripts, strategy, err := r.Replace(`<h1>New</h1><script>console.log("hi")</script>`)
	require.NoError(t, err)

	assert.Equal(t, "snapshot-swap", strategy)
	assert.Equal(t, "New", doc.Find("h1").Text())
	require.Len(t, scripts, 1)

	// Presentation state resets with the new tree.
	assert.Empty(t, doc.ScrollTarget())
}

func TestEmptyContentFallsBackToDirectSubstitution(t *testing.T) {
	doc, err := NewDocument(`<h1>Old</h1>`)
	require.NoError(t, err)

	r := NewReplacer(doc, nil, nil)
	_, strategy, err := r.Replace("")
	require.NoError(t, err)
	assert.Equal(t, "direct-substitution", strategy)
	assert.Zero(t, doc.Find("h1").Length())
}

func TestHostReloadIsLastResort(t *testing.T) {
	doc, err := NewDocument(`<h1>Old</h1>`)
	require.NoError(t, err)

	var reason string
	r := NewReplacer(doc, func(why string) error {
		reason = why
		return nil
	}, nil)

	strategies := r.Strategies()
	require.Len(t, strategies, 3)
	assert.Equal(t, "host-reload", strategies[2].Name)

	scripts, err := strategies[2].Apply(doc, "ignored")
	require.NoError(t, err)
	assert.Nil(t, scripts)
	assert.NotEmpty(t, reason)
}

func TestHostReloadFailurePropagates(t *testing.T) {
	doc, err := NewDocument(`<h1>Old</h1>`)
	require.NoError(t, err)

	r := NewReplacer(doc, func(string) error { return fmt.Errorf("host gone") }, nil)
	_, err = r.Strategies()[2].Apply(doc, "x")
	assert.Error(t, err)
}

func TestSandboxLoadAndReplace(t *testing.T) {
	var captured int
	s := New(Options{
		ScriptTimeout: time.Second,
		Sink:          func(protocol.ErrorRecord) { captured++ },
	})

	failures, err := s.Load(context.Background(), `
		<h1>Landing</h1>
		<script>throw new Error("boot failure")</script>
		<script>console.log("fine")</script>`)
	require.NoError(t, err)
	assert.Equal(t, 1, failures)
	assert.Equal(t, 1, captured)

	strategy, err := s.Replace(context.Background(), `<h1>Next</h1>`)
	require.NoError(t, err)
	assert.Equal(t, "snapshot-swap", strategy)
	assert.Equal(t, "Next", s.Document().Find("h1").Text())
}
