package sandbox

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/draftforge/preview/internal/protocol"
)

type recordingSink struct {
	mu   sync.Mutex
	recs []protocol.ErrorRecord
}

func (s *recordingSink) capture(rec protocol.ErrorRecord) {
	s.mu.Lock()
	s.recs = append(s.recs, rec)
	s.mu.Unlock()
}

func (s *recordingSink) records() []protocol.ErrorRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]protocol.ErrorRecord(nil), s.recs...)
}

func TestRunCapturesConsole(t *testing.T) {
	sink := &recordingSink{}
	r := NewRuntime(time.Second, sink.capture, nil)

	ok := r.Run(context.Background(), "test", `console.log("a", 1); console.warn("b");`)
	require.True(t, ok)

	out := r.Console()
	require.Len(t, out, 2)
	assert.Equal(t, "log", out[0].Level)
	assert.Equal(t, "a 1", out[0].Message)
	assert.Equal(t, "warn", out[1].Level)
	assert.Empty(t, sink.records())
}

func TestConsoleErrorFeedsSink(t *testing.T) {
	sink := &recordingSink{}
	r := NewRuntime(time.Second, sink.capture, nil)

	r.Run(context.Background(), "test", `console.error("broken widget");`)

	recs := sink.records()
	require.Len(t, recs, 1)
	assert.Equal(t, "console.error", recs[0].Type)
	assert.Equal(t, "broken widget", recs[0].Message)
}

func TestThrownErrorBecomesRecord(t *testing.T) {
	sink := &recordingSink{}
	r := NewRuntime(time.Second, sink.capture, nil)

	ok := r.Run(context.Background(), "inline-script-0", `throw new Error("boom");`)
	assert.False(t, ok)

	recs := sink.records()
	require.Len(t, recs, 1)
	assert.Equal(t, "error", recs[0].Type)
	assert.Equal(t, "inline-script-0", recs[0].Source)
	assert.Contains(t, recs[0].Message, "boom")
	assert.NotZero(t, recs[0].Timestamp)
}

func TestSyntaxErrorBecomesRecord(t *testing.T) {
	sink := &recordingSink{}
	r := NewRuntime(time.Second, sink.capture, nil)

	ok := r.Run(context.Background(), "test", `function {`)
	assert.False(t, ok)
	require.Len(t, sink.records(), 1)
}

func TestUnhandledRejectionBecomesRecord(t *testing.T) {
	sink := &recordingSink{}
	r := NewRuntime(time.Second, sink.capture, nil)

	ok := r.Run(context.Background(), "test", `Promise.reject("async failure");`)
	require.True(t, ok)

	recs := sink.records()
	require.Len(t, recs, 1)
	assert.Equal(t, "unhandledrejection", recs[0].Type)
	assert.Contains(t, recs[0].Message, "async failure")
}

func TestInfiniteLoopInterrupted(t *testing.T) {
	sink := &recordingSink{}
	r := NewRuntime(50*time.Millisecond, sink.capture, nil)

	start := time.Now()
	ok := r.Run(context.Background(), "test", `for (;;) {}`)
	assert.False(t, ok)
	assert.Less(t, time.Since(start), 2*time.Second)
	require.Len(t, sink.records(), 1)
}

func TestRunAllContinuesPastFailures(t *testing.T) {
	sink := &recordingSink{}
	r := NewRuntime(time.Second, sink.capture, nil)

	failures := r.RunAll(context.Background(), []string{
		`var a = 1;`,
		`throw new Error("one");`,
		`var b = 2;`,
		`throw new Error("two");`,
	})
	assert.Equal(t, 2, failures)
	assert.Len(t, sink.records(), 2)
}

func TestDocumentBinding(t *testing.T) {
	doc, err := NewDocument(`<div id="hero" class="big" data-kind="banner">Welcome</div>`)
	require.NoError(t, err)

	r := NewRuntime(time.Second, nil, nil)
	r.BindDocument(doc)

	ok := r.Run(context.Background(), "test", `
		var el = document.getElementById("hero");
		console.log(el.tagName, el.className, el.getAttribute("data-kind"));
		console.log(document.querySelector("#missing"));
	`)
	require.True(t, ok)

	out := r.Console()
	require.Len(t, out, 2)
	assert.Equal(t, "DIV big banner", out[0].Message)
	assert.Equal(t, "null", out[1].Message)
}
