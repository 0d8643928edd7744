package channel

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/draftforge/preview/internal/protocol"
)

func collect(e *Endpoint) (*sync.Mutex, *[]protocol.Message) {
	var mu sync.Mutex
	var got []protocol.Message
	e.SetHandler(func(m protocol.Message) {
		mu.Lock()
		got = append(got, m)
		mu.Unlock()
	})
	return &mu, &got
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestSendOrderPreservedPerSender(t *testing.T) {
	sandbox, host := Pair(64, nil)
	defer sandbox.Close()
	defer host.Close()

	mu, got := collect(host)

	for i := 0; i < 20; i++ {
		require.NoError(t, sandbox.Send(&protocol.NavPageSwitch{PageName: string(rune('a' + i))}))
	}

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(*got) == 20
	})

	mu.Lock()
	defer mu.Unlock()
	for i, m := range *got {
		sw := m.(*protocol.NavPageSwitch)
		assert.Equal(t, string(rune('a'+i)), sw.PageName)
	}
}

func TestSerializationBoundary(t *testing.T) {
	sandbox, host := Pair(8, nil)
	defer sandbox.Close()
	defer host.Close()

	mu, got := collect(host)

	payload := map[string]any{"service": "haircut"}
	require.NoError(t, sandbox.Send(&protocol.IntentTrigger{Intent: "booking.create", Payload: payload}))

	// Mutating the sender's payload after Send must not leak across the
	// boundary: the envelope was serialized at the call site.
	payload["service"] = "tampered"

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(*got) == 1
	})

	mu.Lock()
	defer mu.Unlock()
	trigger := (*got)[0].(*protocol.IntentTrigger)
	assert.Equal(t, "haircut", trigger.Payload["service"])
}

func TestClosedEndpointRejectsSends(t *testing.T) {
	sandbox, host := Pair(8, nil)
	host.Close()

	err := sandbox.Send(&protocol.PreviewReady{})
	assert.ErrorIs(t, err, ErrClosed)

	sandbox.Close()
	err = sandbox.Send(&protocol.PreviewReady{})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestNoHandlerDropsSilently(t *testing.T) {
	sandbox, host := Pair(8, nil)
	defer sandbox.Close()
	defer host.Close()

	require.NoError(t, sandbox.Send(&protocol.PreviewReady{ErrorCount: 2}))

	// Give the dispatch goroutine time to dequeue and drop the frame
	// before a handler exists, then attach one; only later frames arrive.
	time.Sleep(50 * time.Millisecond)
	mu, got := collect(host)
	require.NoError(t, sandbox.Send(&protocol.NavPageSwitch{PageName: "about"}))

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(*got) >= 1
	})

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, *got, 1)
	assert.Equal(t, protocol.TypeNavPageSwitch, (*got)[0].Kind())
}

func TestBackpressure(t *testing.T) {
	sandbox, host := Pair(1, nil)
	defer sandbox.Close()
	defer host.Close()

	// Wedge the receiving side so the one-slot buffer fills.
	block := make(chan struct{})
	defer close(block)
	host.SetHandler(func(protocol.Message) { <-block })

	var sawBackpressure bool
	for i := 0; i < 100; i++ {
		if err := sandbox.Send(&protocol.PreviewReady{}); err == ErrBackpressure {
			sawBackpressure = true
			break
		}
		time.Sleep(time.Millisecond)
	}
	assert.True(t, sawBackpressure)
}
