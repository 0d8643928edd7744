package resilience

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errUpstream = errors.New("upstream failed")

func TestClosedPassesThrough(t *testing.T) {
	b := New("intent-backend", Options{})

	err := b.Do(func() error { return nil })
	require.NoError(t, err)
	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, uint32(1), b.Stats().Successes)
}

func TestTripsAfterConsecutiveFailures(t *testing.T) {
	b := New("intent-backend", Options{TripAfter: 3, Cooldown: time.Hour})

	for i := 0; i < 3; i++ {
		_ = b.Do(func() error { return errUpstream })
	}
	assert.Equal(t, StateOpen, b.State())

	err := b.Do(func() error { t.Fatal("must not run"); return nil })
	assert.ErrorIs(t, err, ErrOpen)
}

func TestSuccessResetsStreak(t *testing.T) {
	b := New("intent-backend", Options{TripAfter: 3})

	_ = b.Do(func() error { return errUpstream })
	_ = b.Do(func() error { return errUpstream })
	_ = b.Do(func() error { return nil })
	_ = b.Do(func() error { return errUpstream })
	_ = b.Do(func() error { return errUpstream })

	assert.Equal(t, StateClosed, b.State())
}

func TestHalfOpenProbeClosesOnSuccess(t *testing.T) {
	var transitions []State
	b := New("intent-backend", Options{
		TripAfter: 1,
		Cooldown:  10 * time.Millisecond,
		OnTransition: func(_ string, _, to State) {
			transitions = append(transitions, to)
		},
	})

	_ = b.Do(func() error { return errUpstream })
	require.Equal(t, StateOpen, b.State())

	time.Sleep(20 * time.Millisecond)
	require.Equal(t, StateHalfOpen, b.State())

	require.NoError(t, b.Do(func() error { return nil }))
	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, []State{StateOpen, StateHalfOpen, StateClosed}, transitions)
}

func TestHalfOpenProbeReopensOnFailure(t *testing.T) {
	b := New("intent-backend", Options{TripAfter: 1, Cooldown: 10 * time.Millisecond})

	_ = b.Do(func() error { return errUpstream })
	time.Sleep(20 * time.Millisecond)

	_ = b.Do(func() error { return errUpstream })
	assert.Equal(t, StateOpen, b.State())
}

func TestHalfOpenProbeBudget(t *testing.T) {
	b := New("intent-backend", Options{TripAfter: 1, Probes: 1, Cooldown: 10 * time.Millisecond})

	_ = b.Do(func() error { return errUpstream })
	time.Sleep(20 * time.Millisecond)

	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- b.Do(func() error { <-release; return nil })
	}()

	// Wait until the probe occupies the budget.
	require.Eventually(t, func() bool {
		return b.Stats().Calls == 1
	}, time.Second, time.Millisecond)

	err := b.Do(func() error { return nil })
	assert.ErrorIs(t, err, ErrProbeLimit)

	close(release)
	require.NoError(t, <-done)
}

func TestStateStrings(t *testing.T) {
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "half-open", StateHalfOpen.String())
	assert.Equal(t, "open", StateOpen.String())
}
