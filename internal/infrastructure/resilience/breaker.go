// Package resilience protects the preview's outbound dependencies.
// Intent execution talks to a generation backend that can brown out;
// the breaker sheds calls fast instead of stacking timeouts behind a
// struggling upstream.
package resilience

import (
	"errors"
	"sync"
	"time"
)

var (
	// ErrOpen is returned while the breaker refuses calls outright.
	ErrOpen = errors.New("breaker open, call refused")
	// ErrProbeLimit is returned when the half-open probe budget is spent.
	ErrProbeLimit = errors.New("breaker half-open, probe limit reached")
)

// State is the breaker's admission mode.
type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// Stats tracks call outcomes within the current window or probe phase.
type Stats struct {
	Calls        uint32
	Successes    uint32
	Failures     uint32
	StreakOK     uint32
	StreakFailed uint32
}

// Options tunes the breaker. Zero values get sensible defaults.
type Options struct {
	// TripAfter is the consecutive-failure count that opens the breaker.
	TripAfter uint32
	// Probes bounds concurrent calls admitted while half-open.
	Probes uint32
	// Cooldown is how long the breaker stays open before probing.
	Cooldown time.Duration
	// Window is the closed-state period after which counters reset.
	Window time.Duration
	// OnTransition observes state changes, e.g. for logging or metrics.
	OnTransition func(name string, from, to State)
}

// Breaker is a circuit breaker guarding one named upstream.
type Breaker struct {
	name string
	opts Options

	mu     sync.Mutex
	state  State
	stats  Stats
	expiry time.Time
}

// New builds a breaker for the named upstream.
func New(name string, opts Options) *Breaker {
	if opts.TripAfter == 0 {
		opts.TripAfter = 5
	}
	if opts.Probes == 0 {
		opts.Probes = 1
	}
	if opts.Cooldown == 0 {
		opts.Cooldown = 30 * time.Second
	}
	if opts.Window == 0 {
		opts.Window = time.Minute
	}
	return &Breaker{
		name:   name,
		opts:   opts,
		state:  StateClosed,
		expiry: time.Now().Add(opts.Window),
	}
}

// Name returns the upstream this breaker guards.
func (b *Breaker) Name() string { return b.name }

// State reports the current admission mode.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	state, _ := b.tick(time.Now())
	return state
}

// Stats returns a copy of the current counters.
func (b *Breaker) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stats
}

// Do runs fn under the breaker's admission control. The error from fn
// is passed through; admission refusals return ErrOpen or ErrProbeLimit.
func (b *Breaker) Do(fn func() error) error {
	gen, err := b.admit()
	if err != nil {
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			b.settle(gen, false)
			panic(r)
		}
	}()

	callErr := fn()
	b.settle(gen, callErr == nil)
	return callErr
}

func (b *Breaker) admit() (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	state, gen := b.tick(now)

	switch {
	case state == StateOpen:
		return gen, ErrOpen
	case state == StateHalfOpen && b.stats.Calls >= b.opts.Probes:
		return gen, ErrProbeLimit
	}

	b.stats.Calls++
	return gen, nil
}

// settle records an outcome, discarding it if the breaker moved to a
// new generation while the call was in flight.
func (b *Breaker) settle(gen uint64, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	state, current := b.tick(now)
	if current != gen {
		return
	}

	if ok {
		b.stats.Successes++
		b.stats.StreakOK++
		b.stats.StreakFailed = 0
		if state == StateHalfOpen && b.stats.StreakOK >= b.opts.Probes {
			b.transition(StateClosed, now)
		}
		return
	}

	b.stats.Failures++
	b.stats.StreakFailed++
	b.stats.StreakOK = 0
	switch state {
	case StateClosed:
		if b.stats.StreakFailed >= b.opts.TripAfter {
			b.transition(StateOpen, now)
		}
	case StateHalfOpen:
		// A failed probe reopens immediately.
		b.transition(StateOpen, now)
	}
}

// tick advances time-driven transitions and returns the effective
// state plus a generation token for in-flight call attribution.
func (b *Breaker) tick(now time.Time) (State, uint64) {
	switch b.state {
	case StateClosed:
		if !b.expiry.IsZero() && b.expiry.Before(now) {
			b.stats = Stats{}
			b.expiry = now.Add(b.opts.Window)
		}
	case StateOpen:
		if b.expiry.Before(now) {
			b.transition(StateHalfOpen, now)
		}
	}
	return b.state, uint64(b.expiry.UnixNano())
}

func (b *Breaker) transition(next State, now time.Time) {
	if b.state == next {
		return
	}
	prev := b.state
	b.state = next
	b.stats = Stats{}

	switch next {
	case StateClosed:
		b.expiry = now.Add(b.opts.Window)
	case StateOpen:
		b.expiry = now.Add(b.opts.Cooldown)
	case StateHalfOpen:
		b.expiry = time.Time{}
	}

	if b.opts.OnTransition != nil {
		b.opts.OnTransition(b.name, prev, next)
	}
}
