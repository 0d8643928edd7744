// Package nav serializes page navigation inside the preview sandbox.
//
// Internal targets resolve cache-then-generate: a cache hit replaces the
// document immediately with no cross-boundary traffic; a miss produces a
// correlated generation request. At most one generation request is in
// flight per sandbox instance; the rest wait in a FIFO queue so pages
// resolve in the order they were requested even though generation is
// asynchronous.
package nav

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/draftforge/preview/internal/logging"
	"github.com/draftforge/preview/internal/protocol"
	"github.com/draftforge/preview/internal/shared/id"
)

// State names the lifecycle of one navigation request.
type State string

const (
	StateQueued   State = "queued"
	StateInFlight State = "in-flight"
	StateResolved State = "resolved"
	StateErrored  State = "errored"
	StateTimedOut State = "timed-out"
)

// Request is one tracked navigation.
type Request struct {
	RequestID string
	PageName  string
	NavLabel  string
	Target    string
	State     State
}

// UI is the sandbox surface the machine drives while navigating.
type UI interface {
	SetLoading(bool)
	Notice(string)
}

// Sender posts a message to the host.
type Sender func(protocol.Message) error

// Swapper replaces the current document content.
type Swapper func(content string) error

type queuedNav struct {
	target string
	label  string
}

// Machine owns the page cache, the single in-flight slot, and the FIFO
// wait queue. All of that state is private to one sandbox instance.
type Machine struct {
	cache   *Cache
	timeout time.Duration
	send    Sender
	swap    Swapper
	ui      UI
	newID   func() string
	logger  *logging.Logger

	mu       sync.Mutex
	inflight *Request
	timer    *time.Timer
	queue    []queuedNav
}

// Options configures a Machine.
type Options struct {
	Timeout time.Duration
	Send    Sender
	Swap    Swapper
	UI      UI
	// NewID overrides correlation ID generation. Tests use this.
	NewID  func() string
	Logger *logging.Logger
}

// NewMachine creates a navigation machine with an empty cache.
func NewMachine(opts Options) *Machine {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.NewID == nil {
		opts.NewID = func() string { return id.NewRequestID().String() }
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNop()
	}
	return &Machine{
		cache:   NewCache(),
		timeout: opts.Timeout,
		send:    opts.Send,
		swap:    opts.Swap,
		ui:      opts.UI,
		newID:   opts.NewID,
		logger:  opts.Logger.Component("nav"),
	}
}

// Cache exposes the page cache for manifest pre-warming.
func (m *Machine) Cache() *Cache {
	return m.cache
}

// Navigate resolves an internal target: instantly from cache, or through
// a serialized generation round trip.
func (m *Machine) Navigate(target, label string) {
	if content, ok := m.cache.Lookup(target); ok {
		m.applyPage(target, content)
		return
	}

	m.mu.Lock()
	if m.inflight != nil {
		m.queue = append(m.queue, queuedNav{target: target, label: label})
		m.mu.Unlock()
		return
	}
	req := m.startLocked(target, label)
	m.mu.Unlock()

	m.dispatch(req)
}

// startLocked marks a request in-flight and arms its timeout.
func (m *Machine) startLocked(target, label string) *Request {
	pageName := NormalizePageName(target)
	if label == "" {
		label = pageName
	}
	req := &Request{
		RequestID: m.newID(),
		PageName:  pageName,
		NavLabel:  label,
		Target:    target,
		State:     StateInFlight,
	}
	m.inflight = req
	m.timer = time.AfterFunc(m.timeout, func() { m.onTimeout(req.RequestID) })
	return req
}

func (m *Machine) dispatch(req *Request) {
	m.ui.SetLoading(true)
	err := m.send(&protocol.NavPageGenerate{
		RequestID: req.RequestID,
		PageName:  req.PageName,
		NavLabel:  req.NavLabel,
	})
	if err != nil {
		m.logger.Warn("generation request failed to send", zap.Error(err))
		m.HandleError(req.RequestID, err.Error())
	}
}

// HandleReady completes the in-flight request when the correlation ID
// matches. Responses with a stale or foreign ID are ignored without
// touching any state.
func (m *Machine) HandleReady(requestID, content string) {
	req, ok := m.finish(requestID, StateResolved)
	if !ok {
		return
	}

	m.cache.Put(req.Target, content)
	m.ui.SetLoading(false)
	if err := m.swap(content); err != nil {
		m.logger.Warn("page swap failed", zap.String("page", req.PageName), zap.Error(err))
		m.ui.Notice("Could not display the generated page")
	} else {
		m.notifySwitch(req.PageName, req.Target)
	}
	m.drain()
}

// HandleError fails the in-flight request when the correlation ID matches.
func (m *Machine) HandleError(requestID, message string) {
	req, ok := m.finish(requestID, StateErrored)
	if !ok {
		return
	}

	m.logger.Warn("page generation failed",
		zap.String("page", req.PageName), zap.String("error", message))
	m.ui.SetLoading(false)
	m.ui.Notice("Page generation failed")
	m.drain()
}

// onTimeout fires at most once per request; identical recovery to an
// explicit failure, logged as a timeout instead.
func (m *Machine) onTimeout(requestID string) {
	req, ok := m.finish(requestID, StateTimedOut)
	if !ok {
		return
	}

	m.logger.Warn("page generation timed out", zap.String("page", req.PageName))
	m.ui.SetLoading(false)
	m.ui.Notice("Page generation timed out")
	m.drain()
}

// finish clears the in-flight slot for a matching correlation ID.
func (m *Machine) finish(requestID string, state State) (*Request, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.inflight == nil || m.inflight.RequestID != requestID {
		return nil, false
	}
	req := m.inflight
	req.State = state
	m.inflight = nil
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	return req, true
}

// drain processes queued navigations until one goes in flight or the
// queue empties. Queued targets may have been cached in the meantime; a
// hit resolves immediately and draining continues.
func (m *Machine) drain() {
	for {
		m.mu.Lock()
		if m.inflight != nil || len(m.queue) == 0 {
			m.mu.Unlock()
			return
		}
		next := m.queue[0]
		m.queue = m.queue[1:]

		if content, ok := m.cache.Lookup(next.target); ok {
			m.mu.Unlock()
			m.applyPage(next.target, content)
			continue
		}
		req := m.startLocked(next.target, next.label)
		m.mu.Unlock()

		m.dispatch(req)
		return
	}
}

// applyPage swaps in cached content. No generation message is produced.
func (m *Machine) applyPage(target, content string) {
	if err := m.swap(content); err != nil {
		m.logger.Warn("cached page swap failed", zap.String("target", target), zap.Error(err))
		m.ui.Notice("Could not display the page")
		return
	}
	m.notifySwitch(NormalizePageName(target), target)
}

func (m *Machine) notifySwitch(pageName, pagePath string) {
	// Informational only; a send failure does not affect navigation.
	_ = m.send(&protocol.NavPageSwitch{PageName: pageName, PagePath: pagePath})
}

// Inflight returns a copy of the in-flight request, if any. Tests use
// this to observe machine state.
func (m *Machine) Inflight() (Request, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.inflight == nil {
		return Request{}, false
	}
	return *m.inflight, true
}

// QueueLen reports how many navigations are waiting.
func (m *Machine) QueueLen() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}
