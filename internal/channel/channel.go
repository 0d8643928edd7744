// Package channel implements the asynchronous message channel between the
// sandbox and the host controller.
//
// The two sides are separate execution contexts with no shared memory: an
// endpoint serializes every envelope on send and its peer deserializes on
// receipt, so nothing but flat data crosses the boundary. Messages from one
// sender preserve send order on arrival; messages from different senders may
// interleave. Nothing blocks: delivery happens on a dedicated dispatch
// goroutine per endpoint.
package channel

import (
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/draftforge/preview/internal/logging"
	"github.com/draftforge/preview/internal/protocol"
)

var (
	ErrClosed       = errors.New("channel endpoint is closed")
	ErrBackpressure = errors.New("channel buffer full, message dropped")
)

// Handler consumes inbound messages. It must not panic; a decode failure
// never reaches it (the endpoint fails closed and drops the frame).
type Handler func(protocol.Message)

// Endpoint is one side of a duplex channel.
type Endpoint struct {
	name  string
	inbox chan []byte
	peer  *Endpoint

	mu      sync.RWMutex
	handler Handler

	closed    chan struct{}
	closeOnce sync.Once

	logger *logging.Logger
}

// Pair creates a connected sandbox/host endpoint pair. The buffer bounds
// how many undelivered frames one side may accumulate before sends fail.
func Pair(buffer int, logger *logging.Logger) (sandboxSide, hostSide *Endpoint) {
	if buffer <= 0 {
		buffer = 256
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	a := newEndpoint("sandbox", buffer, logger)
	b := newEndpoint("host", buffer, logger)
	a.peer = b
	b.peer = a

	go a.dispatch()
	go b.dispatch()
	return a, b
}

func newEndpoint(name string, buffer int, logger *logging.Logger) *Endpoint {
	return &Endpoint{
		name:   name,
		inbox:  make(chan []byte, buffer),
		closed: make(chan struct{}),
		logger: logger.Component("channel." + name),
	}
}

// Send serializes a message and posts it to the peer. It never blocks: a
// full peer buffer is a send failure, mirroring a torn-down or wedged
// receiving context.
func (e *Endpoint) Send(m protocol.Message) error {
	data, err := protocol.Encode(m)
	if err != nil {
		return err
	}

	select {
	case <-e.closed:
		return ErrClosed
	default:
	}

	peer := e.peer
	select {
	case <-peer.closed:
		return ErrClosed
	case peer.inbox <- data:
		return nil
	default:
		e.logger.Warn("dropping message on full buffer", zap.String("type", string(m.Kind())))
		return ErrBackpressure
	}
}

// SetHandler installs the inbound message handler, replacing any previous
// one. Messages arriving while no handler is installed are dropped; state
// that must survive that window (early errors) is recoverable through the
// protocol's pull APIs instead.
func (e *Endpoint) SetHandler(h Handler) {
	e.mu.Lock()
	e.handler = h
	e.mu.Unlock()
}

// Close tears the endpoint down. The dispatch goroutine exits and further
// sends from either side fail. Safe to call more than once.
func (e *Endpoint) Close() {
	e.closeOnce.Do(func() {
		close(e.closed)
	})
}

func (e *Endpoint) dispatch() {
	for {
		select {
		case <-e.closed:
			return
		case data := <-e.inbox:
			m, err := protocol.Decode(data)
			if err != nil {
				// Fail closed: a throw inside a message handler would
				// deregister the listener, so undecodable frames are
				// logged and ignored.
				e.logger.Warn("ignoring undecodable frame", zap.Error(err))
				continue
			}

			e.mu.RLock()
			h := e.handler
			e.mu.RUnlock()
			if h == nil {
				continue
			}
			h(m)
		}
	}
}
