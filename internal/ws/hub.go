package ws

import (
	"time"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"

	"github.com/draftforge/preview/internal/infrastructure/monitoring"
	"github.com/draftforge/preview/internal/logging"
)

// Event is one entry on the directive stream. PreviewID is empty for
// hub-level events (welcome, shutdown).
type Event struct {
	Type      string         `json:"type"`
	PreviewID string         `json:"preview_id,omitempty"`
	Timestamp int64          `json:"timestamp"`
	Data      map[string]any `json:"data,omitempty"`
}

// Hub fans preview events out to connected WebSocket clients.
type Hub struct {
	logger  *logging.Logger
	metrics *monitoring.Metrics

	register   chan *client
	unregister chan *client
	broadcast  chan Event
	done       chan struct{}

	// owned by run()
	clients map[*client]struct{}
}

// NewHub creates a hub and starts its dispatch loop. Metrics may be nil.
func NewHub(logger *logging.Logger, metrics *monitoring.Metrics) *Hub {
	if logger == nil {
		logger = logging.NewNop()
	}
	h := &Hub{
		logger:     logger.Component("ws"),
		metrics:    metrics,
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan Event, 256),
		done:       make(chan struct{}),
		clients:    make(map[*client]struct{}),
	}
	go h.run()
	return h
}

// Broadcast queues an event for delivery. Never blocks: when the hub is
// saturated the event is dropped and counted.
func (h *Hub) Broadcast(ev Event) {
	if ev.Timestamp == 0 {
		ev.Timestamp = time.Now().Unix()
	}
	select {
	case h.broadcast <- ev:
		if h.metrics != nil {
			h.metrics.RecordWSEvent(ev.Type)
		}
	case <-h.done:
	default:
		h.logger.Warn("event stream saturated, dropping event",
			zap.String("type", ev.Type), zap.String("preview", ev.PreviewID))
	}
}

// Close disconnects all clients and stops the dispatch loop.
func (h *Hub) Close() {
	close(h.done)
}

func (h *Hub) run() {
	for {
		select {
		case c := <-h.register:
			h.clients[c] = struct{}{}
			if h.metrics != nil {
				h.metrics.IncWSConnections()
			}
		case c := <-h.unregister:
			h.drop(c)
		case ev := <-h.broadcast:
			payload, err := sonic.Marshal(ev)
			if err != nil {
				h.logger.Error("event marshal failed", zap.Error(err))
				continue
			}
			for c := range h.clients {
				if !c.wants(ev) {
					continue
				}
				select {
				case c.send <- payload:
				default:
					// Slow consumer. Cut it loose instead of
					// blocking every other client.
					h.logger.Warn("disconnecting slow client")
					h.drop(c)
				}
			}
		case <-h.done:
			for c := range h.clients {
				h.drop(c)
			}
			return
		}
	}
}

func (h *Hub) drop(c *client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	// Signal the pumps via done instead of closing send: the client's
	// read loop may still be queueing a pong onto send.
	delete(h.clients, c)
	close(c.done)
	if h.metrics != nil {
		h.metrics.DecWSConnections()
	}
}
