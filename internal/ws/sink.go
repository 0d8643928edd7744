package ws

import (
	"time"

	"github.com/bytedance/sonic"

	"github.com/draftforge/preview/internal/host"
	"github.com/draftforge/preview/internal/protocol"
	"github.com/draftforge/preview/internal/shared/id"
)

func marshalEvent(ev Event) ([]byte, error) {
	return sonic.Marshal(ev)
}

// sink adapts one preview's events onto the shared hub.
type sink struct {
	hub     *Hub
	preview string
}

// SinkFor returns a host.UISink whose events carry the given preview ID.
func (h *Hub) SinkFor(previewID string) host.UISink {
	return &sink{hub: h, preview: previewID}
}

func (s *sink) emit(eventType string, data map[string]any) {
	s.hub.Broadcast(Event{
		Type:      eventType,
		PreviewID: s.preview,
		Timestamp: time.Now().Unix(),
		Data:      data,
	})
}

func (s *sink) Ready(errorCount int) {
	s.emit("preview_ready", map[string]any{"error_count": errorCount})
}

func (s *sink) ErrorCaptured(rec protocol.ErrorRecord) {
	s.emit("preview_error", map[string]any{
		"error_type": rec.Type,
		"message":    rec.Message,
		"source":     rec.Source,
		"line":       rec.Line,
		"col":        rec.Col,
	})
}

func (s *sink) PageSwitched(pageName, pagePath string) {
	s.emit("page_switch", map[string]any{
		"page_name": pageName,
		"page_path": pagePath,
	})
}

func (s *sink) OverlayOpened(token id.OverlayToken, overlay host.Overlay, intentName string, payload map[string]any) {
	s.emit("overlay_open", map[string]any{
		"token":   string(token),
		"overlay": overlay.Overlay,
		"title":   overlay.Title,
		"intent":  intentName,
		"payload": payload,
	})
}

func (s *sink) RedirectRequested(url string) {
	s.emit("redirect", map[string]any{"url": url})
}

func (s *sink) OverlayRequested(overlay, intentName string) {
	s.emit("overlay_request", map[string]any{
		"overlay": overlay,
		"intent":  intentName,
	})
}

func (s *sink) ResearchOpened(query, href string) {
	s.emit("research_open", map[string]any{
		"query": query,
		"href":  href,
	})
}

func (s *sink) ReloadRequested(reason string) {
	s.emit("reload", map[string]any{"reason": reason})
}
