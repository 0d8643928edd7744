package ws

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/draftforge/preview/internal/logging"
	"github.com/draftforge/preview/internal/protocol"
)

func newTestHub(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	hub := NewHub(logging.NewNop(), nil)
	router := gin.New()
	router.GET("/stream", hub.HandleConnection)
	srv := httptest.NewServer(router)

	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})
	return hub, srv
}

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/stream" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) Event {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)

	var ev Event
	require.NoError(t, sonic.Unmarshal(payload, &ev))
	return ev
}

// waitFor skips frames until one of the wanted type arrives.
func waitFor(t *testing.T, conn *websocket.Conn, eventType string) Event {
	t.Helper()
	for i := 0; i < 10; i++ {
		ev := readEvent(t, conn)
		if ev.Type == eventType {
			return ev
		}
	}
	t.Fatalf("no %q event arrived", eventType)
	return Event{}
}

func TestWelcomeFrameFirst(t *testing.T) {
	_, srv := newTestHub(t)
	conn := dial(t, srv, "")

	ev := readEvent(t, conn)
	assert.Equal(t, "system", ev.Type)
	assert.Empty(t, ev.PreviewID)
	assert.NotEmpty(t, ev.Data["client_id"])
}

func TestSinkEventsReachClient(t *testing.T) {
	hub, srv := newTestHub(t)
	conn := dial(t, srv, "")
	readEvent(t, conn) // welcome

	sink := hub.SinkFor("pv_01TEST")
	// registration races the broadcast only if we fire immediately
	time.Sleep(50 * time.Millisecond)
	sink.Ready(2)
	sink.PageSwitched("about", "/about.html")
	sink.ErrorCaptured(protocol.ErrorRecord{Type: "error", Message: "boom", Line: 3})

	ev := waitFor(t, conn, "preview_ready")
	assert.Equal(t, "pv_01TEST", ev.PreviewID)
	assert.EqualValues(t, 2, ev.Data["error_count"])

	ev = waitFor(t, conn, "page_switch")
	assert.Equal(t, "about", ev.Data["page_name"])
	assert.Equal(t, "/about.html", ev.Data["page_path"])

	ev = waitFor(t, conn, "preview_error")
	assert.Equal(t, "boom", ev.Data["message"])
	assert.EqualValues(t, 3, ev.Data["line"])
}

func TestPreviewFilter(t *testing.T) {
	hub, srv := newTestHub(t)
	conn := dial(t, srv, "?preview=pv_A")
	readEvent(t, conn) // welcome
	time.Sleep(50 * time.Millisecond)

	hub.SinkFor("pv_B").Ready(0)
	hub.SinkFor("pv_A").PageSwitched("pricing", "/pricing.html")

	// the pv_B ready must never arrive; the pv_A switch must
	ev := readEvent(t, conn)
	assert.Equal(t, "page_switch", ev.Type)
	assert.Equal(t, "pv_A", ev.PreviewID)
}

func TestInboundPingAnswered(t *testing.T) {
	_, srv := newTestHub(t)
	conn := dial(t, srv, "")
	other := dial(t, srv, "")
	readEvent(t, conn)  // welcome
	readEvent(t, other) // welcome
	time.Sleep(50 * time.Millisecond)

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "ping"}))
	ev := waitFor(t, conn, "pong")
	assert.Equal(t, "pong", ev.Type)

	// The pong goes only to the asking client.
	other.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	_, _, err := other.ReadMessage()
	require.Error(t, err)
}

func TestResearchAndReloadEvents(t *testing.T) {
	hub, srv := newTestHub(t)
	conn := dial(t, srv, "")
	readEvent(t, conn) // welcome
	time.Sleep(50 * time.Millisecond)

	sink := hub.SinkFor("pv_X")
	sink.ResearchOpened("compare pricing tiers", "https://example.com/pricing-guide")
	sink.ReloadRequested("in-place replacement failed")

	ev := waitFor(t, conn, "research_open")
	assert.Equal(t, "compare pricing tiers", ev.Data["query"])

	ev = waitFor(t, conn, "reload")
	assert.Equal(t, "in-place replacement failed", ev.Data["reason"])
}
