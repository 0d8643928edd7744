package intentexec

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bytedance/sonic"

	"github.com/draftforge/preview/internal/infrastructure/resilience"
)

func TestExecutePostsIntent(t *testing.T) {
	var gotBody executeRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/intents/execute", r.URL.Path)
		require.NoError(t, sonic.ConfigDefault.NewDecoder(r.Body).Decode(&gotBody))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"toast":"Message sent","data":{"ticket":"T-42"}}`))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, Timeout: time.Second})
	res, err := c.Execute(context.Background(), "contact.submit", map[string]any{"email": "a@b.c"})
	require.NoError(t, err)

	assert.Equal(t, "contact.submit", gotBody.Intent)
	assert.Equal(t, "a@b.c", gotBody.Payload["email"])
	assert.Equal(t, "Message sent", res.Toast)
	assert.Equal(t, "T-42", res.Data["ticket"])
}

func TestServerErrorSurfaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, Timeout: time.Second})
	_, err := c.Execute(context.Background(), "contact.submit", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
}

func TestBreakerShedsAfterRepeatedFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, Timeout: time.Second})
	for i := 0; i < 5; i++ {
		_, err := c.Execute(context.Background(), "x.y", nil)
		require.Error(t, err)
	}
	require.Equal(t, resilience.StateOpen, c.Breaker().State())

	before := calls.Load()
	_, err := c.Execute(context.Background(), "x.y", nil)
	assert.ErrorIs(t, err, resilience.ErrOpen)
	assert.Equal(t, before, calls.Load())
}

func TestResultToMap(t *testing.T) {
	r := &Result{Toast: "Done", OpenOverlay: "booking"}
	m := r.ToMap()
	assert.Equal(t, "Done", m["toast"])
	assert.Equal(t, "booking", m["openOverlay"])
	_, hasRedirect := m["redirectUrl"]
	assert.False(t, hasRedirect)
}
