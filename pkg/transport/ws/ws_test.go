package ws

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jasonish/meerkat-desktop/pkg/core"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func startServer(t *testing.T, items ItemLister) (*Hub, *httptest.Server) {
	t.Helper()
	hub := NewHub(testLogger())
	srv := httptest.NewServer(NewRouter(hub, items))
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})
	return hub, srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/events"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestEmitReachesClient(t *testing.T) {
	hub, srv := startServer(t, nil)
	conn := dial(t, srv)

	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 10*time.Millisecond)
	require.NoError(t, hub.Emit(core.TopicOutput, core.OutputLine{Slot: "detection-engine", Type: core.ChannelStdout, Line: "hello"}))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var env struct {
		Topic string          `json:"topic"`
		Data  json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(data, &env))
	assert.Equal(t, core.TopicOutput, env.Topic)

	var line core.OutputLine
	require.NoError(t, json.Unmarshal(env.Data, &line))
	assert.Equal(t, "hello", line.Line)
	assert.Equal(t, core.Slot("detection-engine"), line.Slot)
}

func TestClientDisconnectIsRemoved(t *testing.T) {
	hub, srv := startServer(t, nil)
	conn := dial(t, srv)
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 10*time.Millisecond)

	conn.Close()
	require.Eventually(t, func() bool { return hub.Clients() == 0 }, 2*time.Second, 10*time.Millisecond)
	assert.NoError(t, hub.Emit(core.TopicTail, map[string]any{"a": 1}))
}

func TestEmitUnencodablePayload(t *testing.T) {
	hub := NewHub(testLogger())
	err := hub.Emit(core.TopicTail, make(chan int))
	assert.ErrorIs(t, err, core.ErrSinkUnavailable)
}

func TestHealthz(t *testing.T) {
	_, srv := startServer(t, nil)
	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	_, srv := startServer(t, nil)
	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "go_goroutines")
}

func TestItemsEndpoint(t *testing.T) {
	_, srv := startServer(t, func(context.Context) ([]core.Item, error) {
		return []core.Item{{ID: "slot:detection-engine", Name: "detection-engine", Status: core.StatusRunning}}, nil
	})
	resp, err := http.Get(srv.URL + "/api/items")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var items []core.Item
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&items))
	require.Len(t, items, 1)
	assert.Equal(t, "detection-engine", items[0].Name)
}

func TestItemsEndpointError(t *testing.T) {
	_, srv := startServer(t, func(context.Context) ([]core.Item, error) {
		return nil, errors.New("boom")
	})
	resp, err := http.Get(srv.URL + "/api/items")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestServeStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- Serve(ctx, "127.0.0.1:0", http.NotFoundHandler(), testLogger()) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return")
	}
}
