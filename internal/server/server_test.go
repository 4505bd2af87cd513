package server

import (
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	ws "github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/mimi6060/festivals-sub018/internal/config"
	"github.com/mimi6060/festivals-sub018/internal/realtime"
)

func testConfig() *config.Config {
	return &config.Config{
		AppEnv:              "test",
		Port:                "0",
		LogLevel:            "error",
		LogFormat:           "text",
		MaxConnections:      100,
		MaxConnectionsPerIP: 100,
		ConnectionRate:      1000,
		ConnectionBurst:     1000,
		BroadcastRate:       1000,
		BroadcastBurst:      1000,
	}
}

// newTestServer boots the full HTTP surface against a live hub and returns
// both, with teardown registered on the test.
func newTestServer(t *testing.T, cfg *config.Config) (*realtime.Hub, *httptest.Server) {
	t.Helper()

	hub := realtime.NewHub(clockwork.NewRealClock(), slog.New(slog.DiscardHandler))
	t.Cleanup(hub.Stop)

	srv := NewServer(cfg, hub, clockwork.NewRealClock())
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return hub, ts
}

func dialWS(t *testing.T, ts *httptest.Server, path string) *ws.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + path
	conn, _, err := ws.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitActive(hub *realtime.Hub, expected int) bool {
	for range 200 {
		if hub.Stats().ActiveConnections == expected {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return false
}

func readEnvelope(t *testing.T, conn *ws.Conn) realtime.Envelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	envelopes, errs := realtime.ParseFrames(data)
	require.Empty(t, errs)
	require.Len(t, envelopes, 1)
	return envelopes[0]
}
