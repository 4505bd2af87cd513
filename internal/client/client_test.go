package client

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	ws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mimi6060/festivals-sub018/internal/realtime"
)

// recordingServer is a WebSocket endpoint that keeps every accepted
// connection and the envelopes received on it, so tests can assert what a
// client sent on each connection generation.
type recordingServer struct {
	t   *testing.T
	URL string

	mu       sync.Mutex
	autoPong bool
	conns    []*serverConn
}

type serverConn struct {
	ws *ws.Conn

	mu     sync.Mutex
	frames []realtime.Envelope
}

func newRecordingServer(t *testing.T) *recordingServer {
	t.Helper()
	s := &recordingServer{t: t, autoPong: true}

	upgrader := ws.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		sc := &serverConn{ws: conn}
		s.mu.Lock()
		s.conns = append(s.conns, sc)
		s.mu.Unlock()

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			envelopes, _ := realtime.ParseFrames(data)
			for _, env := range envelopes {
				sc.mu.Lock()
				sc.frames = append(sc.frames, env)
				sc.mu.Unlock()
				s.mu.Lock()
				pong := s.autoPong
				s.mu.Unlock()
				if env.Type == realtime.TypePing && pong {
					sc.send(s.t, realtime.TypePong, nil)
				}
			}
		}
	}))
	t.Cleanup(srv.Close)

	s.URL = "ws" + strings.TrimPrefix(srv.URL, "http")
	return s
}

func (s *recordingServer) connCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

func (s *recordingServer) conn(i int) *serverConn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conns[i]
}

func (s *recordingServer) setAutoPong(on bool) {
	s.mu.Lock()
	s.autoPong = on
	s.mu.Unlock()
}

// waitConn blocks until connection i has been accepted and returns it.
func (s *recordingServer) waitConn(t *testing.T, i int) *serverConn {
	t.Helper()
	waitFor(t, time.Second, func() bool { return s.connCount() > i })
	return s.conn(i)
}

func (sc *serverConn) send(t *testing.T, mt realtime.MessageType, payload any) {
	t.Helper()
	env, err := realtime.NewEnvelope(mt, "fest-1", payload, time.Now())
	require.NoError(t, err)
	data, err := env.Encode()
	require.NoError(t, err)
	require.NoError(t, sc.ws.WriteMessage(ws.TextMessage, data))
}

func (sc *serverConn) framesOfType(mt realtime.MessageType) []realtime.Envelope {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	var out []realtime.Envelope
	for _, env := range sc.frames {
		if env.Type == mt {
			out = append(out, env)
		}
	}
	return out
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v", timeout)
}

func newTestClient(t *testing.T, cfg Config) *Client {
	t.Helper()
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	if cfg.BaseReconnectDelay == 0 {
		cfg.BaseReconnectDelay = 10 * time.Millisecond
	}
	if cfg.MaxReconnectDelay == 0 {
		cfg.MaxReconnectDelay = 50 * time.Millisecond
	}
	c := New(cfg)
	c.jitter = func() time.Duration { return 0 }
	t.Cleanup(c.Close)
	return c
}

func TestClient_ConnectStateTransitions(t *testing.T) {
	srv := newRecordingServer(t)
	c := newTestClient(t, Config{URL: srv.URL})

	var mu sync.Mutex
	var states []ConnState
	c.OnConnectionChange(func(s ConnState) {
		mu.Lock()
		states = append(states, s)
		mu.Unlock()
	})

	require.NoError(t, c.Connect())

	waitFor(t, time.Second, func() bool { return c.State() == StateConnected })
	mu.Lock()
	defer mu.Unlock()
	// Observer is invoked immediately with the current state on registration.
	assert.Equal(t, []ConnState{StateDisconnected, StateConnecting, StateConnected}, states)
}

func TestClient_ConnectWhileConnectedIsNoOp(t *testing.T) {
	srv := newRecordingServer(t)
	c := newTestClient(t, Config{URL: srv.URL})

	require.NoError(t, c.Connect())
	require.NoError(t, c.Connect())

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, srv.connCount())
}

func TestClient_ConnectAfterCloseFails(t *testing.T) {
	c := newTestClient(t, Config{URL: "ws://127.0.0.1:1"})
	c.Close()
	assert.ErrorIs(t, c.Connect(), ErrClosed)
}

func TestClient_DialFailureExhaustsAttempts(t *testing.T) {
	// Nothing listens on this address.
	c := newTestClient(t, Config{
		URL:                  "ws://127.0.0.1:1",
		MaxReconnectAttempts: 2,
	})

	var mu sync.Mutex
	var states []ConnState
	c.OnConnectionChange(func(s ConnState) {
		mu.Lock()
		states = append(states, s)
		mu.Unlock()
	})

	require.Error(t, c.Connect())

	// Two scheduled retries, then the client settles in disconnected and
	// stays there until a manual Reconnect.
	waitFor(t, 2*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(states) > 0 && states[len(states)-1] == StateDisconnected
	})

	mu.Lock()
	reconnecting := 0
	for _, s := range states {
		if s == StateReconnecting {
			reconnecting++
		}
	}
	mu.Unlock()
	assert.Equal(t, 2, reconnecting)

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, StateDisconnected, c.State())
}

func TestClient_ResubscribesAfterEveryReconnect(t *testing.T) {
	srv := newRecordingServer(t)
	c := newTestClient(t, Config{URL: srv.URL})

	c.SubscribeChannel("dashboard")
	c.SubscribeChannel("alerts")
	c.SubscribeChannel("dashboard") // duplicate is absorbed by the set

	require.NoError(t, c.Connect())
	waitFor(t, time.Second, func() bool { return srv.connCount() == 1 })
	assertSubscribed(t, srv.conn(0), "alerts", "dashboard")

	// Abnormal close; the client reconnects and replays the set.
	srv.conn(0).ws.Close()
	waitFor(t, 2*time.Second, func() bool { return srv.connCount() == 2 })
	waitFor(t, time.Second, func() bool { return c.State() == StateConnected })
	assertSubscribed(t, srv.conn(1), "alerts", "dashboard")

	// A second cycle with no new subscriptions sends the same two frames.
	srv.conn(1).ws.Close()
	waitFor(t, 2*time.Second, func() bool { return srv.connCount() == 3 })
	waitFor(t, time.Second, func() bool { return c.State() == StateConnected })
	assertSubscribed(t, srv.conn(2), "alerts", "dashboard")
}

// assertSubscribed checks that exactly the given channels were subscribed on
// this connection, in order, with no duplicates.
func assertSubscribed(t *testing.T, sc *serverConn, channels ...string) {
	t.Helper()
	waitFor(t, time.Second, func() bool {
		return len(sc.framesOfType(realtime.TypeSubscribe)) >= len(channels)
	})
	time.Sleep(50 * time.Millisecond)

	frames := sc.framesOfType(realtime.TypeSubscribe)
	require.Len(t, frames, len(channels))
	for i, env := range frames {
		payload, err := realtime.DecodePayload(env)
		require.NoError(t, err)
		assert.Equal(t, realtime.SubscribePayload{Channel: channels[i]}, payload)
	}
}

func TestClient_PendingMessagesFlushedInOrder(t *testing.T) {
	srv := newRecordingServer(t)
	c := newTestClient(t, Config{URL: srv.URL})

	// Queued while disconnected.
	for _, id := range []string{"tx-1", "tx-2", "tx-3"} {
		require.NoError(t, c.Send(realtime.TypeTransaction, realtime.TransactionPayload{TransactionID: id, Amount: 1, Currency: "EUR", Status: "completed"}))
	}

	require.NoError(t, c.Connect())
	sc := srv.waitConn(t, 0)
	waitFor(t, time.Second, func() bool {
		return len(sc.framesOfType(realtime.TypeTransaction)) == 3
	})

	var ids []string
	for _, env := range sc.framesOfType(realtime.TypeTransaction) {
		payload, err := realtime.DecodePayload(env)
		require.NoError(t, err)
		ids = append(ids, payload.(realtime.TransactionPayload).TransactionID)
	}
	assert.Equal(t, []string{"tx-1", "tx-2", "tx-3"}, ids)
}

func TestClient_SendWhileConnected(t *testing.T) {
	srv := newRecordingServer(t)
	c := newTestClient(t, Config{URL: srv.URL})

	require.NoError(t, c.Connect())
	require.NoError(t, c.Send(realtime.TypeUserActivity, realtime.UserActivityPayload{UserID: "u-1", Action: "login"}))

	sc := srv.waitConn(t, 0)
	waitFor(t, time.Second, func() bool {
		return len(sc.framesOfType(realtime.TypeUserActivity)) == 1
	})
}

func TestClient_DisconnectDropsPending(t *testing.T) {
	srv := newRecordingServer(t)
	c := newTestClient(t, Config{URL: srv.URL})

	require.NoError(t, c.Send(realtime.TypeUserActivity, realtime.UserActivityPayload{UserID: "u-1", Action: "login"}))
	c.Disconnect()

	require.NoError(t, c.Connect())
	time.Sleep(100 * time.Millisecond)
	assert.Empty(t, srv.waitConn(t, 0).framesOfType(realtime.TypeUserActivity))
}

func TestClient_AnswersServerPing(t *testing.T) {
	srv := newRecordingServer(t)
	c := newTestClient(t, Config{URL: srv.URL})

	require.NoError(t, c.Connect())
	sc := srv.waitConn(t, 0)
	sc.send(t, realtime.TypePing, nil)

	waitFor(t, time.Second, func() bool {
		return len(sc.framesOfType(realtime.TypePong)) == 1
	})
}

func TestClient_HeartbeatForcesReconnect(t *testing.T) {
	srv := newRecordingServer(t)
	srv.setAutoPong(false)

	c := newTestClient(t, Config{
		URL:          srv.URL,
		PingInterval: 50 * time.Millisecond,
	})

	require.NoError(t, c.Connect())
	waitFor(t, time.Second, func() bool { return srv.connCount() == 1 })

	// No pong ever arrives: once twice the ping interval elapses, the client
	// must tear the socket down and dial again on its own.
	waitFor(t, 2*time.Second, func() bool { return srv.connCount() >= 2 })
	waitFor(t, time.Second, func() bool { return c.State() == StateConnected })
}

func TestClient_MessageDispatch(t *testing.T) {
	srv := newRecordingServer(t)
	c := newTestClient(t, Config{URL: srv.URL})

	var mu sync.Mutex
	typed := 0
	wild := 0
	removeTyped := c.OnMessage(realtime.TypeStats, func(env realtime.Envelope) {
		mu.Lock()
		typed++
		mu.Unlock()
	})
	c.OnMessage(Wildcard, func(env realtime.Envelope) {
		if env.Type != realtime.TypeStats {
			return
		}
		mu.Lock()
		wild++
		mu.Unlock()
	})

	require.NoError(t, c.Connect())
	sc := srv.waitConn(t, 0)

	sc.send(t, realtime.TypeStats, realtime.StatsPayload{Attendance: 12})
	waitFor(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return typed == 1 && wild == 1
	})

	removeTyped()
	sc.send(t, realtime.TypeStats, realtime.StatsPayload{Attendance: 13})
	waitFor(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return wild == 2
	})
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, typed, "removed handler must not fire again")
}

func TestClient_DisconnectDuringDialWins(t *testing.T) {
	entered := make(chan struct{}, 1)
	release := make(chan struct{})
	upgrader := ws.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case entered <- struct{}{}:
		default:
		}
		<-release
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)

	c := newTestClient(t, Config{URL: "ws" + strings.TrimPrefix(srv.URL, "http")})

	done := make(chan error, 1)
	go func() { done <- c.Connect() }()

	// Disconnect while the handshake is still held open by the server.
	<-entered
	c.Disconnect()
	close(release)
	<-done

	// The late handshake must not resurrect the connection.
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, StateDisconnected, c.State())
}

func TestClient_FlushFailureRequeuesFront(t *testing.T) {
	srv := newRecordingServer(t)
	c := newTestClient(t, Config{URL: srv.URL})

	for _, id := range []string{"tx-1", "tx-2", "tx-3"} {
		require.NoError(t, c.Send(realtime.TypeTransaction, realtime.TransactionPayload{TransactionID: id, Amount: 1, Currency: "EUR", Status: "completed"}))
	}

	// A socket that is already dead when the flush starts: the first write
	// fails, the message goes back to the front, and the flush stops for
	// this cycle with nothing lost.
	dead, _, err := ws.DefaultDialer.Dial(srv.URL, nil)
	require.NoError(t, err)
	dead.Close()

	c.mu.Lock()
	c.conn = dead
	c.state = StateConnected
	c.mu.Unlock()

	c.flushPending(dead)

	c.mu.Lock()
	assert.Len(t, c.pending, 3)
	c.conn = nil
	c.state = StateDisconnected
	c.mu.Unlock()

	// The next successful connect delivers the whole queue in order.
	require.NoError(t, c.Connect())
	sc := srv.waitConn(t, 1)
	waitFor(t, time.Second, func() bool {
		return len(sc.framesOfType(realtime.TypeTransaction)) == 3
	})

	var ids []string
	for _, env := range sc.framesOfType(realtime.TypeTransaction) {
		payload, err := realtime.DecodePayload(env)
		require.NoError(t, err)
		ids = append(ids, payload.(realtime.TransactionPayload).TransactionID)
	}
	assert.Equal(t, []string{"tx-1", "tx-2", "tx-3"}, ids)
}

func TestClient_ReconnectIsManualRetryPath(t *testing.T) {
	srv := newRecordingServer(t)
	c := newTestClient(t, Config{URL: srv.URL})

	require.NoError(t, c.Connect())
	waitFor(t, time.Second, func() bool { return srv.connCount() == 1 })

	require.NoError(t, c.Reconnect())
	waitFor(t, time.Second, func() bool { return srv.connCount() == 2 })
	assert.Equal(t, StateConnected, c.State())
}
