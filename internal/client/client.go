package client

import (
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"github.com/mimi6060/festivals-sub018/internal/realtime"
)

// ErrClosed is returned by Connect after the client has been destroyed.
var ErrClosed = errors.New("client closed")

var errStaleConnection = errors.New("no pong received within heartbeat window")

// Config holds the tunables for a resilient client. Zero values fall back to
// the defaults noted per field.
type Config struct {
	// URL is the WebSocket endpoint, e.g. ws://host/ws/fest-1.
	URL string

	BaseReconnectDelay   time.Duration // default 1s
	MaxReconnectDelay    time.Duration // default 30s
	MaxReconnectAttempts int           // default 10
	PingInterval         time.Duration // default 30s
	HandshakeTimeout     time.Duration // default 10s
	WriteTimeout         time.Duration // default 5s

	Clock  clockwork.Clock // default real clock
	Logger *slog.Logger    // default slog.Default()
}

func (c Config) withDefaults() Config {
	if c.BaseReconnectDelay <= 0 {
		c.BaseReconnectDelay = time.Second
	}
	if c.MaxReconnectDelay <= 0 {
		c.MaxReconnectDelay = 30 * time.Second
	}
	if c.MaxReconnectAttempts <= 0 {
		c.MaxReconnectAttempts = 10
	}
	if c.PingInterval <= 0 {
		c.PingInterval = 30 * time.Second
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 10 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 5 * time.Second
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// Client presents one stable logical connection to an endpoint URL. It hides
// reconnection with exponential backoff, heartbeat-based dead-connection
// detection, resubscription, and message queueing across outages. A Client
// outlives any single physical socket and is typically reused for the
// application's lifetime.
type Client struct {
	cfg      Config
	clock    clockwork.Clock
	logger   *slog.Logger
	handlers *handlerRegistry
	jitter   func() time.Duration

	// writeMu serializes all writes to the current physical socket.
	writeMu sync.Mutex

	mu             sync.Mutex
	state          ConnState
	conn           *websocket.Conn
	stop           chan struct{} // closed when the current physical conn is torn down
	attempts       int
	pending        [][]byte
	subs           map[string]struct{}
	lastPong       time.Time
	reconnectTimer clockwork.Timer
	closed         bool
}

// New creates a client for the given endpoint. The client does not dial
// until Connect is called.
func New(cfg Config) *Client {
	cfg = cfg.withDefaults()
	return &Client{
		cfg:      cfg,
		clock:    cfg.Clock,
		logger:   cfg.Logger.With("endpoint", cfg.URL),
		handlers: newHandlerRegistry(),
		jitter:   randomJitter,
		state:    StateDisconnected,
		subs:     make(map[string]struct{}),
	}
}

// State returns the current logical connection state.
func (c *Client) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect dials the endpoint. It is a no-op when the client is already
// connecting or connected. The dial error is also reported through the
// connection-state observers, so callers that rely on OnConnectionChange may
// ignore the return value.
func (c *Client) Connect() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	switch c.state {
	case StateConnecting, StateConnected:
		c.mu.Unlock()
		return nil
	}
	c.cancelReconnectLocked()
	states := c.setStateLocked(StateConnecting)
	c.mu.Unlock()
	c.dispatchStates(states)

	return c.dial()
}

// Disconnect is the intentional close path. It suppresses auto-reconnect,
// clears the attempt counter, and discards the pending-message queue. No
// other path drops pending messages.
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.cancelReconnectLocked()
	c.attempts = 0
	c.pending = nil
	conn := c.conn
	c.conn = nil
	if c.stop != nil {
		close(c.stop)
		c.stop = nil
	}
	states := c.setStateLocked(StateDisconnected)
	c.mu.Unlock()

	if conn != nil {
		closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		c.writeMu.Lock()
		_ = conn.WriteControl(websocket.CloseMessage, closeMsg, c.clock.Now().Add(time.Second))
		c.writeMu.Unlock()
		_ = conn.Close()
	}
	c.dispatchStates(states)
}

// Reconnect resets the attempt counter and performs a disconnect followed by
// a fresh connect. It is the manual retry path once automatic attempts are
// exhausted.
func (c *Client) Reconnect() error {
	c.Disconnect()
	return c.Connect()
}

// Close destroys the client. Subsequent Connect calls return ErrClosed.
func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()
	c.Disconnect()
}

// Send writes the envelope immediately when connected; otherwise it appends
// the message to the pending queue, which is flushed in FIFO order after the
// next successful connect. Transport failures degrade to queueing; only a
// payload that cannot be marshaled returns an error.
func (c *Client) Send(t realtime.MessageType, payload any, channel ...string) error {
	env, err := realtime.NewEnvelope(t, "", payload, c.clock.Now())
	if err != nil {
		return err
	}
	if len(channel) > 0 {
		env.Channel = channel[0]
	}
	data, err := env.Encode()
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.state != StateConnected || c.conn == nil {
		c.pending = append(c.pending, data)
		c.mu.Unlock()
		return nil
	}
	conn := c.conn
	c.mu.Unlock()

	if err := c.write(conn, data); err != nil {
		c.logger.Debug("send failed, queueing message", "error", err)
		c.mu.Lock()
		c.pending = append(c.pending, data)
		c.mu.Unlock()
	}
	return nil
}

// SubscribeChannel adds a channel to the desired-subscription set. The set
// is replayed with subscribe frames on every successful connect, which keeps
// server-visible subscription state self-healing across reconnects.
func (c *Client) SubscribeChannel(channel string) {
	c.mu.Lock()
	c.subs[channel] = struct{}{}
	conn := c.conn
	connected := c.state == StateConnected
	c.mu.Unlock()

	if connected && conn != nil {
		_ = c.writeEnvelope(conn, realtime.TypeSubscribe, realtime.SubscribePayload{Channel: channel})
	}
}

// UnsubscribeChannel removes a channel from the desired-subscription set.
func (c *Client) UnsubscribeChannel(channel string) {
	c.mu.Lock()
	delete(c.subs, channel)
	conn := c.conn
	connected := c.state == StateConnected
	c.mu.Unlock()

	if connected && conn != nil {
		_ = c.writeEnvelope(conn, realtime.TypeUnsubscribe, realtime.SubscribePayload{Channel: channel})
	}
}

// OnMessage registers a handler for a message type, or for every message via
// Wildcard. It returns the unsubscribe function.
func (c *Client) OnMessage(t realtime.MessageType, fn MessageHandler) func() {
	return c.handlers.addMessage(t, fn)
}

// OnConnectionChange registers a connection-state observer and immediately
// invokes it with the current state. It returns the unsubscribe function.
func (c *Client) OnConnectionChange(fn StateHandler) func() {
	remove := c.handlers.addState(fn)
	fn(c.State())
	return remove
}

// --- connection lifecycle ---

func (c *Client) dial() error {
	dialer := websocket.Dialer{HandshakeTimeout: c.cfg.HandshakeTimeout}
	conn, _, err := dialer.Dial(c.cfg.URL, nil)
	if err != nil {
		c.logger.Warn("dial failed", "error", err)
		c.mu.Lock()
		if c.closed || c.state != StateConnecting {
			c.mu.Unlock()
			return err
		}
		states := c.scheduleReconnectLocked()
		c.mu.Unlock()
		c.dispatchStates(states)
		return err
	}

	c.onConnected(conn)
	return nil
}

func (c *Client) onConnected(conn *websocket.Conn) {
	c.mu.Lock()
	// A Disconnect or Close issued while the dial was in flight wins: the
	// state has left connecting, so the late socket is discarded.
	if c.closed || c.state != StateConnecting {
		c.mu.Unlock()
		_ = conn.Close()
		return
	}
	c.conn = conn
	c.attempts = 0
	c.lastPong = c.clock.Now()
	stop := make(chan struct{})
	c.stop = stop
	channels := sortedChannels(c.subs)
	states := c.setStateLocked(StateConnected)
	c.mu.Unlock()

	c.logger.Info("connected")
	c.dispatchStates(states)

	go c.readLoop(conn)
	go c.heartbeatLoop(conn, stop)

	c.resubscribe(conn, channels)
	c.flushPending(conn)
}

// handleConnFailure reacts to an abnormal close of the given physical
// socket. Stale sockets (already replaced or intentionally closed) are
// ignored.
func (c *Client) handleConnFailure(conn *websocket.Conn, err error) {
	c.mu.Lock()
	if c.closed || c.conn != conn {
		c.mu.Unlock()
		return
	}
	c.logger.Warn("connection lost", "error", err)
	states := c.setStateLocked(StateError)
	states = append(states, c.scheduleReconnectLocked()...)
	c.mu.Unlock()
	c.dispatchStates(states)
}

// scheduleReconnectLocked tears down the current socket and either arms the
// backoff timer or, once attempts are exhausted, settles in disconnected
// until the caller invokes Reconnect.
func (c *Client) scheduleReconnectLocked() []ConnState {
	c.teardownConnLocked()

	c.attempts++
	if c.attempts > c.cfg.MaxReconnectAttempts {
		c.logger.Warn("reconnect attempts exhausted", "attempts", c.attempts-1)
		return c.setStateLocked(StateDisconnected)
	}

	delay := nextDelay(c.cfg.BaseReconnectDelay, c.cfg.MaxReconnectDelay, c.attempts, c.jitter)
	c.logger.Info("scheduling reconnect", "attempt", c.attempts, "delay", delay)
	c.reconnectTimer = c.clock.AfterFunc(delay, c.attemptReconnect)
	return c.setStateLocked(StateReconnecting)
}

func (c *Client) attemptReconnect() {
	c.mu.Lock()
	if c.closed || c.state != StateReconnecting {
		c.mu.Unlock()
		return
	}
	states := c.setStateLocked(StateConnecting)
	c.mu.Unlock()
	c.dispatchStates(states)

	_ = c.dial()
}

func (c *Client) teardownConnLocked() {
	if c.stop != nil {
		close(c.stop)
		c.stop = nil
	}
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
}

func (c *Client) cancelReconnectLocked() {
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
}

// --- loops ---

func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.handleConnFailure(conn, err)
			return
		}

		envelopes, errs := realtime.ParseFrames(data)
		for _, perr := range errs {
			c.logger.Warn("malformed frame ignored", "error", perr)
		}
		for _, env := range envelopes {
			c.handleInbound(conn, env)
		}
	}
}

func (c *Client) handleInbound(conn *websocket.Conn, env realtime.Envelope) {
	switch env.Type {
	case realtime.TypePing:
		// Server-initiated ping is answered immediately.
		_ = c.writeEnvelope(conn, realtime.TypePong, nil)
	case realtime.TypePong:
		c.mu.Lock()
		c.lastPong = c.clock.Now()
		c.mu.Unlock()
	}
	c.handlers.dispatch(env)
}

// heartbeatLoop sends a ping every interval and forces a reconnect once no
// pong has been observed for twice the interval, which catches half-open
// sockets that never surface a transport error.
func (c *Client) heartbeatLoop(conn *websocket.Conn, stop <-chan struct{}) {
	ticker := c.clock.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.Chan():
			c.mu.Lock()
			last := c.lastPong
			c.mu.Unlock()

			if c.clock.Since(last) >= 2*c.cfg.PingInterval {
				c.logger.Warn("heartbeat window elapsed without pong", "last_pong", last)
				c.handleConnFailure(conn, errStaleConnection)
				return
			}
			if err := c.writeEnvelope(conn, realtime.TypePing, nil); err != nil {
				c.logger.Debug("ping write failed", "error", err)
			}
		}
	}
}

// --- writes ---

func (c *Client) write(conn *websocket.Conn, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.SetWriteDeadline(c.clock.Now().Add(c.cfg.WriteTimeout))
	return conn.WriteMessage(websocket.TextMessage, data)
}

func (c *Client) writeEnvelope(conn *websocket.Conn, t realtime.MessageType, payload any) error {
	env, err := realtime.NewEnvelope(t, "", payload, c.clock.Now())
	if err != nil {
		return err
	}
	data, err := env.Encode()
	if err != nil {
		return err
	}
	return c.write(conn, data)
}

// resubscribe replays the desired-subscription set on a fresh connection.
func (c *Client) resubscribe(conn *websocket.Conn, channels []string) {
	for _, ch := range channels {
		if err := c.writeEnvelope(conn, realtime.TypeSubscribe, realtime.SubscribePayload{Channel: ch}); err != nil {
			c.logger.Warn("resubscribe failed", "channel", ch, "error", err)
			return
		}
	}
}

// flushPending drains the pending queue in FIFO order, one message at a
// time. A failure re-queues the unsent message at the front and stops the
// flush for this cycle; the next successful connect retries.
func (c *Client) flushPending(conn *websocket.Conn) {
	for {
		c.mu.Lock()
		if c.state != StateConnected || c.conn != conn || len(c.pending) == 0 {
			c.mu.Unlock()
			return
		}
		msg := c.pending[0]
		c.pending = c.pending[1:]
		c.mu.Unlock()

		if err := c.write(conn, msg); err != nil {
			c.logger.Debug("pending flush interrupted", "error", err)
			c.mu.Lock()
			c.pending = append([][]byte{msg}, c.pending...)
			c.mu.Unlock()
			return
		}
	}
}

// --- state plumbing ---

// setStateLocked records a transition and returns it for dispatch once the
// caller has released the mutex. Observers must not run under the lock: they
// are allowed to call back into the client.
func (c *Client) setStateLocked(s ConnState) []ConnState {
	if c.state == s {
		return nil
	}
	c.state = s
	return []ConnState{s}
}

func (c *Client) dispatchStates(states []ConnState) {
	for _, s := range states {
		c.handlers.dispatchState(s)
	}
}

func sortedChannels(subs map[string]struct{}) []string {
	channels := make([]string, 0, len(subs))
	for ch := range subs {
		channels = append(channels, ch)
	}
	sort.Strings(channels)
	return channels
}
