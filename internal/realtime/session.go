package realtime

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"github.com/mimi6060/festivals-sub018/internal/metrics"
)

const (
	sendQueueSize = 256
	writeDeadline = 10 * time.Second
	pongDeadline  = 60 * time.Second
	pingInterval  = 30 * time.Second

	// Upper bound on a single inbound client frame. A misbehaving client
	// triggers a read error instead of unbounded buffering.
	maxFrameSize = 8 << 10
)

// Session bridges one physical WebSocket connection to the hub. It owns a
// read loop and a write loop which communicate only through the bounded send
// queue and its close signal. A session belongs to exactly one festival and
// one channel for its whole life.
type Session struct {
	id         uuid.UUID
	festivalID string
	channel    Channel
	conn       *websocket.Conn
	hub        *Hub
	clock      clockwork.Clock
	logger     *slog.Logger

	send chan []byte

	mu     sync.Mutex
	closed bool
}

func newSession(hub *Hub, conn *websocket.Conn, festivalID string, ch Channel) *Session {
	id := uuid.New()
	return &Session{
		id:         id,
		festivalID: festivalID,
		channel:    ch,
		conn:       conn,
		hub:        hub,
		clock:      hub.clock,
		logger:     hub.logger.With("session_id", id.String(), "festival_id", festivalID, "channel", string(ch)),
		send:       make(chan []byte, sendQueueSize),
	}
}

// ServeSession registers a freshly upgraded connection with the hub and
// pumps it until the connection dies or the hub tears it down. It blocks for
// the lifetime of the connection, so the HTTP handler that accepted the
// upgrade should call it directly.
func ServeSession(hub *Hub, conn *websocket.Conn, festivalID string, ch Channel) {
	s := newSession(hub, conn, festivalID, ch)
	hub.Register(s)
	go s.writeLoop()
	s.readLoop()
}

// ID returns the session's unique identifier.
func (s *Session) ID() uuid.UUID { return s.id }

// FestivalID returns the festival this session is scoped to.
func (s *Session) FestivalID() string { return s.festivalID }

// Channel returns the session's fixed channel filter.
func (s *Session) Channel() Channel { return s.channel }

func (s *Session) shouldReceive(t MessageType) bool {
	return shouldReceive(s.channel, t)
}

// enqueue attempts a non-blocking put onto the send queue. It returns false
// when the queue is full or already closed; the caller decides what that
// means (the hub evicts, control replies are simply dropped).
func (s *Session) enqueue(data []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.send <- data:
		return true
	default:
		return false
	}
}

// closeSend closes the send queue exactly once. This is the write loop's
// sole termination signal.
func (s *Session) closeSend() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.send)
}

func (s *Session) refreshReadDeadline() {
	_ = s.conn.SetReadDeadline(s.clock.Now().Add(pongDeadline))
}

// readLoop blocks on inbound frames, refreshing the read deadline on every
// one. Any read error, including deadline expiry, tears the session down.
func (s *Session) readLoop() {
	defer s.hub.Unregister(s)

	s.conn.SetReadLimit(maxFrameSize)
	s.refreshReadDeadline()

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			s.logger.Debug("read loop closing", "error", err)
			return
		}
		s.refreshReadDeadline()

		envelopes, errs := ParseFrames(data)
		for _, perr := range errs {
			// Protocol error: log and keep the connection open.
			s.logger.Warn("malformed frame ignored", "error", perr)
		}
		for _, env := range envelopes {
			s.handleInbound(env)
		}
	}
}

func (s *Session) handleInbound(env Envelope) {
	switch env.Type {
	case TypePing:
		pong, err := NewEnvelope(TypePong, "", nil, s.clock.Now())
		if err != nil {
			return
		}
		data, err := pong.Encode()
		if err != nil {
			return
		}
		if !s.enqueue(data) {
			s.logger.Debug("pong dropped, send queue full")
		}
	case TypePong:
		// Liveness is the read deadline, which every inbound frame already
		// refreshed before reaching here.
	case TypeSubscribe, TypeUnsubscribe:
		// The channel is fixed by the route the client connected on.
		// Subscription frames are accepted so resilient clients can replay
		// them after a reconnect, but they do not alter the filter.
		s.logger.Debug("subscription frame acknowledged", "type", string(env.Type))
	default:
		s.logger.Warn("unrecognized message type ignored", "type", string(env.Type))
	}
}

// writeLoop drains the send queue to the socket. Queue close makes it send a
// close frame and exit; a write failure terminates only this session.
func (s *Session) writeLoop() {
	ticker := s.clock.NewTicker(pingInterval)
	defer ticker.Stop()

	idle := true
	for {
		select {
		case msg, ok := <-s.send:
			if !ok {
				_ = s.conn.SetWriteDeadline(s.clock.Now().Add(writeDeadline))
				closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
				_ = s.conn.WriteMessage(websocket.CloseMessage, closeMsg)
				_ = s.conn.Close()
				return
			}
			start := s.clock.Now()
			_ = s.conn.SetWriteDeadline(start.Add(writeDeadline))
			if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				s.logger.Debug("write failed, closing connection", "error", err)
				_ = s.conn.Close()
				return
			}
			metrics.SessionSendDuration.Observe(s.clock.Since(start).Seconds())
			idle = false
		case <-ticker.Chan():
			if !idle {
				idle = true
				continue
			}
			ping, err := NewEnvelope(TypePing, "", nil, s.clock.Now())
			if err != nil {
				continue
			}
			data, err := ping.Encode()
			if err != nil {
				continue
			}
			_ = s.conn.SetWriteDeadline(s.clock.Now().Add(writeDeadline))
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				metrics.SessionPingFailures.Inc()
				_ = s.conn.Close()
				return
			}
		}
	}
}
