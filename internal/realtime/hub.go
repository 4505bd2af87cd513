package realtime

import (
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/mimi6060/festivals-sub018/internal/metrics"
)

const (
	cmdQueueSize  = 256
	sweepInterval = 30 * time.Second
	stopTimeout   = 10 * time.Second
)

// --- Command types ---

type hubCmd interface{ isHubCmd() }

type baseHubCmd struct{}

func (baseHubCmd) isHubCmd() {}

type registerCmd struct {
	baseHubCmd
	session *Session
}

type unregisterCmd struct {
	baseHubCmd
	session *Session
}

type broadcastCmd struct {
	baseHubCmd
	festivalID string
	msgType    MessageType
	data       []byte
}

type statsCmd struct {
	baseHubCmd
	reply chan Stats
}

type stopCmd struct {
	baseHubCmd
}

// Stats is a point-in-time snapshot of hub state.
type Stats struct {
	TotalConnections  int64          `json:"total_connections"`
	ActiveConnections int            `json:"active_connections"`
	Festivals         map[string]int `json:"festivals"`
}

// Hub is the single owner of the festival→sessions mapping. All mutations
// run on one goroutine draining a command channel, so register, unregister,
// and broadcast are totally ordered with respect to each other and the map
// needs no locking. A periodic sweep on the same loop pushes ping frames to
// every session; sessions that fail to answer within their read deadline
// tear themselves down.
type Hub struct {
	cmdCh  chan hubCmd
	clock  clockwork.Clock
	logger *slog.Logger

	festivals map[string]map[*Session]struct{}
	total     int64
	active    int

	done chan struct{}
}

// NewHub creates a hub and starts its processing loop.
func NewHub(clock clockwork.Clock, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Hub{
		cmdCh:     make(chan hubCmd, cmdQueueSize),
		clock:     clock,
		logger:    logger,
		festivals: make(map[string]map[*Session]struct{}),
		done:      make(chan struct{}),
	}
	go h.run()
	return h
}

// Register adds a session to its festival's bucket. Registering the same
// session twice is a caller bug; the hub does not guard against it.
func (h *Hub) Register(s *Session) {
	h.cmdCh <- registerCmd{session: s}
}

// Unregister removes a session, closes its send queue, and deletes the
// festival bucket if it is now empty. Idempotent after the first call.
func (h *Hub) Unregister(s *Session) {
	h.cmdCh <- unregisterCmd{session: s}
}

// BroadcastToFestival serializes the envelope exactly once and fans it out
// to every session of the festival whose channel filter accepts the type.
// Broadcasting to a festival with no sessions is a silent no-op. The call
// enqueues and returns; delivery happens on the hub loop and the sessions'
// write loops.
func (h *Hub) BroadcastToFestival(festivalID string, t MessageType, payload any) {
	env, err := NewEnvelope(t, festivalID, payload, h.clock.Now())
	if err != nil {
		h.logger.Error("broadcast dropped", "festival_id", festivalID, "type", string(t), "error", err)
		return
	}
	data, err := env.Encode()
	if err != nil {
		h.logger.Error("broadcast dropped", "festival_id", festivalID, "type", string(t), "error", err)
		return
	}
	metrics.HubBroadcastsTotal.WithLabelValues(string(t)).Inc()
	h.cmdCh <- broadcastCmd{festivalID: festivalID, msgType: t, data: data}
}

// Stats returns connection counters and per-festival session counts. Safe to
// call concurrently with the processing loop.
func (h *Hub) Stats() Stats {
	reply := make(chan Stats, 1)
	h.cmdCh <- statsCmd{reply: reply}
	return <-reply
}

// Stop tears down every session and terminates the processing loop. Process
// shutdown must call it so no write loops are leaked.
func (h *Hub) Stop() {
	h.cmdCh <- stopCmd{}

	timer := h.clock.NewTimer(stopTimeout)
	defer timer.Stop()
	select {
	case <-h.done:
	case <-timer.Chan():
		h.logger.Warn("hub stop timeout exceeded", "timeout", stopTimeout)
	}
}

func (h *Hub) run() {
	defer close(h.done)

	sweep := h.clock.NewTicker(sweepInterval)
	defer sweep.Stop()

	for {
		select {
		case cmd := <-h.cmdCh:
			switch c := cmd.(type) {
			case registerCmd:
				h.handleRegister(c.session)
			case unregisterCmd:
				h.handleUnregister(c.session)
			case broadcastCmd:
				h.handleBroadcast(c)
			case statsCmd:
				c.reply <- h.snapshot()
			case stopCmd:
				h.handleStop()
				return
			}
		case <-sweep.Chan():
			h.handleSweep()
		}
	}
}

func (h *Hub) handleRegister(s *Session) {
	bucket, exists := h.festivals[s.festivalID]
	if !exists {
		bucket = make(map[*Session]struct{})
		h.festivals[s.festivalID] = bucket
	}
	bucket[s] = struct{}{}
	h.total++
	h.active++

	metrics.HubConnectionsTotal.Inc()
	metrics.HubConnectedClients.Inc()
	metrics.HubActiveFestivals.Set(float64(len(h.festivals)))

	h.logger.Debug("session registered",
		"session_id", s.id.String(),
		"festival_id", s.festivalID,
		"channel", string(s.channel),
		"festival_sessions", len(bucket),
	)
}

func (h *Hub) handleUnregister(s *Session) {
	bucket, exists := h.festivals[s.festivalID]
	if !exists {
		return
	}
	if _, exists := bucket[s]; !exists {
		return
	}

	s.closeSend()
	delete(bucket, s)
	h.active--
	metrics.HubConnectedClients.Dec()

	if len(bucket) == 0 {
		delete(h.festivals, s.festivalID)
		metrics.HubActiveFestivals.Set(float64(len(h.festivals)))
		h.logger.Info("last session gone", "festival_id", s.festivalID)
	} else {
		h.logger.Debug("session unregistered",
			"festival_id", s.festivalID,
			"remaining_sessions", len(bucket),
		)
	}
}

func (h *Hub) handleBroadcast(c broadcastCmd) {
	bucket, exists := h.festivals[c.festivalID]
	if !exists {
		return
	}

	var slow []*Session
	for s := range bucket {
		if !s.shouldReceive(c.msgType) {
			continue
		}
		if !s.enqueue(c.data) {
			slow = append(slow, s)
		}
	}

	for _, s := range slow {
		h.logger.Warn("evicting slow session",
			"session_id", s.id.String(),
			"festival_id", c.festivalID,
		)
		metrics.HubSlowSessionsEvicted.Inc()
		h.handleUnregister(s)
	}
}

// handleSweep pushes a ping frame to every session. A session that cannot
// even take a ping is treated like any other full queue and evicted.
func (h *Hub) handleSweep() {
	ping, err := NewEnvelope(TypePing, "", nil, h.clock.Now())
	if err != nil {
		return
	}
	data, err := ping.Encode()
	if err != nil {
		return
	}

	for festivalID, bucket := range h.festivals {
		var slow []*Session
		for s := range bucket {
			if !s.enqueue(data) {
				slow = append(slow, s)
			}
		}
		for _, s := range slow {
			h.logger.Warn("evicting unresponsive session",
				"session_id", s.id.String(),
				"festival_id", festivalID,
			)
			metrics.HubSlowSessionsEvicted.Inc()
			h.handleUnregister(s)
		}
	}
}

func (h *Hub) snapshot() Stats {
	festivals := make(map[string]int, len(h.festivals))
	for festivalID, bucket := range h.festivals {
		festivals[festivalID] = len(bucket)
	}
	return Stats{
		TotalConnections:  h.total,
		ActiveConnections: h.active,
		Festivals:         festivals,
	}
}

func (h *Hub) handleStop() {
	sessions := 0
	for festivalID, bucket := range h.festivals {
		for s := range bucket {
			s.closeSend()
			sessions++
		}
		delete(h.festivals, festivalID)
	}
	h.active = 0
	metrics.HubConnectedClients.Set(0)
	metrics.HubActiveFestivals.Set(0)
	h.logger.Info("hub stopped", "closed_sessions", sessions)
}
