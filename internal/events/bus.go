// Package events fans activity notifications from concurrent producer
// goroutines into per-session ordered streams, each drained by a single
// long-lived consumer (typically an SSE response).
package events

import (
	"sync"
	"time"

	"agentchat/core/pkg/events"
	"agentchat/core/pkg/logger"
)

// BusConfig tunes the session bus. The grace windows distinguish "session
// legitimately ended" from "transient disconnect during a reconnect race";
// the defaults are configuration, not invariants.
type BusConfig struct {
	// HeartbeatInterval is how long a stream waits for a real event before
	// yielding a synthetic heartbeat to keep intermediaries from closing
	// the connection.
	HeartbeatInterval time.Duration
	// EnqueueTimeout bounds how long Emit waits on a full queue before
	// dropping the event.
	EnqueueTimeout time.Duration
	// DetachGrace keeps a session alive after its consumer detaches when
	// activity is more recent than this window.
	DetachGrace time.Duration
	// RecreateGrace recreates a removed session when an emission arrives
	// within this window of its last recorded activity.
	RecreateGrace time.Duration
	// QueueCapacity is the per-session pending event limit.
	QueueCapacity int
}

// DefaultBusConfig returns the canonical tuning.
func DefaultBusConfig() BusConfig {
	return BusConfig{
		HeartbeatInterval: 15 * time.Second,
		EnqueueTimeout:    1 * time.Second,
		DetachGrace:       60 * time.Second,
		RecreateGrace:     300 * time.Second,
		QueueCapacity:     256,
	}
}

func (c BusConfig) withDefaults() BusConfig {
	def := DefaultBusConfig()
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = def.HeartbeatInterval
	}
	if c.EnqueueTimeout <= 0 {
		c.EnqueueTimeout = def.EnqueueTimeout
	}
	if c.DetachGrace <= 0 {
		c.DetachGrace = def.DetachGrace
	}
	if c.RecreateGrace <= 0 {
		c.RecreateGrace = def.RecreateGrace
	}
	if c.QueueCapacity <= 0 {
		c.QueueCapacity = def.QueueCapacity
	}
	return c
}

// session owns one FIFO queue plus the activity timestamp driving the grace
// windows. lastActivity is guarded by the bus lock; the queue channel is its
// own synchronization.
type session struct {
	queue        chan events.Event
	createdAt    time.Time
	lastActivity time.Time
}

// SessionInfo is a read-only snapshot of one session for listings.
type SessionInfo struct {
	SessionID    string    `json:"session_id"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
	Pending      int       `json:"pending_events"`
}

// SessionBus is the in-process event bus. One coarse lock guards the session
// map and activity history; enqueue and dequeue run lock-free on each
// session's channel so a blocking producer never holds up the map.
//
// Construct one per process at the composition root and hand it to every
// handler that needs it.
type SessionBus struct {
	mu       sync.Mutex
	sessions map[string]*session
	// lastSeen retains the final activity timestamp of removed sessions so
	// an emission during a reconnect race can transparently recreate them.
	// Ids never added as sessions leave no trace here, which is what makes
	// events to never-active ids discardable.
	lastSeen map[string]time.Time

	cfg BusConfig
	log logger.Logger
}

// NewSessionBus builds an empty bus. Zero config fields take defaults.
func NewSessionBus(cfg BusConfig, log logger.Logger) *SessionBus {
	return &SessionBus{
		sessions: make(map[string]*session),
		lastSeen: make(map[string]time.Time),
		cfg:      cfg.withDefaults(),
		log:      log,
	}
}

// Config returns the effective bus tuning.
func (b *SessionBus) Config() BusConfig {
	return b.cfg
}

// AddSession registers a session, creating its queue. Idempotent: an
// existing session is left untouched.
func (b *SessionBus) AddSession(sessionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ensureSessionLocked(sessionID)
}

func (b *SessionBus) ensureSessionLocked(sessionID string) *session {
	if sess, ok := b.sessions[sessionID]; ok {
		return sess
	}
	now := time.Now()
	sess := &session{
		queue:        make(chan events.Event, b.cfg.QueueCapacity),
		createdAt:    now,
		lastActivity: now,
	}
	b.sessions[sessionID] = sess
	delete(b.lastSeen, sessionID)
	b.log.Debugf("session %s registered", sessionID)
	return sess
}

// RemoveSession drops a session and its activity history. Returns false when
// the session was not present.
func (b *SessionBus) RemoveSession(sessionID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.sessions[sessionID]; !ok {
		return false
	}
	delete(b.sessions, sessionID)
	delete(b.lastSeen, sessionID)
	b.log.Infof("session %s removed", sessionID)
	return true
}

// HasSession reports whether a session is currently active.
func (b *SessionBus) HasSession(sessionID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.sessions[sessionID]
	return ok
}

// Emit enqueues an event for a session. Delivery is best-effort and
// fire-and-forget: a full queue past the enqueue timeout, or an unknown
// session with no recent activity history, drops the event with a warning.
// An emission to a recently removed session transparently recreates it,
// treating the gap as a client reconnect rather than an error.
//
// The boolean reports whether the event reached a queue; producers must not
// depend on it for correctness.
func (b *SessionBus) Emit(sessionID string, eventType events.EventType, payload interface{}) bool {
	sess := b.sessionForEmit(sessionID)
	if sess == nil {
		b.log.Warnf("dropping %s event for unknown session %s", eventType, sessionID)
		return false
	}

	event := events.NewEvent(sessionID, eventType, payload)
	select {
	case sess.queue <- event:
		return true
	case <-time.After(b.cfg.EnqueueTimeout):
		b.log.Warnf("dropping %s event for session %s: queue full after %s",
			eventType, sessionID, b.cfg.EnqueueTimeout)
		return false
	}
}

// sessionForEmit resolves the target session, recreating one removed within
// the recreate grace window, and records the activity either way.
func (b *SessionBus) sessionForEmit(sessionID string) *session {
	b.mu.Lock()
	defer b.mu.Unlock()

	if sess, ok := b.sessions[sessionID]; ok {
		sess.lastActivity = time.Now()
		return sess
	}

	seen, ok := b.lastSeen[sessionID]
	if !ok || time.Since(seen) > b.cfg.RecreateGrace {
		return nil
	}

	b.log.Infof("recreating session %s for emission %s after last activity", sessionID, time.Since(seen))
	return b.ensureSessionLocked(sessionID)
}

// touch refreshes a session's activity timestamp.
func (b *SessionBus) touch(sessionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if sess, ok := b.sessions[sessionID]; ok {
		sess.lastActivity = time.Now()
	}
}

// detach runs when a session's stream consumer goes away. A session with
// activity inside the detach grace window is kept, so a producer racing a
// transient disconnect still finds its queue; otherwise the session is
// removed and its last activity retained for the recreate window.
func (b *SessionBus) detach(sessionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	sess, ok := b.sessions[sessionID]
	if !ok {
		return
	}

	if idle := time.Since(sess.lastActivity); idle <= b.cfg.DetachGrace {
		b.log.Infof("stream for session %s detached, keeping session (idle %s)", sessionID, idle)
		return
	}

	delete(b.sessions, sessionID)
	b.lastSeen[sessionID] = sess.lastActivity
	b.log.Infof("stream for session %s detached, session removed", sessionID)
}

// Sessions returns a snapshot of all active sessions.
func (b *SessionBus) Sessions() []SessionInfo {
	b.mu.Lock()
	defer b.mu.Unlock()

	infos := make([]SessionInfo, 0, len(b.sessions))
	for id, sess := range b.sessions {
		infos = append(infos, SessionInfo{
			SessionID:    id,
			CreatedAt:    sess.createdAt,
			LastActivity: sess.lastActivity,
			Pending:      len(sess.queue),
		})
	}
	return infos
}

// ReclaimStale removes every session whose last activity is older than
// maxAge, along with expired recreate history. Intended for a periodic
// external scheduler; the bus never sweeps on its own. Returns the number of
// sessions removed.
func (b *SessionBus) ReclaimStale(maxAge time.Duration) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	removed := 0
	for id, sess := range b.sessions {
		if time.Since(sess.lastActivity) > maxAge {
			delete(b.sessions, id)
			delete(b.lastSeen, id)
			removed++
		}
	}
	for id, seen := range b.lastSeen {
		if time.Since(seen) > b.cfg.RecreateGrace {
			delete(b.lastSeen, id)
		}
	}

	if removed > 0 {
		b.log.Infof("reclaimed %d stale sessions (max age %s)", removed, maxAge)
	}
	return removed
}

// Stats summarizes the bus for health reporting.
func (b *SessionBus) Stats() map[string]interface{} {
	b.mu.Lock()
	defer b.mu.Unlock()

	pending := 0
	for _, sess := range b.sessions {
		pending += len(sess.queue)
	}
	return map[string]interface{}{
		"active_sessions": len(b.sessions),
		"pending_events":  pending,
		"tracked_history": len(b.lastSeen),
	}
}
