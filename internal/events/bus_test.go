package events

import (
	"testing"
	"time"

	"agentchat/core/pkg/events"
	"agentchat/core/pkg/logger"
)

func newTestBus(cfg BusConfig) *SessionBus {
	return NewSessionBus(cfg, logger.CreateTestLogger("error"))
}

func TestEmitToUnknownSessionDropped(t *testing.T) {
	bus := newTestBus(BusConfig{})

	if ok := bus.Emit("never-active", events.AgentActivity, events.ActivityPayload{Message: "hello"}); ok {
		t.Fatalf("emission to a session that never existed should be dropped")
	}
	if bus.HasSession("never-active") {
		t.Fatalf("dropped emission must not create a session")
	}
	if stats := bus.Stats(); stats["tracked_history"].(int) != 0 {
		t.Fatalf("dropped emission must leave no activity history, stats=%v", stats)
	}
}

func TestAddSessionIdempotent(t *testing.T) {
	bus := newTestBus(BusConfig{})
	bus.AddSession("s1")

	if !bus.Emit("s1", events.AgentActivity, events.ActivityPayload{Message: "first"}) {
		t.Fatalf("emit to registered session failed")
	}
	bus.AddSession("s1")

	infos := bus.Sessions()
	if len(infos) != 1 {
		t.Fatalf("expected 1 session, got %d", len(infos))
	}
	if infos[0].Pending != 1 {
		t.Fatalf("re-adding a session must not reset its queue, pending=%d", infos[0].Pending)
	}
}

func TestEmitQueueFullDropsAfterTimeout(t *testing.T) {
	bus := newTestBus(BusConfig{QueueCapacity: 1, EnqueueTimeout: 10 * time.Millisecond})
	bus.AddSession("s1")

	if !bus.Emit("s1", events.AgentActivity, events.ActivityPayload{Message: "fits"}) {
		t.Fatalf("first emit should fill the queue")
	}
	start := time.Now()
	if bus.Emit("s1", events.AgentActivity, events.ActivityPayload{Message: "overflow"}) {
		t.Fatalf("emit into a full queue should be dropped")
	}
	if waited := time.Since(start); waited < 10*time.Millisecond {
		t.Fatalf("emit gave up before the enqueue timeout: %s", waited)
	}
	if bus.HasSession("s1") != true {
		t.Fatalf("a dropped event must not tear down the session")
	}
}

func TestRemoveSession(t *testing.T) {
	bus := newTestBus(BusConfig{})
	bus.AddSession("s1")

	if !bus.RemoveSession("s1") {
		t.Fatalf("removing an existing session should report true")
	}
	if bus.RemoveSession("s1") {
		t.Fatalf("removing a missing session should report false")
	}
	if bus.Emit("s1", events.AgentActivity, events.ActivityPayload{Message: "late"}) {
		t.Fatalf("explicit removal clears activity history, emit must drop")
	}
}

func TestEmitRecreatesRecentlyDetachedSession(t *testing.T) {
	bus := newTestBus(BusConfig{RecreateGrace: time.Minute})
	bus.AddSession("s1")

	// Simulate a detach past the grace window: the session goes away but its
	// activity history survives for the recreate window.
	bus.mu.Lock()
	sess := bus.sessions["s1"]
	sess.lastActivity = time.Now().Add(-2 * time.Hour)
	bus.mu.Unlock()
	bus.detach("s1")

	if bus.HasSession("s1") {
		t.Fatalf("idle session should be removed on detach")
	}

	// History is stale too, so the emit is dropped...
	if bus.Emit("s1", events.AgentActivity, events.ActivityPayload{Message: "too late"}) {
		t.Fatalf("emit outside the recreate window should drop")
	}

	// ...but recent history brings the session back.
	bus.mu.Lock()
	bus.lastSeen["s1"] = time.Now()
	bus.mu.Unlock()
	if !bus.Emit("s1", events.AgentActivity, events.ActivityPayload{Message: "reconnect race"}) {
		t.Fatalf("emit within the recreate window should recreate the session")
	}
	if !bus.HasSession("s1") {
		t.Fatalf("recreated session should be active again")
	}
}

func TestDetachRetainsRecentlyActiveSession(t *testing.T) {
	bus := newTestBus(BusConfig{DetachGrace: time.Minute})
	bus.AddSession("s1")

	bus.detach("s1")
	if !bus.HasSession("s1") {
		t.Fatalf("session active within the detach grace should be retained")
	}
}

func TestReclaimStale(t *testing.T) {
	bus := newTestBus(BusConfig{})
	bus.AddSession("old")
	bus.AddSession("fresh")

	bus.mu.Lock()
	bus.sessions["old"].lastActivity = time.Now().Add(-time.Hour)
	bus.mu.Unlock()

	if removed := bus.ReclaimStale(30 * time.Minute); removed != 1 {
		t.Fatalf("expected 1 reclaimed session, got %d", removed)
	}
	if bus.HasSession("old") {
		t.Fatalf("stale session should be gone")
	}
	if !bus.HasSession("fresh") {
		t.Fatalf("fresh session should survive the sweep")
	}
}

func TestConfigDefaults(t *testing.T) {
	cfg := newTestBus(BusConfig{QueueCapacity: 8}).Config()
	if cfg.QueueCapacity != 8 {
		t.Fatalf("explicit capacity overridden: %d", cfg.QueueCapacity)
	}
	def := DefaultBusConfig()
	if cfg.HeartbeatInterval != def.HeartbeatInterval ||
		cfg.EnqueueTimeout != def.EnqueueTimeout ||
		cfg.DetachGrace != def.DetachGrace ||
		cfg.RecreateGrace != def.RecreateGrace {
		t.Fatalf("zero fields should take defaults, got %+v", cfg)
	}
}
