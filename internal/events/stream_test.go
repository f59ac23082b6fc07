package events

import (
	"context"
	"testing"
	"time"

	"agentchat/core/pkg/events"
)

func receiveEvent(t *testing.T, ch <-chan events.Event) events.Event {
	t.Helper()
	select {
	case event, ok := <-ch:
		if !ok {
			t.Fatalf("stream closed while waiting for an event")
		}
		return event
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for an event")
		return events.Event{}
	}
}

func TestStreamOpensWithConnectedEvent(t *testing.T) {
	bus := newTestBus(BusConfig{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := bus.StreamSession(ctx, "s1")
	first := receiveEvent(t, ch)
	if first.Type != events.Connected {
		t.Fatalf("expected connected event first, got %s", first.Type)
	}
	if first.SessionID != "s1" {
		t.Fatalf("connected event carries wrong session id %q", first.SessionID)
	}
	if !bus.HasSession("s1") {
		t.Fatalf("opening a stream should register the session")
	}
}

func TestStreamDeliversEventsInOrder(t *testing.T) {
	bus := newTestBus(BusConfig{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus.AddSession("s1")
	for _, msg := range []string{"first", "second", "third"} {
		if !bus.Emit("s1", events.AgentActivity, &events.ActivityPayload{Message: msg}) {
			t.Fatalf("emit %q failed", msg)
		}
	}

	ch := bus.StreamSession(ctx, "s1")
	if first := receiveEvent(t, ch); first.Type != events.Connected {
		t.Fatalf("expected connected event first, got %s", first.Type)
	}
	for _, want := range []string{"first", "second", "third"} {
		event := receiveEvent(t, ch)
		if event.Type != events.AgentActivity {
			t.Fatalf("expected activity event, got %s", event.Type)
		}
		payload, ok := event.Payload.(*events.ActivityPayload)
		if !ok {
			t.Fatalf("unexpected payload type %T", event.Payload)
		}
		if payload.Message != want {
			t.Fatalf("events out of order: got %q, want %q", payload.Message, want)
		}
	}
}

func TestStreamYieldsHeartbeatsWhenIdle(t *testing.T) {
	bus := newTestBus(BusConfig{HeartbeatInterval: 30 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := bus.StreamSession(ctx, "s1")
	if first := receiveEvent(t, ch); first.Type != events.Connected {
		t.Fatalf("expected connected event first, got %s", first.Type)
	}
	for i := 0; i < 2; i++ {
		event := receiveEvent(t, ch)
		if event.Type != events.Heartbeat {
			t.Fatalf("expected heartbeat on idle stream, got %s", event.Type)
		}
	}
}

func TestStreamClosesOnContextCancel(t *testing.T) {
	bus := newTestBus(BusConfig{})
	ctx, cancel := context.WithCancel(context.Background())

	ch := bus.StreamSession(ctx, "s1")
	receiveEvent(t, ch) // connected
	cancel()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatalf("expected the stream channel to close after cancel")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("stream did not close after context cancel")
	}
}

func TestStreamDetachRetainsRecentSession(t *testing.T) {
	bus := newTestBus(BusConfig{DetachGrace: time.Minute})
	ctx, cancel := context.WithCancel(context.Background())

	ch := bus.StreamSession(ctx, "s1")
	receiveEvent(t, ch) // connected
	cancel()
	for range ch {
	}

	// Detach completed before the channel closed; the session stays because
	// its activity is inside the grace window.
	if !bus.HasSession("s1") {
		t.Fatalf("recently active session should survive a disconnect")
	}
	if !bus.Emit("s1", events.AgentActivity, &events.ActivityPayload{Message: "while away"}) {
		t.Fatalf("producer should still reach the retained session")
	}
}

func TestStreamReconnectAfterDetachReplaysNothingButReceivesNew(t *testing.T) {
	bus := newTestBus(BusConfig{DetachGrace: time.Minute})

	ctx1, cancel1 := context.WithCancel(context.Background())
	ch1 := bus.StreamSession(ctx1, "s1")
	receiveEvent(t, ch1) // connected
	cancel1()
	for range ch1 {
	}

	bus.Emit("s1", events.AgentActivity, &events.ActivityPayload{Message: "buffered while detached"})

	ctx2, cancel2 := context.WithCancel(context.Background())
	defer cancel2()
	ch2 := bus.StreamSession(ctx2, "s1")
	if first := receiveEvent(t, ch2); first.Type != events.Connected {
		t.Fatalf("expected connected event first, got %s", first.Type)
	}
	event := receiveEvent(t, ch2)
	payload, ok := event.Payload.(*events.ActivityPayload)
	if !ok || payload.Message != "buffered while detached" {
		t.Fatalf("reconnected stream should drain events buffered during the gap, got %+v", event)
	}
}

func TestEmitRecreatesSessionDuringReconnectRace(t *testing.T) {
	bus := newTestBus(BusConfig{DetachGrace: time.Nanosecond, RecreateGrace: time.Minute})

	ctx, cancel := context.WithCancel(context.Background())
	ch := bus.StreamSession(ctx, "s1")
	receiveEvent(t, ch) // connected

	// Make the session look idle so the detach removes it outright.
	bus.mu.Lock()
	bus.sessions["s1"].lastActivity = time.Now().Add(-time.Second)
	bus.mu.Unlock()

	cancel()
	for range ch {
	}
	if bus.HasSession("s1") {
		t.Fatalf("idle session should be gone after detach")
	}

	// A producer racing the disconnect finds the recreate window open.
	if !bus.Emit("s1", events.AgentActivity, &events.ActivityPayload{Message: "raced the disconnect"}) {
		t.Fatalf("emit inside the recreate window should succeed")
	}

	ctx2, cancel2 := context.WithCancel(context.Background())
	defer cancel2()
	ch2 := bus.StreamSession(ctx2, "s1")
	receiveEvent(t, ch2) // connected
	event := receiveEvent(t, ch2)
	payload, ok := event.Payload.(*events.ActivityPayload)
	if !ok || payload.Message != "raced the disconnect" {
		t.Fatalf("recreated session lost the raced event, got %+v", event)
	}
}
