package events

import (
	"context"
	"time"

	"agentchat/core/pkg/events"
)

// StreamSession attaches the session's single long-lived consumer and
// returns its event channel. The stream opens with a synthetic connected
// event, then relays queued events in FIFO order, yielding a heartbeat
// whenever the heartbeat interval passes without a real event. Heartbeats
// may interleave with real events but never reorder them.
//
// The channel closes when ctx is cancelled (the host's connection-close
// signal). Detach applies the grace-window rule: a session with recent
// activity is retained for reconnect rather than destroyed.
//
// The session is created if absent, so opening a stream is also a valid way
// to register a session.
func (b *SessionBus) StreamSession(ctx context.Context, sessionID string) <-chan events.Event {
	b.mu.Lock()
	sess := b.ensureSessionLocked(sessionID)
	b.mu.Unlock()

	out := make(chan events.Event)
	go func() {
		defer close(out)
		defer b.detach(sessionID)

		if !b.deliver(ctx, out, events.NewConnectedEvent(sessionID)) {
			return
		}

		heartbeat := time.NewTimer(b.cfg.HeartbeatInterval)
		defer heartbeat.Stop()

		for {
			select {
			case event := <-sess.queue:
				b.touch(sessionID)
				if !b.deliver(ctx, out, event) {
					return
				}
			case <-heartbeat.C:
				b.touch(sessionID)
				if !b.deliver(ctx, out, events.NewHeartbeatEvent(sessionID)) {
					return
				}
			case <-ctx.Done():
				return
			}

			if !heartbeat.Stop() {
				select {
				case <-heartbeat.C:
				default:
				}
			}
			heartbeat.Reset(b.cfg.HeartbeatInterval)
		}
	}()
	return out
}

// deliver hands one event to the consumer, giving up when the consumer's
// context ends first.
func (b *SessionBus) deliver(ctx context.Context, out chan<- events.Event, event events.Event) bool {
	select {
	case out <- event:
		return true
	case <-ctx.Done():
		return false
	}
}
