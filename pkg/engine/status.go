package engine

import "github.com/kong/go-offline-sync/pkg/op"

// subscriber is one listener on the status stream. Events are delivered
// best-effort: a subscriber that isn't reading has its event dropped rather
// than blocking the engine.
type subscriber struct {
	ch chan op.SyncStatusEvent
}

// Subscribe registers a new listener on the engine's status stream. The
// returned channel receives events only from the moment of subscription
// onward — there is no last-value retention for late subscribers. Call
// cancel to stop receiving and release the channel.
func (e *Engine) Subscribe() (ch <-chan op.SyncStatusEvent, cancel func()) {
	sub := &subscriber{ch: make(chan op.SyncStatusEvent, 16)}

	e.subMu.Lock()
	e.subs = append(e.subs, sub)
	e.subMu.Unlock()

	return sub.ch, func() {
		e.subMu.Lock()
		defer e.subMu.Unlock()
		for i, s := range e.subs {
			if s == sub {
				e.subs = append(e.subs[:i], e.subs[i+1:]...)
				close(sub.ch)
				return
			}
		}
	}
}

// Close closes the engine's status stream, closing every subscriber's
// channel.
func (e *Engine) Close() {
	e.subMu.Lock()
	defer e.subMu.Unlock()
	for _, s := range e.subs {
		close(s.ch)
	}
	e.subs = nil
}

func (e *Engine) emit(event op.SyncStatusEvent) {
	e.statusMu.Lock()
	e.lastStatus = event
	e.statusMu.Unlock()

	e.subMu.RLock()
	defer e.subMu.RUnlock()
	for _, s := range e.subs {
		select {
		case s.ch <- event:
		default:
		}
	}
}

// Status returns the most recently emitted SyncStatusEvent.
func (e *Engine) Status() op.SyncStatusEvent {
	e.statusMu.RLock()
	defer e.statusMu.RUnlock()
	return e.lastStatus
}

// IsSyncing reports whether a Sync call is currently draining the queue.
func (e *Engine) IsSyncing() bool {
	return e.Status().Status == op.SyncingPhase
}
