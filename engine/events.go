// SPDX-License-Identifier: EPL-2.0

package engine

// completionEvent carries a pending OnComplete invocation. All user
// callbacks are delivered from the dispatcher goroutine so neither the
// audio thread nor a caller holding engine locks ever runs user code.
type completionEvent struct {
	fn  OnComplete
	id  string
	ok  bool
	err error
}

func (e *Engine) dispatchLoop() {
	defer close(e.dispatcherDone)
	for ev := range e.events {
		if ev.fn != nil {
			ev.fn(ev.id, ev.ok, ev.err)
		}
	}
}

// emitComplete queues a completion callback. Safe from any goroutine
// except the audio thread; the mixer hands completions to the watcher
// sweep instead.
func (e *Engine) emitComplete(fn OnComplete, id string, ok bool, err error) {
	if fn == nil {
		return
	}
	select {
	case e.events <- completionEvent{fn: fn, id: id, ok: ok, err: err}:
	default:
		e.eventsDropped.Add(1)
		e.logger.Warn("completion event queue full, dropping", "track", id)
	}
}
