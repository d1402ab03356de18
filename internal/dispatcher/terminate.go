package dispatcher

import (
	"fmt"
)

// Terminate closes the channel and fails every outstanding operation with
// ErrTerminated: the pending load, the in-flight call and all queued calls.
// It is safe to call in any state. A later Initialize starts over.
func (d *Dispatcher) Terminate() {
	d.mu.Lock()
	prev := d.state
	ch := d.dropChannelLocked(ErrTerminated, "terminated")
	d.modelReady = false
	d.state = StateTerminated
	n := d.failPendingLocked(ErrTerminated, "terminated")
	d.observeLocked()
	d.log.Info().Str("event", "terminate").Str("prev_state", string(prev)).Int("failed", n).Msg("terminated")
	d.publisher.Publish(Event{Name: "terminate", Fields: map[string]any{"prev_state": string(prev), "failed": n}})
	d.mu.Unlock()

	if ch != nil {
		if err := ch.Close(); err != nil {
			d.log.Warn().Err(err).Str("event", "channel_close_error").Msg("closing worker channel")
		}
	}
}

// handleChannelClosed runs when the worker goes away without Close having
// been called. Everything outstanding fails with ErrChannelClosed and the
// dispatcher ends up terminated.
func (d *Dispatcher) handleChannelClosed(gen uint64, cause error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if gen != d.gen {
		return
	}
	err := ErrChannelClosed
	if cause != nil {
		err = fmt.Errorf("%w: %w", ErrChannelClosed, cause)
	}
	d.dropChannelLocked(err, "channel_closed")
	d.modelReady = false
	d.state = StateTerminated
	d.lastErr = err.Error()
	n := d.failPendingLocked(err, "channel_closed")
	d.observeLocked()
	d.log.Error().Err(cause).Str("event", "channel_closed").Int("failed", n).Msg("worker channel closed unexpectedly")
	d.publisher.Publish(Event{Name: "channel_closed", Fields: map[string]any{"error": err.Error(), "failed": n}})
}

// failPendingLocked fails the pending load and every queued call with err and
// returns the number of calls failed. The in-flight call is handled by
// dropChannelLocked.
func (d *Dispatcher) failPendingLocked(err error, outcome string) int {
	if op := d.load; op != nil {
		d.load = nil
		op.finish(err)
		loadsTotal.WithLabelValues(outcome).Inc()
	}
	queued := d.queue
	d.queue = nil
	for _, c := range queued {
		d.finishCallLocked(c, nil, err, outcome)
	}
	return len(queued)
}
