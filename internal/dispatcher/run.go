package dispatcher

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"onnxd/internal/protocol"
)

// Submit enqueues an inference and returns its handle without waiting. It
// fails with ErrNotInitialized when no channel has been opened. Readiness of
// the model is not required: calls submitted while loading are queued and
// dispatched on the open channel.
func (d *Dispatcher) Submit(feeds protocol.Feeds) (*Call, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	switch d.state {
	case StateUninitialized, StateTerminated:
		return nil, ErrNotInitialized
	}
	c := newCall(feeds)
	d.queue = append(d.queue, c)
	d.log.Debug().Str("event", "run_enqueue").Str("call_id", c.ID).Int("queue_len", len(d.queue)).Msg("enqueued")
	d.publisher.Publish(Event{Name: "run_enqueue", CallID: c.ID, Fields: map[string]any{"queue_len": len(d.queue)}})
	d.dispatchNextLocked()
	d.observeLocked()
	return c, nil
}

// RunInference submits feeds and waits for the result.
func (d *Dispatcher) RunInference(ctx context.Context, feeds protocol.Feeds) ([]float32, error) {
	ctx, span := tracer.Start(ctx, "dispatcher.RunInference", trace.WithAttributes(
		attribute.Int("onnxd.tokens", len(feeds.Tokens)),
		attribute.Int64("onnxd.speakers", feeds.Speakers),
	))
	defer span.End()

	c, err := d.Submit(feeds)
	if err == nil {
		span.SetAttributes(attribute.String("onnxd.call_id", c.ID))
		var out []float32
		out, err = d.Wait(ctx, c)
		if err == nil {
			return out, nil
		}
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return nil, err
}

// Wait blocks until c completes or ctx ends. If ctx ends while c is still
// queued, c is withdrawn and ctx's error returned. If c is already in flight
// the caller stops waiting but the slot stays occupied until the worker
// answers or the run timeout fires.
func (d *Dispatcher) Wait(ctx context.Context, c *Call) ([]float32, error) {
	select {
	case <-c.done:
	case <-ctx.Done():
		if !d.abandon(c, ctx.Err()) {
			return nil, ctx.Err()
		}
	}
	return c.result, c.err
}

// abandon withdraws a queued call and reports whether c now holds a result.
// An in-flight call is left to the worker.
func (d *Dispatcher) abandon(c *Call, err error) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, q := range d.queue {
		if q == c {
			d.queue = append(d.queue[:i], d.queue[i+1:]...)
			d.finishCallLocked(c, nil, err, "canceled")
			d.observeLocked()
			return true
		}
	}
	if c == d.current {
		d.log.Debug().Str("event", "run_detach").Str("call_id", c.ID).Msg("caller stopped waiting for in-flight run")
	}
	return c.finished
}

// dispatchNextLocked sends the head of the queue when nothing is in flight.
func (d *Dispatcher) dispatchNextLocked() {
	if d.current != nil || len(d.queue) == 0 || d.ch == nil {
		return
	}
	c := d.queue[0]
	d.queue[0] = nil
	d.queue = d.queue[1:]
	d.seq++
	c.seq = d.seq
	c.dispatchedAt = time.Now()
	d.current = c
	queueWaitSeconds.Observe(c.dispatchedAt.Sub(c.enqueuedAt).Seconds())
	if d.runTimeout > 0 {
		timeout := d.runTimeout
		c.timer = time.AfterFunc(timeout, func() { d.expireRun(c, timeout) })
	}
	d.ch.Send(protocol.Run(c.seq, c.feeds))
	d.log.Debug().Str("event", "run_dispatch").Str("call_id", c.ID).Uint64("seq", c.seq).Msg("dispatched")
	d.publisher.Publish(Event{Name: "run_dispatch", CallID: c.ID, Fields: map[string]any{"seq": c.seq}})
	d.observeLocked()
}

func (d *Dispatcher) handleRunLocked(r protocol.Response) {
	c := d.current
	if r.Seq == 0 && d.orphans > 0 {
		// Unlabeled answer to a run that already timed out.
		d.orphans--
		d.log.Debug().Str("event", "run_late").Int("orphans", d.orphans).Msg("late run response dropped")
		return
	}
	if c == nil || (r.Seq != 0 && r.Seq != c.seq) {
		d.log.Debug().Str("event", "run_late").Uint64("seq", r.Seq).Msg("run response without matching call dropped")
		return
	}
	if r.Seq != 0 && d.orphans > 0 {
		// The worker labels its answers, so nothing is owed to orphans.
		d.orphans = 0
	}
	d.current = nil
	if r.OK() {
		d.finishCallLocked(c, r.Result, nil, "success")
	} else {
		d.finishCallLocked(c, nil, &BackendError{Message: r.Error}, "error")
	}
	d.dispatchNextLocked()
	d.observeLocked()
}

// expireRun fails the in-flight call when the worker takes too long and moves
// on to the next queued call.
func (d *Dispatcher) expireRun(c *Call, timeout time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.current != c {
		return
	}
	d.current = nil
	d.orphans++
	d.log.Warn().Str("event", "run_timeout").Str("call_id", c.ID).Uint64("seq", c.seq).Dur("timeout", timeout).Msg("run timed out")
	d.finishCallLocked(c, nil, ErrRunTimeout, "timeout")
	d.dispatchNextLocked()
	d.observeLocked()
}

// finishCallLocked completes c and records its outcome.
func (d *Dispatcher) finishCallLocked(c *Call, result []float32, err error, outcome string) {
	if !c.complete(result, err) {
		return
	}
	d.runsTotal++
	runsTotal.WithLabelValues(outcome).Inc()
	ev := Event{Name: "run_done", CallID: c.ID, Fields: map[string]any{"outcome": outcome}}
	if !c.dispatchedAt.IsZero() {
		dur := time.Since(c.dispatchedAt)
		runDurationSeconds.WithLabelValues(outcome).Observe(dur.Seconds())
		ev.Fields["dur_ms"] = dur.Milliseconds()
	}
	switch outcome {
	case "error":
		ev.Name = "run_error"
		ev.Fields["error"] = err.Error()
	case "timeout":
		ev.Name = "run_timeout"
	case "success":
	default:
		if err != nil {
			ev.Fields["error"] = err.Error()
		}
	}
	d.publisher.Publish(ev)
}
