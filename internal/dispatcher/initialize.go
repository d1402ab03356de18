package dispatcher

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/codes"

	"onnxd/internal/channel"
	"onnxd/internal/protocol"
)

// Initialize opens the worker channel and loads the model. It is idempotent:
// when Ready it returns nil at once, and concurrent callers during a load all
// wait for the same handshake. ctx only bounds this caller's wait; the load
// itself is bounded by the load timeout.
func (d *Dispatcher) Initialize(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "dispatcher.Initialize")
	defer span.End()

	d.mu.Lock()
	switch d.state {
	case StateReady:
		d.mu.Unlock()
		return nil
	case StateLoading:
		op := d.load
		d.mu.Unlock()
		return d.awaitLoad(ctx, op)
	}

	// Uninitialized, Failed or Terminated: start from scratch. After a
	// failed load the old channel may be corrupt, so it is replaced.
	stale := d.dropChannelLocked(fmt.Errorf("%w: replaced by a new channel", ErrChannelClosed), "channel_closed")
	op := newLoadOp()
	d.load = op
	d.state = StateLoading
	d.modelReady = false
	d.lastErr = ""
	d.mu.Unlock()

	if stale != nil {
		_ = stale.Close()
	}
	d.log.Info().Str("event", "load_start").Str("model", d.modelPath).Str("endpoint", d.endpoint).Msg("initializing")
	d.publisher.Publish(Event{Name: "load_start", Fields: map[string]any{"model": d.modelPath}})

	// The load is shared with other callers, so it must not die with ctx.
	ch, err := d.opener.Open(context.WithoutCancel(ctx), d.endpoint)

	d.mu.Lock()
	if d.load != op {
		// Terminated while opening; op has already been finished.
		d.mu.Unlock()
		if ch != nil {
			_ = ch.Close()
		}
		return d.awaitLoad(ctx, op)
	}
	if err != nil {
		err = fmt.Errorf("open worker channel: %w", err)
		d.load = nil
		d.state = StateUninitialized
		d.lastErr = err.Error()
		d.failPendingLocked(fmt.Errorf("%w: %v", ErrChannelClosed, err), "channel_closed")
		op.finish(err)
		loadsTotal.WithLabelValues("error").Inc()
		d.mu.Unlock()
		d.log.Error().Err(err).Str("event", "load_error").Msg("could not open worker channel")
		d.publisher.Publish(Event{Name: "load_error", Fields: map[string]any{"error": err.Error()}})
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	d.gen++
	gen := d.gen
	d.ch = ch
	ch.OnMessage(func(r protocol.Response) { d.handleMessage(gen, r) })
	ch.OnClose(func(cause error) { d.handleChannelClosed(gen, cause) })
	ch.Send(protocol.LoadModel(d.modelPath))
	op.timer = time.AfterFunc(d.loadTimeout, func() { d.expireLoad(op) })
	// Calls queued while the channel was opening go out now, ahead of the
	// load acknowledgment.
	d.dispatchNextLocked()
	d.mu.Unlock()

	err = d.awaitLoad(ctx, op)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (d *Dispatcher) awaitLoad(ctx context.Context, op *loadOp) error {
	select {
	case <-op.done:
		return op.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) handleLoadLocked(r protocol.Response) {
	op := d.load
	if op == nil {
		// Late acknowledgment after a timeout, or a duplicate.
		d.log.Debug().Str("event", "load_late").Str("status", string(r.Status)).Msg("loadModel response ignored")
		return
	}
	d.load = nil
	dur := time.Since(op.started)
	if r.OK() {
		d.modelReady = true
		d.state = StateReady
		d.loadsTotal++
		op.finish(nil)
		loadsTotal.WithLabelValues("success").Inc()
		d.log.Info().Str("event", "load_ready").Dur("dur", dur).Msg("model loaded")
		d.publisher.Publish(Event{Name: "load_ready", Fields: map[string]any{"dur_ms": dur.Milliseconds()}})
		return
	}
	err := &ModelLoadError{Message: r.Error}
	d.state = StateFailed
	d.lastErr = err.Error()
	op.finish(err)
	loadsTotal.WithLabelValues("error").Inc()
	d.log.Error().Err(err).Str("event", "load_error").Dur("dur", dur).Msg("worker failed to load model")
	d.publisher.Publish(Event{Name: "load_error", Fields: map[string]any{"error": r.Error}})
}

// expireLoad fails a load that got no acknowledgment in time. The channel is
// left open; a late response finds no pending load and is ignored.
func (d *Dispatcher) expireLoad(op *loadOp) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.load != op {
		return
	}
	d.load = nil
	d.state = StateFailed
	d.lastErr = ErrModelLoadTimeout.Error()
	op.finish(ErrModelLoadTimeout)
	loadsTotal.WithLabelValues("timeout").Inc()
	d.log.Error().Str("event", "load_timeout").Dur("timeout", d.loadTimeout).Msg("model loading timed out")
	d.publisher.Publish(Event{Name: "load_timeout", Fields: map[string]any{"timeout_ms": d.loadTimeout.Milliseconds()}})
}

// dropChannelLocked detaches the current channel, failing the in-flight call
// that was sent on it. Queued calls stay queued. The caller closes the
// returned channel outside the lock.
func (d *Dispatcher) dropChannelLocked(inflightErr error, outcome string) channel.Channel {
	ch := d.ch
	if ch == nil {
		return nil
	}
	d.ch = nil
	d.gen++
	d.orphans = 0
	if c := d.current; c != nil {
		d.current = nil
		d.finishCallLocked(c, nil, inflightErr, outcome)
	}
	d.observeLocked()
	return ch
}
