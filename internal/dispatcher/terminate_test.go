package dispatcher

import (
	"context"
	"errors"
	"strings"
	"testing"

	"onnxd/internal/protocol"
)

func TestTerminate_FailsInflightAndQueued(t *testing.T) {
	o := newFakeOpener()
	d := newTestDispatcher(o, nil)
	fc := readyDispatcher(t, d, o)

	var calls []*Call
	for i := 0; i < 3; i++ {
		c, err := d.Submit(feeds(int64(i)))
		if err != nil {
			t.Fatalf("Submit: %v", err)
		}
		calls = append(calls, c)
	}
	nextSent(t, fc)
	d.Terminate()
	for i, c := range calls {
		if _, err := waitCall(t, c); !errors.Is(err, ErrTerminated) {
			t.Fatalf("call %d: expected ErrTerminated, got %v", i, err)
		}
	}
	if !fc.isClosed() {
		t.Fatalf("channel should be closed")
	}
	if d.State() != StateTerminated || d.Ready() {
		t.Fatalf("state = %s ready=%v", d.State(), d.Ready())
	}
	if _, err := d.RunInference(context.Background(), feeds(1)); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("expected ErrNotInitialized after terminate, got %v", err)
	}
	// Terminating twice is harmless.
	d.Terminate()
}

func TestTerminate_DuringLoad(t *testing.T) {
	o := newFakeOpener()
	d := newTestDispatcher(o, nil)
	res := startInitialize(context.Background(), d)
	fc := waitOpened(t, o)
	load := nextSent(t, fc)
	d.Terminate()
	if err := waitErr(t, res); !errors.Is(err, ErrTerminated) {
		t.Fatalf("expected ErrTerminated, got %v", err)
	}
	// A late acknowledgment on the closed channel changes nothing.
	fc.reply(protocol.Success(load, nil))
	if d.State() != StateTerminated {
		t.Fatalf("state = %s, want terminated", d.State())
	}
}

func TestTerminate_InitializeStartsOver(t *testing.T) {
	o := newFakeOpener()
	d := newTestDispatcher(o, nil)
	readyDispatcher(t, d, o)
	d.Terminate()
	readyDispatcher(t, d, o)
	if o.opens() != 2 {
		t.Fatalf("opens = %d, want 2", o.opens())
	}
}

func TestChannelClosed_FailsEverything(t *testing.T) {
	o := newFakeOpener()
	pub := NewMemoryPublisher()
	d := newTestDispatcher(o, func(c *Config) { c.Publisher = pub })
	fc := readyDispatcher(t, d, o)

	c1, _ := d.Submit(feeds(1))
	c2, _ := d.Submit(feeds(2))
	nextSent(t, fc)
	fc.die(errors.New("worker exited: signal: killed"))

	for i, c := range []*Call{c1, c2} {
		_, err := waitCall(t, c)
		if !errors.Is(err, ErrChannelClosed) || !strings.Contains(err.Error(), "signal: killed") {
			t.Fatalf("call %d: expected ErrChannelClosed with cause, got %v", i+1, err)
		}
	}
	if d.State() != StateTerminated {
		t.Fatalf("state = %s, want terminated", d.State())
	}
	if pub.Count("channel_closed") != 1 {
		t.Fatalf("channel_closed events: %v", pub.Names())
	}
}

func TestChannelClosed_DuringLoad(t *testing.T) {
	o := newFakeOpener()
	d := newTestDispatcher(o, nil)
	res := startInitialize(context.Background(), d)
	fc := waitOpened(t, o)
	nextSent(t, fc)
	fc.die(nil)
	if err := waitErr(t, res); !errors.Is(err, ErrChannelClosed) {
		t.Fatalf("expected ErrChannelClosed, got %v", err)
	}
}

func TestStatus(t *testing.T) {
	o := newFakeOpener()
	d := newTestDispatcher(o, nil)
	if st := d.Status(); st.State != "uninitialized" || st.ModelPath != "/models/vits.onnx" {
		t.Fatalf("status = %+v", st)
	}
	fc := readyDispatcher(t, d, o)
	c, _ := d.Submit(feeds(1))
	run := nextSent(t, fc)
	st := d.Status()
	if st.State != "ready" || !st.ModelReady || !st.InFlight || st.CurrentCallID != c.ID || st.LoadsTotal != 1 {
		t.Fatalf("status = %+v", st)
	}
	fc.reply(protocol.Success(run, []float32{1}))
	waitCall(t, c)
	if st := d.Status(); st.RunsTotal != 1 || st.InFlight {
		t.Fatalf("status = %+v", st)
	}
	if d.ModelPath() != "/models/vits.onnx" {
		t.Fatalf("ModelPath = %q", d.ModelPath())
	}
}
