package dispatcher

import (
	"context"
	"sync"
	"testing"
	"time"

	"onnxd/internal/channel"
	"onnxd/internal/protocol"
)

// fakeChannel records sent commands and lets tests play the worker.
type fakeChannel struct {
	mu      sync.Mutex
	sent    []protocol.Command
	onMsg   func(protocol.Response)
	onClose func(error)
	closed  bool
	sentCh  chan protocol.Command
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{sentCh: make(chan protocol.Command, 64)}
}

func (f *fakeChannel) Send(cmd protocol.Command) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.sent = append(f.sent, cmd)
	f.mu.Unlock()
	select {
	case f.sentCh <- cmd:
	default:
	}
}

func (f *fakeChannel) OnMessage(h func(protocol.Response)) {
	f.mu.Lock()
	f.onMsg = h
	f.mu.Unlock()
}

func (f *fakeChannel) OnClose(h func(error)) {
	f.mu.Lock()
	f.onClose = h
	f.mu.Unlock()
}

func (f *fakeChannel) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func (f *fakeChannel) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// reply delivers r as if the worker had written it.
func (f *fakeChannel) reply(r protocol.Response) {
	f.mu.Lock()
	h := f.onMsg
	f.mu.Unlock()
	if h != nil {
		h(r)
	}
}

// die simulates the worker going away on its own.
func (f *fakeChannel) die(err error) {
	f.mu.Lock()
	h := f.onClose
	f.closed = true
	f.mu.Unlock()
	if h != nil {
		h(err)
	}
}

func (f *fakeChannel) count(t protocol.MessageType) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.sent {
		if c.Type == t {
			n++
		}
	}
	return n
}

// fakeOpener hands out a fresh fakeChannel per Open.
type fakeOpener struct {
	mu       sync.Mutex
	err      error
	opened   []*fakeChannel
	openedCh chan *fakeChannel
}

func newFakeOpener() *fakeOpener {
	return &fakeOpener{openedCh: make(chan *fakeChannel, 16)}
}

func (o *fakeOpener) Open(ctx context.Context, endpoint string) (channel.Channel, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err != nil {
		return nil, o.err
	}
	fc := newFakeChannel()
	o.opened = append(o.opened, fc)
	o.openedCh <- fc
	return fc, nil
}

func (o *fakeOpener) opens() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.opened)
}

func newTestDispatcher(o channel.Opener, mod func(*Config)) *Dispatcher {
	cfg := Config{
		Opener:      o,
		Endpoint:    "fake-worker",
		ModelPath:   "/models/vits.onnx",
		LoadTimeout: 2 * time.Second,
	}
	if mod != nil {
		mod(&cfg)
	}
	return New(cfg)
}

func waitOpened(t *testing.T, o *fakeOpener) *fakeChannel {
	t.Helper()
	select {
	case fc := <-o.openedCh:
		return fc
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for channel open")
		return nil
	}
}

func nextSent(t *testing.T, fc *fakeChannel) protocol.Command {
	t.Helper()
	select {
	case cmd := <-fc.sentCh:
		return cmd
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for a command")
		return protocol.Command{}
	}
}

func expectNoSend(t *testing.T, fc *fakeChannel, wait time.Duration) {
	t.Helper()
	select {
	case cmd := <-fc.sentCh:
		t.Fatalf("unexpected command sent: %+v", cmd)
	case <-time.After(wait):
	}
}

// startInitialize runs Initialize in the background and returns its result
// channel.
func startInitialize(ctx context.Context, d *Dispatcher) <-chan error {
	out := make(chan error, 1)
	go func() { out <- d.Initialize(ctx) }()
	return out
}

func waitErr(t *testing.T, ch <-chan error) error {
	t.Helper()
	select {
	case err := <-ch:
		return err
	case <-time.After(3 * time.Second):
		t.Fatalf("timed out waiting for result")
		return nil
	}
}

func waitCall(t *testing.T, c *Call) ([]float32, error) {
	t.Helper()
	select {
	case <-c.Done():
		return c.Result()
	case <-time.After(3 * time.Second):
		t.Fatalf("timed out waiting for call %s", c.ID)
		return nil, nil
	}
}

// readyDispatcher initializes d against o and acknowledges the load.
func readyDispatcher(t *testing.T, d *Dispatcher, o *fakeOpener) *fakeChannel {
	t.Helper()
	res := startInitialize(context.Background(), d)
	fc := waitOpened(t, o)
	cmd := nextSent(t, fc)
	if cmd.Type != protocol.TypeLoadModel {
		t.Fatalf("first command = %q, want loadModel", cmd.Type)
	}
	fc.reply(protocol.Success(cmd, nil))
	if err := waitErr(t, res); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	return fc
}

func feeds(tokens ...int64) protocol.Feeds {
	return protocol.Feeds{Tokens: tokens, Tones: make([]int64, len(tokens))}
}
