package channel

import (
	"context"
	"io"
	"sync"

	"onnxd/internal/protocol"
)

// Responder handles a single command inside a worker context.
type Responder interface {
	Handle(ctx context.Context, cmd protocol.Command) protocol.Response
}

// ResponderFunc adapts a function to the Responder interface.
type ResponderFunc func(ctx context.Context, cmd protocol.Command) protocol.Response

func (f ResponderFunc) Handle(ctx context.Context, cmd protocol.Command) protocol.Response {
	return f(ctx, cmd)
}

// Pipe opens in-process channels. Every Open gets a fresh Responder from New
// running on its own goroutine; commands are handled one at a time in the
// order they were sent. The endpoint is informational only.
type Pipe struct {
	New func() Responder
}

func (p Pipe) Open(ctx context.Context, endpoint string) (Channel, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	wctx, cancel := context.WithCancel(context.Background())
	c := &pipeChannel{
		responder: p.New(),
		ctx:       wctx,
		cancel:    cancel,
		wake:      make(chan struct{}, 1),
	}
	go c.loop()
	return c, nil
}

type pipeChannel struct {
	responder Responder
	ctx       context.Context
	cancel    context.CancelFunc

	mu     sync.Mutex
	inbox  []protocol.Command
	onMsg  func(protocol.Response)
	closed bool
	wake   chan struct{}
}

func (c *pipeChannel) Send(cmd protocol.Command) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.inbox = append(c.inbox, cmd)
	c.mu.Unlock()
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func (c *pipeChannel) OnMessage(h func(protocol.Response)) {
	c.mu.Lock()
	c.onMsg = h
	c.mu.Unlock()
}

// OnClose is accepted for interface compatibility; an in-process worker only
// goes away through Close.
func (c *pipeChannel) OnClose(func(error)) {}

func (c *pipeChannel) loop() {
	for {
		select {
		case <-c.wake:
		case <-c.ctx.Done():
			return
		}
		for {
			c.mu.Lock()
			if c.closed || len(c.inbox) == 0 {
				c.mu.Unlock()
				break
			}
			cmd := c.inbox[0]
			c.inbox = c.inbox[1:]
			c.mu.Unlock()

			resp := c.responder.Handle(c.ctx, cmd)

			c.mu.Lock()
			h := c.onMsg
			closed := c.closed
			c.mu.Unlock()
			if !closed && h != nil {
				h(resp)
			}
		}
	}
}

func (c *pipeChannel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.inbox = nil
	c.mu.Unlock()
	c.cancel()
	if cl, ok := c.responder.(io.Closer); ok {
		return cl.Close()
	}
	return nil
}
