// Package channel wraps the asynchronous message boundary to a worker.
//
// A Channel carries protocol commands to the worker and hands responses to a
// single registered handler. It does no correlation of its own: the next
// response is whatever the worker writes next.
package channel

import (
	"context"
	"errors"

	"onnxd/internal/protocol"
)

// ErrWorkerExited is wrapped by the error passed to OnClose handlers when the
// worker goes away without Close having been called.
var ErrWorkerExited = errors.New("worker exited")

// Channel is a one-way-typed, asynchronous link to a worker.
type Channel interface {
	// Send queues cmd for the worker. It never blocks. Commands sent after
	// Close are dropped.
	Send(cmd protocol.Command)
	// OnMessage installs the handler for inbound responses, replacing any
	// previous one. Handlers run on the channel's goroutine, one at a time.
	OnMessage(h func(protocol.Response))
	// OnClose installs a handler called at most once when the worker goes
	// away on its own.
	OnClose(h func(error))
	// Close terminates the channel irrevocably.
	Close() error
}

// Opener creates channels. endpoint identifies the worker to reach.
type Opener interface {
	Open(ctx context.Context, endpoint string) (Channel, error)
}

// OpenerFunc adapts a function to the Opener interface.
type OpenerFunc func(ctx context.Context, endpoint string) (Channel, error)

func (f OpenerFunc) Open(ctx context.Context, endpoint string) (Channel, error) {
	return f(ctx, endpoint)
}
