package dispatcher

import (
	"time"

	"github.com/google/uuid"

	"onnxd/internal/protocol"
)

// State represents the lifecycle state of the worker connection.
type State string

const (
	StateUninitialized State = "uninitialized"
	StateLoading       State = "loading"
	StateReady         State = "ready"
	// StateFailed follows a load error or timeout. The channel stays open
	// and runs are still accepted; Initialize starts over on a new channel.
	StateFailed     State = "failed"
	StateTerminated State = "terminated"
)

// Call is one caller's outstanding inference. Its result is assigned exactly
// once by the dispatcher.
type Call struct {
	ID string

	feeds        protocol.Feeds
	seq          uint64
	enqueuedAt   time.Time
	dispatchedAt time.Time
	timer        *time.Timer

	done     chan struct{}
	finished bool
	result   []float32
	err      error
}

func newCall(feeds protocol.Feeds) *Call {
	return &Call{
		ID:         uuid.NewString(),
		feeds:      feeds,
		enqueuedAt: time.Now(),
		done:       make(chan struct{}),
	}
}

// Done is closed once the call has a result.
func (c *Call) Done() <-chan struct{} { return c.done }

// Result returns the outcome. Before Done is closed it returns ErrPending.
func (c *Call) Result() ([]float32, error) {
	select {
	case <-c.done:
		return c.result, c.err
	default:
		return nil, ErrPending
	}
}

// complete must be called with the dispatcher lock held.
func (c *Call) complete(result []float32, err error) bool {
	if c.finished {
		return false
	}
	c.finished = true
	if c.timer != nil {
		c.timer.Stop()
	}
	c.result = result
	c.err = err
	close(c.done)
	return true
}

// loadOp is the single pending loadModel handshake shared by all Initialize
// callers.
type loadOp struct {
	done    chan struct{}
	err     error
	timer   *time.Timer
	started time.Time
}

func newLoadOp() *loadOp {
	return &loadOp{done: make(chan struct{}), started: time.Now()}
}

// finish must be called with the dispatcher lock held, once.
func (op *loadOp) finish(err error) {
	if op.timer != nil {
		op.timer.Stop()
	}
	op.err = err
	close(op.done)
}

// Snapshot is a read-only projection of the dispatcher state.
type Snapshot struct {
	State         State
	ModelPath     string
	ModelReady    bool
	QueueLen      int
	InFlight      bool
	CurrentCallID string
	LastError     string
}
