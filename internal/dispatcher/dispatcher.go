package dispatcher

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"

	"onnxd/internal/channel"
	"onnxd/internal/protocol"
)

var tracer = otel.Tracer("onnxd/internal/dispatcher")

// Dispatcher owns the worker channel, the load handshake, the FIFO queue and
// the single in-flight slot. All fields below mu are guarded by it; no
// channel or caller code runs while it is held except non-blocking Send.
type Dispatcher struct {
	opener    channel.Opener
	endpoint  string
	modelPath string
	log       zerolog.Logger
	publisher EventPublisher
	startTime time.Time

	mu          sync.Mutex
	loadTimeout time.Duration
	runTimeout  time.Duration
	state       State
	ch          channel.Channel
	gen         uint64 // bumped whenever ch is replaced or dropped
	modelReady  bool
	load        *loadOp
	queue       []*Call
	current     *Call // the in-flight call, if any
	seq         uint64
	orphans     int // timed-out calls whose unlabeled responses are still due
	lastErr     string
	loadsTotal  uint64
	runsTotal   uint64
}

// ModelPath returns the configured model path.
func (d *Dispatcher) ModelPath() string { return d.modelPath }

// State returns the current lifecycle state.
func (d *Dispatcher) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Ready reports whether the model has been loaded.
func (d *Dispatcher) Ready() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state == StateReady && d.modelReady
}

// RunTimeout returns the per-run timeout; zero means disabled.
func (d *Dispatcher) RunTimeout() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.runTimeout
}

// SetRunTimeout changes the per-run timeout for calls dispatched from now on.
func (d *Dispatcher) SetRunTimeout(t time.Duration) {
	if t < 0 {
		t = 0
	}
	d.mu.Lock()
	d.runTimeout = t
	d.mu.Unlock()
	d.log.Info().Str("event", "run_timeout_set").Dur("run_timeout", t).Msg("run timeout updated")
}

// handleMessage is the one stable handler installed on every channel. gen
// identifies the channel it was installed on; messages from a replaced
// channel are ignored.
func (d *Dispatcher) handleMessage(gen uint64, r protocol.Response) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if gen != d.gen {
		d.log.Debug().Str("event", "stale_message").Str("type", string(r.Type)).Msg("message from replaced channel ignored")
		return
	}
	switch r.Type {
	case protocol.TypeLoadModel:
		d.handleLoadLocked(r)
	case protocol.TypeRun:
		d.handleRunLocked(r)
	default:
		d.log.Warn().Str("event", "unknown_message").Str("type", string(r.Type)).Msg("unknown message type")
	}
}
