package channel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"onnxd/internal/protocol"
)

const (
	defaultStopTimeout = 2 * time.Second
	stderrTailBytes    = 4096
)

// Subprocess opens channels to a worker binary speaking the protocol as
// newline-delimited JSON on stdin/stdout.
type Subprocess struct {
	Args        []string
	Env         []string
	StopTimeout time.Duration
	// Logger is optional; nil disables logging.
	Logger *zerolog.Logger
}

// Open starts the worker binary named by endpoint.
func (s *Subprocess) Open(ctx context.Context, endpoint string) (Channel, error) {
	if strings.TrimSpace(endpoint) == "" {
		return nil, errors.New("worker binary is empty")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	// The worker outlives ctx; it is stopped by Close.
	cmd := exec.Command(endpoint, s.Args...)
	if len(s.Env) > 0 {
		cmd.Env = append(os.Environ(), s.Env...)
	}
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	tail := &tailBuffer{max: stderrTailBytes}
	cmd.Stderr = tail
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start worker: %w", err)
	}

	stop := s.StopTimeout
	if stop <= 0 {
		stop = defaultStopTimeout
	}
	base := zerolog.Nop()
	if s.Logger != nil {
		base = *s.Logger
	}
	p := &procChannel{
		cmd:         cmd,
		stdin:       stdin,
		enc:         protocol.NewEncoder(stdin),
		stderr:      tail,
		stopTimeout: stop,
		log:         base.With().Str("component", "channel").Int("pid", cmd.Process.Pid).Logger(),
		wake:        make(chan struct{}, 1),
		done:        make(chan struct{}),
	}
	p.log.Info().Str("event", "worker_start").Str("bin", endpoint).Msg("worker started")
	go p.writeLoop()
	go p.readLoop(stdout)
	return p, nil
}

type procChannel struct {
	cmd         *exec.Cmd
	stdin       io.WriteCloser
	enc         *protocol.Encoder
	stderr      *tailBuffer
	stopTimeout time.Duration
	log         zerolog.Logger

	mu        sync.Mutex
	outbox    []protocol.Command
	onMsg     func(protocol.Response)
	onClose   func(error)
	closed    bool  // set by Close or by worker exit
	exitCause error // non-nil when the worker exited on its own

	wake chan struct{}
	done chan struct{}
}

func (p *procChannel) Send(cmd protocol.Command) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.log.Warn().Str("event", "send_after_close").Str("type", string(cmd.Type)).Msg("dropping command")
		return
	}
	p.outbox = append(p.outbox, cmd)
	p.mu.Unlock()
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func (p *procChannel) OnMessage(h func(protocol.Response)) {
	p.mu.Lock()
	p.onMsg = h
	p.mu.Unlock()
}

func (p *procChannel) OnClose(h func(error)) {
	p.mu.Lock()
	p.onClose = h
	cause := p.exitCause
	p.mu.Unlock()
	// Worker died before the handler was installed.
	if cause != nil && h != nil {
		go h(cause)
	}
}

func (p *procChannel) writeLoop() {
	for {
		select {
		case <-p.wake:
		case <-p.done:
			return
		}
		p.mu.Lock()
		batch := p.outbox
		p.outbox = nil
		p.mu.Unlock()
		for _, cmd := range batch {
			if err := p.enc.Encode(cmd); err != nil {
				// A broken stdin means the worker is gone; readLoop reports it.
				p.log.Warn().Err(err).Str("event", "write_error").Msg("write to worker failed")
				return
			}
		}
	}
}

func (p *procChannel) readLoop(stdout io.Reader) {
	dec := protocol.NewDecoder(stdout)
	for {
		var r protocol.Response
		err := dec.Decode(&r)
		if err == nil {
			p.mu.Lock()
			h := p.onMsg
			p.mu.Unlock()
			if h != nil {
				h(r)
			}
			continue
		}
		if errors.Is(err, protocol.ErrMalformed) {
			p.log.Warn().Err(err).Str("event", "malformed").Msg("ignoring worker output")
			continue
		}
		break
	}

	waitErr := p.cmd.Wait()
	p.mu.Lock()
	closedByUs := p.closed
	p.closed = true
	var h func(error)
	if !closedByUs {
		p.exitCause = p.exitError(waitErr)
		h = p.onClose
	}
	cause := p.exitCause
	p.mu.Unlock()
	close(p.done)

	if closedByUs {
		p.log.Info().Str("event", "worker_stop").Msg("worker stopped")
		return
	}
	p.log.Error().Err(cause).Str("event", "worker_exit").Msg("worker exited unexpectedly")
	if h != nil {
		h(cause)
	}
}

func (p *procChannel) exitError(waitErr error) error {
	tail := strings.TrimSpace(p.stderr.String())
	switch {
	case waitErr != nil && tail != "":
		return fmt.Errorf("%w: %v; stderr tail: %s", ErrWorkerExited, waitErr, tail)
	case waitErr != nil:
		return fmt.Errorf("%w: %v", ErrWorkerExited, waitErr)
	default:
		return ErrWorkerExited
	}
}

// Close stops the worker: stdin is closed, SIGTERM follows, and the process is
// killed if it has not exited within the stop timeout.
func (p *procChannel) Close() error {
	p.mu.Lock()
	already := p.closed
	p.closed = true
	p.outbox = nil
	p.mu.Unlock()
	if already {
		<-p.done
		return nil
	}
	_ = p.stdin.Close()
	_ = p.cmd.Process.Signal(syscall.SIGTERM)
	select {
	case <-p.done:
	case <-time.After(p.stopTimeout):
		p.log.Warn().Str("event", "worker_kill").Dur("after", p.stopTimeout).Msg("worker did not stop, killing")
		_ = p.cmd.Process.Kill()
		<-p.done
	}
	return nil
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	max int
	buf []byte
}

func (t *tailBuffer) Write(b []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, b...)
	if len(t.buf) > t.max {
		t.buf = t.buf[len(t.buf)-t.max:]
	}
	return len(b), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.buf)
}
