package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"onnxd/internal/protocol"
)

// ErrNotLoaded is reported for run commands before a successful loadModel.
var ErrNotLoaded = errors.New("model not loaded")

// Server answers protocol commands with an Engine. It satisfies
// channel.Responder, so the same code serves the in-process pipe and the
// stdin/stdout worker process.
type Server struct {
	engine Engine
	log    zerolog.Logger

	mu     sync.Mutex
	loaded bool
}

func NewServer(engine Engine, logger *zerolog.Logger) *Server {
	s := &Server{engine: engine, log: zerolog.Nop()}
	if logger != nil {
		s.log = logger.With().Str("component", "worker").Logger()
	}
	return s
}

// Handle executes one command and builds its response. The response echoes
// the command's type and seq.
func (s *Server) Handle(ctx context.Context, cmd protocol.Command) protocol.Response {
	s.mu.Lock()
	defer s.mu.Unlock()
	start := time.Now()
	switch cmd.Type {
	case protocol.TypeLoadModel:
		s.loaded = false
		if err := s.engine.Load(ctx, cmd.ModelPath); err != nil {
			s.log.Error().Err(err).Str("event", "load_error").Str("model", cmd.ModelPath).Msg("load failed")
			return protocol.Failure(cmd, err)
		}
		s.loaded = true
		s.log.Info().Str("event", "load_ready").Str("model", cmd.ModelPath).Dur("dur", time.Since(start)).Msg("model loaded")
		return protocol.Success(cmd, nil)
	case protocol.TypeRun:
		if !s.loaded {
			return protocol.Failure(cmd, ErrNotLoaded)
		}
		if cmd.Feeds == nil {
			return protocol.Failure(cmd, errors.New("run without feeds"))
		}
		if err := cmd.Feeds.Validate(); err != nil {
			return protocol.Failure(cmd, err)
		}
		out, err := s.engine.Run(ctx, *cmd.Feeds)
		if err != nil {
			s.log.Warn().Err(err).Str("event", "run_error").Uint64("seq", cmd.Seq).Msg("run failed")
			return protocol.Failure(cmd, err)
		}
		s.log.Debug().Str("event", "run_done").Uint64("seq", cmd.Seq).Dur("dur", time.Since(start)).Msg("run done")
		return protocol.Success(cmd, out)
	default:
		return protocol.Failure(cmd, fmt.Errorf("unknown message type %q", cmd.Type))
	}
}

// Serve reads commands from r and writes responses to w until r ends or ctx
// is canceled. Malformed lines are logged and skipped.
func (s *Server) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	dec := protocol.NewDecoder(r)
	enc := protocol.NewEncoder(w)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		var cmd protocol.Command
		if err := dec.Decode(&cmd); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			if errors.Is(err, protocol.ErrMalformed) {
				s.log.Warn().Err(err).Str("event", "bad_command").Msg("skipping malformed command")
				continue
			}
			return fmt.Errorf("read command: %w", err)
		}
		if err := enc.Encode(s.Handle(ctx, cmd)); err != nil {
			return fmt.Errorf("write response: %w", err)
		}
	}
}

// Close releases the engine.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loaded = false
	return s.engine.Close()
}
