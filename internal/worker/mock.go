package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"onnxd/internal/protocol"
)

// MockEngine produces a fixed vector [0.1, 0.2, ...] without any runtime.
type MockEngine struct {
	opts   MockOptions
	loaded string
}

func NewMockEngine(opts MockOptions) *MockEngine {
	if opts.Dim <= 0 {
		opts.Dim = 2
	}
	return &MockEngine{opts: opts}
}

func (m *MockEngine) Load(ctx context.Context, modelPath string) error {
	if modelPath == "" {
		return errors.New("model path is empty")
	}
	if m.opts.LoadDelay > 0 {
		t := time.NewTimer(m.opts.LoadDelay)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	m.loaded = modelPath
	return nil
}

func (m *MockEngine) Run(ctx context.Context, feeds protocol.Feeds) ([]float32, error) {
	if m.opts.FailSpeaker > 0 && feeds.Speakers == m.opts.FailSpeaker {
		return nil, fmt.Errorf("speaker %d not supported", feeds.Speakers)
	}
	out := make([]float32, m.opts.Dim)
	for i := range out {
		out[i] = float32(i+1) / 10
	}
	return out, nil
}

func (m *MockEngine) Close() error { return nil }
