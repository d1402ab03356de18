// Package worker is the process on the far side of the channel. It answers
// loadModel and run commands using an Engine.
package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"onnxd/internal/protocol"
)

// Engine executes the model. Calls are never concurrent.
type Engine interface {
	Load(ctx context.Context, modelPath string) error
	Run(ctx context.Context, feeds protocol.Feeds) ([]float32, error)
	Close() error
}

// Options selects and configures an engine.
type Options struct {
	Engine string // mock | onnx
	Mock   MockOptions
	ONNX   ONNXOptions
	Logger *zerolog.Logger
}

// MockOptions configures the mock engine.
type MockOptions struct {
	// Dim is the length of the output vector (default 2).
	Dim int
	// FailSpeaker makes runs for this speaker id fail; zero disables.
	FailSpeaker int64
	LoadDelay   time.Duration
}

// ONNXOptions names the runtime library and the graph's inputs and outputs.
type ONNXOptions struct {
	LibraryPath   string
	TokensInput   string
	TonesInput    string
	SpeakersInput string
	// LengthsInput is optional; when set it receives len(tokens).
	LengthsInput string
	OutputName   string
	OutputLen    int
}

// NewEngine builds the engine named by opts.Engine.
func NewEngine(opts Options) (Engine, error) {
	switch opts.Engine {
	case "", "mock":
		return NewMockEngine(opts.Mock), nil
	case "onnx":
		return NewONNXEngine(opts.ONNX, opts.Logger)
	default:
		return nil, fmt.Errorf("unknown engine %q", opts.Engine)
	}
}

func (o ONNXOptions) withDefaults() ONNXOptions {
	if o.TokensInput == "" {
		o.TokensInput = "x"
	}
	if o.TonesInput == "" {
		o.TonesInput = "tones"
	}
	if o.SpeakersInput == "" {
		o.SpeakersInput = "sid"
	}
	if o.OutputName == "" {
		o.OutputName = "y"
	}
	return o
}
