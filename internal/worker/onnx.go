//go:build onnx

package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	ort "github.com/yalue/onnxruntime_go"

	"onnxd/internal/protocol"
)

var (
	envOnce sync.Once
	envErr  error
)

// initEnvironment initializes the ONNX Runtime once per process.
func initEnvironment(libraryPath string) error {
	envOnce.Do(func() {
		if libraryPath != "" {
			ort.SetSharedLibraryPath(libraryPath)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			envErr = fmt.Errorf("failed to initialize ONNX environment: %w", err)
		}
	})
	return envErr
}

// ONNXEngine runs a VITS-style text-to-speech graph through ONNX Runtime.
type ONNXEngine struct {
	opts    ONNXOptions
	log     zerolog.Logger
	session *ort.DynamicAdvancedSession
	cleanup func()
}

func NewONNXEngine(opts ONNXOptions, logger *zerolog.Logger) (Engine, error) {
	opts = opts.withDefaults()
	if err := initEnvironment(opts.LibraryPath); err != nil {
		return nil, err
	}
	e := &ONNXEngine{opts: opts, log: zerolog.Nop(), cleanup: func() {}}
	if logger != nil {
		e.log = logger.With().Str("component", "onnx").Logger()
	}
	return e, nil
}

func (e *ONNXEngine) inputNames() []string {
	names := []string{e.opts.TokensInput}
	if e.opts.LengthsInput != "" {
		names = append(names, e.opts.LengthsInput)
	}
	return append(names, e.opts.TonesInput, e.opts.SpeakersInput)
}

func (e *ONNXEngine) Load(ctx context.Context, modelPath string) error {
	e.release()
	local, cleanup, err := localModel(ctx, nil, modelPath)
	if err != nil {
		return err
	}
	session, err := ort.NewDynamicAdvancedSession(local, e.inputNames(), []string{e.opts.OutputName}, nil)
	if err != nil {
		cleanup()
		return fmt.Errorf("failed to create ONNX session: %w", err)
	}
	e.session = session
	e.cleanup = cleanup
	e.log.Info().Str("event", "session_ready").Str("model", modelPath).Strs("inputs", e.inputNames()).Msg("onnx session created")
	return nil
}

func (e *ONNXEngine) Run(ctx context.Context, feeds protocol.Feeds) ([]float32, error) {
	if e.session == nil {
		return nil, errors.New("inference session is nil")
	}
	n := int64(len(feeds.Tokens))

	var inputs []ort.ArbitraryTensor
	defer func() {
		for _, t := range inputs {
			t.Destroy()
		}
	}()
	add := func(shape ort.Shape, data []int64) error {
		t, err := ort.NewTensor(shape, data)
		if err != nil {
			return fmt.Errorf("failed to create input tensor: %w", err)
		}
		inputs = append(inputs, t)
		return nil
	}
	if err := add(ort.NewShape(1, n), feeds.Tokens); err != nil {
		return nil, err
	}
	if e.opts.LengthsInput != "" {
		if err := add(ort.NewShape(1), []int64{n}); err != nil {
			return nil, err
		}
	}
	if err := add(ort.NewShape(1, n), feeds.Tones); err != nil {
		return nil, err
	}
	if err := add(ort.NewShape(1), []int64{feeds.Speakers}); err != nil {
		return nil, err
	}

	if e.opts.OutputLen > 0 {
		out, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(e.opts.OutputLen)))
		if err != nil {
			return nil, fmt.Errorf("failed to create output tensor: %w", err)
		}
		defer out.Destroy()
		if err := e.session.Run(inputs, []ort.ArbitraryTensor{out}); err != nil {
			return nil, fmt.Errorf("inference failed: %w", err)
		}
		return append([]float32(nil), out.GetData()...), nil
	}

	// Let the runtime size the output.
	outputs := []ort.ArbitraryTensor{nil}
	if err := e.session.Run(inputs, outputs); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}
	defer outputs[0].Destroy()
	out, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("output %q is not a float32 tensor", e.opts.OutputName)
	}
	return append([]float32(nil), out.GetData()...), nil
}

func (e *ONNXEngine) release() {
	if e.session != nil {
		if err := e.session.Destroy(); err != nil {
			e.log.Warn().Err(err).Msg("failed to destroy session")
		}
		e.session = nil
	}
	e.cleanup()
	e.cleanup = func() {}
}

// Close releases the session. The runtime environment lives for the process.
func (e *ONNXEngine) Close() error {
	e.release()
	return nil
}
