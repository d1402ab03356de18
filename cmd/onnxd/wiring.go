package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"onnxd/internal/channel"
	"onnxd/internal/common/fsutil"
	"onnxd/internal/config"
	"onnxd/internal/dispatcher"
	"onnxd/internal/protocol"
	"onnxd/internal/worker"
)

const (
	engineSubprocess = "subprocess"
	engineInproc     = "inproc"
)

// newDispatcher wires a dispatcher to the worker selected by cfg.Engine.
func newDispatcher(cfg config.Config, configPath string, logger *zerolog.Logger, pub dispatcher.EventPublisher) (*dispatcher.Dispatcher, error) {
	modelPath, err := cfg.ModelPath()
	if err != nil {
		return nil, fmt.Errorf("model path: %w", err)
	}
	opener, endpoint, err := newOpener(cfg, configPath, logger)
	if err != nil {
		return nil, err
	}
	return dispatcher.New(dispatcher.Config{
		Opener:      opener,
		Endpoint:    endpoint,
		ModelPath:   modelPath,
		LoadTimeout: cfg.LoadTimeout(),
		RunTimeout:  cfg.RunTimeout(),
		Logger:      logger,
		Publisher:   pub,
	}), nil
}

func newOpener(cfg config.Config, configPath string, logger *zerolog.Logger) (channel.Opener, string, error) {
	switch cfg.Engine {
	case engineInproc:
		return channel.Pipe{New: func() channel.Responder {
			eng, err := worker.NewEngine(engineOptions(cfg, logger))
			if err != nil {
				return failingResponder(err)
			}
			return worker.NewServer(eng, logger)
		}}, engineInproc, nil
	case engineSubprocess, "":
		bin, args, err := workerCommand(cfg, configPath)
		if err != nil {
			return nil, "", err
		}
		return &channel.Subprocess{
			Args:        args,
			StopTimeout: cfg.StopTimeout(),
			Logger:      logger,
		}, bin, nil
	default:
		return nil, "", fmt.Errorf("unknown engine %q", cfg.Engine)
	}
}

// workerCommand resolves the worker binary and its arguments. Without
// worker_bin the running executable is re-invoked with the worker command.
func workerCommand(cfg config.Config, configPath string) (string, []string, error) {
	if cfg.WorkerBin != "" {
		bin, err := fsutil.ResolveExecutable(cfg.WorkerBin)
		if err != nil {
			return "", nil, fmt.Errorf("worker binary: %w", err)
		}
		return bin, cfg.WorkerArgs, nil
	}
	self, err := os.Executable()
	if err != nil {
		return "", nil, fmt.Errorf("locate executable: %w", err)
	}
	args := []string{"worker", "--engine", cfg.WorkerEngine, "--log-level", cfg.LogLevel, "--log-format", "json"}
	args = append(args, engineArgs(cfg)...)
	if configPath != "" {
		args = append(args, "--config", configPath)
	}
	return self, append(args, cfg.WorkerArgs...), nil
}

// engineArgs renders the engine settings as worker flags.
func engineArgs(cfg config.Config) []string {
	args := []string{
		"--mock-dim", strconv.Itoa(cfg.Mock.Dim),
		"--mock-fail-speaker", strconv.FormatInt(cfg.Mock.FailSpeaker, 10),
		"--mock-load-delay-ms", strconv.Itoa(cfg.Mock.LoadDelayMS),
	}
	if cfg.ONNX.LibraryPath != "" {
		args = append(args, "--onnx-library-path", cfg.ONNX.LibraryPath)
	}
	if cfg.ONNX.OutputName != "" {
		args = append(args, "--onnx-output-name", cfg.ONNX.OutputName)
	}
	if cfg.ONNX.LengthsInput != "" {
		args = append(args, "--onnx-lengths-input", cfg.ONNX.LengthsInput)
	}
	if cfg.ONNX.OutputLen > 0 {
		args = append(args, "--onnx-output-len", strconv.Itoa(cfg.ONNX.OutputLen))
	}
	return args
}

// addEngineFlags registers the mock and onnx engine flags on fs.
func addEngineFlags(fs *pflag.FlagSet) {
	fs.Int("mock-dim", 2, "Mock output length")
	fs.Int64("mock-fail-speaker", 0, "Mock fails runs for this speaker id (0 disables)")
	fs.Int("mock-load-delay-ms", 0, "Mock load delay in milliseconds")
	fs.String("onnx-library-path", "", "ONNX Runtime shared library")
	fs.String("onnx-output-name", "", "Graph output name")
	fs.String("onnx-lengths-input", "", "Optional graph input receiving the token count")
	fs.Int("onnx-output-len", 0, "Fixed output length (0: runtime allocated)")
}

func engineOptions(cfg config.Config, logger *zerolog.Logger) worker.Options {
	return worker.Options{
		Engine: cfg.WorkerEngine,
		Mock: worker.MockOptions{
			Dim:         cfg.Mock.Dim,
			FailSpeaker: cfg.Mock.FailSpeaker,
			LoadDelay:   time.Duration(cfg.Mock.LoadDelayMS) * time.Millisecond,
		},
		ONNX: worker.ONNXOptions{
			LibraryPath:   cfg.ONNX.LibraryPath,
			TokensInput:   cfg.ONNX.TokensInput,
			TonesInput:    cfg.ONNX.TonesInput,
			SpeakersInput: cfg.ONNX.SpeakersInput,
			LengthsInput:  cfg.ONNX.LengthsInput,
			OutputName:    cfg.ONNX.OutputName,
			OutputLen:     cfg.ONNX.OutputLen,
		},
		Logger: logger,
	}
}

// failingResponder answers every command with err. It stands in for a worker
// whose engine could not be built so the error surfaces through loadModel.
func failingResponder(err error) channel.Responder {
	return channel.ResponderFunc(func(ctx context.Context, cmd protocol.Command) protocol.Response {
		return protocol.Failure(cmd, err)
	})
}
