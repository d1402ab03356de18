package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"onnxd/internal/config"
	"onnxd/internal/logging"
	"onnxd/internal/protocol"
	"onnxd/pkg/types"
)

func newInferCmd(opts *options) *cobra.Command {
	var (
		tokens, tones string
		speaker       int64
		timeout       time.Duration
	)
	cmd := &cobra.Command{
		Use:     "infer",
		Short:   "Load the model and run a single inference",
		Example: "  onnxd infer --tokens 1,2,3 --tones 0,0,0 --speaker 0",
		RunE: func(cmd *cobra.Command, args []string) error {
			feeds, err := parseFeeds(tokens, tones, speaker)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			out, err := runOnce(ctx, opts.cfg, opts.configPath, feeds)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			return enc.Encode(out)
		},
	}
	f := cmd.Flags()
	f.StringVar(&tokens, "tokens", "", "Comma separated token ids")
	f.StringVar(&tones, "tones", "", "Comma separated tone ids, one per token")
	f.Int64Var(&speaker, "speaker", 0, "Speaker id")
	f.DurationVar(&timeout, "timeout", 2*time.Minute, "Overall deadline for load and inference")
	f.String("model-origin", "", "Directory or base URL the model file is resolved against")
	f.String("model-file", config.DefaultModelFile, "Model file name, path or URL")
	f.String("engine", config.DefaultEngine, "Worker channel: subprocess|inproc")
	f.String("worker-engine", config.DefaultWorkerEngine, "Worker engine: mock|onnx")
	f.Int("load-timeout-ms", config.DefaultLoadTimeoutMS, "Model load timeout in milliseconds")
	_ = cmd.MarkFlagRequired("tokens")
	addEngineFlags(f)
	return cmd
}

func parseFeeds(tokens, tones string, speaker int64) (protocol.Feeds, error) {
	feeds := protocol.Feeds{Speakers: speaker}
	var err error
	if feeds.Tokens, err = parseInts(tokens); err != nil {
		return feeds, fmt.Errorf("tokens: %w", err)
	}
	if tones == "" {
		feeds.Tones = make([]int64, len(feeds.Tokens))
	} else if feeds.Tones, err = parseInts(tones); err != nil {
		return feeds, fmt.Errorf("tones: %w", err)
	}
	return feeds, feeds.Validate()
}

func parseInts(s string) ([]int64, error) {
	parts := splitCSV(s)
	out := make([]int64, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

// runOnce starts a dispatcher, runs one inference and tears it down.
func runOnce(ctx context.Context, cfg config.Config, configPath string, feeds protocol.Feeds) (types.InferResponse, error) {
	logger, closer, err := logging.New(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat, File: cfg.LogFile})
	if err != nil {
		return types.InferResponse{}, err
	}
	defer closer.Close()

	d, err := newDispatcher(cfg, configPath, &logger, nil)
	if err != nil {
		return types.InferResponse{}, err
	}
	defer d.Terminate()

	start := time.Now()
	if err := d.Initialize(ctx); err != nil {
		return types.InferResponse{}, err
	}
	call, err := d.Submit(feeds)
	if err != nil {
		return types.InferResponse{}, err
	}
	result, err := d.Wait(ctx, call)
	if err != nil {
		return types.InferResponse{}, err
	}
	return types.InferResponse{Result: result, CallID: call.ID, DurationMS: time.Since(start).Milliseconds()}, nil
}
