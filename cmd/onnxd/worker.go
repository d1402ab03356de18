package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"onnxd/internal/config"
	"onnxd/internal/logging"
	"onnxd/internal/worker"
)

func newWorkerCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:    "worker",
		Short:  "Run the model worker on stdin/stdout",
		Long:   "Run the model worker. It reads loadModel and run commands as JSON lines on stdin and answers on stdout; logs go to stderr.",
		Hidden: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := opts.cfg
			logger, closer, err := logging.New(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat, File: cfg.LogFile, Writer: os.Stderr})
			if err != nil {
				return err
			}
			defer closer.Close()
			logger = logger.With().Str("component", "worker").Int("pid", os.Getpid()).Logger()

			eng, err := worker.NewEngine(engineOptions(cfg, &logger))
			if err != nil {
				return err
			}
			srv := worker.NewServer(eng, &logger)
			defer srv.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			logger.Info().Str("engine", cfg.WorkerEngine).Msg("worker ready")
			return srv.Serve(ctx, os.Stdin, os.Stdout)
		},
	}
	f := cmd.Flags()
	f.String("engine", config.DefaultWorkerEngine, "Engine: mock|onnx")
	flagFor(cmd, "engine", "worker-engine")
	addEngineFlags(f)
	return cmd
}
