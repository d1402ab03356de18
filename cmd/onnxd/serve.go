package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"google.golang.org/grpc"

	"onnxd/internal/config"
	"onnxd/internal/dispatcher"
	"onnxd/internal/health"
	"onnxd/internal/httpapi"
	"onnxd/internal/logging"
	"onnxd/internal/telemetry"
)

const shutdownTimeout = 5 * time.Second

func newServeCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API in front of the dispatcher",
		Example: "  onnxd serve --config onnxd.yaml\n" +
			"  ONNXD_ENGINE=inproc onnxd serve --model-file ~/models/vits.onnx --eager-load",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts)
		},
	}
	f := cmd.Flags()
	f.String("addr", config.DefaultAddr, "HTTP listen address")
	f.String("grpc-addr", "", "gRPC health listen address (empty disables)")
	f.String("model-origin", "", "Directory or base URL the model file is resolved against")
	f.String("model-file", config.DefaultModelFile, "Model file name, path or URL")
	f.String("engine", config.DefaultEngine, "Worker channel: subprocess|inproc")
	f.String("worker-bin", "", "Worker binary (default: this executable)")
	f.String("worker-args", "", "Comma separated worker arguments")
	f.String("worker-engine", config.DefaultWorkerEngine, "Worker engine: mock|onnx")
	f.Int("load-timeout-ms", config.DefaultLoadTimeoutMS, "Model load timeout in milliseconds")
	f.Int("run-timeout-ms", 0, "Per-inference timeout in milliseconds (0 disables)")
	f.Int("stop-timeout-ms", config.DefaultStopTimeoutMS, "Grace period for the worker to exit")
	f.Bool("eager-load", false, "Load the model at startup")
	f.Bool("tracing", false, "Export OpenTelemetry spans to stderr")
	f.Bool("cors-enabled", false, "Enable CORS")
	f.String("cors-origins", "", "Comma separated allowed origins")
	addEngineFlags(f)
	return cmd
}

func runServe(ctx context.Context, opts *options) error {
	cfg, configPath := opts.cfg, opts.configPath
	logger, closer, err := logging.New(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat, File: cfg.LogFile})
	if err != nil {
		return err
	}
	defer closer.Close()

	var traceShutdown func(context.Context) error
	if cfg.Tracing {
		traceShutdown, err = telemetry.Setup(version, os.Stderr)
		if err != nil {
			logger.Warn().Err(err).Msg("tracing disabled")
		}
	}

	reporter := health.NewReporter(&logger)
	d, err := newDispatcher(cfg, configPath, &logger, dispatcher.MultiPublisher{reporter})
	if err != nil {
		return err
	}

	baseCtx, cancelBase := context.WithCancel(context.Background())
	defer cancelBase()
	httpapi.SetBaseContext(baseCtx)
	httpapi.SetLogger(logger)
	httpapi.SetMaxBodyBytes(cfg.MaxBodyBytes)
	httpapi.SetCORSOptions(cfg.CORSEnabled, cfg.CORSOrigins)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpapi.NewMux(d),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 2)
	go func() {
		logger.Info().Str("addr", cfg.Addr).Str("model", d.ModelPath()).Str("engine", cfg.Engine).Msg("onnxd listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var gs *grpc.Server
	if cfg.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			_ = srv.Close()
			d.Terminate()
			return err
		}
		gs = health.NewGRPCServer(reporter)
		go func() {
			logger.Info().Str("addr", cfg.GRPCAddr).Msg("grpc health listening")
			if err := gs.Serve(lis); err != nil {
				errCh <- err
			}
		}()
	}

	if configPath != "" {
		w, err := config.NewWatcher(configPath, reloadHandler(&logger, d, opts.overrides), config.WithLogger(&logger))
		if err != nil {
			logger.Warn().Err(err).Str("path", configPath).Msg("config watch disabled")
		} else {
			defer w.Close()
		}
	}

	if cfg.EagerLoad {
		go func() {
			if err := d.Initialize(baseCtx); err != nil {
				logger.Error().Err(err).Msg("eager load failed")
			}
		}()
	}

	// Graceful shutdown (Ctrl+C / SIGTERM)
	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	var runErr error
	select {
	case <-sigCtx.Done():
		logger.Info().Msg("shutting down")
	case runErr = <-errCh:
		logger.Error().Err(runErr).Msg("server error")
	}

	reporter.Shutdown()
	cancelBase()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("graceful shutdown error")
	}
	if gs != nil {
		gs.GracefulStop()
	}
	d.Terminate()
	if traceShutdown != nil {
		if err := traceShutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("trace shutdown")
		}
	}
	return runErr
}

// reloadHandler returns the config watcher callback. The reloaded file goes
// through the same flag and environment overlay as at startup before the
// live settings are applied.
func reloadHandler(logger *zerolog.Logger, d *dispatcher.Dispatcher, overrides *viper.Viper) func(*config.Config, error) {
	return func(c *config.Config, err error) {
		if err != nil {
			logger.Warn().Err(err).Msg("config reload rejected")
			return
		}
		next := *c
		applyOverrides(overrides, &next)
		applyReload(logger, d, next)
	}
}

// applyReload applies the settings that can change without a restart.
func applyReload(logger *zerolog.Logger, d *dispatcher.Dispatcher, c config.Config) {
	if err := logging.SetLevel(c.LogLevel); err != nil {
		logger.Warn().Err(err).Msg("log level not applied")
	}
	d.SetRunTimeout(c.RunTimeout())
}
