package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"onnxd/internal/config"
)

// options carries the persistent flags shared by every subcommand.
type options struct {
	configPath string
	cfg        config.Config
	// overrides holds the flag and ONNXD_* values so a reloaded config
	// file gets them applied again.
	overrides *viper.Viper
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "onnxd",
		Short:         "Serialized inference against a single ONNX model worker",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Persistent flags -> Config
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "Config file (.yaml, .json or .toml); env ONNXD_CONFIG")
	root.PersistentFlags().String("log-level", "", "Log level: debug|info|warn|error")
	root.PersistentFlags().String("log-format", "", "Log format: console|json")
	root.PersistentFlags().String("log-file", "", "Also write logs to this file, rotated")
	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		cfg, path, v, err := loadConfig(cmd, opts.configPath)
		if err != nil {
			return err
		}
		opts.cfg = cfg
		opts.overrides = v
		opts.configPath = path
		return nil
	}

	root.AddCommand(newServeCmd(opts), newInferCmd(opts), newWorkerCmd(opts), newVersionCmd())
	return root
}

// Config keys that flags and ONNXD_* variables may override, by type. Flags
// use the key as their name unless annotated with flagFor.
var (
	stringKeys = map[string]func(*config.Config) *string{
		"addr":               func(c *config.Config) *string { return &c.Addr },
		"grpc-addr":          func(c *config.Config) *string { return &c.GRPCAddr },
		"model-origin":       func(c *config.Config) *string { return &c.ModelOrigin },
		"model-file":         func(c *config.Config) *string { return &c.ModelFile },
		"engine":             func(c *config.Config) *string { return &c.Engine },
		"worker-bin":         func(c *config.Config) *string { return &c.WorkerBin },
		"worker-engine":      func(c *config.Config) *string { return &c.WorkerEngine },
		"log-level":          func(c *config.Config) *string { return &c.LogLevel },
		"log-format":         func(c *config.Config) *string { return &c.LogFormat },
		"log-file":           func(c *config.Config) *string { return &c.LogFile },
		"onnx-library-path":  func(c *config.Config) *string { return &c.ONNX.LibraryPath },
		"onnx-output-name":   func(c *config.Config) *string { return &c.ONNX.OutputName },
		"onnx-lengths-input": func(c *config.Config) *string { return &c.ONNX.LengthsInput },
	}
	intKeys = map[string]func(*config.Config) *int{
		"load-timeout-ms":    func(c *config.Config) *int { return &c.LoadTimeoutMS },
		"run-timeout-ms":     func(c *config.Config) *int { return &c.RunTimeoutMS },
		"stop-timeout-ms":    func(c *config.Config) *int { return &c.StopTimeoutMS },
		"onnx-output-len":    func(c *config.Config) *int { return &c.ONNX.OutputLen },
		"mock-dim":           func(c *config.Config) *int { return &c.Mock.Dim },
		"mock-load-delay-ms": func(c *config.Config) *int { return &c.Mock.LoadDelayMS },
	}
	boolKeys = map[string]func(*config.Config) *bool{
		"eager-load":   func(c *config.Config) *bool { return &c.EagerLoad },
		"tracing":      func(c *config.Config) *bool { return &c.Tracing },
		"cors-enabled": func(c *config.Config) *bool { return &c.CORSEnabled },
	}
)

// keyAnnotation on a flag names the config key it overrides when that
// differs from the flag name.
const keyAnnotation = "onnxd_config_key"

// flagFor declares that flag name of cmd overrides config key.
func flagFor(cmd *cobra.Command, name, key string) {
	_ = cmd.Flags().SetAnnotation(name, keyAnnotation, []string{key})
}

// loadConfig reads the config file (if any) and overlays ONNXD_* environment
// variables and explicitly set flags. Priority: flags > env > file > defaults.
// The returned viper instance re-applies the same overrides with
// applyOverrides.
func loadConfig(cmd *cobra.Command, path string) (config.Config, string, *viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix("ONNXD")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	if path == "" {
		path = v.GetString("config")
	}
	cfg := config.Default()
	if path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return cfg, path, v, fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}

	if err := bindFlags(v, cmd.Flags()); err != nil {
		return cfg, path, v, err
	}
	applyOverrides(v, &cfg)
	return cfg, path, v, nil
}

// applyOverrides lays flag and environment values over cfg and fills the
// remaining defaults.
func applyOverrides(v *viper.Viper, cfg *config.Config) {
	if v != nil {
		overlay(v, cfg)
	}
	cfg.ApplyDefaults()
}

func bindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	var err error
	fs.VisitAll(func(f *pflag.Flag) {
		if err != nil {
			return
		}
		key := f.Name
		if ann := f.Annotations[keyAnnotation]; len(ann) > 0 {
			key = ann[0]
		}
		if isConfigKey(key) {
			err = v.BindPFlag(key, f)
		}
	})
	return err
}

func isConfigKey(key string) bool {
	if _, ok := stringKeys[key]; ok {
		return true
	}
	if _, ok := intKeys[key]; ok {
		return true
	}
	if _, ok := boolKeys[key]; ok {
		return true
	}
	switch key {
	case "mock-fail-speaker", "worker-args", "cors-origins":
		return true
	}
	return false
}

func overlay(v *viper.Viper, cfg *config.Config) {
	for k, field := range stringKeys {
		if v.IsSet(k) {
			*field(cfg) = v.GetString(k)
		}
	}
	for k, field := range intKeys {
		if v.IsSet(k) {
			*field(cfg) = v.GetInt(k)
		}
	}
	for k, field := range boolKeys {
		if v.IsSet(k) {
			*field(cfg) = v.GetBool(k)
		}
	}
	if v.IsSet("mock-fail-speaker") {
		cfg.Mock.FailSpeaker = v.GetInt64("mock-fail-speaker")
	}
	if v.IsSet("worker-args") {
		cfg.WorkerArgs = splitCSV(v.GetString("worker-args"))
	}
	if v.IsSet("cors-origins") {
		cfg.CORSOrigins = splitCSV(v.GetString("cors-origins"))
	}
}

// splitCSV splits a comma separated list, trimming entries and dropping empty ones.
func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), "onnxd", version)
			return nil
		},
	}
}
