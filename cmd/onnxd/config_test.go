package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"

	"onnxd/internal/config"
	"onnxd/internal/protocol"
	"onnxd/pkg/types"
)

// commandWith returns the named subcommand of a fresh root after parsing args.
func commandWith(t *testing.T, name string, args ...string) *cobra.Command {
	t.Helper()
	root := newRootCmd()
	cmd, _, err := root.Find([]string{name})
	if err != nil {
		t.Fatalf("find %s: %v", name, err)
	}
	if err := cmd.ParseFlags(args); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	return cmd
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "onnxd.yaml")
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return p
}

// writeConfigAt replaces p by rename so a watcher never reads a partial file.
func writeConfigAt(t *testing.T, p, body string) {
	t.Helper()
	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if err := os.Rename(tmp, p); err != nil {
		t.Fatalf("rename config: %v", err)
	}
}

var errTestReload = errors.New("config validation failed")

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, path, _, err := loadConfig(commandWith(t, "serve"), "")
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if path != "" || cfg.Addr != config.DefaultAddr || cfg.Engine != config.DefaultEngine || cfg.RunTimeoutMS != 0 {
		t.Fatalf("unexpected defaults: path=%q cfg=%+v", path, cfg)
	}
}

func TestLoadConfig_Precedence(t *testing.T) {
	p := writeConfig(t, "addr: \":9000\"\nrun_timeout_ms: 100\nengine: inproc\nlog_level: debug\n")
	t.Setenv("ONNXD_RUN_TIMEOUT_MS", "250")
	t.Setenv("ONNXD_LOG_LEVEL", "warn")

	cfg, _, _, err := loadConfig(commandWith(t, "serve", "--log-level", "error", "--eager-load"), p)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Addr != ":9000" {
		t.Fatalf("file value lost: addr=%q", cfg.Addr)
	}
	if cfg.Engine != "inproc" {
		t.Fatalf("file value lost: engine=%q", cfg.Engine)
	}
	if cfg.RunTimeoutMS != 250 {
		t.Fatalf("env should override file: run_timeout_ms=%d", cfg.RunTimeoutMS)
	}
	if cfg.LogLevel != "error" {
		t.Fatalf("flag should override env: log_level=%q", cfg.LogLevel)
	}
	if !cfg.EagerLoad {
		t.Fatalf("flag not applied: eager_load")
	}
}

func TestLoadConfig_ConfigFromEnv(t *testing.T) {
	p := writeConfig(t, "model_file: vits.onnx\n")
	t.Setenv("ONNXD_CONFIG", p)
	cfg, path, _, err := loadConfig(commandWith(t, "serve"), "")
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if path != p || cfg.ModelFile != "vits.onnx" {
		t.Fatalf("path=%q model_file=%q", path, cfg.ModelFile)
	}
}

func TestLoadConfig_InvalidFile(t *testing.T) {
	p := writeConfig(t, "engine: carrier-pigeon\n")
	if _, _, _, err := loadConfig(commandWith(t, "serve"), p); err == nil {
		t.Fatalf("expected schema error")
	}
}

func TestLoadConfig_WorkerEngineFlag(t *testing.T) {
	cfg, _, _, err := loadConfig(commandWith(t, "worker", "--engine", "onnx", "--mock-fail-speaker", "13"), "")
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.WorkerEngine != "onnx" {
		t.Fatalf("worker_engine=%q", cfg.WorkerEngine)
	}
	if cfg.Engine != config.DefaultEngine {
		t.Fatalf("--engine on worker must not change the channel engine: %q", cfg.Engine)
	}
	if cfg.Mock.FailSpeaker != 13 {
		t.Fatalf("fail_speaker=%d", cfg.Mock.FailSpeaker)
	}
}

func TestWorkerCommandDefaultsToSelf(t *testing.T) {
	cfg := config.Default()
	bin, args, err := workerCommand(cfg, "/etc/onnxd.yaml")
	if err != nil {
		t.Fatalf("workerCommand: %v", err)
	}
	self, _ := os.Executable()
	if bin != self {
		t.Fatalf("bin=%q want %q", bin, self)
	}
	if args[0] != "worker" || args[2] != config.DefaultWorkerEngine || args[len(args)-1] != "/etc/onnxd.yaml" {
		t.Fatalf("args=%v", args)
	}
}

func TestInferInproc(t *testing.T) {
	cfg := config.Default()
	cfg.Engine = engineInproc
	cfg.ModelFile = "/models/vits.onnx"
	cfg.LogLevel = "error"
	out, err := runOnce(context.Background(), cfg, "", mustFeeds(t, "1,2,3"))
	if err != nil {
		t.Fatalf("runOnce: %v", err)
	}
	if len(out.Result) != 2 || out.Result[0] != 0.1 || out.CallID == "" {
		t.Fatalf("unexpected result: %+v", out)
	}
}

func TestInferCommand(t *testing.T) {
	root := newRootCmd()
	var stdout bytes.Buffer
	root.SetOut(&stdout)
	root.SetArgs([]string{"infer", "--engine", "inproc", "--model-file", "/models/vits.onnx", "--log-level", "error", "--tokens", "1,2", "--tones", "0,0", "--speaker", "1"})
	if err := root.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	var out types.InferResponse
	if err := json.Unmarshal(stdout.Bytes(), &out); err != nil {
		t.Fatalf("output %q: %v", stdout.String(), err)
	}
	if len(out.Result) != 2 {
		t.Fatalf("unexpected result: %+v", out)
	}
}

func TestVersionCommand(t *testing.T) {
	root := newRootCmd()
	var stdout bytes.Buffer
	root.SetOut(&stdout)
	root.SetArgs([]string{"version"})
	if err := root.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if stdout.String() != "onnxd dev\n" {
		t.Fatalf("version output %q", stdout.String())
	}
}

func mustFeeds(t *testing.T, tokens string) protocol.Feeds {
	t.Helper()
	f, err := parseFeeds(tokens, "", 0)
	if err != nil {
		t.Fatalf("parseFeeds: %v", err)
	}
	return f
}
