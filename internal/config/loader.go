package config

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

//go:embed schema.json
var schemaJSON string

var schema = jsonschema.MustCompileString("onnxd-config.schema.json", schemaJSON)

// Config holds runtime parameters for the daemon and its worker.
// Zero values mean "unspecified"; ApplyDefaults fills them in.
type Config struct {
	Addr          string     `json:"addr" yaml:"addr" toml:"addr"`
	GRPCAddr      string     `json:"grpc_addr" yaml:"grpc_addr" toml:"grpc_addr"`
	ModelOrigin   string     `json:"model_origin" yaml:"model_origin" toml:"model_origin"`
	ModelFile     string     `json:"model_file" yaml:"model_file" toml:"model_file"`
	Engine        string     `json:"engine" yaml:"engine" toml:"engine"`
	WorkerBin     string     `json:"worker_bin" yaml:"worker_bin" toml:"worker_bin"`
	WorkerArgs    []string   `json:"worker_args" yaml:"worker_args" toml:"worker_args"`
	WorkerEngine  string     `json:"worker_engine" yaml:"worker_engine" toml:"worker_engine"`
	LoadTimeoutMS int        `json:"load_timeout_ms" yaml:"load_timeout_ms" toml:"load_timeout_ms"`
	RunTimeoutMS  int        `json:"run_timeout_ms" yaml:"run_timeout_ms" toml:"run_timeout_ms"`
	StopTimeoutMS int        `json:"stop_timeout_ms" yaml:"stop_timeout_ms" toml:"stop_timeout_ms"`
	EagerLoad     bool       `json:"eager_load" yaml:"eager_load" toml:"eager_load"`
	LogLevel      string     `json:"log_level" yaml:"log_level" toml:"log_level"`
	LogFormat     string     `json:"log_format" yaml:"log_format" toml:"log_format"`
	LogFile       string     `json:"log_file" yaml:"log_file" toml:"log_file"`
	MaxBodyBytes  int64      `json:"max_body_bytes" yaml:"max_body_bytes" toml:"max_body_bytes"`
	Tracing       bool       `json:"tracing" yaml:"tracing" toml:"tracing"`
	CORSEnabled   bool       `json:"cors_enabled" yaml:"cors_enabled" toml:"cors_enabled"`
	CORSOrigins   []string   `json:"cors_origins" yaml:"cors_origins" toml:"cors_origins"`
	ONNX          ONNXConfig `json:"onnx" yaml:"onnx" toml:"onnx"`
	Mock          MockConfig `json:"mock" yaml:"mock" toml:"mock"`
}

// ONNXConfig configures the ONNX Runtime worker engine.
type ONNXConfig struct {
	LibraryPath   string `json:"library_path" yaml:"library_path" toml:"library_path"`
	TokensInput   string `json:"tokens_input" yaml:"tokens_input" toml:"tokens_input"`
	TonesInput    string `json:"tones_input" yaml:"tones_input" toml:"tones_input"`
	SpeakersInput string `json:"speakers_input" yaml:"speakers_input" toml:"speakers_input"`
	LengthsInput  string `json:"lengths_input" yaml:"lengths_input" toml:"lengths_input"`
	OutputName    string `json:"output_name" yaml:"output_name" toml:"output_name"`
	OutputLen     int    `json:"output_len" yaml:"output_len" toml:"output_len"`
}

// MockConfig configures the mock worker engine.
type MockConfig struct {
	Dim         int   `json:"dim" yaml:"dim" toml:"dim"`
	FailSpeaker int64 `json:"fail_speaker" yaml:"fail_speaker" toml:"fail_speaker"`
	LoadDelayMS int   `json:"load_delay_ms" yaml:"load_delay_ms" toml:"load_delay_ms"`
}

// Load reads a configuration file based on its extension, validates it
// against the embedded schema and applies defaults.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	ext := strings.ToLower(filepath.Ext(path))
	var unmarshal func([]byte, any) error
	switch ext {
	case ".yaml", ".yml":
		unmarshal = yaml.Unmarshal
	case ".json":
		unmarshal = json.Unmarshal
	case ".toml":
		unmarshal = toml.Unmarshal
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	var raw any
	if err := unmarshal(b, &raw); err != nil {
		return cfg, fmt.Errorf("invalid %s: %w", strings.TrimPrefix(ext, "."), err)
	}
	if err := Validate(raw); err != nil {
		return cfg, err
	}
	if err := unmarshal(b, &cfg); err != nil {
		return cfg, err
	}
	cfg.ApplyDefaults()
	return cfg, nil
}

// Validate checks a decoded document against the config schema. Documents
// from any of the supported formats are normalized through JSON first.
func Validate(raw any) error {
	if raw == nil {
		// An empty file is a valid, all-defaults config.
		return nil
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	var doc any
	if err := json.Unmarshal(b, &doc); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	return nil
}
