package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"onnxd/internal/common/fsutil"
)

// Defaults applied by ApplyDefaults.
const (
	DefaultAddr          = ":8080"
	DefaultModelFile     = "model.onnx"
	DefaultEngine        = "subprocess"
	DefaultWorkerEngine  = "mock"
	DefaultLoadTimeoutMS = 50000
	DefaultStopTimeoutMS = 2000
	DefaultLogLevel      = "info"
	DefaultLogFormat     = "console"
	DefaultMaxBodyBytes  = 1 << 20
)

// ApplyDefaults fills unspecified fields. run_timeout_ms stays 0 (disabled)
// and grpc_addr stays empty (no gRPC listener) unless set.
func (c *Config) ApplyDefaults() {
	if c.Addr == "" {
		c.Addr = DefaultAddr
	}
	if c.ModelFile == "" {
		c.ModelFile = DefaultModelFile
	}
	if c.Engine == "" {
		c.Engine = DefaultEngine
	}
	if c.WorkerEngine == "" {
		c.WorkerEngine = DefaultWorkerEngine
	}
	if c.LoadTimeoutMS <= 0 {
		c.LoadTimeoutMS = DefaultLoadTimeoutMS
	}
	if c.StopTimeoutMS <= 0 {
		c.StopTimeoutMS = DefaultStopTimeoutMS
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	if c.LogFormat == "" {
		c.LogFormat = DefaultLogFormat
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if c.Mock.Dim <= 0 {
		c.Mock.Dim = 2
	}
}

// Default returns a config with every default applied.
func Default() Config {
	var c Config
	c.ApplyDefaults()
	return c
}

// ModelPath is the resolved location sent to the worker with loadModel.
func (c Config) ModelPath() (string, error) {
	return ResolveModelPath(c.ModelOrigin, c.ModelFile)
}

func (c Config) LoadTimeout() time.Duration {
	return time.Duration(c.LoadTimeoutMS) * time.Millisecond
}

func (c Config) RunTimeout() time.Duration {
	return time.Duration(c.RunTimeoutMS) * time.Millisecond
}

func (c Config) StopTimeout() time.Duration {
	return time.Duration(c.StopTimeoutMS) * time.Millisecond
}

// ResolveModelPath combines a base origin with a model file name. URL origins
// are joined with "/", directory origins with the OS separator after "~"
// expansion. An empty origin, or a file that is already absolute or a URL,
// yields the file alone.
func ResolveModelPath(origin, file string) (string, error) {
	if file == "" {
		return "", fmt.Errorf("model file is empty")
	}
	if origin == "" || fsutil.IsRemote(file) || filepath.IsAbs(file) {
		return fsutil.ExpandHome(file)
	}
	if fsutil.IsRemote(origin) {
		return strings.TrimRight(origin, "/") + "/" + strings.TrimLeft(file, "/"), nil
	}
	dir, err := fsutil.ExpandHome(origin)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, file), nil
}
