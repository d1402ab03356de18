//go:build !onnx

package worker

import (
	"errors"

	"github.com/rs/zerolog"
)

// ErrRuntimeUnavailable is returned when the binary was built without ONNX
// Runtime support.
var ErrRuntimeUnavailable = errors.New("onnx runtime not available: build with -tags onnx")

func NewONNXEngine(opts ONNXOptions, logger *zerolog.Logger) (Engine, error) {
	return nil, ErrRuntimeUnavailable
}
