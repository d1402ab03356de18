//go:build !swagger

package httpapi

import "github.com/go-chi/chi/v5"

// MountSwagger leaves /swagger unrouted in default builds so the binary does
// not carry the UI assets. Build with -tags=swagger to serve the onnxd API
// document.
func MountSwagger(chi.Router) {}
