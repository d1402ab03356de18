package worker

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"

	"onnxd/internal/common/fsutil"
)

// localModel returns a filesystem path for modelPath. URLs are downloaded to
// a temp file which cleanup removes; local paths are checked for existence.
func localModel(ctx context.Context, client *http.Client, modelPath string) (string, func(), error) {
	noop := func() {}
	if !fsutil.IsRemote(modelPath) {
		if _, err := os.Stat(modelPath); err != nil {
			return "", noop, fmt.Errorf("model file: %w", err)
		}
		return modelPath, noop, nil
	}
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, modelPath, nil)
	if err != nil {
		return "", noop, fmt.Errorf("fetch model: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", noop, fmt.Errorf("fetch model: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", noop, fmt.Errorf("fetch model %s: unexpected status %s", modelPath, resp.Status)
	}
	f, err := os.CreateTemp("", "onnxd-*-"+path.Base(req.URL.Path))
	if err != nil {
		return "", noop, fmt.Errorf("fetch model: %w", err)
	}
	cleanup := func() { _ = os.Remove(f.Name()) }
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		cleanup()
		return "", noop, fmt.Errorf("fetch model %s: %w", modelPath, err)
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", noop, fmt.Errorf("fetch model: %w", err)
	}
	return f.Name(), cleanup, nil
}
