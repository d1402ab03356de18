package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"onnxd/internal/channel"
	"onnxd/internal/dispatcher"
	"onnxd/internal/worker"
	"onnxd/pkg/types"
)

func TestDispatcherOverHTTP(t *testing.T) {
	d := dispatcher.New(dispatcher.Config{
		Opener: channel.Pipe{New: func() channel.Responder {
			return worker.NewServer(worker.NewMockEngine(worker.MockOptions{FailSpeaker: 13}), nil)
		}},
		Endpoint:  "inproc",
		ModelPath: "/models/vits.onnx",
	})
	defer d.Terminate()
	h := NewMux(d)

	if w := postJSON(t, h, "/infer", `{"tokens":[1],"tones":[0],"speakers":0}`); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("infer before initialize: status=%d", w.Code)
	}
	if w := postJSON(t, h, "/initialize", ""); w.Code != http.StatusOK {
		t.Fatalf("initialize: status=%d body=%s", w.Code, w.Body.String())
	}

	w := postJSON(t, h, "/infer", `{"tokens":[1,2,3],"tones":[0,0,0],"speakers":0}`)
	if w.Code != http.StatusOK {
		t.Fatalf("infer: status=%d body=%s", w.Code, w.Body.String())
	}
	var out types.InferResponse
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("json: %v", err)
	}
	if len(out.Result) != 2 || out.Result[0] != 0.1 || out.Result[1] != 0.2 || out.CallID == "" {
		t.Fatalf("unexpected response: %+v", out)
	}

	w = postJSON(t, h, "/infer", `{"tokens":[1],"tones":[0],"speakers":13}`)
	if w.Code != http.StatusBadGateway || !strings.Contains(w.Body.String(), "speaker 13 not supported") {
		t.Fatalf("backend error: status=%d body=%s", w.Code, w.Body.String())
	}

	if w := postJSON(t, h, "/terminate", ""); w.Code != http.StatusOK {
		t.Fatalf("terminate: status=%d", w.Code)
	}
	if w := postJSON(t, h, "/infer", `{"tokens":[1],"tones":[0],"speakers":0}`); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("infer after terminate: status=%d", w.Code)
	}
}
