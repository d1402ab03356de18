package types

// InferRequest is the body of POST /infer: the feeds for one inference.
type InferRequest struct {
	// Token ids of the utterance. Required, non-empty.
	// example: [1,2,3]
	Tokens []int64 `json:"tokens" example:"1,2,3"`
	// Tone ids, one per token.
	// example: [0,0,0]
	Tones []int64 `json:"tones" example:"0,0,0"`
	// Speaker identifier.
	// example: 0
	Speakers int64 `json:"speakers" example:"0"`
}

// InferResponse is returned by POST /infer.
type InferResponse struct {
	// Model output vector.
	// example: [0.1,0.2]
	Result []float32 `json:"result"`
	// Identifier assigned to the call by the dispatcher.
	// example: 6f1c2f8e-7c55-4a52-9f43-1c8f0e3b5c11
	CallID string `json:"call_id" example:"6f1c2f8e-7c55-4a52-9f43-1c8f0e3b5c11"`
	// Wall time from submission to result, in milliseconds.
	// example: 12
	DurationMS int64 `json:"duration_ms" example:"12"`
}

// ModelResponse is returned by GET /model.
type ModelResponse struct {
	// Resolved model path sent to the worker with loadModel.
	// example: /var/lib/onnxd/models/vits.onnx
	Path string `json:"path" example:"/var/lib/onnxd/models/vits.onnx"`
	// True once the worker acknowledged the load.
	// example: true
	Ready bool `json:"ready" example:"true"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: invalid JSON body
	Error string `json:"error" example:"invalid JSON body"`
	// HTTP status code.
	// example: 400
	Code int `json:"code" example:"400"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	// Dispatcher state: uninitialized, loading, ready, failed or terminated.
	// example: ready
	State string `json:"state" example:"ready"`
	// Resolved model path.
	// example: /var/lib/onnxd/models/vits.onnx
	ModelPath string `json:"model_path" example:"/var/lib/onnxd/models/vits.onnx"`
	// True once the model is loaded.
	// example: true
	ModelReady bool `json:"model_ready" example:"true"`
	// Requests waiting behind the in-flight one.
	// example: 2
	QueueLen int `json:"queue_len" example:"2"`
	// Whether a run is outstanding on the worker channel.
	// example: true
	InFlight bool `json:"inflight" example:"true"`
	// ID of the in-flight call, if any.
	CurrentCallID string `json:"current_call_id,omitempty"`
	// Last error observed by the dispatcher (if any).
	LastError string `json:"last_error,omitempty"`
	// Successful model loads since start.
	// example: 1
	LoadsTotal uint64 `json:"loads_total" example:"1"`
	// Completed calls since start, whatever the outcome.
	// example: 42
	RunsTotal uint64 `json:"runs_total" example:"42"`
	// Uptime of the server in seconds.
	// example: 3600
	UptimeSeconds int64 `json:"uptime_seconds" example:"3600"`
	// Server time in unix seconds.
	// example: 1700000000
	ServerTimeUnix int64 `json:"server_time_unix" example:"1700000000"`
}
