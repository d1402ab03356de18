// Package docs holds the OpenAPI description served under /swagger when the
// binary is built with the swagger tag.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {
            "name": "onnxd maintainers"
        },
        "license": {
            "name": "MIT",
            "url": "https://opensource.org/licenses/MIT"
        },
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/initialize": {
            "post": {
                "produces": ["application/json"],
                "summary": "Load the model",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/types.ModelResponse"}},
                    "502": {"description": "Model load failed", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "503": {"description": "Worker channel unavailable", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "504": {"description": "Model load timed out", "schema": {"$ref": "#/definitions/types.ErrorResponse"}}
                }
            }
        },
        "/infer": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "summary": "Run one inference",
                "parameters": [
                    {"description": "Feeds", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/types.InferRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/types.InferResponse"}},
                    "400": {"description": "Invalid feeds", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "413": {"description": "Body too large", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "415": {"description": "Unsupported media type", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "502": {"description": "Backend error", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "503": {"description": "Not initialized", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "504": {"description": "Inference timed out", "schema": {"$ref": "#/definitions/types.ErrorResponse"}}
                }
            }
        },
        "/terminate": {
            "post": {
                "produces": ["application/json"],
                "summary": "Tear down the worker and fail pending calls",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/types.StatusResponse"}}
                }
            }
        },
        "/model": {
            "get": {
                "produces": ["application/json"],
                "summary": "Model path and readiness",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/types.ModelResponse"}}
                }
            }
        },
        "/status": {
            "get": {
                "produces": ["application/json"],
                "summary": "Dispatcher status",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/types.StatusResponse"}}
                }
            }
        },
        "/healthz": {
            "get": {
                "produces": ["text/plain"],
                "summary": "Liveness",
                "responses": {"200": {"description": "ok"}}
            }
        },
        "/readyz": {
            "get": {
                "produces": ["text/plain"],
                "summary": "Readiness",
                "responses": {
                    "200": {"description": "ready"},
                    "503": {"description": "current state"}
                }
            }
        }
    },
    "definitions": {
        "types.ErrorResponse": {
            "type": "object",
            "properties": {
                "code": {"type": "integer", "example": 503},
                "error": {"type": "string", "example": "dispatcher not initialized"}
            }
        },
        "types.InferRequest": {
            "type": "object",
            "properties": {
                "speakers": {"type": "integer", "example": 0},
                "tokens": {"type": "array", "items": {"type": "integer"}, "example": [0, 12, 45, 0]},
                "tones": {"type": "array", "items": {"type": "integer"}, "example": [0, 1, 3, 0]}
            }
        },
        "types.InferResponse": {
            "type": "object",
            "properties": {
                "call_id": {"type": "string"},
                "duration_ms": {"type": "integer", "example": 42},
                "result": {"type": "array", "items": {"type": "number"}, "example": [0.1, 0.2]}
            }
        },
        "types.ModelResponse": {
            "type": "object",
            "properties": {
                "path": {"type": "string", "example": "/models/vits.onnx"},
                "ready": {"type": "boolean", "example": true}
            }
        },
        "types.StatusResponse": {
            "type": "object",
            "properties": {
                "current_call_id": {"type": "string"},
                "inflight": {"type": "boolean"},
                "last_error": {"type": "string"},
                "loads_total": {"type": "integer"},
                "model_path": {"type": "string"},
                "model_ready": {"type": "boolean"},
                "queue_len": {"type": "integer"},
                "runs_total": {"type": "integer"},
                "server_time_unix": {"type": "integer"},
                "state": {"type": "string", "example": "ready"},
                "uptime_seconds": {"type": "integer"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{"http"},
	Title:            "onnxd API",
	Description:      "HTTP API for a single-model ONNX inference dispatcher.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
