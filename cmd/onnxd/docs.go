package main

// General API documentation for swaggo. Run `swag init -g cmd/onnxd/docs.go -o docs` to regenerate.
//
// @title           onnxd API
// @version         1.0
// @description     HTTP API for a single-model ONNX inference dispatcher.
//
// @contact.name   onnxd maintainers
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http
