// Package protocol defines the messages exchanged between the dispatcher and
// the worker process. Messages are tagged by their Type field and travel as
// newline-delimited JSON.
package protocol

import (
	"errors"
	"fmt"
)

// MessageType tags a command or response.
type MessageType string

const (
	TypeLoadModel MessageType = "loadModel"
	TypeRun       MessageType = "run"
)

// Status is the outcome reported by the worker.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Feeds is the input payload for one inference.
type Feeds struct {
	Tokens   []int64 `json:"tokens"`
	Tones    []int64 `json:"tones"`
	Speakers int64   `json:"speakers"`
}

// Validate checks the shape of the feeds. The dispatcher never calls it;
// callers at the edge (HTTP, CLI) do.
func (f Feeds) Validate() error {
	if len(f.Tokens) == 0 {
		return errors.New("tokens must not be empty")
	}
	if len(f.Tones) != len(f.Tokens) {
		return fmt.Errorf("tones length %d does not match tokens length %d", len(f.Tones), len(f.Tokens))
	}
	if f.Speakers < 0 {
		return fmt.Errorf("invalid speaker id %d", f.Speakers)
	}
	return nil
}

// Command is a message sent to the worker.
type Command struct {
	Type      MessageType `json:"type"`
	ModelPath string      `json:"modelPath,omitempty"`
	Feeds     *Feeds      `json:"feeds,omitempty"`
	// Seq is stamped on run commands and echoed back by workers that support it.
	Seq uint64 `json:"seq,omitempty"`
}

// Response is a message received from the worker.
type Response struct {
	Type   MessageType `json:"type"`
	Status Status      `json:"status"`
	Result []float32   `json:"result"`
	Error  string      `json:"error,omitempty"`
	Seq    uint64      `json:"seq,omitempty"`
}

// LoadModel builds a loadModel command.
func LoadModel(modelPath string) Command {
	return Command{Type: TypeLoadModel, ModelPath: modelPath}
}

// Run builds a run command carrying feeds and a sequence number.
func Run(seq uint64, feeds Feeds) Command {
	f := feeds
	return Command{Type: TypeRun, Feeds: &f, Seq: seq}
}

// Success builds a success response for cmd.
func Success(cmd Command, result []float32) Response {
	return Response{Type: cmd.Type, Status: StatusSuccess, Result: result, Seq: cmd.Seq}
}

// Failure builds an error response for cmd.
func Failure(cmd Command, err error) Response {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return Response{Type: cmd.Type, Status: StatusError, Error: msg, Seq: cmd.Seq}
}

// OK reports whether the worker reported success.
func (r Response) OK() bool { return r.Status == StatusSuccess }
