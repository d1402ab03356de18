package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"onnxd/internal/protocol"
)

func newMockServer(opts MockOptions) *Server {
	return NewServer(NewMockEngine(opts), nil)
}

func TestServer_RunBeforeLoad(t *testing.T) {
	s := newMockServer(MockOptions{})
	resp := s.Handle(context.Background(), protocol.Run(3, protocol.Feeds{Tokens: []int64{1}, Tones: []int64{0}}))
	assert.Equal(t, protocol.StatusError, resp.Status)
	assert.Equal(t, ErrNotLoaded.Error(), resp.Error)
	assert.Equal(t, uint64(3), resp.Seq)
	assert.Equal(t, protocol.TypeRun, resp.Type)
}

func TestServer_LoadAndRun(t *testing.T) {
	s := newMockServer(MockOptions{FailSpeaker: 13})
	ctx := context.Background()

	resp := s.Handle(ctx, protocol.LoadModel("/models/vits.onnx"))
	require.True(t, resp.OK(), resp.Error)
	assert.Equal(t, protocol.TypeLoadModel, resp.Type)

	resp = s.Handle(ctx, protocol.Run(1, protocol.Feeds{Tokens: []int64{1, 2, 3}, Tones: []int64{0, 0, 0}}))
	require.True(t, resp.OK(), resp.Error)
	assert.Equal(t, []float32{0.1, 0.2}, resp.Result)
	assert.Equal(t, uint64(1), resp.Seq)

	resp = s.Handle(ctx, protocol.Run(2, protocol.Feeds{Tokens: []int64{1}, Tones: []int64{0}, Speakers: 13}))
	assert.False(t, resp.OK())
	assert.Equal(t, "speaker 13 not supported", resp.Error)

	resp = s.Handle(ctx, protocol.Run(3, protocol.Feeds{Tokens: []int64{1, 2}, Tones: []int64{0}}))
	assert.False(t, resp.OK())
	assert.Contains(t, resp.Error, "does not match")

	resp = s.Handle(ctx, protocol.Command{Type: protocol.TypeRun, Seq: 4})
	assert.False(t, resp.OK())

	resp = s.Handle(ctx, protocol.Command{Type: "reboot"})
	assert.False(t, resp.OK())
	assert.Contains(t, resp.Error, "unknown message type")
}

func TestServer_LoadEmptyPath(t *testing.T) {
	s := newMockServer(MockOptions{})
	resp := s.Handle(context.Background(), protocol.LoadModel(""))
	assert.False(t, resp.OK())
	assert.Equal(t, "model path is empty", resp.Error)
}

func TestServer_Serve(t *testing.T) {
	s := newMockServer(MockOptions{Dim: 3})
	in := strings.Join([]string{
		`{"type":"loadModel","modelPath":"/m.onnx"}`,
		`not json`,
		``,
		`{"type":"run","feeds":{"tokens":[1,2,3],"tones":[0,0,0],"speakers":0},"seq":9}`,
		`{"type":"run","feeds":{"tokens":[1],"tones":[0],"speakers":0}}`,
	}, "\n") + "\n"
	var out bytes.Buffer
	require.NoError(t, s.Serve(context.Background(), strings.NewReader(in), &out))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	assert.JSONEq(t, `{"type":"loadModel","status":"success","result":null}`, lines[0])
	assert.JSONEq(t, `{"type":"run","status":"success","result":[0.1,0.2,0.3],"seq":9}`, lines[1])

	var last protocol.Response
	require.NoError(t, json.Unmarshal([]byte(lines[2]), &last))
	assert.True(t, last.OK())
	assert.Zero(t, last.Seq)
}

func TestServer_ServeCanceled(t *testing.T) {
	s := newMockServer(MockOptions{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := s.Serve(ctx, strings.NewReader(`{"type":"loadModel","modelPath":"/m"}`+"\n"), &bytes.Buffer{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMockEngine_LoadDelayHonorsContext(t *testing.T) {
	e := NewMockEngine(MockOptions{LoadDelay: time.Second})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, e.Load(ctx, "/m.onnx"), context.DeadlineExceeded)
}

func TestNewEngine(t *testing.T) {
	e, err := NewEngine(Options{})
	require.NoError(t, err)
	assert.IsType(t, &MockEngine{}, e)

	_, err = NewEngine(Options{Engine: "tensorrt"})
	assert.Error(t, err)
}

func TestONNXOptionsDefaults(t *testing.T) {
	o := ONNXOptions{OutputName: "audio"}.withDefaults()
	assert.Equal(t, "x", o.TokensInput)
	assert.Equal(t, "tones", o.TonesInput)
	assert.Equal(t, "sid", o.SpeakersInput)
	assert.Equal(t, "audio", o.OutputName)
	assert.Empty(t, o.LengthsInput)
}
