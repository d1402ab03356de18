package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func resetLevel(t *testing.T) {
	prev := zerolog.GlobalLevel()
	t.Cleanup(func() { zerolog.SetGlobalLevel(prev) })
}

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]zerolog.Level{
		"":      zerolog.InfoLevel,
		"debug": zerolog.DebugLevel,
		"WARN":  zerolog.WarnLevel,
		"error": zerolog.ErrorLevel,
		"trace": zerolog.TraceLevel,
	} {
		got, err := ParseLevel(in)
		if err != nil || got != want {
			t.Fatalf("ParseLevel(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}

func TestNew_JSONAndLiveLevel(t *testing.T) {
	resetLevel(t)
	var buf bytes.Buffer
	log, closer, err := New(Options{Level: "info", Format: "json", Writer: &buf})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer closer.Close()

	log.Debug().Msg("hidden")
	log.Info().Str("event", "load_ready").Msg("shown")
	if strings.Contains(buf.String(), "hidden") {
		t.Fatalf("debug line written at info level: %s", buf.String())
	}
	var line map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line); err != nil {
		t.Fatalf("not json: %v (%s)", err, buf.String())
	}
	if line["event"] != "load_ready" || line["message"] != "shown" {
		t.Fatalf("unexpected line: %v", line)
	}

	if err := SetLevel("debug"); err != nil {
		t.Fatalf("SetLevel: %v", err)
	}
	buf.Reset()
	log.Debug().Msg("now visible")
	if !strings.Contains(buf.String(), "now visible") {
		t.Fatalf("debug line missing after SetLevel")
	}
}

func TestNew_File(t *testing.T) {
	resetLevel(t)
	p := filepath.Join(t.TempDir(), "onnxd.log")
	var buf bytes.Buffer
	log, closer, err := New(Options{Level: "info", Format: "console", File: p, Writer: &buf})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	log.Info().Msg("to both")
	if err := closer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	b, err := os.ReadFile(p)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(b), "to both") || !strings.Contains(buf.String(), "to both") {
		t.Fatalf("file=%q console=%q", b, buf.String())
	}
}

func TestNew_BadFormat(t *testing.T) {
	resetLevel(t)
	if _, _, err := New(Options{Format: "xml"}); err == nil {
		t.Fatalf("expected error for unknown format")
	}
}
