package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestNew_TextDefault(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Options{Writer: &buf})

	logger.Debug("hidden")
	logger.Info("visible", "k", "v")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("debug message logged at info level: %q", out)
	}
	if !strings.Contains(out, "visible") || !strings.Contains(out, "k=v") {
		t.Errorf("unexpected text output: %q", out)
	}
}

func TestNew_JSONDebug(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Options{Writer: &buf, Format: "JSON", Debug: true})

	logger.Debug("debug message")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v (%q)", err, buf.String())
	}
	if entry["msg"] != "debug message" {
		t.Errorf("msg = %v, want %q", entry["msg"], "debug message")
	}
	if entry["level"] != "DEBUG" {
		t.Errorf("level = %v, want DEBUG", entry["level"])
	}
}

func TestNewPrintfAdapter_NilLogger(t *testing.T) {
	adapter := NewPrintfAdapter(nil)
	if adapter.Logger() == nil {
		t.Error("expected default logger, got nil")
	}
}

func TestPrintfAdapter_Levels(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	adapter := NewPrintfAdapter(logger)

	adapter.Errorf("compaction failed: %d\n", 3)
	adapter.Warningf("slow write %s", "x")
	adapter.Infof("opened")
	adapter.Debugf("value log %d", 1)

	out := buf.String()
	for _, want := range []string{
		`level=ERROR msg="compaction failed: 3"`,
		`level=WARN msg="slow write x"`,
		`level=INFO msg=opened`,
		`level=DEBUG msg="value log 1"`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}
