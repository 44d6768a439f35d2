package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"warn", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
		{"", zapcore.InfoLevel},
		{"loud", zapcore.InfoLevel},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNewWriterJSON(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriter(Config{Level: "warn", Format: "json"}, &buf)
	l.Info("dropped")
	l.Warn("corrupt record", zap.String("key", "computer[0].label"))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1:\n%s", len(lines), buf.String())
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("decoding %q: %v", lines[0], err)
	}
	if entry["msg"] != "corrupt record" {
		t.Errorf("msg = %v, want %q", entry["msg"], "corrupt record")
	}
	if entry["key"] != "computer[0].label" {
		t.Errorf("key = %v, want %q", entry["key"], "computer[0].label")
	}
	if _, ok := entry["ts"]; ok {
		t.Error("entry has a timestamp, want none")
	}
}

func TestNewWriterConsole(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriter(Config{Level: "debug", Format: "console"}, &buf)
	l.Debug("loading runtime")
	if !strings.Contains(buf.String(), "DEBUG") || !strings.Contains(buf.String(), "loading runtime") {
		t.Errorf("console output = %q, want DEBUG loading runtime", buf.String())
	}
}

func TestNewToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "copycat.log")
	l, err := New(Config{Level: "info", Format: "json", OutputPath: path})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	l.Info("hello")
	l.Sync() //nolint:errcheck // flushing a file sink

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"msg":"hello"`) {
		t.Errorf("log file = %q, want hello entry", data)
	}
}

func TestContext(t *testing.T) {
	if l := FromContext(context.Background()); l == nil {
		t.Fatal("FromContext(empty) = nil, want no-op logger")
	}
	var buf bytes.Buffer
	l := NewWriter(Config{Format: "json"}, &buf)
	ctx := IntoContext(context.Background(), l)
	FromContext(ctx).Info("carried")
	if !strings.Contains(buf.String(), "carried") {
		t.Errorf("output = %q, want carried", buf.String())
	}
}
