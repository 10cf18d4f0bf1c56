package logging

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5/middleware"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"info", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"nonsense", slog.LevelInfo},
	}

	for _, tt := range tests {
		if got := parseLevel(tt.in); got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNewHandler_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewHandler(&buf, "info", "json"))
	logger.Info("sync completed", "project_id", "p1")

	out := buf.String()
	if !strings.Contains(out, `"msg":"sync completed"`) {
		t.Errorf("expected JSON msg field, got %s", out)
	}
	if !strings.Contains(out, `"project_id":"p1"`) {
		t.Errorf("expected project_id field, got %s", out)
	}
}

func TestNewHandler_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewHandler(&buf, "warn", "text"))
	logger.Info("hidden")
	logger.Warn("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info entry should be filtered at warn level: %s", out)
	}
	if !strings.Contains(out, "shown") {
		t.Errorf("warn entry missing: %s", out)
	}
}

func TestWriter_MirrorsToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sync.log")
	var stdout bytes.Buffer

	w := Writer(&stdout, FileOptions{Path: path, MaxSizeMB: 1, MaxBackups: 1})
	if _, err := w.Write([]byte("line\n")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	if stdout.String() != "line\n" {
		t.Errorf("stdout = %q, want %q", stdout.String(), "line\n")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if string(data) != "line\n" {
		t.Errorf("file = %q, want %q", string(data), "line\n")
	}
}

func TestWriter_NoFile(t *testing.T) {
	var stdout bytes.Buffer
	if w := Writer(&stdout, FileOptions{}); w != &stdout {
		t.Error("Writer() without a path should return stdout unchanged")
	}
}

func TestFromContext_RequestID(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(NewHandler(&buf, "info", "text")))
	defer slog.SetDefault(prev)

	ctx := context.WithValue(context.Background(), middleware.RequestIDKey, "req-42")
	FromContext(ctx).Info("hello")

	if !strings.Contains(buf.String(), "request_id=req-42") {
		t.Errorf("expected request_id in output, got %s", buf.String())
	}
}
