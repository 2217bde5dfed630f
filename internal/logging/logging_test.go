package logging

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNew_FanoutToFile(t *testing.T) {
	var console bytes.Buffer
	path := filepath.Join(t.TempDir(), "logs", "taskmaster.log")

	l, err := New(Options{Level: "info", Writer: &console, File: path})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	l.Info("status changed", slog.String("task", "3"))
	l.Debug("hidden")
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if !strings.Contains(console.String(), "status changed") {
		t.Errorf("console output = %q", console.String())
	}
	if strings.Contains(console.String(), "hidden") {
		t.Error("debug line written at info level")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), `"task":"3"`) {
		t.Errorf("file output = %q", data)
	}
}

func TestNew_LevelVarRetunes(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(Options{Level: "warn", Format: "json", Writer: &buf})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	l.Info("before")
	l.Level.Set(slog.LevelDebug)
	l.Debug("after")
	if strings.Contains(buf.String(), "before") || !strings.Contains(buf.String(), "after") {
		t.Errorf("output = %q", buf.String())
	}
}

func TestNew_Invalid(t *testing.T) {
	if _, err := New(Options{Level: "loud"}); err == nil {
		t.Error("expected error for unknown level")
	}
	if _, err := New(Options{Format: "xml"}); err == nil {
		t.Error("expected error for unknown format")
	}
}
