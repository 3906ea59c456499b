package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	t.Run("creates log file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "logs", "missionctl.log")

		logger, err := New(path, LevelDebug)
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		logger.Info("hello")
		if err := logger.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}

		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("log file was not created: %v", err)
		}
		if !strings.Contains(string(data), `"msg":"hello"`) {
			t.Errorf("expected JSON entry, got %q", data)
		}
	})

	t.Run("writes to stderr when path is empty", func(t *testing.T) {
		logger, err := New("", LevelInfo)
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		if logger.out.file != nil {
			t.Error("expected no file for stderr logger")
		}
		if err := logger.Close(); err != nil {
			t.Errorf("Close on stderr logger failed: %v", err)
		}
	})
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"Error":   slog.LevelError,
		"bogus":   slog.LevelInfo,
		"":        slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestChildLoggersCarryContext(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWriter(&buf, LevelDebug).WithTick("t-1").WithTask("proj-001")
	logger.Debug("evaluated", "role", "dev")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	for key, want := range map[string]string{"tick_id": "t-1", "task_id": "proj-001", "role": "dev"} {
		if entry[key] != want {
			t.Errorf("%s = %v, want %s", key, entry[key], want)
		}
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWriter(&buf, LevelWarn)
	logger.Info("skipped")
	logger.Warn("kept")

	if strings.Contains(buf.String(), "skipped") {
		t.Error("info entry should be filtered at WARN")
	}
	if !strings.Contains(buf.String(), "kept") {
		t.Error("warn entry missing")
	}
}

func TestCloseSharedWithChildren(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missionctl.log")
	parent, err := New(path, LevelInfo)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	child := parent.WithTick("t-1").WithTask("proj-001")
	child.Info("before close")

	if err := parent.Close(); err != nil {
		t.Fatalf("parent Close failed: %v", err)
	}
	if err := child.Close(); err != nil {
		t.Errorf("child Close after parent should be a no-op, got %v", err)
	}
	if err := parent.Close(); err != nil {
		t.Errorf("second parent Close should be a no-op, got %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(data), `"task_id":"proj-001"`) {
		t.Errorf("expected child entry in log, got %s", data)
	}
}

func TestCloseWithoutFile(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriter(&buf, LevelInfo)
	if err := l.WithComponent("scheduler").Close(); err != nil {
		t.Errorf("Close without file should be a no-op, got %v", err)
	}
}
