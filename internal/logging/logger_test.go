package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"flyknight/netplay/internal/config"
)

func testLoggingConfig(t *testing.T) config.LoggingConfig {
	t.Helper()
	return config.LoggingConfig{
		Level:     "debug",
		Path:      filepath.Join(t.TempDir(), "netplay.log"),
		MaxSizeMB: 1,
	}
}

func readLogLines(t *testing.T, path string) []map[string]any {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	var lines []map[string]any
	for _, raw := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		if raw == "" {
			continue
		}
		var entry map[string]any
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			t.Fatalf("log line is not JSON: %q: %v", raw, err)
		}
		lines = append(lines, entry)
	}
	return lines
}

func TestLoggerWritesStructuredJSON(t *testing.T) {
	cfg := testLoggingConfig(t)
	logger, err := New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	logger.Info("session started", Int("player_id", 3), String("addr", "10.0.0.2:41234"))
	if err := logger.Sync(); err != nil {
		t.Fatalf("Sync failed: %v", err)
	}

	lines := readLogLines(t, cfg.Path)
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d", len(lines))
	}
	entry := lines[0]
	if entry["message"] != "session started" || entry["level"] != "info" {
		t.Fatalf("unexpected entry: %v", entry)
	}
	if entry["player_id"] != float64(3) || entry["addr"] != "10.0.0.2:41234" {
		t.Fatalf("fields missing from entry: %v", entry)
	}
	if entry["service"] != "netplay" {
		t.Fatalf("service field missing: %v", entry)
	}
	if _, ok := entry["timestamp"]; !ok {
		t.Fatalf("timestamp missing: %v", entry)
	}
}

func TestLoggerLevelFiltering(t *testing.T) {
	cfg := testLoggingConfig(t)
	cfg.Level = "warn"
	logger, err := New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	logger.Debug("ignored")
	logger.Info("ignored too")
	logger.Warn("kept")
	_ = logger.Sync()

	lines := readLogLines(t, cfg.Path)
	if len(lines) != 1 || lines[0]["message"] != "kept" {
		t.Fatalf("level filtering broken: %v", lines)
	}
}

func TestLoggerWithFields(t *testing.T) {
	cfg := testLoggingConfig(t)
	logger, err := New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	scoped := logger.With(Int("session_id", 1))
	scoped.Info("frame dropped")
	_ = logger.Sync()

	lines := readLogLines(t, cfg.Path)
	if len(lines) != 1 || lines[0]["session_id"] != float64(1) {
		t.Fatalf("scoped field missing: %v", lines)
	}
}

func TestLoggerRendersErrors(t *testing.T) {
	cfg := testLoggingConfig(t)
	logger, err := New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	logger.Error("broadcast failed", Error(os.ErrDeadlineExceeded))
	_ = logger.Sync()

	lines := readLogLines(t, cfg.Path)
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d", len(lines))
	}
	rendered, ok := lines[0]["error"].(string)
	if !ok || rendered == "" {
		t.Fatalf("error field not rendered as string: %v", lines[0])
	}
}

func TestNewRequiresPath(t *testing.T) {
	if _, err := New(config.LoggingConfig{Level: "info", MaxSizeMB: 1}); err == nil {
		t.Fatal("expected error for missing log path")
	}
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	cfg := testLoggingConfig(t)
	cfg.Level = "verbose"
	if _, err := New(cfg); err == nil {
		t.Fatal("expected error for unknown level")
	}
}
