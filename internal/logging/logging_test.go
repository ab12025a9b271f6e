package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func TestNewWritesJSONToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "upstairsd.log")
	log := New(Options{Path: path, Level: slog.LevelInfo})
	log.Info("daemon started", "socket", "/tmp/upstairs.sock")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}

	var entry map[string]any
	lines := bytes.Split(bytes.TrimSpace(data), []byte("\n"))
	if len(lines) == 0 {
		t.Fatalf("log file is empty")
	}
	if err := json.Unmarshal(lines[0], &entry); err != nil {
		t.Fatalf("log line is not valid JSON: %v", err)
	}
	if entry["msg"] != "daemon started" {
		t.Errorf("msg = %v, want %q", entry["msg"], "daemon started")
	}
	if entry["socket"] != "/tmp/upstairs.sock" {
		t.Errorf("socket = %v", entry["socket"])
	}
}

func TestNewTeesToAlsoWriter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "upstairsd.log")
	var buf bytes.Buffer
	log := New(Options{Path: path, Level: slog.LevelInfo, Also: &buf})
	log.Info("hello")

	if buf.Len() == 0 {
		t.Fatalf("Also writer received nothing")
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"error":   slog.LevelError,
		"garbage": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
