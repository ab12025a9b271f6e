package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "upstairsd.yaml")
	if err := os.WriteFile(path, []byte(contents), 0600); err != nil {
		t.Fatalf("write config file: %v", err)
	}
	return path
}

func TestLoadAppliesDefaultsWithNoFile(t *testing.T) {
	cfg, _, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ExtentSizeBlocks != 131072 {
		t.Errorf("ExtentSizeBlocks = %d, want default 131072", cfg.ExtentSizeBlocks)
	}
	if cfg.SocketPath != "./upstairs.sock" {
		t.Errorf("SocketPath = %q, want default", cfg.SocketPath)
	}
	if cfg.ReconnectMax != 30*time.Second {
		t.Errorf("ReconnectMax = %v, want 30s default", cfg.ReconnectMax)
	}
}

func TestLoadOverridesFromFile(t *testing.T) {
	path := writeConfigFile(t, `
region_dir: /var/lib/upstairs/region0
extent_size_blocks: 2048
extent_count: 16
targets:
  - 10.0.0.1:3810
  - 10.0.0.2:3810
  - 10.0.0.3:3810
socket_path: /var/run/upstairs.sock
log_level: debug
`)

	cfg, _, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.RegionDir != "/var/lib/upstairs/region0" {
		t.Errorf("RegionDir = %q", cfg.RegionDir)
	}
	if cfg.ExtentSizeBlocks != 2048 || cfg.ExtentCount != 16 {
		t.Errorf("extent sizing = %d/%d, want 2048/16", cfg.ExtentSizeBlocks, cfg.ExtentCount)
	}
	if cfg.Targets[0] != "10.0.0.1:3810" || cfg.Targets[2] != "10.0.0.3:3810" {
		t.Errorf("Targets = %v", cfg.Targets)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
	}
}

func TestLoadRejectsMissingFile(t *testing.T) {
	if _, _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected an error for a missing config file")
	}
}
