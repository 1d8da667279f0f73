package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_DefaultConfig(t *testing.T) {
	// Create a temporary config file
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	// Write minimal config
	configContent := `
logging:
  level: "INFO"

mount:
  mount_point: 'G:'
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	// Load config
	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	// Verify defaults were applied
	if cfg.Logging.Format != "text" {
		t.Errorf("Expected default format 'text', got %q", cfg.Logging.Format)
	}
	if cfg.Logging.Output != "stdout" {
		t.Errorf("Expected default output 'stdout', got %q", cfg.Logging.Output)
	}
	if cfg.ShutdownTimeout != 30*time.Second {
		t.Errorf("Expected default shutdown_timeout 30s, got %v", cfg.ShutdownTimeout)
	}
	if cfg.Mount.KeepaliveTimeout != 15*time.Second {
		t.Errorf("Expected default keepalive_timeout 15s, got %v", cfg.Mount.KeepaliveTimeout)
	}

	// Verify explicit values survived
	if cfg.Mount.MountPoint != "G:" {
		t.Errorf("Expected mount point 'G:', got %q", cfg.Mount.MountPoint)
	}
}

func TestLoad_NoConfigFile(t *testing.T) {
	// Loading with no config file returns a valid default config.
	tmpDir := t.TempDir()
	nonExistentPath := filepath.Join(tmpDir, "nonexistent.yaml")

	cfg, err := Load(nonExistentPath)
	if err != nil {
		t.Fatalf("Expected no error when loading default config, got: %v", err)
	}

	if cfg == nil {
		t.Fatal("Expected default config to be returned")
	}
	if cfg.Mount.MountPoint != `M:\` {
		t.Errorf("Expected default mount point 'M:\\', got %q", cfg.Mount.MountPoint)
	}
	if cfg.Metrics.Port != 9090 {
		t.Errorf("Expected default metrics port 9090, got %d", cfg.Metrics.Port)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "invalid.yaml")

	configContent := `
logging:
  level: INFO
  invalid yaml here [[[
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("Expected error with invalid YAML, got nil")
	}
}

func TestLoad_DurationStrings(t *testing.T) {
	// Duration fields accept human-readable strings like "45s" and "2m".
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
mount:
  keepalive_timeout: 45s
  gc_interval: 2m

shutdown_timeout: 1m
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Mount.KeepaliveTimeout != 45*time.Second {
		t.Errorf("Expected keepalive_timeout 45s, got %v", cfg.Mount.KeepaliveTimeout)
	}
	if cfg.Mount.GCInterval != 2*time.Minute {
		t.Errorf("Expected gc_interval 2m, got %v", cfg.Mount.GCInterval)
	}
	if cfg.ShutdownTimeout != time.Minute {
		t.Errorf("Expected shutdown_timeout 1m, got %v", cfg.ShutdownTimeout)
	}
}

func TestLoad_InvalidLevelRejected(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
logging:
  level: LOUD
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("Expected validation error for invalid log level")
	}
}

func TestSaveConfig_RoundTrip(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "saved", "config.yaml")

	original := GetDefaultConfig()
	original.Mount.MountPoint = "X:"
	original.Mount.Network = true
	original.Mount.UNCName = `\\ufsd\share`
	original.Mount.Label = "DATA"

	if err := SaveConfig(original, configPath); err != nil {
		t.Fatalf("SaveConfig failed: %v", err)
	}

	loaded, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load saved config: %v", err)
	}

	if loaded.Mount.MountPoint != "X:" {
		t.Errorf("Expected mount point 'X:', got %q", loaded.Mount.MountPoint)
	}
	if !loaded.Mount.Network {
		t.Error("Expected network flag to survive the round trip")
	}
	if loaded.Mount.UNCName != `\\ufsd\share` {
		t.Errorf("Expected UNC name to survive the round trip, got %q", loaded.Mount.UNCName)
	}
	if loaded.Mount.Label != "DATA" {
		t.Errorf("Expected volume label to survive the round trip, got %q", loaded.Mount.Label)
	}
}

func TestMustLoad_MissingExplicitFile(t *testing.T) {
	tmpDir := t.TempDir()
	missing := filepath.Join(tmpDir, "missing.yaml")

	_, err := MustLoad(missing)
	if err == nil {
		t.Fatal("Expected error for missing explicit config file")
	}
}
