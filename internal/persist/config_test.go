package persist

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/piwi3910/CrateFit/internal/model"
)

func TestSaveAndLoadAppConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	cfg := model.DefaultAppConfig()
	cfg.ServerAddr = ":8080"
	cfg.DefaultAlgorithm = model.AlgorithmGreedy
	cfg.DefaultGenerations = 120
	cfg.ArchiveEnabled = true

	if err := SaveAppConfig(path, cfg); err != nil {
		t.Fatalf("SaveAppConfig failed: %v", err)
	}

	loaded, err := LoadAppConfig(path)
	if err != nil {
		t.Fatalf("LoadAppConfig failed: %v", err)
	}
	if loaded != cfg {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", loaded, cfg)
	}
}

func TestLoadAppConfigMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nonexistent", "config.yaml")

	cfg, err := LoadAppConfig(path)
	if err != nil {
		t.Fatalf("expected no error for missing file, got: %v", err)
	}
	if cfg != model.DefaultAppConfig() {
		t.Errorf("expected defaults, got %+v", cfg)
	}
}

func TestLoadAppConfigPartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("log_level: debug\nworkers: 3\n"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadAppConfig(path)
	if err != nil {
		t.Fatalf("LoadAppConfig failed: %v", err)
	}
	if cfg.LogLevel != "debug" || cfg.Workers != 3 {
		t.Errorf("file values not applied: %+v", cfg)
	}
	if cfg.ServerAddr != model.DefaultAppConfig().ServerAddr {
		t.Errorf("expected default server addr, got %q", cfg.ServerAddr)
	}
}

func TestLoadAppConfigInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("server_addr: [unterminated"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadAppConfig(path); err == nil {
		t.Fatal("expected error for invalid YAML, got nil")
	}
}

func TestSaveAppConfigCreatesDirectories(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "dir", "config.yaml")

	if err := SaveAppConfig(path, model.DefaultAppConfig()); err != nil {
		t.Fatalf("SaveAppConfig should create parent dirs: %v", err)
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Fatal("config file was not created")
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv(EnvServerAddr, ":9999")
	t.Setenv(EnvLogLevel, "warn")
	t.Setenv(EnvDataDir, "/var/lib/cratefit")
	t.Setenv(EnvWorkers, "not-a-number")

	cfg := model.DefaultAppConfig()
	ApplyEnvOverrides(&cfg)

	if cfg.ServerAddr != ":9999" {
		t.Errorf("expected :9999, got %q", cfg.ServerAddr)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("expected warn, got %q", cfg.LogLevel)
	}
	if cfg.DataDir != "/var/lib/cratefit" {
		t.Errorf("expected data dir override, got %q", cfg.DataDir)
	}
	if cfg.Workers != model.DefaultAppConfig().Workers {
		t.Errorf("unparseable workers should keep the default, got %d", cfg.Workers)
	}
}
