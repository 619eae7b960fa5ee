// Package persist stores CrateFit state on disk: the YAML application
// config, the archive of finished tasks and JSON backups of both.
package persist

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/piwi3910/CrateFit/internal/model"
)

// Environment variables that override the config file.
const (
	EnvServerAddr = "CRATEFIT_ADDR"
	EnvLogLevel   = "CRATEFIT_LOG_LEVEL"
	EnvDataDir    = "CRATEFIT_DATA_DIR"
	EnvWorkers    = "CRATEFIT_WORKERS"
)

// DefaultConfigDir returns the default directory for application configuration.
// On all platforms this is ~/.cratefit/
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".cratefit")
}

// DefaultConfigPath returns the default path for the application config file.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// SaveAppConfig persists an AppConfig to the given path as YAML.
// It creates any missing parent directories automatically.
func SaveAppConfig(path string, config model.AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	data, err := yaml.Marshal(config)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// LoadAppConfig reads an AppConfig from the given path. Keys missing from
// the file keep their defaults. If the file does not exist, it returns
// DefaultAppConfig with no error.
func LoadAppConfig(path string) (model.AppConfig, error) {
	config := model.DefaultAppConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return config, nil
		}
		return model.AppConfig{}, err
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return model.AppConfig{}, err
	}
	return config, nil
}

// ApplyEnvOverrides replaces config values with any set CRATEFIT_*
// environment variables.
func ApplyEnvOverrides(config *model.AppConfig) {
	config.ServerAddr = getEnvString(EnvServerAddr, config.ServerAddr)
	config.LogLevel = getEnvString(EnvLogLevel, config.LogLevel)
	config.DataDir = getEnvString(EnvDataDir, config.DataDir)
	config.Workers = getEnvInt(EnvWorkers, config.Workers)
}

func getEnvString(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

// getEnvInt ignores values that do not parse.
func getEnvInt(key string, fallback int) int {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
