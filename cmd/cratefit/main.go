// CrateFit packs boxes into a container.
//
// It runs either as an HTTP service that accepts asynchronous packing
// tasks, or as a one-shot command that packs a CSV/Excel item list and
// writes the result as PDF, labels, DXF or XLSX.
//
// Build:
//
//	go build -o cratefit ./cmd/cratefit
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/piwi3910/CrateFit/internal/logging"
	"github.com/piwi3910/CrateFit/internal/model"
	"github.com/piwi3910/CrateFit/internal/persist"
)

type globalFlags struct {
	configPath string
	logLevel   string
	logFormat  string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:          "cratefit",
		Short:        "3D bin packing service and CLI",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&flags.configPath, "config", persist.DefaultConfigPath(), "path to the YAML config file")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&flags.logFormat, "log-format", "", "log format (auto, text, json)")

	root.AddCommand(newServeCmd(flags))
	root.AddCommand(newPackCmd(flags))
	root.AddCommand(newTasksCmd(flags))
	root.AddCommand(newContainersCmd(flags))
	return root
}

// loadConfig reads the config file, applies environment and flag
// overrides and validates the result.
func (f *globalFlags) loadConfig() (model.AppConfig, error) {
	cfg, err := persist.LoadAppConfig(f.configPath)
	if err != nil {
		return model.AppConfig{}, fmt.Errorf("load config %s: %w", f.configPath, err)
	}
	persist.ApplyEnvOverrides(&cfg)
	if f.logLevel != "" {
		cfg.LogLevel = f.logLevel
	}
	if f.logFormat != "" {
		cfg.LogFormat = f.logFormat
	}
	if cfg.DataDir == "" {
		cfg.DataDir = persist.DefaultConfigDir()
	}
	if err := cfg.Validate(); err != nil {
		return model.AppConfig{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func newLogger(cfg model.AppConfig) (*slog.Logger, error) {
	return logging.New(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
}
