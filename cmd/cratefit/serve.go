package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/piwi3910/CrateFit/internal/api"
	"github.com/piwi3910/CrateFit/internal/model"
	"github.com/piwi3910/CrateFit/internal/observability"
	"github.com/piwi3910/CrateFit/internal/persist"
	"github.com/piwi3910/CrateFit/internal/task"
)

const (
	serviceName     = "cratefit"
	shutdownTimeout = 15 * time.Second
	inventoryFile   = "containers.json"
)

func newServeCmd(flags *globalFlags) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the packing HTTP service",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.loadConfig()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.ServerAddr = addr
			}
			return serve(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address, overrides server_addr")
	return cmd
}

func serve(ctx context.Context, cfg model.AppConfig) error {
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(reg)

	if cfg.TracingEnabled {
		shutdownTracing, err := observability.SetupTracing(serviceName, os.Stdout)
		if err != nil {
			return err
		}
		defer func() {
			flushCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := shutdownTracing(flushCtx); err != nil {
				logger.Warn("flush traces", "error", err)
			}
		}()
	}

	var archive task.Archive
	if cfg.ArchiveEnabled {
		dir := filepath.Join(cfg.DataDir, "archive")
		badgerArchive, err := persist.OpenArchive(dir, logger)
		if err != nil {
			return err
		}
		defer badgerArchive.Close()
		archive = badgerArchive
		logger.Info("task archive opened", "dir", dir)
	}

	manager := task.NewManager(task.Config{
		Logger:        logger,
		Metrics:       metrics,
		Archive:       archive,
		MaxConcurrent: cfg.MaxConcurrent,
	})

	presets, err := persist.LoadInventory(filepath.Join(cfg.DataDir, inventoryFile))
	if err != nil {
		return fmt.Errorf("load container presets: %w", err)
	}

	defaults := model.DefaultSettings()
	cfg.ApplyToSettings(&defaults)

	server := api.New(api.Config{
		Tasks:       manager,
		Logger:      logger,
		Metrics:     metrics,
		Gatherer:    reg,
		Defaults:    defaults,
		Presets:     presets,
		ServiceName: serviceName,
		SubmitRate:  cfg.SubmitRate,
		SubmitBurst: cfg.SubmitBurst,
	})

	httpServer := &http.Server{
		Addr:              cfg.ServerAddr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.ServerAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			_ = manager.Shutdown(context.Background())
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", "error", err)
	}
	if err := manager.Shutdown(shutdownCtx); err != nil {
		logger.Error("task shutdown", "error", err)
		return err
	}
	return nil
}
