package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/divyanshwrite/worldflow/internal/config"
	"github.com/divyanshwrite/worldflow/internal/di"
	"github.com/divyanshwrite/worldflow/internal/domain/graph"
	"github.com/divyanshwrite/worldflow/internal/observability"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Open the workspace and serve it to the renderer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			return serve(cmd.Context(), opts.configPath, cfg)
		},
	}
}

func serve(parent context.Context, configPath string, cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c, cleanup, err := di.InitializeContainer(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize container: %w", err)
	}
	defer cleanup()
	defer c.Logger.Sync() //nolint:errcheck

	logger := c.Logger
	if cfg.Workspace != "" {
		if _, err := c.Sessions.Open(ctx, graph.WorkspaceID(cfg.Workspace)); err != nil {
			return fmt.Errorf("failed to open workspace %s: %w", cfg.Workspace, err)
		}
	} else {
		logger.Warn("No workspace configured; writes are rejected until one is opened")
	}

	watcher, err := config.NewWatcher(configPath, cfg, logger)
	if err != nil {
		return err
	}
	defer watcher.Stop()
	watcher.OnChange(func(next *config.Config) {
		if err := observability.SetLevel(c.Logging.Level, next.LogLevel); err != nil {
			logger.Warn("Ignoring log level from reloaded config", zap.Error(err))
			return
		}
		logger.Info("Log level updated", zap.String("level", next.LogLevel))
	})

	srv := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      c.Router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting server",
			zap.String("address", cfg.Server.Address),
			zap.String("environment", string(cfg.Environment)),
			zap.String("backend", cfg.Backend),
			zap.String("feed", cfg.Feed.Driver),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", zap.Error(err))
		return err
	}
	logger.Info("Server stopped")
	return nil
}
