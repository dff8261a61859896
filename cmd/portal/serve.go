package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/example/library-portal/internal/catalog"
	"github.com/example/library-portal/internal/config"
	httptransport "github.com/example/library-portal/internal/http"
	"github.com/example/library-portal/internal/localstore"
	"github.com/example/library-portal/internal/logging"
	"github.com/example/library-portal/internal/platform"
	"github.com/example/library-portal/internal/profile"
	"github.com/example/library-portal/internal/session"
)

const pruneInterval = time.Hour

func newServeCommand() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the portal HTTP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to the YAML configuration file")
	return cmd
}

func runServe(parent context.Context, configPath string) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	logger := logging.New(cfg.LogFormat, cfg.LogLevel)

	store, err := localstore.Open(cfg.LocalStoreDSN, cfg.SessionSecret, logger)
	if err != nil {
		return fmt.Errorf("open local store: %w", err)
	}
	defer func() {
		if cerr := store.Close(); cerr != nil {
			logger.Error("failed to close local store", "error", cerr)
		}
	}()
	if err := store.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate local store: %w", err)
	}

	client, err := platform.New(platform.Config{
		BaseURL: cfg.PlatformURL,
		APIKey:  cfg.PlatformAPIKey,
		Logger:  logger,
	})
	if err != nil {
		return fmt.Errorf("configure platform client: %w", err)
	}

	resolver := profile.NewResolver(client, logger)
	registry := session.NewRegistry(func(portalToken string) *session.Store {
		return session.NewStore(session.Config{
			Auth:     client,
			Data:     client,
			Resolver: resolver,
			Keeper:   store.Keeper(portalToken),
			Logger:   logger,
		})
	}, cfg.SessionTTL, time.Now, logger)

	cat, err := catalog.Load()
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}

	srv := httptransport.NewServer(httptransport.ServerConfig{
		Registry: registry,
		Platform: client,
		Catalog:  cat,
		Logger:   logger,
	})

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// No write timeout: the admin streams hold their responses open.
		IdleTimeout: 60 * time.Second,
	}

	go pruneLoop(ctx, logger, registry, store)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("failed to shut down server", "error", err)
		}
	}()

	logger.Info("portal listening", "addr", server.Addr, "version", version)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// pruneLoop periodically evicts idle resident stores and drops persisted
// sessions whose refresh window has closed.
func pruneLoop(ctx context.Context, logger *slog.Logger, registry *session.Registry, store *localstore.Store) {
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			evicted := registry.Prune()
			dropped, err := store.PruneExpired(ctx, time.Now())
			if err != nil {
				logger.Error("session prune failed", "error", err)
				continue
			}
			if evicted > 0 || dropped > 0 {
				logger.Info("session prune completed", "evicted_stores", evicted, "dropped_sessions", dropped)
			}
		}
	}
}
