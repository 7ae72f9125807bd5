package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/erazemk/stockledger/internal/api"
	"github.com/erazemk/stockledger/internal/auth"
	"github.com/erazemk/stockledger/internal/picking"
	"github.com/erazemk/stockledger/internal/snapshot"
	"github.com/erazemk/stockledger/internal/store"
)

func serveCmd(g *globalFlags) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.load(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				cfg.Server.Addr = addr
			}

			closeLog, err := setupLogger(cfg.Log)
			if err != nil {
				return err
			}
			defer closeLog()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			return serve(ctx, a)
		},
	}
	cmd.Flags().StringVarP(&addr, "addr", "a", "", "listen address (default from config: :8080)")
	return cmd
}

func serve(ctx context.Context, a *app) error {
	cfg := a.cfg

	// Load JWT secret from database (auto-generated on first run).
	secret, err := store.GetJWTSecret(ctx, a.db)
	if err != nil {
		a.Close(context.Background())
		return fmt.Errorf("getting JWT secret: %w", err)
	}

	hub, err := picking.NewHub(a.picking, a.broker)
	if err != nil {
		a.Close(context.Background())
		return fmt.Errorf("starting workspace hub: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/api/", api.NewRouter(api.Deps{
		DB:        a.db,
		Clock:     a.clock,
		Issuer:    auth.NewIssuer(secret, cfg.Auth.TokenExpiry, a.clock),
		Ledger:    a.ledger,
		Mover:     a.mover,
		Picking:   a.picking,
		Hub:       hub,
		Locations: a.resolver,
		Blobs:     a.blobs,
		Metrics:   a.metrics,
	}))
	if cfg.Metrics.Enabled {
		mux.Handle("GET "+cfg.Metrics.Path, a.metrics.Handler())
	}
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := a.db.PingContext(r.Context()); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ok"))
	})

	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           mux,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	jobs, cancelJobs := context.WithCancel(ctx)
	defer cancelJobs()
	if cfg.Picking.SweepInterval > 0 {
		go a.runSweeper(jobs, cfg.Picking.SweepInterval)
	}
	if cfg.Snapshot.Interval > 0 {
		runner := &snapshot.Runner{DB: a.db, Blobs: a.blobs, Clock: a.clock}
		go runner.Schedule(jobs, cfg.Snapshot.Interval)
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", cfg.Server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received")
	case serveErr = <-errCh:
		slog.Error("server error", "error", serveErr)
	}
	cancelJobs()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}
	hub.Close(shutdownCtx)
	if err := a.Close(shutdownCtx); err != nil {
		slog.Error("closing services", "error", err)
	}

	slog.Info("server stopped")
	return serveErr
}
