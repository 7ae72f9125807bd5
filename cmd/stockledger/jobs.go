package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/erazemk/stockledger/internal/picking"
	"github.com/erazemk/stockledger/internal/snapshot"
	"github.com/erazemk/stockledger/internal/store"
)

// sweep expires stale picking lists and purges revocations of tokens that
// can no longer be presented.
func (a *app) sweep(ctx context.Context) (*picking.ExpireResult, int64, error) {
	res, err := a.picking.ExpireStale(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("expiring stale lists: %w", err)
	}
	purged, err := store.PurgeRevokedTokens(ctx, a.db, a.clock.Now())
	if err != nil {
		return res, 0, err
	}
	return res, purged, nil
}

// runSweeper calls sweep every interval until ctx is done.
func (a *app) runSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, _, err := a.sweep(ctx); err != nil {
				slog.Error("sweep failed", "error", err)
			}
		}
	}
}

func snapshotCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "snapshot",
		Short: "Write today's inventory snapshot to the blob store",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.load(cmd)
			if err != nil {
				return err
			}
			closeLog, err := setupLogger(cfg.Log)
			if err != nil {
				return err
			}
			defer closeLog()

			ctx := cmd.Context()
			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close(context.Background())

			runner := &snapshot.Runner{DB: a.db, Blobs: a.blobs, Clock: a.clock}
			key, err := runner.Run(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("Snapshot written: %s\n", key)
			return nil
		},
	}
}

func expireCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "expire-sessions",
		Short: "Release stale checks and delete abandoned picking lists",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.load(cmd)
			if err != nil {
				return err
			}
			closeLog, err := setupLogger(cfg.Log)
			if err != nil {
				return err
			}
			defer closeLog()

			ctx := cmd.Context()
			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close(context.Background())

			res, purged, err := a.sweep(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("Released %d list(s) back to the queue, deleted %d abandoned list(s).\n", len(res.Released), len(res.Deleted))
			fmt.Printf("Purged %d expired token revocation(s).\n", purged)
			return nil
		},
	}
}
