package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"

	"github.com/erazemk/stockledger/internal/blob"
	"github.com/erazemk/stockledger/internal/clock"
	"github.com/erazemk/stockledger/internal/config"
	"github.com/erazemk/stockledger/internal/db"
	"github.com/erazemk/stockledger/internal/feed"
	"github.com/erazemk/stockledger/internal/ledger"
	"github.com/erazemk/stockledger/internal/locations"
	"github.com/erazemk/stockledger/internal/metrics"
	"github.com/erazemk/stockledger/internal/movement"
	"github.com/erazemk/stockledger/internal/picking"
)

// app holds the wired services shared by the server and the maintenance
// commands.
type app struct {
	cfg      *config.Config
	db       *sqlx.DB
	clock    clock.Clock
	broker   feed.Broker
	metrics  *metrics.Metrics
	blobs    blob.Store
	resolver *locations.Resolver
	ledger   *ledger.Ledger
	mover    *movement.Mover
	picking  *picking.Service
}

func openBroker(cfg config.FeedConfig) (feed.Broker, error) {
	if cfg.Driver == "nats" {
		return feed.ConnectNATS(cfg.URL, cfg.SubjectPrefix)
	}
	return feed.NewMemory(), nil
}

// newApp opens the database (creating the schema and first admin when
// needed) and wires every service.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	database, password, err := initDatabase(cfg.Database.DSN, cfg.Auth.AdminUser)
	if err != nil {
		return nil, err
	}
	if password != "" {
		printInitResult(cfg.Database.DSN, cfg.Auth.AdminUser, password)
		fmt.Println()
	}
	slog.Info("database ready", "driver", db.DriverFor(cfg.Database.DSN))

	a := &app{cfg: cfg, db: database, clock: clock.Real{}, metrics: metrics.New()}

	a.broker, err = openBroker(cfg.Feed)
	if err != nil {
		database.Close()
		return nil, err
	}

	a.blobs, err = blob.Open(ctx, blob.Config{
		Driver:    cfg.Snapshot.Driver,
		Dir:       cfg.Snapshot.Dir,
		Bucket:    cfg.Snapshot.Bucket,
		Region:    cfg.Snapshot.Region,
		Endpoint:  cfg.Snapshot.Endpoint,
		PathStyle: cfg.Snapshot.PathStyle,
	})
	if err != nil {
		a.broker.Close()
		database.Close()
		return nil, fmt.Errorf("opening blob store: %w", err)
	}

	a.resolver = locations.New(database, a.clock)
	a.ledger, err = ledger.New(database, a.clock, a.broker, a.metrics, a.resolver, ledger.Config{
		CommitWindow: cfg.Ledger.CommitWindow,
		MergeWindow:  cfg.Ledger.MergeWindow,
		AuditRetries: cfg.Ledger.AuditRetries,
		RetryBackoff: cfg.Ledger.RetryBackoff,
		OnFlush: func(res ledger.FlushResult) {
			if res.Err != nil {
				slog.Warn("window rolled back", "slot", res.Key.String(), "user", res.Actor.Name, "error", res.Err)
			}
		},
	})
	if err != nil {
		a.broker.Close()
		database.Close()
		return nil, fmt.Errorf("starting ledger: %w", err)
	}
	a.mover = movement.New(database, a.clock, a.ledger, a.resolver, a.broker, a.metrics)
	a.picking = picking.NewService(database, a.clock, a.ledger, a.broker, a.metrics, picking.Config{
		SaveDebounce: cfg.Picking.SaveDebounce,
		StaleAfter:   cfg.Picking.StaleAfter,
	})
	return a, nil
}

// Close commits pending ledger windows and releases connections.
func (a *app) Close(ctx context.Context) error {
	return errors.Join(
		a.ledger.Close(ctx),
		a.broker.Close(),
		a.db.Close(),
	)
}
