// Package movement transfers stock between two slots as one audited move.
package movement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"

	"github.com/erazemk/stockledger/internal/clock"
	"github.com/erazemk/stockledger/internal/feed"
	"github.com/erazemk/stockledger/internal/ledger"
	"github.com/erazemk/stockledger/internal/locations"
	"github.com/erazemk/stockledger/internal/metrics"
	"github.com/erazemk/stockledger/internal/model"
	"github.com/erazemk/stockledger/internal/store"
)

// Result is the state after a completed move.
type Result struct {
	Source      *model.Slot       `json:"source"`
	Destination *model.Slot       `json:"destination"`
	Entry       *model.AuditEntry `json:"entry"`
}

// Mover moves stock between locations.
type Mover struct {
	db       *sqlx.DB
	clock    clock.Clock
	ledger   *ledger.Ledger
	resolver *locations.Resolver
	feed     feed.Broker
	metrics  *metrics.Metrics
}

// New creates a Mover.
func New(db *sqlx.DB, clk clock.Clock, l *ledger.Ledger, r *locations.Resolver, broker feed.Broker, m *metrics.Metrics) *Mover {
	return &Mover{db: db, clock: clk, ledger: l, resolver: r, feed: broker, metrics: m}
}

// Move takes qty units out of source and puts them at the resolved target
// location. The source is re-read from the store first; if it holds less
// than qty the move is refused with ErrStockMismatch and nothing changes.
func (m *Mover) Move(ctx context.Context, actor model.Actor, source model.SlotKey, toWarehouse, toLocation string, qty int) (*Result, error) {
	res, err := m.move(ctx, actor, source.Normalize(), toWarehouse, toLocation, qty)
	label := metrics.Result(err)
	if errors.Is(err, model.ErrStockMismatch) {
		label = "mismatch"
	}
	m.metrics.Moves.WithLabelValues(label).Inc()
	return res, err
}

func (m *Mover) move(ctx context.Context, actor model.Actor, source model.SlotKey, toWarehouse, toLocation string, qty int) (*Result, error) {
	if qty <= 0 {
		return nil, model.ErrInvalidQuantity
	}
	if toWarehouse == "" {
		toWarehouse = source.Warehouse
	}

	// Authorization is settled before any stock is touched.
	dest, err := m.resolver.Resolve(ctx, toWarehouse, toLocation)
	if err != nil {
		return nil, err
	}
	target := model.SlotKey{SKU: source.SKU, Warehouse: toWarehouse, Location: dest.Name}
	if target == source {
		return nil, model.ErrSameLocation
	}

	if err := m.ledger.FlushKeys(ctx, source, target); err != nil {
		return nil, err
	}

	// Read-only precheck so a mismatch never registers a new location.
	current, err := store.GetSlotByKey(ctx, m.db, source)
	if err != nil {
		return nil, model.Transient("reading source slot", err)
	}
	if current == nil {
		return nil, model.ErrSlotNotFound
	}
	if current.Quantity < qty {
		slog.Warn("move refused, stock mismatch", "slot", source.String(), "have", current.Quantity, "want", qty, "actor", actor.Name)
		return nil, model.ErrStockMismatch
	}

	if dest.IsNew {
		dest, err = m.resolver.Ensure(ctx, actor, toWarehouse, toLocation)
		if err != nil {
			return nil, err
		}
	}

	return m.transfer(ctx, actor, source, target, dest.ID, qty)
}

func (m *Mover) transfer(ctx context.Context, actor model.Actor, source, target model.SlotKey, locationID *string, qty int) (*Result, error) {
	tx, err := m.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, model.Transient("beginning transaction", err)
	}
	defer tx.Rollback()

	src, err := store.GetSlotByKey(ctx, tx, source)
	if err != nil {
		return nil, model.Transient("reading source slot", err)
	}
	if src == nil {
		return nil, model.ErrSlotNotFound
	}
	if src.Quantity < qty {
		return nil, model.ErrStockMismatch
	}

	now := m.clock.Now()
	ok, err := store.DebitSlot(ctx, tx, src.ID, qty, now)
	if err != nil {
		return nil, model.Transient("debiting source", err)
	}
	if !ok {
		return nil, model.ErrStockMismatch
	}

	// From here on a failure means the source was debited without a
	// matching credit. It is reported as fatal and never retried.
	dst, err := store.CreditSlot(ctx, tx, target, locationID, qty, now)
	if err != nil {
		slog.Error("move failed after debit", "from", source.String(), "to", target.String(), "qty", qty, "error", err)
		return nil, model.Fatal(fmt.Errorf("crediting %s: %w", target, err))
	}

	entry := &model.AuditEntry{
		SKU:            source.SKU,
		FromWarehouse:  model.Ptr(source.Warehouse),
		FromLocation:   model.Ptr(source.Location),
		ToWarehouse:    model.Ptr(target.Warehouse),
		ToLocation:     model.Ptr(target.Location),
		ActionType:     model.ActionMove,
		QuantityChange: qty,
		PrevQuantity:   model.Ptr(src.Quantity),
		NewQuantity:    model.Ptr(src.Quantity - qty),
		PerformedBy:    actor.Name,
		UserID:         model.StrOrNil(actor.ID),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := store.InsertLog(ctx, tx, entry); err != nil {
		return nil, model.Fatal(fmt.Errorf("recording move: %w", err))
	}
	if err := tx.Commit(); err != nil {
		return nil, model.Fatal(fmt.Errorf("committing move: %w", err))
	}

	src.Quantity -= qty
	src.UpdatedAt = now
	if _, err := m.ledger.Refresh(ctx, source, target); err != nil {
		slog.Warn("refreshing slots after move", "error", err)
	}
	for _, ev := range []feed.Event{feed.SlotChanged(src, now), feed.SlotChanged(dst, now), feed.LogChanged(entry, now)} {
		if err := m.feed.Publish(ctx, ev); err != nil {
			slog.Warn("publishing move", "kind", ev.Kind, "error", err)
		}
	}

	slog.Info("stock moved", "sku", source.SKU, "from", source.String(), "to", target.String(), "qty", qty, "by", actor.Name)
	return &Result{Source: src, Destination: dst, Entry: entry}, nil
}
