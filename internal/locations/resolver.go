// Package locations maps operator input onto registered warehouse locations
// and gates the creation of new ones.
package locations

import (
	"context"
	"log/slog"
	"strings"
	"unicode"

	"github.com/jmoiron/sqlx"

	"github.com/erazemk/stockledger/internal/clock"
	"github.com/erazemk/stockledger/internal/model"
	"github.com/erazemk/stockledger/internal/store"
)

// Resolution is where a raw location string points.
type Resolution struct {
	Name  string  `json:"name"`
	ID    *string `json:"id,omitempty"`
	IsNew bool    `json:"is_new"`
}

// Resolver looks up and registers locations.
type Resolver struct {
	db    *sqlx.DB
	clock clock.Clock
}

// New creates a Resolver.
func New(db *sqlx.DB, clk clock.Clock) *Resolver {
	return &Resolver{db: db, clock: clk}
}

// Resolve maps raw onto a location name in warehouse. An exact
// case-insensitive match wins; bare numbers are read as "Row n".
func (r *Resolver) Resolve(ctx context.Context, warehouse, raw string) (*Resolution, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, model.ErrEmptyLocation
	}

	loc, err := store.FindLocation(ctx, r.db, warehouse, raw)
	if err != nil {
		return nil, model.Transient("resolving location", err)
	}
	if loc != nil {
		return &Resolution{Name: loc.Name, ID: &loc.ID}, nil
	}

	if !numeric(raw) {
		return &Resolution{Name: raw, IsNew: true}, nil
	}

	row := "Row " + raw
	loc, err = store.FindLocation(ctx, r.db, warehouse, row)
	if err != nil {
		return nil, model.Transient("resolving location", err)
	}
	if loc != nil {
		return &Resolution{Name: loc.Name, ID: &loc.ID}, nil
	}
	return &Resolution{Name: row, IsNew: true}, nil
}

// Ensure resolves raw and registers it when new. Only privileged actors may
// introduce a location; others get ErrUnauthorized and nothing is written.
func (r *Resolver) Ensure(ctx context.Context, actor model.Actor, warehouse, raw string) (*Resolution, error) {
	res, err := r.Resolve(ctx, warehouse, raw)
	if err != nil {
		return nil, err
	}
	if !res.IsNew {
		return res, nil
	}
	if !actor.Privileged {
		return nil, model.ErrUnauthorized
	}

	loc, err := r.Create(ctx, actor, model.Location{Warehouse: warehouse, Name: res.Name})
	if err != nil {
		return nil, err
	}
	return &Resolution{Name: loc.Name, ID: &loc.ID, IsNew: true}, nil
}

// Create registers a location, filling in default capacity and zone. A
// concurrent registration of the same name returns the existing row.
func (r *Resolver) Create(ctx context.Context, actor model.Actor, loc model.Location) (*model.Location, error) {
	if !actor.Privileged {
		return nil, model.ErrUnauthorized
	}
	loc.Name = strings.TrimSpace(loc.Name)
	if loc.Name == "" || loc.Warehouse == "" {
		return nil, model.ErrEmptyLocation
	}
	if loc.MaxCapacity <= 0 {
		loc.MaxCapacity = model.DefaultMaxCapacity
	}
	if loc.Zone == "" {
		loc.Zone = model.ZoneUnassigned
	}
	loc.IsActive = true
	loc.CreatedAt = r.clock.Now()

	if err := store.CreateLocation(ctx, r.db, &loc); err != nil {
		existing, findErr := store.FindLocation(ctx, r.db, loc.Warehouse, loc.Name)
		if findErr == nil && existing != nil {
			return existing, nil
		}
		return nil, model.Transient("creating location", err)
	}

	slog.Info("location created", "warehouse", loc.Warehouse, "name", loc.Name, "by", actor.Name)
	return &loc, nil
}

// List returns registered locations, optionally for one warehouse.
func (r *Resolver) List(ctx context.Context, warehouse string) ([]model.Location, error) {
	locs, err := store.ListLocations(ctx, r.db, warehouse)
	if err != nil {
		return nil, model.Transient("listing locations", err)
	}
	return locs, nil
}

// SyncLinks links slots without a location_id to the registered location
// with the same warehouse and name.
func (r *Resolver) SyncLinks(ctx context.Context) (int64, error) {
	n, err := store.LinkSlotLocations(ctx, r.db)
	if err != nil {
		return 0, model.Transient("linking slots", err)
	}
	if n > 0 {
		slog.Info("linked slots to locations", "count", n)
	}
	return n, nil
}

func numeric(s string) bool {
	for _, c := range s {
		if !unicode.IsDigit(c) {
			return false
		}
	}
	return s != ""
}
