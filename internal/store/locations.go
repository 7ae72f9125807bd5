package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/erazemk/stockledger/internal/model"
)

const locationColumns = `id, warehouse, name, max_capacity, zone, picking_order, is_active, created_at`

// FindLocation returns the location in warehouse whose name matches case-insensitively.
func FindLocation(ctx context.Context, db sqlx.ExtContext, warehouse, name string) (*model.Location, error) {
	var l model.Location
	err := sqlx.GetContext(ctx, db, &l, db.Rebind(
		`SELECT `+locationColumns+` FROM locations WHERE warehouse = ? AND LOWER(name) = LOWER(?)`),
		warehouse, name,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding location: %w", err)
	}
	return &l, nil
}

// GetLocation returns a location by ID.
func GetLocation(ctx context.Context, db sqlx.ExtContext, id string) (*model.Location, error) {
	var l model.Location
	err := sqlx.GetContext(ctx, db, &l, db.Rebind(`SELECT `+locationColumns+` FROM locations WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting location: %w", err)
	}
	return &l, nil
}

// ListLocations returns registered locations, optionally for one warehouse.
func ListLocations(ctx context.Context, db sqlx.ExtContext, warehouse string) ([]model.Location, error) {
	query := `SELECT ` + locationColumns + ` FROM locations`
	var args []any
	if warehouse != "" {
		query += ` WHERE warehouse = ?`
		args = append(args, warehouse)
	}
	query += ` ORDER BY warehouse, COALESCE(picking_order, 999999), name`

	var locs []model.Location
	if err := sqlx.SelectContext(ctx, db, &locs, db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("listing locations: %w", err)
	}
	return locs, nil
}

// CreateLocation inserts a location. The ID is generated when empty.
func CreateLocation(ctx context.Context, db sqlx.ExtContext, l *model.Location) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	_, err := db.ExecContext(ctx, db.Rebind(
		`INSERT INTO locations (id, warehouse, name, max_capacity, zone, picking_order, is_active, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
		l.ID, l.Warehouse, l.Name, l.MaxCapacity, l.Zone, l.PickingOrder, l.IsActive, l.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating location: %w", err)
	}
	return nil
}

// CountLocations returns the number of registered locations.
func CountLocations(ctx context.Context, db sqlx.ExtContext) (int, error) {
	var n int
	if err := sqlx.GetContext(ctx, db, &n, `SELECT COUNT(*) FROM locations`); err != nil {
		return 0, fmt.Errorf("counting locations: %w", err)
	}
	return n, nil
}
