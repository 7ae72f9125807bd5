package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/erazemk/stockledger/internal/model"
)

const slotColumns = `id, sku, warehouse, location, location_id, quantity, updated_at`

// SlotFilter narrows ListSlots. Empty fields match everything.
type SlotFilter struct {
	SKU       string
	Warehouse string
	Location  string
}

// GetSlot returns a slot by ID.
func GetSlot(ctx context.Context, db sqlx.ExtContext, id string) (*model.Slot, error) {
	var s model.Slot
	err := sqlx.GetContext(ctx, db, &s, db.Rebind(`SELECT `+slotColumns+` FROM stock_slots WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting slot: %w", err)
	}
	return &s, nil
}

// GetSlotByKey returns the slot for (sku, warehouse, location).
func GetSlotByKey(ctx context.Context, db sqlx.ExtContext, key model.SlotKey) (*model.Slot, error) {
	var s model.Slot
	err := sqlx.GetContext(ctx, db, &s, db.Rebind(
		`SELECT `+slotColumns+` FROM stock_slots WHERE sku = ? AND warehouse = ? AND location = ?`),
		key.SKU, key.Warehouse, key.Location,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting slot by key: %w", err)
	}
	return &s, nil
}

// ListSlots returns slots matching the filter ordered by SKU and location.
func ListSlots(ctx context.Context, db sqlx.ExtContext, f SlotFilter) ([]model.Slot, error) {
	query := `SELECT ` + slotColumns + ` FROM stock_slots WHERE 1=1`
	var args []any

	if f.SKU != "" {
		query += ` AND sku = ?`
		args = append(args, f.SKU)
	}
	if f.Warehouse != "" {
		query += ` AND warehouse = ?`
		args = append(args, f.Warehouse)
	}
	if f.Location != "" {
		query += ` AND location = ?`
		args = append(args, f.Location)
	}
	query += ` ORDER BY sku, warehouse, location`

	var slots []model.Slot
	if err := sqlx.SelectContext(ctx, db, &slots, db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("listing slots: %w", err)
	}
	return slots, nil
}

// CreateSlot inserts a new slot. The ID is generated when empty.
func CreateSlot(ctx context.Context, db sqlx.ExtContext, s *model.Slot) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	_, err := db.ExecContext(ctx, db.Rebind(
		`INSERT INTO stock_slots (id, sku, warehouse, location, location_id, quantity, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`),
		s.ID, s.SKU, s.Warehouse, s.Location, s.LocationID, s.Quantity, s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating slot: %w", err)
	}
	return nil
}

// SetSlotQuantity overwrites a slot's quantity. Returns false if the slot no longer exists.
func SetSlotQuantity(ctx context.Context, db sqlx.ExtContext, id string, quantity int, at time.Time) (bool, error) {
	if quantity < 0 {
		quantity = 0
	}
	res, err := db.ExecContext(ctx, db.Rebind(
		`UPDATE stock_slots SET quantity = ?, updated_at = ? WHERE id = ?`),
		quantity, at, id,
	)
	if err != nil {
		return false, fmt.Errorf("setting slot quantity: %w", err)
	}
	return affected(res)
}

// SetSlotQuantityIf overwrites a slot's quantity only while it still equals
// expected. Returns false when the guard failed or the slot is gone.
func SetSlotQuantityIf(ctx context.Context, db sqlx.ExtContext, id string, expected, quantity int, at time.Time) (bool, error) {
	res, err := db.ExecContext(ctx, db.Rebind(
		`UPDATE stock_slots SET quantity = ?, updated_at = ? WHERE id = ? AND quantity = ?`),
		max(0, quantity), at, id, expected,
	)
	if err != nil {
		return false, fmt.Errorf("setting slot quantity: %w", err)
	}
	return affected(res)
}

// DebitSlot subtracts quantity only if the slot still holds at least that much.
// Returns false when the guard failed.
func DebitSlot(ctx context.Context, db sqlx.ExtContext, id string, quantity int, at time.Time) (bool, error) {
	res, err := db.ExecContext(ctx, db.Rebind(
		`UPDATE stock_slots SET quantity = quantity - ?, updated_at = ?
		 WHERE id = ? AND quantity >= ?`),
		quantity, at, id, quantity,
	)
	if err != nil {
		return false, fmt.Errorf("debiting slot: %w", err)
	}
	return affected(res)
}

// CreditSlot adds quantity to the slot at key, creating it if needed, and returns the updated slot.
func CreditSlot(ctx context.Context, db sqlx.ExtContext, key model.SlotKey, locationID *string, quantity int, at time.Time) (*model.Slot, error) {
	_, err := db.ExecContext(ctx, db.Rebind(
		`INSERT INTO stock_slots (id, sku, warehouse, location, location_id, quantity, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (sku, warehouse, location) DO UPDATE
		 SET quantity = stock_slots.quantity + excluded.quantity,
		     location_id = COALESCE(stock_slots.location_id, excluded.location_id),
		     updated_at = excluded.updated_at`),
		uuid.NewString(), key.SKU, key.Warehouse, key.Location, locationID, quantity, at,
	)
	if err != nil {
		return nil, fmt.Errorf("crediting slot: %w", err)
	}
	return GetSlotByKey(ctx, db, key)
}

// DeleteSlot removes a slot.
func DeleteSlot(ctx context.Context, db sqlx.ExtContext, id string) error {
	_, err := db.ExecContext(ctx, db.Rebind(`DELETE FROM stock_slots WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("deleting slot: %w", err)
	}
	return nil
}

// LinkSlotLocations sets location_id on slots that have none but whose
// (warehouse, location) matches a registered location by name.
func LinkSlotLocations(ctx context.Context, db sqlx.ExtContext) (int64, error) {
	res, err := db.ExecContext(ctx,
		`UPDATE stock_slots SET location_id = (
		     SELECT l.id FROM locations l
		     WHERE l.warehouse = stock_slots.warehouse AND LOWER(l.name) = LOWER(stock_slots.location)
		 )
		 WHERE location_id IS NULL AND EXISTS (
		     SELECT 1 FROM locations l
		     WHERE l.warehouse = stock_slots.warehouse AND LOWER(l.name) = LOWER(stock_slots.location)
		 )`,
	)
	if err != nil {
		return 0, fmt.Errorf("linking slot locations: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("linking slot locations: %w", err)
	}
	return n, nil
}
