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

const logColumns = `id, sku, from_warehouse, from_location, to_warehouse, to_location, action_type,
	quantity_change, prev_quantity, new_quantity, performed_by, user_id, order_number, list_id,
	item_id, previous_sku, is_reversed, created_at, updated_at`

// LogFilter narrows ListLogs. Zero values match everything.
type LogFilter struct {
	SKU    string
	UserID string
	ListID string
	Since  time.Time
	Until  time.Time
	Limit  int
}

// InsertLog writes a new audit entry. The ID is generated when empty.
func InsertLog(ctx context.Context, db sqlx.ExtContext, e *model.AuditEntry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.UpdatedAt.IsZero() {
		e.UpdatedAt = e.CreatedAt
	}
	_, err := db.ExecContext(ctx, db.Rebind(
		`INSERT INTO inventory_logs (`+logColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		e.ID, e.SKU, e.FromWarehouse, e.FromLocation, e.ToWarehouse, e.ToLocation, string(e.ActionType),
		e.QuantityChange, e.PrevQuantity, e.NewQuantity, e.PerformedBy, e.UserID, e.OrderNumber, e.ListID,
		e.ItemID, e.PreviousSKU, e.IsReversed, e.CreatedAt, e.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting log: %w", err)
	}
	return nil
}

// GetLog returns an audit entry by ID.
func GetLog(ctx context.Context, db sqlx.ExtContext, id string) (*model.AuditEntry, error) {
	var e model.AuditEntry
	err := sqlx.GetContext(ctx, db, &e, db.Rebind(`SELECT `+logColumns+` FROM inventory_logs WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting log: %w", err)
	}
	return &e, nil
}

// LatestLogByActor returns the newest entry written by the actor since the given time.
// Actors are matched by user ID when known and by display name otherwise.
func LatestLogByActor(ctx context.Context, db sqlx.ExtContext, actor model.Actor, since time.Time) (*model.AuditEntry, error) {
	query := `SELECT ` + logColumns + ` FROM inventory_logs WHERE created_at > ?`
	args := []any{since}
	if actor.ID != "" {
		query += ` AND user_id = ?`
		args = append(args, actor.ID)
	} else {
		query += ` AND performed_by = ?`
		args = append(args, actor.Name)
	}
	query += ` ORDER BY created_at DESC, updated_at DESC LIMIT 1`

	var e model.AuditEntry
	err := sqlx.GetContext(ctx, db, &e, db.Rebind(query), args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting latest log: %w", err)
	}
	return &e, nil
}

// MergeLog rewrites an entry's net effect in place.
func MergeLog(ctx context.Context, db sqlx.ExtContext, id string, action model.ActionType, quantityChange int, newQuantity *int, at time.Time) error {
	_, err := db.ExecContext(ctx, db.Rebind(
		`UPDATE inventory_logs SET action_type = ?, quantity_change = ?, new_quantity = ?, updated_at = ?
		 WHERE id = ?`),
		string(action), quantityChange, newQuantity, at, id,
	)
	if err != nil {
		return fmt.Errorf("merging log: %w", err)
	}
	return nil
}

// DeleteLog removes an audit entry.
func DeleteLog(ctx context.Context, db sqlx.ExtContext, id string) error {
	_, err := db.ExecContext(ctx, db.Rebind(`DELETE FROM inventory_logs WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("deleting log: %w", err)
	}
	return nil
}

// MarkLogReversed flags an entry as undone. Returns false if it was already reversed.
func MarkLogReversed(ctx context.Context, db sqlx.ExtContext, id string, at time.Time) (bool, error) {
	res, err := db.ExecContext(ctx, db.Rebind(
		`UPDATE inventory_logs SET is_reversed = ?, updated_at = ? WHERE id = ? AND is_reversed = ?`),
		true, at, id, false,
	)
	if err != nil {
		return false, fmt.Errorf("marking log reversed: %w", err)
	}
	return affected(res)
}

// HasNewerActivity reports whether an unreversed entry newer than e touches
// the same SKU at any of e's locations. An entry counts as newer when it was
// created after e or merged into after e was last written.
func HasNewerActivity(ctx context.Context, db sqlx.ExtContext, e *model.AuditEntry) (bool, error) {
	endpoints := e.Endpoints()
	if len(endpoints) == 0 {
		return false, nil
	}

	query := `SELECT COUNT(*) FROM inventory_logs
	          WHERE sku = ? AND id <> ? AND is_reversed = ?
		          AND (created_at > ? OR updated_at > ?) AND (`
	args := []any{e.SKU, e.ID, false, e.CreatedAt, e.UpdatedAt}
	for i, k := range endpoints {
		if i > 0 {
			query += ` OR `
		}
		query += `(from_warehouse = ? AND from_location = ?) OR (to_warehouse = ? AND to_location = ?)`
		args = append(args, k.Warehouse, k.Location, k.Warehouse, k.Location)
	}
	query += `)`

	var n int
	if err := sqlx.GetContext(ctx, db, &n, db.Rebind(query), args...); err != nil {
		return false, fmt.Errorf("checking newer activity: %w", err)
	}
	return n > 0, nil
}

// ListLogs returns entries matching the filter, newest first.
func ListLogs(ctx context.Context, db sqlx.ExtContext, f LogFilter) ([]model.AuditEntry, error) {
	query := `SELECT ` + logColumns + ` FROM inventory_logs WHERE 1=1`
	var args []any

	if f.SKU != "" {
		query += ` AND sku = ?`
		args = append(args, f.SKU)
	}
	if f.UserID != "" {
		query += ` AND user_id = ?`
		args = append(args, f.UserID)
	}
	if f.ListID != "" {
		query += ` AND list_id = ?`
		args = append(args, f.ListID)
	}
	if !f.Since.IsZero() {
		query += ` AND created_at >= ?`
		args = append(args, f.Since)
	}
	if !f.Until.IsZero() {
		query += ` AND created_at < ?`
		args = append(args, f.Until)
	}
	query += ` ORDER BY created_at DESC, updated_at DESC`

	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT %d`, limit)

	var logs []model.AuditEntry
	if err := sqlx.SelectContext(ctx, db, &logs, db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("listing logs: %w", err)
	}
	return logs, nil
}

// DeleteLogsByList removes every entry tagged with a picking list.
func DeleteLogsByList(ctx context.Context, db sqlx.ExtContext, listID string) error {
	_, err := db.ExecContext(ctx, db.Rebind(`DELETE FROM inventory_logs WHERE list_id = ?`), listID)
	if err != nil {
		return fmt.Errorf("deleting list logs: %w", err)
	}
	return nil
}
