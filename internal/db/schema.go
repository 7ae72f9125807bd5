package db

import (
	"fmt"

	"github.com/jmoiron/sqlx"
)

// schema is the full database schema. Statements run one at a time and use
// only syntax shared by SQLite and Postgres.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
    id            TEXT PRIMARY KEY,
    username      TEXT NOT NULL,
    password_hash TEXT NOT NULL,
    role          TEXT NOT NULL DEFAULT 'user' CHECK (role IN ('admin', 'manager', 'user')),
    created_at    TIMESTAMP NOT NULL,
    deleted_at    TIMESTAMP
)`,

	`CREATE TABLE IF NOT EXISTS settings (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
)`,

	`CREATE TABLE IF NOT EXISTS revoked_tokens (
    jti        TEXT PRIMARY KEY,
    expires_at TIMESTAMP NOT NULL
)`,

	`CREATE TABLE IF NOT EXISTS locations (
    id            TEXT PRIMARY KEY,
    warehouse     TEXT NOT NULL,
    name          TEXT NOT NULL,
    max_capacity  INTEGER NOT NULL DEFAULT 550,
    zone          TEXT NOT NULL DEFAULT 'UNASSIGNED',
    picking_order INTEGER,
    is_active     BOOLEAN NOT NULL DEFAULT TRUE,
    created_at    TIMESTAMP NOT NULL
)`,

	`CREATE UNIQUE INDEX IF NOT EXISTS idx_locations_name
    ON locations(warehouse, LOWER(name))`,

	`CREATE TABLE IF NOT EXISTS stock_slots (
    id          TEXT PRIMARY KEY,
    sku         TEXT NOT NULL,
    warehouse   TEXT NOT NULL,
    location    TEXT NOT NULL,
    location_id TEXT REFERENCES locations(id) ON DELETE SET NULL,
    quantity    INTEGER NOT NULL DEFAULT 0 CHECK (quantity >= 0),
    updated_at  TIMESTAMP NOT NULL,
    UNIQUE (sku, warehouse, location)
)`,

	`CREATE TABLE IF NOT EXISTS inventory_logs (
    id              TEXT PRIMARY KEY,
    sku             TEXT NOT NULL,
    from_warehouse  TEXT,
    from_location   TEXT,
    to_warehouse    TEXT,
    to_location     TEXT,
    action_type     TEXT NOT NULL CHECK (action_type IN ('ADD', 'DEDUCT', 'MOVE', 'EDIT', 'DELETE')),
    quantity_change INTEGER NOT NULL,
    prev_quantity   INTEGER,
    new_quantity    INTEGER,
    performed_by    TEXT NOT NULL,
    user_id         TEXT,
    order_number    TEXT,
    list_id         TEXT,
    item_id         TEXT,
    previous_sku    TEXT,
    is_reversed     BOOLEAN NOT NULL DEFAULT FALSE,
    created_at      TIMESTAMP NOT NULL,
    updated_at      TIMESTAMP NOT NULL
)`,

	`CREATE INDEX IF NOT EXISTS idx_inventory_logs_sku ON inventory_logs(sku, created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_inventory_logs_user ON inventory_logs(user_id, created_at)`,

	`CREATE TABLE IF NOT EXISTS picking_lists (
    id               TEXT PRIMARY KEY,
    user_id          TEXT NOT NULL,
    status           TEXT NOT NULL CHECK (status IN ('active', 'needs_correction', 'ready_to_double_check', 'double_checking', 'completed')),
    items            TEXT NOT NULL DEFAULT '[]',
    order_number     TEXT,
    checked_by       TEXT,
    correction_notes TEXT,
    created_at       TIMESTAMP NOT NULL,
    updated_at       TIMESTAMP NOT NULL
)`,

	`CREATE TABLE IF NOT EXISTS picking_list_notes (
    id         TEXT PRIMARY KEY,
    list_id    TEXT NOT NULL REFERENCES picking_lists(id) ON DELETE CASCADE,
    user_id    TEXT NOT NULL,
    author     TEXT NOT NULL,
    body       TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL
)`,

	`CREATE TABLE IF NOT EXISTS user_presence (
    user_id   TEXT PRIMARY KEY,
    username  TEXT NOT NULL,
    last_seen TIMESTAMP NOT NULL
)`,

	`CREATE TABLE IF NOT EXISTS sku_metadata (
    sku        TEXT PRIMARY KEY,
    name       TEXT NOT NULL DEFAULT '',
    length_in  DOUBLE PRECISION,
    width_in   DOUBLE PRECISION,
    height_in  DOUBLE PRECISION,
    photo_key  TEXT,
    thumb_key  TEXT,
    updated_at TIMESTAMP NOT NULL
)`,
}

// migrations are applied in order after schema creation.
// Each migration must be idempotent. Append new migrations at the end.
var migrations = []string{
	// Soft-deleted usernames can be reused.
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_users_username_active
	     ON users(username) WHERE deleted_at IS NULL`,

	// A checker holds at most one list in verification.
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_picking_lists_checker
	     ON picking_lists(checked_by) WHERE status = 'double_checking'`,

	// A picker has at most one list being picked or corrected.
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_picking_lists_open_owner
	     ON picking_lists(user_id) WHERE status IN ('active', 'needs_correction')`,

	`CREATE INDEX IF NOT EXISTS idx_picking_lists_user ON picking_lists(user_id, status)`,

	`CREATE INDEX IF NOT EXISTS idx_picking_list_notes_list ON picking_list_notes(list_id, created_at)`,
}

// EnsureSchema creates all tables and indexes if they don't already exist,
// then applies migrations.
func EnsureSchema(db *sqlx.DB) error {
	for i, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("creating schema (statement %d): %w", i+1, err)
		}
	}
	for i, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return fmt.Errorf("running migration %d: %w", i+1, err)
		}
	}
	return nil
}
