package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/erazemk/stockledger/internal/model"
)

const skuColumns = `sku, name, length_in, width_in, height_in, photo_key, thumb_key, updated_at`

// GetSKUMeta returns metadata for a SKU.
func GetSKUMeta(ctx context.Context, db sqlx.ExtContext, sku string) (*model.SKUMeta, error) {
	var m model.SKUMeta
	err := sqlx.GetContext(ctx, db, &m, db.Rebind(`SELECT `+skuColumns+` FROM sku_metadata WHERE sku = ?`), sku)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting sku metadata: %w", err)
	}
	return &m, nil
}

// UpsertSKUMeta writes descriptive fields, leaving photo keys untouched.
func UpsertSKUMeta(ctx context.Context, db sqlx.ExtContext, m *model.SKUMeta) error {
	_, err := db.ExecContext(ctx, db.Rebind(
		`INSERT INTO sku_metadata (sku, name, length_in, width_in, height_in, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (sku) DO UPDATE SET
		     name = excluded.name,
		     length_in = excluded.length_in,
		     width_in = excluded.width_in,
		     height_in = excluded.height_in,
		     updated_at = excluded.updated_at`),
		m.SKU, m.Name, m.LengthIn, m.WidthIn, m.HeightIn, m.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("saving sku metadata: %w", err)
	}
	return nil
}

// SetSKUPhoto records the blob keys of a SKU's reference photo.
func SetSKUPhoto(ctx context.Context, db sqlx.ExtContext, sku, photoKey, thumbKey string, at time.Time) error {
	_, err := db.ExecContext(ctx, db.Rebind(
		`INSERT INTO sku_metadata (sku, photo_key, thumb_key, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (sku) DO UPDATE SET
		     photo_key = excluded.photo_key,
		     thumb_key = excluded.thumb_key,
		     updated_at = excluded.updated_at`),
		sku, photoKey, thumbKey, at,
	)
	if err != nil {
		return fmt.Errorf("saving sku photo: %w", err)
	}
	return nil
}
