package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/erazemk/stockledger/internal/model"
)

// UndoResult describes a reversed entry and the slots it touched.
type UndoResult struct {
	Entry model.AuditEntry `json:"entry"`
	Keys  []model.SlotKey  `json:"keys"`
}

// UndoLog reverses an audit entry in a single transaction: it applies the
// inverse effect to the live slots and marks the entry reversed. Nothing is
// changed if any step fails.
func UndoLog(ctx context.Context, db *sqlx.DB, id string, at time.Time) (*UndoResult, error) {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	e, err := GetLog(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, model.ErrLogNotFound
	}
	if e.IsReversed {
		return nil, model.ErrAlreadyReversed
	}

	newer, err := HasNewerActivity(ctx, tx, e)
	if err != nil {
		return nil, err
	}
	if newer {
		return nil, model.ErrLIFOViolation
	}

	if err := applyInverse(ctx, tx, e, at); err != nil {
		return nil, err
	}

	ok, err := MarkLogReversed(ctx, tx, e.ID, at)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, model.ErrAlreadyReversed
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing undo: %w", err)
	}

	e.IsReversed = true
	e.UpdatedAt = at
	return &UndoResult{Entry: *e, Keys: e.Endpoints()}, nil
}

func applyInverse(ctx context.Context, tx *sqlx.Tx, e *model.AuditEntry, at time.Time) error {
	from, to := endpoint(e.SKU, e.FromWarehouse, e.FromLocation), endpoint(e.SKU, e.ToWarehouse, e.ToLocation)

	switch e.ActionType {
	case model.ActionAdd:
		key := to
		if key == nil {
			key = from
		}
		return subtract(ctx, tx, key, abs(e.QuantityChange), at)

	case model.ActionDeduct:
		if from == nil {
			return fmt.Errorf("undo %s: entry has no source location", e.ID)
		}
		_, err := CreditSlot(ctx, tx, *from, nil, abs(e.QuantityChange), at)
		return err

	case model.ActionMove:
		if from == nil || to == nil {
			return fmt.Errorf("undo %s: move is missing an endpoint", e.ID)
		}
		if err := subtract(ctx, tx, to, abs(e.QuantityChange), at); err != nil {
			return err
		}
		_, err := CreditSlot(ctx, tx, *from, nil, abs(e.QuantityChange), at)
		return err

	case model.ActionDelete:
		if from == nil {
			return fmt.Errorf("undo %s: entry has no source location", e.ID)
		}
		qty := 0
		if e.PrevQuantity != nil {
			qty = *e.PrevQuantity
		}
		_, err := CreditSlot(ctx, tx, *from, nil, qty, at)
		return err

	case model.ActionEdit:
		if from == nil || e.PrevQuantity == nil {
			return fmt.Errorf("undo %s: edit has no previous quantity", e.ID)
		}
		slot, err := GetSlotByKey(ctx, tx, *from)
		if err != nil {
			return err
		}
		if slot == nil {
			_, err := CreditSlot(ctx, tx, *from, nil, *e.PrevQuantity, at)
			return err
		}
		_, err = SetSlotQuantity(ctx, tx, slot.ID, *e.PrevQuantity, at)
		return err
	}

	return fmt.Errorf("undo %s: unknown action %q", e.ID, e.ActionType)
}

// subtract lowers the slot at key by qty, never below zero.
func subtract(ctx context.Context, tx *sqlx.Tx, key *model.SlotKey, qty int, at time.Time) error {
	if key == nil {
		return model.ErrSlotNotFound
	}
	slot, err := GetSlotByKey(ctx, tx, *key)
	if err != nil {
		return err
	}
	if slot == nil {
		return model.ErrSlotNotFound
	}
	_, err = SetSlotQuantity(ctx, tx, slot.ID, max(0, slot.Quantity-qty), at)
	return err
}

func endpoint(sku string, warehouse, location *string) *model.SlotKey {
	if warehouse == nil || location == nil {
		return nil
	}
	return &model.SlotKey{SKU: sku, Warehouse: *warehouse, Location: *location}
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
