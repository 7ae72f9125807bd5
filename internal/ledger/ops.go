package ledger

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/erazemk/stockledger/internal/feed"
	"github.com/erazemk/stockledger/internal/metrics"
	"github.com/erazemk/stockledger/internal/model"
	"github.com/erazemk/stockledger/internal/store"
)

// Undo reverses a committed audit entry. Pending deltas on the entry's
// slots are committed first so the reversal sees the latest state. On
// failure nothing changes, including the visible quantities.
func (l *Ledger) Undo(ctx context.Context, actor model.Actor, logID string) (*store.UndoResult, error) {
	e, err := store.GetLog(ctx, l.db, logID)
	if err != nil {
		return nil, model.Transient("loading log entry", err)
	}
	if e == nil {
		l.metrics.Undos.WithLabelValues("not_found").Inc()
		return nil, model.ErrLogNotFound
	}
	if err := l.FlushKeys(ctx, e.Endpoints()...); err != nil {
		return nil, err
	}

	res, err := store.UndoLog(ctx, l.db, logID, l.clock.Now())
	l.metrics.Undos.WithLabelValues(metrics.Result(err)).Inc()
	if err != nil {
		if model.KindOf(err) == "" {
			return nil, model.Transient("undoing log entry", err)
		}
		return nil, err
	}

	l.mu.Lock()
	for k, id := range l.hints {
		if id == logID {
			delete(l.hints, k)
		}
	}
	l.mu.Unlock()

	slots, err := l.Refresh(ctx, res.Keys...)
	if err != nil {
		slog.Warn("refreshing slots after undo", "log", logID, "error", err)
	}
	events := make([]feed.Event, 0, len(slots)+1)
	for _, s := range slots {
		events = append(events, feed.SlotChanged(s, res.Entry.UpdatedAt))
	}
	events = append(events, feed.LogChanged(&res.Entry, res.Entry.UpdatedAt))
	l.publish(ctx, events...)

	slog.Info("log entry reversed", "log", logID, "action", res.Entry.ActionType, "sku", res.Entry.SKU, "by", actor.Name)
	return res, nil
}

// SetQuantity overwrites a slot's quantity and records an EDIT entry.
func (l *Ledger) SetQuantity(ctx context.Context, actor model.Actor, key model.SlotKey, quantity int) (*model.Slot, error) {
	key = key.Normalize()
	if quantity < 0 {
		return nil, model.ErrInvalidQuantity
	}
	if err := l.FlushKeys(ctx, key); err != nil {
		return nil, err
	}

	lock := l.slotLock(key)
	lock.Lock()
	defer lock.Unlock()

	tx, err := l.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, model.Transient("beginning transaction", err)
	}
	defer tx.Rollback()

	slot, err := store.GetSlotByKey(ctx, tx, key)
	if err != nil {
		return nil, model.Transient("loading slot", err)
	}
	if slot == nil {
		return nil, model.ErrSlotNotFound
	}
	if slot.Quantity == quantity {
		return slot, nil
	}

	now := l.clock.Now()
	prev := slot.Quantity
	if _, err := store.SetSlotQuantity(ctx, tx, slot.ID, quantity, now); err != nil {
		return nil, model.Transient("setting quantity", err)
	}
	entry := l.entry(actor, model.ActionEdit, key, quantity-prev, prev, quantity, now)
	if err := store.InsertLog(ctx, tx, entry); err != nil {
		return nil, model.Transient("recording edit", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, model.Transient("committing edit", err)
	}

	slot.Quantity, slot.UpdatedAt = quantity, now
	l.remember(slot)
	l.publish(ctx, feed.SlotChanged(slot, now), feed.LogChanged(entry, now))
	return slot, nil
}

// AddStock puts qty units of key.SKU at key's location, creating the slot
// when needed. New locations are registered for privileged actors only.
func (l *Ledger) AddStock(ctx context.Context, actor model.Actor, key model.SlotKey, qty int, opts Options) (*model.Slot, error) {
	key = key.Normalize()
	if qty <= 0 {
		return nil, model.ErrInvalidQuantity
	}
	if key.SKU == "" || key.Warehouse == "" {
		return nil, &model.Error{Kind: model.KindValidation, Msg: "sku and warehouse are required"}
	}

	loc, err := l.resolver.Ensure(ctx, actor, key.Warehouse, key.Location)
	if err != nil {
		return nil, err
	}
	key.Location = loc.Name

	if err := l.FlushKeys(ctx, key); err != nil {
		return nil, err
	}

	lock := l.slotLock(key)
	lock.Lock()
	defer lock.Unlock()

	tx, err := l.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, model.Transient("beginning transaction", err)
	}
	defer tx.Rollback()

	prev := 0
	existing, err := store.GetSlotByKey(ctx, tx, key)
	if err != nil {
		return nil, model.Transient("loading slot", err)
	}
	if existing != nil {
		prev = existing.Quantity
	}

	now := l.clock.Now()
	slot, err := store.CreditSlot(ctx, tx, key, loc.ID, qty, now)
	if err != nil {
		return nil, model.Transient("adding stock", err)
	}

	entry := l.entry(actor, model.ActionAdd, key, qty, prev, slot.Quantity, now)
	entry.OrderNumber, entry.ListID, entry.ItemID = opts.OrderNumber, opts.ListID, opts.ItemID
	audit, err := l.recordMerged(ctx, tx, actor, *entry, opts.MergeHint)
	if err != nil {
		return nil, model.Transient("recording stock addition", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, model.Transient("committing stock addition", err)
	}
	l.metrics.AuditWrites.WithLabelValues(audit.op).Inc()

	l.remember(slot)
	l.publish(ctx, append([]feed.Event{feed.SlotChanged(slot, now)}, audit.events()...)...)
	return slot, nil
}

// DeleteSlot removes a slot and records a DELETE entry carrying its last quantity.
func (l *Ledger) DeleteSlot(ctx context.Context, actor model.Actor, slotID string) error {
	current, err := l.Slot(ctx, slotID)
	if err != nil {
		return err
	}
	key := current.Key()
	if err := l.FlushKeys(ctx, key); err != nil {
		return err
	}

	lock := l.slotLock(key)
	lock.Lock()
	defer lock.Unlock()

	tx, err := l.db.BeginTxx(ctx, nil)
	if err != nil {
		return model.Transient("beginning transaction", err)
	}
	defer tx.Rollback()

	slot, err := store.GetSlot(ctx, tx, slotID)
	if err != nil {
		return model.Transient("loading slot", err)
	}
	if slot == nil {
		return model.ErrSlotNotFound
	}

	now := l.clock.Now()
	if err := store.DeleteSlot(ctx, tx, slotID); err != nil {
		return model.Transient("deleting slot", err)
	}
	entry := l.entry(actor, model.ActionDelete, key, -slot.Quantity, slot.Quantity, 0, now)
	if err := store.InsertLog(ctx, tx, entry); err != nil {
		return model.Transient("recording deletion", err)
	}
	if err := tx.Commit(); err != nil {
		return model.Transient("committing deletion", err)
	}

	l.mu.Lock()
	delete(l.cache, key)
	l.mu.Unlock()

	l.publish(ctx, feed.SlotDeleted(slotID, now), feed.LogChanged(entry, now))
	slog.Info("slot deleted", "slot", key.String(), "quantity", slot.Quantity, "by", actor.Name)
	return nil
}

// Slot returns a slot by ID with its visible quantity.
func (l *Ledger) Slot(ctx context.Context, id string) (*model.Slot, error) {
	s, err := store.GetSlot(ctx, l.db, id)
	if err != nil {
		return nil, model.Transient("loading slot", err)
	}
	if s == nil {
		return nil, model.ErrSlotNotFound
	}
	l.overlay(s)
	return s, nil
}

// Slots lists slots with their visible quantities.
func (l *Ledger) Slots(ctx context.Context, f store.SlotFilter) ([]model.Slot, error) {
	slots, err := store.ListSlots(ctx, l.db, f)
	if err != nil {
		return nil, model.Transient("listing slots", err)
	}
	for i := range slots {
		l.overlay(&slots[i])
	}
	return slots, nil
}

// Quantity returns the visible quantity at key; zero when there is no slot.
func (l *Ledger) Quantity(ctx context.Context, key model.SlotKey) (int, error) {
	s, err := l.load(ctx, key.Normalize())
	if err != nil {
		if errors.Is(err, model.ErrSlotNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return s.Quantity, nil
}

// overlay replaces s.Quantity with the visible quantity when a window is open.
func (l *Ledger) overlay(s *model.Slot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, busy := l.pending[s.Key()]; !busy {
		return
	}
	if c := l.cache[s.Key()]; c != nil {
		s.Quantity = c.Quantity
	}
}

func (l *Ledger) remember(s *model.Slot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, busy := l.pending[s.Key()]; busy {
		return
	}
	c := *s
	l.cache[s.Key()] = &c
}

func (l *Ledger) entry(actor model.Actor, action model.ActionType, key model.SlotKey, change, prev, next int, at time.Time) *model.AuditEntry {
	return &model.AuditEntry{
		SKU:            key.SKU,
		FromWarehouse:  model.Ptr(key.Warehouse),
		FromLocation:   model.Ptr(key.Location),
		ActionType:     action,
		QuantityChange: change,
		PrevQuantity:   model.Ptr(prev),
		NewQuantity:    model.Ptr(next),
		PerformedBy:    actor.Name,
		UserID:         model.StrOrNil(actor.ID),
		CreatedAt:      at,
		UpdatedAt:      at,
	}
}
