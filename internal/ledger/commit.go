package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/erazemk/stockledger/internal/feed"
	"github.com/erazemk/stockledger/internal/metrics"
	"github.com/erazemk/stockledger/internal/model"
	"github.com/erazemk/stockledger/internal/store"
)

// errStaleQuantity means another writer changed the slot between read and write.
var errStaleQuantity = errors.New("slot changed during commit")

// outcome is what one commit wrote.
type outcome struct {
	slot    *model.Slot
	initial int
	final   int
	audit   auditResult
}

// commit writes w's net change and its audit entry in one transaction,
// repeating transient failures with backoff. When every attempt fails the
// visible quantity returns to the window's initial value.
func (l *Ledger) commit(ctx context.Context, w *window) FlushResult {
	lock := l.slotLock(w.key)
	lock.Lock()
	defer lock.Unlock()

	start := time.Now()
	res := FlushResult{Key: w.key, Actor: w.actor, Initial: w.initial, Final: max(0, w.initial+w.net)}

	var out *outcome
	err := l.retry(ctx, func() error {
		var err error
		out, err = l.persist(ctx, w)
		return err
	})

	l.metrics.FlushDuration.Observe(time.Since(start).Seconds())
	l.metrics.Flushes.WithLabelValues(metrics.Result(err)).Inc()

	if err != nil {
		restored := l.rollback(w)
		if model.KindOf(err) == "" {
			err = model.Transient("committing stock", err)
		}
		res.Err = fmt.Errorf("%s: %w", w.key, err)
		slog.Error("stock commit failed, visible quantity rolled back",
			"slot", w.key.String(), "actor", w.actor.Name, "net", w.net, "error", err)
		l.publishRollback(ctx, w, restored, res.Err)
		l.notify(res)
		return res
	}

	res.Initial, res.Final = out.initial, out.final
	res.EntryID = out.audit.entryID()
	l.metrics.AuditWrites.WithLabelValues(out.audit.op).Inc()

	l.mu.Lock()
	if nw := l.pending[w.key]; nw != nil {
		nw.initial = out.final
		if s := l.cache[w.key]; s != nil {
			s.Quantity = max(0, out.final+nw.net)
		}
	} else {
		c := *out.slot
		l.cache[w.key] = &c
	}
	hk := hintFor(w.key, w.actor, w.opts)
	if id := out.audit.entryID(); id != "" {
		l.hints[hk] = id
	} else {
		delete(l.hints, hk)
	}
	l.mu.Unlock()

	events := []feed.Event{feed.SlotChanged(out.slot, out.slot.UpdatedAt)}
	events = append(events, out.audit.events()...)
	l.publish(ctx, events...)

	if out.audit.op != opSkip {
		slog.Info("stock committed", "slot", w.key.String(), "actor", w.actor.Name,
			"from", out.initial, "to", out.final, "audit", out.audit.op)
	}
	l.notify(res)
	return res
}

func (l *Ledger) notify(res FlushResult) {
	if l.cfg.OnFlush != nil {
		l.cfg.OnFlush(res)
	}
}

// rollback restores the visible quantity to w.initial, carrying over any
// deltas that arrived after w was detached. It returns a copy of the
// restored slot, or nil when the slot is no longer cached.
func (l *Ledger) rollback(w *window) *model.Slot {
	l.mu.Lock()
	defer l.mu.Unlock()

	s := l.cache[w.key]
	if s == nil {
		return nil
	}
	if nw := l.pending[w.key]; nw != nil {
		nw.initial = w.initial
		s.Quantity = max(0, w.initial+nw.net)
	} else {
		s.Quantity = w.initial
	}
	out := *s
	return &out
}

// publishRollback tells subscribers that w was discarded and which quantity
// is visible again.
func (l *Ledger) publishRollback(ctx context.Context, w *window, restored *model.Slot, cause error) {
	ctx = context.WithoutCancel(ctx)
	now := l.clock.Now()
	failure := &feed.CommitFailure{
		Key:      w.key,
		UserID:   w.actor.ID,
		Username: w.actor.Name,
		Net:      w.net,
		Restored: w.initial,
		Error:    cause.Error(),
	}
	var events []feed.Event
	if restored != nil {
		failure.Restored = restored.Quantity
		events = append(events, feed.SlotChanged(restored, now))
	}
	events = append(events, feed.CommitFailed(w.slotID, failure, now))
	l.publish(ctx, events...)
}

// persist runs one commit attempt.
func (l *Ledger) persist(ctx context.Context, w *window) (*outcome, error) {
	tx, err := l.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	slot, err := store.GetSlot(ctx, tx, w.slotID)
	if err != nil {
		return nil, err
	}
	if slot == nil {
		return nil, model.ErrSlotNotFound
	}

	now := l.clock.Now()
	out := &outcome{slot: slot, initial: slot.Quantity, final: max(0, slot.Quantity+w.net)}

	if out.final == out.initial {
		out.audit = auditResult{op: opSkip}
		return out, nil
	}

	ok, err := store.SetSlotQuantityIf(ctx, tx, slot.ID, out.initial, out.final, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errStaleQuantity
	}
	slot.Quantity, slot.UpdatedAt = out.final, now

	entry := model.AuditEntry{
		SKU:            w.key.SKU,
		FromWarehouse:  model.Ptr(w.key.Warehouse),
		FromLocation:   model.Ptr(w.key.Location),
		ActionType:     actionFor(out.final - out.initial),
		QuantityChange: out.final - out.initial,
		PrevQuantity:   model.Ptr(out.initial),
		NewQuantity:    model.Ptr(out.final),
		PerformedBy:    w.actor.Name,
		UserID:         model.StrOrNil(w.actor.ID),
		OrderNumber:    w.opts.OrderNumber,
		ListID:         w.opts.ListID,
		ItemID:         w.opts.ItemID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	out.audit, err = l.recordMerged(ctx, tx, w.actor, entry, l.hint(w))
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing transaction: %w", err)
	}
	return out, nil
}

func (l *Ledger) hint(w *window) string {
	if w.opts.MergeHint != "" {
		return w.opts.MergeHint
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.hints[hintFor(w.key, w.actor, w.opts)]
}

// retry calls f until it succeeds, fails permanently or runs out of attempts.
func (l *Ledger) retry(ctx context.Context, f func() error) error {
	backoff := l.cfg.RetryBackoff
	var err error
	for attempt := 0; ; attempt++ {
		if err = f(); err == nil || !retryable(err) || attempt >= l.cfg.AuditRetries {
			return err
		}
		l.metrics.AuditRetries.Inc()
		slog.Warn("retrying stock commit", "attempt", attempt+1, "error", err)

		select {
		case <-ctx.Done():
			return errors.Join(err, ctx.Err())
		case <-time.After(backoff):
		}
		backoff *= 2
	}
}

func retryable(err error) bool {
	switch model.KindOf(err) {
	case model.KindNotFound, model.KindValidation, model.KindUnauthorized:
		return false
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

func actionFor(change int) model.ActionType {
	if change < 0 {
		return model.ActionDeduct
	}
	return model.ActionAdd
}
