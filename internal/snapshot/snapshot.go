// Package snapshot writes a daily JSON document of every slot, per-SKU
// totals and the day's audit activity to the blob store.
package snapshot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/erazemk/stockledger/internal/blob"
	"github.com/erazemk/stockledger/internal/clock"
	"github.com/erazemk/stockledger/internal/model"
	"github.com/erazemk/stockledger/internal/store"
)

const maxDayLogs = 1_000_000

// Activity summarizes one SKU's unreversed audit entries for the day.
type Activity struct {
	Entries  int `json:"entries"`
	Added    int `json:"added"`
	Deducted int `json:"deducted"`
	Moved    int `json:"moved"`
	Edited   int `json:"edited"`
	Deleted  int `json:"deleted"`
}

// Document is the stored snapshot.
type Document struct {
	Date        string              `json:"date"`
	GeneratedAt time.Time           `json:"generated_at"`
	TotalUnits  int                 `json:"total_units"`
	Totals      map[string]int      `json:"totals"`
	Activity    map[string]Activity `json:"activity"`
	Slots       []model.Slot        `json:"slots"`
}

// Key returns the blob key for day.
func Key(day time.Time) string {
	return "inventory-snapshot-" + day.UTC().Format("2006-01-02") + ".json"
}

// Build reads the current slots and the audit entries created on day (UTC).
func Build(ctx context.Context, db sqlx.ExtContext, day, now time.Time) (*Document, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)

	slots, err := store.ListSlots(ctx, db, store.SlotFilter{})
	if err != nil {
		return nil, err
	}
	logs, err := store.ListLogs(ctx, db, store.LogFilter{Since: start, Until: start.AddDate(0, 0, 1), Limit: maxDayLogs})
	if err != nil {
		return nil, err
	}

	doc := &Document{
		Date:        start.Format("2006-01-02"),
		GeneratedAt: now,
		Totals:      make(map[string]int),
		Activity:    make(map[string]Activity),
		Slots:       slots,
	}
	if doc.Slots == nil {
		doc.Slots = []model.Slot{}
	}
	for _, s := range slots {
		doc.Totals[s.SKU] += s.Quantity
		doc.TotalUnits += s.Quantity
	}
	for _, e := range logs {
		if e.IsReversed {
			continue
		}
		a := doc.Activity[e.SKU]
		a.Entries++
		n := e.QuantityChange
		if n < 0 {
			n = -n
		}
		switch e.ActionType {
		case model.ActionAdd:
			a.Added += n
		case model.ActionDeduct:
			a.Deducted += n
		case model.ActionMove:
			a.Moved += n
		case model.ActionEdit:
			a.Edited++
		case model.ActionDelete:
			a.Deleted += n
		}
		doc.Activity[e.SKU] = a
	}
	return doc, nil
}

// Runner builds and stores the snapshot for the current day.
type Runner struct {
	DB    *sqlx.DB
	Blobs blob.Store
	Clock clock.Clock
}

// Run writes today's snapshot, replacing an earlier one for the same day,
// and returns its key.
func (r *Runner) Run(ctx context.Context) (string, error) {
	now := r.Clock.Now()
	doc, err := Build(ctx, r.DB, now, now)
	if err != nil {
		return "", fmt.Errorf("building snapshot: %w", err)
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding snapshot: %w", err)
	}

	key := Key(now)
	if err := r.Blobs.Put(ctx, key, bytes.NewReader(data), "application/json"); err != nil {
		return "", fmt.Errorf("storing snapshot: %w", err)
	}
	if err := store.SetSetting(ctx, r.DB, store.SettingLastSnapshot, key); err != nil {
		slog.Warn("recording snapshot key", "key", key, "error", err)
	}
	slog.Info("inventory snapshot written", "key", key, "slots", len(doc.Slots), "units", doc.TotalUnits)
	return key, nil
}

// Schedule runs the snapshot every interval until ctx is done.
func (r *Runner) Schedule(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.Run(ctx); err != nil {
				slog.Error("snapshot failed", "error", err)
			}
		}
	}
}
