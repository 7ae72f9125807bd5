package snapshot

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erazemk/stockledger/internal/blob"
	"github.com/erazemk/stockledger/internal/clock"
	"github.com/erazemk/stockledger/internal/db"
	"github.com/erazemk/stockledger/internal/model"
	"github.com/erazemk/stockledger/internal/store"
)

func TestRunWritesDailyDocument(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 2, 18, 30, 0, 0, time.UTC)

	for _, s := range []model.Slot{
		{SKU: "A", Warehouse: "LUDLOW", Location: "Row 1", Quantity: 10, UpdatedAt: now},
		{SKU: "A", Warehouse: "ATS", Location: "Row 2", Quantity: 5, UpdatedAt: now},
		{SKU: "B", Warehouse: "LUDLOW", Location: "Row 3", Quantity: 1, UpdatedAt: now},
	} {
		require.NoError(t, store.CreateSlot(ctx, database, &s))
	}
	for _, e := range []model.AuditEntry{
		{SKU: "A", ActionType: model.ActionAdd, QuantityChange: 4, PerformedBy: "x", CreatedAt: now.Add(-time.Hour)},
		{SKU: "A", ActionType: model.ActionDeduct, QuantityChange: -2, PerformedBy: "x", CreatedAt: now.Add(-2 * time.Hour)},
		{SKU: "A", ActionType: model.ActionAdd, QuantityChange: 9, PerformedBy: "x", CreatedAt: now.AddDate(0, 0, -1)},
		{SKU: "B", ActionType: model.ActionMove, QuantityChange: 1, PerformedBy: "x", IsReversed: true, CreatedAt: now.Add(-time.Hour)},
	} {
		require.NoError(t, store.InsertLog(ctx, database, &e))
	}

	blobs, err := blob.NewFS(t.TempDir())
	require.NoError(t, err)

	r := &Runner{DB: database, Blobs: blobs, Clock: clock.NewFake(now)}
	key, err := r.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, "inventory-snapshot-2026-03-02.json", key)

	last, ok, err := store.GetSetting(ctx, database, store.SettingLastSnapshot)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, key, last)

	rc, err := blobs.Get(ctx, key)
	require.NoError(t, err)
	defer rc.Close()

	var doc Document
	require.NoError(t, json.NewDecoder(rc).Decode(&doc))
	assert.Equal(t, "2026-03-02", doc.Date)
	assert.Equal(t, 16, doc.TotalUnits)
	assert.Equal(t, 15, doc.Totals["A"])
	assert.Len(t, doc.Slots, 3)
	assert.Equal(t, Activity{Entries: 2, Added: 4, Deducted: 2}, doc.Activity["A"])
	assert.NotContains(t, doc.Activity, "B")
}
