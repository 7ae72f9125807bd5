package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/erazemk/stockledger/internal/db"
	"github.com/erazemk/stockledger/internal/model"
)

func insertLog(t *testing.T, ctx context.Context, database sqlx.ExtContext, e model.AuditEntry) *model.AuditEntry {
	t.Helper()
	if e.PerformedBy == "" {
		e.PerformedBy = "Alice"
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = t0
	}
	if err := InsertLog(ctx, database, &e); err != nil {
		t.Fatalf("InsertLog: %v", err)
	}
	return &e
}

func TestInsertAndMergeLog(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	e := insertLog(t, ctx, database, model.AuditEntry{
		SKU: "A", FromWarehouse: model.Ptr("W"), FromLocation: model.Ptr("Row 1"),
		ActionType: model.ActionAdd, QuantityChange: 2, PrevQuantity: model.Ptr(5), NewQuantity: model.Ptr(7),
		UserID: model.Ptr("u1"),
	})

	if err := MergeLog(ctx, database, e.ID, model.ActionAdd, 9, model.Ptr(14), t0.Add(time.Second)); err != nil {
		t.Fatalf("MergeLog: %v", err)
	}

	got, err := GetLog(ctx, database, e.ID)
	if err != nil {
		t.Fatalf("GetLog: %v", err)
	}
	if got.QuantityChange != 9 || got.NewQuantity == nil || *got.NewQuantity != 14 {
		t.Errorf("unexpected merged entry: %+v", got)
	}
	if got.PrevQuantity == nil || *got.PrevQuantity != 5 {
		t.Errorf("prev quantity should be kept, got %v", got.PrevQuantity)
	}
	if got.IsReversed {
		t.Error("new entries are not reversed")
	}
}

func TestLatestLogByActor(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	alice := model.Actor{ID: "u1", Name: "Alice"}
	insertLog(t, ctx, database, model.AuditEntry{SKU: "A", ActionType: model.ActionAdd, QuantityChange: 1, UserID: model.Ptr("u1"), CreatedAt: t0})
	newest := insertLog(t, ctx, database, model.AuditEntry{SKU: "B", ActionType: model.ActionAdd, QuantityChange: 1, UserID: model.Ptr("u1"), CreatedAt: t0.Add(time.Minute)})
	insertLog(t, ctx, database, model.AuditEntry{SKU: "C", ActionType: model.ActionAdd, QuantityChange: 1, UserID: model.Ptr("u2"), PerformedBy: "Bob", CreatedAt: t0.Add(2 * time.Minute)})

	got, err := LatestLogByActor(ctx, database, alice, t0.Add(-5*time.Minute))
	if err != nil {
		t.Fatalf("LatestLogByActor: %v", err)
	}
	if got == nil || got.ID != newest.ID {
		t.Fatalf("expected newest entry by alice, got %+v", got)
	}

	none, err := LatestLogByActor(ctx, database, alice, t0.Add(time.Hour))
	if err != nil {
		t.Fatalf("LatestLogByActor: %v", err)
	}
	if none != nil {
		t.Error("expected nothing outside the window")
	}
}

func TestMarkLogReversedOnce(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	e := insertLog(t, ctx, database, model.AuditEntry{SKU: "A", ActionType: model.ActionAdd, QuantityChange: 1})

	ok, err := MarkLogReversed(ctx, database, e.ID, t0)
	if err != nil || !ok {
		t.Fatalf("first MarkLogReversed: ok=%v err=%v", ok, err)
	}
	ok, err = MarkLogReversed(ctx, database, e.ID, t0)
	if err != nil {
		t.Fatalf("second MarkLogReversed: %v", err)
	}
	if ok {
		t.Error("expected second reversal to be a no-op")
	}
}

func TestUndoAddAndDoubleUndo(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	key := model.SlotKey{SKU: "A", Warehouse: "W", Location: "Row 1"}
	s := mustSlot(t, ctx, database, key, 10)
	e := insertLog(t, ctx, database, model.AuditEntry{
		SKU: "A", FromWarehouse: model.Ptr("W"), FromLocation: model.Ptr("Row 1"),
		ActionType: model.ActionAdd, QuantityChange: 3, PrevQuantity: model.Ptr(7), NewQuantity: model.Ptr(10),
	})

	res, err := UndoLog(ctx, database, e.ID, t0.Add(time.Minute))
	if err != nil {
		t.Fatalf("UndoLog: %v", err)
	}
	if !res.Entry.IsReversed || len(res.Keys) != 1 || res.Keys[0] != key {
		t.Errorf("unexpected undo result: %+v", res)
	}

	got, _ := GetSlot(ctx, database, s.ID)
	if got.Quantity != 7 {
		t.Errorf("expected 7 after undoing +3, got %d", got.Quantity)
	}

	_, err = UndoLog(ctx, database, e.ID, t0.Add(2*time.Minute))
	if !errors.Is(err, model.ErrAlreadyReversed) {
		t.Fatalf("expected ErrAlreadyReversed, got %v", err)
	}
	got, _ = GetSlot(ctx, database, s.ID)
	if got.Quantity != 7 {
		t.Errorf("second undo must not change quantity, got %d", got.Quantity)
	}
}

func TestUndoDeductRevivesDeletedSlot(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	e := insertLog(t, ctx, database, model.AuditEntry{
		SKU: "A", FromWarehouse: model.Ptr("W"), FromLocation: model.Ptr("Row 2"),
		ActionType: model.ActionDeduct, QuantityChange: -4, PrevQuantity: model.Ptr(4), NewQuantity: model.Ptr(0),
	})

	if _, err := UndoLog(ctx, database, e.ID, t0.Add(time.Minute)); err != nil {
		t.Fatalf("UndoLog: %v", err)
	}

	got, _ := GetSlotByKey(ctx, database, model.SlotKey{SKU: "A", Warehouse: "W", Location: "Row 2"})
	if got == nil || got.Quantity != 4 {
		t.Fatalf("expected revived slot with 4, got %+v", got)
	}
}

func TestUndoMoveReturnsStock(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	src := mustSlot(t, ctx, database, model.SlotKey{SKU: "A", Warehouse: "W", Location: "Row 1"}, 2)
	dst := mustSlot(t, ctx, database, model.SlotKey{SKU: "A", Warehouse: "W", Location: "Row 9"}, 5)
	e := insertLog(t, ctx, database, model.AuditEntry{
		SKU: "A", FromWarehouse: model.Ptr("W"), FromLocation: model.Ptr("Row 1"),
		ToWarehouse: model.Ptr("W"), ToLocation: model.Ptr("Row 9"),
		ActionType: model.ActionMove, QuantityChange: 3,
	})

	res, err := UndoLog(ctx, database, e.ID, t0.Add(time.Minute))
	if err != nil {
		t.Fatalf("UndoLog: %v", err)
	}
	if len(res.Keys) != 2 {
		t.Errorf("expected both endpoints touched, got %v", res.Keys)
	}

	gotSrc, _ := GetSlot(ctx, database, src.ID)
	gotDst, _ := GetSlot(ctx, database, dst.ID)
	if gotSrc.Quantity != 5 || gotDst.Quantity != 2 {
		t.Errorf("expected src=5 dst=2, got src=%d dst=%d", gotSrc.Quantity, gotDst.Quantity)
	}
}

func TestUndoDeleteAndEdit(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	del := insertLog(t, ctx, database, model.AuditEntry{
		SKU: "D", FromWarehouse: model.Ptr("W"), FromLocation: model.Ptr("Row 4"),
		ActionType: model.ActionDelete, QuantityChange: -6, PrevQuantity: model.Ptr(6), NewQuantity: model.Ptr(0),
	})
	if _, err := UndoLog(ctx, database, del.ID, t0.Add(time.Minute)); err != nil {
		t.Fatalf("UndoLog delete: %v", err)
	}
	revived, _ := GetSlotByKey(ctx, database, model.SlotKey{SKU: "D", Warehouse: "W", Location: "Row 4"})
	if revived == nil || revived.Quantity != 6 {
		t.Fatalf("expected recreated slot with 6, got %+v", revived)
	}

	edited := mustSlot(t, ctx, database, model.SlotKey{SKU: "E", Warehouse: "W", Location: "Row 5"}, 40)
	edit := insertLog(t, ctx, database, model.AuditEntry{
		SKU: "E", FromWarehouse: model.Ptr("W"), FromLocation: model.Ptr("Row 5"),
		ActionType: model.ActionEdit, QuantityChange: 28, PrevQuantity: model.Ptr(12), NewQuantity: model.Ptr(40),
	})
	if _, err := UndoLog(ctx, database, edit.ID, t0.Add(time.Minute)); err != nil {
		t.Fatalf("UndoLog edit: %v", err)
	}
	got, _ := GetSlot(ctx, database, edited.ID)
	if got.Quantity != 12 {
		t.Errorf("expected edit to restore 12, got %d", got.Quantity)
	}
}

func TestUndoLIFOViolation(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	s := mustSlot(t, ctx, database, model.SlotKey{SKU: "A", Warehouse: "W", Location: "Row 1"}, 8)
	older := insertLog(t, ctx, database, model.AuditEntry{
		SKU: "A", FromWarehouse: model.Ptr("W"), FromLocation: model.Ptr("Row 1"),
		ActionType: model.ActionAdd, QuantityChange: 10, CreatedAt: t0,
	})
	newer := insertLog(t, ctx, database, model.AuditEntry{
		SKU: "A", FromWarehouse: model.Ptr("W"), FromLocation: model.Ptr("Row 1"),
		ActionType: model.ActionDeduct, QuantityChange: -2, CreatedAt: t0.Add(10 * time.Second),
	})

	_, err := UndoLog(ctx, database, older.ID, t0.Add(time.Minute))
	if !errors.Is(err, model.ErrLIFOViolation) {
		t.Fatalf("expected ErrLIFOViolation, got %v", err)
	}
	got, _ := GetSlot(ctx, database, s.ID)
	if got.Quantity != 8 {
		t.Errorf("blocked undo must not change quantity, got %d", got.Quantity)
	}

	if _, err := UndoLog(ctx, database, newer.ID, t0.Add(time.Minute)); err != nil {
		t.Fatalf("undo newest: %v", err)
	}
	if _, err := UndoLog(ctx, database, older.ID, t0.Add(2*time.Minute)); err != nil {
		t.Fatalf("undo older after newest reversed: %v", err)
	}
	got, _ = GetSlot(ctx, database, s.ID)
	if got.Quantity != 0 {
		t.Errorf("expected 0 after undoing both, got %d", got.Quantity)
	}
}

func TestUndoMissingLog(t *testing.T) {
	database := db.NewTestDB(t)

	_, err := UndoLog(context.Background(), database, "missing", t0)
	if !errors.Is(err, model.ErrLogNotFound) {
		t.Fatalf("expected ErrLogNotFound, got %v", err)
	}
}

func TestListLogsByList(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	insertLog(t, ctx, database, model.AuditEntry{SKU: "A", ActionType: model.ActionDeduct, QuantityChange: -1, ListID: model.Ptr("L1")})
	insertLog(t, ctx, database, model.AuditEntry{SKU: "B", ActionType: model.ActionDeduct, QuantityChange: -1, ListID: model.Ptr("L1")})
	insertLog(t, ctx, database, model.AuditEntry{SKU: "C", ActionType: model.ActionDeduct, QuantityChange: -1})

	logs, err := ListLogs(ctx, database, LogFilter{ListID: "L1"})
	if err != nil {
		t.Fatalf("ListLogs: %v", err)
	}
	if len(logs) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(logs))
	}

	if err := DeleteLogsByList(ctx, database, "L1"); err != nil {
		t.Fatalf("DeleteLogsByList: %v", err)
	}
	all, _ := ListLogs(ctx, database, LogFilter{})
	if len(all) != 1 {
		t.Errorf("expected 1 remaining entry, got %d", len(all))
	}
}

func TestMergedEntryCountsAsNewer(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	mustSlot(t, ctx, database, model.SlotKey{SKU: "A", Warehouse: "W", Location: "Row 1"}, 15)
	added := insertLog(t, ctx, database, model.AuditEntry{
		SKU: "A", FromWarehouse: model.Ptr("W"), FromLocation: model.Ptr("Row 1"),
		ActionType: model.ActionAdd, QuantityChange: 2, CreatedAt: t0,
	})
	edit := insertLog(t, ctx, database, model.AuditEntry{
		SKU: "A", FromWarehouse: model.Ptr("W"), FromLocation: model.Ptr("Row 1"),
		ActionType: model.ActionEdit, QuantityChange: 8, PrevQuantity: model.Ptr(12), NewQuantity: model.Ptr(20),
		CreatedAt: t0.Add(10 * time.Second),
	})
	if err := MergeLog(ctx, database, added.ID, model.ActionAdd, 5, model.Ptr(23), t0.Add(20*time.Second)); err != nil {
		t.Fatalf("MergeLog: %v", err)
	}

	newer, err := HasNewerActivity(ctx, database, edit)
	if err != nil {
		t.Fatalf("HasNewerActivity: %v", err)
	}
	if !newer {
		t.Error("an entry merged into after the edit must count as newer")
	}
	if _, err := UndoLog(ctx, database, edit.ID, t0.Add(time.Minute)); !errors.Is(err, model.ErrLIFOViolation) {
		t.Errorf("expected ErrLIFOViolation, got %v", err)
	}
}
