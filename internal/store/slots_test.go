package store

import (
	"context"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/erazemk/stockledger/internal/db"
	"github.com/erazemk/stockledger/internal/model"
)

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func mustSlot(t *testing.T, ctx context.Context, database sqlx.ExtContext, key model.SlotKey, qty int) *model.Slot {
	t.Helper()
	s := &model.Slot{SKU: key.SKU, Warehouse: key.Warehouse, Location: key.Location, Quantity: qty, UpdatedAt: t0}
	if err := CreateSlot(ctx, database, s); err != nil {
		t.Fatalf("CreateSlot: %v", err)
	}
	return s
}

func TestCreateAndGetSlot(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	key := model.SlotKey{SKU: "SKU-1", Warehouse: "LUDLOW", Location: "Row 1"}
	s := mustSlot(t, ctx, database, key, 12)

	got, err := GetSlot(ctx, database, s.ID)
	if err != nil {
		t.Fatalf("GetSlot: %v", err)
	}
	if got == nil || got.Quantity != 12 || got.Key() != key {
		t.Fatalf("unexpected slot: %+v", got)
	}
	if !got.UpdatedAt.Equal(t0) {
		t.Errorf("expected updated_at %v, got %v", t0, got.UpdatedAt)
	}

	byKey, err := GetSlotByKey(ctx, database, key)
	if err != nil {
		t.Fatalf("GetSlotByKey: %v", err)
	}
	if byKey == nil || byKey.ID != s.ID {
		t.Errorf("expected lookup by key to find %s, got %+v", s.ID, byKey)
	}

	missing, err := GetSlot(ctx, database, "nope")
	if err != nil {
		t.Fatalf("GetSlot missing: %v", err)
	}
	if missing != nil {
		t.Error("expected nil for missing slot")
	}
}

func TestDuplicateSlotRejected(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	key := model.SlotKey{SKU: "SKU-1", Warehouse: "LUDLOW", Location: "Row 1"}
	mustSlot(t, ctx, database, key, 1)

	dup := &model.Slot{SKU: key.SKU, Warehouse: key.Warehouse, Location: key.Location, UpdatedAt: t0}
	if err := CreateSlot(ctx, database, dup); err == nil {
		t.Error("expected unique violation")
	}
}

func TestDebitSlotGuard(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	s := mustSlot(t, ctx, database, model.SlotKey{SKU: "A", Warehouse: "W", Location: "L"}, 4)

	ok, err := DebitSlot(ctx, database, s.ID, 10, t0)
	if err != nil {
		t.Fatalf("DebitSlot: %v", err)
	}
	if ok {
		t.Fatal("expected guard to reject debit larger than stock")
	}

	ok, err = DebitSlot(ctx, database, s.ID, 4, t0)
	if err != nil || !ok {
		t.Fatalf("DebitSlot exact: ok=%v err=%v", ok, err)
	}

	got, _ := GetSlot(ctx, database, s.ID)
	if got.Quantity != 0 {
		t.Errorf("expected 0 after debit, got %d", got.Quantity)
	}
}

func TestCreditSlotUpserts(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	key := model.SlotKey{SKU: "A", Warehouse: "W", Location: "Row 3"}

	s, err := CreditSlot(ctx, database, key, nil, 5, t0)
	if err != nil {
		t.Fatalf("CreditSlot create: %v", err)
	}
	if s.Quantity != 5 {
		t.Fatalf("expected 5, got %d", s.Quantity)
	}

	s2, err := CreditSlot(ctx, database, key, nil, 3, t0.Add(time.Minute))
	if err != nil {
		t.Fatalf("CreditSlot increment: %v", err)
	}
	if s2.ID != s.ID || s2.Quantity != 8 {
		t.Errorf("expected same slot with 8, got %+v", s2)
	}
}

func TestSetSlotQuantityMissing(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	ok, err := SetSlotQuantity(ctx, database, "missing", 3, t0)
	if err != nil {
		t.Fatalf("SetSlotQuantity: %v", err)
	}
	if ok {
		t.Error("expected false for missing slot")
	}
}

func TestLinkSlotLocations(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	loc := &model.Location{Warehouse: "LUDLOW", Name: "Row 7", MaxCapacity: 550, Zone: model.ZoneUnassigned, IsActive: true, CreatedAt: t0}
	if err := CreateLocation(ctx, database, loc); err != nil {
		t.Fatalf("CreateLocation: %v", err)
	}

	linked := mustSlot(t, ctx, database, model.SlotKey{SKU: "A", Warehouse: "LUDLOW", Location: "row 7"}, 1)
	unmatched := mustSlot(t, ctx, database, model.SlotKey{SKU: "B", Warehouse: "LUDLOW", Location: "Row 8"}, 1)

	n, err := LinkSlotLocations(ctx, database)
	if err != nil {
		t.Fatalf("LinkSlotLocations: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 linked slot, got %d", n)
	}

	got, _ := GetSlot(ctx, database, linked.ID)
	if got.LocationID == nil || *got.LocationID != loc.ID {
		t.Errorf("expected location_id %s, got %v", loc.ID, got.LocationID)
	}
	other, _ := GetSlot(ctx, database, unmatched.ID)
	if other.LocationID != nil {
		t.Errorf("expected unmatched slot to stay unlinked, got %v", *other.LocationID)
	}
}

func TestListSlotsFilter(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	mustSlot(t, ctx, database, model.SlotKey{SKU: "A", Warehouse: "LUDLOW", Location: "Row 1"}, 1)
	mustSlot(t, ctx, database, model.SlotKey{SKU: "A", Warehouse: "ATS", Location: "Row 1"}, 2)
	mustSlot(t, ctx, database, model.SlotKey{SKU: "B", Warehouse: "LUDLOW", Location: "Row 2"}, 3)

	all, err := ListSlots(ctx, database, SlotFilter{})
	if err != nil {
		t.Fatalf("ListSlots: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("expected 3 slots, got %d", len(all))
	}

	onlyA, _ := ListSlots(ctx, database, SlotFilter{SKU: "A"})
	if len(onlyA) != 2 {
		t.Errorf("expected 2 slots for A, got %d", len(onlyA))
	}

	ludlowA, _ := ListSlots(ctx, database, SlotFilter{SKU: "A", Warehouse: "LUDLOW"})
	if len(ludlowA) != 1 || ludlowA[0].Quantity != 1 {
		t.Errorf("unexpected filtered result: %+v", ludlowA)
	}
}

func TestSetSlotQuantityIfGuard(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	s := mustSlot(t, ctx, database, model.SlotKey{SKU: "A", Warehouse: "W", Location: "L"}, 5)

	ok, err := SetSlotQuantityIf(ctx, database, s.ID, 4, 9, t0)
	if err != nil {
		t.Fatalf("SetSlotQuantityIf: %v", err)
	}
	if ok {
		t.Fatal("expected stale expectation to be rejected")
	}

	ok, err = SetSlotQuantityIf(ctx, database, s.ID, 5, 9, t0)
	if err != nil || !ok {
		t.Fatalf("SetSlotQuantityIf: ok=%v err=%v", ok, err)
	}
	got, _ := GetSlot(ctx, database, s.ID)
	if got.Quantity != 9 {
		t.Errorf("expected 9, got %d", got.Quantity)
	}
}
