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

func mustList(t *testing.T, ctx context.Context, database sqlx.ExtContext, userID string, status model.ListStatus) *model.PickingList {
	t.Helper()
	l := &model.PickingList{
		UserID:    userID,
		Status:    status,
		Items:     model.PickingItems{{SKU: "A", Warehouse: "W", Location: "Row 1", RequestedQty: 2}},
		CreatedAt: t0,
		UpdatedAt: t0,
	}
	if err := CreateList(ctx, database, l); err != nil {
		t.Fatalf("CreateList: %v", err)
	}
	return l
}

func TestCreateAndGetList(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	l := mustList(t, ctx, database, "picker", model.StatusActive)

	got, err := GetList(ctx, database, l.ID)
	if err != nil {
		t.Fatalf("GetList: %v", err)
	}
	if got == nil || got.Status != model.StatusActive || len(got.Items) != 1 || got.Items[0].RequestedQty != 2 {
		t.Fatalf("unexpected list: %+v", got)
	}

	open, err := OpenListForUser(ctx, database, "picker")
	if err != nil {
		t.Fatalf("OpenListForUser: %v", err)
	}
	if open == nil || open.ID != l.ID {
		t.Errorf("expected open list %s, got %+v", l.ID, open)
	}
}

func TestSaveListDraftOnlyWhileActive(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	l := mustList(t, ctx, database, "picker", model.StatusActive)
	items := model.PickingItems{{SKU: "B", Warehouse: "W", Location: "Row 2", RequestedQty: 5}}

	ok, err := SaveListDraft(ctx, database, l.ID, items, model.Ptr("SO-1"), t0.Add(time.Second))
	if err != nil || !ok {
		t.Fatalf("SaveListDraft active: ok=%v err=%v", ok, err)
	}

	ok, err = TransitionList(ctx, database, Transition{
		ID: l.ID, From: []model.ListStatus{model.StatusActive}, To: model.StatusReadyToDoubleCheck, At: t0.Add(2 * time.Second),
	})
	if err != nil || !ok {
		t.Fatalf("TransitionList: ok=%v err=%v", ok, err)
	}

	ok, err = SaveListDraft(ctx, database, l.ID, model.PickingItems{}, nil, t0.Add(3*time.Second))
	if err != nil {
		t.Fatalf("SaveListDraft: %v", err)
	}
	if ok {
		t.Error("expected draft save to be ignored after leaving active")
	}

	got, _ := GetList(ctx, database, l.ID)
	if len(got.Items) != 1 || got.Items[0].SKU != "B" || got.OrderNumber == nil || *got.OrderNumber != "SO-1" {
		t.Errorf("unexpected stored draft: %+v", got)
	}
}

func TestTransitionGuard(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	l := mustList(t, ctx, database, "picker", model.StatusCompleted)

	ok, err := TransitionList(ctx, database, Transition{
		ID: l.ID, From: model.PendingStatuses, To: model.StatusActive, At: t0,
	})
	if err != nil {
		t.Fatalf("TransitionList: %v", err)
	}
	if ok {
		t.Error("completed list must not transition")
	}
}

func TestLockListReleasesPreviousLock(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	x := mustList(t, ctx, database, "p1", model.StatusReadyToDoubleCheck)
	y := mustList(t, ctx, database, "p2", model.StatusReadyToDoubleCheck)
	from := []model.ListStatus{model.StatusReadyToDoubleCheck, model.StatusDoubleChecking}

	if _, err := LockList(ctx, database, LockRequest{ListID: x.ID, CheckerID: "checker", From: from, At: t0}); err != nil {
		t.Fatalf("LockList x: %v", err)
	}

	res, err := LockList(ctx, database, LockRequest{ListID: y.ID, CheckerID: "checker", From: from, At: t0.Add(time.Minute)})
	if err != nil {
		t.Fatalf("LockList y: %v", err)
	}
	if len(res.Released) != 1 || res.Released[0] != x.ID {
		t.Errorf("expected x to be released, got %v", res.Released)
	}
	if res.List.Status != model.StatusDoubleChecking || !res.List.CheckedByActor("checker") {
		t.Errorf("unexpected locked list: %+v", res.List)
	}

	gotX, _ := GetList(ctx, database, x.ID)
	if gotX.Status != model.StatusReadyToDoubleCheck || gotX.CheckedBy != nil {
		t.Errorf("expected x back in queue without checker, got %+v", gotX)
	}
}

func TestLockListHeldByOther(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	l := mustList(t, ctx, database, "p1", model.StatusReadyToDoubleCheck)
	from := []model.ListStatus{model.StatusReadyToDoubleCheck, model.StatusDoubleChecking}

	if _, err := LockList(ctx, database, LockRequest{ListID: l.ID, CheckerID: "c1", From: from, At: t0}); err != nil {
		t.Fatalf("LockList c1: %v", err)
	}

	_, err := LockList(ctx, database, LockRequest{ListID: l.ID, CheckerID: "c2", From: from, At: t0})
	if !errors.Is(err, model.ErrLockHeld) {
		t.Fatalf("expected ErrLockHeld, got %v", err)
	}

	// Re-locking by the holder is idempotent.
	if _, err := LockList(ctx, database, LockRequest{ListID: l.ID, CheckerID: "c1", From: from, At: t0}); err != nil {
		t.Errorf("relock by holder: %v", err)
	}

	_, err = LockList(ctx, database, LockRequest{ListID: "missing", CheckerID: "c1", From: from, At: t0})
	if !errors.Is(err, model.ErrListNotFound) {
		t.Errorf("expected ErrListNotFound, got %v", err)
	}
}

func TestLockListWrongStatus(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	l := mustList(t, ctx, database, "p1", model.StatusCompleted)
	_, err := LockList(ctx, database, LockRequest{
		ListID: l.ID, CheckerID: "c1", From: []model.ListStatus{model.StatusReadyToDoubleCheck}, At: t0,
	})
	if !errors.Is(err, model.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestNotesAndDeleteList(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	l := mustList(t, ctx, database, "p1", model.StatusNeedsCorrection)
	for i, body := range []string{"wrong bin", "fixed"} {
		n := &model.ListNote{ListID: l.ID, UserID: "c1", Author: "Carol", Body: body, CreatedAt: t0.Add(time.Duration(i) * time.Minute)}
		if err := InsertNote(ctx, database, n); err != nil {
			t.Fatalf("InsertNote: %v", err)
		}
	}

	notes, err := ListNotes(ctx, database, l.ID)
	if err != nil {
		t.Fatalf("ListNotes: %v", err)
	}
	if len(notes) != 2 || notes[0].Body != "wrong bin" {
		t.Fatalf("unexpected notes: %+v", notes)
	}

	if err := DeleteList(ctx, database, l.ID); err != nil {
		t.Fatalf("DeleteList: %v", err)
	}
	got, _ := GetList(ctx, database, l.ID)
	if got != nil {
		t.Error("expected list to be gone")
	}
	notes, _ = ListNotes(ctx, database, l.ID)
	if len(notes) != 0 {
		t.Errorf("expected notes to be gone, got %d", len(notes))
	}
}

func TestStaleLists(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	old := mustList(t, ctx, database, "p1", model.StatusActive)
	fresh := &model.PickingList{UserID: "p2", Status: model.StatusActive, CreatedAt: t0, UpdatedAt: t0.Add(6 * time.Hour)}
	if err := CreateList(ctx, database, fresh); err != nil {
		t.Fatalf("CreateList: %v", err)
	}

	stale, err := StaleLists(ctx, database, model.PendingStatuses, t0.Add(time.Hour))
	if err != nil {
		t.Fatalf("StaleLists: %v", err)
	}
	if len(stale) != 1 || stale[0].ID != old.ID {
		t.Errorf("expected only the old list, got %+v", stale)
	}

	pending, err := ListLists(ctx, database, []model.ListStatus{model.StatusActive})
	if err != nil {
		t.Fatalf("ListLists: %v", err)
	}
	if len(pending) != 2 {
		t.Errorf("expected 2 active lists, got %d", len(pending))
	}
}

func TestOneOpenListPerOwner(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	mustList(t, ctx, database, "picker", model.StatusActive)
	second := &model.PickingList{UserID: "picker", Status: model.StatusNeedsCorrection, CreatedAt: t0, UpdatedAt: t0}
	if err := CreateList(ctx, database, second); !errors.Is(err, model.ErrOpenListExists) {
		t.Fatalf("expected ErrOpenListExists, got %v", err)
	}

	checking := mustList(t, ctx, database, "picker", model.StatusDoubleChecking)
	ok, err := TransitionList(ctx, database, Transition{
		ID: checking.ID, From: []model.ListStatus{model.StatusDoubleChecking}, To: model.StatusActive, At: t0,
	})
	if !errors.Is(err, model.ErrOpenListExists) {
		t.Fatalf("expected ErrOpenListExists, got ok=%v err=%v", ok, err)
	}
	got, _ := GetList(ctx, database, checking.ID)
	if got.Status != model.StatusDoubleChecking {
		t.Errorf("refused transition must not change status, got %s", got.Status)
	}

	// Other owners and other states are unaffected.
	mustList(t, ctx, database, "other", model.StatusActive)
	mustList(t, ctx, database, "picker", model.StatusReadyToDoubleCheck)
}
