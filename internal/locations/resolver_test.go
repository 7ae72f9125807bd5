package locations

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erazemk/stockledger/internal/clock"
	"github.com/erazemk/stockledger/internal/db"
	"github.com/erazemk/stockledger/internal/model"
	"github.com/erazemk/stockledger/internal/store"
)

var (
	admin  = model.Actor{ID: "u-admin", Name: "admin", Privileged: true}
	picker = model.Actor{ID: "u-pick", Name: "pat"}
)

func newResolver(t *testing.T) (*Resolver, context.Context) {
	t.Helper()
	database := db.NewTestDB(t)
	return New(database, clock.NewFake(time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC))), context.Background()
}

func TestResolveExactAndRowAlias(t *testing.T) {
	r, ctx := newResolver(t)

	created, err := r.Create(ctx, admin, model.Location{Warehouse: "LUDLOW", Name: "Row 9"})
	require.NoError(t, err)
	assert.Equal(t, model.DefaultMaxCapacity, created.MaxCapacity)
	assert.Equal(t, model.ZoneUnassigned, created.Zone)

	exact, err := r.Resolve(ctx, "LUDLOW", "row 9")
	require.NoError(t, err)
	assert.Equal(t, "Row 9", exact.Name)
	require.NotNil(t, exact.ID)
	assert.Equal(t, created.ID, *exact.ID)
	assert.False(t, exact.IsNew)

	alias, err := r.Resolve(ctx, "LUDLOW", "9")
	require.NoError(t, err)
	assert.Equal(t, "Row 9", alias.Name)
	assert.False(t, alias.IsNew)

	fresh, err := r.Resolve(ctx, "LUDLOW", "12")
	require.NoError(t, err)
	assert.Equal(t, "Row 12", fresh.Name)
	assert.Nil(t, fresh.ID)
	assert.True(t, fresh.IsNew)

	other, err := r.Resolve(ctx, "LUDLOW", "Mezzanine")
	require.NoError(t, err)
	assert.Equal(t, "Mezzanine", other.Name)
	assert.True(t, other.IsNew)

	_, err = r.Resolve(ctx, "LUDLOW", "  ")
	assert.ErrorIs(t, err, model.ErrEmptyLocation)
}

func TestEnsureUnprivilegedLeavesRegistryUnchanged(t *testing.T) {
	r, ctx := newResolver(t)

	_, err := r.Ensure(ctx, picker, "LUDLOW", "44")
	assert.ErrorIs(t, err, model.ErrUnauthorized)

	n, err := store.CountLocations(ctx, r.db)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestEnsurePrivilegedCreatesOnce(t *testing.T) {
	r, ctx := newResolver(t)

	first, err := r.Ensure(ctx, admin, "ATS", "3")
	require.NoError(t, err)
	require.NotNil(t, first.ID)
	assert.Equal(t, "Row 3", first.Name)
	assert.True(t, first.IsNew)

	// Existing locations resolve for everyone.
	again, err := r.Ensure(ctx, picker, "ATS", "Row 3")
	require.NoError(t, err)
	assert.Equal(t, *first.ID, *again.ID)
	assert.False(t, again.IsNew)

	n, err := store.CountLocations(ctx, r.db)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSyncLinks(t *testing.T) {
	r, ctx := newResolver(t)

	loc, err := r.Create(ctx, admin, model.Location{Warehouse: "LUDLOW", Name: "Row 1"})
	require.NoError(t, err)
	s := &model.Slot{SKU: "A", Warehouse: "LUDLOW", Location: "Row 1", Quantity: 1, UpdatedAt: loc.CreatedAt}
	require.NoError(t, store.CreateSlot(ctx, r.db, s))

	n, err := r.SyncLinks(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := store.GetSlot(ctx, r.db, s.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LocationID)
	assert.Equal(t, loc.ID, *got.LocationID)
}
