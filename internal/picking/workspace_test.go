package picking

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erazemk/stockledger/internal/feed"
	"github.com/erazemk/stockledger/internal/model"
)

func TestAddToCartRespectsReservations(t *testing.T) {
	f := newFixture(t)
	f.stock(t, shelf, 5)
	_, err := f.svc.StartList(f.ctx, bob, items(5), nil)
	require.NoError(t, err)

	w := f.workspace(t, alice)
	err = w.AddToCart(f.ctx, model.PickingItem{SKU: shelf.SKU, Warehouse: shelf.Warehouse, Location: shelf.Location})
	assert.ErrorIs(t, err, model.ErrCapacity)

	w.SetBuilding(true)
	require.NoError(t, w.AddToCart(f.ctx, model.PickingItem{SKU: shelf.SKU, Warehouse: shelf.Warehouse, Location: shelf.Location, RequestedQty: 2}))
	assert.Equal(t, 2, w.State().Cart.QuantityFor(shelf))
}

func TestUpdateQuantityBounds(t *testing.T) {
	f := newFixture(t)
	f.stock(t, shelf, 3)
	w := f.workspace(t, alice)

	require.NoError(t, w.AddToCart(f.ctx, model.PickingItem{SKU: shelf.SKU, Warehouse: shelf.Warehouse, Location: shelf.Location}))
	require.NoError(t, w.AddToCart(f.ctx, model.PickingItem{SKU: shelf.SKU, Warehouse: shelf.Warehouse, Location: shelf.Location}))
	assert.Len(t, w.State().Cart, 1)
	assert.Equal(t, 2, w.State().Cart.QuantityFor(shelf))

	assert.ErrorIs(t, w.UpdateQuantity(f.ctx, shelf, 4), model.ErrCapacity)
	require.NoError(t, w.UpdateQuantity(f.ctx, shelf, 3))
	assert.ErrorIs(t, w.AddToCart(f.ctx, model.PickingItem{SKU: shelf.SKU, Warehouse: shelf.Warehouse, Location: shelf.Location}), model.ErrCapacity)

	require.NoError(t, w.UpdateQuantity(f.ctx, shelf, 0))
	assert.Empty(t, w.State().Cart)
}

func TestCartSavedAfterQuietPeriod(t *testing.T) {
	f := newFixture(t)
	f.stock(t, shelf, 10)
	w := f.workspace(t, bob)

	require.NoError(t, w.AddToCart(f.ctx, model.PickingItem{SKU: shelf.SKU, Warehouse: shelf.Warehouse, Location: shelf.Location}))
	assert.False(t, w.State().Dirty, "nothing to save before the list exists")

	list, err := w.Start(f.ctx, nil)
	require.NoError(t, err)

	require.NoError(t, w.UpdateQuantity(f.ctx, shelf, 4))
	f.clk.Advance(600 * time.Millisecond)
	require.NoError(t, w.UpdateQuantity(f.ctx, shelf, 6))
	f.clk.Advance(600 * time.Millisecond)

	stored, err := f.svc.Get(f.ctx, list.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.Items.QuantityFor(shelf), "save waits for the last edit to settle")
	assert.True(t, w.State().Dirty)

	f.clk.Advance(500 * time.Millisecond)
	stored, err = f.svc.Get(f.ctx, list.ID)
	require.NoError(t, err)
	assert.Equal(t, 6, stored.Items.QuantityFor(shelf))
	assert.False(t, w.State().Dirty)
}

func TestWorkspaceResumesOpenList(t *testing.T) {
	f := newFixture(t)
	l := f.list(t, bob, model.StatusNeedsCorrection, 2)

	st := f.workspace(t, bob).State()
	require.NotNil(t, st.List)
	assert.Equal(t, l.ID, st.List.ID)
	assert.Equal(t, ModePicking, st.Mode)
	assert.Equal(t, 2, st.Cart.QuantityFor(shelf))
}

func TestMarkReadyThenExternalRevert(t *testing.T) {
	f := newFixture(t)
	f.stock(t, shelf, 10)
	w := f.workspace(t, bob)
	w.SetItems(items(2), nil)
	_, err := w.Start(f.ctx, nil)
	require.NoError(t, err)

	_, err = w.MarkReady(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, ModeChecking, w.State().Mode)

	// Another device of the same operator reverts the list.
	_, err = f.svc.RevertToPicking(f.ctx, bob, w.State().List.ID)
	require.NoError(t, err)

	st := w.State()
	assert.Equal(t, ModePicking, st.Mode)
	require.NotNil(t, st.List)
	assert.Equal(t, model.StatusActive, st.List.Status)
	assert.False(t, st.TakenOver)
}

func TestCheckerWorkspaceFlow(t *testing.T) {
	f := newFixture(t)
	x := f.list(t, bob, model.StatusReadyToDoubleCheck, 1)
	y := f.list(t, carol, model.StatusReadyToDoubleCheck, 1)
	w := f.workspace(t, dave)

	_, err := w.Lock(f.ctx, x.ID)
	require.NoError(t, err)
	_, err = w.Lock(f.ctx, y.ID)
	require.NoError(t, err)
	assert.Equal(t, y.ID, w.State().List.ID)

	require.NoError(t, w.Return(f.ctx, "wrong bin"))
	st := w.State()
	assert.Nil(t, st.List)
	assert.Equal(t, ModePicking, st.Mode)

	_, err = w.Lock(f.ctx, x.ID)
	require.NoError(t, err)
	require.NoError(t, w.Complete(f.ctx))
	assert.Nil(t, w.State().List)

	got, err := f.svc.Get(f.ctx, x.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, got.Status)
}

func TestTakeoverDetected(t *testing.T) {
	f := newFixture(t)
	x := f.list(t, bob, model.StatusReadyToDoubleCheck, 1)
	w := f.workspace(t, dave)
	locked, err := w.Lock(f.ctx, x.ID)
	require.NoError(t, err)

	other := *locked
	other.CheckedBy = model.Ptr(carol.ID)
	require.NoError(t, f.broker.Publish(f.ctx, feed.ListChanged(&other, f.clk.Now())))

	st := w.State()
	assert.True(t, st.TakenOver)
	assert.Nil(t, st.List)

	w.AcknowledgeTakeover()
	assert.False(t, w.State().TakenOver)
}

func TestPickerTakeoverDetected(t *testing.T) {
	f := newFixture(t)
	l := f.list(t, bob, model.StatusActive, 1)
	w := f.workspace(t, bob)
	require.NotNil(t, w.State().List)

	moved := *l
	moved.UserID = carol.ID
	require.NoError(t, f.broker.Publish(f.ctx, feed.ListChanged(&moved, f.clk.Now())))
	assert.True(t, w.State().TakenOver)
}

func TestDeletedListClearsWorkspace(t *testing.T) {
	f := newFixture(t)
	f.list(t, bob, model.StatusActive, 1)
	w := f.workspace(t, bob)

	require.NoError(t, w.Delete(f.ctx))
	st := w.State()
	assert.Nil(t, st.List)
	assert.Empty(t, st.Cart)
	assert.False(t, st.TakenOver)
}
