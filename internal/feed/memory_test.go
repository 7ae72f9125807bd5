package feed

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erazemk/stockledger/internal/model"
)

func TestMemoryDeliversToSubscribers(t *testing.T) {
	b := NewMemory()
	ctx := context.Background()
	at := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	var first, second []Event
	unsub1, err := b.Subscribe(func(ev Event) { first = append(first, ev) })
	require.NoError(t, err)
	_, err = b.Subscribe(func(ev Event) { second = append(second, ev) })
	require.NoError(t, err)

	slot := &model.Slot{ID: "s1", SKU: "A", Quantity: 3}
	require.NoError(t, b.Publish(ctx, SlotChanged(slot, at)))

	require.Len(t, first, 1)
	require.Len(t, second, 1)
	assert.Equal(t, KindSlot, first[0].Kind)
	assert.Equal(t, "s1", first[0].RecordID)
	assert.NotEmpty(t, first[0].ID)

	unsub1()
	unsub1()
	require.NoError(t, b.Publish(ctx, SlotDeleted("s1", at)))
	assert.Len(t, first, 1)
	assert.Len(t, second, 2)
	assert.Equal(t, OpDelete, second[1].Op)
}

func TestMemoryHandlerMayPublish(t *testing.T) {
	b := NewMemory()
	ctx := context.Background()

	var got []Kind
	_, err := b.Subscribe(func(ev Event) {
		got = append(got, ev.Kind)
		if ev.Kind == KindList {
			_ = b.Publish(ctx, NoteAdded(&model.ListNote{ID: "n1"}, ev.At))
		}
	})
	require.NoError(t, err)

	require.NoError(t, b.Publish(ctx, ListDeleted("l1", time.Now())))
	assert.Equal(t, []Kind{KindList, KindNote}, got)
}

func TestMemoryClosed(t *testing.T) {
	b := NewMemory()
	called := false
	_, err := b.Subscribe(func(Event) { called = true })
	require.NoError(t, err)

	require.NoError(t, b.Close())
	require.NoError(t, b.Publish(context.Background(), LogDeleted("x", time.Now())))
	assert.False(t, called)
}
