package picking

import (
	"context"

	"github.com/erazemk/stockledger/internal/model"
	"github.com/erazemk/stockledger/internal/store"
)

// ReservedByOthers is the quantity at key claimed by lists in ReservingStatuses
// that do not belong to actor.
func (s *Service) ReservedByOthers(ctx context.Context, actor model.Actor, key model.SlotKey) (int, error) {
	lists, err := store.ListLists(ctx, s.db, model.ReservingStatuses)
	if err != nil {
		return 0, model.Transient("loading reservations", err)
	}
	key = key.Normalize()
	total := 0
	for _, l := range lists {
		if l.UserID == actor.ID {
			continue
		}
		total += l.Items.QuantityFor(key)
	}
	return total, nil
}

// Available is what actor may still pick at key. In building mode other
// operators' reservations are ignored.
func (s *Service) Available(ctx context.Context, actor model.Actor, key model.SlotKey, building bool) (int, error) {
	stock, err := s.ledger.Quantity(ctx, key.Normalize())
	if err != nil {
		return 0, err
	}
	if building {
		return stock, nil
	}
	reserved, err := s.ReservedByOthers(ctx, actor, key)
	if err != nil {
		return 0, err
	}
	return stock - reserved, nil
}

// checkStock verifies every line fits in stock minus what other pending lists
// claim. exclude is the list being checked, if any.
func (s *Service) checkStock(ctx context.Context, items model.PickingItems, exclude string) error {
	lists, err := store.ListLists(ctx, s.db, model.PendingStatuses)
	if err != nil {
		return model.Transient("loading reservations", err)
	}

	wanted := make(map[model.SlotKey]int)
	var order []model.SlotKey
	for _, it := range items {
		if it.RequestedQty <= 0 {
			return model.ErrInvalidQuantity
		}
		key := it.Key().Normalize()
		if _, seen := wanted[key]; !seen {
			order = append(order, key)
		}
		wanted[key] += it.RequestedQty
	}

	for _, key := range order {
		stock, err := s.ledger.Quantity(ctx, key)
		if err != nil {
			return err
		}
		reserved := 0
		for _, l := range lists {
			if l.ID != exclude {
				reserved += l.Items.QuantityFor(key)
			}
		}
		if want := wanted[key]; want > stock-reserved {
			return capacityError(key, want, stock-reserved)
		}
	}
	return nil
}

// normalized returns items with trimmed slot keys.
func normalized(items model.PickingItems) model.PickingItems {
	out := make(model.PickingItems, len(items))
	for i, it := range items {
		k := it.Key().Normalize()
		it.SKU, it.Warehouse, it.Location = k.SKU, k.Warehouse, k.Location
		out[i] = it
	}
	return out
}
