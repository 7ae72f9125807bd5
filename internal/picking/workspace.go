package picking

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/erazemk/stockledger/internal/clock"
	"github.com/erazemk/stockledger/internal/feed"
	"github.com/erazemk/stockledger/internal/model"
	"github.com/erazemk/stockledger/internal/store"
)

// Mode is what an operator's workspace is doing.
type Mode string

const (
	ModePicking  Mode = "picking"
	ModeChecking Mode = "double_checking"
)

// State is a copy of a workspace for display.
type State struct {
	Mode        Mode               `json:"mode"`
	Building    bool               `json:"building"`
	List        *model.PickingList `json:"list,omitempty"`
	Cart        model.PickingItems `json:"cart"`
	OrderNumber *string            `json:"order_number,omitempty"`
	Dirty       bool               `json:"dirty"`
	TakenOver   bool               `json:"taken_over"`
}

// Workspace is one operator's view of the list they are picking or checking.
// Cart edits are saved after a quiet period; status changes go straight to
// the Service. Feed events keep it in step with changes made elsewhere.
type Workspace struct {
	svc   *Service
	actor model.Actor
	clock clock.Clock

	mu        sync.Mutex
	mode      Mode
	building  bool
	list      *model.PickingList
	cart      model.PickingItems
	order     *string
	timer     clock.Timer
	gen       int
	takenOver bool
}

// NewWorkspace creates an empty workspace for actor.
func NewWorkspace(svc *Service, actor model.Actor) *Workspace {
	return &Workspace{svc: svc, actor: actor, clock: svc.clock, mode: ModePicking, cart: model.PickingItems{}}
}

// State returns a snapshot of the workspace.
func (w *Workspace) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	st := State{
		Mode:        w.mode,
		Building:    w.building,
		Cart:        append(model.PickingItems{}, w.cart...),
		OrderNumber: w.order,
		Dirty:       w.timer != nil,
		TakenOver:   w.takenOver,
	}
	if w.list != nil {
		l := *w.list
		st.List = &l
	}
	return st
}

// SetBuilding switches the building sub-mode, in which other operators'
// reservations do not limit the cart.
func (w *Workspace) SetBuilding(on bool) {
	w.mu.Lock()
	w.building = on
	w.mu.Unlock()
}

// AcknowledgeTakeover clears the takeover flag.
func (w *Workspace) AcknowledgeTakeover() {
	w.mu.Lock()
	w.takenOver = false
	w.mu.Unlock()
}

// AddToCart adds item to the cart, merging with a line for the same slot.
// It is refused with ErrCapacity when nothing more is available.
func (w *Workspace) AddToCart(ctx context.Context, item model.PickingItem) error {
	if item.RequestedQty <= 0 {
		item.RequestedQty = 1
	}
	key := item.Key().Normalize()

	w.mu.Lock()
	building := w.building
	inCart := w.cart.QuantityFor(key)
	w.mu.Unlock()

	available, err := w.svc.Available(ctx, w.actor, key, building)
	if err != nil {
		return err
	}
	if remaining := available - inCart; remaining <= 0 || item.RequestedQty > remaining {
		return capacityError(key, inCart+item.RequestedQty, available)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	for i := range w.cart {
		if w.cart[i].Key() == key {
			w.cart[i].RequestedQty += item.RequestedQty
			w.scheduleSave()
			return nil
		}
	}
	w.cart = append(w.cart, model.PickingItem{SKU: key.SKU, Warehouse: key.Warehouse, Location: key.Location, RequestedQty: item.RequestedQty})
	w.scheduleSave()
	return nil
}

// UpdateQuantity sets the requested quantity of the line at key. Zero or
// less removes the line; an increase must fit in what is available.
func (w *Workspace) UpdateQuantity(ctx context.Context, key model.SlotKey, qty int) error {
	key = key.Normalize()

	w.mu.Lock()
	building := w.building
	current := w.cart.QuantityFor(key)
	w.mu.Unlock()

	if qty > current {
		available, err := w.svc.Available(ctx, w.actor, key, building)
		if err != nil {
			return err
		}
		if qty > available {
			return capacityError(key, qty, available)
		}
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	cart := w.cart[:0:0]
	found := false
	for _, it := range w.cart {
		if it.Key() != key {
			cart = append(cart, it)
			continue
		}
		if found || qty <= 0 {
			continue
		}
		found = true
		it.RequestedQty = qty
		cart = append(cart, it)
	}
	if !found && qty > 0 {
		cart = append(cart, model.PickingItem{SKU: key.SKU, Warehouse: key.Warehouse, Location: key.Location, RequestedQty: qty})
	}
	w.cart = cart
	w.scheduleSave()
	return nil
}

// SetItems replaces the cart and order number.
func (w *Workspace) SetItems(items model.PickingItems, orderNumber *string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.cart = normalized(items)
	w.order = orderNumber
	w.scheduleSave()
}

// scheduleSave restarts the save timer. Only an attached active list is
// saved. Callers hold w.mu.
func (w *Workspace) scheduleSave() {
	if w.list == nil || w.list.Status != model.StatusActive || w.mode != ModePicking {
		return
	}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.gen++
	gen := w.gen
	w.timer = w.clock.AfterFunc(w.svc.cfg.SaveDebounce, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := w.save(ctx, gen); err != nil {
			slog.Error("saving picking list", "user", w.actor.Name, "error", err)
		}
	})
}

// save writes the cart if no edit has happened since gen. A negative gen
// saves unconditionally.
func (w *Workspace) save(ctx context.Context, gen int) error {
	w.mu.Lock()
	if gen >= 0 && gen != w.gen {
		w.mu.Unlock()
		return nil
	}
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	if w.list == nil {
		w.mu.Unlock()
		return nil
	}
	id, items, order := w.list.ID, append(model.PickingItems{}, w.cart...), w.order
	w.mu.Unlock()

	_, err := w.svc.SaveItems(ctx, w.actor, id, items, order)
	return err
}

// Flush writes any unsaved cart edits now.
func (w *Workspace) Flush(ctx context.Context) error {
	w.mu.Lock()
	dirty := w.timer != nil
	w.mu.Unlock()
	if !dirty {
		return nil
	}
	return w.save(ctx, -1)
}

// Start turns the cart into the operator's active list.
func (w *Workspace) Start(ctx context.Context, orderNumber *string) (*model.PickingList, error) {
	w.mu.Lock()
	items := append(model.PickingItems{}, w.cart...)
	w.mu.Unlock()

	list, err := w.svc.StartList(ctx, w.actor, items, orderNumber)
	if err != nil {
		return nil, err
	}
	w.attach(list, ModePicking)
	return list, nil
}

// MarkReady saves the cart and hands the list over for verification with
// this operator as checker.
func (w *Workspace) MarkReady(ctx context.Context) (*model.PickingList, error) {
	w.mu.Lock()
	if w.list == nil {
		w.mu.Unlock()
		return nil, model.ErrListNotFound
	}
	w.stopTimer()
	id, items, order := w.list.ID, append(model.PickingItems{}, w.cart...), w.order
	w.mu.Unlock()

	list, err := w.svc.MarkReady(ctx, w.actor, id, items, order)
	if err != nil {
		return nil, err
	}
	w.attach(list, ModeChecking)
	return list, nil
}

// Lock takes listID off the verification queue into this workspace.
func (w *Workspace) Lock(ctx context.Context, listID string) (*model.PickingList, error) {
	if err := w.Flush(ctx); err != nil {
		slog.Warn("saving cart before lock", "user", w.actor.Name, "error", err)
	}
	list, err := w.svc.LockForCheck(ctx, w.actor, listID)
	if err != nil {
		return nil, err
	}
	w.attach(list, ModeChecking)
	return list, nil
}

// Release puts the list under check back on the queue.
func (w *Workspace) Release(ctx context.Context) error {
	return w.finish(ctx, w.svc.ReleaseCheck)
}

// Revert sends the list under check back to active picking.
func (w *Workspace) Revert(ctx context.Context) error {
	return w.finish(ctx, w.svc.RevertToPicking)
}

// Complete closes the list under check.
func (w *Workspace) Complete(ctx context.Context) error {
	return w.finish(ctx, w.svc.CompleteList)
}

// Return sends the list under check back to its picker with notes.
func (w *Workspace) Return(ctx context.Context, notes string) error {
	return w.finish(ctx, func(ctx context.Context, actor model.Actor, id string) (*model.PickingList, error) {
		return w.svc.ReturnToPicker(ctx, actor, id, notes)
	})
}

// Delete removes the attached list.
func (w *Workspace) Delete(ctx context.Context) error {
	id, err := w.listID()
	if err != nil {
		return err
	}
	if err := w.svc.DeleteList(ctx, w.actor, id); err != nil {
		return err
	}
	w.reset(false)
	return w.Resume(ctx)
}

func (w *Workspace) finish(ctx context.Context, op func(context.Context, model.Actor, string) (*model.PickingList, error)) error {
	id, err := w.listID()
	if err != nil {
		return err
	}
	if _, err := op(ctx, w.actor, id); err != nil {
		return err
	}
	w.reset(false)
	return w.Resume(ctx)
}

// Resume attaches the operator's own open list when the workspace is empty.
func (w *Workspace) Resume(ctx context.Context) error {
	open, err := store.OpenListForUser(ctx, w.svc.db, w.actor.ID)
	if err != nil {
		return model.Transient("loading open list", err)
	}
	if open == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.list == nil {
		w.setList(open, ModePicking)
	}
	return nil
}

func (w *Workspace) listID() (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.list == nil {
		return "", model.ErrListNotFound
	}
	return w.list.ID, nil
}

func (w *Workspace) attach(list *model.PickingList, mode Mode) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stopTimer()
	w.setList(list, mode)
}

// setList adopts list as the workspace's state. Callers hold w.mu.
func (w *Workspace) setList(list *model.PickingList, mode Mode) {
	l := *list
	w.list = &l
	w.mode = mode
	w.cart = append(model.PickingItems{}, l.Items...)
	w.order = l.OrderNumber
}

func (w *Workspace) reset(takenOver bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.clear()
	if takenOver {
		w.takenOver = true
	}
}

// clear drops the attached list and cart. Callers hold w.mu.
func (w *Workspace) clear() {
	w.stopTimer()
	w.list = nil
	w.mode = ModePicking
	w.cart = model.PickingItems{}
	w.order = nil
}

func (w *Workspace) stopTimer() {
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	w.gen++
}

// ApplyEvent folds a change from the feed into the workspace.
func (w *Workspace) ApplyEvent(ev feed.Event) {
	if ev.Kind != feed.KindList {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.list == nil || ev.RecordID != w.list.ID {
		return
	}

	if ev.Op == feed.OpDelete {
		w.clear()
		return
	}
	l := ev.List
	if l == nil {
		return
	}

	switch w.mode {
	case ModeChecking:
		switch {
		case l.Status == model.StatusDoubleChecking && !l.CheckedByActor(w.actor.ID):
			slog.Info("list taken over by another checker", "list", l.ID, "user", w.actor.Name)
			w.clear()
			w.takenOver = true
		case l.Status == model.StatusDoubleChecking:
			w.setList(l, ModeChecking)
		case l.UserID == w.actor.ID && l.Status.Open():
			w.setList(l, ModePicking)
		default:
			w.clear()
		}

	case ModePicking:
		switch {
		case l.UserID != w.actor.ID:
			slog.Info("list taken over by another picker", "list", l.ID, "user", w.actor.Name)
			w.clear()
			w.takenOver = true
		case l.Status == model.StatusDoubleChecking && l.CheckedByActor(w.actor.ID):
			w.setList(l, ModeChecking)
		case w.timer != nil:
			// Unsaved local edits win over the stored draft.
			cp := *l
			w.list = &cp
		case l.Status == model.StatusCompleted:
			w.clear()
		default:
			w.setList(l, ModePicking)
		}
	}
}

// Hub hands out one workspace per operator and routes feed events to them.
type Hub struct {
	svc *Service

	mu          sync.Mutex
	workspaces  map[string]*Workspace
	unsubscribe func()
}

// NewHub creates a Hub subscribed to broker.
func NewHub(svc *Service, broker feed.Broker) (*Hub, error) {
	h := &Hub{svc: svc, workspaces: make(map[string]*Workspace)}
	unsub, err := broker.Subscribe(h.dispatch)
	if err != nil {
		return nil, err
	}
	h.unsubscribe = unsub
	return h, nil
}

// Workspace returns actor's workspace, creating and resuming it on first use.
func (h *Hub) Workspace(ctx context.Context, actor model.Actor) (*Workspace, error) {
	h.mu.Lock()
	w := h.workspaces[actor.ID]
	if w != nil {
		h.mu.Unlock()
		return w, nil
	}
	w = NewWorkspace(h.svc, actor)
	h.workspaces[actor.ID] = w
	h.mu.Unlock()

	if err := w.Resume(ctx); err != nil {
		return nil, err
	}
	return w, nil
}

// Close saves every workspace's pending edits and stops listening.
func (h *Hub) Close(ctx context.Context) {
	h.mu.Lock()
	all := make([]*Workspace, 0, len(h.workspaces))
	for _, w := range h.workspaces {
		all = append(all, w)
	}
	h.mu.Unlock()

	for _, w := range all {
		if err := w.Flush(ctx); err != nil {
			slog.Warn("saving workspace on shutdown", "user", w.actor.Name, "error", err)
		}
	}
	if h.unsubscribe != nil {
		h.unsubscribe()
	}
}

func (h *Hub) dispatch(ev feed.Event) {
	if ev.Kind != feed.KindList {
		return
	}
	h.mu.Lock()
	all := make([]*Workspace, 0, len(h.workspaces))
	for _, w := range h.workspaces {
		all = append(all, w)
	}
	h.mu.Unlock()

	for _, w := range all {
		w.ApplyEvent(ev)
	}
}
