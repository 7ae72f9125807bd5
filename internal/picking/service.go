// Package picking runs the picking list lifecycle: building a cart, picking,
// double-checking by a second operator and completion.
package picking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/erazemk/stockledger/internal/clock"
	"github.com/erazemk/stockledger/internal/feed"
	"github.com/erazemk/stockledger/internal/ledger"
	"github.com/erazemk/stockledger/internal/metrics"
	"github.com/erazemk/stockledger/internal/model"
	"github.com/erazemk/stockledger/internal/store"
)

// Config tunes list persistence.
type Config struct {
	// SaveDebounce is the quiet period after the last cart edit before the
	// draft is written.
	SaveDebounce time.Duration
	// StaleAfter is how long a list may sit untouched before it is expired.
	StaleAfter time.Duration
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{SaveDebounce: time.Second, StaleAfter: 5 * time.Hour}
}

// Service owns picking list state in the store.
type Service struct {
	db      *sqlx.DB
	clock   clock.Clock
	ledger  *ledger.Ledger
	feed    feed.Broker
	metrics *metrics.Metrics
	cfg     Config
}

// NewService creates a Service.
func NewService(db *sqlx.DB, clk clock.Clock, l *ledger.Ledger, broker feed.Broker, m *metrics.Metrics, cfg Config) *Service {
	def := DefaultConfig()
	if cfg.SaveDebounce <= 0 {
		cfg.SaveDebounce = def.SaveDebounce
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = def.StaleAfter
	}
	return &Service{db: db, clock: clk, ledger: l, feed: broker, metrics: m, cfg: cfg}
}

// Get returns a list by ID.
func (s *Service) Get(ctx context.Context, id string) (*model.PickingList, error) {
	list, err := store.GetList(ctx, s.db, id)
	if err != nil {
		return nil, model.Transient("loading picking list", err)
	}
	if list == nil {
		return nil, model.ErrListNotFound
	}
	return list, nil
}

// Lists returns lists in the given statuses, or all of them.
func (s *Service) Lists(ctx context.Context, statuses ...model.ListStatus) ([]model.PickingList, error) {
	lists, err := store.ListLists(ctx, s.db, statuses)
	if err != nil {
		return nil, model.Transient("listing picking lists", err)
	}
	return lists, nil
}

// StartList creates an active list from a cart. An operator has at most one
// list being picked or corrected at a time.
func (s *Service) StartList(ctx context.Context, actor model.Actor, items model.PickingItems, orderNumber *string) (*model.PickingList, error) {
	if len(items) == 0 {
		return nil, model.ErrEmptyOrder
	}
	items = normalized(items)
	open, err := store.OpenListForUser(ctx, s.db, actor.ID)
	if err != nil {
		return nil, model.Transient("checking open lists", err)
	}
	if open != nil {
		return nil, model.ErrOpenListExists
	}
	if err := s.checkStock(ctx, items, ""); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	list := &model.PickingList{
		UserID:      actor.ID,
		Status:      model.StatusActive,
		Items:       items,
		OrderNumber: orderNumber,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := store.CreateList(ctx, s.db, list); err != nil {
		if errors.Is(err, model.ErrOpenListExists) {
			return nil, err
		}
		return nil, model.Transient("creating picking list", err)
	}

	s.metrics.ListTransitions.WithLabelValues(string(model.StatusActive)).Inc()
	s.publish(ctx, feed.ListChanged(list, now))
	slog.Info("picking list started", "list", list.ID, "user", actor.Name, "items", len(items))
	return list, nil
}

// SaveItems stores the items and order number of the actor's own list. The
// write only lands while the list is active; saved reports whether it did.
func (s *Service) SaveItems(ctx context.Context, actor model.Actor, listID string, items model.PickingItems, orderNumber *string) (saved bool, err error) {
	list, err := s.Get(ctx, listID)
	if err != nil {
		return false, err
	}
	if list.UserID != actor.ID {
		return false, model.ErrNotOwner
	}

	items = normalized(items)
	now := s.clock.Now()
	saved, err = store.SaveListDraft(ctx, s.db, listID, items, orderNumber, now)
	if err != nil {
		return false, model.Transient("saving picking list", err)
	}
	if !saved {
		slog.Debug("draft not saved, list is no longer active", "list", listID, "status", list.Status)
		return false, nil
	}

	list.Items, list.OrderNumber, list.UpdatedAt = items, orderNumber, now
	s.publish(ctx, feed.ListChanged(list, now))
	return true, nil
}

// MarkReady hands the picker's list over for verification. The actor becomes
// its checker; any other list the actor was checking goes back to the queue.
func (s *Service) MarkReady(ctx context.Context, actor model.Actor, listID string, items model.PickingItems, orderNumber *string) (*model.PickingList, error) {
	if len(items) == 0 {
		return nil, model.ErrEmptyOrder
	}
	items = normalized(items)
	list, err := s.Get(ctx, listID)
	if err != nil {
		return nil, err
	}
	if list.UserID != actor.ID {
		return nil, model.ErrNotOwner
	}
	if err := s.checkStock(ctx, items, listID); err != nil {
		return nil, err
	}

	return s.lock(ctx, actor, store.LockRequest{
		ListID:      listID,
		CheckerID:   actor.ID,
		From:        []model.ListStatus{model.StatusActive, model.StatusNeedsCorrection},
		Items:       items,
		OrderNumber: orderNumber,
		ClearNotes:  true,
	})
}

// LockForCheck takes a list off the verification queue for the actor.
func (s *Service) LockForCheck(ctx context.Context, actor model.Actor, listID string) (*model.PickingList, error) {
	return s.lock(ctx, actor, store.LockRequest{
		ListID:    listID,
		CheckerID: actor.ID,
		From:      []model.ListStatus{model.StatusReadyToDoubleCheck, model.StatusDoubleChecking},
	})
}

func (s *Service) lock(ctx context.Context, actor model.Actor, req store.LockRequest) (*model.PickingList, error) {
	req.At = s.clock.Now()
	res, err := store.LockList(ctx, s.db, req)
	if err != nil {
		if model.KindOf(err) != "" {
			return nil, err
		}
		return nil, model.Transient("locking picking list", err)
	}

	events := []feed.Event{feed.ListChanged(res.List, req.At)}
	for _, id := range res.Released {
		released, err := store.GetList(ctx, s.db, id)
		if err != nil || released == nil {
			slog.Warn("loading released list", "list", id, "error", err)
			continue
		}
		events = append(events, feed.ListChanged(released, req.At))
		s.metrics.ListTransitions.WithLabelValues(string(model.StatusReadyToDoubleCheck)).Inc()
	}
	s.metrics.ListTransitions.WithLabelValues(string(model.StatusDoubleChecking)).Inc()
	s.publish(ctx, events...)

	slog.Info("picking list locked", "list", req.ListID, "checker", actor.Name, "released", len(res.Released))
	return res.List, nil
}

// ReleaseCheck puts a list the actor is checking back on the queue.
func (s *Service) ReleaseCheck(ctx context.Context, actor model.Actor, listID string) (*model.PickingList, error) {
	return s.transition(ctx, actor, store.Transition{
		ID:           listID,
		From:         []model.ListStatus{model.StatusDoubleChecking},
		To:           model.StatusReadyToDoubleCheck,
		CheckedBy:    actor.ID,
		ClearChecker: true,
	})
}

// RevertToPicking sends a list under check straight back to active picking.
// It is refused with ErrOpenListExists while the picker has started another
// list; the checker can release or complete it instead.
func (s *Service) RevertToPicking(ctx context.Context, actor model.Actor, listID string) (*model.PickingList, error) {
	return s.transition(ctx, actor, store.Transition{
		ID:           listID,
		From:         []model.ListStatus{model.StatusDoubleChecking},
		To:           model.StatusActive,
		CheckedBy:    actor.ID,
		ClearChecker: true,
	})
}

// CompleteList closes a list the actor is checking. Completed lists are final.
func (s *Service) CompleteList(ctx context.Context, actor model.Actor, listID string) (*model.PickingList, error) {
	return s.transition(ctx, actor, store.Transition{
		ID:        listID,
		From:      []model.ListStatus{model.StatusDoubleChecking},
		To:        model.StatusCompleted,
		CheckedBy: actor.ID,
	})
}

// ReturnToPicker sends a list back for correction with the checker's notes,
// which are also appended to the list's timeline. Like RevertToPicking it is
// refused while the picker has another open list.
func (s *Service) ReturnToPicker(ctx context.Context, actor model.Actor, listID, notes string) (*model.PickingList, error) {
	now := s.clock.Now()
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, model.Transient("beginning transaction", err)
	}
	defer tx.Rollback()

	ok, err := store.TransitionList(ctx, tx, store.Transition{
		ID:           listID,
		From:         []model.ListStatus{model.StatusDoubleChecking},
		To:           model.StatusNeedsCorrection,
		CheckedBy:    actor.ID,
		ClearChecker: true,
		Notes:        &notes,
		At:           now,
	})
	if err != nil {
		if errors.Is(err, model.ErrOpenListExists) {
			return nil, err
		}
		return nil, model.Transient("returning picking list", err)
	}
	if !ok {
		tx.Rollback()
		return nil, s.refused(ctx, actor, listID)
	}

	var note *model.ListNote
	if notes != "" {
		note = &model.ListNote{ListID: listID, UserID: actor.ID, Author: actor.Name, Body: notes, CreatedAt: now}
		if err := store.InsertNote(ctx, tx, note); err != nil {
			return nil, model.Transient("adding note", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, model.Transient("returning picking list", err)
	}

	list, err := s.Get(ctx, listID)
	if err != nil {
		return nil, err
	}
	s.metrics.ListTransitions.WithLabelValues(string(model.StatusNeedsCorrection)).Inc()
	events := []feed.Event{feed.ListChanged(list, now)}
	if note != nil {
		events = append(events, feed.NoteAdded(note, now))
	}
	s.publish(ctx, events...)

	slog.Info("picking list returned to picker", "list", listID, "checker", actor.Name)
	return list, nil
}

func (s *Service) transition(ctx context.Context, actor model.Actor, t store.Transition) (*model.PickingList, error) {
	t.At = s.clock.Now()
	ok, err := store.TransitionList(ctx, s.db, t)
	if err != nil {
		if errors.Is(err, model.ErrOpenListExists) {
			return nil, err
		}
		return nil, model.Transient("updating picking list", err)
	}
	if !ok {
		return nil, s.refused(ctx, actor, t.ID)
	}

	list, err := s.Get(ctx, t.ID)
	if err != nil {
		return nil, err
	}
	s.metrics.ListTransitions.WithLabelValues(string(t.To)).Inc()
	s.publish(ctx, feed.ListChanged(list, t.At))

	slog.Info("picking list updated", "list", t.ID, "status", t.To, "by", actor.Name)
	return list, nil
}

// refused explains why a guarded update matched no row.
func (s *Service) refused(ctx context.Context, actor model.Actor, listID string) error {
	list, err := store.GetList(ctx, s.db, listID)
	if err != nil {
		return model.Transient("loading picking list", err)
	}
	switch {
	case list == nil:
		return model.ErrListNotFound
	case list.Status == model.StatusDoubleChecking && list.CheckedBy != nil && *list.CheckedBy != actor.ID:
		return model.ErrLockHeld
	default:
		return model.ErrInvalidTransition
	}
}

// DeleteList removes a list together with the audit entries recorded for it.
// Completed lists are kept.
func (s *Service) DeleteList(ctx context.Context, actor model.Actor, listID string) error {
	list, err := s.Get(ctx, listID)
	if err != nil {
		return err
	}
	if list.Status == model.StatusCompleted {
		return model.ErrCompletedList
	}
	if list.UserID != actor.ID && !actor.Privileged {
		return model.ErrNotOwner
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return model.Transient("beginning transaction", err)
	}
	defer tx.Rollback()

	if err := store.DeleteLogsByList(ctx, tx, listID); err != nil {
		return model.Transient("deleting list logs", err)
	}
	if err := store.DeleteList(ctx, tx, listID); err != nil {
		return model.Transient("deleting picking list", err)
	}
	if err := tx.Commit(); err != nil {
		return model.Transient("deleting picking list", err)
	}

	s.metrics.ListTransitions.WithLabelValues("deleted").Inc()
	s.publish(ctx, feed.ListDeleted(listID, s.clock.Now()))
	slog.Info("picking list deleted", "list", listID, "by", actor.Name)
	return nil
}

// AddNote appends a note to a list's timeline.
func (s *Service) AddNote(ctx context.Context, actor model.Actor, listID, body string) (*model.ListNote, error) {
	if body == "" {
		return nil, &model.Error{Kind: model.KindValidation, Msg: "note is empty"}
	}
	if _, err := s.Get(ctx, listID); err != nil {
		return nil, err
	}
	now := s.clock.Now()
	note := &model.ListNote{ListID: listID, UserID: actor.ID, Author: actor.Name, Body: body, CreatedAt: now}
	if err := store.InsertNote(ctx, s.db, note); err != nil {
		return nil, model.Transient("adding note", err)
	}
	s.publish(ctx, feed.NoteAdded(note, now))
	return note, nil
}

// Notes returns a list's timeline, oldest first.
func (s *Service) Notes(ctx context.Context, listID string) ([]model.ListNote, error) {
	notes, err := store.ListNotes(ctx, s.db, listID)
	if err != nil {
		return nil, model.Transient("listing notes", err)
	}
	return notes, nil
}

// ExpireResult lists what a stale sweep changed.
type ExpireResult struct {
	Released []string `json:"released"`
	Deleted  []string `json:"deleted"`
}

// ExpireStale releases lists stuck in verification and drops abandoned
// drafts that have not been touched for StaleAfter.
func (s *Service) ExpireStale(ctx context.Context) (*ExpireResult, error) {
	now := s.clock.Now()
	before := now.Add(-s.cfg.StaleAfter)
	res := &ExpireResult{}

	checking, err := store.StaleLists(ctx, s.db, []model.ListStatus{model.StatusDoubleChecking}, before)
	if err != nil {
		return nil, model.Transient("finding stale lists", err)
	}
	for _, l := range checking {
		ok, err := store.TransitionList(ctx, s.db, store.Transition{
			ID:           l.ID,
			From:         []model.ListStatus{model.StatusDoubleChecking},
			To:           model.StatusReadyToDoubleCheck,
			ClearChecker: true,
			At:           now,
		})
		if err != nil {
			return res, model.Transient("releasing stale list", err)
		}
		if !ok {
			continue
		}
		l.Status, l.CheckedBy, l.UpdatedAt = model.StatusReadyToDoubleCheck, nil, now
		res.Released = append(res.Released, l.ID)
		s.metrics.ListTransitions.WithLabelValues(string(model.StatusReadyToDoubleCheck)).Inc()
		s.publish(ctx, feed.ListChanged(&l, now))
	}

	drafts, err := store.StaleLists(ctx, s.db, []model.ListStatus{model.StatusActive, model.StatusNeedsCorrection}, before)
	if err != nil {
		return res, model.Transient("finding stale lists", err)
	}
	for _, l := range drafts {
		if err := store.DeleteList(ctx, s.db, l.ID); err != nil {
			return res, model.Transient("deleting stale list", err)
		}
		res.Deleted = append(res.Deleted, l.ID)
		s.metrics.ListTransitions.WithLabelValues("deleted").Inc()
		s.publish(ctx, feed.ListDeleted(l.ID, now))
	}

	if len(res.Released)+len(res.Deleted) > 0 {
		slog.Info("expired stale picking lists", "released", len(res.Released), "deleted", len(res.Deleted))
	}
	return res, nil
}

func (s *Service) publish(ctx context.Context, events ...feed.Event) {
	for _, ev := range events {
		if err := s.feed.Publish(ctx, ev); err != nil {
			slog.Warn("publishing list change", "kind", ev.Kind, "id", ev.RecordID, "error", err)
		}
	}
}

// capacityError names the line that cannot be served.
func capacityError(key model.SlotKey, want, available int) error {
	return &model.Error{
		Kind: model.KindValidation,
		Msg:  model.ErrCapacity.Msg,
		Err:  fmt.Errorf("%s: requested %d, available %d: %w", key, want, available, model.ErrCapacity),
	}
}
