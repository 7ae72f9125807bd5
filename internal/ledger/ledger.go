// Package ledger buffers quantity changes per slot, commits them after a
// quiet window and keeps the audit trail compact by merging related changes
// into one entry.
package ledger

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/erazemk/stockledger/internal/clock"
	"github.com/erazemk/stockledger/internal/feed"
	"github.com/erazemk/stockledger/internal/locations"
	"github.com/erazemk/stockledger/internal/metrics"
	"github.com/erazemk/stockledger/internal/model"
	"github.com/erazemk/stockledger/internal/store"
)

// Config tunes commit and merge behaviour.
type Config struct {
	// CommitWindow is the quiet period after the last delta before a slot is written.
	CommitWindow time.Duration
	// MergeWindow bounds how far back an actor's latest entry may be merged into.
	MergeWindow time.Duration
	// AuditRetries is how many times a failed commit is repeated before it is rolled back.
	AuditRetries int
	RetryBackoff time.Duration
	// OnFlush, when set, receives the outcome of every committed window.
	OnFlush func(FlushResult)
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		CommitWindow: 500 * time.Millisecond,
		MergeWindow:  5 * time.Minute,
		AuditRetries: 3,
		RetryBackoff: 200 * time.Millisecond,
	}
}

// Options tag a delta with its order context.
type Options struct {
	OrderNumber *string `json:"order_number,omitempty"`
	ListID      *string `json:"list_id,omitempty"`
	ItemID      *string `json:"item_id,omitempty"`
	// MergeHint names an audit entry to merge into when it still matches.
	MergeHint string `json:"merge_hint,omitempty"`
}

func (o Options) same(other Options) bool {
	return eq(o.OrderNumber, other.OrderNumber) && eq(o.ListID, other.ListID) && eq(o.ItemID, other.ItemID)
}

func eq(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// FlushResult describes one committed (or rolled back) window.
type FlushResult struct {
	Key     model.SlotKey
	Actor   model.Actor
	Initial int
	Final   int
	// EntryID is the audit entry written or merged into; empty when the
	// window netted to zero or the entry cancelled out.
	EntryID string
	Err     error
}

// window is the uncommitted state of one slot.
type window struct {
	key     model.SlotKey
	slotID  string
	actor   model.Actor
	opts    Options
	initial int
	net     int
	timer   clock.Timer
	gen     int
}

type hintKey struct {
	slot  model.SlotKey
	actor string
	order string
	list  string
}

func hintFor(key model.SlotKey, actor model.Actor, opts Options) hintKey {
	h := hintKey{slot: key, actor: actor.ID}
	if opts.OrderNumber != nil {
		h.order = *opts.OrderNumber
	}
	if opts.ListID != nil {
		h.list = *opts.ListID
	}
	return h
}

// Ledger owns the visible quantities of all slots it has seen.
type Ledger struct {
	db       *sqlx.DB
	clock    clock.Clock
	feed     feed.Broker
	metrics  *metrics.Metrics
	resolver *locations.Resolver
	cfg      Config

	mu       sync.Mutex
	cache    map[model.SlotKey]*model.Slot
	pending  map[model.SlotKey]*window
	hints    map[hintKey]string
	inflight map[model.SlotKey]*sync.Mutex
	gen      int

	unsubscribe func()
}

// New creates a Ledger and subscribes it to slot events from other writers.
func New(db *sqlx.DB, clk clock.Clock, broker feed.Broker, m *metrics.Metrics, resolver *locations.Resolver, cfg Config) (*Ledger, error) {
	def := DefaultConfig()
	if cfg.CommitWindow <= 0 {
		cfg.CommitWindow = def.CommitWindow
	}
	if cfg.MergeWindow <= 0 {
		cfg.MergeWindow = def.MergeWindow
	}
	if cfg.AuditRetries < 0 {
		cfg.AuditRetries = 0
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = def.RetryBackoff
	}

	l := &Ledger{
		db:       db,
		clock:    clk,
		feed:     broker,
		metrics:  m,
		resolver: resolver,
		cfg:      cfg,
		cache:    make(map[model.SlotKey]*model.Slot),
		pending:  make(map[model.SlotKey]*window),
		hints:    make(map[hintKey]string),
		inflight: make(map[model.SlotKey]*sync.Mutex),
	}

	unsub, err := broker.Subscribe(l.onEvent)
	if err != nil {
		return nil, err
	}
	l.unsubscribe = unsub
	return l, nil
}

// Close commits every pending window and stops listening to the feed.
func (l *Ledger) Close(ctx context.Context) error {
	err := l.Flush(ctx)
	if l.unsubscribe != nil {
		l.unsubscribe()
	}
	return err
}

// ApplyDelta adds delta to the visible quantity of the slot at key and
// schedules the commit. A delta that would take the slot below zero is
// rejected with ErrInsufficientStock and changes nothing.
func (l *Ledger) ApplyDelta(ctx context.Context, actor model.Actor, key model.SlotKey, delta int, opts Options) (*model.Slot, error) {
	key = key.Normalize()
	if delta == 0 {
		return nil, model.ErrInvalidQuantity
	}
	if key.Location == "" {
		return nil, model.ErrEmptyLocation
	}

	if _, err := l.load(ctx, key); err != nil {
		return nil, err
	}

	// A window opened by someone else, or for another order, is committed
	// before this delta starts a new one.
	l.mu.Lock()
	if w := l.pending[key]; w != nil && (w.actor.ID != actor.ID || w.actor.Name != actor.Name || !w.opts.same(opts)) {
		l.detach(w)
		l.mu.Unlock()
		l.commit(ctx, w)
		l.mu.Lock()
	}
	defer l.mu.Unlock()

	s := l.cache[key]
	if s == nil {
		return nil, model.ErrSlotNotFound
	}
	if s.Quantity+delta < 0 {
		l.metrics.DeltasRejected.Inc()
		return nil, model.ErrInsufficientStock
	}

	w := l.pending[key]
	if w == nil {
		w = &window{key: key, slotID: s.ID, actor: actor, opts: opts, initial: s.Quantity}
		l.pending[key] = w
		l.metrics.PendingWindows.Inc()
	} else if w.timer != nil {
		w.timer.Stop()
	}
	if opts.MergeHint != "" {
		w.opts.MergeHint = opts.MergeHint
	}
	w.net += delta
	l.gen++
	w.gen = l.gen
	gen := w.gen
	w.timer = l.clock.AfterFunc(l.cfg.CommitWindow, func() { l.fire(key, gen) })

	s.Quantity += delta
	l.metrics.DeltasApplied.Inc()

	out := *s
	return &out, nil
}

// fire commits the window for key if it has not been extended since gen.
func (l *Ledger) fire(key model.SlotKey, gen int) {
	l.mu.Lock()
	w := l.pending[key]
	if w == nil || w.gen != gen {
		l.mu.Unlock()
		return
	}
	l.detach(w)
	l.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	l.commit(ctx, w)
}

// detach removes w from the pending set. Callers hold l.mu.
func (l *Ledger) detach(w *window) {
	if w.timer != nil {
		w.timer.Stop()
	}
	if l.pending[w.key] == w {
		delete(l.pending, w.key)
		l.metrics.PendingWindows.Dec()
	}
}

// Flush commits every pending window now and returns the failures joined.
func (l *Ledger) Flush(ctx context.Context) error {
	l.mu.Lock()
	windows := make([]*window, 0, len(l.pending))
	for _, w := range l.pending {
		windows = append(windows, w)
	}
	for _, w := range windows {
		l.detach(w)
	}
	l.mu.Unlock()

	var errs []error
	for _, w := range windows {
		if res := l.commit(ctx, w); res.Err != nil {
			errs = append(errs, res.Err)
		}
	}
	return errors.Join(errs...)
}

// FlushKeys commits the pending windows of the given slots.
func (l *Ledger) FlushKeys(ctx context.Context, keys ...model.SlotKey) error {
	var errs []error
	for _, key := range keys {
		l.mu.Lock()
		w := l.pending[key]
		if w != nil {
			l.detach(w)
		}
		l.mu.Unlock()

		if w != nil {
			if res := l.commit(ctx, w); res.Err != nil {
				errs = append(errs, res.Err)
			}
		}
		// Wait out a commit already in flight for this slot.
		lock := l.slotLock(key)
		lock.Lock()
		lock.Unlock()
	}
	return errors.Join(errs...)
}

// Pending reports whether key has uncommitted deltas.
func (l *Ledger) Pending(key model.SlotKey) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.pending[key.Normalize()]
	return ok
}

func (l *Ledger) slotLock(key model.SlotKey) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	m := l.inflight[key]
	if m == nil {
		m = &sync.Mutex{}
		l.inflight[key] = m
	}
	return m
}

// load returns the visible slot at key, reading it from the store on first use.
func (l *Ledger) load(ctx context.Context, key model.SlotKey) (*model.Slot, error) {
	l.mu.Lock()
	s := l.cache[key]
	l.mu.Unlock()
	if s != nil {
		out := *s
		return &out, nil
	}

	stored, err := store.GetSlotByKey(ctx, l.db, key)
	if err != nil {
		return nil, model.Transient("loading slot", err)
	}
	if stored == nil {
		return nil, model.ErrSlotNotFound
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if s := l.cache[key]; s != nil {
		out := *s
		return &out, nil
	}
	l.cache[key] = stored
	out := *stored
	return &out, nil
}

// Refresh replaces the cached quantities of keys with the stored ones.
// Slots with a pending window keep their visible quantity.
func (l *Ledger) Refresh(ctx context.Context, keys ...model.SlotKey) ([]*model.Slot, error) {
	var out []*model.Slot
	for _, key := range keys {
		s, err := store.GetSlotByKey(ctx, l.db, key)
		if err != nil {
			return out, model.Transient("refreshing slot", err)
		}
		l.mu.Lock()
		if _, busy := l.pending[key]; !busy {
			if s == nil {
				delete(l.cache, key)
			} else {
				c := *s
				l.cache[key] = &c
			}
		}
		l.mu.Unlock()
		if s != nil {
			out = append(out, s)
		}
	}
	return out, nil
}

// onEvent keeps the cache in step with slot changes from other writers.
func (l *Ledger) onEvent(ev feed.Event) {
	if ev.Kind != feed.KindSlot {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	switch ev.Op {
	case feed.OpUpsert:
		if ev.Slot == nil {
			return
		}
		key := ev.Slot.Key()
		if _, busy := l.pending[key]; busy {
			return
		}
		// Events can arrive late from other processes.
		if cur := l.cache[key]; cur != nil && ev.Slot.UpdatedAt.Before(cur.UpdatedAt) {
			return
		}
		c := *ev.Slot
		l.cache[key] = &c
	case feed.OpDelete:
		for key, s := range l.cache {
			if s.ID == ev.RecordID {
				if _, busy := l.pending[key]; !busy {
					delete(l.cache, key)
				}
				return
			}
		}
	}
}

// publish sends events, logging failures. Callers must not hold l.mu.
func (l *Ledger) publish(ctx context.Context, events ...feed.Event) {
	for _, ev := range events {
		if err := l.feed.Publish(ctx, ev); err != nil {
			slog.Warn("publishing change", "kind", ev.Kind, "id", ev.RecordID, "error", err)
		}
	}
}
