// Package feed fans out committed changes to subscribers such as picking
// workspaces and connected API clients.
package feed

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/erazemk/stockledger/internal/model"
)

// Kind names the record an event is about.
type Kind string

const (
	KindSlot Kind = "slot"
	KindLog  Kind = "log"
	KindList Kind = "list"
	KindNote Kind = "note"
	// KindCommit reports a buffered slot change that could not be stored.
	KindCommit Kind = "commit"
)

// Op is what happened to the record.
type Op string

const (
	OpUpsert Op = "upsert"
	OpDelete Op = "delete"
)

// Event is one committed change. Exactly one payload field is set for
// upserts; deletions carry only the ID of the removed record.
type Event struct {
	ID       string             `json:"id"`
	Kind     Kind               `json:"kind"`
	Op       Op                 `json:"op"`
	RecordID string             `json:"record_id"`
	Slot     *model.Slot        `json:"slot,omitempty"`
	Entry    *model.AuditEntry  `json:"entry,omitempty"`
	List     *model.PickingList `json:"list,omitempty"`
	Note     *model.ListNote    `json:"note,omitempty"`
	Failure  *CommitFailure     `json:"failure,omitempty"`
	At       time.Time          `json:"at"`
}

// CommitFailure describes a window of slot deltas that was rolled back. The
// restored slot is published as a slot event just before it.
type CommitFailure struct {
	Key      model.SlotKey `json:"key"`
	UserID   string        `json:"user_id,omitempty"`
	Username string        `json:"username"`
	// Net is the discarded change; Restored is the quantity shown again.
	Net      int    `json:"net"`
	Restored int    `json:"restored"`
	Error    string `json:"error"`
}

// Handler receives events. Handlers must not block for long.
type Handler func(Event)

// Broker publishes events to every subscriber.
type Broker interface {
	Publish(ctx context.Context, ev Event) error
	// Subscribe registers h and returns a function that removes it.
	Subscribe(h Handler) (unsubscribe func(), err error)
	Close() error
}

// SlotChanged builds an upsert event for a slot.
func SlotChanged(s *model.Slot, at time.Time) Event {
	return Event{ID: uuid.NewString(), Kind: KindSlot, Op: OpUpsert, RecordID: s.ID, Slot: s, At: at}
}

// SlotDeleted builds a delete event for a slot.
func SlotDeleted(id string, at time.Time) Event {
	return Event{ID: uuid.NewString(), Kind: KindSlot, Op: OpDelete, RecordID: id, At: at}
}

// LogChanged builds an upsert event for an audit entry.
func LogChanged(e *model.AuditEntry, at time.Time) Event {
	return Event{ID: uuid.NewString(), Kind: KindLog, Op: OpUpsert, RecordID: e.ID, Entry: e, At: at}
}

// LogDeleted builds a delete event for an audit entry.
func LogDeleted(id string, at time.Time) Event {
	return Event{ID: uuid.NewString(), Kind: KindLog, Op: OpDelete, RecordID: id, At: at}
}

// ListChanged builds an upsert event for a picking list.
func ListChanged(l *model.PickingList, at time.Time) Event {
	return Event{ID: uuid.NewString(), Kind: KindList, Op: OpUpsert, RecordID: l.ID, List: l, At: at}
}

// ListDeleted builds a delete event for a picking list.
func ListDeleted(id string, at time.Time) Event {
	return Event{ID: uuid.NewString(), Kind: KindList, Op: OpDelete, RecordID: id, At: at}
}

// NoteAdded builds an event for a new correction note.
func NoteAdded(n *model.ListNote, at time.Time) Event {
	return Event{ID: uuid.NewString(), Kind: KindNote, Op: OpUpsert, RecordID: n.ID, Note: n, At: at}
}

// CommitFailed builds an event for a rolled back slot window.
func CommitFailed(slotID string, f *CommitFailure, at time.Time) Event {
	return Event{ID: uuid.NewString(), Kind: KindCommit, Op: OpUpsert, RecordID: slotID, Failure: f, At: at}
}
