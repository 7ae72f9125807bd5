package ledger

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/erazemk/stockledger/internal/feed"
	"github.com/erazemk/stockledger/internal/model"
	"github.com/erazemk/stockledger/internal/store"
)

// Audit write outcomes, also used as metric labels.
const (
	opSkip   = "skip"
	opInsert = "insert"
	opMerge  = "merge"
	opCancel = "cancel"
)

type auditResult struct {
	op string
	// entry is the inserted or merged entry; nil for skip and cancel.
	entry *model.AuditEntry
	// cancelled is the ID of an entry deleted because it netted to zero.
	cancelled string
	at        time.Time
}

func (r auditResult) entryID() string {
	if r.entry == nil {
		return ""
	}
	return r.entry.ID
}

func (r auditResult) events() []feed.Event {
	switch {
	case r.entry != nil:
		return []feed.Event{feed.LogChanged(r.entry, r.entry.UpdatedAt)}
	case r.cancelled != "":
		return []feed.Event{feed.LogDeleted(r.cancelled, r.at)}
	}
	return nil
}

// recordMerged folds e into an existing entry when one qualifies, and
// inserts it otherwise. The hinted entry is tried first, then the actor's
// most recent entry inside the merge window.
func (l *Ledger) recordMerged(ctx context.Context, tx *sqlx.Tx, actor model.Actor, e model.AuditEntry, hint string) (auditResult, error) {
	target, err := l.mergeTarget(ctx, tx, actor, e, hint)
	if err != nil {
		return auditResult{}, err
	}

	if target == nil {
		if err := store.InsertLog(ctx, tx, &e); err != nil {
			return auditResult{}, err
		}
		return auditResult{op: opInsert, entry: &e}, nil
	}

	net := target.QuantityChange + e.QuantityChange
	if net == 0 {
		if err := store.DeleteLog(ctx, tx, target.ID); err != nil {
			return auditResult{}, err
		}
		return auditResult{op: opCancel, cancelled: target.ID, at: e.UpdatedAt}, nil
	}

	action := actionFor(net)
	if err := store.MergeLog(ctx, tx, target.ID, action, net, e.NewQuantity, e.UpdatedAt); err != nil {
		return auditResult{}, err
	}
	target.ActionType = action
	target.QuantityChange = net
	target.NewQuantity = e.NewQuantity
	target.UpdatedAt = e.UpdatedAt
	return auditResult{op: opMerge, entry: target}, nil
}

// mergeTarget picks the entry e is folded into. A live hinted entry for the
// same slot and order settles the question; otherwise the actor's latest
// entry is considered. Either way the target must be the newest activity on
// its slot, so the merged entry still undoes to the same net effect.
func (l *Ledger) mergeTarget(ctx context.Context, tx *sqlx.Tx, actor model.Actor, e model.AuditEntry, hint string) (*model.AuditEntry, error) {
	if hint != "" {
		candidate, err := store.GetLog(ctx, tx, hint)
		if err != nil {
			return nil, err
		}
		if candidate != nil && !candidate.IsReversed && candidate.SameContext(e) {
			return latestMergeable(ctx, tx, candidate, e)
		}
	}

	latest, err := store.LatestLogByActor(ctx, tx, actor, e.CreatedAt.Add(-l.cfg.MergeWindow))
	if err != nil {
		return nil, err
	}
	return latestMergeable(ctx, tx, latest, e)
}

// latestMergeable returns candidate if e may be merged into it and nothing
// has touched its slot since it was last written.
func latestMergeable(ctx context.Context, tx *sqlx.Tx, candidate *model.AuditEntry, e model.AuditEntry) (*model.AuditEntry, error) {
	if !mergeable(candidate, e) {
		return nil, nil
	}
	newer, err := store.HasNewerActivity(ctx, tx, candidate)
	if err != nil {
		return nil, err
	}
	if newer {
		return nil, nil
	}
	return candidate, nil
}

// mergeable reports whether e may be folded into candidate: both are plain
// stock adjustments for the same slot and order, and candidate is live.
func mergeable(candidate *model.AuditEntry, e model.AuditEntry) bool {
	if candidate == nil || candidate.IsReversed {
		return false
	}
	if candidate.ActionType != model.ActionAdd && candidate.ActionType != model.ActionDeduct {
		return false
	}
	if candidate.ActionType != e.ActionType && !candidate.ActionType.InverseOf(e.ActionType) {
		return false
	}
	return candidate.SameContext(e)
}
