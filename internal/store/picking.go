package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/erazemk/stockledger/internal/model"
)

const listColumns = `id, user_id, status, items, order_number, checked_by, correction_notes, created_at, updated_at`

// CreateList inserts a picking list. The ID is generated when empty. An
// owner may hold one active or needs_correction list; a second one fails
// with model.ErrOpenListExists.
func CreateList(ctx context.Context, db sqlx.ExtContext, l *model.PickingList) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	if l.Items == nil {
		l.Items = model.PickingItems{}
	}
	_, err := db.ExecContext(ctx, db.Rebind(
		`INSERT INTO picking_lists (`+listColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		l.ID, l.UserID, string(l.Status), l.Items, l.OrderNumber, l.CheckedBy, l.CorrectionNotes, l.CreatedAt, l.UpdatedAt,
	)
	if err != nil {
		if l.Status.Open() && isUniqueViolation(err) {
			return model.ErrOpenListExists
		}
		return fmt.Errorf("creating picking list: %w", err)
	}
	return nil
}

// GetList returns a picking list by ID.
func GetList(ctx context.Context, db sqlx.ExtContext, id string) (*model.PickingList, error) {
	var l model.PickingList
	err := sqlx.GetContext(ctx, db, &l, db.Rebind(`SELECT `+listColumns+` FROM picking_lists WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting picking list: %w", err)
	}
	return &l, nil
}

// OpenListForUser returns the picker's list that is still being picked or corrected.
func OpenListForUser(ctx context.Context, db sqlx.ExtContext, userID string) (*model.PickingList, error) {
	var l model.PickingList
	err := sqlx.GetContext(ctx, db, &l, db.Rebind(
		`SELECT `+listColumns+` FROM picking_lists
		 WHERE user_id = ? AND status IN (?, ?)
		 ORDER BY updated_at DESC LIMIT 1`),
		userID, string(model.StatusActive), string(model.StatusNeedsCorrection),
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting open list: %w", err)
	}
	return &l, nil
}

// ListLists returns lists in any of the given statuses, newest first.
// No statuses means all lists.
func ListLists(ctx context.Context, db sqlx.ExtContext, statuses []model.ListStatus) ([]model.PickingList, error) {
	query := `SELECT ` + listColumns + ` FROM picking_lists`
	var args []any
	if len(statuses) > 0 {
		q, a, err := sqlx.In(query+` WHERE status IN (?)`, statusStrings(statuses))
		if err != nil {
			return nil, fmt.Errorf("listing picking lists: %w", err)
		}
		query, args = q, a
	}
	query += ` ORDER BY updated_at DESC`

	var lists []model.PickingList
	if err := sqlx.SelectContext(ctx, db, &lists, db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("listing picking lists: %w", err)
	}
	return lists, nil
}

// StaleLists returns lists in the given statuses not updated since before.
func StaleLists(ctx context.Context, db sqlx.ExtContext, statuses []model.ListStatus, before time.Time) ([]model.PickingList, error) {
	q, args, err := sqlx.In(
		`SELECT `+listColumns+` FROM picking_lists WHERE status IN (?) AND updated_at < ?`,
		statusStrings(statuses), before,
	)
	if err != nil {
		return nil, fmt.Errorf("listing stale lists: %w", err)
	}
	var lists []model.PickingList
	if err := sqlx.SelectContext(ctx, db, &lists, db.Rebind(q), args...); err != nil {
		return nil, fmt.Errorf("listing stale lists: %w", err)
	}
	return lists, nil
}

// SaveListDraft stores items and order number while the list is still active.
// Returns false if the list has moved on.
func SaveListDraft(ctx context.Context, db sqlx.ExtContext, id string, items model.PickingItems, orderNumber *string, at time.Time) (bool, error) {
	res, err := db.ExecContext(ctx, db.Rebind(
		`UPDATE picking_lists SET items = ?, order_number = ?, updated_at = ?
		 WHERE id = ? AND status = ?`),
		items, orderNumber, at, id, string(model.StatusActive),
	)
	if err != nil {
		return false, fmt.Errorf("saving picking list: %w", err)
	}
	return affected(res)
}

// Transition describes a conditional status change.
type Transition struct {
	ID   string
	From []model.ListStatus
	To   model.ListStatus
	// CheckedBy, when set, requires the list to be locked by this operator.
	CheckedBy    string
	ClearChecker bool
	Notes        *string
	At           time.Time
}

// TransitionList applies t if the list is currently in one of t.From.
// Returns false when the guard did not match, and model.ErrOpenListExists
// when the move would give the owner a second open list.
func TransitionList(ctx context.Context, db sqlx.ExtContext, t Transition) (bool, error) {
	set := []string{`status = ?`, `updated_at = ?`}
	args := []any{string(t.To), t.At}
	if t.ClearChecker {
		set = append(set, `checked_by = NULL`)
	}
	if t.Notes != nil {
		set = append(set, `correction_notes = ?`)
		args = append(args, *t.Notes)
	}

	query := `UPDATE picking_lists SET ` + strings.Join(set, ", ") + ` WHERE id = ?`
	args = append(args, t.ID)
	if len(t.From) > 0 {
		query += ` AND status IN (?` + strings.Repeat(`, ?`, len(t.From)-1) + `)`
		for _, s := range t.From {
			args = append(args, string(s))
		}
	}
	if t.CheckedBy != "" {
		query += ` AND checked_by = ?`
		args = append(args, t.CheckedBy)
	}

	res, err := db.ExecContext(ctx, db.Rebind(query), args...)
	if err != nil {
		if t.To.Open() && isUniqueViolation(err) {
			return false, model.ErrOpenListExists
		}
		return false, fmt.Errorf("transitioning picking list: %w", err)
	}
	return affected(res)
}

// LockRequest asks for a list to be put into verification by a checker.
type LockRequest struct {
	ListID    string
	CheckerID string
	From      []model.ListStatus
	// Items and OrderNumber replace the stored snapshot when Items is non-nil.
	Items       model.PickingItems
	OrderNumber *string
	ClearNotes  bool
	At          time.Time
}

// LockResult is the locked list plus the lists released to the queue on the way.
type LockResult struct {
	List     *model.PickingList
	Released []string
}

// LockList releases every other list the checker holds and locks the
// requested one, in one transaction. The lock is granted only when nobody
// else holds it.
func LockList(ctx context.Context, db *sqlx.DB, req LockRequest) (*LockResult, error) {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var released []string
	err = sqlx.SelectContext(ctx, tx, &released, tx.Rebind(
		`SELECT id FROM picking_lists WHERE checked_by = ? AND status = ? AND id <> ?`),
		req.CheckerID, string(model.StatusDoubleChecking), req.ListID,
	)
	if err != nil {
		return nil, fmt.Errorf("finding held lists: %w", err)
	}
	if len(released) > 0 {
		_, err = tx.ExecContext(ctx, tx.Rebind(
			`UPDATE picking_lists SET status = ?, checked_by = NULL, updated_at = ?
			 WHERE checked_by = ? AND status = ? AND id <> ?`),
			string(model.StatusReadyToDoubleCheck), req.At, req.CheckerID, string(model.StatusDoubleChecking), req.ListID,
		)
		if err != nil {
			return nil, fmt.Errorf("releasing held lists: %w", err)
		}
	}

	set := []string{`status = ?`, `checked_by = ?`, `updated_at = ?`}
	args := []any{string(model.StatusDoubleChecking), req.CheckerID, req.At}
	if req.Items != nil {
		set = append(set, `items = ?`, `order_number = ?`)
		args = append(args, req.Items, req.OrderNumber)
	}
	if req.ClearNotes {
		set = append(set, `correction_notes = NULL`)
	}

	query := `UPDATE picking_lists SET ` + strings.Join(set, ", ") +
		` WHERE id = ? AND (checked_by IS NULL OR checked_by = ?)`
	args = append(args, req.ListID, req.CheckerID)
	if len(req.From) > 0 {
		query += ` AND status IN (?` + strings.Repeat(`, ?`, len(req.From)-1) + `)`
		for _, s := range req.From {
			args = append(args, string(s))
		}
	}

	res, err := tx.ExecContext(ctx, tx.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("locking picking list: %w", err)
	}
	ok, err := affected(res)
	if err != nil {
		return nil, err
	}
	if !ok {
		current, err := GetList(ctx, tx, req.ListID)
		if err != nil {
			return nil, err
		}
		switch {
		case current == nil:
			return nil, model.ErrListNotFound
		case current.CheckedBy != nil && *current.CheckedBy != req.CheckerID:
			return nil, model.ErrLockHeld
		default:
			return nil, model.ErrInvalidTransition
		}
	}

	list, err := GetList(ctx, tx, req.ListID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing lock: %w", err)
	}
	return &LockResult{List: list, Released: released}, nil
}

// DeleteList removes a picking list and its notes.
func DeleteList(ctx context.Context, db sqlx.ExtContext, id string) error {
	if _, err := db.ExecContext(ctx, db.Rebind(`DELETE FROM picking_list_notes WHERE list_id = ?`), id); err != nil {
		return fmt.Errorf("deleting list notes: %w", err)
	}
	if _, err := db.ExecContext(ctx, db.Rebind(`DELETE FROM picking_lists WHERE id = ?`), id); err != nil {
		return fmt.Errorf("deleting picking list: %w", err)
	}
	return nil
}

// InsertNote appends a note to a list's timeline. The ID is generated when empty.
func InsertNote(ctx context.Context, db sqlx.ExtContext, n *model.ListNote) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	_, err := db.ExecContext(ctx, db.Rebind(
		`INSERT INTO picking_list_notes (id, list_id, user_id, author, body, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`),
		n.ID, n.ListID, n.UserID, n.Author, n.Body, n.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting note: %w", err)
	}
	return nil
}

// ListNotes returns a list's notes, oldest first.
func ListNotes(ctx context.Context, db sqlx.ExtContext, listID string) ([]model.ListNote, error) {
	var notes []model.ListNote
	err := sqlx.SelectContext(ctx, db, &notes, db.Rebind(
		`SELECT id, list_id, user_id, author, body, created_at
		 FROM picking_list_notes WHERE list_id = ? ORDER BY created_at, id`),
		listID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing notes: %w", err)
	}
	return notes, nil
}

func statusStrings(statuses []model.ListStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
