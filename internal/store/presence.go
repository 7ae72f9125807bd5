package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/erazemk/stockledger/internal/model"
)

// TouchPresence records that a user was seen at the given time.
func TouchPresence(ctx context.Context, db sqlx.ExtContext, userID, username string, at time.Time) error {
	_, err := db.ExecContext(ctx, db.Rebind(
		`INSERT INTO user_presence (user_id, username, last_seen) VALUES (?, ?, ?)
		 ON CONFLICT (user_id) DO UPDATE SET username = excluded.username, last_seen = excluded.last_seen`),
		userID, username, at,
	)
	if err != nil {
		return fmt.Errorf("touching presence: %w", err)
	}
	return nil
}

// OnlineUsers returns users seen at or after since, most recent first.
func OnlineUsers(ctx context.Context, db sqlx.ExtContext, since time.Time) ([]model.Presence, error) {
	var out []model.Presence
	err := sqlx.SelectContext(ctx, db, &out, db.Rebind(
		`SELECT user_id, username, last_seen FROM user_presence
		 WHERE last_seen >= ? ORDER BY last_seen DESC`), since,
	)
	if err != nil {
		return nil, fmt.Errorf("listing presence: %w", err)
	}
	return out, nil
}
