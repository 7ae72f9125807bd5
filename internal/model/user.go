package model

import (
	"fmt"
	"time"
)

// User represents an authenticated operator.
type User struct {
	ID           string     `db:"id" json:"id"`
	Username     string     `db:"username" json:"username"`
	PasswordHash string     `db:"password_hash" json:"-"`
	Role         string     `db:"role" json:"role"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	DeletedAt    *time.Time `db:"deleted_at" json:"deleted_at,omitempty"`
}

// Roles.
const (
	RoleAdmin   = "admin"
	RoleManager = "manager"
	RoleUser    = "user"
)

// MinPasswordLength is the shortest accepted password.
const MinPasswordLength = 8

// RoleAtLeast checks if role meets or exceeds the minimum required role.
func RoleAtLeast(role, minimum string) bool {
	levels := map[string]int{
		RoleAdmin:   3,
		RoleManager: 2,
		RoleUser:    1,
	}
	return levels[role] > 0 && levels[role] >= levels[minimum] && levels[minimum] > 0
}

// ValidRole reports whether role is one of the known roles.
func ValidRole(role string) bool {
	return role == RoleAdmin || role == RoleManager || role == RoleUser
}

// ValidatePassword checks password strength requirements.
func ValidatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return fmt.Errorf("password must be at least %d characters", MinPasswordLength)
	}
	return nil
}

// Actor identifies the operator behind a mutating call.
type Actor struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	// Privileged operators may create locations.
	Privileged bool `json:"privileged"`
}

// ActorFor builds the actor identity for a user. Managers and admins are privileged.
func ActorFor(id, username, role string) Actor {
	return Actor{ID: id, Name: username, Privileged: RoleAtLeast(role, RoleManager)}
}

// Presence records when an operator was last seen.
type Presence struct {
	UserID   string    `db:"user_id" json:"user_id"`
	Username string    `db:"username" json:"username"`
	LastSeen time.Time `db:"last_seen" json:"last_seen"`
}
