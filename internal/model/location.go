package model

import "time"

// Location is a registered place in a warehouse that slots link to.
type Location struct {
	ID           string    `db:"id" json:"id"`
	Warehouse    string    `db:"warehouse" json:"warehouse"`
	Name         string    `db:"name" json:"name"`
	MaxCapacity  int       `db:"max_capacity" json:"max_capacity"`
	Zone         string    `db:"zone" json:"zone"`
	PickingOrder *int      `db:"picking_order" json:"picking_order,omitempty"`
	IsActive     bool      `db:"is_active" json:"is_active"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// Defaults for locations created on the fly.
const (
	DefaultMaxCapacity = 550
	ZoneUnassigned     = "UNASSIGNED"
)
