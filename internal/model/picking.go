package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// ListStatus is a picking list's lifecycle state.
type ListStatus string

const (
	StatusActive             ListStatus = "active"
	StatusNeedsCorrection    ListStatus = "needs_correction"
	StatusReadyToDoubleCheck ListStatus = "ready_to_double_check"
	StatusDoubleChecking     ListStatus = "double_checking"
	StatusCompleted          ListStatus = "completed"
)

// Open reports whether the list still belongs to its picker.
func (s ListStatus) Open() bool {
	return s == StatusActive || s == StatusNeedsCorrection
}

// ReservingStatuses are the states whose items count against other operators' availability.
var ReservingStatuses = []ListStatus{StatusActive, StatusDoubleChecking}

// PendingStatuses are all states of a list that has not been completed.
var PendingStatuses = []ListStatus{StatusActive, StatusNeedsCorrection, StatusReadyToDoubleCheck, StatusDoubleChecking}

// PickingItem is one requested line of a picking list.
type PickingItem struct {
	SKU          string `json:"sku"`
	Warehouse    string `json:"warehouse"`
	Location     string `json:"location"`
	RequestedQty int    `json:"requested_qty"`
}

// Key returns the slot the line draws from.
func (i PickingItem) Key() SlotKey {
	return SlotKey{SKU: i.SKU, Warehouse: i.Warehouse, Location: i.Location}
}

// PickingItems is stored as a JSON document.
type PickingItems []PickingItem

// Value implements driver.Valuer.
func (p PickingItems) Value() (driver.Value, error) {
	if p == nil {
		return "[]", nil
	}
	b, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (p *PickingItems) Scan(src any) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		*p = PickingItems{}
		return nil
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		return fmt.Errorf("scanning picking items: unsupported type %T", src)
	}
	if len(data) == 0 {
		*p = PickingItems{}
		return nil
	}
	return json.Unmarshal(data, p)
}

// QuantityFor sums the requested quantity for key.
func (p PickingItems) QuantityFor(key SlotKey) int {
	total := 0
	for _, it := range p {
		if it.Key() == key {
			total += it.RequestedQty
		}
	}
	return total
}

// PickingList is an order being assembled, checked and completed.
type PickingList struct {
	ID              string       `db:"id" json:"id"`
	UserID          string       `db:"user_id" json:"user_id"`
	Status          ListStatus   `db:"status" json:"status"`
	Items           PickingItems `db:"items" json:"items"`
	OrderNumber     *string      `db:"order_number" json:"order_number,omitempty"`
	CheckedBy       *string      `db:"checked_by" json:"checked_by,omitempty"`
	CorrectionNotes *string      `db:"correction_notes" json:"correction_notes,omitempty"`
	CreatedAt       time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time    `db:"updated_at" json:"updated_at"`
}

// CheckedByActor reports whether id currently holds the check lock.
func (l PickingList) CheckedByActor(id string) bool {
	return l.CheckedBy != nil && *l.CheckedBy == id
}

// ListNote is an entry in a list's correction timeline.
type ListNote struct {
	ID        string    `db:"id" json:"id"`
	ListID    string    `db:"list_id" json:"list_id"`
	UserID    string    `db:"user_id" json:"user_id"`
	Author    string    `db:"author" json:"author"`
	Body      string    `db:"body" json:"body"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
