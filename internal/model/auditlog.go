package model

import "time"

// ActionType is the kind of change an audit entry records.
type ActionType string

const (
	ActionAdd    ActionType = "ADD"
	ActionDeduct ActionType = "DEDUCT"
	ActionMove   ActionType = "MOVE"
	ActionEdit   ActionType = "EDIT"
	ActionDelete ActionType = "DELETE"
)

// InverseOf reports whether a and b cancel each other out when merged.
func (a ActionType) InverseOf(b ActionType) bool {
	return (a == ActionAdd && b == ActionDeduct) || (a == ActionDeduct && b == ActionAdd)
}

// AuditEntry is one row of the inventory history. QuantityChange is signed.
type AuditEntry struct {
	ID             string     `db:"id" json:"id"`
	SKU            string     `db:"sku" json:"sku"`
	FromWarehouse  *string    `db:"from_warehouse" json:"from_warehouse,omitempty"`
	FromLocation   *string    `db:"from_location" json:"from_location,omitempty"`
	ToWarehouse    *string    `db:"to_warehouse" json:"to_warehouse,omitempty"`
	ToLocation     *string    `db:"to_location" json:"to_location,omitempty"`
	ActionType     ActionType `db:"action_type" json:"action_type"`
	QuantityChange int        `db:"quantity_change" json:"quantity_change"`
	PrevQuantity   *int       `db:"prev_quantity" json:"prev_quantity,omitempty"`
	NewQuantity    *int       `db:"new_quantity" json:"new_quantity,omitempty"`
	PerformedBy    string     `db:"performed_by" json:"performed_by"`
	UserID         *string    `db:"user_id" json:"user_id,omitempty"`
	OrderNumber    *string    `db:"order_number" json:"order_number,omitempty"`
	ListID         *string    `db:"list_id" json:"list_id,omitempty"`
	ItemID         *string    `db:"item_id" json:"item_id,omitempty"`
	PreviousSKU    *string    `db:"previous_sku" json:"previous_sku,omitempty"`
	IsReversed     bool       `db:"is_reversed" json:"is_reversed"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}

// SameContext reports whether e can absorb a change described by other:
// same SKU, same endpoints and same order.
func (e AuditEntry) SameContext(other AuditEntry) bool {
	return e.SKU == other.SKU &&
		eqPtr(e.FromWarehouse, other.FromWarehouse) &&
		eqPtr(e.FromLocation, other.FromLocation) &&
		eqPtr(e.ToWarehouse, other.ToWarehouse) &&
		eqPtr(e.ToLocation, other.ToLocation) &&
		eqPtr(e.OrderNumber, other.OrderNumber)
}

// Endpoints returns the slot keys this entry touches.
func (e AuditEntry) Endpoints() []SlotKey {
	var keys []SlotKey
	if e.FromWarehouse != nil && e.FromLocation != nil {
		keys = append(keys, SlotKey{SKU: e.SKU, Warehouse: *e.FromWarehouse, Location: *e.FromLocation})
	}
	if e.ToWarehouse != nil && e.ToLocation != nil {
		keys = append(keys, SlotKey{SKU: e.SKU, Warehouse: *e.ToWarehouse, Location: *e.ToLocation})
	}
	return keys
}

func eqPtr(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T { return &v }

// StrOrNil returns nil for the empty string.
func StrOrNil(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
