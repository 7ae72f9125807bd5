package model

import (
	"strings"
	"time"
)

// SlotKey identifies a stock counter.
type SlotKey struct {
	SKU       string `json:"sku"`
	Warehouse string `json:"warehouse"`
	Location  string `json:"location"`
}

func (k SlotKey) String() string {
	return k.SKU + "@" + k.Warehouse + "/" + k.Location
}

// Normalize trims whitespace from every component.
func (k SlotKey) Normalize() SlotKey {
	return SlotKey{
		SKU:       strings.TrimSpace(k.SKU),
		Warehouse: strings.TrimSpace(k.Warehouse),
		Location:  strings.TrimSpace(k.Location),
	}
}

// Slot is the stored quantity of one SKU at one warehouse location.
type Slot struct {
	ID         string    `db:"id" json:"id"`
	SKU        string    `db:"sku" json:"sku"`
	Warehouse  string    `db:"warehouse" json:"warehouse"`
	Location   string    `db:"location" json:"location"`
	LocationID *string   `db:"location_id" json:"location_id,omitempty"`
	Quantity   int       `db:"quantity" json:"quantity"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// Key returns the slot's identity.
func (s Slot) Key() SlotKey {
	return SlotKey{SKU: s.SKU, Warehouse: s.Warehouse, Location: s.Location}
}

// SKUMeta carries descriptive data for a SKU.
type SKUMeta struct {
	SKU       string    `db:"sku" json:"sku"`
	Name      string    `db:"name" json:"name"`
	LengthIn  *float64  `db:"length_in" json:"length_in,omitempty"`
	WidthIn   *float64  `db:"width_in" json:"width_in,omitempty"`
	HeightIn  *float64  `db:"height_in" json:"height_in,omitempty"`
	PhotoKey  *string   `db:"photo_key" json:"-"`
	ThumbKey  *string   `db:"thumb_key" json:"-"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// HasPhoto reports whether a reference photo was uploaded.
func (m SKUMeta) HasPhoto() bool {
	return m.PhotoKey != nil && *m.PhotoKey != ""
}
