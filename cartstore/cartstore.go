// Package cartstore owns the shopping cart: an in-memory collection of line
// items with durable local persistence. Mutations are served from memory and
// flushed to the configured Persister through a debounced write queue, so the
// cart keeps working even when storage is slow or failing.
package cartstore

import "context"

// CatalogItem is a product descriptor sourced from the food-court menu. The
// cart copies its fields at add time; it never mutates catalog data.
type CatalogItem struct {
	ItemID      string  `json:"itemId"`
	Name        string  `json:"name"`
	VendorName  string  `json:"vendorName,omitempty"`
	Category    string  `json:"category,omitempty"`
	Veg         bool    `json:"veg"`
	Image       string  `json:"image,omitempty"`
	Description string  `json:"description,omitempty"`
	UnitPrice   float64 `json:"unitPrice"`
}

// LineItem is one product entry in the cart. Quantity is always >= 1 while
// the item is present; an item whose quantity drops to zero is removed.
type LineItem struct {
	CatalogItem
	Quantity int32 `json:"quantity"`
}

// Persister is the durable backend for the cart. The persisted layout is a
// flat JSON array of LineItem records under a single key, which existing
// installs already depend on.
type Persister interface {
	// Load returns the persisted cart, or an empty collection when nothing
	// has been persisted yet.
	Load(ctx context.Context) ([]LineItem, error)

	// Save replaces the persisted cart with the given snapshot.
	Save(ctx context.Context, items []LineItem) error

	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) bool

	Close() error
}
