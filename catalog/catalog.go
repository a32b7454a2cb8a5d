// Package catalog provides the food-court menu the cart resolves items
// against. The menu is a static JSON file loaded once at startup: the
// embedded default, or an operator-supplied file for a different campus.
package catalog

import (
	_ "embed"
	"encoding/json"
	"os"

	"github.com/pkg/errors"

	"github.com/axstorch/foodcourt/cartstore"
)

//go:embed menu.json
var defaultMenu []byte

// Catalog is an immutable, id-indexed menu.
type Catalog struct {
	items []cartstore.CatalogItem
	byID  map[string]cartstore.CatalogItem
}

// Load builds a catalog from the JSON file at path, or from the embedded
// default menu when path is empty. Entries must carry a unique non-empty
// itemId and a non-negative unitPrice; the cart depends on both, so a
// malformed menu fails loudly here instead of corrupting carts later.
func Load(path string) (*Catalog, error) {
	data := defaultMenu
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrap(err, "read catalog file")
		}
	}

	var items []cartstore.CatalogItem
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, errors.Wrap(err, "decode catalog")
	}

	byID := make(map[string]cartstore.CatalogItem, len(items))
	for _, it := range items {
		if it.ItemID == "" {
			return nil, errors.Errorf("catalog item %q has no itemId", it.Name)
		}
		if _, dup := byID[it.ItemID]; dup {
			return nil, errors.Errorf("duplicate catalog itemId %q", it.ItemID)
		}
		if it.UnitPrice < 0 {
			return nil, errors.Errorf("catalog item %q has negative price", it.ItemID)
		}
		byID[it.ItemID] = it
	}
	return &Catalog{items: items, byID: byID}, nil
}

// Get returns the catalog item with the given id.
func (c *Catalog) Get(itemID string) (cartstore.CatalogItem, bool) {
	it, ok := c.byID[itemID]
	return it, ok
}

// List returns all catalog items in menu order.
func (c *Catalog) List() []cartstore.CatalogItem {
	out := make([]cartstore.CatalogItem, len(c.items))
	copy(out, c.items)
	return out
}

// Size returns the number of catalog items.
func (c *Catalog) Size() int {
	return len(c.items)
}
