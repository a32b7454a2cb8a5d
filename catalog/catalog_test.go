package catalog

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadEmbeddedMenu(t *testing.T) {
	c, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Size() == 0 {
		t.Fatal("embedded menu is empty")
	}

	it, ok := c.Get("1")
	if !ok {
		t.Fatal("item 1 missing from embedded menu")
	}
	if it.Name == "" || it.UnitPrice <= 0 {
		t.Errorf("item 1 incomplete: %+v", it)
	}

	if _, ok := c.Get("does-not-exist"); ok {
		t.Error("Get returned ok for unknown id")
	}
}

func TestLoadFromFile(t *testing.T) {
	path := writeMenu(t, `[
		{"itemId": "a", "name": "Tea", "unitPrice": 15},
		{"itemId": "b", "name": "Coffee", "unitPrice": 25}
	]`)

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Size() != 2 {
		t.Errorf("Size = %d, want 2", c.Size())
	}
	if got := c.List(); len(got) != 2 || got[0].ItemID != "a" {
		t.Errorf("List = %+v, want menu order preserved", got)
	}
}

func TestLoadRejectsBadMenus(t *testing.T) {
	tests := []struct {
		name string
		menu string
	}{
		{"missing id", `[{"name": "Tea", "unitPrice": 15}]`},
		{"duplicate id", `[{"itemId": "a", "name": "Tea", "unitPrice": 15}, {"itemId": "a", "name": "Chai", "unitPrice": 20}]`},
		{"negative price", `[{"itemId": "a", "name": "Tea", "unitPrice": -1}]`},
		{"not json", `menu?`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(writeMenu(t, tt.menu)); err == nil {
				t.Error("Load returned nil error")
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Error("Load returned nil error for missing file")
	}
}

func writeMenu(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "menu.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}
