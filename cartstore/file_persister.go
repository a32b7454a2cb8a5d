package cartstore

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// FilePersister stores the cart as a JSON file on local disk, the serverless
// analog of the mobile app's on-device storage. Writes go through a temp
// file and rename so a crash mid-write never leaves a torn cart behind.
type FilePersister struct {
	path string
}

// NewFilePersister creates a persister writing to the given path. Parent
// directories are created on first save.
func NewFilePersister(path string) *FilePersister {
	return &FilePersister{path: path}
}

// Load reads the persisted cart. A missing file is an empty cart, not an
// error, so a first launch starts clean.
func (f *FilePersister) Load(ctx context.Context) ([]LineItem, error) {
	data, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "read cart file")
	}
	var items []LineItem
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, errors.Wrap(err, "decode cart file")
	}
	return items, nil
}

// Save atomically replaces the persisted cart with the given snapshot.
func (f *FilePersister) Save(ctx context.Context, items []LineItem) error {
	if items == nil {
		items = []LineItem{}
	}
	data, err := json.Marshal(items)
	if err != nil {
		return errors.Wrap(err, "encode cart")
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrap(err, "create cart dir")
	}
	tmp, err := os.CreateTemp(dir, ".cart-*")
	if err != nil {
		return errors.Wrap(err, "create temp cart file")
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrap(err, "write cart file")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "close cart file")
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return errors.Wrap(err, "replace cart file")
	}
	return nil
}

// Ping always succeeds; local disk is assumed live.
func (f *FilePersister) Ping(ctx context.Context) bool {
	return true
}

func (f *FilePersister) Close() error {
	return nil
}
