// internal/state/file.go
//
// JSON-file Persister: the whole snapshot lives in one structured file and
// every save rewrites it completely. Writes go through a temp file + rename
// so a crash mid-flush never leaves a truncated record.

package state

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// FilePersister persists the snapshot as a single JSON document.
type FilePersister struct {
	path string
}

// NewFilePersister returns a Persister writing to path. The parent directory
// is created on first save.
func NewFilePersister(path string) *FilePersister {
	return &FilePersister{path: path}
}

// Load reads the snapshot file. A missing file is an empty snapshot, not an
// error (first run).
func (f *FilePersister) Load(ctx context.Context) (*Snapshot, error) {
	data, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return &Snapshot{UsedWords: map[int64][]string{}}, nil
	}
	if err != nil {
		return nil, err
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode %s: %w", f.path, err)
	}
	if snap.UsedWords == nil {
		snap.UsedWords = map[int64][]string{}
	}
	return &snap, nil
}

// Save rewrites the entire snapshot file.
func (f *FilePersister) Save(ctx context.Context, snap *Snapshot) error {
	dir := filepath.Dir(f.path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("mkdir %s: %w", dir, err)
		}
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, f.path)
}
