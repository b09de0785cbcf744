package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sync"

	"github.com/peterbourgon/diskv/v3"

	"prism-board/domain"
)

// FileBackend stores the document as one JSON file. Writes go through a
// temporary file and a rename, so readers never observe a partial document.
type FileBackend struct {
	mu  sync.Mutex
	d   *diskv.Diskv
	key string
}

// NewFileBackend stores the document at path.
func NewFileBackend(path string) *FileBackend {
	dir := filepath.Dir(path)
	return &FileBackend{
		d: diskv.New(diskv.Options{
			BasePath: dir,
			TempDir:  filepath.Join(dir, ".tmp"),
		}),
		key: filepath.Base(path),
	}
}

func (f *FileBackend) Load(context.Context) (domain.Snapshot, Version, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	snap, v, err := f.load()
	return snap, intVersion(v), err
}

func (f *FileBackend) load() (domain.Snapshot, int64, error) {
	data, err := f.d.Read(f.key)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return domain.NewSnapshot(), 0, nil
		}
		return domain.Snapshot{}, 0, err
	}
	snap, v, err := decodeDocument(data)
	if err != nil {
		return domain.Snapshot{}, 0, fmt.Errorf("decode %s: %w", f.key, err)
	}
	return snap, v, nil
}

func (f *FileBackend) Save(_ context.Context, snap domain.Snapshot, expected Version) (Version, error) {
	want, err := parseIntVersion(expected)
	if err != nil {
		return "", domain.ErrConcurrencyConflict
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	_, current, err := f.load()
	if err != nil {
		return "", err
	}
	if current != want {
		return "", domain.ErrConcurrencyConflict
	}
	data, err := encodeDocument(snap, current+1)
	if err != nil {
		return "", err
	}
	if err := f.d.Write(f.key, data); err != nil {
		return "", err
	}
	return intVersion(current + 1), nil
}
