package storage

import (
	"context"
	"sync"

	"prism-board/domain"
)

// MemoryBackend keeps the document in process memory.
type MemoryBackend struct {
	mu      sync.Mutex
	snap    domain.Snapshot
	version int64
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{snap: domain.NewSnapshot()}
}

func (m *MemoryBackend) Load(context.Context) (domain.Snapshot, Version, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snap.Clone(), intVersion(m.version), nil
}

func (m *MemoryBackend) Save(_ context.Context, snap domain.Snapshot, expected Version) (Version, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if expected != intVersion(m.version) {
		return "", domain.ErrConcurrencyConflict
	}
	m.snap = snap.Clone()
	m.version++
	return intVersion(m.version), nil
}
