package credentials

import (
	"context"
	"sync"
)

// MemoryBackend keeps records in process memory.
type MemoryBackend struct {
	mu   sync.RWMutex
	data map[int64][]byte
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{data: make(map[int64][]byte)}
}

func (b *MemoryBackend) Get(_ context.Context, userID int64) ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	data, ok := b.data[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), data...), nil
}

func (b *MemoryBackend) Put(_ context.Context, userID int64, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data[userID] = append([]byte(nil), data...)
	return nil
}

func (b *MemoryBackend) Delete(_ context.Context, userID int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.data, userID)
	return nil
}

func (b *MemoryBackend) Close() error { return nil }
