package store

import (
	"context"
	"strconv"
	"strings"
	"sync"
)

// MemoryStore is an in-memory ObjectStore for tests and local
// development. It honors the same conditional-write semantics as the
// real backends, with monotonically increasing version tokens standing
// in for ETags. Thread-safe.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]memoryObject
	seq     int64
}

type memoryObject struct {
	data    []byte
	version string
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		objects: make(map[string]memoryObject),
	}
}

func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	obj, ok := m.objects[key]
	if !ok {
		return nil, "", ErrNotFound
	}

	// Return a copy to prevent external mutation
	copied := make([]byte, len(obj.data))
	copy(copied, obj.data)

	return copied, obj.version, nil
}

func (m *MemoryStore) Put(_ context.Context, key string, body []byte, opts PutOptions) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, exists := m.objects[key]
	if opts.IfMatch != "" && (!exists || current.version != opts.IfMatch) {
		return "", ErrConflict
	}
	if opts.IfNoneMatch && exists {
		return "", ErrConflict
	}

	m.seq++
	version := "v" + strconv.FormatInt(m.seq, 10)

	copied := make([]byte, len(body))
	copy(copied, body)
	m.objects[key] = memoryObject{data: copied, version: version}

	return version, nil
}

func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.objects, key)
	return nil
}

func (m *MemoryStore) List(_ context.Context, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var keys []string
	for key := range m.objects {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	return keys, nil
}
