package room

import (
	"context"
	"sync"
)

// KV is the durable key-value collaborator scoped to one room.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, value []byte) error
	DeleteAll(ctx context.Context) error
}

// MemoryKV is a process-local KV. Rooms backed by it do not survive a restart.
type MemoryKV struct {
	mu     sync.Mutex
	values map[string][]byte
}

// NewMemoryKV returns an empty MemoryKV.
func NewMemoryKV() *MemoryKV {
	return &MemoryKV{values: map[string][]byte{}}
}

// Get returns a copy of the value stored under key.
func (m *MemoryKV) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

// Put stores a copy of value under key.
func (m *MemoryKV) Put(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = append([]byte(nil), value...)
	return nil
}

// DeleteAll removes every key.
func (m *MemoryKV) DeleteAll(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values = map[string][]byte{}
	return nil
}

// MemoryStore hands out one MemoryKV per room code.
type MemoryStore struct {
	mu    sync.Mutex
	rooms map[string]*MemoryKV
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rooms: map[string]*MemoryKV{}}
}

// Room returns the KV of code, creating it on first use.
func (m *MemoryStore) Room(code string) KV {
	m.mu.Lock()
	defer m.mu.Unlock()
	kv, ok := m.rooms[code]
	if !ok {
		kv = NewMemoryKV()
		m.rooms[code] = kv
	}
	return kv
}
