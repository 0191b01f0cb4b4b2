// Package storage implements the tiered key/value persistence layer.
//
// Four backends are supported, in preference order: a SQLite object store,
// a durable JSON file store, a process-scoped scratch file store, and an
// in-process map. The tiered store probes each at initialization and
// serves from the first available; lower tiers remain latent fallback
// targets for migration and downgrade.
package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/ygopack/packtrack/internal/service"
)

// probeKey is round-tripped through a backend to verify it works.
const probeKey = "__packtrack_probe__"

// Backend is a single storage tier. Values are opaque serialized bytes;
// the tiered store owns encoding.
type Backend interface {
	Kind() service.BackendKind
	Probe(ctx context.Context) error
	Get(ctx context.Context, key string) (value []byte, found bool, err error)
	Set(ctx context.Context, key string, value []byte) error
	Remove(ctx context.Context, key string) error
	Keys(ctx context.Context) ([]string, error)
	Clear(ctx context.Context) error
	Close() error
}

// MemoryBackend is the in-process map tier. It always probes available
// and is the floor every downgrade ends at.
type MemoryBackend struct {
	entries map[string][]byte
	mu      sync.RWMutex
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{entries: make(map[string][]byte)}
}

// Kind returns the backend tier identifier.
func (m *MemoryBackend) Kind() service.BackendKind { return service.BackendMemory }

// Probe always succeeds for the memory tier.
func (m *MemoryBackend) Probe(_ context.Context) error { return nil }

// Get returns the stored value for key.
func (m *MemoryBackend) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.entries[key]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, true, nil
}

// Set stores value under key.
func (m *MemoryBackend) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v := make([]byte, len(value))
	copy(v, value)
	m.entries[key] = v
	return nil
}

// Remove deletes key. Removing an absent key is not an error.
func (m *MemoryBackend) Remove(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

// Keys lists all stored keys in sorted order.
func (m *MemoryBackend) Keys(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.entries))
	for k := range m.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// Clear removes every entry.
func (m *MemoryBackend) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[string][]byte)
	return nil
}

// Close is a no-op for the memory tier.
func (m *MemoryBackend) Close() error { return nil }
