package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/ygopack/packtrack/internal/common"
	"github.com/ygopack/packtrack/internal/service"
)

// Store is the tiered key/value store. It probes its backends in
// preference order at construction, serves from the first available, and
// keeps the rest as latent fallback targets.
type Store struct {
	backends []Backend
	current  Backend
	mu       sync.RWMutex
}

// Config locates the persistent tiers.
type Config struct {
	// DBPath is the SQLite file for the indexed tier. Empty disables it.
	DBPath string
	// DataDir roots the durable file tier. Empty disables it.
	DataDir string
}

// NewStore probes the configured backends and selects the first that
// answers. The memory tier is always present, so construction only fails
// when no backend list could be assembled at all.
func NewStore(ctx context.Context, cfg Config) (*Store, error) {
	var backends []Backend

	if cfg.DBPath != "" {
		if sb, err := NewSQLiteBackend(cfg.DBPath); err != nil {
			common.LogWarn("indexed storage tier unavailable", common.Fields{"error": err.Error()})
		} else {
			backends = append(backends, sb)
		}
	}
	if cfg.DataDir != "" {
		backends = append(backends, NewDurableBackend(cfg.DataDir))
	}
	backends = append(backends, NewScratchBackend(), NewMemoryBackend())

	s := &Store{backends: backends}
	for _, b := range backends {
		if err := b.Probe(ctx); err != nil {
			common.LogWarn("storage tier failed probe", common.Fields{
				"backend": string(b.Kind()),
				"error":   err.Error(),
			})
			continue
		}
		s.current = b
		break
	}
	if s.current == nil {
		// Memory never fails its probe, so this is unreachable in
		// practice; guard anyway.
		s.current = backends[len(backends)-1]
	}

	common.LogInfo("storage initialized", common.Fields{"backend": string(s.current.Kind())})
	return s, nil
}

// NewMemoryStore returns a store pinned to the in-memory tier. It is the
// coordinator's fallback when storage initialization fails outright.
func NewMemoryStore() *Store {
	mem := NewMemoryBackend()
	return &Store{backends: []Backend{mem}, current: mem}
}

// CurrentBackend reports the tier serving operations right now.
func (s *Store) CurrentBackend() service.BackendKind {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.Kind()
}

// Get decodes the value stored under key into out. It reports false for
// missing keys, and also for corrupted entries, which are logged and
// never propagated as errors.
func (s *Store) Get(ctx context.Context, key string, out any) (bool, error) {
	s.mu.RLock()
	backend := s.current
	s.mu.RUnlock()

	raw, found, err := backend.Get(ctx, key)
	if err != nil {
		return false, fmt.Errorf("get %q: %w", key, err)
	}
	if !found {
		return false, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		common.LogWarn("discarding corrupted storage entry", common.Fields{
			"key":     key,
			"backend": string(backend.Kind()),
			"error":   err.Error(),
		})
		return false, nil
	}
	return true, nil
}

// Set serializes value and stores it under key.
func (s *Store) Set(ctx context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal %q: %w", key, err)
	}

	s.mu.RLock()
	backend := s.current
	s.mu.RUnlock()

	if err := backend.Set(ctx, key, raw); err != nil {
		return fmt.Errorf("set %q: %w", key, err)
	}
	return nil
}

// Remove deletes key from the current backend.
func (s *Store) Remove(ctx context.Context, key string) error {
	s.mu.RLock()
	backend := s.current
	s.mu.RUnlock()
	if err := backend.Remove(ctx, key); err != nil {
		return fmt.Errorf("remove %q: %w", key, err)
	}
	return nil
}

// Keys lists the keys of the current backend.
func (s *Store) Keys(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	backend := s.current
	s.mu.RUnlock()
	return backend.Keys(ctx)
}

// Clear removes every entry from the current backend.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.RLock()
	backend := s.current
	s.mu.RUnlock()
	return backend.Clear(ctx)
}

// Migrate copies every key from one backend to another. Individual key
// failures are skipped; the count of copied keys is returned.
func (s *Store) Migrate(ctx context.Context, from, to service.BackendKind) (int, error) {
	src := s.backend(from)
	dst := s.backend(to)
	if src == nil || dst == nil {
		return 0, fmt.Errorf("%w: unknown backend in migrate %s -> %s", common.ErrInvalidConfig, from, to)
	}

	keys, err := src.Keys(ctx)
	if err != nil {
		return 0, fmt.Errorf("migrate: list source keys: %w", err)
	}
	return copyKeys(ctx, src, dst, keys), nil
}

// copyKeys copies the named keys from src to dst, skipping individual
// failures, and returns how many landed.
func copyKeys(ctx context.Context, src, dst Backend, keys []string) int {
	copied := 0
	for _, key := range keys {
		raw, found, err := src.Get(ctx, key)
		if err != nil || !found {
			if err != nil {
				common.LogWarn("skipping unreadable key", common.Fields{"key": key, "error": err.Error()})
			}
			continue
		}
		if err := dst.Set(ctx, key, raw); err != nil {
			common.LogWarn("skipping unwritable key", common.Fields{"key": key, "error": err.Error()})
			continue
		}
		copied++
	}
	return copied
}

// Downgrade switches to the next lower tier that answers its probe and
// carries the current backend's data across. The memory tier always
// answers, so a downgrade cannot fail to land somewhere.
func (s *Store) Downgrade(ctx context.Context) (service.BackendKind, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	currentIdx := -1
	for i, b := range s.backends {
		if b == s.current {
			currentIdx = i
			break
		}
	}

	for i := currentIdx + 1; i < len(s.backends); i++ {
		candidate := s.backends[i]
		if err := candidate.Probe(ctx); err != nil {
			continue
		}
		from := s.current
		s.current = candidate

		// Best effort: the old tier may be exactly what failed.
		carried := 0
		if keys, err := from.Keys(ctx); err == nil {
			carried = copyKeys(ctx, from, candidate, keys)
		}
		common.LogWarn("storage downgraded", common.Fields{
			"from":    string(from.Kind()),
			"to":      string(candidate.Kind()),
			"carried": carried,
		})
		return candidate.Kind(), nil
	}
	return s.current.Kind(), fmt.Errorf("no lower storage tier available below %s", s.current.Kind())
}

// Close releases every backend.
func (s *Store) Close() error {
	var firstErr error
	for _, b := range s.backends {
		if err := b.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (s *Store) backend(kind service.BackendKind) Backend {
	for _, b := range s.backends {
		if b.Kind() == kind {
			return b
		}
	}
	return nil
}
