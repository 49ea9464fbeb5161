package baseline

import (
	"context"
	"sync"
	"time"
)

// Store is the persistence contract for versioned baselines. Publish appends
// a new version and flips the current pointer in one step; readers observe
// either the fully-old or fully-new version, never a partial write.
type Store interface {
	// GetCurrent returns the currently active baseline.
	GetCurrent(ctx context.Context) (*Baseline, error)

	// Get returns a historical version by version string.
	Get(ctx context.Context, version string) (*Baseline, error)

	// History returns stored versions, newest first, up to limit (0 = all).
	History(ctx context.Context, limit int) ([]*Baseline, error)

	// Publish validates and stores a new version and makes it current.
	Publish(ctx context.Context, b *Baseline) error

	// SetCurrent repoints the current version without writing a new one.
	// Used by rollback; the target version must already exist.
	SetCurrent(ctx context.Context, version string) error
}

// MemoryStore is an in-memory Store for tests and single-process use.
type MemoryStore struct {
	mu       sync.RWMutex
	versions map[string]*Baseline
	order    []string
	current  string
}

// NewMemoryStore creates a store seeded with the given baseline, or with
// Default() when nil.
func NewMemoryStore(seed *Baseline) (*MemoryStore, error) {
	if seed == nil {
		seed = Default()
	}
	s := &MemoryStore{versions: make(map[string]*Baseline)}
	if err := s.Publish(context.Background(), seed); err != nil {
		return nil, err
	}
	return s, nil
}

// GetCurrent returns a copy of the active baseline.
func (s *MemoryStore) GetCurrent(ctx context.Context) (*Baseline, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.versions[s.current]
	if !ok {
		return nil, &VersionNotFoundError{Version: s.current}
	}
	return b.Clone(), nil
}

// Get returns a copy of a stored version.
func (s *MemoryStore) Get(ctx context.Context, version string) (*Baseline, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.versions[version]
	if !ok {
		return nil, &VersionNotFoundError{Version: version}
	}
	return b.Clone(), nil
}

// History returns stored versions in reverse publish order (newest first).
func (s *MemoryStore) History(ctx context.Context, limit int) ([]*Baseline, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Baseline, 0, len(s.order))
	for i := len(s.order) - 1; i >= 0; i-- {
		out = append(out, s.versions[s.order[i]].Clone())
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Publish validates the baseline, stamps checksum and creation time if
// missing, stores it, and flips the current pointer.
func (s *MemoryStore) Publish(ctx context.Context, b *Baseline) error {
	if err := b.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.versions[b.Version]; exists {
		return &ConfigError{Field: "version", Reason: "version " + b.Version + " already published"}
	}

	stored := b.Clone()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}
	if stored.Checksum == "" {
		stored.Checksum = stored.ComputeChecksum()
	}

	s.versions[stored.Version] = stored
	s.order = append(s.order, stored.Version)
	s.current = stored.Version
	return nil
}

// SetCurrent repoints the active version.
func (s *MemoryStore) SetCurrent(ctx context.Context, version string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.versions[version]; !ok {
		return &VersionNotFoundError{Version: version}
	}
	s.current = version
	return nil
}

// CurrentVersion returns the active version string.
func (s *MemoryStore) CurrentVersion() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}
