package blobstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemStore is an in-memory Store for tests.
type MemStore struct {
	mu    sync.RWMutex
	tiers map[string]map[string][]byte
	order []string
}

// NewMemStore creates an in-memory store with the given tiers.
func NewMemStore(tiers []string) *MemStore {
	s := &MemStore{tiers: make(map[string]map[string][]byte, len(tiers))}
	for _, tier := range tiers {
		s.tiers[tier] = make(map[string][]byte)
		s.order = append(s.order, tier)
	}
	return s
}

func (s *MemStore) Tiers() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

func (s *MemStore) Read(ctx context.Context, tier, name string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	blobs, ok := s.tiers[tier]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTier, tier)
	}
	data, ok := blobs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, tier, name)
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (s *MemStore) Write(ctx context.Context, tier, name string, data []byte) error {
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidName)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	blobs, ok := s.tiers[tier]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownTier, tier)
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	blobs[name] = cp
	return nil
}

func (s *MemStore) List(ctx context.Context, tier string) ([]BlobInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	blobs, ok := s.tiers[tier]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTier, tier)
	}
	var out []BlobInfo
	for name, data := range blobs {
		out = append(out, BlobInfo{Name: name, Tier: tier, Size: int64(len(data)), ModifiedAt: time.Now().UTC()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *MemStore) Delete(ctx context.Context, tier, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	blobs, ok := s.tiers[tier]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownTier, tier)
	}
	if _, ok := blobs[name]; !ok {
		return fmt.Errorf("%w: %s/%s", ErrNotFound, tier, name)
	}
	delete(blobs, name)
	return nil
}
