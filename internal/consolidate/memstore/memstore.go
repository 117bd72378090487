// Package memstore provides an in-memory implementation of consolidate.Store.
package memstore

import (
	"context"
	"sort"
	"sync"

	"github.com/linnemanlabs/skywatch/internal/consolidate"
	"github.com/linnemanlabs/skywatch/internal/incident"
)

// Store holds consolidated incidents in memory. Suitable for dev/testing.
type Store struct {
	mu      sync.RWMutex
	byID    map[string]*incident.Consolidated
	byHash  map[string]string   // content hash -> incident ID
	byGroup map[string][]string // group key -> incident IDs
}

// New initializes a new in-memory Store.
func New() *Store {
	return &Store{
		byID:    make(map[string]*incident.Consolidated),
		byHash:  make(map[string]string),
		byGroup: make(map[string][]string),
	}
}

// Get retrieves an incident by ID. Returns a copy.
func (s *Store) Get(_ context.Context, id string) (*incident.Consolidated, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inc, ok := s.byID[id]
	if !ok {
		return nil, false, nil
	}
	return clone(inc), true, nil
}

// GetByContentHash retrieves an incident by its dedup key. Returns a copy.
func (s *Store) GetByContentHash(_ context.Context, hash string) (*incident.Consolidated, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byHash[hash]
	if !ok {
		return nil, false, nil
	}
	return clone(s.byID[id]), true, nil
}

// FindByGroupKey returns copies of all incidents with the given grouping key.
func (s *Store) FindByGroupKey(_ context.Context, key string) ([]*incident.Consolidated, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.byGroup[key]
	out := make([]*incident.Consolidated, 0, len(ids))
	for _, id := range ids {
		out = append(out, clone(s.byID[id]))
	}
	return out, nil
}

// Create inserts a new incident, enforcing content-hash uniqueness.
func (s *Store) Create(_ context.Context, inc *incident.Consolidated) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byHash[inc.ContentHash]; exists {
		return consolidate.ErrConflict
	}
	cp := clone(inc)
	s.byID[cp.ID] = cp
	s.byHash[cp.ContentHash] = cp.ID
	s.byGroup[cp.GroupKey] = append(s.byGroup[cp.GroupKey], cp.ID)
	return nil
}

// Update stores a copy of an existing incident.
func (s *Store) Update(_ context.Context, inc *incident.Consolidated) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[inc.ID] = clone(inc)
	return nil
}

// List returns up to limit incidents, most recently seen first.
func (s *Store) List(_ context.Context, limit int) ([]*incident.Consolidated, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*incident.Consolidated, 0, len(s.byID))
	for _, inc := range s.byID {
		out = append(out, clone(inc))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastSeenAt.After(out[j].LastSeenAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func clone(inc *incident.Consolidated) *incident.Consolidated {
	cp := *inc
	cp.Sources = append([]incident.SourceRef(nil), inc.Sources...)
	if inc.Lat != nil {
		lat, lon := *inc.Lat, *inc.Lon
		cp.Lat, cp.Lon = &lat, &lon
	}
	if inc.AIConfidence != nil {
		conf := *inc.AIConfidence
		cp.AIConfidence = &conf
	}
	return &cp
}
