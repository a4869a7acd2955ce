package repository

import (
	"context"
	"fmt"
	"sync"

	"github.com/krawlist/eventengine/internal/domain/model"
)

// MemoryStore keeps records in memory, keyed by identity hash. It backs
// dry runs and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	entries []Entry
	byHash  map[string]struct{}
	putHook func(model.EventRecord) error
	closed  bool
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithPutHook runs fn before every Put; a non-nil error fails the Put.
func WithPutHook(fn func(model.EventRecord) error) MemoryOption {
	return func(s *MemoryStore) {
		s.putHook = fn
	}
}

// WithRecords preloads records.
func WithRecords(recs ...model.EventRecord) MemoryOption {
	return func(s *MemoryStore) {
		for _, rec := range recs {
			hash := rec.Hash()
			s.byHash[hash] = struct{}{}
			s.entries = append(s.entries, Entry{Record: rec.Clone(), Target: memoryTarget(hash)})
		}
	}
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{byHash: make(map[string]struct{})}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func memoryTarget(hash string) string {
	return "memory:" + hash
}

// List implements Store.
func (s *MemoryStore) List(_ context.Context) (Catalog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return Catalog{}, ErrClosed
	}
	out := Catalog{Entries: make([]Entry, 0, len(s.entries))}
	for _, e := range s.entries {
		out.Entries = append(out.Entries, Entry{Record: e.Record.Clone(), Target: e.Target})
	}
	return out, nil
}

// Put implements Store.
func (s *MemoryStore) Put(_ context.Context, rec model.EventRecord) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return "", ErrClosed
	}
	hash := rec.Hash()
	target := memoryTarget(hash)
	if _, ok := s.byHash[hash]; ok {
		return target, fmt.Errorf("%s: %w", target, ErrAlreadyExists)
	}
	if s.putHook != nil {
		if err := s.putHook(rec); err != nil {
			return target, err
		}
	}
	s.byHash[hash] = struct{}{}
	s.entries = append(s.entries, Entry{Record: rec.Clone(), Target: target})
	return target, nil
}

// Len returns the number of stored records.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
