// Package dedupe tracks identity hashes already present in the catalog so
// that repeated runs never write the same occurrence twice.
package dedupe

import (
	"context"
	"sync"
	"sync/atomic"
)

// Deduper records seen identity hashes.
type Deduper interface {
	// SeenAndRecord atomically checks if id was seen and records it if not.
	// Returns true if id was already seen, false if it was newly recorded.
	SeenAndRecord(ctx context.Context, id string) bool

	// Unrecord removes an ID so that a failed write can be retried by a
	// later run.
	Unrecord(ctx context.Context, id string)

	Size() int64
}

// hashIndex implements Deduper with a plain map. The index must never evict:
// forgetting a hash would let a later run write a duplicate instance.
type hashIndex struct {
	mu   sync.Mutex
	seen map[string]struct{}
	size atomic.Int64
}

// NewHashIndex creates an empty identity-hash index.
func NewHashIndex(opts ...Option) Deduper {
	d := &hashIndex{}

	cfg := options{}
	for _, opt := range opts {
		opt(&cfg)
	}

	d.seen = make(map[string]struct{}, cfg.capacity)
	for _, id := range cfg.preload {
		if _, ok := d.seen[id]; !ok && id != "" {
			d.seen[id] = struct{}{}
			d.size.Add(1)
		}
	}

	return d
}

// SeenAndRecord implements Deduper.
func (d *hashIndex) SeenAndRecord(_ context.Context, id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.seen[id]; exists {
		return true
	}
	d.seen[id] = struct{}{}
	d.size.Add(1)
	return false
}

// Unrecord implements Deduper.
func (d *hashIndex) Unrecord(_ context.Context, id string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.seen[id]; exists {
		delete(d.seen, id)
		d.size.Add(-1)
	}
}

// Size returns the current number of entries in the index.
func (d *hashIndex) Size() int64 {
	return d.size.Load()
}
