// Package repository persists catalog records. The engine only depends on
// the Store interface; the adapters here cover a Markdown directory, SQLite
// and memory.
package repository

import (
	"context"
	"time"

	"github.com/krawlist/eventengine/internal/domain/model"
)

// Entry is a catalog record together with where it is stored.
type Entry struct {
	Record model.EventRecord
	Target string
}

// LoadFailure describes a stored record that could not be parsed.
type LoadFailure struct {
	Target string
	Err    error
}

// Catalog is the result of listing a store. Unparseable records are
// reported, not fatal.
type Catalog struct {
	Entries  []Entry
	Failures []LoadFailure
}

// Records returns the parsed records in listing order.
func (c Catalog) Records() []model.EventRecord {
	out := make([]model.EventRecord, 0, len(c.Entries))
	for _, e := range c.Entries {
		out = append(out, e.Record)
	}
	return out
}

// Store provides read/write access to the catalog.
type Store interface {
	// List returns every stored record, including published and archived
	// ones.
	List(ctx context.Context) (Catalog, error)

	// Put stores a new record and returns its target (path or key).
	// Returns an error wrapping ErrAlreadyExists when the target is taken.
	Put(ctx context.Context, rec model.EventRecord) (string, error)

	Close() error
}

// RunSummary is the persisted outcome of one engine run.
type RunSummary struct {
	ID         string
	Kind       string
	StartedAt  time.Time
	FinishedAt time.Time
	Stats      any
}

// RunRecorder is implemented by stores that keep a run history.
type RunRecorder interface {
	RecordRun(ctx context.Context, run RunSummary) error
}

// AssignmentRecorder is implemented by stores that keep the record-to-cluster
// assignments of deduplication runs.
type AssignmentRecorder interface {
	SaveAssignments(ctx context.Context, runID string, assignments map[string]string) error
}
