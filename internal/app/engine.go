// Package app wires the domain packages into batch runs: deduplication of
// scraped candidates and expansion of recurring templates.
package app

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/krawlist/eventengine/internal/adapters/repository"
	"github.com/krawlist/eventengine/internal/domain/cluster"
	"github.com/krawlist/eventengine/internal/domain/dedupe"
	"github.com/krawlist/eventengine/internal/domain/model"
	"github.com/krawlist/eventengine/internal/domain/recurrence"
	"github.com/krawlist/eventengine/internal/domain/scoring"
	"github.com/krawlist/eventengine/pkg/logger"
	"github.com/krawlist/eventengine/pkg/metrics"
)

// Default settings.
const (
	DefaultLookaheadDays = 90
	defaultSource        = "unknown"
)

// Engine runs deduplication and expansion batches against a catalog store.
// Each batch works on its own Session; the engine only keeps the latest
// reports for the HTTP surface. Run one engine per catalog at a time.
type Engine struct {
	store   repository.Store
	log     logger.Logger
	metrics *metrics.Manager
	now     func() time.Time
	loc     *time.Location

	scorer        scoring.Scorer
	threshold     float64
	compareAll    bool
	resolver      cluster.VenueResolver
	lookaheadDays int
	maxOcc        int
	newID         func() string

	// batch serializes runs that write to the store.
	batch sync.Mutex

	mu         sync.RWMutex
	lastDedupe *DedupeReport
	lastExpand *ExpansionReport
}

// Option applies a configuration option to the Engine.
type Option func(*Engine)

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithMetrics sets the metrics manager.
func WithMetrics(m *metrics.Manager) Option {
	return func(e *Engine) {
		if m != nil {
			e.metrics = m
		}
	}
}

// WithClock overrides the wall clock used for "today".
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithLocation sets the zone "today" is computed in.
func WithLocation(loc *time.Location) Option {
	return func(e *Engine) {
		if loc != nil {
			e.loc = loc
		}
	}
}

// WithScorer replaces the similarity scorer.
func WithScorer(s scoring.Scorer) Option {
	return func(e *Engine) {
		if s != nil {
			e.scorer = s
		}
	}
}

// WithThreshold sets the cluster match threshold.
func WithThreshold(t float64) Option {
	return func(e *Engine) {
		if t > 0 && t <= 1 {
			e.threshold = t
		}
	}
}

// WithCompareAllMembers compares candidates against every cluster member.
func WithCompareAllMembers(enabled bool) Option {
	return func(e *Engine) {
		e.compareAll = enabled
	}
}

// WithVenueResolver canonicalizes locations before matching.
func WithVenueResolver(r cluster.VenueResolver) Option {
	return func(e *Engine) {
		e.resolver = r
	}
}

// WithLookaheadDays sets the expansion window length.
func WithLookaheadDays(days int) Option {
	return func(e *Engine) {
		if days > 0 {
			e.lookaheadDays = days
		}
	}
}

// WithMaxOccurrences caps the dates generated per template.
func WithMaxOccurrences(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxOcc = n
		}
	}
}

// WithRunIDs overrides run id generation.
func WithRunIDs(next func() string) Option {
	return func(e *Engine) {
		if next != nil {
			e.newID = next
		}
	}
}

// New constructs an Engine on store.
func New(store repository.Store, opts ...Option) *Engine {
	e := &Engine{
		store:         store,
		log:           logger.Get().Named("engine"),
		metrics:       metrics.Default(),
		now:           time.Now,
		loc:           time.Local,
		scorer:        scoring.NewWeightedScorer(),
		threshold:     scoring.DefaultThreshold,
		lookaheadDays: DefaultLookaheadDays,
		maxOcc:        recurrence.MaxOccurrences,
		newID:         func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Today returns the current calendar day in the engine's zone.
func (e *Engine) Today() model.Date {
	return model.DateOf(e.now().In(e.loc))
}

// Store returns the catalog store.
func (e *Engine) Store() repository.Store {
	return e.store
}

// LastDedupe returns the most recent deduplication report, if any.
func (e *Engine) LastDedupe() (*DedupeReport, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastDedupe, e.lastDedupe != nil
}

// LastExpansion returns the most recent expansion report, if any.
func (e *Engine) LastExpansion() (*ExpansionReport, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastExpand, e.lastExpand != nil
}

// Close closes the catalog store.
func (e *Engine) Close() error {
	return e.store.Close()
}

func (e *Engine) clusterManager() *cluster.Manager {
	return cluster.NewManager(
		cluster.WithScorer(e.scorer),
		cluster.WithThreshold(e.threshold),
		cluster.WithCompareAllMembers(e.compareAll),
		cluster.WithVenueResolver(e.resolver),
		cluster.WithLogger(e.log.Named("cluster")),
	)
}

// loadCatalog lists the store and builds the identity-hash index over every
// record in it.
func (e *Engine) loadCatalog(ctx context.Context) (repository.Catalog, dedupe.Deduper, error) {
	start := time.Now()
	cat, err := e.store.List(ctx)
	e.metrics.RecordStoreLatency("list", time.Since(start))
	if err != nil {
		return repository.Catalog{}, nil, err
	}

	hashes := make([]string, 0, len(cat.Entries))
	for i := range cat.Entries {
		hashes = append(hashes, cat.Entries[i].Record.Hash())
		e.metrics.RecordParsed(metrics.StageCatalog)
	}
	for _, f := range cat.Failures {
		e.metrics.RecordParseFailure(metrics.StageCatalog)
		e.log.Warn(ctx, "catalog record skipped",
			logger.String("target", f.Target), logger.Error(f.Err))
	}
	return cat, dedupe.NewHashIndex(dedupe.WithHashes(hashes...)), nil
}

func (e *Engine) recordRun(ctx context.Context, run repository.RunSummary) {
	rec, ok := e.store.(repository.RunRecorder)
	if !ok {
		return
	}
	if err := rec.RecordRun(ctx, run); err != nil {
		e.log.Warn(ctx, "run not recorded", logger.String("run_id", run.ID), logger.Error(err))
	}
}
