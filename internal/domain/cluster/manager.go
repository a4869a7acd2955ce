package cluster

import (
	"context"
	"fmt"

	"github.com/krawlist/eventengine/internal/domain/model"
	"github.com/krawlist/eventengine/internal/domain/scoring"
	"github.com/krawlist/eventengine/pkg/logger"
)

// VenueResolver maps a free-text location to a canonical place name.
// ok is false when the location is unknown.
type VenueResolver interface {
	Resolve(location string) (canonical string, ok bool)
}

// AliasResolver is a VenueResolver backed by a static alias table keyed by
// normalized location.
type AliasResolver map[string]string

// NewAliasResolver builds an AliasResolver from a table with free-form keys.
func NewAliasResolver(aliases map[string]string) AliasResolver {
	out := make(AliasResolver, len(aliases))
	for alias, canonical := range aliases {
		out[normalizeKey(alias)] = canonical
	}
	return out
}

// Resolve implements VenueResolver.
func (a AliasResolver) Resolve(location string) (string, bool) {
	canonical, ok := a[normalizeKey(location)]
	return canonical, ok
}

// Option applies a configuration option to the Manager.
type Option func(*Manager)

// WithScorer replaces the default weighted scorer.
func WithScorer(s scoring.Scorer) Option {
	return func(m *Manager) {
		if s != nil {
			m.scorer = s
		}
	}
}

// WithThreshold sets the minimum score for joining an existing cluster.
func WithThreshold(threshold float64) Option {
	return func(m *Manager) {
		if threshold > 0 && threshold <= 1 {
			m.threshold = threshold
		}
	}
}

// WithCompareAllMembers compares candidates against every member of a
// cluster instead of only its canonical record.
func WithCompareAllMembers(enabled bool) Option {
	return func(m *Manager) {
		m.compareAll = enabled
	}
}

// WithVenueResolver canonicalizes locations before they are scored.
func WithVenueResolver(r VenueResolver) Option {
	return func(m *Manager) {
		m.resolver = r
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.log = l
		}
	}
}

// Stats counts what happened to records fed to the manager.
type Stats struct {
	Records         int `json:"records"`
	ExactDuplicates int `json:"exact_duplicates"`
	FuzzyMatches    int `json:"fuzzy_matches"`
	Clusters        int `json:"clusters"`
}

// Manager assigns records to clusters for the lifetime of one run. It is not
// safe for concurrent use.
type Manager struct {
	scorer     scoring.Scorer
	threshold  float64
	compareAll bool
	resolver   VenueResolver
	log        logger.Logger

	clusters []*Cluster
	byID     map[string]*Cluster
	byDate   map[string][]*Cluster
	byHash   map[string]*Cluster
	stats    Stats
}

// NewManager creates an empty cluster manager.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		scorer:    scoring.NewWeightedScorer(),
		threshold: scoring.DefaultThreshold,
		log:       logger.Get().Named("cluster"),
		byID:      make(map[string]*Cluster),
		byDate:    make(map[string][]*Cluster),
		byHash:    make(map[string]*Cluster),
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// FindOrCreate places rec into the best matching cluster, or a new one, and
// returns the cluster id. The manager keeps its own copy of rec.
func (m *Manager) FindOrCreate(rec model.EventRecord, source string) string {
	stored := rec.Clone()
	if m.resolver != nil && stored.Location != "" {
		if canonical, ok := m.resolver.Resolve(stored.Location); ok {
			stored.Location = canonical
		}
	}
	hash := stored.Hash()
	m.stats.Records++

	if c, ok := m.byHash[hash]; ok {
		m.stats.ExactDuplicates++
		c.Add(&stored, source)
		return c.ID
	}

	if best, score := m.bestMatch(&stored); best != nil {
		m.stats.FuzzyMatches++
		m.log.Debug(context.Background(), "record joined cluster",
			logger.String("cluster_id", best.ID),
			logger.String("title", stored.Title),
			logger.Float64("score", score))
		best.Add(&stored, source)
		m.byHash[hash] = best
		return best.ID
	}

	c := newCluster(fmt.Sprintf("cluster_%d_%s", len(m.clusters)+1, hash[:8]))
	c.Add(&stored, source)
	m.clusters = append(m.clusters, c)
	m.byID[c.ID] = c
	dateKey := stored.Date.String()
	m.byDate[dateKey] = append(m.byDate[dateKey], c)
	m.byHash[hash] = c
	m.stats.Clusters++
	return c.ID
}

// bestMatch returns the highest-scoring same-date cluster at or above the
// threshold. The earliest cluster wins exact ties.
func (m *Manager) bestMatch(rec *model.EventRecord) (*Cluster, float64) {
	var best *Cluster
	bestScore := 0.0
	for _, c := range m.byDate[rec.Date.String()] {
		score := m.scoreAgainst(rec, c)
		if score >= m.threshold && score > bestScore {
			best, bestScore = c, score
		}
	}
	return best, bestScore
}

func (m *Manager) scoreAgainst(rec *model.EventRecord, c *Cluster) float64 {
	if !m.compareAll {
		return m.scorer.Score(rec, c.Canonical)
	}
	top := 0.0
	for _, member := range c.Members {
		top = max(top, m.scorer.Score(rec, member))
	}
	return top
}

// Cluster returns the cluster with the given id.
func (m *Manager) Cluster(id string) (*Cluster, bool) {
	c, ok := m.byID[id]
	return c, ok
}

// Clusters returns all clusters in creation order.
func (m *Manager) Clusters() []*Cluster {
	return m.clusters
}

// Stats returns counters for the records seen so far.
func (m *Manager) Stats() Stats {
	return m.stats
}

// Merged returns the merged record of every cluster in creation order.
func (m *Manager) Merged() []Merged {
	out := make([]Merged, 0, len(m.clusters))
	for _, c := range m.clusters {
		out = append(out, c.Merge())
	}
	return out
}
