// Package cluster groups event records that describe the same real-world
// occurrence and merges each group into one canonical record.
package cluster

import (
	"github.com/krawlist/eventengine/internal/domain/model"
)

// Confidence levels by number of corroborating members. This is a coarse
// corroboration heuristic, not a statistical estimate.
const (
	ConfidenceSingle    = 0.5
	ConfidencePair      = 0.75
	ConfidenceMany      = 0.95
	ReviewBelow         = 0.9
	unknownSource       = "unknown"
	corroborationQuorum = 3
)

// ConfidenceFor returns the confidence for a cluster with n members.
func ConfidenceFor(n int) float64 {
	switch {
	case n >= corroborationQuorum:
		return ConfidenceMany
	case n == 2:
		return ConfidencePair
	default:
		return ConfidenceSingle
	}
}

// Cluster is a set of records believed to describe one occurrence.
// Canonical always points at one of Members.
type Cluster struct {
	ID         string
	Members    []*model.EventRecord
	Sources    []string
	Canonical  *model.EventRecord
	Confidence float64

	sourceSet     map[string]struct{}
	memberSources []string
}

func newCluster(id string) *Cluster {
	return &Cluster{
		ID:        id,
		sourceSet: make(map[string]struct{}),
	}
}

// Add appends rec as a member, records its source, re-elects the canonical
// member and raises the confidence. Confidence never decreases.
func (c *Cluster) Add(rec *model.EventRecord, source string) {
	if source == "" {
		source = rec.Source
	}
	if source == "" {
		source = unknownSource
	}

	c.Members = append(c.Members, rec)
	c.memberSources = append(c.memberSources, source)
	if _, ok := c.sourceSet[source]; !ok {
		c.sourceSet[source] = struct{}{}
		c.Sources = append(c.Sources, source)
	}
	c.Canonical = ElectCanonical(c.Members)
	c.Confidence = max(c.Confidence, ConfidenceFor(len(c.Members)))
}

// Size returns the number of members.
func (c *Cluster) Size() int { return len(c.Members) }

// RequiresReview reports whether the cluster is below the auto-approve
// confidence.
func (c *Cluster) RequiresReview() bool {
	return c.Confidence < ReviewBelow
}
