package cluster

import (
	"slices"
	"sort"
	"unicode/utf8"

	"github.com/krawlist/eventengine/internal/domain/model"
)

// Quality score weights used to elect the canonical member.
const (
	descriptionCap   = 500
	descriptionScale = 10
	imageWeight      = 50
	urlWeight        = 30
	priceWeight      = 20
	endTimeWeight    = 10
	tagWeight        = 5
)

// QualityScore rates how complete a record is for canonical election.
// Description length is counted in characters.
func QualityScore(rec *model.EventRecord) float64 {
	score := float64(min(utf8.RuneCountInString(rec.Description), descriptionCap)) / descriptionScale
	if rec.ImageURL != "" {
		score += imageWeight
	}
	if rec.ExternalURL != "" {
		score += urlWeight
	}
	if rec.Price != "" {
		score += priceWeight
	}
	if rec.EndTime.Valid() {
		score += endTimeWeight
	}
	score += float64(tagWeight * len(rec.Tags))
	return score
}

// ElectCanonical returns the member with the highest quality score. Ties go
// to the member seen first.
func ElectCanonical(members []*model.EventRecord) *model.EventRecord {
	var best *model.EventRecord
	bestScore := -1.0
	for _, m := range members {
		if s := QualityScore(m); s > bestScore {
			best, bestScore = m, s
		}
	}
	return best
}

// Merged is the canonical record of a cluster enriched from its members.
type Merged struct {
	model.EventRecord
	AdditionalURLs  []string `json:"additional_urls,omitempty"`
	DuplicateCount  int      `json:"duplicate_count"`
	ClusterID       string   `json:"cluster_id"`
	ConfidenceScore float64  `json:"confidence_score"`
	VerifiedSources []string `json:"verified_sources"`
	DataQuality     float64  `json:"data_quality"`
}

// Merge produces the merged record. Canonical values are never overwritten;
// missing ones are backfilled from other members in discovery order.
func (c *Cluster) Merge() Merged {
	if c.Canonical == nil {
		return Merged{ClusterID: c.ID}
	}
	out := Merged{
		EventRecord:     c.Canonical.Clone(),
		DuplicateCount:  len(c.Members),
		ClusterID:       c.ID,
		ConfidenceScore: c.Confidence,
		VerifiedSources: slices.Clone(c.Sources),
	}
	out.Confidence = c.Confidence

	tagSet := make(map[string]struct{})
	var urls []string
	seenURL := make(map[string]struct{})
	for _, m := range c.Members {
		for _, t := range m.Tags {
			tagSet[t] = struct{}{}
		}
		if m.ExternalURL != "" {
			if _, ok := seenURL[m.ExternalURL]; !ok {
				seenURL[m.ExternalURL] = struct{}{}
				urls = append(urls, m.ExternalURL)
			}
		}
		if utf8.RuneCountInString(m.Description) > utf8.RuneCountInString(out.Description) {
			out.Description = m.Description
		}
		if out.ImageURL == "" {
			out.ImageURL = m.ImageURL
		}
		if out.Price == "" {
			out.Price = m.Price
		}
		if !out.EndTime.Valid() {
			out.EndTime = m.EndTime
		}
		if out.Organizer == "" {
			out.Organizer = m.Organizer
		}
		if out.Address == "" {
			out.Address = m.Address
		}
	}

	out.Tags = make([]string, 0, len(tagSet))
	for t := range tagSet {
		out.Tags = append(out.Tags, t)
	}
	sort.Strings(out.Tags)
	if len(urls) > 1 {
		out.AdditionalURLs = urls
	}
	out.DataQuality = DataQuality(&out.EventRecord)
	return out
}

// completeness weights, summing to 100.
var completeness = []struct {
	weight  float64
	present func(*model.EventRecord) bool
}{
	{10, func(r *model.EventRecord) bool { return r.Title != "" }},
	{10, func(r *model.EventRecord) bool { return !r.Date.IsZero() }},
	{8, func(r *model.EventRecord) bool { return r.StartTime.Valid() }},
	{5, func(r *model.EventRecord) bool { return r.EndTime.Valid() }},
	{10, func(r *model.EventRecord) bool { return r.Location != "" }},
	{15, func(r *model.EventRecord) bool { return r.Description != "" }},
	{10, func(r *model.EventRecord) bool { return r.ImageURL != "" }},
	{5, func(r *model.EventRecord) bool { return r.Price != "" }},
	{7, func(r *model.EventRecord) bool { return r.ExternalURL != "" }},
	{10, func(r *model.EventRecord) bool { return len(r.Tags) > 0 }},
	{10, func(r *model.EventRecord) bool { return r.Organizer != "" }},
}

// DataQuality returns the weighted share of filled-in fields in [0,1].
func DataQuality(rec *model.EventRecord) float64 {
	var got, total float64
	for _, f := range completeness {
		total += f.weight
		if f.present(rec) {
			got += f.weight
		}
	}
	return got / total
}
