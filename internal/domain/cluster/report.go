package cluster

import (
	"sort"

	"github.com/krawlist/eventengine/internal/domain/textnorm"
)

func normalizeKey(s string) string {
	return textnorm.Normalize(s)
}

// SourceLink pairs a source with the URL it published the event under.
type SourceLink struct {
	Source string `json:"source"`
	URL    string `json:"url,omitempty"`
}

// ReviewItem is one entry of the human review queue.
type ReviewItem struct {
	ClusterID        string       `json:"cluster_id"`
	Title            string       `json:"title"`
	Date             string       `json:"date"`
	Location         string       `json:"location"`
	CanonicalData    Merged       `json:"canonical_data"`
	DuplicateCount   int          `json:"duplicate_count"`
	Confidence       float64      `json:"confidence"`
	Sources          []SourceLink `json:"sources"`
	RequiresReview   bool         `json:"requires_review"`
	DataQualityScore float64      `json:"data_quality_score"`
}

// Report builds the review queue. With duplicatesOnly set, singleton
// clusters are left out.
func (m *Manager) Report(duplicatesOnly bool) []ReviewItem {
	items := make([]ReviewItem, 0, len(m.clusters))
	for _, c := range m.clusters {
		if duplicatesOnly && c.Size() < 2 {
			continue
		}
		merged := c.Merge()
		links := make([]SourceLink, 0, len(c.Members))
		for i, member := range c.Members {
			links = append(links, SourceLink{Source: c.memberSources[i], URL: member.ExternalURL})
		}
		items = append(items, ReviewItem{
			ClusterID:        c.ID,
			Title:            merged.Title,
			Date:             merged.Date.String(),
			Location:         merged.Location,
			CanonicalData:    merged,
			DuplicateCount:   c.Size(),
			Confidence:       c.Confidence,
			Sources:          links,
			RequiresReview:   c.RequiresReview(),
			DataQualityScore: merged.DataQuality,
		})
	}
	return items
}

// OrganizerPattern summarizes where an organizer's events were seen.
type OrganizerPattern struct {
	Organizer  string   `json:"organizer"`
	Sources    []string `json:"sources"`
	Venues     []string `json:"venues"`
	EventCount int      `json:"event_count"`
}

// OrganizerPatterns groups canonical records by organizer.
func (m *Manager) OrganizerPatterns() []OrganizerPattern {
	type acc struct {
		sources map[string]struct{}
		venues  map[string]struct{}
		count   int
	}
	byOrganizer := make(map[string]*acc)
	for _, c := range m.clusters {
		merged := c.Merge()
		if merged.Organizer == "" {
			continue
		}
		a, ok := byOrganizer[merged.Organizer]
		if !ok {
			a = &acc{sources: map[string]struct{}{}, venues: map[string]struct{}{}}
			byOrganizer[merged.Organizer] = a
		}
		a.count++
		for _, s := range c.Sources {
			a.sources[s] = struct{}{}
		}
		if merged.Location != "" {
			a.venues[merged.Location] = struct{}{}
		}
	}

	out := make([]OrganizerPattern, 0, len(byOrganizer))
	for name, a := range byOrganizer {
		out = append(out, OrganizerPattern{
			Organizer:  name,
			Sources:    sortedKeys(a.sources),
			Venues:     sortedKeys(a.venues),
			EventCount: a.count,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Organizer < out[j].Organizer })
	return out
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Assignments maps every member hash to its cluster id, for persisting a
// run's clustering.
func (m *Manager) Assignments() map[string]string {
	out := make(map[string]string)
	for _, c := range m.clusters {
		for _, member := range c.Members {
			out[member.Hash()] = c.ID
		}
	}
	return out
}
