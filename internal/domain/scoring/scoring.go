// Package scoring computes how likely two event records describe the same
// real-world occurrence.
package scoring

import (
	"math"

	"github.com/krawlist/eventengine/internal/domain/model"
	"github.com/krawlist/eventengine/internal/domain/textnorm"
)

// Default scoring configuration constants.
const (
	DefaultTitleWeight    = 0.6
	DefaultLocationWeight = 0.3
	DefaultTimeBonus      = 0.1
	// DefaultTimeTolerance is the largest start-time difference, in minutes,
	// that still earns the time bonus.
	DefaultTimeTolerance = 30
	// DefaultThreshold is the minimum score at which two records are
	// considered the same occurrence.
	DefaultThreshold = 0.8

	// scores are rounded to this many decimal places so that weight sums
	// like 0.6+0.3+0.1 come out as exactly 1.
	scorePrecision = 1e9
)

// Option applies a configuration option to the WeightedScorer.
type Option func(*WeightedScorer)

// WithWeights sets the title and location weights and the time bonus.
// Combinations that are negative or sum above 1 are ignored.
func WithWeights(title, location, timeBonus float64) Option {
	return func(s *WeightedScorer) {
		if title < 0 || location < 0 || timeBonus < 0 || title+location+timeBonus > 1+1e-9 {
			return
		}
		s.titleWeight = title
		s.locationWeight = location
		s.timeBonus = timeBonus
	}
}

// WithTimeTolerance sets the start-time window in minutes for the bonus.
func WithTimeTolerance(minutes int) Option {
	return func(s *WeightedScorer) {
		if minutes >= 0 {
			s.timeTolerance = minutes
		}
	}
}

// Scorer returns a similarity in [0,1] for two records. Implementations must
// be symmetric and return 0 for records on different dates.
type Scorer interface {
	Score(a, b *model.EventRecord) float64
}

// Breakdown exposes the components of a score for review output and tests.
type Breakdown struct {
	Title    float64 `json:"title"`
	Location float64 `json:"location"`
	Time     float64 `json:"time"`
	Total    float64 `json:"total"`
}

// WeightedScorer combines title and location text similarity with a
// start-time proximity bonus.
type WeightedScorer struct {
	titleWeight    float64
	locationWeight float64
	timeBonus      float64
	timeTolerance  int
}

// NewWeightedScorer creates a scorer with the default weights.
func NewWeightedScorer(opts ...Option) *WeightedScorer {
	s := &WeightedScorer{
		titleWeight:    DefaultTitleWeight,
		locationWeight: DefaultLocationWeight,
		timeBonus:      DefaultTimeBonus,
		timeTolerance:  DefaultTimeTolerance,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Score implements Scorer.
func (s *WeightedScorer) Score(a, b *model.EventRecord) float64 {
	return s.Breakdown(a, b).Total
}

// Breakdown scores a against b and returns each weighted component.
func (s *WeightedScorer) Breakdown(a, b *model.EventRecord) Breakdown {
	if a == nil || b == nil || !a.Date.Equal(b.Date) {
		return Breakdown{}
	}

	var out Breakdown
	out.Title = s.titleWeight * Ratio(textnorm.Normalize(a.Title), textnorm.Normalize(b.Title))
	out.Location = s.locationWeight * Ratio(textnorm.Normalize(a.Location), textnorm.Normalize(b.Location))
	if a.StartTime.Valid() && b.StartTime.Valid() {
		if abs(a.StartTime.Minutes()-b.StartTime.Minutes()) <= s.timeTolerance {
			out.Time = s.timeBonus
		}
	}

	total := math.Round((out.Title+out.Location+out.Time)*scorePrecision) / scorePrecision
	out.Total = math.Max(0, math.Min(1, total))
	return out
}

// Ratio is the symmetric sequence similarity 2*LCS/(len(a)+len(b)) over
// runes. Either side being empty yields 0.
func Ratio(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 || len(rb) == 0 {
		return 0
	}
	if a == b {
		return 1
	}
	return 2 * float64(lcs(ra, rb)) / float64(len(ra)+len(rb))
}

// lcs returns the length of the longest common subsequence using two rows.
func lcs(a, b []rune) int {
	if len(a) < len(b) {
		a, b = b, a
	}
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			switch {
			case a[i-1] == b[j-1]:
				curr[j] = prev[j-1] + 1
			case prev[j] >= curr[j-1]:
				curr[j] = prev[j]
			default:
				curr[j] = curr[j-1]
			}
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
