// Package scorer computes significance scores for completed thoughts
// and adapts its weights from observed usage (behavioral learning).
package scorer

import (
	"strings"
	"sync"

	"subconscious/internal/models"
)

// Routing is where a score sends a thought.
type Routing int

const (
	RouteScratch Routing = iota
	RouteIncubate
	RoutePermanent
)

// RecentContext is a snapshot of recently completed thoughts used as a
// cross-pollination signal when re-scoring incubating thoughts. It is
// plain data so scoring stays a pure function of
// (thought, profile, context).
type RecentContext struct {
	// TypeCounts counts recent thoughts per type.
	TypeCounts map[models.ThoughtType]int
	// Keywords are profile keywords seen in recent results.
	Keywords map[string]bool
}

// Scorer owns the process-wide ScoringProfile. All mutation is
// serialized through it; readers get versioned snapshots.
type Scorer struct {
	mu      sync.Mutex
	profile *models.ScoringProfile

	permanentThreshold int
	incubationMin      int
}

// New creates a Scorer around an initial profile.
func New(profile *models.ScoringProfile, permanentThreshold, incubationMin int) *Scorer {
	return &Scorer{
		profile:            profile,
		permanentThreshold: permanentThreshold,
		incubationMin:      incubationMin,
	}
}

// Snapshot returns a deep copy of the current profile.
func (s *Scorer) Snapshot() *models.ScoringProfile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.profile.Clone()
}

// Score computes the significance of a completed thought under the
// current profile, optionally considering cross-pollination context.
func (s *Scorer) Score(t *models.Thought, recent *RecentContext) int {
	return Score(t, s.Snapshot(), recent)
}

// Route maps a significance score to its storage routing.
func (s *Scorer) Route(significance int) Routing {
	switch {
	case significance >= s.permanentThreshold:
		return RoutePermanent
	case significance >= s.incubationMin:
		return RouteIncubate
	default:
		return RouteScratch
	}
}

// PermanentThreshold returns the configured permanent-tier cutoff.
func (s *Scorer) PermanentThreshold() int { return s.permanentThreshold }

// IncubationMin returns the lower edge of the incubation band.
func (s *Scorer) IncubationMin() int { return s.incubationMin }

// Score is the pure scoring function: a weighted combination of the
// type's base weight, learned keyword adjustments matched against the
// result, and length heuristics, clamped to [0, 10].
func Score(t *models.Thought, profile *models.ScoringProfile, recent *RecentContext) int {
	const base = 5.0
	score := base

	score += profile.TypeWeights[t.Type]

	result := strings.ToLower(t.Result)
	keywordBonus := 0.0
	for kw, w := range profile.KeywordWeights {
		if strings.Contains(result, kw) {
			keywordBonus += w
		}
	}
	// The keyword channel as a whole is bounded like any single weight.
	score += models.ClampWeight(keywordBonus)

	// Longer results tend to carry more substance on small models.
	if len(t.Result) > 200 {
		score++
	}
	if len(t.Result) > 400 {
		score++
	}

	if recent != nil {
		score += crossPollinationBonus(t, result, recent)
	}

	n := int(score + 0.5)
	if n < 0 {
		n = 0
	}
	if n > 10 {
		n = 10
	}
	return n
}

// crossPollinationBonus rewards co-occurrence with fresh thoughts of
// related type or overlapping vocabulary, capped at +2.
func crossPollinationBonus(t *models.Thought, lowerResult string, recent *RecentContext) float64 {
	bonus := 0.0
	if recent.TypeCounts[t.Type] > 0 {
		bonus += 0.5
	}
	overlap := 0
	for kw := range recent.Keywords {
		if strings.Contains(lowerResult, kw) {
			overlap++
		}
	}
	bonus += 0.5 * float64(overlap)
	if bonus > 2 {
		bonus = 2
	}
	return bonus
}

// BuildRecentContext distills recently completed thoughts into the
// feature set passed to re-scoring.
func BuildRecentContext(recent []*models.Thought, profile *models.ScoringProfile) *RecentContext {
	ctx := &RecentContext{
		TypeCounts: make(map[models.ThoughtType]int),
		Keywords:   make(map[string]bool),
	}
	for _, t := range recent {
		ctx.TypeCounts[t.Type]++
		lower := strings.ToLower(t.Result)
		for kw := range profile.KeywordWeights {
			if strings.Contains(lower, kw) {
				ctx.Keywords[kw] = true
			}
		}
	}
	return ctx
}
