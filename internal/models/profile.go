package models

import "time"

// Weight clamp bounds: no single learned signal can dominate scoring.
const (
	WeightMin = -3.0
	WeightMax = 3.0
)

// ClampWeight bounds a learned weight to [WeightMin, WeightMax].
func ClampWeight(w float64) float64 {
	if w < WeightMin {
		return WeightMin
	}
	if w > WeightMax {
		return WeightMax
	}
	return w
}

// ScoringProfile is the process-wide learned scoring state. It is
// mutated exclusively by the significance scorer under its update
// protocol; everyone else reads versioned snapshots.
type ScoringProfile struct {
	Version        int64                   `json:"version"`
	TypeWeights    map[ThoughtType]float64 `json:"type_weights"`
	KeywordWeights map[string]float64      `json:"keyword_weights"`
	// KeywordLastUsed drives decay: features absent from used thoughts
	// for a long stretch drift back toward zero.
	KeywordLastUsed map[string]time.Time `json:"keyword_last_used"`
	UpdatedAt       time.Time            `json:"updated_at"`
}

// DefaultScoringProfile seeds type weights from the historical value of
// each kind of thought and keyword weights from the given insight
// indicator terms.
func DefaultScoringProfile(insightKeywords []string) *ScoringProfile {
	p := &ScoringProfile{
		Version: 1,
		TypeWeights: map[ThoughtType]float64{
			TypePattern:     1.0,
			TypeConnection:  2.0,
			TypeQuestion:    0.5,
			TypeGeneral:     0.0,
			TypeProblem:     1.0,
			TypeDesign:      1.0,
			TypeAnalysis:    1.0,
			TypeExploration: 0.5,
		},
		KeywordWeights:  make(map[string]float64),
		KeywordLastUsed: make(map[string]time.Time),
		UpdatedAt:       time.Now().UTC(),
	}
	for _, kw := range insightKeywords {
		p.KeywordWeights[kw] = 0.3
	}
	return p
}

// Clone returns a deep copy for snapshot reads.
func (p *ScoringProfile) Clone() *ScoringProfile {
	c := &ScoringProfile{
		Version:         p.Version,
		TypeWeights:     make(map[ThoughtType]float64, len(p.TypeWeights)),
		KeywordWeights:  make(map[string]float64, len(p.KeywordWeights)),
		KeywordLastUsed: make(map[string]time.Time, len(p.KeywordLastUsed)),
		UpdatedAt:       p.UpdatedAt,
	}
	for k, v := range p.TypeWeights {
		c.TypeWeights[k] = v
	}
	for k, v := range p.KeywordWeights {
		c.KeywordWeights[k] = v
	}
	for k, v := range p.KeywordLastUsed {
		c.KeywordLastUsed[k] = v
	}
	return c
}
