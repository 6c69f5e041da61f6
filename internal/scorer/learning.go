package scorer

import (
	"strings"
	"time"

	"subconscious/internal/models"
)

// Learning step sizes. Usage nudges weights up by a small fixed step;
// stale features decay by a smaller step toward zero. Both directions
// are clamped so no runaway feedback is possible.
const (
	usageBoostStep   = 0.2
	typeBoostStep    = 0.1
	decayStep        = 0.1
	staleAfter       = 7 * 24 * time.Hour
	maxTrackedWords  = 500
	minTrackedLength = 5
)

// ApplyUsageBatch folds a batch of usage-referenced thoughts into the
// profile. Runs under the scorer's single-writer lock and bumps the
// profile version once per batch.
func (s *Scorer) ApplyUsageBatch(used []*models.Thought, now time.Time) {
	if len(used) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.profile
	for _, t := range used {
		p.TypeWeights[t.Type] = models.ClampWeight(p.TypeWeights[t.Type] + typeBoostStep)

		lower := strings.ToLower(t.Result)
		for kw := range p.KeywordWeights {
			if strings.Contains(lower, kw) {
				p.KeywordWeights[kw] = models.ClampWeight(p.KeywordWeights[kw] + usageBoostStep)
				p.KeywordLastUsed[kw] = now
			}
		}

		// Promote new recurring vocabulary from used results into the
		// tracked feature set, bounded so the profile cannot grow
		// without limit.
		if len(p.KeywordWeights) < maxTrackedWords {
			for _, word := range candidateWords(lower) {
				if _, tracked := p.KeywordWeights[word]; !tracked {
					p.KeywordWeights[word] = usageBoostStep
					p.KeywordLastUsed[word] = now
				}
			}
		}
	}

	p.Version++
	p.UpdatedAt = now
}

// Decay drifts long-unused keyword weights toward zero and drops
// features that reach it. Called from the periodic learning job.
func (s *Scorer) Decay(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.profile
	decayed := 0
	for kw, w := range p.KeywordWeights {
		last, seen := p.KeywordLastUsed[kw]
		if seen && now.Sub(last) < staleAfter {
			continue
		}
		switch {
		case w > decayStep:
			p.KeywordWeights[kw] = w - decayStep
		case w < -decayStep:
			p.KeywordWeights[kw] = w + decayStep
		default:
			delete(p.KeywordWeights, kw)
			delete(p.KeywordLastUsed, kw)
		}
		decayed++
	}
	if decayed > 0 {
		p.Version++
		p.UpdatedAt = now
	}
	return decayed
}

// candidateWords extracts distinctive words from a result worth
// tracking as learned features.
func candidateWords(lower string) []string {
	fields := strings.FieldsFunc(lower, func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	})
	seen := make(map[string]bool)
	var out []string
	for _, f := range fields {
		if len(f) < minTrackedLength || seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
		if len(out) >= 5 {
			break
		}
	}
	return out
}
