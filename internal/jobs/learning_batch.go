package jobs

import (
	"errors"
	"log"
	"time"

	"subconscious/internal/metrics"
	"subconscious/internal/models"
)

// runLearningBatch folds accumulated usage events into the scoring
// profile and decays features that have gone stale.
func (s *Scheduler) runLearningBatch() {
	ids, err := s.thoughts.UnprocessedUsageThoughtIDs()
	if err != nil {
		log.Printf("❌ [JOBS] Learning batch failed to collect usage events: %v", err)
		return
	}

	now := time.Now().UTC()

	var used []*models.Thought
	for _, id := range ids {
		t, err := s.thoughts.Get(id)
		if err != nil {
			if errors.Is(err, models.ErrNotFound) {
				continue
			}
			log.Printf("⚠️ [JOBS] Learning batch skipping thought %s: %v", id, err)
			continue
		}
		used = append(used, t)
	}

	if len(used) > 0 {
		s.scorer.ApplyUsageBatch(used, now)
		log.Printf("🧠 [JOBS] Learning batch applied %d used thought(s), profile now v%d",
			len(used), s.scorer.Snapshot().Version)
	}

	if decayed := s.scorer.Decay(now); decayed > 0 {
		log.Printf("🍂 [JOBS] Decayed %d stale keyword weight(s)", decayed)
	}

	if m := metrics.Get(); m != nil {
		m.ProfileVersion.Set(float64(s.scorer.Snapshot().Version))
	}
}
