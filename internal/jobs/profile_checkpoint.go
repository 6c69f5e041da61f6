package jobs

import (
	"log"

	"subconscious/internal/metrics"
	"subconscious/internal/models"
)

// runProfileCheckpoint persists the current scoring profile so learned
// weights survive a restart. The save is version-guarded, so a stale
// checkpoint can never overwrite a newer one.
func (s *Scheduler) runProfileCheckpoint() {
	snapshot := s.scorer.Snapshot()
	if err := s.profiles.Save(snapshot); err != nil {
		log.Printf("❌ [JOBS] Profile checkpoint failed: %v", err)
		return
	}
	log.Printf("💾 [JOBS] Scoring profile checkpointed at v%d", snapshot.Version)

	// Piggyback the queue-depth gauge refresh on this cadence.
	if m := metrics.Get(); m != nil {
		if stats, err := s.thoughts.Stats(); err == nil {
			m.QueueDepth.Set(float64(stats[models.StatusQueued]))
		}
	}
}
