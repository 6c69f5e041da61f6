package jobs

import (
	"log"
)

// runIncubationReview re-scores the incubation pool against the current
// profile and recent activity, resolving anything that crossed a band
// edge or ran out of dwell time.
func (s *Scheduler) runIncubationReview() {
	res, err := s.incubator.Review()
	if err != nil {
		log.Printf("❌ [JOBS] Incubation review failed: %v", err)
		return
	}
	if res.Reviewed == 0 {
		return
	}
	log.Printf("🔬 [JOBS] Incubation review: %d reviewed, %d promoted, %d demoted, %d remaining",
		res.Reviewed, res.Promoted, res.Demoted, res.Remaining)
}
