package jobs

import (
	"log"

	"subconscious/internal/models"
)

// runDailyCuration is the nightly housekeeping pass: expired scratch
// records are purged, completed thoughts that never reached a tier are
// re-placed, and anything still incubating gets one extra review so
// nothing rides out the night unexamined.
func (s *Scheduler) runDailyCuration() {
	log.Println("🌙 [JOBS] Running daily curation...")

	purged, err := s.archiver.PurgeExpiredScratch()
	if err != nil {
		log.Printf("❌ [JOBS] Scratch purge failed: %v", err)
	} else if purged > 0 {
		log.Printf("🗑️ [JOBS] Purged %d expired scratch record(s)", purged)
	}

	s.replaceStrandedCompleted()

	res, err := s.incubator.Review()
	if err != nil {
		log.Printf("❌ [JOBS] Curation review failed: %v", err)
		return
	}
	log.Printf("✅ [JOBS] Daily curation done: %d reviewed, %d promoted, %d demoted",
		res.Reviewed, res.Promoted, res.Demoted)
}

// replaceStrandedCompleted re-runs archival placement for thoughts that
// completed but never reached a tier, whether a placement error or a
// crash between completion and archival stranded them. Placement is
// idempotent, so the retry is safe.
func (s *Scheduler) replaceStrandedCompleted() {
	stranded, err := s.thoughts.ListByStatus(models.StatusCompleted)
	if err != nil {
		log.Printf("❌ [JOBS] Stranded-thought scan failed: %v", err)
		return
	}
	if len(stranded) == 0 {
		return
	}

	placed := 0
	for _, th := range stranded {
		var sig int
		if th.Significance != nil {
			sig = *th.Significance
		} else {
			sig = s.scorer.Score(th, nil)
			if err := s.thoughts.SetSignificance(th.ID, sig); err != nil {
				log.Printf("❌ [JOBS] Re-scoring stranded thought %s failed: %v", th.ID, err)
				continue
			}
		}
		if err := s.archiver.Place(th, sig); err != nil {
			log.Printf("❌ [JOBS] Re-placing stranded thought %s failed: %v", th.ID, err)
			continue
		}
		placed++
	}
	log.Printf("🧹 [JOBS] Re-placed %d of %d stranded completed thought(s)", placed, len(stranded))
}
