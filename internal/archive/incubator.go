package archive

import (
	"errors"
	"log"
	"time"

	"subconscious/internal/models"
	"subconscious/internal/scorer"
	"subconscious/internal/store"
)

// recentWindow is how many freshly completed thoughts feed the
// cross-pollination context of a review pass.
const recentWindow = 20

// Incubator periodically re-evaluates medium-significance thoughts
// against the current profile and recent activity, resolving them once
// they cross a band edge or exhaust their dwell time.
type Incubator struct {
	thoughts *store.ThoughtStore
	archives *store.ArchiveStore
	scorer   *scorer.Scorer
	archiver *Archiver

	maxDwell time.Duration

	// Now is the incubator's clock, injectable so tests advance a
	// logical clock instead of sleeping.
	Now func() time.Time
}

// NewIncubator creates an Incubator.
func NewIncubator(thoughts *store.ThoughtStore, archives *store.ArchiveStore,
	sc *scorer.Scorer, archiver *Archiver, maxDwell time.Duration) *Incubator {
	return &Incubator{
		thoughts: thoughts,
		archives: archives,
		scorer:   sc,
		archiver: archiver,
		maxDwell: maxDwell,
		Now:      time.Now,
	}
}

// ReviewResult summarizes one review pass.
type ReviewResult struct {
	Reviewed  int
	Promoted  int
	Demoted   int
	Remaining int
}

// Review re-scores every incubating thought alongside recent completed
// thoughts of related type and vocabulary. A thought leaves incubation
// when its new score crosses out of the medium band, or when its dwell
// time expires, whichever comes first.
func (inc *Incubator) Review() (ReviewResult, error) {
	var res ReviewResult

	incubating, err := inc.archives.ListIncubating()
	if err != nil {
		return res, err
	}
	if len(incubating) == 0 {
		return res, nil
	}

	recent, err := inc.thoughts.RecentCompleted(recentWindow)
	if err != nil {
		return res, err
	}
	profile := inc.scorer.Snapshot()
	recentCtx := scorer.BuildRecentContext(recent, profile)

	now := inc.Now()
	for _, entry := range incubating {
		t, err := inc.thoughts.Get(entry.ThoughtID)
		if err != nil {
			if errors.Is(err, models.ErrNotFound) {
				inc.archives.RemoveIncubating(entry.ThoughtID)
				continue
			}
			return res, err
		}
		if t.Status != models.StatusIncubating {
			// Already resolved through another path; drop the entry.
			inc.archives.RemoveIncubating(entry.ThoughtID)
			continue
		}

		res.Reviewed++
		score := scorer.Score(t, profile, recentCtx)
		if err := inc.thoughts.SetSignificance(t.ID, score); err != nil {
			return res, err
		}
		if err := inc.archives.IncrementReview(t.ID); err != nil && !errors.Is(err, models.ErrNotFound) {
			return res, err
		}

		switch route := inc.scorer.Route(score); {
		case route == scorer.RoutePermanent:
			if err := inc.archiver.ResolveFromIncubation(t.ID, models.TierPermanent, score); err != nil {
				return res, err
			}
			res.Promoted++
			log.Printf("🌅 [INCUBATOR] Thought %s promoted after %d review(s) (score %d)",
				t.ID, entry.ReviewCount+1, score)

		case route == scorer.RouteScratch:
			if err := inc.archiver.ResolveFromIncubation(t.ID, models.TierScratch, score); err != nil {
				return res, err
			}
			res.Demoted++

		case now.Sub(entry.EnteredAt) >= inc.maxDwell:
			tier := inc.forceTier(score)
			if err := inc.archiver.ResolveFromIncubation(t.ID, tier, score); err != nil {
				return res, err
			}
			if tier == models.TierPermanent {
				res.Promoted++
			} else {
				res.Demoted++
			}
			log.Printf("⏳ [INCUBATOR] Thought %s force-resolved to %s after max dwell (score %d)",
				t.ID, tier, score)

		default:
			res.Remaining++
		}
	}
	return res, nil
}

// forceTier picks the tier a dwell-expired score indicates: the upper
// half of the incubation band still earns permanent placement even
// though it never reached the nominal threshold.
func (inc *Incubator) forceTier(score int) models.ArchiveTier {
	midpoint := (inc.scorer.PermanentThreshold() + inc.scorer.IncubationMin() + 1) / 2
	if score >= midpoint {
		return models.TierPermanent
	}
	return models.TierScratch
}
