// Package archive routes completed thoughts into tiered storage:
// scratch records for every terminal thought, permanent records for
// top-scored insights under a daily quota, and an incubation hold for
// the medium band.
package archive

import (
	"fmt"
	"log"
	"time"

	"subconscious/internal/metrics"
	"subconscious/internal/models"
	"subconscious/internal/scorer"
	"subconscious/internal/store"
)

// Archiver places scored thoughts into their tier. Record creation is
// idempotent on thought ID, so a retried placement never produces a
// second record.
type Archiver struct {
	thoughts *store.ThoughtStore
	archives *store.ArchiveStore
	scorer   *scorer.Scorer

	dailyPermanentQuota int
	scratchRetention    time.Duration

	// Now is the archiver's clock, injectable for tests.
	Now func() time.Time
}

// NewArchiver creates an Archiver.
func NewArchiver(thoughts *store.ThoughtStore, archives *store.ArchiveStore, sc *scorer.Scorer,
	dailyPermanentQuota int, scratchRetention time.Duration) *Archiver {
	return &Archiver{
		thoughts:            thoughts,
		archives:            archives,
		scorer:              sc,
		dailyPermanentQuota: dailyPermanentQuota,
		scratchRetention:    scratchRetention,
		Now:                 time.Now,
	}
}

// Place routes a freshly scored completed thought. Every thought gets a
// scratch record; the significance decides whether it additionally goes
// permanent, incubates, or stays scratch-only.
func (a *Archiver) Place(t *models.Thought, significance int) error {
	if err := a.ensureScratchRecord(t.ID); err != nil {
		return err
	}

	switch a.scorer.Route(significance) {
	case scorer.RoutePermanent:
		return a.resolvePermanent(t.ID, significance)

	case scorer.RouteIncubate:
		if err := a.archives.AddIncubating(t.ID, a.Now()); err != nil {
			return err
		}
		if err := a.thoughts.MarkIncubating(t.ID); err != nil {
			return err
		}
		log.Printf("🌱 [ARCHIVE] Thought %s incubating (significance %d)", t.ID, significance)
		return nil

	default:
		if err := a.thoughts.MarkArchived(t.ID, models.TierScratch); err != nil {
			return err
		}
		log.Printf("📄 [ARCHIVE] Thought %s archived to scratch (significance %d)", t.ID, significance)
		return nil
	}
}

// ResolveFromIncubation finalizes an incubating thought into the tier
// its score indicates and removes its incubation entry.
func (a *Archiver) ResolveFromIncubation(thoughtID string, tier models.ArchiveTier, significance int) error {
	var err error
	if tier == models.TierPermanent {
		err = a.resolvePermanent(thoughtID, significance)
	} else {
		err = a.thoughts.MarkArchived(thoughtID, models.TierScratch)
	}
	if err != nil {
		return err
	}
	return a.archives.RemoveIncubating(thoughtID)
}

// resolvePermanent promotes a thought to the permanent tier, demoting
// it to scratch when the daily quota is already spent. The quota is
// enforced by refusing new promotions, never by evicting old ones.
func (a *Archiver) resolvePermanent(thoughtID string, significance int) error {
	now := a.Now().UTC()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	created, err := a.archives.InsertPermanentWithinQuota(&models.ArchiveRecord{
		ThoughtID: thoughtID,
		Tier:      models.TierPermanent,
		Location:  fmt.Sprintf("permanent/%s/%s", now.Format("2006-01-02"), thoughtID),
		CreatedAt: now,
	}, dayStart, a.dailyPermanentQuota)
	if err != nil {
		return err
	}
	if created {
		if err := a.thoughts.MarkArchived(thoughtID, models.TierPermanent); err != nil {
			return err
		}
		if m := metrics.Get(); m != nil {
			m.ArchivedByTier.WithLabelValues(string(models.TierPermanent)).Inc()
		}
		log.Printf("⭐ [ARCHIVE] Thought %s promoted to permanent tier (significance %d)", thoughtID, significance)
		return nil
	}

	// The record was refused: either this thought is already permanent
	// (a retried placement) or the day's quota is spent.
	already, err := a.archives.HasRecord(thoughtID, models.TierPermanent)
	if err != nil {
		return err
	}
	if already {
		return a.thoughts.MarkArchived(thoughtID, models.TierPermanent)
	}
	log.Printf("🚫 [ARCHIVE] Daily permanent quota (%d) reached, demoting thought %s to scratch",
		a.dailyPermanentQuota, thoughtID)
	return a.thoughts.MarkArchived(thoughtID, models.TierScratch)
}

// ensureScratchRecord writes the scratch record every terminal thought
// carries, with its retention expiry.
func (a *Archiver) ensureScratchRecord(thoughtID string) error {
	now := a.Now()
	created, err := a.archives.InsertRecord(&models.ArchiveRecord{
		ThoughtID: thoughtID,
		Tier:      models.TierScratch,
		Location:  fmt.Sprintf("scratch/%s/%s", now.UTC().Format("2006-01-02"), thoughtID),
		CreatedAt: now,
		ExpiresAt: now.Add(a.scratchRetention),
	})
	if err != nil {
		return err
	}
	if created {
		if m := metrics.Get(); m != nil {
			m.ArchivedByTier.WithLabelValues(string(models.TierScratch)).Inc()
		}
	}
	return nil
}

// PurgeExpiredScratch deletes scratch records past their retention
// window. Called from the daily curation job.
func (a *Archiver) PurgeExpiredScratch() (int, error) {
	return a.archives.PurgeExpiredScratch(a.Now())
}
