package archive

import (
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"subconscious/internal/database"
	"subconscious/internal/models"
	"subconscious/internal/scorer"
	"subconscious/internal/store"
)

type testEnv struct {
	thoughts *store.ThoughtStore
	archives *store.ArchiveStore
	scorer   *scorer.Scorer
	archiver *Archiver
}

func newTestEnv(t *testing.T, quota int) *testEnv {
	t.Helper()
	db, err := database.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Initialize(); err != nil {
		t.Fatalf("Failed to initialize schema: %v", err)
	}

	thoughts := store.NewThoughtStore(db)
	archives := store.NewArchiveStore(db)
	sc := scorer.New(models.DefaultScoringProfile(nil), 7, 4)
	archiver := NewArchiver(thoughts, archives, sc, quota, 72*time.Hour)

	return &testEnv{thoughts: thoughts, archives: archives, scorer: sc, archiver: archiver}
}

// completeThought pushes a thought through queued -> processing ->
// completed so archival transitions are legal.
func (e *testEnv) completeThought(t *testing.T, id, result string) *models.Thought {
	t.Helper()
	th := &models.Thought{
		ID:        id,
		Type:      models.TypeConnection,
		Content:   "content " + id,
		Priority:  models.PriorityNormal,
		CreatedAt: time.Now().UTC(),
	}
	if err := e.thoughts.Create(th); err != nil {
		t.Fatalf("Create %s failed: %v", id, err)
	}
	claimed, err := e.thoughts.ClaimNext(time.Now())
	if err != nil || claimed == nil || claimed.ID != id {
		t.Fatalf("ClaimNext for %s failed: %v", id, err)
	}
	if err := e.thoughts.Complete(id, result, time.Now()); err != nil {
		t.Fatalf("Complete %s failed: %v", id, err)
	}
	got, err := e.thoughts.Get(id)
	if err != nil {
		t.Fatalf("Get %s failed: %v", id, err)
	}
	return got
}

func TestPlaceHighScoreGoesPermanent(t *testing.T) {
	env := newTestEnv(t, 3)
	th := env.completeThought(t, "p1", "big insight")

	if err := env.archiver.Place(th, 9); err != nil {
		t.Fatalf("Place failed: %v", err)
	}

	got, _ := env.thoughts.Get("p1")
	if got.Status != models.StatusArchivedPermanent {
		t.Errorf("Expected archived_permanent, got %s", got.Status)
	}

	recs, err := env.archives.RecordsForThought("p1")
	if err != nil {
		t.Fatalf("RecordsForThought failed: %v", err)
	}
	// A scratch record always exists alongside the permanent one.
	tiers := map[models.ArchiveTier]bool{}
	for _, r := range recs {
		tiers[r.Tier] = true
	}
	if !tiers[models.TierScratch] || !tiers[models.TierPermanent] {
		t.Errorf("Expected both tiers recorded, got %v", tiers)
	}
}

func TestPlaceMediumScoreIncubates(t *testing.T) {
	env := newTestEnv(t, 3)
	th := env.completeThought(t, "m1", "maybe interesting")

	if err := env.archiver.Place(th, 5); err != nil {
		t.Fatalf("Place failed: %v", err)
	}

	got, _ := env.thoughts.Get("m1")
	if got.Status != models.StatusIncubating {
		t.Errorf("Expected incubating, got %s", got.Status)
	}
	if _, err := env.archives.GetIncubating("m1"); err != nil {
		t.Errorf("Expected incubation entry: %v", err)
	}
}

func TestPlaceLowScoreScratchOnly(t *testing.T) {
	env := newTestEnv(t, 3)
	th := env.completeThought(t, "l1", "meh")

	if err := env.archiver.Place(th, 2); err != nil {
		t.Fatalf("Place failed: %v", err)
	}

	got, _ := env.thoughts.Get("l1")
	if got.Status != models.StatusArchivedScratch {
		t.Errorf("Expected archived_scratch, got %s", got.Status)
	}
	recs, _ := env.archives.RecordsForThought("l1")
	if len(recs) != 1 || recs[0].Tier != models.TierScratch {
		t.Errorf("Expected a single scratch record, got %v", recs)
	}
	if recs[0].ExpiresAt.IsZero() {
		t.Error("Scratch record must carry a retention expiry")
	}
}

func TestPlaceIsIdempotent(t *testing.T) {
	env := newTestEnv(t, 3)
	th := env.completeThought(t, "d1", "insight")

	if err := env.archiver.Place(th, 9); err != nil {
		t.Fatalf("First Place failed: %v", err)
	}
	reloaded, _ := env.thoughts.Get("d1")
	if err := env.archiver.Place(reloaded, 9); err != nil {
		t.Fatalf("Repeated Place failed: %v", err)
	}

	recs, _ := env.archives.RecordsForThought("d1")
	if len(recs) != 2 {
		t.Errorf("Expected exactly 2 records (one per tier), got %d", len(recs))
	}
}

func TestDailyQuotaRefusesNotEvicts(t *testing.T) {
	env := newTestEnv(t, 2)

	// Three top-scored thoughts against a quota of two.
	for _, id := range []string{"q1", "q2", "q3"} {
		th := env.completeThought(t, id, "brilliant")
		if err := env.archiver.Place(th, 9); err != nil {
			t.Fatalf("Place %s failed: %v", id, err)
		}
	}

	s1, _ := env.thoughts.Get("q1")
	s2, _ := env.thoughts.Get("q2")
	s3, _ := env.thoughts.Get("q3")

	if s1.Status != models.StatusArchivedPermanent || s2.Status != models.StatusArchivedPermanent {
		t.Errorf("First two promotions must land: %s, %s", s1.Status, s2.Status)
	}
	// The third is refused and demoted; the earlier two are never evicted.
	if s3.Status != models.StatusArchivedScratch {
		t.Errorf("Expected quota overflow to demote to scratch, got %s", s3.Status)
	}

	now := time.Now().UTC()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	count, err := env.archives.CountPermanentSince(dayStart)
	if err != nil {
		t.Fatalf("CountPermanentSince failed: %v", err)
	}
	if count != 2 {
		t.Errorf("Expected exactly 2 permanent records today, got %d", count)
	}
}

func TestQuotaResetsNextDay(t *testing.T) {
	env := newTestEnv(t, 1)

	day1 := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	env.archiver.Now = func() time.Time { return day1 }

	th := env.completeThought(t, "d-a", "insight")
	if err := env.archiver.Place(th, 9); err != nil {
		t.Fatalf("Place failed: %v", err)
	}
	th = env.completeThought(t, "d-b", "insight")
	if err := env.archiver.Place(th, 9); err != nil {
		t.Fatalf("Place failed: %v", err)
	}

	got, _ := env.thoughts.Get("d-b")
	if got.Status != models.StatusArchivedScratch {
		t.Fatalf("Expected same-day overflow to demote, got %s", got.Status)
	}

	// Next day the quota is fresh.
	env.archiver.Now = func() time.Time { return day1.Add(24 * time.Hour) }
	th = env.completeThought(t, "d-c", "insight")
	if err := env.archiver.Place(th, 9); err != nil {
		t.Fatalf("Place failed: %v", err)
	}
	got, _ = env.thoughts.Get("d-c")
	if got.Status != models.StatusArchivedPermanent {
		t.Errorf("Expected next-day promotion to land, got %s", got.Status)
	}
}

func TestConcurrentPlacementsRespectDailyQuota(t *testing.T) {
	env := newTestEnv(t, 1)

	completed := make([]*models.Thought, 6)
	for i := range completed {
		completed[i] = env.completeThought(t, fmt.Sprintf("c%d", i+1), "insight")
	}

	// All workers race on the single quota slot at once.
	var wg sync.WaitGroup
	errs := make(chan error, len(completed))
	for _, th := range completed {
		wg.Add(1)
		go func(th *models.Thought) {
			defer wg.Done()
			errs <- env.archiver.Place(th, 9)
		}(th)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("Place failed: %v", err)
		}
	}

	now := time.Now().UTC()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	count, err := env.archives.CountPermanentSince(dayStart)
	if err != nil {
		t.Fatalf("CountPermanentSince failed: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected exactly 1 permanent promotion, got %d", count)
	}

	permanent := 0
	for _, th := range completed {
		got, err := env.thoughts.Get(th.ID)
		if err != nil {
			t.Fatalf("Get %s failed: %v", th.ID, err)
		}
		switch got.Status {
		case models.StatusArchivedPermanent:
			permanent++
		case models.StatusArchivedScratch:
		default:
			t.Errorf("Thought %s left in %s", th.ID, got.Status)
		}
	}
	if permanent != 1 {
		t.Errorf("Expected exactly 1 thought archived permanent, got %d", permanent)
	}
}
