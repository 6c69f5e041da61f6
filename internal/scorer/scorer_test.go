package scorer

import (
	"strings"
	"testing"
	"time"

	"subconscious/internal/models"
)

func newTestScorer() *Scorer {
	profile := models.DefaultScoringProfile([]string{"pattern", "elegant", "fundamental"})
	return New(profile, 7, 4)
}

func completedThought(typ models.ThoughtType, result string) *models.Thought {
	return &models.Thought{
		ID:     "t",
		Type:   typ,
		Status: models.StatusCompleted,
		Result: result,
	}
}

func TestScoreBaseline(t *testing.T) {
	s := newTestScorer()

	// A plain general thought with a short, keyword-free result scores
	// the base 5.
	got := s.Score(completedThought(models.TypeGeneral, "nothing special"), nil)
	if got != 5 {
		t.Errorf("Baseline score = %d, want 5", got)
	}
}

func TestScoreTypeAndKeywordBonuses(t *testing.T) {
	s := newTestScorer()

	// connection type (+2) with two seeded keywords (0.3 each) in a
	// short result: 5 + 2 + 0.6 rounds to 8.
	got := s.Score(completedThought(models.TypeConnection, "an elegant pattern"), nil)
	if got != 8 {
		t.Errorf("Score = %d, want 8", got)
	}
}

func TestScoreLengthBonuses(t *testing.T) {
	s := newTestScorer()

	short := completedThought(models.TypeGeneral, strings.Repeat("z", 150))
	medium := completedThought(models.TypeGeneral, strings.Repeat("z", 250))
	long := completedThought(models.TypeGeneral, strings.Repeat("z", 450))

	if got := s.Score(short, nil); got != 5 {
		t.Errorf("Short result score = %d, want 5", got)
	}
	if got := s.Score(medium, nil); got != 6 {
		t.Errorf("Medium result score = %d, want 6", got)
	}
	if got := s.Score(long, nil); got != 7 {
		t.Errorf("Long result score = %d, want 7", got)
	}
}

func TestScoreClampedToScale(t *testing.T) {
	profile := models.DefaultScoringProfile(nil)
	profile.TypeWeights[models.TypeConnection] = models.WeightMax
	for _, kw := range []string{"alpha", "beta", "gamma", "delta"} {
		profile.KeywordWeights[kw] = models.WeightMax
	}
	s := New(profile, 7, 4)

	result := strings.Repeat("alpha beta gamma delta ", 30)
	if got := s.Score(completedThought(models.TypeConnection, result), nil); got != 10 {
		t.Errorf("Stacked bonuses must clamp to 10, got %d", got)
	}

	profile.TypeWeights[models.TypeGeneral] = models.WeightMin
	for kw := range profile.KeywordWeights {
		profile.KeywordWeights[kw] = models.WeightMin
	}
	if got := s.Score(completedThought(models.TypeGeneral, result), nil); got < 0 {
		t.Errorf("Score must clamp at 0, got %d", got)
	}
}

func TestRoute(t *testing.T) {
	s := newTestScorer()

	tests := []struct {
		score int
		want  Routing
	}{
		{10, RoutePermanent},
		{8, RoutePermanent},
		{7, RoutePermanent},
		{6, RouteIncubate},
		{4, RouteIncubate},
		{3, RouteScratch},
		{0, RouteScratch},
	}
	for _, tt := range tests {
		if got := s.Route(tt.score); got != tt.want {
			t.Errorf("Route(%d) = %v, want %v", tt.score, got, tt.want)
		}
	}
}

func TestCrossPollinationCapped(t *testing.T) {
	s := newTestScorer()
	profile := s.Snapshot()

	recent := []*models.Thought{
		completedThought(models.TypePattern, "an elegant pattern emerges, fundamental really"),
		completedThought(models.TypePattern, "another pattern"),
	}
	ctx := BuildRecentContext(recent, profile)

	// Same type and full keyword overlap: raw bonus would be
	// 0.5 + 0.5*3, but it caps at +2.
	with := s.Score(completedThought(models.TypePattern, "elegant pattern, fundamental"), ctx)
	without := s.Score(completedThought(models.TypePattern, "elegant pattern, fundamental"), nil)
	if with-without != 2 {
		t.Errorf("Cross-pollination bonus = %d, want capped +2", with-without)
	}
}

func TestApplyUsageBatchBoostsAndVersions(t *testing.T) {
	s := newTestScorer()
	before := s.Snapshot()

	now := time.Now().UTC()
	used := []*models.Thought{
		completedThought(models.TypeConnection, "the pattern holds"),
		completedThought(models.TypeConnection, "an elegant proof"),
	}
	s.ApplyUsageBatch(used, now)

	after := s.Snapshot()
	if after.Version != before.Version+1 {
		t.Errorf("Version bumped by %d, want exactly 1 per batch", after.Version-before.Version)
	}
	if after.TypeWeights[models.TypeConnection] <= before.TypeWeights[models.TypeConnection] {
		t.Error("Expected type weight to increase after usage")
	}
	if after.KeywordWeights["pattern"] <= before.KeywordWeights["pattern"] {
		t.Error("Expected keyword weight to increase after usage")
	}

	s.ApplyUsageBatch(nil, now)
	if s.Snapshot().Version != after.Version {
		t.Error("Empty batch must not bump the version")
	}
}

func TestLearningNeverEscapesClamp(t *testing.T) {
	s := newTestScorer()

	used := []*models.Thought{
		completedThought(models.TypeConnection, "pattern pattern elegant fundamental"),
	}
	now := time.Now().UTC()
	for i := 0; i < 100; i++ {
		s.ApplyUsageBatch(used, now)
	}

	p := s.Snapshot()
	if w := p.TypeWeights[models.TypeConnection]; w > models.WeightMax {
		t.Errorf("Type weight %v escaped the clamp", w)
	}
	for kw, w := range p.KeywordWeights {
		if w > models.WeightMax || w < models.WeightMin {
			t.Errorf("Keyword %q weight %v escaped the clamp", kw, w)
		}
	}
}

func TestDecayDriftsStaleWeightsToZero(t *testing.T) {
	s := newTestScorer()

	// Mark one keyword freshly used; the rest have no last-used record
	// and count as stale.
	now := time.Now().UTC()
	s.ApplyUsageBatch([]*models.Thought{
		completedThought(models.TypeGeneral, "a pattern appears"),
	}, now)

	decayed := s.Decay(now)
	if decayed == 0 {
		t.Fatal("Expected stale keywords to decay")
	}

	p := s.Snapshot()
	if _, ok := p.KeywordWeights["pattern"]; !ok {
		t.Error("Freshly used keyword must not decay")
	}

	// Repeated decay eventually removes stale features entirely.
	for i := 0; i < 50; i++ {
		s.Decay(now.Add(time.Duration(i+1) * staleAfter))
	}
	p = s.Snapshot()
	if _, ok := p.KeywordWeights["elegant"]; ok {
		t.Errorf("Expected stale keyword to be dropped, weight %v remains", p.KeywordWeights["elegant"])
	}
}
