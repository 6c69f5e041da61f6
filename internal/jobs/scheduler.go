// Package jobs runs the engine's periodic maintenance: incubation
// reviews, behavioral-learning batches, profile checkpoints, and the
// daily curation pass.
package jobs

import (
	"fmt"
	"log"
	"time"

	"github.com/go-co-op/gocron/v2"

	"subconscious/internal/archive"
	"subconscious/internal/config"
	"subconscious/internal/scorer"
	"subconscious/internal/store"
)

// Scheduler owns the gocron scheduler and the registered jobs.
type Scheduler struct {
	scheduler gocron.Scheduler
	cfg       *config.Config

	thoughts  *store.ThoughtStore
	profiles  *store.ProfileStore
	scorer    *scorer.Scorer
	archiver  *archive.Archiver
	incubator *archive.Incubator
}

// NewScheduler creates a scheduler with all maintenance jobs registered
// but not yet running.
func NewScheduler(cfg *config.Config, thoughts *store.ThoughtStore, profiles *store.ProfileStore,
	sc *scorer.Scorer, archiver *archive.Archiver, incubator *archive.Incubator) (*Scheduler, error) {
	gs, err := gocron.NewScheduler(
		gocron.WithLocation(time.UTC),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	s := &Scheduler{
		scheduler: gs,
		cfg:       cfg,
		thoughts:  thoughts,
		profiles:  profiles,
		scorer:    sc,
		archiver:  archiver,
		incubator: incubator,
	}
	if err := s.registerJobs(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Scheduler) registerJobs() error {
	jobs := []struct {
		name string
		def  gocron.JobDefinition
		task func()
	}{
		{
			name: "incubation-review",
			def:  gocron.DurationJob(s.cfg.IncubationReviewInterval),
			task: s.runIncubationReview,
		},
		{
			name: "learning-batch",
			def:  gocron.DurationJob(s.cfg.LearningInterval),
			task: s.runLearningBatch,
		},
		{
			name: "profile-checkpoint",
			def:  gocron.DurationJob(s.cfg.CheckpointInterval),
			task: s.runProfileCheckpoint,
		},
		{
			name: "daily-curation",
			def:  gocron.CronJob(s.cfg.CurationSchedule, false),
			task: s.runDailyCuration,
		},
	}

	for _, j := range jobs {
		if _, err := s.scheduler.NewJob(j.def, gocron.NewTask(j.task), gocron.WithName(j.name)); err != nil {
			return fmt.Errorf("failed to register job %s: %w", j.name, err)
		}
	}
	return nil
}

// Start starts the registered jobs.
func (s *Scheduler) Start() {
	log.Println("⏰ [JOBS] Starting maintenance scheduler...")
	s.scheduler.Start()
	log.Printf("✅ [JOBS] %d maintenance jobs running", len(s.scheduler.Jobs()))
}

// Stop shuts the scheduler down, waiting for running jobs to finish.
func (s *Scheduler) Stop() error {
	log.Println("⏹️ [JOBS] Stopping maintenance scheduler...")
	return s.scheduler.Shutdown()
}
