// Package engine drives the asynchronous thought-processing loop: a
// fixed-size worker pool pulls the highest-priority ready thought from
// the store, dispatches it to the model backend under the context
// budget, and routes the scored result into tiered storage.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"subconscious/internal/archive"
	"subconscious/internal/budget"
	"subconscious/internal/config"
	"subconscious/internal/dispatch"
	"subconscious/internal/logging"
	"subconscious/internal/metrics"
	"subconscious/internal/models"
	"subconscious/internal/scorer"
	"subconscious/internal/store"
)

// Engine is the thought-processing engine and the boundary exposed to
// submission callers.
type Engine struct {
	cfg      *config.Config
	thoughts *store.ThoughtStore
	budget   *budget.Manager
	client   *dispatch.Client
	scorer   *scorer.Scorer
	archiver *archive.Archiver

	modelMu  sync.RWMutex
	modelMap *config.ModelMap

	wake   chan struct{}
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Now is the engine's clock, injectable for tests.
	Now func() time.Time
}

// New creates an Engine. Start must be called before thoughts are
// processed; Submit works immediately.
func New(cfg *config.Config, thoughts *store.ThoughtStore, bm *budget.Manager,
	client *dispatch.Client, sc *scorer.Scorer, archiver *archive.Archiver,
	modelMap *config.ModelMap) *Engine {
	return &Engine{
		cfg:      cfg,
		thoughts: thoughts,
		budget:   bm,
		client:   client,
		scorer:   sc,
		archiver: archiver,
		modelMap: modelMap,
		wake:     make(chan struct{}, 1),
		Now:      time.Now,
	}
}

// Submit validates and enqueues a thought, returning its ID.
// Oversized content and unrecognized types are rejected, never
// truncated.
func (e *Engine) Submit(thoughtType, content, priority string) (string, error) {
	t := models.ThoughtType(thoughtType)
	if !t.IsValid() {
		return "", fmt.Errorf("%w: unrecognized thought type %q", models.ErrInvalidInput, thoughtType)
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return "", fmt.Errorf("%w: content is empty", models.ErrInvalidInput)
	}
	if len(content) > e.cfg.MaxContentLength {
		return "", fmt.Errorf("%w: content exceeds maximum length (%d > %d)",
			models.ErrInvalidInput, len(content), e.cfg.MaxContentLength)
	}
	prio, ok := models.ParsePriority(priority)
	if !ok {
		return "", fmt.Errorf("%w: unrecognized priority %q", models.ErrInvalidInput, priority)
	}

	thought := &models.Thought{
		ID:        uuid.New().String(),
		Type:      t,
		Content:   content,
		Priority:  prio,
		CreatedAt: e.Now().UTC(),
	}
	if err := e.thoughts.Create(thought); err != nil {
		return "", err
	}

	if m := metrics.Get(); m != nil {
		m.ThoughtsSubmitted.WithLabelValues(prio.String()).Inc()
	}
	slog.Info("thought submitted", "thought_id", thought.ID, "type", t, "priority", prio.String())

	// Nudge an idle worker; non-blocking since a wake is already pending.
	select {
	case e.wake <- struct{}{}:
	default:
	}
	return thought.ID, nil
}

// Status returns the caller-visible snapshot of a thought.
func (e *Engine) Status(id string) (*models.StatusSnapshot, error) {
	t, err := e.thoughts.Get(id)
	if err != nil {
		return nil, err
	}
	snap := &models.StatusSnapshot{
		ID:           t.ID,
		Status:       t.Status,
		Significance: t.Significance,
	}
	if t.Status.IsTerminalSuccess() {
		snap.Result = t.Result
	}
	return snap, nil
}

// RecordUsage notes that an external consumer referenced a thought's
// result. Usage events may race with archival, so unknown or
// not-yet-archived thoughts are a logged no-op rather than an error.
func (e *Engine) RecordUsage(id string) error {
	err := e.thoughts.IncrementUsage(id, e.Now())
	if err != nil {
		if errors.Is(err, models.ErrStorageFailure) {
			return err
		}
		slog.Debug("usage event ignored", "thought_id", id, "reason", err)
		return nil
	}
	if m := metrics.Get(); m != nil {
		m.UsageEvents.Inc()
	}
	return nil
}

// Cancel prevents future dispatch of a still-queued thought. Thoughts
// already processing are not cancelled mid-flight.
func (e *Engine) Cancel(id string) error {
	return e.thoughts.CancelQueued(id)
}

// Stats returns per-status thought counts.
func (e *Engine) Stats() (map[models.ThoughtStatus]int, error) {
	return e.thoughts.Stats()
}

// SetModelMap swaps in a reloaded model map.
func (e *Engine) SetModelMap(mm *config.ModelMap) {
	e.modelMu.Lock()
	e.modelMap = mm
	e.modelMu.Unlock()
	log.Println("🔄 [ENGINE] Model map reloaded")
}

func (e *Engine) models() *config.ModelMap {
	e.modelMu.RLock()
	defer e.modelMu.RUnlock()
	return e.modelMap
}

// Start recovers stranded thoughts and launches the worker pool.
func (e *Engine) Start(ctx context.Context) error {
	if _, _, err := e.thoughts.RecoverProcessing(e.Now()); err != nil {
		return err
	}

	ctx, e.cancel = context.WithCancel(ctx)
	log.Printf("🧠 [ENGINE] Starting %d worker(s)", e.cfg.Workers)
	for i := 0; i < e.cfg.Workers; i++ {
		e.wg.Add(1)
		go e.worker(ctx, i)
	}
	return nil
}

// Stop stops the worker pool, waiting for in-flight dispatches to
// finish or time out.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
	e.wg.Wait()
	log.Println("🛑 [ENGINE] Workers stopped")
}

// worker pulls ready thoughts until the context is cancelled. An error
// processing one thought never blocks scheduling of any other.
func (e *Engine) worker(ctx context.Context, id int) {
	defer e.wg.Done()
	logger := logging.WithWorker(id)

	ticker := time.NewTicker(e.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		t, err := e.thoughts.ClaimNext(e.Now())
		if err != nil {
			logger.Error("claim failed", "error", err)
		} else if t != nil {
			e.process(ctx, t)
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-e.wake:
		case <-ticker.C:
		}
	}
}

// process runs one claimed thought through dispatch, scoring, and
// archival.
func (e *Engine) process(ctx context.Context, t *models.Thought) {
	m := metrics.Get()
	if m != nil {
		m.ProcessingNow.Inc()
		defer m.ProcessingNow.Dec()
	}
	logger := logging.WithThought(t.ID, string(t.Type))

	mm := e.models()
	model := mm.ModelFor(t.Type)
	if err := e.thoughts.SetAssignedModel(t.ID, model); err != nil {
		logger.Error("failed to record assigned model", "error", err)
	}

	prompt := dispatch.BuildPrompt(t.Type, t.Content)

	// One bounded-context session per backend model.
	sessionID := model
	ok, reset := e.budget.Reserve(sessionID, prompt)
	if !ok {
		if budget.Estimate(prompt) > e.budget.Budget() {
			// The prompt alone can never fit: unrecoverable overflow,
			// force-reset to failed.
			logger.Error("prompt exceeds context budget, failing thought")
			e.failThought(t, logger)
			return
		}
		// Session was torn down; requeue fresh at the back of its tier
		// and let the worker pick up the next eligible thought.
		if err := e.thoughts.Defer(t.ID); err != nil {
			logger.Error("deferral failed", "error", err)
			return
		}
		if m != nil {
			m.ThoughtsDeferred.Inc()
		}
		logger.Info("thought deferred on context overflow", "session_reset", reset)
		return
	}

	logger.Info("dispatching", "model", model)
	start := e.Now()
	result, err := e.client.Invoke(ctx, model, prompt, mm.MaxTokensFor(model))
	if m != nil {
		m.DispatchLatency.Observe(e.Now().Sub(start).Seconds())
	}

	if err != nil {
		e.handleDispatchFailure(t, err, logger)
		return
	}

	e.budget.Append(sessionID, result)

	now := e.Now()
	if err := e.thoughts.Complete(t.ID, result, now); err != nil {
		// The write did not commit; leave the state machine alone so
		// store and state cannot diverge.
		logger.Error("failed to record result", "error", err)
		return
	}
	if m != nil {
		m.ThoughtsCompleted.Inc()
	}

	completed, err := e.thoughts.Get(t.ID)
	if err != nil {
		logger.Error("failed to reload completed thought", "error", err)
		return
	}

	significance := e.scorer.Score(completed, nil)
	if err := e.thoughts.SetSignificance(t.ID, significance); err != nil {
		logger.Error("failed to record significance", "error", err)
		return
	}
	logger.Info("thought completed", "significance", significance,
		"elapsed", now.Sub(start).Round(time.Millisecond))

	if err := e.archiver.Place(completed, significance); err != nil {
		logger.Error("archival failed", "error", err)
	}
}

// handleDispatchFailure applies the retry policy: transient failures
// get exactly one retry after a short backoff; everything else, or an
// exhausted retry budget, fails the thought permanently.
func (e *Engine) handleDispatchFailure(t *models.Thought, err error, logger *slog.Logger) {
	transient := dispatch.IsTransient(err)
	if transient && t.RetryCount == 0 {
		notBefore := e.Now().Add(e.cfg.RetryBackoff)
		if rqErr := e.thoughts.RetryRequeue(t.ID, notBefore); rqErr != nil {
			logger.Error("retry requeue failed", "error", rqErr)
			return
		}
		if m := metrics.Get(); m != nil {
			m.DispatchRetries.Inc()
		}
		logger.Warn("dispatch failed, retrying after backoff", "error", err)
		return
	}
	logger.Error("dispatch failed permanently", "error", err, "retries", t.RetryCount)
	e.failThought(t, logger)
}

func (e *Engine) failThought(t *models.Thought, logger *slog.Logger) {
	if err := e.thoughts.Fail(t.ID, e.Now()); err != nil {
		logger.Error("failed to mark thought failed", "error", err)
		return
	}
	if m := metrics.Get(); m != nil {
		m.ThoughtsFailed.Inc()
	}
}
