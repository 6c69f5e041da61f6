package store

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"subconscious/internal/database"
	"subconscious/internal/models"
)

// timeLayout is fixed-width so stored timestamps compare correctly as
// text in SQL. RFC3339Nano trims trailing fractional zeros, which would
// make "…00.5Z" sort before "…00Z".
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// ThoughtStore is the authoritative record of every thought submitted.
// All state transitions go through it; SQLite's single-writer connection
// serializes concurrent workers so no two can claim the same thought.
type ThoughtStore struct {
	db *database.DB
}

// NewThoughtStore returns a ThoughtStore bound to an existing database.
func NewThoughtStore(db *database.DB) *ThoughtStore {
	return &ThoughtStore{db: db}
}

// Create inserts a new thought in queued state, assigning its FIFO
// position within its priority tier.
func (s *ThoughtStore) Create(t *models.Thought) error {
	_, err := s.db.Exec(`
		INSERT INTO thoughts (id, type, content, priority, status, usage_count,
			retry_count, recovery_count, queue_seq, not_before, created_at)
		VALUES (?, ?, ?, ?, ?, 0, 0, 0,
			(SELECT COALESCE(MAX(queue_seq), 0) + 1 FROM thoughts), '', ?)`,
		t.ID, string(t.Type), t.Content, int(t.Priority), string(models.StatusQueued),
		t.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("%w: create thought: %v", models.ErrStorageFailure, err)
	}
	return nil
}

// Get returns the thought with the given ID.
func (s *ThoughtStore) Get(id string) (*models.Thought, error) {
	row := s.db.QueryRow(`
		SELECT id, type, content, priority, status, assigned_model, result,
			significance, usage_count, retry_count, recovery_count, queue_seq,
			not_before, created_at, started_at, completed_at
		FROM thoughts WHERE id = ?`, id)
	t, err := scanThought(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get thought %s: %v", models.ErrStorageFailure, id, err)
	}
	return t, nil
}

// ClaimNext atomically claims the highest-priority ready thought for
// processing. Deferred thoughts are as eligible as queued ones. Within
// a tier, the earliest queue position wins. Thoughts in retry backoff
// (not_before in the future) are skipped. Returns nil when nothing is
// ready.
func (s *ThoughtStore) ClaimNext(now time.Time) (*models.Thought, error) {
	nowStr := now.UTC().Format(timeLayout)

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("%w: claim: begin: %v", models.ErrStorageFailure, err)
	}
	defer tx.Rollback()

	row := tx.QueryRow(`
		SELECT id, type, content, priority, status, assigned_model, result,
			significance, usage_count, retry_count, recovery_count, queue_seq,
			not_before, created_at, started_at, completed_at
		FROM thoughts
		WHERE status IN (?, ?) AND (not_before = '' OR not_before <= ?)
		ORDER BY priority DESC, queue_seq ASC
		LIMIT 1`, string(models.StatusQueued), string(models.StatusDeferred), nowStr)

	t, err := scanThought(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: claim: select: %v", models.ErrStorageFailure, err)
	}

	res, err := tx.Exec(`
		UPDATE thoughts SET status = ?, started_at = ?
		WHERE id = ? AND status IN (?, ?)`,
		string(models.StatusProcessing), nowStr, t.ID,
		string(models.StatusQueued), string(models.StatusDeferred))
	if err != nil {
		return nil, fmt.Errorf("%w: claim: update: %v", models.ErrStorageFailure, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("%w: claim: rows affected: %v", models.ErrStorageFailure, err)
	}
	if n != 1 {
		// Lost the race to another worker; caller just tries again.
		return nil, nil
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: claim: commit: %v", models.ErrStorageFailure, err)
	}

	t.Status = models.StatusProcessing
	started := now.UTC()
	t.StartedAt = &started
	return t, nil
}

// SetAssignedModel records the model resolved for a thought at dispatch
// time.
func (s *ThoughtStore) SetAssignedModel(id, model string) error {
	_, err := s.db.Exec(`UPDATE thoughts SET assigned_model = ? WHERE id = ?`, model, id)
	if err != nil {
		return fmt.Errorf("%w: set assigned model: %v", models.ErrStorageFailure, err)
	}
	return nil
}

// Defer returns a processing thought to the back of its own priority
// tier in deferred state. Priority is untouched; only the FIFO
// position moves.
func (s *ThoughtStore) Defer(id string) error {
	return s.transition(id, models.StatusProcessing, `
		UPDATE thoughts SET status = ?, assigned_model = NULL, started_at = NULL,
			queue_seq = (SELECT COALESCE(MAX(queue_seq), 0) + 1 FROM thoughts)
		WHERE id = ? AND status = ?`,
		string(models.StatusDeferred), id, string(models.StatusProcessing))
}

// RetryRequeue returns a processing thought to the queue after a
// dispatch failure, with a backoff window during which it cannot be
// claimed. The retry counter increments so the budget of exactly one
// retry is enforced by the caller.
func (s *ThoughtStore) RetryRequeue(id string, notBefore time.Time) error {
	return s.transition(id, models.StatusProcessing, `
		UPDATE thoughts SET status = ?, retry_count = retry_count + 1,
			started_at = NULL, not_before = ?,
			queue_seq = (SELECT COALESCE(MAX(queue_seq), 0) + 1 FROM thoughts)
		WHERE id = ? AND status = ?`,
		string(models.StatusQueued), notBefore.UTC().Format(timeLayout),
		id, string(models.StatusProcessing))
}

// Complete records the model output and marks the thought completed.
// Result and terminal-success status commit in one statement so the
// store can never hold one without the other.
func (s *ThoughtStore) Complete(id, result string, completedAt time.Time) error {
	return s.transition(id, models.StatusProcessing, `
		UPDATE thoughts SET status = ?, result = ?, completed_at = ?
		WHERE id = ? AND status = ?`,
		string(models.StatusCompleted), result, completedAt.UTC().Format(timeLayout),
		id, string(models.StatusProcessing))
}

// Fail marks a processing thought permanently failed. The record stays
// queryable; it is never dropped.
func (s *ThoughtStore) Fail(id string, failedAt time.Time) error {
	return s.transition(id, models.StatusProcessing, `
		UPDATE thoughts SET status = ?, completed_at = ?
		WHERE id = ? AND status = ?`,
		string(models.StatusFailed), failedAt.UTC().Format(timeLayout),
		id, string(models.StatusProcessing))
}

// CancelQueued prevents future dispatch of a still-waiting thought,
// queued or deferred. Thoughts already processing cannot be cancelled
// mid-flight.
func (s *ThoughtStore) CancelQueued(id string) error {
	return s.transition(id, models.StatusQueued, `
		UPDATE thoughts SET status = ?, completed_at = ?
		WHERE id = ? AND status IN (?, ?)`,
		string(models.StatusFailed), time.Now().UTC().Format(timeLayout),
		id, string(models.StatusQueued), string(models.StatusDeferred))
}

// SetSignificance records the scored significance of a completed or
// incubating thought.
func (s *ThoughtStore) SetSignificance(id string, significance int) error {
	res, err := s.db.Exec(`
		UPDATE thoughts SET significance = ?
		WHERE id = ? AND status IN (?, ?)`,
		significance, id,
		string(models.StatusCompleted), string(models.StatusIncubating))
	if err != nil {
		return fmt.Errorf("%w: set significance: %v", models.ErrStorageFailure, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return models.ErrNotFound
	}
	return nil
}

// MarkIncubating moves a completed thought into the incubation hold.
func (s *ThoughtStore) MarkIncubating(id string) error {
	return s.transition(id, models.StatusCompleted, `
		UPDATE thoughts SET status = ? WHERE id = ? AND status = ?`,
		string(models.StatusIncubating), id, string(models.StatusCompleted))
}

// MarkArchived moves a completed or incubating thought to its terminal
// archived status. Re-archiving into the same tier is a no-op, so a
// retried placement cannot fail halfway.
func (s *ThoughtStore) MarkArchived(id string, tier models.ArchiveTier) error {
	status := models.StatusArchivedScratch
	if tier == models.TierPermanent {
		status = models.StatusArchivedPermanent
	}
	res, err := s.db.Exec(`
		UPDATE thoughts SET status = ?
		WHERE id = ? AND status IN (?, ?, ?)`,
		string(status), id,
		string(models.StatusCompleted), string(models.StatusIncubating), string(status))
	if err != nil {
		return fmt.Errorf("%w: mark archived: %v", models.ErrStorageFailure, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("archive transition rejected for thought %s", id)
	}
	return nil
}

// IncrementUsage bumps the usage counter for an archived thought.
// Returns ErrNotFound for unknown IDs and an ordinary error for
// thoughts that are not archived yet; callers treat both as a logged
// no-op since usage events may race with archival.
func (s *ThoughtStore) IncrementUsage(id string, at time.Time) error {
	t, err := s.Get(id)
	if err != nil {
		return err
	}
	if t.Status != models.StatusArchivedPermanent && t.Status != models.StatusArchivedScratch {
		return fmt.Errorf("thought %s is not archived (status %s)", id, t.Status)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("%w: record usage: begin: %v", models.ErrStorageFailure, err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`UPDATE thoughts SET usage_count = usage_count + 1 WHERE id = ?`, id); err != nil {
		return fmt.Errorf("%w: record usage: update: %v", models.ErrStorageFailure, err)
	}
	if _, err := tx.Exec(`INSERT INTO usage_events (thought_id, recorded_at) VALUES (?, ?)`,
		id, at.UTC().Format(timeLayout)); err != nil {
		return fmt.Errorf("%w: record usage: event: %v", models.ErrStorageFailure, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: record usage: commit: %v", models.ErrStorageFailure, err)
	}
	return nil
}

// UnprocessedUsageThoughtIDs returns the thought IDs with usage events
// not yet folded into the scoring profile, marking exactly those events
// consumed. Collection and marking share one transaction, so an event
// recorded while a batch runs stays unprocessed for the next one.
func (s *ThoughtStore) UnprocessedUsageThoughtIDs() ([]string, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("%w: usage events: begin: %v", models.ErrStorageFailure, err)
	}
	defer tx.Rollback()

	rows, err := tx.Query(`
		SELECT DISTINCT thought_id FROM usage_events WHERE processed = 0`)
	if err != nil {
		return nil, fmt.Errorf("%w: usage events: %v", models.ErrStorageFailure, err)
	}

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("%w: usage events: scan: %v", models.ErrStorageFailure, err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("%w: usage events: %v", models.ErrStorageFailure, err)
	}
	rows.Close()

	if len(ids) > 0 {
		marks := make([]string, len(ids))
		args := make([]any, len(ids))
		for i, id := range ids {
			marks[i] = "?"
			args[i] = id
		}
		if _, err := tx.Exec(`
			UPDATE usage_events SET processed = 1
			WHERE processed = 0 AND thought_id IN (`+strings.Join(marks, ",")+`)`, args...); err != nil {
			return nil, fmt.Errorf("%w: usage events: mark processed: %v", models.ErrStorageFailure, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: usage events: commit: %v", models.ErrStorageFailure, err)
	}
	return ids, nil
}

// RecoverProcessing resets thoughts stranded in processing by a prior
// crash. Each thought gets at most one automatic recovery; a second
// stranding marks it failed so a crash loop cannot amplify.
func (s *ThoughtStore) RecoverProcessing(now time.Time) (recovered, failed int, err error) {
	nowStr := now.UTC().Format(timeLayout)

	res, err := s.db.Exec(`
		UPDATE thoughts SET status = ?, completed_at = ?
		WHERE status = ? AND recovery_count >= 1`,
		string(models.StatusFailed), nowStr, string(models.StatusProcessing))
	if err != nil {
		return 0, 0, fmt.Errorf("%w: recovery: fail pass: %v", models.ErrStorageFailure, err)
	}
	nf, _ := res.RowsAffected()

	res, err = s.db.Exec(`
		UPDATE thoughts SET status = ?, recovery_count = recovery_count + 1,
			assigned_model = NULL, started_at = NULL
		WHERE status = ?`,
		string(models.StatusQueued), string(models.StatusProcessing))
	if err != nil {
		return 0, 0, fmt.Errorf("%w: recovery: requeue pass: %v", models.ErrStorageFailure, err)
	}
	nr, _ := res.RowsAffected()

	if nr > 0 || nf > 0 {
		log.Printf("🔁 [RECOVERY] Requeued %d thought(s), failed %d beyond the recovery budget", nr, nf)
	}
	return int(nr), int(nf), nil
}

// RecentCompleted returns recently finished thoughts with results, the
// cross-pollination context for incubation re-scoring.
func (s *ThoughtStore) RecentCompleted(limit int) ([]*models.Thought, error) {
	rows, err := s.db.Query(`
		SELECT id, type, content, priority, status, assigned_model, result,
			significance, usage_count, retry_count, recovery_count, queue_seq,
			not_before, created_at, started_at, completed_at
		FROM thoughts
		WHERE status IN (?, ?, ?) AND result IS NOT NULL
		ORDER BY completed_at DESC LIMIT ?`,
		string(models.StatusCompleted), string(models.StatusArchivedPermanent),
		string(models.StatusArchivedScratch), limit)
	if err != nil {
		return nil, fmt.Errorf("%w: recent completed: %v", models.ErrStorageFailure, err)
	}
	defer rows.Close()

	var out []*models.Thought
	for rows.Next() {
		t, err := scanThought(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: recent completed: scan: %v", models.ErrStorageFailure, err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ListByStatus returns every thought currently in the given status,
// oldest first.
func (s *ThoughtStore) ListByStatus(status models.ThoughtStatus) ([]*models.Thought, error) {
	rows, err := s.db.Query(`
		SELECT id, type, content, priority, status, assigned_model, result,
			significance, usage_count, retry_count, recovery_count, queue_seq,
			not_before, created_at, started_at, completed_at
		FROM thoughts WHERE status = ? ORDER BY created_at ASC`, string(status))
	if err != nil {
		return nil, fmt.Errorf("%w: list by status: %v", models.ErrStorageFailure, err)
	}
	defer rows.Close()

	var out []*models.Thought
	for rows.Next() {
		t, err := scanThought(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: list by status: scan: %v", models.ErrStorageFailure, err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Stats returns per-status thought counts.
func (s *ThoughtStore) Stats() (map[models.ThoughtStatus]int, error) {
	rows, err := s.db.Query(`SELECT status, COUNT(*) FROM thoughts GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("%w: stats: %v", models.ErrStorageFailure, err)
	}
	defer rows.Close()

	stats := make(map[models.ThoughtStatus]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("%w: stats: scan: %v", models.ErrStorageFailure, err)
		}
		stats[models.ThoughtStatus(status)] = count
	}
	return stats, rows.Err()
}

// transition runs a guarded state-transition statement and verifies the
// row actually moved, so an unexpected state never advances silently.
func (s *ThoughtStore) transition(id string, from models.ThoughtStatus, query string, args ...any) error {
	res, err := s.db.Exec(query, args...)
	if err != nil {
		return fmt.Errorf("%w: transition from %s: %v", models.ErrStorageFailure, from, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: transition from %s: %v", models.ErrStorageFailure, from, err)
	}
	if n != 1 {
		return fmt.Errorf("transition rejected: thought %s is not in state %s", id, from)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanThought(row rowScanner) (*models.Thought, error) {
	var t models.Thought
	var (
		typeStr, statusStr, createdAt, notBefore string
		assignedModel, result                    sql.NullString
		significance                             sql.NullInt64
		priority                                 int
		startedAt, completedAt                   sql.NullString
	)

	err := row.Scan(&t.ID, &typeStr, &t.Content, &priority, &statusStr,
		&assignedModel, &result, &significance, &t.UsageCount, &t.RetryCount,
		&t.RecoveryCount, &t.QueueSeq, &notBefore, &createdAt, &startedAt, &completedAt)
	if err != nil {
		return nil, err
	}

	t.Type = models.ThoughtType(typeStr)
	t.Priority = models.Priority(priority)
	t.Status = models.ThoughtStatus(statusStr)
	t.AssignedModel = assignedModel.String
	t.Result = result.String
	if significance.Valid {
		v := int(significance.Int64)
		t.Significance = &v
	}
	if notBefore != "" {
		if ts, err := time.Parse(timeLayout, notBefore); err == nil {
			t.NotBefore = ts
		}
	}
	if ts, err := time.Parse(timeLayout, createdAt); err == nil {
		t.CreatedAt = ts
	}
	if startedAt.Valid {
		if ts, err := time.Parse(timeLayout, startedAt.String); err == nil {
			t.StartedAt = &ts
		}
	}
	if completedAt.Valid {
		if ts, err := time.Parse(timeLayout, completedAt.String); err == nil {
			t.CompletedAt = &ts
		}
	}
	return &t, nil
}
