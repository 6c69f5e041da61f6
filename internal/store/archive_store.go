package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"subconscious/internal/database"
	"subconscious/internal/models"
)

// ArchiveStore persists archive records and incubation entries.
type ArchiveStore struct {
	db *database.DB
}

// NewArchiveStore returns an ArchiveStore bound to an existing database.
func NewArchiveStore(db *database.DB) *ArchiveStore {
	return &ArchiveStore{db: db}
}

// InsertRecord creates an archive record for a thought. Idempotent on
// (thought_id, tier): a retry or duplicate call reports created=false
// and leaves the existing record untouched.
func (s *ArchiveStore) InsertRecord(rec *models.ArchiveRecord) (created bool, err error) {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	var expires any
	if !rec.ExpiresAt.IsZero() {
		expires = rec.ExpiresAt.UTC().Format(timeLayout)
	}
	res, err := s.db.Exec(`
		INSERT OR IGNORE INTO archive_records (id, thought_id, tier, location, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.ThoughtID, string(rec.Tier), rec.Location,
		rec.CreatedAt.UTC().Format(timeLayout), expires)
	if err != nil {
		return false, fmt.Errorf("%w: insert archive record: %v", models.ErrStorageFailure, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%w: insert archive record: %v", models.ErrStorageFailure, err)
	}
	return n == 1, nil
}

// InsertPermanentWithinQuota creates a permanent archive record only if
// the thought has none yet and fewer than quota permanent promotions
// exist since the given instant. Check and insert are one statement, so
// concurrent workers racing on the last quota slot cannot both promote.
func (s *ArchiveStore) InsertPermanentWithinQuota(rec *models.ArchiveRecord, since time.Time, quota int) (created bool, err error) {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	tier := string(models.TierPermanent)
	res, err := s.db.Exec(`
		INSERT INTO archive_records (id, thought_id, tier, location, created_at, expires_at)
		SELECT ?, ?, ?, ?, ?, NULL
		WHERE NOT EXISTS (
			SELECT 1 FROM archive_records WHERE thought_id = ? AND tier = ?
		) AND (
			SELECT COUNT(*) FROM archive_records WHERE tier = ? AND created_at >= ?
		) < ?`,
		rec.ID, rec.ThoughtID, tier, rec.Location, rec.CreatedAt.UTC().Format(timeLayout),
		rec.ThoughtID, tier,
		tier, since.UTC().Format(timeLayout), quota)
	if err != nil {
		return false, fmt.Errorf("%w: insert permanent: %v", models.ErrStorageFailure, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%w: insert permanent: %v", models.ErrStorageFailure, err)
	}
	return n == 1, nil
}

// HasRecord reports whether a thought already has an archive record in
// the given tier.
func (s *ArchiveStore) HasRecord(thoughtID string, tier models.ArchiveTier) (bool, error) {
	var count int
	err := s.db.QueryRow(`
		SELECT COUNT(*) FROM archive_records WHERE thought_id = ? AND tier = ?`,
		thoughtID, string(tier)).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("%w: has record: %v", models.ErrStorageFailure, err)
	}
	return count > 0, nil
}

// CountPermanentSince counts permanent promotions at or after the given
// instant. Drives the daily promotion quota.
func (s *ArchiveStore) CountPermanentSince(since time.Time) (int, error) {
	var count int
	err := s.db.QueryRow(`
		SELECT COUNT(*) FROM archive_records WHERE tier = ? AND created_at >= ?`,
		string(models.TierPermanent), since.UTC().Format(timeLayout)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("%w: count permanent: %v", models.ErrStorageFailure, err)
	}
	return count, nil
}

// RecordsForThought returns all archive records referencing a thought.
func (s *ArchiveStore) RecordsForThought(thoughtID string) ([]models.ArchiveRecord, error) {
	rows, err := s.db.Query(`
		SELECT id, thought_id, tier, location, created_at, expires_at
		FROM archive_records WHERE thought_id = ?`, thoughtID)
	if err != nil {
		return nil, fmt.Errorf("%w: records for thought: %v", models.ErrStorageFailure, err)
	}
	defer rows.Close()

	var out []models.ArchiveRecord
	for rows.Next() {
		var rec models.ArchiveRecord
		var tier, createdAt string
		var expiresAt sql.NullString
		if err := rows.Scan(&rec.ID, &rec.ThoughtID, &tier, &rec.Location, &createdAt, &expiresAt); err != nil {
			return nil, fmt.Errorf("%w: records for thought: scan: %v", models.ErrStorageFailure, err)
		}
		rec.Tier = models.ArchiveTier(tier)
		if ts, err := time.Parse(timeLayout, createdAt); err == nil {
			rec.CreatedAt = ts
		}
		if expiresAt.Valid {
			if ts, err := time.Parse(timeLayout, expiresAt.String); err == nil {
				rec.ExpiresAt = ts
			}
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// PurgeExpiredScratch deletes scratch records whose retention window has
// passed. They are deleted, not archived.
func (s *ArchiveStore) PurgeExpiredScratch(now time.Time) (int, error) {
	res, err := s.db.Exec(`
		DELETE FROM archive_records
		WHERE tier = ? AND expires_at IS NOT NULL AND expires_at <= ?`,
		string(models.TierScratch), now.UTC().Format(timeLayout))
	if err != nil {
		return 0, fmt.Errorf("%w: purge scratch: %v", models.ErrStorageFailure, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: purge scratch: %v", models.ErrStorageFailure, err)
	}
	return int(n), nil
}

// AddIncubating records entry into incubation. Duplicate entry for the
// same thought is rejected.
func (s *ArchiveStore) AddIncubating(thoughtID string, enteredAt time.Time) error {
	_, err := s.db.Exec(`
		INSERT INTO incubating_thoughts (thought_id, entered_at, review_count)
		VALUES (?, ?, 0)`,
		thoughtID, enteredAt.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("%w: add incubating: %v", models.ErrStorageFailure, err)
	}
	return nil
}

// ListIncubating returns all thoughts currently in the incubation hold.
func (s *ArchiveStore) ListIncubating() ([]models.IncubatingThought, error) {
	rows, err := s.db.Query(`
		SELECT thought_id, entered_at, review_count
		FROM incubating_thoughts ORDER BY entered_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("%w: list incubating: %v", models.ErrStorageFailure, err)
	}
	defer rows.Close()

	var out []models.IncubatingThought
	for rows.Next() {
		var it models.IncubatingThought
		var enteredAt string
		if err := rows.Scan(&it.ThoughtID, &enteredAt, &it.ReviewCount); err != nil {
			return nil, fmt.Errorf("%w: list incubating: scan: %v", models.ErrStorageFailure, err)
		}
		if ts, err := time.Parse(timeLayout, enteredAt); err == nil {
			it.EnteredAt = ts
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// IncrementReview bumps the re-evaluation counter of an incubating
// thought.
func (s *ArchiveStore) IncrementReview(thoughtID string) error {
	res, err := s.db.Exec(`
		UPDATE incubating_thoughts SET review_count = review_count + 1
		WHERE thought_id = ?`, thoughtID)
	if err != nil {
		return fmt.Errorf("%w: increment review: %v", models.ErrStorageFailure, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrNotFound
	}
	return nil
}

// RemoveIncubating removes a thought from the incubation hold once it
// resolves to a tier.
func (s *ArchiveStore) RemoveIncubating(thoughtID string) error {
	_, err := s.db.Exec(`DELETE FROM incubating_thoughts WHERE thought_id = ?`, thoughtID)
	if err != nil {
		return fmt.Errorf("%w: remove incubating: %v", models.ErrStorageFailure, err)
	}
	return nil
}

// GetIncubating returns the incubation entry for a thought, or
// ErrNotFound.
func (s *ArchiveStore) GetIncubating(thoughtID string) (*models.IncubatingThought, error) {
	var it models.IncubatingThought
	var enteredAt string
	err := s.db.QueryRow(`
		SELECT thought_id, entered_at, review_count
		FROM incubating_thoughts WHERE thought_id = ?`, thoughtID).
		Scan(&it.ThoughtID, &enteredAt, &it.ReviewCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get incubating: %v", models.ErrStorageFailure, err)
	}
	if ts, err := time.Parse(timeLayout, enteredAt); err == nil {
		it.EnteredAt = ts
	}
	return &it, nil
}
