package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"subconscious/internal/database"
	"subconscious/internal/models"
)

// ProfileStore checkpoints the scoring profile as a single versioned
// document. The profile is persisted periodically, not per update, to
// bound write amplification.
type ProfileStore struct {
	db *database.DB
}

// NewProfileStore returns a ProfileStore bound to an existing database.
func NewProfileStore(db *database.DB) *ProfileStore {
	return &ProfileStore{db: db}
}

// Save upserts the profile checkpoint. A stale snapshot (version at or
// below the stored one) is skipped rather than written backwards.
func (s *ProfileStore) Save(p *models.ScoringProfile) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to encode scoring profile: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO scoring_profile (id, version, data, updated_at)
		VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			version = excluded.version,
			data = excluded.data,
			updated_at = excluded.updated_at
		WHERE excluded.version > scoring_profile.version`,
		p.Version, string(data), time.Now().UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("%w: save profile: %v", models.ErrStorageFailure, err)
	}
	return nil
}

// Load returns the checkpointed profile, or ErrNotFound when the
// process has never checkpointed one.
func (s *ProfileStore) Load() (*models.ScoringProfile, error) {
	var data string
	err := s.db.QueryRow(`SELECT data FROM scoring_profile WHERE id = 1`).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: load profile: %v", models.ErrStorageFailure, err)
	}

	var p models.ScoringProfile
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return nil, fmt.Errorf("failed to decode scoring profile: %w", err)
	}
	if p.TypeWeights == nil {
		p.TypeWeights = make(map[models.ThoughtType]float64)
	}
	if p.KeywordWeights == nil {
		p.KeywordWeights = make(map[string]float64)
	}
	if p.KeywordLastUsed == nil {
		p.KeywordLastUsed = make(map[string]time.Time)
	}
	return &p, nil
}
