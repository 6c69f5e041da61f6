package models

import "time"

// ArchiveTier is the destination classification for an archived result.
type ArchiveTier string

const (
	TierScratch   ArchiveTier = "scratch"
	TierPermanent ArchiveTier = "permanent"
)

// ArchiveRecord routes a completed thought into tiered storage.
// Permanent records have no expiry; scratch records are deleted once
// they age past the retention window.
type ArchiveRecord struct {
	ID        string      `json:"id"`
	ThoughtID string      `json:"thought_id"`
	Tier      ArchiveTier `json:"tier"`
	Location  string      `json:"location"`
	CreatedAt time.Time   `json:"created_at"`
	// ExpiresAt is zero for permanent records.
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

// IncubatingThought holds a medium-significance thought for delayed
// re-evaluation instead of immediate archival or discard.
type IncubatingThought struct {
	ThoughtID   string    `json:"thought_id"`
	EnteredAt   time.Time `json:"entered_at"`
	ReviewCount int       `json:"review_count"`
}
