package models

import (
	"time"
)

// ThoughtType classifies the kind of thought being processed.
type ThoughtType string

const (
	TypePattern     ThoughtType = "pattern"
	TypeConnection  ThoughtType = "connection"
	TypeQuestion    ThoughtType = "question"
	TypeGeneral     ThoughtType = "general"
	TypeProblem     ThoughtType = "problem"
	TypeDesign      ThoughtType = "design"
	TypeAnalysis    ThoughtType = "analysis"
	TypeExploration ThoughtType = "exploration"
)

// ValidThoughtTypes is the set of all recognized thought types.
var ValidThoughtTypes = []ThoughtType{
	TypePattern,
	TypeConnection,
	TypeQuestion,
	TypeGeneral,
	TypeProblem,
	TypeDesign,
	TypeAnalysis,
	TypeExploration,
}

// IsValid returns true if the thought type is recognized.
func (t ThoughtType) IsValid() bool {
	for _, v := range ValidThoughtTypes {
		if t == v {
			return true
		}
	}
	return false
}

// Priority is the scheduling tier of a thought. Higher values are
// scheduled first; ties are broken FIFO by submission order.
type Priority int

const (
	PriorityLow    Priority = 1
	PriorityNormal Priority = 5
	PriorityHigh   Priority = 8
)

// ParsePriority maps the wire-level priority names to tiers.
func ParsePriority(s string) (Priority, bool) {
	switch s {
	case "high":
		return PriorityHigh, true
	case "normal", "":
		return PriorityNormal, true
	case "low":
		return PriorityLow, true
	}
	return 0, false
}

// String returns the wire-level name of the priority tier.
func (p Priority) String() string {
	switch p {
	case PriorityHigh:
		return "high"
	case PriorityLow:
		return "low"
	default:
		return "normal"
	}
}

// ThoughtStatus is the lifecycle state of a thought.
type ThoughtStatus string

const (
	StatusQueued            ThoughtStatus = "queued"
	StatusProcessing        ThoughtStatus = "processing"
	StatusDeferred          ThoughtStatus = "deferred"
	StatusCompleted         ThoughtStatus = "completed"
	StatusFailed            ThoughtStatus = "failed"
	StatusIncubating        ThoughtStatus = "incubating"
	StatusArchivedPermanent ThoughtStatus = "archived_permanent"
	StatusArchivedScratch   ThoughtStatus = "archived_scratch"
)

// IsTerminalSuccess reports whether the status carries a recorded result.
func (s ThoughtStatus) IsTerminalSuccess() bool {
	switch s {
	case StatusCompleted, StatusIncubating, StatusArchivedPermanent, StatusArchivedScratch:
		return true
	}
	return false
}

// IsTerminal reports whether no further transitions are allowed.
func (s ThoughtStatus) IsTerminal() bool {
	switch s {
	case StatusFailed, StatusArchivedPermanent, StatusArchivedScratch:
		return true
	}
	return false
}

// Thought is one unit of submitted content awaiting model-based
// processing. The ThoughtStore exclusively owns the authoritative
// record; other components hold only the ID.
type Thought struct {
	ID            string        `json:"id"`
	Type          ThoughtType   `json:"type"`
	Content       string        `json:"content"`
	Priority      Priority      `json:"priority"`
	Status        ThoughtStatus `json:"status"`
	AssignedModel string        `json:"assigned_model,omitempty"`
	Result        string        `json:"result,omitempty"`
	// Significance is 0-10, nil until the thought has been scored.
	Significance *int `json:"significance,omitempty"`
	UsageCount   int  `json:"usage_count"`
	RetryCount   int  `json:"retry_count"`
	// RecoveryCount guards against crash-loop amplification: a thought
	// left in processing is recovered to queued at most once.
	RecoveryCount int        `json:"recovery_count"`
	QueueSeq      int64      `json:"-"`
	NotBefore     time.Time  `json:"-"`
	CreatedAt     time.Time  `json:"created_at"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

// StatusSnapshot is the caller-visible view returned by get_status.
type StatusSnapshot struct {
	ID           string        `json:"id"`
	Status       ThoughtStatus `json:"status"`
	Significance *int          `json:"significance,omitempty"`
	Result       string        `json:"result,omitempty"`
}
