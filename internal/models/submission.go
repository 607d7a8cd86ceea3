package models

import (
	"time"
)

// SubmissionStatus tracks where a run's submission stands.
type SubmissionStatus string

const (
	SubmissionPending   SubmissionStatus = "pending"
	SubmissionSubmitted SubmissionStatus = "submitted"
	SubmissionFailed    SubmissionStatus = "failed"
)

// Submission is the ledger row for one assessment run. RunID doubles as the
// idempotency key sent to the scoring service.
type Submission struct {
	ID     uint   `gorm:"primaryKey"`
	RunID  string `gorm:"size:36;uniqueIndex;not null"`
	UserID *int64 `gorm:"index"`

	Age                float64
	ReactionTimeMs     float64
	MemoryScore        float64
	SpeechPauseMs      float64
	WordRepetitionRate float64
	TaskErrorRate      float64
	SleepHours         float64

	Status         SubmissionStatus `gorm:"size:16;not null;default:pending"`
	Attempts       int
	RiskLevel      string `gorm:"size:32"`
	Recommendation string `gorm:"type:text"`
	LastError      string `gorm:"type:text"`

	CreatedAt time.Time
	UpdatedAt time.Time
}
