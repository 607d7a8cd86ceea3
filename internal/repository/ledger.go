// internal/repository/ledger.go
package repository

import (
	"context"
	"errors"
	"fmt"

	"cortexa-go/internal/assessment"
	"cortexa-go/internal/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var submissionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "cortexa_submissions_total",
	Help: "Assessment submissions by outcome.",
}, []string{"outcome"})

// Ledger records every submission keyed by run id and forwards it to the scoring
// service at most once per successful run.
type Ledger struct {
	db   *gorm.DB
	next assessment.Submitter
	log  *zap.Logger
}

func NewLedger(db *gorm.DB, next assessment.Submitter, log *zap.Logger) *Ledger {
	if log == nil {
		log = zap.NewNop()
	}
	return &Ledger{db: db, next: next, log: log}
}

// Submit returns the stored result when the run was already scored. Otherwise it records
// the attempt, forwards it and stores the outcome.
func (l *Ledger) Submit(ctx context.Context, s assessment.Submission) (*assessment.Result, error) {
	var row models.Submission
	err := l.db.WithContext(ctx).Where("run_id = ?", s.RunID).First(&row).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		row = models.Submission{RunID: s.RunID}
	case err != nil:
		return nil, fmt.Errorf("failed to look up submission %s: %w", s.RunID, err)
	case row.Status == models.SubmissionSubmitted:
		submissionsTotal.WithLabelValues("replayed").Inc()
		l.log.Info("Submission already scored, replaying stored result", zap.String("run_id", s.RunID))
		return &assessment.Result{RiskLevel: row.RiskLevel, Recommendation: row.Recommendation}, nil
	}

	row.UserID = s.UserID
	row.Age = s.Metrics.Age
	row.ReactionTimeMs = s.Metrics.ReactionTimeMs
	row.MemoryScore = s.Metrics.MemoryScore
	row.SpeechPauseMs = s.Metrics.SpeechPauseMs
	row.WordRepetitionRate = s.Metrics.WordRepetitionRate
	row.TaskErrorRate = s.Metrics.TaskErrorRate
	row.SleepHours = s.Metrics.SleepHours
	row.Status = models.SubmissionPending
	row.Attempts++
	row.LastError = ""
	if err := l.db.WithContext(ctx).Save(&row).Error; err != nil {
		return nil, fmt.Errorf("failed to record submission %s: %w", s.RunID, err)
	}

	res, err := l.next.Submit(ctx, s)
	if err == nil && res == nil {
		err = errors.New("scoring service returned no result")
	}
	if err != nil {
		row.Status = models.SubmissionFailed
		row.LastError = err.Error()
		submissionsTotal.WithLabelValues("failed").Inc()
		l.store(&row)
		return nil, err
	}

	row.Status = models.SubmissionSubmitted
	row.RiskLevel = res.RiskLevel
	row.Recommendation = res.Recommendation
	submissionsTotal.WithLabelValues("submitted").Inc()
	l.store(&row)
	return res, nil
}

// store saves the outcome on a fresh context so a caller deadline cannot lose it.
func (l *Ledger) store(row *models.Submission) {
	if err := l.db.WithContext(context.Background()).Save(row).Error; err != nil {
		l.log.Error("Failed to store submission outcome",
			zap.String("run_id", row.RunID),
			zap.String("status", string(row.Status)),
			zap.Error(err))
	}
}

// Get returns the ledger row for runID.
func (l *Ledger) Get(ctx context.Context, runID string) (*models.Submission, error) {
	var row models.Submission
	if err := l.db.WithContext(ctx).Where("run_id = ?", runID).First(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}
