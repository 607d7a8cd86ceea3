package repository

import (
	"context"
	"errors"
	"testing"

	"cortexa-go/internal/assessment"
	"cortexa-go/internal/database"
	"cortexa-go/internal/models"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Discard})
	require.NoError(t, err)
	// Every pooled connection would get its own in-memory database.
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, database.Migrate(db))
	return db
}

type scripted struct {
	calls int
	errs  []error
}

func (s *scripted) Submit(_ context.Context, sub assessment.Submission) (*assessment.Result, error) {
	s.calls++
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	return &assessment.Result{RiskLevel: "Low", Recommendation: "Keep it up"}, nil
}

func submission(runID string) assessment.Submission {
	return assessment.Submission{
		RunID: runID,
		Metrics: assessment.Vector{
			Age: 70, ReactionTimeMs: 250, MemoryScore: 80, SpeechPauseMs: 500,
			WordRepetitionRate: 0.1, TaskErrorRate: 0.2, SleepHours: 7,
		},
	}
}

func TestLedgerSubmitsOnce(t *testing.T) {
	db := newDB(t)
	next := &scripted{}
	l := NewLedger(db, next, nil)
	ctx := context.Background()

	res, err := l.Submit(ctx, submission("run-a"))
	require.NoError(t, err)
	assert.Equal(t, "Low", res.RiskLevel)

	res, err = l.Submit(ctx, submission("run-a"))
	require.NoError(t, err)
	assert.Equal(t, "Keep it up", res.Recommendation)
	assert.Equal(t, 1, next.calls)

	row, err := l.Get(ctx, "run-a")
	require.NoError(t, err)
	assert.Equal(t, models.SubmissionSubmitted, row.Status)
	assert.Equal(t, 1, row.Attempts)
	assert.Equal(t, 250.0, row.ReactionTimeMs)
}

func TestLedgerRecordsFailureAndRetry(t *testing.T) {
	db := newDB(t)
	next := &scripted{errs: []error{errors.New("connection refused")}}
	l := NewLedger(db, next, nil)
	ctx := context.Background()

	_, err := l.Submit(ctx, submission("run-b"))
	require.EqualError(t, err, "connection refused")

	row, err := l.Get(ctx, "run-b")
	require.NoError(t, err)
	assert.Equal(t, models.SubmissionFailed, row.Status)
	assert.Equal(t, "connection refused", row.LastError)

	_, err = l.Submit(ctx, submission("run-b"))
	require.NoError(t, err)
	assert.Equal(t, 2, next.calls)

	row, err = l.Get(ctx, "run-b")
	require.NoError(t, err)
	assert.Equal(t, models.SubmissionSubmitted, row.Status)
	assert.Equal(t, 2, row.Attempts)
	assert.Empty(t, row.LastError)

	var count int64
	require.NoError(t, db.Model(&models.Submission{}).Where("run_id = ?", "run-b").Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestLedgerNilResult(t *testing.T) {
	l := NewLedger(newDB(t), assessment.SubmitterFunc(func(context.Context, assessment.Submission) (*assessment.Result, error) {
		return nil, nil
	}), nil)
	_, err := l.Submit(context.Background(), submission("run-c"))
	require.Error(t, err)
}

func TestLedgerGetMissing(t *testing.T) {
	l := NewLedger(newDB(t), &scripted{}, nil)
	_, err := l.Get(context.Background(), "nope")
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
}
