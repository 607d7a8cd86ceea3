// Package backend talks to the risk scoring service.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"cortexa-go/internal/assessment"

	"go.uber.org/zap"
)

// ErrUnavailable wraps transport failures and unexpected responses.
var ErrUnavailable = errors.New("scoring service unavailable")

type request struct {
	Age                int     `json:"age"`
	ReactionTimeMs     float64 `json:"reaction_time_ms"`
	MemoryScore        float64 `json:"memory_score"`
	SpeechPauseMs      float64 `json:"speech_pause_ms"`
	WordRepetitionRate float64 `json:"word_repetition_rate"`
	TaskErrorRate      float64 `json:"task_error_rate"`
	SleepHours         float64 `json:"sleep_hours"`
	UserID             *int64  `json:"userId,omitempty"`
}

type errorBody struct {
	Message string            `json:"message"`
	Errors  map[string]string `json:"errors"`
}

// Client submits completed assessments over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
	log     *zap.Logger
}

func NewClient(baseURL string, timeout time.Duration, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		log:     log,
	}
}

// Submit posts the metric vector to /api/assessment. The run id travels as the
// Idempotency-Key header.
func (c *Client) Submit(ctx context.Context, s assessment.Submission) (*assessment.Result, error) {
	body, err := json.Marshal(request{
		Age:                int(s.Metrics.Age),
		ReactionTimeMs:     s.Metrics.ReactionTimeMs,
		MemoryScore:        s.Metrics.MemoryScore,
		SpeechPauseMs:      s.Metrics.SpeechPauseMs,
		WordRepetitionRate: s.Metrics.WordRepetitionRate,
		TaskErrorRate:      s.Metrics.TaskErrorRate,
		SleepHours:         s.Metrics.SleepHours,
		UserID:             s.UserID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode assessment: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/assessment", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build assessment request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Idempotency-Key", s.RunID)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Error("Scoring request failed", zap.String("run_id", s.RunID), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %v", ErrUnavailable, err)
	}
	c.log.Debug("Scoring service responded",
		zap.String("run_id", s.RunID),
		zap.Int("status", resp.StatusCode),
		zap.Duration("latency", time.Since(start)))

	switch {
	case resp.StatusCode == http.StatusOK:
		var result assessment.Result
		if err := json.Unmarshal(data, &result); err != nil {
			return nil, fmt.Errorf("%w: malformed response: %v", ErrUnavailable, err)
		}
		result.RiskLevel = capitalize(result.RiskLevel)
		return &result, nil
	case resp.StatusCode == http.StatusBadRequest:
		var eb errorBody
		_ = json.Unmarshal(data, &eb)
		if eb.Message == "" {
			eb.Message = "Validation failed"
		}
		return nil, &assessment.ValidationError{Message: eb.Message, Fields: eb.Errors}
	default:
		var eb errorBody
		_ = json.Unmarshal(data, &eb)
		msg := eb.Message
		if msg == "" {
			msg = resp.Status
		}
		return nil, fmt.Errorf("%w: %s", ErrUnavailable, msg)
	}
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + strings.ToLower(s[size:])
}
