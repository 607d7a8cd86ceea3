package assessment

import "context"

// Submission is one attempt to score a completed run.
type Submission struct {
	RunID   string
	UserID  *int64
	Metrics Vector
}

// Result is the backend's verdict on a submission.
type Result struct {
	RiskLevel      string `json:"riskLevel"`
	Recommendation string `json:"recommendation"`
}

// Submitter sends a completed metric record for scoring. Implementations must treat
// RunID as an idempotency key.
type Submitter interface {
	Submit(ctx context.Context, s Submission) (*Result, error)
}

// SubmitterFunc adapts a function to Submitter.
type SubmitterFunc func(ctx context.Context, s Submission) (*Result, error)

func (f SubmitterFunc) Submit(ctx context.Context, s Submission) (*Result, error) {
	return f(ctx, s)
}
