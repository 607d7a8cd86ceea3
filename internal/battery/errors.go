package battery

import "errors"

var (
	ErrClosed         = errors.New("test has been closed")
	ErrWrongPhase     = errors.New("action is not available right now")
	ErrNotComplete    = errors.New("test is not complete yet")
	ErrAlreadyEmitted = errors.New("result has already been reported")

	ErrEmptyRecall         = errors.New("enter at least one word before submitting")
	ErrPrematureClick      = errors.New("too early, wait for the box to turn green")
	ErrIncompleteSelection = errors.New("select all numbers in the correct order")
	ErrUnknownElement      = errors.New("number is not part of this round")
)

// FieldError reports an invalid form answer.
type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string {
	return e.Message
}
