package handlers

import (
	"errors"
	"net/http"

	"cortexa-go/internal/assessment"
	"cortexa-go/internal/battery"
	"cortexa-go/internal/services"
	"cortexa-go/internal/speech"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

var errInvalidBody = errors.New("invalid request body")

// submissionError marks a failed delivery to the scoring service.
type submissionError struct {
	err error
}

func (e *submissionError) Error() string { return "submission failed: " + e.err.Error() }
func (e *submissionError) Unwrap() error { return e.err }

var conflicts = []error{
	battery.ErrClosed,
	battery.ErrWrongPhase,
	battery.ErrNotComplete,
	battery.ErrAlreadyEmitted,
	speech.ErrClosed,
	speech.ErrAlreadyRecording,
	speech.ErrNotRecording,
	speech.ErrNotScored,
	speech.ErrAlreadyEmitted,
	assessment.ErrFirstStep,
	assessment.ErrSubmitted,
	assessment.ErrNotRetryable,
	assessment.ErrStepNotActive,
}

var badInput = []error{
	errInvalidBody,
	battery.ErrEmptyRecall,
	battery.ErrIncompleteSelection,
	battery.ErrUnknownElement,
}

// errorStatus maps engine errors onto HTTP statuses.
func errorStatus(err error) int {
	var (
		field    *battery.FieldError
		invalid  *assessment.ValidationError
		missing  *assessment.MissingFieldsError
		capture  *speech.CaptureError
		delivery *submissionError
	)
	switch {
	case errors.Is(err, services.ErrRunNotFound), errors.Is(err, assessment.ErrClosed):
		return http.StatusNotFound
	case errors.As(err, &delivery):
		return http.StatusBadGateway
	case errors.As(err, &field), errors.As(err, &invalid):
		return http.StatusBadRequest
	case errors.As(err, &missing):
		return http.StatusUnprocessableEntity
	case errors.As(err, &capture):
		return http.StatusConflict
	}
	for _, target := range badInput {
		if errors.Is(err, target) {
			return http.StatusBadRequest
		}
	}
	for _, target := range conflicts {
		if errors.Is(err, target) {
			return http.StatusConflict
		}
	}
	return http.StatusInternalServerError
}

// errorBody renders err as {"error": ..., "fields": ..., "missing": ..., "kind": ...}.
func errorBody(err error) gin.H {
	body := gin.H{"error": err.Error()}

	var field *battery.FieldError
	if errors.As(err, &field) {
		body["fields"] = map[string]string{field.Field: field.Message}
	}
	var invalid *assessment.ValidationError
	if errors.As(err, &invalid) {
		body["error"] = invalid.Message
		body["fields"] = invalid.Fields
	}
	var missing *assessment.MissingFieldsError
	if errors.As(err, &missing) {
		body["missing"] = missing.Fields
	}
	var capture *speech.CaptureError
	if errors.As(err, &capture) {
		body["error"] = capture.Message
		body["kind"] = capture.Kind
	}
	return body
}

func (h *BatteryHandler) fail(c *gin.Context, err error) {
	status := errorStatus(err)
	if status >= http.StatusInternalServerError {
		h.log.Error("Battery request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.AbortWithStatusJSON(status, errorBody(err))
}
