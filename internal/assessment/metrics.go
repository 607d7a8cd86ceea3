package assessment

import (
	"fmt"
	"sort"
	"strings"
)

// Field names of the metric record, in canonical order.
const (
	FieldAge                = "age"
	FieldReactionTimeMs     = "reaction_time_ms"
	FieldMemoryScore        = "memory_score"
	FieldSpeechPauseMs      = "speech_pause_ms"
	FieldWordRepetitionRate = "word_repetition_rate"
	FieldTaskErrorRate      = "task_error_rate"
	FieldSleepHours         = "sleep_hours"
)

var fieldOrder = []string{
	FieldAge,
	FieldReactionTimeMs,
	FieldMemoryScore,
	FieldSpeechPauseMs,
	FieldWordRepetitionRate,
	FieldTaskErrorRate,
	FieldSleepHours,
}

// Metrics is the record a run accumulates. A nil field has not been produced yet.
type Metrics struct {
	Age                *float64 `json:"age"`
	ReactionTimeMs     *float64 `json:"reaction_time_ms"`
	MemoryScore        *float64 `json:"memory_score"`
	SpeechPauseMs      *float64 `json:"speech_pause_ms"`
	WordRepetitionRate *float64 `json:"word_repetition_rate"`
	TaskErrorRate      *float64 `json:"task_error_rate"`
	SleepHours         *float64 `json:"sleep_hours"`
}

func (m *Metrics) field(name string) **float64 {
	switch name {
	case FieldAge:
		return &m.Age
	case FieldReactionTimeMs:
		return &m.ReactionTimeMs
	case FieldMemoryScore:
		return &m.MemoryScore
	case FieldSpeechPauseMs:
		return &m.SpeechPauseMs
	case FieldWordRepetitionRate:
		return &m.WordRepetitionRate
	case FieldTaskErrorRate:
		return &m.TaskErrorRate
	case FieldSleepHours:
		return &m.SleepHours
	}
	return nil
}

// Set stores v under the named field.
func (m *Metrics) Set(name string, v float64) {
	if p := m.field(name); p != nil {
		*p = &v
	}
}

// Missing lists unset fields in canonical order.
func (m Metrics) Missing() []string {
	var missing []string
	for _, name := range fieldOrder {
		if *m.field(name) == nil {
			missing = append(missing, name)
		}
	}
	return missing
}

// Complete returns the fully populated vector or a MissingFieldsError.
func (m Metrics) Complete() (Vector, error) {
	if missing := m.Missing(); len(missing) > 0 {
		return Vector{}, &MissingFieldsError{Fields: missing}
	}
	return Vector{
		Age:                *m.Age,
		ReactionTimeMs:     *m.ReactionTimeMs,
		MemoryScore:        *m.MemoryScore,
		SpeechPauseMs:      *m.SpeechPauseMs,
		WordRepetitionRate: *m.WordRepetitionRate,
		TaskErrorRate:      *m.TaskErrorRate,
		SleepHours:         *m.SleepHours,
	}, nil
}

// Vector is a complete metric record, ready for submission.
type Vector struct {
	Age                float64 `json:"age"`
	ReactionTimeMs     float64 `json:"reaction_time_ms"`
	MemoryScore        float64 `json:"memory_score"`
	SpeechPauseMs      float64 `json:"speech_pause_ms"`
	WordRepetitionRate float64 `json:"word_repetition_rate"`
	TaskErrorRate      float64 `json:"task_error_rate"`
	SleepHours         float64 `json:"sleep_hours"`
}

// Validate applies the ranges the scoring backend enforces, so an obviously bad record
// never leaves the client.
func (v Vector) Validate() error {
	fields := map[string]string{}
	if v.Age < 0 || v.Age > 120 {
		fields[FieldAge] = "must be between 0 and 120"
	}
	if v.ReactionTimeMs <= 0 {
		fields[FieldReactionTimeMs] = "must be greater than 0"
	}
	if v.MemoryScore < 0 || v.MemoryScore > 100 {
		fields[FieldMemoryScore] = "must be between 0 and 100"
	}
	if v.SpeechPauseMs <= 0 {
		fields[FieldSpeechPauseMs] = "must be greater than 0"
	}
	if v.WordRepetitionRate < 0 || v.WordRepetitionRate > 1 {
		fields[FieldWordRepetitionRate] = "must be between 0 and 1"
	}
	if v.TaskErrorRate < 0 || v.TaskErrorRate > 1 {
		fields[FieldTaskErrorRate] = "must be between 0 and 1"
	}
	if v.SleepHours < 0 || v.SleepHours > 24 {
		fields[FieldSleepHours] = "must be between 0 and 24"
	}
	if len(fields) > 0 {
		return &ValidationError{Message: "Validation failed", Fields: fields}
	}
	return nil
}

// MissingFieldsError is returned when the final step completes with unset metrics.
type MissingFieldsError struct {
	Fields []string
}

func (e *MissingFieldsError) Error() string {
	return "missing required fields: " + strings.Join(e.Fields, ", ")
}

// ValidationError carries per-field validation messages.
type ValidationError struct {
	Message string
	Fields  map[string]string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return e.Message
	}
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = fmt.Sprintf("%s: %s", name, e.Fields[name])
	}
	return fmt.Sprintf("%s (%s)", e.Message, strings.Join(parts, "; "))
}
