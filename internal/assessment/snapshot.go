package assessment

import (
	"errors"

	"cortexa-go/internal/battery"
	"cortexa-go/internal/speech"
)

// Snapshot is a point-in-time view of a run for clients.
type Snapshot struct {
	RunID            string                 `json:"runId"`
	Step             int                    `json:"step"`
	StepName         string                 `json:"stepName"`
	TotalSteps       int                    `json:"totalSteps"`
	Status           Status                 `json:"status"`
	Metrics          Metrics                `json:"metrics"`
	Missing          []string               `json:"missing,omitempty"`
	Error            string                 `json:"error,omitempty"`
	ValidationErrors map[string]string      `json:"validationErrors,omitempty"`
	Result           *Result                `json:"result,omitempty"`
	Speech           *speech.View           `json:"speech,omitempty"`
	Memory           *battery.MemoryView    `json:"memory,omitempty"`
	Reaction         *battery.ReactionView  `json:"reaction,omitempty"`
	Puzzle           *battery.PuzzleView    `json:"puzzle,omitempty"`
	Lifestyle        *battery.LifestyleView `json:"lifestyle,omitempty"`
}

func (o *Orchestrator) Snapshot() Snapshot {
	s := Snapshot{
		RunID:      o.runID,
		Step:       int(o.step),
		StepName:   o.step.String(),
		TotalSteps: TotalSteps,
		Status:     o.status,
		Metrics:    o.metrics,
		Result:     o.result,
	}
	if o.err != nil {
		s.Error = o.err.Error()
		var missing *MissingFieldsError
		if errors.As(o.err, &missing) {
			s.Missing = missing.Fields
		}
		var invalid *ValidationError
		if errors.As(o.err, &invalid) {
			s.ValidationErrors = invalid.Fields
		}
	}

	switch {
	case o.speech != nil:
		v := o.speech.View()
		s.Speech = &v
	case o.memory != nil:
		v := o.memory.View()
		s.Memory = &v
	case o.reaction != nil:
		v := o.reaction.View()
		s.Reaction = &v
	case o.puzzle != nil:
		v := o.puzzle.View()
		s.Puzzle = &v
	case o.lifestyle != nil:
		v := o.lifestyle.View()
		s.Lifestyle = &v
	}
	return s
}
