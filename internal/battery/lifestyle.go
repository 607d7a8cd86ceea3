package battery

import "go.uber.org/zap"

// LifestyleAnswers are the questionnaire inputs. Nil means unanswered.
type LifestyleAnswers struct {
	Age               *int     `json:"age"`
	SleepHours        *float64 `json:"sleepHours"`
	FunctionalDecline *bool    `json:"functionalDecline"`
}

type LifestyleView struct {
	Submitted         bool     `json:"submitted"`
	Age               *int     `json:"age,omitempty"`
	SleepHours        *float64 `json:"sleepHours,omitempty"`
	FunctionalDecline *bool    `json:"functionalDecline,omitempty"`
}

// LifestyleForm collects age, habitual sleep and whether the person has noticed any
// decline in everyday functioning.
type LifestyleForm struct {
	log        *zap.Logger
	onComplete func(age int, sleepHours float64) error

	answers   LifestyleAnswers
	submitted bool
	closed    bool
}

// NewLifestyleForm mounts the form. onComplete may refuse a submission, in which case the
// form keeps its previous answers.
func NewLifestyleForm(log *zap.Logger, onComplete func(age int, sleepHours float64) error) *LifestyleForm {
	if log == nil {
		log = zap.NewNop()
	}
	return &LifestyleForm{log: log, onComplete: onComplete}
}

// Validate checks answers without submitting them.
func (f *LifestyleForm) Validate(a LifestyleAnswers) error {
	if a.Age == nil || *a.Age < 0 || *a.Age > 120 {
		return &FieldError{Field: "age", Message: "please enter a valid age (0-120)"}
	}
	if a.SleepHours == nil || *a.SleepHours < 0 || *a.SleepHours > 24 {
		return &FieldError{Field: "sleep_hours", Message: "please enter valid sleep hours (0-24)"}
	}
	if a.FunctionalDecline == nil {
		return &FieldError{Field: "functional_decline", Message: "please answer the functional decline question"}
	}
	return nil
}

// Submit validates the answers and reports age and sleep hours. A form can be
// resubmitted while it is mounted; each accepted submission replaces the answers.
func (f *LifestyleForm) Submit(a LifestyleAnswers) error {
	if f.closed {
		return ErrClosed
	}
	if err := f.Validate(a); err != nil {
		return err
	}
	if f.onComplete != nil {
		if err := f.onComplete(*a.Age, *a.SleepHours); err != nil {
			return err
		}
	}
	f.answers = a
	f.submitted = true
	f.log.Debug("Lifestyle answers accepted", zap.Int("age", *a.Age), zap.Float64("sleep_hours", *a.SleepHours))
	return nil
}

func (f *LifestyleForm) Close() {
	f.closed = true
}

func (f *LifestyleForm) View() LifestyleView {
	return LifestyleView{
		Submitted:         f.submitted,
		Age:               f.answers.Age,
		SleepHours:        f.answers.SleepHours,
		FunctionalDecline: f.answers.FunctionalDecline,
	}
}
