package services

import (
	types "github.com/yungbote/journey-tutor-backend/internal/domain"
)

type ProgressionDecision struct {
	Action    string
	Passed    bool
	Exhausted bool
}

// Advances reports whether the attempt leaves the current step.
func (d ProgressionDecision) Advances() bool {
	return d.Action == types.ActionNextStep || d.Action == types.ActionFinishJourney
}

// DecideProgression maps a rated submission onto retry_step, next_step or finish_journey.
// A step is left once it is passed or its attempts are used up; leaving the last step finishes the journey.
func DecideProgression(ratePass, maxAttempts, rating, attemptNumber int, isLast bool) ProgressionDecision {
	d := ProgressionDecision{
		Passed:    rating >= ratePass,
		Exhausted: attemptNumber >= maxAttempts,
	}
	switch {
	case (d.Passed || d.Exhausted) && isLast:
		d.Action = types.ActionFinishJourney
	case d.Passed || d.Exhausted:
		d.Action = types.ActionNextStep
	default:
		d.Action = types.ActionRetryStep
	}
	return d
}
