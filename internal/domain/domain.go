package domain

import (
	"github.com/yungbote/journey-tutor-backend/internal/domain/journey"
)

const (
	JourneyStatusDraft     = journey.JourneyStatusDraft
	JourneyStatusPublished = journey.JourneyStatusPublished

	AttemptStatusNotStarted = journey.AttemptStatusNotStarted
	AttemptStatusInProgress = journey.AttemptStatusInProgress
	AttemptStatusCompleted  = journey.AttemptStatusCompleted
	AttemptStatusAbandoned  = journey.AttemptStatusAbandoned

	AttemptTypeAttempt = journey.AttemptTypeAttempt
	AttemptTypePreview = journey.AttemptTypePreview

	InteractionInitial = journey.InteractionInitial
	InteractionChat    = journey.InteractionChat

	ActionRetryStep     = journey.ActionRetryStep
	ActionNextStep      = journey.ActionNextStep
	ActionFinishJourney = journey.ActionFinishJourney

	PromptActionStartChat        = journey.PromptActionStartChat
	PromptActionSubmitChat       = journey.PromptActionSubmitChat
	PromptActionEvaluateRating   = journey.PromptActionEvaluateRating
	PromptActionGenerateResponse = journey.PromptActionGenerateResponse
	PromptActionSubmitReport     = journey.PromptActionSubmitReport
)

type Journey = journey.Journey
type JourneyStep = journey.JourneyStep
type JourneyAttempt = journey.JourneyAttempt
type JourneyStepResponse = journey.JourneyStepResponse
type JourneyPromptLog = journey.JourneyPromptLog
type UserProfileVariable = journey.UserProfileVariable
type Progress = journey.Progress

var DecodeProgress = journey.DecodeProgress
