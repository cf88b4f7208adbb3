package repos

import (
	"github.com/yungbote/journey-tutor-backend/internal/data/repos/journey"
)

type JourneyRepo = journey.JourneyRepo
type JourneyStepRepo = journey.JourneyStepRepo
type JourneyAttemptRepo = journey.JourneyAttemptRepo
type JourneyStepResponseRepo = journey.JourneyStepResponseRepo
type UserProfileVariableRepo = journey.UserProfileVariableRepo
type PromptLogRepo = journey.PromptLogRepo

var NewJourneyRepo = journey.NewJourneyRepo
var NewJourneyStepRepo = journey.NewJourneyStepRepo
var NewJourneyAttemptRepo = journey.NewJourneyAttemptRepo
var NewJourneyStepResponseRepo = journey.NewJourneyStepResponseRepo
var NewUserProfileVariableRepo = journey.NewUserProfileVariableRepo
var NewPromptLogRepo = journey.NewPromptLogRepo
var NewDynamoPromptLogRepo = journey.NewDynamoPromptLogRepo

const (
	PromptLogBackendPostgres = journey.PromptLogBackendPostgres
	PromptLogBackendDynamoDB = journey.PromptLogBackendDynamoDB
)
