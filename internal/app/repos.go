package app

import (
	"gorm.io/gorm"

	"github.com/yungbote/journey-tutor-backend/internal/data/repos"
	"github.com/yungbote/journey-tutor-backend/internal/platform/logger"
)

type Repos struct {
	Journey      repos.JourneyRepo
	Step         repos.JourneyStepRepo
	Attempt      repos.JourneyAttemptRepo
	StepResponse repos.JourneyStepResponseRepo
	Variable     repos.UserProfileVariableRepo
	PromptLog    repos.PromptLogRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger, promptLog repos.PromptLogRepo) Repos {
	log.Info("Wiring repos...")
	if promptLog == nil {
		promptLog = repos.NewPromptLogRepo(db, log)
	}
	return Repos{
		Journey:      repos.NewJourneyRepo(db, log),
		Step:         repos.NewJourneyStepRepo(db, log),
		Attempt:      repos.NewJourneyAttemptRepo(db, log),
		StepResponse: repos.NewJourneyStepResponseRepo(db, log),
		Variable:     repos.NewUserProfileVariableRepo(db, log),
		PromptLog:    promptLog,
	}
}
