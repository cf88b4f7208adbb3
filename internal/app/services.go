package app

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/yungbote/journey-tutor-backend/internal/platform/logger"
	"github.com/yungbote/journey-tutor-backend/internal/realtime"
	"github.com/yungbote/journey-tutor-backend/internal/services"
)

type Services struct {
	Auth      services.AuthService
	Prompts   *services.PromptBuilder
	Responder *services.AIResponder
	PromptLog *services.PromptLogSink
	Chat      services.JourneyChatService
	Attempts  services.JourneyAttemptService
	Catalog   services.JourneyCatalogService
}

func wireServices(db *gorm.DB, log *logger.Logger, cfg Config, reposet Repos, clients Clients, notifier *realtime.Notifier) (Services, error) {
	log.Info("Wiring services...")

	auth, err := services.NewAuthService(log, cfg.JWTSecretKey, cfg.JWTIssuer)
	if err != nil {
		return Services{}, fmt.Errorf("init auth service: %w", err)
	}

	prompts := services.NewPromptBuilder(log, reposet.Journey, reposet.Step, reposet.Attempt, reposet.StepResponse, reposet.Variable, cfg.PromptHistory)
	responder := services.NewAIResponder(log, clients.Model, cfg.Responder)
	sink := services.NewPromptLogSink(log, reposet.PromptLog, cfg.PromptLog)

	chat := services.NewJourneyChatService(
		log,
		reposet.Journey,
		reposet.Step,
		reposet.Attempt,
		reposet.StepResponse,
		prompts,
		responder,
		sink,
		clients.Locker,
		notifier,
	)
	attempts := services.NewJourneyAttemptService(
		log,
		reposet.Journey,
		reposet.Step,
		reposet.Attempt,
		reposet.StepResponse,
		reposet.Variable,
		prompts,
		responder,
		sink,
		clients.Locker,
		notifier,
	)
	catalog := services.NewJourneyCatalogService(db, log, reposet.Journey, reposet.Step)

	return Services{
		Auth:      auth,
		Prompts:   prompts,
		Responder: responder,
		PromptLog: sink,
		Chat:      chat,
		Attempts:  attempts,
		Catalog:   catalog,
	}, nil
}
