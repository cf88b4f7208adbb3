package app

import (
	"context"

	"gorm.io/gorm"

	httpH "github.com/yungbote/journey-tutor-backend/internal/http/handlers"
	"github.com/yungbote/journey-tutor-backend/internal/platform/logger"
	"github.com/yungbote/journey-tutor-backend/internal/realtime"
)

type Handlers struct {
	Health         *httpH.HealthHandler
	Realtime       *httpH.RealtimeHandler
	JourneyChat    *httpH.JourneyChatHandler
	JourneyAttempt *httpH.JourneyAttemptHandler
}

func wireHandlers(log *logger.Logger, cfg Config, db *gorm.DB, services Services, sseHub *realtime.SSEHub) Handlers {
	log.Info("Wiring handlers...")
	ping := func(ctx context.Context) error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.PingContext(ctx)
	}
	return Handlers{
		Health:         httpH.NewHealthHandler(ping),
		Realtime:       httpH.NewRealtimeHandler(log, sseHub),
		JourneyChat:    httpH.NewJourneyChatHandler(log, services.Chat, cfg.Stream),
		JourneyAttempt: httpH.NewJourneyAttemptHandler(services.Attempts),
	}
}
