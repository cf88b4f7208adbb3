package app

import (
	"github.com/yungbote/journey-tutor-backend/internal/http"
	"github.com/yungbote/journey-tutor-backend/internal/observability"
	"github.com/yungbote/journey-tutor-backend/internal/platform/logger"
)

func wireServer(log *logger.Logger, cfg Config, metrics *observability.Metrics, handlers Handlers, middleware Middleware) *http.Server {
	return http.NewServer(
		http.ServerConfig{
			Addr:              cfg.Addr(),
			ReadHeaderTimeout: cfg.ReadHeaderTimeout,
			ShutdownTimeout:   cfg.ShutdownTimeout,
		},
		http.RouterConfig{
			Log:                   log,
			Metrics:               metrics,
			CORSOrigins:           cfg.CORSOrigins,
			AuthMiddleware:        middleware.Auth,
			HealthHandler:         handlers.Health,
			RealtimeHandler:       handlers.Realtime,
			JourneyChatHandler:    handlers.JourneyChat,
			JourneyAttemptHandler: handlers.JourneyAttempt,
		},
	)
}
