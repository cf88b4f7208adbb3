package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/journey-tutor-backend/internal/http/handlers"
	httpMW "github.com/yungbote/journey-tutor-backend/internal/http/middleware"
	"github.com/yungbote/journey-tutor-backend/internal/observability"
	"github.com/yungbote/journey-tutor-backend/internal/platform/logger"
)

type RouterConfig struct {
	Log            *logger.Logger
	Metrics        *observability.Metrics
	CORSOrigins    []string
	ServiceName    string
	AuthMiddleware *httpMW.AuthMiddleware

	HealthHandler         *httpH.HealthHandler
	RealtimeHandler       *httpH.RealtimeHandler
	JourneyChatHandler    *httpH.JourneyChatHandler
	JourneyAttemptHandler *httpH.JourneyAttemptHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "journey-tutor"
	}
	r.Use(otelgin.Middleware(serviceName))
	r.Use(httpMW.AttachTraceContext())
	if cfg.Log != nil {
		r.Use(httpMW.RequestLogger(cfg.Log))
	}
	r.Use(httpMW.Metrics(cfg.Metrics))
	r.Use(httpMW.CORS(cfg.CORSOrigins))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}

	protected := r.Group("/api")
	{
		if cfg.AuthMiddleware != nil {
			protected.Use(cfg.AuthMiddleware.RequireAuth())
		}

		// Realtime (SSE)
		if cfg.RealtimeHandler != nil {
			protected.GET("/sse/stream", cfg.RealtimeHandler.SSEStream)
		}

		// Journeys
		if cfg.JourneyAttemptHandler != nil {
			protected.GET("/journeys/:id/steps", cfg.JourneyAttemptHandler.ListSteps)
			protected.POST("/journeys/:id/attempts", cfg.JourneyAttemptHandler.StartAttempt)
			protected.POST("/journeys/:id/preview", cfg.JourneyAttemptHandler.StartPreview)
			protected.GET("/journey-attempts/:id", cfg.JourneyAttemptHandler.GetAttempt)
			protected.POST("/journey-attempts/:id/abandon", cfg.JourneyAttemptHandler.Abandon)
			protected.POST("/journey-attempts/:id/report", cfg.JourneyAttemptHandler.Report)
			protected.PUT("/me/variables", cfg.JourneyAttemptHandler.PutVariables)
		}

		// Conversation turns (streamed)
		if cfg.JourneyChatHandler != nil {
			protected.POST("/journey-attempts/:id/chat", cfg.JourneyChatHandler.Chat)
		}
	}

	return r
}
