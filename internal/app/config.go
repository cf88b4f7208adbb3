package app

import (
	"strings"
	"time"

	"github.com/yungbote/journey-tutor-backend/internal/data/db"
	"github.com/yungbote/journey-tutor-backend/internal/data/repos"
	"github.com/yungbote/journey-tutor-backend/internal/platform/envutil"
	"github.com/yungbote/journey-tutor-backend/internal/platform/gemini"
	"github.com/yungbote/journey-tutor-backend/internal/platform/logger"
	"github.com/yungbote/journey-tutor-backend/internal/platform/openai"
	"github.com/yungbote/journey-tutor-backend/internal/realtime"
	"github.com/yungbote/journey-tutor-backend/internal/services"
)

const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

const lockTTLSlack = 30 * time.Second

type Config struct {
	Env         string
	Port        string
	CORSOrigins []string

	JWTSecretKey string
	JWTIssuer    string

	DB db.Config

	LLMProvider       string
	OpenAI            openai.Config
	OpenAIKeyParam    string
	Gemini            gemini.Config
	Responder         services.AIResponderConfig
	PromptHistory     int
	Stream            realtime.StreamConfig
	PromptLog         services.PromptLogSinkConfig
	PromptLogBackend  string
	PromptLogTable    string
	PromptLogTTL      time.Duration
	AWSRegion         string
	RedisAddr         string
	RedisChannel      string
	LockTTL           time.Duration
	MetricsAddr       string
	ShutdownTimeout   time.Duration
	ReadHeaderTimeout time.Duration
}

func LoadConfig(log *logger.Logger) Config {
	cfg := Config{
		Env:          envutil.String("APP_ENV", "development"),
		Port:         envutil.String("PORT", "8080"),
		CORSOrigins:  splitList(envutil.String("CORS_ALLOWED_ORIGINS", "")),
		JWTSecretKey: envutil.String("JWT_SECRET_KEY", ""),
		JWTIssuer:    envutil.String("JWT_ISSUER", ""),

		DB: db.ConfigFromEnv(),

		LLMProvider:    strings.ToLower(envutil.String("LLM_PROVIDER", ProviderOpenAI)),
		OpenAI:         openai.ConfigFromEnv(),
		OpenAIKeyParam: envutil.String("OPENAI_API_KEY_PARAM", ""),
		Gemini:         gemini.ConfigFromEnv(),
		Responder:      services.AIResponderConfigFromEnv(),
		PromptHistory:  envutil.Int("PROMPT_HISTORY_LIMIT", 6),
		Stream: realtime.StreamConfig{
			ChunkSize:  envutil.Int("STREAM_CHUNK_SIZE", 24),
			ChunkDelay: envutil.Millis("STREAM_CHUNK_DELAY_MS", 25*time.Millisecond),
		},
		PromptLog:         services.PromptLogSinkConfigFromEnv(),
		PromptLogBackend:  strings.ToLower(envutil.String("PROMPT_LOG_BACKEND", repos.PromptLogBackendPostgres)),
		PromptLogTable:    envutil.String("PROMPT_LOG_TABLE", "journey_prompt_logs"),
		PromptLogTTL:      envutil.Seconds("PROMPT_LOG_TTL_SECONDS", 0),
		AWSRegion:         envutil.String("AWS_REGION", ""),
		RedisAddr:         envutil.String("REDIS_ADDR", ""),
		RedisChannel:      envutil.String("REDIS_CHANNEL", "journey-sse"),
		LockTTL:           envutil.Seconds("LOCK_TTL_SECONDS", 300*time.Second),
		MetricsAddr:       envutil.String("METRICS_ADDR", ":9090"),
		ShutdownTimeout:   envutil.Seconds("SHUTDOWN_TIMEOUT_SECONDS", 15*time.Second),
		ReadHeaderTimeout: envutil.Seconds("READ_HEADER_TIMEOUT_SECONDS", 5*time.Second),
	}
	if cfg.JWTSecretKey == "" && log != nil {
		log.Warn("JWT_SECRET_KEY is not set")
	}
	// A submit makes two model calls under the attempt lock.
	if floor := 2*cfg.Responder.Timeout + lockTTLSlack; cfg.LockTTL < floor {
		if log != nil {
			log.Warn("LOCK_TTL_SECONDS shorter than a turn; raising it", "configured", cfg.LockTTL, "using", floor)
		}
		cfg.LockTTL = floor
	}
	return cfg
}

func (c Config) Addr() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return ":" + c.Port
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
