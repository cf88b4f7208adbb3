package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"
	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/journey-tutor-backend/internal/data/db"
	"github.com/yungbote/journey-tutor-backend/internal/data/repos"
	"github.com/yungbote/journey-tutor-backend/internal/platform/gemini"
	"github.com/yungbote/journey-tutor-backend/internal/platform/llm"
	"github.com/yungbote/journey-tutor-backend/internal/platform/locks"
	"github.com/yungbote/journey-tutor-backend/internal/platform/logger"
	"github.com/yungbote/journey-tutor-backend/internal/platform/openai"
	"github.com/yungbote/journey-tutor-backend/internal/platform/paramstore"
	"github.com/yungbote/journey-tutor-backend/internal/realtime/bus"
)

type Clients struct {
	Postgres  *db.PostgresService
	Redis     goredis.UniversalClient
	SSEBus    bus.Bus
	Locker    locks.Locker
	Model     llm.Model
	PromptLog repos.PromptLogRepo
}

func wireClients(ctx context.Context, log *logger.Logger, cfg Config) (Clients, error) {
	log.Info("Wiring clients...")
	var out Clients

	// Database
	pg, err := db.NewPostgresService(log, cfg.DB)
	if err != nil {
		return out, fmt.Errorf("init database: %w", err)
	}
	if err := db.AutoMigrateAll(pg.DB()); err != nil {
		_ = pg.Close()
		return out, fmt.Errorf("database automigrate: %w", err)
	}
	out.Postgres = pg

	// Redis: distributed attempt locks and cross-instance notifications
	if strings.TrimSpace(cfg.RedisAddr) != "" {
		rdb := goredis.NewClient(&goredis.Options{
			Addr:        cfg.RedisAddr,
			DialTimeout: 5 * time.Second,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			_ = rdb.Close()
			out.Close()
			return Clients{}, fmt.Errorf("redis ping: %w", err)
		}
		out.Redis = rdb
		b, err := bus.NewRedisBus(log, rdb, cfg.RedisChannel)
		if err != nil {
			out.Close()
			return Clients{}, fmt.Errorf("init redis SSE bus: %w", err)
		}
		out.SSEBus = b
		out.Locker = locks.NewRedisLocker(rdb, "journey-tutor:lock:", cfg.LockTTL)
	} else {
		log.Warn("REDIS_ADDR not set; using in-process locks and notifications")
		out.Locker = locks.NewLocalLocker()
	}

	// AWS is only loaded when something asks for it
	var (
		params paramstore.Getter
		ddb    *awsdynamodb.Client
	)
	needsSSM := strings.TrimSpace(cfg.OpenAIKeyParam) != "" && strings.TrimSpace(cfg.OpenAI.APIKey) == ""
	needsDynamo := cfg.PromptLogBackend == repos.PromptLogBackendDynamoDB
	if needsSSM || needsDynamo {
		var opts []func(*awsconfig.LoadOptions) error
		if cfg.AWSRegion != "" {
			opts = append(opts, awsconfig.WithRegion(cfg.AWSRegion))
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
		if err != nil {
			out.Close()
			return Clients{}, fmt.Errorf("load aws config: %w", err)
		}
		if needsSSM {
			ps, err := paramstore.New(awsssm.NewFromConfig(awsCfg))
			if err != nil {
				out.Close()
				return Clients{}, fmt.Errorf("init parameter store: %w", err)
			}
			params = ps
		}
		if needsDynamo {
			ddb = awsdynamodb.NewFromConfig(awsCfg)
		}
	}

	// Prompt log backend
	switch cfg.PromptLogBackend {
	case repos.PromptLogBackendDynamoDB:
		r, err := repos.NewDynamoPromptLogRepo(ddb, cfg.PromptLogTable, cfg.PromptLogTTL, log)
		if err != nil {
			out.Close()
			return Clients{}, fmt.Errorf("init dynamodb prompt log: %w", err)
		}
		out.PromptLog = r
	case "", repos.PromptLogBackendPostgres:
		out.PromptLog = repos.NewPromptLogRepo(pg.DB(), log)
	default:
		out.Close()
		return Clients{}, fmt.Errorf("unsupported PROMPT_LOG_BACKEND %q", cfg.PromptLogBackend)
	}

	// Language model
	model, err := wireModel(ctx, log, cfg, params)
	if err != nil {
		out.Close()
		return Clients{}, err
	}
	out.Model = model

	return out, nil
}

// wireModel returns a nil model when no credentials are configured; every turn then uses fallback text.
func wireModel(ctx context.Context, log *logger.Logger, cfg Config, params paramstore.Getter) (llm.Model, error) {
	switch cfg.LLMProvider {
	case ProviderGemini:
		if cfg.Gemini.APIKey == "" && cfg.Gemini.Project == "" {
			log.Warn("Gemini credentials not set; AI responses will use fallback text")
			return nil, nil
		}
		m, err := gemini.NewClient(ctx, log, cfg.Gemini)
		if err != nil {
			return nil, fmt.Errorf("init gemini client: %w", err)
		}
		return m, nil
	case "", ProviderOpenAI:
		key, err := paramstore.Resolve(ctx, params, cfg.OpenAI.APIKey, cfg.OpenAIKeyParam)
		if err != nil {
			return nil, fmt.Errorf("resolve openai api key: %w", err)
		}
		if key == "" {
			log.Warn("OPENAI_API_KEY not set; AI responses will use fallback text")
			return nil, nil
		}
		oc := cfg.OpenAI
		oc.APIKey = key
		m, err := openai.NewClient(log, oc)
		if err != nil {
			return nil, fmt.Errorf("init openai client: %w", err)
		}
		return m, nil
	default:
		return nil, fmt.Errorf("unsupported LLM_PROVIDER %q", cfg.LLMProvider)
	}
}

func (c Clients) Close() {
	if c.SSEBus != nil {
		_ = c.SSEBus.Close()
	}
	if c.Redis != nil {
		_ = c.Redis.Close()
	}
	if c.Postgres != nil {
		_ = c.Postgres.Close()
	}
}
