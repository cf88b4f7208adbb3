package services

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"

	"github.com/yungbote/journey-tutor-backend/internal/data/repos"
	types "github.com/yungbote/journey-tutor-backend/internal/domain"
	"github.com/yungbote/journey-tutor-backend/internal/observability"
	"github.com/yungbote/journey-tutor-backend/internal/platform/envutil"
	"github.com/yungbote/journey-tutor-backend/internal/platform/llm"
	"github.com/yungbote/journey-tutor-backend/internal/platform/logger"
)

// PromptLogEntry is one prompt/response exchange to audit.
type PromptLogEntry struct {
	AttemptID      uuid.UUID
	UserID         uuid.UUID
	JourneyID      uuid.UUID
	StepID         *uuid.UUID
	StepResponseID *uuid.UUID
	ActionType     string
	Prompt         string
	Temperature    float64
	Generated      GeneratedText
	Metadata       map[string]any
}

type PromptLogSinkConfig struct {
	Workers         int
	Buffer          int
	WriteTimeout    time.Duration
	InputCostPer1K  float64
	OutputCostPer1K float64
}

func PromptLogSinkConfigFromEnv() PromptLogSinkConfig {
	return PromptLogSinkConfig{
		Workers:         envutil.Int("PROMPT_LOG_WORKERS", 2),
		Buffer:          envutil.Int("PROMPT_LOG_BUFFER", 256),
		WriteTimeout:    envutil.Seconds("PROMPT_LOG_WRITE_TIMEOUT_SECONDS", 5*time.Second),
		InputCostPer1K:  envutil.Float("LLM_COST_INPUT_PER_1K", 0),
		OutputCostPer1K: envutil.Float("LLM_COST_OUTPUT_PER_1K", 0),
	}
}

// PromptLogSink writes audit rows off the request path. Failures are logged, never returned.
type PromptLogSink struct {
	log   *logger.Logger
	repo  repos.PromptLogRepo
	cfg   PromptLogSinkConfig
	queue chan *types.JourneyPromptLog
	group errgroup.Group

	mu     sync.RWMutex
	closed bool
}

func NewPromptLogSink(baseLog *logger.Logger, repo repos.PromptLogRepo, cfg PromptLogSinkConfig) *PromptLogSink {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Buffer < 0 {
		cfg.Buffer = 0
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	s := &PromptLogSink{
		log:   baseLog.With("service", "PromptLogSink"),
		repo:  repo,
		cfg:   cfg,
		queue: make(chan *types.JourneyPromptLog, cfg.Buffer),
	}
	for i := 0; i < cfg.Workers; i++ {
		s.group.Go(func() error {
			for row := range s.queue {
				s.persist(context.Background(), row)
			}
			return nil
		})
	}
	return s
}

// Write enqueues the entry, or persists it on the caller's goroutine when the queue is full or closed.
func (s *PromptLogSink) Write(ctx context.Context, entry PromptLogEntry) {
	if s == nil || s.repo == nil {
		return
	}
	row := s.buildRow(entry)

	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.closed {
		select {
		case s.queue <- row:
			return
		default:
		}
	}
	s.persist(context.WithoutCancel(ctx), row)
}

// Close stops accepting queued writes and waits for the workers to drain the queue.
func (s *PromptLogSink) Close() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.queue)
	}
	s.mu.Unlock()
	return s.group.Wait()
}

func (s *PromptLogSink) persist(ctx context.Context, row *types.JourneyPromptLog) {
	writeCtx, cancel := context.WithTimeout(ctx, s.cfg.WriteTimeout)
	defer cancel()
	backend := s.repo.Backend()
	if err := s.repo.Create(writeCtx, row); err != nil {
		observability.Current().IncPromptLogWrite(backend, "error")
		s.log.Warn("prompt log write failed",
			"backend", backend,
			"attempt_id", row.AttemptID,
			"action_type", row.ActionType,
			"error", err,
		)
		return
	}
	observability.Current().IncPromptLogWrite(backend, "ok")
}

func (s *PromptLogSink) buildRow(e PromptLogEntry) *types.JourneyPromptLog {
	g := e.Generated
	in, out := g.InputTokens, g.OutputTokens
	if !g.UsageReported {
		in = llm.EstimateTokens(e.Prompt)
		out = llm.EstimateTokens(g.Text)
	}
	row := &types.JourneyPromptLog{
		ID:               uuid.New(),
		AttemptID:        e.AttemptID,
		StepResponseID:   e.StepResponseID,
		UserID:           e.UserID,
		JourneyID:        e.JourneyID,
		StepID:           e.StepID,
		ActionType:       e.ActionType,
		Prompt:           e.Prompt,
		Response:         g.Text,
		Model:            g.Model,
		InputTokens:      in,
		OutputTokens:     out,
		TotalTokens:      in + out,
		EstimatedCostUSD: float64(in)/1000*s.cfg.InputCostPer1K + float64(out)/1000*s.cfg.OutputCostPer1K,
		ProcessingTimeMs: g.LatencyMs,
		Temperature:      e.Temperature,
		Fallback:         g.Fallback,
		Metadata:         datatypes.JSON([]byte(`{}`)),
		CreatedAt:        time.Now().UTC(),
	}
	if g.Err != nil {
		row.Error = g.Err.Error()
	}
	meta := map[string]any{"usage_reported": g.UsageReported}
	for k, v := range e.Metadata {
		meta[k] = v
	}
	if b, err := json.Marshal(meta); err == nil {
		row.Metadata = datatypes.JSON(b)
	} else {
		s.log.Warn("prompt log metadata not encodable", "error", err)
	}
	return row
}
