package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/yungbote/journey-tutor-backend/internal/observability"
	"github.com/yungbote/journey-tutor-backend/internal/platform/envutil"
	"github.com/yungbote/journey-tutor-backend/internal/platform/llm"
	"github.com/yungbote/journey-tutor-backend/internal/platform/logger"
)

const (
	TemperatureOpening  = 0.8
	TemperatureRating   = 0.3
	TemperatureResponse = 0.7
	TemperatureReport   = 0.5
)

const (
	fallbackRatingText   = "3"
	fallbackResponseText = "Thank you for your answer. I could not put together detailed feedback just now, " +
		"but keep going: look back over the step, think about what it is asking of you, and share your next thoughts when you are ready."
)

// GeneratedText is the outcome of one model call. Err is informational; Text is always usable.
type GeneratedText struct {
	Text          string
	Model         string
	InputTokens   int
	OutputTokens  int
	UsageReported bool
	LatencyMs     int64
	Fallback      bool
	Err           error
}

type AIResponderConfig struct {
	Timeout   time.Duration
	Model     string
	MaxTokens int
}

func AIResponderConfigFromEnv() AIResponderConfig {
	return AIResponderConfig{
		Timeout:   envutil.Seconds("AI_RESPONSE_TIMEOUT_SECONDS", 60*time.Second),
		Model:     strings.TrimSpace(envutil.String("AI_RESPONSE_MODEL", "")),
		MaxTokens: envutil.Int("AI_RESPONSE_MAX_TOKENS", 0),
	}
}

type AIResponder struct {
	log   *logger.Logger
	model llm.Model
	cfg   AIResponderConfig
}

func NewAIResponder(baseLog *logger.Logger, model llm.Model, cfg AIResponderConfig) *AIResponder {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &AIResponder{
		log:   baseLog.With("service", "AIResponder"),
		model: model,
		cfg:   cfg,
	}
}

// IsRatingPrompt reports whether prompt ends with the rating instruction.
// Learner input is embedded mid-prompt, so only the tail is checked.
func IsRatingPrompt(prompt string) bool {
	return strings.HasSuffix(strings.TrimSpace(prompt), RatingInstruction)
}

// Generate calls the model with a bounded timeout. It never fails: any error yields the fallback text
// for kind, which is "3" only for PromptKindRating.
func (r *AIResponder) Generate(ctx context.Context, kind PromptKind, prompt string, temperature float64) (out GeneratedText) {
	start := time.Now()
	out.Model = r.modelName()
	defer func() {
		if rec := recover(); rec != nil {
			out = r.fallback(kind, out.Model, fmt.Errorf("model panic: %v", rec))
		}
		out.LatencyMs = time.Since(start).Milliseconds()
	}()

	if r.model == nil {
		return r.fallback(kind, out.Model, errors.New("no language model configured"))
	}

	callCtx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	res, err := r.model.Complete(callCtx, llm.Request{
		Prompt:      prompt,
		Temperature: temperature,
		Model:       r.cfg.Model,
		MaxTokens:   r.cfg.MaxTokens,
	})
	if err != nil {
		return r.fallback(kind, out.Model, err)
	}
	text := strings.TrimSpace(res.Text)
	if text == "" {
		return r.fallback(kind, out.Model, errors.New("model returned empty text"))
	}
	if res.Model != "" {
		out.Model = res.Model
	}
	out.Text = text
	out.InputTokens = res.InputTokens
	out.OutputTokens = res.OutputTokens
	out.UsageReported = res.UsageReported
	return out
}

func (r *AIResponder) fallback(kind PromptKind, model string, err error) GeneratedText {
	label := "response"
	text := fallbackResponseText
	if kind == PromptKindRating {
		label = "rating"
		text = fallbackRatingText
	}
	r.log.Warn("model call failed; using fallback", "kind", label, "prompt_kind", string(kind), "model", model, "error", err)
	observability.Current().IncFallback(label)
	return GeneratedText{Text: text, Model: model, Fallback: true, Err: err}
}

func (r *AIResponder) modelName() string {
	if r.cfg.Model != "" {
		return r.cfg.Model
	}
	if r.model != nil {
		return r.model.Name()
	}
	return "none"
}
