package gemini

import (
	"context"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/yungbote/journey-tutor-backend/internal/observability"
	"github.com/yungbote/journey-tutor-backend/internal/platform/envutil"
	"github.com/yungbote/journey-tutor-backend/internal/platform/llm"
	"github.com/yungbote/journey-tutor-backend/internal/platform/logger"
)

type Config struct {
	APIKey   string
	Project  string
	Location string
	Model    string
}

// ConfigFromEnv uses Vertex AI when GEMINI_PROJECT is set, the Gemini API otherwise.
func ConfigFromEnv() Config {
	return Config{
		APIKey:   envutil.String("GEMINI_API_KEY", ""),
		Project:  envutil.String("GEMINI_PROJECT", ""),
		Location: envutil.String("GEMINI_LOCATION", "us-central1"),
		Model:    envutil.String("GEMINI_MODEL", "gemini-2.5-flash"),
	}
}

type client struct {
	log    *logger.Logger
	models *genai.Models
	model  string
}

func NewClient(ctx context.Context, log *logger.Logger, cfg Config) (llm.Model, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	cc := &genai.ClientConfig{}
	switch {
	case cfg.Project != "":
		cc.Backend = genai.BackendVertexAI
		cc.Project = cfg.Project
		cc.Location = cfg.Location
	case cfg.APIKey != "":
		cc.Backend = genai.BackendGeminiAPI
		cc.APIKey = cfg.APIKey
	default:
		return nil, fmt.Errorf("missing GEMINI_API_KEY or GEMINI_PROJECT")
	}
	gc, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = "gemini-2.5-flash"
	}
	return &client{
		log:    log.With("service", "GeminiClient"),
		models: gc.Models,
		model:  model,
	}, nil
}

func (c *client) Name() string { return "gemini" }

func (c *client) Complete(ctx context.Context, req llm.Request) (llm.Result, error) {
	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = c.model
	}
	temp := float32(req.Temperature)
	cfg := &genai.GenerateContentConfig{Temperature: &temp}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}

	start := time.Now()
	res, err := c.models.GenerateContent(ctx, model, genai.Text(req.Prompt), cfg)
	if err != nil {
		observe(model, "error", start, 0, 0)
		return llm.Result{}, fmt.Errorf("gemini generate content: %w", err)
	}
	out, err := resultFromResponse(res, model)
	if err != nil {
		observe(model, "empty", start, 0, 0)
		return llm.Result{}, err
	}
	observe(model, "200", start, out.InputTokens, out.OutputTokens)
	return out, nil
}

func resultFromResponse(res *genai.GenerateContentResponse, model string) (llm.Result, error) {
	if res == nil {
		return llm.Result{}, fmt.Errorf("gemini returned no response")
	}
	text := res.Text()
	if strings.TrimSpace(text) == "" {
		return llm.Result{}, fmt.Errorf("gemini returned empty text")
	}
	out := llm.Result{Text: text, Model: model}
	if res.ModelVersion != "" {
		out.Model = res.ModelVersion
	}
	if u := res.UsageMetadata; u != nil {
		out.InputTokens = int(u.PromptTokenCount)
		out.OutputTokens = int(u.CandidatesTokenCount)
		out.UsageReported = out.InputTokens > 0 || out.OutputTokens > 0
	}
	return out, nil
}

func observe(model, status string, start time.Time, in, out int) {
	if metrics := observability.Current(); metrics != nil {
		metrics.ObserveLLMRequest(model, "generateContent", status, time.Since(start), in, out)
	}
}
