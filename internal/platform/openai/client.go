package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/yungbote/journey-tutor-backend/internal/observability"
	"github.com/yungbote/journey-tutor-backend/internal/platform/envutil"
	"github.com/yungbote/journey-tutor-backend/internal/platform/httpx"
	"github.com/yungbote/journey-tutor-backend/internal/platform/llm"
	"github.com/yungbote/journey-tutor-backend/internal/platform/logger"
)

const responsesPath = "/v1/responses"

// Config is read from OPENAI_* env vars by ConfigFromEnv; APIKey may instead come from a secret store.
type Config struct {
	APIKey       string
	BaseURL      string
	Model        string
	Timeout      time.Duration
	MaxRetries   int
	NoTempModels string
}

func ConfigFromEnv() Config {
	return Config{
		APIKey:       envutil.String("OPENAI_API_KEY", ""),
		BaseURL:      envutil.String("OPENAI_BASE_URL", "https://api.openai.com"),
		Model:        envutil.String("OPENAI_MODEL", "gpt-4o-mini"),
		Timeout:      envutil.Seconds("OPENAI_TIMEOUT_SECONDS", 180*time.Second),
		MaxRetries:   envutil.Int("OPENAI_MAX_RETRIES", 2),
		NoTempModels: envutil.String("OPENAI_NO_TEMPERATURE_MODELS", ""),
	}
}

type client struct {
	log        *logger.Logger
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	maxRetries int

	// Static denylist from env plus models that rejected temperature at runtime.
	noTempModels   map[string]bool
	noTempPrefixes []string
	noTempMu       sync.RWMutex
	noTempSeen     map[string]time.Time
	noTempTTL      time.Duration
}

func NewClient(log *logger.Logger, cfg Config) (llm.Model, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("missing OPENAI_API_KEY")
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = "https://api.openai.com"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 180 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	noTempModels, noTempPrefixes := parseNoTempModelRules(cfg.NoTempModels)
	return &client{
		log:            log.With("service", "OpenAIClient"),
		baseURL:        baseURL,
		apiKey:         strings.TrimSpace(cfg.APIKey),
		model:          strings.TrimSpace(cfg.Model),
		httpClient:     &http.Client{Timeout: cfg.Timeout},
		maxRetries:     cfg.MaxRetries,
		noTempModels:   noTempModels,
		noTempPrefixes: noTempPrefixes,
		noTempSeen:     map[string]time.Time{},
		noTempTTL:      24 * time.Hour,
	}, nil
}

func (c *client) Name() string { return "openai" }

type inputMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responsesRequest struct {
	Model           string         `json:"model"`
	Input           []inputMessage `json:"input"`
	Temperature     *float64       `json:"temperature,omitempty"`
	MaxOutputTokens int            `json:"max_output_tokens,omitempty"`
}

type responsesResponse struct {
	Model  string `json:"model"`
	Output []struct {
		Type    string `json:"type"`
		Role    string `json:"role,omitempty"`
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text,omitempty"`
		} `json:"content,omitempty"`
	} `json:"output"`
	Refusal string          `json:"refusal,omitempty"`
	Usage   *responsesUsage `json:"usage,omitempty"`
}

type responsesUsage struct {
	InputTokens      int `json:"input_tokens"`
	OutputTokens     int `json:"output_tokens"`
	TotalTokens      int `json:"total_tokens"`
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

func (c *client) Complete(ctx context.Context, in llm.Request) (llm.Result, error) {
	model := strings.TrimSpace(in.Model)
	if model == "" {
		model = c.model
	}
	temp := in.Temperature
	req := &responsesRequest{
		Model:           model,
		Input:           []inputMessage{{Role: "user", Content: in.Prompt}},
		MaxOutputTokens: in.MaxTokens,
	}
	if !c.modelIsNoTemp(model) {
		req.Temperature = &temp
	}

	var resp responsesResponse
	if err := c.doWithTempFallback(ctx, req, &resp); err != nil {
		return llm.Result{}, err
	}
	if resp.Refusal != "" {
		return llm.Result{}, fmt.Errorf("model refused: %s", resp.Refusal)
	}
	text := extractOutputText(resp)
	if strings.TrimSpace(text) == "" {
		return llm.Result{}, fmt.Errorf("no output_text found in response")
	}

	out := llm.Result{Text: text, Model: resp.Model}
	if out.Model == "" {
		out.Model = model
	}
	if resp.Usage != nil {
		out.InputTokens, out.OutputTokens = usageTokens(*resp.Usage)
		out.UsageReported = out.InputTokens > 0 || out.OutputTokens > 0
	}
	return out, nil
}

func extractOutputText(resp responsesResponse) string {
	var out strings.Builder
	for _, item := range resp.Output {
		if item.Type != "message" || item.Role != "assistant" {
			continue
		}
		for _, part := range item.Content {
			if part.Type == "output_text" && part.Text != "" {
				out.WriteString(part.Text)
			}
		}
	}
	return out.String()
}

func usageTokens(u responsesUsage) (int, int) {
	in, out := u.InputTokens, u.OutputTokens
	if in == 0 && out == 0 {
		in, out = u.PromptTokens, u.CompletionTokens
	}
	if in == 0 && out == 0 && u.TotalTokens > 0 {
		in = u.TotalTokens
	}
	return in, out
}

type openAIHTTPError struct {
	StatusCode int
	Body       string
}

func (e *openAIHTTPError) Error() string {
	return fmt.Sprintf("openai http %d: %s", e.StatusCode, e.Body)
}

func (e *openAIHTTPError) HTTPStatusCode() int {
	if e == nil {
		return 0
	}
	return e.StatusCode
}

func (c *client) doOnce(ctx context.Context, body any) (*http.Response, []byte, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return nil, nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+responsesPath, &buf)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, err
	}
	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return resp, nil, readErr
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp, raw, &openAIHTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	return resp, raw, nil
}

func (c *client) do(ctx context.Context, req *responsesRequest, out *responsesResponse) error {
	backoff := 500 * time.Millisecond
	start := time.Now()

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		resp, raw, err := c.doOnce(ctx, req)
		if err == nil {
			if uErr := json.Unmarshal(raw, out); uErr != nil {
				observeLLM(req.Model, "decode_error", start, 0, 0)
				return fmt.Errorf("openai decode error: %w", uErr)
			}
			in, outTok := 0, 0
			if out.Usage != nil {
				in, outTok = usageTokens(*out.Usage)
			}
			observeLLM(req.Model, statusFromResp(resp), start, in, outTok)
			return nil
		}
		if !httpx.IsRetryableError(err) || attempt == c.maxRetries {
			observeLLM(req.Model, statusFromRespErr(resp, err), start, 0, 0)
			return err
		}

		sleepFor := httpx.JitterSleep(httpx.RetryAfterDuration(resp, backoff, 10*time.Second))
		c.log.Warn("OpenAI request retrying",
			"attempt", attempt+1,
			"max_retries", c.maxRetries,
			"sleep", sleepFor.String(),
			"error", err.Error(),
		)
		if err := httpx.Sleep(ctx, sleepFor); err != nil {
			return err
		}
		backoff *= 2
	}
	return fmt.Errorf("unreachable retry loop")
}

// doWithTempFallback retries exactly once without temperature if the model rejects it.
func (c *client) doWithTempFallback(ctx context.Context, req *responsesRequest, out *responsesResponse) error {
	err := c.do(ctx, req, out)
	if err == nil || req.Temperature == nil || !isUnsupportedTemperatureParam(err) {
		return err
	}
	c.noteNoTempModel(req.Model)
	req.Temperature = nil
	return c.do(ctx, req, out)
}

func observeLLM(model, status string, start time.Time, in, out int) {
	if metrics := observability.Current(); metrics != nil {
		metrics.ObserveLLMRequest(model, responsesPath, status, time.Since(start), in, out)
	}
}

func statusFromResp(resp *http.Response) string {
	if resp == nil {
		return "unknown"
	}
	return strconv.Itoa(resp.StatusCode)
}

func statusFromRespErr(resp *http.Response, err error) string {
	if resp != nil {
		return strconv.Itoa(resp.StatusCode)
	}
	switch {
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	}
	if code := httpx.StatusOf(err); code != 0 {
		return strconv.Itoa(code)
	}
	return "error"
}

func normalizeModelKey(m string) string {
	return strings.ToLower(strings.TrimSpace(m))
}

// OPENAI_NO_TEMPERATURE_MODELS: comma-separated list, "*" suffix for prefix match, e.g. "o1-*, gpt-5".
func parseNoTempModelRules(raw string) (map[string]bool, []string) {
	m := map[string]bool{}
	var prefixes []string
	for _, part := range strings.Split(raw, ",") {
		s := normalizeModelKey(part)
		if s == "" {
			continue
		}
		if strings.HasSuffix(s, "*") {
			if p := strings.TrimRight(strings.TrimSuffix(s, "*"), "-_./: "); p != "" {
				prefixes = append(prefixes, p)
			}
			continue
		}
		m[s] = true
	}
	return m, prefixes
}

func (c *client) modelIsNoTemp(model string) bool {
	m := normalizeModelKey(model)
	if m == "" {
		return false
	}
	if c.noTempModels[m] {
		return true
	}
	for _, p := range c.noTempPrefixes {
		if strings.HasPrefix(m, p) {
			return true
		}
	}
	c.noTempMu.RLock()
	ts, ok := c.noTempSeen[m]
	c.noTempMu.RUnlock()
	return ok && time.Since(ts) < c.noTempTTL
}

func (c *client) noteNoTempModel(model string) {
	m := normalizeModelKey(model)
	if m == "" {
		return
	}
	c.noTempMu.Lock()
	c.noTempSeen[m] = time.Now().UTC()
	c.noTempMu.Unlock()
}

func isUnsupportedTemperatureParam(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	if !strings.Contains(msg, "temperature") {
		return false
	}
	for _, frag := range []string{
		"unsupported parameter",
		"unknown parameter",
		"unrecognized parameter",
		"not supported",
		"does not support",
		"only the default",
		"unsupported_value",
	} {
		if strings.Contains(msg, frag) {
			return true
		}
	}
	return false
}
