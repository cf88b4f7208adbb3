package llm

import (
	"context"
	"math"
	"strings"
	"unicode/utf8"
)

// Request is a single-prompt completion. Zero Model means the backend default,
// zero MaxTokens means no explicit cap.
type Request struct {
	Prompt      string
	Temperature float64
	Model       string
	MaxTokens   int
}

type Result struct {
	Text         string
	Model        string
	InputTokens  int
	OutputTokens int
	// UsageReported is false when the backend returned no usage block.
	UsageReported bool
}

func (r Result) TotalTokens() int { return r.InputTokens + r.OutputTokens }

// Model is the language-model backend the tutoring engine depends on.
type Model interface {
	Complete(ctx context.Context, req Request) (Result, error)
	Name() string
}

// EstimateTokens approximates one token per four characters.
func EstimateTokens(text string) int {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0
	}
	return int(math.Ceil(float64(utf8.RuneCountInString(text)) / 4.0))
}
