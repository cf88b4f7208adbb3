package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/yungbote/journey-tutor-backend/internal/data/repos/testutil"
	types "github.com/yungbote/journey-tutor-backend/internal/domain"
)

func TestPromptLogSinkDrainsOnClose(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	repo := &memoryPromptLogRepo{}
	sink := NewPromptLogSink(testutil.Logger(t), repo, PromptLogSinkConfig{Workers: 3, Buffer: 4, InputCostPer1K: 1, OutputCostPer1K: 2})
	attemptID := uuid.New()
	for i := 0; i < 25; i++ {
		sink.Write(context.Background(), PromptLogEntry{
			AttemptID:  attemptID,
			UserID:     uuid.New(),
			JourneyID:  uuid.New(),
			ActionType: types.PromptActionGenerateResponse,
			Prompt:     "prompt",
			Generated:  GeneratedText{Text: "reply", InputTokens: 1000, OutputTokens: 500, UsageReported: true, LatencyMs: 12},
		})
	}
	require.NoError(t, sink.Close())
	require.NoError(t, sink.Close())

	rows, err := repo.ListByAttempt(context.Background(), attemptID)
	require.NoError(t, err)
	require.Len(t, rows, 25)
	require.Equal(t, 1500, rows[0].TotalTokens)
	require.InDelta(t, 2.0, rows[0].EstimatedCostUSD, 1e-9)
	require.Equal(t, int64(12), rows[0].ProcessingTimeMs)

	// After Close writes still land, synchronously.
	sink.Write(context.Background(), PromptLogEntry{AttemptID: attemptID, ActionType: types.PromptActionStartChat})
	require.Equal(t, 26, repo.Len())
}

func TestPromptLogSinkEstimatesTokensWithoutUsage(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	repo := &memoryPromptLogRepo{}
	sink := NewPromptLogSink(testutil.Logger(t), repo, PromptLogSinkConfig{Workers: 1, Buffer: 1})
	stepID := uuid.New()
	sink.Write(context.Background(), PromptLogEntry{
		AttemptID:   uuid.New(),
		StepID:      &stepID,
		ActionType:  types.PromptActionEvaluateRating,
		Prompt:      "héllo wörld!",
		Temperature: TemperatureRating,
		Generated:   GeneratedText{Text: "3", Fallback: true, Err: errors.New("timeout"), Model: "gpt"},
		Metadata:    map[string]any{"rating": 3},
	})
	require.NoError(t, sink.Close())

	require.Equal(t, 1, repo.Len())
	row := repo.rows[0]
	require.Equal(t, 3, row.InputTokens)
	require.Equal(t, 1, row.OutputTokens)
	require.Equal(t, 4, row.TotalTokens)
	require.True(t, row.Fallback)
	require.Equal(t, "timeout", row.Error)
	require.Equal(t, TemperatureRating, row.Temperature)
	require.Equal(t, &stepID, row.StepID)

	var meta map[string]any
	require.NoError(t, json.Unmarshal(row.Metadata, &meta))
	require.Equal(t, float64(3), meta["rating"])
	require.Equal(t, false, meta["usage_reported"])
}

func TestPromptLogSinkSwallowsFailures(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	repo := &memoryPromptLogRepo{failures: 1}
	sink := NewPromptLogSink(testutil.Logger(t), repo, PromptLogSinkConfig{Workers: 1, Buffer: 8})
	sink.Write(context.Background(), PromptLogEntry{AttemptID: uuid.New(), ActionType: types.PromptActionStartChat})
	sink.Write(context.Background(), PromptLogEntry{AttemptID: uuid.New(), ActionType: types.PromptActionStartChat})
	require.NoError(t, sink.Close())
	require.Equal(t, 1, repo.Len())

	var nilSink *PromptLogSink
	nilSink.Write(context.Background(), PromptLogEntry{})
	require.NoError(t, nilSink.Close())
}
