package testutil

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/journey-tutor-backend/internal/domain"
)

type StepSpec struct {
	RatePass    int
	MaxAttempts int
}

// SeedJourney creates a journey with one step per spec, ordered 1..n.
func SeedJourney(tb testing.TB, ctx context.Context, tx *gorm.DB, masterPrompt string, steps ...StepSpec) (*types.Journey, []*types.JourneyStep) {
	tb.Helper()
	j := &types.Journey{
		ID:           uuid.New(),
		Title:        "journey-" + uuid.NewString()[:8],
		MasterPrompt: masterPrompt,
		Status:       types.JourneyStatusPublished,
	}
	if err := tx.WithContext(ctx).Omit("Steps").Create(j).Error; err != nil {
		tb.Fatalf("seed journey: %v", err)
	}
	out := make([]*types.JourneyStep, 0, len(steps))
	for i, spec := range steps {
		s := &types.JourneyStep{
			ID:          uuid.New(),
			JourneyID:   j.ID,
			Order:       i + 1,
			Title:       fmt.Sprintf("Step %d", i+1),
			Content:     fmt.Sprintf("Content for step %d", i+1),
			RatePass:    spec.RatePass,
			MaxAttempts: spec.MaxAttempts,
		}
		if err := tx.WithContext(ctx).Create(s).Error; err != nil {
			tb.Fatalf("seed journey step: %v", err)
		}
		out = append(out, s)
	}
	return j, out
}

func SeedAttempt(tb testing.TB, ctx context.Context, tx *gorm.DB, userID, journeyID uuid.UUID, journeyType string) *types.JourneyAttempt {
	tb.Helper()
	a := &types.JourneyAttempt{
		ID:          uuid.New(),
		UserID:      userID,
		JourneyID:   journeyID,
		JourneyType: journeyType,
		Status:      types.AttemptStatusNotStarted,
		CurrentStep: 1,
	}
	if err := tx.WithContext(ctx).Omit("Journey").Create(a).Error; err != nil {
		tb.Fatalf("seed attempt: %v", err)
	}
	return a
}

func SeedRatedResponse(tb testing.TB, ctx context.Context, tx *gorm.DB, attemptID, stepID uuid.UUID, rate int) *types.JourneyStepResponse {
	tb.Helper()
	input := "answer"
	action := types.ActionRetryStep
	r := &types.JourneyStepResponse{
		ID:              uuid.New(),
		AttemptID:       attemptID,
		StepID:          stepID,
		UserInput:       &input,
		AIResponse:      "feedback",
		InteractionType: types.InteractionChat,
		StepRate:        &rate,
		StepAction:      &action,
	}
	if err := tx.WithContext(ctx).Omit("Attempt").Create(r).Error; err != nil {
		tb.Fatalf("seed rated response: %v", err)
	}
	return r
}
