package services

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/journey-tutor-backend/internal/data/repos"
	"github.com/yungbote/journey-tutor-backend/internal/data/repos/testutil"
	types "github.com/yungbote/journey-tutor-backend/internal/domain"
	"github.com/yungbote/journey-tutor-backend/internal/platform/apierr"
)

type attemptHarness struct {
	*chatHarness
	variables repos.UserProfileVariableRepo
	svc       JourneyAttemptService
}

func newAttemptHarness(t *testing.T, model *scriptedModel) *attemptHarness {
	t.Helper()
	ch := newChatHarness(t, model)
	log := testutil.Logger(t)
	journeyRepo := repos.NewJourneyRepo(ch.db, log)
	stepRepo := repos.NewJourneyStepRepo(ch.db, log)
	variableRepo := repos.NewUserProfileVariableRepo(ch.db, log)
	prompts := NewPromptBuilder(log, journeyRepo, stepRepo, ch.attempts, ch.responses, variableRepo, 4)
	responder := NewAIResponder(log, model, AIResponderConfig{Timeout: 100 * time.Millisecond})
	return &attemptHarness{
		chatHarness: ch,
		variables:   variableRepo,
		svc: NewJourneyAttemptService(log, journeyRepo, stepRepo, ch.attempts, ch.responses, variableRepo,
			prompts, responder, ch.sink, ch.locker, nil),
	}
}

func apiStatus(t *testing.T, err error) (int, string) {
	t.Helper()
	var ae *apierr.Error
	require.ErrorAs(t, err, &ae)
	return ae.Status, ae.Code
}

func TestStartSnapshotsReferencedVariables(t *testing.T) {
	h := newAttemptHarness(t, &scriptedModel{})
	ctx := context.Background()
	j, steps := testutil.SeedJourney(t, ctx, h.db, "Coach {name} the {role}.",
		testutil.StepSpec{RatePass: 3, MaxAttempts: 3}, testutil.StepSpec{RatePass: 3, MaxAttempts: 3})
	userID := uuid.New()
	require.NoError(t, h.svc.PutVariables(ctx, userID, map[string]string{"name": "Ada", "role": "analyst", "unused": "x"}))

	a, err := h.svc.Start(ctx, userID, j.ID)
	require.NoError(t, err)
	require.Equal(t, types.AttemptStatusNotStarted, a.Status)
	require.Equal(t, types.AttemptTypeAttempt, a.JourneyType)
	require.Equal(t, steps[0].Order, a.CurrentStep)

	progress, err := types.DecodeProgress(h.attempt(t, a.ID).ProgressData)
	require.NoError(t, err)
	require.Equal(t, map[string]string{"name": "Ada", "role": "analyst"}, progress.Variables)
	require.False(t, progress.Preview)

	// Later profile edits do not leak into a started attempt.
	require.NoError(t, h.svc.PutVariables(ctx, userID, map[string]string{"name": "Grace"}))
	em := h.turn(t, userID, a.ID, "")
	require.Zero(t, em.Count("error"))
	require.Contains(t, h.model.Calls()[0].Prompt, "Coach Ada the analyst.")
}

func TestStartWithoutVariablesKeepsEmptySnapshot(t *testing.T) {
	h := newAttemptHarness(t, &scriptedModel{})
	ctx := context.Background()
	j, _ := testutil.SeedJourney(t, ctx, h.db, "Coach {name}.", testutil.StepSpec{RatePass: 3, MaxAttempts: 3})
	userID := uuid.New()

	a, err := h.svc.Start(ctx, userID, j.ID)
	require.NoError(t, err)
	progress, err := types.DecodeProgress(h.attempt(t, a.ID).ProgressData)
	require.NoError(t, err)
	require.NotNil(t, progress.Variables)
	require.Empty(t, progress.Variables)

	require.NoError(t, h.svc.PutVariables(ctx, userID, map[string]string{"name": "Grace"}))
	em := h.turn(t, userID, a.ID, "")
	require.Zero(t, em.Count("error"))
	prompt := h.model.Calls()[0].Prompt
	require.Contains(t, prompt, "Coach {name}.")
	require.NotContains(t, prompt, "Grace")

	// The snapshot survives the progress rewrite of the opening turn.
	progress, err = types.DecodeProgress(h.attempt(t, a.ID).ProgressData)
	require.NoError(t, err)
	require.NotNil(t, progress.Variables)
	require.Equal(t, 1, progress.InteractionCount)
}

func TestStartPreviewSkipsVariables(t *testing.T) {
	h := newAttemptHarness(t, &scriptedModel{})
	ctx := context.Background()
	j, _ := testutil.SeedJourney(t, ctx, h.db, "Coach {name}.", testutil.StepSpec{RatePass: 3, MaxAttempts: 3})
	require.NoError(t, h.db.Model(j).Update("status", types.JourneyStatusDraft).Error)
	userID := uuid.New()
	require.NoError(t, h.svc.PutVariables(ctx, userID, map[string]string{"name": "Ada"}))

	_, err := h.svc.Start(ctx, userID, j.ID)
	s, code := apiStatus(t, err)
	require.Equal(t, http.StatusConflict, s)
	require.Equal(t, "journey_unpublished", code)

	a, err := h.svc.StartPreview(ctx, userID, j.ID)
	require.NoError(t, err)
	require.True(t, a.IsPreview())
	progress, err := types.DecodeProgress(h.attempt(t, a.ID).ProgressData)
	require.NoError(t, err)
	require.True(t, progress.Preview)
	require.Nil(t, progress.Variables)
}

func TestStartRejectsUnknownOrEmptyJourney(t *testing.T) {
	h := newAttemptHarness(t, &scriptedModel{})
	ctx := context.Background()

	_, err := h.svc.Start(ctx, uuid.New(), uuid.New())
	s, _ := apiStatus(t, err)
	require.Equal(t, http.StatusNotFound, s)

	j, _ := testutil.SeedJourney(t, ctx, h.db, "Coach.")
	_, err = h.svc.Start(ctx, uuid.New(), j.ID)
	s, code := apiStatus(t, err)
	require.Equal(t, http.StatusConflict, s)
	require.Equal(t, "journey_empty", code)
}

func TestGetAndAbandon(t *testing.T) {
	h := newAttemptHarness(t, &scriptedModel{reply: "Hello."})
	userID, a, _ := h.seed(t, "Coach.", types.AttemptTypeAttempt,
		testutil.StepSpec{RatePass: 3, MaxAttempts: 3}, testutil.StepSpec{RatePass: 3, MaxAttempts: 3})
	ctx := context.Background()
	h.turn(t, userID, a.ID, "")

	view, err := h.svc.Get(ctx, userID, a.ID)
	require.NoError(t, err)
	require.Equal(t, 2, view.TotalSteps)
	require.Len(t, view.Responses, 1)
	require.NotNil(t, view.Journey)

	_, err = h.svc.Get(ctx, uuid.New(), a.ID)
	s, _ := apiStatus(t, err)
	require.Equal(t, http.StatusForbidden, s)

	release, err := h.locker.TryLock(ctx, attemptLockKey(a.ID))
	require.NoError(t, err)
	_, err = h.svc.Abandon(ctx, userID, a.ID)
	_, code := apiStatus(t, err)
	require.Equal(t, "attempt_busy", code)
	release()

	got, err := h.svc.Abandon(ctx, userID, a.ID)
	require.NoError(t, err)
	require.Equal(t, types.AttemptStatusAbandoned, got.Status)

	_, err = h.svc.Abandon(ctx, userID, a.ID)
	_, code = apiStatus(t, err)
	require.Equal(t, "attempt_closed", code)
}

func TestPutVariablesValidatesNames(t *testing.T) {
	h := newAttemptHarness(t, &scriptedModel{})
	ctx := context.Background()
	for _, bad := range []map[string]string{nil, {"": "x"}, {"has space": "x"}, {"a}{b": "x"}} {
		err := h.svc.PutVariables(ctx, uuid.New(), bad)
		s, _ := apiStatus(t, err)
		require.Equal(t, http.StatusBadRequest, s)
	}
	userID := uuid.New()
	require.NoError(t, h.svc.PutVariables(ctx, userID, map[string]string{"name": "Ada"}))
	require.NoError(t, h.svc.PutVariables(ctx, userID, map[string]string{"name": "Grace"}))
	vars, err := h.variables.GetMap(ctx, nil, userID, nil)
	require.NoError(t, err)
	require.Equal(t, map[string]string{"name": "Grace"}, vars)
}

func TestReportOnCompletedAttempt(t *testing.T) {
	h := newAttemptHarness(t, &scriptedModel{ratings: []string{"5"}, reply: "Great journey."})
	userID, a, _ := h.seed(t, "Coach.", types.AttemptTypeAttempt, testutil.StepSpec{RatePass: 3, MaxAttempts: 3})
	ctx := context.Background()

	_, err := h.svc.Report(ctx, userID, a.ID)
	_, code := apiStatus(t, err)
	require.Equal(t, "attempt_not_completed", code)

	h.turn(t, userID, a.ID, "my answer")
	require.Equal(t, types.AttemptStatusCompleted, h.attempt(t, a.ID).Status)

	report, err := h.svc.Report(ctx, userID, a.ID)
	require.NoError(t, err)
	require.Equal(t, "Great journey.", report)

	calls := h.model.Calls()
	last := calls[len(calls)-1]
	require.Equal(t, TemperatureReport, last.Temperature)
	require.Contains(t, last.Prompt, "Attempt 1, rated 5: my answer")

	progress, err := types.DecodeProgress(h.attempt(t, a.ID).ProgressData)
	require.NoError(t, err)
	require.Equal(t, "Great journey.", progress.Report)

	require.NoError(t, h.sink.Close())
	logs, err := h.logs.ListByAttempt(ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, types.PromptActionSubmitReport, logs[len(logs)-1].ActionType)
}
