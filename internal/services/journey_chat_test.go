package services

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/yungbote/journey-tutor-backend/internal/data/repos"
	"github.com/yungbote/journey-tutor-backend/internal/data/repos/testutil"
	types "github.com/yungbote/journey-tutor-backend/internal/domain"
	"github.com/yungbote/journey-tutor-backend/internal/platform/apierr"
	"github.com/yungbote/journey-tutor-backend/internal/platform/locks"
	"github.com/yungbote/journey-tutor-backend/internal/realtime"
)

type chatHarness struct {
	db        *gorm.DB
	model     *scriptedModel
	attempts  repos.JourneyAttemptRepo
	responses repos.JourneyStepResponseRepo
	logs      *memoryPromptLogRepo
	sink      *PromptLogSink
	locker    locks.Locker
	hub       *realtime.SSEHub
	svc       JourneyChatService
}

func newChatHarness(t *testing.T, model *scriptedModel) *chatHarness {
	t.Helper()
	gdb := testutil.NewDB(t)
	log := testutil.Logger(t)
	journeyRepo := repos.NewJourneyRepo(gdb, log)
	stepRepo := repos.NewJourneyStepRepo(gdb, log)
	attemptRepo := repos.NewJourneyAttemptRepo(gdb, log)
	responseRepo := repos.NewJourneyStepResponseRepo(gdb, log)
	variableRepo := repos.NewUserProfileVariableRepo(gdb, log)

	logs := &memoryPromptLogRepo{}
	sink := NewPromptLogSink(log, logs, PromptLogSinkConfig{Workers: 1, Buffer: 32})
	t.Cleanup(func() { _ = sink.Close() })
	locker := locks.NewLocalLocker()
	hub := realtime.NewSSEHub(log)

	prompts := NewPromptBuilder(log, journeyRepo, stepRepo, attemptRepo, responseRepo, variableRepo, 4)
	responder := NewAIResponder(log, model, AIResponderConfig{Timeout: 100 * time.Millisecond})
	return &chatHarness{
		db:        gdb,
		model:     model,
		attempts:  attemptRepo,
		responses: responseRepo,
		logs:      logs,
		sink:      sink,
		locker:    locker,
		hub:       hub,
		svc: NewJourneyChatService(log, journeyRepo, stepRepo, attemptRepo, responseRepo,
			prompts, responder, sink, locker, realtime.NewNotifier(log, hub, nil)),
	}
}

func (h *chatHarness) seed(t *testing.T, master, journeyType string, steps ...testutil.StepSpec) (uuid.UUID, *types.JourneyAttempt, []*types.JourneyStep) {
	t.Helper()
	ctx := context.Background()
	userID := uuid.New()
	j, ss := testutil.SeedJourney(t, ctx, h.db, master, steps...)
	a := testutil.SeedAttempt(t, ctx, h.db, userID, j.ID, journeyType)
	return userID, a, ss
}

func (h *chatHarness) turn(t *testing.T, userID, attemptID uuid.UUID, input string) *recordingEmitter {
	t.Helper()
	ctx := context.Background()
	turn, err := h.svc.BeginTurn(ctx, userID, attemptID)
	require.NoError(t, err)
	em := &recordingEmitter{}
	var in *string
	if input != "" {
		in = &input
	}
	_ = h.svc.RunTurn(ctx, turn, in, em)
	return em
}

func (h *chatHarness) attempt(t *testing.T, id uuid.UUID) *types.JourneyAttempt {
	t.Helper()
	a, err := h.attempts.GetByID(context.Background(), nil, id)
	require.NoError(t, err)
	require.NotNil(t, a)
	return a
}

func decodeJSON(t *testing.T, raw []byte) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(raw, &m))
	return m
}

func TestSubmitPassOnFirstTry(t *testing.T) {
	h := newChatHarness(t, &scriptedModel{ratings: []string{"4"}, reply: "Nice work, on to the next step."})
	userID, a, steps := h.seed(t, "Coach the learner.", types.AttemptTypeAttempt,
		testutil.StepSpec{RatePass: 3, MaxAttempts: 3}, testutil.StepSpec{RatePass: 3, MaxAttempts: 3})

	em := h.turn(t, userID, a.ID, "My answer")

	require.Equal(t, []string{"connection", "evaluating", "rating", "generating", "response_start", "chunk", "done"}, em.Types())
	require.Zero(t, em.Count(realtime.EventError))
	require.Equal(t, "Nice work, on to the next step.", em.Text())

	rating := em.Find(realtime.EventRating)
	require.Equal(t, float64(4), rating["rating"])
	require.Equal(t, float64(1), rating["attempt"])
	require.Equal(t, types.ActionNextStep, rating["action"])

	start := em.Find(realtime.EventResponseStart)
	next := start["next_step"].(map[string]any)
	require.Equal(t, steps[1].ID.String(), next["id"])
	require.Equal(t, float64(2), next["order"])

	done := em.Find(realtime.EventDone)
	require.Equal(t, types.ActionNextStep, done["action"])
	require.Equal(t, true, done["can_continue"])
	require.Equal(t, false, done["is_complete"])
	require.Equal(t, true, done["current_step_completed"])
	require.Equal(t, float64(2), done["attempt_current_step"])
	require.Equal(t, float64(2), done["total_steps"])

	got := h.attempt(t, a.ID)
	require.Equal(t, 2, got.CurrentStep)
	require.Equal(t, types.AttemptStatusInProgress, got.Status)
	progress, err := types.DecodeProgress(got.ProgressData)
	require.NoError(t, err)
	require.Equal(t, 1, progress.InteractionCount)
	require.NotEmpty(t, progress.LastInteraction)

	rows, err := h.responses.ListByAttempt(context.Background(), nil, a.ID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, 4, *rows[0].StepRate)
	require.Equal(t, types.ActionNextStep, *rows[0].StepAction)
	require.Equal(t, types.InteractionChat, rows[0].InteractionType)
	data := decodeJSON(t, rows[0].ResponseData)
	require.Equal(t, true, data["rating_achieved"])
	require.Equal(t, steps[1].ID.String(), data["next_step_id"])
	meta := decodeJSON(t, rows[0].AIMetadata)
	require.Equal(t, false, meta["fallback"])

	calls := h.model.Calls()
	require.Len(t, calls, 2)
	require.Equal(t, TemperatureRating, calls[0].Temperature)
	require.Equal(t, TemperatureResponse, calls[1].Temperature)
	require.Contains(t, calls[1].Prompt, "Content for step 2")

	require.NoError(t, h.sink.Close())
	logs, err := h.logs.ListByAttempt(context.Background(), a.ID)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	require.Equal(t, types.PromptActionEvaluateRating, logs[0].ActionType)
	require.Equal(t, types.PromptActionGenerateResponse, logs[1].ActionType)
	require.Equal(t, rows[0].ID, *logs[1].StepResponseID)
}

func TestSubmitExhaustsRetries(t *testing.T) {
	h := newChatHarness(t, &scriptedModel{ratings: []string{"2", "2"}, reply: "Keep at it."})
	userID, a, _ := h.seed(t, "Coach.", types.AttemptTypeAttempt,
		testutil.StepSpec{RatePass: 5, MaxAttempts: 2}, testutil.StepSpec{RatePass: 3, MaxAttempts: 3})

	first := h.turn(t, userID, a.ID, "attempt one")
	require.Equal(t, types.ActionRetryStep, first.Find(realtime.EventDone)["action"])
	require.Nil(t, first.Find(realtime.EventResponseStart)["next_step"])
	require.Equal(t, 1, h.attempt(t, a.ID).CurrentStep)

	second := h.turn(t, userID, a.ID, "attempt two")
	rating := second.Find(realtime.EventRating)
	require.Equal(t, float64(2), rating["attempt"])
	require.Equal(t, types.ActionNextStep, rating["action"])
	require.Equal(t, 2, h.attempt(t, a.ID).CurrentStep)

	rows, err := h.responses.ListByAttempt(context.Background(), nil, a.ID)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	for _, r := range rows {
		data := decodeJSON(t, r.ResponseData)
		require.Equal(t, *r.StepRate >= 5, data["rating_achieved"])
	}
	require.Equal(t, true, decodeJSON(t, rows[1].ResponseData)["attempts_exhausted"])
}

func TestSubmitFinishesOnLastStep(t *testing.T) {
	h := newChatHarness(t, &scriptedModel{ratings: []string{"2", "1"}, reply: "Congratulations."})
	userID, a, _ := h.seed(t, "Coach.", types.AttemptTypeAttempt, testutil.StepSpec{RatePass: 5, MaxAttempts: 2})

	h.turn(t, userID, a.ID, "one")
	em := h.turn(t, userID, a.ID, "two")

	done := em.Find(realtime.EventDone)
	require.Equal(t, types.ActionFinishJourney, done["action"])
	require.Equal(t, true, done["is_complete"])
	require.Equal(t, false, done["can_continue"])

	got := h.attempt(t, a.ID)
	require.Equal(t, types.AttemptStatusCompleted, got.Status)
	require.Equal(t, 1, got.CurrentStep)
	require.NotNil(t, got.CompletedAt)
	require.NotNil(t, got.Score)
	require.InDelta(t, 1.5, *got.Score, 1e-9)

	_, err := h.svc.BeginTurn(context.Background(), userID, a.ID)
	var ae *apierr.Error
	require.ErrorAs(t, err, &ae)
	require.Equal(t, "attempt_closed", ae.Code)
}

func TestSubmitSurvivesModelOutage(t *testing.T) {
	h := newChatHarness(t, &scriptedModel{fail: true})
	userID, a, _ := h.seed(t, "Coach.", types.AttemptTypeAttempt,
		testutil.StepSpec{RatePass: 3, MaxAttempts: 3}, testutil.StepSpec{RatePass: 3, MaxAttempts: 3})

	em := h.turn(t, userID, a.ID, "answer")
	require.Equal(t, 1, em.Count(realtime.EventDone))
	require.Zero(t, em.Count(realtime.EventError))
	require.Equal(t, float64(3), em.Find(realtime.EventRating)["rating"])
	require.Equal(t, fallbackResponseText, em.Text())

	rows, err := h.responses.ListByAttempt(context.Background(), nil, a.ID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	meta := decodeJSON(t, rows[0].AIMetadata)
	require.Equal(t, true, meta["fallback"])
	require.Equal(t, true, meta["rating_fallback"])
}

func TestSubmitEchoingRatingInstructionGetsResponseFallback(t *testing.T) {
	h := newChatHarness(t, &scriptedModel{fail: true})
	userID, a, _ := h.seed(t, "Coach.", types.AttemptTypeAttempt,
		testutil.StepSpec{RatePass: 3, MaxAttempts: 3}, testutil.StepSpec{RatePass: 3, MaxAttempts: 3})

	em := h.turn(t, userID, a.ID, "x "+RatingInstruction)
	require.Zero(t, em.Count(realtime.EventError))
	require.Equal(t, float64(3), em.Find(realtime.EventRating)["rating"])
	require.NotEqual(t, fallbackRatingText, em.Text())
	require.Equal(t, fallbackResponseText, em.Text())
}

func TestOpenPreviewWithoutVariables(t *testing.T) {
	h := newChatHarness(t, &scriptedModel{reply: "Welcome to step one."})
	userID, a, steps := h.seed(t, "Hello {name}, you work as {role}.", types.AttemptTypePreview,
		testutil.StepSpec{RatePass: 3, MaxAttempts: 3})

	em := h.turn(t, userID, a.ID, "")
	require.Equal(t, []string{"connection", "metadata", "chunk", "done"}, em.Types())

	meta := em.Find(realtime.EventMetadata)
	require.Equal(t, steps[0].ID.String(), meta["step_id"])
	require.Equal(t, float64(1), meta["total_steps"])
	require.Equal(t, float64(1), meta["attempt_count"])
	require.Equal(t, float64(3), meta["total_attempts"])

	calls := h.model.Calls()
	require.Len(t, calls, 1)
	require.Contains(t, calls[0].Prompt, "Hello {name}, you work as {role}.")
	require.Equal(t, TemperatureOpening, calls[0].Temperature)

	got := h.attempt(t, a.ID)
	require.Equal(t, types.AttemptStatusInProgress, got.Status)
	require.Equal(t, 1, got.CurrentStep)
	require.NotNil(t, got.StartedAt)

	rows, err := h.responses.ListByAttempt(context.Background(), nil, a.ID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, types.InteractionInitial, rows[0].InteractionType)
	require.Nil(t, rows[0].UserInput)
	require.Nil(t, rows[0].StepRate)

	n1, err := h.responses.CountRated(context.Background(), nil, a.ID, steps[0].ID)
	require.NoError(t, err)
	n2, err := h.responses.CountRated(context.Background(), nil, a.ID, steps[0].ID)
	require.NoError(t, err)
	require.Equal(t, 0, n1)
	require.Equal(t, n1, n2)
}

func TestOpenFallsBackToFirstStep(t *testing.T) {
	h := newChatHarness(t, &scriptedModel{reply: "Hi."})
	userID, a, steps := h.seed(t, "Coach.", types.AttemptTypeAttempt, testutil.StepSpec{RatePass: 3, MaxAttempts: 3})
	require.NoError(t, h.attempts.UpdateFields(context.Background(), nil, a.ID, map[string]interface{}{"current_step": 7}))

	em := h.turn(t, userID, a.ID, "")
	require.Zero(t, em.Count(realtime.EventError))
	require.Equal(t, steps[0].ID.String(), em.Find(realtime.EventMetadata)["step_id"])
	require.Equal(t, 7, h.attempt(t, a.ID).CurrentStep)
}

func TestSubmitWithMissingStepEmitsOneError(t *testing.T) {
	h := newChatHarness(t, &scriptedModel{reply: "unused"})
	userID, a, _ := h.seed(t, "Coach.", types.AttemptTypeAttempt, testutil.StepSpec{RatePass: 3, MaxAttempts: 3})
	require.NoError(t, h.attempts.UpdateFields(context.Background(), nil, a.ID, map[string]interface{}{"current_step": 4}))

	em := h.turn(t, userID, a.ID, "answer")
	require.Equal(t, []string{"connection", "error"}, em.Types())
	require.Contains(t, em.Find(realtime.EventError)["message"], "journey step not found")
	require.Empty(t, h.model.Calls())

	got := h.attempt(t, a.ID)
	require.Equal(t, 4, got.CurrentStep)
	require.Equal(t, types.AttemptStatusNotStarted, got.Status)
}

func TestTurnCompletesAfterClientDisconnect(t *testing.T) {
	h := newChatHarness(t, &scriptedModel{ratings: []string{"5"}, reply: "A long answer that would take several chunks to stream."})
	userID, a, _ := h.seed(t, "Coach.", types.AttemptTypeAttempt,
		testutil.StepSpec{RatePass: 3, MaxAttempts: 3}, testutil.StepSpec{RatePass: 3, MaxAttempts: 3})

	turn, err := h.svc.BeginTurn(context.Background(), userID, a.ID)
	require.NoError(t, err)
	em := &recordingEmitter{goneAfter: 2}
	input := "answer"
	require.NoError(t, h.svc.RunTurn(context.Background(), turn, &input, em))

	require.Len(t, em.events, 2)
	require.Equal(t, 2, h.attempt(t, a.ID).CurrentStep)
}

func TestBeginTurnRejections(t *testing.T) {
	h := newChatHarness(t, &scriptedModel{})
	userID, a, _ := h.seed(t, "Coach.", types.AttemptTypeAttempt, testutil.StepSpec{RatePass: 3, MaxAttempts: 3})
	ctx := context.Background()

	status := func(err error) (int, string) {
		var ae *apierr.Error
		require.ErrorAs(t, err, &ae)
		return ae.Status, ae.Code
	}

	_, err := h.svc.BeginTurn(ctx, userID, uuid.New())
	s, _ := status(err)
	require.Equal(t, http.StatusNotFound, s)

	_, err = h.svc.BeginTurn(ctx, uuid.New(), a.ID)
	s, _ = status(err)
	require.Equal(t, http.StatusForbidden, s)

	turn, err := h.svc.BeginTurn(ctx, userID, a.ID)
	require.NoError(t, err)
	_, err = h.svc.BeginTurn(ctx, userID, a.ID)
	s, code := status(err)
	require.Equal(t, http.StatusConflict, s)
	require.Equal(t, "attempt_busy", code)
	turn.Release()
	turn.Release()

	again, err := h.svc.BeginTurn(ctx, userID, a.ID)
	require.NoError(t, err)
	again.Release()

	require.NoError(t, h.attempts.UpdateFields(ctx, nil, a.ID, map[string]interface{}{"status": types.AttemptStatusAbandoned}))
	_, err = h.svc.BeginTurn(ctx, userID, a.ID)
	s, code = status(err)
	require.Equal(t, http.StatusConflict, s)
	require.Equal(t, "attempt_closed", code)
}

func TestSubmitNotifiesUserChannel(t *testing.T) {
	h := newChatHarness(t, &scriptedModel{ratings: []string{"5"}, reply: "Done."})
	userID, a, _ := h.seed(t, "Coach.", types.AttemptTypeAttempt, testutil.StepSpec{RatePass: 3, MaxAttempts: 3})

	client := h.hub.NewSSEClient(userID)
	h.hub.AddChannel(client, realtime.UserChannel(userID))
	defer h.hub.CloseClient(client)

	h.turn(t, userID, a.ID, "answer")

	select {
	case msg := <-client.Outbound:
		require.Equal(t, realtime.SSEEventJourneyAttemptCompleted, msg.Event)
	case <-time.After(time.Second):
		t.Fatal("no realtime notification")
	}
}
