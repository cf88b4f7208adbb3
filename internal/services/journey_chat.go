package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"

	"github.com/yungbote/journey-tutor-backend/internal/data/repos"
	types "github.com/yungbote/journey-tutor-backend/internal/domain"
	"github.com/yungbote/journey-tutor-backend/internal/observability"
	"github.com/yungbote/journey-tutor-backend/internal/platform/apierr"
	"github.com/yungbote/journey-tutor-backend/internal/platform/locks"
	"github.com/yungbote/journey-tutor-backend/internal/platform/logger"
	"github.com/yungbote/journey-tutor-backend/internal/realtime"
)

var (
	ErrStepNotFound      = errors.New("journey step not found")
	ErrAttemptConflict   = errors.New("attempt was changed by a concurrent turn")
	ErrJourneyHasNoSteps = errors.New("journey has no steps")
)

const genericTurnError = "Something went wrong while processing your message. Please try again."

const (
	turnKindOpen   = "open"
	turnKindSubmit = "submit"
)

// Turn is an attempt held under its per-attempt lock. Release is safe to call more than once.
type Turn struct {
	Attempt *types.JourneyAttempt
	UserID  uuid.UUID

	release func()
	once    sync.Once
}

func (t *Turn) Release() {
	if t == nil || t.release == nil {
		return
	}
	t.once.Do(t.release)
}

type JourneyChatService interface {
	BeginTurn(ctx context.Context, userID, attemptID uuid.UUID) (*Turn, error)
	RunTurn(ctx context.Context, turn *Turn, userInput *string, em realtime.Emitter) error
}

type journeyChatService struct {
	log       *logger.Logger
	journeys  repos.JourneyRepo
	steps     repos.JourneyStepRepo
	attempts  repos.JourneyAttemptRepo
	responses repos.JourneyStepResponseRepo
	prompts   *PromptBuilder
	responder *AIResponder
	sink      *PromptLogSink
	locker    locks.Locker
	notifier  *realtime.Notifier
	tracer    trace.Tracer
}

func NewJourneyChatService(
	baseLog *logger.Logger,
	journeyRepo repos.JourneyRepo,
	stepRepo repos.JourneyStepRepo,
	attemptRepo repos.JourneyAttemptRepo,
	responseRepo repos.JourneyStepResponseRepo,
	prompts *PromptBuilder,
	responder *AIResponder,
	sink *PromptLogSink,
	locker locks.Locker,
	notifier *realtime.Notifier,
) JourneyChatService {
	if locker == nil {
		locker = locks.NewLocalLocker()
	}
	return &journeyChatService{
		log:       baseLog.With("service", "JourneyChatService"),
		journeys:  journeyRepo,
		steps:     stepRepo,
		attempts:  attemptRepo,
		responses: responseRepo,
		prompts:   prompts,
		responder: responder,
		sink:      sink,
		locker:    locker,
		notifier:  notifier,
		tracer:    otel.Tracer("journey-tutor/services"),
	}
}

func attemptLockKey(id uuid.UUID) string {
	return "journey-attempt:" + id.String()
}

// BeginTurn validates ownership and state, then takes the attempt's lock. Its errors are *apierr.Error.
func (s *journeyChatService) BeginTurn(ctx context.Context, userID, attemptID uuid.UUID) (*Turn, error) {
	attempt, err := s.loadOpenAttempt(ctx, userID, attemptID)
	if err != nil {
		return nil, err
	}
	release, err := s.locker.TryLock(ctx, attemptLockKey(attempt.ID))
	if errors.Is(err, locks.ErrBusy) {
		return nil, apierr.Conflict("attempt_busy", errors.New("another turn is in progress for this attempt"))
	}
	if err != nil {
		return nil, fmt.Errorf("lock attempt: %w", err)
	}
	// The previous holder may have moved or closed the attempt.
	attempt, err = s.loadOpenAttempt(ctx, userID, attemptID)
	if err != nil {
		release()
		return nil, err
	}
	return &Turn{Attempt: attempt, UserID: userID, release: release}, nil
}

func (s *journeyChatService) loadOpenAttempt(ctx context.Context, userID, attemptID uuid.UUID) (*types.JourneyAttempt, error) {
	attempt, err := s.attempts.GetByID(ctx, nil, attemptID)
	if err != nil {
		return nil, fmt.Errorf("load attempt: %w", err)
	}
	if attempt == nil {
		return nil, apierr.NotFound("attempt")
	}
	if attempt.UserID != userID {
		return nil, apierr.Forbidden("attempt belongs to another user")
	}
	if attempt.IsClosed() {
		return nil, apierr.Conflict("attempt_closed", fmt.Errorf("attempt is %s", attempt.Status))
	}
	return attempt, nil
}

// RunTurn runs an opening turn when userInput is empty and a submit turn otherwise.
// Decided work continues after a client disconnect; only emission stops.
func (s *journeyChatService) RunTurn(ctx context.Context, turn *Turn, userInput *string, em realtime.Emitter) error {
	defer turn.Release()
	start := time.Now()
	out := &turnEmitter{inner: em}
	out.Emit(realtime.NewConnectionEvent())

	kind := turnKindOpen
	input := ""
	if userInput != nil && strings.TrimSpace(*userInput) != "" {
		kind = turnKindSubmit
		input = strings.TrimSpace(*userInput)
	}

	work, span := s.tracer.Start(context.WithoutCancel(ctx), "journey.turn", trace.WithAttributes(
		attribute.String("journey.attempt_id", turn.Attempt.ID.String()),
		attribute.String("journey.turn_kind", kind),
	))
	defer span.End()

	st, err := s.loadState(work, turn)
	var action string
	if err == nil {
		if kind == turnKindOpen {
			err = s.runOpen(work, st, out)
		} else {
			action, err = s.runSubmit(work, st, input, out)
		}
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.log.Error("journey turn failed", "attempt_id", turn.Attempt.ID, "kind", kind, "error", err)
		out.Emit(realtime.ErrorEvent{Type: realtime.EventError, Message: turnErrorMessage(err)})
		observability.Current().ObserveTurn(kind, "error", time.Since(start))
		return err
	}
	if action == "" {
		action = "opened"
	}
	span.SetAttributes(attribute.String("journey.action", action))
	observability.Current().ObserveTurn(kind, action, time.Since(start))
	return nil
}

func turnErrorMessage(err error) string {
	if errors.Is(err, ErrStepNotFound) || errors.Is(err, ErrJourneyHasNoSteps) {
		return err.Error()
	}
	return genericTurnError
}

// turnEmitter drops every event after the first failed write.
type turnEmitter struct {
	inner realtime.Emitter
	gone  bool
}

func (e *turnEmitter) Emit(ev any) {
	if e.gone || e.inner == nil {
		return
	}
	if err := e.inner.Emit(ev); err != nil {
		e.gone = true
	}
}

func (e *turnEmitter) EmitText(text string) {
	if e.gone || e.inner == nil {
		return
	}
	if err := e.inner.EmitText(text); err != nil {
		e.gone = true
	}
}

type turnState struct {
	attempt *types.JourneyAttempt
	journey *types.Journey
	steps   []*types.JourneyStep
}

func (s *journeyChatService) loadState(ctx context.Context, turn *Turn) (*turnState, error) {
	journey, err := s.journeys.GetByID(ctx, nil, turn.Attempt.JourneyID)
	if err != nil {
		return nil, fmt.Errorf("load journey: %w", err)
	}
	if journey == nil {
		return nil, fmt.Errorf("journey %s missing for attempt %s", turn.Attempt.JourneyID, turn.Attempt.ID)
	}
	steps, err := s.steps.ListByJourney(ctx, nil, journey.ID)
	if err != nil {
		return nil, fmt.Errorf("load steps: %w", err)
	}
	if len(steps) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrJourneyHasNoSteps, journey.Title)
	}
	return &turnState{attempt: turn.Attempt, journey: journey, steps: steps}, nil
}

func (s *journeyChatService) runOpen(ctx context.Context, st *turnState, out *turnEmitter) error {
	attempt := st.attempt
	step, next := stepAndNext(st.steps, attempt.CurrentStep)
	if step == nil {
		step = st.steps[0]
		if len(st.steps) > 1 {
			next = st.steps[1]
		}
		s.log.Warn("current_step matches no step; opening the first step",
			"attempt_id", attempt.ID, "current_step", attempt.CurrentStep)
	}
	rated, err := s.responses.CountRated(ctx, nil, attempt.ID, step.ID)
	if err != nil {
		return fmt.Errorf("count rated responses: %w", err)
	}

	out.Emit(realtime.MetadataEvent{
		Type:          realtime.EventMetadata,
		StepID:        step.ID,
		StepOrder:     step.Order,
		StepTitle:     step.Title,
		AttemptID:     attempt.ID,
		CurrentStep:   attempt.CurrentStep,
		TotalSteps:    len(st.steps),
		AttemptCount:  rated + 1,
		TotalAttempts: step.MaxAttempts,
	})

	pc := s.prompts.ContextFor(ctx, attempt, st.journey, st.steps, step, next, PromptKindChat)
	prompt, err := s.prompts.Build(PromptKindChat, pc)
	if err != nil {
		return err
	}
	gen := s.responder.Generate(ctx, PromptKindChat, prompt, TemperatureOpening)

	row, err := s.responses.Create(ctx, nil, &types.JourneyStepResponse{
		AttemptID:       attempt.ID,
		StepID:          step.ID,
		AIResponse:      gen.Text,
		InteractionType: types.InteractionInitial,
		ResponseData:    mustJSON(map[string]any{"step_order": step.Order}),
		AIMetadata: mustJSON(map[string]any{
			"model":         gen.Model,
			"latency_ms":    gen.LatencyMs,
			"input_tokens":  gen.InputTokens,
			"output_tokens": gen.OutputTokens,
			"fallback":      gen.Fallback,
			"preview":       attempt.IsPreview(),
		}),
	})
	if err != nil {
		return fmt.Errorf("save opening response: %w", err)
	}

	now := time.Now().UTC()
	updates, err := touchProgress(attempt, now, "")
	if err != nil {
		return err
	}
	if attempt.Status == types.AttemptStatusNotStarted {
		updates["status"] = types.AttemptStatusInProgress
	}
	if attempt.StartedAt == nil {
		updates["started_at"] = now
	}
	ok, err := s.attempts.UpdateIfAtStep(ctx, nil, attempt.ID, attempt.CurrentStep, updates)
	if err != nil {
		return fmt.Errorf("update attempt: %w", err)
	}
	if !ok {
		return ErrAttemptConflict
	}
	if attempt.Status == types.AttemptStatusNotStarted {
		attempt.Status = types.AttemptStatusInProgress
	}

	out.EmitText(gen.Text)

	s.sink.Write(ctx, PromptLogEntry{
		AttemptID:      attempt.ID,
		UserID:         attempt.UserID,
		JourneyID:      attempt.JourneyID,
		StepID:         &step.ID,
		StepResponseID: &row.ID,
		ActionType:     types.PromptActionStartChat,
		Prompt:         prompt,
		Temperature:    TemperatureOpening,
		Generated:      gen,
		Metadata:       map[string]any{"preview": attempt.IsPreview(), "step_order": step.Order},
	})

	out.Emit(realtime.DoneEvent{
		Type:               realtime.EventDone,
		CanContinue:        true,
		CurrentStepOrder:   step.Order,
		AttemptCurrentStep: attempt.CurrentStep,
		TotalSteps:         len(st.steps),
		StepAttemptCount:   rated,
		StepMaxAttempts:    step.MaxAttempts,
	})
	return nil
}

func (s *journeyChatService) runSubmit(ctx context.Context, st *turnState, input string, out *turnEmitter) (string, error) {
	attempt := st.attempt
	step, next := stepAndNext(st.steps, attempt.CurrentStep)
	if step == nil {
		return "", fmt.Errorf("%w: attempt %s is at step %d, which does not exist", ErrStepNotFound, attempt.ID, attempt.CurrentStep)
	}
	isLast := next == nil

	rated, err := s.responses.CountRated(ctx, nil, attempt.ID, step.ID)
	if err != nil {
		return "", fmt.Errorf("count rated responses: %w", err)
	}
	attemptNo := rated + 1

	pc := s.prompts.ContextFor(ctx, attempt, st.journey, st.steps, step, next, PromptKindRating)
	pc.UserInput = input
	pc.AttemptNumber = attemptNo

	out.Emit(realtime.PhaseEvent{Type: realtime.EventEvaluating})
	ratingPrompt, err := s.prompts.Build(PromptKindRating, pc)
	if err != nil {
		return "", err
	}
	ratingGen := s.responder.Generate(ctx, PromptKindRating, ratingPrompt, TemperatureRating)
	rating := ExtractRating(ratingGen.Text)
	observability.Current().ObserveRating(rating)

	decision := DecideProgression(step.RatePass, step.MaxAttempts, rating, attemptNo, isLast)
	out.Emit(realtime.RatingEvent{
		Type:           realtime.EventRating,
		Rating:         rating,
		Attempt:        attemptNo,
		MaxAttempts:    step.MaxAttempts,
		RequiredRating: step.RatePass,
		Action:         decision.Action,
	})

	out.Emit(realtime.PhaseEvent{Type: realtime.EventGenerating})
	pc.Rating = rating
	pc.Action = decision.Action
	responsePrompt, err := s.prompts.Build(PromptKindResponse, pc)
	if err != nil {
		return "", err
	}
	gen := s.responder.Generate(ctx, PromptKindResponse, responsePrompt, TemperatureResponse)

	responseData := map[string]any{
		"attempt_number":     attemptNo,
		"max_attempts":       step.MaxAttempts,
		"required_rating":    step.RatePass,
		"rating_achieved":    decision.Passed,
		"attempts_exhausted": decision.Exhausted,
		"is_last_step":       isLast,
		"rating_text":        ratingGen.Text,
	}
	if decision.Action == types.ActionNextStep && next != nil {
		responseData["next_step_id"] = next.ID
	}
	action := decision.Action
	stepRate := rating
	row, err := s.responses.Create(ctx, nil, &types.JourneyStepResponse{
		AttemptID:       attempt.ID,
		StepID:          step.ID,
		UserInput:       &input,
		AIResponse:      gen.Text,
		InteractionType: types.InteractionChat,
		StepRate:        &stepRate,
		StepAction:      &action,
		ResponseData:    mustJSON(responseData),
		AIMetadata: mustJSON(map[string]any{
			"model":             gen.Model,
			"rating_model":      ratingGen.Model,
			"latency_ms":        gen.LatencyMs,
			"rating_latency_ms": ratingGen.LatencyMs,
			"input_tokens":      gen.InputTokens + ratingGen.InputTokens,
			"output_tokens":     gen.OutputTokens + ratingGen.OutputTokens,
			"fallback":          gen.Fallback,
			"rating_fallback":   ratingGen.Fallback,
			"preview":           attempt.IsPreview(),
		}),
	})
	if err != nil {
		return "", fmt.Errorf("save step response: %w", err)
	}

	newStep, err := s.applyAction(ctx, attempt, decision.Action)
	if err != nil {
		return "", err
	}

	var preview *realtime.StepPreview
	if decision.Action == types.ActionNextStep && next != nil {
		preview = &realtime.StepPreview{ID: next.ID, Title: next.Title, Order: next.Order, Content: next.Content}
	}
	out.Emit(realtime.ResponseStartEvent{
		Type:      realtime.EventResponseStart,
		StepID:    step.ID,
		AttemptID: attempt.ID,
		NextStep:  preview,
	})
	out.EmitText(gen.Text)

	meta := map[string]any{
		"preview":        attempt.IsPreview(),
		"step_order":     step.Order,
		"attempt_number": attemptNo,
		"rating":         rating,
		"action":         decision.Action,
	}
	s.sink.Write(ctx, PromptLogEntry{
		AttemptID:      attempt.ID,
		UserID:         attempt.UserID,
		JourneyID:      attempt.JourneyID,
		StepID:         &step.ID,
		StepResponseID: &row.ID,
		ActionType:     types.PromptActionEvaluateRating,
		Prompt:         ratingPrompt,
		Temperature:    TemperatureRating,
		Generated:      ratingGen,
		Metadata:       meta,
	})
	s.sink.Write(ctx, PromptLogEntry{
		AttemptID:      attempt.ID,
		UserID:         attempt.UserID,
		JourneyID:      attempt.JourneyID,
		StepID:         &step.ID,
		StepResponseID: &row.ID,
		ActionType:     types.PromptActionGenerateResponse,
		Prompt:         responsePrompt,
		Temperature:    TemperatureResponse,
		Generated:      gen,
		Metadata:       meta,
	})

	event := realtime.SSEEventJourneyAttemptProgressed
	if decision.Action == types.ActionFinishJourney {
		event = realtime.SSEEventJourneyAttemptCompleted
	}
	s.notifier.NotifyUser(ctx, attempt.UserID, event, map[string]any{
		"attempt_id":   attempt.ID,
		"journey_id":   attempt.JourneyID,
		"action":       decision.Action,
		"rating":       rating,
		"current_step": newStep,
		"status":       attempt.Status,
	})

	r := rating
	out.Emit(realtime.DoneEvent{
		Type:                 realtime.EventDone,
		Action:               decision.Action,
		Rating:               &r,
		CanContinue:          decision.Action != types.ActionFinishJourney,
		IsComplete:           decision.Action == types.ActionFinishJourney,
		CurrentStepCompleted: decision.Advances(),
		CurrentStepOrder:     step.Order,
		AttemptCurrentStep:   newStep,
		TotalSteps:           len(st.steps),
		StepAttemptCount:     attemptNo,
		StepMaxAttempts:      step.MaxAttempts,
		NextStep:             preview,
	})
	return decision.Action, nil
}

// applyAction moves the attempt according to action, guarded on its current step.
// It returns the attempt's current_step afterwards.
func (s *journeyChatService) applyAction(ctx context.Context, attempt *types.JourneyAttempt, action string) (int, error) {
	now := time.Now().UTC()
	completedAt := ""
	if action == types.ActionFinishJourney {
		completedAt = now.Format(time.RFC3339)
	}
	updates, err := touchProgress(attempt, now, completedAt)
	if err != nil {
		return 0, err
	}
	newStep := attempt.CurrentStep
	newStatus := attempt.Status
	if newStatus == types.AttemptStatusNotStarted {
		newStatus = types.AttemptStatusInProgress
	}
	if attempt.StartedAt == nil {
		updates["started_at"] = now
	}

	var score *float64
	switch action {
	case types.ActionNextStep:
		newStep = attempt.CurrentStep + 1
		updates["current_step"] = newStep
	case types.ActionFinishJourney:
		newStatus = types.AttemptStatusCompleted
		updates["completed_at"] = now
		score, err = s.meanRating(ctx, attempt.ID)
		if err != nil {
			return 0, err
		}
		if score != nil {
			updates["score"] = *score
		}
	}
	updates["status"] = newStatus

	ok, err := s.attempts.UpdateIfAtStep(ctx, nil, attempt.ID, attempt.CurrentStep, updates)
	if err != nil {
		return 0, fmt.Errorf("update attempt: %w", err)
	}
	if !ok {
		return 0, ErrAttemptConflict
	}
	attempt.CurrentStep = newStep
	attempt.Status = newStatus
	if score != nil {
		attempt.Score = score
	}
	if action == types.ActionFinishJourney {
		attempt.CompletedAt = &now
	}
	return newStep, nil
}

func (s *journeyChatService) meanRating(ctx context.Context, attemptID uuid.UUID) (*float64, error) {
	rows, err := s.responses.ListRatedByAttempt(ctx, nil, attemptID)
	if err != nil {
		return nil, fmt.Errorf("load ratings: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	sum := 0
	for _, r := range rows {
		sum += *r.StepRate
	}
	mean := float64(sum) / float64(len(rows))
	return &mean, nil
}

// touchProgress bumps the interaction counter in progress_data and returns the update map carrying it.
func touchProgress(attempt *types.JourneyAttempt, now time.Time, completedAt string) (map[string]interface{}, error) {
	progress, err := types.DecodeProgress(attempt.ProgressData)
	if err != nil {
		return nil, err
	}
	progress.InteractionCount++
	progress.LastInteraction = now.Format(time.RFC3339)
	if progress.StartedAt == "" {
		progress.StartedAt = now.Format(time.RFC3339)
	}
	if completedAt != "" {
		progress.CompletedAt = completedAt
	}
	raw, err := progress.Encode()
	if err != nil {
		return nil, err
	}
	attempt.ProgressData = raw
	return map[string]interface{}{"progress_data": raw}, nil
}

func mustJSON(v any) datatypes.JSON {
	b, err := json.Marshal(v)
	if err != nil {
		return datatypes.JSON([]byte(`{}`))
	}
	return datatypes.JSON(b)
}
