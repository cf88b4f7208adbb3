package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/journey-tutor-backend/internal/data/repos"
	types "github.com/yungbote/journey-tutor-backend/internal/domain"
	"github.com/yungbote/journey-tutor-backend/internal/observability"
	"github.com/yungbote/journey-tutor-backend/internal/platform/apierr"
	"github.com/yungbote/journey-tutor-backend/internal/platform/locks"
	"github.com/yungbote/journey-tutor-backend/internal/platform/logger"
	"github.com/yungbote/journey-tutor-backend/internal/realtime"
)

const maxVariableNameLen = 64

var variableName = regexp.MustCompile(`^[A-Za-z0-9_.\-]+$`)

// AttemptView is an attempt with its step responses, oldest first.
type AttemptView struct {
	Attempt    *types.JourneyAttempt        `json:"attempt"`
	Journey    *types.Journey               `json:"journey"`
	TotalSteps int                          `json:"total_steps"`
	Responses  []*types.JourneyStepResponse `json:"responses"`
}

type JourneyAttemptService interface {
	ListSteps(ctx context.Context, journeyID uuid.UUID) (*types.Journey, []*types.JourneyStep, error)
	Start(ctx context.Context, userID, journeyID uuid.UUID) (*types.JourneyAttempt, error)
	StartPreview(ctx context.Context, userID, journeyID uuid.UUID) (*types.JourneyAttempt, error)
	Get(ctx context.Context, userID, attemptID uuid.UUID) (*AttemptView, error)
	Abandon(ctx context.Context, userID, attemptID uuid.UUID) (*types.JourneyAttempt, error)
	PutVariables(ctx context.Context, userID uuid.UUID, vars map[string]string) error
	Report(ctx context.Context, userID, attemptID uuid.UUID) (string, error)
}

type journeyAttemptService struct {
	log       *logger.Logger
	journeys  repos.JourneyRepo
	steps     repos.JourneyStepRepo
	attempts  repos.JourneyAttemptRepo
	responses repos.JourneyStepResponseRepo
	variables repos.UserProfileVariableRepo
	prompts   *PromptBuilder
	responder *AIResponder
	sink      *PromptLogSink
	locker    locks.Locker
	notifier  *realtime.Notifier
}

func NewJourneyAttemptService(
	baseLog *logger.Logger,
	journeyRepo repos.JourneyRepo,
	stepRepo repos.JourneyStepRepo,
	attemptRepo repos.JourneyAttemptRepo,
	responseRepo repos.JourneyStepResponseRepo,
	variableRepo repos.UserProfileVariableRepo,
	prompts *PromptBuilder,
	responder *AIResponder,
	sink *PromptLogSink,
	locker locks.Locker,
	notifier *realtime.Notifier,
) JourneyAttemptService {
	if locker == nil {
		locker = locks.NewLocalLocker()
	}
	return &journeyAttemptService{
		log:       baseLog.With("service", "JourneyAttemptService"),
		journeys:  journeyRepo,
		steps:     stepRepo,
		attempts:  attemptRepo,
		responses: responseRepo,
		variables: variableRepo,
		prompts:   prompts,
		responder: responder,
		sink:      sink,
		locker:    locker,
		notifier:  notifier,
	}
}

func (s *journeyAttemptService) ListSteps(ctx context.Context, journeyID uuid.UUID) (*types.Journey, []*types.JourneyStep, error) {
	journey, err := s.journeys.GetByID(ctx, nil, journeyID)
	if err != nil {
		return nil, nil, fmt.Errorf("load journey: %w", err)
	}
	if journey == nil {
		return nil, nil, apierr.NotFound("journey")
	}
	steps, err := s.steps.ListByJourney(ctx, nil, journeyID)
	if err != nil {
		return nil, nil, fmt.Errorf("load steps: %w", err)
	}
	return journey, steps, nil
}

func (s *journeyAttemptService) Start(ctx context.Context, userID, journeyID uuid.UUID) (*types.JourneyAttempt, error) {
	return s.start(ctx, userID, journeyID, types.AttemptTypeAttempt)
}

func (s *journeyAttemptService) StartPreview(ctx context.Context, userID, journeyID uuid.UUID) (*types.JourneyAttempt, error) {
	return s.start(ctx, userID, journeyID, types.AttemptTypePreview)
}

func (s *journeyAttemptService) start(ctx context.Context, userID, journeyID uuid.UUID, journeyType string) (*types.JourneyAttempt, error) {
	journey, err := s.journeys.GetByID(ctx, nil, journeyID)
	if err != nil {
		return nil, fmt.Errorf("load journey: %w", err)
	}
	if journey == nil {
		return nil, apierr.NotFound("journey")
	}
	preview := journeyType == types.AttemptTypePreview
	if !preview && journey.Status != types.JourneyStatusPublished {
		return nil, apierr.Conflict("journey_unpublished", fmt.Errorf("journey %q is not published", journey.Title))
	}
	first, err := s.steps.GetFirst(ctx, nil, journey.ID)
	if err != nil {
		return nil, fmt.Errorf("load first step: %w", err)
	}
	if first == nil {
		return nil, apierr.Conflict("journey_empty", ErrJourneyHasNoSteps)
	}

	progress := types.Progress{Preview: preview}
	if !preview {
		progress.Variables = map[string]string{}
		if names := TemplateVariables(journey.MasterPrompt); len(names) > 0 {
			vars, err := s.variables.GetMap(ctx, nil, userID, names)
			if err != nil {
				return nil, fmt.Errorf("load profile variables: %w", err)
			}
			progress.Variables = vars
		}
	}
	raw, err := progress.Encode()
	if err != nil {
		return nil, err
	}
	attempt, err := s.attempts.Create(ctx, nil, &types.JourneyAttempt{
		UserID:       userID,
		JourneyID:    journey.ID,
		Status:       types.AttemptStatusNotStarted,
		JourneyType:  journeyType,
		CurrentStep:  first.Order,
		ProgressData: raw,
	})
	if err != nil {
		return nil, fmt.Errorf("create attempt: %w", err)
	}
	s.log.Info("journey attempt started", "attempt_id", attempt.ID, "journey_id", journey.ID, "journey_type", journeyType)
	s.notifier.NotifyUser(ctx, userID, realtime.SSEEventJourneyAttemptStarted, map[string]any{
		"attempt_id":   attempt.ID,
		"journey_id":   journey.ID,
		"journey_type": journeyType,
	})
	return attempt, nil
}

func (s *journeyAttemptService) ownedAttempt(ctx context.Context, userID, attemptID uuid.UUID) (*types.JourneyAttempt, error) {
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
	return attempt, nil
}

func (s *journeyAttemptService) Get(ctx context.Context, userID, attemptID uuid.UUID) (*AttemptView, error) {
	attempt, err := s.ownedAttempt(ctx, userID, attemptID)
	if err != nil {
		return nil, err
	}
	journey, err := s.journeys.GetByID(ctx, nil, attempt.JourneyID)
	if err != nil {
		return nil, fmt.Errorf("load journey: %w", err)
	}
	total, err := s.steps.CountByJourney(ctx, nil, attempt.JourneyID)
	if err != nil {
		return nil, fmt.Errorf("count steps: %w", err)
	}
	rows, err := s.responses.ListByAttempt(ctx, nil, attempt.ID)
	if err != nil {
		return nil, fmt.Errorf("load responses: %w", err)
	}
	return &AttemptView{Attempt: attempt, Journey: journey, TotalSteps: total, Responses: rows}, nil
}

func (s *journeyAttemptService) lock(ctx context.Context, attemptID uuid.UUID) (func(), error) {
	release, err := s.locker.TryLock(ctx, attemptLockKey(attemptID))
	if errors.Is(err, locks.ErrBusy) {
		return nil, apierr.Conflict("attempt_busy", errors.New("another turn is in progress for this attempt"))
	}
	if err != nil {
		return nil, fmt.Errorf("lock attempt: %w", err)
	}
	return release, nil
}

func (s *journeyAttemptService) Abandon(ctx context.Context, userID, attemptID uuid.UUID) (*types.JourneyAttempt, error) {
	release, err := s.lock(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	defer release()

	attempt, err := s.ownedAttempt(ctx, userID, attemptID)
	if err != nil {
		return nil, err
	}
	if attempt.IsClosed() {
		return nil, apierr.Conflict("attempt_closed", fmt.Errorf("attempt is %s", attempt.Status))
	}
	if err := s.attempts.UpdateFields(ctx, nil, attempt.ID, map[string]interface{}{
		"status": types.AttemptStatusAbandoned,
	}); err != nil {
		return nil, fmt.Errorf("abandon attempt: %w", err)
	}
	attempt.Status = types.AttemptStatusAbandoned
	s.notifier.NotifyUser(ctx, userID, realtime.SSEEventJourneyAttemptAbandoned, map[string]any{
		"attempt_id": attempt.ID,
		"journey_id": attempt.JourneyID,
	})
	return attempt, nil
}

func (s *journeyAttemptService) PutVariables(ctx context.Context, userID uuid.UUID, vars map[string]string) error {
	if len(vars) == 0 {
		return apierr.BadRequest(errors.New("no variables given"))
	}
	rows := make([]*types.UserProfileVariable, 0, len(vars))
	for name, value := range vars {
		name = strings.TrimSpace(name)
		if name == "" || len(name) > maxVariableNameLen || !variableName.MatchString(name) {
			return apierr.BadRequest(fmt.Errorf("invalid variable name %q", name))
		}
		rows = append(rows, &types.UserProfileVariable{UserID: userID, Name: name, Value: value})
	}
	if err := s.variables.Upsert(ctx, nil, rows); err != nil {
		return fmt.Errorf("save profile variables: %w", err)
	}
	return nil
}

// Report generates and stores the end-of-journey report of a completed attempt.
func (s *journeyAttemptService) Report(ctx context.Context, userID, attemptID uuid.UUID) (string, error) {
	release, err := s.lock(ctx, attemptID)
	if err != nil {
		return "", err
	}
	defer release()

	attempt, err := s.ownedAttempt(ctx, userID, attemptID)
	if err != nil {
		return "", err
	}
	if attempt.Status != types.AttemptStatusCompleted {
		return "", apierr.New(http.StatusConflict, "attempt_not_completed", errors.New("reports are available once the journey is completed"))
	}
	journey, err := s.journeys.GetByID(ctx, nil, attempt.JourneyID)
	if err != nil {
		return "", fmt.Errorf("load journey: %w", err)
	}
	if journey == nil {
		return "", apierr.NotFound("journey")
	}
	steps, err := s.steps.ListByJourney(ctx, nil, journey.ID)
	if err != nil {
		return "", fmt.Errorf("load steps: %w", err)
	}
	rated, err := s.responses.ListRatedByAttempt(ctx, nil, attempt.ID)
	if err != nil {
		return "", fmt.Errorf("load ratings: %w", err)
	}
	prompt, err := BuildReportPrompt(journey, steps, rated, s.prompts.Variables(ctx, attempt, journey))
	if err != nil {
		return "", err
	}

	work := context.WithoutCancel(ctx)
	gen := s.responder.Generate(work, PromptKindReport, prompt, TemperatureReport)

	progress, err := types.DecodeProgress(attempt.ProgressData)
	if err != nil {
		return "", err
	}
	progress.Report = gen.Text
	progress.LastInteraction = time.Now().UTC().Format(time.RFC3339)
	raw, err := progress.Encode()
	if err != nil {
		return "", err
	}
	if err := s.attempts.UpdateFields(work, nil, attempt.ID, map[string]interface{}{"progress_data": raw}); err != nil {
		return "", fmt.Errorf("save report: %w", err)
	}

	s.sink.Write(work, PromptLogEntry{
		AttemptID:   attempt.ID,
		UserID:      attempt.UserID,
		JourneyID:   attempt.JourneyID,
		ActionType:  types.PromptActionSubmitReport,
		Prompt:      prompt,
		Temperature: TemperatureReport,
		Generated:   gen,
		Metadata:    map[string]any{"preview": attempt.IsPreview(), "rated_responses": len(rated)},
	})
	observability.Current().IncReport()
	s.notifier.NotifyUser(work, userID, realtime.SSEEventJourneyReportReady, map[string]any{
		"attempt_id": attempt.ID,
		"journey_id": attempt.JourneyID,
	})
	return gen.Text, nil
}
