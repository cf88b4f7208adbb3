package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/yungbote/journey-tutor-backend/internal/data/repos"
	types "github.com/yungbote/journey-tutor-backend/internal/domain"
	"github.com/yungbote/journey-tutor-backend/internal/platform/logger"
)

type PromptKind string

const (
	PromptKindChat     PromptKind = "chat"
	PromptKindRating   PromptKind = "rating"
	PromptKindResponse PromptKind = "response"
	PromptKindReport   PromptKind = "report"
)

// RatingInstruction ends every rating prompt.
const RatingInstruction = "Respond with a single digit from 1 to 5 and nothing else."

const ratingRubric = `Rating scale:
1 - No real attempt, or off topic.
2 - Attempted, but mostly incorrect or incomplete.
3 - Partly meets the goals of the step.
4 - Meets the goals of the step with minor gaps.
5 - Fully meets the goals of the step and shows insight.`

var templateVar = regexp.MustCompile(`\{([A-Za-z0-9_.\-]+)\}`)

type HistoryEntry struct {
	UserInput  *string
	AIResponse string
	Rating     *int
}

// PromptContext is everything a prompt is built from.
type PromptContext struct {
	Journey       *types.Journey
	Step          *types.JourneyStep
	NextStep      *types.JourneyStep
	TotalSteps    int
	Variables     map[string]string
	History       []HistoryEntry
	UserInput     string
	Rating        int
	AttemptNumber int
	Action        string
}

// SubstituteVariables replaces {name} tokens that have an exact entry in vars. Other tokens stay as written.
func SubstituteVariables(template string, vars map[string]string) string {
	if len(vars) == 0 {
		return template
	}
	return templateVar.ReplaceAllStringFunc(template, func(tok string) string {
		name := tok[1 : len(tok)-1]
		if v, ok := vars[name]; ok {
			return v
		}
		return tok
	})
}

// TemplateVariables lists the distinct token names in template, in first-seen order.
func TemplateVariables(template string) []string {
	seen := map[string]bool{}
	var out []string
	for _, m := range templateVar.FindAllStringSubmatch(template, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			out = append(out, m[1])
		}
	}
	return out
}

// BuildPrompt assembles the model prompt for kind. It has no side effects.
func BuildPrompt(kind PromptKind, pc PromptContext) (string, error) {
	if pc.Journey == nil {
		return "", errors.New("prompt: journey required")
	}
	if pc.Step == nil {
		return "", errors.New("prompt: step required")
	}

	var b strings.Builder
	b.WriteString(strings.TrimSpace(SubstituteVariables(pc.Journey.MasterPrompt, pc.Variables)))
	b.WriteString("\n\n")

	switch kind {
	case PromptKindChat:
		writeStep(&b, "Current step", pc.Step, pc.TotalSteps)
		b.WriteString("\nOpen this step for the learner: introduce it in your own words and invite their answer.")
	case PromptKindRating:
		fmt.Fprintf(&b, "You are evaluating a learner's answer for the step %q.\n\nStep content:\n%s\n\n", pc.Step.Title, strings.TrimSpace(pc.Step.Content))
		b.WriteString(ratingRubric)
		b.WriteString("\n\n")
		writeHistory(&b, pc.History)
		fmt.Fprintf(&b, "Learner's answer:\n%s\n\n", pc.UserInput)
		b.WriteString(RatingInstruction)
	case PromptKindResponse:
		writeStep(&b, "Current step", pc.Step, pc.TotalSteps)
		b.WriteString("\n")
		writeHistory(&b, pc.History)
		fmt.Fprintf(&b, "Learner's answer:\n%s\n\n", pc.UserInput)
		fmt.Fprintf(&b, "Rating achieved: %d of 5 (required: %d).\n", pc.Rating, pc.Step.RatePass)
		fmt.Fprintf(&b, "Attempt: %d of %d.\n\n", pc.AttemptNumber, pc.Step.MaxAttempts)
		writeActionInstructions(&b, pc)
	default:
		return "", fmt.Errorf("prompt: unknown kind %q", kind)
	}
	return b.String(), nil
}

func writeStep(b *strings.Builder, label string, step *types.JourneyStep, total int) {
	if total > 0 {
		fmt.Fprintf(b, "## %s (%d of %d): %s\n", label, step.Order, total, step.Title)
	} else {
		fmt.Fprintf(b, "## %s (%d): %s\n", label, step.Order, step.Title)
	}
	b.WriteString(strings.TrimSpace(step.Content))
	b.WriteString("\n")
}

func writeHistory(b *strings.Builder, history []HistoryEntry) {
	if len(history) == 0 {
		return
	}
	b.WriteString("Recent conversation:\n")
	for _, h := range history {
		if h.UserInput != nil && strings.TrimSpace(*h.UserInput) != "" {
			fmt.Fprintf(b, "Learner: %s\n", strings.TrimSpace(*h.UserInput))
		}
		if strings.TrimSpace(h.AIResponse) != "" {
			fmt.Fprintf(b, "Tutor: %s\n", strings.TrimSpace(h.AIResponse))
		}
	}
	b.WriteString("\n")
}

func writeActionInstructions(b *strings.Builder, pc PromptContext) {
	switch pc.Action {
	case types.ActionNextStep:
		b.WriteString("The learner now moves on. Give short feedback on their answer, then write a transition into the next step.\n")
		if pc.NextStep != nil {
			b.WriteString("\n")
			writeStep(b, "Next step", pc.NextStep, pc.TotalSteps)
		}
	case types.ActionFinishJourney:
		b.WriteString("This was the final step. Give short feedback on their answer, then close the journey: recap what the learner worked through and congratulate them.\n")
	default:
		remaining := pc.Step.MaxAttempts - pc.AttemptNumber
		if remaining < 0 {
			remaining = 0
		}
		fmt.Fprintf(b, "The learner has not passed this step yet. Coach them: say what is missing and how to improve without giving the full answer away. They have %d attempt(s) remaining.\n", remaining)
	}
}

// PromptBuilder loads prompt context for an attempt from storage.
type PromptBuilder struct {
	log          *logger.Logger
	journeys     repos.JourneyRepo
	steps        repos.JourneyStepRepo
	attempts     repos.JourneyAttemptRepo
	responses    repos.JourneyStepResponseRepo
	variables    repos.UserProfileVariableRepo
	historyLimit int
}

func NewPromptBuilder(
	baseLog *logger.Logger,
	journeyRepo repos.JourneyRepo,
	stepRepo repos.JourneyStepRepo,
	attemptRepo repos.JourneyAttemptRepo,
	responseRepo repos.JourneyStepResponseRepo,
	variableRepo repos.UserProfileVariableRepo,
	historyLimit int,
) *PromptBuilder {
	if historyLimit < 0 {
		historyLimit = 0
	}
	return &PromptBuilder{
		log:          baseLog.With("service", "PromptBuilder"),
		journeys:     journeyRepo,
		steps:        stepRepo,
		attempts:     attemptRepo,
		responses:    responseRepo,
		variables:    variableRepo,
		historyLimit: historyLimit,
	}
}

// Variables returns the substitution map for an attempt. Previews use only what progress_data holds;
// regular attempts without a snapshot read the learner's live profile variables.
func (b *PromptBuilder) Variables(ctx context.Context, attempt *types.JourneyAttempt, journey *types.Journey) map[string]string {
	progress, err := types.DecodeProgress(attempt.ProgressData)
	if err != nil {
		b.log.Warn("progress_data unreadable; substituting no variables", "attempt_id", attempt.ID, "error", err)
		return map[string]string{}
	}
	if progress.Variables != nil || attempt.IsPreview() || b.variables == nil {
		if progress.Variables == nil {
			return map[string]string{}
		}
		return progress.Variables
	}
	names := TemplateVariables(journey.MasterPrompt)
	if len(names) == 0 {
		return map[string]string{}
	}
	vars, err := b.variables.GetMap(ctx, nil, attempt.UserID, names)
	if err != nil {
		b.log.Warn("profile variables unavailable", "user_id", attempt.UserID, "error", err)
		return map[string]string{}
	}
	return vars
}

// History returns the recent exchanges on a step, oldest first.
func (b *PromptBuilder) History(ctx context.Context, attemptID, stepID uuid.UUID) []HistoryEntry {
	if b.historyLimit == 0 || b.responses == nil {
		return nil
	}
	rows, err := b.responses.ListRecentForStep(ctx, nil, attemptID, stepID, b.historyLimit)
	if err != nil {
		b.log.Warn("history unavailable", "attempt_id", attemptID, "error", err)
		return nil
	}
	out := make([]HistoryEntry, 0, len(rows))
	for _, r := range rows {
		out = append(out, HistoryEntry{UserInput: r.UserInput, AIResponse: r.AIResponse, Rating: r.StepRate})
	}
	return out
}

// Build checks that pc has what kind needs, then builds the prompt.
func (b *PromptBuilder) Build(kind PromptKind, pc PromptContext) (string, error) {
	if (kind == PromptKindRating || kind == PromptKindResponse) && strings.TrimSpace(pc.UserInput) == "" {
		return "", fmt.Errorf("prompt: %s prompt needs the learner's input", kind)
	}
	if kind == PromptKindResponse && pc.Action == "" {
		return "", errors.New("prompt: response prompt needs a decided action")
	}
	return BuildPrompt(kind, pc)
}

// ContextFor assembles the stored parts of a prompt for step. History is loaded for every kind but chat.
func (b *PromptBuilder) ContextFor(
	ctx context.Context,
	attempt *types.JourneyAttempt,
	journey *types.Journey,
	steps []*types.JourneyStep,
	step, next *types.JourneyStep,
	kind PromptKind,
) PromptContext {
	pc := PromptContext{
		Journey:    journey,
		Step:       step,
		NextStep:   next,
		TotalSteps: len(steps),
		Variables:  b.Variables(ctx, attempt, journey),
	}
	if kind != PromptKindChat && step != nil {
		pc.History = b.History(ctx, attempt.ID, step.ID)
	}
	return pc
}

// PromptInputs are the turn-specific parts of a prompt.
type PromptInputs struct {
	UserInput     string
	Rating        int
	AttemptNumber int
	Action        string
}

// BuildForAttempt loads the attempt's journey, current step and neighbours, then builds the prompt.
func (b *PromptBuilder) BuildForAttempt(ctx context.Context, attemptID uuid.UUID, kind PromptKind, in PromptInputs) (string, error) {
	attempt, err := b.attempts.GetByID(ctx, nil, attemptID)
	if err != nil {
		return "", fmt.Errorf("load attempt: %w", err)
	}
	if attempt == nil {
		return "", fmt.Errorf("attempt %s not found", attemptID)
	}
	journey, err := b.journeys.GetByID(ctx, nil, attempt.JourneyID)
	if err != nil {
		return "", fmt.Errorf("load journey: %w", err)
	}
	if journey == nil {
		return "", fmt.Errorf("journey %s not found", attempt.JourneyID)
	}
	steps, err := b.steps.ListByJourney(ctx, nil, journey.ID)
	if err != nil {
		return "", fmt.Errorf("load steps: %w", err)
	}
	step, next := stepAndNext(steps, attempt.CurrentStep)
	if step == nil {
		return "", fmt.Errorf("%w: order %d", ErrStepNotFound, attempt.CurrentStep)
	}
	pc := b.ContextFor(ctx, attempt, journey, steps, step, next, kind)
	pc.UserInput = in.UserInput
	pc.Rating = in.Rating
	pc.AttemptNumber = in.AttemptNumber
	pc.Action = in.Action
	return b.Build(kind, pc)
}

// stepAndNext finds the step with the given order and the one after it.
func stepAndNext(steps []*types.JourneyStep, order int) (*types.JourneyStep, *types.JourneyStep) {
	for i, s := range steps {
		if s.Order == order {
			if i+1 < len(steps) {
				return s, steps[i+1]
			}
			return s, nil
		}
	}
	return nil, nil
}

const defaultReportPrompt = "Write a short report for the learner on the journey they just completed. " +
	"For each step, note what they did well and what they could strengthen, then close with an overall summary."

// BuildReportPrompt assembles the end-of-journey report prompt from the rated responses of an attempt.
func BuildReportPrompt(journey *types.Journey, steps []*types.JourneyStep, rated []*types.JourneyStepResponse, vars map[string]string) (string, error) {
	if journey == nil {
		return "", errors.New("prompt: journey required")
	}
	instructions := defaultReportPrompt
	if journey.ReportPrompt != nil && strings.TrimSpace(*journey.ReportPrompt) != "" {
		instructions = strings.TrimSpace(*journey.ReportPrompt)
	}

	byStep := map[uuid.UUID][]*types.JourneyStepResponse{}
	for _, r := range rated {
		byStep[r.StepID] = append(byStep[r.StepID], r)
	}

	var b strings.Builder
	b.WriteString(strings.TrimSpace(SubstituteVariables(journey.MasterPrompt, vars)))
	b.WriteString("\n\n")
	b.WriteString(SubstituteVariables(instructions, vars))
	fmt.Fprintf(&b, "\n\nJourney: %s\n", journey.Title)
	for _, s := range steps {
		fmt.Fprintf(&b, "\n## Step %d: %s (required rating %d)\n", s.Order, s.Title, s.RatePass)
		rows := byStep[s.ID]
		if len(rows) == 0 {
			b.WriteString("No rated answers.\n")
			continue
		}
		for i, r := range rows {
			answer := ""
			if r.UserInput != nil {
				answer = strings.TrimSpace(*r.UserInput)
			}
			rating := 0
			if r.StepRate != nil {
				rating = *r.StepRate
			}
			fmt.Fprintf(&b, "Attempt %d, rated %d: %s\n", i+1, rating, answer)
		}
	}
	return b.String(), nil
}
