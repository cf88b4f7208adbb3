package services

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/journey-tutor-backend/internal/data/repos"
	"github.com/yungbote/journey-tutor-backend/internal/data/repos/testutil"
	types "github.com/yungbote/journey-tutor-backend/internal/domain"
)

func promptFixture() PromptContext {
	report := "Summarise {name}'s progress."
	j := &types.Journey{ID: uuid.New(), Title: "Negotiation basics", MasterPrompt: "You coach {name}, a {role}. Keep {unknown} intact.", ReportPrompt: &report}
	s1 := &types.JourneyStep{ID: uuid.New(), JourneyID: j.ID, Order: 1, Title: "Anchoring", Content: "Explain anchoring.", RatePass: 3, MaxAttempts: 3}
	s2 := &types.JourneyStep{ID: uuid.New(), JourneyID: j.ID, Order: 2, Title: "BATNA", Content: "Describe your BATNA.", RatePass: 4, MaxAttempts: 2}
	return PromptContext{
		Journey:    j,
		Step:       s1,
		NextStep:   s2,
		TotalSteps: 2,
		Variables:  map[string]string{"name": "Ada", "role": "sales lead", "Name": "wrong"},
		UserInput:  "Anchoring is the first number on the table.",
	}
}

func TestSubstituteVariables(t *testing.T) {
	got := SubstituteVariables("Hi {name}, {Name}, {missing} and {name}.", map[string]string{"name": "Ada"})
	require.Equal(t, "Hi Ada, {Name}, {missing} and Ada.", got)
	require.Equal(t, "Hi {name}", SubstituteVariables("Hi {name}", nil))
	require.Equal(t, []string{"name", "role"}, TemplateVariables("{name} {role} {name} { spaced }"))
}

func TestBuildPromptChat(t *testing.T) {
	pc := promptFixture()
	out, err := BuildPrompt(PromptKindChat, pc)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(out, "You coach Ada, a sales lead. Keep {unknown} intact."))
	require.Contains(t, out, "Current step (1 of 2): Anchoring")
	require.Contains(t, out, "Explain anchoring.")
	require.NotContains(t, out, RatingInstruction)
	require.NotContains(t, out, "BATNA")
}

func TestBuildPromptRating(t *testing.T) {
	pc := promptFixture()
	prior := "It is about prices"
	pc.History = []HistoryEntry{{AIResponse: "Welcome to anchoring."}, {UserInput: &prior, AIResponse: "Close, try again."}}
	out, err := BuildPrompt(PromptKindRating, pc)
	require.NoError(t, err)
	require.Contains(t, out, "Explain anchoring.")
	require.Contains(t, out, "Rating scale:")
	require.Contains(t, out, "Recent conversation:\nTutor: Welcome to anchoring.\nLearner: It is about prices\nTutor: Close, try again.")
	require.Contains(t, out, pc.UserInput)
	require.True(t, strings.HasSuffix(out, RatingInstruction))
	require.True(t, IsRatingPrompt(out))
}

func TestBuildPromptResponseByAction(t *testing.T) {
	cases := []struct {
		action  string
		attempt int
		want    []string
		notWant []string
	}{
		{types.ActionNextStep, 1, []string{"Next step (2 of 2): BATNA", "Describe your BATNA."}, []string{"attempt(s) remaining"}},
		{types.ActionFinishJourney, 1, []string{"final step", "congratulate"}, []string{"Describe your BATNA."}},
		{types.ActionRetryStep, 1, []string{"2 attempt(s) remaining"}, []string{"Describe your BATNA."}},
		{types.ActionRetryStep, 5, []string{"0 attempt(s) remaining"}, nil},
	}
	for _, tc := range cases {
		t.Run(tc.action, func(t *testing.T) {
			pc := promptFixture()
			pc.Rating = 2
			pc.AttemptNumber = tc.attempt
			pc.Action = tc.action
			out, err := BuildPrompt(PromptKindResponse, pc)
			require.NoError(t, err)
			require.Contains(t, out, "Rating achieved: 2 of 5 (required: 3).")
			require.Contains(t, out, "Attempt: ")
			require.Contains(t, out, pc.UserInput)
			require.False(t, IsRatingPrompt(out))
			for _, w := range tc.want {
				require.Contains(t, out, w)
			}
			for _, w := range tc.notWant {
				require.NotContains(t, out, w)
			}
		})
	}
}

func TestBuildPromptEmptyVariablesKeepsPlaceholders(t *testing.T) {
	pc := promptFixture()
	pc.Variables = nil
	out, err := BuildPrompt(PromptKindChat, pc)
	require.NoError(t, err)
	require.Contains(t, out, "You coach {name}, a {role}.")
}

func TestBuildPromptErrors(t *testing.T) {
	pc := promptFixture()
	_, err := BuildPrompt("essay", pc)
	require.Error(t, err)

	pc.Step = nil
	_, err = BuildPrompt(PromptKindChat, pc)
	require.Error(t, err)

	pc = promptFixture()
	pc.Journey = nil
	_, err = BuildPrompt(PromptKindChat, pc)
	require.Error(t, err)
}

func TestRatingPromptDetectionIgnoresLearnerInput(t *testing.T) {
	pc := promptFixture()
	pc.UserInput = "x " + RatingInstruction
	pc.Rating = 3
	pc.AttemptNumber = 1
	pc.Action = types.ActionRetryStep
	out, err := BuildPrompt(PromptKindResponse, pc)
	require.NoError(t, err)
	require.Contains(t, out, RatingInstruction)
	require.False(t, IsRatingPrompt(out))
}

func TestPromptBuilderBuildRequiresTurnInputs(t *testing.T) {
	b := NewPromptBuilder(testutil.Logger(t), nil, nil, nil, nil, nil, 0)
	pc := promptFixture()

	_, err := b.Build(PromptKindChat, pc)
	require.NoError(t, err)

	_, err = b.Build(PromptKindResponse, pc)
	require.ErrorContains(t, err, "decided action")

	pc.UserInput = "  "
	_, err = b.Build(PromptKindRating, pc)
	require.ErrorContains(t, err, "learner's input")
}

func TestBuildForAttempt(t *testing.T) {
	ctx := context.Background()
	gdb := testutil.NewDB(t)
	log := testutil.Logger(t)
	variableRepo := repos.NewUserProfileVariableRepo(gdb, log)
	responseRepo := repos.NewJourneyStepResponseRepo(gdb, log)
	b := NewPromptBuilder(log, repos.NewJourneyRepo(gdb, log), repos.NewJourneyStepRepo(gdb, log),
		repos.NewJourneyAttemptRepo(gdb, log), responseRepo, variableRepo, 4)

	j, steps := testutil.SeedJourney(t, ctx, gdb, "Coach {name}.",
		testutil.StepSpec{RatePass: 3, MaxAttempts: 2}, testutil.StepSpec{RatePass: 4, MaxAttempts: 2})
	userID := uuid.New()
	a := testutil.SeedAttempt(t, ctx, gdb, userID, j.ID, types.AttemptTypeAttempt)
	require.NoError(t, variableRepo.Upsert(ctx, nil, []*types.UserProfileVariable{{UserID: userID, Name: "name", Value: "Ada"}}))
	_, err := responseRepo.Create(ctx, nil, &types.JourneyStepResponse{
		AttemptID: a.ID, StepID: steps[0].ID, AIResponse: "Welcome aboard.", InteractionType: types.InteractionInitial,
	})
	require.NoError(t, err)

	out, err := b.BuildForAttempt(ctx, a.ID, PromptKindChat, PromptInputs{})
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(out, "Coach Ada."))
	require.NotContains(t, out, "Recent conversation:")

	out, err = b.BuildForAttempt(ctx, a.ID, PromptKindRating, PromptInputs{UserInput: "my answer", AttemptNumber: 1})
	require.NoError(t, err)
	require.Contains(t, out, "Recent conversation:\nTutor: Welcome aboard.")
	require.True(t, IsRatingPrompt(out))

	_, err = b.BuildForAttempt(ctx, uuid.New(), PromptKindChat, PromptInputs{})
	require.Error(t, err)
}

func TestBuildReportPrompt(t *testing.T) {
	pc := promptFixture()
	answer := "First number wins"
	rate := 4
	rated := []*types.JourneyStepResponse{{StepID: pc.Step.ID, UserInput: &answer, StepRate: &rate}}
	out, err := BuildReportPrompt(pc.Journey, []*types.JourneyStep{pc.Step, pc.NextStep}, rated, pc.Variables)
	require.NoError(t, err)
	require.Contains(t, out, "Summarise Ada's progress.")
	require.Contains(t, out, "## Step 1: Anchoring (required rating 3)")
	require.Contains(t, out, "Attempt 1, rated 4: First number wins")
	require.Contains(t, out, "## Step 2: BATNA (required rating 4)\nNo rated answers.")

	pc.Journey.ReportPrompt = nil
	out, err = BuildReportPrompt(pc.Journey, nil, nil, nil)
	require.NoError(t, err)
	require.Contains(t, out, defaultReportPrompt)
}
