package journey

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/yungbote/journey-tutor-backend/internal/data/repos/testutil"
	types "github.com/yungbote/journey-tutor-backend/internal/domain"
)

func TestJourneyAndStepRepos(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	log := testutil.Logger(t)

	journeys := NewJourneyRepo(db, log)
	steps := NewJourneyStepRepo(db, log)

	created, err := journeys.Create(ctx, tx, []*types.Journey{{Title: "Negotiation basics " + uuid.NewString(), MasterPrompt: "You coach {name}."}})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	j := created[0]
	if j.ID == uuid.Nil || j.Status != types.JourneyStatusPublished {
		t.Fatalf("Create: expected id and default status, got %+v", j)
	}

	got, err := journeys.GetByTitle(ctx, tx, j.Title)
	if err != nil || got == nil || got.ID != j.ID {
		t.Fatalf("GetByTitle: got %+v err %v", got, err)
	}
	missing, err := journeys.GetByID(ctx, tx, uuid.New())
	if err != nil || missing != nil {
		t.Fatalf("GetByID missing: got %+v err %v", missing, err)
	}

	if err := steps.ReplaceForJourney(ctx, tx, j.ID, []*types.JourneyStep{
		{Order: 2, Title: "Second", Content: "b", RatePass: 3, MaxAttempts: 2},
		{Order: 1, Title: "First", Content: "a", RatePass: 4, MaxAttempts: 3},
	}); err != nil {
		t.Fatalf("ReplaceForJourney: %v", err)
	}

	list, err := steps.ListByJourney(ctx, tx, j.ID)
	if err != nil {
		t.Fatalf("ListByJourney: %v", err)
	}
	if len(list) != 2 || list[0].Order != 1 || list[1].Order != 2 {
		t.Fatalf("ListByJourney: unexpected order %+v", list)
	}

	first, err := steps.GetFirst(ctx, tx, j.ID)
	if err != nil || first == nil || first.Title != "First" {
		t.Fatalf("GetFirst: got %+v err %v", first, err)
	}
	second, err := steps.GetByOrder(ctx, tx, j.ID, 2)
	if err != nil || second == nil || second.Title != "Second" {
		t.Fatalf("GetByOrder: got %+v err %v", second, err)
	}
	none, err := steps.GetByOrder(ctx, tx, j.ID, 3)
	if err != nil || none != nil {
		t.Fatalf("GetByOrder past end: got %+v err %v", none, err)
	}
	n, err := steps.CountByJourney(ctx, tx, j.ID)
	if err != nil || n != 2 {
		t.Fatalf("CountByJourney: got %d err %v", n, err)
	}

	if err := steps.ReplaceForJourney(ctx, tx, j.ID, []*types.JourneyStep{{Order: 1, Title: "Only", Content: "c", RatePass: 3, MaxAttempts: 1}}); err != nil {
		t.Fatalf("ReplaceForJourney (second): %v", err)
	}
	n, _ = steps.CountByJourney(ctx, tx, j.ID)
	if n != 1 {
		t.Fatalf("ReplaceForJourney should leave 1 step, got %d", n)
	}
}

func TestAttemptRepoConditionalUpdate(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()

	j, _ := testutil.SeedJourney(t, ctx, tx, "prompt", testutil.StepSpec{RatePass: 3, MaxAttempts: 3}, testutil.StepSpec{RatePass: 3, MaxAttempts: 3})
	userID := uuid.New()
	repo := NewJourneyAttemptRepo(db, testutil.Logger(t))

	a, err := repo.Create(ctx, tx, &types.JourneyAttempt{UserID: userID, JourneyID: j.ID})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if a.CurrentStep != 1 || a.Status != types.AttemptStatusNotStarted || a.JourneyType != types.AttemptTypeAttempt {
		t.Fatalf("Create: defaults not applied: %+v", a)
	}
	if string(a.ProgressData) != "{}" {
		t.Fatalf("Create: progress_data should default to {}, got %s", a.ProgressData)
	}

	ok, err := repo.UpdateIfAtStep(ctx, tx, a.ID, 1, map[string]interface{}{"current_step": 2})
	if err != nil || !ok {
		t.Fatalf("UpdateIfAtStep (match): ok=%v err=%v", ok, err)
	}
	ok, err = repo.UpdateIfAtStep(ctx, tx, a.ID, 1, map[string]interface{}{"current_step": 3})
	if err != nil {
		t.Fatalf("UpdateIfAtStep (stale): %v", err)
	}
	if ok {
		t.Fatalf("UpdateIfAtStep (stale): expected no row changed")
	}

	got, err := repo.GetByID(ctx, tx, a.ID)
	if err != nil || got == nil {
		t.Fatalf("GetByID: got %+v err %v", got, err)
	}
	if got.CurrentStep != 2 {
		t.Fatalf("current_step = %d, want 2", got.CurrentStep)
	}

	if err := repo.UpdateFields(ctx, tx, a.ID, map[string]interface{}{"status": types.AttemptStatusAbandoned}); err != nil {
		t.Fatalf("UpdateFields: %v", err)
	}
	list, err := repo.ListByUser(ctx, tx, userID, j.ID)
	if err != nil || len(list) != 1 || list[0].Status != types.AttemptStatusAbandoned {
		t.Fatalf("ListByUser: got %+v err %v", list, err)
	}
}
