package journey

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/journey-tutor-backend/internal/domain"
	"github.com/yungbote/journey-tutor-backend/internal/platform/logger"
)

// JourneyStepResponseRepo has no update or delete: responses are append-only.
type JourneyStepResponseRepo interface {
	Create(ctx context.Context, tx *gorm.DB, row *types.JourneyStepResponse) (*types.JourneyStepResponse, error)
	// CountRated counts the responses for (attempt, step) that carry a rating.
	CountRated(ctx context.Context, tx *gorm.DB, attemptID, stepID uuid.UUID) (int, error)
	ListByAttempt(ctx context.Context, tx *gorm.DB, attemptID uuid.UUID) ([]*types.JourneyStepResponse, error)
	// ListRecentForStep returns up to limit responses for (attempt, step), oldest first.
	ListRecentForStep(ctx context.Context, tx *gorm.DB, attemptID, stepID uuid.UUID, limit int) ([]*types.JourneyStepResponse, error)
	ListRatedByAttempt(ctx context.Context, tx *gorm.DB, attemptID uuid.UUID) ([]*types.JourneyStepResponse, error)
}

type journeyStepResponseRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewJourneyStepResponseRepo(db *gorm.DB, baseLog *logger.Logger) JourneyStepResponseRepo {
	return &journeyStepResponseRepo{db: db, log: baseLog.With("repo", "JourneyStepResponseRepo")}
}

func (r *journeyStepResponseRepo) Create(ctx context.Context, tx *gorm.DB, row *types.JourneyStepResponse) (*types.JourneyStepResponse, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if row == nil {
		return nil, nil
	}
	if err := transaction.WithContext(ctx).Omit("Attempt").Create(row).Error; err != nil {
		return nil, err
	}
	return row, nil
}

func (r *journeyStepResponseRepo) CountRated(ctx context.Context, tx *gorm.DB, attemptID, stepID uuid.UUID) (int, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var n int64
	if err := transaction.WithContext(ctx).
		Model(&types.JourneyStepResponse{}).
		Where("attempt_id = ? AND step_id = ? AND step_rate IS NOT NULL", attemptID, stepID).
		Count(&n).Error; err != nil {
		return 0, err
	}
	return int(n), nil
}

func (r *journeyStepResponseRepo) ListByAttempt(ctx context.Context, tx *gorm.DB, attemptID uuid.UUID) ([]*types.JourneyStepResponse, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.JourneyStepResponse
	if attemptID == uuid.Nil {
		return results, nil
	}
	if err := transaction.WithContext(ctx).
		Where("attempt_id = ?", attemptID).
		Order("created_at ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *journeyStepResponseRepo) ListRecentForStep(ctx context.Context, tx *gorm.DB, attemptID, stepID uuid.UUID, limit int) ([]*types.JourneyStepResponse, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.JourneyStepResponse
	if attemptID == uuid.Nil || stepID == uuid.Nil || limit <= 0 {
		return results, nil
	}
	if err := transaction.WithContext(ctx).
		Where("attempt_id = ? AND step_id = ?", attemptID, stepID).
		Order("created_at DESC").
		Limit(limit).
		Find(&results).Error; err != nil {
		return nil, err
	}
	for i, j := 0, len(results)-1; i < j; i, j = i+1, j-1 {
		results[i], results[j] = results[j], results[i]
	}
	return results, nil
}

func (r *journeyStepResponseRepo) ListRatedByAttempt(ctx context.Context, tx *gorm.DB, attemptID uuid.UUID) ([]*types.JourneyStepResponse, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.JourneyStepResponse
	if attemptID == uuid.Nil {
		return results, nil
	}
	if err := transaction.WithContext(ctx).
		Where("attempt_id = ? AND step_rate IS NOT NULL", attemptID).
		Order("created_at ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
