package journey

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/journey-tutor-backend/internal/domain"
	"github.com/yungbote/journey-tutor-backend/internal/platform/logger"
)

type JourneyAttemptRepo interface {
	Create(ctx context.Context, tx *gorm.DB, attempt *types.JourneyAttempt) (*types.JourneyAttempt, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.JourneyAttempt, error)
	ListByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID, journeyID uuid.UUID) ([]*types.JourneyAttempt, error)
	UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error
	// UpdateIfAtStep applies updates only while current_step still equals expectedStep.
	// It reports whether a row was changed.
	UpdateIfAtStep(ctx context.Context, tx *gorm.DB, id uuid.UUID, expectedStep int, updates map[string]interface{}) (bool, error)
}

type journeyAttemptRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewJourneyAttemptRepo(db *gorm.DB, baseLog *logger.Logger) JourneyAttemptRepo {
	return &journeyAttemptRepo{db: db, log: baseLog.With("repo", "JourneyAttemptRepo")}
}

func (r *journeyAttemptRepo) Create(ctx context.Context, tx *gorm.DB, attempt *types.JourneyAttempt) (*types.JourneyAttempt, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if attempt == nil {
		return nil, nil
	}
	if err := transaction.WithContext(ctx).Omit("Journey").Create(attempt).Error; err != nil {
		return nil, err
	}
	return attempt, nil
}

func (r *journeyAttemptRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.JourneyAttempt, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	var row types.JourneyAttempt
	if err := transaction.WithContext(ctx).Where("id = ?", id).Limit(1).Find(&row).Error; err != nil {
		return nil, err
	}
	if row.ID == uuid.Nil {
		return nil, nil
	}
	return &row, nil
}

func (r *journeyAttemptRepo) ListByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID, journeyID uuid.UUID) ([]*types.JourneyAttempt, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.JourneyAttempt
	if userID == uuid.Nil {
		return results, nil
	}
	q := transaction.WithContext(ctx).Where("user_id = ?", userID)
	if journeyID != uuid.Nil {
		q = q.Where("journey_id = ?", journeyID)
	}
	if err := q.Order("created_at DESC").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *journeyAttemptRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil || len(updates) == 0 {
		return nil
	}
	return transaction.WithContext(ctx).
		Model(&types.JourneyAttempt{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *journeyAttemptRepo) UpdateIfAtStep(ctx context.Context, tx *gorm.DB, id uuid.UUID, expectedStep int, updates map[string]interface{}) (bool, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil || len(updates) == 0 {
		return false, nil
	}
	res := transaction.WithContext(ctx).
		Model(&types.JourneyAttempt{}).
		Where("id = ? AND current_step = ?", id, expectedStep).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
