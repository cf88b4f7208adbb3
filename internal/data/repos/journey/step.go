package journey

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/journey-tutor-backend/internal/domain"
	"github.com/yungbote/journey-tutor-backend/internal/platform/logger"
)

type JourneyStepRepo interface {
	ListByJourney(ctx context.Context, tx *gorm.DB, journeyID uuid.UUID) ([]*types.JourneyStep, error)
	GetByOrder(ctx context.Context, tx *gorm.DB, journeyID uuid.UUID, order int) (*types.JourneyStep, error)
	GetFirst(ctx context.Context, tx *gorm.DB, journeyID uuid.UUID) (*types.JourneyStep, error)
	CountByJourney(ctx context.Context, tx *gorm.DB, journeyID uuid.UUID) (int, error)
	ReplaceForJourney(ctx context.Context, tx *gorm.DB, journeyID uuid.UUID, steps []*types.JourneyStep) error
}

type journeyStepRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewJourneyStepRepo(db *gorm.DB, baseLog *logger.Logger) JourneyStepRepo {
	return &journeyStepRepo{db: db, log: baseLog.With("repo", "JourneyStepRepo")}
}

func (r *journeyStepRepo) ListByJourney(ctx context.Context, tx *gorm.DB, journeyID uuid.UUID) ([]*types.JourneyStep, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.JourneyStep
	if journeyID == uuid.Nil {
		return results, nil
	}
	if err := transaction.WithContext(ctx).
		Where("journey_id = ?", journeyID).
		Order("step_order ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *journeyStepRepo) GetByOrder(ctx context.Context, tx *gorm.DB, journeyID uuid.UUID, order int) (*types.JourneyStep, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if journeyID == uuid.Nil || order <= 0 {
		return nil, nil
	}
	var row types.JourneyStep
	if err := transaction.WithContext(ctx).
		Where("journey_id = ? AND step_order = ?", journeyID, order).
		Limit(1).
		Find(&row).Error; err != nil {
		return nil, err
	}
	if row.ID == uuid.Nil {
		return nil, nil
	}
	return &row, nil
}

func (r *journeyStepRepo) GetFirst(ctx context.Context, tx *gorm.DB, journeyID uuid.UUID) (*types.JourneyStep, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if journeyID == uuid.Nil {
		return nil, nil
	}
	var row types.JourneyStep
	if err := transaction.WithContext(ctx).
		Where("journey_id = ?", journeyID).
		Order("step_order ASC").
		Limit(1).
		Find(&row).Error; err != nil {
		return nil, err
	}
	if row.ID == uuid.Nil {
		return nil, nil
	}
	return &row, nil
}

func (r *journeyStepRepo) CountByJourney(ctx context.Context, tx *gorm.DB, journeyID uuid.UUID) (int, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var n int64
	if err := transaction.WithContext(ctx).
		Model(&types.JourneyStep{}).
		Where("journey_id = ?", journeyID).
		Count(&n).Error; err != nil {
		return 0, err
	}
	return int(n), nil
}

// ReplaceForJourney deletes the journey's steps and inserts the given ones. Callers pass a transaction.
func (r *journeyStepRepo) ReplaceForJourney(ctx context.Context, tx *gorm.DB, journeyID uuid.UUID, steps []*types.JourneyStep) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if journeyID == uuid.Nil {
		return nil
	}
	if err := transaction.WithContext(ctx).
		Where("journey_id = ?", journeyID).
		Delete(&types.JourneyStep{}).Error; err != nil {
		return err
	}
	if len(steps) == 0 {
		return nil
	}
	for _, s := range steps {
		s.JourneyID = journeyID
	}
	return transaction.WithContext(ctx).Create(&steps).Error
}
