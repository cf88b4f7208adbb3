package journey

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/journey-tutor-backend/internal/domain"
	"github.com/yungbote/journey-tutor-backend/internal/platform/logger"
)

type JourneyRepo interface {
	Create(ctx context.Context, tx *gorm.DB, journeys []*types.Journey) ([]*types.Journey, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Journey, error)
	GetByTitle(ctx context.Context, tx *gorm.DB, title string) (*types.Journey, error)
	List(ctx context.Context, tx *gorm.DB, status string) ([]*types.Journey, error)
	UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error
}

type journeyRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewJourneyRepo(db *gorm.DB, baseLog *logger.Logger) JourneyRepo {
	return &journeyRepo{db: db, log: baseLog.With("repo", "JourneyRepo")}
}

func (r *journeyRepo) Create(ctx context.Context, tx *gorm.DB, journeys []*types.Journey) ([]*types.Journey, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(journeys) == 0 {
		return []*types.Journey{}, nil
	}
	if err := transaction.WithContext(ctx).Omit("Steps").Create(&journeys).Error; err != nil {
		return nil, err
	}
	return journeys, nil
}

func (r *journeyRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Journey, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	var row types.Journey
	if err := transaction.WithContext(ctx).Where("id = ?", id).Limit(1).Find(&row).Error; err != nil {
		return nil, err
	}
	if row.ID == uuid.Nil {
		return nil, nil
	}
	return &row, nil
}

func (r *journeyRepo) GetByTitle(ctx context.Context, tx *gorm.DB, title string) (*types.Journey, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, nil
	}
	var row types.Journey
	if err := transaction.WithContext(ctx).Where("title = ?", title).Limit(1).Find(&row).Error; err != nil {
		return nil, err
	}
	if row.ID == uuid.Nil {
		return nil, nil
	}
	return &row, nil
}

func (r *journeyRepo) List(ctx context.Context, tx *gorm.DB, status string) ([]*types.Journey, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	q := transaction.WithContext(ctx).Model(&types.Journey{})
	if status = strings.TrimSpace(status); status != "" {
		q = q.Where("status = ?", status)
	}
	var results []*types.Journey
	if err := q.Order("title ASC").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *journeyRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil || len(updates) == 0 {
		return nil
	}
	return transaction.WithContext(ctx).
		Model(&types.Journey{}).
		Where("id = ?", id).
		Updates(updates).Error
}
