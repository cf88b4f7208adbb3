package journey

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/journey-tutor-backend/internal/domain"
	"github.com/yungbote/journey-tutor-backend/internal/platform/logger"
)

const (
	PromptLogBackendPostgres = "postgres"
	PromptLogBackendDynamoDB = "dynamodb"
)

// PromptLogRepo is the append-only store behind the prompt log sink.
type PromptLogRepo interface {
	Create(ctx context.Context, row *types.JourneyPromptLog) error
	ListByAttempt(ctx context.Context, attemptID uuid.UUID) ([]*types.JourneyPromptLog, error)
	Backend() string
}

type promptLogRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewPromptLogRepo(db *gorm.DB, baseLog *logger.Logger) PromptLogRepo {
	return &promptLogRepo{db: db, log: baseLog.With("repo", "PromptLogRepo")}
}

func (r *promptLogRepo) Backend() string { return PromptLogBackendPostgres }

func (r *promptLogRepo) Create(ctx context.Context, row *types.JourneyPromptLog) error {
	if row == nil {
		return nil
	}
	return r.db.WithContext(ctx).Create(row).Error
}

func (r *promptLogRepo) ListByAttempt(ctx context.Context, attemptID uuid.UUID) ([]*types.JourneyPromptLog, error) {
	var results []*types.JourneyPromptLog
	if attemptID == uuid.Nil {
		return results, nil
	}
	if err := r.db.WithContext(ctx).
		Where("attempt_id = ?", attemptID).
		Order("created_at ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
