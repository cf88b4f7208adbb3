package journey

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/journey-tutor-backend/internal/domain"
	"github.com/yungbote/journey-tutor-backend/internal/platform/logger"
)

type UserProfileVariableRepo interface {
	// GetMap returns the user's variables as name -> value. A non-empty names filter limits the result.
	GetMap(ctx context.Context, tx *gorm.DB, userID uuid.UUID, names []string) (map[string]string, error)
	Upsert(ctx context.Context, tx *gorm.DB, rows []*types.UserProfileVariable) error
}

type userProfileVariableRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewUserProfileVariableRepo(db *gorm.DB, baseLog *logger.Logger) UserProfileVariableRepo {
	return &userProfileVariableRepo{db: db, log: baseLog.With("repo", "UserProfileVariableRepo")}
}

func (r *userProfileVariableRepo) GetMap(ctx context.Context, tx *gorm.DB, userID uuid.UUID, names []string) (map[string]string, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	out := map[string]string{}
	if userID == uuid.Nil {
		return out, nil
	}
	q := transaction.WithContext(ctx).Where("user_id = ?", userID)
	if len(names) > 0 {
		q = q.Where("name IN ?", names)
	}
	var rows []*types.UserProfileVariable
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.Name] = row.Value
	}
	return out, nil
}

func (r *userProfileVariableRepo) Upsert(ctx context.Context, tx *gorm.DB, rows []*types.UserProfileVariable) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	clean := make([]*types.UserProfileVariable, 0, len(rows))
	now := time.Now().UTC()
	for _, row := range rows {
		if row == nil || row.UserID == uuid.Nil || strings.TrimSpace(row.Name) == "" {
			continue
		}
		if row.ID == uuid.Nil {
			row.ID = uuid.New()
		}
		row.UpdatedAt = now
		clean = append(clean, row)
	}
	if len(clean) == 0 {
		return nil
	}
	return transaction.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "name"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
		}).
		Create(&clean).Error
}
