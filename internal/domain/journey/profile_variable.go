package journey

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// UserProfileVariable is one named substitution value for a learner's prompts.
type UserProfileVariable struct {
	ID     uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_user_profile_variable_user_name,priority:1" json:"user_id"`
	Name   string    `gorm:"type:text;not null;uniqueIndex:idx_user_profile_variable_user_name,priority:2" json:"name"`
	Value  string    `gorm:"type:text;not null" json:"value"`

	CreatedAt time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime" json:"updated_at"`
}

func (UserProfileVariable) TableName() string { return "user_profile_variable" }

func (v *UserProfileVariable) BeforeCreate(tx *gorm.DB) error {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	return nil
}
