package journey

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	AttemptStatusNotStarted = "not_started"
	AttemptStatusInProgress = "in_progress"
	AttemptStatusCompleted  = "completed"
	AttemptStatusAbandoned  = "abandoned"

	AttemptTypeAttempt = "attempt"
	AttemptTypePreview = "preview"
)

// JourneyAttempt is one learner's run through a journey.
// CurrentStep names the order of the step being worked on.
type JourneyAttempt struct {
	ID           uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	UserID       uuid.UUID      `gorm:"type:uuid;not null;index:idx_journey_attempt_user_journey,priority:1" json:"user_id"`
	JourneyID    uuid.UUID      `gorm:"type:uuid;not null;index:idx_journey_attempt_user_journey,priority:2" json:"journey_id"`
	Status       string         `gorm:"type:text;not null;default:'not_started';index" json:"status"`
	JourneyType  string         `gorm:"column:journey_type;type:text;not null;default:'attempt'" json:"journey_type"`
	CurrentStep  int            `gorm:"column:current_step;not null;default:1" json:"current_step"`
	ProgressData datatypes.JSON `gorm:"column:progress_data;type:jsonb;not null" json:"progress_data"`
	Score        *float64       `gorm:"column:score" json:"score,omitempty"`
	StartedAt    *time.Time     `gorm:"column:started_at" json:"started_at,omitempty"`
	CompletedAt  *time.Time     `gorm:"column:completed_at" json:"completed_at,omitempty"`

	Journey *Journey `gorm:"foreignKey:JourneyID;constraint:OnDelete:CASCADE" json:"journey,omitempty"`

	CreatedAt time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime" json:"updated_at"`
}

func (JourneyAttempt) TableName() string { return "journey_attempt" }

func (a *JourneyAttempt) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if len(a.ProgressData) == 0 {
		a.ProgressData = datatypes.JSON([]byte(`{}`))
	}
	if a.Status == "" {
		a.Status = AttemptStatusNotStarted
	}
	if a.JourneyType == "" {
		a.JourneyType = AttemptTypeAttempt
	}
	if a.CurrentStep <= 0 {
		a.CurrentStep = 1
	}
	return nil
}

func (a *JourneyAttempt) IsPreview() bool {
	return a != nil && a.JourneyType == AttemptTypePreview
}

// IsClosed reports whether the attempt no longer accepts turns.
func (a *JourneyAttempt) IsClosed() bool {
	return a != nil && (a.Status == AttemptStatusCompleted || a.Status == AttemptStatusAbandoned)
}
