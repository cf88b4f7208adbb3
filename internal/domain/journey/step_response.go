package journey

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	InteractionInitial = "initial"
	InteractionChat    = "chat"

	ActionRetryStep     = "retry_step"
	ActionNextStep      = "next_step"
	ActionFinishJourney = "finish_journey"
)

// JourneyStepResponse is one turn. Rows are append-only.
type JourneyStepResponse struct {
	ID              uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	AttemptID       uuid.UUID      `gorm:"type:uuid;not null;index:idx_journey_step_response_attempt_step,priority:1" json:"attempt_id"`
	StepID          uuid.UUID      `gorm:"type:uuid;not null;index:idx_journey_step_response_attempt_step,priority:2" json:"step_id"`
	UserInput       *string        `gorm:"column:user_input;type:text" json:"user_input,omitempty"`
	AIResponse      string         `gorm:"column:ai_response;type:text;not null" json:"ai_response"`
	InteractionType string         `gorm:"column:interaction_type;type:text;not null" json:"interaction_type"`
	StepRate        *int           `gorm:"column:step_rate" json:"step_rate,omitempty"`
	StepAction      *string        `gorm:"column:step_action;type:text" json:"step_action,omitempty"`
	ResponseData    datatypes.JSON `gorm:"column:response_data;type:jsonb;not null" json:"response_data"`
	AIMetadata      datatypes.JSON `gorm:"column:ai_metadata;type:jsonb;not null" json:"ai_metadata"`

	Attempt *JourneyAttempt `gorm:"foreignKey:AttemptID;constraint:OnDelete:CASCADE" json:"-"`

	CreatedAt time.Time `gorm:"not null;autoCreateTime;index" json:"created_at"`
}

func (JourneyStepResponse) TableName() string { return "journey_step_response" }

func (r *JourneyStepResponse) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if len(r.ResponseData) == 0 {
		r.ResponseData = datatypes.JSON([]byte(`{}`))
	}
	if len(r.AIMetadata) == 0 {
		r.AIMetadata = datatypes.JSON([]byte(`{}`))
	}
	return nil
}
