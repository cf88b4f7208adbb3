package journey

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	PromptActionStartChat        = "start_chat"
	PromptActionSubmitChat       = "submit_chat"
	PromptActionEvaluateRating   = "evaluate_rating"
	PromptActionGenerateResponse = "generate_response"
	PromptActionSubmitReport     = "submit_report"
)

// JourneyPromptLog is the audit record of one model exchange.
type JourneyPromptLog struct {
	ID               uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	AttemptID        uuid.UUID      `gorm:"type:uuid;not null;index" json:"attempt_id"`
	StepResponseID   *uuid.UUID     `gorm:"type:uuid;index" json:"step_response_id,omitempty"`
	UserID           uuid.UUID      `gorm:"type:uuid;not null;index" json:"user_id"`
	JourneyID        uuid.UUID      `gorm:"type:uuid;not null;index" json:"journey_id"`
	StepID           *uuid.UUID     `gorm:"type:uuid" json:"step_id,omitempty"`
	ActionType       string         `gorm:"column:action_type;type:text;not null;index" json:"action_type"`
	Prompt           string         `gorm:"type:text;not null" json:"prompt"`
	Response         string         `gorm:"type:text;not null" json:"response"`
	Model            string         `gorm:"type:text;not null;default:''" json:"model"`
	InputTokens      int            `gorm:"not null;default:0" json:"input_tokens"`
	OutputTokens     int            `gorm:"not null;default:0" json:"output_tokens"`
	TotalTokens      int            `gorm:"not null;default:0" json:"total_tokens"`
	EstimatedCostUSD float64        `gorm:"column:estimated_cost_usd;not null;default:0" json:"estimated_cost_usd"`
	ProcessingTimeMs int64          `gorm:"column:processing_time_ms;not null;default:0" json:"processing_time_ms"`
	Temperature      float64        `gorm:"not null;default:0" json:"temperature"`
	Fallback         bool           `gorm:"not null;default:false" json:"fallback"`
	Error            string         `gorm:"type:text;not null;default:''" json:"error,omitempty"`
	Metadata         datatypes.JSON `gorm:"type:jsonb;not null" json:"metadata"`

	CreatedAt time.Time `gorm:"not null;autoCreateTime;index" json:"created_at"`
}

func (JourneyPromptLog) TableName() string { return "journey_prompt_log" }

func (l *JourneyPromptLog) BeforeCreate(tx *gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	if len(l.Metadata) == 0 {
		l.Metadata = datatypes.JSON([]byte(`{}`))
	}
	return nil
}
