package journey

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	JourneyStatusDraft     = "draft"
	JourneyStatusPublished = "published"
)

// Journey is a multi-step guided learning unit. MasterPrompt may carry {variable} tokens.
type Journey struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Title        string    `gorm:"type:text;not null;uniqueIndex:idx_journey_title" json:"title"`
	Description  string    `gorm:"type:text;not null;default:''" json:"description"`
	MasterPrompt string    `gorm:"column:master_prompt;type:text;not null" json:"master_prompt"`
	ReportPrompt *string   `gorm:"column:report_prompt;type:text" json:"report_prompt,omitempty"`
	Status       string    `gorm:"type:text;not null;default:'published';index" json:"status"`

	Steps []JourneyStep `gorm:"foreignKey:JourneyID;constraint:OnDelete:CASCADE" json:"steps,omitempty"`

	CreatedAt time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime" json:"updated_at"`
}

func (Journey) TableName() string { return "journey" }

func (j *Journey) BeforeCreate(tx *gorm.DB) error {
	if j.ID == uuid.Nil {
		j.ID = uuid.New()
	}
	if j.Status == "" {
		j.Status = JourneyStatusPublished
	}
	return nil
}

// JourneyStep is one ordered stage of a journey. Order is 1-based and dense within the journey.
type JourneyStep struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	JourneyID   uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_journey_step_journey_order,priority:1" json:"journey_id"`
	Order       int       `gorm:"column:step_order;not null;uniqueIndex:idx_journey_step_journey_order,priority:2" json:"order"`
	Title       string    `gorm:"type:text;not null" json:"title"`
	Content     string    `gorm:"type:text;not null" json:"content"`
	RatePass    int       `gorm:"column:ratepass;not null;default:3" json:"ratepass"`
	MaxAttempts int       `gorm:"column:maxattempts;not null;default:3" json:"maxattempts"`
	TimeLimit   *int      `gorm:"column:time_limit" json:"time_limit,omitempty"`

	CreatedAt time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime" json:"updated_at"`
}

func (JourneyStep) TableName() string { return "journey_step" }

func (s *JourneyStep) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}
