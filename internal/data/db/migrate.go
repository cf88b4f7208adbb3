package db

import (
	types "github.com/yungbote/journey-tutor-backend/internal/domain"
	"gorm.io/gorm"
)

func AutoMigrateAll(db *gorm.DB) error {
	return db.AutoMigrate(
		// =========================
		// Catalog
		// =========================
		&types.Journey{},
		&types.JourneyStep{},

		// =========================
		// Learner state
		// =========================
		&types.UserProfileVariable{},
		&types.JourneyAttempt{},
		&types.JourneyStepResponse{},

		// =========================
		// Audit
		// =========================
		&types.JourneyPromptLog{},
	)
}
