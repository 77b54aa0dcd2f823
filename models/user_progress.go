package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PlayerProgress tracks gamified progression for each user (denormalized for performance)
type PlayerProgress struct {
	ID             string `gorm:"primaryKey;size:36" json:"id"`
	ExternalUserID string `gorm:"uniqueIndex;not null" json:"external_user_id"` // links to the journal's user

	// Core progression
	Level             int   `json:"level" gorm:"not null;default:1"`
	ExperienceInLevel int64 `json:"experience_in_level" gorm:"not null;default:0"`
	TotalExperience   int64 `json:"total_experience" gorm:"not null;default:0"`

	// Streaks (dates are UTC calendar days)
	DailyStreak    int        `json:"daily_streak" gorm:"not null;default:0"`
	LastActiveDate *time.Time `json:"last_active_date,omitempty"`
	ProfitStreak   int        `json:"profit_streak" gorm:"not null;default:0"`
	LastProfitDate *time.Time `json:"last_profit_date,omitempty"`

	// Activity counters
	TotalTrades        int64 `json:"total_trades" gorm:"not null;default:0"`
	ConsecutiveWins    int   `json:"consecutive_wins" gorm:"not null;default:0"`
	MaxConsecutiveWins int   `json:"max_consecutive_wins" gorm:"not null;default:0"`

	LastLevelUpAt *time.Time `json:"last_level_up_at,omitempty"`

	Timestamps
}

func (PlayerProgress) TableName() string { return "player_progress" }

func (p *PlayerProgress) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}

// NewPlayerProgress returns the zeroed defaults for a user seen for the first time.
func NewPlayerProgress(externalUserID string) PlayerProgress {
	return PlayerProgress{
		ID:             uuid.NewString(),
		ExternalUserID: externalUserID,
		Level:          1,
	}
}

// Timestamps adds GORM auto-times
type Timestamps struct {
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}
