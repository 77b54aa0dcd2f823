package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// RequirementKind names the tracked counter a badge threshold applies to.
type RequirementKind string

const (
	RequirementDailyStreak  RequirementKind = "daily_streak"
	RequirementProfitStreak RequirementKind = "profit_streak"
	RequirementTotalTrades  RequirementKind = "total_trades"
	RequirementWinStreak    RequirementKind = "win_streak"
	RequirementLevel        RequirementKind = "level"
)

type Rarity string

const (
	RarityCommon    Rarity = "common"
	RarityRare      Rarity = "rare"
	RarityEpic      Rarity = "epic"
	RarityLegendary Rarity = "legendary"
)

// BadgeDefinition: static catalog entry, seeded once and never updated
type BadgeDefinition struct {
	ID              string          `gorm:"primaryKey;size:64" json:"id" yaml:"id"` // e.g. "streak-3", "trades-100"
	Name            string          `gorm:"not null" json:"name" yaml:"name"`
	Description     string          `json:"description" yaml:"description"`
	RequirementKind RequirementKind `gorm:"type:varchar(32);not null" json:"requirement_kind" yaml:"kind"`
	Threshold       int64           `gorm:"not null" json:"threshold" yaml:"threshold"`
	Rarity          Rarity          `gorm:"type:varchar(16);default:'common'" json:"rarity" yaml:"rarity"`
	XPReward        int64           `gorm:"not null;default:0" json:"xp_reward" yaml:"xp_reward"`
	CreatedAt       time.Time       `gorm:"autoCreateTime" json:"-" yaml:"-"`
}

// BadgeProgress: per user×badge evaluation state. AchievedAt is written exactly once.
type BadgeProgress struct {
	ID             string     `gorm:"primaryKey;size:36" json:"id"`
	ExternalUserID string     `gorm:"uniqueIndex:idx_badge_progress_user_badge,priority:1;not null" json:"external_user_id"`
	BadgeID        string     `gorm:"uniqueIndex:idx_badge_progress_user_badge,priority:2;size:64;not null" json:"badge_id"`
	Progress       int64      `gorm:"not null;default:0" json:"progress"`
	AchievedAt     *time.Time `json:"achieved_at,omitempty"`
	Timestamps
}

func (BadgeProgress) TableName() string { return "badge_progress" }

func (b *BadgeProgress) BeforeCreate(tx *gorm.DB) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	return nil
}

func (b *BadgeProgress) Achieved() bool {
	return b.AchievedAt != nil
}
