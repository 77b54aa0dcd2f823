package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type MilestoneType string

const (
	MilestoneFirstTrade  MilestoneType = "first_trade"
	MilestoneFirstProfit MilestoneType = "first_profit"
)

// Milestone is a one-off lifetime achievement; (user, type) fires at most once.
type Milestone struct {
	ID             string        `gorm:"primaryKey;size:36" json:"id"`
	ExternalUserID string        `gorm:"uniqueIndex:idx_milestone_user_type,priority:1;not null" json:"external_user_id"`
	Type           MilestoneType `gorm:"uniqueIndex:idx_milestone_user_type,priority:2;type:varchar(32);not null" json:"type"`
	XPReward       int64         `gorm:"not null;default:0" json:"xp_reward"`
	AchievedAt     time.Time     `gorm:"not null" json:"achieved_at"`
}

func (m *Milestone) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return nil
}
