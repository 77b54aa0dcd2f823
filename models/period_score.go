package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// PeriodScore is one user's competitive snapshot for a caller-defined period (e.g. "2024-05").
// Rank is nil until the batch ranker has run over the period.
type PeriodScore struct {
	ID             string          `gorm:"primaryKey;size:36" json:"id"`
	ExternalUserID string          `gorm:"uniqueIndex:idx_period_score_user_period,priority:1;not null" json:"external_user_id"`
	PeriodKey      string          `gorm:"uniqueIndex:idx_period_score_user_period,priority:2;index;size:64;not null" json:"period_key"`
	Score          int             `gorm:"not null;default:0" json:"score"`
	Rank           *int            `json:"rank,omitempty"`
	TotalTrades    int64           `gorm:"not null;default:0" json:"total_trades"`
	TotalProfit    decimal.Decimal `gorm:"type:decimal(20,8);not null;default:0" json:"total_profit"`
	WinRate        float64         `gorm:"not null;default:0" json:"win_rate"`
	ActiveDays     int             `gorm:"not null;default:0" json:"active_days"`
	RankedAt       *time.Time      `json:"ranked_at,omitempty"`
	Timestamps
}

func (p *PeriodScore) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}

// LeaderboardEntry is the public projection of a ranked PeriodScore.
type LeaderboardEntry struct {
	UserID string `json:"user_id"`
	Score  int    `json:"score"`
	Rank   *int   `json:"rank"`
}
