package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// TradeResult is the outcome reported by the journal for a closed trade.
type TradeResult string

const (
	ResultWin       TradeResult = "win"
	ResultLoss      TradeResult = "loss"
	ResultBreakEven TradeResult = "breakeven"
	ResultUnknown   TradeResult = "unknown"
)

// ParseTradeResult normalizes the journal's result labels ("Win", "WIN", "won", ...).
func ParseTradeResult(s string) (TradeResult, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "win", "won", "w", "profit":
		return ResultWin, true
	case "loss", "lose", "lost", "l":
		return ResultLoss, true
	case "breakeven", "break_even", "break-even", "be", "draw", "scratch":
		return ResultBreakEven, true
	}
	return "", false
}

func (r TradeResult) IsWin() bool { return r == ResultWin }

// TradeFact records a single completed trade as seen by the engine.
// It is the period trade set the scorer aggregates and the dedupe key for redelivered events.
type TradeFact struct {
	TradeID        string          `gorm:"primaryKey;size:64" json:"trade_id"`
	ExternalUserID string          `gorm:"index:idx_trade_fact_user_period,priority:1;not null" json:"external_user_id"`
	PeriodKey      string          `gorm:"index:idx_trade_fact_user_period,priority:2;size:64;not null" json:"period_key"`
	Profit         decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"profit"`
	Result         TradeResult     `gorm:"type:varchar(16);not null" json:"result"`
	TradeDate      time.Time       `gorm:"not null" json:"trade_date"` // UTC midnight of the trade's calendar day
	CreatedAt      time.Time       `gorm:"autoCreateTime" json:"created_at"`
}
