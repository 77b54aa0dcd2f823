package services

import (
	"errors"
	"math"
	"time"

	"journal-gamification/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// XPWeights define the fixed experience values granted by the pipeline
type XPWeights struct {
	TradeXP          int64 // every completed trade
	MaxProfitBonusXP int64 // cap on floor(profit/ProfitPerBonusXP)
	ProfitPerBonusXP int64
	ClawbackPerXP    int64 // deleted profit per XP reversed
}

var DefaultXPWeights = XPWeights{
	TradeXP:          10,
	MaxProfitBonusXP: 50,
	ProfitPerBonusXP: 10,
	ClawbackPerXP:    100,
}

// BaseXPPerLevel scales the level curve: L_n = floor(BaseXPPerLevel * n^1.5)
const BaseXPPerLevel = 100

// RequiredXP returns the experience needed to go from level to level+1.
func RequiredXP(level int) int64 {
	if level < 1 {
		level = 1
	}
	return int64(math.Floor(float64(BaseXPPerLevel) * math.Pow(float64(level), 1.5)))
}

// LevelResult is the ledger state after a grant.
type LevelResult struct {
	Level             int
	ExperienceInLevel int64
	LevelsGained      int
}

// GrantExperience adds amount and rolls over as many levels as it pays for.
func GrantExperience(p *models.PlayerProgress, amount int64, now time.Time) LevelResult {
	if p.Level < 1 {
		p.Level = 1
	}
	if amount <= 0 {
		return LevelResult{Level: p.Level, ExperienceInLevel: p.ExperienceInLevel}
	}

	p.TotalExperience += amount
	p.ExperienceInLevel += amount

	gained := 0
	for p.ExperienceInLevel >= RequiredXP(p.Level) {
		p.ExperienceInLevel -= RequiredXP(p.Level)
		p.Level++
		gained++
	}
	if gained > 0 {
		p.LastLevelUpAt = &now
	}
	return LevelResult{Level: p.Level, ExperienceInLevel: p.ExperienceInLevel, LevelsGained: gained}
}

// ReverseExperience removes up to amount from the lifetime total and rebuilds the level
// from zero. It returns the experience actually removed.
func ReverseExperience(p *models.PlayerProgress, amount int64) int64 {
	if amount < 0 {
		amount = 0
	}
	if amount > p.TotalExperience {
		amount = p.TotalExperience
	}
	p.TotalExperience -= amount
	p.Level, p.ExperienceInLevel = levelFromTotal(p.TotalExperience)
	return amount
}

func levelFromTotal(total int64) (int, int64) {
	level := 1
	remaining := total
	for remaining >= RequiredXP(level) {
		remaining -= RequiredXP(level)
		level++
	}
	return level, remaining
}

// TradeCompletionXP is the experience earned for completing a trade with the given profit.
func (w XPWeights) TradeCompletionXP(profit decimal.Decimal) int64 {
	xp := w.TradeXP
	if profit.IsPositive() && w.ProfitPerBonusXP > 0 {
		bonus := profit.Div(decimal.NewFromInt(w.ProfitPerBonusXP)).Floor().IntPart()
		if bonus > w.MaxProfitBonusXP {
			bonus = w.MaxProfitBonusXP
		}
		xp += bonus
	}
	return xp
}

// ClawbackXP converts a deleted profit sum into the experience to reverse.
func (w XPWeights) ClawbackXP(deletedProfitSum decimal.Decimal) int64 {
	if !deletedProfitSum.IsPositive() || w.ClawbackPerXP <= 0 {
		return 0
	}
	return deletedProfitSum.Div(decimal.NewFromInt(w.ClawbackPerXP)).Floor().IntPart()
}

// EnsureProgressRecord loads the user's row inside tx, creating it with zeroed defaults if absent.
// A row created concurrently by another process is reloaded rather than failing the insert.
func EnsureProgressRecord(tx *gorm.DB, externalUserID string) (*models.PlayerProgress, error) {
	var prog models.PlayerProgress
	err := tx.Where("external_user_id = ?", externalUserID).First(&prog).Error
	if err == nil {
		return &prog, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, persistErr("load player progress", err)
	}

	prog = models.NewPlayerProgress(externalUserID)
	res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&prog)
	if res.Error != nil {
		return nil, persistErr("create player progress", res.Error)
	}
	if res.RowsAffected > 0 {
		return &prog, nil
	}

	prog = models.PlayerProgress{}
	if err := tx.Where("external_user_id = ?", externalUserID).First(&prog).Error; err != nil {
		return nil, persistErr("reload player progress", err)
	}
	return &prog, nil
}
