package services

import (
	"journal-gamification/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ReversalService struct {
	weights XPWeights
	logger  *zap.Logger
}

func NewReversalService(weights XPWeights, logger *zap.Logger) *ReversalService {
	return &ReversalService{weights: weights, logger: logger.Named("reversal")}
}

// Reversal is the compensation applied for one deletion event.
type Reversal struct {
	TradesRemoved int64
	XPClawedBack  int64
	FactsRemoved  int64
}

// Apply compensates trade count and experience for deleted trades and drops the matching
// trade facts. Streaks, the win high-water mark, and awarded badges are left as they are.
//
// Facts are matched by tradeIDs when given. Otherwise the user's count most recent facts in
// periodKey are dropped; a profit total that disagrees with profitSum is logged.
func (s *ReversalService) Apply(tx *gorm.DB, prog *models.PlayerProgress, periodKey string, count int64, profitSum decimal.Decimal, tradeIDs []string) (Reversal, error) {
	var out Reversal

	if count < 0 {
		s.logger.Warn("negative deleted count treated as zero",
			zap.String("user", prog.ExternalUserID), zap.Int64("deleted_count", count))
		count = 0
	}
	if count > prog.TotalTrades {
		count = prog.TotalTrades
	}
	prog.TotalTrades -= count
	out.TradesRemoved = count

	out.XPClawedBack = ReverseExperience(prog, s.weights.ClawbackXP(profitSum))

	switch {
	case len(tradeIDs) > 0:
		res := tx.Where("external_user_id = ? AND trade_id IN ?", prog.ExternalUserID, tradeIDs).
			Delete(&models.TradeFact{})
		if res.Error != nil {
			return out, persistErr("delete trade facts", res.Error)
		}
		out.FactsRemoved = res.RowsAffected
	case periodKey != "" && count > 0:
		removed, err := s.dropLatestFacts(tx, prog.ExternalUserID, periodKey, count, profitSum)
		if err != nil {
			return out, err
		}
		out.FactsRemoved = removed
	}
	return out, nil
}

func (s *ReversalService) dropLatestFacts(tx *gorm.DB, externalUserID, periodKey string, count int64, profitSum decimal.Decimal) (int64, error) {
	var facts []models.TradeFact
	if err := tx.Where("external_user_id = ? AND period_key = ?", externalUserID, periodKey).
		Order("trade_date DESC").Order("created_at DESC").Order("trade_id DESC").
		Limit(int(count)).
		Find(&facts).Error; err != nil {
		return 0, persistErr("load latest trade facts", err)
	}
	if len(facts) == 0 {
		return 0, nil
	}

	ids := make([]string, 0, len(facts))
	sum := decimal.Zero
	for _, f := range facts {
		ids = append(ids, f.TradeID)
		sum = sum.Add(f.Profit)
	}
	if int64(len(facts)) != count || !sum.Equal(profitSum) {
		s.logger.Warn("deleted trades do not match the latest recorded trades",
			zap.String("user", externalUserID), zap.String("period", periodKey),
			zap.Int64("deleted_count", count), zap.Int("matched", len(facts)),
			zap.String("deleted_profit_sum", profitSum.String()), zap.String("matched_profit_sum", sum.String()))
	}

	res := tx.Where("trade_id IN ?", ids).Delete(&models.TradeFact{})
	if res.Error != nil {
		return 0, persistErr("delete trade facts", res.Error)
	}
	return res.RowsAffected, nil
}
