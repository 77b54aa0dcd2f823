package services

import (
	"errors"
	"math"
	"time"

	"journal-gamification/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Score weights; each sub-term is clamped to [0,100] before weighting.
const (
	profitWeight     = 0.40
	winRateWeight    = 0.30
	tradesWeight     = 0.20
	activeDaysWeight = 0.10

	profitScale     = 10000.0
	tradesScale     = 50.0
	activeDaysScale = 30.0
)

// PeriodAggregate is the per-user summary of one period's trade set.
type PeriodAggregate struct {
	TotalProfit decimal.Decimal
	TotalTrades int64
	Wins        int64
	ActiveDays  int
}

// WinRate is the percentage of winning trades, 0 when there are none.
func (a PeriodAggregate) WinRate() float64 {
	if a.TotalTrades == 0 {
		return 0
	}
	return math.Round(float64(a.Wins)/float64(a.TotalTrades)*10000) / 100
}

func clampScore(v float64) float64 {
	return math.Max(0, math.Min(v, 100))
}

// ComputeScore maps an aggregate onto the 0..100 competitive score.
func ComputeScore(a PeriodAggregate) int {
	profit, _ := a.TotalProfit.Float64()
	s := clampScore(profit/profitScale)*profitWeight +
		clampScore(a.WinRate())*winRateWeight +
		clampScore(float64(a.TotalTrades)/tradesScale)*tradesWeight +
		clampScore(float64(a.ActiveDays)/activeDaysScale)*activeDaysWeight
	return int(math.Round(s))
}

// Aggregate folds a trade set into a PeriodAggregate.
func Aggregate(trades []models.TradeFact) PeriodAggregate {
	agg := PeriodAggregate{TotalProfit: decimal.Zero}
	days := map[time.Time]struct{}{}
	for _, t := range trades {
		agg.TotalProfit = agg.TotalProfit.Add(t.Profit)
		agg.TotalTrades++
		if t.Result.IsWin() {
			agg.Wins++
		}
		days[CalendarDay(t.TradeDate)] = struct{}{}
	}
	agg.ActiveDays = len(days)
	return agg
}

type PeriodScoreService struct {
	logger *zap.Logger
}

func NewPeriodScoreService(logger *zap.Logger) *PeriodScoreService {
	return &PeriodScoreService{logger: logger.Named("period_scores")}
}

// Recompute rebuilds the user's aggregates for periodKey from its trade facts and upserts
// the PeriodScore row. Rank is left for the batch phase.
func (s *PeriodScoreService) Recompute(tx *gorm.DB, externalUserID, periodKey string) (*models.PeriodScore, error) {
	var trades []models.TradeFact
	if err := tx.Where("external_user_id = ? AND period_key = ?", externalUserID, periodKey).
		Find(&trades).Error; err != nil {
		return nil, persistErr("load period trades", err)
	}
	agg := Aggregate(trades)

	var row models.PeriodScore
	err := tx.Where("external_user_id = ? AND period_key = ?", externalUserID, periodKey).First(&row).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, persistErr("load period score", err)
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		row = models.PeriodScore{ExternalUserID: externalUserID, PeriodKey: periodKey}
	}

	row.Score = ComputeScore(agg)
	row.TotalTrades = agg.TotalTrades
	row.TotalProfit = agg.TotalProfit
	row.WinRate = agg.WinRate()
	row.ActiveDays = agg.ActiveDays

	if err := tx.Save(&row).Error; err != nil {
		return nil, persistErr("save period score", err)
	}
	return &row, nil
}

// LeaderboardOrder is the total order used by the ranker: score, then period profit,
// then user id so equal rows always rank the same way.
var LeaderboardOrder = []clause.OrderByColumn{
	{Column: clause.Column{Name: "score"}, Desc: true},
	{Column: clause.Column{Name: "total_profit"}, Desc: true},
	{Column: clause.Column{Name: "external_user_id"}},
}

func orderByLeaderboard(db *gorm.DB) *gorm.DB {
	return db.Order(clause.OrderBy{Columns: LeaderboardOrder})
}

// RankPeriod assigns rank = position to every row of periodKey. Running it twice over the
// same rows gives the same ranks. Returns the number of rows ranked.
func (s *PeriodScoreService) RankPeriod(tx *gorm.DB, periodKey string, now time.Time) (int, error) {
	q := tx.Model(&models.PeriodScore{}).Where("period_key = ?", periodKey)
	if tx.Dialector.Name() == "postgres" {
		q = q.Clauses(clause.Locking{Strength: clause.LockingStrengthUpdate})
	}

	var rows []models.PeriodScore
	if err := orderByLeaderboard(q).Find(&rows).Error; err != nil {
		return 0, persistErr("load period for ranking", err)
	}

	for i := range rows {
		rank := i + 1
		if rows[i].Rank != nil && *rows[i].Rank == rank {
			continue
		}
		if err := tx.Model(&models.PeriodScore{}).
			Where("id = ?", rows[i].ID).
			Updates(map[string]any{"rank": rank, "ranked_at": now}).Error; err != nil {
			return 0, persistErr("assign rank", err)
		}
	}
	s.logger.Debug("period ranked", zap.String("period", periodKey), zap.Int("rows", len(rows)))
	return len(rows), nil
}
