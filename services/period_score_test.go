package services

import (
	"testing"
	"time"

	"journal-gamification/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestComputeScore(t *testing.T) {
	tests := []struct {
		name string
		agg  PeriodAggregate
		want int
	}{
		{name: "empty", agg: PeriodAggregate{}, want: 0},
		{
			name: "all wins",
			agg:  PeriodAggregate{TotalProfit: decimal.NewFromInt(5000), TotalTrades: 10, Wins: 10, ActiveDays: 5},
			want: 30,
		},
		{
			name: "half wins",
			agg:  PeriodAggregate{TotalProfit: decimal.NewFromInt(100), TotalTrades: 4, Wins: 2, ActiveDays: 2},
			want: 15,
		},
		{
			name: "losses never go negative",
			agg:  PeriodAggregate{TotalProfit: decimal.NewFromInt(-1_000_000), TotalTrades: 3, ActiveDays: 1},
			want: 0,
		},
		{
			name: "every term saturated",
			agg:  PeriodAggregate{TotalProfit: decimal.NewFromInt(10_000_000), TotalTrades: 10_000, Wins: 10_000, ActiveDays: 3_000},
			want: 100,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeScore(tt.agg)
			assert.Equal(t, tt.want, got)
			assert.GreaterOrEqual(t, got, 0)
			assert.LessOrEqual(t, got, 100)
		})
	}
}

func TestAggregate(t *testing.T) {
	d1 := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	d2 := d1.AddDate(0, 0, 1)
	agg := Aggregate([]models.TradeFact{
		{Profit: decimal.NewFromInt(100), Result: models.ResultWin, TradeDate: d1},
		{Profit: decimal.NewFromInt(-40), Result: models.ResultLoss, TradeDate: d1},
		{Profit: decimal.RequireFromString("12.5"), Result: models.ResultWin, TradeDate: d2},
	})
	assert.True(t, agg.TotalProfit.Equal(decimal.RequireFromString("72.5")))
	assert.Equal(t, int64(3), agg.TotalTrades)
	assert.Equal(t, int64(2), agg.Wins)
	assert.Equal(t, 2, agg.ActiveDays)
	assert.Equal(t, 66.67, agg.WinRate())
}

func TestRecomputeLeavesRankAlone(t *testing.T) {
	e, _ := newTestEngine(t)
	mustComplete(t, e, completion("u1", period, "t1", 100, "win", oct(1)))

	a := assert.New(t)
	var row models.PeriodScore
	a.NoError(e.DB.Where("external_user_id = ?", "u1").First(&row).Error)
	require.NotNil(t, row.Rank)

	svc := NewPeriodScoreService(e.logger)
	a.NoError(e.DB.Create(&models.TradeFact{
		TradeID: "manual", ExternalUserID: "u1", PeriodKey: period,
		Profit: decimal.NewFromInt(50), Result: models.ResultLoss, TradeDate: oct(2),
	}).Error)
	updated, err := svc.Recompute(e.DB, "u1", period)
	require.NoError(t, err)
	a.Equal(int64(2), updated.TotalTrades)
	a.Equal(50.0, updated.WinRate)
	a.Equal(2, updated.ActiveDays)
	require.NotNil(t, updated.Rank)
	a.Equal(*row.Rank, *updated.Rank)
}

func TestRankPeriodBreaksScoreTies(t *testing.T) {
	db := newTestDB(t)
	for _, r := range []models.PeriodScore{
		{ExternalUserID: "zoe", PeriodKey: period, Score: 80, TotalProfit: decimal.NewFromInt(4000)},
		{ExternalUserID: "adam", PeriodKey: period, Score: 80, TotalProfit: decimal.NewFromInt(4000)},
		{ExternalUserID: "mia", PeriodKey: period, Score: 80, TotalProfit: decimal.NewFromInt(9000)},
		{ExternalUserID: "leo", PeriodKey: period, Score: 95, TotalProfit: decimal.NewFromInt(10)},
		{ExternalUserID: "other", PeriodKey: "2026-11", Score: 99},
	} {
		require.NoError(t, db.Create(&r).Error)
	}

	svc := NewPeriodScoreService(zap.NewNop())
	want := map[string]int{"leo": 1, "mia": 2, "adam": 3, "zoe": 4}
	for i := 0; i < 2; i++ {
		n, err := svc.RankPeriod(db, period, time.Now())
		require.NoError(t, err)
		assert.Equal(t, 4, n)
		assert.Equal(t, want, periodRanks(t, db, period))
	}

	var other models.PeriodScore
	require.NoError(t, db.Where("external_user_id = ?", "other").First(&other).Error)
	assert.Nil(t, other.Rank)
}
