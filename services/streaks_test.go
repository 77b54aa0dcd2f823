package services

import (
	"testing"
	"time"

	"journal-gamification/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(d int) time.Time {
	return time.Date(2026, 10, d, 15, 30, 0, 0, time.UTC)
}

func TestCalendarDay(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*3600)
	got := CalendarDay(time.Date(2026, 10, 2, 1, 0, 0, 0, loc))
	assert.Equal(t, time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC), got)
}

func TestTradeDayKeepsTheTimestampOffset(t *testing.T) {
	cst := time.FixedZone("UTC-5", -5*3600)
	assert.Equal(t, time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC),
		TradeDay(time.Date(2026, 10, 1, 23, 30, 0, 0, cst)))
	assert.Equal(t, time.Date(2026, 10, 2, 0, 0, 0, 0, time.UTC),
		TradeDay(time.Date(2026, 10, 2, 1, 0, 0, 0, time.FixedZone("UTC+3", 3*3600))))
	assert.Equal(t, time.Date(2026, 10, 3, 0, 0, 0, 0, time.UTC),
		TradeDay(time.Date(2026, 10, 3, 0, 0, 0, 0, time.UTC)))
}

func TestUpdateDailyStreak(t *testing.T) {
	p := models.NewPlayerProgress("u1")

	steps := []struct {
		day  int
		want int
	}{
		{1, 1}, // first activity
		{1, 1}, // same day
		{2, 2}, // next day
		{3, 3}, // next day
		{1, 3}, // backdated
		{6, 1}, // gap
		{7, 2}, // next day
	}
	for i, s := range steps {
		UpdateDailyStreak(&p, day(s.day))
		assert.Equal(t, s.want, p.DailyStreak, "step %d", i)
	}
	assert.Equal(t, time.Date(2026, 10, 7, 0, 0, 0, 0, time.UTC), *p.LastActiveDate)
}

func TestUpdateDailyStreakBackdatedKeepsLastDate(t *testing.T) {
	p := models.NewPlayerProgress("u1")
	UpdateDailyStreak(&p, day(5))
	change := UpdateDailyStreak(&p, day(4))
	assert.False(t, change.Changed())
	assert.Equal(t, CalendarDay(day(5)), *p.LastActiveDate)
}

func TestUpdateProfitStreak(t *testing.T) {
	win := decimal.NewFromInt(50)
	loss := decimal.NewFromInt(-20)
	flat := decimal.Zero

	steps := []struct {
		name   string
		day    int
		profit decimal.Decimal
		want   int
	}{
		{"first profit", 1, win, 1},
		{"same day profit", 1, win, 1},
		{"same day loss after extending", 1, loss, 1},
		{"next day profit", 2, win, 2},
		{"next day loss breaks", 3, loss, 0},
		{"profit after break same day is a no-op", 3, win, 0},
		{"next day restarts", 4, win, 1},
		{"next day extends", 5, win, 2},
		{"breakeven breaks", 6, flat, 0},
		{"loss after break same day", 6, loss, 0},
		{"profit after breakeven same day is a no-op", 6, win, 0},
		{"gap restarts", 9, win, 1},
		{"backdated profit ignored", 8, win, 1},
		{"backdated loss ignored", 2, loss, 1},
	}
	p := models.NewPlayerProgress("u1")
	for _, s := range steps {
		UpdateProfitStreak(&p, day(s.day), s.profit)
		assert.Equal(t, s.want, p.ProfitStreak, s.name)
	}
}

func TestUpdateWinStreak(t *testing.T) {
	p := models.NewPlayerProgress("u1")
	results := []models.TradeResult{
		models.ResultWin, models.ResultWin, models.ResultWin,
		models.ResultLoss,
		models.ResultWin,
		models.ResultBreakEven,
	}
	wantCurrent := []int{1, 2, 3, 0, 1, 0}
	for i, r := range results {
		UpdateWinStreak(&p, r)
		assert.Equal(t, wantCurrent[i], p.ConsecutiveWins, "step %d", i)
	}
	assert.Equal(t, 3, p.MaxConsecutiveWins)
}

func TestProfitStreakCountsConsecutiveProfitableDays(t *testing.T) {
	p := models.NewPlayerProgress("u1")
	for n := 1; n <= 10; n++ {
		UpdateProfitStreak(&p, day(n), decimal.NewFromInt(int64(n)))
		assert.Equal(t, n, p.ProfitStreak)
	}
	UpdateProfitStreak(&p, day(13), decimal.NewFromInt(5))
	assert.Equal(t, 1, p.ProfitStreak)
}

func TestProfitStreakFirstTradeLossHoldsForTheDay(t *testing.T) {
	p := models.NewPlayerProgress("u1")
	UpdateProfitStreak(&p, day(1), decimal.NewFromInt(-5))
	assert.Zero(t, p.ProfitStreak)
	require.NotNil(t, p.LastProfitDate)
	assert.Equal(t, CalendarDay(day(1)), *p.LastProfitDate)

	change := UpdateProfitStreak(&p, day(1), decimal.NewFromInt(40))
	assert.False(t, change.Changed())
	assert.Zero(t, p.ProfitStreak)

	UpdateProfitStreak(&p, day(2), decimal.NewFromInt(40))
	assert.Equal(t, 1, p.ProfitStreak)
}
