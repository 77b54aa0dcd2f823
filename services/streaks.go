package services

import (
	"time"

	"journal-gamification/models"

	"github.com/shopspring/decimal"
)

// CalendarDay truncates t to midnight UTC of its calendar day.
func CalendarDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// TradeDay is the calendar date of a trade in the offset its timestamp carries, stored as
// midnight UTC. 2026-10-01T23:30:00-05:00 falls on October 1.
func TradeDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

type dayStep int

const (
	stepSameDay dayStep = iota
	stepNextDay
	stepGap
	stepBackdated
)

func classifyDay(last *time.Time, day time.Time) dayStep {
	if last == nil {
		return stepGap
	}
	prev := CalendarDay(*last)
	switch {
	case day.Equal(prev):
		return stepSameDay
	case day.Before(prev):
		return stepBackdated
	case day.Equal(prev.AddDate(0, 0, 1)):
		return stepNextDay
	default:
		return stepGap
	}
}

// StreakChange reports how one machine moved for an event.
type StreakChange struct {
	Before int
	After  int
}

func (c StreakChange) Changed() bool { return c.Before != c.After }

// UpdateDailyStreak applies the date rule to the activity streak.
func UpdateDailyStreak(p *models.PlayerProgress, day time.Time) StreakChange {
	day = CalendarDay(day)
	change := StreakChange{Before: p.DailyStreak}

	switch classifyDay(p.LastActiveDate, day) {
	case stepSameDay, stepBackdated:
		change.After = p.DailyStreak
		return change
	case stepNextDay:
		p.DailyStreak++
	case stepGap:
		p.DailyStreak = 1
	}
	p.LastActiveDate = &day
	change.After = p.DailyStreak
	return change
}

// UpdateProfitStreak extends the streak on profitable days and breaks it on the first
// non-positive trade of a day that has not already extended it. The break is recorded on
// LastProfitDate, so the rest of that day is a no-op.
func UpdateProfitStreak(p *models.PlayerProgress, day time.Time, profit decimal.Decimal) StreakChange {
	day = CalendarDay(day)
	change := StreakChange{Before: p.ProfitStreak}
	step := classifyDay(p.LastProfitDate, day)

	if step == stepSameDay || step == stepBackdated {
		change.After = p.ProfitStreak
		return change
	}

	if !profit.IsPositive() {
		p.ProfitStreak = 0
		p.LastProfitDate = &day
		change.After = p.ProfitStreak
		return change
	}

	switch step {
	case stepNextDay:
		if p.ProfitStreak == 0 {
			p.ProfitStreak = 1
		} else {
			p.ProfitStreak++
		}
	case stepGap:
		p.ProfitStreak = 1
	}
	p.LastProfitDate = &day
	change.After = p.ProfitStreak
	return change
}

// UpdateWinStreak counts consecutive winning trades; the high-water mark never drops.
func UpdateWinStreak(p *models.PlayerProgress, result models.TradeResult) StreakChange {
	change := StreakChange{Before: p.ConsecutiveWins}
	if result.IsWin() {
		p.ConsecutiveWins++
		if p.ConsecutiveWins > p.MaxConsecutiveWins {
			p.MaxConsecutiveWins = p.ConsecutiveWins
		}
	} else {
		p.ConsecutiveWins = 0
	}
	change.After = p.ConsecutiveWins
	return change
}
