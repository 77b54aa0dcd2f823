package services

import (
	"context"
	"testing"

	"journal-gamification/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRuleFor(t *testing.T) {
	p := models.NewPlayerProgress("u1")
	p.DailyStreak = 4
	p.ProfitStreak = 2
	p.TotalTrades = 37
	p.ConsecutiveWins = 1
	p.MaxConsecutiveWins = 6
	p.Level = 9

	tests := []struct {
		kind models.RequirementKind
		want int64
	}{
		{models.RequirementDailyStreak, 4},
		{models.RequirementProfitStreak, 2},
		{models.RequirementTotalTrades, 37},
		{models.RequirementWinStreak, 6},
		{models.RequirementLevel, 9},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			rule, err := RuleFor(tt.kind)
			require.NoError(t, err)
			assert.Equal(t, tt.want, rule(&p))
			assert.True(t, KnownRequirementKind(tt.kind))
		})
	}
}

func TestRuleForUnknownKind(t *testing.T) {
	rule, err := RuleFor("late_trades")
	assert.Nil(t, rule)
	require.Error(t, err)
	assert.True(t, IsValidation(err))
	assert.Contains(t, err.Error(), "late_trades")
	assert.False(t, KnownRequirementKind("late_trades"))
}

func TestAchievedBadgesAreNeverRevoked(t *testing.T) {
	e, _ := newTestEngine(t)
	seedCatalogYAML(t, e.DB, `
badges:
  - id: trades-2
    kind: total_trades
    threshold: 2
    xp_reward: 5
`)
	mustComplete(t, e, completion("u1", period, "t1", 0, "loss", oct(1)))
	res := mustComplete(t, e, completion("u1", period, "t2", 0, "loss", oct(2)))
	require.Len(t, res.NewBadges, 1)

	_, err := e.ProcessTradeDeletion(context.Background(), TradeDeletion{UserID: "u1", PeriodKey: period, DeletedCount: 2})
	require.NoError(t, err)

	statuses, err := e.GetBadgeCatalog(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, statuses, 1)
	assert.True(t, statuses[0].Achieved)

	// Re-reaching the threshold does not award it twice.
	mustComplete(t, e, completion("u1", period, "t3", 0, "loss", oct(3)))
	res = mustComplete(t, e, completion("u1", period, "t4", 0, "loss", oct(4)))
	assert.Empty(t, res.NewBadges)
}
