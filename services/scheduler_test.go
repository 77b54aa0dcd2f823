package services

import (
	"context"
	"testing"
	"time"

	"journal-gamification/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRerankSchedulerRunOnce(t *testing.T) {
	e, _ := newTestEngine(t)
	mustComplete(t, e, completion("a", "2026-09", "a1", 10, "win", oct(1)))
	mustComplete(t, e, completion("a", period, "a2", 10, "win", oct(2)))
	mustComplete(t, e, completion("b", period, "b2", 500, "win", oct(2)))
	require.NoError(t, e.DB.Model(&models.PeriodScore{}).Where("1 = 1").Update("rank", nil).Error)

	s := NewRerankScheduler(e, time.Minute, zap.NewNop())
	s.RunOnce(context.Background())

	assert.Equal(t, map[string]int{"a": 1}, periodRanks(t, e.DB, "2026-09"))
	assert.Equal(t, map[string]int{"b": 1, "a": 2}, periodRanks(t, e.DB, period))
	assert.False(t, s.since.IsZero())
}

func TestRerankSchedulerStartStop(t *testing.T) {
	e, _ := newTestEngine(t)
	s := NewRerankScheduler(e, time.Hour, zap.NewNop())
	require.NoError(t, s.Start(context.Background()))
	s.Stop()

	// Stop without Start is a no-op.
	NewRerankScheduler(e, time.Hour, zap.NewNop()).Stop()
}
