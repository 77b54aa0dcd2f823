package services

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"journal-gamification/database"
	"journal-gamification/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.Open(database.DriverSqlite, filepath.Join(t.TempDir(), "engine.db"), zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

func seedCatalogYAML(t *testing.T, db *gorm.DB, doc string) {
	t.Helper()
	defs, err := ParseCatalog([]byte(doc))
	require.NoError(t, err)
	_, err = SeedCatalog(db, defs)
	require.NoError(t, err)
}

// testClock is a settable clock shared by the engine under test.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

func newTestEngine(t *testing.T, opts ...EngineOption) (*Engine, *testClock) {
	t.Helper()
	clock := &testClock{now: time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)}
	opts = append([]EngineOption{WithClock(clock.Now)}, opts...)
	return NewEngine(newTestDB(t), zap.NewNop(), opts...), clock
}

func completion(user, period, tradeID string, profit int64, result string, date time.Time) TradeCompletion {
	return TradeCompletion{
		UserID:    user,
		PeriodKey: period,
		Trade: Trade{
			ID:     tradeID,
			Profit: decimal.NewFromInt(profit),
			Result: result,
			Date:   date,
		},
	}
}

func mustComplete(t *testing.T, e *Engine, ev TradeCompletion) *CompletionResult {
	t.Helper()
	res, err := e.ProcessTradeCompletion(context.Background(), ev)
	require.NoError(t, err)
	return res
}

func loadProgress(t *testing.T, db *gorm.DB, user string) models.PlayerProgress {
	t.Helper()
	var p models.PlayerProgress
	require.NoError(t, db.Where("external_user_id = ?", user).First(&p).Error)
	return p
}

func periodRanks(t *testing.T, db *gorm.DB, period string) map[string]int {
	t.Helper()
	var rows []models.PeriodScore
	require.NoError(t, db.Where("period_key = ?", period).Find(&rows).Error)
	out := make(map[string]int, len(rows))
	for _, r := range rows {
		require.NotNil(t, r.Rank, "user %s unranked", r.ExternalUserID)
		out[r.ExternalUserID] = *r.Rank
	}
	return out
}

func tradeID(user string, n int) string {
	return fmt.Sprintf("%s-t%d", user, n)
}
