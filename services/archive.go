package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"journal-gamification/models"

	"github.com/gosimple/slug"
	"go.uber.org/zap"
)

// ObjectStore is the object storage the archiver writes to (R2 in production).
type ObjectStore interface {
	PutObject(ctx context.Context, key string, body []byte, contentType string) (string, error)
}

// LeaderboardSnapshot is the archived, fully ranked leaderboard of one period.
type LeaderboardSnapshot struct {
	PeriodKey   string                    `json:"period_key"`
	GeneratedAt time.Time                 `json:"generated_at"`
	Entries     []models.LeaderboardEntry `json:"entries"`
}

type Archiver struct {
	engine *Engine
	store  ObjectStore
	logger *zap.Logger
}

func NewArchiver(engine *Engine, store ObjectStore, logger *zap.Logger) *Archiver {
	return &Archiver{engine: engine, store: store, logger: logger.Named("archiver")}
}

// SnapshotKey is the object key a period's snapshot is stored under.
func SnapshotKey(periodKey string) string {
	return fmt.Sprintf("leaderboards/%s.json", slug.Make(periodKey))
}

// Snapshot loads the complete ranked leaderboard of a period.
func (a *Archiver) Snapshot(ctx context.Context, periodKey string) (*LeaderboardSnapshot, error) {
	if err := requireField("period_key", periodKey); err != nil {
		return nil, err
	}
	var rows []models.PeriodScore
	if err := a.engine.DB.WithContext(ctx).
		Where("period_key = ? AND rank IS NOT NULL", periodKey).
		Order("rank ASC").
		Find(&rows).Error; err != nil {
		return nil, persistErr("load leaderboard snapshot", err)
	}
	snap := &LeaderboardSnapshot{
		PeriodKey:   periodKey,
		GeneratedAt: a.engine.now().UTC(),
		Entries:     make([]models.LeaderboardEntry, 0, len(rows)),
	}
	for _, r := range rows {
		snap.Entries = append(snap.Entries, models.LeaderboardEntry{UserID: r.ExternalUserID, Score: r.Score, Rank: r.Rank})
	}
	return snap, nil
}

// Archive reranks the period, then uploads its snapshot. Returns the object URL.
func (a *Archiver) Archive(ctx context.Context, periodKey string) (string, error) {
	if _, err := a.engine.RerankPeriod(ctx, periodKey); err != nil {
		return "", err
	}
	snap, err := a.Snapshot(ctx, periodKey)
	if err != nil {
		return "", err
	}
	body, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode snapshot: %w", err)
	}
	url, err := a.store.PutObject(ctx, SnapshotKey(periodKey), body, "application/json")
	if err != nil {
		return "", err
	}
	a.logger.Info("leaderboard archived",
		zap.String("period", periodKey), zap.Int("entries", len(snap.Entries)), zap.String("url", url))
	return url, nil
}
