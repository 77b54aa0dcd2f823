package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"journal-gamification/models"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// LeaderboardCache stores ranked pages per period; the ranker invalidates a period after each
// run. Every invalidation bumps the period's version, and a page read at an older version is
// never stored.
type LeaderboardCache interface {
	Get(ctx context.Context, periodKey string, limit int) ([]models.LeaderboardEntry, bool)
	// Version reports the period's invalidation counter; ok is false when it cannot be read.
	Version(ctx context.Context, periodKey string) (version int64, ok bool)
	Set(ctx context.Context, periodKey string, limit int, version int64, entries []models.LeaderboardEntry)
	Invalidate(ctx context.Context, periodKey string)
}

type noopLeaderboardCache struct{}

func (noopLeaderboardCache) Get(context.Context, string, int) ([]models.LeaderboardEntry, bool) {
	return nil, false
}
func (noopLeaderboardCache) Version(context.Context, string) (int64, bool) { return 0, false }
func (noopLeaderboardCache) Set(context.Context, string, int, int64, []models.LeaderboardEntry) {}
func (noopLeaderboardCache) Invalidate(context.Context, string) {}

var errStalePage = errors.New("leaderboard page is stale")

// RedisLeaderboardCache keeps one hash per period (field = page limit) so a single DEL
// drops every cached page of that period. The version lives in its own key and outlives
// the hash.
type RedisLeaderboardCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewRedisLeaderboardCache(client *redis.Client, ttl time.Duration, logger *zap.Logger) *RedisLeaderboardCache {
	return &RedisLeaderboardCache{client: client, ttl: ttl, logger: logger.Named("leaderboard_cache")}
}

func leaderboardKey(periodKey string) string {
	return fmt.Sprintf("leaderboard:%s", periodKey)
}

func leaderboardVersionKey(periodKey string) string {
	return fmt.Sprintf("leaderboard:%s:version", periodKey)
}

func (c *RedisLeaderboardCache) Get(ctx context.Context, periodKey string, limit int) ([]models.LeaderboardEntry, bool) {
	raw, err := c.client.HGet(ctx, leaderboardKey(periodKey), strconv.Itoa(limit)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("leaderboard cache read failed", zap.String("period", periodKey), zap.Error(err))
		}
		return nil, false
	}
	var entries []models.LeaderboardEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		c.logger.Warn("leaderboard cache entry corrupt", zap.String("period", periodKey), zap.Error(err))
		return nil, false
	}
	return entries, true
}

func (c *RedisLeaderboardCache) Version(ctx context.Context, periodKey string) (int64, bool) {
	v, err := c.client.Get(ctx, leaderboardVersionKey(periodKey)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, true
	}
	if err != nil {
		c.logger.Warn("leaderboard cache version read failed", zap.String("period", periodKey), zap.Error(err))
		return 0, false
	}
	return v, true
}

// Set writes the page under WATCH on the version key, so an invalidation that lands
// between the check and the write aborts it.
func (c *RedisLeaderboardCache) Set(ctx context.Context, periodKey string, limit int, version int64, entries []models.LeaderboardEntry) {
	payload, err := json.Marshal(entries)
	if err != nil {
		return
	}
	key, versionKey := leaderboardKey(periodKey), leaderboardVersionKey(periodKey)
	err = c.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, versionKey).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if current != version {
			return errStalePage
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, strconv.Itoa(limit), payload)
			pipe.Expire(ctx, key, c.ttl)
			return nil
		})
		return err
	}, versionKey)
	switch {
	case err == nil:
	case errors.Is(err, errStalePage), errors.Is(err, redis.TxFailedErr):
		c.logger.Debug("stale leaderboard page dropped", zap.String("period", periodKey), zap.Int64("version", version))
	default:
		c.logger.Warn("leaderboard cache write failed", zap.String("period", periodKey), zap.Error(err))
	}
}

func (c *RedisLeaderboardCache) Invalidate(ctx context.Context, periodKey string) {
	pipe := c.client.TxPipeline()
	pipe.Incr(ctx, leaderboardVersionKey(periodKey))
	pipe.Del(ctx, leaderboardKey(periodKey))
	if _, err := pipe.Exec(ctx); err != nil {
		c.logger.Warn("leaderboard cache invalidation failed", zap.String("period", periodKey), zap.Error(err))
	}
}
