package cmd

import (
	"context"
	"fmt"

	"journal-gamification/config"
	"journal-gamification/database"
	"journal-gamification/logger"
	"journal-gamification/services"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var envFile string

var rootCmd = &cobra.Command{
	Use:   "journal-gamification",
	Short: "Gamification and ranking engine for the trading journal",
	Long: `journal-gamification turns trade completion and deletion events into levels,
streaks, badges, milestones and per-period leaderboards.

Run "serve" for the HTTP read side, the trade event consumer and the periodic re-ranker.
The other commands operate on the same database for maintenance.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before the environment")
}

// runtime is everything a command needs to drive the engine.
type runtime struct {
	cfg    *config.Config
	logger *zap.Logger
	db     *gorm.DB
	redis  *redis.Client
	engine *services.Engine
}

func bootstrap(ctx context.Context) (*runtime, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, err
	}
	log, err := logger.New(logger.Config{Level: cfg.Log.Level, Encoding: cfg.Log.Encoding})
	if err != nil {
		return nil, err
	}

	db, err := database.Open(cfg.Database.Driver, cfg.Database.URL, log)
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(db); err != nil {
		return nil, err
	}

	defs, err := services.LoadCatalog(cfg.Engine.BadgeCatalogPath)
	if err != nil {
		return nil, err
	}
	seeded, err := services.SeedCatalog(db.WithContext(ctx), defs)
	if err != nil {
		return nil, err
	}
	if seeded > 0 {
		log.Info("badge catalog seeded", zap.Int64("new_badges", seeded))
	}

	rt := &runtime{cfg: cfg, logger: log, db: db}
	var opts []services.EngineOption
	if cfg.Redis.URL != "" {
		redisOpts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return nil, fmt.Errorf("parse REDIS_URL: %w", err)
		}
		rt.redis = redis.NewClient(redisOpts)
		if err := rt.redis.Ping(ctx).Err(); err != nil {
			log.Warn("redis unreachable, leaderboard reads will fall through to the database", zap.Error(err))
		}
		opts = append(opts, services.WithLeaderboardCache(services.NewRedisLeaderboardCache(rt.redis, cfg.Redis.CacheTTL, log)))
	}
	rt.engine = services.NewEngine(db, log, opts...)
	return rt, nil
}

func (rt *runtime) Close() {
	if rt.redis != nil {
		_ = rt.redis.Close()
	}
	if sqlDB, err := rt.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	_ = rt.logger.Sync()
}
