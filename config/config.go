package config

import (
	"errors"
	"fmt"
	"time"

	"journal-gamification/utils"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	Log      LogConfig
	Redis    RedisConfig
	RabbitMQ RabbitMQConfig
	Engine   EngineConfig
	R2       R2Config
}

type DatabaseConfig struct {
	Driver string `envconfig:"DB_DRIVER" default:"postgres"`
	URL    string `envconfig:"DATABASE_URL"`
}

type ServerConfig struct {
	Addr           string   `envconfig:"HTTP_ADDR" default:":5200"`
	ServiceToken   string   `envconfig:"GAME_SERVICE_TOKEN"`
	AllowedOrigins []string `envconfig:"ALLOWED_ORIGINS" default:"http://localhost:3000"`
}

type LogConfig struct {
	Level    string `envconfig:"LOG_LEVEL" default:"info"`
	Encoding string `envconfig:"LOG_ENCODING" default:"json"`
}

// RedisConfig is optional; an empty URL disables the leaderboard cache.
type RedisConfig struct {
	URL      string        `envconfig:"REDIS_URL"`
	CacheTTL time.Duration `envconfig:"LEADERBOARD_CACHE_TTL" default:"30s"`
}

// RabbitMQConfig is optional; an empty URL disables event intake.
type RabbitMQConfig struct {
	URL   string `envconfig:"RABBITMQ_URL"`
	Queue string `envconfig:"TRADE_EVENTS_QUEUE" default:"trade_events"`
}

type EngineConfig struct {
	RerankInterval   time.Duration `envconfig:"RERANK_INTERVAL" default:"1m"`
	BadgeCatalogPath string        `envconfig:"BADGE_CATALOG_PATH"`
}

type R2Config struct {
	AccountID       string `envconfig:"CLOUDFLARE_ACCOUNT_ID"`
	AccessKeyID     string `envconfig:"R2_ACCESS_KEY_ID"`
	AccessKeySecret string `envconfig:"R2_ACCESS_KEY_SECRET"`
	Bucket          string `envconfig:"R2_BUCKET_NAME"`
	CDNBaseURL      string `envconfig:"CDN_BASE_URL"`
}

func (c R2Config) Client() utils.R2Config {
	return utils.R2Config{
		AccountID:       c.AccountID,
		AccessKeyID:     c.AccessKeyID,
		AccessKeySecret: c.AccessKeySecret,
		Bucket:          c.Bucket,
		CDNBaseURL:      c.CDNBaseURL,
	}
}

// Load reads an optional .env file and then the process environment.
func Load(envFiles ...string) (*Config, error) {
	_ = godotenv.Load(envFiles...)

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	switch c.Database.Driver {
	case "postgres":
		if c.Database.URL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres driver"))
		}
	case "sqlite":
		if c.Database.URL == "" {
			c.Database.URL = "journal-gamification.db"
		}
	default:
		errs = append(errs, fmt.Errorf("DB_DRIVER must be postgres or sqlite, got %q", c.Database.Driver))
	}
	if c.Engine.RerankInterval <= 0 {
		errs = append(errs, errors.New("RERANK_INTERVAL must be positive"))
	}
	if c.Redis.CacheTTL <= 0 {
		errs = append(errs, errors.New("LEADERBOARD_CACHE_TTL must be positive"))
	}
	if c.RabbitMQ.URL != "" && c.RabbitMQ.Queue == "" {
		errs = append(errs, errors.New("TRADE_EVENTS_QUEUE is required when RABBITMQ_URL is set"))
	}
	r2 := c.R2
	if r2.AccountID != "" || r2.Bucket != "" {
		if r2.AccountID == "" || r2.Bucket == "" || r2.AccessKeyID == "" || r2.AccessKeySecret == "" {
			errs = append(errs, errors.New("R2 archive needs CLOUDFLARE_ACCOUNT_ID, R2_BUCKET_NAME, R2_ACCESS_KEY_ID and R2_ACCESS_KEY_SECRET"))
		}
	}
	return errors.Join(errs...)
}
