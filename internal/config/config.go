package config

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/sethvargo/go-envconfig"
	log "github.com/sirupsen/logrus"
)

const (
	StoreDriverSQLite = "sqlite"
	StoreDriverRedis  = "redis"

	envPrefix = "NG_"
)

type (
	Config struct {
		TelegramAPIToken string        `env:"TOKEN,required"`
		DefaultLanguage  string        `env:"LANG,default=en"`
		LogLevel         int           `env:"LOG_LEVEL,default=4"`
		DotPath          string        `env:"DOT_PATH,default=~/.ngmod"`
		MetricsAddr      string        `env:"METRICS_ADDR"`
		AuditFile        string        `env:"AUDIT_FILE,default=audit.log"`
		Workers          int           `env:"WORKERS,default=8"`
		PollTimeout      int           `env:"POLL_TIMEOUT,default=60"`
		ShutdownTimeout  time.Duration `env:"SHUTDOWN_TIMEOUT,default=15s"`
		Moderation       Moderation
		Store            Store
	}

	Moderation struct {
		WordsPath     string        `env:"WORDS_PATH,default=bad_words.txt"`
		MaxViolations int           `env:"MAX_VIOLATIONS,default=3"`
		BanDuration   time.Duration `env:"BAN_DURATION,default=24h"`
		AuditChatID   int64         `env:"AUDIT_CHAT_ID"`
		OperatorID    int64         `env:"OPERATOR_ID"`
		WarningTTL    time.Duration `env:"WARNING_TTL,default=10s"`
		ActionTimeout time.Duration `env:"ACTION_TIMEOUT,default=10s"`
		AdminCacheTTL time.Duration `env:"ADMIN_CACHE_TTL,default=1m"`
	}

	Store struct {
		Driver   string `env:"STORE_DRIVER,default=sqlite"`
		DBName   string `env:"DB_NAME,default=ngmod.db"`
		RedisURL string `env:"REDIS_URL"`
	}
)

var (
	once         sync.Once
	globalConfig = &Config{}
	globalErr    error
)

// Load reads the process configuration from NG_-prefixed environment
// variables. It runs once; later calls return the same result.
func Load() (Config, error) {
	once.Do(func() {
		cfg, err := LoadWith(context.Background(), envconfig.OsLookuper())
		if err != nil {
			globalErr = err
			return
		}
		log.Traceln("loaded config")
		globalConfig = cfg
	})
	return *globalConfig, globalErr
}

func Get() Config {
	cfg, err := Load()
	if err != nil {
		log.WithField("error", err.Error()).Error("cant load config")
	}
	return cfg
}

// LoadWith processes the configuration from an arbitrary lookuper, applying
// the NG_ prefix, expanding the dot path and validating the result.
func LoadWith(ctx context.Context, lookuper envconfig.Lookuper) (*Config, error) {
	cfg := &Config{}
	envcfg := envconfig.Config{
		Lookuper: envconfig.PrefixLookuper(envPrefix, lookuper),
		Target:   cfg,
	}
	if err := envconfig.ProcessWith(ctx, &envcfg); err != nil {
		return nil, fmt.Errorf("process env config: %w", err)
	}
	dotPath, err := homedir.Expand(cfg.DotPath)
	if err != nil {
		return nil, fmt.Errorf("expand dot path: %w", err)
	}
	cfg.DotPath = dotPath
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch {
	case c.Moderation.MaxViolations < 1:
		return fmt.Errorf("max violations must be at least 1, got %d", c.Moderation.MaxViolations)
	case c.Moderation.BanDuration < 0:
		return fmt.Errorf("ban duration must not be negative, got %s", c.Moderation.BanDuration)
	case c.Moderation.ActionTimeout <= 0:
		return fmt.Errorf("action timeout must be positive, got %s", c.Moderation.ActionTimeout)
	case c.Moderation.WarningTTL < 0:
		return fmt.Errorf("warning ttl must not be negative, got %s", c.Moderation.WarningTTL)
	case c.Workers < 1:
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}

	switch c.Store.Driver {
	case StoreDriverSQLite:
		if c.Store.DBName == "" {
			return fmt.Errorf("sqlite store requires a database name")
		}
	case StoreDriverRedis:
		if c.Store.RedisURL == "" {
			return fmt.Errorf("redis store requires NG_REDIS_URL")
		}
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	return nil
}
