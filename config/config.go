package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is the process configuration read from the environment.
type Config struct {
	HTTPAddr       string
	AllowedOrigins []string
	ServiceToken   string
	AuthDisabled   bool
	DatabaseURL    string

	GameModes              []string
	MatchAckTimeout        time.Duration
	PoolStaleAfter         time.Duration
	PoolSweepInterval      time.Duration
	LifecycleSweepInterval time.Duration

	ChatServiceURL string
	GameServerURL  string
	UserServiceURL string

	Notifier     string // "http" or "redis"
	RedisURL     string
	RedisChannel string

	Archive ArchiveConfig

	LogLevel string
	LogFile  string
}

// ArchiveConfig points at the S3-compatible bucket for standings snapshots.
type ArchiveConfig struct {
	Bucket          string
	AccountID       string
	AccessKeyID     string
	AccessKeySecret string
	Endpoint        string
}

func (a ArchiveConfig) Enabled() bool { return a.Bucket != "" }

// Load reads .env (if present) and the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from a lookup function.
func FromEnv(getenv func(string) string) (*Config, error) {
	r := reader{getenv: getenv}

	cfg := &Config{
		HTTPAddr:               r.str("HTTP_ADDR", ":5300"),
		AllowedOrigins:         r.list("ALLOWED_ORIGINS", "http://localhost:3000"),
		ServiceToken:           r.str("SERVICE_TOKEN", ""),
		AuthDisabled:           r.boolean("AUTH_DISABLED", false),
		DatabaseURL:            r.str("DATABASE_URL", ""),
		GameModes:              r.list("GAME_MODES", "casual,ranked"),
		MatchAckTimeout:        r.duration("MATCH_ACK_TIMEOUT", 60*time.Second),
		PoolStaleAfter:         r.duration("POOL_STALE_AFTER", 10*time.Minute),
		PoolSweepInterval:      r.duration("POOL_SWEEP_INTERVAL", 5*time.Second),
		LifecycleSweepInterval: r.duration("LIFECYCLE_SWEEP_INTERVAL", 30*time.Second),
		ChatServiceURL:         r.str("CHAT_SERVICE_URL", ""),
		GameServerURL:          r.str("GAME_SERVER_URL", ""),
		UserServiceURL:         r.str("USER_SERVICE_URL", ""),
		Notifier:               strings.ToLower(r.str("NOTIFIER", "http")),
		RedisURL:               r.str("REDIS_URL", ""),
		RedisChannel:           r.str("REDIS_CHANNEL", "match-events"),
		Archive: ArchiveConfig{
			Bucket:          r.str("ARCHIVE_BUCKET", ""),
			AccountID:       r.str("ARCHIVE_ACCOUNT_ID", ""),
			AccessKeyID:     r.str("ARCHIVE_ACCESS_KEY_ID", ""),
			AccessKeySecret: r.str("ARCHIVE_ACCESS_KEY_SECRET", ""),
			Endpoint:        r.str("ARCHIVE_ENDPOINT", ""),
		},
		LogLevel: r.str("LOG_LEVEL", "info"),
		LogFile:  r.str("LOG_FILE", ""),
	}

	if err := errors.Join(r.errs...); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.ServiceToken == "" && !c.AuthDisabled {
		errs = append(errs, errors.New("SERVICE_TOKEN is required unless AUTH_DISABLED=true"))
	}
	if len(c.GameModes) == 0 {
		errs = append(errs, errors.New("GAME_MODES must name at least one mode"))
	}
	if c.MatchAckTimeout <= 0 {
		errs = append(errs, errors.New("MATCH_ACK_TIMEOUT must be positive"))
	}
	if c.PoolStaleAfter <= 0 || c.PoolSweepInterval <= 0 || c.LifecycleSweepInterval <= 0 {
		errs = append(errs, errors.New("pool and lifecycle intervals must be positive"))
	}
	switch c.Notifier {
	case "http":
	case "redis":
		if c.RedisURL == "" {
			errs = append(errs, errors.New("REDIS_URL is required when NOTIFIER=redis"))
		}
	default:
		errs = append(errs, fmt.Errorf("NOTIFIER must be http or redis, got %q", c.Notifier))
	}
	return errors.Join(errs...)
}

type reader struct {
	getenv func(string) string
	errs   []error
}

func (r *reader) str(key, def string) string {
	if v := strings.TrimSpace(r.getenv(key)); v != "" {
		return v
	}
	return def
}

func (r *reader) boolean(key string, def bool) bool {
	v := r.getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return b
}

func (r *reader) duration(key string, def time.Duration) time.Duration {
	v := r.getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return d
}

func (r *reader) list(key, def string) []string {
	var out []string
	for _, part := range strings.Split(r.str(key, def), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
