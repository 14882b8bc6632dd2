package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

type AppConfig struct {
	HTTPAddr  string
	AdminAddr string
	// WSOriginPatterns are extra hosts allowed to open player sockets.
	WSOriginPatterns []string

	RedisURL       string
	DatabaseURL    string
	MigrateOnStart bool

	NATSURL           string
	NATSSubjectPrefix string

	MaxConcurrentGames int
	MessagesDir        string

	MatchInterval      time.Duration
	MatchAcceptTimeout time.Duration
	MatchMaxRatingGap  int

	SessionCleanup  time.Duration
	DisconnectGrace time.Duration
	ClockBroadcast  time.Duration

	RatingKFactor float64
	DefaultRating int
}

func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		HTTPAddr:           ":8080",
		AdminAddr:          ":9090",
		NATSSubjectPrefix:  "arena",
		MaxConcurrentGames: 2000,
		MatchInterval:      time.Second,
		MatchAcceptTimeout: 10 * time.Second,
		MatchMaxRatingGap:  100,
		SessionCleanup:     5 * time.Minute,
		DisconnectGrace:    time.Minute,
		ClockBroadcast:     time.Second,
		RatingKFactor:      24,
		DefaultRating:      1200,
	}

	if v := env("ARENA_HTTP_ADDR"); v != "" {
		cfg.HTTPAddr = v
	}
	if v := env("ADMIN_ADDR"); v != "" {
		cfg.AdminAddr = v
	}
	for _, o := range strings.Split(env("WS_ORIGIN_PATTERNS"), ",") {
		if o = strings.TrimSpace(o); o != "" {
			cfg.WSOriginPatterns = append(cfg.WSOriginPatterns, o)
		}
	}
	cfg.RedisURL = env("REDIS_URL")
	cfg.DatabaseURL = env("DATABASE_URL")
	if v := env("MIGRATE_ON_START"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.MigrateOnStart = b
		}
	}

	cfg.NATSURL = env("NATS_URL")
	if v := env("NATS_SUBJECT_PREFIX"); v != "" {
		cfg.NATSSubjectPrefix = v
	}

	if n, ok := positiveInt("MAX_CONCURRENT_GAMES"); ok {
		cfg.MaxConcurrentGames = n
	}
	cfg.MessagesDir = env("MESSAGES_DIR")

	if n, ok := positiveInt("MATCH_INTERVAL_MS"); ok {
		cfg.MatchInterval = time.Duration(n) * time.Millisecond
	}
	if n, ok := positiveInt("MATCH_ACCEPT_TIMEOUT_SEC"); ok {
		cfg.MatchAcceptTimeout = time.Duration(n) * time.Second
	}
	if n, ok := positiveInt("MATCH_MAX_RATING_GAP"); ok {
		cfg.MatchMaxRatingGap = n
	}
	if n, ok := positiveInt("SESSION_CLEANUP_SEC"); ok {
		cfg.SessionCleanup = time.Duration(n) * time.Second
	}
	if n, ok := positiveInt("DISCONNECT_GRACE_SEC"); ok {
		cfg.DisconnectGrace = time.Duration(n) * time.Second
	}
	if n, ok := positiveInt("CLOCK_BROADCAST_MS"); ok {
		cfg.ClockBroadcast = time.Duration(n) * time.Millisecond
	}
	if v := env("RATING_K_FACTOR"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			cfg.RatingKFactor = f
		}
	}
	if n, ok := positiveInt("DEFAULT_RATING"); ok {
		cfg.DefaultRating = n
	}

	if cfg.HTTPAddr == cfg.AdminAddr {
		return nil, errors.New("ARENA_HTTP_ADDR and ADMIN_ADDR must differ")
	}
	return cfg, nil
}

func env(key string) string { return strings.TrimSpace(os.Getenv(key)) }

func positiveInt(key string) (int, bool) {
	v := env(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}
