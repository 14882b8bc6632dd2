package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/park285/cheese-arena/internal/admin"
	"github.com/park285/cheese-arena/internal/arena"
	appcfg "github.com/park285/cheese-arena/internal/config"
	"github.com/park285/cheese-arena/internal/events"
	"github.com/park285/cheese-arena/internal/matchmaking"
	"github.com/park285/cheese-arena/internal/migrations"
	"github.com/park285/cheese-arena/internal/msgcat"
	"github.com/park285/cheese-arena/internal/obslog"
	"github.com/park285/cheese-arena/internal/rating"
	"github.com/park285/cheese-arena/internal/store"
	"github.com/park285/cheese-arena/internal/transport"
)

func main() {
	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	logger := obslog.L()
	defer func() { _ = logger.Sync() }()

	cfg, err := appcfg.Load()
	if err != nil {
		logger.Fatal("config_error", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("arena_exit", zap.Error(err))
	}
	logger.Info("arena_stopped")
}

func run(ctx context.Context, cfg *appcfg.AppConfig, logger *zap.Logger) error {
	cat, err := msgcat.New(cfg.MessagesDir)
	if err != nil {
		return err
	}

	repo, err := openRepository(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = repo.Close() }()

	var snaps *store.SnapshotStore
	if cfg.RedisURL != "" {
		rdb, err := store.OpenRedis(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		snaps = store.NewSnapshotStore(rdb)
		defer func() { _ = snaps.Close() }()
	} else {
		logger.Warn("snapshots_disabled")
	}

	var pub events.Publisher = events.Nop()
	if cfg.NATSURL != "" {
		np, err := events.NewNATSPublisher(events.DefaultNATSConfig(cfg.NATSURL, cfg.NATSSubjectPrefix))
		if err != nil {
			return err
		}
		pub = np
	}
	defer func() { _ = pub.Close() }()

	hub := transport.NewHub()
	elo := rating.NewElo(cfg.RatingKFactor, cfg.DefaultRating)
	deps := arena.Deps{
		Outbound:  hub,
		Catalog:   cat,
		Repo:      repo,
		Publisher: pub,
		Elo:       &elo,
	}
	if snaps != nil {
		deps.Snapshots = snaps
	}
	coord := arena.New(arena.Config{
		DisconnectGrace: cfg.DisconnectGrace,
		ClockBroadcast:  cfg.ClockBroadcast,
		CleanupDelay:    cfg.SessionCleanup,
		MaxSessions:     cfg.MaxConcurrentGames,
		DefaultRating:   cfg.DefaultRating,
		Match: matchmaking.Config{
			MaxGap:        cfg.MatchMaxRatingGap,
			AcceptTimeout: cfg.MatchAcceptTimeout,
			Interval:      cfg.MatchInterval,
		},
	}, deps)

	rctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	n, err := coord.Recover(rctx)
	cancel()
	if err != nil {
		logger.Warn("snapshot_recovery_failed", zap.Error(err))
	} else if n > 0 {
		logger.Info("sessions_recovered", zap.Int("count", n))
	}

	ws := transport.NewServer(hub, coord, transport.Options{
		OriginPatterns: cfg.WSOriginPatterns,
		Lookup:         repo.GetRatings,
	})
	ops := admin.New(repo, coord)

	// The first component to fail stops the others.
	ctx, cancelAll := context.WithCancel(ctx)
	defer cancelAll()
	errs := make(chan error, 3)
	serve := func(name string, fn func(context.Context) error) {
		err := fn(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("component_failed", zap.String("component", name), zap.Error(err))
			cancelAll()
		}
		errs <- err
	}
	go serve("coordinator", coord.Run)
	go serve("websocket", func(ctx context.Context) error { return ws.Run(ctx, cfg.HTTPAddr) })
	go serve("admin", func(ctx context.Context) error { return ops.Run(ctx, cfg.AdminAddr) })
	logger.Info("arena_started", zap.String("ws", cfg.HTTPAddr), zap.String("admin", cfg.AdminAddr))

	var first error
	for range 3 {
		if err := <-errs; err != nil && !errors.Is(err, context.Canceled) && first == nil {
			first = err
		}
	}
	return first
}

func openRepository(ctx context.Context, cfg *appcfg.AppConfig, logger *zap.Logger) (store.Repository, error) {
	if cfg.DatabaseURL == "" {
		logger.Warn("database_disabled_using_memory")
		return store.NewMemory(), nil
	}
	if cfg.MigrateOnStart {
		m, err := migrations.New(cfg.DatabaseURL, logger)
		if err != nil {
			return nil, err
		}
		err = m.Up()
		_ = m.Close()
		if err != nil {
			return nil, err
		}
	}
	pg, err := store.OpenPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	return pg, nil
}
