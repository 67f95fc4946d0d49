package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/playperu/treasurehunt/internal/activity"
	"github.com/playperu/treasurehunt/internal/chat"
	"github.com/playperu/treasurehunt/internal/config"
	"github.com/playperu/treasurehunt/internal/database"
	"github.com/playperu/treasurehunt/internal/engine"
	"github.com/playperu/treasurehunt/internal/handler/health"
	"github.com/playperu/treasurehunt/internal/identity"
	"github.com/playperu/treasurehunt/internal/migrations"
	"github.com/playperu/treasurehunt/internal/readcache"
	"github.com/playperu/treasurehunt/internal/server"
	"github.com/playperu/treasurehunt/internal/store"
	"github.com/playperu/treasurehunt/internal/telemetry"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, stdout io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	if cfg.IdentityKey == config.DevIdentityKey {
		logger.Warn("using the development identity key; set IDENTITY_KEY outside development")
	}

	// --- Tracing ---
	shutdownTracing, err := telemetry.Setup(ctx, "treasurehunt", cfg.OTelEndpoint)
	if err != nil {
		return fmt.Errorf("setting up tracing: %w", err)
	}
	defer shutdownTracing(context.Background())

	// --- SQLite ---
	db, err := database.Open(ctx, cfg.DBPath)
	if err != nil {
		return fmt.Errorf("connecting to sqlite: %w", err)
	}
	defer db.Close()

	applied, err := migrations.Up(ctx, db)
	if err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	logger.Info("connected to sqlite", "path", cfg.DBPath, "migrations_applied", applied)

	st := store.New(db)
	if err := st.SeedStaff(ctx); err != nil {
		return fmt.Errorf("seeding staff: %w", err)
	}

	checks := map[string]health.Checker{"sqlite": dbChecker{db}}

	// --- Redis (optional shared graph cache) ---
	var remote readcache.Remote
	if cfg.RedisURL != "" {
		rdb, err := openRedis(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("connecting to redis: %w", err)
		}
		defer rdb.Close()
		remote = readcache.NewRedisRemote(rdb)
		checks["redis"] = redisChecker{rdb}
		logger.Info("connected to redis")
	}

	// --- Engine ---
	graphs := readcache.New(st, remote, cfg.GraphCacheTTL, logger)
	broadcaster := activity.New(st, logger, cfg.ActivityReplay, cfg.ActivityBuffer)
	eng := engine.New(st, graphs, broadcaster, logger)

	if cfg.SeedDemo {
		if err := server.SeedDemo(ctx, logger, eng); err != nil {
			return fmt.Errorf("seeding demo: %w", err)
		}
	}

	// --- HTTP Server ---
	srv := server.New(cfg.HTTPAddr, logger, server.Deps{
		Engine:   eng,
		Graphs:   graphs,
		Relay:    chat.NewRelay(eng, cfg.ChatChannels),
		Verifier: identity.NewVerifier(cfg.IdentityKey),
		Staff:    st,
		SPADir:   cfg.SPADir,
	}, func(r chi.Router) {
		r.Mount("/healthz", health.NewHandler(logger, checks, "redis").Routes())
	})

	// --- Run ---
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting http server", "addr", cfg.HTTPAddr)
		return srv.Run(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down http server")
		return srv.Shutdown(context.Background())
	})

	return g.Wait()
}

func openRedis(ctx context.Context, rawURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}
	return rdb, nil
}

// dbChecker adapts *sql.DB to health.Checker.
type dbChecker struct{ db *sql.DB }

func (d dbChecker) Check(ctx context.Context) error { return d.db.PingContext(ctx) }

// redisChecker adapts *redis.Client to health.Checker.
type redisChecker struct{ client *redis.Client }

func (r redisChecker) Check(ctx context.Context) error { return r.client.Ping(ctx).Err() }
