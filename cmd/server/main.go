package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/pscheid92/projectpulse/internal/adapter/httpserver"
	"github.com/pscheid92/projectpulse/internal/adapter/metrics"
	"github.com/pscheid92/projectpulse/internal/adapter/postgres"
	"github.com/pscheid92/projectpulse/internal/adapter/redis"
	"github.com/pscheid92/projectpulse/internal/app"
	"github.com/pscheid92/projectpulse/internal/domain"
	"github.com/pscheid92/projectpulse/internal/platform/config"
	"github.com/pscheid92/projectpulse/internal/platform/logging"
	"github.com/pscheid92/projectpulse/internal/platform/retry"
	"github.com/pscheid92/projectpulse/internal/platform/version"
	"github.com/pscheid92/projectpulse/internal/realtime"
	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func startupPolicy(dependency string) retry.Policy {
	p := retry.Startup
	p.OnRetry = func(attempt int, err error, backoff time.Duration) {
		slog.Warn("Dependency not reachable, retrying", "dependency", dependency, "attempt", attempt, "backoff", backoff, "error", err)
	}
	return p
}

func setupDB(ctx context.Context, cfg *config.Config, reg prometheus.Registerer) (*pgxpool.Pool, error) {
	tracer := postgres.NewMetricsTracer(metrics.NewDBMetrics(reg))

	pool, err := retry.Do(ctx, startupPolicy("postgres"), retry.Transient, func(ctx context.Context) (*pgxpool.Pool, error) {
		return postgres.Connect(ctx, cfg.DatabaseURL, tracer)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := postgres.RunMigrationsWithLock(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return pool, nil
}

func setupRedis(ctx context.Context, cfg *config.Config, m *metrics.RedisMetrics) (*goredis.Client, error) {
	rdb, err := retry.Do(ctx, startupPolicy("redis"), retry.Transient, func(ctx context.Context) (*goredis.Client, error) {
		return redis.NewClient(ctx, cfg.RedisURL, m)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return rdb, nil
}

func instanceID(cfg *config.Config) string {
	if cfg.InstanceID != "" {
		return cfg.InstanceID
	}
	return uuid.NewString()
}

func main() {
	cfg := setupConfig()

	// Initialize structured logging
	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)

	if err := run(cfg); err != nil {
		slog.Error("Server exited with error", "error", err)
		os.Exit(1)
	}
	slog.Info("Server stopped")
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	clock := clockwork.NewRealClock()
	info := version.Get()
	origin := instanceID(cfg)
	slog.Info("Application starting", "env", cfg.AppEnv, "port", cfg.Port, "version", info.Version, "instance", origin)

	reg := metrics.NewRegistry()

	pool, err := setupDB(ctx, cfg, reg)
	if err != nil {
		return err
	}
	defer pool.Close()

	registry := realtime.NewRegistry(clock, metrics.NewRealtimeMetrics(reg))
	presence := realtime.NewPresence()

	healthChecks := []httpserver.HealthCheck{
		{Name: "postgres", Check: postgres.HealthCheck(pool)},
	}

	// Without Redis every user must be connected to this instance.
	var pusher domain.Pusher = registry
	var relay *redis.Relay
	if cfg.RedisURL != "" {
		redisMetrics := metrics.NewRedisMetrics(reg)
		rdb, err := setupRedis(ctx, cfg, redisMetrics)
		if err != nil {
			return err
		}
		defer func() { _ = rdb.Close() }()

		relay = redis.NewRelay(rdb, registry, origin, redisMetrics)
		pusher = relay
		healthChecks = append(healthChecks, httpserver.HealthCheck{Name: "redis", Check: redis.HealthCheck(rdb)})
	} else {
		slog.Info("REDIS_URL not set, cross-instance relay disabled")
	}

	dispatcher := app.NewDispatcher(
		postgres.NewMessageRepo(pool),
		postgres.NewMembershipRepo(pool),
		presence,
		pusher,
		clock,
		metrics.NewFanoutMetrics(reg),
	)
	heartbeat := realtime.NewHeartbeat(registry, clock, cfg.HeartbeatInterval)
	srv := httpserver.NewServer(cfg, dispatcher, registry, presence, clock, reg, healthChecks)

	g, gctx := errgroup.WithContext(ctx)

	heartbeatDone := make(chan struct{})
	g.Go(func() error {
		defer close(heartbeatDone)
		heartbeat.Run(gctx)
		return nil
	})

	if relay != nil {
		g.Go(func() error {
			if err := relay.Start(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("relay stopped: %w", err)
			}
			return nil
		})
	}

	g.Go(srv.Start)

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutdown signal received, cleaning up...")

		<-heartbeatDone
		registry.CloseAll()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}
		return nil
	})

	return g.Wait()
}
