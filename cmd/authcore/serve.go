package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tunehub/authcore"
	"github.com/tunehub/authcore/audit/kafkasink"
	"github.com/tunehub/authcore/identity"
	"github.com/tunehub/authcore/internal/audit"
	"github.com/tunehub/authcore/internal/config"
	"github.com/tunehub/authcore/internal/migrations"
	"github.com/tunehub/authcore/internal/rate"
	"github.com/tunehub/authcore/internal/server"
	"github.com/tunehub/authcore/moderation"
	"github.com/tunehub/authcore/password"
	"github.com/tunehub/authcore/session"
)

func serveCmd(configPath *string) *cobra.Command {
	var migrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := setup(*configPath)
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if migrate && cfg.Database.URL != "" {
				if err := migrations.Up(cfg.Database.URL); err != nil {
					return err
				}
				logger.Info("migrations applied")
			}
			return serve(ctx, cfg, logger)
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", false, "apply pending migrations before serving")
	return cmd
}

// closers run in reverse order on shutdown.
type closers []func()

func (c *closers) add(f func()) { *c = append(*c, f) }

func (c closers) run() {
	for i := len(c) - 1; i >= 0; i-- {
		c[i]()
	}
}

func serve(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	var cleanup closers
	defer func() { cleanup.run() }()

	hasher, err := password.NewArgon2(password.DefaultConfig())
	if err != nil {
		return err
	}

	var pool *pgxpool.Pool
	if cfg.Database.URL != "" {
		pool, err = openPool(ctx, cfg.Database)
		if err != nil {
			return err
		}
		cleanup.add(pool.Close)
	}

	var users identity.Store
	if pool != nil {
		users = identity.NewPostgresStore(pool, hasher)
	} else {
		logger.Warn("no database configured, users are kept in memory")
		users = identity.NewMemoryStore(hasher)
	}

	var rdb redis.UniversalClient
	if cfg.UsesRedis() {
		rdb, err = openRedis(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		cleanup.add(func() { _ = rdb.Close() })
	}

	repo, err := sessionRepository(cfg, pool, rdb)
	if err != nil {
		return err
	}
	logger.Info("session backend ready", zap.String("backend", cfg.Session.Backend))

	sinks := audit.MultiSink{audit.NewZapSink(logger)}
	if len(cfg.Kafka.Brokers) > 0 {
		ks, err := kafkasink.New(kafkasink.Config{Brokers: cfg.Kafka.Brokers, Topic: cfg.Kafka.Topic}, logger.Named("kafka"))
		if err != nil {
			return err
		}
		cleanup.add(func() {
			if err := ks.Close(); err != nil {
				logger.Warn("close kafka writer", zap.Error(err))
			}
		})
		sinks = append(sinks, ks)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	builder := authcore.New().
		WithConfig(cfg.Engine()).
		WithUserStore(users).
		WithSessionRepository(repo).
		WithLogger(logger).
		WithMetrics(reg).
		WithAuditSink(sinks)
	if cfg.Throttle.Enabled {
		builder.WithLoginThrottle(rate.New(rdb, rate.Config{
			MaxAttempts: cfg.Throttle.MaxAttempts,
			Window:      cfg.Throttle.Window,
			ThrottleIP:  cfg.Throttle.PerIP,
		}))
	}
	engine, err := builder.Build()
	if err != nil {
		return err
	}
	cleanup.add(engine.Close)

	var gatherer prometheus.Gatherer
	if cfg.Metrics.Enabled {
		gatherer = reg
	}
	handler := server.New(server.Options{
		Engine:     engine,
		Moderation: moderation.NewService(users, engine, logger.Named("moderation")),
		Logger:     logger,
		Gatherer:   gatherer,
		TrustProxy: cfg.HTTP.TrustProxy,
	}).Handler()

	srv := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", cfg.HTTP.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func openPool(ctx context.Context, db config.DatabaseConfig) (*pgxpool.Pool, error) {
	pcfg, err := pgxpool.ParseConfig(db.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if db.MaxConns > 0 {
		pcfg.MaxConns = db.MaxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

func openRedis(ctx context.Context, rc config.RedisConfig) (redis.UniversalClient, error) {
	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    []string{rc.Addr},
		Password: rc.Password,
		DB:       rc.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

func sessionRepository(cfg *config.Config, pool *pgxpool.Pool, rdb redis.UniversalClient) (session.Repository, error) {
	switch cfg.Session.Backend {
	case config.BackendPostgres:
		if pool == nil {
			return nil, errors.New("postgres session backend needs database.url")
		}
		return session.NewPostgresRepository(pool), nil
	case config.BackendRedis:
		if rdb == nil {
			return nil, errors.New("redis session backend needs redis.addr")
		}
		return session.NewRedisRepository(rdb, cfg.Session.RedisPrefix, cfg.Session.RedisTTL), nil
	default:
		return session.NewMemoryRepository(), nil
	}
}
