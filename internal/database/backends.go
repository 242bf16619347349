package database

import (
	"context"
	"log/slog"

	"github.com/cuongbtq/jobpipe/internal/config"
	"github.com/cuongbtq/jobpipe/shared/mongo"
	"github.com/cuongbtq/jobpipe/shared/postgresql"
	"github.com/cuongbtq/jobpipe/shared/redis"
)

// FromConfig returns the PostgreSQL, Redis and MongoDB backends in
// connection order.
func FromConfig(cfg config.DatabaseConfig, logger *slog.Logger) []Backend {
	return []Backend{
		postgresBackend{cfg: cfg.Postgres, logger: logger},
		redisBackend{cfg: cfg.Redis, logger: logger},
		mongoBackend{cfg: cfg.Mongo, logger: logger},
	}
}

type postgresBackend struct {
	cfg    config.PostgresConfig
	logger *slog.Logger
}

func (b postgresBackend) Name() string  { return Postgres }
func (b postgresBackend) Enabled() bool { return b.cfg.Enabled }

func (b postgresBackend) Connect(ctx context.Context) (Handle, error) {
	return postgresql.NewClient(ctx, &postgresql.Config{
		Host:            b.cfg.Host,
		Port:            b.cfg.Port,
		User:            b.cfg.User,
		Password:        b.cfg.Password,
		Database:        b.cfg.Database,
		SSLMode:         b.cfg.SSLMode,
		MaxOpenConns:    b.cfg.MaxOpenConns,
		MaxIdleConns:    b.cfg.MaxIdleConns,
		ConnMaxLifetime: b.cfg.ConnMaxLifetime,
		ConnMaxIdleTime: b.cfg.ConnMaxIdleTime,
	}, b.logger)
}

type redisBackend struct {
	cfg    config.RedisConfig
	logger *slog.Logger
}

func (b redisBackend) Name() string  { return Redis }
func (b redisBackend) Enabled() bool { return b.cfg.Enabled }

func (b redisBackend) Connect(ctx context.Context) (Handle, error) {
	return redis.NewClient(ctx, &redis.Config{
		Host:     b.cfg.Host,
		Port:     b.cfg.Port,
		Password: b.cfg.Password,
		DB:       b.cfg.DB,
	}, b.logger)
}

type mongoBackend struct {
	cfg    config.MongoConfig
	logger *slog.Logger
}

func (b mongoBackend) Name() string  { return Mongo }
func (b mongoBackend) Enabled() bool { return b.cfg.Enabled }

func (b mongoBackend) Connect(ctx context.Context) (Handle, error) {
	return mongo.NewClient(ctx, &mongo.Config{
		URI:            b.cfg.URI,
		Database:       b.cfg.Database,
		ConnectTimeout: b.cfg.ConnectTimeout,
	}, b.logger)
}
