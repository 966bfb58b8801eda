package persistence

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
)

// Drivers accepted by Config.Driver.
const (
	DriverNone     = "none"
	DriverFile     = "file"
	DriverRedis    = "redis"
	DriverPostgres = "postgres"
)

// Config selects and configures a sink.
type Config struct {
	Driver    string      `yaml:"driver"`
	QueueSize int         `yaml:"queue_size"`
	Retention int         `yaml:"retention"`
	File      FileConfig  `yaml:"file"`
	Redis     RedisConfig `yaml:"redis"`
	Postgres  PGConfig    `yaml:"postgres"`
}

type FileConfig struct {
	Dir string `yaml:"dir"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type PGConfig struct {
	DSN string `yaml:"dsn"`
}

// Open builds the sink for cfg.Driver. It returns nil for DriverNone.
func Open(ctx context.Context, cfg Config) (Sink, error) {
	switch cfg.Driver {
	case "", DriverNone:
		return nil, nil
	case DriverFile:
		if cfg.File.Dir == "" {
			return nil, fmt.Errorf("persistence.file.dir is required")
		}
		return NewFileSink(cfg.File.Dir, cfg.Retention), nil
	case DriverRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		return NewRedisSink(client, cfg.Retention), nil
	case DriverPostgres:
		sink, err := OpenPostgres(ctx, cfg.Postgres.DSN)
		if err != nil {
			return nil, err
		}
		return sink, nil
	}
	return nil, fmt.Errorf("unknown persistence driver %q", cfg.Driver)
}
