// Package storage provides the HashStore backends: Redis, SQL (SQLite/PostgreSQL) and Pebble.
package storage

import (
	"context"
	"fmt"

	"virtual_market/internal/domain"

	"github.com/redis/go-redis/v9"
)

// maxUpdateAttempts bounds optimistic HUpdate retries before ErrConflict
const maxUpdateAttempts = 8

// Supported drivers
const (
	DriverRedis    = "redis"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverPebble   = "pebble"
)

// Options selects and configures a backend
type Options struct {
	Driver string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string

	SQLDSN     string // PostgreSQL DSN
	SQLitePath string // Empty means the per-user default path

	PebblePath string
}

// Open connects the configured backend.
func Open(ctx context.Context, opts Options) (domain.HashStore, error) {
	switch opts.Driver {
	case DriverRedis, "":
		client := redis.NewClient(&redis.Options{
			Addr:     opts.RedisAddr,
			Password: opts.RedisPassword,
			DB:       opts.RedisDB,
		})
		store := NewRedisStore(client, opts.RedisPrefix)
		if err := store.Ping(ctx); err != nil {
			client.Close()
			return nil, err
		}
		return store, nil
	case DriverSQLite:
		return NewSQLiteStore(opts.SQLitePath)
	case DriverPostgres:
		if opts.SQLDSN == "" {
			return nil, &domain.ConfigError{Field: "store.sql.dsn", Err: fmt.Errorf("required for postgres driver")}
		}
		return NewPostgresStore(opts.SQLDSN)
	case DriverPebble:
		if opts.PebblePath == "" {
			return nil, &domain.ConfigError{Field: "store.pebble.path", Err: fmt.Errorf("required for pebble driver")}
		}
		return NewPebbleStore(opts.PebblePath)
	default:
		return nil, &domain.ConfigError{Field: "store.driver", Err: fmt.Errorf("unsupported driver %q", opts.Driver)}
	}
}
