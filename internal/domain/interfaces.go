package domain

import (
	"context"
	"time"
)

// UpdateFunc computes the next value of a hash field from its current value.
// Returning remove=true deletes the field instead of writing next.
type UpdateFunc func(current string, exists bool) (next string, remove bool, err error)

// HashStore is the key-value collaborator: hash-like tables of string fields.
// Every single call is atomic; sequences of calls are not.
type HashStore interface {
	HGet(ctx context.Context, table, field string) (string, bool, error)
	HGetAll(ctx context.Context, table string) (map[string]string, error)
	HSet(ctx context.Context, table, field, value string) error
	HIncrBy(ctx context.Context, table, field string, delta int64) (int64, error)
	// HDecrByIfEnough decrements field by amount only if the current value
	// is at least amount. ok=false leaves the field untouched.
	HDecrByIfEnough(ctx context.Context, table, field string, amount int64) (int64, bool, error)
	HDel(ctx context.Context, table, field string) error
	// HUpdate applies fn as a compare-and-swap on a single field.
	HUpdate(ctx context.Context, table, field string, fn UpdateFunc) error
	Close() error
}

// Clock abstracts wall-clock time for deterministic tests
type Clock interface {
	Now() time.Time
}

// Rand abstracts the drift random source; Float64 returns a value in [0, 1)
type Rand interface {
	Float64() float64
}

// EventPublisher delivers trade notifications to downstream consumers
type EventPublisher interface {
	PublishExecution(ctx context.Context, exec *Execution) error
	Close() error
}
