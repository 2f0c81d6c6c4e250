package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"virtual_market/internal/domain"

	"github.com/cockroachdb/pebble"
)

// Compile-time check to ensure PebbleStore implements HashStore
var _ domain.HashStore = (*PebbleStore)(nil)

// PebbleStore keeps hash tables in an embedded LSM store.
// Keys are "table\x00field". A process-wide mutex makes compound operations atomic.
type PebbleStore struct {
	mu sync.Mutex
	db *pebble.DB
}

// NewPebbleStore opens (or creates) the store in dir.
func NewPebbleStore(dir string) (*PebbleStore, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble store: %w", err)
	}
	return &PebbleStore{db: db}, nil
}

// -------------------- Keys --------------------

func pebbleKey(table, field string) []byte {
	return []byte(table + "\x00" + field)
}

func tableBounds(table string) (lower, upper []byte) {
	return []byte(table + "\x00"), []byte(table + "\x01")
}

// -------------------- Reads --------------------

func (p *PebbleStore) get(table, field string) (string, bool, error) {
	val, closer, err := p.db.Get(pebbleKey(table, field))
	if errors.Is(err, pebble.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	defer closer.Close()

	// val is only valid until closer is closed
	return string(val), true, nil
}

func (p *PebbleStore) HGet(_ context.Context, table, field string) (string, bool, error) {
	val, found, err := p.get(table, field)
	if err != nil {
		return "", false, domain.NewStoreError("hget", err)
	}
	return val, found, nil
}

func (p *PebbleStore) HGetAll(_ context.Context, table string) (map[string]string, error) {
	lower, upper := tableBounds(table)
	iter, err := p.db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return nil, domain.NewStoreError("hgetall", err)
	}
	defer iter.Close()

	result := make(map[string]string)
	for iter.First(); iter.Valid(); iter.Next() {
		field := string(iter.Key()[len(lower):])
		result[field] = string(iter.Value())
	}
	if err := iter.Error(); err != nil {
		return nil, domain.NewStoreError("hgetall", err)
	}
	return result, nil
}

// -------------------- Writes --------------------

func (p *PebbleStore) HSet(_ context.Context, table, field, value string) error {
	if err := p.db.Set(pebbleKey(table, field), []byte(value), pebble.Sync); err != nil {
		return domain.NewStoreError("hset", err)
	}
	return nil
}

func (p *PebbleStore) HIncrBy(_ context.Context, table, field string, delta int64) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	cur, err := p.counter("hincrby", table, field)
	if err != nil {
		return 0, err
	}
	next := cur + delta
	if err := p.db.Set(pebbleKey(table, field), []byte(strconv.FormatInt(next, 10)), pebble.Sync); err != nil {
		return 0, domain.NewStoreError("hincrby", err)
	}
	return next, nil
}

func (p *PebbleStore) HDecrByIfEnough(_ context.Context, table, field string, amount int64) (int64, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	cur, err := p.counter("hdecrby", table, field)
	if err != nil {
		return 0, false, err
	}
	if cur < amount {
		return cur, false, nil
	}
	next := cur - amount
	if err := p.db.Set(pebbleKey(table, field), []byte(strconv.FormatInt(next, 10)), pebble.Sync); err != nil {
		return 0, false, domain.NewStoreError("hdecrby", err)
	}
	return next, true, nil
}

// counter reads an integer field; absent reads as zero. Callers hold mu.
func (p *PebbleStore) counter(op, table, field string) (int64, error) {
	raw, found, err := p.get(table, field)
	if err != nil {
		return 0, domain.NewStoreError(op, err)
	}
	if !found {
		return 0, nil
	}
	cur, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, domain.NewCorruptionError(op, fmt.Errorf("%s/%s: %w", table, field, err))
	}
	return cur, nil
}

func (p *PebbleStore) HDel(_ context.Context, table, field string) error {
	if err := p.db.Delete(pebbleKey(table, field), pebble.Sync); err != nil {
		return domain.NewStoreError("hdel", err)
	}
	return nil
}

func (p *PebbleStore) HUpdate(_ context.Context, table, field string, fn domain.UpdateFunc) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	current, exists, err := p.get(table, field)
	if err != nil {
		return domain.NewStoreError("hupdate", err)
	}

	next, remove, err := fn(current, exists)
	if err != nil {
		return err
	}

	switch {
	case remove && exists:
		err = p.db.Delete(pebbleKey(table, field), pebble.Sync)
	case remove:
		return nil
	default:
		err = p.db.Set(pebbleKey(table, field), []byte(next), pebble.Sync)
	}
	if err != nil {
		return domain.NewStoreError("hupdate", err)
	}
	return nil
}

func (p *PebbleStore) Close() error {
	return p.db.Close()
}
