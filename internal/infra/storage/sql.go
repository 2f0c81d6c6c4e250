package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"time"

	"virtual_market/internal/domain"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// Compile-time check to ensure SQLStore implements HashStore
var _ domain.HashStore = (*SQLStore)(nil)

// errSwapMissed signals a lost insert race inside HUpdate
var errSwapMissed = errors.New("swap missed")

// HashEntry is one field of one hash table
type HashEntry struct {
	Bucket    string `gorm:"primaryKey;size:128"`
	Field     string `gorm:"primaryKey;size:191"`
	Value     string `gorm:"type:text"`
	UpdatedAt time.Time
}

// TableName pins the table name regardless of naming strategy
func (HashEntry) TableName() string { return "hash_entries" }

// SQLStore emulates hash tables on a relational database through gorm
type SQLStore struct {
	db *gorm.DB
}

// NewSQLiteStore opens (or creates) a pure-Go SQLite database.
// An empty path resolves to the per-user config directory.
func NewSQLiteStore(path string) (*SQLStore, error) {
	if path == "" {
		var err error
		path, err = getDBPath()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve DB path: %w", err)
		}
	}

	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create DB directory: %w", err)
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite allows a single writer; serialize through one connection
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	return newSQLStore(db)
}

// NewPostgresStore connects to PostgreSQL with the given DSN.
func NewPostgresStore(dsn string) (*SQLStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return newSQLStore(db)
}

func newSQLStore(db *gorm.DB) (*SQLStore, error) {
	// Auto Migration
	if err := db.AutoMigrate(&HashEntry{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return &SQLStore{db: db}, nil
}

// getDBPath resolves the database file path based on OS
func getDBPath() (string, error) {
	var configDir string
	var err error

	if runtime.GOOS == "windows" {
		configDir = os.Getenv("LOCALAPPDATA")
		if configDir == "" {
			configDir, err = os.UserConfigDir()
		}
	} else {
		configDir, err = os.UserConfigDir()
	}

	if err != nil {
		return "", err
	}

	return filepath.Join(configDir, "VirtualMarket", "data", "market.db"), nil
}

// ======================================================================================
// Reads
// ======================================================================================

func (s *SQLStore) HGet(ctx context.Context, table, field string) (string, bool, error) {
	entry, found, err := s.find(s.db.WithContext(ctx), table, field)
	if err != nil {
		return "", false, domain.NewStoreError("hget", err)
	}
	return entry.Value, found, nil
}

func (s *SQLStore) HGetAll(ctx context.Context, table string) (map[string]string, error) {
	var entries []HashEntry
	if err := s.db.WithContext(ctx).Where("bucket = ?", table).Find(&entries).Error; err != nil {
		return nil, domain.NewStoreError("hgetall", err)
	}

	result := make(map[string]string, len(entries))
	for _, e := range entries {
		result[e.Field] = e.Value
	}
	return result, nil
}

// find loads one entry; not found is not an error
func (s *SQLStore) find(tx *gorm.DB, table, field string) (HashEntry, bool, error) {
	var entry HashEntry
	q := tx.Where("bucket = ? AND field = ?", table, field)
	if tx.Dialector.Name() == "postgres" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	res := q.Limit(1).Find(&entry)
	if res.Error != nil {
		return HashEntry{}, false, res.Error
	}
	return entry, res.RowsAffected > 0, nil
}

// ======================================================================================
// Writes
// ======================================================================================

func (s *SQLStore) HSet(ctx context.Context, table, field, value string) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "bucket"}, {Name: "field"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&HashEntry{Bucket: table, Field: field, Value: value}).Error
	if err != nil {
		return domain.NewStoreError("hset", err)
	}
	return nil
}

func (s *SQLStore) HIncrBy(ctx context.Context, table, field string, delta int64) (int64, error) {
	var result int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cur, err := s.lockCounter(tx, table, field)
		if err != nil {
			return err
		}
		result = cur + delta
		return s.writeCounter(tx, table, field, result)
	})
	if err != nil {
		return 0, wrapSQLError("hincrby", err)
	}
	return result, nil
}

func (s *SQLStore) HDecrByIfEnough(ctx context.Context, table, field string, amount int64) (int64, bool, error) {
	var (
		result int64
		ok     bool
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cur, err := s.lockCounter(tx, table, field)
		if err != nil {
			return err
		}
		if cur < amount {
			result = cur
			return nil
		}
		result, ok = cur-amount, true
		return s.writeCounter(tx, table, field, result)
	})
	if err != nil {
		return 0, false, wrapSQLError("hdecrby", err)
	}
	return result, ok, nil
}

// lockCounter makes sure the counter row exists, locks it and parses it.
func (s *SQLStore) lockCounter(tx *gorm.DB, table, field string) (int64, error) {
	err := tx.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&HashEntry{Bucket: table, Field: field, Value: "0"}).Error
	if err != nil {
		return 0, err
	}

	entry, _, err := s.find(tx, table, field)
	if err != nil {
		return 0, err
	}
	cur, err := strconv.ParseInt(entry.Value, 10, 64)
	if err != nil {
		return 0, domain.NewCorruptionError("parse counter", fmt.Errorf("%s/%s: %w", table, field, err))
	}
	return cur, nil
}

func (s *SQLStore) writeCounter(tx *gorm.DB, table, field string, v int64) error {
	return tx.Model(&HashEntry{}).
		Where("bucket = ? AND field = ?", table, field).
		Updates(map[string]any{"value": strconv.FormatInt(v, 10), "updated_at": time.Now()}).Error
}

func (s *SQLStore) HDel(ctx context.Context, table, field string) error {
	err := s.db.WithContext(ctx).Where("bucket = ? AND field = ?", table, field).Delete(&HashEntry{}).Error
	if err != nil {
		return domain.NewStoreError("hdel", err)
	}
	return nil
}

func (s *SQLStore) HUpdate(ctx context.Context, table, field string, fn domain.UpdateFunc) error {
	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		var fnErr error
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			entry, exists, err := s.find(tx, table, field)
			if err != nil {
				return err
			}

			next, remove, err := fn(entry.Value, exists)
			if err != nil {
				fnErr = err
				return err
			}

			switch {
			case remove && exists:
				return tx.Where("bucket = ? AND field = ?", table, field).Delete(&HashEntry{}).Error
			case remove:
				return nil
			case exists:
				return s.writeValue(tx, table, field, next)
			default:
				res := tx.Clauses(clause.OnConflict{DoNothing: true}).
					Create(&HashEntry{Bucket: table, Field: field, Value: next})
				if res.Error != nil {
					return res.Error
				}
				if res.RowsAffected == 0 {
					return errSwapMissed
				}
				return nil
			}
		})
		if fnErr != nil {
			return fnErr
		}
		if errors.Is(err, errSwapMissed) {
			continue
		}
		if err != nil {
			return domain.NewStoreError("hupdate", err)
		}
		return nil
	}
	return domain.NewStoreError("hupdate", domain.ErrConflict)
}

func (s *SQLStore) writeValue(tx *gorm.DB, table, field, value string) error {
	return tx.Model(&HashEntry{}).
		Where("bucket = ? AND field = ?", table, field).
		Updates(map[string]any{"value": value, "updated_at": time.Now()}).Error
}

// Close closes the underlying connection pool
func (s *SQLStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// wrapSQLError keeps corruption errors as they are and marks the rest retriable
func wrapSQLError(op string, err error) error {
	var storeErr *domain.StoreError
	if errors.As(err, &storeErr) {
		return err
	}
	return domain.NewStoreError(op, err)
}
