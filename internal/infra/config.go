package infra

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // Trading day zones on hosts without zoneinfo

	"virtual_market/internal/domain"
	"virtual_market/internal/infra/storage"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config는 애플리케이션의 모든 설정을 담습니다.
// LoadConfig로 로드된 후에 환경 변수를 통해 민감 내용을 덮어씁니다.
type Config struct {
	App struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	Store struct {
		Driver string `yaml:"driver"` // redis | sqlite | postgres | pebble
		Redis  struct {
			Addr     string `yaml:"addr"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
			Prefix   string `yaml:"prefix"`
		} `yaml:"redis"`
		SQL struct {
			DSN  string `yaml:"dsn"`
			Path string `yaml:"path"`
		} `yaml:"sql"`
		Pebble struct {
			Path string `yaml:"path"`
		} `yaml:"pebble"`
		Tables struct {
			Prices     string `yaml:"prices"`
			Balances   string `yaml:"balances"`
			Portfolios string `yaml:"portfolios"`
			CheckIns   string `yaml:"checkins"`
		} `yaml:"tables"`
	} `yaml:"store"`

	Market struct {
		CatalogPaths          []string `yaml:"catalog_paths"`
		MinUpdateIntervalSec  int      `yaml:"min_update_interval_sec"`
		MaxIntervalsPerUpdate int      `yaml:"max_intervals_per_update"`
		Timezone              string   `yaml:"timezone"`
	} `yaml:"market"`

	Wallet struct {
		StarterGrant int64 `yaml:"starter_grant"`
		DailyReward  int64 `yaml:"daily_reward"`
	} `yaml:"wallet"`

	Events struct {
		Enabled bool     `yaml:"enabled"`
		Brokers []string `yaml:"brokers"`
		Topic   string   `yaml:"topic"`
	} `yaml:"events"`

	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`

	Logging struct {
		Level string `yaml:"level"`
		Dir   string `yaml:"dir"`
	} `yaml:"logging"`
}

// LoadConfig는 설정 파일을 읽고 파싱합니다.
func LoadConfig(path string) (*Config, error) {
	// .env is optional; real environment variables win over it
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &domain.ConfigError{Field: "path", Err: err}
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, &domain.ConfigError{Field: "yaml", Err: err}
	}

	cfg.applyDefaults()

	// 4원칙: 보안 우선 - 환경 변수 오버라이드 지원
	if err := overrideWithEnv(&cfg); err != nil {
		return nil, err
	}

	// 5원칙: 설정 유효성 검사
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// DefaultConfig returns a configuration with every default applied.
func DefaultConfig() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "virtual-market"
	}
	if c.Store.Driver == "" {
		c.Store.Driver = storage.DriverRedis
	}
	if c.Store.Redis.Addr == "" {
		c.Store.Redis.Addr = "localhost:6379"
	}
	if c.Store.Pebble.Path == "" {
		c.Store.Pebble.Path = "data/pebble"
	}
	if c.Store.Tables.Prices == "" {
		c.Store.Tables.Prices = "virtualstocks:prices"
	}
	if c.Store.Tables.Balances == "" {
		c.Store.Tables.Balances = "money:balance"
	}
	if c.Store.Tables.Portfolios == "" {
		c.Store.Tables.Portfolios = "virtualstocks:portfolio"
	}
	if c.Store.Tables.CheckIns == "" {
		c.Store.Tables.CheckIns = "money:checkin"
	}
	if len(c.Market.CatalogPaths) == 0 {
		c.Market.CatalogPaths = []string{"configs/virtual-stocks.json", "data/virtual-stocks.json"}
	}
	if c.Market.MinUpdateIntervalSec == 0 {
		c.Market.MinUpdateIntervalSec = 60
	}
	if c.Market.MaxIntervalsPerUpdate == 0 {
		c.Market.MaxIntervalsPerUpdate = 5
	}
	if c.Market.Timezone == "" {
		c.Market.Timezone = "UTC"
	}
	if c.Wallet.StarterGrant == 0 {
		c.Wallet.StarterGrant = 1000
	}
	if c.Wallet.DailyReward == 0 {
		c.Wallet.DailyReward = 100
	}
	if c.Events.Topic == "" {
		c.Events.Topic = "virtual-market.executions"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Dir == "" {
		c.Logging.Dir = "logs"
	}
}

// Validate checks configuration validity
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case storage.DriverRedis:
		if c.Store.Redis.Addr == "" {
			return &domain.ConfigError{Field: "store.redis.addr", Err: errors.New("required")}
		}
	case storage.DriverSQLite:
	case storage.DriverPostgres:
		if c.Store.SQL.DSN == "" {
			return &domain.ConfigError{Field: "store.sql.dsn", Err: errors.New("required for postgres")}
		}
	case storage.DriverPebble:
		if c.Store.Pebble.Path == "" {
			return &domain.ConfigError{Field: "store.pebble.path", Err: errors.New("required for pebble")}
		}
	default:
		return &domain.ConfigError{Field: "store.driver", Err: fmt.Errorf("unsupported driver %q", c.Store.Driver)}
	}

	if c.Market.MinUpdateIntervalSec <= 0 {
		return &domain.ConfigError{Field: "market.min_update_interval_sec", Err: errors.New("must be positive")}
	}
	if c.Market.MaxIntervalsPerUpdate <= 0 {
		return &domain.ConfigError{Field: "market.max_intervals_per_update", Err: errors.New("must be positive")}
	}
	if _, err := time.LoadLocation(c.Market.Timezone); err != nil {
		return &domain.ConfigError{Field: "market.timezone", Err: err}
	}

	if c.Wallet.StarterGrant <= 0 {
		return &domain.ConfigError{Field: "wallet.starter_grant", Err: errors.New("must be positive")}
	}
	if c.Wallet.DailyReward <= 0 {
		return &domain.ConfigError{Field: "wallet.daily_reward", Err: errors.New("must be positive")}
	}

	if c.Events.Enabled && len(c.Events.Brokers) == 0 {
		return &domain.ConfigError{Field: "events.brokers", Err: errors.New("at least one broker is required when events are enabled")}
	}

	return nil
}

// Location returns the trading day time zone
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Market.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// MinUpdateInterval returns the quote throttle window
func (c *Config) MinUpdateInterval() time.Duration {
	return time.Duration(c.Market.MinUpdateIntervalSec) * time.Second
}

// StorageOptions maps the store section onto backend options
func (c *Config) StorageOptions() storage.Options {
	return storage.Options{
		Driver:        c.Store.Driver,
		RedisAddr:     c.Store.Redis.Addr,
		RedisPassword: c.Store.Redis.Password,
		RedisDB:       c.Store.Redis.DB,
		RedisPrefix:   c.Store.Redis.Prefix,
		SQLDSN:        c.Store.SQL.DSN,
		SQLitePath:    c.Store.SQL.Path,
		PebblePath:    c.Store.Pebble.Path,
	}
}

// overrideWithEnv는 환경 변수가 존재할 경우 설정 값을 덮어씁니다.
func overrideWithEnv(cfg *Config) error {
	if v := os.Getenv("VMARKET_STORE_DRIVER"); v != "" {
		cfg.Store.Driver = v
	}
	if v := os.Getenv("VMARKET_REDIS_ADDR"); v != "" {
		cfg.Store.Redis.Addr = v
	}
	if v := os.Getenv("VMARKET_REDIS_PASSWORD"); v != "" {
		cfg.Store.Redis.Password = v
	}
	if v := os.Getenv("VMARKET_REDIS_DB"); v != "" {
		db, err := strconv.Atoi(v)
		if err != nil {
			return &domain.ConfigError{Field: "VMARKET_REDIS_DB", Err: err}
		}
		cfg.Store.Redis.DB = db
	}
	if v := os.Getenv("VMARKET_SQL_DSN"); v != "" {
		cfg.Store.SQL.DSN = v
	}
	if v := os.Getenv("VMARKET_SQLITE_PATH"); v != "" {
		cfg.Store.SQL.Path = v
	}
	if v := os.Getenv("VMARKET_PEBBLE_PATH"); v != "" {
		cfg.Store.Pebble.Path = v
	}
	if v := os.Getenv("VMARKET_KAFKA_BROKERS"); v != "" {
		cfg.Events.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("VMARKET_EVENTS_ENABLED"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return &domain.ConfigError{Field: "VMARKET_EVENTS_ENABLED", Err: err}
		}
		cfg.Events.Enabled = enabled
	}
	if v := os.Getenv("VMARKET_SERVER_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("VMARKET_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	return nil
}
