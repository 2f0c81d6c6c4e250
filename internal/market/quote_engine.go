// Package market advances and reads the simulated price state of each symbol.
//
// Prices move lazily: nothing ticks in the background. Each quote request
// catches the symbol up by the number of whole throttle intervals elapsed
// since its last update, bounded by a maximum batch size.
package market

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"virtual_market/internal/domain"
)

const (
	// DefaultMinUpdateInterval is the throttle window between two drift advancements
	DefaultMinUpdateInterval = 60 * time.Second
	// DefaultMaxIntervalsPerUpdate bounds catch-up work after a long idle period
	DefaultMaxIntervalsPerUpdate = 5
	// DefaultPriceTable is the hash table holding StockState documents
	DefaultPriceTable = "virtualstocks:prices"

	dayLayout = "2006-01-02"
)

// Definitions resolves stock reference data
type Definitions interface {
	Get(symbol string) (domain.StockDefinition, error)
	List() []domain.StockDefinition
}

// Config tunes the quote engine
type Config struct {
	Table                 string
	MinUpdateInterval     time.Duration
	MaxIntervalsPerUpdate int
	Location              *time.Location // Trading day boundary; nil means UTC
}

func (c Config) withDefaults() Config {
	if c.Table == "" {
		c.Table = DefaultPriceTable
	}
	if c.MinUpdateInterval <= 0 {
		c.MinUpdateInterval = DefaultMinUpdateInterval
	}
	if c.MaxIntervalsPerUpdate <= 0 {
		c.MaxIntervalsPerUpdate = DefaultMaxIntervalsPerUpdate
	}
	if c.Location == nil {
		c.Location = time.UTC
	}
	return c
}

// Observer receives engine activity; infra.Metrics satisfies it.
type Observer interface {
	RecordQuote()
	RecordDriftSteps(n int)
}

// Engine is the sole writer of the price table.
type Engine struct {
	cfg      Config
	defs     Definitions
	store    domain.HashStore
	clock    domain.Clock
	rand     domain.Rand
	observer Observer
	logger   *slog.Logger
}

// NewEngine creates a quote engine.
func NewEngine(cfg Config, defs Definitions, store domain.HashStore, clock domain.Clock, rnd domain.Rand, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		cfg:    cfg.withDefaults(),
		defs:   defs,
		store:  store,
		clock:  clock,
		rand:   rnd,
		logger: logger,
	}
}

// WithObserver attaches an activity observer
func (e *Engine) WithObserver(o Observer) *Engine {
	e.observer = o
	return e
}

// DayKey returns the trading day identifier of t
func (e *Engine) DayKey(t time.Time) string {
	return t.In(e.cfg.Location).Format(dayLayout)
}

// GetQuote returns a fresh quote for symbol, advancing its price if due.
func (e *Engine) GetQuote(ctx context.Context, symbol string) (domain.Quote, error) {
	def, err := e.defs.Get(symbol)
	if err != nil {
		return domain.Quote{}, err
	}

	state, err := e.ensureState(ctx, def)
	if err != nil {
		return domain.Quote{}, err
	}

	if e.observer != nil {
		e.observer.RecordQuote()
	}
	return domain.NewQuote(def, state), nil
}

// ListQuotes returns quotes of every symbol sorted by change percent, best first.
func (e *Engine) ListQuotes(ctx context.Context) ([]domain.Quote, error) {
	defs := e.defs.List()
	quotes := make([]domain.Quote, 0, len(defs))
	for _, def := range defs {
		q, err := e.GetQuote(ctx, def.Symbol)
		if err != nil {
			return nil, err
		}
		quotes = append(quotes, q)
	}

	sort.SliceStable(quotes, func(i, j int) bool {
		if quotes[i].ChangePercent != quotes[j].ChangePercent {
			return quotes[i].ChangePercent > quotes[j].ChangePercent
		}
		return quotes[i].Symbol < quotes[j].Symbol
	})
	return quotes, nil
}

func (e *Engine) ensureState(ctx context.Context, def domain.StockDefinition) (domain.StockState, error) {
	now := e.clock.Now()
	today := e.DayKey(now)

	state, found, err := e.loadState(ctx, def.Symbol)
	if err != nil {
		return domain.StockState{}, err
	}

	// 1. First sighting: open at base price
	if !found {
		state = domain.NewStockState(def.Symbol, domain.Round2(def.BasePrice), now, today)
		if err := e.saveState(ctx, state); err != nil {
			return domain.StockState{}, err
		}
		e.logger.Debug("Initialized stock state", slog.String("symbol", def.Symbol), slog.Float64("price", state.Price))
		return state, nil
	}

	// 2. New trading day: carry the last price over as the new open
	if state.Day != today {
		state = domain.NewStockState(def.Symbol, state.Price, now, today)
		if err := e.saveState(ctx, state); err != nil {
			return domain.StockState{}, err
		}
		e.logger.Debug("Reset trading day", slog.String("symbol", def.Symbol), slog.String("day", today))
		return state, nil
	}

	// 3. Throttle
	elapsed := now.Sub(time.UnixMilli(state.LastUpdated))
	if elapsed < e.cfg.MinUpdateInterval {
		return state, nil
	}

	// 4. Catch up, bounded
	steps := int(elapsed / e.cfg.MinUpdateInterval)
	steps = max(1, min(steps, e.cfg.MaxIntervalsPerUpdate))
	for i := 0; i < steps; i++ {
		state = e.drift(state, def)
	}
	state.LastUpdated = now.UnixMilli()

	if err := e.saveState(ctx, state); err != nil {
		return domain.StockState{}, err
	}
	if e.observer != nil {
		e.observer.RecordDriftSteps(steps)
	}
	return state, nil
}

// drift applies one random-walk step with the definition's bias and volatility.
func (e *Engine) drift(state domain.StockState, def domain.StockDefinition) domain.StockState {
	swing := (2*e.rand.Float64() - 1) * def.Volatility
	next := domain.Round2(state.Price * (1 + def.Bias + swing))
	next = math.Max(next, domain.MinPrice)

	state.Price = next
	state.HighPrice = math.Max(state.HighPrice, next)
	state.LowPrice = math.Min(state.LowPrice, next)
	return state
}

func (e *Engine) loadState(ctx context.Context, symbol string) (domain.StockState, bool, error) {
	raw, found, err := e.store.HGet(ctx, e.cfg.Table, symbol)
	if err != nil {
		return domain.StockState{}, false, fmt.Errorf("load price state %s: %w", symbol, err)
	}
	if !found {
		return domain.StockState{}, false, nil
	}

	var state domain.StockState
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return domain.StockState{}, false, domain.NewCorruptionError("decode price state", fmt.Errorf("%s: %w", symbol, err))
	}
	if err := state.Validate(); err != nil {
		return domain.StockState{}, false, domain.NewCorruptionError("decode price state", err)
	}
	return state, true, nil
}

func (e *Engine) saveState(ctx context.Context, state domain.StockState) error {
	b, err := json.Marshal(state)
	if err != nil {
		return err
	}
	if err := e.store.HSet(ctx, e.cfg.Table, state.Symbol, string(b)); err != nil {
		return fmt.Errorf("save price state %s: %w", state.Symbol, err)
	}
	return nil
}
