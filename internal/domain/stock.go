package domain

import (
	"fmt"
	"math"
	"time"
)

// StockDefinition is the static reference data of a simulated stock.
// Immutable after the catalog is loaded.
type StockDefinition struct {
	Symbol     string  `json:"symbol" yaml:"symbol"`
	Name       string  `json:"name" yaml:"name"`
	BasePrice  float64 `json:"basePrice" yaml:"basePrice"`
	Volatility float64 `json:"volatility" yaml:"volatility"` // Max fractional swing per drift step
	Bias       float64 `json:"bias,omitempty" yaml:"bias,omitempty"`
}

// StockState is the persisted price state of one symbol.
// Only the quote engine writes it.
type StockState struct {
	Symbol      string  `json:"symbol"`
	Price       float64 `json:"price"`
	OpenPrice   float64 `json:"openPrice"`
	HighPrice   float64 `json:"highPrice"`
	LowPrice    float64 `json:"lowPrice"`
	LastUpdated int64   `json:"lastUpdated"` // Unix milliseconds
	Day         string  `json:"day"`         // Trading day key, YYYY-MM-DD
}

// NewStockState creates the initial state of a symbol at the given price.
func NewStockState(symbol string, price float64, now time.Time, day string) StockState {
	return StockState{
		Symbol:      symbol,
		Price:       price,
		OpenPrice:   price,
		HighPrice:   price,
		LowPrice:    price,
		LastUpdated: now.UnixMilli(),
		Day:         day,
	}
}

// Validate checks the low <= price <= high and price floor invariants.
func (s StockState) Validate() error {
	for _, v := range []float64{s.Price, s.OpenPrice, s.HighPrice, s.LowPrice} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%s: non-finite price field", s.Symbol)
		}
	}
	if s.Price < MinPrice {
		return fmt.Errorf("%s: price %.2f below floor", s.Symbol, s.Price)
	}
	if s.LowPrice > s.Price || s.Price > s.HighPrice {
		return fmt.Errorf("%s: price %.2f outside day range [%.2f, %.2f]", s.Symbol, s.Price, s.LowPrice, s.HighPrice)
	}
	if s.Day == "" {
		return fmt.Errorf("%s: missing trading day", s.Symbol)
	}
	return nil
}

// Quote is a derived, point-in-time view of a symbol. Not persisted.
type Quote struct {
	Symbol        string    `json:"symbol"`
	Name          string    `json:"name"`
	Price         float64   `json:"price"`
	OpenPrice     float64   `json:"openPrice"`
	HighPrice     float64   `json:"highPrice"`
	LowPrice      float64   `json:"lowPrice"`
	Change        float64   `json:"change"`
	ChangePercent float64   `json:"changePercent"`
	LastUpdated   time.Time `json:"lastUpdated"`
}

// NewQuote derives a quote from a definition and its current state.
func NewQuote(def StockDefinition, state StockState) Quote {
	open := state.OpenPrice
	if open == 0 {
		open = 1
	}
	return Quote{
		Symbol:        def.Symbol,
		Name:          def.Name,
		Price:         state.Price,
		OpenPrice:     state.OpenPrice,
		HighPrice:     state.HighPrice,
		LowPrice:      state.LowPrice,
		Change:        Round2(state.Price - state.OpenPrice),
		ChangePercent: Percent(state.Price-state.OpenPrice, open),
		LastUpdated:   time.UnixMilli(state.LastUpdated).UTC(),
	}
}

// Direction returns "up", "down", or "flat" relative to the day open
func (q Quote) Direction() string {
	switch {
	case q.Change > 0:
		return "up"
	case q.Change < 0:
		return "down"
	default:
		return "flat"
	}
}
