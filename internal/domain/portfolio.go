package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"time"
)

// Holding is a user's position in one symbol.
// A holding exists only while Shares > 0.
type Holding struct {
	Symbol    string  `json:"-"`
	Shares    int64   `json:"shares"`
	AvgCost   float64 `json:"avgCost"`
	UpdatedAt int64   `json:"updatedAt"` // Unix milliseconds
}

// VerifyInvariant checks that a stored holding is well formed.
func (h Holding) VerifyInvariant() error {
	if h.Shares <= 0 {
		return fmt.Errorf("holding %s: non-positive shares %d", h.Symbol, h.Shares)
	}
	if h.AvgCost < 0 || math.IsNaN(h.AvgCost) || math.IsInf(h.AvgCost, 0) {
		return fmt.Errorf("holding %s: invalid average cost %v", h.Symbol, h.AvgCost)
	}
	return nil
}

// Portfolio is the per-user document: symbol -> holding.
// It is persisted as a single JSON object per user.
type Portfolio map[string]Holding

// DecodePortfolio parses and validates a stored portfolio document.
func DecodePortfolio(raw string) (Portfolio, error) {
	p := Portfolio{}
	if raw == "" {
		return p, nil
	}
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, err
	}
	for symbol, h := range p {
		h.Symbol = symbol
		if err := h.VerifyInvariant(); err != nil {
			return nil, err
		}
		p[symbol] = h
	}
	return p, nil
}

// Encode serializes the portfolio document.
func (p Portfolio) Encode() (string, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Holdings returns the holdings sorted by symbol.
func (p Portfolio) Holdings() []Holding {
	result := make([]Holding, 0, len(p))
	for _, h := range p {
		result = append(result, h)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Symbol < result[j].Symbol
	})
	return result
}

// SellResult is the outcome of removing shares from a holding.
type SellResult struct {
	Remaining      *Holding // nil when the position was closed
	AvgCost        float64
	RealizedProfit float64
}

// Buy adds quantity shares bought at price to the holding of symbol.
// The average cost is the weighted average of the old and new lots.
// The portfolio is left untouched when the share count would overflow.
func (p Portfolio) Buy(symbol string, quantity int64, price float64, now time.Time) (Holding, error) {
	h, ok := p[symbol]
	if !ok {
		h = Holding{Symbol: symbol, Shares: quantity, AvgCost: Round2(price)}
	} else {
		if h.Shares > math.MaxInt64-quantity {
			return Holding{}, fmt.Errorf("%w: %s holding of %d cannot take %d more shares", ErrInvalidArgument, symbol, h.Shares, quantity)
		}
		h.AvgCost = WeightedAverage(h.Shares, h.AvgCost, quantity, price)
		h.Shares += quantity
	}
	h.UpdatedAt = now.UnixMilli()
	p[symbol] = h
	return h, nil
}

// Sell removes quantity shares sold at price from the holding of symbol.
// The remaining average cost is unchanged; a position sold to zero is removed.
func (p Portfolio) Sell(symbol string, quantity int64, price float64, now time.Time) (SellResult, error) {
	h, ok := p[symbol]
	if !ok || h.Shares < quantity {
		return SellResult{}, ErrInsufficientShares
	}

	result := SellResult{
		AvgCost:        h.AvgCost,
		RealizedProfit: Round2(Amount(price, quantity) - Amount(h.AvgCost, quantity)),
	}

	h.Shares -= quantity
	if h.Shares == 0 {
		delete(p, symbol)
		return result, nil
	}
	h.UpdatedAt = now.UnixMilli()
	p[symbol] = h
	result.Remaining = &h
	return result, nil
}

// Position is a holding valued at the latest quote.
type Position struct {
	Symbol        string  `json:"symbol"`
	Name          string  `json:"name"`
	Shares        int64   `json:"shares"`
	AvgCost       float64 `json:"avgCost"`
	MarketPrice   float64 `json:"marketPrice"`
	MarketValue   float64 `json:"marketValue"`
	Profit        float64 `json:"profit"`
	ProfitPercent float64 `json:"profitPercent"`
}

// NewPosition values a holding at the given quote.
func NewPosition(h Holding, q Quote) Position {
	marketValue := Amount(q.Price, h.Shares)
	return Position{
		Symbol:        q.Symbol,
		Name:          q.Name,
		Shares:        h.Shares,
		AvgCost:       h.AvgCost,
		MarketPrice:   q.Price,
		MarketValue:   marketValue,
		Profit:        Round2(marketValue - Amount(h.AvgCost, h.Shares)),
		ProfitPercent: Percent(q.Price-h.AvgCost, h.AvgCost),
	}
}

// PortfolioValue aggregates valued positions.
type PortfolioValue struct {
	MarketValue   float64 `json:"marketValue"`
	CostBasis     float64 `json:"costBasis"`
	Profit        float64 `json:"profit"`
	ProfitPercent float64 `json:"profitPercent"`
}

// CalculatePortfolioValue computes market value, cost basis and profit of positions.
func CalculatePortfolioValue(positions []Position) PortfolioValue {
	var marketValue, costBasis float64
	for _, p := range positions {
		marketValue += p.MarketValue
		costBasis += Amount(p.AvgCost, p.Shares)
	}
	marketValue = Round2(marketValue)
	costBasis = Round2(costBasis)
	profit := Round2(marketValue - costBasis)
	return PortfolioValue{
		MarketValue:   marketValue,
		CostBasis:     costBasis,
		Profit:        profit,
		ProfitPercent: Percent(profit, costBasis),
	}
}

// Order sides
const (
	SideBuy  = "BUY"
	SideSell = "SELL"
)

// Execution is the result of a filled market order.
type Execution struct {
	ID             string    `json:"id"`
	UserID         string    `json:"userId"`
	Symbol         string    `json:"symbol"`
	Name           string    `json:"name"`
	Side           string    `json:"side"`
	Quantity       int64     `json:"quantity"`
	Price          float64   `json:"price"`
	Amount         float64   `json:"amount"`  // round2(price * quantity)
	Settled        int64     `json:"settled"` // Whole coins moved on the balance
	Balance        int64     `json:"balance"` // Balance after settlement
	Holding        *Holding  `json:"holding,omitempty"`
	AvgCost        float64   `json:"avgCost"`
	RealizedProfit float64   `json:"realizedProfit"`
	ExecutedAt     time.Time `json:"executedAt"`
}

// CheckInResult is the outcome of a daily check-in.
type CheckInResult struct {
	Already bool   `json:"already"`
	Reward  int64  `json:"reward"`
	Balance int64  `json:"balance"`
	Day     string `json:"day"`
}

// Assets summarizes cash and stock holdings of a user.
type Assets struct {
	Balance     int64          `json:"balance"`
	MarketValue float64        `json:"marketValue"`
	Total       float64        `json:"total"`
	Value       PortfolioValue `json:"value"`
}
