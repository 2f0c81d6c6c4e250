package domain

import (
	"errors"
	"math"
	"testing"
	"time"
)

func TestDecodePortfolio(t *testing.T) {
	t.Run("empty document", func(t *testing.T) {
		p, err := DecodePortfolio("")
		if err != nil {
			t.Fatalf("DecodePortfolio failed: %v", err)
		}
		if len(p) != 0 {
			t.Errorf("Expected empty portfolio, got %d entries", len(p))
		}
	})

	t.Run("symbols are attached", func(t *testing.T) {
		p, err := DecodePortfolio(`{"KAI":{"shares":10,"avgCost":100,"updatedAt":1}}`)
		if err != nil {
			t.Fatalf("DecodePortfolio failed: %v", err)
		}
		if p["KAI"].Symbol != "KAI" || p["KAI"].Shares != 10 {
			t.Errorf("Unexpected holding: %+v", p["KAI"])
		}
	})

	t.Run("zero-share holding is corruption", func(t *testing.T) {
		if _, err := DecodePortfolio(`{"KAI":{"shares":0,"avgCost":100}}`); err == nil {
			t.Error("Expected error for zero-share holding")
		}
	})

	t.Run("malformed json", func(t *testing.T) {
		if _, err := DecodePortfolio(`{"KAI":`); err == nil {
			t.Error("Expected error for malformed document")
		}
	})
}

func TestPortfolio_EncodeRoundTrip(t *testing.T) {
	p := Portfolio{"B": {Symbol: "B", Shares: 1, AvgCost: 2}, "A": {Symbol: "A", Shares: 3, AvgCost: 4}}
	raw, err := p.Encode()
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	decoded, err := DecodePortfolio(raw)
	if err != nil {
		t.Fatalf("DecodePortfolio failed: %v", err)
	}
	holdings := decoded.Holdings()
	if len(holdings) != 2 || holdings[0].Symbol != "A" || holdings[1].Symbol != "B" {
		t.Errorf("Expected holdings sorted A, B; got %+v", holdings)
	}
}

func TestNewPosition(t *testing.T) {
	q := Quote{Symbol: "KAI", Name: "Kai Corp", Price: 110}
	pos := NewPosition(Holding{Symbol: "KAI", Shares: 10, AvgCost: 100}, q)

	if pos.MarketValue != 1100 {
		t.Errorf("Expected market value 1100, got %v", pos.MarketValue)
	}
	if pos.Profit != 100 {
		t.Errorf("Expected profit 100, got %v", pos.Profit)
	}
	if pos.ProfitPercent != 10 {
		t.Errorf("Expected profit percent 10, got %v", pos.ProfitPercent)
	}
}

func TestCalculatePortfolioValue(t *testing.T) {
	t.Run("no positions", func(t *testing.T) {
		v := CalculatePortfolioValue(nil)
		if v != (PortfolioValue{}) {
			t.Errorf("Expected zero value, got %+v", v)
		}
	})

	t.Run("mixed positions", func(t *testing.T) {
		positions := []Position{
			NewPosition(Holding{Shares: 10, AvgCost: 100}, Quote{Price: 110}),
			NewPosition(Holding{Shares: 5, AvgCost: 200}, Quote{Price: 180}),
		}
		v := CalculatePortfolioValue(positions)
		// market 1100 + 900, cost 1000 + 1000
		if v.MarketValue != 2000 || v.CostBasis != 2000 || v.Profit != 0 || v.ProfitPercent != 0 {
			t.Errorf("Unexpected totals: %+v", v)
		}
	})
}

func TestStockState_Validate(t *testing.T) {
	now := time.Unix(0, 0)

	t.Run("initial state is valid", func(t *testing.T) {
		s := NewStockState("KAI", 100, now, "1970-01-01")
		if err := s.Validate(); err != nil {
			t.Errorf("Expected valid state, got %v", err)
		}
	})

	t.Run("price above high", func(t *testing.T) {
		s := NewStockState("KAI", 100, now, "1970-01-01")
		s.Price = 101
		if err := s.Validate(); err == nil {
			t.Error("Expected range violation")
		}
	})

	t.Run("price below floor", func(t *testing.T) {
		s := NewStockState("KAI", 0, now, "1970-01-01")
		if err := s.Validate(); err == nil {
			t.Error("Expected floor violation")
		}
	})
}

func TestNewQuote(t *testing.T) {
	def := StockDefinition{Symbol: "KAI", Name: "Kai Corp", BasePrice: 100, Volatility: 0.05}
	state := StockState{Symbol: "KAI", Price: 95.5, OpenPrice: 100, HighPrice: 101, LowPrice: 95, LastUpdated: 1000, Day: "1970-01-01"}

	q := NewQuote(def, state)
	if q.Change != -4.5 {
		t.Errorf("Expected change -4.5, got %v", q.Change)
	}
	if q.ChangePercent != -4.5 {
		t.Errorf("Expected change percent -4.5, got %v", q.ChangePercent)
	}
	if q.Direction() != "down" {
		t.Errorf("Expected down, got %s", q.Direction())
	}
	if !q.LastUpdated.Equal(time.UnixMilli(1000)) {
		t.Errorf("Unexpected timestamp %v", q.LastUpdated)
	}
}

func TestPortfolio_BuyAveragesCost(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	p := Portfolio{}

	h, err := p.Buy("KAI", 10, 100, now)
	if err != nil {
		t.Fatalf("Buy failed: %v", err)
	}
	if h.Shares != 10 || h.AvgCost != 100 {
		t.Fatalf("Unexpected first lot: %+v", h)
	}

	h, err = p.Buy("KAI", 10, 110, now)
	if err != nil {
		t.Fatalf("Buy failed: %v", err)
	}
	if h.Shares != 20 || h.AvgCost != 105 {
		t.Errorf("Expected 20 shares at 105, got %+v", h)
	}
	if h.UpdatedAt != now.UnixMilli() {
		t.Errorf("Expected updatedAt %d, got %d", now.UnixMilli(), h.UpdatedAt)
	}
	if p["KAI"].Shares != 20 {
		t.Error("Buy must write back into the portfolio")
	}
}

func TestPortfolio_BuyRejectsShareOverflow(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	p := Portfolio{}
	if _, err := p.Buy("KAI", math.MaxInt64-1, 1, now); err != nil {
		t.Fatalf("Buy failed: %v", err)
	}

	if _, err := p.Buy("KAI", 2, 1, now); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("Expected ErrInvalidArgument, got %v", err)
	}
	if p["KAI"].Shares != math.MaxInt64-1 {
		t.Errorf("Rejected buy must not change the holding, got %d shares", p["KAI"].Shares)
	}
}

func TestPortfolio_Sell(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)

	t.Run("partial keeps average cost", func(t *testing.T) {
		p := Portfolio{}
		p.Buy("KAI", 10, 100, now)

		res, err := p.Sell("KAI", 4, 120, now)
		if err != nil {
			t.Fatalf("Sell failed: %v", err)
		}
		if res.Remaining == nil || res.Remaining.Shares != 6 || res.Remaining.AvgCost != 100 {
			t.Errorf("Unexpected remaining holding: %+v", res.Remaining)
		}
		if res.RealizedProfit != 80 {
			t.Errorf("Expected realized profit 80, got %v", res.RealizedProfit)
		}
	})

	t.Run("full sale removes holding", func(t *testing.T) {
		p := Portfolio{}
		p.Buy("KAI", 10, 100, now)

		res, err := p.Sell("KAI", 10, 90, now)
		if err != nil {
			t.Fatalf("Sell failed: %v", err)
		}
		if res.Remaining != nil {
			t.Error("Expected no remaining holding")
		}
		if _, ok := p["KAI"]; ok {
			t.Error("Holding should be deleted at zero shares")
		}
		if res.RealizedProfit != -100 {
			t.Errorf("Expected realized loss -100, got %v", res.RealizedProfit)
		}
	})

	t.Run("insufficient shares", func(t *testing.T) {
		p := Portfolio{}
		if _, err := p.Sell("KAI", 1, 100, now); err != ErrInsufficientShares {
			t.Errorf("Expected ErrInsufficientShares, got %v", err)
		}

		p.Buy("KAI", 2, 100, now)
		if _, err := p.Sell("KAI", 3, 100, now); err != ErrInsufficientShares {
			t.Errorf("Expected ErrInsufficientShares, got %v", err)
		}
		if p["KAI"].Shares != 2 {
			t.Error("Failed sell must not change the holding")
		}
	})
}
