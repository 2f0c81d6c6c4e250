// Package ledger owns user balances, holdings and daily check-ins.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"virtual_market/internal/domain"
)

// Default table names
const (
	DefaultBalanceTable   = "money:balance"
	DefaultPortfolioTable = "virtualstocks:portfolio"
	DefaultCheckInTable   = "money:checkin"

	DefaultStarterGrant int64 = 1000
	DefaultDailyReward  int64 = 100
)

// Config tunes the ledger
type Config struct {
	BalanceTable   string
	PortfolioTable string
	CheckInTable   string
	StarterGrant   int64
	DailyReward    int64
	Location       *time.Location // Check-in day boundary; nil means UTC
}

func (c Config) withDefaults() Config {
	if c.BalanceTable == "" {
		c.BalanceTable = DefaultBalanceTable
	}
	if c.PortfolioTable == "" {
		c.PortfolioTable = DefaultPortfolioTable
	}
	if c.CheckInTable == "" {
		c.CheckInTable = DefaultCheckInTable
	}
	if c.StarterGrant <= 0 {
		c.StarterGrant = DefaultStarterGrant
	}
	if c.DailyReward <= 0 {
		c.DailyReward = DefaultDailyReward
	}
	if c.Location == nil {
		c.Location = time.UTC
	}
	return c
}

// Ledger is the sole writer of the balance, portfolio and check-in tables.
type Ledger struct {
	cfg    Config
	store  domain.HashStore
	clock  domain.Clock
	logger *slog.Logger
}

// New creates a ledger over store.
func New(cfg Config, store domain.HashStore, clock domain.Clock, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{
		cfg:    cfg.withDefaults(),
		store:  store,
		clock:  clock,
		logger: logger,
	}
}

func validUser(userID string) error {
	if userID == "" {
		return fmt.Errorf("%w: empty user id", domain.ErrInvalidArgument)
	}
	return nil
}

func positive(name string, v int64) error {
	if v <= 0 {
		return fmt.Errorf("%w: %s must be positive, got %d", domain.ErrInvalidArgument, name, v)
	}
	return nil
}

// ======================================================================================
// Balance
// ======================================================================================

// Balance returns the coin balance of userID; an absent balance is 0.
func (l *Ledger) Balance(ctx context.Context, userID string) (int64, error) {
	if err := validUser(userID); err != nil {
		return 0, err
	}

	raw, found, err := l.store.HGet(ctx, l.cfg.BalanceTable, userID)
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, nil
	}
	balance, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, domain.NewCorruptionError("decode balance", fmt.Errorf("%s: %w", userID, err))
	}
	return balance, nil
}

// Credit adds amount coins and returns the new balance.
func (l *Ledger) Credit(ctx context.Context, userID string, amount int64) (int64, error) {
	if err := validUser(userID); err != nil {
		return 0, err
	}
	if err := positive("amount", amount); err != nil {
		return 0, err
	}
	return l.store.HIncrBy(ctx, l.cfg.BalanceTable, userID, amount)
}

// Debit removes amount coins if the balance covers it. Nothing is debited otherwise.
func (l *Ledger) Debit(ctx context.Context, userID string, amount int64) (int64, error) {
	if err := validUser(userID); err != nil {
		return 0, err
	}
	if err := positive("amount", amount); err != nil {
		return 0, err
	}

	balance, ok, err := l.store.HDecrByIfEnough(ctx, l.cfg.BalanceTable, userID, amount)
	if err != nil {
		return 0, err
	}
	if !ok {
		return balance, fmt.Errorf("%w: balance %d, need %d", domain.ErrInsufficientBalance, balance, amount)
	}
	return balance, nil
}

// errFunded stops a starter grant when the balance is already positive.
var errFunded = errors.New("balance already funded")

// EnsureStarterFunds grants the starter amount when the balance is zero or below.
// granted is 0 when no grant was needed. The check and the grant are one
// atomic update, so concurrent callers grant at most once.
func (l *Ledger) EnsureStarterFunds(ctx context.Context, userID string) (balance, granted int64, err error) {
	if err := validUser(userID); err != nil {
		return 0, 0, err
	}

	err = l.store.HUpdate(ctx, l.cfg.BalanceTable, userID, func(current string, exists bool) (string, bool, error) {
		balance = 0
		if exists {
			v, err := strconv.ParseInt(current, 10, 64)
			if err != nil {
				return "", false, domain.NewCorruptionError("decode balance", fmt.Errorf("%s: %w", userID, err))
			}
			balance = v
		}
		if balance > 0 {
			return "", false, errFunded
		}
		balance += l.cfg.StarterGrant
		return strconv.FormatInt(balance, 10), false, nil
	})
	if errors.Is(err, errFunded) {
		return balance, 0, nil
	}
	if err != nil {
		return 0, 0, err
	}

	l.logger.Info("Granted starter funds", slog.String("user", userID), slog.Int64("amount", l.cfg.StarterGrant))
	return balance, l.cfg.StarterGrant, nil
}

// CheckIn pays the daily reward once per day.
func (l *Ledger) CheckIn(ctx context.Context, userID string) (domain.CheckInResult, error) {
	if err := validUser(userID); err != nil {
		return domain.CheckInResult{}, err
	}

	today := l.clock.Now().In(l.cfg.Location).Format("2006-01-02")
	var (
		already  bool
		previous string
		existed  bool
	)
	err := l.store.HUpdate(ctx, l.cfg.CheckInTable, userID, func(current string, exists bool) (string, bool, error) {
		already = exists && current == today
		previous, existed = current, exists
		return today, false, nil
	})
	if err != nil {
		return domain.CheckInResult{}, err
	}

	if already {
		balance, err := l.Balance(ctx, userID)
		if err != nil {
			return domain.CheckInResult{}, err
		}
		return domain.CheckInResult{Already: true, Balance: balance, Day: today}, nil
	}

	balance, err := l.Credit(ctx, userID, l.cfg.DailyReward)
	if err != nil {
		// Release the day so the user can retry
		if undoErr := l.store.HUpdate(ctx, l.cfg.CheckInTable, userID, func(current string, exists bool) (string, bool, error) {
			if current != today {
				return current, !exists, nil
			}
			return previous, !existed, nil
		}); undoErr != nil {
			l.logger.Error("Failed to release check-in", slog.String("user", userID), slog.Any("error", undoErr))
		}
		return domain.CheckInResult{}, err
	}

	return domain.CheckInResult{Reward: l.cfg.DailyReward, Balance: balance, Day: today}, nil
}

// ======================================================================================
// Holdings
// ======================================================================================

// Positions returns the holdings of userID sorted by symbol.
func (l *Ledger) Positions(ctx context.Context, userID string) ([]domain.Holding, error) {
	if err := validUser(userID); err != nil {
		return nil, err
	}

	raw, _, err := l.store.HGet(ctx, l.cfg.PortfolioTable, userID)
	if err != nil {
		return nil, err
	}
	p, err := decode(userID, raw)
	if err != nil {
		return nil, err
	}
	return p.Holdings(), nil
}

// ApplyBuy records quantity shares of symbol bought at price.
func (l *Ledger) ApplyBuy(ctx context.Context, userID, symbol string, quantity int64, price float64) (domain.Holding, error) {
	if err := validUser(userID); err != nil {
		return domain.Holding{}, err
	}
	if err := positive("quantity", quantity); err != nil {
		return domain.Holding{}, err
	}
	if !(price > 0) {
		return domain.Holding{}, fmt.Errorf("%w: price must be positive, got %v", domain.ErrInvalidArgument, price)
	}

	now := l.clock.Now()
	var holding domain.Holding
	err := l.store.HUpdate(ctx, l.cfg.PortfolioTable, userID, func(current string, exists bool) (string, bool, error) {
		p, err := decode(userID, current)
		if err != nil {
			return "", false, err
		}
		holding, err = p.Buy(symbol, quantity, price, now)
		if err != nil {
			return "", false, err
		}
		next, err := p.Encode()
		return next, false, err
	})
	if err != nil {
		return domain.Holding{}, err
	}
	return holding, nil
}

// ApplySell removes quantity shares of symbol sold at price.
// The user's portfolio entry is deleted once it holds nothing.
func (l *Ledger) ApplySell(ctx context.Context, userID, symbol string, quantity int64, price float64) (domain.SellResult, error) {
	if err := validUser(userID); err != nil {
		return domain.SellResult{}, err
	}
	if err := positive("quantity", quantity); err != nil {
		return domain.SellResult{}, err
	}

	now := l.clock.Now()
	var result domain.SellResult
	err := l.store.HUpdate(ctx, l.cfg.PortfolioTable, userID, func(current string, exists bool) (string, bool, error) {
		p, err := decode(userID, current)
		if err != nil {
			return "", false, err
		}
		result, err = p.Sell(symbol, quantity, price, now)
		if err != nil {
			return "", false, err
		}
		if len(p) == 0 {
			return "", true, nil
		}
		next, err := p.Encode()
		return next, false, err
	})
	if errors.Is(err, domain.ErrInsufficientShares) {
		return domain.SellResult{}, fmt.Errorf("%w: %s", err, symbol)
	}
	if err != nil {
		return domain.SellResult{}, err
	}
	return result, nil
}

func decode(userID, raw string) (domain.Portfolio, error) {
	p, err := domain.DecodePortfolio(raw)
	if err != nil {
		return nil, domain.NewCorruptionError("decode portfolio", fmt.Errorf("%s: %w", userID, err))
	}
	return p, nil
}
