// Package service composes the quote engine and the ledger into market orders and read models.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"virtual_market/internal/domain"

	"github.com/google/uuid"
)

// Reference leaderboard sizes
const (
	DefaultLeaderboardTop    = 6
	DefaultLeaderboardBottom = 3
)

// settleTimeout bounds the steps that run after an order has moved coins or shares.
const settleTimeout = 10 * time.Second

// Quoter serves fresh quotes
type Quoter interface {
	GetQuote(ctx context.Context, symbol string) (domain.Quote, error)
	ListQuotes(ctx context.Context) ([]domain.Quote, error)
}

// Ledger is the balance and holdings book
type Ledger interface {
	Balance(ctx context.Context, userID string) (int64, error)
	Credit(ctx context.Context, userID string, amount int64) (int64, error)
	Debit(ctx context.Context, userID string, amount int64) (int64, error)
	Positions(ctx context.Context, userID string) ([]domain.Holding, error)
	ApplyBuy(ctx context.Context, userID, symbol string, quantity int64, price float64) (domain.Holding, error)
	ApplySell(ctx context.Context, userID, symbol string, quantity int64, price float64) (domain.SellResult, error)
	CheckIn(ctx context.Context, userID string) (domain.CheckInResult, error)
	EnsureStarterFunds(ctx context.Context, userID string) (balance, granted int64, err error)
}

// Recorder receives order outcomes; infra.Metrics satisfies it.
type Recorder interface {
	RecordOrderFilled(side string, latency time.Duration)
	RecordRejection()
	RecordCompensation()
	RecordReconciliationFailure()
	RecordStoreError()
}

type nopRecorder struct{}

func (nopRecorder) RecordOrderFilled(string, time.Duration) {}
func (nopRecorder) RecordRejection()                        {}
func (nopRecorder) RecordCompensation()                     {}
func (nopRecorder) RecordReconciliationFailure()            {}
func (nopRecorder) RecordStoreError()                       {}

// Leaderboard lists the best and worst performers of the day.
type Leaderboard struct {
	Gainers []domain.Quote `json:"gainers"`
	Losers  []domain.Quote `json:"losers"`
}

// PortfolioReport is the full portfolio view of one user.
type PortfolioReport struct {
	UserID    string                `json:"userId"`
	Balance   int64                 `json:"balance"`
	Granted   int64                 `json:"granted"` // Starter funds credited by this call
	Positions []domain.Position     `json:"positions"`
	Value     domain.PortfolioValue `json:"value"`
	Total     float64               `json:"total"`
}

// TradingService executes market orders against the latest quote.
// It holds no state of its own; all consistency comes from the store.
type TradingService struct {
	quotes    Quoter
	ledger    Ledger
	publisher domain.EventPublisher
	recorder  Recorder
	clock     domain.Clock
	logger    *slog.Logger
}

// NewTradingService creates a TradingService. publisher and recorder may be nil.
func NewTradingService(quotes Quoter, ledger Ledger, publisher domain.EventPublisher, recorder Recorder, clock domain.Clock, logger *slog.Logger) *TradingService {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TradingService{
		quotes:    quotes,
		ledger:    ledger,
		publisher: publisher,
		recorder:  recorder,
		clock:     clock,
		logger:    logger,
	}
}

// ======================================================================================
// Orders
// ======================================================================================

// Buy fills a market buy of quantity shares at the current quote.
func (s *TradingService) Buy(ctx context.Context, userID, symbol string, quantity int64) (*domain.Execution, error) {
	started := s.clock.Now()
	if err := validateOrder(userID, quantity); err != nil {
		return nil, s.reject(err)
	}

	q, err := s.quotes.GetQuote(ctx, symbol)
	if err != nil {
		return nil, s.reject(err)
	}

	amount := domain.Amount(q.Price, quantity)
	settle, err := domain.DebitCoins(amount)
	if err != nil {
		return nil, s.reject(err)
	}

	if _, err := s.ledger.Debit(ctx, userID, settle); err != nil {
		return nil, s.reject(err)
	}

	// The debit is committed; the caller going away must not strand it
	ctx, cancel := settling(ctx)
	defer cancel()

	holding, err := s.ledger.ApplyBuy(ctx, userID, q.Symbol, quantity, q.Price)
	if err != nil {
		return nil, s.refund(ctx, userID, q.Symbol, settle, err)
	}

	balance, err := s.ledger.Balance(ctx, userID)
	if err != nil {
		// The order is filled; report it without a balance
		s.logger.Warn("Balance read after buy failed", slog.String("user", userID), slog.Any("error", err))
	}

	exec := &domain.Execution{
		ID:         uuid.NewString(),
		UserID:     userID,
		Symbol:     q.Symbol,
		Name:       q.Name,
		Side:       domain.SideBuy,
		Quantity:   quantity,
		Price:      q.Price,
		Amount:     amount,
		Settled:    settle,
		Balance:    balance,
		Holding:    &holding,
		AvgCost:    holding.AvgCost,
		ExecutedAt: s.clock.Now(),
	}
	s.filled(ctx, exec, started)
	return exec, nil
}

// refund credits back a debit whose holding update failed.
func (s *TradingService) refund(ctx context.Context, userID, symbol string, settle int64, cause error) error {
	if _, err := s.ledger.Credit(ctx, userID, settle); err != nil {
		s.recorder.RecordReconciliationFailure()
		s.logger.Error("Buy refund failed",
			slog.String("user", userID),
			slog.String("symbol", symbol),
			slog.Int64("amount", settle),
			slog.Any("cause", cause),
			slog.Any("error", err),
		)
		return &domain.ReconciliationError{
			UserID: userID,
			Symbol: symbol,
			Step:   "buy-refund",
			Amount: settle,
			Err:    errors.Join(cause, err),
		}
	}

	s.recorder.RecordCompensation()
	s.countStoreError(cause)
	s.logger.Warn("Buy refunded after holding update failure",
		slog.String("user", userID),
		slog.String("symbol", symbol),
		slog.Int64("amount", settle),
		slog.Any("error", cause),
	)
	return cause
}

// Sell fills a market sell of quantity shares at the current quote.
func (s *TradingService) Sell(ctx context.Context, userID, symbol string, quantity int64) (*domain.Execution, error) {
	started := s.clock.Now()
	if err := validateOrder(userID, quantity); err != nil {
		return nil, s.reject(err)
	}

	q, err := s.quotes.GetQuote(ctx, symbol)
	if err != nil {
		return nil, s.reject(err)
	}

	amount := domain.Amount(q.Price, quantity)
	credit, err := domain.CreditCoins(amount)
	if err != nil {
		return nil, s.reject(err)
	}

	result, err := s.ledger.ApplySell(ctx, userID, q.Symbol, quantity, q.Price)
	if err != nil {
		return nil, s.reject(err)
	}

	ctx, cancel := settling(ctx)
	defer cancel()

	var balance int64
	if credit > 0 {
		balance, err = s.ledger.Credit(ctx, userID, credit)
		if err != nil {
			s.recorder.RecordReconciliationFailure()
			s.logger.Error("Sell proceeds not credited",
				slog.String("user", userID),
				slog.String("symbol", q.Symbol),
				slog.Int64("shares", quantity),
				slog.Int64("amount", credit),
				slog.Any("error", err),
			)
			return nil, &domain.ReconciliationError{
				UserID: userID,
				Symbol: q.Symbol,
				Step:   "sell-credit",
				Amount: credit,
				Err:    err,
			}
		}
	} else if balance, err = s.ledger.Balance(ctx, userID); err != nil {
		s.logger.Warn("Balance read after sell failed", slog.String("user", userID), slog.Any("error", err))
	}

	exec := &domain.Execution{
		ID:             uuid.NewString(),
		UserID:         userID,
		Symbol:         q.Symbol,
		Name:           q.Name,
		Side:           domain.SideSell,
		Quantity:       quantity,
		Price:          q.Price,
		Amount:         amount,
		Settled:        credit,
		Balance:        balance,
		Holding:        result.Remaining,
		AvgCost:        result.AvgCost,
		RealizedProfit: result.RealizedProfit,
		ExecutedAt:     s.clock.Now(),
	}
	s.filled(ctx, exec, started)
	return exec, nil
}

func validateOrder(userID string, quantity int64) error {
	if strings.TrimSpace(userID) == "" {
		return fmt.Errorf("%w: empty user id", domain.ErrInvalidArgument)
	}
	if quantity <= 0 {
		return fmt.Errorf("%w: quantity must be positive, got %d", domain.ErrInvalidArgument, quantity)
	}
	return nil
}

// settling detaches ctx from the caller's cancellation for post-commit steps.
// Values such as trace ids are kept.
func settling(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), settleTimeout)
}

// reject counts a failed order and returns err unchanged.
func (s *TradingService) reject(err error) error {
	if s.countStoreError(err) {
		return err
	}
	s.recorder.RecordRejection()
	return err
}

func (s *TradingService) countStoreError(err error) bool {
	var storeErr *domain.StoreError
	if errors.As(err, &storeErr) {
		s.recorder.RecordStoreError()
		return true
	}
	return false
}

func (s *TradingService) filled(ctx context.Context, exec *domain.Execution, started time.Time) {
	s.recorder.RecordOrderFilled(exec.Side, s.clock.Now().Sub(started))
	s.logger.Info("Order filled",
		slog.String("id", exec.ID),
		slog.String("user", exec.UserID),
		slog.String("side", exec.Side),
		slog.String("symbol", exec.Symbol),
		slog.Int64("qty", exec.Quantity),
		slog.Float64("price", exec.Price),
		slog.Int64("settled", exec.Settled),
	)

	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishExecution(ctx, exec); err != nil {
		s.logger.Warn("Execution notification failed", slog.String("id", exec.ID), slog.Any("error", err))
	}
}

// ======================================================================================
// Read models
// ======================================================================================

// Quote returns the current quote of symbol.
func (s *TradingService) Quote(ctx context.Context, symbol string) (domain.Quote, error) {
	return s.quotes.GetQuote(ctx, symbol)
}

// ListQuotes returns every quote, best performer first.
func (s *TradingService) ListQuotes(ctx context.Context) ([]domain.Quote, error) {
	return s.quotes.ListQuotes(ctx)
}

// Balance returns the coin balance of userID.
func (s *TradingService) Balance(ctx context.Context, userID string) (int64, error) {
	return s.ledger.Balance(ctx, userID)
}

// CheckIn pays the daily reward.
func (s *TradingService) CheckIn(ctx context.Context, userID string) (domain.CheckInResult, error) {
	return s.ledger.CheckIn(ctx, userID)
}

// Positions values each holding at a fresh quote, largest market value first.
// Holdings of symbols no longer in the catalog are skipped.
func (s *TradingService) Positions(ctx context.Context, userID string) ([]domain.Position, error) {
	holdings, err := s.ledger.Positions(ctx, userID)
	if err != nil {
		return nil, err
	}

	positions := make([]domain.Position, 0, len(holdings))
	for _, h := range holdings {
		q, err := s.quotes.GetQuote(ctx, h.Symbol)
		if errors.Is(err, domain.ErrUnknownSymbol) {
			s.logger.Warn("Skipping holding of unlisted symbol", slog.String("user", userID), slog.String("symbol", h.Symbol))
			continue
		}
		if err != nil {
			return nil, err
		}
		positions = append(positions, domain.NewPosition(h, q))
	}

	sort.SliceStable(positions, func(i, j int) bool {
		return positions[i].MarketValue > positions[j].MarketValue
	})
	return positions, nil
}

// PortfolioValue aggregates the valued positions of userID.
func (s *TradingService) PortfolioValue(ctx context.Context, userID string) (domain.PortfolioValue, error) {
	positions, err := s.Positions(ctx, userID)
	if err != nil {
		return domain.PortfolioValue{}, err
	}
	return domain.CalculatePortfolioValue(positions), nil
}

// Assets sums cash and stock value of userID.
func (s *TradingService) Assets(ctx context.Context, userID string) (domain.Assets, error) {
	balance, err := s.ledger.Balance(ctx, userID)
	if err != nil {
		return domain.Assets{}, err
	}
	value, err := s.PortfolioValue(ctx, userID)
	if err != nil {
		return domain.Assets{}, err
	}
	return domain.Assets{
		Balance:     balance,
		MarketValue: value.MarketValue,
		Total:       domain.Round2(float64(balance) + value.MarketValue),
		Value:       value,
	}, nil
}

// Leaderboard returns the top gainers and the bottom losers, worst first.
func (s *TradingService) Leaderboard(ctx context.Context, top, bottom int) (Leaderboard, error) {
	if top <= 0 {
		top = DefaultLeaderboardTop
	}
	if bottom <= 0 {
		bottom = DefaultLeaderboardBottom
	}

	quotes, err := s.quotes.ListQuotes(ctx)
	if err != nil {
		return Leaderboard{}, err
	}

	board := Leaderboard{
		Gainers: append([]domain.Quote(nil), quotes[:min(top, len(quotes))]...),
		Losers:  make([]domain.Quote, 0, bottom),
	}
	for i := len(quotes) - 1; i >= 0 && len(board.Losers) < bottom; i-- {
		board.Losers = append(board.Losers, quotes[i])
	}
	return board, nil
}

// Portfolio grants starter funds if needed and returns the full portfolio view.
func (s *TradingService) Portfolio(ctx context.Context, userID string) (PortfolioReport, error) {
	balance, granted, err := s.ledger.EnsureStarterFunds(ctx, userID)
	if err != nil {
		return PortfolioReport{}, err
	}

	positions, err := s.Positions(ctx, userID)
	if err != nil {
		return PortfolioReport{}, err
	}
	value := domain.CalculatePortfolioValue(positions)

	return PortfolioReport{
		UserID:    userID,
		Balance:   balance,
		Granted:   granted,
		Positions: positions,
		Value:     value,
		Total:     domain.Round2(float64(balance) + value.MarketValue),
	}, nil
}
