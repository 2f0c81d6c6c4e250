// Package api exposes the market over a JSON HTTP interface.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"virtual_market/internal/domain"
	"virtual_market/internal/infra"
	"virtual_market/internal/service"
)

// Trading is the command layer served over HTTP
type Trading interface {
	Quote(ctx context.Context, symbol string) (domain.Quote, error)
	ListQuotes(ctx context.Context) ([]domain.Quote, error)
	Leaderboard(ctx context.Context, top, bottom int) (service.Leaderboard, error)
	Balance(ctx context.Context, userID string) (int64, error)
	Positions(ctx context.Context, userID string) ([]domain.Position, error)
	Portfolio(ctx context.Context, userID string) (service.PortfolioReport, error)
	Assets(ctx context.Context, userID string) (domain.Assets, error)
	Buy(ctx context.Context, userID, symbol string, quantity int64) (*domain.Execution, error)
	Sell(ctx context.Context, userID, symbol string, quantity int64) (*domain.Execution, error)
	CheckIn(ctx context.Context, userID string) (domain.CheckInResult, error)
}

// OrderRequest is the body of buy and sell calls
type OrderRequest struct {
	Symbol   string `json:"symbol"`
	Quantity int64  `json:"quantity"`
}

// ErrorResponse is the body of every failed call
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// Handler routes HTTP requests to the trading service.
type Handler struct {
	trading Trading
	metrics *infra.Metrics
	logger  *slog.Logger
	mux     *http.ServeMux
}

// NewHandler builds the route table. metrics may be nil.
func NewHandler(trading Trading, metrics *infra.Metrics, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = &infra.Metrics{}
	}
	h := &Handler{
		trading: trading,
		metrics: metrics,
		logger:  logger,
		mux:     http.NewServeMux(),
	}

	h.mux.HandleFunc("GET /healthz", h.health)
	h.mux.HandleFunc("GET /v1/metrics", h.snapshot)

	h.mux.HandleFunc("GET /v1/quotes", h.listQuotes)
	h.mux.HandleFunc("GET /v1/quotes/{symbol}", h.quote)
	h.mux.HandleFunc("GET /v1/leaderboard", h.leaderboard)

	h.mux.HandleFunc("GET /v1/users/{user}/balance", h.balance)
	h.mux.HandleFunc("GET /v1/users/{user}/positions", h.positions)
	h.mux.HandleFunc("GET /v1/users/{user}/portfolio", h.portfolio)
	h.mux.HandleFunc("GET /v1/users/{user}/assets", h.assets)
	h.mux.HandleFunc("POST /v1/users/{user}/buy", h.order(domain.SideBuy))
	h.mux.HandleFunc("POST /v1/users/{user}/sell", h.order(domain.SideSell))
	h.mux.HandleFunc("POST /v1/users/{user}/checkin", h.checkIn)

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.metrics.IncrementInFlight()
	defer h.metrics.DecrementInFlight()
	h.mux.ServeHTTP(w, r)
}

// ======================================================================================
// Market
// ======================================================================================

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) snapshot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.metrics.Snapshot())
}

func (h *Handler) listQuotes(w http.ResponseWriter, r *http.Request) {
	quotes, err := h.trading.ListQuotes(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, quotes)
}

func (h *Handler) quote(w http.ResponseWriter, r *http.Request) {
	q, err := h.trading.Quote(r.Context(), r.PathValue("symbol"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

func (h *Handler) leaderboard(w http.ResponseWriter, r *http.Request) {
	top, err := intParam(r, "top")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	bottom, err := intParam(r, "bottom")
	if err != nil {
		h.fail(w, r, err)
		return
	}

	board, err := h.trading.Leaderboard(r.Context(), top, bottom)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, board)
}

// ======================================================================================
// Users
// ======================================================================================

func (h *Handler) balance(w http.ResponseWriter, r *http.Request) {
	user := r.PathValue("user")
	balance, err := h.trading.Balance(r.Context(), user)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"userId": user, "balance": balance})
}

func (h *Handler) positions(w http.ResponseWriter, r *http.Request) {
	positions, err := h.trading.Positions(r.Context(), r.PathValue("user"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, positions)
}

func (h *Handler) portfolio(w http.ResponseWriter, r *http.Request) {
	report, err := h.trading.Portfolio(r.Context(), r.PathValue("user"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *Handler) assets(w http.ResponseWriter, r *http.Request) {
	assets, err := h.trading.Assets(r.Context(), r.PathValue("user"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, assets)
}

func (h *Handler) order(side string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req OrderRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
			h.fail(w, r, errors.Join(domain.ErrInvalidArgument, err))
			return
		}

		user := r.PathValue("user")
		var (
			exec *domain.Execution
			err  error
		)
		if side == domain.SideSell {
			exec, err = h.trading.Sell(r.Context(), user, req.Symbol, req.Quantity)
		} else {
			exec, err = h.trading.Buy(r.Context(), user, req.Symbol, req.Quantity)
		}
		if err != nil {
			h.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, exec)
	}
}

func (h *Handler) checkIn(w http.ResponseWriter, r *http.Request) {
	res, err := h.trading.CheckIn(r.Context(), r.PathValue("user"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ======================================================================================
// Helpers
// ======================================================================================

func intParam(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, errors.Join(domain.ErrInvalidArgument, errors.New(name+" must be a non-negative integer"))
	}
	return v, nil
}

// StatusFor maps a service error onto an HTTP status and error code.
func StatusFor(err error) (int, string) {
	var recErr *domain.ReconciliationError
	switch {
	case errors.As(err, &recErr):
		return http.StatusInternalServerError, "reconciliation_required"
	case errors.Is(err, domain.ErrUnknownSymbol):
		return http.StatusNotFound, "unknown_symbol"
	case errors.Is(err, domain.ErrInsufficientBalance):
		return http.StatusConflict, "insufficient_balance"
	case errors.Is(err, domain.ErrInsufficientShares):
		return http.StatusConflict, "insufficient_shares"
	case errors.Is(err, domain.ErrInvalidArgument):
		return http.StatusBadRequest, "invalid_argument"
	case domain.IsRetriable(err):
		return http.StatusServiceUnavailable, "store_unavailable"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code := StatusFor(err)
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		h.logger.Error("Request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", status),
			slog.Any("error", err),
		)
		// Store and reconciliation details stay in the log
		msg = http.StatusText(status)
	}
	writeJSON(w, status, ErrorResponse{Error: msg, Code: code})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
