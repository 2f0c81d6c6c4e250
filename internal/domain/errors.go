package domain

import "errors"

// RetriableError defines an interface for errors that can be retried
type RetriableError interface {
	error
	IsRetriable() bool
}

// IsRetriable checks if an error is retriable
func IsRetriable(err error) bool {
	var re RetriableError
	if errors.As(err, &re) {
		return re.IsRetriable()
	}
	return false
}

// StoreError represents a failure of the key-value store collaborator.
// A retriable StoreError means the failed call made no change.
// A non-retriable one means the stored document is corrupt.
type StoreError struct {
	Op        string // Operation that failed (e.g., "hget", "hincrby", "decode")
	Err       error  // Underlying error
	Retriable bool   // Whether this error is retriable
}

func (e *StoreError) Error() string {
	return "store " + e.Op + ": " + e.Err.Error()
}

func (e *StoreError) IsRetriable() bool {
	return e.Retriable
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// NewStoreError creates a retriable store error (store unavailable)
func NewStoreError(op string, err error) *StoreError {
	return &StoreError{Op: op, Err: err, Retriable: true}
}

// NewCorruptionError creates a non-retriable store error for malformed documents
func NewCorruptionError(op string, err error) *StoreError {
	return &StoreError{Op: op, Err: err, Retriable: false}
}

// ConfigError represents a configuration error (never retriable)
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return "config error [" + e.Field + "]: " + e.Err.Error()
}

func (e *ConfigError) IsRetriable() bool {
	return false
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// ReconciliationError reports an order that was applied on one side only.
// The ledger is left inconsistent and needs manual attention.
type ReconciliationError struct {
	UserID string
	Symbol string
	Step   string // e.g. "buy-refund", "sell-credit"
	Amount int64
	Err    error
}

func (e *ReconciliationError) Error() string {
	return "reconciliation required [" + e.Step + " " + e.UserID + "/" + e.Symbol + "]: " + e.Err.Error()
}

func (e *ReconciliationError) IsRetriable() bool {
	return false
}

func (e *ReconciliationError) Unwrap() error {
	return e.Err
}

var (
	// ErrUnknownSymbol is returned when a symbol is not in the catalog. Not retriable.
	ErrUnknownSymbol = errors.New("unknown symbol")

	// ErrInsufficientBalance is returned when a debit exceeds the current balance
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrInsufficientShares is returned when a sell exceeds the held shares
	ErrInsufficientShares = errors.New("insufficient shares")

	// ErrInvalidArgument is returned for empty user ids and non-positive amounts
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrConflict is returned when an optimistic update kept losing the race
	ErrConflict = errors.New("concurrent update conflict")
)
