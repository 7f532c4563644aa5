package store

import "errors"

// Business failures are sentinels so callers can branch with errors.Is.
// Anything else coming out of a Store is a storage failure and is the only
// class a caller may retry.
var (
	ErrNotFound          = errors.New("not found")
	ErrNoIdentity        = errors.New("no growid bound for principal")
	ErrDuplicateCode     = errors.New("product code already exists")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidConversion = errors.New("invalid conversion pair")
	ErrInvalidQuantity   = errors.New("quantity must be at least 1")
	ErrInvalidAmount     = errors.New("amount must be positive")
	ErrInvalidInput      = errors.New("invalid input")
	ErrEmptyBatch        = errors.New("batch contains no usable lines")
)

// IsBusiness reports whether err is a business-rule failure rather than a
// storage failure.
func IsBusiness(err error) bool {
	for _, e := range []error{
		ErrNotFound, ErrNoIdentity, ErrDuplicateCode,
		ErrInsufficientFunds, ErrInsufficientStock,
		ErrInvalidConversion, ErrInvalidQuantity,
		ErrInvalidAmount, ErrInvalidInput, ErrEmptyBatch,
	} {
		if errors.Is(err, e) {
			return true
		}
	}
	return false
}
