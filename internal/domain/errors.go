package domain

import (
	"errors"
	"net/http"
)

// Engine error taxonomy. Every failing computation step returns one of these
// (possibly wrapped with context via fmt.Errorf and %w); callers match with
// errors.Is. The first failure anywhere in a compound operation aborts the
// whole operation with no partial state mutation.
var (
	ErrUnauthorized        = errors.New("caller is not authorized")
	ErrPoolNotFound        = errors.New("pool not found")
	ErrPoolAlreadyExists   = errors.New("pool already exists for asset")
	ErrInvalidAmount       = errors.New("amount must be positive")
	ErrInsufficientBalance = errors.New("insufficient pool balance")
	ErrInsufficientShares  = errors.New("insufficient shares")
	ErrPaused              = errors.New("operation is paused")
	ErrCooldownActive      = errors.New("rebalance cooldown has not elapsed")
	ErrOverflow            = errors.New("arithmetic overflow")
	ErrDivisionByZero      = errors.New("division by zero")
	ErrTransferFailed      = errors.New("asset transfer failed")
	ErrNoRewards           = errors.New("no rewards to claim")
	ErrInvalidAllocation   = errors.New("allocation weights are invalid")
)

// HTTPStatus maps an engine error to the status code the HTTP handlers
// surface it with. Unrecognized errors are internal failures.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, ErrPoolNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrPoolAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidAmount),
		errors.Is(err, ErrInsufficientBalance),
		errors.Is(err, ErrInsufficientShares),
		errors.Is(err, ErrOverflow),
		errors.Is(err, ErrDivisionByZero),
		errors.Is(err, ErrNoRewards),
		errors.Is(err, ErrInvalidAllocation):
		return http.StatusBadRequest
	case errors.Is(err, ErrPaused), errors.Is(err, ErrCooldownActive):
		return http.StatusConflict
	case errors.Is(err, ErrTransferFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
