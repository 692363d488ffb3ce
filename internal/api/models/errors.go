package models

import (
	"errors"
	"net/http"

	"github.com/finbase/exchange-core/internal/amm"
	"github.com/finbase/exchange-core/internal/ledger"
	"github.com/finbase/exchange-core/internal/matching"
	"github.com/finbase/exchange-core/internal/settlement"
	"github.com/finbase/exchange-core/internal/types"
)

// ErrorCode represents standard error codes
type ErrorCode string

const (
	ErrInvalidRequest      ErrorCode = "INVALID_REQUEST"
	ErrInvalidOrderKind    ErrorCode = "INVALID_ORDER_KIND"
	ErrInvalidSide         ErrorCode = "INVALID_SIDE"
	ErrInvalidPrice        ErrorCode = "INVALID_PRICE"
	ErrInvalidAmount       ErrorCode = "INVALID_AMOUNT"
	ErrOrderNotFound       ErrorCode = "ORDER_NOT_FOUND"
	ErrPoolNotFound        ErrorCode = "POOL_NOT_FOUND"
	ErrOrderInFlight       ErrorCode = "ORDER_IN_FLIGHT"
	ErrInsufficientBalance ErrorCode = "INSUFFICIENT_BALANCE"
	ErrInsufficientShares  ErrorCode = "INSUFFICIENT_SHARES"
	ErrSharesExceedTotal   ErrorCode = "SHARES_EXCEED_TOTAL"
	ErrRatioDeviation      ErrorCode = "RATIO_DEVIATION"
	ErrPoolInactive        ErrorCode = "POOL_INACTIVE"
	ErrKYCRequired         ErrorCode = "KYC_REQUIRED"
	ErrCurrencyMismatch    ErrorCode = "CURRENCY_MISMATCH"
	ErrNoReferencePrice    ErrorCode = "NO_REFERENCE_PRICE"
	ErrNotCancelable       ErrorCode = "NOT_CANCELABLE"
	ErrInternalError       ErrorCode = "INTERNAL_ERROR"
)

// APIError represents a structured error response
type APIError struct {
	Code    ErrorCode              `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// HTTPError wraps an APIError with an HTTP status code
type HTTPError struct {
	StatusCode int
	Error      APIError
}

// NewHTTPError creates a new HTTP error
func NewHTTPError(statusCode int, code ErrorCode, message string, details map[string]interface{}) *HTTPError {
	return &HTTPError{
		StatusCode: statusCode,
		Error: APIError{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

// Common error constructors

func ErrBadRequest(message string, details map[string]interface{}) *HTTPError {
	return NewHTTPError(http.StatusBadRequest, ErrInvalidRequest, message, details)
}

func ErrInternal(message string) *HTTPError {
	return NewHTTPError(http.StatusInternalServerError, ErrInternalError, message, nil)
}

// FromDomain maps a domain error to its HTTP representation. Unrecognized
// errors become internal errors with a generic message.
func FromDomain(err error) *HTTPError {
	var short *ledger.InsufficientBalanceError
	if errors.As(err, &short) {
		return NewHTTPError(http.StatusUnprocessableEntity, ErrInsufficientBalance, err.Error(),
			map[string]interface{}{
				"account_id": short.AccountID.String(),
				"asset":      short.Asset,
				"required":   short.Required.String(),
				"available":  short.Available.String(),
			})
	}

	switch {
	case errors.Is(err, types.ErrOrderNotFound):
		return NewHTTPError(http.StatusNotFound, ErrOrderNotFound, err.Error(), nil)
	case errors.Is(err, types.ErrPoolNotFound):
		return NewHTTPError(http.StatusNotFound, ErrPoolNotFound, err.Error(), nil)
	case errors.Is(err, types.ErrNotCancelable):
		return NewHTTPError(http.StatusConflict, ErrNotCancelable, err.Error(), nil)
	case errors.Is(err, settlement.ErrOrderInFlight):
		return NewHTTPError(http.StatusConflict, ErrOrderInFlight, err.Error(), nil)
	case errors.Is(err, settlement.ErrInvalidOrder):
		return NewHTTPError(http.StatusBadRequest, ErrInvalidRequest, err.Error(), nil)
	case errors.Is(err, settlement.ErrNoReferencePrice), errors.Is(err, matching.ErrNoReferencePrice):
		return NewHTTPError(http.StatusUnprocessableEntity, ErrNoReferencePrice, err.Error(), nil)
	case errors.Is(err, matching.ErrOrderNotMatchable):
		return NewHTTPError(http.StatusConflict, ErrInvalidRequest, err.Error(), nil)
	case errors.Is(err, ledger.ErrInsufficientBalance):
		return NewHTTPError(http.StatusUnprocessableEntity, ErrInsufficientBalance, err.Error(), nil)
	case errors.Is(err, amm.ErrSharesExceedTotal):
		return NewHTTPError(http.StatusUnprocessableEntity, ErrSharesExceedTotal, err.Error(), nil)
	case errors.Is(err, amm.ErrInsufficientShares):
		return NewHTTPError(http.StatusUnprocessableEntity, ErrInsufficientShares, err.Error(), nil)
	case errors.Is(err, amm.ErrRatioDeviation):
		return NewHTTPError(http.StatusUnprocessableEntity, ErrRatioDeviation, err.Error(), nil)
	case errors.Is(err, amm.ErrPoolInactive):
		return NewHTTPError(http.StatusConflict, ErrPoolInactive, err.Error(), nil)
	case errors.Is(err, amm.ErrKYCRequired):
		return NewHTTPError(http.StatusForbidden, ErrKYCRequired, err.Error(), nil)
	case errors.Is(err, amm.ErrCurrencyMismatch):
		return NewHTTPError(http.StatusBadRequest, ErrCurrencyMismatch, err.Error(), nil)
	case errors.Is(err, amm.ErrNonPositiveAmount):
		return NewHTTPError(http.StatusBadRequest, ErrInvalidAmount, err.Error(), nil)
	}
	return ErrInternal("An unexpected error occurred")
}
