package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind string

// Configuration failures
const (
	KindAlreadyExists       Kind = "ALREADY_EXISTS"
	KindNotFound            Kind = "NOT_FOUND"
	KindInvalidReserveRatio Kind = "INVALID_RESERVE_RATIO"
	KindInvalidToken        Kind = "INVALID_TOKEN"
)

// Order failures
const (
	KindZeroAmount          Kind = "ZERO_AMOUNT"
	KindInsufficientFunds   Kind = "INSUFFICIENT_FUNDS"
	KindNotWhitelisted      Kind = "COLLATERAL_NOT_WHITELISTED"
	KindBatchAlreadyCleared Kind = "BATCH_ALREADY_CLEARED"
	KindSlippageExceeded    Kind = "SLIPPAGE_EXCEEDED"
)

// Clearing failures
const (
	KindBatchWindowNotElapsed Kind = "BATCH_WINDOW_NOT_ELAPSED"
	KindAlreadyCleared        Kind = "ALREADY_CLEARED"
	KindCurveDivisionByZero   Kind = "CURVE_DIVISION_BY_ZERO"
)

// Claim failures
const (
	KindNothingToClaim  Kind = "NOTHING_TO_CLAIM"
	KindBatchNotCleared Kind = "BATCH_NOT_CLEARED"
)

// Tap failures
const (
	KindNotTapped             Kind = "NOT_TAPPED"
	KindAlreadyTapped         Kind = "ALREADY_TAPPED"
	KindZeroRate              Kind = "ZERO_RATE"
	KindUpdateTooSoon         Kind = "UPDATE_TOO_SOON"
	KindRateIncreaseTooLarge  Kind = "RATE_INCREASE_TOO_LARGE"
	KindFloorDecreaseTooLarge Kind = "FLOOR_DECREASE_TOO_LARGE"
	KindNothingToWithdraw     Kind = "NOTHING_TO_WITHDRAW"
)

// Transport failures
const (
	KindInvalidRequest Kind = "INVALID_REQUEST"
	KindAuthFailed     Kind = "AUTH_FAILED"
	KindInternal       Kind = "INTERNAL_ERROR"
)

// AppError is the standard error struct for the application. Every named failure
// in the core surfaces as a distinct Kind so callers and tests can match on it.
type AppError struct {
	Kind       Kind   `json:"code"`
	Message    string `json:"message"`
	Suggestion string `json:"suggestion,omitempty"`
	HTTPStatus int    `json:"-"`
	Cause      error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func New(kind Kind, msg string) *AppError {
	return &AppError{
		Kind:       kind,
		Message:    msg,
		HTTPStatus: mapKindToStatus(kind),
		Suggestion: mapKindToSuggestion(kind),
	}
}

func Newf(kind Kind, format string, args ...any) *AppError {
	return New(kind, fmt.Sprintf(format, args...))
}

func Wrap(err error) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	wrapped := New(KindInternal, err.Error())
	wrapped.Cause = err
	return wrapped
}

// Is reports whether err is an AppError of the given kind.
func Is(err error, kind Kind) bool {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		return false
	}
	return appErr.Kind == kind
}

func mapKindToStatus(kind Kind) int {
	switch kind {
	case KindNotFound, KindNotTapped, KindNotWhitelisted:
		return http.StatusNotFound
	case KindAlreadyExists, KindAlreadyTapped, KindAlreadyCleared, KindBatchAlreadyCleared, KindCurveDivisionByZero:
		return http.StatusConflict
	case KindZeroAmount, KindInvalidReserveRatio, KindInvalidToken, KindZeroRate, KindInvalidRequest:
		return http.StatusBadRequest
	case KindInsufficientFunds, KindSlippageExceeded, KindNothingToClaim, KindNothingToWithdraw,
		KindBatchWindowNotElapsed, KindBatchNotCleared, KindUpdateTooSoon,
		KindRateIncreaseTooLarge, KindFloorDecreaseTooLarge:
		return http.StatusUnprocessableEntity
	case KindAuthFailed:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

func mapKindToSuggestion(kind Kind) string {
	switch kind {
	case KindBatchWindowNotElapsed:
		return "Wait for the batch window to elapse and retry."
	case KindBatchNotCleared:
		return "Trigger a batch clear before claiming."
	case KindUpdateTooSoon:
		return "Wait for the tap update cool-down to pass."
	case KindInsufficientFunds:
		return "Check balances and allowances before submitting."
	case KindAuthFailed:
		return "Check API keys."
	default:
		return ""
	}
}
