package errors

import (
	"errors"
	"net/http"
)

// Domain errors
var (
	ErrNotFound         = errors.New("resource not found")
	ErrAlreadyExists    = errors.New("resource already exists")
	ErrInvalidInput     = errors.New("invalid input")
	ErrBadRequest       = errors.New("bad request")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrForbidden        = errors.New("forbidden")
	ErrUnsupportedChain = errors.New("unsupported chain")
	ErrUnsupportedAsset = errors.New("unsupported asset")
)

// Custody and settlement errors
var (
	// ErrIntegrity is returned when an encrypted blob fails authentication. Never retry with the same input.
	ErrIntegrity = errors.New("integrity check failed")

	ErrInsufficientGasCapacity = errors.New("insufficient gas sponsor capacity")
	ErrSponsorNotConfigured    = errors.New("gas sponsor wallet not configured")
	ErrQuoteExpired            = errors.New("quote expired")
	ErrSlippageExceeded        = errors.New("price moved beyond slippage tolerance")
	ErrQuoteNotActive          = errors.New("quote is not active")
	ErrAmountTooSmall          = errors.New("amount too small to cover fees")
	ErrSweepUnderfunded        = errors.New("deposit balance cannot cover its own transfer fee")
	ErrSettlementAnomaly       = errors.New("settlement status unresolved")
	ErrPayoutLimitExceeded     = errors.New("payout exceeds verification tier limit")
	ErrTreasuryInsufficient    = errors.New("treasury balance insufficient for payout")
	ErrStatusConflict          = errors.New("status transition rejected")
)

// Error codes
const (
	CodeNotFound            = "NOT_FOUND"
	CodeBadRequest          = "BAD_REQUEST"
	CodeInvalidInput        = "INVALID_INPUT"
	CodeConflict            = "CONFLICT"
	CodeUnauthorized        = "UNAUTHORIZED"
	CodeForbidden           = "FORBIDDEN"
	CodeInternalError       = "INTERNAL_ERROR"
	CodeUnprocessable       = "UNPROCESSABLE"
	CodeServiceUnavailable  = "SERVICE_UNAVAILABLE"
	CodeQuoteExpired        = "QUOTE_EXPIRED"
	CodeSlippageExceeded    = "SLIPPAGE_EXCEEDED"
	CodeAmountTooSmall      = "AMOUNT_TOO_SMALL"
	CodeInsufficientGas     = "INSUFFICIENT_GAS_CAPACITY"
	CodePayoutLimitExceeded = "PAYOUT_LIMIT_EXCEEDED"
)

// AppError represents application error with HTTP status
type AppError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError creates a new app error
func NewAppError(status int, code, message string, err error) *AppError {
	return &AppError{
		Status:  status,
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Common error constructors
func NotFound(message string) *AppError {
	return NewAppError(http.StatusNotFound, CodeNotFound, message, ErrNotFound)
}

func BadRequest(message string) *AppError {
	return NewAppError(http.StatusBadRequest, CodeInvalidInput, message, ErrInvalidInput)
}

func Conflict(message string) *AppError {
	return NewAppError(http.StatusConflict, CodeConflict, message, ErrAlreadyExists)
}

func Unauthorized(message string) *AppError {
	return NewAppError(http.StatusUnauthorized, CodeUnauthorized, message, ErrUnauthorized)
}

func Forbidden(message string) *AppError {
	return NewAppError(http.StatusForbidden, CodeForbidden, message, ErrForbidden)
}

func UnprocessableEntity(message string, err error) *AppError {
	return NewAppError(http.StatusUnprocessableEntity, CodeUnprocessable, message, err)
}

func ServiceUnavailable(message string, err error) *AppError {
	return NewAppError(http.StatusServiceUnavailable, CodeServiceUnavailable, message, err)
}

func InternalError(err error) *AppError {
	return NewAppError(http.StatusInternalServerError, CodeInternalError, "internal server error", err)
}

func InternalServerError(message string) *AppError {
	return NewAppError(http.StatusInternalServerError, CodeInternalError, message, nil)
}

// NewError creates a new error with a custom message wrapping an existing error
func NewError(message string, err error) error {
	return &AppError{
		Status:  http.StatusBadRequest,
		Code:    CodeBadRequest,
		Message: message,
		Err:     err,
	}
}

// ToAppError maps domain sentinels onto HTTP-facing errors.
func ToAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	switch {
	case errors.Is(err, ErrNotFound):
		return NewAppError(http.StatusNotFound, CodeNotFound, err.Error(), err)
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrBadRequest),
		errors.Is(err, ErrUnsupportedChain), errors.Is(err, ErrUnsupportedAsset):
		return NewAppError(http.StatusBadRequest, CodeInvalidInput, err.Error(), err)
	case errors.Is(err, ErrForbidden):
		return NewAppError(http.StatusForbidden, CodeForbidden, err.Error(), err)
	case errors.Is(err, ErrQuoteExpired):
		return NewAppError(http.StatusConflict, CodeQuoteExpired, err.Error(), err)
	case errors.Is(err, ErrSlippageExceeded):
		return NewAppError(http.StatusConflict, CodeSlippageExceeded, err.Error(), err)
	case errors.Is(err, ErrQuoteNotActive), errors.Is(err, ErrStatusConflict), errors.Is(err, ErrAlreadyExists):
		return NewAppError(http.StatusConflict, CodeConflict, err.Error(), err)
	case errors.Is(err, ErrAmountTooSmall):
		return NewAppError(http.StatusUnprocessableEntity, CodeAmountTooSmall, err.Error(), err)
	case errors.Is(err, ErrPayoutLimitExceeded):
		return NewAppError(http.StatusUnprocessableEntity, CodePayoutLimitExceeded, err.Error(), err)
	case errors.Is(err, ErrTreasuryInsufficient):
		return NewAppError(http.StatusServiceUnavailable, CodeServiceUnavailable, err.Error(), err)
	case errors.Is(err, ErrInsufficientGasCapacity):
		return NewAppError(http.StatusServiceUnavailable, CodeInsufficientGas, err.Error(), err)
	case errors.Is(err, ErrSponsorNotConfigured):
		return NewAppError(http.StatusServiceUnavailable, CodeServiceUnavailable, err.Error(), err)
	default:
		if _, ok := ProviderKind(err); ok {
			return NewAppError(http.StatusBadGateway, CodeServiceUnavailable, err.Error(), err)
		}
		return InternalError(err)
	}
}

// ProviderErrorKind classifies a failed call to an external provider
type ProviderErrorKind string

const (
	ProviderNotFound        ProviderErrorKind = "not_found"
	ProviderTimeout         ProviderErrorKind = "timeout"
	ProviderRejected        ProviderErrorKind = "rejected"
	ProviderUnavailable     ProviderErrorKind = "unavailable"
	ProviderInvalidResponse ProviderErrorKind = "invalid_response"
)

// ProviderError is the only error shape returned across an external provider boundary
type ProviderError struct {
	Provider string
	Kind     ProviderErrorKind
	Detail   string
	Err      error
}

func (e *ProviderError) Error() string {
	msg := e.Provider + ": " + string(e.Kind)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// NewProviderError creates a provider error
func NewProviderError(provider string, kind ProviderErrorKind, detail string, err error) *ProviderError {
	return &ProviderError{Provider: provider, Kind: kind, Detail: detail, Err: err}
}

// ProviderKind returns the kind of a wrapped ProviderError
func ProviderKind(err error) (ProviderErrorKind, bool) {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Kind, true
	}
	return "", false
}

// IsProviderKind reports whether err is a ProviderError of the given kind
func IsProviderKind(err error, kind ProviderErrorKind) bool {
	k, ok := ProviderKind(err)
	return ok && k == kind
}
