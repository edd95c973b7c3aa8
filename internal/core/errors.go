// internal/core/errors.go
package core

import "fmt"

// Error represents a structured error with code and optional cause.
type Error struct {
	Code    string
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is matching by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// WrapError creates a new error with the same code but with a cause.
func WrapError(base *Error, cause error) *Error {
	return &Error{
		Code:    base.Code,
		Message: base.Message,
		Cause:   cause,
	}
}

// Predefined errors
var (
	// Input errors
	ErrNoSymbols      = &Error{Code: "NO_SYMBOLS", Message: "at least one symbol is required"}
	ErrInvalidSymbol  = &Error{Code: "INVALID_SYMBOL", Message: "invalid symbol"}
	ErrTooManySymbols = &Error{Code: "TOO_MANY_SYMBOLS", Message: "too many symbols"}
	ErrSymbolNotFound = &Error{Code: "SYMBOL_NOT_FOUND", Message: "symbol not found"}
	ErrPeerSetUnknown = &Error{Code: "PEER_SET_NOT_FOUND", Message: "peer set not found"}
	ErrNoData         = &Error{Code: "NO_DATA", Message: "no data available"}
	ErrInvalidRequest = &Error{Code: "INVALID_REQUEST", Message: "invalid request"}

	// Auth errors
	ErrUnauthorized = &Error{Code: "UNAUTHORIZED", Message: "API key required"}
	ErrForbidden    = &Error{Code: "FORBIDDEN", Message: "API key rejected"}

	// Data source errors
	ErrFilingFetch  = &Error{Code: "FILING_FETCH_FAILED", Message: "filing data fetch failed"}
	ErrMarketFetch  = &Error{Code: "MARKET_FETCH_FAILED", Message: "market data fetch failed"}
	ErrFetchTimeout = &Error{Code: "FETCH_TIMEOUT", Message: "data fetch timed out"}
	ErrVendorFailed = &Error{Code: "VENDOR_FAILED", Message: "vendor request failed"}
	ErrRateLimited  = &Error{Code: "RATE_LIMITED", Message: "vendor rate limit exceeded"}

	// Job errors
	ErrJobNotFound = &Error{Code: "JOB_NOT_FOUND", Message: "job not found"}

	// Storage errors
	ErrStorageFailed = &Error{Code: "STORAGE_FAILED", Message: "storage operation failed"}

	// Config errors
	ErrConfigInvalid = &Error{Code: "CONFIG_INVALID", Message: "configuration invalid"}
	ErrConfigMissing = &Error{Code: "CONFIG_MISSING", Message: "required configuration missing"}
)
