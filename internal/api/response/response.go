// internal/api/response/response.go
package response

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/newthinker/comps/internal/core"
)

// Meta contains response metadata.
type Meta struct {
	Timestamp time.Time `json:"timestamp"`
}

// SuccessResponse is the standard success response format.
type SuccessResponse struct {
	Data any  `json:"data"`
	Meta Meta `json:"meta"`
}

// ErrorDetail contains error information.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Cause   string `json:"cause,omitempty"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

const codeInternal = "INTERNAL_ERROR"

var statusByCode = map[string]int{
	core.ErrNoSymbols.Code:      http.StatusBadRequest,
	core.ErrInvalidSymbol.Code:  http.StatusBadRequest,
	core.ErrTooManySymbols.Code: http.StatusBadRequest,
	core.ErrInvalidRequest.Code: http.StatusBadRequest,
	core.ErrConfigInvalid.Code:  http.StatusBadRequest,
	core.ErrConfigMissing.Code:  http.StatusBadRequest,

	core.ErrUnauthorized.Code: http.StatusUnauthorized,
	core.ErrForbidden.Code:    http.StatusForbidden,

	core.ErrSymbolNotFound.Code: http.StatusNotFound,
	core.ErrPeerSetUnknown.Code: http.StatusNotFound,
	core.ErrJobNotFound.Code:    http.StatusNotFound,
	core.ErrNoData.Code:         http.StatusNotFound,

	core.ErrRateLimited.Code: http.StatusTooManyRequests,

	core.ErrFilingFetch.Code:  http.StatusBadGateway,
	core.ErrMarketFetch.Code:  http.StatusBadGateway,
	core.ErrVendorFailed.Code: http.StatusBadGateway,

	core.ErrFetchTimeout.Code: http.StatusGatewayTimeout,
}

// AsError converts err into a core.Error. A context deadline becomes
// FETCH_TIMEOUT and anything else without a code is INTERNAL_ERROR.
func AsError(err error) *core.Error {
	var coreErr *core.Error
	if errors.As(err, &coreErr) {
		return coreErr
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return core.WrapError(core.ErrFetchTimeout, err)
	}
	return &core.Error{Code: codeInternal, Message: "an internal error occurred", Cause: err}
}

// StatusFor maps an error code to its HTTP status. Unknown codes are 500.
func StatusFor(err error) int {
	if status, ok := statusByCode[AsError(err).Code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// JSON writes a success response with data.
func JSON(w http.ResponseWriter, status int, data any) {
	resp := SuccessResponse{
		Data: data,
		Meta: Meta{Timestamp: time.Now().UTC()},
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}

// Fail writes an error response with the status its code maps to.
func Fail(w http.ResponseWriter, err error) {
	Error(w, StatusFor(err), err)
}

// Error writes an error response. The cause of an uncoded error is not
// exposed.
func Error(w http.ResponseWriter, status int, err error) {
	coreErr := AsError(err)
	detail := ErrorDetail{
		Code:    coreErr.Code,
		Message: coreErr.Message,
	}
	if coreErr.Cause != nil && coreErr.Code != codeInternal {
		detail.Cause = coreErr.Cause.Error()
	}

	resp := ErrorResponse{Error: detail}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}
