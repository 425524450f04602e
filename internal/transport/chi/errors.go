package chi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/kailas-cloud/vaultctx/internal/domain"
)

// ErrorCode is the machine-readable error kind in ErrorResponse.
type ErrorCode string

// Error codes.
const (
	CodeBadRequest          ErrorCode = "bad_request"
	CodeUnauthorized        ErrorCode = "unauthorized"
	CodeValidationFailed    ErrorCode = "validation_failed"
	CodeNotFound            ErrorCode = "not_found"
	CodeToolNotFound        ErrorCode = "tool_not_found"
	CodeUpstreamUnavailable ErrorCode = "upstream_unavailable"
	CodeUpstreamError       ErrorCode = "upstream_error"
	CodeTimeout             ErrorCode = "timeout"
	CodeLLMUnavailable      ErrorCode = "llm_unavailable"
	CodeQuotaExceeded       ErrorCode = "quota_exceeded"
	CodeInternalError       ErrorCode = "internal_error"
)

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error) bool

// defaultErrorHandlers is ordered: ErrUnknownTool before ErrNotFound, ErrCircuitOpen before ErrUpstreamUnavailable.
func defaultErrorHandlers() []errorHandler {
	return []errorHandler{
		validationHandler,
		sentinelHandler(domain.ErrUnknownTool, http.StatusNotFound, CodeToolNotFound),
		sentinelHandler(domain.ErrNotFound, http.StatusNotFound, CodeNotFound),
		sentinelHandler(domain.ErrCircuitOpen, http.StatusServiceUnavailable, CodeUpstreamUnavailable),
		sentinelHandler(domain.ErrUpstreamUnavailable, http.StatusServiceUnavailable, CodeUpstreamUnavailable),
		sentinelHandler(domain.ErrTimeout, http.StatusGatewayTimeout, CodeTimeout),
		sentinelHandler(domain.ErrLLMUnavailable, http.StatusServiceUnavailable, CodeLLMUnavailable),
		sentinelHandler(domain.ErrLLMQuotaExceeded, http.StatusTooManyRequests, CodeQuotaExceeded),
		sentinelHandler(domain.ErrLLMProvider, http.StatusBadGateway, CodeUpstreamError),
		sentinelHandler(domain.ErrNetwork, http.StatusBadGateway, CodeUpstreamError),
		statusErrorHandler,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code ErrorCode, message string) {
	writeJSON(w, status, ErrorResponse{Code: code, Message: message})
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
// The client sees the sentinel text only, never the wrapped internals.
func sentinelHandler(sentinel error, status int, code ErrorCode) errorHandler {
	return func(w http.ResponseWriter, err error) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, sentinel.Error())
		return true
	}
}

// validationHandler echoes the field and reason, which are safe to expose.
func validationHandler(w http.ResponseWriter, err error) bool {
	if !errors.Is(err, domain.ErrValidation) {
		return false
	}
	msg := domain.ErrValidation.Error()
	var ve *domain.ValidationError
	if errors.As(err, &ve) {
		msg = ve.Error()
	}
	writeError(w, http.StatusBadRequest, CodeValidationFailed, msg)
	return true
}

// statusErrorHandler maps any other vault status (401, 403, ...) to a bad gateway.
func statusErrorHandler(w http.ResponseWriter, err error) bool {
	var se *domain.StatusError
	if !errors.As(err, &se) {
		return false
	}
	writeError(w, http.StatusBadGateway, CodeUpstreamError, http.StatusText(se.StatusCode)+" from vault")
	return true
}
