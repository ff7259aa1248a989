package errors

import (
	"encoding/json"
	stderrors "errors"
	"net/http"
	"strconv"
)

// RetryAfterSeconds is advertised on retryable responses.
const RetryAfterSeconds = 1

// ErrorResponse is the body of every failed request:
//
//	{"error":{"code":"OVERLOADED","message":"...","retryable":true}}
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// ErrorBody is the client-visible part of an AppError. Cause never leaves
// the process.
type ErrorBody struct {
	Code      ErrorCode      `json:"code"`
	Message   string         `json:"message"`
	Retryable bool           `json:"retryable"`
	Details   map[string]any `json:"details,omitempty"`
}

// ToResponse builds the response body for e.
func (e *AppError) ToResponse() ErrorResponse {
	return ErrorResponse{Error: ErrorBody{
		Code:      e.Code,
		Message:   e.Message,
		Retryable: e.Retryable,
		Details:   e.Details,
	}}
}

// Headers returns the response headers e calls for. Retryable errors carry
// Retry-After.
func (e *AppError) Headers() http.Header {
	h := http.Header{}
	if e.Retryable {
		h.Set("Retry-After", strconv.Itoa(RetryAfterSeconds))
	}
	return h
}

// WriteJSON writes e with its status and headers. For handlers outside gin.
func (e *AppError) WriteJSON(w http.ResponseWriter) {
	for k, vs := range e.Headers() {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(e.HTTPStatus)
	_ = json.NewEncoder(w).Encode(e.ToResponse())
}

// From returns err as an AppError, wrapping anything else as INTERNAL_ERROR.
func From(err error) *AppError {
	if appErr, ok := AsAppError(err); ok {
		return appErr
	}
	return Internal(err)
}

// IsAppError reports whether err wraps an AppError.
func IsAppError(err error) bool {
	_, ok := AsAppError(err)
	return ok
}

// AsAppError finds the first AppError in err's chain.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}
