package errors

import (
	"net/http"
	"strings"
)

// ErrorCode represents a machine-readable error code.
type ErrorCode string

// Client input errors. Never retried.
const (
	ErrCodeInvalidInput    ErrorCode = "INVALID_INPUT"
	ErrCodeInvalidFormat   ErrorCode = "INVALID_FORMAT"
	ErrCodeEmptyPayload    ErrorCode = "EMPTY_PAYLOAD"
	ErrCodePayloadTooLarge ErrorCode = "PAYLOAD_TOO_LARGE"
)

// Capacity errors. The caller may retry with backoff.
const (
	// ErrCodeOverloaded means the admission gate rejected the request.
	ErrCodeOverloaded ErrorCode = "OVERLOADED"
	// ErrCodePoolExhausted means no worker became idle before the deadline.
	ErrCodePoolExhausted ErrorCode = "POOL_EXHAUSTED"
	// ErrCodeNotReady means no worker has a loaded model.
	ErrCodeNotReady ErrorCode = "NOT_READY"
)

// Model errors
const (
	ErrCodeDecodeFailed    ErrorCode = "DECODE_FAILED"
	ErrCodeInferenceFailed ErrorCode = "INFERENCE_FAILED"
	ErrCodeLoadFailed      ErrorCode = "LOAD_FAILED"
)

const ErrCodeInternal ErrorCode = "INTERNAL_ERROR"

// ErrCodeCanceled means the client went away before a worker was assigned.
const ErrCodeCanceled ErrorCode = "CANCELED"

// StatusClientClosedRequest is the non-standard status logged for requests
// abandoned by the client.
const StatusClientClosedRequest = 499

type codeInfo struct {
	status    int
	retryable bool
}

var codes = map[ErrorCode]codeInfo{
	ErrCodeInvalidInput:    {http.StatusBadRequest, false},
	ErrCodeInvalidFormat:   {http.StatusBadRequest, false},
	ErrCodeEmptyPayload:    {http.StatusBadRequest, false},
	ErrCodePayloadTooLarge: {http.StatusRequestEntityTooLarge, false},
	ErrCodeOverloaded:      {http.StatusServiceUnavailable, true},
	ErrCodePoolExhausted:   {http.StatusServiceUnavailable, true},
	ErrCodeNotReady:        {http.StatusServiceUnavailable, true},
	ErrCodeDecodeFailed:    {http.StatusUnprocessableEntity, false},
	ErrCodeInferenceFailed: {http.StatusInternalServerError, false},
	ErrCodeLoadFailed:      {http.StatusInternalServerError, false},
	ErrCodeInternal:        {http.StatusInternalServerError, false},
	ErrCodeCanceled:        {StatusClientClosedRequest, false},
}

// IsRetryableCode returns true if the error code indicates a retryable error.
func IsRetryableCode(code ErrorCode) bool {
	return codes[code].retryable
}

// HTTPStatus is the response status for the code. Unknown codes map to 500.
func (c ErrorCode) HTTPStatus() int {
	if info, ok := codes[c]; ok {
		return info.status
	}
	return http.StatusInternalServerError
}

// Label returns the code in lower snake case, suitable as a metric label value.
func (c ErrorCode) Label() string {
	return strings.ToLower(string(c))
}
