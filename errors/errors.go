// Package errors provides the structured error type shared by the service,
// the HTTP layer and the metrics registry. Every failure a caller can observe
// carries a machine-readable code, an HTTP status and a retryable flag.
package errors

import (
	"fmt"
	"maps"
)

// AppError is the unified application error type.
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	// Retryable tells the client that the same request may succeed later.
	Retryable  bool           `json:"retryable"`
	HTTPStatus int            `json:"-"`
	Details    map[string]any `json:"details,omitempty"`
	Cause      error          `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (cause: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error { return e.Cause }

// WithCause sets the underlying cause and returns the receiver.
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// WithDetails merges details into the error and returns the receiver.
func (e *AppError) WithDetails(details map[string]any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any, len(details))
	}
	maps.Copy(e.Details, details)
	return e
}

// WithDetail sets one detail and returns the receiver.
func (e *AppError) WithDetail(key string, value any) *AppError {
	return e.WithDetails(map[string]any{key: value})
}

// New creates an AppError with an explicit status. Retryability follows the code.
func New(code ErrorCode, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Retryable:  IsRetryableCode(code),
	}
}

// newCode creates an AppError whose status and retryability follow the code.
func newCode(code ErrorCode, format string, args ...any) *AppError {
	msg := format
	if len(args) > 0 {
		msg = fmt.Sprintf(format, args...)
	}
	return New(code, msg, code.HTTPStatus())
}

// InvalidInput reports a bad request parameter.
func InvalidInput(field, reason string) *AppError {
	e := newCode(ErrCodeInvalidInput, "Invalid input: %s", reason)
	if field != "" {
		e.WithDetail("field", field)
	}
	return e
}

// Validation reports one or more failed validation rules.
func Validation(message string) *AppError {
	return newCode(ErrCodeInvalidInput, "%s", message)
}

// InvalidFormat reports an audio file type outside the allowed set.
func InvalidFormat(extension string, allowed []string) *AppError {
	return newCode(ErrCodeInvalidFormat, "Unsupported file type %q", extension).
		WithDetails(map[string]any{"extension": extension, "allowed": allowed})
}

func EmptyPayload() *AppError {
	return newCode(ErrCodeEmptyPayload, "Empty file uploaded")
}

// PayloadTooLarge reports audio above the configured size limit.
func PayloadTooLarge(size, limit int64) *AppError {
	return newCode(ErrCodePayloadTooLarge, "File too large. Maximum size: %d bytes", limit).
		WithDetails(map[string]any{"size": size, "limit": limit})
}

// Overloaded reports a request rejected at admission.
func Overloaded(inFlight int) *AppError {
	return newCode(ErrCodeOverloaded, "Server is at capacity. Please retry later.").
		WithDetail("in_flight", inFlight)
}

// PoolExhausted reports a request that found no idle worker in time.
func PoolExhausted() *AppError {
	return newCode(ErrCodePoolExhausted, "No model worker became available in time. Please retry later.")
}

// NotReady reports a request received before any model finished loading.
func NotReady() *AppError {
	return newCode(ErrCodeNotReady, "Model not loaded yet")
}

// Canceled reports a request whose caller gave up while it waited for a
// gate slot or a worker.
func Canceled(cause error) *AppError {
	return newCode(ErrCodeCanceled, "Request canceled by the client").WithCause(cause)
}

// DecodeFailed reports unreadable or corrupt audio.
func DecodeFailed(cause error) *AppError {
	return newCode(ErrCodeDecodeFailed, "The audio could not be decoded.").WithCause(cause)
}

// InferenceFailed reports an internal model error.
func InferenceFailed(cause error) *AppError {
	return newCode(ErrCodeInferenceFailed, "Transcription failed.").WithCause(cause)
}

// LoadFailed reports a model that could not be initialized.
func LoadFailed(cause error) *AppError {
	return newCode(ErrCodeLoadFailed, "The model could not be loaded.").WithCause(cause)
}

// Internal wraps an unexpected failure.
func Internal(cause error) *AppError {
	return newCode(ErrCodeInternal, "An unexpected error occurred. Please try again or contact support.").WithCause(cause)
}
