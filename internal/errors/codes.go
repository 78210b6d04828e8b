package errors

import (
	stderrors "errors"
	"fmt"
	"maps"
	"net/http"
)

// ErrorCode represents a specific failure class.
type ErrorCode string

const (
	// ErrCodeAuthInvalid indicates a session token that failed signature,
	// issuer or expiry checks. Callers treat the request as unauthenticated.
	ErrCodeAuthInvalid ErrorCode = "AUTH_INVALID"
	// ErrCodeCredentialExpired indicates a provider credential that could not
	// be refreshed. It is a soft warning.
	ErrCodeCredentialExpired ErrorCode = "CREDENTIAL_EXPIRED"
	// ErrCodePayloadTooLarge indicates a session token over the size limit.
	ErrCodePayloadTooLarge ErrorCode = "PAYLOAD_TOO_LARGE"
	// ErrCodeExtractionEmpty indicates no strategy recovered a task.
	ErrCodeExtractionEmpty ErrorCode = "EXTRACTION_EMPTY"
	// ErrCodeUpstreamRejected indicates a non-2xx answer from a collaborator.
	ErrCodeUpstreamRejected ErrorCode = "UPSTREAM_REJECTED"
	// ErrCodeSerializationFailure indicates state that could not be encoded.
	ErrCodeSerializationFailure ErrorCode = "SERIALIZATION_FAILURE"
	// ErrCodeUnauthorized indicates a request that needs a session and has none.
	ErrCodeUnauthorized ErrorCode = "UNAUTHORIZED"
	// ErrCodeRateLimitExceeded indicates rate limit has been exceeded.
	ErrCodeRateLimitExceeded ErrorCode = "RATE_LIMIT_EXCEEDED"
	// ErrCodeInvalidArgument indicates invalid input parameters.
	ErrCodeInvalidArgument ErrorCode = "INVALID_ARGUMENT"
	// ErrCodeNotFound indicates a missing item.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"
	// ErrCodeTimeout indicates the operation timed out.
	ErrCodeTimeout ErrorCode = "TIMEOUT"
	// ErrCodeInternal is everything else.
	ErrCodeInternal ErrorCode = "INTERNAL"
)

var httpStatus = map[ErrorCode]int{
	ErrCodeAuthInvalid:          http.StatusUnauthorized,
	ErrCodeUnauthorized:         http.StatusUnauthorized,
	ErrCodeCredentialExpired:    http.StatusUnauthorized,
	ErrCodePayloadTooLarge:      http.StatusRequestEntityTooLarge,
	ErrCodeExtractionEmpty:      http.StatusOK,
	ErrCodeUpstreamRejected:     http.StatusBadGateway,
	ErrCodeSerializationFailure: http.StatusInternalServerError,
	ErrCodeRateLimitExceeded:    http.StatusTooManyRequests,
	ErrCodeInvalidArgument:      http.StatusBadRequest,
	ErrCodeNotFound:             http.StatusNotFound,
	ErrCodeTimeout:              http.StatusGatewayTimeout,
	ErrCodeInternal:             http.StatusInternalServerError,
}

// AppError represents a structured error.
type AppError struct {
	Code    ErrorCode
	Message string
	Cause   error
	Context map[string]any
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithContext adds context to the error.
func (e *AppError) WithContext(key string, value any) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// HTTPStatus returns the status code the error is reported with.
func (e *AppError) HTTPStatus() int {
	if s, ok := httpStatus[e.Code]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// Convenience constructors for common error types.

// AuthInvalid creates an invalid session token error.
func AuthInvalid(cause error) *AppError {
	return &AppError{Code: ErrCodeAuthInvalid, Message: "invalid session token", Cause: cause}
}

// CredentialExpired creates a soft credential warning.
func CredentialExpired(msg string, cause error) *AppError {
	return &AppError{Code: ErrCodeCredentialExpired, Message: msg, Cause: cause}
}

// PayloadTooLarge creates a token size error.
func PayloadTooLarge(size, limit int) *AppError {
	return (&AppError{Code: ErrCodePayloadTooLarge, Message: "session token exceeds size limit"}).
		WithContext("size", size).
		WithContext("limit", limit)
}

// ExtractionEmpty creates an extraction empty result error.
func ExtractionEmpty() *AppError {
	return &AppError{Code: ErrCodeExtractionEmpty, Message: "no task could be extracted"}
}

// UpstreamRejected creates an error for a non-2xx upstream answer.
func UpstreamRejected(service string, status int, detail string) *AppError {
	return (&AppError{Code: ErrCodeUpstreamRejected, Message: fmt.Sprintf("%s rejected the request", service)}).
		WithContext("service", service).
		WithContext("status", status).
		WithContext("detail", detail)
}

// SerializationFailure creates an error for state that could not be encoded.
func SerializationFailure(cause error, fields ...string) *AppError {
	e := &AppError{Code: ErrCodeSerializationFailure, Message: "failed to serialize session state", Cause: cause}
	if len(fields) > 0 {
		e.WithContext("fields", fields)
	}
	return e
}

// Unauthorized creates an unauthorized error.
func Unauthorized(msg string) *AppError {
	return &AppError{Code: ErrCodeUnauthorized, Message: msg}
}

// RateLimitExceeded creates a rate limit exceeded error.
func RateLimitExceeded(msg string) *AppError {
	return &AppError{Code: ErrCodeRateLimitExceeded, Message: msg}
}

// InvalidArgument creates an invalid argument error.
func InvalidArgument(msg string) *AppError {
	return &AppError{Code: ErrCodeInvalidArgument, Message: msg}
}

// NotFound creates a not found error.
func NotFound(msg string) *AppError {
	return &AppError{Code: ErrCodeNotFound, Message: msg}
}

// Timeout creates a timeout error.
func Timeout(msg string, cause error) *AppError {
	return &AppError{Code: ErrCodeTimeout, Message: msg, Cause: cause}
}

// Wrap wraps an existing error with additional context.
func Wrap(cause error, code ErrorCode, msg string) *AppError {
	return &AppError{Code: code, Message: msg, Cause: cause}
}

// As returns the first AppError in err's chain.
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// IsCode checks if any error in the chain is of a specific code.
func IsCode(err error, code ErrorCode) bool {
	appErr, ok := As(err)
	return ok && appErr.Code == code
}

// Detail is the JSON form of an error as reported to clients.
type Detail struct {
	Code    ErrorCode      `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// DetailOf describes err for a response body. Errors that are not AppErrors
// are reported with defaultCode and their own message. A nil err gives nil.
func DetailOf(err error, defaultCode ErrorCode) *Detail {
	if err == nil {
		return nil
	}
	if appErr, ok := As(err); ok {
		return &Detail{Code: appErr.Code, Message: appErr.Message, Details: maps.Clone(appErr.Context)}
	}
	return &Detail{Code: defaultCode, Message: err.Error()}
}

// Clone returns a deep copy of the top-level fields.
func (d *Detail) Clone() *Detail {
	if d == nil {
		return nil
	}
	c := *d
	c.Details = maps.Clone(d.Details)
	return &c
}

// GetCodeFromError extracts the error code from any error.
// Returns the provided default code if the error is not an AppError.
func GetCodeFromError(err error, defaultCode ErrorCode) ErrorCode {
	if appErr, ok := As(err); ok {
		return appErr.Code
	}
	return defaultCode
}

// StatusFor maps any error to an HTTP status.
func StatusFor(err error) int {
	if appErr, ok := As(err); ok {
		return appErr.HTTPStatus()
	}
	return http.StatusInternalServerError
}
