// Package apierr provides unified error handling for the claims engine.
package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

// Code is a machine-facing error identifier, stable across releases.
type Code string

const (
	// Authentication errors (1xxx)
	CodeUnauthenticated Code = "AUTH_1001"
	CodeInvalidToken    Code = "AUTH_1002"
	CodeTokenExpired    Code = "AUTH_1003"
	CodeAccountLocked   Code = "AUTH_1004"

	// Authorization errors (2xxx)
	CodeForbidden         Code = "AUTHZ_2001"
	CodeOwnershipRequired Code = "AUTHZ_2002"

	// Validation errors (3xxx)
	CodeInvalidInput     Code = "VAL_3001"
	CodeMissingParameter Code = "VAL_3002"
	CodeInvalidFormat    Code = "VAL_3003"
	CodeMimeMismatch     Code = "VAL_3004"
	CodeFileTooLarge     Code = "VAL_3005"

	// Resource errors (4xxx)
	CodeNotFound           Code = "RES_4001"
	CodeAlreadyExists      Code = "RES_4002"
	CodeConflict           Code = "RES_4003"
	CodeInvalidTransition  Code = "RES_4004"
	CodeConcurrentModified Code = "RES_4005"
	CodeConsentMissing     Code = "RES_4006"
	CodeDuplicateClaim     Code = "RES_4007"

	// Service errors (5xxx)
	CodeInternal            Code = "SVC_5001"
	CodeDatabaseError       Code = "SVC_5002"
	CodeDependencyUnavail   Code = "SVC_5003"
	CodeTimeout             Code = "SVC_5004"
	CodeRateLimitExceeded   Code = "SVC_5005"
	CodeScannerUnavailable  Code = "SVC_5006"
	CodeScannerThreat       Code = "SVC_5007"
	CodeIntegrityCheckFail  Code = "SVC_5008"
)

// Error is a structured error with a stable code, a safe-to-display
// message, an HTTP status, and optional machine-readable details.
// Err, when set, is never serialized — it exists for logging/unwrap only.
type Error struct {
	Code       Code                   `json:"code"`
	Message    string                 `json:"message"`
	HTTPStatus int                    `json:"-"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Err        error                  `json:"-"`
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) WithDetails(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

func New(code Code, message string, httpStatus int) *Error {
	return &Error{Code: code, Message: message, HTTPStatus: httpStatus}
}

func Wrap(code Code, message string, httpStatus int, err error) *Error {
	return &Error{Code: code, Message: message, HTTPStatus: httpStatus, Err: err}
}

func Unauthenticated(message string) *Error {
	return New(CodeUnauthenticated, message, http.StatusUnauthorized)
}

func InvalidToken(err error) *Error {
	return Wrap(CodeInvalidToken, "invalid authentication token", http.StatusUnauthorized, err)
}

func TokenExpired() *Error {
	return New(CodeTokenExpired, "authentication token has expired", http.StatusUnauthorized)
}

func AccountLocked(until string) *Error {
	return New(CodeAccountLocked, "account is temporarily locked", http.StatusForbidden).
		WithDetails("locked_until", until)
}

func Forbidden(message string) *Error {
	return New(CodeForbidden, message, http.StatusForbidden)
}

func OwnershipRequired(resource string) *Error {
	return New(CodeOwnershipRequired, "ownership verification required", http.StatusForbidden).
		WithDetails("resource", resource)
}

func InvalidInput(field, reason string) *Error {
	return New(CodeInvalidInput, "invalid input", http.StatusBadRequest).
		WithDetails("field", field).
		WithDetails("reason", reason)
}

func MissingParameter(param string) *Error {
	return New(CodeMissingParameter, "missing required parameter", http.StatusBadRequest).
		WithDetails("parameter", param)
}

func InvalidFormat(field, expected string) *Error {
	return New(CodeInvalidFormat, "invalid format", http.StatusBadRequest).
		WithDetails("field", field).
		WithDetails("expected", expected)
}

func MimeMismatch(declared, detected string) *Error {
	return New(CodeMimeMismatch, "file content does not match its declared type", http.StatusBadRequest).
		WithDetails("declared", declared).
		WithDetails("detected", detected)
}

func FileTooLarge(maxBytes int64) *Error {
	return New(CodeFileTooLarge, "file exceeds the maximum allowed size", http.StatusRequestEntityTooLarge).
		WithDetails("max_bytes", maxBytes)
}

func NotFound(resource, id string) *Error {
	return New(CodeNotFound, "resource not found", http.StatusNotFound).
		WithDetails("resource", resource).
		WithDetails("id", id)
}

func AlreadyExists(resource, id string) *Error {
	return New(CodeAlreadyExists, "resource already exists", http.StatusConflict).
		WithDetails("resource", resource).
		WithDetails("id", id)
}

func Conflict(message string) *Error {
	return New(CodeConflict, message, http.StatusConflict)
}

func InvalidTransition(from, to string) *Error {
	return New(CodeInvalidTransition, "transition is not permitted from the current state", http.StatusConflict).
		WithDetails("from", from).
		WithDetails("to", to)
}

func ConcurrentModification() *Error {
	return New(CodeConcurrentModified, "resource was modified concurrently; reload and retry", http.StatusConflict)
}

func ConsentMissing() *Error {
	return New(CodeConsentMissing, "the claim group's consent has not been confirmed", http.StatusConflict)
}

func DuplicateClaim(flightNumber, flightDate string) *Error {
	return New(CodeDuplicateClaim, "a non-draft claim already exists for this flight", http.StatusConflict).
		WithDetails("flight_number", flightNumber).
		WithDetails("flight_date", flightDate)
}

func Internal(message string, err error) *Error {
	return Wrap(CodeInternal, message, http.StatusInternalServerError, err)
}

func DatabaseError(operation string, err error) *Error {
	return Wrap(CodeDatabaseError, "database operation failed", http.StatusInternalServerError, err).
		WithDetails("operation", operation)
}

func DependencyUnavailable(dependency string, err error) *Error {
	return Wrap(CodeDependencyUnavail, "a required dependency is unavailable", http.StatusServiceUnavailable, err).
		WithDetails("dependency", dependency)
}

func Timeout(operation string) *Error {
	return New(CodeTimeout, "operation timed out", http.StatusGatewayTimeout).
		WithDetails("operation", operation)
}

func RateLimited(limit int, window string) *Error {
	return New(CodeRateLimitExceeded, "rate limit exceeded", http.StatusTooManyRequests).
		WithDetails("limit", limit).
		WithDetails("window", window)
}

func ScannerUnavailable(err error) *Error {
	return Wrap(CodeScannerUnavailable, "malware scanner is unavailable", http.StatusServiceUnavailable, err)
}

func ScannerDetectedThreat(signature string) *Error {
	return New(CodeScannerThreat, "uploaded file failed the safety scan", http.StatusUnprocessableEntity).
		WithDetails("signature", signature)
}

func IntegrityCheckFailed(resource string) *Error {
	return New(CodeIntegrityCheckFail, "stored object failed post-write integrity verification", http.StatusInternalServerError).
		WithDetails("resource", resource)
}

// Is reports whether err is (or wraps) an *Error.
func Is(err error) bool {
	var apiErr *Error
	return errors.As(err, &apiErr)
}

// As extracts an *Error from err's chain, or nil.
func As(err error) *Error {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return nil
}

// HTTPStatus returns the HTTP status associated with err, defaulting to 500.
func HTTPStatus(err error) int {
	if apiErr := As(err); apiErr != nil {
		return apiErr.HTTPStatus
	}
	return http.StatusInternalServerError
}
