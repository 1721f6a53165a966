package domain

import (
	"errors"
	"fmt"
	"time"
)

// Pipeline failure taxonomy. Every failure class the clinical pipeline can
// produce is a distinct, caller-visible condition; callers classify with
// errors.Is / errors.As and choose their own user-facing status. None of
// these are retried inside the pipeline.
var (
	// ErrNotFound indicates a requested row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAccessDenied covers both a missing assessment and an ownership
	// mismatch. The two cases share one error so that callers cannot learn
	// whether an assessment they do not own exists.
	ErrAccessDenied = errors.New("assessment not found or access denied")

	// ErrUpstreamUnavailable indicates an image could not be retrieved
	// from object storage. Image evidence is safety-relevant, so a single
	// failed download aborts the whole run.
	ErrUpstreamUnavailable = errors.New("could not retrieve image from storage")

	// ErrInferenceTimeout indicates the inference call exceeded its
	// cold-start-tolerant deadline. Distinct from a non-success status.
	ErrInferenceTimeout = errors.New("inference request timed out")

	// ErrPersistenceFailure indicates the analysis insert returned no row.
	ErrPersistenceFailure = errors.New("failed to persist analysis result")

	// ErrNoVideoFound indicates the video search produced no playable
	// candidate for the query.
	ErrNoVideoFound = errors.New("no embeddable video found")

	// ErrVideoSearchUnavailable indicates the video search backend is
	// down or its circuit is open and no cached result exists.
	ErrVideoSearchUnavailable = errors.New("video search unavailable")

	// ErrUnauthenticated indicates a missing or invalid access token.
	ErrUnauthenticated = errors.New("authentication required")
)

// UpstreamError reports a non-success status from the inference endpoint.
// The numeric code stays retrievable via errors.As for diagnostics and
// status mapping.
type UpstreamError struct {
	StatusCode int
	Body       string
}

// Error implements the error interface.
func (e *UpstreamError) Error() string {
	return fmt.Sprintf("inference endpoint returned HTTP %d", e.StatusCode)
}

// NewUpstreamError creates an UpstreamError, keeping at most the first
// 500 bytes of the response body for logs.
func NewUpstreamError(statusCode int, body string) *UpstreamError {
	if len(body) > 500 {
		body = body[:500]
	}
	return &UpstreamError{StatusCode: statusCode, Body: body}
}

// Error codes used in API error responses.
const (
	ErrCodeInvalidInput   = "INVALID_INPUT"
	ErrCodeAccessDenied   = "ACCESS_DENIED"
	ErrCodeNotFound       = "NOT_FOUND"
	ErrCodeUpstreamError  = "UPSTREAM_ERROR"
	ErrCodeTimeout        = "UPSTREAM_TIMEOUT"
	ErrCodeUnauthorized   = "UNAUTHORIZED"
	ErrCodeInternalServer = "INTERNAL_SERVER_ERROR"
)

// APIError is the standardized error payload rendered by the HTTP layer.
type APIError struct {
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	Details   string    `json:"details,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewAPIError creates a new APIError with timestamp.
func NewAPIError(code, message, details, requestID string) *APIError {
	return &APIError{
		Code:      code,
		Message:   message,
		Details:   details,
		Timestamp: time.Now().UTC(),
		RequestID: requestID,
	}
}

// ValidationError represents input validation errors on API requests.
type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value"`
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field, message string, value interface{}) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
		Value:   value,
	}
}
