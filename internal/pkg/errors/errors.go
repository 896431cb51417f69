// Package errors provides custom error types and error handling utilities.
package errors

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// Error codes.
const (
	// Client errors (4xx).
	CodeValidation     = "VALIDATION_ERROR"
	CodeNotFound       = "NOT_FOUND"
	CodeUnauthorized   = "UNAUTHORIZED"
	CodeForbidden      = "FORBIDDEN"
	CodeRateLimited    = "RATE_LIMITED"
	CodeInvalidRequest = "INVALID_REQUEST"

	// Moderation rejections (4xx). The message stays generic so the
	// matched pattern is never leaked to the caller.
	CodeJailbreak   = "JAILBREAK_DETECTED"
	CodeOutOfDomain = "OUT_OF_DOMAIN_INTENT"

	// Server errors (5xx).
	CodeInternal        = "INTERNAL_ERROR"
	CodeUnavailable     = "SERVICE_UNAVAILABLE"
	CodeTimeout         = "TIMEOUT"
	CodeRetrievalFailed = "RETRIEVAL_FAILED"
	CodeAnswerFailed    = "ANSWER_GENERATION_FAILED"
)

// AppError represents an application error with code and details.
type AppError struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
	Err     error             `json:"-"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the wrapped error.
func (e *AppError) Unwrap() error {
	return e.Err
}

// HTTPStatus returns the HTTP status code for this error.
func (e *AppError) HTTPStatus() int {
	switch e.Code {
	case CodeValidation, CodeInvalidRequest:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden, CodeJailbreak, CodeOutOfDomain:
		return http.StatusForbidden
	case CodeRateLimited:
		return http.StatusTooManyRequests
	case CodeUnavailable:
		return http.StatusServiceUnavailable
	case CodeTimeout:
		return http.StatusGatewayTimeout
	case CodeRetrievalFailed, CodeAnswerFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// New creates a new AppError.
func New(code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an error with an AppError.
func Wrap(code, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// WithDetail adds a single detail to the error.
func (e *AppError) WithDetail(key, value string) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// Convenience constructors.

// ValidationError creates a validation error.
func ValidationError(message string) *AppError {
	return New(CodeValidation, message)
}

// InternalError creates an internal error.
func InternalError(message string, err error) *AppError {
	return Wrap(CodeInternal, message, err)
}

// UnauthorizedError creates an unauthorized error.
func UnauthorizedError() *AppError {
	return New(CodeUnauthorized, "authentication required")
}

// ForbiddenError creates a forbidden error.
func ForbiddenError(message string) *AppError {
	if message == "" {
		message = "access denied"
	}
	return New(CodeForbidden, message)
}

// JailbreakError creates a moderation rejection for adversarial input.
func JailbreakError() *AppError {
	return New(CodeJailbreak, "query rejected by content policy")
}

// OutOfDomainError creates a moderation rejection for off-topic queries.
func OutOfDomainError() *AppError {
	return New(CodeOutOfDomain, "query is outside the supported domain")
}

// RateLimitedError creates a rate limited error with retry information.
func RateLimitedError(retryAfterSeconds int) *AppError {
	err := New(CodeRateLimited, "rate limit exceeded")
	if retryAfterSeconds > 0 {
		err = err.WithDetail("retry_after", fmt.Sprintf("%d", retryAfterSeconds))
	}
	return err
}

// RetrievalError creates a retrieval failure error.
func RetrievalError(message string, err error) *AppError {
	if message == "" {
		message = "retrieval failed"
	}
	return Wrap(CodeRetrievalFailed, message, err)
}

// AnswerError creates an answer generation failure error.
func AnswerError(message string, err error) *AppError {
	if message == "" {
		message = "answer generation failed"
	}
	return Wrap(CodeAnswerFailed, message, err)
}

// TimeoutError creates a timeout error for a specific operation.
func TimeoutError(operation string) *AppError {
	message := "operation timed out"
	if operation != "" {
		message = fmt.Sprintf("%s timed out", operation)
	}
	return New(CodeTimeout, message)
}

// ServiceUnavailableError creates a service unavailable error.
func ServiceUnavailableError(service string) *AppError {
	message := "service unavailable"
	if service != "" {
		message = fmt.Sprintf("%s is unavailable", service)
	}
	return New(CodeUnavailable, message)
}

// AsAppError extracts an *AppError from err, or nil.
func AsAppError(err error) *AppError {
	if appErr, ok := err.(*AppError); ok {
		return appErr
	}
	return nil
}

// IsValidation checks if error is a validation error.
func IsValidation(err error) bool {
	if appErr := AsAppError(err); appErr != nil {
		return appErr.Code == CodeValidation
	}
	return false
}

// ErrorBody is the error half of the standard JSON response envelope.
type ErrorBody struct {
	Message string            `json:"message"`
	Code    string            `json:"code"`
	Details map[string]string `json:"details,omitempty"`
}

// ErrorResponse is the standard JSON error response structure.
type ErrorResponse struct {
	RequestID string    `json:"requestId,omitempty"`
	Error     ErrorBody `json:"error"`
}

// WriteJSON writes a JSON error response to the ResponseWriter.
func WriteJSON(w http.ResponseWriter, status int, resp ErrorResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Ignore encoding errors - headers already sent
	_ = json.NewEncoder(w).Encode(resp)
}

// WriteError writes an error response with proper sanitization.
// If err is an *AppError, it uses the code and status from the error.
// For other errors, it sanitizes the message to prevent leaking internal details.
func WriteError(w http.ResponseWriter, requestID string, err error) {
	if appErr := AsAppError(err); appErr != nil {
		status := appErr.HTTPStatus()
		body := ErrorBody{
			Message: appErr.Message,
			Code:    appErr.Code,
			Details: appErr.Details,
		}
		// 5xx messages may wrap upstream detail; keep the code but hide it.
		if status >= 500 {
			body.Message = sanitizedMessage(appErr.Code)
			body.Details = nil
		}
		if appErr.Code == CodeRateLimited {
			if retry, ok := appErr.Details["retry_after"]; ok {
				w.Header().Set("Retry-After", retry)
			}
		}
		WriteJSON(w, status, ErrorResponse{RequestID: requestID, Error: body})
		return
	}

	WriteJSON(w, http.StatusInternalServerError, ErrorResponse{
		RequestID: requestID,
		Error: ErrorBody{
			Message: "an unexpected error occurred",
			Code:    CodeInternal,
		},
	})
}

// sanitizedMessage returns a client-safe message for a 5xx error code.
func sanitizedMessage(code string) string {
	switch code {
	case CodeRetrievalFailed:
		return "retrieval failed"
	case CodeAnswerFailed:
		return "answer generation failed"
	case CodeTimeout:
		return "operation timed out"
	case CodeUnavailable:
		return "service unavailable"
	default:
		return "an unexpected error occurred"
	}
}
