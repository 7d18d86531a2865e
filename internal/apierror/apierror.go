// Package apierror defines the API error taxonomy. Every error a handler
// returns to a client maps to one of these, so responses stay a stable
// {error, details?} shape.
package apierror

import (
	"errors"
	"fmt"
	"net/http"
)

type Error struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func Authentication(msg string) *Error {
	if msg == "" {
		msg = "authentication required"
	}
	return &Error{Status: http.StatusUnauthorized, Code: "authentication_error", Message: msg}
}

// AuthorizationState covers bad or missing CSRF state on OAuth callbacks.
func AuthorizationState(msg string) *Error {
	return &Error{Status: http.StatusBadRequest, Code: "authorization_state_error", Message: msg}
}

// NotConnected means no credential exists for (provider, user); the client
// should prompt the user to connect the integration.
func NotConnected(provider string) *Error {
	return &Error{
		Status:  http.StatusBadRequest,
		Code:    "integration_not_connected",
		Message: fmt.Sprintf("%s is not connected", provider),
	}
}

// TokenExpired means the refresh grant failed; the client should prompt a
// reconnect.
func TokenExpired(provider string) *Error {
	return &Error{
		Status:  http.StatusUnauthorized,
		Code:    "token_expired",
		Message: fmt.Sprintf("%s token expired, reconnect required", provider),
	}
}

func Validation(msg string) *Error {
	return &Error{Status: http.StatusBadRequest, Code: "validation_error", Message: msg}
}

func RateLimited() *Error {
	return &Error{Status: http.StatusTooManyRequests, Code: "rate_limit_error", Message: "too many requests"}
}

func Forbidden(msg string) *Error {
	if msg == "" {
		msg = "forbidden"
	}
	return &Error{Status: http.StatusForbidden, Code: "forbidden", Message: msg}
}

// ProviderAPI wraps a non-2xx provider response. Provider 4xx statuses pass
// through so the client sees what the provider said; everything else is a 500.
func ProviderAPI(provider string, status int, body string) *Error {
	outStatus := http.StatusInternalServerError
	if status >= 400 && status < 500 {
		outStatus = status
	}
	return &Error{
		Status:  outStatus,
		Code:    "provider_api_error",
		Message: fmt.Sprintf("%s API returned %d", provider, status),
		Details: body,
	}
}

// Status returns the HTTP status for err, defaulting to 500.
func Status(err error) int {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return http.StatusInternalServerError
}

// From extracts the typed API error from err, or nil.
func From(err error) *Error {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return nil
}
