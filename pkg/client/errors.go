package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Common errors returned by the client.
var (
	// ErrRetryExhausted is returned when all retry attempts are exhausted.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the context is cancelled during retry.
	ErrContextCancelled = errors.New("context cancelled")
)

// ErrorKind classifies a failed request.
type ErrorKind string

const (
	// ErrorKindValidation represents malformed or missing input (400).
	ErrorKindValidation ErrorKind = "validation"

	// ErrorKindAuth represents unauthenticated or unauthorized requests (401/403).
	ErrorKindAuth ErrorKind = "auth"

	// ErrorKindNotFound represents 404 responses.
	ErrorKindNotFound ErrorKind = "not_found"

	// ErrorKindRateLimit represents 429 responses.
	ErrorKindRateLimit ErrorKind = "rate_limit"

	// ErrorKindClient represents any other 4xx response.
	ErrorKindClient ErrorKind = "client"

	// ErrorKindServer represents 5xx responses.
	ErrorKindServer ErrorKind = "server"

	// ErrorKindNetwork represents transport failures with no response.
	ErrorKindNetwork ErrorKind = "network"
)

// APIError is a classified request failure.
type APIError struct {
	StatusCode int
	Kind       ErrorKind
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s error (status %d): %s: %v", e.Kind, e.StatusCode, e.Message, e.Err)
	}
	return fmt.Sprintf("%s error (status %d): %s", e.Kind, e.StatusCode, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *APIError) Unwrap() error {
	return e.Err
}

// ErrorEnvelope is the uniform body of every 4xx/5xx response.
type ErrorEnvelope struct {
	StatusCode int    `json:"statusCode"`
	Message    string `json:"message"`
}

// KindForStatus maps an HTTP status code to an ErrorKind.
// Returns "" for non-error statuses.
func KindForStatus(status int) ErrorKind {
	switch {
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return ErrorKindValidation
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ErrorKindAuth
	case status == http.StatusNotFound:
		return ErrorKindNotFound
	case status == http.StatusTooManyRequests:
		return ErrorKindRateLimit
	case status >= 400 && status < 500:
		return ErrorKindClient
	case status >= 500:
		return ErrorKindServer
	default:
		return ""
	}
}

// KindOf returns the ErrorKind carried by err. Errors that are not an
// APIError are treated as network failures.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return ErrorKindNetwork
}

// IsAuth reports whether err is an authentication or authorization failure.
func IsAuth(err error) bool {
	return KindOf(err) == ErrorKindAuth
}

// MessageOf returns a human-readable message for err without transport noise.
func MessageOf(err error) string {
	if err == nil {
		return ""
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "request timed out"
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, ErrContextCancelled) {
		return "request cancelled"
	}
	return "network error"
}

// shouldRetry determines if an error should be retried based on its kind.
func shouldRetry(kind ErrorKind) bool {
	switch kind {
	case ErrorKindServer, ErrorKindRateLimit, ErrorKindNetwork:
		return true
	default:
		// 4xx errors are answered deterministically; retrying cannot help
		return false
	}
}

// errorFromResponse reads the error envelope from resp and closes its body.
func errorFromResponse(resp *http.Response) *APIError {
	defer resp.Body.Close()

	apiErr := &APIError{
		StatusCode: resp.StatusCode,
		Kind:       KindForStatus(resp.StatusCode),
		Message:    http.StatusText(resp.StatusCode),
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil || len(body) == 0 {
		return apiErr
	}

	var env ErrorEnvelope
	if err := json.Unmarshal(body, &env); err == nil && env.Message != "" {
		apiErr.Message = env.Message
	} else if text := strings.TrimSpace(string(body)); text != "" && !strings.HasPrefix(text, "{") {
		apiErr.Message = text
	}
	return apiErr
}
