package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// NetworkError means the request never produced an HTTP response
// (DNS failure, connection refused, timeout).
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string { return fmt.Sprintf("network error: %v", e.Err) }
func (e *NetworkError) Unwrap() error { return e.Err }

// AuthenticationError is a 401, or a failed/impossible token refresh.
type AuthenticationError struct {
	Msg string
	Err error
}

func (e *AuthenticationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("authentication failed: %s: %v", e.Msg, e.Err)
	}
	return "authentication failed: " + e.Msg
}
func (e *AuthenticationError) Unwrap() error { return e.Err }

// AuthorizationError is a 403: the session is valid but lacks permission.
type AuthorizationError struct {
	Body string
}

func (e *AuthorizationError) Error() string { return "forbidden: " + e.Body }

// ValidationError is a 422 with optional per-field messages.
type ValidationError struct {
	Fields map[string][]string
	Body   string
}

func (e *ValidationError) Error() string { return "validation failed: " + e.Body }

// APIError covers every other non-2xx HTTP status.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("sportiva returned %d: %s", e.Status, e.Body)
}

// UnknownError wraps non-HTTP failures (request construction, body decoding).
type UnknownError struct {
	Err error
}

func (e *UnknownError) Error() string { return fmt.Sprintf("unexpected error: %v", e.Err) }
func (e *UnknownError) Unwrap() error { return e.Err }

// classifyStatus maps a non-2xx response onto the error taxonomy.
func classifyStatus(status int, body []byte) error {
	switch status {
	case http.StatusUnauthorized:
		return &AuthenticationError{Msg: "token rejected"}
	case http.StatusForbidden:
		return &AuthorizationError{Body: string(body)}
	case http.StatusUnprocessableEntity:
		ve := &ValidationError{Body: string(body)}
		// Sportiva validation errors carry {"errors": {"field": ["msg", ...]}}
		var payload struct {
			Errors map[string][]string `json:"errors"`
		}
		if err := json.Unmarshal(body, &payload); err == nil && len(payload.Errors) > 0 {
			ve.Fields = payload.Errors
		}
		return ve
	default:
		return &APIError{Status: status, Body: string(body)}
	}
}
