package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

var (
	ErrNotFound     = errors.New("resource not found")
	ErrRateLimited  = errors.New("rate limited by API")
	ErrUnauthorized = errors.New("unauthorized: session expired or invalid")
	ErrBadRequest   = errors.New("request rejected by API")
)

// APIError is the normalised form of every non-2xx response.
type APIError struct {
	Status    int                 `json:"status"`
	Message   string              `json:"message"`
	Errors    map[string][]string `json:"errors,omitempty"`
	Timestamp time.Time           `json:"timestamp"`
}

func (e *APIError) Error() string {
	if len(e.Errors) > 0 {
		return fmt.Sprintf("api error %d: %s (%d field errors)", e.Status, e.Message, len(e.Errors))
	}
	return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
}

// Unwrap maps well-known statuses to sentinel errors so callers can use
// errors.Is.
func (e *APIError) Unwrap() error {
	switch e.Status {
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusTooManyRequests:
		return ErrRateLimited
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return ErrBadRequest
	}
	return nil
}

// errorBody is the server's error payload, with or without the data envelope.
type errorBody struct {
	Message string              `json:"message"`
	Error   string              `json:"error"`
	Errors  map[string][]string `json:"errors"`
}
