package tornapi

import (
	"errors"
	"fmt"
	"time"
)

// ErrNoCredential indicates no API key is configured. Callers soft-disable
// network features instead of failing loudly.
var ErrNoCredential = errors.New("tornapi: no api key configured")

// APIError is an error envelope the Torn API embeds inside HTTP 200 bodies.
type APIError struct {
	Code    int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("torn api error %d: %s", e.Code, e.Message)
}

// RateLimitedError reports that the API signalled a rate limit and the client
// entered a cool-down window.
type RateLimitedError struct {
	Until time.Time
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited, cooling down until %s", e.Until.UTC().Format(time.RFC3339))
}

// NetworkError wraps connectivity and timeout failures.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string { return "network error: " + e.Err.Error() }
func (e *NetworkError) Unwrap() error { return e.Err }
