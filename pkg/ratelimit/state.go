// Package ratelimit limits how often one client may call an endpoint.
// Counters live in Redis so every server instance shares the same window.
package ratelimit

import (
	"fmt"
	"time"
)

// RedisKeyPrefix namespaces the window counters.
const RedisKeyPrefix = "postfeed:ratelimit"

// Defaults for the authentication endpoints.
const (
	// DefaultLimit is the number of requests allowed per window.
	DefaultLimit = 10

	// DefaultWindow is the length of one counting window.
	DefaultWindow = time.Minute
)

// WindowState is the counter of one client in the current fixed window.
type WindowState struct {
	// Count is the number of requests seen in the window, this one included.
	Count int `json:"count"`

	// Limit is the number of requests allowed in the window.
	Limit int `json:"limit"`

	// ResetAt is when the window ends and the counter starts over.
	ResetAt time.Time `json:"reset_at"`
}

// Exceeded returns true if the request that produced this state must be rejected.
func (s *WindowState) Exceeded() bool {
	return s.Count > s.Limit
}

// Remaining returns the number of requests still allowed in the window.
func (s *WindowState) Remaining() int {
	if s.Count >= s.Limit {
		return 0
	}
	return s.Limit - s.Count
}

// TimeUntilReset returns the duration until the window resets.
// Returns 0 if the reset time has already passed.
func (s *WindowState) TimeUntilReset() time.Duration {
	duration := time.Until(s.ResetAt)
	if duration < 0 {
		return 0
	}
	return duration
}

// windowKey returns the counter key of scope/client in the window holding now.
func windowKey(scope, client string, window time.Duration, now time.Time) (string, time.Time) {
	index := now.UnixNano() / int64(window)
	resetAt := time.Unix(0, (index+1)*int64(window))
	return fmt.Sprintf("%s:%s:%s:%d", RedisKeyPrefix, scope, client, index), resetAt
}
