// Package models holds the admission control value types shared by the
// window stores, the service, and the middleware.
package models

import "time"

// Result reports one admission decision together with the caller's
// remaining budget for the current window.
type Result struct {
	Allowed    bool      `json:"allowed"`
	Limit      int       `json:"limit"`
	Used       int       `json:"used"`
	Remaining  int       `json:"remaining"`
	ResetAt    time.Time `json:"resetAt"`
	RetryAfter int       `json:"retryAfter,omitempty"` // seconds, only set when denied
}

// NewResult derives the budget fields from a window observation. Used keeps
// counting past the limit so operators can see overshoot, Remaining never
// goes negative.
func NewResult(count, limit int, resetAt time.Time, now time.Time) *Result {
	allowed := count <= limit
	remaining := max(limit-count, 0)
	retryAfter := 0
	if !allowed {
		retryAfter = int(resetAt.Sub(now).Seconds())
		if retryAfter < 0 {
			retryAfter = 0
		}
	}
	return &Result{
		Allowed:    allowed,
		Limit:      limit,
		Used:       count,
		Remaining:  remaining,
		ResetAt:    resetAt,
		RetryAfter: retryAfter,
	}
}
