// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package remote

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// HTTPError is a non-2xx response from the remote store.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("server returned status %d: %s", e.StatusCode, e.Body)
}

// Retryable reports whether the status is worth retrying. Only 500/502/503
// qualify: other 5xx codes usually indicate a systemic bug on the server
// side and retrying would just mask it. Every 4xx is terminal.
func (e *HTTPError) Retryable() bool {
	switch e.StatusCode {
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable:
		return true
	default:
		return false
	}
}

// tokenError marks a token-acquisition failure. Retrying the request cannot
// fix a broken token provider, so these are terminal.
type tokenError struct {
	err error
}

func (e *tokenError) Error() string { return fmt.Sprintf("failed to get access token: %v", e.err) }
func (e *tokenError) Unwrap() error { return e.err }

// IsConflict reports whether err is an HTTP 409, the uniqueness-violation
// signal used during concurrent patient creation.
func IsConflict(err error) bool {
	var httpErr *HTTPError
	return errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusConflict
}

// RetryPolicy bounds the backoff schedule for remote calls.
type RetryPolicy struct {
	MaxAttempts int           // total attempts, including the first
	BaseDelay   time.Duration // delay before the second attempt; doubles after
}

// DefaultRetryPolicy gives delays of 2s, 4s, 8s between four attempts,
// bounding worst-case backoff to ~14s plus request latency.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 4, BaseDelay: 2 * time.Second}
}

func isRetryable(err error) bool {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Retryable()
	}
	var tokErr *tokenError
	if errors.As(err, &tokErr) {
		return false
	}
	// Context cancellation or deadline expiry must propagate, not retry.
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	// Anything else from the transport is a network-level failure.
	return true
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// executeWithRetry runs attempt under the policy, backing off exponentially
// between retryable failures and surfacing the last error as terminal once
// attempts are exhausted. The backoff wait yields to ctx.
func executeWithRetry(ctx context.Context, policy RetryPolicy, attempt func(ctx context.Context) error) error {
	delay := policy.BaseDelay
	var lastErr error
	for i := 0; i < policy.MaxAttempts; i++ {
		lastErr = attempt(ctx)
		if lastErr == nil {
			return nil
		}
		if !isRetryable(lastErr) {
			return lastErr
		}
		if i == policy.MaxAttempts-1 {
			break
		}
		if err := sleepWithContext(ctx, delay); err != nil {
			return err
		}
		delay *= 2
	}
	return lastErr
}
