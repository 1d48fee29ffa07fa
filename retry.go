// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package pageair

import (
	"context"
	"time"

	"github.com/grafana/dskit/backoff"

	"github.com/canonical/pageair/store"
)

// transientDefaults are the store status codes retried without further
// configuration: timeout, throttling, retry-with and unavailability.
var transientDefaults = []int{
	store.StatusRequestTimeout,
	store.StatusTooManyRequests,
	store.StatusRetryWith,
	store.StatusServiceUnavailable,
}

// RetryPolicy configures an [ExecutionStrategy]. The zero value gives sane
// defaults.
type RetryPolicy struct {
	// MaxRetries bounds the retries of one round trip: an operation runs at
	// most MaxRetries+1 times. Zero means no retries.
	MaxRetries int
	// MinBackoff and MaxBackoff bound the wait between attempts. Zero picks
	// 100ms and 2s respectively.
	MinBackoff time.Duration
	MaxBackoff time.Duration
	// Transient adds status codes to the default transient set. The default
	// set always applies; nil and empty both mean defaults only.
	Transient []int
}

// ExecutionStrategy retries store round trips whose failure is transient,
// waiting an increasing bounded backoff between attempts. Errors that carry
// no store status code, or a code outside the transient set, surface
// unchanged and immediately, as does the last error once the retry bound is
// reached.
type ExecutionStrategy struct {
	cfg       backoff.Config
	transient map[int]bool
}

// NewExecutionStrategy builds a strategy from a policy.
func NewExecutionStrategy(policy RetryPolicy) *ExecutionStrategy {
	if policy.MinBackoff <= 0 {
		policy.MinBackoff = 100 * time.Millisecond
	}
	if policy.MaxBackoff <= 0 {
		policy.MaxBackoff = 2 * time.Second
	}
	transient := make(map[int]bool, len(transientDefaults)+len(policy.Transient))
	for _, code := range transientDefaults {
		transient[code] = true
	}
	for _, code := range policy.Transient {
		transient[code] = true
	}
	return &ExecutionStrategy{
		cfg: backoff.Config{
			MinBackoff: policy.MinBackoff,
			MaxBackoff: policy.MaxBackoff,
			// The backoff counts attempts, the policy counts retries.
			MaxRetries: policy.MaxRetries + 1,
		},
		transient: transient,
	}
}

// IsTransient reports whether the strategy would retry an error.
func (s *ExecutionStrategy) IsTransient(err error) bool {
	code, ok := store.Code(err)
	return ok && s.transient[code]
}

// Execute runs op, retrying transient failures within the policy bounds.
func (s *ExecutionStrategy) Execute(ctx context.Context, op func(context.Context) (store.Response, error)) (store.Response, error) {
	var lastErr error
	b := backoff.New(ctx, s.cfg)
	for b.Ongoing() {
		resp, err := op(ctx)
		if err == nil {
			return resp, nil
		}
		if !s.IsTransient(err) {
			return nil, err
		}
		lastErr = err
		b.Wait()
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, b.Err()
}
