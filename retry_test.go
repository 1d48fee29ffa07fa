// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package pageair_test

import (
	"context"
	"fmt"
	"time"

	. "gopkg.in/check.v1"

	"github.com/canonical/pageair"
	"github.com/canonical/pageair/store"
)

type RetrySuite struct{}

var _ = Suite(&RetrySuite{})

type retryResponse struct{}

func (retryResponse) EnsureSuccess() error      { return nil }
func (retryResponse) Items() []store.RawItem    { return nil }
func (retryResponse) ContinuationToken() string { return "" }
func (retryResponse) Status() int               { return store.StatusOK }
func (retryResponse) RequestCost() float64      { return 0 }
func (retryResponse) Elapsed() time.Duration    { return 0 }

func fastPolicy(maxRetries int, extra ...int) pageair.RetryPolicy {
	return pageair.RetryPolicy{
		MaxRetries: maxRetries,
		MinBackoff: time.Microsecond,
		MaxBackoff: time.Microsecond,
		Transient:  extra,
	}
}

func (s *RetrySuite) TestRetryBound(c *C) {
	strategy := pageair.NewExecutionStrategy(fastPolicy(3))
	attempts := 0
	_, err := strategy.Execute(context.Background(), func(ctx context.Context) (store.Response, error) {
		attempts++
		return nil, store.NewError(store.StatusTooManyRequests, "throttled")
	})
	c.Assert(err, ErrorMatches, "store error 429: throttled")
	// One initial attempt plus the configured retries.
	c.Assert(attempts, Equals, 4)
}

func (s *RetrySuite) TestEventualSuccess(c *C) {
	strategy := pageair.NewExecutionStrategy(fastPolicy(3))
	attempts := 0
	resp, err := strategy.Execute(context.Background(), func(ctx context.Context) (store.Response, error) {
		attempts++
		if attempts < 3 {
			return nil, store.NewError(store.StatusServiceUnavailable, "down")
		}
		return retryResponse{}, nil
	})
	c.Assert(err, IsNil)
	c.Assert(resp, Equals, retryResponse{})
	c.Assert(attempts, Equals, 3)
}

func (s *RetrySuite) TestNonTransientSurfacesImmediately(c *C) {
	strategy := pageair.NewExecutionStrategy(fastPolicy(3))
	attempts := 0
	_, err := strategy.Execute(context.Background(), func(ctx context.Context) (store.Response, error) {
		attempts++
		return nil, store.NewError(store.StatusNotFound, "gone")
	})
	c.Assert(err, ErrorMatches, "store error 404: gone")
	c.Assert(attempts, Equals, 1)
}

func (s *RetrySuite) TestErrorsWithoutStatusAreNotRetried(c *C) {
	strategy := pageair.NewExecutionStrategy(fastPolicy(3))
	attempts := 0
	_, err := strategy.Execute(context.Background(), func(ctx context.Context) (store.Response, error) {
		attempts++
		return nil, fmt.Errorf("connection reset")
	})
	c.Assert(err, ErrorMatches, "connection reset")
	c.Assert(attempts, Equals, 1)
}

func (s *RetrySuite) TestTransientSetIsAdditive(c *C) {
	tests := []struct {
		summary   string
		extra     []int
		code      int
		transient bool
	}{
		{"default timeout", nil, store.StatusRequestTimeout, true},
		{"default throttling", nil, store.StatusTooManyRequests, true},
		{"default retry-with", nil, store.StatusRetryWith, true},
		{"default unavailable", nil, store.StatusServiceUnavailable, true},
		{"not found never transient", nil, store.StatusNotFound, false},
		{"empty extras keep defaults", []int{}, store.StatusRetryWith, true},
		{"extras add to defaults", []int{store.StatusInternalError}, store.StatusInternalError, true},
		{"extras keep defaults", []int{store.StatusInternalError}, store.StatusTooManyRequests, true},
	}
	for _, t := range tests {
		c.Logf("test: %s", t.summary)
		strategy := pageair.NewExecutionStrategy(fastPolicy(1, t.extra...))
		err := store.NewError(t.code, "boom")
		c.Check(strategy.IsTransient(err), Equals, t.transient)
	}
}
