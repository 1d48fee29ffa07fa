// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

// Package exec drives the paginated execution of a compiled plan against a
// store client. The enumerator is a small state machine advanced one page
// at a time; all parameter binding and text generation is deferred to the
// first advance so that building an enumerator never touches the store.
package exec

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync/atomic"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/canonical/pageair/internal/expr"
	"github.com/canonical/pageair/internal/gen"
	"github.com/canonical/pageair/internal/plan"
	"github.com/canonical/pageair/internal/shape"
	"github.com/canonical/pageair/store"
)

// Reserved parameter names controlling paging rather than binding into the
// query text.
const (
	ParamPageSize          = "pageSize"
	ParamContinuationToken = "continuationToken"
	ParamResponseSizeLimit = "responseSizeLimit"
)

// Misuse faults. These indicate a bug in the calling code and are never
// retried.
var (
	ErrDisposed      = errors.New("enumerator disposed")
	ErrConcurrentUse = errors.New("enumerator advanced concurrently")
)

// State enumerates the lifecycle of an enumerator.
type State int32

const (
	StateCreated State = iota
	StateExecuting
	StateExhausted
	StateFaulted
	StateDisposed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateExecuting:
		return "executing"
	case StateExhausted:
		return "exhausted"
	case StateFaulted:
		return "faulted"
	case StateDisposed:
		return "disposed"
	}
	return "unknown"
}

// Strategy wraps every store round trip, typically with retries for
// transient failures. A nil strategy executes the operation once.
type Strategy interface {
	Execute(ctx context.Context, op func(context.Context) (store.Response, error)) (store.Response, error)
}

// Page is the result of one advance: the shaped items fetched, the token to
// resume from, and the accumulated cost of the round trips that produced it.
type Page struct {
	// Items holds one entry per result item; each entry has one part per
	// output argument type, in registration order.
	Items [][]any
	// Continuation is the token resuming after this page, empty when the
	// result set is exhausted.
	Continuation string
	// RequestCost is the summed cost the store charged for the round trips.
	RequestCost float64
	// Elapsed is the wall time of the advance.
	Elapsed time.Duration
}

// Request carries everything one query execution session needs.
type Request struct {
	Client    store.Client
	Logger    log.Logger
	Container string
	Plan      *plan.Select
	// Params is the caller's parameter set, including any reserved paging
	// parameters.
	Params  map[string]any
	Shaper  *shape.Shaper
	Tracker *shape.Tracker
	// PartitionKey is the externally supplied partition key, nil when the
	// caller did not scope the query.
	PartitionKey any
	Strategy     Strategy
	// NoGuard disables the concurrent-advance guard.
	NoGuard bool
}

// Enumerator advances through the pages of one query execution. It is a
// single-consumer object: concurrent advances are a misuse fault, detected
// when the guard is enabled.
type Enumerator struct {
	req   Request
	state int32 // read and written atomically, Dispose races advances
	busy  int32

	// Bound on the first advance.
	text      string
	params    []store.Parameter
	opts      store.QueryOptions
	pageSize  int
	token     string
	fault     error
	guardFunc func() bool
	release   func()
}

// New builds an enumerator in the created state. No binding or store work
// happens until the first advance.
func New(req Request) *Enumerator {
	if req.Logger == nil {
		req.Logger = log.NewNopLogger()
	}
	e := &Enumerator{req: req}
	e.guardFunc, e.release = e.makeGuard()
	return e
}

// State reports the current lifecycle state.
func (e *Enumerator) State() State {
	return State(atomic.LoadInt32(&e.state))
}

func (e *Enumerator) setState(s State) {
	atomic.StoreInt32(&e.state, int32(s))
}

// NextPage advances the enumerator by one page. It returns (nil, nil) once
// the result set is exhausted. The first call binds parameters and renders
// the query text; every call issues round trips until the page-size budget
// is met or no continuation token remains.
func (e *Enumerator) NextPage(ctx context.Context) (*Page, error) {
	switch e.State() {
	case StateDisposed:
		return nil, fmt.Errorf("cannot advance query: %w", ErrDisposed)
	case StateFaulted:
		return nil, e.fault
	case StateExhausted:
		return nil, nil
	}
	if !e.guardFunc() {
		return nil, fmt.Errorf("cannot advance query: %w", ErrConcurrentUse)
	}
	defer e.release()

	if e.State() == StateCreated {
		if err := e.bind(); err != nil {
			return nil, e.toFault(err)
		}
		e.setState(StateExecuting)
	}

	start := time.Now()
	page := &Page{}
	for {
		token := e.token
		level.Debug(e.req.Logger).Log("msg", "executing query", "container", e.req.Container, "token", token)
		resp, err := e.execute(ctx, token)
		if err != nil {
			if isCancellation(ctx, err) {
				level.Debug(e.req.Logger).Log("msg", "query canceled", "container", e.req.Container)
			} else {
				level.Error(e.req.Logger).Log("msg", "query iteration failed", "container", e.req.Container, "err", err)
			}
			return nil, e.toFault(err)
		}
		for _, item := range resp.Items() {
			parts, err := e.req.Shaper.Shape(e.req.Tracker, item)
			if err != nil {
				return nil, e.toFault(err)
			}
			page.Items = append(page.Items, parts)
		}
		page.RequestCost += resp.RequestCost()
		e.token = resp.ContinuationToken()
		if e.token == "" {
			e.setState(StateExhausted)
			break
		}
		if e.pageSize > 0 && len(page.Items) >= e.pageSize {
			break
		}
	}
	page.Continuation = e.token
	page.Elapsed = time.Since(start)
	level.Debug(e.req.Logger).Log("msg", "executed page", "container", e.req.Container,
		"items", len(page.Items), "cost", page.RequestCost, "elapsed", page.Elapsed)
	return page, nil
}

// Dispose releases the enumerator. It is idempotent, reachable from every
// state, and makes any further advance fault.
func (e *Enumerator) Dispose() {
	e.setState(StateDisposed)
}

// bind resolves paging controls, expands collection parameters, renders the
// query text and builds the store options. Run once, on the first advance.
func (e *Enumerator) bind() error {
	params := make(map[string]any, len(e.req.Params))
	for k, v := range e.req.Params {
		params[k] = v
	}
	var err error
	if e.pageSize, err = popInt(params, ParamPageSize); err != nil {
		return err
	}
	if tok, ok := params[ParamContinuationToken]; ok {
		delete(params, ParamContinuationToken)
		s, ok := tok.(string)
		if !ok {
			return fmt.Errorf("parameter %q must be a string, got %T", ParamContinuationToken, tok)
		}
		e.token = s
	}
	sizeLimit, err := popInt(params, ParamResponseSizeLimit)
	if err != nil {
		return err
	}

	node, derived, err := expr.ExpandParams(e.req.Plan, params)
	if err != nil {
		return err
	}
	sel, ok := node.(*plan.Select)
	if !ok {
		return fmt.Errorf("internal error: expansion produced %T, want select", node)
	}
	for name, value := range derived {
		params[name] = value
	}

	partitionKey := e.req.PartitionKey
	if k := e.req.Plan.PartitionKey; k != nil {
		extracted, err := expr.ResolvePartitionValue(k, params)
		if err != nil {
			return err
		}
		if partitionKey != nil && !reflect.DeepEqual(partitionKey, extracted) {
			return fmt.Errorf("partition key mismatch: query is scoped to %v but %v was supplied", extracted, partitionKey)
		}
		partitionKey = extracted
	}

	q, err := gen.Render(sel)
	if err != nil {
		return err
	}
	e.text = q.Text
	for _, name := range q.Params {
		value, ok := params[name]
		if !ok {
			return fmt.Errorf("parameter %q not supplied", name)
		}
		e.params = append(e.params, store.Parameter{Name: name, Value: value})
	}
	e.opts = store.QueryOptions{
		PageSize:          e.pageSize,
		ResponseSizeLimit: sizeLimit,
		PartitionKey:      partitionKey,
	}
	return nil
}

// execute runs one round trip through the strategy, if any.
func (e *Enumerator) execute(ctx context.Context, token string) (store.Response, error) {
	op := func(ctx context.Context) (store.Response, error) {
		resp, err := e.req.Client.CreateQuery(ctx, e.req.Container, e.text, e.params, token, e.opts)
		if err != nil {
			return nil, err
		}
		if err := resp.EnsureSuccess(); err != nil {
			return nil, err
		}
		return resp, nil
	}
	if e.req.Strategy == nil {
		return op(ctx)
	}
	return e.req.Strategy.Execute(ctx, op)
}

// toFault records err, moves to the faulted state and returns it.
func (e *Enumerator) toFault(err error) error {
	e.fault = err
	e.setState(StateFaulted)
	return err
}

func (e *Enumerator) makeGuard() (func() bool, func()) {
	if e.req.NoGuard {
		return func() bool { return true }, func() {}
	}
	return func() bool {
			return atomic.CompareAndSwapInt32(&e.busy, 0, 1)
		}, func() {
			atomic.StoreInt32(&e.busy, 0)
		}
}

// isCancellation classifies an error as caller cancellation rather than a
// store failure.
func isCancellation(ctx context.Context, err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil
}

// popInt removes a reserved integer parameter from the set and returns its
// value, zero when absent.
func popInt(params map[string]any, name string) (int, error) {
	v, ok := params[name]
	if !ok {
		return 0, nil
	}
	delete(params, name)
	switch v := v.(type) {
	case int:
		return v, nil
	case int32:
		return int(v), nil
	case int64:
		return int(v), nil
	}
	return 0, fmt.Errorf("parameter %q must be an integer, got %T", name, v)
}
