// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package pageair

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/go-kit/log"

	"github.com/canonical/pageair/internal/exec"
	"github.com/canonical/pageair/internal/shape"
	"github.com/canonical/pageair/store"
)

// M is a convenience type for passing query parameters, and can also be used
// as a type sample to decode result columns referenced by their name. M is
// not a special type, any named map type with string keys can be used.
//
// Example:
//
//	stmt := pageair.MustPrepare(model, q, Person{})
//	iter := db.Query(ctx, stmt, pageair.M{"name": "Fred"}).Iter()
type M map[string]any

// ErrNoRows is returned by [Query.Get] and [Query.GetAll] when the query
// yields no results.
var ErrNoRows = errors.New("no results")

// Reserved parameter names controlling paging. They are consumed by the
// enumerator and never bound into the query text.
const (
	ParamPageSize          = exec.ParamPageSize
	ParamContinuationToken = exec.ParamContinuationToken
	ParamResponseSizeLimit = exec.ParamResponseSizeLimit
)

// Misuse faults raised by the paginated enumerator.
var (
	ErrDisposed      = exec.ErrDisposed
	ErrConcurrentUse = exec.ErrConcurrentUse
)

// Strategy wraps every store round trip, typically with retries for
// transient failures. [NewExecutionStrategy] builds the standard one.
type Strategy interface {
	Execute(ctx context.Context, op func(context.Context) (store.Response, error)) (store.Response, error)
}

// Store runs prepared statements against a store client. A Store tracks the
// entities it materializes in an identity map shared by all its queries;
// statements prepared with [Statement.NoTracking] bypass it.
type Store struct {
	client   store.Client
	logger   log.Logger
	strategy Strategy
	tracker  *shape.Tracker
}

// StoreOption configures a [Store].
type StoreOption func(*Store)

// WithLogger routes diagnostics events to the given logger.
func WithLogger(logger log.Logger) StoreOption {
	return func(st *Store) {
		st.logger = logger
	}
}

// WithStrategy wraps every store round trip with the given strategy.
func WithStrategy(strategy Strategy) StoreOption {
	return func(st *Store) {
		st.strategy = strategy
	}
}

// NewStore creates a [Store] on top of a store client.
func NewStore(client store.Client, opts ...StoreOption) *Store {
	if client == nil {
		return nil
	}
	st := &Store{
		client:  client,
		logger:  log.NewNopLogger(),
		tracker: shape.NewTracker(),
	}
	for _, opt := range opts {
		opt(st)
	}
	return st
}

// Client returns the underlying store client.
func (st *Store) Client() store.Client {
	return st.client
}

// ClearTracked drops every tracked entity instance, so subsequent queries
// materialize fresh ones.
func (st *Store) ClearTracked() {
	st.tracker.Clear()
}

// Query represents a query on a store. It is designed to be run once.
type Query struct {
	st           *Store
	stmt         *Statement
	ctx          context.Context
	params       M
	partitionKey any
	err          error
}

// Query builds a new query from a context, a [Statement] and the query
// parameters. The query is run on the store when one of [Query.Iter],
// [Query.Pages], [Query.Get] or [Query.GetAll] is executed.
//
// The reserved parameter names [ParamPageSize], [ParamContinuationToken] and
// [ParamResponseSizeLimit] control paging instead of binding into the query.
func (st *Store) Query(ctx context.Context, s *Statement, params M) *Query {
	if ctx == nil {
		ctx = context.Background()
	}
	if s == nil {
		return &Query{ctx: ctx, err: fmt.Errorf("cannot run query: nil statement")}
	}
	return &Query{st: st, stmt: s, ctx: ctx, params: params}
}

// WithPartitionKey scopes the query to a single partition. When the prepared
// plan already pins a partition key, a conflicting value here fails the
// query before any request is made.
func (q *Query) WithPartitionKey(key any) *Query {
	q.partitionKey = key
	return q
}

func (q *Query) enumerator() *exec.Enumerator {
	params := make(map[string]any, len(q.params))
	for k, v := range q.params {
		params[k] = v
	}
	return exec.New(exec.Request{
		Client:       q.st.client,
		Logger:       q.st.logger,
		Container:    q.stmt.container,
		Plan:         q.stmt.plan,
		Params:       params,
		Shaper:       q.stmt.shaper,
		Tracker:      q.st.tracker,
		PartitionKey: q.partitionKey,
		Strategy:     q.st.strategy,
	})
}

// Outcome holds metadata about executed queries, and can be provided as the
// first output argument to any of the Get methods to populate it with
// information about the query execution.
type Outcome struct {
	cost    float64
	elapsed time.Duration
	pages   int
}

// RequestCost returns the summed cost the store charged for the round trips
// run so far, in store-specific units.
func (o *Outcome) RequestCost() float64 {
	return o.cost
}

// Elapsed returns the total wall time spent fetching pages so far.
func (o *Outcome) Elapsed() time.Duration {
	return o.elapsed
}

// Pages returns the number of pages fetched so far.
func (o *Outcome) Pages() int {
	return o.pages
}

// Page is one page of results: the continuation token to resume after it,
// and the shaped items, one row of parts per result item.
type Page struct {
	// Items holds one entry per result item; each entry has one part per
	// type sample of the statement, in sample order. Parts are pointers for
	// struct samples and maps for map samples.
	Items [][]any
	// Continuation resumes the query after this page when passed as the
	// [ParamContinuationToken] parameter of a later query. Empty at end of
	// stream.
	Continuation string
	// RequestCost is the summed cost of the round trips behind this page.
	RequestCost float64
}

// GetAll decodes every item of the page into the provided slices, one slice
// pointer per type sample of the statement.
func (pg *Page) GetAll(sliceArgs ...any) error {
	return decodeAll(pg.Items, sliceArgs)
}

// Pages advances through the results one page at a time. The page size is
// set with the [ParamPageSize] parameter; without it a single advance drains
// the whole result set. [Pages.Close] must be run once iteration is
// finished.
type Pages struct {
	e       *exec.Enumerator
	ctx     context.Context
	outcome Outcome
	err     error
}

// Pages returns a [Pages] enumerator over the results of the query.
func (q *Query) Pages() *Pages {
	if q.err != nil {
		return &Pages{err: q.err}
	}
	return &Pages{e: q.enumerator(), ctx: q.ctx}
}

// NextPage fetches the next page of results. It returns (nil, nil) once the
// result set is exhausted. Advancing a disposed enumerator, or advancing
// concurrently from two goroutines, is a misuse fault.
func (p *Pages) NextPage() (*Page, error) {
	if p.err != nil {
		return nil, p.err
	}
	page, err := p.e.NextPage(p.ctx)
	if err != nil {
		p.err = err
		return nil, err
	}
	if page == nil {
		return nil, nil
	}
	p.outcome.cost += page.RequestCost
	p.outcome.elapsed += page.Elapsed
	p.outcome.pages++
	return &Page{
		Items:        page.Items,
		Continuation: page.Continuation,
		RequestCost:  page.RequestCost,
	}, nil
}

// Get fills outcome with information about the execution so far.
func (p *Pages) Get(outcome *Outcome) error {
	if outcome == nil {
		return fmt.Errorf("cannot get outcome: nil target")
	}
	*outcome = p.outcome
	return nil
}

// Close disposes the enumerator and returns any error encountered during
// iteration. Close can be called multiple times and the same error will be
// returned.
func (p *Pages) Close() error {
	if p.e != nil {
		p.e.Dispose()
	}
	return p.err
}

// Iterator is used to iterate over the results of the query item by item.
type Iterator struct {
	pages   *Pages
	rows    [][]any
	pos     int
	started bool
	done    bool
	err     error
}

// Iter returns an [Iterator] to iterate through the results one item at a
// time. [Iterator.Close] must be run once iteration is finished.
func (q *Query) Iter() *Iterator {
	return &Iterator{pages: q.Pages(), pos: -1}
}

// Next prepares the next result for [Iterator.Get]. If an error occurs
// during iteration it will be returned with [Iterator.Close].
func (iter *Iterator) Next() bool {
	iter.started = true
	if iter.err != nil || iter.done {
		return false
	}
	iter.pos++
	for iter.rows == nil || iter.pos >= len(iter.rows) {
		page, err := iter.pages.NextPage()
		if err != nil {
			iter.err = err
			return false
		}
		if page == nil {
			iter.done = true
			return false
		}
		iter.rows = page.Items
		iter.pos = 0
	}
	return true
}

// Get decodes the result from the previous [Iterator.Next] call into the
// provided output arguments: pointers to structs, or maps, matching the
// statement's type samples.
//
// Before the first call of [Iterator.Next] a pointer to an empty [Outcome]
// struct may be passed to Get as the only argument to fill it with
// information about query execution.
func (iter *Iterator) Get(outputArgs ...any) (err error) {
	if iter.err != nil {
		return iter.err
	}
	defer func() {
		if err != nil {
			err = fmt.Errorf("cannot get result: %s", err)
		}
	}()

	if !iter.started {
		if len(outputArgs) == 1 {
			if oc, ok := outputArgs[0].(*Outcome); ok {
				return iter.pages.Get(oc)
			}
		}
		return fmt.Errorf("cannot call Get before Next unless getting outcome")
	}
	if iter.done || iter.rows == nil {
		return fmt.Errorf("iteration ended")
	}
	return decodeParts(iter.rows[iter.pos], outputArgs)
}

// Close finishes the iteration and returns any errors encountered. Close can
// be called multiple times on the [Iterator] and the same error will be
// returned.
func (iter *Iterator) Close() error {
	iter.started = true
	iter.done = true
	if cerr := iter.pages.Close(); iter.err == nil {
		iter.err = cerr
	}
	return iter.err
}

// Get runs the query and decodes the first result into the provided output
// arguments. It returns [ErrNoRows] if no results were found.
//
// A pointer to an empty [Outcome] struct may be provided as the first output
// variable to fill it with information about query execution.
func (q *Query) Get(outputArgs ...any) error {
	if q.err != nil {
		return q.err
	}
	var outcome *Outcome
	if len(outputArgs) > 0 {
		if oc, ok := outputArgs[0].(*Outcome); ok {
			outcome = oc
			outputArgs = outputArgs[1:]
		}
	}

	var err error
	iter := q.Iter()
	if !iter.Next() {
		err = iter.Close()
		if err == nil {
			err = ErrNoRows
		}
	} else {
		err = iter.Get(outputArgs...)
		if cerr := iter.Close(); err == nil {
			err = cerr
		}
	}
	if outcome != nil {
		iter.pages.Get(outcome)
	}
	return err
}

// GetAll runs the query to completion and decodes all results into the
// provided slices. sliceArgs must contain pointers to slices of each of the
// statement's type samples. A pointer to an empty [Outcome] struct may be
// provided as the first output variable to get information about query
// execution.
//
// [ErrNoRows] will be returned if no results are found.
func (q *Query) GetAll(sliceArgs ...any) error {
	if q.err != nil {
		return q.err
	}
	var outcome *Outcome
	if len(sliceArgs) > 0 {
		if oc, ok := sliceArgs[0].(*Outcome); ok {
			outcome = oc
			sliceArgs = sliceArgs[1:]
		}
	}

	var items [][]any
	iter := q.Iter()
	for iter.Next() {
		items = append(items, iter.rows[iter.pos])
	}
	err := iter.Close()
	if outcome != nil {
		iter.pages.Get(outcome)
	}
	if err != nil {
		return err
	}
	if len(items) == 0 {
		return ErrNoRows
	}
	return decodeAll(items, sliceArgs)
}

// decodeAll appends one decoded element per item to each of the provided
// slice pointers.
func decodeAll(items [][]any, sliceArgs []any) error {
	var slicePtrVals = []reflect.Value{}
	var sliceVals = []reflect.Value{}
	for _, ptr := range sliceArgs {
		ptrVal := reflect.ValueOf(ptr)
		if ptrVal.Kind() != reflect.Pointer {
			return fmt.Errorf("need pointer to slice, got %s", ptrVal.Kind())
		}
		if ptrVal.IsNil() {
			return fmt.Errorf("need pointer to slice, got nil")
		}
		slicePtrVals = append(slicePtrVals, ptrVal)
		sliceVal := ptrVal.Elem()
		if sliceVal.Kind() != reflect.Slice {
			return fmt.Errorf("need pointer to slice, got pointer to %s", sliceVal.Kind())
		}
		sliceVals = append(sliceVals, sliceVal)
	}

	for _, parts := range items {
		for i, sliceVal := range sliceVals {
			elemType := sliceVal.Type().Elem()
			var outputArg reflect.Value
			switch elemType.Kind() {
			case reflect.Pointer:
				if elemType.Elem().Kind() != reflect.Struct {
					return fmt.Errorf("need slice of structs/maps, got slice of pointer to %s", elemType.Elem().Kind())
				}
				outputArg = reflect.New(elemType.Elem())
			case reflect.Struct:
				outputArg = reflect.New(elemType)
			case reflect.Map:
				outputArg = reflect.MakeMap(elemType)
			default:
				return fmt.Errorf("need slice of structs/maps, got slice of %s", elemType.Kind())
			}
			if err := decodeParts(parts, []any{outputArg.Interface()}); err != nil {
				return err
			}
			switch elemType.Kind() {
			case reflect.Pointer, reflect.Map:
				sliceVals[i] = reflect.Append(sliceVals[i], outputArg)
			case reflect.Struct:
				sliceVals[i] = reflect.Append(sliceVals[i], outputArg.Elem())
			}
		}
	}

	for i, ptrVal := range slicePtrVals {
		ptrVal.Elem().Set(sliceVals[i])
	}
	return nil
}

// decodeParts copies the shaped parts of one item into the caller's output
// arguments, matched by type.
func decodeParts(parts []any, outputArgs []any) error {
	for _, arg := range outputArgs {
		if arg == nil {
			return fmt.Errorf("need map or pointer to struct, got nil")
		}
		argVal := reflect.ValueOf(arg)
		switch argVal.Kind() {
		case reflect.Map:
			part, err := findPart(parts, argVal.Type())
			if err != nil {
				return err
			}
			partVal := reflect.ValueOf(part)
			for _, k := range partVal.MapKeys() {
				argVal.SetMapIndex(k, partVal.MapIndex(k))
			}
		case reflect.Pointer:
			if argVal.IsNil() {
				return fmt.Errorf("need map or pointer to struct, got nil pointer")
			}
			if argVal.Elem().Kind() != reflect.Struct {
				return fmt.Errorf("need map or pointer to struct, got pointer to %s", argVal.Elem().Kind())
			}
			part, err := findPart(parts, argVal.Type())
			if err != nil {
				return err
			}
			argVal.Elem().Set(reflect.ValueOf(part).Elem())
		default:
			return fmt.Errorf("need map or pointer to struct, got %s", argVal.Kind())
		}
	}
	return nil
}

// findPart returns the shaped part with the given type.
func findPart(parts []any, t reflect.Type) (any, error) {
	for _, part := range parts {
		if reflect.TypeOf(part) == t {
			return part, nil
		}
	}
	name := t.Name()
	if t.Kind() == reflect.Pointer {
		name = t.Elem().Name()
	}
	return nil, fmt.Errorf("type %q not materialized by the query", name)
}
