// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

// Package store defines the contract between the query execution core and a
// physical store driver. The core hands a driver rendered query text, named
// parameters and paging options; the driver answers with pages of raw items
// and an opaque continuation token that the core passes back unmodified to
// resume the query.
package store

import (
	"context"
	"time"
)

// RawItem is one row or document as returned by a driver, keyed by column or
// field name.
type RawItem map[string]any

// Parameter is a named query parameter.
type Parameter struct {
	Name  string
	Value any
}

// QueryOptions carries the per-request controls a driver honours.
type QueryOptions struct {
	// PageSize is the maximum number of items a single round-trip may
	// return. Zero or negative means the driver default.
	PageSize int
	// ResponseSizeLimit caps the byte size of a response, zero for no cap.
	// Drivers that cannot enforce a byte cap may ignore it.
	ResponseSizeLimit int
	// PartitionKey routes the query to a single partition. Nil runs the
	// query across all partitions.
	PartitionKey any
}

// Response is the result of one physical round-trip.
type Response interface {
	// EnsureSuccess returns an *Error when the response carries a
	// non-success status, nil otherwise.
	EnsureSuccess() error
	// Items returns the raw items of this page.
	Items() []RawItem
	// ContinuationToken returns the opaque token to resume the query with,
	// empty at end of stream. The core never parses it.
	ContinuationToken() string
	// Status returns the store status code of the response.
	Status() int
	// RequestCost returns the cost the store charged for the request, in
	// store-specific units.
	RequestCost() float64
	// Elapsed returns the round-trip time of the request.
	Elapsed() time.Duration
}

// Client issues physical queries against a store. Implementations must be
// safe for concurrent use: a single client is shared by every enumerator of
// a session.
type Client interface {
	// CreateQuery runs one round-trip of the query against the container,
	// resuming from continuationToken when it is non-empty.
	CreateQuery(ctx context.Context, container, queryText string, params []Parameter, continuationToken string, opts QueryOptions) (Response, error)
}
