// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package store

import (
	"context"
	"database/sql"
	"strconv"
	"time"

	"github.com/pkg/errors"
)

// defaultPageSize bounds a round-trip when the caller does not set one.
const defaultPageSize = 100

// SQLClient adapts a database/sql database to the Client contract. Paging is
// implemented with LIMIT/OFFSET; the continuation token encodes the next
// offset as a decimal string, opaque to the caller.
//
// The client runs on a single node, so the partition key in QueryOptions is
// not used for routing. The partition-key predicate is retained in the query
// text by the lowering passes, which keeps results correct here.
type SQLClient struct {
	db *sql.DB
}

// NewSQLClient wraps a database handle. The handle stays owned by the
// caller.
func NewSQLClient(db *sql.DB) *SQLClient {
	return &SQLClient{db: db}
}

// CreateQuery implements Client.
func (c *SQLClient) CreateQuery(ctx context.Context, container, queryText string, params []Parameter, continuationToken string, opts QueryOptions) (Response, error) {
	offset := 0
	if continuationToken != "" {
		var err error
		offset, err = strconv.Atoi(continuationToken)
		if err != nil {
			return nil, NewError(StatusBadRequest, "malformed continuation token %q", continuationToken)
		}
	}
	limit := opts.PageSize
	if limit <= 0 {
		limit = defaultPageSize
	}

	args := make([]any, 0, len(params)+2)
	for _, p := range params {
		args = append(args, sql.Named(p.Name, p.Value))
	}
	args = append(args,
		sql.Named("pageair_limit", limit),
		sql.Named("pageair_offset", offset),
	)

	start := time.Now()
	rows, err := c.db.QueryContext(ctx, queryText+" LIMIT @pageair_limit OFFSET @pageair_offset", args...)
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		return nil, errors.Wrap(err, "store query")
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, errors.Wrap(err, "store query columns")
	}

	var items []RawItem
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, errors.Wrap(err, "store query scan")
		}
		item := RawItem{}
		for i, col := range cols {
			v := vals[i]
			if b, ok := v.([]byte); ok {
				v = string(b)
			}
			item[col] = v
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		return nil, errors.Wrap(err, "store query rows")
	}

	token := ""
	if len(items) == limit {
		token = strconv.Itoa(offset + len(items))
	}
	return &sqlResponse{
		items:   items,
		token:   token,
		status:  StatusOK,
		cost:    float64(len(items)),
		elapsed: time.Since(start),
	}, nil
}

type sqlResponse struct {
	items   []RawItem
	token   string
	status  int
	cost    float64
	elapsed time.Duration
}

func (r *sqlResponse) EnsureSuccess() error {
	if r.status != StatusOK {
		return NewError(r.status, "query request failed")
	}
	return nil
}

func (r *sqlResponse) Items() []RawItem          { return r.items }
func (r *sqlResponse) ContinuationToken() string { return r.token }
func (r *sqlResponse) Status() int               { return r.status }
func (r *sqlResponse) RequestCost() float64      { return r.cost }
func (r *sqlResponse) Elapsed() time.Duration    { return r.elapsed }
