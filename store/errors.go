// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package store

import (
	"errors"
	"fmt"
)

// Store status codes. The numbering follows the HTTP status codes most
// document stores surface, so classification sets read naturally.
const (
	StatusOK                 = 200
	StatusBadRequest         = 400
	StatusNotFound           = 404
	StatusRequestTimeout     = 408
	StatusGone               = 410
	StatusTooManyRequests    = 429
	StatusRetryWith          = 449
	StatusInternalError      = 500
	StatusServiceUnavailable = 503
)

// Error is a store failure carrying the status code the driver observed.
// Retry policies classify transient failures by this code.
type Error struct {
	Code    int
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("store error %d: %s", e.Code, e.Message)
}

// NewError builds a store error with a formatted message.
func NewError(code int, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Code extracts the status code from an error chain. It returns false when
// the chain contains no store error.
func Code(err error) (int, bool) {
	var se *Error
	if errors.As(err, &se) {
		return se.Code, true
	}
	return 0, false
}
