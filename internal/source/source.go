// Package source defines the paginated data provider contract and an
// in-memory implementation of it.
package source

import (
	"context"
	"errors"

	"feedscroll/internal/model"
)

// DefaultLimit is the page size used when a request does not set one.
const DefaultLimit = 10

var (
	// ErrInvalidCursor is returned when a cursor was not issued by the source.
	ErrInvalidCursor = errors.New("invalid cursor")
	// ErrSimulatedFailure is returned by the mock source's failure injection.
	ErrSimulatedFailure = errors.New("failed to fetch items")
)

// Source returns one page of items at a time.
type Source interface {
	Fetch(ctx context.Context, req model.PageRequest) (model.PageResponse, error)
}

// Func adapts a function to the Source interface.
type Func func(ctx context.Context, req model.PageRequest) (model.PageResponse, error)

// Fetch calls f.
func (f Func) Fetch(ctx context.Context, req model.PageRequest) (model.PageResponse, error) {
	return f(ctx, req)
}
