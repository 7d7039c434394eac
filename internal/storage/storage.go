// Package storage defines the persistence interface and its implementations.
package storage

import (
	"context"
	"errors"
	"time"

	"feedscroll/internal/model"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// Storage is the interface for all persistence operations. Its Fetch
// method satisfies source.Source, so a catalogue can back a feed directly.
type Storage interface {
	UpsertItems(ctx context.Context, items []model.Item) (int, error)
	GetItem(ctx context.Context, id string) (*model.Item, error)
	CountItems(ctx context.Context) (int, error)
	DeleteItem(ctx context.Context, id string) error
	Fetch(ctx context.Context, req model.PageRequest) (model.PageResponse, error)

	EnsureFeed(ctx context.Context, feed *model.Feed) error
	ListFeeds(ctx context.Context) ([]model.Feed, error)
	ListDueFeeds(ctx context.Context, now time.Time) ([]model.Feed, error)
	UpdateFeed(ctx context.Context, feed *model.Feed) error

	Close() error
}
