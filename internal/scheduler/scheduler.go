// Package scheduler periodically imports RSS feeds into the catalogue.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"

	"feedscroll/internal/fetcher"
	"feedscroll/internal/model"
)

// Store is the part of the catalogue the scheduler writes to.
type Store interface {
	EnsureFeed(ctx context.Context, feed *model.Feed) error
	ListDueFeeds(ctx context.Context, now time.Time) ([]model.Feed, error)
	UpdateFeed(ctx context.Context, feed *model.Feed) error
	UpsertItems(ctx context.Context, items []model.Item) (int, error)
}

// Scheduler periodically checks RSS feeds and imports new entries.
type Scheduler struct {
	store   Store
	fetcher *fetcher.Fetcher
	clock   clockwork.Clock
	log     *slog.Logger
	tick    time.Duration
}

// New creates a Scheduler with the default HTTP client.
func New(store Store, log *slog.Logger) *Scheduler {
	return NewWithFetcher(store, fetcher.New(&http.Client{Timeout: 30 * time.Second}), log)
}

// NewWithFetcher creates a Scheduler with a custom fetcher (useful for testing).
func NewWithFetcher(store Store, f *fetcher.Fetcher, log *slog.Logger) *Scheduler {
	return &Scheduler{
		store:   store,
		fetcher: f,
		clock:   clockwork.NewRealClock(),
		log:     log,
		tick:    1 * time.Minute,
	}
}

// SetTickInterval overrides the default 1-minute check interval.
func (s *Scheduler) SetTickInterval(d time.Duration) {
	s.tick = d
}

// SetClock replaces the wall clock.
func (s *Scheduler) SetClock(c clockwork.Clock) {
	s.clock = c
}

// Register makes sure every URL is stored as an active feed checked every
// interval. Feeds that are already stored keep their settings.
func (s *Scheduler) Register(ctx context.Context, urls []string, interval time.Duration) error {
	minutes := max(int(interval/time.Minute), 1)
	for _, u := range urls {
		feed := model.Feed{Name: u, URL: u, IntervalMinutes: minutes}
		if err := s.store.EnsureFeed(ctx, &feed); err != nil {
			return fmt.Errorf("register feed %s: %w", u, err)
		}
		s.log.Debug("feed registered", "feed_id", feed.ID, "url", u)
	}
	return nil
}

// Run starts the scheduler loop, blocking until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	s.ImportDue(ctx)

	ticker := s.clock.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			s.ImportDue(ctx)
		}
	}
}

// ImportDue imports every feed that is due and returns the number of new
// items added to the catalogue.
func (s *Scheduler) ImportDue(ctx context.Context) int {
	feeds, err := s.store.ListDueFeeds(ctx, s.clock.Now())
	if err != nil {
		s.log.Error("list due feeds", "error", err)
		return 0
	}

	added := 0
	for _, feed := range feeds {
		if ctx.Err() != nil {
			break
		}
		added += s.processFeed(ctx, feed)
	}
	return added
}

func (s *Scheduler) processFeed(ctx context.Context, feed model.Feed) int {
	s.log.Debug("checking feed", "feed_id", feed.ID, "name", feed.Name)

	rssFeed, err := s.fetcher.Fetch(ctx, feed.URL)
	if err != nil {
		s.log.Error("fetch feed", "feed_id", feed.ID, "url", feed.URL, "error", err)
		s.updateLastCheck(ctx, &feed)
		return 0
	}
	if (feed.Name == "" || feed.Name == feed.URL) && rssFeed.Title != "" {
		feed.Name = rssFeed.Title
	}

	items := fetcher.ToItems(rssFeed, s.clock.Now())
	added, err := s.store.UpsertItems(ctx, items)
	if err != nil {
		s.log.Error("store items", "feed_id", feed.ID, "error", err)
		return 0
	}

	if added > 0 {
		s.log.Info("imported items", "feed_id", feed.ID, "name", feed.Name, "count", added)
	}

	s.updateLastCheck(ctx, &feed)
	return added
}

func (s *Scheduler) updateLastCheck(ctx context.Context, feed *model.Feed) {
	now := s.clock.Now().UTC()
	feed.LastCheckAt = &now
	if err := s.store.UpdateFeed(ctx, feed); err != nil {
		s.log.Error("update last check", "feed_id", feed.ID, "error", err)
	}
}
