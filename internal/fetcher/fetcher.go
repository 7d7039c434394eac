// Package fetcher downloads RSS and Atom feeds and maps their entries onto
// catalogue items.
package fetcher

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"feedscroll/internal/model"
)

const maxBodySize = 5 * 1024 * 1024

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Fetcher downloads and parses RSS feeds.
type Fetcher struct {
	client HTTPClient
	parser *gofeed.Parser
}

// New creates a Fetcher with the given HTTP client.
func New(client HTTPClient) *Fetcher {
	return &Fetcher{
		client: client,
		parser: gofeed.NewParser(),
	}
}

// Fetch downloads and parses an RSS feed from the given URL.
func (f *Fetcher) Fetch(ctx context.Context, url string) (*gofeed.Feed, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "feedscroll/1.0")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	feed, err := f.parser.ParseString(string(body))
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}
	return feed, nil
}

// ItemGUID returns the GUID for an RSS item.
// If the item has no GUID, a SHA-256 hash of title+link is used.
func ItemGUID(item *gofeed.Item) string {
	if item.GUID != "" {
		return item.GUID
	}
	h := sha256.Sum256([]byte(item.Title + "|" + item.Link))
	return fmt.Sprintf("sha256:%x", h[:16])
}

// ToItems maps feed entries to catalogue items. Entries without a publish
// or update time are stamped with now.
func ToItems(feed *gofeed.Feed, now time.Time) []model.Item {
	if feed == nil {
		return nil
	}
	items := make([]model.Item, 0, len(feed.Items))
	for _, entry := range feed.Items {
		if entry == nil {
			continue
		}
		items = append(items, toItem(entry, now))
	}
	return items
}

func toItem(entry *gofeed.Item, now time.Time) model.Item {
	it := model.Item{
		ID:          ItemGUID(entry),
		Title:       strings.TrimSpace(entry.Title),
		Description: strings.TrimSpace(entry.Description),
		Link:        entry.Link,
		CreatedAt:   now.UTC(),
	}
	switch {
	case entry.PublishedParsed != nil:
		it.CreatedAt = entry.PublishedParsed.UTC()
	case entry.UpdatedParsed != nil:
		it.CreatedAt = entry.UpdatedParsed.UTC()
	}
	if it.Title == "" {
		it.Title = it.Link
	}

	it.ImageURL = imageURL(entry)
	switch {
	case it.ImageURL != "":
		it.Kind = model.KindImage
	case it.Link != "" && it.Description != "":
		it.Kind = model.KindCard
	default:
		it.Kind = model.KindText
	}

	for _, c := range entry.Categories {
		tag := strings.ToLower(strings.TrimSpace(c))
		if tag == "" || it.HasTag(tag) {
			continue
		}
		it.Tags = append(it.Tags, tag)
	}
	return it
}

func imageURL(entry *gofeed.Item) string {
	if entry.Image != nil && entry.Image.URL != "" {
		return entry.Image.URL
	}
	for _, enc := range entry.Enclosures {
		if enc != nil && strings.HasPrefix(enc.Type, "image/") {
			return enc.URL
		}
	}
	return ""
}
