// Package model defines the domain types used across the application.
package model

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// Kind is the closed set of content kinds an item can carry.
type Kind int

// Supported item kinds.
const (
	KindText Kind = iota
	KindImage
	KindCard
)

var kindNames = [...]string{
	KindText:  "text",
	KindImage: "image",
	KindCard:  "card",
}

// Kinds returns every supported kind in declaration order.
func Kinds() []Kind {
	return []Kind{KindText, KindImage, KindCard}
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("kind(%d)", int(k))
	}
	return kindNames[k]
}

// ParseKind converts a wire name into a Kind.
func ParseKind(s string) (Kind, error) {
	for i, name := range kindNames {
		if strings.EqualFold(s, name) {
			return Kind(i), nil
		}
	}
	return KindText, fmt.Errorf("unknown item kind %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	if k < 0 || int(k) >= len(kindNames) {
		return nil, fmt.Errorf("unknown item kind %d", int(k))
	}
	return []byte(kindNames[k]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(b []byte) error {
	parsed, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Item is a single unit of displayable content.
type Item struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	ImageURL    string    `json:"imageUrl,omitempty"`
	Link        string    `json:"link,omitempty"`
	Kind        Kind      `json:"type"`
	Tags        []string  `json:"tags"`
	CreatedAt   time.Time `json:"createdAt"`
}

// HasTag reports whether the item carries the given tag.
func (it Item) HasTag(tag string) bool {
	return slices.Contains(it.Tags, tag)
}

// PageRequest describes the next page to fetch. An empty Cursor asks for
// the first page.
type PageRequest struct {
	Limit  int
	Cursor string
	Search string
	Tags   []string
}

// PageResponse is one page of results. An empty NextCursor means there
// are no further pages.
type PageResponse struct {
	Items      []Item `json:"items"`
	NextCursor string `json:"nextCursor,omitempty"`
	TotalCount int    `json:"totalCount"`
}

// Query is the search text and tag selection that scope a feed.
type Query struct {
	Search string
	Tags   []string
}

// Normalize drops a blank search and returns the tags de-duplicated and
// sorted, so that two queries selecting the same tags compare equal. Other
// search text is kept verbatim, surrounding spaces included.
func (q Query) Normalize() Query {
	var out Query
	if strings.TrimSpace(q.Search) != "" {
		out.Search = q.Search
	}
	for _, t := range q.Tags {
		t = strings.TrimSpace(t)
		if t == "" || slices.Contains(out.Tags, t) {
			continue
		}
		out.Tags = append(out.Tags, t)
	}
	slices.Sort(out.Tags)
	return out
}

// Equal compares two queries after normalization.
func (q Query) Equal(other Query) bool {
	a, b := q.Normalize(), other.Normalize()
	return a.Search == b.Search && slices.Equal(a.Tags, b.Tags)
}

// Active reports whether a search or a tag filter is set.
func (q Query) Active() bool {
	n := q.Normalize()
	return n.Search != "" || len(n.Tags) > 0
}

// Feed is an RSS feed whose entries are imported into the catalogue.
type Feed struct {
	ID              int64
	Name            string
	URL             string
	IntervalMinutes int
	IsActive        bool
	LastCheckAt     *time.Time
	CreatedAt       time.Time
}

// Error codes carried in APIError.Code.
const (
	CodeInvalidLimit  = "invalid_limit"
	CodeInvalidCursor = "invalid_cursor"
	CodeNotFound      = "not_found"
	CodeInternal      = "internal"
)

// APIError is the JSON error body returned by the catalogue server.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s (%d): %s", e.Code, e.Status, e.Message)
}
