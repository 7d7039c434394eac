// Package remote reads a feed from a catalogue server over HTTP.
package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"feedscroll/internal/model"
	"feedscroll/internal/source"
)

const maxBodySize = 5 * 1024 * 1024

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client implements source.Source against GET {base}/items.
type Client struct {
	base   *url.URL
	client HTTPClient
}

var _ source.Source = (*Client)(nil)

// New creates a Client for the server at baseURL.
func New(baseURL string, client HTTPClient) (*Client, error) {
	u, err := url.Parse(strings.TrimSuffix(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("base url %q: scheme must be http or https", baseURL)
	}
	return &Client{base: u, client: client}, nil
}

// Fetch requests one page. A rejected cursor is reported as
// source.ErrInvalidCursor; other server errors come back as *model.APIError.
func (c *Client) Fetch(ctx context.Context, req model.PageRequest) (model.PageResponse, error) {
	q := url.Values{}
	if req.Limit > 0 {
		q.Set("limit", strconv.Itoa(req.Limit))
	}
	if req.Cursor != "" {
		q.Set("cursor", req.Cursor)
	}
	if req.Search != "" {
		q.Set("search", req.Search)
	}
	for _, tag := range req.Tags {
		q.Add("tag", tag)
	}

	u := c.base.JoinPath("items")
	u.RawQuery = q.Encode()

	var page model.PageResponse
	if err := c.get(ctx, u.String(), &page); err != nil {
		return model.PageResponse{}, err
	}
	return page, nil
}

// Item fetches a single item by ID.
func (c *Client) Item(ctx context.Context, id string) (*model.Item, error) {
	var it model.Item
	if err := c.get(ctx, c.base.JoinPath("items", id).String(), &it); err != nil {
		return nil, err
	}
	return &it, nil
}

func (c *Client) get(ctx context.Context, target string, v any) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("http get: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		apiErr := &model.APIError{Status: resp.StatusCode}
		if json.Unmarshal(body, apiErr) != nil || apiErr.Code == "" {
			return fmt.Errorf("unexpected status %d", resp.StatusCode)
		}
		if apiErr.Code == model.CodeInvalidCursor {
			return fmt.Errorf("%w: %w", source.ErrInvalidCursor, apiErr)
		}
		return apiErr
	}

	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
