package source

import (
	"context"
	"fmt"
	"math/rand/v2"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"feedscroll/internal/filter"
	"feedscroll/internal/model"
)

// MockOptions tune the simulated behaviour of a Mock.
type MockOptions struct {
	// Latency is the delay applied to every fetch.
	Latency time.Duration
	// FailureRate is the probability in [0,1] that a fetch fails with
	// ErrSimulatedFailure.
	FailureRate float64
	// Clock drives the latency. Defaults to the wall clock.
	Clock clockwork.Clock
	// Rand drives failure injection. Defaults to a time-seeded generator.
	Rand *rand.Rand
}

// Mock is an in-memory Source over a fixed, order-stable collection.
// Its cursor is the decimal offset of the next item in the filtered list.
type Mock struct {
	items []model.Item
	opts  MockOptions

	mu    sync.Mutex
	calls int
}

// NewMock creates a Mock serving a copy of items.
func NewMock(items []model.Item, opts MockOptions) *Mock {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Rand == nil {
		now := uint64(time.Now().UnixNano())
		opts.Rand = rand.New(rand.NewPCG(now, now>>1))
	}
	cp := make([]model.Item, len(items))
	copy(cp, items)
	return &Mock{items: cp, opts: opts}
}

// Calls returns the number of Fetch invocations so far.
func (m *Mock) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Fetch implements Source.
func (m *Mock) Fetch(ctx context.Context, req model.PageRequest) (model.PageResponse, error) {
	m.mu.Lock()
	m.calls++
	fail := m.opts.FailureRate > 0 && m.opts.Rand.Float64() < m.opts.FailureRate
	m.mu.Unlock()

	if m.opts.Latency > 0 {
		timer := m.opts.Clock.NewTimer(m.opts.Latency)
		select {
		case <-ctx.Done():
			timer.Stop()
			return model.PageResponse{}, ctx.Err()
		case <-timer.Chan():
		}
	}
	if fail {
		return model.PageResponse{}, ErrSimulatedFailure
	}

	offset := 0
	if req.Cursor != "" {
		n, err := strconv.Atoi(req.Cursor)
		if err != nil || n < 0 {
			return model.PageResponse{}, fmt.Errorf("%w: %q", ErrInvalidCursor, req.Cursor)
		}
		offset = n
	}
	limit := req.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}

	matched := filter.Apply(m.items, model.Query{Search: req.Search, Tags: req.Tags})
	total := len(matched)

	resp := model.PageResponse{TotalCount: total}
	if offset >= total {
		return resp, nil
	}
	end := min(offset+limit, total)
	resp.Items = make([]model.Item, end-offset)
	copy(resp.Items, matched[offset:end])
	if end < total {
		resp.NextCursor = strconv.Itoa(end)
	}
	return resp, nil
}

var demoTags = []string{"go", "design", "frontend", "database", "networking", "testing"}

// DemoTags returns the tag vocabulary of GenerateItems.
func DemoTags() []string {
	return slices.Clone(demoTags)
}

var demoNamespace = uuid.MustParse("6f1c2f5e-8d7a-4b6e-9a51-3c0f2d4b7e10")

// GenerateItems builds n deterministic demo items. Kinds rotate through
// text, image and card; each item carries two tags from a fixed vocabulary.
// Creation times step back one hour per item from now.
func GenerateItems(n int, now time.Time) []model.Item {
	kinds := model.Kinds()
	items := make([]model.Item, 0, n)
	for i := range n {
		kind := kinds[i%len(kinds)]
		it := model.Item{
			ID:          uuid.NewSHA1(demoNamespace, []byte(strconv.Itoa(i))).String(),
			Title:       fmt.Sprintf("Item %d", i+1),
			Description: fmt.Sprintf("This is the description for item %d. It is a %s item.", i+1, kind),
			Kind:        kind,
			Tags:        []string{demoTags[i%len(demoTags)], demoTags[(i+2)%len(demoTags)]},
			CreatedAt:   now.Add(-time.Duration(i) * time.Hour).UTC(),
		}
		if kind == model.KindImage {
			it.ImageURL = fmt.Sprintf("https://picsum.photos/seed/%d/400/300", i+1)
		}
		items = append(items, it)
	}
	return items
}
