package scroll

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/sethvargo/go-retry"

	"feedscroll/internal/model"
	"feedscroll/internal/source"
)

// --- helpers ---

type result struct {
	resp model.PageResponse
	err  error
}

type pendingCall struct {
	req  model.PageRequest
	done chan result
}

func (p *pendingCall) respond(resp model.PageResponse, err error) {
	p.done <- result{resp: resp, err: err}
}

// gatedSource hands every request to the test and blocks until the test
// responds. It deliberately ignores cancellation so that abandoned fetches
// still deliver their results late.
type gatedSource struct {
	calls chan *pendingCall
}

func newGatedSource() *gatedSource {
	return &gatedSource{calls: make(chan *pendingCall, 16)}
}

func (g *gatedSource) Fetch(_ context.Context, req model.PageRequest) (model.PageResponse, error) {
	call := &pendingCall{req: req, done: make(chan result, 1)}
	g.calls <- call
	r := <-call.done
	return r.resp, r.err
}

func (g *gatedSource) next(t *testing.T) *pendingCall {
	t.Helper()
	select {
	case call := <-g.calls:
		return call
	case <-time.After(2 * time.Second):
		t.Fatal("no fetch was issued")
		return nil
	}
}

func (g *gatedSource) expectIdle(t *testing.T) {
	t.Helper()
	select {
	case call := <-g.calls:
		t.Fatalf("unexpected fetch: %+v", call.req)
	case <-time.After(20 * time.Millisecond):
	}
}

type recordingSource struct {
	mu   sync.Mutex
	reqs []model.PageRequest
	next source.Source
}

func (r *recordingSource) Fetch(ctx context.Context, req model.PageRequest) (model.PageResponse, error) {
	r.mu.Lock()
	r.reqs = append(r.reqs, req)
	r.mu.Unlock()
	return r.next.Fetch(ctx, req)
}

func (r *recordingSource) requests() []model.PageRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.PageRequest(nil), r.reqs...)
}

func items(prefix string, from, to int) []model.Item {
	var out []model.Item
	for i := from; i < to; i++ {
		out = append(out, model.Item{ID: fmt.Sprintf("%s-%d", prefix, i), Title: fmt.Sprintf("%s %d", prefix, i)})
	}
	return out
}

func alternating(n int) []model.Item {
	out := make([]model.Item, n)
	for i := range out {
		tag := "a"
		if i%2 == 1 {
			tag = "b"
		}
		out[i] = model.Item{ID: fmt.Sprintf("item-%d", i), Title: fmt.Sprintf("Item %d", i), Tags: []string{tag}}
	}
	return out
}

func itemIDs(items []model.Item) []string {
	var out []string
	for _, it := range items {
		out = append(out, it.ID)
	}
	return out
}

// --- tests ---

func TestSequentialPagination(t *testing.T) {
	c := New(source.NewMock(alternating(25), source.MockOptions{}), Options{PageSize: 10})
	defer c.Close()

	steps := []struct {
		wantCount   int
		wantCursor  string
		wantHasMore bool
	}{
		{wantCount: 10, wantCursor: "10", wantHasMore: true},
		{wantCount: 20, wantCursor: "20", wantHasMore: true},
		{wantCount: 25, wantCursor: "", wantHasMore: false},
	}

	for i, step := range steps {
		if !c.RequestNextPage() {
			t.Fatalf("step %d: RequestNextPage returned false", i)
		}
		c.Wait()

		s := c.Snapshot()
		if diff := cmp.Diff(step.wantCount, len(s.Items)); diff != "" {
			t.Errorf("step %d item count (-want +got):\n%s", i, diff)
		}
		if diff := cmp.Diff(step.wantCursor, s.Cursor); diff != "" {
			t.Errorf("step %d cursor (-want +got):\n%s", i, diff)
		}
		if diff := cmp.Diff(step.wantHasMore, s.HasMore); diff != "" {
			t.Errorf("step %d has more (-want +got):\n%s", i, diff)
		}
		if s.Loading {
			t.Errorf("step %d: still loading", i)
		}
	}

	if c.RequestNextPage() {
		t.Error("RequestNextPage after the last page should be a no-op")
	}
}

func TestTagFilteredPagination(t *testing.T) {
	all := make([]model.Item, 25)
	for i := range all {
		all[i] = model.Item{ID: fmt.Sprintf("item-%d", i), Title: "t", Tags: []string{"b"}}
		if i%2 == 0 && i < 24 {
			all[i].Tags = []string{"a"}
		}
	}
	c := New(source.NewMock(all, source.MockOptions{}), Options{PageSize: 10})
	defer c.Close()

	c.Reset(model.Query{Tags: []string{"a"}})
	c.Wait()
	for c.RequestNextPage() {
		c.Wait()
	}

	s := c.Snapshot()
	if diff := cmp.Diff(12, len(s.Items)); diff != "" {
		t.Errorf("item count (-want +got):\n%s", diff)
	}
	if s.HasMore || s.Cursor != "" {
		t.Errorf("expected exhausted feed, got has_more=%v cursor=%q", s.HasMore, s.Cursor)
	}
}

func TestSingleFetchInFlight(t *testing.T) {
	src := newGatedSource()
	c := New(src, Options{PageSize: 5})
	defer func() { c.Close(); c.Wait() }()

	if !c.RequestNextPage() {
		t.Fatal("first request was not started")
	}
	call := src.next(t)

	for range 3 {
		if c.RequestNextPage() {
			t.Fatal("second request started while loading")
		}
	}
	src.expectIdle(t)

	if !c.Snapshot().Loading {
		t.Error("expected loading while the fetch is pending")
	}
	call.respond(model.PageResponse{Items: items("x", 0, 5), NextCursor: "5"}, nil)
	c.Wait()

	if c.Snapshot().Loading {
		t.Error("expected loading cleared after response")
	}
}

func TestStaleResponseDiscarded(t *testing.T) {
	tests := []struct {
		name       string
		newerFirst bool
	}{
		{name: "older resolves last", newerFirst: true},
		{name: "older resolves first", newerFirst: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := newGatedSource()
			c := New(src, Options{PageSize: 10})
			defer func() { c.Close(); c.Wait() }()

			c.Reset(model.Query{Search: "foo"})
			foo := src.next(t)
			c.Reset(model.Query{Search: "bar"})
			bar := src.next(t)

			if diff := cmp.Diff("foo", foo.req.Search); diff != "" {
				t.Fatalf("first request search (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff("bar", bar.req.Search); diff != "" {
				t.Fatalf("second request search (-want +got):\n%s", diff)
			}

			fooResp := model.PageResponse{Items: items("foo", 0, 3)}
			barResp := model.PageResponse{Items: items("bar", 0, 2)}
			if tt.newerFirst {
				bar.respond(barResp, nil)
				foo.respond(fooResp, nil)
			} else {
				foo.respond(fooResp, nil)
				bar.respond(barResp, nil)
			}
			c.Wait()

			s := c.Snapshot()
			if diff := cmp.Diff([]string{"bar-0", "bar-1"}, itemIDs(s.Items)); diff != "" {
				t.Errorf("items (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff("bar", s.Query.Search); diff != "" {
				t.Errorf("query (-want +got):\n%s", diff)
			}
		})
	}
}

func TestStaleErrorDiscarded(t *testing.T) {
	src := newGatedSource()
	c := New(src, Options{PageSize: 10})
	defer func() { c.Close(); c.Wait() }()

	c.Reset(model.Query{Search: "foo"})
	foo := src.next(t)
	c.Reset(model.Query{Search: "bar"})
	bar := src.next(t)

	bar.respond(model.PageResponse{Items: items("bar", 0, 1)}, nil)
	foo.respond(model.PageResponse{}, errors.New("boom"))
	c.Wait()

	s := c.Snapshot()
	if s.Failed() {
		t.Errorf("stale error leaked into state: %v", s.Err)
	}
	if diff := cmp.Diff([]string{"bar-0"}, itemIDs(s.Items)); diff != "" {
		t.Errorf("items (-want +got):\n%s", diff)
	}
}

func TestResetClearsAndRestarts(t *testing.T) {
	rec := &recordingSource{next: source.NewMock(alternating(25), source.MockOptions{})}
	c := New(rec, Options{PageSize: 10})
	defer c.Close()

	c.RequestNextPage()
	c.Wait()
	c.RequestNextPage()
	c.Wait()
	before := c.Snapshot()
	if diff := cmp.Diff(20, len(before.Items)); diff != "" {
		t.Fatalf("items before reset (-want +got):\n%s", diff)
	}

	c.Reset(model.Query{Tags: []string{"b"}})
	c.Wait()

	after := c.Snapshot()
	if diff := cmp.Diff(before.Generation+1, after.Generation); diff != "" {
		t.Errorf("generation (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(10, len(after.Items)); diff != "" {
		t.Errorf("items after reset (-want +got):\n%s", diff)
	}
	for _, it := range after.Items {
		if !it.HasTag("b") {
			t.Errorf("item %s from previous query survived reset", it.ID)
		}
	}

	reqs := rec.requests()
	last := reqs[len(reqs)-1]
	want := model.PageRequest{Limit: 10, Tags: []string{"b"}}
	if diff := cmp.Diff(want, last); diff != "" {
		t.Errorf("request after reset (-want +got):\n%s", diff)
	}
}

func TestFetchFailureAndRetry(t *testing.T) {
	src := newGatedSource()
	c := New(src, Options{PageSize: 10})
	defer func() { c.Close(); c.Wait() }()

	c.RequestNextPage()
	first := src.next(t)
	first.respond(model.PageResponse{Items: items("x", 0, 10), NextCursor: "10"}, nil)
	c.Wait()

	if c.Retry() {
		t.Fatal("Retry without a failure should be a no-op")
	}

	c.RequestNextPage()
	failing := src.next(t)
	failing.respond(model.PageResponse{}, errors.New("upstream unavailable"))
	c.Wait()

	s := c.Snapshot()
	if !s.Failed() {
		t.Fatal("expected error state")
	}
	if diff := cmp.Diff("upstream unavailable", s.ErrMessage); diff != "" {
		t.Errorf("message (-want +got):\n%s", diff)
	}
	if s.Loading {
		t.Error("loading should be false after failure")
	}
	if diff := cmp.Diff(10, len(s.Items)); diff != "" {
		t.Errorf("items changed on failure (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff("10", s.Cursor); diff != "" {
		t.Errorf("cursor changed on failure (-want +got):\n%s", diff)
	}

	if !c.Retry() {
		t.Fatal("Retry after failure was not started")
	}
	retried := src.next(t)
	if diff := cmp.Diff(failing.req, retried.req); diff != "" {
		t.Errorf("retry request differs (-failed +retried):\n%s", diff)
	}
	if c.Snapshot().Failed() {
		t.Error("error should be cleared while retrying")
	}
	retried.respond(model.PageResponse{Items: items("x", 10, 12)}, nil)
	c.Wait()

	s = c.Snapshot()
	if diff := cmp.Diff(12, len(s.Items)); diff != "" {
		t.Errorf("items after retry (-want +got):\n%s", diff)
	}
	if s.HasMore {
		t.Error("expected feed exhausted")
	}
}

type emptyError struct{}

func (emptyError) Error() string { return "" }

func TestGenericErrorMessage(t *testing.T) {
	c := New(source.Func(func(context.Context, model.PageRequest) (model.PageResponse, error) {
		return model.PageResponse{}, emptyError{}
	}), Options{})
	defer c.Close()

	c.RequestNextPage()
	c.Wait()

	if diff := cmp.Diff(GenericErrorMessage, c.Snapshot().ErrMessage); diff != "" {
		t.Errorf("message (-want +got):\n%s", diff)
	}
}

func TestDuplicateIDsSkipped(t *testing.T) {
	pages := []model.PageResponse{
		{Items: items("x", 0, 3), NextCursor: "a"},
		{Items: items("x", 2, 5), NextCursor: ""},
	}
	call := 0
	c := New(source.Func(func(context.Context, model.PageRequest) (model.PageResponse, error) {
		resp := pages[call]
		call++
		return resp, nil
	}), Options{Seed: items("x", 0, 1)})
	defer c.Close()

	c.RequestNextPage()
	c.Wait()
	c.RequestNextPage()
	c.Wait()

	want := []string{"x-0", "x-1", "x-2", "x-3", "x-4"}
	if diff := cmp.Diff(want, itemIDs(c.Snapshot().Items)); diff != "" {
		t.Errorf("items (-want +got):\n%s", diff)
	}
}

func TestSeedItems(t *testing.T) {
	c := New(source.NewMock(nil, source.MockOptions{}), Options{Seed: items("seed", 0, 2)})
	defer c.Close()

	s := c.Snapshot()
	if diff := cmp.Diff([]string{"seed-0", "seed-1"}, itemIDs(s.Items)); diff != "" {
		t.Errorf("seeded items (-want +got):\n%s", diff)
	}
	if s.Started || !s.HasMore {
		t.Errorf("seeded controller should still fetch: started=%v has_more=%v", s.Started, s.HasMore)
	}
}

func TestEmptyResult(t *testing.T) {
	c := New(source.NewMock(alternating(4), source.MockOptions{}), Options{})
	defer c.Close()

	c.Reset(model.Query{Search: "nothing matches this"})
	c.Wait()

	s := c.Snapshot()
	if !s.Empty() {
		t.Errorf("expected empty state, got %+v", s)
	}
	if s.Failed() {
		t.Error("empty result must not be an error")
	}
}

func TestSubscribeAndDispose(t *testing.T) {
	c := New(source.NewMock(alternating(5), source.MockOptions{}), Options{})
	defer c.Close()

	var mu sync.Mutex
	var seen []State
	sub := c.Subscribe(func(s State) {
		mu.Lock()
		seen = append(seen, s)
		mu.Unlock()
	})

	c.RequestNextPage()
	c.Wait()

	mu.Lock()
	n := len(seen)
	mu.Unlock()
	if n < 2 {
		t.Fatalf("expected loading and loaded notifications, got %d", n)
	}
	mu.Lock()
	last := seen[n-1]
	mu.Unlock()
	if last.Loading || len(last.Items) != 5 {
		t.Errorf("last notification should carry loaded state, got loading=%v items=%d", last.Loading, len(last.Items))
	}

	sub.Dispose()
	sub.Dispose()
	c.Reset(model.Query{Search: "item"})
	c.Wait()

	mu.Lock()
	defer mu.Unlock()
	if diff := cmp.Diff(n, len(seen)); diff != "" {
		t.Errorf("notifications after dispose (-want +got):\n%s", diff)
	}
}

func TestCloseSuppressesUpdates(t *testing.T) {
	src := newGatedSource()
	c := New(src, Options{})

	notified := 0
	c.Subscribe(func(State) { notified++ })

	c.RequestNextPage()
	call := src.next(t)
	before := notified

	c.Close()
	call.respond(model.PageResponse{Items: items("x", 0, 3)}, nil)
	c.Wait()

	if len(c.Snapshot().Items) != 0 {
		t.Error("response applied after Close")
	}
	if notified != before {
		t.Error("subscriber notified after Close")
	}
	if c.RequestNextPage() {
		t.Error("RequestNextPage after Close should be a no-op")
	}
	c.Reset(model.Query{Search: "x"})
	src.expectIdle(t)
}

func TestNotificationsStayOrdered(t *testing.T) {
	src := newGatedSource()
	c := New(src, Options{Query: model.Query{Search: "foo"}})
	defer c.Close()

	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	c.Subscribe(func(s State) {
		if s.Loading || s.Generation != 0 {
			return
		}
		once.Do(func() {
			close(entered)
			<-release
		})
	})

	var mu sync.Mutex
	var gens, loaded []uint64
	c.Subscribe(func(s State) {
		mu.Lock()
		defer mu.Unlock()
		gens = append(gens, s.Generation)
		if !s.Loading {
			loaded = append(loaded, s.Generation)
		}
	})

	c.RequestNextPage()
	src.next(t).respond(model.PageResponse{Items: items("foo", 0, 2)}, nil)
	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("first page was not delivered")
	}

	c.Reset(model.Query{Search: "bar"})
	src.next(t).respond(model.PageResponse{Items: items("bar", 0, 2)}, nil)
	deadline := time.Now().Add(2 * time.Second)
	for c.Snapshot().Loading {
		if time.Now().After(deadline) {
			t.Fatal("second page was not applied")
		}
		time.Sleep(time.Millisecond)
	}

	close(release)
	c.Wait()

	mu.Lock()
	defer mu.Unlock()
	if diff := cmp.Diff([]uint64{0, 1}, loaded); diff != "" {
		t.Errorf("loaded generations (-want +got):\n%s", diff)
	}
	for i := 1; i < len(gens); i++ {
		if gens[i] < gens[i-1] {
			t.Fatalf("generation went backwards: %v", gens)
		}
	}
}

func TestCloseInsideSubscriber(t *testing.T) {
	c := New(source.NewMock(alternating(5), source.MockOptions{}), Options{})

	c.Subscribe(func(s State) {
		if !s.Loading {
			c.Close()
		}
	})
	var mu sync.Mutex
	var after []State
	c.Subscribe(func(s State) {
		mu.Lock()
		defer mu.Unlock()
		if !s.Loading {
			after = append(after, s)
		}
	})

	c.RequestNextPage()
	c.Wait()

	mu.Lock()
	defer mu.Unlock()
	if diff := cmp.Diff(0, len(after)); diff != "" {
		t.Errorf("subscriber calls after Close (-want +got):\n%s", diff)
	}
}

func TestAutomaticRetry(t *testing.T) {
	attempts := 0
	c := New(source.Func(func(context.Context, model.PageRequest) (model.PageResponse, error) {
		attempts++
		if attempts < 3 {
			return model.PageResponse{}, errors.New("flaky")
		}
		return model.PageResponse{Items: items("x", 0, 1)}, nil
	}), Options{
		Backoff: func() retry.Backoff {
			return retry.WithMaxRetries(5, retry.NewConstant(time.Millisecond))
		},
	})
	defer c.Close()

	c.RequestNextPage()
	c.Wait()

	s := c.Snapshot()
	if s.Failed() {
		t.Fatalf("unexpected error: %v", s.Err)
	}
	if diff := cmp.Diff(3, attempts); diff != "" {
		t.Errorf("attempts (-want +got):\n%s", diff)
	}
}

func TestAutomaticRetryExhausted(t *testing.T) {
	cause := errors.New("down")
	c := New(source.Func(func(context.Context, model.PageRequest) (model.PageResponse, error) {
		return model.PageResponse{}, cause
	}), Options{
		Backoff: func() retry.Backoff {
			return retry.WithMaxRetries(2, retry.NewConstant(time.Millisecond))
		},
	})
	defer c.Close()

	c.RequestNextPage()
	c.Wait()

	s := c.Snapshot()
	if !errors.Is(s.Err, cause) {
		t.Fatalf("expected %v, got %v", cause, s.Err)
	}
}

// TestAccumulationProperties drives random request/reset sequences against
// the mock source and checks the accumulation invariants after each step.
func TestAccumulationProperties(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	mock := source.NewMock(alternating(37), source.MockOptions{})
	queries := []model.Query{{}, {Tags: []string{"a"}}, {Tags: []string{"b"}}, {Search: "item 1"}}

	for run := range 20 {
		delivered := 0
		counting := source.Func(func(ctx context.Context, req model.PageRequest) (model.PageResponse, error) {
			resp, err := mock.Fetch(ctx, req)
			delivered += len(resp.Items)
			return resp, err
		})
		c := New(counting, Options{PageSize: 1 + rng.IntN(9)})

		for range 15 {
			if rng.IntN(5) == 0 {
				delivered = 0
				c.Reset(queries[rng.IntN(len(queries))])
			} else {
				c.RequestNextPage()
			}
			c.Wait()

			s := c.Snapshot()
			if len(s.Items) > delivered {
				t.Fatalf("run %d: %d items accumulated from %d delivered", run, len(s.Items), delivered)
			}
			ids := make(map[string]bool)
			for _, it := range s.Items {
				if ids[it.ID] {
					t.Fatalf("run %d: duplicate id %s", run, it.ID)
				}
				ids[it.ID] = true
			}
			if s.Started && s.HasMore == (s.Cursor == "") {
				t.Fatalf("run %d: has_more=%v with cursor %q", run, s.HasMore, s.Cursor)
			}
		}
		c.Close()
	}
}
