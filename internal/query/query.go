// Package query merges debounced search input and immediate tag toggles
// into a single effective query.
package query

import (
	"slices"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"feedscroll/internal/model"
)

// DefaultDebounce is the quiet period before typed search text takes effect.
const DefaultDebounce = 300 * time.Millisecond

// Options configure a State.
type Options struct {
	// Debounce is the quiet period for search text. Zero selects
	// DefaultDebounce; a negative value applies search text at once.
	Debounce time.Duration
	Clock    clockwork.Clock
	// Initial is the starting effective query. It does not trigger OnChange.
	Initial model.Query
	// OnChange receives every new effective query. It is called without
	// internal locks held, from the caller's goroutine for tag changes and
	// from the timer goroutine for search changes.
	OnChange func(model.Query)
}

// State holds the raw search text shown to the user and the effective
// query used for fetching.
type State struct {
	debounce time.Duration
	clock    clockwork.Clock
	onChange func(model.Query)

	mu        sync.Mutex
	raw       string
	effective model.Query
	timer     clockwork.Timer
	seq       uint64
	disposed  bool
}

// New creates a State.
func New(opts Options) *State {
	if opts.Debounce == 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	initial := opts.Initial.Normalize()
	return &State{
		debounce:  opts.Debounce,
		clock:     opts.Clock,
		onChange:  opts.OnChange,
		raw:       initial.Search,
		effective: initial,
	}
}

// Display returns the raw search text.
func (s *State) Display() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.raw
}

// Effective returns the query currently used for fetching.
func (s *State) Effective() model.Query {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.copyEffectiveLocked()
}

// Selected reports whether tag is part of the effective query.
func (s *State) Selected(tag string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Contains(s.effective.Tags, tag)
}

// SetSearch records new search text. It becomes effective once no further
// SetSearch call arrives within the debounce window, or immediately when
// debouncing is disabled.
func (s *State) SetSearch(text string) {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return
	}
	s.raw = text
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.seq++
	seq := s.seq
	if s.debounce < 0 {
		s.mu.Unlock()
		s.settle(seq)
		return
	}
	s.timer = s.clock.AfterFunc(s.debounce, func() { s.settle(seq) })
	s.mu.Unlock()
}

// Flush applies pending search text immediately.
func (s *State) Flush() {
	s.mu.Lock()
	seq := s.seq
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.mu.Unlock()
	s.settle(seq)
}

// Submit sets the search text and applies it at once, dropping any pending
// debounce.
func (s *State) Submit(text string) {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return
	}
	s.raw = text
	s.seq++
	seq := s.seq
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.mu.Unlock()
	s.settle(seq)
}

// ToggleTag adds tag to the selection or removes it. The change is
// effective immediately.
func (s *State) ToggleTag(tag string) {
	s.update(func(q *model.Query) {
		if i := slices.Index(q.Tags, tag); i >= 0 {
			q.Tags = slices.Delete(q.Tags, i, i+1)
			return
		}
		q.Tags = append(q.Tags, tag)
	})
}

// ClearTags removes every selected tag.
func (s *State) ClearTags() {
	s.update(func(q *model.Query) { q.Tags = nil })
}

// Clear drops the search text and the tag selection at once.
func (s *State) Clear() {
	s.mu.Lock()
	s.raw = ""
	s.seq++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.mu.Unlock()

	s.update(func(q *model.Query) {
		q.Search = ""
		q.Tags = nil
	})
}

// Dispose cancels any pending debounce and ignores later input.
func (s *State) Dispose() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disposed = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *State) settle(seq uint64) {
	s.mu.Lock()
	if s.disposed || seq != s.seq {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	raw := s.raw
	s.mu.Unlock()

	s.update(func(q *model.Query) { q.Search = raw })
}

func (s *State) update(mutate func(*model.Query)) {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return
	}
	next := s.copyEffectiveLocked()
	mutate(&next)
	next = next.Normalize()
	if next.Equal(s.effective) {
		s.mu.Unlock()
		return
	}
	s.effective = next
	out := s.copyEffectiveLocked()
	s.mu.Unlock()

	if s.onChange != nil {
		s.onChange(out)
	}
}

func (s *State) copyEffectiveLocked() model.Query {
	return model.Query{Search: s.effective.Search, Tags: slices.Clone(s.effective.Tags)}
}
