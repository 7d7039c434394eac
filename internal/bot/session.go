package bot

import (
	"sync"

	"feedscroll/internal/model"
	"feedscroll/internal/query"
	"feedscroll/internal/scroll"
)

// session is one chat's view of the feed. Search text is submitted whole
// by a command, so it is never debounced.
type session struct {
	bot    *Bot
	chatID int64
	ctrl   *scroll.Controller
	query  *query.State
	sub    *scroll.Subscription

	mu sync.Mutex
	// gen and sent track how much of the current generation has been
	// delivered to the chat.
	gen  uint64
	sent int
}

func newSession(b *Bot, chatID int64) *session {
	ctrl := scroll.New(b.src, scroll.Options{
		PageSize: b.cfg.PageSize,
		Backoff:  b.cfg.Backoff(),
		Logger:   b.log.With("chat_id", chatID),
	})
	s := &session{
		bot:    b,
		chatID: chatID,
		ctrl:   ctrl,
		query:  query.New(query.Options{OnChange: ctrl.Reset}),
	}
	s.sub = ctrl.Subscribe(s.deliver)
	return s
}

func (s *session) close() {
	s.query.Dispose()
	s.sub.Dispose()
	s.ctrl.Close()
}

// restart reloads the current query from its first page.
func (s *session) restart() {
	s.ctrl.Reset(s.query.Effective())
}

// setSearch applies text immediately and reports whether the query changed.
func (s *session) setSearch(text string) bool {
	before := s.query.Effective()
	s.query.Submit(text)
	return !before.Equal(s.query.Effective())
}

// clear drops all filters and reports whether any were set.
func (s *session) clear() bool {
	if !s.query.Effective().Active() {
		return false
	}
	s.query.Clear()
	return true
}

// deliver sends whatever the latest fetch produced: the new items of a
// page, the error of a failed fetch, or the empty and end markers.
func (s *session) deliver(state scroll.State) {
	if state.Loading {
		return
	}

	s.mu.Lock()
	if state.Generation != s.gen {
		s.gen = state.Generation
		s.sent = 0
	}
	from := min(s.sent, len(state.Items))
	if !state.Failed() {
		s.sent = len(state.Items)
	}
	s.mu.Unlock()

	b := s.bot
	switch {
	case state.Failed():
		b.send(s.chatID, "Could not load the feed: "+state.ErrMessage, retryKeyboard(state.Generation))
	case state.Empty():
		b.reply(s.chatID, emptyText(state.Query))
	case from < len(state.Items):
		chunks := formatPage(b.renderer, state.Items, from)
		for i, text := range chunks {
			if i == len(chunks)-1 {
				text += footer(state)
				b.send(s.chatID, text, pageKeyboard(state))
				continue
			}
			b.reply(s.chatID, text)
		}
	case state.HasMore:
		b.send(s.chatID, "Nothing new on this page.", moreKeyboard(state.Generation))
	default:
		b.reply(s.chatID, endText(len(state.Items)))
	}
}

func (s *session) generation() uint64 {
	return s.ctrl.Snapshot().Generation
}

func (s *session) effective() model.Query {
	return s.query.Effective()
}
