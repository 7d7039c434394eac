package bot

import (
	"fmt"
	"strings"
)

const helpText = `Browsing:
/feed — show the feed from the top
/more — load the next page
/retry — retry a failed page

Filters:
/search <text> — search titles and descriptions
/search — clear the search
/tag <tag> — toggle a tag filter
/clear — drop search and tag filters`

func (b *Bot) handleStart(chatID int64) {
	b.reply(chatID, `Welcome to feedscroll!

Browse the feed page by page and narrow it down with searches and tags.

Use /feed to start reading, or /help for the full command reference.`)
}

func (b *Bot) handleHelp(chatID int64) {
	b.reply(chatID, helpText)
}

func (b *Bot) handleFeed(chatID int64) {
	b.session(chatID).restart()
}

func (b *Bot) handleSearch(chatID int64, args string) {
	s := b.session(chatID)
	if !s.setSearch(args) {
		s.restart()
	}
}

func (b *Bot) handleTag(chatID int64, args string) {
	tag, err := ParseTagArg(args)
	if err != nil {
		b.reply(chatID, "Usage: /tag <tag>")
		return
	}
	s := b.session(chatID)
	s.query.ToggleTag(tag)

	selected := s.effective().Tags
	if len(selected) == 0 {
		b.reply(chatID, "Tag filter cleared.")
		return
	}
	b.reply(chatID, fmt.Sprintf("Tags: %s", strings.Join(selected, ", ")))
}

func (b *Bot) handleClear(chatID int64) {
	if !b.session(chatID).clear() {
		b.reply(chatID, "No filters to clear.")
	}
}

func (b *Bot) handleMore(chatID int64) {
	s := b.session(chatID)
	if s.ctrl.RequestNextPage() {
		return
	}
	state := s.ctrl.Snapshot()
	switch {
	case state.Loading:
		b.reply(chatID, "Still loading, please wait.")
	case !state.HasMore:
		b.reply(chatID, endText(len(state.Items)))
	}
}

func (b *Bot) handleRetry(chatID int64) {
	if !b.session(chatID).ctrl.Retry() {
		b.reply(chatID, "Nothing to retry.")
	}
}
