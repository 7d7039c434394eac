package bot

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"feedscroll/internal/scroll"
)

const (
	cmdMore  = "more"
	cmdRetry = "retry"
)

// Callback buttons carry the generation they were sent for, so a button
// from before a query change cannot page the new results.
func (b *Bot) handleCallback(cb *tgbotapi.CallbackQuery) {
	if cb.Message == nil {
		return
	}
	chatID := cb.Message.Chat.ID

	ack := ""
	defer func() {
		if _, err := b.api.Request(tgbotapi.NewCallback(cb.ID, ack)); err != nil {
			b.log.Error("send callback ack", "error", err)
		}
	}()

	if !b.cfg.IsUserAllowed(cb.From.ID) {
		ack = "Access denied."
		return
	}

	action, gen, err := ParseCallbackData(cb.Data)
	if err != nil {
		b.log.Warn("bad callback data", "data", cb.Data, "error", err)
		return
	}

	b.log.Info("callback",
		"action", action,
		"generation", gen,
		"chat_id", chatID,
		"user_id", cb.From.ID,
		"username", cb.From.UserName,
	)

	s := b.session(chatID)
	if gen != s.generation() {
		ack = "These results are outdated. Use /feed to reload."
		return
	}

	switch action {
	case cmdMore:
		if !s.ctrl.RequestNextPage() {
			ack = "Nothing more to load."
		}
	case cmdRetry:
		if !s.ctrl.Retry() {
			ack = "Nothing to retry."
		}
	}
}

func moreKeyboard(gen uint64) *tgbotapi.InlineKeyboardMarkup {
	kb := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("More", fmt.Sprintf("%s:%d", cmdMore, gen)),
		),
	)
	return &kb
}

func retryKeyboard(gen uint64) *tgbotapi.InlineKeyboardMarkup {
	kb := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Retry", fmt.Sprintf("%s:%d", cmdRetry, gen)),
		),
	)
	return &kb
}

// pageKeyboard offers More while the feed has further pages.
func pageKeyboard(state scroll.State) *tgbotapi.InlineKeyboardMarkup {
	if !state.HasMore {
		return nil
	}
	return moreKeyboard(state.Generation)
}
