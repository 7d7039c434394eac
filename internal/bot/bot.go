// Package bot serves the feed over Telegram. Every chat browses its own
// scroll.Controller; pages arrive as messages with inline More and Retry
// buttons.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"feedscroll/internal/config"
	"feedscroll/internal/render"
	"feedscroll/internal/source"
)

type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Bot is the Telegram front end of a feed source.
type Bot struct {
	api      telegramAPI
	src      source.Source
	cfg      *config.Config
	renderer render.Renderer
	log      *slog.Logger

	mu       sync.Mutex
	sessions map[int64]*session
}

// New creates a Bot with the given Telegram token, feed source, and config.
func New(token string, src source.Source, cfg *config.Config, log *slog.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}
	return newBot(api, src, cfg, log), nil
}

func newBot(api telegramAPI, src source.Source, cfg *config.Config, log *slog.Logger) *Bot {
	return &Bot{
		api:      api,
		src:      src,
		cfg:      cfg,
		renderer: render.Plain{MaxDescription: maxDescription},
		log:      log,
		sessions: make(map[int64]*session),
	}
}

// Run starts the bot's long-polling loop, blocking until ctx is cancelled.
// Open sessions are closed on return.
func (b *Bot) Run(ctx context.Context) {
	defer b.closeSessions()

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return
		case update := <-updates:
			if update.CallbackQuery != nil {
				b.handleCallback(update.CallbackQuery)
				continue
			}
			if update.Message == nil || !update.Message.IsCommand() {
				continue
			}
			if !b.cfg.IsUserAllowed(update.Message.From.ID) {
				b.reply(update.Message.Chat.ID, "Access denied.")
				continue
			}
			b.handleCommand(update.Message)
		}
	}
}

// SendMessage sends a text message to the given chat.
func (b *Bot) SendMessage(chatID int64, text string) {
	b.send(chatID, text, nil)
}

func (b *Bot) send(chatID int64, text string, markup *tgbotapi.InlineKeyboardMarkup) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.DisableWebPagePreview = true
	if markup != nil {
		msg.ReplyMarkup = *markup
	}
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send message", "chat_id", chatID, "error", err)
	}
}

func (b *Bot) reply(chatID int64, text string) {
	b.SendMessage(chatID, text)
}

// session returns the chat's session, creating it on first use.
func (b *Bot) session(chatID int64) *session {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.sessions[chatID]
	if !ok {
		s = newSession(b, chatID)
		b.sessions[chatID] = s
	}
	return s
}

func (b *Bot) closeSessions() {
	b.mu.Lock()
	sessions := b.sessions
	b.sessions = make(map[int64]*session)
	b.mu.Unlock()

	for _, s := range sessions {
		s.close()
	}
}

func (b *Bot) handleCommand(msg *tgbotapi.Message) {
	cmd := msg.Command()
	args := strings.TrimSpace(msg.CommandArguments())
	chatID := msg.Chat.ID

	b.log.Debug("command", "cmd", cmd, "args", args, "chat_id", chatID)

	switch cmd {
	case "start":
		b.handleStart(chatID)
	case "help":
		b.handleHelp(chatID)
	case "feed":
		b.handleFeed(chatID)
	case "search":
		b.handleSearch(chatID, args)
	case "tag":
		b.handleTag(chatID, args)
	case "clear":
		b.handleClear(chatID)
	case cmdMore:
		b.handleMore(chatID)
	case cmdRetry:
		b.handleRetry(chatID)
	default:
		b.reply(chatID, "Unknown command. Use /help for a list of commands.")
	}
}
