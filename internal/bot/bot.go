package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"pagedigest/internal/domain"
	"pagedigest/internal/form"
	"pagedigest/internal/ratelimiter"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

const updateProcessingTimeout = 5 * time.Minute

type Summarizer interface {
	Submit(ctx context.Context, source domain.Source, req domain.SummarizationRequest) (form.Result, error)
}

type SettingsStore interface {
	GetChatSettingsWithDefault(ctx context.Context, chatID int64) (*domain.ChatSettings, error)
	UpsertChatSettings(ctx context.Context, chatSettings *domain.ChatSettings) error
}

// sender is the subset of the Telegram client the handlers use.
type sender interface {
	SendMessage(ctx context.Context, params *tgbot.SendMessageParams) (*models.Message, error)
	SendChatAction(ctx context.Context, params *tgbot.SendChatActionParams) (bool, error)
	AnswerCallbackQuery(ctx context.Context, params *tgbot.AnswerCallbackQueryParams) (bool, error)
}

type Bot struct {
	api           *tgbot.Bot
	sender        sender
	rateLimiter   *ratelimiter.RateLimiter
	summarizer    Summarizer
	settings      SettingsStore
	apiKey        string
	allowedUsers  []int64
	chainKeyboard *models.InlineKeyboardMarkup
	log           *slog.Logger
}

// New creates a bot that summarizes with the server's OpenAI key. An empty
// allowedUsers lets everyone in.
func New(
	token string,
	apiKey string,
	summarizer Summarizer,
	settings SettingsStore,
	allowedUsers []int64,
	log *slog.Logger,
) (*Bot, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, errors.New("bot token is empty")
	}

	b := &Bot{
		rateLimiter:   ratelimiter.New(log),
		summarizer:    summarizer,
		settings:      settings,
		apiKey:        strings.TrimSpace(apiKey),
		allowedUsers:  allowedUsers,
		chainKeyboard: getChainKeyboard(),
		log:           log,
	}

	api, err := tgbot.New(token,
		tgbot.WithDefaultHandler(b.onUpdate),
		tgbot.WithErrorsHandler(func(err error) {
			log.Error("Telegram API error",
				"error", err)
		}),
	)
	if err != nil {
		b.rateLimiter.Stop()
		return nil, fmt.Errorf("create bot API: %w", err)
	}

	b.api = api
	b.sender = api

	return b, nil
}

// Start polls updates until ctx is done.
func (b *Bot) Start(ctx context.Context) {
	b.log.InfoContext(ctx, "Bot is started")

	b.api.Start(ctx)

	b.log.InfoContext(ctx, "Bot context is done",
		"error", ctx.Err())
}

func (b *Bot) Stop() {
	if b.rateLimiter != nil {
		b.rateLimiter.Stop()
	}
}

func (b *Bot) onUpdate(ctx context.Context, _ *tgbot.Bot, update *models.Update) {
	b.handleUpdate(ctx, update)
}

func (b *Bot) handleUpdate(ctx context.Context, update *models.Update) {
	updateCtx, cancel := context.WithTimeout(ctx, updateProcessingTimeout)
	defer cancel()

	switch {
	case update.Message != nil:
		message := update.Message
		chatID := message.Chat.ID

		var userID int64
		if message.From != nil {
			userID = message.From.ID
		}

		if !b.userAllowed(userID) {
			b.log.DebugContext(updateCtx, "User is not allowed",
				"userID", userID,
				"chatID", chatID,
				"chatType", message.Chat.Type)

			return
		}

		if err := b.handleMessage(updateCtx, message); err != nil {
			b.log.ErrorContext(updateCtx, "Failed to handle message",
				"error", err,
				"chatID", chatID,
				"userID", userID,
				"chatType", message.Chat.Type,
				"messageID", message.ID)
		}

	case update.CallbackQuery != nil:
		callback := update.CallbackQuery
		chatID := callbackChatID(callback)

		if !b.userAllowed(callback.From.ID) {
			b.log.DebugContext(updateCtx, "User is not allowed",
				"userID", callback.From.ID,
				"chatID", chatID,
				"data", callback.Data)

			return
		}

		if err := b.handleCallbackQuery(updateCtx, callback); err != nil {
			b.log.ErrorContext(updateCtx, "Failed to handle callback query",
				"error", err,
				"chatID", chatID,
				"userID", callback.From.ID,
				"data", callback.Data)
		}
	}
}

func (b *Bot) userAllowed(userID int64) bool {
	if len(b.allowedUsers) == 0 {
		return true
	}

	return slices.Contains(b.allowedUsers, userID)
}

func callbackChatID(cb *models.CallbackQuery) int64 {
	switch {
	case cb.Message.Message != nil:
		return cb.Message.Message.Chat.ID
	case cb.Message.InaccessibleMessage != nil:
		return cb.Message.InaccessibleMessage.Chat.ID
	default:
		return 0
	}
}
