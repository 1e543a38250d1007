package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"pagedigest/internal/domain"
	"pagedigest/internal/llm"
	"pagedigest/internal/markdown"
	"pagedigest/internal/urlcheck"

	"github.com/go-telegram/bot/models"
)

const failedText = "❌ Failed to summarize the page\\."

func (b *Bot) handleMessage(ctx context.Context, message *models.Message) error {
	text := strings.TrimSpace(message.Text)
	chatID := message.Chat.ID

	switch {
	case strings.HasPrefix(text, "/start"), strings.HasPrefix(text, "/help"):
		return b.handleStartCommand(ctx, chatID)
	case strings.HasPrefix(text, "/chain"):
		return b.handleChainCommand(ctx, chatID)
	default:
		return b.withSpinner(ctx, chatID, func() error {
			return b.handlePageText(ctx, chatID, text)
		})
	}
}

// handlePageText summarizes the first URL found in text. Text without one
// still goes through the controller so it gets the usual validation reply.
func (b *Bot) handlePageText(ctx context.Context, chatID int64, text string) error {
	pageURL := text
	if urls := urlcheck.FindAll(text); len(urls) > 0 {
		pageURL = urls[0]
	}

	settings, err := b.settings.GetChatSettingsWithDefault(ctx, chatID)
	if err != nil {
		return fmt.Errorf("get chat settings: %w", err)
	}

	result, err := b.summarizer.Submit(ctx, domain.SourceTelegram, domain.SummarizationRequest{
		APIKey:    b.apiKey,
		URL:       pageURL,
		ChainType: settings.ChainType,
	})
	if err != nil {
		errs := []error{fmt.Errorf("submit page: %w", llm.RedactError(err))}

		if sendErr := b.sendMessage(ctx, chatID, failedText, nil); sendErr != nil {
			errs = append(errs, fmt.Errorf("send message: %w", sendErr))
		}

		return errors.Join(errs...)
	}

	reply := result.Summary
	if reply == "" {
		reply = result.Message
	}

	var errs []error
	for _, part := range markdown.EscapeAndSplitV2(reply, markdown.TelegramMessageMaxLength) {
		if err = b.sendMessage(ctx, chatID, part, nil); err != nil {
			errs = append(errs, fmt.Errorf("send message: %w", err))
		}
	}

	return errors.Join(errs...)
}
