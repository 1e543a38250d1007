package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"pagedigest/internal/domain"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

func (b *Bot) handleCallbackQuery(ctx context.Context, callback *models.CallbackQuery) error {
	data := strings.TrimSpace(callback.Data)

	if raw, ok := strings.CutPrefix(data, chainKeyboardCallbackPrefix); ok {
		return b.handleChainQuery(ctx, raw, callback)
	}

	return b.answerCallback(ctx, callback, "")
}

func (b *Bot) handleChainQuery(
	ctx context.Context,
	raw string,
	callback *models.CallbackQuery,
) error {
	chatID := callbackChatID(callback)
	if chatID == 0 {
		return b.errorCallbackAnswer(ctx, callback, errors.New("callback has no chat"))
	}

	chainType, err := domain.ParseChainType(raw)
	if err != nil {
		return b.errorCallbackAnswer(ctx, callback, fmt.Errorf("parse chain type: %w", err))
	}

	if err = b.settings.UpsertChatSettings(ctx, &domain.ChatSettings{
		ChatID:    chatID,
		ChainType: chainType,
	}); err != nil {
		return b.errorCallbackAnswer(ctx, callback, fmt.Errorf("upsert chat settings: %w", err))
	}

	if err = b.answerCallback(ctx, callback, "✅ Chain type is updated."); err != nil {
		return err
	}

	return b.handleChainCommand(ctx, chatID)
}

func (b *Bot) answerCallback(ctx context.Context, callback *models.CallbackQuery, text string) error {
	_, err := b.sender.AnswerCallbackQuery(ctx, &tgbot.AnswerCallbackQueryParams{
		CallbackQueryID: callback.ID,
		Text:            text,
	})
	if err != nil {
		return fmt.Errorf("answer callback query: %w", err)
	}

	return nil
}

func (b *Bot) errorCallbackAnswer(
	ctx context.Context,
	callback *models.CallbackQuery,
	err error,
) error {
	if sendErr := b.answerCallback(ctx, callback, "❌ Failed."); sendErr != nil {
		return errors.Join(err, sendErr)
	}
	return err
}
