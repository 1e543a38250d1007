package bot

import (
	"context"
	"strings"

	"pagedigest/internal/domain"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

const chainKeyboardCallbackPrefix = "chain_"

// sendMessage sends already escaped MarkdownV2 text through the rate
// limiter.
func (b *Bot) sendMessage(
	ctx context.Context,
	chatID int64,
	text string,
	keyboard *models.InlineKeyboardMarkup,
) error {
	normalizedText := strings.ToValidUTF8(text, "?")
	if normalizedText != text {
		b.log.WarnContext(ctx, "Message text had invalid UTF-8 and was normalized",
			"chatID", chatID,
			"originalLen", len(text),
			"normalizedLen", len(normalizedText))
	}

	params := &tgbot.SendMessageParams{
		ChatID: chatID,
		Text:   normalizedText,

		// See https://core.telegram.org/bots/api#markdownv2-style.
		ParseMode: models.ParseModeMarkdown,

		LinkPreviewOptions: &models.LinkPreviewOptions{IsDisabled: tgbot.True()},
	}
	if keyboard != nil {
		params.ReplyMarkup = keyboard
	}

	return b.rateLimiter.Do(ctx, chatID, func(ctx context.Context) error {
		_, err := b.sender.SendMessage(ctx, params)
		return err
	})
}

func getChainKeyboard() *models.InlineKeyboardMarkup {
	var row []models.InlineKeyboardButton

	for _, chainType := range domain.ChainTypes() {
		row = append(row, models.InlineKeyboardButton{
			Text:         chainType.String(),
			CallbackData: chainKeyboardCallbackPrefix + chainType.String(),
		})
	}

	return &models.InlineKeyboardMarkup{
		InlineKeyboard: [][]models.InlineKeyboardButton{row},
	}
}
