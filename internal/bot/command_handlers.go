package bot

import (
	"context"
	"fmt"

	"pagedigest/internal/markdown"
)

const welcomeText = `📄 *Welcome to Pagedigest\!*

Send me a link to a web page or a feed and I will summarize it\.

I can use three chain types:
– *stuff* puts the whole page into one prompt
– *map\_reduce* summarizes every chunk in parallel and combines the results
– *refine* walks the chunks in order and refines a running summary

Choose the chain type for this chat with /chain\.`

const chainText = `*⚙️ Chain type*

Current chain type is *%s*\.

You can choose a different chain type below:`

func (b *Bot) handleStartCommand(ctx context.Context, chatID int64) error {
	return b.sendMessage(ctx, chatID, welcomeText, nil)
}

func (b *Bot) handleChainCommand(ctx context.Context, chatID int64) error {
	settings, err := b.settings.GetChatSettingsWithDefault(ctx, chatID)
	if err != nil {
		return fmt.Errorf("get chat settings: %w", err)
	}

	text := fmt.Sprintf(chainText, markdown.EscapeV2(settings.ChainType.String()))

	return b.sendMessage(ctx, chatID, text, b.chainKeyboard)
}
