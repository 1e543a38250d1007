package chain

import (
	"context"
	"fmt"

	"pagedigest/internal/domain"
	"pagedigest/internal/llm"
)

// stuffChain puts every chunk into one prompt. Documents longer than the
// model context fail with the provider error.
type stuffChain struct {
	model llm.Model
}

func (c *stuffChain) Run(ctx context.Context, chunks []domain.Chunk) (string, error) {
	if len(chunks) == 0 {
		return "", ErrNoChunks
	}

	summary, err := c.model.Complete(ctx, summaryPrompt(joinTexts(chunkTexts(chunks))))
	if err != nil {
		return "", fmt.Errorf("complete stuffed prompt: %w", err)
	}

	return summary, nil
}
