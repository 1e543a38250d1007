package chain

import (
	"context"
	"fmt"

	"pagedigest/internal/domain"
	"pagedigest/internal/llm"
)

// refineChain walks the chunks in order, feeding each call the summary
// produced by the previous one.
type refineChain struct {
	model llm.Model
}

func (c *refineChain) Run(ctx context.Context, chunks []domain.Chunk) (string, error) {
	if len(chunks) == 0 {
		return "", ErrNoChunks
	}

	summary, err := c.model.Complete(ctx, summaryPrompt(chunks[0].Text))
	if err != nil {
		return "", fmt.Errorf("complete initial prompt: %w", err)
	}

	for _, chunk := range chunks[1:] {
		summary, err = c.model.Complete(ctx, refinePrompt(summary, chunk.Text))
		if err != nil {
			return "", fmt.Errorf("complete refine prompt (chunk = %d): %w", chunk.Index, err)
		}
	}

	return summary, nil
}
