package chain

import (
	"context"
	"fmt"

	"pagedigest/internal/domain"
	"pagedigest/internal/llm"

	"golang.org/x/sync/errgroup"
)

// mapReduceChain summarizes chunks independently, then combines the partial
// summaries with one more call.
type mapReduceChain struct {
	model       llm.Model
	parallelism int
}

func (c *mapReduceChain) Run(ctx context.Context, chunks []domain.Chunk) (string, error) {
	if len(chunks) == 0 {
		return "", ErrNoChunks
	}

	partials, err := c.mapChunks(ctx, chunks)
	if err != nil {
		return "", err
	}

	summary, err := c.model.Complete(ctx, summaryPrompt(joinTexts(partials)))
	if err != nil {
		return "", fmt.Errorf("complete combine prompt: %w", err)
	}

	return summary, nil
}

// mapChunks keeps partial summaries in chunk order regardless of completion
// order.
func (c *mapReduceChain) mapChunks(ctx context.Context, chunks []domain.Chunk) ([]string, error) {
	partials := make([]string, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(min(c.parallelism, len(chunks)))

	for i, chunk := range chunks {
		g.Go(func() error {
			partial, err := c.model.Complete(gctx, summaryPrompt(chunk.Text))
			if err != nil {
				return fmt.Errorf("complete map prompt (chunk = %d): %w", chunk.Index, err)
			}

			partials[i] = partial

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return partials, nil
}
