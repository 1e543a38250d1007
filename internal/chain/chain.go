// Package chain implements the stuff, map_reduce and refine summarization
// strategies on top of a single-completion language model.
package chain

import (
	"context"
	"errors"
	"fmt"

	"pagedigest/internal/domain"
	"pagedigest/internal/llm"
)

const DefaultParallelism = 4

var ErrNoChunks = errors.New("no chunks to summarize")

// Chain turns an ordered chunk sequence into one summary.
type Chain interface {
	Run(ctx context.Context, chunks []domain.Chunk) (string, error)
}

type options struct {
	parallelism int
}

type Option func(*options)

// WithParallelism bounds concurrent per-chunk calls of map_reduce.
func WithParallelism(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.parallelism = n
		}
	}
}

// Load selects the strategy named by chainType.
func Load(model llm.Model, chainType domain.ChainType, opts ...Option) (Chain, error) {
	if model == nil {
		return nil, errors.New("model is nil")
	}

	o := options{parallelism: DefaultParallelism}
	for _, opt := range opts {
		opt(&o)
	}

	switch chainType {
	case domain.ChainTypeStuff:
		return &stuffChain{model: model}, nil
	case domain.ChainTypeMapReduce:
		return &mapReduceChain{model: model, parallelism: o.parallelism}, nil
	case domain.ChainTypeRefine:
		return &refineChain{model: model}, nil
	default:
		return nil, fmt.Errorf("%w: %q", domain.ErrUnsupportedChainType, chainType)
	}
}

func chunkTexts(chunks []domain.Chunk) []string {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	return texts
}
