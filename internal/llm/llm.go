package llm

import (
	"context"
	"sync/atomic"
)

// Model performs a single text completion.
type Model interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Factory builds a Model bound to one credential and sampling temperature.
type Factory func(apiKey string, temperature float64) (Model, error)

// Counting wraps a Model and counts calls, including failed ones.
type Counting struct {
	model Model
	calls atomic.Int64
}

func NewCounting(model Model) *Counting {
	return &Counting{model: model}
}

func (c *Counting) Complete(ctx context.Context, prompt string) (string, error) {
	c.calls.Add(1)

	return c.model.Complete(ctx, prompt)
}

func (c *Counting) Calls() int {
	return int(c.calls.Load())
}
