// Package form runs one summarization submission: validate the URL, load the
// page, build a model, pick a strategy and run it.
package form

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"pagedigest/internal/chain"
	"pagedigest/internal/domain"
	"pagedigest/internal/llm"
	"pagedigest/internal/urlcheck"
)

const (
	InvalidURLMessage = "Please, insert a valid URL."

	Temperature = 0.2
)

var ErrNoModelFactory = errors.New("model factory is nil")

type Loader interface {
	Load(ctx context.Context, url string) ([]domain.Chunk, error)
}

type Recorder interface {
	RecordUsage(ctx context.Context, event domain.UsageEvent) error
}

// Result holds either a summary or a user-facing message, never both.
type Result struct {
	Summary string
	Message string
}

// Controller turns summarization requests into summaries.
type Controller struct {
	loader      Loader
	models      llm.Factory
	recorder    Recorder
	parallelism int
	log         *slog.Logger
}

// Option configures a Controller.
type Option func(*Controller)

// WithRecorder stores a usage event for every submission.
func WithRecorder(r Recorder) Option {
	return func(c *Controller) {
		c.recorder = r
	}
}

// WithParallelism caps concurrent model calls of the map step.
func WithParallelism(n int) Option {
	return func(c *Controller) {
		c.parallelism = n
	}
}

// New builds a new controller instance.
func New(loader Loader, models llm.Factory, log *slog.Logger, opts ...Option) *Controller {
	c := &Controller{
		loader:      loader,
		models:      models,
		parallelism: chain.DefaultParallelism,
		log:         log,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Submit handles one request synchronously. An invalid URL is not an error:
// it yields Result.Message and touches neither the loader nor the model.
func (c *Controller) Submit(
	ctx context.Context,
	source domain.Source,
	req domain.SummarizationRequest,
) (Result, error) {
	start := time.Now()
	event := domain.UsageEvent{
		Source:    source,
		ChainType: req.ChainType,
	}

	defer func() {
		event.Duration = time.Since(start)
		c.record(ctx, event)
	}()

	if !urlcheck.Valid(strings.TrimSpace(req.URL)) {
		event.Outcome = domain.OutcomeInvalidURL

		c.log.InfoContext(ctx, "Rejected submission with invalid URL",
			"source", source,
			"chainType", req.ChainType)

		return Result{Message: InvalidURLMessage}, nil
	}

	summary, chunkCount, calls, err := c.summarize(ctx, req)
	event.ChunkCount = chunkCount
	event.LLMCalls = calls

	if err != nil {
		event.Outcome = domain.OutcomeFailed

		c.log.ErrorContext(ctx, "Failed to summarize page",
			"error", llm.RedactError(err),
			"source", source,
			"chainType", req.ChainType,
			"chunkCount", chunkCount,
			"llmCalls", calls)

		return Result{}, err
	}

	event.Outcome = domain.OutcomeOK

	c.log.InfoContext(ctx, "Summarized page",
		"source", source,
		"chainType", req.ChainType,
		"chunkCount", chunkCount,
		"llmCalls", calls,
		"duration", time.Since(start))

	return Result{Summary: summary}, nil
}

func (c *Controller) summarize(
	ctx context.Context,
	req domain.SummarizationRequest,
) (string, int, int, error) {
	if c.models == nil {
		return "", 0, 0, ErrNoModelFactory
	}

	chunks, err := c.loader.Load(ctx, strings.TrimSpace(req.URL))
	if err != nil {
		return "", 0, 0, fmt.Errorf("load document: %w", err)
	}

	model, err := c.models(req.APIKey, Temperature)
	if err != nil {
		return "", len(chunks), 0, fmt.Errorf("create model: %w", err)
	}

	counting := llm.NewCounting(model)

	ch, err := chain.Load(counting, req.ChainType, chain.WithParallelism(c.parallelism))
	if err != nil {
		return "", len(chunks), 0, fmt.Errorf("load chain: %w", err)
	}

	summary, err := ch.Run(ctx, chunks)
	if err != nil {
		return "", len(chunks), counting.Calls(), fmt.Errorf("run %s chain: %w", req.ChainType, err)
	}

	return summary, len(chunks), counting.Calls(), nil
}

// record never fails the submission. It detaches from ctx cancellation so a
// client disconnect still leaves a usage row.
func (c *Controller) record(ctx context.Context, event domain.UsageEvent) {
	if c.recorder == nil {
		return
	}

	if err := c.recorder.RecordUsage(context.WithoutCancel(ctx), event); err != nil {
		c.log.WarnContext(ctx, "Failed to record usage",
			"error", err,
			"source", event.Source,
			"outcome", event.Outcome)
	}
}
