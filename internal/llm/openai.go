package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/responses"
)

const (
	DefaultModel                 = openai.ChatModelGPT4oMini
	DefaultMaxOutputTokens int64 = 1024

	contextLengthExceededCode = "context_length_exceeded"
)

var (
	ErrContextLengthExceeded = errors.New("prompt exceeds model context length")
	ErrEmptyPrompt           = errors.New("prompt is empty")
)

type OpenAIConfig struct {
	APIKey          string
	Temperature     float64
	Model           string
	BaseURL         string
	MaxOutputTokens int64
}

// OpenAIModel calls OpenAI's Responses API. Requests are never retried.
type OpenAIModel struct {
	client          openai.Client
	model           string
	temperature     float64
	maxOutputTokens int64
}

func NewOpenAIModel(cfg OpenAIConfig) *OpenAIModel {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if baseURL := strings.TrimSpace(cfg.BaseURL); baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}

	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = DefaultModel
	}

	maxOutputTokens := cfg.MaxOutputTokens
	if maxOutputTokens <= 0 {
		maxOutputTokens = DefaultMaxOutputTokens
	}

	return &OpenAIModel{
		client:          openai.NewClient(opts...),
		model:           model,
		temperature:     cfg.Temperature,
		maxOutputTokens: maxOutputTokens,
	}
}

// NewOpenAIFactory returns a Factory sharing everything but the credential
// and temperature.
func NewOpenAIFactory(base OpenAIConfig) Factory {
	return func(apiKey string, temperature float64) (Model, error) {
		cfg := base
		cfg.APIKey = apiKey
		cfg.Temperature = temperature

		return NewOpenAIModel(cfg), nil
	}
}

func (m *OpenAIModel) Complete(ctx context.Context, prompt string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", ErrEmptyPrompt
	}

	resp, err := m.client.Responses.New(ctx, responses.ResponseNewParams{
		Model:           m.model,
		Temperature:     openai.Float(m.temperature),
		MaxOutputTokens: openai.Int(m.maxOutputTokens),
		Input: responses.ResponseNewParamsInputUnion{
			OfString: openai.String(prompt),
		},
	})
	if err != nil {
		return "", classifyError(err)
	}

	if resp.Status == responses.ResponseStatusIncomplete {
		return "", fmt.Errorf(
			"response is incomplete (reason = %s, maxOutputTokens = %d)",
			resp.IncompleteDetails.Reason,
			m.maxOutputTokens,
		)
	}

	text := resp.OutputText()
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("output text is missing (status = %s)", resp.Status)
	}

	return text, nil
}

func classifyError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) && apiErr.Code == contextLengthExceededCode {
		return fmt.Errorf("do request: %w: %w", ErrContextLengthExceeded, err)
	}

	return fmt.Errorf("do request: %w", err)
}

// RedactError reduces an OpenAI API error to its status and code. The raw
// response body can echo part of the submitted key, so it must not reach the
// logs.
func RedactError(err error) error {
	var apiErr *openai.Error
	if !errors.As(err, &apiErr) {
		return err
	}

	if errors.Is(err, ErrContextLengthExceeded) {
		return fmt.Errorf("openai request failed (status = %d, code = %s): %w",
			apiErr.StatusCode, apiErr.Code, ErrContextLengthExceeded)
	}

	return fmt.Errorf("openai request failed (status = %d, code = %s, type = %s)",
		apiErr.StatusCode, apiErr.Code, apiErr.Type)
}
