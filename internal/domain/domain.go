package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

type ChainType string

const (
	ChainTypeStuff     ChainType = "stuff"
	ChainTypeMapReduce ChainType = "map_reduce"
	ChainTypeRefine    ChainType = "refine"

	DefaultChainType = ChainTypeStuff
)

var ErrUnsupportedChainType = errors.New("unsupported chain type")

// ChainTypes lists the strategies in the order they are offered to users.
func ChainTypes() []ChainType {
	return []ChainType{ChainTypeStuff, ChainTypeMapReduce, ChainTypeRefine}
}

func ParseChainType(raw string) (ChainType, error) {
	t := ChainType(strings.TrimSpace(raw))

	switch t {
	case ChainTypeStuff, ChainTypeMapReduce, ChainTypeRefine:
		return t, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedChainType, raw)
	}
}

func (t ChainType) String() string {
	return string(t)
}

// SummarizationRequest lives for one submission only. APIKey must never be
// logged or persisted.
type SummarizationRequest struct {
	APIKey    string
	URL       string
	ChainType ChainType
}

type Chunk struct {
	Index  int
	Text   string
	Source string
	Title  string
}

type Outcome string

const (
	OutcomeOK         Outcome = "ok"
	OutcomeInvalidURL Outcome = "invalid_url"
	OutcomeFailed     Outcome = "failed"
)

type Source string

const (
	SourceWeb      Source = "web"
	SourceAPI      Source = "api"
	SourceTelegram Source = "telegram"
)

type UsageEvent struct {
	Source     Source
	ChainType  ChainType
	Outcome    Outcome
	ChunkCount int
	LLMCalls   int
	Duration   time.Duration
}

type ChainStats struct {
	ChainType     ChainType `json:"chain_type"`
	Submissions   int64     `json:"submissions"`
	Succeeded     int64     `json:"succeeded"`
	Failed        int64     `json:"failed"`
	InvalidURL    int64     `json:"invalid_url"`
	AvgDurationMs float64   `json:"avg_duration_ms"`
	AvgLLMCalls   float64   `json:"avg_llm_calls"`
}

type ChatSettings struct {
	ChatID    int64
	ChainType ChainType
}
