package chain_test

import (
	"context"
	"errors"
	"fmt"
	"pagedigest/internal/chain"
	"pagedigest/internal/domain"
	"strings"
	"sync"
	"testing"
	"time"
)

type recordingModel struct {
	mu      sync.Mutex
	prompts []string
	reply   func(call int, prompt string) (string, error)
}

func (m *recordingModel) Complete(_ context.Context, prompt string) (string, error) {
	m.mu.Lock()
	m.prompts = append(m.prompts, prompt)
	call := len(m.prompts)
	m.mu.Unlock()

	if m.reply == nil {
		return fmt.Sprintf("summary-%d", call), nil
	}

	return m.reply(call, prompt)
}

func (m *recordingModel) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.prompts)
}

func (m *recordingModel) promptsCopy() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]string(nil), m.prompts...)
}

func makeChunks(texts ...string) []domain.Chunk {
	chunks := make([]domain.Chunk, len(texts))
	for i, text := range texts {
		chunks[i] = domain.Chunk{Index: i, Text: text}
	}

	return chunks
}

func mustLoad(t *testing.T, m *recordingModel, chainType domain.ChainType, opts ...chain.Option) chain.Chain {
	t.Helper()

	c, err := chain.Load(m, chainType, opts...)
	if err != nil {
		t.Fatalf("load chain: %v", err)
	}

	return c
}

func TestStuffIssuesOneCallWithAllChunks(t *testing.T) {
	m := &recordingModel{reply: func(int, string) (string, error) {
		return "  The LLM's returned string.\n", nil
	}}
	c := mustLoad(t, m, domain.ChainTypeStuff)

	got, err := c.Run(context.Background(), makeChunks("¶1", "¶2"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got != "  The LLM's returned string.\n" {
		t.Fatalf("expected output to be returned unchanged, got %q", got)
	}

	prompts := m.promptsCopy()
	if len(prompts) != 1 {
		t.Fatalf("expected exactly one call, got %d", len(prompts))
	}
	if !strings.Contains(prompts[0], "¶1") || !strings.Contains(prompts[0], "¶2") {
		t.Fatalf("expected prompt to contain both paragraphs, got %q", prompts[0])
	}
	if strings.Index(prompts[0], "¶1") > strings.Index(prompts[0], "¶2") {
		t.Fatalf("expected chunks in order, got %q", prompts[0])
	}
}

func TestStuffCallCountIndependentOfChunkCount(t *testing.T) {
	for _, n := range []int{1, 5, 40} {
		m := &recordingModel{}
		c := mustLoad(t, m, domain.ChainTypeStuff)

		texts := make([]string, n)
		for i := range texts {
			texts[i] = fmt.Sprintf("chunk %d", i)
		}

		if _, err := c.Run(context.Background(), makeChunks(texts...)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got := m.callCount(); got != 1 {
			t.Fatalf("expected one call for %d chunks, got %d", n, got)
		}
	}
}

func TestStuffPropagatesContextLengthError(t *testing.T) {
	errTooLong := errors.New("context_length_exceeded")
	m := &recordingModel{reply: func(int, string) (string, error) {
		return "", errTooLong
	}}
	c := mustLoad(t, m, domain.ChainTypeStuff)

	_, err := c.Run(context.Background(), makeChunks("a", "b"))
	if !errors.Is(err, errTooLong) {
		t.Fatalf("expected provider error to propagate, got %v", err)
	}
}

func TestMapReduceIssuesNPlusOneCalls(t *testing.T) {
	m := &recordingModel{reply: func(_ int, prompt string) (string, error) {
		for _, text := range []string{"alpha", "bravo", "charlie"} {
			if strings.Contains(prompt, "\""+text+"\"") {
				return "partial-" + text, nil
			}
		}
		return "combined", nil
	}}
	c := mustLoad(t, m, domain.ChainTypeMapReduce)

	got, err := c.Run(context.Background(), makeChunks("alpha", "bravo", "charlie"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got != "combined" {
		t.Fatalf("unexpected summary: %q", got)
	}

	prompts := m.promptsCopy()
	if len(prompts) != 4 {
		t.Fatalf("expected 4 calls for 3 chunks, got %d", len(prompts))
	}

	combine := prompts[3]
	a := strings.Index(combine, "partial-alpha")
	b := strings.Index(combine, "partial-bravo")
	ch := strings.Index(combine, "partial-charlie")
	if a < 0 || b < 0 || ch < 0 || a > b || b > ch {
		t.Fatalf("expected combine prompt with partials in chunk order, got %q", combine)
	}
}

func TestMapReduceSingleChunkStillCombines(t *testing.T) {
	m := &recordingModel{}
	c := mustLoad(t, m, domain.ChainTypeMapReduce)

	if _, err := c.Run(context.Background(), makeChunks("only")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := m.callCount(); got != 2 {
		t.Fatalf("expected 2 calls for 1 chunk, got %d", got)
	}
}

type gatedModel struct {
	mu       sync.Mutex
	inFlight int
	peak     int
	release  chan struct{}
}

func (m *gatedModel) Complete(ctx context.Context, prompt string) (string, error) {
	m.mu.Lock()
	m.inFlight++
	m.peak = max(m.peak, m.inFlight)
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.inFlight--
		m.mu.Unlock()
	}()

	if strings.Contains(prompt, "partial") {
		return "combined", nil
	}

	select {
	case <-m.release:
	case <-ctx.Done():
		return "", ctx.Err()
	}

	return "partial", nil
}

func TestMapReduceRunsPartialsConcurrently(t *testing.T) {
	m := &gatedModel{release: make(chan struct{})}
	c, err := chain.Load(m, domain.ChainTypeMapReduce, chain.WithParallelism(3))
	if err != nil {
		t.Fatalf("load chain: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		_, runErr := c.Run(context.Background(), makeChunks("a", "b", "c", "d", "e", "f"))
		done <- runErr
	}()

	deadline := time.After(5 * time.Second)
	for {
		m.mu.Lock()
		inFlight := m.inFlight
		m.mu.Unlock()

		if inFlight == 3 {
			break
		}

		select {
		case <-deadline:
			t.Fatalf("expected 3 concurrent partial calls, got %d", inFlight)
		case <-time.After(time.Millisecond):
		}
	}

	close(m.release)

	if err = <-done; err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.peak > 3 {
		t.Fatalf("expected parallelism to be bounded by 3, peak %d", m.peak)
	}
}

func TestMapReduceAbortsOnFirstError(t *testing.T) {
	errBoom := errors.New("boom")
	m := &recordingModel{reply: func(_ int, prompt string) (string, error) {
		if strings.Contains(prompt, "\"bad\"") {
			return "", errBoom
		}
		return "ok", nil
	}}
	c := mustLoad(t, m, domain.ChainTypeMapReduce)

	_, err := c.Run(context.Background(), makeChunks("good", "bad", "good"))
	if !errors.Is(err, errBoom) {
		t.Fatalf("expected map error to propagate, got %v", err)
	}

	for _, prompt := range m.promptsCopy() {
		if strings.Contains(prompt, "\"ok") {
			t.Fatalf("expected no combine call after failure, got %q", prompt)
		}
	}
}

func TestRefineIssuesNSequentialCalls(t *testing.T) {
	m := &recordingModel{reply: func(call int, _ string) (string, error) {
		return fmt.Sprintf("running-summary-%d", call), nil
	}}
	c := mustLoad(t, m, domain.ChainTypeRefine)

	got, err := c.Run(context.Background(), makeChunks("first", "second", "third"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got != "running-summary-3" {
		t.Fatalf("expected last call output, got %q", got)
	}

	prompts := m.promptsCopy()
	if len(prompts) != 3 {
		t.Fatalf("expected 3 calls for 3 chunks, got %d", len(prompts))
	}

	if !strings.Contains(prompts[0], "first") {
		t.Fatalf("expected first prompt to cover the first chunk, got %q", prompts[0])
	}

	for i, text := range []string{"second", "third"} {
		prompt := prompts[i+1]
		if !strings.Contains(prompt, text) {
			t.Fatalf("expected prompt %d to contain chunk %q, got %q", i+1, text, prompt)
		}
		previous := fmt.Sprintf("running-summary-%d", i+1)
		if !strings.Contains(prompt, previous) {
			t.Fatalf("expected prompt %d to contain previous output %q, got %q", i+1, previous, prompt)
		}
	}
}

func TestRefineStopsOnError(t *testing.T) {
	errBoom := errors.New("boom")
	m := &recordingModel{reply: func(call int, _ string) (string, error) {
		if call == 2 {
			return "", errBoom
		}
		return "ok", nil
	}}
	c := mustLoad(t, m, domain.ChainTypeRefine)

	_, err := c.Run(context.Background(), makeChunks("a", "b", "c", "d"))
	if !errors.Is(err, errBoom) {
		t.Fatalf("expected error to propagate, got %v", err)
	}

	if got := m.callCount(); got != 2 {
		t.Fatalf("expected refine to stop after failing call, got %d calls", got)
	}
}

func TestLoadRejectsUnknownChainType(t *testing.T) {
	_, err := chain.Load(&recordingModel{}, domain.ChainType("map_rerank"))
	if !errors.Is(err, domain.ErrUnsupportedChainType) {
		t.Fatalf("expected ErrUnsupportedChainType, got %v", err)
	}
}

func TestRunRejectsNoChunks(t *testing.T) {
	for _, chainType := range domain.ChainTypes() {
		m := &recordingModel{}
		c := mustLoad(t, m, chainType)

		if _, err := c.Run(context.Background(), nil); !errors.Is(err, chain.ErrNoChunks) {
			t.Fatalf("%s: expected ErrNoChunks, got %v", chainType, err)
		}
		if got := m.callCount(); got != 0 {
			t.Fatalf("%s: expected no calls, got %d", chainType, got)
		}
	}
}
