package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

const completedResponse = `{
  "id": "resp_1",
  "object": "response",
  "status": "completed",
  "model": "gpt-4o-mini",
  "output": [{
    "type": "message",
    "id": "msg_1",
    "role": "assistant",
    "status": "completed",
    "content": [{"type": "output_text", "text": "A concise summary.", "annotations": []}]
  }]
}`

type capturedRequest struct {
	mu            sync.Mutex
	calls         int
	authorization string
	body          map[string]any
}

func newTestServer(t *testing.T, status int, response string) (*httptest.Server, *capturedRequest) {
	t.Helper()

	captured := &capturedRequest{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/responses" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}

		raw, err := io.ReadAll(r.Body)
		if err != nil {
			t.Errorf("read body: %v", err)
		}

		captured.mu.Lock()
		captured.calls++
		captured.authorization = r.Header.Get("Authorization")
		_ = json.Unmarshal(raw, &captured.body)
		captured.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(response))
	}))
	t.Cleanup(srv.Close)

	return srv, captured
}

func TestOpenAIModelComplete(t *testing.T) {
	srv, captured := newTestServer(t, http.StatusOK, completedResponse)

	factory := NewOpenAIFactory(OpenAIConfig{BaseURL: srv.URL + "/v1/", Model: "gpt-4o-mini"})
	model, err := factory("sk-test", 0.2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := model.Complete(context.Background(), "Summarize this")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got != "A concise summary." {
		t.Fatalf("unexpected completion: %q", got)
	}

	captured.mu.Lock()
	defer captured.mu.Unlock()

	if captured.authorization != "Bearer sk-test" {
		t.Fatalf("unexpected authorization header: %q", captured.authorization)
	}
	if temperature, _ := captured.body["temperature"].(float64); temperature != 0.2 {
		t.Fatalf("unexpected temperature: %v", captured.body["temperature"])
	}
	if input, _ := captured.body["input"].(string); input != "Summarize this" {
		t.Fatalf("unexpected input: %v", captured.body["input"])
	}
}

func TestOpenAIModelContextLengthExceeded(t *testing.T) {
	srv, captured := newTestServer(t, http.StatusBadRequest, `{"error": {
		"message": "This model's maximum context length is 4097 tokens.",
		"type": "invalid_request_error",
		"param": "input",
		"code": "context_length_exceeded"
	}}`)

	model := NewOpenAIModel(OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL + "/v1/"})

	_, err := model.Complete(context.Background(), "a very long prompt")
	if !errors.Is(err, ErrContextLengthExceeded) {
		t.Fatalf("expected ErrContextLengthExceeded, got %v", err)
	}

	captured.mu.Lock()
	defer captured.mu.Unlock()

	if captured.calls != 1 {
		t.Fatalf("expected exactly one request, got %d", captured.calls)
	}
}

func TestOpenAIModelDoesNotRetry(t *testing.T) {
	srv, captured := newTestServer(t, http.StatusInternalServerError, `{"error": {
		"message": "boom", "type": "server_error", "param": "", "code": "server_error"
	}}`)

	model := NewOpenAIModel(OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL + "/v1/"})

	_, err := model.Complete(context.Background(), "prompt")
	if err == nil {
		t.Fatalf("expected error")
	}
	if errors.Is(err, ErrContextLengthExceeded) {
		t.Fatalf("unexpected classification: %v", err)
	}

	captured.mu.Lock()
	defer captured.mu.Unlock()

	if captured.calls != 1 {
		t.Fatalf("expected no retries, got %d requests", captured.calls)
	}
}

func TestOpenAIModelIncompleteResponse(t *testing.T) {
	srv, _ := newTestServer(t, http.StatusOK, `{
		"id": "resp_2", "object": "response", "status": "incomplete",
		"incomplete_details": {"reason": "max_output_tokens"}, "output": []
	}`)

	model := NewOpenAIModel(OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL + "/v1/"})

	if _, err := model.Complete(context.Background(), "prompt"); err == nil {
		t.Fatalf("expected error for incomplete response")
	}
}

func TestOpenAIModelRejectsEmptyPrompt(t *testing.T) {
	model := NewOpenAIModel(OpenAIConfig{APIKey: "sk-test", BaseURL: "http://127.0.0.1:1/v1/"})

	if _, err := model.Complete(context.Background(), "  "); !errors.Is(err, ErrEmptyPrompt) {
		t.Fatalf("expected ErrEmptyPrompt, got %v", err)
	}
}

type echoModel struct{}

func (echoModel) Complete(_ context.Context, prompt string) (string, error) {
	return prompt, nil
}

func TestCountingCountsCalls(t *testing.T) {
	counting := NewCounting(echoModel{})

	for range 3 {
		if _, err := counting.Complete(context.Background(), "x"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if got := counting.Calls(); got != 3 {
		t.Fatalf("expected 3 calls, got %d", got)
	}
}

const invalidKeyResponse = `{"error": {
	"message": "Incorrect API key provided: sk-live-abcd. You can find your API key at https://platform.openai.com/account/api-keys.",
	"type": "invalid_request_error",
	"param": null,
	"code": "invalid_api_key"
}}`

func TestRedactErrorDropsResponseBody(t *testing.T) {
	srv, _ := newTestServer(t, http.StatusUnauthorized, invalidKeyResponse)

	model := NewOpenAIModel(OpenAIConfig{APIKey: "sk-live-abcd", BaseURL: srv.URL + "/v1/"})

	_, err := model.Complete(context.Background(), "prompt")
	if err == nil {
		t.Fatalf("expected error")
	}

	redacted := RedactError(err).Error()
	if strings.Contains(redacted, "sk-live") || strings.Contains(redacted, "Incorrect API key") {
		t.Fatalf("expected response body to be dropped, got %q", redacted)
	}
	if !strings.Contains(redacted, "401") || !strings.Contains(redacted, "invalid_api_key") {
		t.Fatalf("expected status and code to be kept, got %q", redacted)
	}
}

func TestRedactErrorKeepsContextLengthClassification(t *testing.T) {
	srv, _ := newTestServer(t, http.StatusBadRequest, `{"error": {
		"message": "This model's maximum context length is 4097 tokens.",
		"type": "invalid_request_error",
		"param": "input",
		"code": "context_length_exceeded"
	}}`)

	model := NewOpenAIModel(OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL + "/v1/"})

	_, err := model.Complete(context.Background(), "prompt")
	if !errors.Is(RedactError(err), ErrContextLengthExceeded) {
		t.Fatalf("expected ErrContextLengthExceeded to survive redaction, got %v", RedactError(err))
	}
}

func TestRedactErrorPassesOtherErrorsThrough(t *testing.T) {
	err := errors.New("dial tcp: connection refused")

	if got := RedactError(err); got != err {
		t.Fatalf("expected the same error, got %v", got)
	}
}
