package composer

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"crypto-summary-bot/internal/domain"

	"github.com/openai/openai-go"
	"go.opentelemetry.io/otel/trace"
)

func testCoin() domain.Coin {
	return domain.Coin{Symbol: "OWB", Name: "OpenWorld"}
}

func testResult() *domain.AggregateResult {
	return &domain.AggregateResult{
		Symbol: "OWB",
		Market: &domain.MarketSnapshot{PriceUSD: 0.0421, Change24hPct: 3.1},
	}
}

func newTestComposer(llm LLMClient, mem MemoryReader, cfg Config) *Composer {
	c := New(trace.NewNoopTracerProvider().Tracer("test"), llm, mem, cfg)
	c.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	return c
}

func TestComposeHappyPath(t *testing.T) {
	llm := &stubLLMClient{
		responses: []llmReply{
			{completion: completionWith("OWB held steady today.")},
		},
	}
	c := newTestComposer(llm, &stubMemory{}, Config{})

	got, err := c.Compose(context.Background(), testCoin(), testResult(), "morning")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "OWB held steady today." {
		t.Fatalf("expected summary text, got %q", got)
	}
	if llm.calls != 1 {
		t.Fatalf("expected 1 LLM call, got %d", llm.calls)
	}
}

func TestComposeMissingTemplate(t *testing.T) {
	mem := &stubMemory{templateErr: domain.ErrTemplateMissing}
	c := newTestComposer(&stubLLMClient{}, mem, Config{})

	_, err := c.Compose(context.Background(), testCoin(), testResult(), "morning")
	if !errors.Is(err, domain.ErrTemplateMissing) {
		t.Fatalf("expected ErrTemplateMissing, got %v", err)
	}
}

func TestComposeRetriesTransientThenSucceeds(t *testing.T) {
	llm := &stubLLMClient{
		responses: []llmReply{
			{err: apiError(http.StatusInternalServerError)},
			{err: context.DeadlineExceeded},
			{completion: completionWith("third time lucky")},
		},
	}
	c := newTestComposer(llm, &stubMemory{}, Config{MaxAttempts: 3})

	got, err := c.Compose(context.Background(), testCoin(), testResult(), "evening")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "third time lucky" {
		t.Fatalf("unexpected reply %q", got)
	}
	if llm.calls != 3 {
		t.Fatalf("expected 3 LLM calls, got %d", llm.calls)
	}
}

func TestComposeRetriesExhausted(t *testing.T) {
	llm := &stubLLMClient{
		responses: []llmReply{
			{err: apiError(http.StatusTooManyRequests)},
			{err: apiError(http.StatusTooManyRequests)},
			{err: apiError(http.StatusTooManyRequests)},
		},
	}
	c := newTestComposer(llm, &stubMemory{}, Config{MaxAttempts: 3})

	_, err := c.Compose(context.Background(), testCoin(), testResult(), "morning")
	var genErr *domain.AIGenerationError
	if !errors.As(err, &genErr) {
		t.Fatalf("expected AIGenerationError, got %v", err)
	}
	if !genErr.Transient {
		t.Fatal("expected transient=true after exhausting retries")
	}
	if llm.calls != 3 {
		t.Fatalf("expected 3 LLM calls, got %d", llm.calls)
	}
}

func TestComposeAuthFailureNoRetry(t *testing.T) {
	llm := &stubLLMClient{
		responses: []llmReply{
			{err: apiError(http.StatusUnauthorized)},
		},
	}
	c := newTestComposer(llm, &stubMemory{}, Config{MaxAttempts: 3})

	_, err := c.Compose(context.Background(), testCoin(), testResult(), "morning")
	var genErr *domain.AIGenerationError
	if !errors.As(err, &genErr) {
		t.Fatalf("expected AIGenerationError, got %v", err)
	}
	if genErr.Transient {
		t.Fatal("auth failure should not be marked transient")
	}
	if llm.calls != 1 {
		t.Fatalf("expected exactly 1 LLM call for auth failure, got %d", llm.calls)
	}
}

func TestComposeBadRequestNoRetry(t *testing.T) {
	llm := &stubLLMClient{
		responses: []llmReply{
			{err: apiError(http.StatusBadRequest)},
		},
	}
	c := newTestComposer(llm, &stubMemory{}, Config{MaxAttempts: 3})

	_, err := c.Compose(context.Background(), testCoin(), testResult(), "morning")
	if err == nil {
		t.Fatal("expected error")
	}
	if llm.calls != 1 {
		t.Fatalf("expected exactly 1 LLM call for bad request, got %d", llm.calls)
	}
}

func TestComposeEmptyReply(t *testing.T) {
	llm := &stubLLMClient{
		responses: []llmReply{
			{completion: completionWith("   ")},
		},
	}
	c := newTestComposer(llm, &stubMemory{}, Config{})

	_, err := c.Compose(context.Background(), testCoin(), testResult(), "morning")
	var genErr *domain.AIGenerationError
	if !errors.As(err, &genErr) {
		t.Fatalf("expected AIGenerationError for empty reply, got %v", err)
	}
}

func TestComposeReplyTooLong(t *testing.T) {
	llm := &stubLLMClient{
		responses: []llmReply{
			{completion: completionWith(strings.Repeat("x", 500))},
		},
	}
	c := newTestComposer(llm, &stubMemory{}, Config{MaxSummaryChars: 100})

	_, err := c.Compose(context.Background(), testCoin(), testResult(), "morning")
	var genErr *domain.AIGenerationError
	if !errors.As(err, &genErr) {
		t.Fatalf("expected AIGenerationError for oversized reply, got %v", err)
	}
	if !strings.Contains(genErr.Reason, "too long") {
		t.Fatalf("unexpected reason %q", genErr.Reason)
	}
}

func TestComposeMemoryFailureNonFatal(t *testing.T) {
	llm := &stubLLMClient{
		responses: []llmReply{
			{completion: completionWith("still works")},
		},
	}
	mem := &stubMemory{memoryErr: errors.New("db down")}
	c := newTestComposer(llm, mem, Config{})

	got, err := c.Compose(context.Background(), testCoin(), testResult(), "morning")
	if err != nil {
		t.Fatalf("memory read failure should be non-fatal, got: %v", err)
	}
	if got != "still works" {
		t.Fatalf("unexpected reply %q", got)
	}
}

func TestBackoffDelay(t *testing.T) {
	cases := []struct {
		retry int
		want  time.Duration
	}{
		{0, 1 * time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{4, 16 * time.Second},
		{5, 30 * time.Second},
		{100, 30 * time.Second},
	}
	for _, tc := range cases {
		if got := backoffDelay(tc.retry); got != tc.want {
			t.Errorf("backoffDelay(%d) = %v, want %v", tc.retry, got, tc.want)
		}
	}
}

// --- stubs ---

type llmReply struct {
	completion *openai.ChatCompletion
	err        error
}

type stubLLMClient struct {
	responses []llmReply
	calls     int
}

func (s *stubLLMClient) CreateChatCompletion(ctx context.Context, params openai.ChatCompletionNewParams) (*openai.ChatCompletion, error) {
	i := s.calls
	s.calls++
	if i >= len(s.responses) {
		return nil, errors.New("stub: no more responses")
	}
	return s.responses[i].completion, s.responses[i].err
}

type stubMemory struct {
	templateErr error
	memoryErr   error
	entries     []domain.MemoryEntry
}

func (s *stubMemory) GetTemplate(ctx context.Context, role domain.TemplateRole) (*domain.Template, error) {
	if s.templateErr != nil {
		return nil, s.templateErr
	}
	return &domain.Template{Role: role, Text: "template for " + string(role)}, nil
}

func (s *stubMemory) ListMemory(ctx context.Context) ([]domain.MemoryEntry, error) {
	if s.memoryErr != nil {
		return nil, s.memoryErr
	}
	return s.entries, nil
}

func completionWith(content string) *openai.ChatCompletion {
	return &openai.ChatCompletion{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: content}},
		},
	}
}

func apiError(status int) error {
	req, _ := http.NewRequest(http.MethodPost, "https://api.openai.com/v1/chat/completions", nil)
	return &openai.Error{
		StatusCode: status,
		Request:    req,
		Response:   &http.Response{StatusCode: status, Body: http.NoBody},
	}
}
