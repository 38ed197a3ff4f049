package composer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"
	"time"

	"crypto-summary-bot/internal/domain"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	retryBaseDelay = 1 * time.Second
	retryMaxDelay  = 30 * time.Second
)

// LLMClient abstracts the chat completions API for testability.
type LLMClient interface {
	CreateChatCompletion(ctx context.Context, params openai.ChatCompletionNewParams) (*openai.ChatCompletion, error)
}

// MemoryReader supplies the templates and learned context injected
// into every prompt.
type MemoryReader interface {
	GetTemplate(ctx context.Context, role domain.TemplateRole) (*domain.Template, error)
	ListMemory(ctx context.Context) ([]domain.MemoryEntry, error)
}

type Config struct {
	Model           string
	MaxPromptBytes  int
	MaxSummaryChars int
	MaxAttempts     int
}

// Composer turns an aggregate result into a generated summary. One
// provider call per attempt; transient provider failures are retried
// with exponential backoff, everything else fails fast.
type Composer struct {
	tracer trace.Tracer
	llm    LLMClient
	memory MemoryReader
	cfg    Config
	sleep  func(ctx context.Context, d time.Duration) error
}

func New(tracer trace.Tracer, llm LLMClient, memory MemoryReader, cfg Config) *Composer {
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.MaxPromptBytes <= 0 {
		cfg.MaxPromptBytes = 24576
	}
	if cfg.MaxSummaryChars <= 0 {
		cfg.MaxSummaryChars = 4000
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	return &Composer{
		tracer: tracer,
		llm:    llm,
		memory: memory,
		cfg:    cfg,
		sleep:  sleepCtx,
	}
}

// Compose builds the prompt for one coin and invokes the AI provider.
func (c *Composer) Compose(ctx context.Context, coin domain.Coin, result *domain.AggregateResult, trigger string) (string, error) {
	ctx, span := c.tracer.Start(ctx, "composer.compose")
	defer span.End()
	span.SetAttributes(
		attribute.String("symbol", coin.Symbol),
		attribute.String("trigger", trigger),
	)

	systemTpl, err := c.memory.GetTemplate(ctx, domain.TemplateSystem)
	if err != nil {
		return "", err
	}
	formatTpl, err := c.memory.GetTemplate(ctx, domain.TemplateSummaryFormat)
	if err != nil {
		return "", err
	}

	entries, err := c.memory.ListMemory(ctx)
	if err != nil {
		log.Printf("failed to load memory entries: %v", err)
		entries = nil
	}

	user := fitPrompt(promptInput{
		systemText: systemTpl.Text,
		formatText: formatTpl.Text,
		memory:     entries,
		coin:       coin,
		result:     result,
		trigger:    trigger,
	}, c.cfg.MaxPromptBytes)
	span.SetAttributes(attribute.Int("prompt_bytes", promptSize(systemTpl.Text, user)))

	reply, err := c.callWithRetry(ctx, systemTpl.Text, user)
	if err != nil {
		span.RecordError(err)
		return "", err
	}

	reply = strings.TrimSpace(reply)
	if reply == "" {
		return "", &domain.AIGenerationError{Reason: "empty response"}
	}
	if len(reply) > c.cfg.MaxSummaryChars {
		return "", &domain.AIGenerationError{
			Reason: fmt.Sprintf("response too long: %d > %d chars", len(reply), c.cfg.MaxSummaryChars),
		}
	}
	span.SetAttributes(attribute.Int("summary_length", len(reply)))
	return reply, nil
}

func (c *Composer) callWithRetry(ctx context.Context, systemText, userText string) (string, error) {
	var lastErr error
	for attempt := 0; attempt < c.cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			if err := c.sleep(ctx, backoffDelay(attempt-1)); err != nil {
				return "", &domain.AIGenerationError{Reason: "cancelled while waiting to retry", Err: err}
			}
		}

		reply, err := c.callOnce(ctx, systemText, userText)
		if err == nil {
			return reply, nil
		}
		lastErr = err

		if !isTransient(err) {
			return "", &domain.AIGenerationError{Reason: "provider rejected request", Err: err}
		}
		log.Printf("transient AI provider failure (attempt %d/%d): %v", attempt+1, c.cfg.MaxAttempts, err)
	}
	return "", &domain.AIGenerationError{Reason: "retries exhausted", Transient: true, Err: lastErr}
}

func (c *Composer) callOnce(ctx context.Context, systemText, userText string) (string, error) {
	ctx, span := c.tracer.Start(ctx, "composer.llm-call")
	defer span.End()
	span.SetAttributes(attribute.String("llm.model", c.cfg.Model))

	completion, err := c.llm.CreateChatCompletion(ctx, openai.ChatCompletionNewParams{
		Model: c.cfg.Model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemText),
			openai.UserMessage(userText),
		},
	})
	if err != nil {
		return "", err
	}
	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("no choices in LLM response")
	}
	return completion.Choices[0].Message.Content, nil
}

// isTransient reports whether a provider failure is worth retrying.
// Timeouts and 5xx/429-class responses are; auth and malformed-request
// errors are not. Unknown transport errors count as transient unless
// the caller's context is already gone.
func isTransient(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusRequestTimeout,
			apiErr.StatusCode == http.StatusTooManyRequests,
			apiErr.StatusCode >= 500:
			return true
		default:
			return false
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return true
}

// backoffDelay doubles per retry from the base, capped.
func backoffDelay(retry int) time.Duration {
	if retry < 0 {
		return retryBaseDelay
	}
	if retry > 10 {
		return retryMaxDelay
	}
	d := retryBaseDelay * time.Duration(1<<retry)
	if d > retryMaxDelay {
		return retryMaxDelay
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// openaiClient wraps the official SDK's chat completions service.
type openaiClient struct {
	client openai.Client
}

func NewOpenAIClient(apiKey string) LLMClient {
	client := openai.NewClient(option.WithAPIKey(apiKey))
	return &openaiClient{client: client}
}

func (c *openaiClient) CreateChatCompletion(
	ctx context.Context,
	params openai.ChatCompletionNewParams,
) (*openai.ChatCompletion, error) {
	return c.client.Chat.Completions.New(ctx, params)
}
