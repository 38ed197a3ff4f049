package bot

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"crypto-summary-bot/internal/domain"

	tele "gopkg.in/telebot.v3"
)

// SummaryService is the slice of the pipeline the bot needs.
type SummaryService interface {
	Latest(ctx context.Context, symbol string) (*domain.Summary, error)
	Run(ctx context.Context, trigger string) (domain.RunResult, error)
}

// MemoryService manages templates and learned context from chat.
type MemoryService interface {
	ListMemory(ctx context.Context) ([]domain.MemoryEntry, error)
	UpsertMemory(ctx context.Context, key, value string) error
	RemoveMemory(ctx context.Context, key string) error
	GetTemplate(ctx context.Context, role domain.TemplateRole) (*domain.Template, error)
}

// StartTelegramBot wires chat commands to the pipeline. Without a
// token the bot is skipped so the server still runs headless.
func StartTelegramBot(summaries SummaryService, memory MemoryService) {
	token := os.Getenv("TELEGRAM_BOT_TOKEN")
	if token == "" {
		log.Println("TELEGRAM_BOT_TOKEN not set, skipping Telegram bot startup")
		return
	}
	pref := tele.Settings{
		Token:  token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
	}
	b, err := tele.NewBot(pref)
	if err != nil {
		log.Fatalf("failed to create Telegram bot: %v", err)
	}

	b.Handle("/ping", func(c tele.Context) error {
		return c.Send("pong")
	})

	b.Handle("/summary", func(c tele.Context) error {
		args := c.Args()
		if len(args) == 0 {
			return c.Send("Usage: /summary OWB")
		}
		symbol := strings.ToUpper(args[0])
		sum, err := summaries.Latest(context.Background(), symbol)
		if err != nil {
			return c.Send(fmt.Sprintf("No summary for %s yet: %v", symbol, err))
		}
		return c.Send(fmt.Sprintf("%s (%s, %s)\n\n%s",
			sum.Symbol, sum.Trigger, sum.CreatedAt.Format("2006-01-02 15:04"), sum.Content))
	})

	b.Handle("/run", func(c tele.Context) error {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
			defer cancel()
			if _, err := summaries.Run(ctx, "manual"); err != nil {
				log.Printf("Manual run from Telegram failed: %v", err)
			}
		}()
		return c.Send("Summary run started. Results land in /summary shortly.")
	})

	b.Handle("/teach", func(c tele.Context) error {
		key, value, ok := splitTeach(c.Message().Payload)
		if !ok {
			return c.Send("Usage: /teach key: value\nExample: /teach analysis_style: concise and factual")
		}
		if err := memory.UpsertMemory(context.Background(), key, value); err != nil {
			return c.Send(fmt.Sprintf("Failed to save: %v", err))
		}
		return c.Send(fmt.Sprintf("Learned %s", key))
	})

	b.Handle("/forget", func(c tele.Context) error {
		args := c.Args()
		if len(args) == 0 {
			return c.Send("Usage: /forget key")
		}
		if err := memory.RemoveMemory(context.Background(), args[0]); err != nil {
			return c.Send(fmt.Sprintf("Failed to forget: %v", err))
		}
		return c.Send(fmt.Sprintf("Forgot %s", args[0]))
	})

	b.Handle("/memory", func(c tele.Context) error {
		entries, err := memory.ListMemory(context.Background())
		if err != nil {
			return c.Send(fmt.Sprintf("Failed to list memory: %v", err))
		}
		if len(entries) == 0 {
			return c.Send("No learned context yet. Use /teach key: value")
		}
		var sb strings.Builder
		sb.WriteString("Learned context:\n")
		for _, e := range entries {
			fmt.Fprintf(&sb, "- %s: %s\n", e.Key, e.Value)
		}
		return c.Send(sb.String())
	})

	b.Handle("/template", func(c tele.Context) error {
		args := c.Args()
		if len(args) == 0 {
			return c.Send("Usage: /template system | /template summary-format")
		}
		tpl, err := memory.GetTemplate(context.Background(), domain.TemplateRole(args[0]))
		if err != nil {
			return c.Send(fmt.Sprintf("Failed to load template: %v", err))
		}
		return c.Send(fmt.Sprintf("Template %s:\n\n%s", tpl.Role, tpl.Text))
	})

	log.Println("Telegram bot started")
	go b.Start()
}

// splitTeach parses "key: value" payloads.
func splitTeach(payload string) (string, string, bool) {
	key, value, found := strings.Cut(payload, ":")
	key = strings.TrimSpace(key)
	value = strings.TrimSpace(value)
	if !found || key == "" || value == "" {
		return "", "", false
	}
	return key, value, true
}
