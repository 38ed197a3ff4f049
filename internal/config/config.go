package config

import (
	"log"
	"os"
	"strconv"
	"strings"
)

type SlotConfig struct {
	Name   string
	Hour   int
	Minute int
}

type Config struct {
	TelegramBotToken string
	DatabaseURL      string
	RedisURL         string

	CMCAPIKey     string
	CMCDailyQuota int

	SocialFeedURLs         []string
	SocialFetchTimeoutSecs int

	OpenAIAPIKey string
	OpenAIModel  string

	ScheduleTimezone string
	MorningSlot      SlotConfig
	EveningSlot      SlotConfig

	PipelineTimeoutSecs int
	PipelineWorkers     int

	MaxPromptBytes  int
	MaxSummaryChars int
	AIMaxAttempts   int
}

// Default nitter-style mirrors used when SOCIAL_FEED_URLS is not set.
// Order matters: the social client tries them front to back.
var defaultSocialFeeds = []string{
	"https://nitter.net",
	"https://nitter.poast.org",
	"https://nitter.privacyredirect.com",
}

func Load() *Config {
	cfg := &Config{
		TelegramBotToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		RedisURL:         os.Getenv("REDIS_URL"),
		CMCAPIKey:        os.Getenv("CMC_API_KEY"),
		OpenAIAPIKey:     os.Getenv("OPENAI_API_KEY"),
	}

	if cfg.TelegramBotToken == "" {
		log.Println("Warning: TELEGRAM_BOT_TOKEN not set, Telegram delivery disabled")
	}
	if cfg.DatabaseURL == "" {
		log.Println("Warning: DATABASE_URL not set")
	}
	if cfg.RedisURL == "" {
		log.Println("Warning: REDIS_URL not set, defaulting to localhost:6379")
		cfg.RedisURL = "localhost:6379"
	}
	if cfg.CMCAPIKey == "" {
		log.Println("Warning: CMC_API_KEY not set, CoinMarketCap source disabled")
	}
	if cfg.OpenAIAPIKey == "" {
		log.Println("Warning: OPENAI_API_KEY not set, summaries will fail")
	}

	cfg.CMCDailyQuota = 300
	if v := strings.TrimSpace(os.Getenv("CMC_DAILY_QUOTA")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.CMCDailyQuota = n
		}
	}

	cfg.SocialFeedURLs = append([]string(nil), defaultSocialFeeds...)
	if v := strings.TrimSpace(os.Getenv("SOCIAL_FEED_URLS")); v != "" {
		cfg.SocialFeedURLs = splitCSV(v)
	}

	cfg.SocialFetchTimeoutSecs = 8
	if v := strings.TrimSpace(os.Getenv("SOCIAL_FETCH_TIMEOUT_SECS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.SocialFetchTimeoutSecs = n
		}
	}

	cfg.OpenAIModel = strings.TrimSpace(os.Getenv("OPENAI_MODEL"))
	if cfg.OpenAIModel == "" {
		cfg.OpenAIModel = "gpt-4o-mini"
	}

	cfg.ScheduleTimezone = strings.TrimSpace(os.Getenv("SCHEDULE_TIMEZONE"))
	if cfg.ScheduleTimezone == "" {
		cfg.ScheduleTimezone = "Europe/Moscow"
	}

	cfg.MorningSlot = loadSlot("MORNING_SLOT", SlotConfig{Name: "morning", Hour: 8, Minute: 0})
	cfg.EveningSlot = loadSlot("EVENING_SLOT", SlotConfig{Name: "evening", Hour: 23, Minute: 0})

	cfg.PipelineTimeoutSecs = 300
	if v := strings.TrimSpace(os.Getenv("PIPELINE_TIMEOUT_SECS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.PipelineTimeoutSecs = n
		}
	}

	cfg.PipelineWorkers = 3
	if v := strings.TrimSpace(os.Getenv("PIPELINE_WORKERS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.PipelineWorkers = n
		}
	}

	cfg.MaxPromptBytes = 24576
	if v := strings.TrimSpace(os.Getenv("MAX_PROMPT_BYTES")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxPromptBytes = n
		}
	}

	cfg.MaxSummaryChars = 4000
	if v := strings.TrimSpace(os.Getenv("MAX_SUMMARY_CHARS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxSummaryChars = n
		}
	}

	cfg.AIMaxAttempts = 3
	if v := strings.TrimSpace(os.Getenv("AI_MAX_ATTEMPTS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.AIMaxAttempts = n
		}
	}

	return cfg
}

// loadSlot parses an HH:MM env value, keeping the fallback on any
// malformed input.
func loadSlot(env string, fallback SlotConfig) SlotConfig {
	v := strings.TrimSpace(os.Getenv(env))
	if v == "" {
		return fallback
	}
	parts := strings.SplitN(v, ":", 2)
	if len(parts) != 2 {
		log.Printf("Warning: malformed %s=%q, using %02d:%02d", env, v, fallback.Hour, fallback.Minute)
		return fallback
	}
	hour, err1 := strconv.Atoi(parts[0])
	minute, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil || hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		log.Printf("Warning: malformed %s=%q, using %02d:%02d", env, v, fallback.Hour, fallback.Minute)
		return fallback
	}
	return SlotConfig{Name: fallback.Name, Hour: hour, Minute: minute}
}

func splitCSV(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
