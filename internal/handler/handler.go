package handler

import (
	"context"

	"crypto-summary-bot/internal/domain"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"
)

// PipelineRunner triggers one full summary run.
type PipelineRunner interface {
	Run(ctx context.Context, trigger string) (domain.RunResult, error)
}

// SummarySource serves stored summaries.
type SummarySource interface {
	Latest(ctx context.Context, symbol string) (*domain.Summary, error)
}

// SummaryArchive serves historical summaries straight from Postgres.
type SummaryArchive interface {
	Recent(ctx context.Context, symbol string, limit int) ([]domain.Summary, error)
}

// CoinStore manages the tracked-coin watchlist.
type CoinStore interface {
	ListAll(ctx context.Context) ([]domain.Coin, error)
	Upsert(ctx context.Context, coin domain.Coin) error
	SetActive(ctx context.Context, symbol string, active bool) error
	Remove(ctx context.Context, symbol string) error
}

// MemoryStore manages templates and learned context.
type MemoryStore interface {
	GetTemplate(ctx context.Context, role domain.TemplateRole) (*domain.Template, error)
	SetTemplate(ctx context.Context, role domain.TemplateRole, text string) error
	ListMemory(ctx context.Context) ([]domain.MemoryEntry, error)
	UpsertMemory(ctx context.Context, key, value string) error
	RemoveMemory(ctx context.Context, key string) error
}

type Handler struct {
	tracer    trace.Tracer
	runner    PipelineRunner
	summaries SummarySource
	archive   SummaryArchive
	coins     CoinStore
	memory    MemoryStore
}

func New(
	tracer trace.Tracer,
	runner PipelineRunner,
	summaries SummarySource,
	archive SummaryArchive,
	coins CoinStore,
	memory MemoryStore,
) *Handler {
	return &Handler{
		tracer:    tracer,
		runner:    runner,
		summaries: summaries,
		archive:   archive,
		coins:     coins,
		memory:    memory,
	}
}

// RegisterRoutes mounts the API. Health stays outside the key check
// so probes keep working when auth is enabled.
func (h *Handler) RegisterRoutes(r *gin.Engine, apiKey string) {
	r.GET("/health", h.Health)

	api := r.Group("/api", APIKeyAuth(apiKey))
	api.GET("/summaries/:symbol", h.GetLatestSummary)
	api.GET("/summaries/:symbol/history", h.GetSummaryHistory)
	api.POST("/run", h.TriggerRun)
	api.GET("/coins", h.ListCoins)
	api.POST("/coins", h.UpsertCoin)
	api.DELETE("/coins/:symbol", h.RemoveCoin)
	api.GET("/memory", h.ListMemory)
	api.PUT("/memory/:key", h.UpsertMemory)
	api.DELETE("/memory/:key", h.RemoveMemory)
	api.GET("/templates/:role", h.GetTemplate)
	api.PUT("/templates/:role", h.SetTemplate)
}
