package repository

import (
	"context"
	"fmt"
	"strings"

	"crypto-summary-bot/internal/domain"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel/trace"
)

// CreateSummariesTable is the summaries DDL, shared with cmd/migrate.
const CreateSummariesTable = `
CREATE TABLE IF NOT EXISTS summaries (
    id         BIGSERIAL   PRIMARY KEY,
    symbol     TEXT        NOT NULL,
    trigger_name TEXT       NOT NULL,
    content    TEXT        NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_summaries_symbol_created
    ON summaries (symbol, created_at DESC);
`

// SummaryRepository persists generated summaries.
type SummaryRepository struct {
	pool   PgxPool
	tracer trace.Tracer
}

func NewSummaryRepository(pool PgxPool, tracer trace.Tracer) *SummaryRepository {
	return &SummaryRepository{pool: pool, tracer: tracer}
}

func (r *SummaryRepository) RunMigrations(ctx context.Context) error {
	_, span := r.tracer.Start(ctx, "summary-repo.run-migrations")
	defer span.End()

	_, err := r.pool.Exec(ctx, CreateSummariesTable)
	return err
}

func (r *SummaryRepository) Insert(ctx context.Context, s *domain.Summary) error {
	_, span := r.tracer.Start(ctx, "summary-repo.insert")
	defer span.End()

	if strings.TrimSpace(s.Content) == "" {
		return fmt.Errorf("summary content cannot be empty")
	}
	return r.pool.QueryRow(ctx,
		`INSERT INTO summaries (symbol, trigger_name, content, created_at)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id`,
		normalizeSymbol(s.Symbol), s.Trigger, s.Content, s.CreatedAt,
	).Scan(&s.ID)
}

func (r *SummaryRepository) Latest(ctx context.Context, symbol string) (*domain.Summary, error) {
	_, span := r.tracer.Start(ctx, "summary-repo.latest")
	defer span.End()

	var s domain.Summary
	err := r.pool.QueryRow(ctx,
		`SELECT id, symbol, trigger_name, content, created_at
		 FROM summaries
		 WHERE symbol = $1
		 ORDER BY created_at DESC
		 LIMIT 1`,
		normalizeSymbol(symbol),
	).Scan(&s.ID, &s.Symbol, &s.Trigger, &s.Content, &s.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("no summary for %s", symbol)
		}
		return nil, err
	}
	return &s, nil
}

// Recent returns up to limit summaries for a symbol, newest first.
func (r *SummaryRepository) Recent(ctx context.Context, symbol string, limit int) ([]domain.Summary, error) {
	_, span := r.tracer.Start(ctx, "summary-repo.recent")
	defer span.End()

	if limit <= 0 {
		limit = 10
	}
	rows, err := r.pool.Query(ctx,
		`SELECT id, symbol, trigger_name, content, created_at
		 FROM summaries
		 WHERE symbol = $1
		 ORDER BY created_at DESC
		 LIMIT $2`,
		normalizeSymbol(symbol), limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Summary
	for rows.Next() {
		var s domain.Summary
		if err := rows.Scan(&s.ID, &s.Symbol, &s.Trigger, &s.Content, &s.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
