package memory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"crypto-summary-bot/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// CreateMemoryTables is the template and memory DDL, shared with
// cmd/migrate.
const CreateMemoryTables = `
CREATE TABLE IF NOT EXISTS ai_templates (
    role       TEXT        PRIMARY KEY,
    body       TEXT        NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS ai_memory (
    key        TEXT        PRIMARY KEY,
    value      TEXT        NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store owns template and learned-context persistence. Every mutation
// is a single committed statement, so a write reported as done survives
// a process restart and is immediately visible to concurrent readers.
type Store struct {
	pool   PgxPool
	tracer trace.Tracer
}

func NewStore(pool PgxPool, tracer trace.Tracer) *Store {
	return &Store{pool: pool, tracer: tracer}
}

func (s *Store) RunMigrations(ctx context.Context) error {
	_, span := s.tracer.Start(ctx, "memory-store.run-migrations")
	defer span.End()

	if _, err := s.pool.Exec(ctx, CreateMemoryTables); err != nil {
		return fmt.Errorf("create memory tables: %w", err)
	}
	return s.seedDefaults(ctx)
}

// seedDefaults installs the starter templates and memory entries on
// first boot. Existing rows are never overwritten.
func (s *Store) seedDefaults(ctx context.Context) error {
	for role, body := range defaultTemplates {
		_, err := s.pool.Exec(ctx,
			`INSERT INTO ai_templates (role, body) VALUES ($1, $2)
			 ON CONFLICT (role) DO NOTHING`,
			string(role), body,
		)
		if err != nil {
			return fmt.Errorf("seed template %s: %w", role, err)
		}
	}
	for _, entry := range defaultMemory {
		_, err := s.pool.Exec(ctx,
			`INSERT INTO ai_memory (key, value) VALUES ($1, $2)
			 ON CONFLICT (key) DO NOTHING`,
			entry.Key, entry.Value,
		)
		if err != nil {
			return fmt.Errorf("seed memory %s: %w", entry.Key, err)
		}
	}
	return nil
}

// GetTemplate returns the active template for a role. A missing row
// means the defaults were never seeded, which is a fatal
// misconfiguration rather than a runtime degradation.
func (s *Store) GetTemplate(ctx context.Context, role domain.TemplateRole) (*domain.Template, error) {
	_, span := s.tracer.Start(ctx, "memory-store.get-template")
	defer span.End()
	span.SetAttributes(attribute.String("role", string(role)))

	var tpl domain.Template
	var ts time.Time
	err := s.pool.QueryRow(ctx,
		`SELECT role, body, updated_at FROM ai_templates WHERE role = $1`,
		string(role),
	).Scan(&tpl.Role, &tpl.Text, &ts)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("template %q: %w", role, domain.ErrTemplateMissing)
	}
	if err != nil {
		return nil, fmt.Errorf("load template %q: %w", role, err)
	}
	tpl.UpdatedAt = ts.UTC()
	return &tpl, nil
}

// SetTemplate atomically replaces the template body for a role.
func (s *Store) SetTemplate(ctx context.Context, role domain.TemplateRole, text string) error {
	_, span := s.tracer.Start(ctx, "memory-store.set-template")
	defer span.End()

	text = strings.TrimSpace(text)
	if text == "" {
		return fmt.Errorf("template body must not be empty")
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO ai_templates (role, body, updated_at) VALUES ($1, $2, now())
		 ON CONFLICT (role) DO UPDATE SET body = excluded.body, updated_at = now()`,
		string(role), text,
	)
	return err
}

// ListMemory returns all learned-context entries ordered by key so
// prompt serialization is stable across runs.
func (s *Store) ListMemory(ctx context.Context) ([]domain.MemoryEntry, error) {
	_, span := s.tracer.Start(ctx, "memory-store.list-memory")
	defer span.End()

	rows, err := s.pool.Query(ctx,
		`SELECT key, value, updated_at FROM ai_memory ORDER BY key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.MemoryEntry
	for rows.Next() {
		var e domain.MemoryEntry
		var ts time.Time
		if err := rows.Scan(&e.Key, &e.Value, &ts); err != nil {
			return nil, err
		}
		e.UpdatedAt = ts.UTC()
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// UpsertMemory stores one learned fact. Idempotent: re-teaching a key
// overwrites its value.
func (s *Store) UpsertMemory(ctx context.Context, key, value string) error {
	_, span := s.tracer.Start(ctx, "memory-store.upsert-memory")
	defer span.End()

	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("memory key must not be empty")
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO ai_memory (key, value, updated_at) VALUES ($1, $2, now())
		 ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = now()`,
		key, value,
	)
	return err
}

// RemoveMemory deletes one entry. Removing an absent key is a no-op.
func (s *Store) RemoveMemory(ctx context.Context, key string) error {
	_, span := s.tracer.Start(ctx, "memory-store.remove-memory")
	defer span.End()

	_, err := s.pool.Exec(ctx, `DELETE FROM ai_memory WHERE key = $1`, key)
	return err
}
