package repository

import (
	"context"
	"time"

	"crypto-summary-bot/internal/domain"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel/trace"
)

// CreateJobsTable is the scheduled_jobs DDL, shared with cmd/migrate.
const CreateJobsTable = `
CREATE TABLE IF NOT EXISTS scheduled_jobs (
    name       TEXT        PRIMARY KEY,
    last_fired TIMESTAMPTZ,
    state      TEXT        NOT NULL DEFAULT 'idle'
);
`

// JobRepository persists scheduler slot state so a restart never
// double-fires a slot that already ran.
type JobRepository struct {
	pool   PgxPool
	tracer trace.Tracer
}

func NewJobRepository(pool PgxPool, tracer trace.Tracer) *JobRepository {
	return &JobRepository{pool: pool, tracer: tracer}
}

func (r *JobRepository) RunMigrations(ctx context.Context) error {
	_, span := r.tracer.Start(ctx, "job-repo.run-migrations")
	defer span.End()

	_, err := r.pool.Exec(ctx, CreateJobsTable)
	return err
}

// Get returns the persisted state for a slot. An unknown slot comes
// back idle with a zero LastFired.
func (r *JobRepository) Get(ctx context.Context, name string) (*domain.ScheduledJob, error) {
	_, span := r.tracer.Start(ctx, "job-repo.get")
	defer span.End()

	job := &domain.ScheduledJob{Name: name, State: domain.JobIdle}
	var lastFired *time.Time
	var state string
	err := r.pool.QueryRow(ctx,
		`SELECT last_fired, state FROM scheduled_jobs WHERE name = $1`,
		name,
	).Scan(&lastFired, &state)
	if err != nil {
		if err == pgx.ErrNoRows {
			return job, nil
		}
		return nil, err
	}
	if lastFired != nil {
		job.LastFired = lastFired.UTC()
	}
	job.State = domain.JobState(state)
	return job, nil
}

// RecordFired marks a slot as having run at firedAt.
func (r *JobRepository) RecordFired(ctx context.Context, name string, firedAt time.Time, state domain.JobState) error {
	_, span := r.tracer.Start(ctx, "job-repo.record-fired")
	defer span.End()

	_, err := r.pool.Exec(ctx,
		`INSERT INTO scheduled_jobs (name, last_fired, state)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (name) DO UPDATE SET
		     last_fired = EXCLUDED.last_fired,
		     state = EXCLUDED.state`,
		name, firedAt, string(state),
	)
	return err
}

// SetState updates only the run state of a slot.
func (r *JobRepository) SetState(ctx context.Context, name string, state domain.JobState) error {
	_, span := r.tracer.Start(ctx, "job-repo.set-state")
	defer span.End()

	_, err := r.pool.Exec(ctx,
		`INSERT INTO scheduled_jobs (name, state)
		 VALUES ($1, $2)
		 ON CONFLICT (name) DO UPDATE SET state = EXCLUDED.state`,
		name, string(state),
	)
	return err
}
