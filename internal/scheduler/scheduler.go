package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"
	// Embedded tz database so LoadLocation works in slim containers.
	_ "time/tzdata"

	"crypto-summary-bot/internal/domain"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// fireGrace bounds how far past its wall-clock time a slot may still
// fire. A slot whose window passed while the process was down is
// skipped, never replayed.
const fireGrace = 10 * time.Minute

const tickInterval = time.Minute

// Runner executes one pipeline run for a trigger name.
type Runner interface {
	Run(ctx context.Context, trigger string) (domain.RunResult, error)
}

// JobStore persists per-slot fire state across restarts.
type JobStore interface {
	Get(ctx context.Context, name string) (*domain.ScheduledJob, error)
	RecordFired(ctx context.Context, name string, firedAt time.Time, state domain.JobState) error
	SetState(ctx context.Context, name string, state domain.JobState) error
}

// Slot is one configured daily trigger.
type Slot struct {
	Name   string
	Hour   int
	Minute int
}

// Scheduler fires the pipeline at fixed local wall-clock times. DST
// shifts are absorbed by computing each slot's time in the configured
// location on every tick.
type Scheduler struct {
	tracer   trace.Tracer
	runner   Runner
	jobs     JobStore
	location *time.Location
	slots    []Slot

	now  func() time.Time
	tick time.Duration

	mu      sync.Mutex
	running map[string]bool
}

func New(tracer trace.Tracer, runner Runner, jobs JobStore, timezone string, slots []Slot) (*Scheduler, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", timezone, err)
	}
	return &Scheduler{
		tracer:   tracer,
		runner:   runner,
		jobs:     jobs,
		location: loc,
		slots:    slots,
		now:      time.Now,
		tick:     tickInterval,
		running:  make(map[string]bool),
	}, nil
}

// Start blocks until ctx is cancelled, checking every slot once per
// tick. Safe to run in its own goroutine.
func (s *Scheduler) Start(ctx context.Context) {
	log.Printf("Scheduler started: %d slots in %s", len(s.slots), s.location)

	s.checkSlots(ctx)
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Scheduler stopped")
			return
		case <-ticker.C:
			s.checkSlots(ctx)
		}
	}
}

func (s *Scheduler) checkSlots(ctx context.Context) {
	for _, slot := range s.slots {
		if err := s.checkSlot(ctx, slot); err != nil {
			log.Printf("Scheduler slot %s check error: %v", slot.Name, err)
		}
	}
}

// checkSlot fires a slot when three things hold: its wall-clock time
// has passed today, we are still inside the grace window, and the
// persisted LastFired predates today's slot time.
func (s *Scheduler) checkSlot(ctx context.Context, slot Slot) error {
	now := s.now().In(s.location)
	slotStart := time.Date(now.Year(), now.Month(), now.Day(), slot.Hour, slot.Minute, 0, 0, s.location)

	if now.Before(slotStart) {
		return nil
	}
	if now.Sub(slotStart) > fireGrace {
		return nil
	}

	s.mu.Lock()
	if s.running[slot.Name] {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	job, err := s.jobs.Get(ctx, slot.Name)
	if err != nil {
		return fmt.Errorf("load job state: %w", err)
	}
	if !job.LastFired.Before(slotStart) {
		return nil
	}

	s.fire(ctx, slot, slotStart)
	return nil
}

func (s *Scheduler) fire(ctx context.Context, slot Slot, slotStart time.Time) {
	ctx, span := s.tracer.Start(ctx, "scheduler.fire")
	defer span.End()
	span.SetAttributes(
		attribute.String("slot", slot.Name),
		attribute.String("slot_start", slotStart.Format(time.RFC3339)),
	)

	s.mu.Lock()
	s.running[slot.Name] = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running[slot.Name] = false
		s.mu.Unlock()
	}()

	// Record the fire before running so a crash mid-run cannot cause
	// a duplicate summary on restart.
	if err := s.jobs.RecordFired(ctx, slot.Name, slotStart, domain.JobRunning); err != nil {
		span.RecordError(err)
		log.Printf("Scheduler slot %s: failed to record fire, skipping run: %v", slot.Name, err)
		return
	}

	log.Printf("Scheduler firing slot %s (%02d:%02d %s)", slot.Name, slot.Hour, slot.Minute, s.location)
	result, err := s.runner.Run(ctx, slot.Name)
	state := domain.JobIdle
	if err != nil {
		state = domain.JobFailed
		span.RecordError(err)
		log.Printf("Scheduler slot %s run failed: %v", slot.Name, err)
	} else if len(result.CoinErrors) > 0 {
		log.Printf("Scheduler slot %s completed with %d coin errors", slot.Name, len(result.CoinErrors))
	}
	if err := s.jobs.SetState(ctx, slot.Name, state); err != nil {
		log.Printf("Scheduler slot %s: failed to update state: %v", slot.Name, err)
	}
}
