package summary

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"crypto-summary-bot/internal/domain"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const latestCacheTTL = 48 * time.Hour

// Aggregator collects one coin's data from all configured sources.
type Aggregator interface {
	Aggregate(ctx context.Context, coin domain.Coin) (*domain.AggregateResult, error)
}

// Composer turns an aggregate result into summary text.
type Composer interface {
	Compose(ctx context.Context, coin domain.Coin, result *domain.AggregateResult, trigger string) (string, error)
}

type CoinLister interface {
	ListActive(ctx context.Context) ([]domain.Coin, error)
}

type SummaryRepository interface {
	Insert(ctx context.Context, s *domain.Summary) error
	Latest(ctx context.Context, symbol string) (*domain.Summary, error)
}

type RedisClient interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
}

// Service runs the full pipeline for every active coin and serves
// stored summaries back out.
type Service struct {
	tracer     trace.Tracer
	coins      CoinLister
	aggregator Aggregator
	composer   Composer
	repo       SummaryRepository
	redis      RedisClient
	workers    int
	runTimeout time.Duration
}

func NewService(
	tracer trace.Tracer,
	coins CoinLister,
	aggregator Aggregator,
	composer Composer,
	repo SummaryRepository,
	redisClient RedisClient,
	workers int,
	runTimeout time.Duration,
) *Service {
	if workers <= 0 {
		workers = 3
	}
	if runTimeout <= 0 {
		runTimeout = 5 * time.Minute
	}
	return &Service{
		tracer:     tracer,
		coins:      coins,
		aggregator: aggregator,
		composer:   composer,
		repo:       repo,
		redis:      redisClient,
		workers:    workers,
		runTimeout: runTimeout,
	}
}

// Run executes one trigger across all active coins. A coin failing
// never stops its siblings; per-coin errors are collected into the
// result instead.
func (s *Service) Run(ctx context.Context, trigger string) (domain.RunResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.runTimeout)
	defer cancel()

	ctx, span := s.tracer.Start(ctx, "summary.run")
	defer span.End()
	span.SetAttributes(attribute.String("trigger", trigger))

	result := domain.RunResult{Trigger: trigger, StartedAt: time.Now()}

	coins, err := s.coins.ListActive(ctx)
	if err != nil {
		span.RecordError(err)
		return result, fmt.Errorf("list active coins: %w", err)
	}
	if len(coins) == 0 {
		log.Printf("Summary run %q: no active coins", trigger)
		result.FinishedAt = time.Now()
		return result, nil
	}
	span.SetAttributes(attribute.Int("coins", len(coins)))

	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		coinCh   = make(chan domain.Coin)
		workerN  = s.workers
		succeeds int
	)
	if workerN > len(coins) {
		workerN = len(coins)
	}

	for i := 0; i < workerN; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for coin := range coinCh {
				if err := s.runCoin(ctx, coin, trigger); err != nil {
					log.Printf("Summary run %q: %s failed: %v", trigger, coin.Symbol, err)
					mu.Lock()
					result.CoinErrors = append(result.CoinErrors, fmt.Sprintf("%s: %v", coin.Symbol, err))
					mu.Unlock()
					continue
				}
				mu.Lock()
				succeeds++
				mu.Unlock()
			}
		}()
	}

	// Stop feeding once the run context is gone so workers drain
	// quickly on timeout.
	for _, coin := range coins {
		if ctx.Err() != nil {
			break
		}
		coinCh <- coin
	}
	close(coinCh)
	wg.Wait()

	sort.Strings(result.CoinErrors)
	result.Summaries = succeeds
	result.FinishedAt = time.Now()
	span.SetAttributes(
		attribute.Int("summaries", result.Summaries),
		attribute.Int("coin_errors", len(result.CoinErrors)),
	)
	log.Printf("Summary run %q complete: %d summaries, %d errors in %s",
		trigger, result.Summaries, len(result.CoinErrors), result.FinishedAt.Sub(result.StartedAt).Round(time.Millisecond))
	return result, nil
}

func (s *Service) runCoin(ctx context.Context, coin domain.Coin, trigger string) error {
	ctx, span := s.tracer.Start(ctx, "summary.run-coin")
	defer span.End()
	span.SetAttributes(attribute.String("symbol", coin.Symbol))

	agg, err := s.aggregator.Aggregate(ctx, coin)
	if err != nil {
		span.RecordError(err)
		return err
	}
	if agg.Degraded {
		log.Printf("Summary run %q: %s degraded (%d source failures)", trigger, coin.Symbol, len(agg.Failed))
	}

	content, err := s.composer.Compose(ctx, coin, agg, trigger)
	if err != nil {
		span.RecordError(err)
		return err
	}

	sum := &domain.Summary{
		Symbol:    coin.Symbol,
		Trigger:   trigger,
		Content:   content,
		CreatedAt: time.Now(),
	}
	if err := s.repo.Insert(ctx, sum); err != nil {
		return fmt.Errorf("store summary: %w", err)
	}
	if err := s.cacheLatest(ctx, sum); err != nil {
		// Cache is best effort; the summary is already persisted.
		log.Printf("redis cache write error for %s: %v", coin.Symbol, err)
	}
	return nil
}

// Latest returns the most recent summary for a symbol, reading the
// Redis cache first and falling back to Postgres.
func (s *Service) Latest(ctx context.Context, symbol string) (*domain.Summary, error) {
	ctx, span := s.tracer.Start(ctx, "summary.latest")
	defer span.End()
	span.SetAttributes(attribute.String("symbol", symbol))

	if s.redis != nil {
		if cached, err := s.getCachedLatest(ctx, symbol); err == nil && cached != nil {
			return cached, nil
		}
	}
	return s.repo.Latest(ctx, symbol)
}

func latestKey(symbol string) string {
	return "summary:latest:" + symbol
}

func (s *Service) cacheLatest(ctx context.Context, sum *domain.Summary) error {
	if s.redis == nil {
		return nil
	}
	data, err := json.Marshal(sum)
	if err != nil {
		return err
	}
	return s.redis.Set(ctx, latestKey(sum.Symbol), data, latestCacheTTL).Err()
}

func (s *Service) getCachedLatest(ctx context.Context, symbol string) (*domain.Summary, error) {
	data, err := s.redis.Get(ctx, latestKey(symbol)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}
	var sum domain.Summary
	if err := json.Unmarshal(data, &sum); err != nil {
		return nil, err
	}
	return &sum, nil
}
