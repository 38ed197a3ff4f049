package aggregator

import (
	"context"
	"errors"
	"testing"
	"time"

	"crypto-summary-bot/internal/domain"

	"go.opentelemetry.io/otel/trace"
)

type stubMarket struct {
	snap  *domain.MarketSnapshot
	err   error
	calls int
}

func (s *stubMarket) Fetch(ctx context.Context, coin domain.Coin) (*domain.MarketSnapshot, error) {
	s.calls++
	return s.snap, s.err
}

type stubSocial struct {
	snap *domain.SocialSnapshot
	err  error
}

func (s *stubSocial) Fetch(ctx context.Context, coin domain.Coin) (*domain.SocialSnapshot, error) {
	return s.snap, s.err
}

var testCoin = domain.Coin{Symbol: "OWB", Name: "OpenWorld", Active: true}

func noopTracer() trace.Tracer {
	return trace.NewNoopTracerProvider().Tracer("test")
}

func TestAggregateAllSourcesSucceed(t *testing.T) {
	agg := New(noopTracer(),
		&stubMarket{snap: &domain.MarketSnapshot{Symbol: "OWB", Source: domain.SourceCoinMarketCap}},
		&stubMarket{snap: &domain.MarketSnapshot{Symbol: "OWB", Source: domain.SourceDexScreener}},
		&stubSocial{snap: &domain.SocialSnapshot{Symbol: "OWB"}},
	)

	result, err := agg.Aggregate(context.Background(), testCoin)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Degraded {
		t.Fatal("no failures, result must not be degraded")
	}
	if result.Market == nil || result.Dex == nil || result.Social == nil {
		t.Fatalf("expected all snapshots set: %+v", result)
	}
	if len(result.Failed) != 0 {
		t.Fatalf("expected no failures, got %+v", result.Failed)
	}
}

func TestAggregatePartialFailureIsDegraded(t *testing.T) {
	agg := New(noopTracer(),
		&stubMarket{err: domain.NewSourceError(domain.SourceCoinMarketCap, domain.ErrKindTimeout, errors.New("deadline"))},
		&stubMarket{snap: &domain.MarketSnapshot{Symbol: "OWB", Source: domain.SourceDexScreener}},
		&stubSocial{err: domain.NewSourceError(domain.SourceSocial, domain.ErrKindUnreachable, errors.New("all mirrors down"))},
	)

	result, err := agg.Aggregate(context.Background(), testCoin)
	if err != nil {
		t.Fatalf("one surviving source must not fail the aggregate: %v", err)
	}
	if !result.Degraded {
		t.Fatal("expected degraded result")
	}
	if result.Market != nil || result.Dex == nil || result.Social != nil {
		t.Fatalf("unexpected snapshot mix: %+v", result)
	}
	if len(result.Failed) != 2 {
		t.Fatalf("expected 2 recorded failures, got %+v", result.Failed)
	}
}

func TestAggregateRateLimitedIsDegradedNotFatal(t *testing.T) {
	agg := New(noopTracer(),
		&stubMarket{err: domain.NewSourceError(domain.SourceCoinMarketCap, domain.ErrKindRateLimited, errors.New("daily quota exhausted"))},
		&stubMarket{snap: &domain.MarketSnapshot{Symbol: "OWB", Source: domain.SourceDexScreener}},
		&stubSocial{snap: &domain.SocialSnapshot{Symbol: "OWB"}},
	)

	result, err := agg.Aggregate(context.Background(), testCoin)
	if err != nil {
		t.Fatalf("rate limit must degrade, not fail: %v", err)
	}
	if !result.Degraded {
		t.Fatal("expected degraded result")
	}
	if len(result.Failed) != 1 || result.Failed[0].Kind != domain.ErrKindRateLimited {
		t.Fatalf("expected one rate-limited failure, got %+v", result.Failed)
	}
}

func TestAggregateAllSourcesFail(t *testing.T) {
	agg := New(noopTracer(),
		&stubMarket{err: domain.NewSourceError(domain.SourceCoinMarketCap, domain.ErrKindUnauthorized, errors.New("bad key"))},
		&stubMarket{err: domain.NewSourceError(domain.SourceDexScreener, domain.ErrKindUnreachable, errors.New("down"))},
		&stubSocial{err: domain.NewSourceError(domain.SourceSocial, domain.ErrKindUnreachable, errors.New("down"))},
	)

	_, err := agg.Aggregate(context.Background(), testCoin)
	if !errors.Is(err, domain.ErrAllSourcesUnavailable) {
		t.Fatalf("expected ErrAllSourcesUnavailable, got %v", err)
	}
}

func TestAggregateSourcesRunConcurrently(t *testing.T) {
	// Each source sleeps 50ms; a serial fan-out would take 150ms.
	slow := func() *slowMarket { return &slowMarket{delay: 50 * time.Millisecond} }
	agg := New(noopTracer(), slow(), slow(),
		&stubSocial{snap: &domain.SocialSnapshot{Symbol: "OWB"}})

	start := time.Now()
	if _, err := agg.Aggregate(context.Background(), testCoin); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 120*time.Millisecond {
		t.Fatalf("sources should fetch in parallel, took %v", elapsed)
	}
}

type slowMarket struct {
	delay time.Duration
}

func (s *slowMarket) Fetch(ctx context.Context, coin domain.Coin) (*domain.MarketSnapshot, error) {
	time.Sleep(s.delay)
	return &domain.MarketSnapshot{Symbol: coin.Symbol}, nil
}
