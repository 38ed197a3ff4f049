package aggregator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"crypto-summary-bot/internal/domain"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// MarketSource is the capability interface every market data client
// implements. The aggregator never branches on the concrete type.
type MarketSource interface {
	Fetch(ctx context.Context, coin domain.Coin) (*domain.MarketSnapshot, error)
}

// SocialSource produces mentions for a coin.
type SocialSource interface {
	Fetch(ctx context.Context, coin domain.Coin) (*domain.SocialSnapshot, error)
}

// Aggregator fans out to all configured sources for one coin and merges
// the results, tolerating partial failure. Each source runs in its own
// goroutine with an independent failure domain.
type Aggregator struct {
	tracer trace.Tracer
	market MarketSource // CoinMarketCap
	dex    MarketSource // DexScreener
	social SocialSource
}

func New(tracer trace.Tracer, market, dex MarketSource, social SocialSource) *Aggregator {
	return &Aggregator{tracer: tracer, market: market, dex: dex, social: social}
}

// Aggregate fetches all sources concurrently. It fails only when every
// configured source failed; any other mix yields a (possibly degraded)
// result. A rate-limited source is ordinary degradation, not an error
// worth alerting on.
func (a *Aggregator) Aggregate(ctx context.Context, coin domain.Coin) (*domain.AggregateResult, error) {
	_, span := a.tracer.Start(ctx, "aggregator.aggregate")
	defer span.End()
	span.SetAttributes(attribute.String("symbol", coin.Symbol))

	result := &domain.AggregateResult{Symbol: coin.Symbol}

	var wg sync.WaitGroup
	var mu sync.Mutex
	attempted := 0

	recordFailure := func(source string, err error) {
		failure := domain.SourceFailure{Source: source, Reason: err.Error()}
		var srcErr *domain.SourceError
		if errors.As(err, &srcErr) {
			failure.Kind = srcErr.Kind
		} else {
			failure.Kind = domain.ErrKindUnreachable
		}
		mu.Lock()
		result.Failed = append(result.Failed, failure)
		mu.Unlock()

		if failure.Kind == domain.ErrKindRateLimited {
			log.Printf("source %s rate limited for %s, degrading", source, coin.Symbol)
		} else {
			log.Printf("source %s failed for %s: %v", source, coin.Symbol, err)
		}
	}

	if a.market != nil {
		attempted++
		wg.Add(1)
		go func() {
			defer wg.Done()
			snap, err := a.market.Fetch(ctx, coin)
			if err != nil {
				recordFailure(domain.SourceCoinMarketCap, err)
				return
			}
			result.Market = snap
		}()
	}

	if a.dex != nil {
		attempted++
		wg.Add(1)
		go func() {
			defer wg.Done()
			snap, err := a.dex.Fetch(ctx, coin)
			if err != nil {
				recordFailure(domain.SourceDexScreener, err)
				return
			}
			result.Dex = snap
		}()
	}

	if a.social != nil {
		attempted++
		wg.Add(1)
		go func() {
			defer wg.Done()
			snap, err := a.social.Fetch(ctx, coin)
			if err != nil {
				recordFailure(domain.SourceSocial, err)
				return
			}
			result.Social = snap
		}()
	}

	wg.Wait()

	if attempted == 0 {
		return nil, fmt.Errorf("aggregate %s: no sources configured: %w", coin.Symbol, domain.ErrAllSourcesUnavailable)
	}
	failed := len(result.Failed)
	if failed == attempted {
		span.SetAttributes(attribute.Int("sources_failed", failed))
		return nil, fmt.Errorf("aggregate %s: %d/%d sources failed: %w",
			coin.Symbol, failed, attempted, domain.ErrAllSourcesUnavailable)
	}

	result.Degraded = failed > 0
	span.SetAttributes(
		attribute.Bool("degraded", result.Degraded),
		attribute.Int("sources_failed", failed),
	)
	return result, nil
}
