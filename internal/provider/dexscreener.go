package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"crypto-summary-bot/internal/domain"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const dexScreenerBaseURL = "https://api.dexscreener.com"

// The public API allows 300 requests per minute; the token bucket
// keeps bursts of tracked coins under that.
const dexRequestsPerMinute = 300

// DexClient fetches pair data from the DexScreener public API. No key
// required, only the per-minute rate cap.
type DexClient struct {
	client  *http.Client
	baseURL string
	limiter *RateLimiter
	tracer  trace.Tracer
}

func NewDexClient(tracer trace.Tracer) *DexClient {
	return &DexClient{
		client:  &http.Client{Timeout: 15 * time.Second},
		baseURL: dexScreenerBaseURL,
		limiter: NewRateLimiter(dexRequestsPerMinute, time.Minute/dexRequestsPerMinute),
		tracer:  tracer,
	}
}

type dexPair struct {
	ChainID   string `json:"chainId"`
	DexID     string `json:"dexId"`
	PriceUsd  string `json:"priceUsd"`
	BaseToken struct {
		Symbol string `json:"symbol"`
		Name   string `json:"name"`
	} `json:"baseToken"`
	QuoteToken struct {
		Symbol string `json:"symbol"`
	} `json:"quoteToken"`
	PriceChange struct {
		H1  float64 `json:"h1"`
		H24 float64 `json:"h24"`
	} `json:"priceChange"`
	Volume struct {
		H24 float64 `json:"h24"`
	} `json:"volume"`
	Liquidity struct {
		USD float64 `json:"usd"`
	} `json:"liquidity"`
	Txns struct {
		H1 struct {
			Buys  int `json:"buys"`
			Sells int `json:"sells"`
		} `json:"h1"`
		H24 struct {
			Buys  int `json:"buys"`
			Sells int `json:"sells"`
		} `json:"h24"`
	} `json:"txns"`
	FDV float64 `json:"fdv"`
}

// Fetch returns a snapshot of the most relevant DEX pair for the coin.
// Coins with a known chain and token address are resolved directly;
// otherwise the free-text search endpoint is used.
func (c *DexClient) Fetch(ctx context.Context, coin domain.Coin) (*domain.MarketSnapshot, error) {
	_, span := c.tracer.Start(ctx, "dexscreener.fetch-pair")
	defer span.End()
	span.SetAttributes(attribute.String("symbol", coin.Symbol))

	var pairs []dexPair
	var err error
	if coin.ChainID != "" && coin.TokenAddress != "" {
		pairs, err = c.tokenPairs(ctx, coin.ChainID, coin.TokenAddress)
	} else {
		query := coin.DexSearchQuery
		if query == "" {
			query = coin.Symbol
		}
		pairs, err = c.searchPairs(ctx, query)
	}
	if err != nil {
		return nil, err
	}

	pair := pickPair(pairs, coin.Symbol)
	if pair == nil {
		return nil, domain.NewSourceError(domain.SourceDexScreener, domain.ErrKindMalformedResponse,
			fmt.Errorf("no pairs found for %s", coin.Symbol))
	}

	price, _ := strconv.ParseFloat(pair.PriceUsd, 64)
	return &domain.MarketSnapshot{
		Symbol:       strings.ToUpper(coin.Symbol),
		Source:       domain.SourceDexScreener,
		PriceUSD:     price,
		Volume24hUSD: pair.Volume.H24,
		Change1hPct:  pair.PriceChange.H1,
		Change24hPct: pair.PriceChange.H24,
		MarketCapUSD: pair.FDV,
		LiquidityUSD: pair.Liquidity.USD,
		Buys24h:      pair.Txns.H24.Buys,
		Sells24h:     pair.Txns.H24.Sells,
		Buys1h:       pair.Txns.H1.Buys,
		Sells1h:      pair.Txns.H1.Sells,
		PairName:     pair.BaseToken.Symbol + "/" + pair.QuoteToken.Symbol,
		DexID:        pair.DexID,
		FetchedAt:    time.Now().UTC(),
		Fresh:        true,
	}, nil
}

func (c *DexClient) tokenPairs(ctx context.Context, chainID, tokenAddress string) ([]dexPair, error) {
	u := fmt.Sprintf("%s/token-pairs/v1/%s/%s", c.baseURL,
		url.PathEscape(chainID), url.PathEscape(tokenAddress))

	body, serr := c.doRequest(ctx, u)
	if serr != nil {
		return nil, serr
	}

	// This endpoint returns a bare list.
	var pairs []dexPair
	if err := json.Unmarshal(body, &pairs); err != nil {
		return nil, domain.NewSourceError(domain.SourceDexScreener, domain.ErrKindMalformedResponse,
			fmt.Errorf("parse token pairs: %w", err))
	}
	return pairs, nil
}

func (c *DexClient) searchPairs(ctx context.Context, query string) ([]dexPair, error) {
	u := fmt.Sprintf("%s/latest/dex/search?q=%s", c.baseURL, url.QueryEscape(query))

	body, serr := c.doRequest(ctx, u)
	if serr != nil {
		return nil, serr
	}

	var payload struct {
		Pairs []dexPair `json:"pairs"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, domain.NewSourceError(domain.SourceDexScreener, domain.ErrKindMalformedResponse,
			fmt.Errorf("parse search payload: %w", err))
	}
	return payload.Pairs, nil
}

func (c *DexClient) doRequest(ctx context.Context, u string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, classifyTransport(domain.SourceDexScreener, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, domain.NewSourceError(domain.SourceDexScreener, domain.ErrKindUnreachable, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, classifyTransport(domain.SourceDexScreener, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domain.NewSourceError(domain.SourceDexScreener, domain.ErrKindMalformedResponse, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus(domain.SourceDexScreener, resp.StatusCode,
			fmt.Errorf("dexscreener API error %d: %s", resp.StatusCode, string(body)))
	}
	return body, nil
}

// pickPair prefers pairs whose base token matches the coin symbol, then
// the deepest liquidity among the candidates.
func pickPair(pairs []dexPair, symbol string) *dexPair {
	if len(pairs) == 0 {
		return nil
	}
	symbol = strings.ToUpper(symbol)

	var best *dexPair
	for i := range pairs {
		p := &pairs[i]
		if strings.ToUpper(p.BaseToken.Symbol) != symbol &&
			!strings.Contains(strings.ToUpper(p.BaseToken.Name), symbol) {
			continue
		}
		if best == nil || p.Liquidity.USD > best.Liquidity.USD {
			best = p
		}
	}
	if best != nil {
		return best
	}

	// No symbol match: fall back to the deepest pair overall.
	best = &pairs[0]
	for i := range pairs {
		if pairs[i].Liquidity.USD > best.Liquidity.USD {
			best = &pairs[i]
		}
	}
	return best
}
