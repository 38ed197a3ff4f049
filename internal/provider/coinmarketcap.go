package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"crypto-summary-bot/internal/domain"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const cmcBaseURL = "https://pro-api.coinmarketcap.com"

// CMCClient fetches authenticated quotes from the CoinMarketCap pro
// API. Every call consumes one unit of the shared daily quota; once the
// quota is exhausted calls fail locally as RateLimited without hitting
// the network.
type CMCClient struct {
	client  *http.Client
	baseURL string
	apiKey  string
	quota   *DailyQuota
	tracer  trace.Tracer
}

func NewCMCClient(tracer trace.Tracer, apiKey string, quota *DailyQuota) *CMCClient {
	return &CMCClient{
		client:  &http.Client{Timeout: 15 * time.Second},
		baseURL: cmcBaseURL,
		apiKey:  apiKey,
		quota:   quota,
		tracer:  tracer,
	}
}

type cmcQuote struct {
	Name   string `json:"name"`
	Symbol string `json:"symbol"`
	Quote  struct {
		USD struct {
			Price            float64 `json:"price"`
			Volume24h        float64 `json:"volume_24h"`
			PercentChange1h  float64 `json:"percent_change_1h"`
			PercentChange24h float64 `json:"percent_change_24h"`
			PercentChange7d  float64 `json:"percent_change_7d"`
			MarketCap        float64 `json:"market_cap"`
		} `json:"USD"`
	} `json:"quote"`
}

// Fetch returns the latest USD quote, looked up by CMC id when the
// coin has one configured, otherwise by symbol.
func (c *CMCClient) Fetch(ctx context.Context, coin domain.Coin) (*domain.MarketSnapshot, error) {
	_, span := c.tracer.Start(ctx, "cmc.fetch-quote")
	defer span.End()
	span.SetAttributes(attribute.String("symbol", coin.Symbol))

	if c.apiKey == "" {
		return nil, domain.NewSourceError(domain.SourceCoinMarketCap, domain.ErrKindUnauthorized,
			fmt.Errorf("api key not configured"))
	}
	if c.quota != nil && !c.quota.Allow() {
		span.SetAttributes(attribute.Bool("quota_exhausted", true))
		return nil, domain.NewSourceError(domain.SourceCoinMarketCap, domain.ErrKindRateLimited,
			fmt.Errorf("daily quota exhausted"))
	}

	symbol := strings.ToUpper(strings.TrimSpace(coin.Symbol))

	// A configured CMC id is the precise lookup; the response map is
	// then keyed by that id instead of the symbol.
	query := "symbol=" + url.QueryEscape(symbol)
	dataKey := symbol
	if id := strings.TrimSpace(coin.CMCID); id != "" {
		query = "id=" + url.QueryEscape(id)
		dataKey = id
	}
	u := fmt.Sprintf("%s/v1/cryptocurrency/quotes/latest?%s&convert=USD", c.baseURL, query)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, domain.NewSourceError(domain.SourceCoinMarketCap, domain.ErrKindUnreachable, err)
	}
	req.Header.Set("X-CMC_PRO_API_KEY", c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, classifyTransport(domain.SourceCoinMarketCap, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domain.NewSourceError(domain.SourceCoinMarketCap, domain.ErrKindMalformedResponse, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus(domain.SourceCoinMarketCap, resp.StatusCode,
			fmt.Errorf("cmc API error %d: %s", resp.StatusCode, string(body)))
	}

	var payload struct {
		Status struct {
			ErrorCode    int    `json:"error_code"`
			ErrorMessage string `json:"error_message"`
		} `json:"status"`
		Data map[string]json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, domain.NewSourceError(domain.SourceCoinMarketCap, domain.ErrKindMalformedResponse,
			fmt.Errorf("parse quote payload: %w", err))
	}
	if payload.Status.ErrorCode != 0 {
		return nil, domain.NewSourceError(domain.SourceCoinMarketCap, domain.ErrKindMalformedResponse,
			fmt.Errorf("cmc error_code %d: %s", payload.Status.ErrorCode, payload.Status.ErrorMessage))
	}

	quote, err := decodeCMCQuote(payload.Data[dataKey])
	if err != nil {
		return nil, domain.NewSourceError(domain.SourceCoinMarketCap, domain.ErrKindMalformedResponse, err)
	}

	usd := quote.Quote.USD
	return &domain.MarketSnapshot{
		Symbol:       symbol,
		Source:       domain.SourceCoinMarketCap,
		PriceUSD:     usd.Price,
		MarketCapUSD: usd.MarketCap,
		Volume24hUSD: usd.Volume24h,
		Change1hPct:  usd.PercentChange1h,
		Change24hPct: usd.PercentChange24h,
		Change7dPct:  usd.PercentChange7d,
		FetchedAt:    time.Now().UTC(),
		Fresh:        true,
	}, nil
}

// decodeCMCQuote handles both shapes the API returns for one symbol:
// a single object, or a list when several tokens share the symbol (the
// first entry is the highest-ranked one).
func decodeCMCQuote(raw json.RawMessage) (*cmcQuote, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("symbol missing from quote payload")
	}

	var list []cmcQuote
	if err := json.Unmarshal(raw, &list); err == nil {
		if len(list) == 0 {
			return nil, fmt.Errorf("empty quote list")
		}
		return &list[0], nil
	}

	var single cmcQuote
	if err := json.Unmarshal(raw, &single); err != nil {
		return nil, fmt.Errorf("parse quote entry: %w", err)
	}
	return &single, nil
}
