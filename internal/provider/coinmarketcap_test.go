package provider

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"crypto-summary-bot/internal/domain"

	"go.opentelemetry.io/otel/trace"
)

const cmcQuotePayload = `{
  "status": {"error_code": 0, "error_message": null},
  "data": {"OWB": {
    "name": "OpenWorld", "symbol": "OWB",
    "quote": {"USD": {
      "price": 0.0412, "volume_24h": 125000.5, "market_cap": 4100000,
      "percent_change_1h": 0.5, "percent_change_24h": -2.1, "percent_change_7d": 11.3
    }}
  }}
}`

func newTestCMC(limit int, rt roundTripFunc) *CMCClient {
	c := NewCMCClient(trace.NewNoopTracerProvider().Tracer("test"), "test-key", NewDailyQuota(limit))
	c.client = &http.Client{Transport: rt}
	return c
}

func TestCMCFetchQuote(t *testing.T) {
	var gotKey string
	c := newTestCMC(10, func(req *http.Request) (*http.Response, error) {
		gotKey = req.Header.Get("X-CMC_PRO_API_KEY")
		return &http.Response{
			StatusCode: http.StatusOK,
			Body:       io.NopCloser(bytes.NewBufferString(cmcQuotePayload)),
			Header:     make(http.Header),
		}, nil
	})

	snap, err := c.Fetch(context.Background(), domain.Coin{Symbol: "owb"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotKey != "test-key" {
		t.Fatalf("expected api key header, got %q", gotKey)
	}
	if snap.Symbol != "OWB" || snap.Source != domain.SourceCoinMarketCap {
		t.Fatalf("unexpected snapshot identity: %+v", snap)
	}
	if snap.PriceUSD != 0.0412 || snap.Change24hPct != -2.1 || snap.MarketCapUSD != 4100000 {
		t.Fatalf("unexpected snapshot fields: %+v", snap)
	}
	if !snap.Fresh {
		t.Fatal("fetched snapshot should be marked fresh")
	}
}

func TestCMCFetchByConfiguredID(t *testing.T) {
	payload := `{"status":{"error_code":0},"data":{"34157":{"symbol":"OWB","quote":{"USD":{"price":0.05}}}}}`
	var gotURL string
	c := newTestCMC(10, func(req *http.Request) (*http.Response, error) {
		gotURL = req.URL.String()
		return &http.Response{
			StatusCode: http.StatusOK,
			Body:       io.NopCloser(bytes.NewBufferString(payload)),
			Header:     make(http.Header),
		}, nil
	})

	snap, err := c.Fetch(context.Background(), domain.Coin{Symbol: "OWB", CMCID: "34157"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(gotURL, "id=34157") || strings.Contains(gotURL, "symbol=") {
		t.Fatalf("expected id-based lookup, got %s", gotURL)
	}
	if snap.Symbol != "OWB" || snap.PriceUSD != 0.05 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
}

func TestCMCFetchListShapedData(t *testing.T) {
	payload := `{"status":{"error_code":0},"data":{"OWB":[{"symbol":"OWB","quote":{"USD":{"price":1.5}}}]}}`
	c := newTestCMC(10, func(req *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: http.StatusOK,
			Body:       io.NopCloser(bytes.NewBufferString(payload)),
			Header:     make(http.Header),
		}, nil
	})

	snap, err := c.Fetch(context.Background(), domain.Coin{Symbol: "OWB"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if snap.PriceUSD != 1.5 {
		t.Fatalf("expected first list entry, got %+v", snap)
	}
}

func TestCMCQuotaShortCircuit(t *testing.T) {
	calls := 0
	c := newTestCMC(1, func(req *http.Request) (*http.Response, error) {
		calls++
		return &http.Response{
			StatusCode: http.StatusOK,
			Body:       io.NopCloser(bytes.NewBufferString(cmcQuotePayload)),
			Header:     make(http.Header),
		}, nil
	})

	if _, err := c.Fetch(context.Background(), domain.Coin{Symbol: "OWB"}); err != nil {
		t.Fatalf("first call should succeed: %v", err)
	}

	_, err := c.Fetch(context.Background(), domain.Coin{Symbol: "OWB"})
	var srcErr *domain.SourceError
	if !errors.As(err, &srcErr) || srcErr.Kind != domain.ErrKindRateLimited {
		t.Fatalf("expected RateLimited after quota exhaustion, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("exhausted quota must not reach the network, got %d calls", calls)
	}
}

func TestCMCErrorClassification(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		kind   domain.SourceErrorKind
	}{
		{"unauthorized", http.StatusUnauthorized, `{}`, domain.ErrKindUnauthorized},
		{"rate limited", http.StatusTooManyRequests, `{}`, domain.ErrKindRateLimited},
		{"server error", http.StatusInternalServerError, `{}`, domain.ErrKindUnreachable},
		{"api error code", http.StatusOK, `{"status":{"error_code":400,"error_message":"bad symbol"}}`, domain.ErrKindMalformedResponse},
		{"garbage body", http.StatusOK, `not-json`, domain.ErrKindMalformedResponse},
		{"missing symbol", http.StatusOK, `{"status":{"error_code":0},"data":{}}`, domain.ErrKindMalformedResponse},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestCMC(10, func(req *http.Request) (*http.Response, error) {
				return &http.Response{
					StatusCode: tc.status,
					Body:       io.NopCloser(bytes.NewBufferString(tc.body)),
					Header:     make(http.Header),
				}, nil
			})
			_, err := c.Fetch(context.Background(), domain.Coin{Symbol: "OWB"})
			var srcErr *domain.SourceError
			if !errors.As(err, &srcErr) || srcErr.Kind != tc.kind {
				t.Fatalf("expected kind %s, got %v", tc.kind, err)
			}
		})
	}
}

func TestCMCMissingAPIKey(t *testing.T) {
	c := NewCMCClient(trace.NewNoopTracerProvider().Tracer("test"), "", NewDailyQuota(10))

	_, err := c.Fetch(context.Background(), domain.Coin{Symbol: "OWB"})
	var srcErr *domain.SourceError
	if !errors.As(err, &srcErr) || srcErr.Kind != domain.ErrKindUnauthorized {
		t.Fatalf("expected Unauthorized without api key, got %v", err)
	}
}
