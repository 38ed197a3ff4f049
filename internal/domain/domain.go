package domain

import "time"

// Source identifiers attached to snapshots and error reports.
const (
	SourceCoinMarketCap = "coinmarketcap"
	SourceDexScreener   = "dexscreener"
	SourceSocial        = "social"
)

// Coin is a tracked token. Coins are created and edited by developer
// operations; the pipeline only reads them.
type Coin struct {
	Symbol         string    `json:"symbol"`
	CMCID          string    `json:"cmc_id,omitempty"`
	Name           string    `json:"name"`
	ChainID        string    `json:"chain_id,omitempty"`
	TokenAddress   string    `json:"token_address,omitempty"`
	DexSearchQuery string    `json:"dex_search_query,omitempty"`
	FeedQueries    []string  `json:"feed_queries,omitempty"`
	Active         bool      `json:"active"`
	AddedAt        time.Time `json:"added_at"`
}

// MarketSnapshot is an immutable capture from one market data provider
// for one coin. It is superseded, never mutated, by the next fetch.
type MarketSnapshot struct {
	Symbol       string    `json:"symbol"`
	Source       string    `json:"source"`
	PriceUSD     float64   `json:"price_usd"`
	MarketCapUSD float64   `json:"market_cap_usd"`
	Volume24hUSD float64   `json:"volume_24h_usd"`
	Change1hPct  float64   `json:"change_1h_pct"`
	Change24hPct float64   `json:"change_24h_pct"`
	Change7dPct  float64   `json:"change_7d_pct"`
	LiquidityUSD float64   `json:"liquidity_usd,omitempty"`
	Buys24h      int       `json:"buys_24h,omitempty"`
	Sells24h     int       `json:"sells_24h,omitempty"`
	Buys1h       int       `json:"buys_1h,omitempty"`
	Sells1h      int       `json:"sells_1h,omitempty"`
	PairName     string    `json:"pair_name,omitempty"`
	DexID        string    `json:"dex_id,omitempty"`
	FetchedAt    time.Time `json:"fetched_at"`
	Fresh        bool      `json:"fresh"`
}

// SocialMention is one short text item pulled from a social feed.
type SocialMention struct {
	Text        string    `json:"text"`
	Author      string    `json:"author,omitempty"`
	FeedID      string    `json:"feed_id"`
	PublishedAt time.Time `json:"published_at"`
}

// SocialSnapshot holds the mentions captured for one coin, ordered
// oldest first. The slice may be empty.
type SocialSnapshot struct {
	Symbol    string          `json:"symbol"`
	Mentions  []SocialMention `json:"mentions"`
	FetchedAt time.Time       `json:"fetched_at"`
}

// AggregateResult is the merged outcome of one fan-out across all
// configured sources for one coin. Degraded is true when at least one
// source failed but at least one succeeded; Failed lists the failing
// sources with their reasons.
type AggregateResult struct {
	Symbol   string
	Market   *MarketSnapshot
	Dex      *MarketSnapshot
	Social   *SocialSnapshot
	Degraded bool
	Failed   []SourceFailure
}

// SourceFailure records why one source degraded during aggregation.
type SourceFailure struct {
	Source string
	Kind   SourceErrorKind
	Reason string
}

// MemoryEntry is one piece of free-form learned context injected into
// AI prompts. Keys are unique; values are free text.
type MemoryEntry struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TemplateRole selects which prompt template a composition uses.
type TemplateRole string

const (
	TemplateSystem        TemplateRole = "system"
	TemplateSummaryFormat TemplateRole = "summary-format"
)

// Template is an editable prompt fragment. Exactly one active template
// exists per role; replacing it is an atomic swap.
type Template struct {
	Role      TemplateRole `json:"role"`
	Text      string       `json:"text"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// Summary is a generated market summary for one coin.
type Summary struct {
	ID        int64     `json:"id"`
	Symbol    string    `json:"symbol"`
	Trigger   string    `json:"trigger"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// JobState is the run state of a scheduled job slot.
type JobState string

const (
	JobIdle    JobState = "idle"
	JobRunning JobState = "running"
	JobFailed  JobState = "failed"
)

// ScheduledJob is one configured daily trigger slot.
type ScheduledJob struct {
	Name      string    `json:"name"`
	Hour      int       `json:"hour"`
	Minute    int       `json:"minute"`
	Timezone  string    `json:"timezone"`
	LastFired time.Time `json:"last_fired"`
	State     JobState  `json:"state"`
}

// RunResult summarizes one pipeline run across all active coins.
type RunResult struct {
	Trigger    string
	Summaries  int
	CoinErrors []string
	StartedAt  time.Time
	FinishedAt time.Time
}
