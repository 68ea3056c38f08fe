// Package domain holds the entities shared across the harvest, adjudication,
// and factor subsystems (spec.md §3).
package domain

import "time"

// Asset is a tracked crypto asset. Symbols are always uppercase and
// immutable once registered.
type Asset struct {
	Symbol     string
	Name       string
	Aliases    []string
	ProviderID map[string]string // provider name -> provider-specific id (e.g. coingecko -> "bitcoin")
}

// UrlHarvest is an inbox row: a (url, asset) candidate awaiting adjudication.
type UrlHarvest struct {
	ID            int64
	URL           string
	AssetSymbol   string
	Source        string
	PublishedAt   *time.Time
	Title         string
	DiscoveredAt  time.Time
}

// SummarizedArticle is created only when the ensemble majority-votes relevant.
type SummarizedArticle struct {
	ID          int64
	URL         string
	AssetSymbol string
	Source      string
	Summary     string
	Model       string
	Sentiment   *float64 // [-1, 1]
	PublishedAt time.Time
	IngestedAt  time.Time
}

// LlmVote is one model's normalized vote on one adjudicated candidate.
type LlmVote struct {
	ID          int64
	URL         *string // set when the candidate was rejected (no article)
	ArticleID   *int64  // set when the candidate produced a SummarizedArticle
	AssetSymbol string
	Model       string
	Relevance   bool
	Sentiment   *float64 // [-1, 1], rounded to 2dp
	Summary     string
	HarvestID   int64
	CreatedAt   time.Time
}

// Rejection records why a candidate did not become an article.
type Rejection struct {
	ID          int64
	URL         string
	AssetSymbol string
	Reason      string
	Source      string
	Context     string
	Model       string
	DetailsJSON string
	CreatedAt   time.Time
}

// MarketSnapshot is a raw, append-only intraday observation.
type MarketSnapshot struct {
	AssetSymbol string
	Source      string
	ObservedAt  time.Time
	Price       *float64
	MarketCap   *float64
	Volume24h   *float64
	Change1h    *float64
	Change24h   *float64
	Change7d    *float64
}

// DailyCandle is the rollup of a day's snapshots for one (asset, provider, vs_currency).
type DailyCandle struct {
	AssetSymbol string
	Provider    string
	ProviderID  string
	VsCurrency  string
	Day         time.Time // truncated to UTC midnight
	Open        *float64
	High        *float64
	Low         *float64
	Close       *float64
	MarketCap   *float64
	Volume      *float64
	Source      string
}

// DailyReturn is one day's return read from v_daily_returns; Return is
// nil when the day has no daily candle (e.g. a gap in history).
type DailyReturn struct {
	Day    time.Time
	Return *float64
}

// MarketFactorsDaily is the idempotently-recomputed factor row per (asset, day).
type MarketFactorsDaily struct {
	AssetSymbol    string
	Day            time.Time
	Ret1d          *float64
	Vol30d         *float64
	Sharpe30d      *float64
	Sortino30d     *float64
	Var1d95        *float64
	ExpReturn30d   *float64
	SentimentMean  *float64
	SentimentNorm  *float64
	PAlpha         *float64
	Alpha          float64
}

// NewsDomainPolicy is an operator-configured per-(asset,domain) allow rule.
type NewsDomainPolicy struct {
	AssetSymbol string
	Domain      string
	Allowed     bool
}

// NewsDomainStats tracks harvest/adjudication outcomes per (asset, domain).
type NewsDomainStats struct {
	AssetSymbol    string
	Domain         string
	HarvestedTotal int64
	StoredTotal    int64
	LlmAccepted    int64
	LlmRejected    int64
}

// HarvestSummary is the counter set returned by the Harvest Orchestrator (spec.md §4.4).
type HarvestSummary struct {
	TotalDocs          int
	AfterAssemble      int
	AfterDedupe        int
	Saved              int
	SkippedDuplicates  int
	RejectedInvalid    int
}

// RawDocument is what a News Source Adapter produces before canonicalization.
type RawDocument struct {
	URL         string
	OgURL       string
	Link        string
	Title       string
	Name        string
	Source      string
	SourceName  string
	PublishedAt string // ISO-8601 or RFC1123, adapter-dependent; canonicalized downstream
	PubDate     string
	SeenAt      string
	Raw         map[string]any
}

// Vote is one client's normalized output on one candidate (spec.md §4.6).
type Vote struct {
	Model     string
	Relevance bool
	Sentiment *float64 // rounded to 2dp, nil if absent
	Summary   string
}

// EnsembleResult is the ensemble's aggregated decision plus the raw vote audit trail.
type EnsembleResult struct {
	Relevance bool
	Sentiment *float64 // unrounded arithmetic mean
	Summary   string
	Model     string
	Votes     []Vote
}

// ClampUnit clamps a value into [-1, 1], used for sentiment.
func ClampUnit(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}

// ClampProbability clamps a value into [0, 1], used for relevance/blend weights.
func ClampProbability(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < 0 {
		return 0
	}
	return v
}
