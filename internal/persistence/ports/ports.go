// Package ports defines the persistence-boundary interfaces of spec.md
// §4.11, grounded on features/news/application/ports.py and the analogous
// market/llm port files. Concrete adapters live in
// internal/persistence/postgres.
package ports

import (
	"context"
	"time"

	"github.com/sawpanic/rrp/internal/domain"
)

// NewsRepository persists url_harvests and rejections, and enforces the
// dedupe invariant of spec.md §4.4/§4.7: check summarized_articles and
// rejections for (url, asset) first, then url_harvests, before inserting.
type NewsRepository interface {
	// SaveURLHarvest inserts a new inbox row, or reports the existing one
	// as a duplicate. isDuplicate is true when a row for (url, asset)
	// already existed in any of the three tables.
	SaveURLHarvest(ctx context.Context, h domain.UrlHarvest) (id int64, isDuplicate bool, err error)
	SaveRejection(ctx context.Context, r domain.Rejection) (id int64, err error)
	NowUTC() time.Time
}

// SummarizedArticleRepository persists the outcome of the ensemble
// adjudication step. It also accepts rejections (SaveRejection) since the
// summarize-harvest use case writes articles, rejections, and votes
// through one transactional boundary.
type SummarizedArticleRepository interface {
	SaveSummarizedArticle(ctx context.Context, a domain.SummarizedArticle) (id int64, err error)
	SaveRejection(ctx context.Context, r domain.Rejection) (id int64, err error)
	SaveVote(ctx context.Context, v domain.LlmVote) (id int64, err error)
	// ExistsForURLAndAsset reports whether url+asset already has a
	// summarized article or a rejection — the first dedupe check in the
	// summarize-harvest chain.
	ExistsForURLAndAsset(ctx context.Context, url, assetSymbol string) (bool, error)
	// PendingHarvests returns up to limit url_harvests rows for assetSymbol
	// that have not yet been adjudicated.
	PendingHarvests(ctx context.Context, assetSymbol string, limit int) ([]domain.UrlHarvest, error)
	// DeleteURLHarvest removes an inbox row once it has been adjudicated,
	// whether it was saved as an article or rejected.
	DeleteURLHarvest(ctx context.Context, id int64) error
	// ListVotesForAsset returns every llm_votes row for assetSymbol since
	// the given time, newest first, for the CSV vote export named in
	// spec.md §6.
	ListVotesForAsset(ctx context.Context, assetSymbol string, since time.Time) ([]domain.LlmVote, error)
}

// MarketRepository persists raw snapshots and their daily rollups.
type MarketRepository interface {
	SaveSnapshot(ctx context.Context, s domain.MarketSnapshot) error
	SaveDailyCandle(ctx context.Context, c domain.DailyCandle) error
	SnapshotsForDay(ctx context.Context, assetSymbol, provider, vsCurrency string, day time.Time) ([]domain.MarketSnapshot, error)
	DailyCandles(ctx context.Context, assetSymbol string, since time.Time) ([]domain.DailyCandle, error)
}

// FactorsRepository persists the idempotently-recomputed factor rows and
// serves the daily-return/sentiment views the Factor Engine reads from
// (spec.md §4.9, §4.11).
type FactorsRepository interface {
	UpsertFactors(ctx context.Context, f domain.MarketFactorsDaily) error
	FactorsForDay(ctx context.Context, assetSymbol string, day time.Time) (*domain.MarketFactorsDaily, error)
	FactorsSince(ctx context.Context, assetSymbol string, since time.Time) ([]domain.MarketFactorsDaily, error)

	// DailyReturns reads v_daily_returns over [start, end], ascending by
	// day, one entry per day that has a candle (days with no candle have no
	// entry; the return is null when a close or the previous close is
	// missing or zero).
	DailyReturns(ctx context.Context, assetSymbol string, start, end time.Time) ([]domain.DailyReturn, error)
	// DailySentiment reads the unweighted daily mean sentiment view,
	// keyed by UTC day; a missing key means no articles that day.
	DailySentiment(ctx context.Context, assetSymbol string, start, end time.Time) (map[time.Time]*float64, error)
	// DailySentimentWeighted reads v_daily_sentiment_weighted, used by the
	// domain_weight sentiment mode. The view returns the same unweighted
	// daily mean as v_daily_sentiment; evidence weights are built from
	// DailySentimentStats instead.
	DailySentimentWeighted(ctx context.Context, assetSymbol string, start, end time.Time) (map[time.Time]*float64, error)
	// DailySentimentStats reads the per-day article count N(t) used to
	// build evidence weights.
	DailySentimentStats(ctx context.Context, assetSymbol string, start, end time.Time) (map[time.Time]int, error)
}

// DomainPolicyRepository is the operator-configurable allow/deny list and
// its harvest/adjudication statistics (spec.md §4.10). Implementations are
// fail-open: IsAllowed returns (true, nil) when no explicit policy exists.
type DomainPolicyRepository interface {
	IsAllowed(ctx context.Context, assetSymbol, domain string) (bool, error)
	SetPolicy(ctx context.Context, assetSymbol, domain string, allowed bool) error
	RecordHarvest(ctx context.Context, assetSymbol, domain string, stored bool) error
	RecordLlmDecision(ctx context.Context, assetSymbol, domain string, relevant bool) error
	Stats(ctx context.Context, assetSymbol string) ([]domain.NewsDomainStats, error)
}

// ArticlesQuery supports the read-only dashboard overview (SPEC_FULL.md §4
// item 1).
type ArticlesQuery interface {
	RecentSummarizedArticles(ctx context.Context, assetSymbol string, limit int) ([]domain.SummarizedArticle, error)
}
