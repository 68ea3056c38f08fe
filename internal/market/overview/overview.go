// Package overview implements the `rrp market overview` dashboard query of
// SPEC_FULL.md §4 item 1, grounded on
// features/market/application/usecases/dashboard_queries.py: a read-only
// join of the latest candle, the trailing factor row, and the most recent
// summarized articles for an asset.
package overview

import (
	"context"
	"fmt"
	"time"

	"github.com/sawpanic/rrp/internal/domain"
	"github.com/sawpanic/rrp/internal/persistence/ports"
)

// Overview is the assembled dashboard snapshot for one asset.
type Overview struct {
	AssetSymbol    string
	LatestClose    float64
	AvgVolume      float64
	AvgMarketCap   float64
	LatestFactors  *domain.MarketFactorsDaily
	RecentArticles []domain.SummarizedArticle
}

const recentArticleLimit = 5

// Query assembles Overview from the market, factors, and articles ports.
type Query struct {
	Market   ports.MarketRepository
	Factors  ports.FactorsRepository
	Articles ports.ArticlesQuery
}

// New constructs a Query.
func New(market ports.MarketRepository, factors ports.FactorsRepository, articles ports.ArticlesQuery) *Query {
	return &Query{Market: market, Factors: factors, Articles: articles}
}

// Execute builds the overview for assetSymbol over [start, end], grounded
// on DashboardQueries.market_overview plus the factor/article additions
// SPEC_FULL.md calls for.
func (q *Query) Execute(ctx context.Context, assetSymbol string, start, end time.Time) (Overview, error) {
	candles, err := q.Market.DailyCandles(ctx, assetSymbol, start)
	if err != nil {
		return Overview{}, fmt.Errorf("overview: fetch candles: %w", err)
	}
	candles = withinRange(candles, start, end)

	overview := Overview{AssetSymbol: assetSymbol}
	if len(candles) > 0 {
		last := candles[len(candles)-1]
		if last.Close != nil {
			overview.LatestClose = *last.Close
		}
		overview.AvgVolume = average(candles, func(c domain.DailyCandle) *float64 { return c.Volume })
		overview.AvgMarketCap = average(candles, func(c domain.DailyCandle) *float64 { return c.MarketCap })
	}

	if q.Factors != nil && !end.IsZero() {
		if row, err := q.Factors.FactorsForDay(ctx, assetSymbol, end); err == nil {
			overview.LatestFactors = row
		}
	}

	if q.Articles != nil {
		articles, err := q.Articles.RecentSummarizedArticles(ctx, assetSymbol, recentArticleLimit)
		if err == nil {
			overview.RecentArticles = articles
		}
	}

	return overview, nil
}

func withinRange(candles []domain.DailyCandle, start, end time.Time) []domain.DailyCandle {
	out := make([]domain.DailyCandle, 0, len(candles))
	for _, c := range candles {
		if c.Day.Before(start) || c.Day.After(end) {
			continue
		}
		out = append(out, c)
	}
	return out
}

// average matches the original's "only average if at least one candle
// carries a non-null value" guard: an all-null field yields 0; otherwise
// the sum of the non-null values is divided by the full candle count, so a
// null value counts as a zero contribution.
func average(candles []domain.DailyCandle, field func(domain.DailyCandle) *float64) float64 {
	anyNonNil := false
	sum := 0.0
	for _, c := range candles {
		if v := field(c); v != nil {
			anyNonNil = true
			sum += *v
		}
	}
	if !anyNonNil {
		return 0
	}
	return sum / float64(len(candles))
}
