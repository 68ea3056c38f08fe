package overview

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/rrp/internal/domain"
)

type fakeMarket struct{ candles []domain.DailyCandle }

func (f *fakeMarket) SaveSnapshot(ctx context.Context, s domain.MarketSnapshot) error { return nil }
func (f *fakeMarket) SaveDailyCandle(ctx context.Context, c domain.DailyCandle) error { return nil }
func (f *fakeMarket) SnapshotsForDay(ctx context.Context, assetSymbol, provider, vsCurrency string, day time.Time) ([]domain.MarketSnapshot, error) {
	return nil, nil
}
func (f *fakeMarket) DailyCandles(ctx context.Context, assetSymbol string, since time.Time) ([]domain.DailyCandle, error) {
	return f.candles, nil
}

type fakeFactors struct{ row *domain.MarketFactorsDaily }

func (f *fakeFactors) UpsertFactors(ctx context.Context, row domain.MarketFactorsDaily) error {
	return nil
}
func (f *fakeFactors) FactorsForDay(ctx context.Context, assetSymbol string, day time.Time) (*domain.MarketFactorsDaily, error) {
	return f.row, nil
}
func (f *fakeFactors) FactorsSince(ctx context.Context, assetSymbol string, since time.Time) ([]domain.MarketFactorsDaily, error) {
	return nil, nil
}
func (f *fakeFactors) DailyReturns(ctx context.Context, assetSymbol string, start, end time.Time) ([]domain.DailyReturn, error) {
	return nil, nil
}
func (f *fakeFactors) DailySentiment(ctx context.Context, assetSymbol string, start, end time.Time) (map[time.Time]*float64, error) {
	return nil, nil
}
func (f *fakeFactors) DailySentimentWeighted(ctx context.Context, assetSymbol string, start, end time.Time) (map[time.Time]*float64, error) {
	return nil, nil
}
func (f *fakeFactors) DailySentimentStats(ctx context.Context, assetSymbol string, start, end time.Time) (map[time.Time]int, error) {
	return nil, nil
}

type fakeArticles struct{ articles []domain.SummarizedArticle }

func (f *fakeArticles) RecentSummarizedArticles(ctx context.Context, assetSymbol string, limit int) ([]domain.SummarizedArticle, error) {
	return f.articles, nil
}

func f64(v float64) *float64 { return &v }

func TestExecuteAveragesOverAllCandlesWhenAnyNonNull(t *testing.T) {
	start := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 7, 3, 0, 0, 0, 0, time.UTC)
	market := &fakeMarket{candles: []domain.DailyCandle{
		{AssetSymbol: "BTC", Day: start, Close: f64(100), Volume: nil},
		{AssetSymbol: "BTC", Day: start.AddDate(0, 0, 1), Close: f64(110), Volume: f64(20)},
	}}
	factors := &fakeFactors{row: &domain.MarketFactorsDaily{AssetSymbol: "BTC", Day: end}}
	articles := &fakeArticles{articles: []domain.SummarizedArticle{{URL: "https://example.com/a"}}}

	q := New(market, factors, articles)
	out, err := q.Execute(context.Background(), "BTC", start, end)
	require.NoError(t, err)

	assert.Equal(t, 110.0, out.LatestClose)
	assert.Equal(t, 10.0, out.AvgVolume) // 20 / 2 candles, not 20/1
	require.NotNil(t, out.LatestFactors)
	require.Len(t, out.RecentArticles, 1)
}

func TestExecuteHandlesNoCandles(t *testing.T) {
	market := &fakeMarket{}
	q := New(market, nil, nil)
	out, err := q.Execute(context.Background(), "BTC", time.Now(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, 0.0, out.LatestClose)
}
