package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/rrp/internal/domain"
)

type fakeSource struct {
	history []domain.MarketSnapshot
	spot    []domain.MarketSnapshot
}

func (f *fakeSource) FetchHistoryRange(ctx context.Context, providerID, vsCurrency string, from, to time.Time) ([]domain.MarketSnapshot, error) {
	return f.history, nil
}

func (f *fakeSource) FetchSpot(ctx context.Context, providerIDs []string, vsCurrency string) ([]domain.MarketSnapshot, error) {
	return f.spot, nil
}

type fakeMarketRepo struct {
	snapshots []domain.MarketSnapshot
	candles   []domain.DailyCandle
}

func (r *fakeMarketRepo) SaveSnapshot(ctx context.Context, s domain.MarketSnapshot) error {
	r.snapshots = append(r.snapshots, s)
	return nil
}
func (r *fakeMarketRepo) SaveDailyCandle(ctx context.Context, c domain.DailyCandle) error {
	r.candles = append(r.candles, c)
	return nil
}
func (r *fakeMarketRepo) SnapshotsForDay(ctx context.Context, assetSymbol, provider, vsCurrency string, day time.Time) ([]domain.MarketSnapshot, error) {
	return nil, nil
}
func (r *fakeMarketRepo) DailyCandles(ctx context.Context, assetSymbol string, since time.Time) ([]domain.DailyCandle, error) {
	return nil, nil
}

func price(v float64) *float64 { return &v }

func TestExecuteReStampsAssetSymbolAndRollsUpCandles(t *testing.T) {
	day := time.Date(2026, 7, 1, 10, 0, 0, 0, time.UTC)
	source := &fakeSource{history: []domain.MarketSnapshot{
		{AssetSymbol: "BITCOIN", Source: "CoinGecko", ObservedAt: day, Price: price(50000)},
		{AssetSymbol: "BITCOIN", Source: "CoinGecko", ObservedAt: day.Add(time.Hour), Price: price(51000)},
	}}
	repo := &fakeMarketRepo{}
	uc := New(repo, source)

	result, err := uc.Execute(context.Background(), "BTC", "bitcoin", "usd", day, day.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, result.Fetched)
	assert.Equal(t, 1, result.Saved)
	require.Len(t, repo.snapshots, 2)
	assert.Equal(t, "BTC", repo.snapshots[0].AssetSymbol)
	require.Len(t, repo.candles, 1)
	assert.Equal(t, "BTC", repo.candles[0].AssetSymbol)
	assert.Equal(t, "bitcoin", repo.candles[0].ProviderID)
}

func TestExecuteSpotSavesEachSnapshot(t *testing.T) {
	source := &fakeSource{spot: []domain.MarketSnapshot{
		{AssetSymbol: "BTC", Source: "CoinGecko", Price: price(50000)},
		{AssetSymbol: "ETH", Source: "CoinGecko", Price: price(3000)},
	}}
	repo := &fakeMarketRepo{}
	uc := New(repo, source)

	result, err := uc.ExecuteSpot(context.Background(), []string{"bitcoin", "ethereum"}, "usd")
	require.NoError(t, err)
	assert.Equal(t, 2, result.Fetched)
	assert.Equal(t, 2, result.Saved)
	assert.Len(t, repo.snapshots, 2)
}
