package rollup

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/rrp/internal/domain"
)

func mustParse(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, s)
	require.NoError(t, err)
	return ts
}

func TestRollupDailyCandlesSumsVolumeAndTracksOHLC(t *testing.T) {
	snaps := []domain.MarketSnapshot{
		{AssetSymbol: "BTC", ObservedAt: mustParse(t, "2025-06-01T00:00:00Z"), Price: floatPtr(100), MarketCap: floatPtr(1000), Volume24h: floatPtr(10)},
		{AssetSymbol: "BTC", ObservedAt: mustParse(t, "2025-06-01T12:00:00Z"), Price: floatPtr(120), MarketCap: floatPtr(1200), Volume24h: floatPtr(15)},
		{AssetSymbol: "BTC", ObservedAt: mustParse(t, "2025-06-01T23:00:00Z"), Price: floatPtr(90), MarketCap: nil, Volume24h: floatPtr(5)},
	}

	candles := RollupDailyCandles(snaps, "BTC", "coingecko", "bitcoin", "usd")
	require.Len(t, candles, 1)
	c := candles[0]

	assert.Equal(t, 100.0, *c.Open)
	assert.Equal(t, 90.0, *c.Close)
	assert.Equal(t, 120.0, *c.High)
	assert.Equal(t, 90.0, *c.Low)
	require.NotNil(t, c.MarketCap)
	assert.Equal(t, 1200.0, *c.MarketCap)
	assert.Equal(t, 30.0, *c.Volume)
}

func TestRollupDailyCandlesGroupsAcrossDaysAndSortsAscending(t *testing.T) {
	snaps := []domain.MarketSnapshot{
		{ObservedAt: mustParse(t, "2025-06-02T01:00:00Z"), Price: floatPtr(5), Volume24h: floatPtr(1)},
		{ObservedAt: mustParse(t, "2025-06-01T01:00:00Z"), Price: floatPtr(4), Volume24h: floatPtr(1)},
	}
	candles := RollupDailyCandles(snaps, "BTC", "coingecko", "bitcoin", "usd")
	require.Len(t, candles, 2)
	assert.True(t, candles[0].Day.Before(candles[1].Day))
}

func TestRollupAverageDividesVolumeBySnapshotCount(t *testing.T) {
	snaps := []domain.MarketSnapshot{
		{ObservedAt: mustParse(t, "2025-06-01T00:00:00Z"), Price: floatPtr(10), Volume24h: floatPtr(10)},
		{ObservedAt: mustParse(t, "2025-06-01T12:00:00Z"), Price: floatPtr(20), Volume24h: floatPtr(30)},
	}
	candles := RollupAverage(snaps, "BTC", "coingecko", "bitcoin", "usd")
	require.Len(t, candles, 1)
	assert.Equal(t, 20.0, *candles[0].Volume)
}

func TestRollupDailyCandlesAllNullPricesYieldsNullOHLC(t *testing.T) {
	snaps := []domain.MarketSnapshot{
		{ObservedAt: mustParse(t, "2025-06-01T00:00:00Z"), Price: nil, Volume24h: floatPtr(1)},
	}
	candles := RollupDailyCandles(snaps, "BTC", "coingecko", "bitcoin", "usd")
	require.Len(t, candles, 1)
	assert.Nil(t, candles[0].Open)
	assert.Nil(t, candles[0].High)
	assert.Nil(t, candles[0].MarketCap)
	assert.Equal(t, 1.0, *candles[0].Volume)
}
