package coingecko

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	c := NewClient(Config{APIBase: srv.URL, Timeout: time.Second, MaxRetries: 2, InitialBackoff: time.Millisecond}, srv.Client(), nil)
	return c, srv
}

func TestFetchSpotParsesRowsAndUppercasesSymbol(t *testing.T) {
	c, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/coins/markets", r.URL.Path)
		assert.Equal(t, "usd", r.URL.Query().Get("vs_currency"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"id":"bitcoin","symbol":"btc","current_price":50000,"market_cap":900000000000,"total_volume":1000,"price_change_percentage_24h_in_currency":1.5}]`))
	})
	defer srv.Close()

	snapshots, err := c.FetchSpot(context.Background(), []string{"bitcoin"}, "usd")
	require.NoError(t, err)
	require.Len(t, snapshots, 1)
	assert.Equal(t, "BTC", snapshots[0].AssetSymbol)
	assert.Equal(t, ProviderName, snapshots[0].Source)
	require.NotNil(t, snapshots[0].Price)
	assert.Equal(t, 50000.0, *snapshots[0].Price)
	require.NotNil(t, snapshots[0].Change24h)
	assert.Equal(t, 1.5, *snapshots[0].Change24h)
}

func TestFetchSpotRejectsEmptyProviderIDs(t *testing.T) {
	c := NewClient(Config{}, nil, nil)
	_, err := c.FetchSpot(context.Background(), nil, "usd")
	assert.Error(t, err)
}

func TestFetchHistoryRangeParsesAlignedSeries(t *testing.T) {
	c, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"prices":[[1700000000000,50000],[1700003600000,50500]],"market_caps":[[1700000000000,900000000000]],"total_volumes":[[1700003600000,1234]]}`))
	})
	defer srv.Close()

	snapshots, err := c.FetchHistoryRange(context.Background(), "bitcoin", "usd", time.Unix(1700000000, 0), time.Unix(1700003600, 0))
	require.NoError(t, err)
	require.Len(t, snapshots, 2)
	assert.Equal(t, "BITCOIN", snapshots[0].AssetSymbol)
	require.NotNil(t, snapshots[0].MarketCap)
	assert.Nil(t, snapshots[0].Volume24h)
	require.NotNil(t, snapshots[1].Volume24h)
	assert.Equal(t, 1234.0, *snapshots[1].Volume24h)
}

func TestRequestJSONRetriesOnRetryableStatus(t *testing.T) {
	attempts := 0
	c, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[]`))
	})
	defer srv.Close()

	_, err := c.FetchSpot(context.Background(), []string{"bitcoin"}, "usd")
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
}
