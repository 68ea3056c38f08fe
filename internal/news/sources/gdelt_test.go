package sources

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/rrp/internal/news/query"
)

func TestDailyRangesUTCFullDays(t *testing.T) {
	start := time.Date(2025, 10, 1, 12, 0, 0, 0, time.UTC)
	end := time.Date(2025, 10, 3, 6, 0, 0, 0, time.UTC)

	slices := dailyRangesUTCFullDays(start, end)
	require.Len(t, slices, 2)
	assert.Equal(t, start, slices[0].queryStart)
	assert.Equal(t, time.Date(2025, 10, 2, 0, 0, 0, 0, time.UTC), slices[0].queryEnd)
	assert.Equal(t, time.Date(2025, 10, 2, 0, 0, 0, 0, time.UTC), slices[1].queryStart)
	assert.Equal(t, time.Date(2025, 10, 3, 0, 0, 0, 0, time.UTC), slices[1].queryEnd)
}

func TestDailyRangesUTCFullDaysEmptyWhenSameDay(t *testing.T) {
	start := time.Date(2025, 10, 1, 1, 0, 0, 0, time.UTC)
	end := time.Date(2025, 10, 1, 23, 0, 0, 0, time.UTC)
	assert.Empty(t, dailyRangesUTCFullDays(start, end))
}

func TestGdeltFetchDocumentsRejectsFutureRange(t *testing.T) {
	qb := query.NewBuilder(nil, query.DefaultBuildParams())
	client := NewGdeltClient(GdeltConfig{MaxRetries: 1}, http.DefaultClient, nil, qb)

	future := time.Now().UTC().Add(48 * time.Hour)
	docs := client.FetchDocuments(context.Background(), HarvestCriteria{
		AssetSymbol: "BTC",
		Start:       future,
		End:         future.Add(24 * time.Hour),
		Limit:       10,
	})
	assert.Empty(t, docs)
}

func TestGdeltFetchDocumentsParsesArticles(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(gdeltResponse{
			Articles: []gdeltArticle{
				{URL: "https://example.com/a", Title: "Article A"},
				{URL: "https://example.com/a", Title: "Duplicate"},
				{URL: "https://example.com/b", Title: "Article B"},
			},
		})
	}))
	defer server.Close()

	qb := query.NewBuilder(nil, query.DefaultBuildParams())
	client := NewGdeltClient(GdeltConfig{MaxRetries: 1}, server.Client(), nil, qb)
	client.baseURL = server.URL

	now := time.Now().UTC()
	start := floorDayUTC(now.AddDate(0, 0, -2))
	end := floorDayUTC(now.AddDate(0, 0, -1))

	docs := client.FetchDocuments(context.Background(), HarvestCriteria{
		AssetSymbol: "BTC",
		Start:       start,
		End:         end,
		Limit:       10,
	})
	require.Len(t, docs, 2)
	assert.Equal(t, "https://example.com/a", docs[0].URL)
	assert.Equal(t, "https://example.com/b", docs[1].URL)
}
