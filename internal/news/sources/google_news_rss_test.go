package sources

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
<channel>
<item>
<title>Bitcoin rallies</title>
<link>https://example.com/a</link>
<pubDate>Wed, 01 Oct 2025 12:00:00 GMT</pubDate>
<source url="https://example.com">Example News</source>
</item>
<item>
<title>Unrelated</title>
<link>https://example.com/b</link>
<pubDate>Wed, 01 Jan 2020 12:00:00 GMT</pubDate>
<source url="https://example.com">Example News</source>
</item>
</channel>
</rss>`

func TestGoogleNewsRSSBuildQueryWithContext(t *testing.T) {
	client := NewGoogleNewsRSSClient(GoogleNewsRSSConfig{Hl: "en-US", Gl: "US", Ceid: "US:en"}, nil, nil, nil)
	q := client.buildQuery(HarvestCriteria{
		AssetSymbol: "BTC",
		Start:       time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC),
		End:         time.Date(2025, 10, 2, 0, 0, 0, 0, time.UTC),
	})
	assert.Contains(t, q, "BTC")
	assert.Contains(t, q, `"Bitcoin"`)
	assert.Contains(t, q, "crypto OR cryptocurrency")
	assert.Contains(t, q, "after:2025-10-01 before:2025-10-02")
}

func TestGoogleNewsRSSFetchDocumentsFiltersByRangeAndLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(sampleFeed))
	}))
	defer server.Close()

	client := NewGoogleNewsRSSClient(GoogleNewsRSSConfig{Hl: "en-US", Gl: "US", Ceid: "US:en"}, server.Client(), nil, nil)

	docs := client.fetchFromURL(context.Background(), server.URL, HarvestCriteria{
		AssetSymbol: "BTC",
		Start:       time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC),
		End:         time.Date(2025, 10, 31, 0, 0, 0, 0, time.UTC),
		Limit:       10,
	})

	require.Len(t, docs, 1)
	assert.Equal(t, "https://example.com/a", docs[0].URL)
	assert.Equal(t, "Bitcoin rallies", docs[0].Title)
}
