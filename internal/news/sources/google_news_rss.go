package sources

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/mail"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/rrp/internal/domain"
	"github.com/sawpanic/rrp/internal/news/resolver"
	"github.com/sawpanic/rrp/internal/platform/metrics"
)

const (
	googleRSSSourceName = "google_rss"
	googleRSSBaseURL    = "https://news.google.com/rss/search"
)

// rssFeed mirrors the subset of the Google News RSS schema this client
// reads, grounded on the struct-tag style of the other_examples RSS reader
// (encoding/xml with `xml:"..."` field tags).
type rssFeed struct {
	Channel rssChannel `xml:"channel"`
}

type rssChannel struct {
	Items []rssItem `xml:"item"`
}

type rssItem struct {
	Title   string       `xml:"title"`
	Link    string       `xml:"link"`
	PubDate string       `xml:"pubDate"`
	Source  rssItemSource `xml:"source"`
}

type rssItemSource struct {
	Text string `xml:",chardata"`
	URL  string `xml:"url,attr"`
}

func (s rssItemSource) publisher() string {
	if t := strings.TrimSpace(s.Text); t != "" {
		return t
	}
	return strings.TrimSpace(s.URL)
}

// GoogleNewsRSSConfig configures a GoogleNewsRSSClient.
type GoogleNewsRSSConfig struct {
	Hl                        string
	Gl                        string
	Ceid                      string
	Timeout                   time.Duration
	ResolveRedirects          bool
	MajorAssetsWithoutContext map[string]bool
	EnforceContextAssets      map[string]bool
}

// GoogleNewsRSSClient fetches and parses the Google News RSS search feed,
// grounded on features/news/infrastructure/google_news_rss_client.py. Its
// query construction is intentionally independent of internal/news/query:
// the original builds a narrower ad hoc query here rather than reusing its
// own NewsQueryBuilder, and this port preserves that asymmetry.
type GoogleNewsRSSClient struct {
	cfg      GoogleNewsRSSConfig
	http     *http.Client
	metrics  *metrics.Registry
	resolver *resolver.Resolver
}

// NewGoogleNewsRSSClient constructs a GoogleNewsRSSClient.
func NewGoogleNewsRSSClient(cfg GoogleNewsRSSConfig, httpClient *http.Client, metricsReg *metrics.Registry, res *resolver.Resolver) *GoogleNewsRSSClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &GoogleNewsRSSClient{cfg: cfg, http: httpClient, metrics: metricsReg, resolver: res}
}

// SourceName identifies this adapter for harvest.Source.
func (c *GoogleNewsRSSClient) SourceName() string { return googleRSSSourceName }

func (c *GoogleNewsRSSClient) shouldUseCryptoContext(assetSymbol string) bool {
	sym := strings.ToUpper(assetSymbol)
	if c.cfg.EnforceContextAssets[sym] {
		return true
	}
	if c.cfg.MajorAssetsWithoutContext[sym] {
		return false
	}
	return true
}

// buildQuery mirrors _build_query: (SYMBOL [OR "Bitcoin"]) [AND context] after:/before:
func (c *GoogleNewsRSSClient) buildQuery(criteria HarvestCriteria) string {
	sym := strings.ToUpper(criteria.AssetSymbol)
	coreTerms := []string{sym}
	if sym == "BTC" {
		coreTerms = append(coreTerms, `"Bitcoin"`)
	}
	core := "(" + strings.Join(coreTerms, " OR ") + ")"

	context := ""
	if c.shouldUseCryptoContext(criteria.AssetSymbol) {
		context = " AND (crypto OR cryptocurrency OR blockchain OR token OR defi OR nft)"
	}

	dateClause := fmt.Sprintf(" after:%s before:%s", criteria.Start.UTC().Format("2006-01-02"), criteria.End.UTC().Format("2006-01-02"))
	return core + context + dateClause
}

func (c *GoogleNewsRSSClient) buildURL(query string) string {
	v := url.Values{}
	v.Set("q", query)
	v.Set("hl", c.cfg.Hl)
	v.Set("gl", c.cfg.Gl)
	v.Set("ceid", c.cfg.Ceid)
	return googleRSSBaseURL + "?" + v.Encode()
}

func parsePubDate(raw string) (time.Time, bool) {
	if raw == "" {
		return time.Time{}, false
	}
	t, err := mail.ParseDate(raw)
	if err != nil {
		return time.Time{}, false
	}
	return t.UTC(), true
}

func withinRange(ts time.Time, hasTS bool, start, end time.Time) bool {
	if !hasTS {
		return true
	}
	return !ts.Before(start) && !ts.After(end)
}

// FetchDocuments fetches the RSS feed, filters items to the criteria
// window, and resolves each link to its publisher URL when configured to
// do so.
func (c *GoogleNewsRSSClient) FetchDocuments(ctx context.Context, criteria HarvestCriteria) []domain.RawDocument {
	query := c.buildQuery(criteria)
	feedURL := c.buildURL(query)
	return c.fetchFromURL(ctx, feedURL, criteria)
}

// fetchFromURL performs the fetch/parse/filter pipeline against an
// explicit feed URL, split out from FetchDocuments so tests can point it
// at an httptest server instead of the real Google News endpoint.
func (c *GoogleNewsRSSClient) fetchFromURL(ctx context.Context, feedURL string, criteria HarvestCriteria) []domain.RawDocument {
	query := c.buildQuery(criteria)
	log.Info().Str("query", query).Msg("google_news_rss: fetching")

	assetLabel := strings.ToUpper(criteria.AssetSymbol)
	t0 := time.Now()

	body, err := c.fetch(ctx, feedURL)
	duration := time.Since(t0).Seconds()
	if err != nil {
		log.Warn().Err(err).Str("url", feedURL).Msg("google_news_rss: fetch error")
		if c.metrics != nil {
			c.metrics.NewsSourceFetchTotal.WithLabelValues(googleRSSSourceName, assetLabel, "error").Inc()
			c.metrics.NewsSourceFetchSeconds.WithLabelValues(googleRSSSourceName).Observe(duration)
			c.metrics.APIRequestsTotal.WithLabelValues("google_news_rss", "error").Inc()
			c.metrics.APIRequestDuration.WithLabelValues("google_news_rss").Observe(duration)
		}
		return nil
	}
	if c.metrics != nil {
		c.metrics.NewsSourceFetchTotal.WithLabelValues(googleRSSSourceName, assetLabel, "success").Inc()
		c.metrics.NewsSourceFetchSeconds.WithLabelValues(googleRSSSourceName).Observe(duration)
		c.metrics.APIRequestsTotal.WithLabelValues("google_news_rss", "success").Inc()
		c.metrics.APIRequestDuration.WithLabelValues("google_news_rss").Observe(duration)
	}

	var feed rssFeed
	if err := xml.Unmarshal(body, &feed); err != nil {
		log.Warn().Err(err).Msg("google_news_rss: XML parse error")
		if c.metrics != nil {
			c.metrics.NewsSourceFetchTotal.WithLabelValues(googleRSSSourceName, assetLabel, "parse_error").Inc()
		}
		return nil
	}

	limit := criteria.Limit
	if limit < 1 {
		limit = 1
	}

	var items []domain.RawDocument
	for _, item := range feed.Channel.Items {
		title := strings.TrimSpace(item.Title)
		link := strings.TrimSpace(item.Link)
		publishedAt, hasPub := parsePubDate(item.PubDate)

		if !withinRange(publishedAt, hasPub, criteria.Start, criteria.End) {
			continue
		}

		finalURL := link
		if c.cfg.ResolveRedirects && c.resolver != nil {
			if resolved, ok := c.resolver.Resolve(ctx, link); ok && resolved != "" {
				finalURL = resolved
			}
		}

		raw := map[string]any{
			"rss_link":  link,
			"query":     query,
			"hl":        c.cfg.Hl,
			"gl":        c.cfg.Gl,
			"ceid":      c.cfg.Ceid,
			"pub_date":  item.PubDate,
			"publisher": item.Source.publisher(),
		}

		publishedAtStr := ""
		if hasPub {
			publishedAtStr = publishedAt.Format(time.RFC3339)
		}

		items = append(items, domain.RawDocument{
			URL:         finalURL,
			Title:       title,
			Source:      googleRSSSourceName,
			PublishedAt: publishedAtStr,
			Raw:         raw,
		})
		if len(items) >= limit {
			break
		}
	}

	outcome := "assembled"
	if len(items) == 0 {
		outcome = "no_items"
	}
	if c.metrics != nil {
		c.metrics.NewsSourceFetchTotal.WithLabelValues(googleRSSSourceName, assetLabel, outcome).Inc()
	}

	log.Info().Int("count", len(items)).Int("limit", limit).Msg("google_news_rss: assembled items")
	return items
}

func (c *GoogleNewsRSSClient) fetch(ctx context.Context, feedURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build rss request: %w", err)
	}
	req.Header.Set("User-Agent", "rrp/1.0 (+https://example.local) go-http-client")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rss request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("rss request: status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
