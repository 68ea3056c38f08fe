package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/rrp/internal/domain"
	"github.com/sawpanic/rrp/internal/news/query"
	"github.com/sawpanic/rrp/internal/platform/metrics"
)

const (
	gdeltSourceName   = "gdelt"
	gdeltBaseURL      = "https://api.gdeltproject.org/api/v2/doc/doc"
	gdeltMaxItems     = 250
	gdeltRateDelay    = 600 * time.Millisecond
	gdeltUserAgent    = "rrp/1.0 (+https://example.local) go-http-client"
)

// GdeltConfig configures a GdeltClient.
type GdeltConfig struct {
	Timeout                   time.Duration
	MaxRetries                int
	MajorAssetsWithoutContext map[string]bool
	EnforceContextAssets      map[string]bool
}

// GdeltClient fetches news documents from the GDELT Doc API, grounded on
// features/news/infrastructure/gdelt_client.py. Fetching is day-bucketed:
// each full UTC day in [start, end) is queried separately and its
// published_at is synthetically stamped to that day's midnight.
type GdeltClient struct {
	cfg     GdeltConfig
	http    *http.Client
	metrics *metrics.Registry
	qb      *query.Builder
	baseURL string
}

// NewGdeltClient constructs a GdeltClient. metrics may be nil.
func NewGdeltClient(cfg GdeltConfig, httpClient *http.Client, metricsReg *metrics.Registry, qb *query.Builder) *GdeltClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	return &GdeltClient{cfg: cfg, http: httpClient, metrics: metricsReg, qb: qb, baseURL: gdeltBaseURL}
}

// SourceName identifies this adapter for harvest.Source.
func (c *GdeltClient) SourceName() string { return gdeltSourceName }

func floorDayUTC(ts time.Time) time.Time {
	u := ts.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

type daySlice struct {
	queryStart time.Time
	queryEnd   time.Time
	dayStart   time.Time
}

// dailyRangesUTCFullDays returns one slice per full UTC day covered by
// [start, end), clamped to the requested window.
func dailyRangesUTCFullDays(start, end time.Time) []daySlice {
	sDay := floorDayUTC(start)
	eDayExcl := floorDayUTC(end)
	if !sDay.Before(eDayExcl) {
		return nil
	}

	var slices []daySlice
	for day := sDay; day.Before(eDayExcl); day = day.AddDate(0, 0, 1) {
		nextDay := day.AddDate(0, 0, 1)
		qStart := start.UTC()
		if day.After(qStart) {
			qStart = day
		}
		qEnd := end.UTC()
		if nextDay.Before(qEnd) {
			qEnd = nextDay
		}
		if qStart.Before(qEnd) {
			slices = append(slices, daySlice{queryStart: qStart, queryEnd: qEnd, dayStart: day})
		}
	}
	return slices
}

// FetchDocuments queries GDELT once per full UTC day in the criteria window.
// Transient failures are logged and skipped per day slice; the call itself
// never fails the whole harvest.
func (c *GdeltClient) FetchDocuments(ctx context.Context, criteria HarvestCriteria) []domain.RawDocument {
	var results []domain.RawDocument

	now := time.Now().UTC()
	if criteria.Start.After(now) || criteria.End.After(now) {
		log.Warn().
			Time("start", criteria.Start).Time("end", criteria.End).
			Msg("gdelt: future range not supported")
		return results
	}

	q := c.qb.BuildForGDELT(criteria.AssetSymbol)
	log.Info().Str("query", q).Msg("gdelt query")

	perDayLimit := criteria.Limit
	if perDayLimit < 1 {
		perDayLimit = 1
	}

	for _, slice := range dailyRangesUTCFullDays(criteria.Start, criteria.End) {
		seenURLs := make(map[string]struct{})

		maxRecords := perDayLimit
		if maxRecords > gdeltMaxItems {
			maxRecords = gdeltMaxItems
		}
		params := map[string]string{
			"query":         q,
			"mode":          "ArtList",
			"format":        "json",
			"maxrecords":    strconv.Itoa(maxRecords),
			"startdatetime": slice.queryStart.Format("20060102150405"),
			"enddatetime":   slice.queryEnd.Format("20060102150405"),
		}

		log.Debug().Interface("params", params).Msg("gdelt request params")
		time.Sleep(gdeltRateDelay)

		t0 := time.Now()
		data, err := c.requestJSON(ctx, params, slice.queryStart, slice.queryEnd)
		duration := time.Since(t0).Seconds()

		if c.metrics != nil {
			outcome := "no_data"
			if err != nil {
				outcome = "error"
			} else if data != nil && len(data.Articles) > 0 {
				outcome = "success"
			}
			c.metrics.NewsSourceFetchTotal.WithLabelValues(gdeltSourceName, strings.ToUpper(criteria.AssetSymbol), outcome).Inc()
			c.metrics.NewsSourceFetchSeconds.WithLabelValues(gdeltSourceName).Observe(duration)
		}

		if err != nil || data == nil {
			log.Info().Time("start", slice.queryStart).Time("end", slice.queryEnd).Msg("gdelt: no data for day slice")
			continue
		}

		dayResults := 0
		for _, item := range data.Articles {
			if dayResults >= perDayLimit {
				break
			}
			url := strings.TrimSpace(item.URL)
			if url == "" {
				url = strings.TrimSpace(item.DocumentIdentifier)
			}
			if url == "" || contains(seenURLs, url) {
				continue
			}
			seenURLs[url] = struct{}{}

			title := strings.TrimSpace(item.Title)
			raw := map[string]any{
				"query":       q,
				"query_start": slice.queryStart.Format(time.RFC3339),
				"query_end":   slice.queryEnd.Format(time.RFC3339),
				"seendate":    item.SeenDate,
				"domain":      item.Domain,
			}

			publishedAt := slice.dayStart
			results = append(results, domain.RawDocument{
				URL:         url,
				Title:       title,
				Source:      gdeltSourceName,
				PublishedAt: publishedAt.Format(time.RFC3339),
				Raw:         raw,
			})
			dayResults++
		}
		log.Info().Int("count", dayResults).Time("day", slice.dayStart).Msg("gdelt fetched documents for day")
	}

	log.Info().Int("total", len(results)).Msg("gdelt total documents across days")
	return results
}

func contains(set map[string]struct{}, key string) bool {
	_, ok := set[key]
	return ok
}

type gdeltArticle struct {
	URL                string `json:"url"`
	DocumentIdentifier string `json:"DocumentIdentifier"`
	Title              string `json:"title"`
	SeenDate           string `json:"seendate"`
	Domain             string `json:"domain"`
}

type gdeltResponse struct {
	Articles []gdeltArticle `json:"articles"`
}

// requestJSON performs the HTTP GET with retry/backoff on 429/5xx and
// transport errors, doubling the backoff each attempt starting at 1s.
func (c *GdeltClient) requestJSON(ctx context.Context, params map[string]string, start, end time.Time) (*gdeltResponse, error) {
	backoff := time.Second
	var lastErr error

	for attempt := 1; attempt <= c.cfg.MaxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL, nil)
		if err != nil {
			return nil, fmt.Errorf("build gdelt request: %w", err)
		}
		q := req.URL.Query()
		for k, v := range params {
			q.Set(k, v)
		}
		req.URL.RawQuery = q.Encode()
		req.Header.Set("User-Agent", gdeltUserAgent)

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = err
			log.Warn().Err(err).Int("attempt", attempt).Msg("gdelt: request error")
			sleepWithJitter(backoff)
			backoff *= 2
			continue
		}

		if isRetryableStatus(resp.StatusCode) {
			resp.Body.Close()
			log.Warn().Int("status", resp.StatusCode).Int("attempt", attempt).Msg("gdelt: retryable status")
			sleepWithJitter(backoff)
			backoff *= 2
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if resp.StatusCode >= 400 {
			return nil, fmt.Errorf("gdelt: status %d", resp.StatusCode)
		}
		if readErr != nil {
			return nil, fmt.Errorf("gdelt: read body: %w", readErr)
		}

		ct := resp.Header.Get("Content-Type")
		if !strings.Contains(strings.ToLower(ct), "application/json") {
			snippet := string(body)
			if len(snippet) > 200 {
				snippet = snippet[:200]
			}
			log.Warn().Str("content_type", ct).Str("snippet", snippet).Msg("gdelt: non-JSON response")
			return nil, nil
		}

		var parsed gdeltResponse
		if err := json.Unmarshal(body, &parsed); err != nil {
			log.Warn().Err(err).Msg("gdelt: JSON parse error")
			return nil, nil
		}
		return &parsed, nil
	}

	log.Error().Err(lastErr).Time("start", start).Time("end", end).Msg("gdelt: all retries failed")
	return nil, lastErr
}

func isRetryableStatus(status int) bool {
	switch status {
	case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

func sleepWithJitter(base time.Duration) {
	jitter := time.Duration(rand.Float64() * float64(base) * 0.1)
	time.Sleep(base + jitter)
}
