// Package coingecko implements the CoinGecko Market Data Adapter named in
// spec.md §6's `--provider CoinGecko` flag, grounded on
// features/market/infrastructure/coingecko_client.py. It fetches current
// spot snapshots and hourly history ranges, retrying transient failures
// with exponential backoff and switching between the public and pro API
// bases the way the original probes for a 10010/10011 hint.
package coingecko

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/rrp/internal/domain"
	"github.com/sawpanic/rrp/internal/platform/metrics"
)

const (
	ProviderName  = "CoinGecko"
	publicBaseURL = "https://api.coingecko.com/api/v3"
	proBaseURL    = "https://pro-api.coingecko.com/api/v3"
)

// Config configures a Client.
type Config struct {
	APIBase        string
	APIKey         string
	Timeout        time.Duration
	MaxRetries     int
	InitialBackoff time.Duration
}

// Client adapts the CoinGecko REST API.
type Client struct {
	cfg     Config
	http    *http.Client
	metrics *metrics.Registry
}

// NewClient constructs a Client with the teacher's conservative retry
// defaults.
func NewClient(cfg Config, httpClient *http.Client, metricsReg *metrics.Registry) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = time.Second
	}
	if cfg.APIBase == "" {
		cfg.APIBase = publicBaseURL
	}
	return &Client{cfg: cfg, http: httpClient, metrics: metricsReg}
}

// FetchSpot fetches the current snapshot for each providerID, grounded on
// fetch_spot. providerIDs are deduplicated and sorted before the request
// the way the original does with sorted(set(...)).
func (c *Client) FetchSpot(ctx context.Context, providerIDs []string, vsCurrency string) ([]domain.MarketSnapshot, error) {
	if len(providerIDs) == 0 {
		return nil, fmt.Errorf("coingecko: provider_ids must not be empty")
	}
	if strings.TrimSpace(vsCurrency) == "" {
		return nil, fmt.Errorf("coingecko: vs_currency must not be empty")
	}

	ids := dedupSorted(providerIDs)
	perPage := len(ids)
	if perPage > 250 {
		perPage = 250
	}
	if perPage < 1 {
		perPage = 1
	}

	params := url.Values{}
	params.Set("vs_currency", strings.ToLower(vsCurrency))
	params.Set("ids", strings.Join(ids, ","))
	params.Set("order", "market_cap_desc")
	params.Set("per_page", strconv.Itoa(perPage))
	params.Set("page", "1")
	params.Set("sparkline", "false")
	params.Set("price_change_percentage", "1h,24h,7d")

	var rows []coinMarketRow
	if err := c.requestJSON(ctx, "/coins/markets", params, &rows); err != nil {
		return nil, err
	}

	observedAt := time.Now().UTC()
	out := make([]domain.MarketSnapshot, 0, len(rows))
	for _, r := range rows {
		symbol := strings.ToUpper(r.Symbol)
		if symbol == "" {
			symbol = strings.ToUpper(r.ID)
		}
		out = append(out, domain.MarketSnapshot{
			AssetSymbol: symbol,
			Source:      ProviderName,
			ObservedAt:  observedAt,
			Price:       r.CurrentPrice,
			MarketCap:   r.MarketCap,
			Volume24h:   r.TotalVolume,
			Change1h:    r.PriceChangePct1h,
			Change24h:   r.PriceChangePct24h,
			Change7d:    r.PriceChangePct7d,
		})
	}
	return out, nil
}

// FetchHistoryRange fetches hourly snapshots for providerID over
// [from, to], grounded on fetch_history_range. The returned snapshots
// carry providerID (upper-cased) as AssetSymbol; callers that need the
// tracked asset symbol instead must re-stamp it (see market/ingest).
func (c *Client) FetchHistoryRange(ctx context.Context, providerID, vsCurrency string, from, to time.Time) ([]domain.MarketSnapshot, error) {
	if strings.TrimSpace(providerID) == "" {
		return nil, fmt.Errorf("coingecko: provider_id must not be empty")
	}
	if strings.TrimSpace(vsCurrency) == "" {
		return nil, fmt.Errorf("coingecko: vs_currency must not be empty")
	}

	params := url.Values{}
	params.Set("vs_currency", strings.ToLower(vsCurrency))
	params.Set("from", strconv.FormatInt(from.Unix(), 10))
	params.Set("to", strconv.FormatInt(to.Unix(), 10))

	var resp marketChartRange
	path := fmt.Sprintf("/coins/%s/market_chart/range", providerID)
	if err := c.requestJSON(ctx, path, params, &resp); err != nil {
		return nil, err
	}

	mcapByTs := indexByTimestamp(resp.MarketCaps)
	volByTs := indexByTimestamp(resp.TotalVolumes)

	out := make([]domain.MarketSnapshot, 0, len(resp.Prices))
	for _, p := range resp.Prices {
		if len(p) != 2 {
			continue
		}
		tsMs := int64(p[0])
		price := p[1]
		out = append(out, domain.MarketSnapshot{
			AssetSymbol: strings.ToUpper(providerID),
			Source:      ProviderName,
			ObservedAt:  time.UnixMilli(tsMs).UTC(),
			Price:       &price,
			MarketCap:   mcapByTs[tsMs],
			Volume24h:   volByTs[tsMs],
		})
	}
	return out, nil
}

func indexByTimestamp(pairs [][2]float64) map[int64]*float64 {
	out := make(map[int64]*float64, len(pairs))
	for _, p := range pairs {
		v := p[1]
		out[int64(p[0])] = &v
	}
	return out
}

func dedupSorted(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

type coinMarketRow struct {
	ID                string   `json:"id"`
	Symbol            string   `json:"symbol"`
	CurrentPrice      *float64 `json:"current_price"`
	MarketCap         *float64 `json:"market_cap"`
	TotalVolume       *float64 `json:"total_volume"`
	PriceChangePct1h  *float64 `json:"price_change_percentage_1h_in_currency"`
	PriceChangePct24h *float64 `json:"price_change_percentage_24h_in_currency"`
	PriceChangePct7d  *float64 `json:"price_change_percentage_7d_in_currency"`
}

type marketChartRange struct {
	Prices       [][2]float64 `json:"prices"`
	MarketCaps   [][2]float64 `json:"market_caps"`
	TotalVolumes [][2]float64 `json:"total_volumes"`
}

// requestJSON performs a GET against the configured base, retrying on
// 429/5xx and transport errors with doubling backoff, and switching bases
// when the response hints at the wrong tier (10010 -> pro, 10011 -> public),
// grounded on CoinGeckoClient._request.
func (c *Client) requestJSON(ctx context.Context, path string, params url.Values, out any) error {
	usePro := c.cfg.APIKey != ""
	backoff := c.cfg.InitialBackoff
	var lastErr error

	for attempt := 1; attempt <= c.cfg.MaxRetries; attempt++ {
		base := publicBaseURL
		if usePro {
			base = proBaseURL
		}
		if c.cfg.APIBase != "" && c.cfg.APIBase != publicBaseURL {
			base = c.cfg.APIBase
		}
		reqURL := strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/") + "?" + params.Encode()

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return fmt.Errorf("coingecko: build request: %w", err)
		}
		req.Header.Set("User-Agent", "rrp/1.0 coingecko-client")
		req.Header.Set("Accept", "application/json")
		if usePro && c.cfg.APIKey != "" {
			req.Header.Set("x-cg-pro-api-key", c.cfg.APIKey)
		}

		t0 := time.Now()
		resp, err := c.http.Do(req)
		duration := time.Since(t0).Seconds()
		if err != nil {
			lastErr = err
			c.track("error", duration)
			if attempt >= c.cfg.MaxRetries {
				return fmt.Errorf("coingecko: request failed: %w", err)
			}
			log.Warn().Err(err).Int("attempt", attempt).Msg("coingecko: request error, retrying")
			time.Sleep(backoff)
			backoff *= 2
			continue
		}

		if isRetryableStatus(resp.StatusCode) && attempt < c.cfg.MaxRetries {
			resp.Body.Close()
			log.Warn().Int("status", resp.StatusCode).Int("attempt", attempt).Msg("coingecko: retryable status")
			time.Sleep(backoff)
			backoff *= 2
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode >= 400 {
			snippet := string(body)
			if len(snippet) > 600 {
				snippet = snippet[:600]
			}
			c.track("error", duration)
			if hint := classifyEndpointHint(resp.StatusCode, snippet); hint != "" {
				if hint == "use_pro" && !usePro {
					usePro = true
					continue
				}
				if hint == "use_public" && usePro {
					usePro = false
					continue
				}
			}
			return fmt.Errorf("coingecko: status %d: %s", resp.StatusCode, snippet)
		}
		if readErr != nil {
			c.track("error", duration)
			return fmt.Errorf("coingecko: read body: %w", readErr)
		}

		c.track("success", duration)
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("coingecko: parse response: %w", err)
		}
		return nil
	}
	return fmt.Errorf("coingecko: retries exhausted: %w", lastErr)
}

func (c *Client) track(outcome string, seconds float64) {
	if c.metrics == nil {
		return
	}
	c.metrics.APIRequestsTotal.WithLabelValues("coingecko", outcome).Inc()
	c.metrics.APIRequestDuration.WithLabelValues("coingecko").Observe(seconds)
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

// classifyEndpointHint mirrors _classify_endpoint_hint: CoinGecko returns a
// 400 with a distinguishing substring when the key belongs to the other tier.
func classifyEndpointHint(status int, body string) string {
	lower := strings.ToLower(body)
	if status == 400 && (strings.Contains(lower, "10010") || strings.Contains(lower, "pro api key")) {
		return "use_pro"
	}
	if status == 400 && (strings.Contains(lower, "10011") || strings.Contains(lower, "demo api key")) {
		return "use_public"
	}
	return ""
}
