// Package resolver resolves Google News RSS article links to their
// underlying publisher URL (spec.md §4.3), grounded on
// features/news/infrastructure/google_news_resolver.py.
//
// The original falls back to a headless browser (Playwright) when Google
// serves a consent/interstitial page with no "continue=" redirect target.
// No browser-automation dependency appears anywhere in the retrieval pack,
// so that fallback is dropped here: an unresolved interstitial simply
// yields ok=false, the same outcome the original reports when Playwright
// isn't installed.
package resolver

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/rrp/internal/platform/metrics"
)

const resolverName = "google_news_resolver"
const newsHost = "news.google.com"

var consentHosts = map[string]struct{}{
	"consent.google.com": {},
	"consent.yahoo.com":  {},
}

// Resolver resolves a news.google.com RSS item link to its publisher URL.
type Resolver struct {
	Timeout            time.Duration
	ResolveToPublisher bool
	HTTPClient         *http.Client
	Metrics            *metrics.Registry
}

// NewResolver constructs a Resolver with sane defaults.
func NewResolver(timeout time.Duration, metricsReg *metrics.Registry) *Resolver {
	return &Resolver{
		Timeout:            timeout,
		ResolveToPublisher: true,
		HTTPClient:         &http.Client{Timeout: timeout},
		Metrics:            metricsReg,
	}
}

func hostname(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

func isConsent(raw string) bool {
	_, ok := consentHosts[hostname(raw)]
	return ok
}

func isNews(raw string) bool {
	return hostname(raw) == newsHost
}

func isGoogleInterstitial(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	path := strings.ToLower(u.Path)
	if !strings.HasSuffix(host, "google.com") {
		return false
	}
	if strings.Contains(path, "/sorry") {
		return true
	}
	cont := u.Query().Get("continue")
	if cont != "" {
		if unescaped, err := url.QueryUnescape(cont); err == nil && isNews(unescaped) {
			return true
		}
	}
	return false
}

func appendUSParams(raw string) string {
	sep := "?"
	if strings.Contains(raw, "?") {
		sep = "&"
	}
	return raw + sep + "hl=en-US&gl=US&ceid=US%3Aen"
}

// Resolve attempts to resolve rawURL to its final publisher URL. ok is
// false when resolution could not complete (missing continue= param,
// unresolved interstitial, or a request error) — callers should fall back
// to the original RSS link in that case.
func (r *Resolver) Resolve(ctx context.Context, rawURL string) (resolved string, ok bool) {
	if rawURL == "" {
		return "", false
	}

	t0 := time.Now()
	outcome := "unknown"
	defer func() {
		if r.Metrics != nil {
			r.Metrics.NewsResolverTotal.WithLabelValues(resolverName, "-", outcome).Inc()
			r.Metrics.NewsResolverSeconds.WithLabelValues(resolverName).Observe(time.Since(t0).Seconds())
		}
	}()

	u := rawURL

	if isConsent(u) {
		parsed, err := url.Parse(u)
		if err != nil {
			outcome = "error"
			return "", false
		}
		cont := parsed.Query().Get("continue")
		if cont == "" {
			outcome = "consent_missing_continue"
			return "", false
		}
		unescaped, err := url.QueryUnescape(cont)
		if err != nil {
			outcome = "error"
			return "", false
		}
		u = unescaped
		if !r.ResolveToPublisher {
			outcome = "returned_news_url"
			return u, true
		}
	}

	if isNews(u) {
		final, resolvedOK := r.resolveNewsToPublisher(ctx, u)
		if resolvedOK && !isNews(final) {
			outcome = "resolved_publisher"
			return final, true
		}
		outcome = "fallback_news"
		return final, resolvedOK
	}

	if !isConsent(u) && !isGoogleInterstitial(u) {
		outcome = "passthrough"
		return u, true
	}

	outcome = "headless_unavailable"
	return "", false
}

func (r *Resolver) resolveNewsToPublisher(ctx context.Context, newsURL string) (string, bool) {
	withParams := appendUSParams(newsURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, withParams, nil)
	if err != nil {
		log.Warn().Err(err).Str("url", withParams).Msg("resolver: build request failed")
		return newsURL, false
	}
	req.Header.Set("Referer", "https://news.google.com/")
	req.Header.Set("User-Agent", "Mozilla/5.0")

	resp, err := r.HTTPClient.Do(req)
	if err != nil {
		log.Warn().Err(err).Str("url", withParams).Msg("resolver: error resolving")
		return newsURL, false
	}
	defer resp.Body.Close()

	final := withParams
	if resp.Request != nil && resp.Request.URL != nil {
		final = resp.Request.URL.String()
	}

	if !isNews(final) && !isConsent(final) && !isGoogleInterstitial(final) {
		return final, true
	}
	return newsURL, false
}
