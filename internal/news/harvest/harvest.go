// Package harvest implements the Harvest Orchestrator of spec.md §4.4,
// grounded on features/news/application/usecases/harvest_urls.py. It pulls
// raw documents from one or more news sources, validates and
// domain-filters them, and persists the survivors through
// ports.NewsRepository, enforcing the dedupe invariant at the repository
// boundary.
package harvest

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/rrp/internal/domain"
	"github.com/sawpanic/rrp/internal/news/sources"
	"github.com/sawpanic/rrp/internal/persistence/ports"
)

// Source is the subset of a news source adapter the orchestrator needs.
type Source interface {
	SourceName() string
	FetchDocuments(ctx context.Context, criteria sources.HarvestCriteria) []domain.RawDocument
}

// Criteria is an alias for sources.HarvestCriteria, kept local so callers
// of this package don't need to import internal/news/sources directly.
type Criteria = sources.HarvestCriteria

var invalidExtensions = []string{".jpg", ".png", ".gif", ".pdf"}

// IsValidNewsURL rejects empty strings, non-http(s) schemes, and common
// non-article file extensions (query strings ignored), per
// is_valid_news_url.
func IsValidNewsURL(rawURL string) bool {
	u := strings.TrimSpace(rawURL)
	if u == "" {
		return false
	}
	if !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
		return false
	}
	base := strings.ToLower(u)
	if idx := strings.Index(base, "?"); idx >= 0 {
		base = base[:idx]
	}
	for _, ext := range invalidExtensions {
		if strings.HasSuffix(base, ext) {
			return false
		}
	}
	return true
}

func hostnameOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

// PickFields canonicalizes a RawDocument into a UrlHarvest, preferring
// og_url > url > link for the URL and title > name for the title, parsing
// published_at into a UTC-aware time when present. Grounded on pick_fields.
func PickFields(doc domain.RawDocument, assetSymbol string, now time.Time) domain.UrlHarvest {
	u := firstNonEmpty(doc.OgURL, doc.URL, doc.Link)
	title := firstNonEmpty(doc.Title, doc.Name)
	source := firstNonEmpty(doc.Source, doc.SourceName)
	publishedRaw := firstNonEmpty(doc.PublishedAt, doc.PubDate, doc.SeenAt)

	var publishedAt *time.Time
	if publishedRaw != "" {
		if t, ok := parseToUTC(publishedRaw); ok {
			publishedAt = &t
		} else {
			log.Warn().Str("published_at", publishedRaw).Msg("harvest: invalid published_at format")
		}
	}

	return domain.UrlHarvest{
		URL:          u,
		AssetSymbol:  assetSymbol,
		Source:       source,
		PublishedAt:  publishedAt,
		Title:        title,
		DiscoveredAt: now,
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func parseToUTC(raw string) (time.Time, bool) {
	layouts := []string{time.RFC3339, "2006-01-02T15:04:05Z0700", "2006-01-02T15:04:05"}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// Orchestrator runs a harvest pass across a fixed list of sources.
type Orchestrator struct {
	sources             []Source
	repo                ports.NewsRepository
	domainPolicy        ports.DomainPolicyRepository
	enforceDomainFilter bool
}

// NewOrchestrator constructs an Orchestrator. domainPolicy may be nil, in
// which case no domain filtering or stats recording happens.
func NewOrchestrator(sources []Source, repo ports.NewsRepository, domainPolicy ports.DomainPolicyRepository, enforceDomainFilter bool) *Orchestrator {
	return &Orchestrator{
		sources:             sources,
		repo:                repo,
		domainPolicy:        domainPolicy,
		enforceDomainFilter: enforceDomainFilter,
	}
}

// Run fetches from every configured source and persists the survivors.
// Counter semantics (fixed by the original's tests, carried here
// unchanged):
//   - TotalDocs: raw documents from all sources, before any validation.
//   - AfterAssemble: documents that passed URL validation and the domain
//     filter (if enforced).
//   - AfterDedupe: documents that entered the dedupe/persist stage
//     (== AfterAssemble; duplicates and failed saves still count here).
//   - Saved: newly persisted rows.
//   - SkippedDuplicates: rows that already existed.
//   - RejectedInvalid: invalid URL, policy-blocked domain, or persistence
//     failure, summed.
func (o *Orchestrator) Run(ctx context.Context, criteria Criteria) domain.HarvestSummary {
	var summary domain.HarvestSummary

	for _, source := range o.sources {
		docs := source.FetchDocuments(ctx, criteria)
		summary.TotalDocs += len(docs)
		log.Debug().Int("count", len(docs)).Str("source", source.SourceName()).Msg("harvest: fetched documents")

		for _, doc := range docs {
			o.processOne(ctx, doc, criteria.AssetSymbol, &summary)
		}
	}

	return summary
}

func (o *Orchestrator) processOne(ctx context.Context, doc domain.RawDocument, assetSymbol string, summary *domain.HarvestSummary) {
	now := time.Now().UTC()
	h := PickFields(doc, assetSymbol, now)
	host := hostnameOf(h.URL)

	if !IsValidNewsURL(h.URL) {
		summary.RejectedInvalid++
		o.recordHarvest(ctx, h.AssetSymbol, host, false)
		return
	}

	if o.domainPolicy != nil && host != "" {
		allowed, err := o.domainPolicy.IsAllowed(ctx, h.AssetSymbol, host)
		if err == nil && o.enforceDomainFilter && !allowed {
			o.recordHarvest(ctx, h.AssetSymbol, host, false)
			summary.RejectedInvalid++
			return
		}
	}

	summary.AfterAssemble++
	summary.AfterDedupe++

	id, isDuplicate, err := o.repo.SaveURLHarvest(ctx, h)
	if err != nil {
		log.Error().Err(err).Str("url", h.URL).Msg("harvest: failed to save URL")
		summary.RejectedInvalid++
		o.recordHarvest(ctx, h.AssetSymbol, host, false)
		return
	}
	_ = id

	storedNow := !isDuplicate
	if isDuplicate {
		summary.SkippedDuplicates++
	} else {
		summary.Saved++
	}
	o.recordHarvest(ctx, h.AssetSymbol, host, storedNow)
}

func (o *Orchestrator) recordHarvest(ctx context.Context, assetSymbol, host string, stored bool) {
	if o.domainPolicy == nil || host == "" {
		return
	}
	if err := o.domainPolicy.RecordHarvest(ctx, assetSymbol, host, stored); err != nil {
		log.Warn().Err(err).Str("domain", host).Msg("harvest: failed to record domain stats")
	}
}
