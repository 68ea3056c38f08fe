package ensemble

import (
	"context"
	"encoding/json"
	"net/url"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/sawpanic/rrp/internal/domain"
	"github.com/sawpanic/rrp/internal/persistence/ports"
	"github.com/sawpanic/rrp/internal/platform/ratelimit"
)

// ProcessResult is the counter set returned by one summarize-harvest batch
// (spec.md §4.7). processed increments for every candidate drained from
// the inbox, including ones that error; errors counts the failing subset.
type ProcessResult struct {
	Processed          int
	Saved              int
	Deleted            int
	Errors             int
	RejectedIrrelevant int
}

// UseCase drains an asset's inbox through the ensemble and persists the
// outcome, grounded on
// features/llm/application/usecases/summarize_harvest.py.
type UseCase struct {
	Adjudicator   *Adjudicator
	Articles      ports.SummarizedArticleRepository
	DomainPolicy  ports.DomainPolicyRepository // optional; nil-safe
	ProgressEvery int
}

// NewUseCase constructs a UseCase with the default progress cadence.
func NewUseCase(adjudicator *Adjudicator, articles ports.SummarizedArticleRepository, domainPolicy ports.DomainPolicyRepository) *UseCase {
	return &UseCase{Adjudicator: adjudicator, Articles: articles, DomainPolicy: domainPolicy, ProgressEvery: 25}
}

// ProcessBatch drains up to limit pending harvests for assetSymbol
// sequentially. dryRun runs the ensemble and computes counters without
// writing anything.
func (u *UseCase) ProcessBatch(ctx context.Context, assetSymbol string, limit int, dryRun bool) (ProcessResult, error) {
	batch, err := u.Articles.PendingHarvests(ctx, assetSymbol, limit)
	if err != nil {
		return ProcessResult{}, err
	}
	if len(batch) == 0 {
		log.Info().Str("asset", assetSymbol).Msg("summarize-harvest: nothing to process")
		return ProcessResult{}, nil
	}

	var result ProcessResult
	for _, h := range batch {
		result.Processed++
		outcome, err := u.processOne(ctx, h, assetSymbol, dryRun)
		if err != nil {
			result.Errors++
			log.Warn().Err(err).Int64("harvest_id", h.ID).Msg("summarize-harvest: candidate failed")
			continue
		}
		applyOutcome(&result, outcome)
		u.logProgress(result.Processed)
	}
	u.logBatchComplete(result.Processed)
	return result, nil
}

// ProcessBatchParallel drains up to limit pending harvests through a
// worker pool of size workers, rate-limited to ratePerMinute LLM calls
// across all workers. Completions are reduced in arrival order; counters
// are updated under a mutex. A single candidate's failure never aborts
// the batch, but ctx cancellation halts further dispatch (in-flight
// candidates still run to completion).
func (u *UseCase) ProcessBatchParallel(ctx context.Context, assetSymbol string, limit, workers, ratePerMinute int, dryRun bool) (ProcessResult, error) {
	batch, err := u.Articles.PendingHarvests(ctx, assetSymbol, limit)
	if err != nil {
		return ProcessResult{}, err
	}
	if len(batch) == 0 {
		log.Info().Str("asset", assetSymbol).Msg("summarize-harvest: nothing to process")
		return ProcessResult{}, nil
	}
	if workers < 1 {
		workers = 1
	}

	limiter := ratelimit.NewMonotonicLimiter(ratePerMinute)

	var (
		mu     sync.Mutex
		result ProcessResult
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for _, h := range batch {
		if ctx.Err() != nil {
			break
		}
		h := h
		g.Go(func() error {
			limiter.Wait()

			outcome, processErr := u.processOne(gctx, h, assetSymbol, dryRun)

			mu.Lock()
			result.Processed++
			if processErr != nil {
				result.Errors++
			} else {
				applyOutcome(&result, outcome)
			}
			processed := result.Processed
			mu.Unlock()

			if processErr != nil {
				log.Warn().Err(processErr).Int64("harvest_id", h.ID).Msg("summarize-harvest: candidate failed")
			}
			u.logProgress(processed)
			return nil // a per-candidate failure never aborts the batch
		})
	}

	// errgroup.Wait only returns non-nil if a worker itself returned an
	// error, which processOne never propagates here — candidate failures
	// are folded into result.Errors instead.
	_ = g.Wait()

	mu.Lock()
	final := result
	mu.Unlock()
	u.logBatchComplete(final.Processed)
	return final, nil
}

// candidateOutcome reports which counters one successfully processed
// candidate contributes; applied to the shared ProcessResult by the
// caller (directly for the sequential path, under mu for the parallel
// one) so processOne itself never touches shared state.
type candidateOutcome struct {
	saved              bool
	rejectedIrrelevant bool
}

func applyOutcome(result *ProcessResult, o candidateOutcome) {
	if o.saved {
		result.Saved++
	}
	if o.rejectedIrrelevant {
		result.RejectedIrrelevant++
	}
	result.Deleted++
}

// processOne runs the ensemble on one candidate and, on success, performs
// the atomic write group of spec.md §4.7 steps 2-5: save article or
// rejection, save per-model votes, delete the inbox row, best-effort
// domain-policy stat. The whole group is considered to have failed (and
// the candidate left in the inbox for retry) if any write after the
// ensemble call returns an error.
func (u *UseCase) processOne(ctx context.Context, h domain.UrlHarvest, assetSymbol string, dryRun bool) (candidateOutcome, error) {
	publishedAtStr := ""
	if h.PublishedAt != nil {
		publishedAtStr = h.PublishedAt.UTC().Format(time.RFC3339)
	}

	ensembleResult := u.Adjudicator.Adjudicate(ctx, assetSymbol, h.URL, publishedAtStr, h.Title)

	var outcome candidateOutcome
	var articleID *int64
	if ensembleResult.Relevance {
		article := u.buildArticle(h, assetSymbol, ensembleResult)
		if !dryRun {
			id, err := u.Articles.SaveSummarizedArticle(ctx, article)
			if err != nil {
				return candidateOutcome{}, err
			}
			articleID = &id
		}
		outcome.saved = true
		if !dryRun {
			u.recordLlmDomainStat(ctx, h.URL, assetSymbol, true)
		}
	} else {
		if !dryRun {
			detailsJSON := compactVotesJSON(ensembleResult.Votes)
			rejection := domain.Rejection{
				URL:         h.URL,
				AssetSymbol: assetSymbol,
				Reason:      "no_asset_relation",
				Source:      h.Source,
				Context:     "summarize",
				Model:       "ensemble",
				DetailsJSON: detailsJSON,
			}
			if _, err := u.Articles.SaveRejection(ctx, rejection); err != nil {
				return candidateOutcome{}, err
			}
		}
		outcome.rejectedIrrelevant = true
		if !dryRun {
			u.recordLlmDomainStat(ctx, h.URL, assetSymbol, false)
		}
	}

	if !dryRun {
		for _, v := range ensembleResult.Votes {
			vote := domain.LlmVote{
				AssetSymbol: assetSymbol,
				Model:       v.Model,
				Relevance:   v.Relevance,
				Sentiment:   v.Sentiment,
				Summary:     v.Summary,
				HarvestID:   h.ID,
			}
			if articleID != nil {
				vote.ArticleID = articleID
			} else {
				voteURL := h.URL
				vote.URL = &voteURL
			}
			if _, err := u.Articles.SaveVote(ctx, vote); err != nil {
				return candidateOutcome{}, err
			}
		}
		if err := u.Articles.DeleteURLHarvest(ctx, h.ID); err != nil {
			return candidateOutcome{}, err
		}
	}
	return outcome, nil
}

func (u *UseCase) buildArticle(h domain.UrlHarvest, assetSymbol string, r domain.EnsembleResult) domain.SummarizedArticle {
	finalAt := time.Now().UTC()
	if h.PublishedAt != nil {
		finalAt = h.PublishedAt.UTC()
	} else if !h.DiscoveredAt.IsZero() {
		finalAt = h.DiscoveredAt.UTC()
	}
	return domain.SummarizedArticle{
		URL:         h.URL,
		AssetSymbol: assetSymbol,
		Source:      h.Source,
		Summary:     r.Summary,
		Model:       r.Model,
		Sentiment:   round2dp(r.Sentiment),
		PublishedAt: finalAt,
		IngestedAt:  time.Now().UTC(),
	}
}

// round2dp mirrors _make_article's self._round2_opt: the persisted
// sentiment (and everything derived from it downstream in
// v_daily_sentiment) is rounded to 2 decimal places, not the raw ensemble
// mean.
func round2dp(v *float64) *float64 {
	if v == nil {
		return nil
	}
	sign := 1.0
	if *v < 0 {
		sign = -1.0
	}
	rounded := float64(int64(*v*100+sign*0.5)) / 100
	return &rounded
}

func (u *UseCase) recordLlmDomainStat(ctx context.Context, rawURL, assetSymbol string, accepted bool) {
	if u.DomainPolicy == nil || rawURL == "" {
		return
	}
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Hostname() == "" {
		return
	}
	if err := u.DomainPolicy.RecordLlmDecision(ctx, assetSymbol, parsed.Hostname(), accepted); err != nil {
		log.Debug().Err(err).Msg("summarize-harvest: domain stat best-effort write failed")
	}
}

func (u *UseCase) logProgress(processed int) {
	every := u.ProgressEvery
	if every <= 0 {
		every = 25
	}
	if processed%every == 0 {
		log.Info().Int("processed", processed).Msg("summarize-harvest: progress")
	}
}

func (u *UseCase) logBatchComplete(processed int) {
	log.Info().Int("processed", processed).Msg("summarize-harvest: batch complete")
}

type compactVote struct {
	Model     string   `json:"model"`
	Relevance bool     `json:"relevance"`
	Sentiment *float64 `json:"sentiment"`
}

// compactVotesJSON renders the audit trail stored on a Rejection's
// details_json, {"votes": [{model, relevance, sentiment}, ...]}.
func compactVotesJSON(votes []domain.Vote) string {
	if len(votes) == 0 {
		return ""
	}
	compact := make([]compactVote, 0, len(votes))
	for _, v := range votes {
		compact = append(compact, compactVote{Model: v.Model, Relevance: v.Relevance, Sentiment: v.Sentiment})
	}
	payload, err := json.Marshal(struct {
		Votes []compactVote `json:"votes"`
	}{Votes: compact})
	if err != nil {
		return ""
	}
	return string(payload)
}
