// Package ensemble implements the Ensemble Adjudicator of spec.md §4.6,
// grounded on features/llm/infrastructure/ensemble_client.py. It fans a
// candidate out to every configured llm.Client, normalizes each response
// into a domain.Vote, then aggregates relevance by majority vote,
// sentiment by unrounded arithmetic mean, and summary by a fallback
// chain, while keeping the raw per-model votes for audit.
package ensemble

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/rrp/internal/domain"
	"github.com/sawpanic/rrp/internal/llm"
)

// Adjudicator fans a candidate out to every configured client and
// aggregates the result. It satisfies llm.Client itself so callers can
// treat the ensemble as just another model.
type Adjudicator struct {
	clients []llm.Client
}

// New builds an Adjudicator from the active clients, dropping any nils
// (a model with no configured API key is passed as nil by the caller).
func New(clients ...llm.Client) *Adjudicator {
	active := make([]llm.Client, 0, len(clients))
	for _, c := range clients {
		if c != nil {
			active = append(active, c)
		}
	}
	return &Adjudicator{clients: active}
}

// Model names the ensemble by its members only, never by scores, e.g.
// "ensemble[gpt-5,gemini-2.5-flash,grok-4]".
func (a *Adjudicator) Model() string {
	if len(a.clients) == 0 {
		return "ensemble[]"
	}
	inner := a.clients[0].Model()
	for _, c := range a.clients[1:] {
		inner += "," + c.Model()
	}
	return "ensemble[" + inner + "]"
}

// SummarizeAndScore calls every member client, tolerating individual
// failures, and returns the aggregate as a single domain.Vote; the
// per-model votes are not returned. Prefer Adjudicate when the raw vote
// list is needed; SummarizeAndScore exists so Adjudicator satisfies
// llm.Client.
func (a *Adjudicator) SummarizeAndScore(ctx context.Context, assetSymbol, url, publishedAt, title string) (domain.Vote, error) {
	result := a.Adjudicate(ctx, assetSymbol, url, publishedAt, title)
	return domain.Vote{
		Model:     a.Model(),
		Relevance: result.Relevance,
		Sentiment: result.Sentiment,
		Summary:   result.Summary,
	}, nil
}

// Adjudicate is the ensemble's primary entrypoint, returning the full
// EnsembleResult (aggregate plus per-model audit trail) the summarize-
// harvest use case persists.
func (a *Adjudicator) Adjudicate(ctx context.Context, assetSymbol, url, publishedAt, title string) domain.EnsembleResult {
	votes := make([]domain.Vote, 0, len(a.clients))
	for _, c := range a.clients {
		vote, err := c.SummarizeAndScore(ctx, assetSymbol, url, publishedAt, title)
		if err != nil {
			log.Warn().Err(err).Str("model", c.Model()).Str("url", url).Msg("ensemble: llm call failed")
			continue
		}
		votes = append(votes, vote)
	}

	relevance, relevant := aggregateRelevance(votes)
	sentiment := aggregateSentiment(votes)
	summary := pickSummary(relevant, votes)

	return domain.EnsembleResult{
		Relevance: relevance,
		Sentiment: sentiment,
		Summary:   summary,
		Model:     a.Model(),
		Votes:     votes,
	}
}

// aggregateRelevance is a majority vote; ties resolve to true, matching
// trues >= falses in the original. An empty vote set resolves to false.
func aggregateRelevance(votes []domain.Vote) (bool, []domain.Vote) {
	if len(votes) == 0 {
		return false, nil
	}
	trues := 0
	relevant := make([]domain.Vote, 0, len(votes))
	for _, v := range votes {
		if v.Relevance {
			trues++
			relevant = append(relevant, v)
		}
	}
	falses := len(votes) - trues
	return trues >= falses, relevant
}

// aggregateSentiment is the exact (unrounded) arithmetic mean over votes
// that carried a sentiment; rounding happens only at export/persistence
// boundaries downstream, not here.
func aggregateSentiment(votes []domain.Vote) *float64 {
	sum := 0.0
	n := 0
	for _, v := range votes {
		if v.Sentiment != nil {
			sum += *v.Sentiment
			n++
		}
	}
	if n == 0 {
		return nil
	}
	mean := sum / float64(n)
	return &mean
}

// pickSummary prefers the first non-empty summary among relevant votes,
// then falls back to the first non-empty summary among all votes.
func pickSummary(relevant, all []domain.Vote) string {
	for _, v := range relevant {
		if v.Summary != "" {
			return v.Summary
		}
	}
	for _, v := range all {
		if v.Summary != "" {
			return v.Summary
		}
	}
	return ""
}
