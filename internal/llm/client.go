// Package llm implements the per-model LLM clients of spec.md §4.5,
// grounded on features/llm/infrastructure/{openai,gemini,xai}_client.py.
// Each client loads a shared prompt template, calls its provider's HTTP
// API, and normalizes the JSON response into a domain.Vote.
package llm

import (
	"context"
	"regexp"
	"strings"

	"github.com/sawpanic/rrp/internal/apperrors"
	"github.com/sawpanic/rrp/internal/domain"
)

// Client adjudicates one (asset, article) candidate and returns a
// normalized vote.
type Client interface {
	Model() string
	SummarizeAndScore(ctx context.Context, assetSymbol, url, publishedAt, title string) (domain.Vote, error)
}

var jsonFenceRE = regexp.MustCompile("(?s)^```(?:json)?\\s*(.*?)\\s*```$")

// stripJSONFences removes a surrounding ``` or ```json code fence, the way
// every LLM client's _strip_json_fences does before parsing.
func stripJSONFences(text string) string {
	trimmed := strings.TrimSpace(text)
	if m := jsonFenceRE.FindStringSubmatch(trimmed); m != nil {
		return m[1]
	}
	return text
}

// buildUserPrompt renders the shared prompt template by replacing the
// {{asset_symbol}}, {{url}}, {{published_at}}, and {{title}} placeholders.
func buildUserPrompt(template, assetSymbol, url, publishedAt, title string) string {
	out := strings.ReplaceAll(template, "{{asset_symbol}}", assetSymbol)
	out = strings.ReplaceAll(out, "{{url}}", url)
	pub := publishedAt
	if pub == "" {
		pub = "null"
	}
	out = strings.ReplaceAll(out, "{{published_at}}", pub)
	out = strings.ReplaceAll(out, "{{title}}", title)
	return out
}

// normalizedResponse is the raw JSON an LLM client parses before building
// a domain.Vote.
type normalizedResponse struct {
	Relevance *bool    `json:"relevance"`
	Sentiment *float64 `json:"sentiment"`
	Summary   *string  `json:"summary"`
}

// toVote applies the {"relevance": bool, "sentiment": clamp(-1,1), "summary":
// trimmed} normalization every client performs before returning to the
// ensemble, with the same absent-field defaults (relevance defaults to
// "summary is non-empty", sentiment defaults to 0, summary defaults to "").
func toVote(model string, r normalizedResponse) domain.Vote {
	summary := ""
	if r.Summary != nil {
		summary = strings.TrimSpace(*r.Summary)
	}

	relevance := summary != ""
	if r.Relevance != nil {
		relevance = *r.Relevance
	}

	var sentiment *float64
	if r.Sentiment != nil {
		clamped := domain.ClampUnit(*r.Sentiment)
		rounded := roundTo2dp(clamped)
		sentiment = &rounded
	} else {
		zero := 0.0
		sentiment = &zero
	}

	return domain.Vote{
		Model:     model,
		Relevance: relevance,
		Sentiment: sentiment,
		Summary:   summary,
	}
}

func roundTo2dp(v float64) float64 {
	return float64(int64(v*100+sign(v)*0.5)) / 100
}

func sign(v float64) float64 {
	if v < 0 {
		return -1
	}
	return 1
}

// missingPromptFile wraps apperrors.ConfigMissing for a missing prompt file.
func missingPromptFile(path string) error {
	return apperrors.ConfigMissing("prompt file: " + path)
}
