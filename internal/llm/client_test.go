package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStripJSONFences(t *testing.T) {
	assert.Equal(t, `{"a":1}`, stripJSONFences("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripJSONFences("```\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripJSONFences(`{"a":1}`))
}

func TestBuildUserPrompt(t *testing.T) {
	template := "asset={{asset_symbol}} url={{url}} pub={{published_at}} title={{title}}"
	out := buildUserPrompt(template, "BTC", "https://x", "", "Headline")
	assert.Equal(t, "asset=BTC url=https://x pub=null title=Headline", out)
}

func TestToVoteClampsAndRounds(t *testing.T) {
	relevance := true
	sentiment := 1.5
	summary := "  a summary  "
	v := toVote("gpt-5", normalizedResponse{Relevance: &relevance, Sentiment: &sentiment, Summary: &summary})

	assert.True(t, v.Relevance)
	require.NotNil(t, v.Sentiment)
	assert.Equal(t, 1.0, *v.Sentiment)
	assert.Equal(t, "a summary", v.Summary)
}

func TestToVoteDefaultsRelevanceFromSummary(t *testing.T) {
	summary := "has content"
	v := toVote("gpt-5", normalizedResponse{Summary: &summary})
	assert.True(t, v.Relevance)

	v2 := toVote("gpt-5", normalizedResponse{})
	assert.False(t, v2.Relevance)
	require.NotNil(t, v2.Sentiment)
	assert.Equal(t, 0.0, *v2.Sentiment)
}

func TestRoundTo2dp(t *testing.T) {
	assert.Equal(t, 0.33, roundTo2dp(0.3333))
	assert.Equal(t, -0.33, roundTo2dp(-0.3333))
}
