package ensemble

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/rrp/internal/domain"
)

type fakeClient struct {
	model     string
	vote      domain.Vote
	err       error
}

func (f *fakeClient) Model() string { return f.model }

func (f *fakeClient) SummarizeAndScore(ctx context.Context, assetSymbol, url, publishedAt, title string) (domain.Vote, error) {
	return f.vote, f.err
}

func f64(v float64) *float64 { return &v }

func TestAdjudicatorModelName(t *testing.T) {
	a := New(&fakeClient{model: "gpt-5"}, &fakeClient{model: "gemini-2.5-flash"}, nil)
	assert.Equal(t, "ensemble[gpt-5,gemini-2.5-flash]", a.Model())
}

func TestAdjudicatorModelNameEmpty(t *testing.T) {
	a := New()
	assert.Equal(t, "ensemble[]", a.Model())
}

func TestAdjudicateMajorityRelevanceAndMeanSentiment(t *testing.T) {
	a := New(
		&fakeClient{model: "m1", vote: domain.Vote{Model: "m1", Relevance: true, Sentiment: f64(0.50), Summary: "s1"}},
		&fakeClient{model: "m2", vote: domain.Vote{Model: "m2", Relevance: true, Sentiment: f64(0.25), Summary: ""}},
		&fakeClient{model: "m3", vote: domain.Vote{Model: "m3", Relevance: false, Sentiment: f64(-1.0), Summary: "s3"}},
	)

	result := a.Adjudicate(context.Background(), "BTC", "https://x", "", "t")

	assert.True(t, result.Relevance)
	require.NotNil(t, result.Sentiment)
	assert.InDelta(t, (0.50+0.25-1.0)/3.0, *result.Sentiment, 1e-9)
	assert.Equal(t, "s1", result.Summary)
	assert.Len(t, result.Votes, 3)
}

func TestAdjudicateTieResolvesTrue(t *testing.T) {
	a := New(
		&fakeClient{model: "m1", vote: domain.Vote{Model: "m1", Relevance: true, Sentiment: f64(1)}},
		&fakeClient{model: "m2", vote: domain.Vote{Model: "m2", Relevance: false, Sentiment: f64(-1)}},
	)

	result := a.Adjudicate(context.Background(), "BTC", "https://x", "", "t")
	assert.True(t, result.Relevance)
}

func TestAdjudicateSkipsFailedClients(t *testing.T) {
	a := New(
		&fakeClient{model: "m1", err: assertErr{}},
		&fakeClient{model: "m2", vote: domain.Vote{Model: "m2", Relevance: true, Sentiment: f64(0.1), Summary: "ok"}},
	)

	result := a.Adjudicate(context.Background(), "BTC", "https://x", "", "t")
	assert.Len(t, result.Votes, 1)
	assert.Equal(t, "ok", result.Summary)
}

func TestAdjudicateNoVotesIsNotRelevantWithNilSentiment(t *testing.T) {
	a := New(&fakeClient{model: "m1", err: assertErr{}})
	result := a.Adjudicate(context.Background(), "BTC", "https://x", "", "t")
	assert.False(t, result.Relevance)
	assert.Nil(t, result.Sentiment)
	assert.Equal(t, "", result.Summary)
}

func TestSummarizeAndScoreDelegatesToAdjudicate(t *testing.T) {
	a := New(&fakeClient{model: "m1", vote: domain.Vote{Model: "m1", Relevance: true, Sentiment: f64(0.4), Summary: "s"}})
	vote, err := a.SummarizeAndScore(context.Background(), "BTC", "https://x", "", "t")
	require.NoError(t, err)
	assert.Equal(t, a.Model(), vote.Model)
	assert.True(t, vote.Relevance)
	assert.Equal(t, "s", vote.Summary)
}

type assertErr struct{}

func (assertErr) Error() string { return "boom" }
