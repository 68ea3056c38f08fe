package ensemble

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/rrp/internal/domain"
)

type fakeArticleRepo struct {
	mu         sync.Mutex
	articles   []domain.SummarizedArticle
	rejections []domain.Rejection
	votes      []domain.LlmVote
	pending    []domain.UrlHarvest
	deleted    []int64
	nextID     int64
}

func (r *fakeArticleRepo) SaveSummarizedArticle(_ context.Context, a domain.SummarizedArticle) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	a.ID = r.nextID
	r.articles = append(r.articles, a)
	return a.ID, nil
}

func (r *fakeArticleRepo) SaveRejection(_ context.Context, rej domain.Rejection) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	r.rejections = append(r.rejections, rej)
	return r.nextID, nil
}

func (r *fakeArticleRepo) SaveVote(_ context.Context, v domain.LlmVote) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	r.votes = append(r.votes, v)
	return r.nextID, nil
}

func (r *fakeArticleRepo) ExistsForURLAndAsset(context.Context, string, string) (bool, error) {
	return false, nil
}

func (r *fakeArticleRepo) PendingHarvests(_ context.Context, _ string, limit int) ([]domain.UrlHarvest, error) {
	if limit > 0 && limit < len(r.pending) {
		return r.pending[:limit], nil
	}
	return r.pending, nil
}

func (r *fakeArticleRepo) DeleteURLHarvest(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deleted = append(r.deleted, id)
	return nil
}

func (r *fakeArticleRepo) ListVotesForAsset(context.Context, string, time.Time) ([]domain.LlmVote, error) {
	return nil, nil
}

type fakeDomainPolicy struct {
	mu       sync.Mutex
	accepted int
	rejected int
}

func (p *fakeDomainPolicy) IsAllowed(context.Context, string, string) (bool, error) { return true, nil }
func (p *fakeDomainPolicy) SetPolicy(context.Context, string, string, bool) error    { return nil }
func (p *fakeDomainPolicy) RecordHarvest(context.Context, string, string, bool) error {
	return nil
}
func (p *fakeDomainPolicy) RecordLlmDecision(_ context.Context, _, _ string, relevant bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if relevant {
		p.accepted++
	} else {
		p.rejected++
	}
	return nil
}
func (p *fakeDomainPolicy) Stats(context.Context, string) ([]domain.NewsDomainStats, error) {
	return nil, nil
}

func TestProcessBatchSavesRelevantCandidate(t *testing.T) {
	adjudicator := New(
		&fakeClient{model: "m1", vote: domain.Vote{Model: "m1", Relevance: true, Sentiment: f64(0.5), Summary: "good"}},
	)
	repo := &fakeArticleRepo{pending: []domain.UrlHarvest{
		{ID: 1, URL: "https://a.example/1", Source: "gdelt", Title: "t1"},
	}}
	policy := &fakeDomainPolicy{}
	uc := NewUseCase(adjudicator, repo, policy)

	result, err := uc.ProcessBatch(context.Background(), "BTC", 10, false)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Processed)
	assert.Equal(t, 1, result.Saved)
	assert.Equal(t, 0, result.RejectedIrrelevant)
	assert.Equal(t, 1, result.Deleted)
	assert.Equal(t, 0, result.Errors)
	require.Len(t, repo.articles, 1)
	assert.Equal(t, "good", repo.articles[0].Summary)
	require.Len(t, repo.votes, 1)
	require.NotNil(t, repo.votes[0].ArticleID)
	assert.Nil(t, repo.votes[0].URL)
	assert.Equal(t, []int64{1}, repo.deleted)
	assert.Equal(t, 1, policy.accepted)
}

func TestProcessBatchRejectsWhenNotRelevant(t *testing.T) {
	adjudicator := New(
		&fakeClient{model: "m1", vote: domain.Vote{Model: "m1", Relevance: false, Sentiment: f64(-0.2)}},
	)
	repo := &fakeArticleRepo{pending: []domain.UrlHarvest{
		{ID: 7, URL: "https://a.example/7", Source: "google_rss"},
	}}
	uc := NewUseCase(adjudicator, repo, nil)

	result, err := uc.ProcessBatch(context.Background(), "BTC", 10, false)
	require.NoError(t, err)

	assert.Equal(t, 1, result.RejectedIrrelevant)
	assert.Equal(t, 0, result.Saved)
	require.Len(t, repo.rejections, 1)
	assert.Equal(t, "no_asset_relation", repo.rejections[0].Reason)
	require.Len(t, repo.votes, 1)
	require.NotNil(t, repo.votes[0].URL)
	assert.Nil(t, repo.votes[0].ArticleID)
}

func TestProcessBatchDryRunWritesNothing(t *testing.T) {
	adjudicator := New(
		&fakeClient{model: "m1", vote: domain.Vote{Model: "m1", Relevance: true, Sentiment: f64(0.1), Summary: "s"}},
	)
	repo := &fakeArticleRepo{pending: []domain.UrlHarvest{{ID: 1, URL: "https://a.example/1"}}}
	uc := NewUseCase(adjudicator, repo, nil)

	result, err := uc.ProcessBatch(context.Background(), "BTC", 10, true)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Saved)
	assert.Empty(t, repo.articles)
	assert.Empty(t, repo.deleted)
}

func TestProcessBatchEmptyInboxReturnsZeroResult(t *testing.T) {
	uc := NewUseCase(New(), &fakeArticleRepo{}, nil)
	result, err := uc.ProcessBatch(context.Background(), "BTC", 10, false)
	require.NoError(t, err)
	assert.Equal(t, ProcessResult{}, result)
}

func TestProcessBatchParallelCountsAllCandidates(t *testing.T) {
	pending := make([]domain.UrlHarvest, 0, 20)
	for i := int64(1); i <= 20; i++ {
		pending = append(pending, domain.UrlHarvest{ID: i, URL: "https://a.example/" + strconv.FormatInt(i, 10)})
	}
	adjudicator := New(
		&fakeClient{model: "m1", vote: domain.Vote{Model: "m1", Relevance: true, Sentiment: f64(0.3), Summary: "s"}},
	)
	repo := &fakeArticleRepo{pending: pending}
	uc := NewUseCase(adjudicator, repo, nil)
	uc.ProgressEvery = 5

	result, err := uc.ProcessBatchParallel(context.Background(), "BTC", 20, 4, 1_000_000, false)
	require.NoError(t, err)

	assert.Equal(t, 20, result.Processed)
	assert.Equal(t, 20, result.Saved)
	assert.Equal(t, 20, result.Deleted)
	assert.Equal(t, 0, result.Errors)
	assert.Len(t, repo.articles, 20)
}

func TestCompactVotesJSON(t *testing.T) {
	votes := []domain.Vote{
		{Model: "m1", Relevance: true, Sentiment: f64(0.4)},
		{Model: "m2", Relevance: false, Sentiment: nil},
	}
	out := compactVotesJSON(votes)
	assert.Contains(t, out, `"model":"m1"`)
	assert.Contains(t, out, `"relevance":true`)
	assert.Equal(t, "", compactVotesJSON(nil))
}
