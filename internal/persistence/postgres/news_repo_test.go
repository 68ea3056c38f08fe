package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/rrp/internal/domain"
)

func newMockNewsRepo(t *testing.T) (*newsRepo, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	sqlxDB := sqlx.NewDb(mockDB, "postgres")
	return &newsRepo{db: sqlxDB, timeout: 5 * time.Second}, mock
}

func TestSaveURLHarvestInsertsWhenNotKnownAnywhere(t *testing.T) {
	repo, mock := newMockNewsRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT 1 FROM summarized_articles").
		WillReturnRows(sqlmock.NewRows([]string{"1"}))
	mock.ExpectQuery("SELECT 1 FROM rejections").
		WillReturnRows(sqlmock.NewRows([]string{"1"}))
	mock.ExpectQuery("SELECT id FROM url_harvests").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery("INSERT INTO url_harvests").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(7)))
	mock.ExpectCommit()

	id, dup, err := repo.SaveURLHarvest(context.Background(), domain.UrlHarvest{
		URL: "https://example.com/a", AssetSymbol: "BTC", Source: "rss", Title: "t",
	})
	require.NoError(t, err)
	assert.False(t, dup)
	assert.Equal(t, int64(7), id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveURLHarvestDuplicateWhenAlreadySummarized(t *testing.T) {
	repo, mock := newMockNewsRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT 1 FROM summarized_articles").
		WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))

	id, dup, err := repo.SaveURLHarvest(context.Background(), domain.UrlHarvest{
		URL: "https://example.com/a", AssetSymbol: "BTC",
	})
	require.NoError(t, err)
	assert.True(t, dup)
	assert.Equal(t, int64(0), id)
}

func TestSaveURLHarvestDuplicateWhenAlreadyInInbox(t *testing.T) {
	repo, mock := newMockNewsRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT 1 FROM summarized_articles").
		WillReturnRows(sqlmock.NewRows([]string{"1"}))
	mock.ExpectQuery("SELECT 1 FROM rejections").
		WillReturnRows(sqlmock.NewRows([]string{"1"}))
	mock.ExpectQuery("SELECT id FROM url_harvests").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(3)))

	id, dup, err := repo.SaveURLHarvest(context.Background(), domain.UrlHarvest{
		URL: "https://example.com/a", AssetSymbol: "BTC",
	})
	require.NoError(t, err)
	assert.True(t, dup)
	assert.Equal(t, int64(3), id)
}

func TestSaveSummarizedArticleReturnsID(t *testing.T) {
	repo, mock := newMockNewsRepo(t)
	mock.ExpectQuery("INSERT INTO summarized_articles").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(42)))

	id, err := repo.SaveSummarizedArticle(context.Background(), domain.SummarizedArticle{
		URL: "https://example.com/a", AssetSymbol: "BTC",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
}

func TestSaveRejectionReturnsID(t *testing.T) {
	repo, mock := newMockNewsRepo(t)
	mock.ExpectQuery("INSERT INTO rejections").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(9)))

	id, err := repo.SaveRejection(context.Background(), domain.Rejection{
		URL: "https://example.com/a", AssetSymbol: "BTC", Reason: "no_asset_relation",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(9), id)
}

func TestPendingHarvestsScansRowsInOrder(t *testing.T) {
	repo, mock := newMockNewsRepo(t)
	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"id", "url", "asset_symbol", "source", "published_at", "title", "discovered_at"}).
		AddRow(int64(1), "https://a", "BTC", "rss", now, "t1", now).
		AddRow(int64(2), "https://b", "BTC", "rss", nil, "t2", now)
	mock.ExpectQuery("SELECT id, url, asset_symbol, source, published_at, title, discovered_at").
		WithArgs("BTC", 10).
		WillReturnRows(rows)

	out, err := repo.PendingHarvests(context.Background(), "BTC", 10)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "https://a", out[0].URL)
	assert.Nil(t, out[1].PublishedAt)
}

func TestDeleteURLHarvestExecutesDelete(t *testing.T) {
	repo, mock := newMockNewsRepo(t)
	mock.ExpectExec("DELETE FROM url_harvests").
		WithArgs(int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.DeleteURLHarvest(context.Background(), 5)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListVotesForAssetScansRows(t *testing.T) {
	repo, mock := newMockNewsRepo(t)
	now := time.Now().UTC()
	sentiment := 0.42
	articleID := int64(42)
	rows := sqlmock.NewRows([]string{"id", "coalesce", "article_id", "asset_symbol", "model", "relevance", "sentiment", "summary", "harvest_id", "created_at"}).
		AddRow(int64(1), "https://a", articleID, "BTC", "gpt-5", true, sentiment, "summary text", int64(5), now)
	mock.ExpectQuery("SELECT lv.id").
		WithArgs("BTC", now).
		WillReturnRows(rows)

	out, err := repo.ListVotesForAsset(context.Background(), "BTC", now)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "https://a", *out[0].URL)
	assert.Equal(t, "gpt-5", out[0].Model)
	assert.True(t, out[0].Relevance)
}

func TestExistsForURLAndAssetTrueAndFalse(t *testing.T) {
	repo, mock := newMockNewsRepo(t)

	mock.ExpectQuery("SELECT 1 FROM summarized_articles").
		WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))
	exists, err := repo.ExistsForURLAndAsset(context.Background(), "https://a", "BTC")
	require.NoError(t, err)
	assert.True(t, exists)

	mock.ExpectQuery("SELECT 1 FROM summarized_articles").
		WillReturnRows(sqlmock.NewRows([]string{"1"}))
	exists2, err := repo.ExistsForURLAndAsset(context.Background(), "https://b", "BTC")
	require.NoError(t, err)
	assert.False(t, exists2)
}
