package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockDomainPolicyRepo(t *testing.T) (*domainPolicyRepo, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	sqlxDB := sqlx.NewDb(mockDB, "postgres")
	return &domainPolicyRepo{db: sqlxDB, timeout: 5 * time.Second}, mock
}

func TestIsAllowedNoRowFailsOpen(t *testing.T) {
	repo, mock := newMockDomainPolicyRepo(t)
	mock.ExpectQuery("SELECT allowed FROM news_domain_policy").
		WithArgs("BTC", "example.com").
		WillReturnRows(sqlmock.NewRows([]string{"allowed"}))

	allowed, err := repo.IsAllowed(context.Background(), "BTC", "example.com")
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIsAllowedQueryErrorFailsOpen(t *testing.T) {
	repo, mock := newMockDomainPolicyRepo(t)
	mock.ExpectQuery("SELECT allowed FROM news_domain_policy").
		WillReturnError(assertErr("boom"))

	allowed, err := repo.IsAllowed(context.Background(), "BTC", "example.com")
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestIsAllowedReturnsExplicitDeny(t *testing.T) {
	repo, mock := newMockDomainPolicyRepo(t)
	mock.ExpectQuery("SELECT allowed FROM news_domain_policy").
		WithArgs("BTC", "spam.example").
		WillReturnRows(sqlmock.NewRows([]string{"allowed"}).AddRow(false))

	allowed, err := repo.IsAllowed(context.Background(), "BTC", "spam.example")
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestSetPolicyUpsertsAllowedColumn(t *testing.T) {
	repo, mock := newMockDomainPolicyRepo(t)
	mock.ExpectExec("INSERT INTO news_domain_policy").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.SetPolicy(context.Background(), "BTC", "example.com", false)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordHarvestBumpsHarvestedAndStored(t *testing.T) {
	repo, mock := newMockDomainPolicyRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO news_domain_stats").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE news_domain_stats SET harvested_total").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO news_domain_stats").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE news_domain_stats SET stored_total").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.RecordHarvest(context.Background(), "BTC", "example.com", true)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordHarvestNotStoredOnlyBumpsHarvested(t *testing.T) {
	repo, mock := newMockDomainPolicyRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO news_domain_stats").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE news_domain_stats SET harvested_total").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.RecordHarvest(context.Background(), "BTC", "example.com", false)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordLlmDecisionBumpsAcceptedOrRejected(t *testing.T) {
	repo, mock := newMockDomainPolicyRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO news_domain_stats").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE news_domain_stats SET llm_rejected").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.RecordLlmDecision(context.Background(), "BTC", "example.com", false)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStatsScansAllRows(t *testing.T) {
	repo, mock := newMockDomainPolicyRepo(t)
	rows := sqlmock.NewRows([]string{"asset_symbol", "domain", "harvested_total", "stored_total", "llm_accepted", "llm_rejected"}).
		AddRow("BTC", "example.com", 10, 4, 3, 1).
		AddRow("BTC", "other.example", 5, 5, 5, 0)
	mock.ExpectQuery("SELECT asset_symbol, domain, harvested_total, stored_total, llm_accepted, llm_rejected").
		WithArgs("BTC").
		WillReturnRows(rows)

	stats, err := repo.Stats(context.Background(), "BTC")
	require.NoError(t, err)
	require.Len(t, stats, 2)
	assert.Equal(t, "example.com", stats[0].Domain)
	assert.Equal(t, int64(10), stats[0].HarvestedTotal)
	assert.Equal(t, int64(3), stats[0].LlmAccepted)
}

type assertErr string

func (e assertErr) Error() string { return string(e) }
