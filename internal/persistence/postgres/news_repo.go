package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/sawpanic/rrp/internal/domain"
	"github.com/sawpanic/rrp/internal/persistence/ports"
)

// newsRepo implements ports.NewsRepository and ports.SummarizedArticleRepository,
// grounded on duckdb_news_repository.py. All timestamps are stored and read
// back as UTC.
type newsRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

func NewNewsRepo(db *sqlx.DB, timeout time.Duration) ports.NewsRepository {
	return &newsRepo{db: db, timeout: timeout}
}

func NewSummarizedArticleRepo(db *sqlx.DB, timeout time.Duration) ports.SummarizedArticleRepository {
	return &newsRepo{db: db, timeout: timeout}
}

func NewArticlesQuery(db *sqlx.DB, timeout time.Duration) ports.ArticlesQuery {
	return &newsRepo{db: db, timeout: timeout}
}

func (r *newsRepo) RecentSummarizedArticles(ctx context.Context, assetSymbol string, limit int) ([]domain.SummarizedArticle, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	rows, err := r.db.QueryxContext(ctx, `
		SELECT id, url, asset_symbol, source, summary, model, sentiment, published_at, ingested_at
		FROM summarized_articles
		WHERE asset_symbol = $1
		ORDER BY published_at DESC
		LIMIT $2`,
		assetSymbol, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent summarized articles: %w", err)
	}
	defer rows.Close()

	var out []domain.SummarizedArticle
	for rows.Next() {
		var a domain.SummarizedArticle
		if err := rows.Scan(&a.ID, &a.URL, &a.AssetSymbol, &a.Source, &a.Summary, &a.Model, &a.Sentiment, &a.PublishedAt, &a.IngestedAt); err != nil {
			return nil, fmt.Errorf("failed to scan summarized article row: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating summarized article rows: %w", err)
	}
	return out, nil
}

func (r *newsRepo) NowUTC() time.Time { return time.Now().UTC() }

// SaveURLHarvest mirrors save_url_harvest: first check summarized_articles,
// then rejections, then url_harvests itself, all inside one transaction, so
// a candidate already known by any of the three tables is reported as a
// duplicate rather than re-queued.
func (r *newsRepo) SaveURLHarvest(ctx context.Context, h domain.UrlHarvest) (int64, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowxContext(ctx,
		`SELECT 1 FROM summarized_articles WHERE url = $1 AND asset_symbol = $2 LIMIT 1`,
		h.URL, h.AssetSymbol,
	).Scan(&exists)
	if err != nil && err != sql.ErrNoRows {
		return 0, false, fmt.Errorf("failed to check summarized_articles: %w", err)
	}
	if err == nil {
		return 0, true, nil
	}

	err = tx.QueryRowxContext(ctx,
		`SELECT 1 FROM rejections WHERE url = $1 AND asset_symbol = $2 LIMIT 1`,
		h.URL, h.AssetSymbol,
	).Scan(&exists)
	if err != nil && err != sql.ErrNoRows {
		return 0, false, fmt.Errorf("failed to check rejections: %w", err)
	}
	if err == nil {
		return 0, true, nil
	}

	var existingID int64
	err = tx.QueryRowxContext(ctx,
		`SELECT id FROM url_harvests WHERE url = $1 AND asset_symbol = $2`,
		h.URL, h.AssetSymbol,
	).Scan(&existingID)
	if err != nil && err != sql.ErrNoRows {
		return 0, false, fmt.Errorf("failed to check url_harvests: %w", err)
	}
	if err == nil {
		return existingID, true, nil
	}

	discovered := time.Now().UTC()
	var id int64
	err = tx.QueryRowxContext(ctx, `
		INSERT INTO url_harvests (url, asset_symbol, source, published_at, title, discovered_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		h.URL, h.AssetSymbol, h.Source, h.PublishedAt, h.Title, discovered,
	).Scan(&id)
	if err != nil {
		return 0, false, fmt.Errorf("failed to insert url harvest: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, false, fmt.Errorf("failed to commit url harvest insert: %w", err)
	}
	return id, false, nil
}

func (r *newsRepo) SaveRejection(ctx context.Context, rej domain.Rejection) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	created := time.Now().UTC()
	var id int64
	err := r.db.QueryRowxContext(ctx, `
		INSERT INTO rejections (url, asset_symbol, reason, source, context, model, details_json, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`,
		rej.URL, rej.AssetSymbol, rej.Reason, rej.Source, rej.Context, rej.Model, nullString(rej.DetailsJSON), created,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to save rejection for %s: %w", rej.URL, err)
	}
	return id, nil
}

func (r *newsRepo) SaveSummarizedArticle(ctx context.Context, a domain.SummarizedArticle) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	ingested := a.IngestedAt
	if ingested.IsZero() {
		ingested = time.Now().UTC()
	}

	var id int64
	err := r.db.QueryRowxContext(ctx, `
		INSERT INTO summarized_articles (url, published_at, summary, asset_symbol, source, model, sentiment, ingested_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`,
		a.URL, a.PublishedAt, a.Summary, a.AssetSymbol, a.Source, a.Model, a.Sentiment, ingested,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to save summarized article %s: %w", a.URL, err)
	}
	return id, nil
}

func (r *newsRepo) SaveVote(ctx context.Context, v domain.LlmVote) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	created := time.Now().UTC()
	var id int64
	err := r.db.QueryRowxContext(ctx, `
		INSERT INTO llm_votes (url, article_id, asset_symbol, model, relevance, sentiment, summary, harvest_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`,
		v.URL, v.ArticleID, v.AssetSymbol, v.Model, v.Relevance, v.Sentiment, v.Summary, v.HarvestID, created,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to save llm vote for harvest %d: %w", v.HarvestID, err)
	}
	return id, nil
}

func (r *newsRepo) ExistsForURLAndAsset(ctx context.Context, url, assetSymbol string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var exists int
	err := r.db.QueryRowxContext(ctx,
		`SELECT 1 FROM summarized_articles WHERE url = $1 AND asset_symbol = $2
		 UNION ALL
		 SELECT 1 FROM rejections WHERE url = $1 AND asset_symbol = $2
		 LIMIT 1`,
		url, assetSymbol,
	).Scan(&exists)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("failed to check existing article/rejection for %s: %w", url, err)
	}
	return true, nil
}

func (r *newsRepo) PendingHarvests(ctx context.Context, assetSymbol string, limit int) ([]domain.UrlHarvest, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	rows, err := r.db.QueryxContext(ctx, `
		SELECT id, url, asset_symbol, source, published_at, title, discovered_at
		FROM url_harvests
		WHERE asset_symbol = $1
		ORDER BY discovered_at ASC
		LIMIT $2`,
		assetSymbol, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending harvests: %w", err)
	}
	defer rows.Close()

	var out []domain.UrlHarvest
	for rows.Next() {
		var h domain.UrlHarvest
		if err := rows.Scan(&h.ID, &h.URL, &h.AssetSymbol, &h.Source, &h.PublishedAt, &h.Title, &h.DiscoveredAt); err != nil {
			return nil, fmt.Errorf("failed to scan pending harvest row: %w", err)
		}
		out = append(out, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating pending harvest rows: %w", err)
	}
	return out, nil
}

func (r *newsRepo) ListVotesForAsset(ctx context.Context, assetSymbol string, since time.Time) ([]domain.LlmVote, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	rows, err := r.db.QueryxContext(ctx, `
		SELECT lv.id, COALESCE(lv.url, sa.url), lv.article_id, lv.asset_symbol, lv.model,
		       lv.relevance, lv.sentiment, lv.summary, lv.harvest_id, lv.created_at
		FROM llm_votes lv
		LEFT JOIN summarized_articles sa ON sa.id = lv.article_id
		WHERE lv.asset_symbol = $1 AND lv.created_at >= $2
		ORDER BY lv.created_at DESC`,
		assetSymbol, since,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query votes for %s: %w", assetSymbol, err)
	}
	defer rows.Close()

	var out []domain.LlmVote
	for rows.Next() {
		var v domain.LlmVote
		if err := rows.Scan(&v.ID, &v.URL, &v.ArticleID, &v.AssetSymbol, &v.Model,
			&v.Relevance, &v.Sentiment, &v.Summary, &v.HarvestID, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan vote row: %w", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating vote rows: %w", err)
	}
	return out, nil
}

func (r *newsRepo) DeleteURLHarvest(ctx context.Context, id int64) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if _, err := r.db.ExecContext(ctx, `DELETE FROM url_harvests WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete url harvest %d: %w", id, err)
	}
	return nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
