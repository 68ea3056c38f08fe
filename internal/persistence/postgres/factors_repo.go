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

// factorsRepo implements ports.FactorsRepository. The daily-return and
// sentiment reads query SQL views (v_daily_returns, v_daily_sentiment,
// v_daily_sentiment_weighted, v_daily_sentiment_stats) defined in migrations/0001_init.sql
// rather than recomputing rollups in Go, mirroring compute_market_factors.py
// reading from its MarketRepositoryPort's equivalent fetch_* views.
type factorsRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

func NewFactorsRepo(db *sqlx.DB, timeout time.Duration) ports.FactorsRepository {
	return &factorsRepo{db: db, timeout: timeout}
}

func (r *factorsRepo) UpsertFactors(ctx context.Context, f domain.MarketFactorsDaily) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO market_factors_daily
			(asset_symbol, day, ret_1d, vol_30d, sharpe_30d, sortino_30d, var_1d_95,
			 exp_return_30d, sentiment_mean, sentiment_norm, p_alpha, alpha)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (asset_symbol, day) DO UPDATE SET
			ret_1d = excluded.ret_1d,
			vol_30d = excluded.vol_30d,
			sharpe_30d = excluded.sharpe_30d,
			sortino_30d = excluded.sortino_30d,
			var_1d_95 = excluded.var_1d_95,
			exp_return_30d = excluded.exp_return_30d,
			sentiment_mean = excluded.sentiment_mean,
			sentiment_norm = excluded.sentiment_norm,
			p_alpha = excluded.p_alpha,
			alpha = excluded.alpha`,
		f.AssetSymbol, f.Day, f.Ret1d, f.Vol30d, f.Sharpe30d, f.Sortino30d, f.Var1d95,
		f.ExpReturn30d, f.SentimentMean, f.SentimentNorm, f.PAlpha, f.Alpha,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert factors for %s on %s: %w", f.AssetSymbol, f.Day, err)
	}
	return nil
}

func (r *factorsRepo) FactorsForDay(ctx context.Context, assetSymbol string, day time.Time) (*domain.MarketFactorsDaily, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var f domain.MarketFactorsDaily
	err := r.db.QueryRowxContext(ctx, `
		SELECT asset_symbol, day, ret_1d, vol_30d, sharpe_30d, sortino_30d, var_1d_95,
		       exp_return_30d, sentiment_mean, sentiment_norm, p_alpha, alpha
		FROM market_factors_daily
		WHERE asset_symbol = $1 AND day = $2`,
		assetSymbol, day,
	).Scan(&f.AssetSymbol, &f.Day, &f.Ret1d, &f.Vol30d, &f.Sharpe30d, &f.Sortino30d, &f.Var1d95,
		&f.ExpReturn30d, &f.SentimentMean, &f.SentimentNorm, &f.PAlpha, &f.Alpha)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query factors for day: %w", err)
	}
	return &f, nil
}

func (r *factorsRepo) FactorsSince(ctx context.Context, assetSymbol string, since time.Time) ([]domain.MarketFactorsDaily, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	rows, err := r.db.QueryxContext(ctx, `
		SELECT asset_symbol, day, ret_1d, vol_30d, sharpe_30d, sortino_30d, var_1d_95,
		       exp_return_30d, sentiment_mean, sentiment_norm, p_alpha, alpha
		FROM market_factors_daily
		WHERE asset_symbol = $1 AND day >= $2
		ORDER BY day ASC`,
		assetSymbol, since,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query factors since: %w", err)
	}
	defer rows.Close()

	var out []domain.MarketFactorsDaily
	for rows.Next() {
		var f domain.MarketFactorsDaily
		if err := rows.Scan(&f.AssetSymbol, &f.Day, &f.Ret1d, &f.Vol30d, &f.Sharpe30d, &f.Sortino30d, &f.Var1d95,
			&f.ExpReturn30d, &f.SentimentMean, &f.SentimentNorm, &f.PAlpha, &f.Alpha); err != nil {
			return nil, fmt.Errorf("failed to scan factors row: %w", err)
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating factors rows: %w", err)
	}
	return out, nil
}

func (r *factorsRepo) DailyReturns(ctx context.Context, assetSymbol string, start, end time.Time) ([]domain.DailyReturn, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	rows, err := r.db.QueryxContext(ctx, `
		SELECT day, ret
		FROM v_daily_returns
		WHERE asset_symbol = $1 AND day >= $2 AND day <= $3
		ORDER BY day ASC`,
		assetSymbol, start, end,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily returns: %w", err)
	}
	defer rows.Close()

	var out []domain.DailyReturn
	for rows.Next() {
		var dr domain.DailyReturn
		if err := rows.Scan(&dr.Day, &dr.Return); err != nil {
			return nil, fmt.Errorf("failed to scan daily return row: %w", err)
		}
		out = append(out, dr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating daily return rows: %w", err)
	}
	return out, nil
}

func (r *factorsRepo) DailySentiment(ctx context.Context, assetSymbol string, start, end time.Time) (map[time.Time]*float64, error) {
	return r.scanDaySentimentMap(ctx, `
		SELECT day, sentiment_mean FROM v_daily_sentiment
		WHERE asset_symbol = $1 AND day >= $2 AND day <= $3`,
		assetSymbol, start, end)
}

func (r *factorsRepo) DailySentimentWeighted(ctx context.Context, assetSymbol string, start, end time.Time) (map[time.Time]*float64, error) {
	return r.scanDaySentimentMap(ctx, `
		SELECT day, sentiment_mean FROM v_daily_sentiment_weighted
		WHERE asset_symbol = $1 AND day >= $2 AND day <= $3`,
		assetSymbol, start, end)
}

func (r *factorsRepo) scanDaySentimentMap(ctx context.Context, query, assetSymbol string, start, end time.Time) (map[time.Time]*float64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	rows, err := r.db.QueryxContext(ctx, query, assetSymbol, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily sentiment: %w", err)
	}
	defer rows.Close()

	out := make(map[time.Time]*float64)
	for rows.Next() {
		var day time.Time
		var sentiment *float64
		if err := rows.Scan(&day, &sentiment); err != nil {
			return nil, fmt.Errorf("failed to scan daily sentiment row: %w", err)
		}
		out[day] = sentiment
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating daily sentiment rows: %w", err)
	}
	return out, nil
}

func (r *factorsRepo) DailySentimentStats(ctx context.Context, assetSymbol string, start, end time.Time) (map[time.Time]int, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	rows, err := r.db.QueryxContext(ctx, `
		SELECT day, article_count FROM v_daily_sentiment_stats
		WHERE asset_symbol = $1 AND day >= $2 AND day <= $3`,
		assetSymbol, start, end,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily sentiment stats: %w", err)
	}
	defer rows.Close()

	out := make(map[time.Time]int)
	for rows.Next() {
		var day time.Time
		var count int
		if err := rows.Scan(&day, &count); err != nil {
			return nil, fmt.Errorf("failed to scan daily sentiment stats row: %w", err)
		}
		out[day] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating daily sentiment stats rows: %w", err)
	}
	return out, nil
}
