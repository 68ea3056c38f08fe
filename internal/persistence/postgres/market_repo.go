package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/sawpanic/rrp/internal/domain"
	"github.com/sawpanic/rrp/internal/persistence/ports"
)

// marketRepo implements ports.MarketRepository, grounded on the teacher's
// trades_repo.go query/scan style applied to market snapshots and daily
// candles instead of trades.
type marketRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

func NewMarketRepo(db *sqlx.DB, timeout time.Duration) ports.MarketRepository {
	return &marketRepo{db: db, timeout: timeout}
}

func (r *marketRepo) SaveSnapshot(ctx context.Context, s domain.MarketSnapshot) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO market_snapshots
			(asset_symbol, source, observed_at, price, market_cap, volume_24h, change_1h, change_24h, change_7d)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		s.AssetSymbol, s.Source, s.ObservedAt, s.Price, s.MarketCap, s.Volume24h, s.Change1h, s.Change24h, s.Change7d,
	)
	if err != nil {
		return fmt.Errorf("failed to save market snapshot for %s: %w", s.AssetSymbol, err)
	}
	return nil
}

func (r *marketRepo) SaveDailyCandle(ctx context.Context, c domain.DailyCandle) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO daily_candles
			(asset_symbol, provider, provider_id, vs_currency, day, open, high, low, close, market_cap, volume, source)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (asset_symbol, provider, provider_id, vs_currency, day) DO UPDATE
			SET open = excluded.open, high = excluded.high, low = excluded.low,
			    close = excluded.close, market_cap = excluded.market_cap, volume = excluded.volume`,
		c.AssetSymbol, c.Provider, c.ProviderID, c.VsCurrency, c.Day,
		c.Open, c.High, c.Low, c.Close, c.MarketCap, c.Volume, c.Source,
	)
	if err != nil {
		return fmt.Errorf("failed to save daily candle for %s on %s: %w", c.AssetSymbol, c.Day, err)
	}
	return nil
}

func (r *marketRepo) SnapshotsForDay(ctx context.Context, assetSymbol, provider, vsCurrency string, day time.Time) ([]domain.MarketSnapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	dayStart := day.UTC().Truncate(24 * time.Hour)
	dayEnd := dayStart.Add(24 * time.Hour)

	rows, err := r.db.QueryxContext(ctx, `
		SELECT asset_symbol, source, observed_at, price, market_cap, volume_24h, change_1h, change_24h, change_7d
		FROM market_snapshots
		WHERE asset_symbol = $1 AND source = $2 AND observed_at >= $3 AND observed_at < $4
		ORDER BY observed_at ASC`,
		assetSymbol, provider, dayStart, dayEnd,
	)
	_ = vsCurrency // vs_currency is a daily_candles-only dimension; snapshots are per (asset, source)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots for day: %w", err)
	}
	defer rows.Close()

	var out []domain.MarketSnapshot
	for rows.Next() {
		var s domain.MarketSnapshot
		if err := rows.Scan(&s.AssetSymbol, &s.Source, &s.ObservedAt, &s.Price, &s.MarketCap, &s.Volume24h, &s.Change1h, &s.Change24h, &s.Change7d); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot row: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating snapshot rows: %w", err)
	}
	return out, nil
}

func (r *marketRepo) DailyCandles(ctx context.Context, assetSymbol string, since time.Time) ([]domain.DailyCandle, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	rows, err := r.db.QueryxContext(ctx, `
		SELECT asset_symbol, provider, provider_id, vs_currency, day, open, high, low, close, market_cap, volume, source
		FROM daily_candles
		WHERE asset_symbol = $1 AND day >= $2
		ORDER BY day ASC`,
		assetSymbol, since,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily candles: %w", err)
	}
	defer rows.Close()

	var out []domain.DailyCandle
	for rows.Next() {
		var c domain.DailyCandle
		if err := rows.Scan(&c.AssetSymbol, &c.Provider, &c.ProviderID, &c.VsCurrency, &c.Day, &c.Open, &c.High, &c.Low, &c.Close, &c.MarketCap, &c.Volume, &c.Source); err != nil {
			return nil, fmt.Errorf("failed to scan daily candle row: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating daily candle rows: %w", err)
	}
	return out, nil
}
