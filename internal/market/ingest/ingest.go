// Package ingest implements the history-range ingestion use case named in
// spec.md §6 as `rrp market ingest`/`rrp market history`, grounded on
// features/market/application/usecases/ingest_history_range.py: fetch
// intraday snapshots from a market data source, re-stamp the provider's
// own id onto the tracked asset symbol, persist the raw snapshots, and
// roll them into daily candles in one step.
package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/sawpanic/rrp/internal/domain"
	"github.com/sawpanic/rrp/internal/market/rollup"
	"github.com/sawpanic/rrp/internal/persistence/ports"
)

// Source is the subset of a market data provider this use case needs.
type Source interface {
	FetchHistoryRange(ctx context.Context, providerID, vsCurrency string, from, to time.Time) ([]domain.MarketSnapshot, error)
	FetchSpot(ctx context.Context, providerIDs []string, vsCurrency string) ([]domain.MarketSnapshot, error)
}

// Result reports what one ingestion run did.
type Result struct {
	Fetched int
	Saved   int
}

// UseCase drains a provider's history range into market_snapshots and
// daily_candles.
type UseCase struct {
	Repo   ports.MarketRepository
	Source Source
}

// New constructs a UseCase.
func New(repo ports.MarketRepository, source Source) *UseCase {
	return &UseCase{Repo: repo, Source: source}
}

// Execute fetches [from, to] hourly history for providerID, re-stamps it
// to assetSymbol, persists every snapshot, and upserts the RollupAverage
// daily candles derived from them — the conservative sum/count volume
// form this codepath has always used (SPEC_FULL.md §5 item 1).
func (u *UseCase) Execute(ctx context.Context, assetSymbol, providerID, vsCurrency string, from, to time.Time) (Result, error) {
	raw, err := u.Source.FetchHistoryRange(ctx, providerID, vsCurrency, from, to)
	if err != nil {
		return Result{}, fmt.Errorf("ingest: fetch history range: %w", err)
	}

	snapshots := make([]domain.MarketSnapshot, len(raw))
	for i, s := range raw {
		s.AssetSymbol = assetSymbol
		snapshots[i] = s
	}

	for _, s := range snapshots {
		if err := u.Repo.SaveSnapshot(ctx, s); err != nil {
			return Result{}, fmt.Errorf("ingest: save snapshot: %w", err)
		}
	}

	candles := rollup.RollupAverage(snapshots, assetSymbol, coingeckoProvider, providerID, vsCurrency)
	for _, c := range candles {
		if err := u.Repo.SaveDailyCandle(ctx, c); err != nil {
			return Result{}, fmt.Errorf("ingest: save candle: %w", err)
		}
	}

	return Result{Fetched: len(snapshots), Saved: len(candles)}, nil
}

const coingeckoProvider = "CoinGecko"

// ExecuteSpot fetches one current snapshot per providerID in a single
// upstream request and persists it, grounded on fetch_spot's "one request,
// many ids" shape. Unlike FetchHistoryRange, CoinGecko's /coins/markets
// response already carries the real ticker symbol, so no re-stamping is
// needed here.
func (u *UseCase) ExecuteSpot(ctx context.Context, providerIDs []string, vsCurrency string) (Result, error) {
	raw, err := u.Source.FetchSpot(ctx, providerIDs, vsCurrency)
	if err != nil {
		return Result{}, fmt.Errorf("ingest: fetch spot: %w", err)
	}

	saved := 0
	for _, s := range raw {
		if err := u.Repo.SaveSnapshot(ctx, s); err != nil {
			return Result{}, fmt.Errorf("ingest: save snapshot: %w", err)
		}
		saved++
	}
	return Result{Fetched: len(raw), Saved: saved}, nil
}
