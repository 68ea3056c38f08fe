// Package rollup aggregates intraday market snapshots into daily candles
// (spec.md §4.8), grounded on
// features/market/application/rollup_utils.py and
// features/market/application/usecases/ingest_history_range.py.
//
// Two forms exist side by side because the original carries both:
// RollupDailyCandles sums volume_24h across the day (the standalone
// rollup path); RollupAverage divides that sum by the snapshot count
// (the form IngestHistoryRange writes). Both are correct; an
// installation should pick one and stay consistent.
package rollup

import (
	"sort"
	"time"

	"github.com/sawpanic/rrp/internal/domain"
)

// RollupDailyCandles groups snapshots by UTC day and aggregates each
// bucket into a DailyCandle: open/close are the chronologically
// first/last non-null price, high/low the max/min non-null price,
// market_cap the last non-null value of the day, and volume the sum of
// volume_24h across the day.
func RollupDailyCandles(snapshots []domain.MarketSnapshot, assetSymbol, provider, providerID, vsCurrency string) []domain.DailyCandle {
	buckets := bucketByUTCDay(snapshots)

	candles := make([]domain.DailyCandle, 0, len(buckets))
	for day, bucket := range buckets {
		sort.Slice(bucket, func(i, j int) bool { return bucket[i].ObservedAt.Before(bucket[j].ObservedAt) })

		open, close, high, low := ohlcFromPrices(bucket)
		marketCap := lastNonNilMarketCap(bucket)

		volumeSum := 0.0
		for _, s := range bucket {
			if s.Volume24h != nil {
				volumeSum += *s.Volume24h
			}
		}

		candles = append(candles, domain.DailyCandle{
			AssetSymbol: assetSymbol,
			Provider:    provider,
			ProviderID:  providerID,
			VsCurrency:  vsCurrency,
			Day:         day,
			Open:        open,
			High:        high,
			Low:         low,
			Close:       close,
			MarketCap:   marketCap,
			Volume:      floatPtr(volumeSum),
			Source:      provider,
		})
	}

	sort.Slice(candles, func(i, j int) bool { return candles[i].Day.Before(candles[j].Day) })
	return candles
}

// RollupAverage is the same OHLC/market-cap aggregation as
// RollupDailyCandles, but volume is the day's mean of volume_24h rather
// than its sum, matching IngestHistoryRange's conservative-average form.
func RollupAverage(snapshots []domain.MarketSnapshot, assetSymbol, provider, providerID, vsCurrency string) []domain.DailyCandle {
	candles := RollupDailyCandles(snapshots, assetSymbol, provider, providerID, vsCurrency)
	buckets := bucketByUTCDay(snapshots)
	for i := range candles {
		bucket := buckets[candles[i].Day]
		if len(bucket) == 0 || candles[i].Volume == nil {
			continue
		}
		avg := *candles[i].Volume / float64(len(bucket))
		candles[i].Volume = &avg
	}
	return candles
}

func bucketByUTCDay(snapshots []domain.MarketSnapshot) map[time.Time][]domain.MarketSnapshot {
	buckets := make(map[time.Time][]domain.MarketSnapshot)
	for _, s := range snapshots {
		day := floorDayUTC(s.ObservedAt)
		buckets[day] = append(buckets[day], s)
	}
	return buckets
}

func floorDayUTC(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

func ohlcFromPrices(bucket []domain.MarketSnapshot) (open, close, high, low *float64) {
	for _, s := range bucket {
		if s.Price == nil {
			continue
		}
		if open == nil {
			open = floatPtr(*s.Price)
		}
		close = floatPtr(*s.Price)
		if high == nil || *s.Price > *high {
			high = floatPtr(*s.Price)
		}
		if low == nil || *s.Price < *low {
			low = floatPtr(*s.Price)
		}
	}
	return open, close, high, low
}

func lastNonNilMarketCap(bucket []domain.MarketSnapshot) *float64 {
	for i := len(bucket) - 1; i >= 0; i-- {
		if bucket[i].MarketCap != nil {
			return floatPtr(*bucket[i].MarketCap)
		}
	}
	return nil
}

func floatPtr(v float64) *float64 { return &v }
