package main

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"

	"github.com/sawpanic/rrp/internal/domain"
)

// writeVotesCSV renders the llm_votes audit trail to path, matching
// spec.md §6's exact column order: booleans as true/false, floats at 2dp,
// timestamps in RFC3339 UTC.
func writeVotesCSV(path string, votes []domain.LlmVote) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create votes csv: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	header := []string{"id", "url", "asset_symbol", "model", "relevance", "sentiment", "summary", "created_at", "harvest_id", "article_id"}
	if err := w.Write(header); err != nil {
		return fmt.Errorf("write votes csv header: %w", err)
	}

	for _, v := range votes {
		record := []string{
			strconv.FormatInt(v.ID, 10),
			derefString(v.URL),
			v.AssetSymbol,
			v.Model,
			strconv.FormatBool(v.Relevance),
			formatFloat2dp(v.Sentiment),
			v.Summary,
			v.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
			strconv.FormatInt(v.HarvestID, 10),
			derefInt64(v.ArticleID),
		}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("write votes csv row %d: %w", v.ID, err)
		}
	}
	return w.Error()
}

// writeFactorsCSV renders a market_factors_daily slice to path, one row
// per (asset, day), all nullable factor columns blank when nil.
func writeFactorsCSV(path string, rows []domain.MarketFactorsDaily) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create factors csv: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	header := []string{
		"asset_symbol", "day", "ret_1d", "vol_30d", "sharpe_30d", "sortino_30d",
		"var_1d_95", "exp_return_30d", "sentiment_mean", "sentiment_norm", "p_alpha", "alpha",
	}
	if err := w.Write(header); err != nil {
		return fmt.Errorf("write factors csv header: %w", err)
	}

	for _, r := range rows {
		record := []string{
			r.AssetSymbol,
			r.Day.UTC().Format("2006-01-02"),
			formatFloat2dp(r.Ret1d),
			formatFloat2dp(r.Vol30d),
			formatFloat2dp(r.Sharpe30d),
			formatFloat2dp(r.Sortino30d),
			formatFloat2dp(r.Var1d95),
			formatFloat2dp(r.ExpReturn30d),
			formatFloat2dp(r.SentimentMean),
			formatFloat2dp(r.SentimentNorm),
			formatFloat2dp(r.PAlpha),
			strconv.FormatFloat(r.Alpha, 'f', 2, 64),
		}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("write factors csv row for %s/%s: %w", r.AssetSymbol, r.Day, err)
		}
	}
	return w.Error()
}

func formatFloat2dp(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', 2, 64)
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func derefInt64(v *int64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatInt(*v, 10)
}
