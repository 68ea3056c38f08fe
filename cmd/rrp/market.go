package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sawpanic/rrp/internal/market/coingecko"
	"github.com/sawpanic/rrp/internal/market/factors"
	"github.com/sawpanic/rrp/internal/market/ingest"
	"github.com/sawpanic/rrp/internal/market/overview"
)

func newMarketCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "market",
		Short: "Ingest market data and compute sentiment-blended factors",
	}
	cmd.AddCommand(newMarketIngestCmd())
	cmd.AddCommand(newMarketHistoryCmd())
	cmd.AddCommand(newMarketFactorsCmd())
	cmd.AddCommand(newMarketOverviewCmd())
	return cmd
}

func newMarketIngestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Fetch current spot snapshots for one or more assets",
		RunE:  runMarketIngest,
	}
	cmd.Flags().StringSlice("asset", nil, "one or more CoinGecko provider ids, e.g. bitcoin,ethereum (required)")
	cmd.Flags().String("vs", "usd", "quote currency")
	cmd.Flags().String("provider", coingecko.ProviderName, "market data provider (only CoinGecko is wired)")
	cmd.Flags().String("provider-id", "", "unused for multi-asset spot ingest; see 'market history'")
	cmd.MarkFlagRequired("asset")
	return cmd
}

func runMarketIngest(cmd *cobra.Command, args []string) error {
	assets, _ := cmd.Flags().GetStringSlice("asset")
	vs, _ := cmd.Flags().GetString("vs")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	a, err := newApp(ctx, cmd)
	if err != nil {
		return fmt.Errorf("market ingest failed: %w", err)
	}
	defer a.Close()

	uc := ingest.New(a.manager.Repositories().Market, a.buildCoinGeckoClient())
	ids := make([]string, len(assets))
	for i, s := range assets {
		ids[i] = strings.ToLower(s)
	}

	result, err := uc.ExecuteSpot(ctx, ids, vs)
	if err != nil {
		return fmt.Errorf("market ingest failed: %w", err)
	}

	log.Info().Int("fetched", result.Fetched).Int("saved", result.Saved).Msg("market ingest complete")
	return nil
}

func newMarketHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Backfill hourly history for one asset and roll it into daily candles",
		RunE:  runMarketHistory,
	}
	cmd.Flags().String("asset", "", "tracked asset symbol, e.g. BTC (required)")
	cmd.Flags().Int("days", 7, "how many days back to fetch, if --from-ts/--to-ts are not set")
	cmd.Flags().String("from-ts", "", "RFC3339 start of the history window")
	cmd.Flags().String("to-ts", "", "RFC3339 end of the history window")
	cmd.Flags().String("vs", "usd", "quote currency")
	cmd.Flags().String("provider", coingecko.ProviderName, "market data provider (only CoinGecko is wired)")
	cmd.Flags().String("provider-id", "", "CoinGecko coin id, defaults to the lowercased asset symbol")
	cmd.MarkFlagRequired("asset")
	return cmd
}

func runMarketHistory(cmd *cobra.Command, args []string) error {
	asset, _ := cmd.Flags().GetString("asset")
	vs, _ := cmd.Flags().GetString("vs")
	providerID, _ := cmd.Flags().GetString("provider-id")
	if providerID == "" {
		providerID = strings.ToLower(asset)
	}

	days, _ := cmd.Flags().GetInt("days")
	fromStr, _ := cmd.Flags().GetString("from-ts")
	toStr, _ := cmd.Flags().GetString("to-ts")
	end := time.Now().UTC()
	start := end.AddDate(0, 0, -days)
	if fromStr != "" {
		parsed, err := time.Parse(time.RFC3339, fromStr)
		if err != nil {
			return fmt.Errorf("invalid --from-ts: %w", err)
		}
		start = parsed
	}
	if toStr != "" {
		parsed, err := time.Parse(time.RFC3339, toStr)
		if err != nil {
			return fmt.Errorf("invalid --to-ts: %w", err)
		}
		end = parsed
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	a, err := newApp(ctx, cmd)
	if err != nil {
		return fmt.Errorf("market history failed: %w", err)
	}
	defer a.Close()

	uc := ingest.New(a.manager.Repositories().Market, a.buildCoinGeckoClient())
	result, err := uc.Execute(ctx, asset, providerID, vs, start, end)
	if err != nil {
		return fmt.Errorf("market history failed: %w", err)
	}

	log.Info().
		Str("asset", asset).
		Str("provider_id", providerID).
		Int("fetched", result.Fetched).
		Int("candles_saved", result.Saved).
		Msg("market history backfill complete")
	return nil
}

func newMarketFactorsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "factors",
		Short: "Compute and persist daily sentiment-blended market factors",
		RunE:  runMarketFactors,
	}
	cmd.Flags().String("asset", "", "tracked asset symbol (required)")
	cmd.Flags().Int("days", 90, "how many days back to compute, if --start/--end are not set")
	cmd.Flags().String("start", "", "RFC3339 start of the computation window")
	cmd.Flags().String("end", "", "RFC3339 end of the computation window")
	cmd.Flags().Float64("alpha", 0.5, "blend weight of expected-return vs sentiment in p_alpha")
	cmd.Flags().Int("window-vol", 0, "rolling volatility/Sharpe/Sortino/VaR window in days, 0 uses the default")
	cmd.Flags().Int("window-sent", 0, "rolling sentiment window in days, 0 uses the default")
	cmd.Flags().Int("ema-len", 0, "EMA span for the expected-return estimator, 0 uses the default")
	cmd.Flags().String("norm", "", "sentiment/return normalization: zscore, winsor, or minmax")
	cmd.Flags().Float64("winsor-alpha", 0, "winsorization tail fraction, only used when --norm=winsor")
	cmd.Flags().String("var", "", "rolling VaR95 estimator: param95 or emp95")
	cmd.Flags().String("export", "", "write the computed factor rows to this CSV path")
	cmd.Flags().Bool("dry-run", false, "compute factors without persisting them")
	cmd.MarkFlagRequired("asset")
	return cmd
}

func runMarketFactors(cmd *cobra.Command, args []string) error {
	asset, _ := cmd.Flags().GetString("asset")
	alpha, _ := cmd.Flags().GetFloat64("alpha")
	exportPath, _ := cmd.Flags().GetString("export")
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	start, end, err := resolveFactorsRange(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	a, err := newApp(ctx, cmd)
	if err != nil {
		return fmt.Errorf("market factors failed: %w", err)
	}
	defer a.Close()

	cfg := buildFactorsConfig(cmd)
	engine := factors.NewEngine(a.manager.Repositories().Factors, cfg)

	result, err := engine.Execute(ctx, asset, start, end, alpha, !dryRun)
	if err != nil {
		return fmt.Errorf("market factors failed: %w", err)
	}

	log.Info().Str("asset", asset).Int("days_processed", result.DaysProcessed).Int("rows", len(result.Rows)).Msg("market factors complete")

	if exportPath != "" {
		if err := writeFactorsCSV(exportPath, result.Rows); err != nil {
			return fmt.Errorf("market factors: export: %w", err)
		}
		log.Info().Str("path", exportPath).Int("rows", len(result.Rows)).Msg("factors exported")
	}
	return nil
}

func resolveFactorsRange(cmd *cobra.Command) (start, end time.Time, err error) {
	days, _ := cmd.Flags().GetInt("days")
	startStr, _ := cmd.Flags().GetString("start")
	endStr, _ := cmd.Flags().GetString("end")

	end = time.Now().UTC()
	start = end.AddDate(0, 0, -days)

	if startStr != "" {
		start, err = time.Parse(time.RFC3339, startStr)
		if err != nil {
			return start, end, fmt.Errorf("invalid --start: %w", err)
		}
	}
	if endStr != "" {
		end, err = time.Parse(time.RFC3339, endStr)
		if err != nil {
			return start, end, fmt.Errorf("invalid --end: %w", err)
		}
	}
	return start.UTC(), end.UTC(), nil
}

func buildFactorsConfig(cmd *cobra.Command) factors.Config {
	var cfg factors.Config

	if v, _ := cmd.Flags().GetInt("window-vol"); v > 0 {
		cfg.WindowVol = v
	}
	if v, _ := cmd.Flags().GetInt("window-sent"); v > 0 {
		cfg.WindowSent = v
	}
	if v, _ := cmd.Flags().GetInt("ema-len"); v > 0 {
		cfg.EMALen = v
	}
	if v, _ := cmd.Flags().GetString("norm"); v != "" {
		cfg.NormMethod = factors.NormMethod(v)
	}
	if v, _ := cmd.Flags().GetFloat64("winsor-alpha"); v > 0 {
		cfg.WinsorAlpha = v
	}
	if v, _ := cmd.Flags().GetString("var"); v != "" {
		cfg.VarMethod = factors.VarMethod(v)
	}
	return cfg
}

func newMarketOverviewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "overview",
		Short: "Print the market/sentiment dashboard snapshot for an asset",
		RunE:  runMarketOverview,
	}
	cmd.Flags().String("asset", "", "tracked asset symbol (required)")
	cmd.Flags().String("start", "", "RFC3339 start of the overview window (required)")
	cmd.Flags().String("end", "", "RFC3339 end of the overview window (required)")
	cmd.Flags().String("vs", "usd", "quote currency (informational only, candles are already vs-stamped)")
	cmd.Flags().String("format", "table", "output format: table or json")
	cmd.MarkFlagRequired("asset")
	cmd.MarkFlagRequired("start")
	cmd.MarkFlagRequired("end")
	return cmd
}

func runMarketOverview(cmd *cobra.Command, args []string) error {
	asset, _ := cmd.Flags().GetString("asset")
	startStr, _ := cmd.Flags().GetString("start")
	endStr, _ := cmd.Flags().GetString("end")
	format, _ := cmd.Flags().GetString("format")

	start, err := time.Parse(time.RFC3339, startStr)
	if err != nil {
		return fmt.Errorf("invalid --start: %w", err)
	}
	end, err := time.Parse(time.RFC3339, endStr)
	if err != nil {
		return fmt.Errorf("invalid --end: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Minute)
	defer cancel()

	a, err := newApp(ctx, cmd)
	if err != nil {
		return fmt.Errorf("market overview failed: %w", err)
	}
	defer a.Close()

	repos := a.manager.Repositories()
	query := overview.New(repos.Market, repos.Factors, repos.ArticlesView)
	out, err := query.Execute(ctx, asset, start.UTC(), end.UTC())
	if err != nil {
		return fmt.Errorf("market overview failed: %w", err)
	}

	if format == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 2, 2, ' ', 0)
	fmt.Fprintf(w, "asset\t%s\n", out.AssetSymbol)
	fmt.Fprintf(w, "latest_close\t%.2f\n", out.LatestClose)
	fmt.Fprintf(w, "avg_volume\t%.2f\n", out.AvgVolume)
	fmt.Fprintf(w, "avg_market_cap\t%.2f\n", out.AvgMarketCap)
	if out.LatestFactors != nil {
		fmt.Fprintf(w, "latest_factors_day\t%s\n", out.LatestFactors.Day.Format("2006-01-02"))
		fmt.Fprintf(w, "p_alpha\t%s\n", formatFloat2dp(out.LatestFactors.PAlpha))
	}
	fmt.Fprintf(w, "recent_articles\t%d\n", len(out.RecentArticles))
	return w.Flush()
}
