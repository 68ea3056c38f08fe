package main

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sawpanic/rrp/internal/news/harvest"
)

func newNewsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "news",
		Short: "Harvest news and manage the domain allow/deny policy",
	}
	cmd.AddCommand(newNewsHarvestCmd())
	cmd.AddCommand(newNewsDomainCmd())
	return cmd
}

func newNewsHarvestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "harvest",
		Short: "Harvest news documents for an asset from every enabled source",
		RunE:  runNewsHarvest,
	}
	cmd.Flags().String("asset", "", "tracked asset symbol, e.g. BTC (required)")
	cmd.Flags().Int("days", 3, "how many days back to harvest, if --from/--to are not set")
	cmd.Flags().String("from", "", "RFC3339 start of the harvest window")
	cmd.Flags().String("to", "", "RFC3339 end of the harvest window")
	cmd.Flags().Int("limit", 100, "maximum documents to request per source")
	cmd.Flags().String("source", "all", "which source to use: all, gdelt, or rss")
	cmd.Flags().Int("rss-workers", 0, "override url_harvest.max_workers for redirect resolution, 0 keeps the config default")
	cmd.Flags().Bool("auto-migrate", true, "run pending schema migrations before harvesting (the connection pool always does this)")
	cmd.Flags().Bool("enforce-domain-filter", false, "override news_domain_filter.enforce for this run")
	cmd.MarkFlagRequired("asset")
	return cmd
}

func runNewsHarvest(cmd *cobra.Command, args []string) error {
	asset, _ := cmd.Flags().GetString("asset")
	limit, _ := cmd.Flags().GetInt("limit")
	source, _ := cmd.Flags().GetString("source")
	rssWorkers, _ := cmd.Flags().GetInt("rss-workers")
	enforceDomainFilter, _ := cmd.Flags().GetBool("enforce-domain-filter")

	start, end, err := resolveDateRange(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	a, err := newApp(ctx, cmd)
	if err != nil {
		return fmt.Errorf("news harvest failed: %w", err)
	}
	defer a.Close()

	if rssWorkers > 0 {
		a.cfg.UrlHarvest.MaxWorkers = rssWorkers
	}
	if enforceDomainFilter {
		a.cfg.DomainFilter.Enforce = true
	}

	orchestrator := a.buildOrchestrator(source)
	summary := orchestrator.Run(ctx, harvest.Criteria{
		AssetSymbol: asset,
		Start:       start,
		End:         end,
		Limit:       limit,
	})

	log.Info().
		Str("asset", asset).
		Int("total_docs", summary.TotalDocs).
		Int("after_assemble", summary.AfterAssemble).
		Int("after_dedupe", summary.AfterDedupe).
		Int("saved", summary.Saved).
		Int("skipped_duplicates", summary.SkippedDuplicates).
		Int("rejected_invalid", summary.RejectedInvalid).
		Msg("news harvest complete")
	return nil
}

func newNewsDomainCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "domain",
		Short: "Manage the per-asset news domain allow/deny policy",
	}
	cmd.AddCommand(newNewsDomainSetCmd("allow", true))
	cmd.AddCommand(newNewsDomainSetCmd("deny", false))
	cmd.AddCommand(newNewsDomainStatsCmd())
	return cmd
}

func newNewsDomainSetCmd(use string, allowed bool) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use + " <domain>",
		Short: fmt.Sprintf("%s a domain for an asset", use),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			asset, _ := cmd.Flags().GetString("asset")
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			a, err := newApp(ctx, cmd)
			if err != nil {
				return fmt.Errorf("news domain %s failed: %w", use, err)
			}
			defer a.Close()

			if err := a.manager.Repositories().DomainPolicy.SetPolicy(ctx, asset, args[0], allowed); err != nil {
				return fmt.Errorf("news domain %s failed: %w", use, err)
			}
			log.Info().Str("asset", asset).Str("domain", args[0]).Bool("allowed", allowed).Msg("domain policy updated")
			return nil
		},
	}
	cmd.Flags().String("asset", "", "tracked asset symbol (required)")
	cmd.MarkFlagRequired("asset")
	return cmd
}

func newNewsDomainStatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print per-domain harvest/adjudication stats for an asset",
		RunE: func(cmd *cobra.Command, args []string) error {
			asset, _ := cmd.Flags().GetString("asset")
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			a, err := newApp(ctx, cmd)
			if err != nil {
				return fmt.Errorf("news domain stats failed: %w", err)
			}
			defer a.Close()

			rows, err := a.manager.Repositories().DomainPolicy.Stats(ctx, asset)
			if err != nil {
				return fmt.Errorf("news domain stats failed: %w", err)
			}
			for _, r := range rows {
				fmt.Printf("%-12s harvested=%-6d stored=%-6d llm_accepted=%-6d llm_rejected=%-6d\n",
					r.Domain, r.HarvestedTotal, r.StoredTotal, r.LlmAccepted, r.LlmRejected)
			}
			return nil
		},
	}
	cmd.Flags().String("asset", "", "tracked asset symbol (required)")
	cmd.MarkFlagRequired("asset")
	return cmd
}
