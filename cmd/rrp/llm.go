package main

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sawpanic/rrp/internal/llm/ensemble"
)

func newLlmCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "llm",
		Short: "Adjudicate harvested news through the LLM ensemble",
	}
	cmd.AddCommand(newLlmProcessCmd())
	return cmd
}

func newLlmProcessCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "process",
		Short: "Drain pending harvests for an asset through the ensemble",
		RunE:  runLlmProcess,
	}
	cmd.Flags().String("asset", "", "tracked asset symbol (required)")
	cmd.Flags().Int("days", 3, "accepted for CLI compatibility; not read by this command")
	cmd.Flags().String("from", "", "accepted for CLI compatibility; not read by this command")
	cmd.Flags().String("to", "", "accepted for CLI compatibility; not read by this command")
	cmd.Flags().Int("limit", 50, "maximum harvests to drain this run")
	cmd.Flags().Bool("parallel", false, "process the batch concurrently")
	cmd.Flags().Int("workers", 4, "worker count when --parallel is set")
	cmd.Flags().Int("rate-limit", 0, "max ensemble calls per minute, 0 disables throttling")
	cmd.Flags().String("export-votes-csv", "", "write every vote cast this run to this CSV path")
	cmd.Flags().Bool("dry-run", false, "run the ensemble and report counters without persisting")
	cmd.MarkFlagRequired("asset")
	return cmd
}

func runLlmProcess(cmd *cobra.Command, args []string) error {
	asset, _ := cmd.Flags().GetString("asset")
	limit, _ := cmd.Flags().GetInt("limit")
	parallel, _ := cmd.Flags().GetBool("parallel")
	workers, _ := cmd.Flags().GetInt("workers")
	rateLimit, _ := cmd.Flags().GetInt("rate-limit")
	exportPath, _ := cmd.Flags().GetString("export-votes-csv")
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	runStart := time.Now().UTC()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	a, err := newApp(ctx, cmd)
	if err != nil {
		return fmt.Errorf("llm process failed: %w", err)
	}
	defer a.Close()

	repos := a.manager.Repositories()
	uc := ensemble.NewUseCase(a.buildAdjudicator(), repos.Articles, repos.DomainPolicy)

	var result ensemble.ProcessResult
	if parallel {
		result, err = uc.ProcessBatchParallel(ctx, asset, limit, workers, rateLimit, dryRun)
	} else {
		result, err = uc.ProcessBatch(ctx, asset, limit, dryRun)
	}
	if err != nil {
		return fmt.Errorf("llm process failed: %w", err)
	}

	log.Info().
		Str("asset", asset).
		Int("processed", result.Processed).
		Int("saved", result.Saved).
		Int("deleted", result.Deleted).
		Int("errors", result.Errors).
		Int("rejected_irrelevant", result.RejectedIrrelevant).
		Msg("llm process complete")

	if exportPath != "" {
		votes, err := repos.Articles.ListVotesForAsset(ctx, asset, runStart)
		if err != nil {
			return fmt.Errorf("llm process: export votes: %w", err)
		}
		if err := writeVotesCSV(exportPath, votes); err != nil {
			return fmt.Errorf("llm process: export votes: %w", err)
		}
		log.Info().Str("path", exportPath).Int("rows", len(votes)).Msg("votes exported")
	}
	return nil
}
