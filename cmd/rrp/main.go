// Command rrp is the crypto-news-to-factor pipeline CLI named in spec.md
// §6, grounded on cmd/cryptorun/main.go's cobra construction and zerolog
// bootstrap.
package main

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const appName = "rrp"

// version is set by -ldflags at release build time; "dev" otherwise.
var version = "dev"

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	root := buildRootCmd()
	if err := root.Execute(); err != nil {
		log.Error().Err(err).Msg("rrp: command failed")
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:     appName,
		Short:   "Crypto news harvesting, LLM adjudication, and market factor pipeline",
		Version: version,
		Long: appName + ` harvests crypto-relevant news from GDELT and Google News,
adjudicates it through an OpenAI/Gemini/xAI ensemble, ingests market data
from CoinGecko, and computes daily sentiment-blended market factors.`,
	}

	root.PersistentFlags().String("config", "", "path to a YAML config file (optional, overlays defaults)")
	root.PersistentFlags().String("db", "", "Postgres DSN override (defaults to config/PG_DSN)")
	root.PersistentFlags().Bool("verbose", false, "enable debug logging")

	root.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		verbose, _ := cmd.Flags().GetBool("verbose")
		if verbose {
			zerolog.SetGlobalLevel(zerolog.DebugLevel)
		} else {
			zerolog.SetGlobalLevel(zerolog.InfoLevel)
		}
	}

	// Subcommand groups, added in the order a new operator would reach for
	// them: harvest news, adjudicate it, ingest market data, compute
	// factors, then read the dashboard back.
	root.AddCommand(newNewsCmd())
	root.AddCommand(newLlmCmd())
	root.AddCommand(newMarketCmd())

	return root
}
