package main

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/sawpanic/rrp/internal/llm"
	"github.com/sawpanic/rrp/internal/llm/ensemble"
	"github.com/sawpanic/rrp/internal/market/coingecko"
	"github.com/sawpanic/rrp/internal/news/harvest"
	"github.com/sawpanic/rrp/internal/news/query"
	"github.com/sawpanic/rrp/internal/news/resolver"
	"github.com/sawpanic/rrp/internal/news/sources"
	"github.com/sawpanic/rrp/internal/persistence/postgres"
	"github.com/sawpanic/rrp/internal/platform/config"
	"github.com/sawpanic/rrp/internal/platform/metrics"
)

// app bundles the process-wide state every command handler needs, built
// once per invocation from --config/--db, mirroring the way
// cmd/cryptorun/main.go's handlers pull a freshly constructed
// application.* collaborator rather than sharing global state.
type app struct {
	cfg     *config.Config
	manager *postgres.Manager
	metrics *metrics.Registry
}

func newApp(ctx context.Context, cmd *cobra.Command) (*app, error) {
	configPath, _ := cmd.Flags().GetString("config")
	dsnOverride, _ := cmd.Flags().GetString("db")

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if dsnOverride != "" {
		cfg.Database.DSN = dsnOverride
	}

	mgrCfg := postgres.DefaultConfig()
	mgrCfg.DSN = cfg.Database.DSN
	manager, err := postgres.NewManager(ctx, mgrCfg)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	reg := metrics.NewRegistry(prometheus.DefaultRegisterer)

	return &app{cfg: cfg, manager: manager, metrics: reg}, nil
}

func (a *app) Close() {
	if a.manager != nil {
		a.manager.Close()
	}
}

// queryTimeout is the per-call context.WithTimeout budget repositories
// built outside the Manager bundle (the asset registry) should share with
// the ones inside it.
func (a *app) queryTimeout() time.Duration {
	return postgres.DefaultConfig().QueryTimeout
}

// buildQueryBuilder constructs the shared query.Builder against the
// Postgres-backed asset registry.
func (a *app) buildQueryBuilder() *query.Builder {
	registry := postgres.NewAssetRegistryRepo(a.manager.DB(), a.queryTimeout())
	return query.NewBuilder(registry, query.DefaultBuildParams())
}

// buildSources constructs the configured News Source Adapters, filtered
// by sourceFilter ("all", "gdelt", or "rss").
func (a *app) buildSources(sourceFilter string) []harvest.Source {
	qb := a.buildQueryBuilder()
	res := resolver.NewResolver(a.cfg.GoogleNews.Timeout, a.metrics)

	majorAssets := toSet(a.cfg.NewsQuery.MajorAssetsWithoutContext)
	enforceContext := toSet(a.cfg.NewsQuery.EnforceContextAssets)

	var out []harvest.Source
	if (sourceFilter == "all" || sourceFilter == "gdelt") && a.cfg.Gdelt.Enabled {
		out = append(out, sources.NewGdeltClient(sources.GdeltConfig{
			Timeout:                   a.cfg.Gdelt.Timeout,
			MaxRetries:                a.cfg.Gdelt.MaxRetries,
			MajorAssetsWithoutContext: majorAssets,
			EnforceContextAssets:      enforceContext,
		}, nil, a.metrics, qb))
	}
	if (sourceFilter == "all" || sourceFilter == "rss") && a.cfg.GoogleNews.Enabled {
		out = append(out, sources.NewGoogleNewsRSSClient(sources.GoogleNewsRSSConfig{
			Hl:                        a.cfg.GoogleNews.Hl,
			Gl:                        a.cfg.GoogleNews.Gl,
			Ceid:                      a.cfg.GoogleNews.Ceid,
			Timeout:                   a.cfg.GoogleNews.Timeout,
			ResolveRedirects:          a.cfg.GoogleNews.ResolveRedirects,
			MajorAssetsWithoutContext: majorAssets,
			EnforceContextAssets:      enforceContext,
		}, nil, a.metrics, res))
	}
	return out
}

func (a *app) buildOrchestrator(sourceFilter string) *harvest.Orchestrator {
	repos := a.manager.Repositories()
	return harvest.NewOrchestrator(a.buildSources(sourceFilter), repos.News, repos.DomainPolicy, a.cfg.DomainFilter.Enforce)
}

func (a *app) buildAdjudicator() *ensemble.Adjudicator {
	var clients []llm.Client

	if a.cfg.Ensemble.UseOpenAI && config.OpenAIAPIKey() != "" {
		clients = append(clients, llm.NewOpenAIClient(llm.OpenAIConfig{
			APIKey:             config.OpenAIAPIKey(),
			Model:              a.cfg.OpenAI.Model,
			Endpoint:           a.cfg.OpenAI.Endpoint,
			Timeout:            a.cfg.OpenAI.Timeout,
			PromptFile:         a.cfg.OpenAI.PromptFile,
			MaxTokens:          a.cfg.OpenAI.MaxTokens,
			MaxTokensCap:       a.cfg.OpenAI.MaxTokensCap,
			AutoScaleMaxTokens: a.cfg.OpenAI.AutoScaleMaxTokens,
			Temperature:        a.cfg.OpenAI.Temperature,
			ResponseFormat:     a.cfg.OpenAI.ResponseFormat,
		}, nil, a.metrics))
	}
	if a.cfg.Ensemble.UseGemini && config.GeminiAPIKey() != "" {
		clients = append(clients, llm.NewGeminiClient(llm.GeminiConfig{
			APIKey:             config.GeminiAPIKey(),
			Model:              a.cfg.Gemini.Model,
			Endpoint:           a.cfg.Gemini.Endpoint,
			Timeout:            a.cfg.Gemini.Timeout,
			PromptFile:         a.cfg.Gemini.PromptFile,
			MaxTokens:          a.cfg.Gemini.MaxTokens,
			MaxOutputTokensCap: a.cfg.Gemini.MaxTokensCap,
			AutoScaleMaxTokens: a.cfg.Gemini.AutoScaleMaxTokens,
			Temperature:        a.cfg.Gemini.Temperature,
		}, nil, a.metrics))
	}
	if a.cfg.Ensemble.UseXAI && config.XAIAPIKey() != "" {
		clients = append(clients, llm.NewXAIClient(llm.XAIConfig{
			APIKey:             config.XAIAPIKey(),
			Model:              a.cfg.XAI.Model,
			Endpoint:           a.cfg.XAI.Endpoint,
			Timeout:            a.cfg.XAI.Timeout,
			PromptFile:         a.cfg.XAI.PromptFile,
			MaxRetries:         a.cfg.XAI.MaxRetries,
			MaxTokens:          a.cfg.XAI.MaxTokens,
			MaxTokensCap:       a.cfg.XAI.MaxTokensCap,
			AutoScaleMaxTokens: a.cfg.XAI.AutoScaleMaxTokens,
			Temperature:        a.cfg.XAI.Temperature,
		}, nil, a.metrics))
	}

	return ensemble.New(clients...)
}

func (a *app) buildCoinGeckoClient() *coingecko.Client {
	return coingecko.NewClient(coingecko.Config{
		APIBase:        a.cfg.CoinGecko.ApiBase,
		APIKey:         a.cfg.CoinGecko.ApiKey,
		Timeout:        a.cfg.CoinGecko.Timeout,
		MaxRetries:     a.cfg.CoinGecko.MaxRetries,
		InitialBackoff: a.cfg.CoinGecko.InitialBackoff,
	}, nil, a.metrics)
}

func toSet(values []string) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[v] = true
	}
	return set
}

// resolveDateRange implements the "--days N | --from ISO --to ISO" flag
// pair every batch command shares: an explicit --from/--to window wins,
// otherwise --days counts back from now (UTC).
func resolveDateRange(cmd *cobra.Command) (start, end time.Time, err error) {
	days, _ := cmd.Flags().GetInt("days")
	fromStr, _ := cmd.Flags().GetString("from")
	toStr, _ := cmd.Flags().GetString("to")

	end = time.Now().UTC()
	start = end.AddDate(0, 0, -days)

	if fromStr != "" {
		start, err = time.Parse(time.RFC3339, fromStr)
		if err != nil {
			return start, end, fmt.Errorf("invalid --from: %w", err)
		}
	}
	if toStr != "" {
		end, err = time.Parse(time.RFC3339, toStr)
		if err != nil {
			return start, end, fmt.Errorf("invalid --to: %w", err)
		}
	}
	return start.UTC(), end.UTC(), nil
}
