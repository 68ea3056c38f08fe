// Package config loads the enumerated configuration record of spec.md §6
// from YAML, following internal/config/providers.go's
// LoadProvidersConfig + Validate() shape and internal/infrastructure/db's
// environment-variable override convention.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full enumerated configuration record named in spec.md §6.
type Config struct {
	Database     DatabaseConfig     `yaml:"database"`
	Ensemble     EnsembleConfig     `yaml:"ensemble"`
	OpenAI       LlmClientConfig    `yaml:"openai"`
	Gemini       LlmClientConfig    `yaml:"gemini"`
	XAI          LlmClientConfig    `yaml:"xai"`
	Gdelt        GdeltConfig        `yaml:"gdelt"`
	GoogleNews   GoogleNewsConfig   `yaml:"google_news"`
	NewsQuery    NewsQueryConfig    `yaml:"news_query"`
	DomainFilter DomainFilterConfig `yaml:"news_domain_filter"`
	UrlHarvest   UrlHarvestConfig   `yaml:"url_harvest"`
	CoinGecko    CoinGeckoConfig    `yaml:"coingecko"`
}

type DatabaseConfig struct {
	DefaultPath string `yaml:"default_path"`
	DSN         string `yaml:"dsn" env:"PG_DSN"`
}

type EnsembleConfig struct {
	UseOpenAI bool `yaml:"use_openai"`
	UseGemini bool `yaml:"use_gemini"`
	UseXAI    bool `yaml:"use_xai"`
}

type LlmClientConfig struct {
	Model               string        `yaml:"model"`
	Endpoint            string        `yaml:"endpoint"`
	Timeout             time.Duration `yaml:"timeout"`
	PromptFile          string        `yaml:"prompt_file"`
	MaxTokens           int           `yaml:"max_tokens"`
	MaxTokensCap        int           `yaml:"max_tokens_cap"`
	AutoScaleMaxTokens  bool          `yaml:"auto_scale_max_tokens"`
	Temperature         float64       `yaml:"temperature"`
	ResponseFormat      string        `yaml:"response_format"`
	MaxRetries          int           `yaml:"max_retries"`
}

type GdeltConfig struct {
	Enabled    bool          `yaml:"enabled"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
}

type GoogleNewsConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Hl              string        `yaml:"hl"`
	Gl              string        `yaml:"gl"`
	Ceid            string        `yaml:"ceid"`
	Timeout         time.Duration `yaml:"timeout"`
	ResolveRedirects bool         `yaml:"resolve_redirects"`
}

type NewsQueryConfig struct {
	MajorAssetsWithoutContext []string `yaml:"major_assets_without_context"`
	EnforceContextAssets      []string `yaml:"enforce_context_assets"`
}

type DomainFilterConfig struct {
	Enforce bool `yaml:"enforce"`
}

type UrlHarvestConfig struct {
	MaxWorkers int `yaml:"max_workers"`
}

type CoinGeckoConfig struct {
	ApiBase        string        `yaml:"api_base"`
	ApiKey         string        `yaml:"api_key" env:"COINGECKO_API_KEY"`
	Timeout        time.Duration `yaml:"timeout"`
	MaxRetries     int           `yaml:"max_retries"`
	InitialBackoff time.Duration `yaml:"initial_backoff"`
}

// Default returns a configuration with the same conservative defaults the
// original implementation ships (§9 numerics notes, §4.5 transport policy).
func Default() Config {
	return Config{
		Database: DatabaseConfig{DefaultPath: "rrp.db"},
		Ensemble: EnsembleConfig{UseOpenAI: true, UseGemini: true, UseXAI: true},
		OpenAI:   LlmClientConfig{Model: "gpt-5", Timeout: 20 * time.Second, MaxTokens: 800, MaxTokensCap: 4000, AutoScaleMaxTokens: true, MaxRetries: 3},
		Gemini:   LlmClientConfig{Model: "gemini-2.5-flash", Timeout: 20 * time.Second, MaxTokens: 800, MaxTokensCap: 4000, AutoScaleMaxTokens: true, MaxRetries: 3},
		XAI:      LlmClientConfig{Model: "grok-4", Timeout: 20 * time.Second, MaxTokens: 800, MaxTokensCap: 4000, AutoScaleMaxTokens: true, MaxRetries: 3},
		Gdelt:    GdeltConfig{Enabled: true, Timeout: 30 * time.Second, MaxRetries: 3},
		GoogleNews: GoogleNewsConfig{
			Enabled: true, Hl: "en-US", Gl: "US", Ceid: "US:en",
			Timeout: 20 * time.Second, ResolveRedirects: true,
		},
		NewsQuery: NewsQueryConfig{
			MajorAssetsWithoutContext: []string{"BTC", "ETH"},
		},
		UrlHarvest: UrlHarvestConfig{MaxWorkers: 4},
		CoinGecko: CoinGeckoConfig{
			ApiBase: "https://api.coingecko.com/api/v3", Timeout: 20 * time.Second,
			MaxRetries: 3, InitialBackoff: time.Second,
		},
	}
}

// Load reads configPath (if it exists) over the defaults, then applies
// environment variable overrides for credentials and DSNs.
func Load(configPath string) (*Config, error) {
	cfg := Default()

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			data, err := os.ReadFile(configPath)
			if err != nil {
				return nil, fmt.Errorf("read config %s: %w", configPath, err)
			}
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", configPath, err)
			}
		}
	}

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if dsn := os.Getenv("PG_DSN"); dsn != "" {
		cfg.Database.DSN = dsn
	}
	if key := os.Getenv("COINGECKO_API_KEY"); key != "" {
		cfg.CoinGecko.ApiKey = key
	}
	if base := os.Getenv("COINGECKO_API_BASE"); base != "" {
		cfg.CoinGecko.ApiBase = base
	}
}

// Validate enforces the invariants required for the config to be usable.
func (c *Config) Validate() error {
	if c.UrlHarvest.MaxWorkers <= 0 {
		return fmt.Errorf("url_harvest.max_workers must be positive, got %d", c.UrlHarvest.MaxWorkers)
	}
	return nil
}

// OpenAIAPIKey reads OPENAI_API_KEY from the environment.
func OpenAIAPIKey() string { return os.Getenv("OPENAI_API_KEY") }

// GeminiAPIKey reads GEMINI_API_KEY from the environment.
func GeminiAPIKey() string { return os.Getenv("GEMINI_API_KEY") }

// XAIAPIKey reads XAI_API_KEY from the environment.
func XAIAPIKey() string { return os.Getenv("XAI_API_KEY") }
