package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	"github.com/sawpanic/rrp/internal/apperrors"
	"github.com/sawpanic/rrp/internal/domain"
	"github.com/sawpanic/rrp/internal/platform/circuit"
	"github.com/sawpanic/rrp/internal/platform/metrics"
)

// XAIConfig configures an XAIClient, grounded on xai_client.py.
//
// The original also scrapes the article's visible paragraph text
// (BeautifulSoup) into a {{url_content}} placeholder before calling the
// model. No HTML-parsing library appears anywhere in the retrieval pack,
// so that enrichment step is dropped here; the prompt carries the same
// asset/url/published_at/title fields the other two clients use. See
// DESIGN.md.
type XAIConfig struct {
	APIKey             string
	Model              string
	Endpoint           string
	Timeout            time.Duration
	PromptFile         string
	MaxRetries         int
	MaxTokens          int
	MaxTokensCap       int
	AutoScaleMaxTokens bool
	Temperature        float64
}

// XAIClient adapts the xAI (Grok) chat completions API.
type XAIClient struct {
	cfg     XAIConfig
	http    *http.Client
	metrics *metrics.Registry
	breaker *gobreaker.CircuitBreaker
}

// NewXAIClient constructs an XAIClient.
func NewXAIClient(cfg XAIConfig, httpClient *http.Client, metricsReg *metrics.Registry) *XAIClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.MaxTokensCap == 0 {
		cfg.MaxTokensCap = 4096
	}
	return &XAIClient{cfg: cfg, http: httpClient, metrics: metricsReg, breaker: circuit.NewModelBreaker("xai")}
}

func (c *XAIClient) Model() string { return c.cfg.Model }

type xaiRequest struct {
	Model          string              `json:"model"`
	Messages       []openAIChatMessage `json:"messages"`
	Temperature    float64             `json:"temperature"`
	MaxTokens      int                 `json:"max_tokens"`
	ResponseFormat xaiResponseFormat   `json:"response_format"`
}

type xaiResponseFormat struct {
	Type       string        `json:"type"`
	JSONSchema xaiJSONSchema `json:"json_schema"`
	Strict     bool          `json:"strict"`
}

type xaiJSONSchema struct {
	Name   string         `json:"name"`
	Schema map[string]any `json:"schema"`
}

var xaiAnalysisSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"relevance": map[string]any{"type": "boolean"},
		"summary":   map[string]any{"type": "string"},
		"sentiment": map[string]any{"type": "number", "minimum": -1, "maximum": 1},
	},
	"required":             []string{"relevance", "summary", "sentiment"},
	"additionalProperties": false,
}

func (c *XAIClient) SummarizeAndScore(ctx context.Context, assetSymbol, articleURL, publishedAt, title string) (domain.Vote, error) {
	if assetSymbol == "" {
		return domain.Vote{}, apperrors.Validation("asset_symbol must not be empty")
	}
	if articleURL == "" {
		return domain.Vote{}, apperrors.Validation("url must not be empty")
	}

	template, err := readPromptFile(c.cfg.PromptFile)
	if err != nil {
		return domain.Vote{}, err
	}
	prompt := buildUserPrompt(template, assetSymbol, articleURL, publishedAt, title)

	maxOut := c.cfg.MaxTokens
	if maxOut < 64 {
		maxOut = 64
	}

	for {
		content, err := c.callWithRetry(ctx, prompt, maxOut)
		if err != nil {
			return domain.Vote{}, err
		}

		text := stripJSONFences(content)
		var resp normalizedResponse
		if jsonErr := json.Unmarshal([]byte(text), &resp); jsonErr != nil {
			if c.cfg.AutoScaleMaxTokens && maxOut < c.cfg.MaxTokensCap {
				maxOut = minInt(c.cfg.MaxTokensCap, maxOut+400)
				continue
			}
			return domain.Vote{}, apperrors.TransientUpstream("xai: JSON parse failed", jsonErr)
		}
		return toVote(c.cfg.Model, resp), nil
	}
}

func (c *XAIClient) callWithRetry(ctx context.Context, prompt string, maxOut int) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= c.cfg.MaxRetries; attempt++ {
		content, err := c.callOnce(ctx, prompt, maxOut)
		if err == nil {
			return content, nil
		}
		lastErr = err
		if !apperrors.IsRetryable(err) {
			return "", err
		}
	}
	return "", apperrors.TransientUpstream(fmt.Sprintf("xai: failed after %d attempts", c.cfg.MaxRetries), lastErr)
}

func (c *XAIClient) callOnce(ctx context.Context, prompt string, maxOut int) (string, error) {
	t0 := time.Now()
	result, err := c.breaker.Execute(func() (any, error) {
		return c.doRequest(ctx, prompt, maxOut)
	})
	duration := time.Since(t0).Seconds()

	if c.metrics != nil {
		outcome := "success"
		if err != nil {
			outcome = "error"
		}
		c.metrics.APIRequestsTotal.WithLabelValues("xai", outcome).Inc()
		c.metrics.APIRequestDuration.WithLabelValues("xai").Observe(duration)
	}
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

func (c *XAIClient) doRequest(ctx context.Context, prompt string, maxOut int) (string, error) {
	reqBody := xaiRequest{
		Model: c.cfg.Model,
		Messages: []openAIChatMessage{
			{Role: "system", Content: "You are a precise financial analyst."},
			{Role: "user", Content: prompt},
		},
		Temperature: c.cfg.Temperature,
		MaxTokens:   maxOut,
		ResponseFormat: xaiResponseFormat{
			Type:       "json_schema",
			JSONSchema: xaiJSONSchema{Name: "analysis_response", Schema: xaiAnalysisSchema},
			Strict:     true,
		},
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal xai request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build xai request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", apperrors.TransientUpstream("xai request", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return "", apperrors.TransientUpstream("xai", fmt.Errorf("status %d", resp.StatusCode))
	}
	if resp.StatusCode >= 400 {
		return "", apperrors.PermanentUpstream("xai", resp.StatusCode)
	}

	var parsed openAIChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", apperrors.TransientUpstream("xai: decode response", err)
	}
	if len(parsed.Choices) == 0 {
		return "", apperrors.TransientUpstream("xai: empty choices", nil)
	}
	return parsed.Choices[0].Message.Content, nil
}
