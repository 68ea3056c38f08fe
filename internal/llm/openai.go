package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"github.com/sawpanic/rrp/internal/apperrors"
	"github.com/sawpanic/rrp/internal/domain"
	"github.com/sawpanic/rrp/internal/platform/circuit"
	"github.com/sawpanic/rrp/internal/platform/metrics"
)

// OpenAIConfig configures an OpenAIClient, grounded on openai_client.py's
// dataclass fields.
type OpenAIConfig struct {
	APIKey             string
	Model              string
	FallbackModel      string
	Endpoint           string
	Timeout            time.Duration
	PromptFile         string
	MaxTokens          int
	MaxTokensCap       int
	AutoScaleMaxTokens bool
	Temperature        float64
	ResponseFormat     string
}

// OpenAIClient adapts the OpenAI chat completions API.
type OpenAIClient struct {
	cfg     OpenAIConfig
	http    *http.Client
	metrics *metrics.Registry
	breaker *gobreaker.CircuitBreaker
}

// NewOpenAIClient constructs an OpenAIClient with a dedicated circuit
// breaker per spec.md §4.5's transport resilience policy.
func NewOpenAIClient(cfg OpenAIConfig, httpClient *http.Client, metricsReg *metrics.Registry) *OpenAIClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	if cfg.ResponseFormat == "" {
		cfg.ResponseFormat = "json_object"
	}
	if cfg.MaxTokensCap == 0 {
		cfg.MaxTokensCap = 4096
	}
	return &OpenAIClient{cfg: cfg, http: httpClient, metrics: metricsReg, breaker: circuit.NewModelBreaker("openai")}
}

func (c *OpenAIClient) Model() string { return c.cfg.Model }

type openAIChatRequest struct {
	Model          string               `json:"model"`
	Messages       []openAIChatMessage  `json:"messages"`
	MaxTokens      int                  `json:"max_tokens"`
	Temperature    float64              `json:"temperature"`
	ResponseFormat openAIResponseFormat `json:"response_format"`
}

type openAIChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIResponseFormat struct {
	Type string `json:"type"`
}

type openAIChatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (c *OpenAIClient) SummarizeAndScore(ctx context.Context, assetSymbol, articleURL, publishedAt, title string) (domain.Vote, error) {
	template, err := readPromptFile(c.cfg.PromptFile)
	if err != nil {
		return domain.Vote{}, err
	}
	prompt := buildUserPrompt(template, assetSymbol, articleURL, publishedAt, title)

	maxOut := c.cfg.MaxTokens
	if maxOut < 64 {
		maxOut = 64
	}

	return c.runWithModel(ctx, c.cfg.Model, prompt, maxOut)
}

func (c *OpenAIClient) runWithModel(ctx context.Context, model, prompt string, maxOut int) (domain.Vote, error) {
	for {
		content, err := c.callOnce(ctx, model, prompt, maxOut)
		if err != nil {
			if c.cfg.FallbackModel != "" && model != c.cfg.FallbackModel {
				log.Warn().Err(err).Str("model", model).Msg("openai: falling back to secondary model")
				return c.runWithModel(ctx, c.cfg.FallbackModel, prompt, maxOut)
			}
			return domain.Vote{}, err
		}

		parsed := stripJSONFences(content)
		var resp normalizedResponse
		if jsonErr := json.Unmarshal([]byte(parsed), &resp); jsonErr != nil {
			if c.cfg.AutoScaleMaxTokens && maxOut < c.cfg.MaxTokensCap {
				maxOut = minInt(c.cfg.MaxTokensCap, maxOut+400)
				continue
			}
			return domain.Vote{}, apperrors.TransientUpstream(fmt.Sprintf("openai(%s): JSON parse failed", model), jsonErr)
		}
		return toVote(model, resp), nil
	}
}

func (c *OpenAIClient) callOnce(ctx context.Context, model, prompt string, maxOut int) (string, error) {
	t0 := time.Now()
	result, err := c.breaker.Execute(func() (any, error) {
		return c.doRequest(ctx, model, prompt, maxOut)
	})
	duration := time.Since(t0).Seconds()

	if c.metrics != nil {
		outcome := "success"
		if err != nil {
			outcome = "error"
		}
		c.metrics.APIRequestsTotal.WithLabelValues("openai", outcome).Inc()
		c.metrics.APIRequestDuration.WithLabelValues("openai").Observe(duration)
	}
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

func (c *OpenAIClient) doRequest(ctx context.Context, model, prompt string, maxOut int) (string, error) {
	reqBody := openAIChatRequest{
		Model: model,
		Messages: []openAIChatMessage{
			{Role: "system", Content: "You are a precise financial analyst."},
			{Role: "user", Content: prompt},
		},
		MaxTokens:      maxOut,
		Temperature:    c.cfg.Temperature,
		ResponseFormat: openAIResponseFormat{Type: c.cfg.ResponseFormat},
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal openai request: %w", err)
	}

	endpoint := c.cfg.Endpoint + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build openai request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", apperrors.TransientUpstream("openai request", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return "", apperrors.TransientUpstream("openai", fmt.Errorf("status %d", resp.StatusCode))
	}
	if resp.StatusCode >= 400 {
		return "", apperrors.PermanentUpstream("openai", resp.StatusCode)
	}

	var parsed openAIChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", apperrors.TransientUpstream("openai: decode response", err)
	}
	if len(parsed.Choices) == 0 {
		return "", apperrors.TransientUpstream("openai: empty choices", nil)
	}
	return parsed.Choices[0].Message.Content, nil
}

func readPromptFile(path string) (string, error) {
	if path == "" {
		return "", missingPromptFile(path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", missingPromptFile(path)
	}
	return string(data), nil
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
