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

// GeminiConfig configures a GeminiClient, grounded on gemini_client.py.
type GeminiConfig struct {
	APIKey             string
	Model              string
	Endpoint           string
	Timeout            time.Duration
	PromptFile         string
	MaxTokens          int
	MaxOutputTokensCap int
	AutoScaleMaxTokens bool
	Temperature        float64
	ResponseMimeType   string
}

// GeminiClient adapts the Gemini generateContent API.
type GeminiClient struct {
	cfg     GeminiConfig
	http    *http.Client
	metrics *metrics.Registry
	breaker *gobreaker.CircuitBreaker
}

// NewGeminiClient constructs a GeminiClient.
func NewGeminiClient(cfg GeminiConfig, httpClient *http.Client, metricsReg *metrics.Registry) *GeminiClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	if cfg.ResponseMimeType == "" {
		cfg.ResponseMimeType = "application/json"
	}
	if cfg.MaxOutputTokensCap == 0 {
		cfg.MaxOutputTokensCap = 2048
	}
	return &GeminiClient{cfg: cfg, http: httpClient, metrics: metricsReg, breaker: circuit.NewModelBreaker("gemini")}
}

func (c *GeminiClient) Model() string { return c.cfg.Model }

type geminiRequest struct {
	Contents         []geminiContent        `json:"contents"`
	GenerationConfig geminiGenerationConfig `json:"generationConfig"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiGenerationConfig struct {
	Temperature      float64 `json:"temperature"`
	MaxOutputTokens  int     `json:"maxOutputTokens"`
	ResponseMimeType string  `json:"response_mime_type"`
}

type geminiResponse struct {
	Candidates []struct {
		FinishReason string `json:"finishReason"`
		Content      struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

func (c *GeminiClient) SummarizeAndScore(ctx context.Context, assetSymbol, articleURL, publishedAt, title string) (domain.Vote, error) {
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
		data, err := c.callOnce(ctx, prompt, maxOut)
		if err != nil {
			return domain.Vote{}, err
		}
		if len(data.Candidates) == 0 {
			return domain.Vote{}, apperrors.TransientUpstream("gemini: empty candidates", nil)
		}
		cand := data.Candidates[0]

		if cand.FinishReason == "MAX_TOKENS" && c.cfg.AutoScaleMaxTokens && maxOut < c.cfg.MaxOutputTokensCap {
			newMax := minInt(c.cfg.MaxOutputTokensCap, maxOut+400)
			if newMax > maxOut {
				maxOut = newMax
				continue
			}
		}

		if len(cand.Content.Parts) == 0 || cand.Content.Parts[0].Text == "" {
			return domain.Vote{}, apperrors.TransientUpstream("gemini: empty response text", nil)
		}

		text := stripJSONFences(cand.Content.Parts[0].Text)
		var resp normalizedResponse
		if err := json.Unmarshal([]byte(text), &resp); err != nil {
			return domain.Vote{}, apperrors.TransientUpstream("gemini: JSON parse failed", err)
		}
		return toVote(c.cfg.Model, resp), nil
	}
}

func (c *GeminiClient) callOnce(ctx context.Context, prompt string, maxOut int) (*geminiResponse, error) {
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
		c.metrics.APIRequestsTotal.WithLabelValues("gemini", outcome).Inc()
		c.metrics.APIRequestDuration.WithLabelValues("gemini").Observe(duration)
	}
	if err != nil {
		return nil, err
	}
	return result.(*geminiResponse), nil
}

func (c *GeminiClient) doRequest(ctx context.Context, prompt string, maxOut int) (*geminiResponse, error) {
	reqBody := geminiRequest{
		Contents: []geminiContent{{Parts: []geminiPart{{Text: prompt}}}},
		GenerationConfig: geminiGenerationConfig{
			Temperature:      c.cfg.Temperature,
			MaxOutputTokens:  maxOut,
			ResponseMimeType: c.cfg.ResponseMimeType,
		},
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal gemini request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/%s:generateContent?key=%s", c.cfg.Endpoint, c.cfg.Model, c.cfg.APIKey)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build gemini request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, apperrors.TransientUpstream("gemini request", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return nil, apperrors.TransientUpstream("gemini", fmt.Errorf("status %d", resp.StatusCode))
	}
	if resp.StatusCode >= 400 {
		return nil, apperrors.PermanentUpstream("gemini", resp.StatusCode)
	}

	var parsed geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, apperrors.TransientUpstream("gemini: decode response", err)
	}
	return &parsed, nil
}
