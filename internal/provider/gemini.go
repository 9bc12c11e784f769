package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/quillon/docresearch/models"
)

const defaultGeminiBaseURL = "https://generativelanguage.googleapis.com"

// geminiClient talks to the Google Gemini generateContent API.
type geminiClient struct {
	apiKey     string
	model      string
	baseURL    string
	opts       Options
	httpClient *http.Client
}

func newGeminiClient(m models.TeamModel, opts Options) *geminiClient {
	base := m.Endpoint
	if base == "" {
		base = defaultGeminiBaseURL
	}
	model := m.Model
	if model == "" {
		model = "gemini-1.5-pro"
	}
	return &geminiClient{
		apiKey:     m.APIKey,
		model:      model,
		baseURL:    strings.TrimRight(base, "/"),
		opts:       opts,
		httpClient: &http.Client{Timeout: opts.Timeout},
	}
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
}

type geminiRequest struct {
	Contents         []geminiContent        `json:"contents"`
	GenerationConfig geminiGenerationConfig `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

func (c *geminiClient) Generate(ctx context.Context, query string, chunks []models.Chunk) (string, error) {
	return c.complete(ctx, researchPrompt(query, chunks))
}

func (c *geminiClient) Summarize(ctx context.Context, findings []models.Finding) (string, error) {
	return c.complete(ctx, summaryPrompt(findings))
}

func (c *geminiClient) complete(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(geminiRequest{
		Contents: []geminiContent{{Parts: []geminiPart{{Text: prompt}}}},
		GenerationConfig: geminiGenerationConfig{
			Temperature:     c.opts.Temperature,
			MaxOutputTokens: c.opts.MaxTokens,
		},
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s", c.baseURL, c.model, c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("gemini API returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var parsed geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("parse response: %w", err)
	}
	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("gemini API returned no candidates")
	}
	return parsed.Candidates[0].Content.Parts[0].Text, nil
}
