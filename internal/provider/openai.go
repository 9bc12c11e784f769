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

const defaultOpenAIBaseURL = "https://api.openai.com/v1"

// openaiClient talks to the OpenAI chat completions API.
type openaiClient struct {
	apiKey     string
	model      string
	baseURL    string
	opts       Options
	httpClient *http.Client
}

func newOpenAIClient(m models.TeamModel, opts Options) *openaiClient {
	base := m.Endpoint
	if base == "" {
		base = defaultOpenAIBaseURL
	}
	model := m.Model
	if model == "" {
		model = "gpt-4o"
	}
	return &openaiClient{
		apiKey:     m.APIKey,
		model:      model,
		baseURL:    strings.TrimRight(base, "/"),
		opts:       opts,
		httpClient: &http.Client{Timeout: opts.Timeout},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (c *openaiClient) Generate(ctx context.Context, query string, chunks []models.Chunk) (string, error) {
	return c.complete(ctx, researchPrompt(query, chunks))
}

func (c *openaiClient) Summarize(ctx context.Context, findings []models.Finding) (string, error) {
	return c.complete(ctx, summaryPrompt(findings))
}

func (c *openaiClient) complete(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model:       c.model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		Temperature: c.opts.Temperature,
		MaxTokens:   c.opts.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("openai API returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("parse response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("openai API returned no choices")
	}
	return parsed.Choices[0].Message.Content, nil
}
