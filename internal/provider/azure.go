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

const azureAPIVersion = "2024-02-15-preview"

// azureClient talks to an Azure OpenAI deployment. Requests carry the key in
// the api-key header and address a named deployment rather than a model.
type azureClient struct {
	apiKey     string
	endpoint   string
	deployment string
	opts       Options
	httpClient *http.Client
}

func newAzureClient(m models.TeamModel, opts Options) *azureClient {
	return &azureClient{
		apiKey:     m.APIKey,
		endpoint:   strings.TrimRight(m.Endpoint, "/"),
		deployment: m.Deployment,
		opts:       opts,
		httpClient: &http.Client{Timeout: opts.Timeout},
	}
}

func (c *azureClient) Generate(ctx context.Context, query string, chunks []models.Chunk) (string, error) {
	return c.complete(ctx, researchPrompt(query, chunks))
}

func (c *azureClient) Summarize(ctx context.Context, findings []models.Finding) (string, error) {
	return c.complete(ctx, summaryPrompt(findings))
}

func (c *azureClient) complete(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		Temperature: c.opts.Temperature,
		MaxTokens:   c.opts.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/openai/deployments/%s/chat/completions?api-version=%s", c.endpoint, c.deployment, azureAPIVersion)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("azure openai API returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("parse response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("azure openai API returned no choices")
	}
	return parsed.Choices[0].Message.Content, nil
}
