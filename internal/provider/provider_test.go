package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/quillon/docresearch/models"
)

func TestNewRequiresCredential(t *testing.T) {
	if _, err := New(models.TeamModel{Provider: models.ProviderOpenAI}, Options{}); !errors.Is(err, ErrNoCredential) {
		t.Fatalf("expected ErrNoCredential, got %v", err)
	}
}

func TestNewRejectsUnknownProvider(t *testing.T) {
	if _, err := New(models.TeamModel{Provider: "anthropic", APIKey: "k"}, Options{}); err == nil {
		t.Fatalf("expected error for unknown provider")
	}
}

func TestNewAzureRequiresEndpointAndDeployment(t *testing.T) {
	_, err := New(models.TeamModel{Provider: models.ProviderAzure, APIKey: "k", Endpoint: "https://x"}, Options{})
	if err == nil {
		t.Fatalf("expected error for azure credential without deployment")
	}
}

func TestOpenAIGenerate(t *testing.T) {
	var gotAuth string
	var gotBody chatRequest
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode body: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"content": "generated text"}},
			},
		})
	}))
	defer ts.Close()

	gen, err := New(models.TeamModel{
		Provider: models.ProviderOpenAI,
		APIKey:   "sk-test",
		Endpoint: ts.URL,
		Model:    "gpt-4o-mini",
	}, Options{MaxTokens: 256, Temperature: 0.2})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	chunks := []models.Chunk{{Content: "chunk text"}}
	out, err := gen.Generate(context.Background(), "what is X", chunks)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if out != "generated text" {
		t.Fatalf("unexpected output %q", out)
	}
	if gotAuth != "Bearer sk-test" {
		t.Fatalf("unexpected auth header %q", gotAuth)
	}
	if gotBody.Model != "gpt-4o-mini" || gotBody.MaxTokens != 256 {
		t.Fatalf("unexpected request body: %+v", gotBody)
	}
	if len(gotBody.Messages) != 1 {
		t.Fatalf("expected one message, got %d", len(gotBody.Messages))
	}
	prompt := gotBody.Messages[0].Content
	if !strings.HasPrefix(prompt, "what is X\n\nExcerpt: ") {
		t.Fatalf("prompt must lead with the query and excerpt marker: %q", prompt)
	}
	if !strings.Contains(prompt, "chunk text") {
		t.Fatalf("prompt must carry the chunk content: %q", prompt)
	}
}

func TestOpenAISummarizePrompt(t *testing.T) {
	var gotBody chatRequest
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"content": "the summary"}},
			},
		})
	}))
	defer ts.Close()

	gen, err := New(models.TeamModel{Provider: models.ProviderOpenAI, APIKey: "sk", Endpoint: ts.URL}, Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	findings := []models.Finding{{Title: "Doc", Page: "1", Content: "f1"}}
	out, err := gen.Summarize(context.Background(), findings)
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if out != "the summary" {
		t.Fatalf("unexpected output %q", out)
	}
	prompt := gotBody.Messages[0].Content
	if !strings.HasPrefix(prompt, "Create a summary based on the following findings: ") {
		t.Fatalf("unexpected summary prompt: %q", prompt)
	}
}

func TestOpenAIErrorStatusSurfaces(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"rate limited"}`, http.StatusTooManyRequests)
	}))
	defer ts.Close()

	gen, err := New(models.TeamModel{Provider: models.ProviderOpenAI, APIKey: "sk", Endpoint: ts.URL}, Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, err = gen.Generate(context.Background(), "q", nil)
	if err == nil || !strings.Contains(err.Error(), "429") {
		t.Fatalf("expected status 429 in error, got %v", err)
	}
}

func TestAzureGenerate(t *testing.T) {
	var gotKey, gotPath, gotVersion string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("api-key")
		gotPath = r.URL.Path
		gotVersion = r.URL.Query().Get("api-version")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"content": "azure text"}},
			},
		})
	}))
	defer ts.Close()

	gen, err := New(models.TeamModel{
		Provider:   models.ProviderAzure,
		APIKey:     "azure-key",
		Endpoint:   ts.URL,
		Deployment: "gpt4o",
	}, Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	out, err := gen.Generate(context.Background(), "q", nil)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if out != "azure text" {
		t.Fatalf("unexpected output %q", out)
	}
	if gotKey != "azure-key" {
		t.Fatalf("expected api-key header, got %q", gotKey)
	}
	if gotPath != "/openai/deployments/gpt4o/chat/completions" {
		t.Fatalf("unexpected path %q", gotPath)
	}
	if gotVersion != azureAPIVersion {
		t.Fatalf("unexpected api-version %q", gotVersion)
	}
}

func TestGeminiGenerate(t *testing.T) {
	var gotPath, gotKey string
	var gotBody geminiRequest
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.URL.Query().Get("key")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"candidates": []map[string]interface{}{
				{"content": map[string]interface{}{"parts": []map[string]string{{"text": "gemini text"}}}},
			},
		})
	}))
	defer ts.Close()

	gen, err := New(models.TeamModel{
		Provider: models.ProviderGemini,
		APIKey:   "g-key",
		Endpoint: ts.URL,
		Model:    "gemini-1.5-flash",
	}, Options{MaxTokens: 128})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	out, err := gen.Generate(context.Background(), "q", []models.Chunk{{Content: "c"}})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if out != "gemini text" {
		t.Fatalf("unexpected output %q", out)
	}
	if gotPath != "/v1beta/models/gemini-1.5-flash:generateContent" {
		t.Fatalf("unexpected path %q", gotPath)
	}
	if gotKey != "g-key" {
		t.Fatalf("expected key in query, got %q", gotKey)
	}
	if gotBody.GenerationConfig.MaxOutputTokens != 128 {
		t.Fatalf("unexpected generation config: %+v", gotBody.GenerationConfig)
	}
}

func TestGeminiEmptyCandidates(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"candidates": []interface{}{}})
	}))
	defer ts.Close()

	gen, err := New(models.TeamModel{Provider: models.ProviderGemini, APIKey: "g", Endpoint: ts.URL}, Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := gen.Generate(context.Background(), "q", nil); err == nil {
		t.Fatalf("expected error for empty candidates")
	}
}
