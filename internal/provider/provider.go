package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/quillon/docresearch/models"
)

// ErrNoCredential is returned when a team has no generation credential.
var ErrNoCredential = errors.New("no model credential configured for team")

// Generator is the interface the research orchestrator drives. One instance
// wraps one resolved team credential; the orchestrator never branches on
// provider identity.
type Generator interface {
	// Generate runs one retrieval-augmented generation call: the query plus
	// the given context chunks produce one block of generated text.
	Generate(ctx context.Context, query string, chunks []models.Chunk) (string, error)
	// Summarize condenses an ordered findings list into one summary string.
	Summarize(ctx context.Context, findings []models.Finding) (string, error)
}

// Options carry generation tuning shared by all providers.
type Options struct {
	Timeout     time.Duration
	MaxTokens   int
	Temperature float64
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = 60 * time.Second
	}
	if o.MaxTokens <= 0 {
		o.MaxTokens = 4096
	}
	return o
}

// New resolves a team credential record into a Generator.
func New(m models.TeamModel, opts Options) (Generator, error) {
	if m.APIKey == "" {
		return nil, ErrNoCredential
	}
	opts = opts.withDefaults()
	switch m.Provider {
	case models.ProviderOpenAI:
		return newOpenAIClient(m, opts), nil
	case models.ProviderAzure:
		if m.Endpoint == "" || m.Deployment == "" {
			return nil, fmt.Errorf("azure credential requires endpoint and deployment")
		}
		return newAzureClient(m, opts), nil
	case models.ProviderGemini:
		return newGeminiClient(m, opts), nil
	default:
		return nil, fmt.Errorf("unsupported model provider: %q", m.Provider)
	}
}

// researchPrompt builds the RAG prompt: the user query followed by the
// serialized context chunks.
func researchPrompt(query string, chunks []models.Chunk) string {
	excerpt, _ := json.Marshal(chunks)
	return fmt.Sprintf("%s\n\nExcerpt: %s", query, excerpt)
}

// summaryPrompt builds the aggregation prompt over the full findings list.
func summaryPrompt(findings []models.Finding) string {
	body, _ := json.Marshal(findings)
	return fmt.Sprintf("Create a summary based on the following findings: %s", body)
}
