package models

import (
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned by lookups against ids that do not exist.
var ErrNotFound = errors.New("not found")

// Status values written by the research orchestrator. No other component
// writes to the status field.
const (
	StatusInQueue   = "in queue"
	StatusCompleted = "completed"
)

// ResearchingStatus renders the "researching i/N" progress marker.
func ResearchingStatus(done, total int) string {
	return fmt.Sprintf("researching %d/%d", done, total)
}

// Finding is one generated result tied to a source chunk or document.
// Title and Page are never empty: missing metadata resolves to
// DefaultTitle / DefaultPage.
type Finding struct {
	Title   string `json:"title"`
	Page    string `json:"page"`
	Content string `json:"content"`
}

const (
	DefaultTitle = "Untitled Document"
	DefaultPage  = "N/A"
)

// ChunkAttribute is one key/value pair of chunk metadata.
type ChunkAttribute struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// ChunkMetadata carries positional and descriptive attributes for a chunk.
type ChunkMetadata struct {
	Source     string           `json:"source"`
	Attributes []ChunkAttribute `json:"attributes"`
}

// Attribute returns the value for key, or "" when absent.
func (m ChunkMetadata) Attribute(key string) string {
	for _, a := range m.Attributes {
		if a.Key == key {
			return a.Value
		}
	}
	return ""
}

// Chunk is a contiguous slice of a source document's text plus metadata.
type Chunk struct {
	Content  string        `json:"content"`
	Metadata ChunkMetadata `json:"metadata"`
}

// ResearchRequest lives in the request queue from submission until it is
// finalized into the activity log. IndividualFindings is the partial-progress
// checkpoint: it is re-persisted together with status after every document.
type ResearchRequest struct {
	ID                 string    `json:"id"`
	TeamID             string    `json:"team_id"`
	UserID             string    `json:"user_id"`
	DocumentIDs        []string  `json:"document_ids"`
	UserSearchQuery    string    `json:"user_search_query"`
	SimilarityScore    float64   `json:"similarity_score"`
	SequentialQuery    bool      `json:"sequential_query"`
	EnhancedSearch     bool      `json:"enhanced_search"`
	Status             string    `json:"status"`
	IndividualFindings []Finding `json:"individual_findings"`
	OverallSummary     string    `json:"overall_summary"`
	CreatedAt          time.Time `json:"created_at"`
}

// ActivityLogEntry is the immutable snapshot of a completed request.
type ActivityLogEntry struct {
	ID                 string    `json:"id"`
	RequestID          string    `json:"request_id"`
	TeamID             string    `json:"team_id"`
	UserID             string    `json:"user_id"`
	DocumentIDs        []string  `json:"document_ids"`
	UserSearchQuery    string    `json:"user_search_query"`
	SimilarityScore    float64   `json:"similarity_score"`
	SequentialQuery    bool      `json:"sequential_query"`
	EnhancedSearch     bool      `json:"enhanced_search"`
	Status             string    `json:"status"`
	IndividualFindings []Finding `json:"individual_findings"`
	OverallSummary     string    `json:"overall_summary"`
	CreatedAt          time.Time `json:"created_at"`
}

// ModelProvider tags a team credential with the backing LLM service.
type ModelProvider string

const (
	ProviderOpenAI ModelProvider = "openai"
	ProviderAzure  ModelProvider = "azure"
	ProviderGemini ModelProvider = "gemini"
)

// TeamModel is the team-scoped generation credential record. Exactly one
// per team; resolved once per research run.
type TeamModel struct {
	TeamID     string        `json:"team_id"`
	Provider   ModelProvider `json:"provider"`
	APIKey     string        `json:"api_key"`
	Endpoint   string        `json:"endpoint"`
	Deployment string        `json:"deployment"`
	Model      string        `json:"model"`
	UpdatedAt  time.Time     `json:"updated_at"`
}
