package server

import "github.com/quillon/docresearch/models"

// HTTPError is the JSON error body produced by the unified error handler.
type HTTPError struct {
	Error string `json:"error"`
}

type AuthSignupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type AuthLoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type TokenResponse struct {
	Token string `json:"token"`
}

// ResearchSubmitRequest is the enqueue payload. SequentialQuery defaults to
// true and EnhancedSearch to false when omitted, matching the submission
// form's defaults.
type ResearchSubmitRequest struct {
	TeamID          string   `json:"team_id"`
	DocumentIDs     []string `json:"document_ids"`
	UserSearchQuery string   `json:"user_search_query"`
	SimilarityScore *float64 `json:"similarity_score,omitempty"`
	SequentialQuery *bool    `json:"sequential_query,omitempty"`
	EnhancedSearch  *bool    `json:"enhanced_search,omitempty"`
}

// ResearchStatusResponse is the polling read of one request.
type ResearchStatusResponse struct {
	ID                 string           `json:"id"`
	Status             string           `json:"status"`
	IndividualFindings []models.Finding `json:"individual_findings"`
	OverallSummary     string           `json:"overall_summary"`
}

// TeamModelRequest upserts a team's generation credential.
type TeamModelRequest struct {
	Provider   string `json:"provider"`
	APIKey     string `json:"api_key"`
	Endpoint   string `json:"endpoint,omitempty"`
	Deployment string `json:"deployment,omitempty"`
	Model      string `json:"model,omitempty"`
}

// TeamModelResponse echoes the stored credential with the key redacted.
type TeamModelResponse struct {
	TeamID     string `json:"team_id"`
	Provider   string `json:"provider"`
	Endpoint   string `json:"endpoint,omitempty"`
	Deployment string `json:"deployment,omitempty"`
	Model      string `json:"model,omitempty"`
}
