// Package vectorstore retrieves vectorized document chunks from Azure AI
// Search. Embedding and index writes happen in the ingestion path; this
// client only reads chunks back for research runs.
package vectorstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/quillon/docresearch/config"
	"github.com/quillon/docresearch/models"
)

const (
	attrDocumentID = "documentId"
	attrTeamID     = "teamId"
	attrChunkIndex = "chunkIndex"
)

// Client queries one Azure AI Search index over its REST API.
type Client struct {
	endpoint   string
	apiKey     string
	index      string
	apiVersion string
	maxChunks  int
	httpClient *http.Client
}

// NewClient builds a Client from configuration.
func NewClient(cfg config.VectorStoreConfig) (*Client, error) {
	if cfg.Endpoint == "" || cfg.APIKey == "" {
		return nil, fmt.Errorf("vector store endpoint and api key must be configured")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	maxChunks := cfg.MaxChunks
	if maxChunks <= 0 {
		maxChunks = 10000
	}
	index := cfg.Index
	if index == "" {
		index = "vectorsearch"
	}
	apiVersion := cfg.APIVersion
	if apiVersion == "" {
		apiVersion = "2023-11-01"
	}
	return &Client{
		endpoint:   strings.TrimRight(cfg.Endpoint, "/"),
		apiKey:     cfg.APIKey,
		index:      index,
		apiVersion: apiVersion,
		maxChunks:  maxChunks,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

type searchRequest struct {
	Search string `json:"search"`
	Filter string `json:"filter"`
	Top    int    `json:"top"`
}

type searchDocument struct {
	Content  string               `json:"content"`
	Metadata models.ChunkMetadata `json:"metadata"`
}

type searchResponse struct {
	Value []searchDocument `json:"value"`
}

// GetChunks returns every chunk stored for a document, in chunk-index order.
// The filter is scoped by team as well as document so one team can never
// read another team's vectors.
func (c *Client) GetChunks(ctx context.Context, documentID, teamID string) ([]models.Chunk, error) {
	filter := fmt.Sprintf(
		"metadata/attributes/any(attr: attr/key eq '%s' and attr/value eq '%s') and metadata/attributes/any(attr: attr/key eq '%s' and attr/value eq '%s')",
		attrDocumentID, escapeODataString(documentID),
		attrTeamID, escapeODataString(teamID),
	)

	body, err := json.Marshal(searchRequest{Search: "*", Filter: filter, Top: c.maxChunks})
	if err != nil {
		return nil, fmt.Errorf("marshal search request: %w", err)
	}

	url := fmt.Sprintf("%s/indexes/%s/docs/search?api-version=%s", c.endpoint, c.index, c.apiVersion)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send search request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("vector search returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var parsed searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("parse search response: %w", err)
	}

	chunks := make([]models.Chunk, 0, len(parsed.Value))
	for _, doc := range parsed.Value {
		chunks = append(chunks, models.Chunk{Content: doc.Content, Metadata: doc.Metadata})
	}
	sortByChunkIndex(chunks)
	return chunks, nil
}

// sortByChunkIndex restores document order. The index returns hits in
// scoring order, which is meaningless for a filter-only query; chunkIndex
// metadata is authoritative. Chunks without a parseable index keep their
// relative position at the end.
func sortByChunkIndex(chunks []models.Chunk) {
	sort.SliceStable(chunks, func(i, j int) bool {
		return chunkIndexOf(chunks[i]) < chunkIndexOf(chunks[j])
	})
}

func chunkIndexOf(c models.Chunk) int {
	v := c.Metadata.Attribute(attrChunkIndex)
	if v == "" {
		return int(^uint(0) >> 1)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return int(^uint(0) >> 1)
	}
	return n
}

// escapeODataString doubles single quotes per OData string literal rules.
func escapeODataString(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}
