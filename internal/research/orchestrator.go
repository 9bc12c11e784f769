// Package research contains the orchestrator that drives queued research
// requests through chunk retrieval, generation and finalization.
package research

import (
	"context"
	"fmt"
	"log"

	"github.com/quillon/docresearch/internal/provider"
	"github.com/quillon/docresearch/models"
)

// QueueStore is the durable request queue the orchestrator works against.
type QueueStore interface {
	// ClaimOldestPending atomically claims the oldest "in queue" request for
	// the team and moves it to "researching 0/N". At most one caller can
	// claim a given request.
	ClaimOldestPending(ctx context.Context, teamID string) (models.ResearchRequest, bool, error)
	// SaveProgress writes the new status together with the accumulated
	// findings as one atomic checkpoint.
	SaveProgress(ctx context.Context, id string, status string, findings []models.Finding) error
	// FinalizeRequest commits the completed status, the activity log copy
	// and the queue deletion as one logical step.
	FinalizeRequest(ctx context.Context, req models.ResearchRequest, summary string) (models.ActivityLogEntry, error)
}

// CredentialStore resolves team generation credentials.
type CredentialStore interface {
	GetTeamModel(ctx context.Context, teamID string) (models.TeamModel, bool, error)
}

// ChunkStore returns the ordered vectorized chunks of one document.
type ChunkStore interface {
	GetChunks(ctx context.Context, documentID, teamID string) ([]models.Chunk, error)
}

// GeneratorFactory resolves a credential into a Generator. Swappable in tests.
type GeneratorFactory func(m models.TeamModel, opts provider.Options) (provider.Generator, error)

// Orchestrator owns the mutation lifecycle of a research request from claim
// to finalization. One call to ProcessNext serves at most one request.
type Orchestrator struct {
	logger       *log.Logger
	queue        QueueStore
	creds        CredentialStore
	chunks       ChunkStore
	newGenerator GeneratorFactory
	opts         provider.Options
}

// NewOrchestrator wires the orchestrator's collaborators. A nil factory
// defaults to provider.New.
func NewOrchestrator(logger *log.Logger, queue QueueStore, creds CredentialStore, chunks ChunkStore, factory GeneratorFactory, opts provider.Options) *Orchestrator {
	if logger == nil {
		logger = log.New(log.Writer(), "[ORCH] ", log.LstdFlags)
	}
	if factory == nil {
		factory = provider.New
	}
	return &Orchestrator{
		logger:       logger,
		queue:        queue,
		creds:        creds,
		chunks:       chunks,
		newGenerator: factory,
		opts:         opts,
	}
}

// ProcessNext claims and fully processes the team's oldest pending request.
// It is a no-op when nothing is pending and is safe to call redundantly.
// On failure the request keeps its last persisted status and findings; no
// progress is rolled back and no retry is attempted here.
func (o *Orchestrator) ProcessNext(ctx context.Context, teamID string) error {
	req, ok, err := o.queue.ClaimOldestPending(ctx, teamID)
	if err != nil {
		return fmt.Errorf("claim pending request: %w", err)
	}
	if !ok {
		return nil
	}
	o.logger.Printf("claimed request %s for team %s (%d documents)", req.ID, teamID, len(req.DocumentIDs))

	cred, found, err := o.creds.GetTeamModel(ctx, req.TeamID)
	if err != nil {
		return fmt.Errorf("resolve team credential: %w", err)
	}
	if !found {
		return fmt.Errorf("team %s: %w", req.TeamID, provider.ErrNoCredential)
	}
	gen, err := o.newGenerator(cred, o.opts)
	if err != nil {
		return fmt.Errorf("build generator: %w", err)
	}

	total := len(req.DocumentIDs)
	findings := make([]models.Finding, 0)
	for i, docID := range req.DocumentIDs {
		chunks, err := o.chunks.GetChunks(ctx, docID, req.TeamID)
		if err != nil {
			return fmt.Errorf("retrieve chunks for document %s: %w", docID, err)
		}

		docFindings, err := o.documentFindings(ctx, gen, req.UserSearchQuery, chunks, req.SequentialQuery)
		if err != nil {
			return fmt.Errorf("generate findings for document %s: %w", docID, err)
		}
		findings = append(findings, docFindings...)

		if err := o.queue.SaveProgress(ctx, req.ID, models.ResearchingStatus(i+1, total), findings); err != nil {
			return fmt.Errorf("checkpoint document %d/%d: %w", i+1, total, err)
		}
	}

	summary, err := gen.Summarize(ctx, findings)
	if err != nil {
		return fmt.Errorf("summarize findings: %w", err)
	}

	req.IndividualFindings = findings
	entry, err := o.queue.FinalizeRequest(ctx, req, summary)
	if err != nil {
		return fmt.Errorf("finalize request %s: %w", req.ID, err)
	}
	o.logger.Printf("request %s completed: %d findings, activity log entry %s", req.ID, len(findings), entry.ID)
	return nil
}

// documentFindings runs the generation sub-protocol for one document.
// Sequential mode issues one call per chunk and keeps chunk order; batched
// mode issues a single call over all chunks and yields one finding for the
// whole document.
func (o *Orchestrator) documentFindings(ctx context.Context, gen provider.Generator, query string, chunks []models.Chunk, sequential bool) ([]models.Finding, error) {
	if len(chunks) == 0 {
		return nil, nil
	}

	if sequential {
		findings := make([]models.Finding, 0, len(chunks))
		for _, chunk := range chunks {
			content, err := gen.Generate(ctx, query, []models.Chunk{chunk})
			if err != nil {
				return nil, err
			}
			findings = append(findings, models.Finding{
				Title:   attributeOrDefault(chunk.Metadata, "title", models.DefaultTitle),
				Page:    attributeOrDefault(chunk.Metadata, "pageNumber", models.DefaultPage),
				Content: content,
			})
		}
		return findings, nil
	}

	content, err := gen.Generate(ctx, query, chunks)
	if err != nil {
		return nil, err
	}
	// Batched mode addresses the document as a whole: the title comes from
	// the document's chunks, no single page is attributable.
	return []models.Finding{{
		Title:   attributeOrDefault(chunks[0].Metadata, "title", models.DefaultTitle),
		Page:    models.DefaultPage,
		Content: content,
	}}, nil
}

func attributeOrDefault(m models.ChunkMetadata, key, def string) string {
	if v := m.Attribute(key); v != "" {
		return v
	}
	return def
}
