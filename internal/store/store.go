package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/lib/pq"
	"go.opentelemetry.io/otel"
	otelmetric "go.opentelemetry.io/otel/metric"

	"github.com/quillon/docresearch/models"
)

// Store wraps the Postgres connection used by the queue, the activity log
// and the credential table.
type Store struct {
	DB *sql.DB
}

var (
	metricsOnce      sync.Once
	completedCounter otelmetric.Int64Counter
	findingsCounter  otelmetric.Int64Counter
	metricsInitErr   error
)

func initStoreMetrics() {
	meter := otel.Meter("store")
	var err error
	completedCounter, err = meter.Int64Counter("research_requests_completed_total")
	if err != nil {
		metricsInitErr = err
		return
	}
	findingsCounter, err = meter.Int64Counter("research_findings_total")
	if err != nil {
		metricsInitErr = err
	}
}

// New builds the Store from DATABASE_URL or the POSTGRES_* env variables.
func New(ctx context.Context) (*Store, error) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		host := getenvDefault("POSTGRES_HOST", "localhost")
		port := getenvDefault("POSTGRES_PORT", "5432")
		user := os.Getenv("POSTGRES_USER")
		pass := os.Getenv("POSTGRES_PASSWORD")
		db := os.Getenv("POSTGRES_DB")
		ssl := getenvDefault("POSTGRES_SSLMODE", "disable")
		dsn = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", user, pass, host, port, db, ssl)
	}
	return NewWithDSN(ctx, dsn)
}

// NewWithDSN constructs the Store using an explicit Postgres DSN.
func NewWithDSN(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return &Store{DB: db}, nil
}

func getenvDefault(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}

// User operations (auth)

func (s *Store) CreateUser(ctx context.Context, email, hash string) error {
	_, err := s.DB.ExecContext(ctx, `INSERT INTO users (email, password_hash) VALUES ($1,$2)`, email, hash)
	return err
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (id string, hash string, err error) {
	err = s.DB.QueryRowContext(ctx, `SELECT id::text, password_hash FROM users WHERE email=$1`, email).Scan(&id, &hash)
	return
}

// Team model credential operations

// UpsertTeamModel stores the team's generation credential. One row per team.
func (s *Store) UpsertTeamModel(ctx context.Context, m models.TeamModel) error {
	if m.TeamID == "" {
		return fmt.Errorf("team_id must be provided")
	}
	_, err := s.DB.ExecContext(ctx, `
INSERT INTO team_models (team_id, provider, api_key, endpoint, deployment, model, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,NOW())
ON CONFLICT (team_id) DO UPDATE SET
  provider   = EXCLUDED.provider,
  api_key    = EXCLUDED.api_key,
  endpoint   = EXCLUDED.endpoint,
  deployment = EXCLUDED.deployment,
  model      = EXCLUDED.model,
  updated_at = NOW();
`, m.TeamID, string(m.Provider), m.APIKey, m.Endpoint, m.Deployment, m.Model)
	return err
}

// GetTeamModel returns the team credential. The bool reports whether one exists.
func (s *Store) GetTeamModel(ctx context.Context, teamID string) (models.TeamModel, bool, error) {
	var (
		m        models.TeamModel
		provider string
	)
	row := s.DB.QueryRowContext(ctx, `
SELECT team_id, provider, api_key, endpoint, deployment, model, updated_at
FROM team_models WHERE team_id=$1`, teamID)
	if err := row.Scan(&m.TeamID, &provider, &m.APIKey, &m.Endpoint, &m.Deployment, &m.Model, &m.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return models.TeamModel{}, false, nil
		}
		return models.TeamModel{}, false, err
	}
	m.Provider = models.ModelProvider(provider)
	return m, true, nil
}

// Research request queue operations

const requestColumns = `id::text, team_id, user_id, document_ids, user_search_query,
similarity_score, sequential_query, enhanced_search, status, individual_findings, overall_summary, created_at`

// CreateResearchRequest enqueues a request with status "in queue".
func (s *Store) CreateResearchRequest(ctx context.Context, req models.ResearchRequest) (models.ResearchRequest, error) {
	findings, err := marshalFindings(req.IndividualFindings)
	if err != nil {
		return models.ResearchRequest{}, err
	}
	row := s.DB.QueryRowContext(ctx, `
INSERT INTO research_requests
  (team_id, user_id, document_ids, user_search_query, similarity_score, sequential_query, enhanced_search, status, individual_findings, overall_summary)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
RETURNING id::text, created_at`,
		req.TeamID, req.UserID, pq.Array(req.DocumentIDs), req.UserSearchQuery,
		req.SimilarityScore, req.SequentialQuery, req.EnhancedSearch,
		models.StatusInQueue, findings, req.OverallSummary)
	if err := row.Scan(&req.ID, &req.CreatedAt); err != nil {
		return models.ResearchRequest{}, err
	}
	req.Status = models.StatusInQueue
	return req, nil
}

// ClaimOldestPending atomically selects the oldest "in queue" request for a
// team and moves it to "researching 0/N" in the same statement. Concurrent
// callers cannot claim the same row: the subselect locks it with SKIP LOCKED
// and the status write is part of the one UPDATE. The bool reports whether a
// request was claimed.
func (s *Store) ClaimOldestPending(ctx context.Context, teamID string) (models.ResearchRequest, bool, error) {
	row := s.DB.QueryRowContext(ctx, `
UPDATE research_requests
SET status = 'researching 0/' || COALESCE(array_length(document_ids, 1), 0)
WHERE id = (
  SELECT id FROM research_requests
  WHERE team_id = $1 AND status = $2
  ORDER BY created_at ASC, seq ASC
  LIMIT 1
  FOR UPDATE SKIP LOCKED
)
RETURNING `+requestColumns, teamID, models.StatusInQueue)

	req, err := scanRequest(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return models.ResearchRequest{}, false, nil
		}
		return models.ResearchRequest{}, false, err
	}
	return req, true, nil
}

// SaveProgress persists the per-document checkpoint: the new status and the
// full findings array in a single atomic write.
func (s *Store) SaveProgress(ctx context.Context, id string, status string, findings []models.Finding) error {
	if id == "" {
		return fmt.Errorf("request id must be provided")
	}
	payload, err := marshalFindings(findings)
	if err != nil {
		return err
	}
	res, err := s.DB.ExecContext(ctx, `UPDATE research_requests SET status=$2, individual_findings=$3 WHERE id=$1`, id, status, payload)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("research request %s: %w", id, models.ErrNotFound)
	}
	return nil
}

// GetResearchRequest looks up one queued or in-flight request.
func (s *Store) GetResearchRequest(ctx context.Context, id string) (models.ResearchRequest, bool, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT `+requestColumns+` FROM research_requests WHERE id=$1`, id)
	req, err := scanRequest(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return models.ResearchRequest{}, false, nil
		}
		return models.ResearchRequest{}, false, err
	}
	return req, true, nil
}

// ListResearchRequestsByTeam returns a team's queue contents, oldest first.
func (s *Store) ListResearchRequestsByTeam(ctx context.Context, teamID string) ([]models.ResearchRequest, error) {
	rows, err := s.DB.QueryContext(ctx, `
SELECT `+requestColumns+` FROM research_requests WHERE team_id=$1 ORDER BY created_at ASC, seq ASC`, teamID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.ResearchRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

// RequeueRequest resets a stalled request back to "in queue" so a later
// ProcessNext picks it up again. Only non-completed rows can be requeued;
// completed rows no longer exist in this table.
func (s *Store) RequeueRequest(ctx context.Context, id string) error {
	res, err := s.DB.ExecContext(ctx, `UPDATE research_requests SET status=$2 WHERE id=$1`, id, models.StatusInQueue)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("research request %s: %w", id, models.ErrNotFound)
	}
	return nil
}

// FinalizeRequest commits the terminal artifact: within one transaction it
// writes the completed status and summary, copies the request into the
// activity log, and deletes the queue row. Any failure rolls the whole step
// back, leaving the request inspectable in the queue.
func (s *Store) FinalizeRequest(ctx context.Context, req models.ResearchRequest, summary string) (models.ActivityLogEntry, error) {
	metricsOnce.Do(initStoreMetrics)

	findings, err := marshalFindings(req.IndividualFindings)
	if err != nil {
		return models.ActivityLogEntry{}, err
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return models.ActivityLogEntry{}, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `UPDATE research_requests SET status=$2, overall_summary=$3 WHERE id=$1`,
		req.ID, models.StatusCompleted, summary)
	if err != nil {
		return models.ActivityLogEntry{}, fmt.Errorf("mark completed: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return models.ActivityLogEntry{}, fmt.Errorf("research request %s: %w", req.ID, models.ErrNotFound)
	}

	entry := models.ActivityLogEntry{
		RequestID:          req.ID,
		TeamID:             req.TeamID,
		UserID:             req.UserID,
		DocumentIDs:        req.DocumentIDs,
		UserSearchQuery:    req.UserSearchQuery,
		SimilarityScore:    req.SimilarityScore,
		SequentialQuery:    req.SequentialQuery,
		EnhancedSearch:     req.EnhancedSearch,
		Status:             models.StatusCompleted,
		IndividualFindings: req.IndividualFindings,
		OverallSummary:     summary,
	}
	row := tx.QueryRowContext(ctx, `
INSERT INTO activity_log
  (request_id, team_id, user_id, document_ids, user_search_query, similarity_score, sequential_query, enhanced_search, status, individual_findings, overall_summary)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
RETURNING id::text, created_at`,
		entry.RequestID, entry.TeamID, entry.UserID, pq.Array(entry.DocumentIDs), entry.UserSearchQuery,
		entry.SimilarityScore, entry.SequentialQuery, entry.EnhancedSearch, entry.Status, findings, entry.OverallSummary)
	if err := row.Scan(&entry.ID, &entry.CreatedAt); err != nil {
		return models.ActivityLogEntry{}, fmt.Errorf("insert activity log: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM research_requests WHERE id=$1`, req.ID); err != nil {
		return models.ActivityLogEntry{}, fmt.Errorf("delete queue row: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return models.ActivityLogEntry{}, err
	}

	if metricsInitErr == nil && completedCounter != nil {
		completedCounter.Add(ctx, 1)
		findingsCounter.Add(ctx, int64(len(req.IndividualFindings)))
	}
	return entry, nil
}

// Activity log operations

const activityColumns = `id::text, request_id::text, team_id, user_id, document_ids, user_search_query,
similarity_score, sequential_query, enhanced_search, status, individual_findings, overall_summary, created_at`

// GetActivityLogEntry looks up one completed result.
func (s *Store) GetActivityLogEntry(ctx context.Context, id string) (models.ActivityLogEntry, bool, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT `+activityColumns+` FROM activity_log WHERE id=$1`, id)
	entry, err := scanActivityEntry(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return models.ActivityLogEntry{}, false, nil
		}
		return models.ActivityLogEntry{}, false, err
	}
	return entry, true, nil
}

// ListActivityLogByTeam returns a team's completed results, newest first.
func (s *Store) ListActivityLogByTeam(ctx context.Context, teamID string) ([]models.ActivityLogEntry, error) {
	rows, err := s.DB.QueryContext(ctx, `
SELECT `+activityColumns+` FROM activity_log WHERE team_id=$1 ORDER BY created_at DESC`, teamID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.ActivityLogEntry
	for rows.Next() {
		entry, err := scanActivityEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

// DeleteActivityLogEntry removes a completed result on explicit user action.
func (s *Store) DeleteActivityLogEntry(ctx context.Context, id string) error {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM activity_log WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("activity log entry %s: %w", id, models.ErrNotFound)
	}
	return nil
}

// scanning helpers

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRequest(row rowScanner) (models.ResearchRequest, error) {
	var (
		req       models.ResearchRequest
		docIDs    pq.StringArray
		findingsB []byte
	)
	if err := row.Scan(&req.ID, &req.TeamID, &req.UserID, &docIDs, &req.UserSearchQuery,
		&req.SimilarityScore, &req.SequentialQuery, &req.EnhancedSearch,
		&req.Status, &findingsB, &req.OverallSummary, &req.CreatedAt); err != nil {
		return models.ResearchRequest{}, err
	}
	req.DocumentIDs = []string(docIDs)
	findings, err := unmarshalFindings(findingsB)
	if err != nil {
		return models.ResearchRequest{}, err
	}
	req.IndividualFindings = findings
	return req, nil
}

func scanActivityEntry(row rowScanner) (models.ActivityLogEntry, error) {
	var (
		entry     models.ActivityLogEntry
		docIDs    pq.StringArray
		findingsB []byte
	)
	if err := row.Scan(&entry.ID, &entry.RequestID, &entry.TeamID, &entry.UserID, &docIDs, &entry.UserSearchQuery,
		&entry.SimilarityScore, &entry.SequentialQuery, &entry.EnhancedSearch,
		&entry.Status, &findingsB, &entry.OverallSummary, &entry.CreatedAt); err != nil {
		return models.ActivityLogEntry{}, err
	}
	entry.DocumentIDs = []string(docIDs)
	findings, err := unmarshalFindings(findingsB)
	if err != nil {
		return models.ActivityLogEntry{}, err
	}
	entry.IndividualFindings = findings
	return entry, nil
}

func marshalFindings(findings []models.Finding) ([]byte, error) {
	if findings == nil {
		findings = []models.Finding{}
	}
	b, err := json.Marshal(findings)
	if err != nil {
		return nil, fmt.Errorf("marshal findings: %w", err)
	}
	return b, nil
}

func unmarshalFindings(b []byte) ([]models.Finding, error) {
	if len(b) == 0 {
		return nil, nil
	}
	var findings []models.Finding
	if err := json.Unmarshal(b, &findings); err != nil {
		return nil, fmt.Errorf("unmarshal findings: %w", err)
	}
	return findings, nil
}
