// Package storage implements the persistence boundary: the analysis-result
// store consumed by the surrounding product, and the reference-pose vector
// store used for nearest-reference matching.
package storage

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"formcoach/config"
	"formcoach/core"
)

// StoredResult is one persisted analysis run.
type StoredResult struct {
	ResultID  string              `json:"result_id"`
	SessionID string              `json:"session_id"`
	Result    core.AnalysisResult `json:"result"`
	Summary   string              `json:"summary"`
	CreatedAt time.Time           `json:"created_at"`
}

// Session lifecycle states.
const (
	SessionPending    = "pending"
	SessionProcessing = "processing"
	SessionCompleted  = "completed"
	SessionFailed     = "failed"
)

// ResultStore persists immutable analysis results keyed by session.
type ResultStore interface {
	SaveResult(ctx context.Context, sessionID string, result core.AnalysisResult, summary string) (string, error)
	GetResult(ctx context.Context, sessionID string) (*StoredResult, error)
	MarkSession(ctx context.Context, sessionID, status string) error
}

// NewResultStore selects the backend from configuration, falling back to the
// in-memory store when Postgres is unreachable.
func NewResultStore(ctx context.Context, cfg *config.Config) ResultStore {
	if cfg != nil && cfg.ResultStore == "postgres" {
		store, err := NewPostgresResultStore(ctx, cfg.PostgresURL)
		if err != nil {
			log.Printf("Warning: failed to initialize postgres result store (%v), falling back to memory store", err)
			return NewMemoryResultStore()
		}
		return store
	}
	return NewMemoryResultStore()
}

// ---------------- Memory implementation ----------------

// MemoryResultStore keeps results for the process lifetime. Used for tests
// and for running the service without a database.
type MemoryResultStore struct {
	mu       sync.RWMutex
	results  map[string]StoredResult // sessionID -> latest result
	statuses map[string]string
}

func NewMemoryResultStore() *MemoryResultStore {
	return &MemoryResultStore{
		results:  map[string]StoredResult{},
		statuses: map[string]string{},
	}
}

func (s *MemoryResultStore) MarkSession(_ context.Context, sessionID, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[sessionID] = status
	return nil
}

// SessionStatus reports the recorded lifecycle state of a session.
func (s *MemoryResultStore) SessionStatus(sessionID string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if status, ok := s.statuses[sessionID]; ok {
		return status
	}
	return SessionPending
}

func (s *MemoryResultStore) SaveResult(_ context.Context, sessionID string, result core.AnalysisResult, summary string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := StoredResult{
		ResultID:  uuid.NewString(),
		SessionID: sessionID,
		Result:    result,
		Summary:   summary,
		CreatedAt: time.Now().UTC(),
	}
	s.results[sessionID] = stored
	return stored.ResultID, nil
}

func (s *MemoryResultStore) GetResult(_ context.Context, sessionID string) (*StoredResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stored, ok := s.results[sessionID]
	if !ok {
		return nil, fmt.Errorf("no result for session %q", sessionID)
	}
	return &stored, nil
}

// ---------------- Postgres implementation ----------------

// PostgresResultStore writes the analysis_results/form_issues/metrics/
// strengths/recommendations shape in one transaction per run.
type PostgresResultStore struct {
	pool *pgxpool.Pool
}

func NewPostgresResultStore(ctx context.Context, dbURL string) (*PostgresResultStore, error) {
	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	s := &PostgresResultStore{pool: pool}
	if err := s.ensureTables(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the connection pool.
func (s *PostgresResultStore) Close() { s.pool.Close() }

func (s *PostgresResultStore) ensureTables(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS analysis_results (
			id UUID PRIMARY KEY,
			session_id VARCHAR(255) NOT NULL,
			status VARCHAR(32) NOT NULL,
			exercise VARCHAR(255) NOT NULL,
			rules_version VARCHAR(32) NOT NULL,
			overall_score NUMERIC(3,1),
			total_frames INTEGER NOT NULL,
			detected_frames INTEGER NOT NULL,
			processing_time NUMERIC(10,3),
			summary TEXT,
			created_at TIMESTAMPTZ DEFAULT NOW()
		);`,
		`CREATE TABLE IF NOT EXISTS form_issues (
			id SERIAL PRIMARY KEY,
			result_id UUID NOT NULL REFERENCES analysis_results(id) ON DELETE CASCADE,
			issue_type VARCHAR(255) NOT NULL,
			severity VARCHAR(16) NOT NULL,
			frame_start INTEGER NOT NULL,
			frame_end INTEGER NOT NULL,
			coaching_cue TEXT NOT NULL,
			confidence_score NUMERIC(3,2)
		);`,
		`CREATE TABLE IF NOT EXISTS form_metrics (
			id SERIAL PRIMARY KEY,
			result_id UUID NOT NULL REFERENCES analysis_results(id) ON DELETE CASCADE,
			metric_name VARCHAR(255) NOT NULL,
			actual_value VARCHAR(64) NOT NULL,
			target_value VARCHAR(64) NOT NULL,
			status VARCHAR(16) NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS strengths (
			id SERIAL PRIMARY KEY,
			result_id UUID NOT NULL REFERENCES analysis_results(id) ON DELETE CASCADE,
			strength_text TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS recommendations (
			id SERIAL PRIMARY KEY,
			result_id UUID NOT NULL REFERENCES analysis_results(id) ON DELETE CASCADE,
			recommendation_text TEXT NOT NULL,
			priority INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS analysis_sessions (
			session_id VARCHAR(255) PRIMARY KEY,
			status VARCHAR(32) NOT NULL,
			updated_at TIMESTAMPTZ DEFAULT NOW()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_analysis_results_session ON analysis_results(session_id);`,
	}
	for _, stmt := range statements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure result tables: %w", err)
		}
	}
	return nil
}

func (s *PostgresResultStore) MarkSession(ctx context.Context, sessionID, status string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO analysis_sessions (session_id, status, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (session_id) DO UPDATE SET status = EXCLUDED.status, updated_at = NOW()`,
		sessionID, status)
	if err != nil {
		return fmt.Errorf("mark session %s as %s: %w", sessionID, status, err)
	}
	return nil
}

func (s *PostgresResultStore) SaveResult(ctx context.Context, sessionID string, result core.AnalysisResult, summary string) (string, error) {
	resultID := uuid.NewString()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("begin result transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO analysis_results
		 (id, session_id, status, exercise, rules_version, overall_score, total_frames, detected_frames, processing_time, summary)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		resultID, sessionID, string(result.Status), result.Exercise, result.RulesVersion,
		result.OverallScore, result.TotalFrames, result.DetectedFrames, result.ProcessingTime, summary)
	if err != nil {
		return "", fmt.Errorf("insert analysis result: %w", err)
	}

	for _, issue := range result.Issues {
		_, err = tx.Exec(ctx,
			`INSERT INTO form_issues
			 (result_id, issue_type, severity, frame_start, frame_end, coaching_cue, confidence_score)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			resultID, issue.IssueType, issue.Severity.String(),
			issue.FrameStart, issue.FrameEnd, issue.CoachingCue, issue.Confidence)
		if err != nil {
			return "", fmt.Errorf("insert form issue: %w", err)
		}
	}
	for _, metric := range result.Metrics {
		_, err = tx.Exec(ctx,
			`INSERT INTO form_metrics (result_id, metric_name, actual_value, target_value, status)
			 VALUES ($1, $2, $3, $4, $5)`,
			resultID, metric.MetricName, metric.ActualValue, metric.TargetValue, string(metric.Status))
		if err != nil {
			return "", fmt.Errorf("insert form metric: %w", err)
		}
	}
	for _, strength := range result.Strengths {
		if _, err = tx.Exec(ctx,
			`INSERT INTO strengths (result_id, strength_text) VALUES ($1, $2)`,
			resultID, strength); err != nil {
			return "", fmt.Errorf("insert strength: %w", err)
		}
	}
	for _, rec := range result.Recommendations {
		if _, err = tx.Exec(ctx,
			`INSERT INTO recommendations (result_id, recommendation_text, priority) VALUES ($1, $2, $3)`,
			resultID, rec.Text, rec.Priority); err != nil {
			return "", fmt.Errorf("insert recommendation: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("commit result transaction: %w", err)
	}
	return resultID, nil
}

func (s *PostgresResultStore) GetResult(ctx context.Context, sessionID string) (*StoredResult, error) {
	stored := StoredResult{SessionID: sessionID}
	var status, severityName string

	row := s.pool.QueryRow(ctx,
		`SELECT id, status, exercise, rules_version, overall_score, total_frames, detected_frames, processing_time, summary, created_at
		 FROM analysis_results WHERE session_id = $1 ORDER BY created_at DESC LIMIT 1`, sessionID)
	err := row.Scan(&stored.ResultID, &status, &stored.Result.Exercise, &stored.Result.RulesVersion,
		&stored.Result.OverallScore, &stored.Result.TotalFrames, &stored.Result.DetectedFrames,
		&stored.Result.ProcessingTime, &stored.Summary, &stored.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("no result for session %q", sessionID)
		}
		return nil, fmt.Errorf("query analysis result: %w", err)
	}
	stored.Result.Status = core.ResultStatus(status)

	rows, err := s.pool.Query(ctx,
		`SELECT issue_type, severity, frame_start, frame_end, coaching_cue, confidence_score
		 FROM form_issues WHERE result_id = $1 ORDER BY frame_start, issue_type`, stored.ResultID)
	if err != nil {
		return nil, fmt.Errorf("query form issues: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var issue core.FormIssue
		if err := rows.Scan(&issue.IssueType, &severityName, &issue.FrameStart,
			&issue.FrameEnd, &issue.CoachingCue, &issue.Confidence); err != nil {
			return nil, fmt.Errorf("scan form issue: %w", err)
		}
		if issue.Severity, err = core.ParseSeverity(severityName); err != nil {
			return nil, fmt.Errorf("stored issue: %w", err)
		}
		stored.Result.Issues = append(stored.Result.Issues, issue)
	}

	mrows, err := s.pool.Query(ctx,
		`SELECT metric_name, actual_value, target_value, status
		 FROM form_metrics WHERE result_id = $1 ORDER BY metric_name`, stored.ResultID)
	if err != nil {
		return nil, fmt.Errorf("query form metrics: %w", err)
	}
	defer mrows.Close()
	for mrows.Next() {
		var metric core.MetricReport
		var metricStatus string
		if err := mrows.Scan(&metric.MetricName, &metric.ActualValue, &metric.TargetValue, &metricStatus); err != nil {
			return nil, fmt.Errorf("scan form metric: %w", err)
		}
		metric.Status = core.MetricStatus(metricStatus)
		stored.Result.Metrics = append(stored.Result.Metrics, metric)
	}

	srows, err := s.pool.Query(ctx,
		`SELECT strength_text FROM strengths WHERE result_id = $1 ORDER BY id`, stored.ResultID)
	if err != nil {
		return nil, fmt.Errorf("query strengths: %w", err)
	}
	defer srows.Close()
	for srows.Next() {
		var text string
		if err := srows.Scan(&text); err != nil {
			return nil, fmt.Errorf("scan strength: %w", err)
		}
		stored.Result.Strengths = append(stored.Result.Strengths, text)
	}

	rrows, err := s.pool.Query(ctx,
		`SELECT recommendation_text, priority FROM recommendations
		 WHERE result_id = $1 ORDER BY priority, id`, stored.ResultID)
	if err != nil {
		return nil, fmt.Errorf("query recommendations: %w", err)
	}
	defer rrows.Close()
	for rrows.Next() {
		var rec core.Recommendation
		if err := rrows.Scan(&rec.Text, &rec.Priority); err != nil {
			return nil, fmt.Errorf("scan recommendation: %w", err)
		}
		stored.Result.Recommendations = append(stored.Result.Recommendations, rec)
	}

	sortIssues(stored.Result.Issues)
	return &stored, nil
}

func sortIssues(issues []core.FormIssue) {
	sort.SliceStable(issues, func(i, j int) bool {
		if issues[i].FrameStart != issues[j].FrameStart {
			return issues[i].FrameStart < issues[j].FrameStart
		}
		return issues[i].IssueType < issues[j].IssueType
	})
}
