// Package store persists redaction jobs and their audit trails in
// PostgreSQL. Original text and redacted output are never stored.
package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/raaihank/scan-redactor/internal/logger"
	"github.com/raaihank/scan-redactor/internal/redaction"
	"go.uber.org/zap"
)

const schema = `
CREATE TABLE IF NOT EXISTS redaction_jobs (
	id              UUID PRIMARY KEY,
	source          TEXT NOT NULL,
	mode            TEXT NOT NULL,
	categories      TEXT NOT NULL,
	ocr_tolerance   BOOLEAN NOT NULL DEFAULT FALSE,
	redaction_count INTEGER NOT NULL DEFAULT 0,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS redaction_audit (
	job_id   UUID NOT NULL REFERENCES redaction_jobs(id) ON DELETE CASCADE,
	seq      INTEGER NOT NULL,
	category TEXT NOT NULL,
	length   INTEGER NOT NULL,
	position INTEGER NOT NULL,
	PRIMARY KEY (job_id, seq)
);

CREATE INDEX IF NOT EXISTS idx_redaction_audit_category ON redaction_audit (category);
CREATE INDEX IF NOT EXISTS idx_redaction_jobs_created_at ON redaction_jobs (created_at);
`

// Postgres caps bind parameters per statement at 65535.
const maxParams = 65535

// Store handles audit storage operations with PostgreSQL
type Store struct {
	db     *sqlx.DB
	logger *logger.Logger
}

// NewStore connects, tunes the pool and ensures the schema exists.
func NewStore(config *Config, log *logger.Logger) (*Store, error) {
	if log == nil {
		log = logger.Nop()
	}

	db, err := sqlx.Connect("postgres", config.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	s := &Store{db: db, logger: log.WithComponent("store")}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}

	s.logger.Info("Audit store initialized successfully",
		zap.String("database_url", maskDatabaseURL(config.DatabaseURL)),
		zap.Int("max_open_conns", config.MaxOpenConns),
		zap.Int("max_idle_conns", config.MaxIdleConns))

	return s, nil
}

// EnsureSchema creates the job and audit tables when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// NewJobRecord builds the record of one engine run. A job ID is generated.
func NewJobRecord(source string, p redaction.Policy, res redaction.Result) JobRecord {
	job := &Job{
		ID:             uuid.NewString(),
		Source:         source,
		Mode:           p.Mode.String(),
		Categories:     p.Categories.String(),
		OCRTolerance:   p.OCRTolerance,
		RedactionCount: len(res.Audit),
		CreatedAt:      time.Now().UTC(),
	}

	audit := make([]AuditRow, len(res.Audit))
	for i, e := range res.Audit {
		audit[i] = AuditRow{
			JobID:    job.ID,
			Seq:      i,
			Category: e.Category.String(),
			Length:   e.Length,
			Position: e.Position,
		}
	}
	return JobRecord{Job: job, Audit: audit}
}

// Insert stores one job and its audit trail in a transaction.
func (s *Store) Insert(ctx context.Context, rec JobRecord) error {
	_, err := s.BatchInsert(ctx, []JobRecord{rec})
	return err
}

// BatchInsert stores jobs and audits with multi-row inserts inside a
// single transaction.
func (s *Store) BatchInsert(ctx context.Context, records []JobRecord) (*BatchInsertResult, error) {
	if len(records) == 0 {
		return &BatchInsertResult{}, nil
	}

	start := time.Now()
	result := &BatchInsertResult{}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	jobs := make([]*Job, len(records))
	var audit []AuditRow
	for i, r := range records {
		jobs[i] = r.Job
		audit = append(audit, r.Audit...)
	}

	for _, part := range chunk(jobs, maxParams/jobColumns) {
		query, args := buildJobInsert(part)
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			result.Failed = int64(len(records))
			s.logger.Error("Job batch insert failed", zap.Error(err))
			return result, fmt.Errorf("job batch insert failed: %w", err)
		}
	}

	for _, part := range chunk(audit, maxParams/auditColumns) {
		query, args := buildAuditInsert(part)
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			result.Failed = int64(len(records))
			s.logger.Error("Audit batch insert failed", zap.Error(err))
			return result, fmt.Errorf("audit batch insert failed: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		result.Failed = int64(len(records))
		return result, fmt.Errorf("failed to commit batch: %w", err)
	}

	result.Inserted = int64(len(records))
	result.Duration = time.Since(start)

	s.logger.Debug("Batch insert completed",
		zap.Int64("jobs", result.Inserted),
		zap.Int("audit_rows", len(audit)),
		zap.Duration("duration", result.Duration))

	return result, nil
}

// GetJob returns one job by ID.
func (s *Store) GetJob(ctx context.Context, id string) (*Job, error) {
	var job Job
	query := `SELECT id, source, mode, categories, ocr_tolerance, redaction_count, created_at
		FROM redaction_jobs WHERE id = $1`
	if err := s.db.GetContext(ctx, &job, query, id); err != nil {
		return nil, fmt.Errorf("failed to get job %s: %w", id, err)
	}
	return &job, nil
}

// ListAudit returns the audit trail of a job in position order.
func (s *Store) ListAudit(ctx context.Context, jobID string) ([]AuditRow, error) {
	var rows []AuditRow
	query := `SELECT job_id, seq, category, length, position
		FROM redaction_audit WHERE job_id = $1 ORDER BY seq`
	if err := s.db.SelectContext(ctx, &rows, query, jobID); err != nil {
		return nil, fmt.Errorf("failed to list audit for job %s: %w", jobID, err)
	}
	return rows, nil
}

// Stats returns totals across all jobs.
func (s *Store) Stats(ctx context.Context) (*AuditStats, error) {
	stats := &AuditStats{ByCategory: make(map[string]int64)}

	query := `
		SELECT
			COUNT(*) AS total,
			COALESCE(SUM(redaction_count), 0) AS redactions,
			COUNT(CASE WHEN redaction_count = 0 THEN 1 END) AS clean
		FROM redaction_jobs`
	if err := s.db.QueryRowContext(ctx, query).Scan(
		&stats.TotalJobs,
		&stats.TotalRedactions,
		&stats.CleanJobs,
	); err != nil {
		return nil, fmt.Errorf("failed to get job stats: %w", err)
	}

	var counts []struct {
		Category string `db:"category"`
		Count    int64  `db:"count"`
	}
	if err := s.db.SelectContext(ctx, &counts,
		`SELECT category, COUNT(*) AS count FROM redaction_audit GROUP BY category`); err != nil {
		return nil, fmt.Errorf("failed to get category stats: %w", err)
	}
	for _, c := range counts {
		stats.ByCategory[c.Category] = c.Count
	}
	return stats, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

const (
	jobColumns   = 7
	auditColumns = 5
)

func buildJobInsert(jobs []*Job) (string, []any) {
	values := make([]string, 0, len(jobs))
	args := make([]any, 0, len(jobs)*jobColumns)
	for i, j := range jobs {
		values = append(values, placeholders(i, jobColumns))
		args = append(args, j.ID, j.Source, j.Mode, j.Categories, j.OCRTolerance, j.RedactionCount, j.CreatedAt)
	}
	return fmt.Sprintf(`INSERT INTO redaction_jobs
		(id, source, mode, categories, ocr_tolerance, redaction_count, created_at)
		VALUES %s`, strings.Join(values, ",")), args
}

func buildAuditInsert(rows []AuditRow) (string, []any) {
	values := make([]string, 0, len(rows))
	args := make([]any, 0, len(rows)*auditColumns)
	for i, r := range rows {
		values = append(values, placeholders(i, auditColumns))
		args = append(args, r.JobID, r.Seq, r.Category, r.Length, r.Position)
	}
	return fmt.Sprintf(`INSERT INTO redaction_audit
		(job_id, seq, category, length, position)
		VALUES %s`, strings.Join(values, ",")), args
}

// placeholders renders "($n, ...)" for row i of a multi-row insert.
func placeholders(row, columns int) string {
	var b strings.Builder
	b.WriteByte('(')
	for c := 0; c < columns; c++ {
		if c > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "$%d", row*columns+c+1)
	}
	b.WriteByte(')')
	return b.String()
}

func chunk[T any](items []T, size int) [][]T {
	var out [][]T
	for size < len(items) {
		items, out = items[size:], append(out, items[:size])
	}
	if len(items) > 0 {
		out = append(out, items)
	}
	return out
}

// maskDatabaseURL masks the password in a database URL for logging
func maskDatabaseURL(url string) string {
	at := strings.LastIndex(url, "@")
	if at < 0 {
		return url
	}
	userPart := url[:at]
	if colon := strings.LastIndex(userPart, ":"); colon > strings.Index(userPart, "://") {
		return userPart[:colon+1] + "***" + url[at:]
	}
	return url
}
