package store

import (
	"time"

	"github.com/raaihank/scan-redactor/internal/config"
)

// Job is one redaction run over a single text or document.
type Job struct {
	ID             string    `db:"id" json:"id"`
	Source         string    `db:"source" json:"source"`
	Mode           string    `db:"mode" json:"mode"`
	Categories     string    `db:"categories" json:"categories"`
	OCRTolerance   bool      `db:"ocr_tolerance" json:"ocr_tolerance"`
	RedactionCount int       `db:"redaction_count" json:"redaction_count"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// AuditRow is one persisted audit entry. It never carries redacted text.
type AuditRow struct {
	JobID    string `db:"job_id" json:"job_id"`
	Seq      int    `db:"seq" json:"seq"`
	Category string `db:"category" json:"category"`
	Length   int    `db:"length" json:"length"`
	Position int    `db:"position" json:"position"`
}

// JobRecord pairs a job with its audit trail for insertion.
type JobRecord struct {
	Job   *Job
	Audit []AuditRow
}

// BatchInsertResult contains the result of a batch insert operation
type BatchInsertResult struct {
	Inserted int64         `json:"inserted"`
	Failed   int64         `json:"failed"`
	Duration time.Duration `json:"duration"`
}

// AuditStats summarizes the store.
type AuditStats struct {
	TotalJobs       int64            `json:"total_jobs"`
	TotalRedactions int64            `json:"total_redactions"`
	CleanJobs       int64            `json:"clean_jobs"`
	ByCategory      map[string]int64 `json:"by_category"`
}

// Config contains database configuration
type Config struct {
	DatabaseURL     string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// ConfigFrom converts the file configuration section.
func ConfigFrom(c config.StoreConfig) *Config {
	return &Config{
		DatabaseURL:     c.DatabaseURL,
		MaxOpenConns:    c.MaxOpenConns,
		MaxIdleConns:    c.MaxIdleConns,
		ConnMaxLifetime: c.ConnMaxLifetime,
		ConnMaxIdleTime: c.ConnMaxIdleTime,
	}
}
