package batch

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/raaihank/scan-redactor/internal/config"
)

// Record is one input row.
type Record struct {
	ID   string `csv:"id" parquet:"id" json:"id"`
	Text string `csv:"text" parquet:"text" json:"text"`
}

// OutputRecord is one redacted row. It carries no original text.
type OutputRecord struct {
	ID           string `parquet:"id" json:"id"`
	RedactedText string `parquet:"redacted_text" json:"redacted_text"`
	Redactions   int64  `parquet:"redactions" json:"redactions"`
	Categories   string `parquet:"categories" json:"categories"`
	JobID        string `parquet:"job_id,optional" json:"job_id,omitempty"`
}

// ProcessingResult represents the result of processing a dataset
type ProcessingResult struct {
	TotalRecords    int64         `json:"total_records"`
	ProcessedOK     int64         `json:"processed_ok"`
	ProcessedFailed int64         `json:"processed_failed"`
	Invalid         int64         `json:"invalid"`
	Redactions      int64         `json:"redactions"`
	Duration        time.Duration `json:"duration"`
	RedactTime      time.Duration `json:"redact_time"`
	StoreTime       time.Duration `json:"store_time"`
	Errors          []string      `json:"errors,omitempty"`
}

// Config contains batch pipeline configuration
type Config struct {
	BatchSize      int
	WorkerCount    int
	ProgressReport int
	ValidateData   bool
	MaxTextLength  int
}

// ConfigFrom converts the file configuration section, filling zero values
// with defaults.
func ConfigFrom(c config.BatchConfig) *Config {
	return Config{
		BatchSize:      c.BatchSize,
		WorkerCount:    c.WorkerCount,
		ProgressReport: c.ProgressReport,
		ValidateData:   c.ValidateData,
		MaxTextLength:  c.MaxTextLength,
	}.withDefaults()
}

// withDefaults returns a copy with non-positive sizes replaced. A worker
// limit of zero would block every errgroup.Go call.
func (c Config) withDefaults() *Config {
	if c.BatchSize <= 0 {
		c.BatchSize = 500
	}
	if c.WorkerCount <= 0 {
		c.WorkerCount = 1
	}
	if c.ProgressReport <= 0 {
		c.ProgressReport = 1000
	}
	return &c
}

// FileFormat represents supported file formats
type FileFormat string

const (
	FormatCSV     FileFormat = "csv"
	FormatParquet FileFormat = "parquet"
	FormatJSON    FileFormat = "jsonl"
)

// DetectFileFormat detects file format from extension
func DetectFileFormat(filename string) FileFormat {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".parquet":
		return FormatParquet
	case ".json", ".jsonl", ".ndjson":
		return FormatJSON
	default:
		return FormatCSV
	}
}
