// Package batch redacts tabular datasets of text records.
package batch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/raaihank/scan-redactor/internal/logger"
	"github.com/raaihank/scan-redactor/internal/redaction"
	"github.com/raaihank/scan-redactor/internal/store"
	"go.uber.org/zap"
)

// Redactor is the engine entry point used for each record.
type Redactor interface {
	Redact(ctx context.Context, text string, p redaction.Policy) (redaction.Result, error)
}

// AuditSink persists job records. *store.Store implements it.
type AuditSink interface {
	BatchInsert(ctx context.Context, records []store.JobRecord) (*store.BatchInsertResult, error)
}

// Pipeline handles batch redaction of dataset files
type Pipeline struct {
	engine Redactor
	sink   AuditSink
	config *Config
	logger *logger.Logger

	mu        sync.Mutex
	startTime time.Time
}

// NewPipeline creates a new batch pipeline. sink may be nil.
func NewPipeline(engine Redactor, sink AuditSink, config *Config, log *logger.Logger) *Pipeline {
	if log == nil {
		log = logger.Nop()
	}
	if config == nil {
		config = &Config{}
	}
	return &Pipeline{
		engine: engine,
		sink:   sink,
		config: config.withDefaults(),
		logger: log.WithComponent("batch"),
	}
}

// ProcessFile redacts every record of inputPath under policy. When
// outputPath is non-empty, redacted rows are written there in the format
// its extension names.
func (p *Pipeline) ProcessFile(ctx context.Context, inputPath, outputPath string, policy redaction.Policy) (*ProcessingResult, error) {
	format := DetectFileFormat(inputPath)
	p.logger.Info("Starting batch redaction",
		zap.String("file", inputPath),
		zap.String("format", string(format)),
		zap.Int("batch_size", p.config.BatchSize),
		zap.Int("workers", p.config.WorkerCount))

	p.mu.Lock()
	p.startTime = time.Now()
	p.mu.Unlock()

	reader, err := openReader(inputPath, format)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	var writer recordWriter
	if outputPath != "" {
		if writer, err = createWriter(outputPath); err != nil {
			return nil, err
		}
	}

	start := time.Now()
	result := &ProcessingResult{}
	source := "batch:" + filepath.Base(inputPath)

	runErr := p.processBatches(ctx, func() ([]*Record, error) {
		return p.readBatch(reader, result)
	}, func(ctx context.Context, batch []*Record) error {
		return p.processBatch(ctx, source, batch, policy, writer, result)
	}, result)

	if writer != nil {
		if err := writer.Close(); err != nil && runErr == nil {
			runErr = fmt.Errorf("failed to finish output: %w", err)
		}
	}

	result.Duration = time.Since(start)
	p.logger.Info("Batch redaction completed",
		zap.Int64("total_records", result.TotalRecords),
		zap.Int64("processed_ok", result.ProcessedOK),
		zap.Int64("processed_failed", result.ProcessedFailed),
		zap.Int64("invalid", result.Invalid),
		zap.Int64("redactions", result.Redactions),
		zap.Duration("total_duration", result.Duration),
		zap.Duration("redact_time", result.RedactTime),
		zap.Duration("store_time", result.StoreTime))

	return result, runErr
}

func (p *Pipeline) readBatch(reader recordReader, result *ProcessingResult) ([]*Record, error) {
	var batch []*Record
	for len(batch) < p.config.BatchSize {
		rec, err := reader.Next()
		if err == io.EOF {
			break
		}
		if errors.Is(err, errStopReading) {
			return batch, err
		}
		if err != nil {
			p.logger.Warn("Failed to read record", zap.Error(err))
			result.Invalid++
			continue
		}
		if !p.validateRecord(rec) {
			result.Invalid++
			continue
		}
		batch = append(batch, rec)
	}
	return batch, nil
}

// processBatches processes data in batches using the provided reader function
func (p *Pipeline) processBatches(
	ctx context.Context,
	readBatch func() ([]*Record, error),
	process func(context.Context, []*Record) error,
	result *ProcessingResult,
) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		batch, readErr := readBatch()
		if len(batch) > 0 {
			if err := process(ctx, batch); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				p.logger.Error("Batch processing failed", zap.Error(err))
				result.ProcessedFailed += int64(len(batch))
				result.Errors = append(result.Errors, err.Error())
			} else {
				result.ProcessedOK += int64(len(batch))
			}
			before := result.TotalRecords
			result.TotalRecords += int64(len(batch))

			report := int64(p.config.ProgressReport)
			if report > 0 && before/report != result.TotalRecords/report {
				p.reportProgress(result)
			}
		}

		if readErr != nil {
			return fmt.Errorf("failed to read batch: %w", readErr)
		}
		if len(batch) == 0 {
			return nil
		}
	}
}

// processBatch redacts a batch concurrently, then persists and writes it
// in input order. A failed record fails the whole batch.
func (p *Pipeline) processBatch(
	ctx context.Context,
	source string,
	batch []*Record,
	policy redaction.Policy,
	writer recordWriter,
	result *ProcessingResult,
) error {
	results := make([]redaction.Result, len(batch))

	redactStart := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.config.WorkerCount)
	for i, rec := range batch {
		g.Go(func() error {
			res, err := p.engine.Redact(gctx, rec.Text, policy)
			if err != nil {
				return fmt.Errorf("record %s: %w", rec.ID, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	result.RedactTime += time.Since(redactStart)

	jobs := make([]store.JobRecord, len(batch))
	outputs := make([]OutputRecord, len(batch))
	var redactions int64
	for i, rec := range batch {
		jobs[i] = store.NewJobRecord(source+"#"+rec.ID, policy, results[i])
		outputs[i] = OutputRecord{
			ID:           rec.ID,
			RedactedText: results[i].RedactedText,
			Redactions:   int64(len(results[i].Audit)),
			Categories:   categoryList(results[i]),
			JobID:        jobs[i].Job.ID,
		}
		redactions += int64(len(results[i].Audit))
	}

	if p.sink != nil {
		storeStart := time.Now()
		if _, err := p.sink.BatchInsert(ctx, jobs); err != nil {
			return fmt.Errorf("audit insert failed: %w", err)
		}
		result.StoreTime += time.Since(storeStart)
	} else {
		for i := range outputs {
			outputs[i].JobID = ""
		}
	}

	if writer != nil {
		if err := writer.Write(outputs); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
	}

	result.Redactions += redactions
	p.logger.Debug("Batch processed successfully",
		zap.Int("batch_size", len(batch)),
		zap.Int64("redactions", redactions))
	return nil
}

// validateRecord validates a data record
func (p *Pipeline) validateRecord(rec *Record) bool {
	if !p.config.ValidateData {
		return true
	}
	if strings.TrimSpace(rec.Text) == "" {
		p.logger.Debug("Invalid record: empty text", zap.String("id", rec.ID))
		return false
	}
	if p.config.MaxTextLength > 0 && len(rec.Text) > p.config.MaxTextLength {
		p.logger.Debug("Invalid record: text too long",
			zap.String("id", rec.ID),
			zap.Int("length", len(rec.Text)))
		return false
	}
	return true
}

// reportProgress reports current processing progress
func (p *Pipeline) reportProgress(result *ProcessingResult) {
	p.mu.Lock()
	elapsed := time.Since(p.startTime)
	p.mu.Unlock()

	rate := float64(result.TotalRecords) / elapsed.Seconds()
	p.logger.Info("Processing progress",
		zap.Int64("records_processed", result.TotalRecords),
		zap.Int64("records_ok", result.ProcessedOK),
		zap.Int64("records_failed", result.ProcessedFailed),
		zap.Int64("redactions", result.Redactions),
		zap.Float64("rate_per_sec", rate),
		zap.Duration("elapsed", elapsed))
}

// categoryList names the categories redacted in a result, sorted by
// category priority.
func categoryList(res redaction.Result) string {
	var set redaction.CategorySet
	for _, e := range res.Audit {
		set = set.With(e.Category)
	}
	if set == 0 {
		return ""
	}
	return set.String()
}
