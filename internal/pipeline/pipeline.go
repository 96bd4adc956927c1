// Package pipeline drives a scanned document through rasterization, OCR,
// redaction and export.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/raaihank/scan-redactor/internal/export"
	"github.com/raaihank/scan-redactor/internal/logger"
	"github.com/raaihank/scan-redactor/internal/ocr"
	"github.com/raaihank/scan-redactor/internal/redaction"
	"go.uber.org/zap"
)

// ErrNoPages is wrapped in a raster ExtractionError when a document yields
// neither page images nor a text layer.
var ErrNoPages = errors.New("document contains no pages to read")

// Rasterizer turns a document into page images.
type Rasterizer interface {
	Render(ctx context.Context, doc io.ReaderAt) ([]image.Image, error)
}

// TextLayerer is implemented by rasterizers that can also return embedded
// page text for documents without page images.
type TextLayerer interface {
	TextLayer(ctx context.Context, doc io.ReaderAt) ([]string, error)
}

// Redactor is the engine entry point used by the pipeline.
type Redactor interface {
	Redact(ctx context.Context, text string, p redaction.Policy) (redaction.Result, error)
}

// ProcessingStats reports per-stage timings and redaction counts. It never
// contains document text.
type ProcessingStats struct {
	Pages      int            `json:"pages"`
	Characters int            `json:"characters"`
	Redactions int            `json:"redactions"`
	Counts     map[string]int `json:"counts"`
	RenderTime time.Duration  `json:"render_time"`
	OCRTime    time.Duration  `json:"ocr_time"`
	RedactTime time.Duration  `json:"redact_time"`
	ExportTime time.Duration  `json:"export_time"`
	TotalTime  time.Duration  `json:"total_time"`
	TextLayer  bool           `json:"text_layer"`
}

// DocumentResult is the outcome of processing one document.
type DocumentResult struct {
	Result  redaction.Result
	Outputs map[export.Format][]byte
	Stats   ProcessingStats
}

// Config tunes the pipeline.
type Config struct {
	// Workers bounds concurrent page recognition.
	Workers int

	// Clean normalizes OCR artifacts before redaction.
	Clean bool
}

// Pipeline processes scanned documents end to end. It is safe for
// concurrent use when its collaborators are.
type Pipeline struct {
	raster   Rasterizer
	reader   ocr.Reader
	engine   Redactor
	exporter *export.Exporter
	config   Config
	logger   *logger.Logger
}

// New creates a pipeline.
func New(raster Rasterizer, reader ocr.Reader, engine Redactor, exporter *export.Exporter, cfg Config, log *logger.Logger) *Pipeline {
	if log == nil {
		log = logger.Nop()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	return &Pipeline{
		raster:   raster,
		reader:   reader,
		engine:   engine,
		exporter: exporter,
		config:   cfg,
		logger:   log.WithComponent("pipeline"),
	}
}

// Process extracts the text of doc, redacts it under p and renders the
// requested output formats. Collaborator failures are returned as
// *redaction.ExtractionError.
func (p *Pipeline) Process(ctx context.Context, doc io.ReaderAt, policy redaction.Policy, formats ...export.Format) (*DocumentResult, error) {
	start := time.Now()
	res := &DocumentResult{Outputs: make(map[export.Format][]byte, len(formats))}
	stats := &res.Stats

	pages, err := p.extract(ctx, doc, stats)
	if err != nil {
		return nil, err
	}

	text := strings.Join(pages, "\n")
	if p.config.Clean {
		text = ocr.Clean(text)
	}
	stats.Pages = len(pages)
	stats.Characters = len(text)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	redactStart := time.Now()
	result, err := p.engine.Redact(ctx, text, policy)
	if err != nil {
		return nil, err
	}
	stats.RedactTime = time.Since(redactStart)
	res.Result = result
	stats.Redactions = len(result.Audit)
	stats.Counts = result.Counts()

	exportStart := time.Now()
	for _, format := range formats {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out, err := p.exporter.Write(format, result.RedactedText)
		if err != nil {
			return nil, redaction.NewExtractionError(redaction.StageExport, -1, err)
		}
		res.Outputs[format] = out
	}
	stats.ExportTime = time.Since(exportStart)
	stats.TotalTime = time.Since(start)

	p.logger.Info("Document processed",
		zap.Int("pages", stats.Pages),
		zap.Int("redactions", stats.Redactions),
		zap.Any("counts", stats.Counts),
		zap.Duration("ocr_time", stats.OCRTime),
		zap.Duration("total_time", stats.TotalTime),
	)
	return res, nil
}

// extract returns one text per page, OCR'd from page images or taken from
// the text layer when the document has no images.
func (p *Pipeline) extract(ctx context.Context, doc io.ReaderAt, stats *ProcessingStats) ([]string, error) {
	renderStart := time.Now()
	images, err := p.raster.Render(ctx, doc)
	if err != nil {
		return nil, redaction.NewExtractionError(redaction.StageRaster, -1, err)
	}
	stats.RenderTime = time.Since(renderStart)

	if len(images) == 0 {
		tl, ok := p.raster.(TextLayerer)
		if !ok {
			return nil, redaction.NewExtractionError(redaction.StageRaster, -1, ErrNoPages)
		}
		pages, err := tl.TextLayer(ctx, doc)
		if err != nil {
			return nil, redaction.NewExtractionError(redaction.StageRaster, -1, err)
		}
		if len(pages) == 0 {
			return nil, redaction.NewExtractionError(redaction.StageRaster, -1, ErrNoPages)
		}
		stats.TextLayer = true
		p.logger.Debug("Using embedded text layer", zap.Int("pages", len(pages)))
		return pages, nil
	}

	ocrStart := time.Now()
	pages, err := p.recognize(ctx, images)
	if err != nil {
		return nil, err
	}
	stats.OCRTime = time.Since(ocrStart)
	return pages, nil
}

// recognize runs OCR over pages concurrently, keeping page order.
func (p *Pipeline) recognize(ctx context.Context, images []image.Image) ([]string, error) {
	pages := make([]string, len(images))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.config.Workers)
	for i, img := range images {
		g.Go(func() error {
			fragments, err := p.reader.Read(gctx, img)
			if err != nil {
				return redaction.NewExtractionError(redaction.StageOCR, i, err)
			}
			pages[i] = ocr.PageText(fragments)
			p.logger.Debug("Page recognized", zap.Int("page", i+1), zap.Int("words", len(fragments)))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, err
	}
	return pages, nil
}

// Describe returns a short summary of the stats suitable for CLI output.
func (s ProcessingStats) Describe() string {
	return fmt.Sprintf("%d page(s), %d redaction(s) in %s", s.Pages, s.Redactions, s.TotalTime.Round(time.Millisecond))
}
