package ocr

import (
	"context"
	"image"
	"strings"

	"github.com/raaihank/scan-redactor/internal/config"
	"github.com/raaihank/scan-redactor/internal/logger"
)

// Fragment is one recognized word with its location on the page.
type Fragment struct {
	Text string `json:"text"`

	// Bounds is the word box in page pixel coordinates.
	Bounds image.Rectangle `json:"bounds"`

	// Confidence is the recognizer confidence in [0, 1].
	Confidence float64 `json:"confidence"`
}

// Reader recognizes text on a single page image.
type Reader interface {
	Read(ctx context.Context, img image.Image) ([]Fragment, error)
}

// New builds the Tesseract reader described by cfg, with preprocessing
// applied to every page when enabled.
func New(cfg config.OCRConfig, log *logger.Logger) (Reader, error) {
	reader, err := NewTesseractReader(cfg.Languages, log)
	if err != nil {
		return nil, err
	}
	if !cfg.Preprocess {
		return reader, nil
	}
	return &preprocessingReader{
		next: reader,
		opts: PreprocessOptions{MinWidth: cfg.MinWidth, Threshold: cfg.Threshold},
	}, nil
}

type preprocessingReader struct {
	next Reader
	opts PreprocessOptions
}

func (r *preprocessingReader) Read(ctx context.Context, img image.Image) ([]Fragment, error) {
	return r.next.Read(ctx, Preprocess(img, r.opts))
}

// PageText joins the fragment texts of one page with single spaces.
func PageText(fragments []Fragment) string {
	words := make([]string, 0, len(fragments))
	for _, f := range fragments {
		if t := strings.TrimSpace(f.Text); t != "" {
			words = append(words, t)
		}
	}
	return strings.Join(words, " ")
}
