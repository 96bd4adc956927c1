//go:build cgo

package ocr

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"

	"github.com/otiai10/gosseract/v2"
	"github.com/raaihank/scan-redactor/internal/logger"
	"go.uber.org/zap"
)

// TesseractReader recognizes words with a fresh gosseract client per page,
// so one reader may serve concurrent pages.
type TesseractReader struct {
	languages []string
	logger    *logger.Logger
}

// NewTesseractReader creates a reader for the given Tesseract language codes.
// An empty list means English.
func NewTesseractReader(languages []string, log *logger.Logger) (*TesseractReader, error) {
	if len(languages) == 0 {
		languages = []string{"eng"}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &TesseractReader{languages: languages, logger: log.WithComponent("ocr")}, nil
}

// Read runs word-level recognition on img.
func (r *TesseractReader) Read(ctx context.Context, img image.Image) ([]Fragment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode page image: %w", err)
	}

	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetLanguage(r.languages...); err != nil {
		return nil, fmt.Errorf("failed to set language: %w", err)
	}
	if err := client.SetImageFromBytes(buf.Bytes()); err != nil {
		return nil, fmt.Errorf("failed to set image: %w", err)
	}

	boxes, err := client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		return nil, fmt.Errorf("OCR failed: %w", err)
	}

	fragments := make([]Fragment, 0, len(boxes))
	for _, box := range boxes {
		if box.Word == "" {
			continue
		}
		fragments = append(fragments, Fragment{
			Text:       box.Word,
			Bounds:     box.Box,
			Confidence: box.Confidence / 100.0,
		})
	}

	r.logger.Debug("Page recognized",
		zap.Int("words", len(fragments)),
		zap.Int("width", img.Bounds().Dx()),
		zap.Int("height", img.Bounds().Dy()),
	)
	return fragments, nil
}
