//go:build !cgo

package ocr

import (
	"context"
	"errors"
	"image"

	"github.com/raaihank/scan-redactor/internal/logger"
)

// ErrTesseractUnavailable is returned when the binary was built without cgo.
var ErrTesseractUnavailable = errors.New("tesseract OCR requires a cgo build")

// TesseractReader is a placeholder in non-cgo builds.
type TesseractReader struct{}

// NewTesseractReader always fails in non-cgo builds.
func NewTesseractReader([]string, *logger.Logger) (*TesseractReader, error) {
	return nil, ErrTesseractUnavailable
}

// Read always fails in non-cgo builds.
func (*TesseractReader) Read(context.Context, image.Image) ([]Fragment, error) {
	return nil, ErrTesseractUnavailable
}
