//go:build !onnx
// +build !onnx

package ner

import (
	"errors"

	"github.com/raaihank/scan-redactor/internal/config"
	"github.com/raaihank/scan-redactor/internal/logger"
)

// ErrOnnxUnavailable is returned when the binary was built without the
// onnx tag.
var ErrOnnxUnavailable = errors.New("onnx backend not compiled in (rebuild with -tags onnx)")

// NewOnnxTagger is unavailable in default builds to avoid the ONNX Runtime
// cgo dependency.
func NewOnnxTagger(config.NERConfig, *logger.Logger) (Tagger, error) {
	return nil, ErrOnnxUnavailable
}
