package redaction

import "fmt"

// Error is a typed redaction error, compared by identity with errors.Is.
type Error struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

func (e *Error) Error() string {
	return e.Message
}

// Common error types
var (
	ErrExtractionFailed   = &Error{Type: "extraction_failed", Message: "text extraction failed", Code: 2001}
	ErrNoSensitiveContent = &Error{Type: "no_sensitive_content", Message: "no sensitive content found", Code: 2002}
	ErrInvalidPolicy      = &Error{Type: "invalid_policy", Message: "invalid redaction policy", Code: 2003}
	ErrInternal           = &Error{Type: "internal", Message: "internal redaction failure", Code: 2004}
)

// Stage names the external collaborator that failed.
type Stage string

const (
	StageRaster Stage = "raster"
	StageOCR    Stage = "ocr"
	StageNER    Stage = "ner"
	StageExport Stage = "export"
)

// ExtractionError wraps a failure of an external collaborator (rasterizer,
// OCR, NER). It matches ErrExtractionFailed under errors.Is and unwraps to
// the underlying cause.
type ExtractionError struct {
	Stage Stage
	Page  int // zero-based page, -1 when not page specific
	Err   error
}

// NewExtractionError wraps err for the given stage.
func NewExtractionError(stage Stage, page int, err error) *ExtractionError {
	return &ExtractionError{Stage: stage, Page: page, Err: err}
}

func (e *ExtractionError) Error() string {
	if e.Page >= 0 {
		return fmt.Sprintf("%s failed on page %d: %v", e.Stage, e.Page+1, e.Err)
	}
	return fmt.Sprintf("%s failed: %v", e.Stage, e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

func (e *ExtractionError) Is(target error) bool {
	return target == ErrExtractionFailed
}
