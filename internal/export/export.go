// Package export serializes redacted text as PDF, DOCX or plain text.
package export

import (
	"fmt"
	"strings"

	"github.com/raaihank/scan-redactor/internal/config"
)

// Format is an output document format.
type Format string

const (
	FormatPDF  Format = "pdf"
	FormatDOCX Format = "docx"
	FormatText Format = "txt"
)

// ParseFormat accepts pdf, docx, txt or text.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pdf":
		return FormatPDF, nil
	case "docx", "word":
		return FormatDOCX, nil
	case "txt", "text":
		return FormatText, nil
	}
	return "", fmt.Errorf("unknown export format %q", s)
}

// Extension returns the file extension including the dot.
func (f Format) Extension() string { return "." + string(f) }

// ContentType returns the MIME type of the format.
func (f Format) ContentType() string {
	switch f {
	case FormatPDF:
		return "application/pdf"
	case FormatDOCX:
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	}
	return "text/plain; charset=utf-8"
}

// Exporter renders text documents.
type Exporter struct {
	fontSize float64
	margin   float64
	title    string
}

// New creates an exporter from the export configuration.
func New(cfg config.ExportConfig) *Exporter {
	e := &Exporter{fontSize: cfg.FontSize, margin: cfg.Margin, title: "Redacted document"}
	if e.fontSize <= 0 {
		e.fontSize = 12
	}
	if e.margin < 0 {
		e.margin = 15
	}
	return e
}

// Write renders text in the given format.
func (e *Exporter) Write(format Format, text string) ([]byte, error) {
	switch format {
	case FormatPDF:
		return e.WritePDF(text)
	case FormatDOCX:
		return e.WriteDOCX(text)
	case FormatText:
		return []byte(text), nil
	}
	return nil, fmt.Errorf("unknown export format %q", format)
}
