package export

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/wudi/pdfkit/builder"
	"github.com/wudi/pdfkit/ir/semantic"
	"github.com/wudi/pdfkit/writer"
)

// A4 in points.
const (
	pageWidth  = 595.0
	pageHeight = 842.0

	pointsPerMM  = 72 / 25.4
	lineHeightMM = 10
)

// WritePDF lays text out on A4 pages in 12pt Helvetica, wrapping long lines
// and breaking pages at the bottom margin.
func (e *Exporter) WritePDF(text string) ([]byte, error) {
	margin := e.margin * pointsPerMM
	lineHeight := lineHeightMM * pointsPerMM
	if lineHeight < e.fontSize*1.2 {
		lineHeight = e.fontSize * 1.2
	}

	lines := wrapLines(text, pageWidth-2*margin, e.fontSize)
	perPage := int((pageHeight - 2*margin) / lineHeight)
	if perPage < 1 {
		perPage = 1
	}

	b := builder.NewBuilder()
	b.SetInfo(&semantic.DocumentInfo{Title: e.title, Producer: "scan-redactor"})

	if len(lines) == 0 {
		lines = []string{""}
	}
	for start := 0; start < len(lines); start += perPage {
		page := b.NewPage(pageWidth, pageHeight)
		y := pageHeight - margin - e.fontSize
		for _, line := range lines[start:min(start+perPage, len(lines))] {
			if line != "" {
				page.DrawText(line, margin, y, builder.TextOptions{FontSize: e.fontSize})
			}
			y -= lineHeight
		}
		page.Finish()
	}

	doc, err := b.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build PDF: %w", err)
	}

	var buf bytes.Buffer
	w := (&writer.WriterBuilder{}).Build()
	if err := w.Write(context.Background(), doc, &buf, writer.Config{Deterministic: true}); err != nil {
		return nil, fmt.Errorf("failed to write PDF: %w", err)
	}
	return buf.Bytes(), nil
}

// wrapLines splits text into lines no wider than width points. Words wider
// than a line are broken by rune.
func wrapLines(text string, width, fontSize float64) []string {
	var out []string
	for _, para := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		words := strings.Fields(winAnsi(para))
		if len(words) == 0 {
			out = append(out, "")
			continue
		}

		var line strings.Builder
		lineWidth := 0.0
		space := textWidth(" ", fontSize)
		for _, word := range words {
			ww := textWidth(word, fontSize)
			if line.Len() > 0 && lineWidth+space+ww <= width {
				line.WriteByte(' ')
				line.WriteString(word)
				lineWidth += space + ww
				continue
			}
			if line.Len() > 0 {
				out = append(out, line.String())
				line.Reset()
				lineWidth = 0
			}
			for ww > width {
				head, rest := splitWord(word, width, fontSize)
				out = append(out, head)
				word = rest
				ww = textWidth(word, fontSize)
			}
			line.WriteString(word)
			lineWidth = ww
		}
		out = append(out, line.String())
	}
	return out
}

func splitWord(word string, width, fontSize float64) (string, string) {
	w := 0.0
	for i, r := range word {
		w += runeWidth(r) * fontSize
		if w > width && i > 0 {
			return word[:i], word[i:]
		}
	}
	return word, ""
}

func textWidth(s string, fontSize float64) float64 {
	var w float64
	for _, r := range s {
		w += runeWidth(r)
	}
	return w * fontSize
}

// runeWidth approximates Helvetica advance widths in em.
func runeWidth(r rune) float64 {
	switch {
	case strings.ContainsRune("iljI.,;:'|!", r):
		return 0.28
	case strings.ContainsRune("ftr()[] -", r):
		return 0.34
	case strings.ContainsRune("mwMW@", r):
		return 0.85
	case r >= 'A' && r <= 'Z':
		return 0.68
	}
	return 0.56
}

// winAnsi replaces runes the standard Helvetica encoding cannot show.
func winAnsi(s string) string {
	return strings.Map(func(r rune) rune {
		if r > 0xFF {
			return '?'
		}
		return r
	}, s)
}
