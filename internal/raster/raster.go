// Package raster turns an uploaded document into page images.
//
// Scanned PDFs carry each page as one or more embedded image XObjects;
// those are extracted rather than rendered. Plain PNG and JPEG uploads
// are treated as single-page documents.
package raster

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"math"
	"sort"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/raaihank/scan-redactor/internal/logger"
	"github.com/wudi/pdfkit/extractor"
	"github.com/wudi/pdfkit/ir"
	"go.uber.org/zap"
)

// ErrUnsupportedFormat is returned for inputs that are neither PDF nor a
// supported image.
var ErrUnsupportedFormat = errors.New("unsupported document format")

// Format is the detected container of an input document.
type Format string

const (
	FormatPDF  Format = "pdf"
	FormatPNG  Format = "png"
	FormatJPEG Format = "jpeg"
)

// Rasterizer extracts page images from documents.
type Rasterizer struct {
	logger *logger.Logger
}

// New creates a rasterizer.
func New(log *logger.Logger) *Rasterizer {
	if log == nil {
		log = logger.Nop()
	}
	return &Rasterizer{logger: log.WithComponent("raster")}
}

// Sniff detects the document format from its leading bytes.
func Sniff(r io.ReaderAt) (Format, error) {
	head := make([]byte, 8)
	n, err := r.ReadAt(head, 0)
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read document header: %w", err)
	}
	head = head[:n]

	switch {
	case bytes.HasPrefix(head, []byte("%PDF-")):
		return FormatPDF, nil
	case bytes.HasPrefix(head, []byte("\x89PNG\r\n\x1a\n")):
		return FormatPNG, nil
	case bytes.HasPrefix(head, []byte{0xFF, 0xD8, 0xFF}):
		return FormatJPEG, nil
	}
	return "", ErrUnsupportedFormat
}

// Render returns the page images of doc in page order. Pages with several
// images yield them ordered by resource name.
func (r *Rasterizer) Render(ctx context.Context, doc io.ReaderAt) ([]image.Image, error) {
	format, err := Sniff(doc)
	if err != nil {
		return nil, err
	}

	if format != FormatPDF {
		img, err := imaging.Decode(io.NewSectionReader(doc, 0, math.MaxInt64), imaging.AutoOrientation(true))
		if err != nil {
			return nil, fmt.Errorf("failed to decode %s image: %w", format, err)
		}
		return []image.Image{img}, nil
	}

	ext, err := r.open(ctx, doc)
	if err != nil {
		return nil, err
	}

	assets, err := ext.ExtractImages()
	if err != nil {
		return nil, fmt.Errorf("failed to extract page images: %w", err)
	}
	sort.SliceStable(assets, func(i, j int) bool {
		if assets[i].Page != assets[j].Page {
			return assets[i].Page < assets[j].Page
		}
		return assets[i].ResourceName < assets[j].ResourceName
	})

	pages := make([]image.Image, 0, len(assets))
	for _, asset := range assets {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		img, err := toImage(asset)
		if err != nil {
			r.logger.Warn("Skipping undecodable page image",
				zap.Int("page", asset.Page+1),
				zap.String("resource", asset.ResourceName),
				zap.Strings("filters", asset.Filters),
				zap.Error(err),
			)
			continue
		}
		pages = append(pages, img)
	}

	r.logger.Debug("Document rasterized",
		zap.Int("images", len(assets)),
		zap.Int("pages", len(pages)),
	)
	return pages, nil
}

// TextLayer returns the embedded text of each PDF page, for born-digital
// documents that carry no page images.
func (r *Rasterizer) TextLayer(ctx context.Context, doc io.ReaderAt) ([]string, error) {
	ext, err := r.open(ctx, doc)
	if err != nil {
		return nil, err
	}

	pages, err := ext.ExtractText()
	if err != nil {
		return nil, fmt.Errorf("failed to extract text layer: %w", err)
	}
	sort.SliceStable(pages, func(i, j int) bool { return pages[i].Page < pages[j].Page })

	texts := make([]string, 0, len(pages))
	for _, p := range pages {
		texts = append(texts, strings.TrimSpace(p.Content))
	}
	return texts, nil
}

func (r *Rasterizer) open(ctx context.Context, doc io.ReaderAt) (*extractor.Extractor, error) {
	parsed, err := ir.NewDefault().Parse(ctx, doc)
	if err != nil {
		return nil, fmt.Errorf("failed to parse PDF: %w", err)
	}
	dec := parsed.Decoded()
	if dec == nil {
		return nil, errors.New("PDF parser produced no decoded document")
	}
	ext, err := extractor.New(dec)
	if err != nil {
		return nil, fmt.Errorf("failed to init extractor: %w", err)
	}
	return ext, nil
}

// toImage converts an extracted asset, decoding JPEG streams the PDF
// filter chain left encoded.
func toImage(asset extractor.ImageAsset) (image.Image, error) {
	img, err := asset.ToImage()
	if err == nil {
		return img, nil
	}
	for _, f := range asset.Filters {
		if f == "DCTDecode" {
			decoded, _, derr := image.Decode(bytes.NewReader(asset.Data))
			if derr != nil {
				return nil, fmt.Errorf("%w (jpeg fallback: %v)", err, derr)
			}
			return decoded, nil
		}
	}
	return nil, err
}
