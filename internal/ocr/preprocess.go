package ocr

import (
	"image"

	"github.com/anthonynsimon/bild/segment"
	"github.com/disintegration/imaging"
)

// PreprocessOptions controls page cleanup before recognition.
type PreprocessOptions struct {
	// MinWidth upscales narrower pages to this width. Zero disables.
	MinWidth int

	// Threshold is the binarization level. Zero picks one per page with
	// Otsu's method.
	Threshold int
}

// Preprocess converts a scanned page to a high-contrast black and white
// image that Tesseract reads more reliably.
func Preprocess(img image.Image, opts PreprocessOptions) image.Image {
	if img == nil || img.Bounds().Empty() {
		return img
	}

	gray := imaging.Grayscale(img)
	if opts.MinWidth > 0 && gray.Bounds().Dx() < opts.MinWidth {
		gray = imaging.Resize(gray, opts.MinWidth, 0, imaging.Lanczos)
	}
	gray = imaging.AdjustContrast(gray, 20)
	gray = imaging.Sharpen(gray, 1.0)

	level := opts.Threshold
	if level <= 0 || level > 255 {
		level = otsuLevel(gray)
	}
	return segment.Threshold(gray, uint8(level))
}

// otsuLevel picks the gray level that maximizes between-class variance.
// Input must already be grayscale, so only the red channel is read.
func otsuLevel(img *image.NRGBA) int {
	var hist [256]int
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := img.Pix[(y-b.Min.Y)*img.Stride:]
		for x := 0; x < b.Dx(); x++ {
			hist[row[x*4]]++
		}
	}

	total := b.Dx() * b.Dy()
	var sum float64
	for i, n := range hist {
		sum += float64(i * n)
	}

	var (
		sumB, best float64
		weightB    int
		level      = 128
	)
	for t, n := range hist {
		weightB += n
		if weightB == 0 {
			continue
		}
		weightF := total - weightB
		if weightF == 0 {
			break
		}
		sumB += float64(t * n)
		meanB := sumB / float64(weightB)
		meanF := (sum - sumB) / float64(weightF)
		between := float64(weightB) * float64(weightF) * (meanB - meanF) * (meanB - meanF)
		if between > best {
			best = between
			level = t + 1
		}
	}
	return level
}
