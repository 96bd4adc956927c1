// Package ocr turns page images into text fragments.
//
// The Tesseract reader wraps gosseract and needs cgo plus an installed
// Tesseract with language data:
//   - Ubuntu/Debian: apt-get install tesseract-ocr tesseract-ocr-eng
//   - macOS: brew install tesseract
//
// Builds without cgo get a stub whose constructor returns
// ErrTesseractUnavailable.
//
// Pages go through Preprocess before recognition and the joined page text
// goes through Clean before it reaches the redaction engine. CachedReader
// memoizes recognition results per page image in Redis.
package ocr
