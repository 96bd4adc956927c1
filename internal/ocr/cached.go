package ocr

import (
	"context"
	"encoding/json"
	"image"

	"github.com/raaihank/scan-redactor/internal/cache"
	"github.com/raaihank/scan-redactor/internal/logger"
	"go.uber.org/zap"
)

// PageStore is the subset of cache.PageCache used by CachedReader.
type PageStore interface {
	Lookup(ctx context.Context, hash string) (*cache.CachedPage, bool)
	Store(ctx context.Context, hash string, payload any) error
}

// CachedReader answers repeated pages from a PageStore and delegates the
// rest to the wrapped Reader.
type CachedReader struct {
	next   Reader
	store  PageStore
	logger *logger.Logger
}

// NewCachedReader wraps next with store.
func NewCachedReader(next Reader, store PageStore, log *logger.Logger) *CachedReader {
	if log == nil {
		log = logger.Nop()
	}
	return &CachedReader{next: next, store: store, logger: log.WithComponent("ocr_cache")}
}

// Read returns the cached fragments for img or recognizes and caches them.
// Cache write failures do not fail the read.
func (r *CachedReader) Read(ctx context.Context, img image.Image) ([]Fragment, error) {
	hash := cache.HashImage(img)

	if page, ok := r.store.Lookup(ctx, hash); ok {
		var fragments []Fragment
		if err := json.Unmarshal(page.Payload, &fragments); err == nil {
			return fragments, nil
		}
		r.logger.Warn("Discarding unreadable cached page", zap.String("hash", hash))
	}

	fragments, err := r.next.Read(ctx, img)
	if err != nil {
		return nil, err
	}

	if err := r.store.Store(ctx, hash, fragments); err != nil {
		r.logger.Warn("Failed to cache page text", zap.String("hash", hash), zap.Error(err))
	}
	return fragments, nil
}
