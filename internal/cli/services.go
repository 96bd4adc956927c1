package cli

import (
	"fmt"

	"github.com/raaihank/scan-redactor/internal/cache"
	"github.com/raaihank/scan-redactor/internal/export"
	"github.com/raaihank/scan-redactor/internal/ner"
	"github.com/raaihank/scan-redactor/internal/ocr"
	"github.com/raaihank/scan-redactor/internal/pipeline"
	"github.com/raaihank/scan-redactor/internal/raster"
	"github.com/raaihank/scan-redactor/internal/redaction"
	"github.com/raaihank/scan-redactor/internal/store"
	"go.uber.org/zap"
)

// services holds all initialized services
type services struct {
	tagger    ner.Tagger
	engine    *redaction.Engine
	documents *pipeline.Pipeline
	pageCache *cache.PageCache
	store     *store.Store
}

func (s *services) cleanup() {
	if s.tagger != nil {
		s.tagger.Close()
	}
	if s.pageCache != nil {
		s.pageCache.Close()
	}
	if s.store != nil {
		s.store.Close()
	}
}

// serviceSet selects which optional services a command needs.
type serviceSet struct {
	documents bool
	store     bool

	// bestEffortDocuments keeps going without document support when OCR
	// cannot be initialized.
	bestEffortDocuments bool
}

// initializeServices builds the engine and the services a command needs.
// Optional backends that are disabled in configuration are left nil.
func (a *app) initializeServices(want serviceSet) (*services, error) {
	svc := &services{}
	ok := false
	defer func() {
		if !ok {
			svc.cleanup()
		}
	}()

	tagger, err := ner.New(a.cfg.NER, a.log.WithComponent("ner"))
	if err != nil {
		return nil, err
	}
	svc.tagger = tagger
	svc.engine = redaction.NewEngine(a.log, redaction.WithTagger(tagger))

	if want.documents {
		docs, pc, err := a.buildDocuments(svc.engine)
		switch {
		case err == nil:
			svc.documents, svc.pageCache = docs, pc
		case want.bestEffortDocuments:
			a.log.Warn("OCR unavailable, document redaction disabled", zap.Error(err))
		default:
			return nil, err
		}
	}

	if want.store && a.cfg.Store.Enabled {
		st, err := store.NewStore(store.ConfigFrom(a.cfg.Store), a.log)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize audit store: %w", err)
		}
		svc.store = st
	}

	a.log.Debug("Services initialized",
		zap.Bool("ner", a.cfg.NER.Enabled),
		zap.Bool("documents", svc.documents != nil),
		zap.Bool("ocr_cache", svc.pageCache != nil),
		zap.Bool("audit_store", svc.store != nil),
		zap.Int("rules", len(svc.engine.Catalog().Rules())),
	)

	ok = true
	return svc, nil
}

// buildDocuments wires the rasterizer, OCR reader, optional page cache and
// exporter into a document pipeline.
func (a *app) buildDocuments(engine *redaction.Engine) (*pipeline.Pipeline, *cache.PageCache, error) {
	reader, err := ocr.New(a.cfg.OCR, a.log.WithComponent("ocr"))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize OCR: %w", err)
	}

	var pc *cache.PageCache
	if a.cfg.Cache.Enabled {
		pc, err = cache.NewPageCache(cache.ConfigFrom(a.cfg.Cache), a.log)
		if err != nil {
			// OCR still works without the cache
			a.log.Warn("OCR cache unavailable, continuing without it", zap.Error(err))
			pc = nil
		} else {
			reader = ocr.NewCachedReader(reader, pc, a.log)
		}
	}

	docs := pipeline.New(
		raster.New(a.log),
		reader,
		engine,
		export.New(a.cfg.Export),
		pipeline.Config{Workers: a.cfg.OCR.Workers, Clean: a.cfg.OCR.Clean},
		a.log,
	)
	return docs, pc, nil
}
