package redaction

import (
	"context"
	"fmt"

	"github.com/raaihank/scan-redactor/internal/logger"
	"go.uber.org/zap"
)

// Tagger is a named-entity recognizer.
type Tagger interface {
	Tag(ctx context.Context, text string) ([]Token, error)
}

// Engine ties the catalog, the entity adapter, the merger and the redactor
// together. It keeps no per-call state and is safe for concurrent use.
type Engine struct {
	catalog  *Catalog
	entities *EntityAdapter
	tagger   Tagger
	logger   *logger.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithTagger makes Redact consult a named-entity recognizer.
func WithTagger(t Tagger) Option {
	return func(e *Engine) {
		e.tagger = t
	}
}

// WithCatalog replaces the built-in catalog.
func WithCatalog(c *Catalog) Option {
	return func(e *Engine) {
		e.catalog = c
	}
}

// NewEngine creates a redaction engine.
func NewEngine(log *logger.Logger, opts ...Option) *Engine {
	if log == nil {
		log = logger.Nop()
	}
	e := &Engine{
		logger: log.WithComponent("redaction"),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.catalog == nil {
		e.catalog = NewCatalog(log)
	}
	e.entities = NewEntityAdapter(log)
	return e
}

// Catalog returns the engine's pattern catalog.
func (e *Engine) Catalog() *Catalog {
	return e.catalog
}

// Redact detects and redacts sensitive spans in text. When a tagger is
// configured and the policy enables an entity category, the text is tagged
// first; a tagger failure is returned as an *ExtractionError. Internal
// faults are recovered and returned as ErrInternal.
func (e *Engine) Redact(ctx context.Context, text string, p Policy) (res Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("Redaction failed", zap.String("error", fmt.Sprint(r)))
			res = Result{}
			err = fmt.Errorf("%w: %v", ErrInternal, r)
		}
	}()

	if text == "" {
		return Apply(text, nil), nil
	}

	var tokens []Token
	if e.tagger != nil && p.wantsEntities() {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		tokens, err = e.tagger.Tag(ctx, text)
		if err != nil {
			return Result{}, NewExtractionError(StageNER, -1, err)
		}
	}

	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	return e.RedactTagged(text, tokens, p), nil
}

// RedactTagged redacts text using already computed recognizer tokens.
func (e *Engine) RedactTagged(text string, tokens []Token, p Policy) Result {
	detections := e.Detect(text, tokens, p)
	accepted := Reconcile(detections)
	res := Apply(text, accepted)

	e.logger.Debug("Text redacted",
		zap.Int("text_length", len(text)),
		zap.Int("detections", len(detections)),
		zap.Int("redactions", len(res.Audit)),
		zap.String("mode", p.Mode.String()),
	)
	return res
}

// Detect returns the raw detections from both sources without resolving
// overlaps. Entity detections that touch an existing placeholder token are
// dropped so already-redacted text is left alone.
func (e *Engine) Detect(text string, tokens []Token, p Policy) []Detection {
	detections := e.catalog.Detect(text, p)

	entities := e.entities.Detect(text, tokens, p)
	if len(entities) > 0 {
		redacted := placeholderPattern.FindAllStringIndex(text, -1)
		for _, d := range entities {
			if !overlapsAny(d.Span, redacted) {
				detections = append(detections, d)
			}
		}
	}

	return detections
}

func overlapsAny(s Span, locs [][]int) bool {
	for _, loc := range locs {
		if s.Overlaps(Span{Start: loc[0], End: loc[1]}) {
			return true
		}
	}
	return false
}
