// Package ner provides named-entity recognizers that feed the redaction
// engine: an HTTP client for a NER sidecar, an in-process ONNX Runtime token
// classifier (build tag onnx), and a no-op tagger for pattern-only runs.
package ner

import (
	"context"
	"fmt"

	"github.com/raaihank/scan-redactor/internal/config"
	"github.com/raaihank/scan-redactor/internal/logger"
	"github.com/raaihank/scan-redactor/internal/redaction"
	"go.uber.org/zap"
)

// Tagger is a recognizer with an explicit lifecycle. It is created once at
// process start and closed on exit.
type Tagger interface {
	redaction.Tagger
	Close() error
}

// Labels is the CoNLL-03 label set, indexed by model output class.
var Labels = []string{"O", "B-MISC", "I-MISC", "B-PER", "I-PER", "B-ORG", "I-ORG", "B-LOC", "I-LOC"}

// New builds the tagger selected by configuration. A disabled recognizer
// yields Nop.
func New(cfg config.NERConfig, log *logger.Logger) (Tagger, error) {
	if !cfg.Enabled {
		log.Info("Named-entity recognition disabled")
		return Nop{}, nil
	}

	switch cfg.Backend {
	case "http", "":
		t := NewHTTPTagger(cfg.URL, cfg.Timeout, log)
		log.Info("NER sidecar client initialized", zap.String("url", cfg.URL), zap.Duration("timeout", cfg.Timeout))
		return t, nil
	case "onnx":
		t, err := NewOnnxTagger(cfg, log)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize onnx tagger: %w", err)
		}
		return t, nil
	default:
		return nil, fmt.Errorf("unknown ner backend: %s", cfg.Backend)
	}
}

// Nop finds no entities.
type Nop struct{}

func (Nop) Tag(context.Context, string) ([]redaction.Token, error) { return nil, nil }
func (Nop) Close() error                                            { return nil }
