//go:build onnx
// +build onnx

package ner

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/raaihank/scan-redactor/internal/config"
	"github.com/raaihank/scan-redactor/internal/logger"
	"github.com/raaihank/scan-redactor/internal/redaction"
	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/zap"
)

// OnnxTagger runs a BERT token-classification model in process using ONNX
// Runtime (via yalue/onnxruntime_go).
type OnnxTagger struct {
	session    *ort.DynamicAdvancedSession
	inputNames []string
	tokenizer  *WordPiece
	logger     *logger.Logger
	mu         sync.Mutex
	ready      bool
}

// NewOnnxTagger loads the model and vocabulary named in cfg. Requires build
// tag 'onnx' and the ONNX Runtime shared library.
func NewOnnxTagger(cfg config.NERConfig, log *logger.Logger) (Tagger, error) {
	log = log.WithComponent("ner")

	// Allow user to provide shared library path via environment variable.
	if shlib := os.Getenv("ONNXRUNTIME_SHARED_LIB"); shlib != "" {
		ort.SetSharedLibraryPath(shlib)
	} else if shlib := os.Getenv("ORT_SHLIB"); shlib != "" {
		ort.SetSharedLibraryPath(shlib)
	}

	vocabFile, err := os.Open(cfg.VocabPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open vocab: %w", err)
	}
	vocab, err := LoadVocab(vocabFile)
	vocabFile.Close()
	if err != nil {
		return nil, err
	}
	tokenizer, err := NewWordPiece(vocab, cfg.MaxLength)
	if err != nil {
		return nil, err
	}

	if err := ort.InitializeEnvironment(); err != nil {
		return nil, fmt.Errorf("onnx runtime environment init failed: %w", err)
	}

	inputsInfo, outputsInfo, err := ort.GetInputOutputInfo(cfg.ModelPath)
	if err != nil {
		ort.DestroyEnvironment()
		return nil, fmt.Errorf("failed to inspect model %s: %w", cfg.ModelPath, err)
	}
	if len(outputsInfo) == 0 {
		ort.DestroyEnvironment()
		return nil, fmt.Errorf("model %s reports no outputs", cfg.ModelPath)
	}

	var inputNames []string
	for _, ii := range inputsInfo {
		inputNames = append(inputNames, ii.Name)
	}
	outputName := outputsInfo[0].Name

	session, err := ort.NewDynamicAdvancedSession(cfg.ModelPath, inputNames, []string{outputName}, nil)
	if err != nil {
		ort.DestroyEnvironment()
		return nil, fmt.Errorf("onnx session creation failed: %w", err)
	}

	log.Info("ONNX token classifier ready",
		zap.String("model", cfg.ModelPath),
		zap.Strings("inputs", inputNames),
		zap.String("output", outputName),
		zap.Int("vocab_size", len(vocab)),
	)

	return &OnnxTagger{
		session:    session,
		inputNames: inputNames,
		tokenizer:  tokenizer,
		logger:     log,
		ready:      true,
	}, nil
}

// Tag classifies every word piece of text. Text longer than the model's
// maximum sequence is tagged in consecutive windows.
func (t *OnnxTagger) Tag(ctx context.Context, text string) ([]redaction.Token, error) {
	pieces := t.tokenizer.Tokenize(text)
	if len(pieces) == 0 {
		return nil, nil
	}

	var tokens []redaction.Token
	consumed := 0
	for consumed < len(text) && len(pieces) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		window, err := t.classify(pieces)
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, window...)

		consumed = pieces[len(pieces)-1].end
		rest := text[consumed:]
		next := t.tokenizer.Tokenize(rest)
		for i := range next {
			next[i].start += consumed
			next[i].end += consumed
		}
		pieces = next
	}
	return tokens, nil
}

func (t *OnnxTagger) classify(pieces []piece) ([]redaction.Token, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.ready {
		return nil, fmt.Errorf("onnx tagger closed")
	}

	ids, mask := t.tokenizer.encode(pieces)
	seqLen := int64(len(ids))
	shape := ort.NewShape(1, seqLen)

	idsTensor, err := ort.NewTensor[int64](shape, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to create input_ids tensor: %w", err)
	}
	defer idsTensor.Destroy()
	maskTensor, err := ort.NewTensor[int64](shape, mask)
	if err != nil {
		return nil, fmt.Errorf("failed to create attention_mask tensor: %w", err)
	}
	defer maskTensor.Destroy()
	typeTensor, err := ort.NewTensor[int64](shape, make([]int64, len(ids)))
	if err != nil {
		return nil, fmt.Errorf("failed to create token_type_ids tensor: %w", err)
	}
	defer typeTensor.Destroy()

	inputs := make([]ort.Value, 0, len(t.inputNames))
	for _, rawName := range t.inputNames {
		name := strings.ToLower(rawName)
		switch {
		case strings.Contains(name, "mask"):
			inputs = append(inputs, maskTensor)
		case strings.Contains(name, "type") || strings.Contains(name, "segment"):
			inputs = append(inputs, typeTensor)
		default:
			inputs = append(inputs, idsTensor)
		}
	}

	outputs := make([]ort.Value, 1)
	if err := t.session.Run(inputs, outputs); err != nil {
		return nil, fmt.Errorf("onnx run failed: %w", err)
	}
	if outputs[0] == nil {
		return nil, fmt.Errorf("onnx returned no outputs")
	}
	defer outputs[0].Destroy()

	logits, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("unexpected output type (want float32 tensor)")
	}
	outShape := logits.GetShape()
	if len(outShape) != 3 || outShape[1] != seqLen {
		return nil, fmt.Errorf("unexpected logits shape %v", outShape)
	}

	return decodeLogits(pieces, logits.GetData(), int(outShape[2]), Labels)
}

// Close releases session and environment resources.
func (t *OnnxTagger) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.session != nil {
		t.session.Destroy()
		t.session = nil
	}
	ort.DestroyEnvironment()
	t.ready = false
	return nil
}
