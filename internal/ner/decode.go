package ner

import (
	"fmt"
	"math"

	"github.com/raaihank/scan-redactor/internal/redaction"
)

// decodeLogits turns per-position logits of shape [seq, numLabels] into
// entity tokens. Position 0 is [CLS]; piece i sits at position i+1.
// Pieces labelled O are omitted.
func decodeLogits(pieces []piece, logits []float32, numLabels int, labels []string) ([]redaction.Token, error) {
	if numLabels <= 0 || numLabels > len(labels) {
		return nil, fmt.Errorf("model reports %d labels, label map has %d", numLabels, len(labels))
	}
	if need := (len(pieces) + 1) * numLabels; len(logits) < need {
		return nil, fmt.Errorf("logits too short: got %d values, need %d", len(logits), need)
	}

	var tokens []redaction.Token
	for i, p := range pieces {
		row := logits[(i+1)*numLabels : (i+2)*numLabels]
		best, score := argmaxSoftmax(row)
		if labels[best] == "O" {
			continue
		}
		s := score
		tokens = append(tokens, redaction.Token{
			Label: labels[best],
			Text:  p.text,
			Start: p.start,
			End:   p.end,
			Score: &s,
		})
	}
	return tokens, nil
}

// argmaxSoftmax returns the index of the largest logit and its softmax
// probability.
func argmaxSoftmax(row []float32) (int, float64) {
	best := 0
	for i, v := range row {
		if v > row[best] {
			best = i
		}
	}

	top := float64(row[best])
	var sum float64
	for _, v := range row {
		sum += math.Exp(float64(v) - top)
	}
	return best, 1 / sum
}
