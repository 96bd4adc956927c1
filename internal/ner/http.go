package ner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/raaihank/scan-redactor/internal/logger"
	"github.com/raaihank/scan-redactor/internal/redaction"
	"go.uber.org/zap"
)

// HTTPTagger calls a NER sidecar's /tag endpoint.
type HTTPTagger struct {
	url    string
	http   *http.Client
	logger *logger.Logger
}

// NewHTTPTagger creates a client for the sidecar at baseURL
// (e.g. "http://ner:8001").
func NewHTTPTagger(baseURL string, timeout time.Duration, log *logger.Logger) *HTTPTagger {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPTagger{
		url:    strings.TrimRight(baseURL, "/") + "/tag",
		http:   &http.Client{Timeout: timeout},
		logger: log.WithComponent("ner"),
	}
}

type tagRequest struct {
	Text string `json:"text"`
}

type tagResponse struct {
	// Offsets is "byte" (default) or "char" when the sidecar counts
	// Unicode code points, as Python does.
	Offsets string            `json:"offsets"`
	Tokens  []redaction.Token `json:"tokens"`
}

// Tag sends text to the sidecar. Transport failures and non-200 responses
// are returned to the caller.
func (t *HTTPTagger) Tag(ctx context.Context, text string) ([]redaction.Token, error) {
	body, err := json.Marshal(tagRequest{Text: text})
	if err != nil {
		return nil, fmt.Errorf("ner: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("ner: request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := t.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ner: sidecar unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return nil, fmt.Errorf("ner: unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var result tagResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("ner: decode: %w", err)
	}

	tokens := result.Tokens
	if result.Offsets == "char" {
		tokens = charToByteOffsets(text, tokens)
	}

	t.logger.Debug("Text tagged",
		zap.Int("text_length", len(text)),
		zap.Int("tokens", len(tokens)),
		zap.Duration("duration", time.Since(start)),
	)
	return tokens, nil
}

// Close releases idle connections.
func (t *HTTPTagger) Close() error {
	t.http.CloseIdleConnections()
	return nil
}

// charToByteOffsets converts code point offsets into byte offsets. Offsets
// beyond the text map past its end so the entity adapter discards them.
func charToByteOffsets(text string, tokens []redaction.Token) []redaction.Token {
	index := make([]int, 0, utf8.RuneCountInString(text)+1)
	for i := range text {
		index = append(index, i)
	}
	index = append(index, len(text))

	convert := func(n int) int {
		if n < 0 || n >= len(index) {
			return len(text) + 1
		}
		return index[n]
	}

	out := make([]redaction.Token, len(tokens))
	for i, tok := range tokens {
		tok.Start = convert(tok.Start)
		tok.End = convert(tok.End)
		out[i] = tok
	}
	return out
}
