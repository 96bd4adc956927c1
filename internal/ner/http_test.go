package ner

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/raaihank/scan-redactor/internal/config"
	"github.com/raaihank/scan-redactor/internal/logger"
	"github.com/raaihank/scan-redactor/internal/redaction"
	"go.uber.org/zap"
)

func TestHTTPTagger(t *testing.T) {
	log := &logger.Logger{Logger: zap.NewNop()}

	t.Run("byte offsets", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/tag" || r.Method != http.MethodPost {
				t.Errorf("Unexpected request %s %s", r.Method, r.URL.Path)
			}
			var req tagRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				t.Errorf("Bad request body: %v", err)
			}
			if req.Text != "John Smith" {
				t.Errorf("Unexpected text %q", req.Text)
			}
			_, _ = w.Write([]byte(`{"tokens":[{"label":"B-PER","text":"John","start":0,"end":4,"score":0.99},{"label":"I-PER","text":"Smith","start":5,"end":10}]}`))
		}))
		defer srv.Close()

		tagger := NewHTTPTagger(srv.URL+"/", time.Second, log)
		defer tagger.Close()

		tokens, err := tagger.Tag(context.Background(), "John Smith")
		if err != nil {
			t.Fatalf("Tag failed: %v", err)
		}
		if len(tokens) != 2 {
			t.Fatalf("Expected 2 tokens, got %d", len(tokens))
		}
		if tokens[0].Score == nil || *tokens[0].Score != 0.99 {
			t.Errorf("Expected score 0.99, got %v", tokens[0].Score)
		}
		if tokens[1].Score != nil {
			t.Errorf("Expected missing score, got %v", *tokens[1].Score)
		}
	})

	t.Run("char offsets converted", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"offsets":"char","tokens":[{"label":"B-PER","text":"Zoë","start":6,"end":9}]}`))
		}))
		defer srv.Close()

		text := "Hello Zoë!"
		tokens, err := NewHTTPTagger(srv.URL, time.Second, log).Tag(context.Background(), text)
		if err != nil {
			t.Fatalf("Tag failed: %v", err)
		}
		if len(tokens) != 1 {
			t.Fatalf("Expected 1 token, got %d", len(tokens))
		}
		if got := text[tokens[0].Start:tokens[0].End]; got != "Zoë" {
			t.Errorf("Expected Zoë at converted offsets, got %q", got)
		}
	})

	t.Run("error status", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "model not loaded", http.StatusServiceUnavailable)
		}))
		defer srv.Close()

		if _, err := NewHTTPTagger(srv.URL, time.Second, log).Tag(context.Background(), "x"); err == nil {
			t.Error("Expected error for 503 response")
		}
	})

	t.Run("unreachable sidecar", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()

		if _, err := NewHTTPTagger(url, time.Second, log).Tag(context.Background(), "x"); err == nil {
			t.Error("Expected error for unreachable sidecar")
		}
	})
}

func TestCharToByteOffsets(t *testing.T) {
	text := "é a"
	tokens := charToByteOffsets(text, []redaction.Token{
		{Start: 0, End: 1},
		{Start: 2, End: 3},
		{Start: 2, End: 40},
	})
	if tokens[0].End != 2 {
		t.Errorf("Expected é to end at byte 2, got %d", tokens[0].End)
	}
	if tokens[1].Start != 3 || tokens[1].End != 4 {
		t.Errorf("Expected a at [3,4), got [%d,%d)", tokens[1].Start, tokens[1].End)
	}
	if tokens[2].End <= len(text) {
		t.Errorf("Out of range offset should map past the text, got %d", tokens[2].End)
	}
}

func TestNewDisabled(t *testing.T) {
	tagger, err := New(config.NERConfig{Enabled: false}, logger.Nop())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if _, ok := tagger.(Nop); !ok {
		t.Errorf("Expected Nop tagger, got %T", tagger)
	}
	if _, err := New(config.NERConfig{Enabled: true, Backend: "spacy"}, logger.Nop()); err == nil {
		t.Error("Expected error for unknown backend")
	}
}
