package redaction

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/raaihank/scan-redactor/internal/logger"
	"go.uber.org/zap"
	"pgregory.net/rapid"
)

type fakeTagger struct {
	tokens []Token
	err    error
	panics bool
	calls  int
}

func (f *fakeTagger) Tag(ctx context.Context, text string) ([]Token, error) {
	f.calls++
	if f.panics {
		panic("tagger crashed")
	}
	return f.tokens, f.err
}

func TestEngineExamples(t *testing.T) {
	engine := NewEngine(&logger.Logger{Logger: zap.NewNop()})
	ctx := context.Background()

	t.Run("labeled SSN", func(t *testing.T) {
		res, err := engine.Redact(ctx, "SSN: 123-45-6789, call 555-1234", policyOf(Conservative, false, SSN))
		if err != nil {
			t.Fatalf("Redact failed: %v", err)
		}
		if res.RedactedText != "SSN: [REDACTED SSN], call 555-1234" {
			t.Errorf("Unexpected text: %q", res.RedactedText)
		}
		want := AuditEntry{Category: SSN, Length: 11, Position: 5}
		if len(res.Audit) != 1 || res.Audit[0] != want {
			t.Errorf("Expected audit [%+v], got %+v", want, res.Audit)
		}
	})

	t.Run("grouped card number", func(t *testing.T) {
		res, err := engine.Redact(ctx, "1234 5678 9012 3456", policyOf(Aggressive, false, CreditCard))
		if err != nil {
			t.Fatalf("Redact failed: %v", err)
		}
		if res.RedactedText != "[REDACTED CREDIT CARD]" {
			t.Errorf("Unexpected text: %q", res.RedactedText)
		}
	})

	t.Run("two-token person name", func(t *testing.T) {
		tokens := []Token{
			{Label: "B-PER", Text: "John", Start: 8, End: 12},
			{Label: "I-PER", Text: "Smith", Start: 13, End: 18},
		}
		res := engine.RedactTagged("Patient John Smith arrived", tokens, policyOf(Conservative, false, PersonName))
		if res.RedactedText != "Patient [REDACTED NAME] arrived" {
			t.Errorf("Unexpected text: %q", res.RedactedText)
		}
		if len(res.Audit) != 1 {
			t.Errorf("Expected one audit entry, got %+v", res.Audit)
		}
	})

	t.Run("plain location left alone", func(t *testing.T) {
		tokens := []Token{{Label: "B-LOC", Text: "Springfield", Start: 10, End: 21}}
		policy := policyOf(Aggressive, true, SSN, CreditCard, PostalCode, PersonName, Organization, Other)
		res := engine.RedactTagged("Location: Springfield", tokens, policy)
		if res.RedactedText != "Location: Springfield" || !res.NoSensitiveContent() {
			t.Errorf("Expected no redaction, got %+v", res)
		}
	})

	t.Run("empty text", func(t *testing.T) {
		res, err := engine.Redact(ctx, "", DefaultPolicy())
		if err != nil || res.RedactedText != "" || len(res.Audit) != 0 {
			t.Errorf("Unexpected result for empty text: %+v, %v", res, err)
		}
	})

	t.Run("mixed document", func(t *testing.T) {
		text := "Name: Jane Roe\nSSN: 987-65-4321\nCard No: 4111-1111-1111-1111\nAddress: 12 Elm St, Salem, OR 97301"
		tokens := []Token{
			{Label: "B-PER", Text: "Jane", Start: 6, End: 10},
			{Label: "I-PER", Text: "Roe", Start: 11, End: 14},
		}
		res := engine.RedactTagged(text, tokens, DefaultPolicy())
		want := "Name: [REDACTED NAME]\nSSN: [REDACTED SSN]\nCard No: [REDACTED CREDIT CARD]\nAddress: [REDACTED ADDRESS]"
		if res.RedactedText != want {
			t.Errorf("Expected %q, got %q", want, res.RedactedText)
		}
		counts := res.Counts()
		if counts["person_name"] != 1 || counts["ssn"] != 1 || counts["credit_card"] != 1 || counts["address"] != 1 {
			t.Errorf("Unexpected counts: %v", counts)
		}
	})
}

func TestEngineTagger(t *testing.T) {
	ctx := context.Background()

	t.Run("tagger tokens used", func(t *testing.T) {
		tagger := &fakeTagger{tokens: []Token{{Label: "B-ORG", Text: "Acme", Start: 7, End: 11}}}
		engine := NewEngine(logger.Nop(), WithTagger(tagger))

		res, err := engine.Redact(ctx, "Dear r Acme team", DefaultPolicy())
		if err != nil {
			t.Fatalf("Redact failed: %v", err)
		}
		if res.RedactedText != "Dear r [REDACTED ORGANIZATION] team" {
			t.Errorf("Unexpected text: %q", res.RedactedText)
		}
	})

	t.Run("tagger skipped without entity categories", func(t *testing.T) {
		tagger := &fakeTagger{}
		engine := NewEngine(logger.Nop(), WithTagger(tagger))

		if _, err := engine.Redact(ctx, "SSN: 123-45-6789", policyOf(Conservative, false, SSN)); err != nil {
			t.Fatalf("Redact failed: %v", err)
		}
		if tagger.calls != 0 {
			t.Errorf("Expected tagger not to be called, got %d calls", tagger.calls)
		}
	})

	t.Run("tagger failure is an extraction error", func(t *testing.T) {
		cause := errors.New("sidecar unavailable")
		engine := NewEngine(logger.Nop(), WithTagger(&fakeTagger{err: cause}))

		_, err := engine.Redact(ctx, "John Smith", DefaultPolicy())
		if !errors.Is(err, ErrExtractionFailed) {
			t.Fatalf("Expected ErrExtractionFailed, got %v", err)
		}
		if !errors.Is(err, cause) {
			t.Errorf("Expected cause to be wrapped, got %v", err)
		}
		var extErr *ExtractionError
		if !errors.As(err, &extErr) || extErr.Stage != StageNER {
			t.Errorf("Expected NER stage extraction error, got %#v", err)
		}
		if errors.Is(err, ErrNoSensitiveContent) {
			t.Error("Extraction failure must not match ErrNoSensitiveContent")
		}
	})

	t.Run("panic recovered as internal error", func(t *testing.T) {
		engine := NewEngine(logger.Nop(), WithTagger(&fakeTagger{panics: true}))

		_, err := engine.Redact(ctx, "John Smith", DefaultPolicy())
		if !errors.Is(err, ErrInternal) {
			t.Fatalf("Expected ErrInternal, got %v", err)
		}
	})

	t.Run("cancelled context", func(t *testing.T) {
		engine := NewEngine(logger.Nop(), WithTagger(&fakeTagger{}))
		cctx, cancel := context.WithCancel(ctx)
		cancel()

		if _, err := engine.Redact(cctx, "John Smith", DefaultPolicy()); !errors.Is(err, context.Canceled) {
			t.Errorf("Expected context.Canceled, got %v", err)
		}
	})

	t.Run("entities inside placeholders dropped", func(t *testing.T) {
		text := "Dear [REDACTED NAME] and Mary"
		tokens := []Token{
			{Label: "B-PER", Text: "REDACTED", Start: 6, End: 14},
			{Label: "B-PER", Text: "Mary", Start: 25, End: 29},
		}
		engine := NewEngine(logger.Nop())

		res := engine.RedactTagged(text, tokens, DefaultPolicy())
		if res.RedactedText != "Dear [REDACTED NAME] and [REDACTED NAME]" {
			t.Errorf("Unexpected text: %q", res.RedactedText)
		}
		if len(res.Audit) != 1 || res.Audit[0].Position != 25 {
			t.Errorf("Unexpected audit: %+v", res.Audit)
		}
	})
}

var idempotenceVocabulary = []string{
	"Patient", "John", "Smith", "lives", "at", "call", "the", "and", "on",
	"Main", "Street", "Elm", "Ave", "Springfield", "IL", "Apt", "5B",
	"SSN:", "Card No:", "Address:", "ZIP:", "Social Security No.",
	"123-45-6789", "987 65 4321", "l23-45-6789", "123456789",
	"4111 1111 1111 1111", "1234-5678-9012-3456", "4111111111111111",
	"62704", "62704-1234", "742", "12", "555-1234", "O",
	",", ".", ";", "\n", "[REDACTED SSN]",
}

func TestRedactIsIdempotent(t *testing.T) {
	engine := NewEngine(logger.Nop())
	ctx := context.Background()

	rapid.Check(t, func(t *rapid.T) {
		words := rapid.SliceOfN(rapid.SampledFrom(idempotenceVocabulary), 0, 25).Draw(t, "words")
		text := strings.Join(words, " ")

		var cats []Category
		for c := SSN; c <= Other; c++ {
			if rapid.Bool().Draw(t, "enable_"+c.String()) {
				cats = append(cats, c)
			}
		}
		policy := Policy{
			Mode:         Mode(rapid.IntRange(0, 1).Draw(t, "mode")),
			Categories:   NewCategorySet(cats...),
			OCRTolerance: rapid.Bool().Draw(t, "ocr"),
		}

		first, err := engine.Redact(ctx, text, policy)
		if err != nil {
			t.Fatalf("first pass failed: %v", err)
		}
		second, err := engine.Redact(ctx, first.RedactedText, policy)
		if err != nil {
			t.Fatalf("second pass failed: %v", err)
		}
		if second.RedactedText != first.RedactedText {
			t.Fatalf("not idempotent:\ninput:  %q\nfirst:  %q\nsecond: %q", text, first.RedactedText, second.RedactedText)
		}
		if len(second.Audit) != 0 {
			t.Fatalf("second pass redacted again: %+v", second.Audit)
		}
	})
}
