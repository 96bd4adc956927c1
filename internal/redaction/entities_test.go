package redaction

import (
	"math"
	"testing"

	"github.com/raaihank/scan-redactor/internal/logger"
)

func score(v float64) *float64 {
	return &v
}

func TestEntityAdapterDetect(t *testing.T) {
	adapter := NewEntityAdapter(logger.Nop())

	// "Patient John Smith visited Acme Corp in Springfield."
	//  0       8    13    19      27   32   37 40
	const text = "Patient John Smith visited Acme Corp in Springfield."
	tokens := []Token{
		{Label: "B-PER", Text: "John", Start: 8, End: 12},
		{Label: "I-PER", Text: "Smith", Start: 13, End: 18},
		{Label: "O", Text: "visited", Start: 19, End: 26},
		{Label: "B-ORG", Text: "Acme", Start: 27, End: 31},
		{Label: "I-ORG", Text: "Corp", Start: 32, End: 36},
		{Label: "B-LOC", Text: "Springfield", Start: 40, End: 51},
	}

	t.Run("all entity categories", func(t *testing.T) {
		got := adapter.Detect(text, tokens, policyOf(Conservative, false))
		want := []wantDetection{
			{8, 18, PersonName, "ner.per"},
			{27, 36, Organization, "ner.org"},
			{40, 51, Location, "ner.loc"},
		}
		if len(got) != len(want) {
			t.Fatalf("Expected %d detections, got %d: %+v", len(want), len(got), got)
		}
		for i, w := range want {
			d := got[i]
			if d.Start != w.start || d.End != w.end || d.Category != w.category || d.RuleID != w.ruleID {
				t.Errorf("Detection %d = %+v, want %+v", i, d, w)
			}
			if d.Source != SourceNER {
				t.Errorf("Detection %d has source %s", i, d.Source)
			}
			if d.Confidence != 1.0 {
				t.Errorf("Expected default confidence 1.0, got %f", d.Confidence)
			}
		}
	})

	t.Run("only enabled categories", func(t *testing.T) {
		got := adapter.Detect(text, tokens, policyOf(Conservative, false, PersonName))
		if len(got) != 1 || got[0].Category != PersonName {
			t.Fatalf("Expected a single person detection, got %+v", got)
		}
	})

	t.Run("no entity categories enabled", func(t *testing.T) {
		if got := adapter.Detect(text, tokens, policyOf(Aggressive, true, SSN, CreditCard)); got != nil {
			t.Errorf("Expected no detections, got %+v", got)
		}
	})
}

func TestEntityAdapterMerging(t *testing.T) {
	adapter := NewEntityAdapter(logger.Nop())
	policy := policyOf(Conservative, false, PersonName)
	const text = "Dear John Smith, hello"

	tests := []struct {
		name   string
		tokens []Token
		want   []Span
	}{
		{
			name: "B then I merge",
			tokens: []Token{
				{Label: "B-PER", Text: "John", Start: 5, End: 9},
				{Label: "I-PER", Text: "Smith", Start: 10, End: 15},
			},
			want: []Span{{5, 15}},
		},
		{
			name: "bare labels merge",
			tokens: []Token{
				{Label: "PER", Text: "John", Start: 5, End: 9},
				{Label: "PER", Text: "Smith", Start: 10, End: 15},
			},
			want: []Span{{5, 15}},
		},
		{
			name: "sub-word pieces glue",
			tokens: []Token{
				{Label: "B-PER", Text: "Jo", Start: 5, End: 7},
				{Label: "B-PER", Text: "##hn", Start: 7, End: 9},
				{Label: "I-PER", Text: "Smith", Start: 10, End: 15},
			},
			want: []Span{{5, 15}},
		},
		{
			name: "two B tags stay separate",
			tokens: []Token{
				{Label: "B-PER", Text: "John", Start: 5, End: 9},
				{Label: "B-PER", Text: "Smith", Start: 10, End: 15},
			},
			want: []Span{{5, 9}, {10, 15}},
		},
		{
			name: "punctuation between tokens splits",
			tokens: []Token{
				{Label: "B-PER", Text: "Smith", Start: 10, End: 15},
				{Label: "I-PER", Text: "hello", Start: 17, End: 22},
			},
			want: []Span{{10, 15}, {17, 22}},
		},
		{
			name: "invalid offsets discarded",
			tokens: []Token{
				{Label: "B-PER", Text: "John", Start: 5, End: 9},
				{Label: "I-PER", Text: "???", Start: 18, End: 400},
				{Label: "B-PER", Text: "Smith", Start: 10, End: 15},
			},
			want: []Span{{5, 9}, {10, 15}},
		},
		{
			name: "unknown entity type ignored",
			tokens: []Token{
				{Label: "B-DATE", Text: "John", Start: 5, End: 9},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := adapter.Detect(text, tt.tokens, policy)
			if len(got) != len(tt.want) {
				t.Fatalf("Expected %d detections, got %d: %+v", len(tt.want), len(got), got)
			}
			for i, w := range tt.want {
				if got[i].Span != w {
					t.Errorf("Detection %d span = %+v, want %+v", i, got[i].Span, w)
				}
			}
		})
	}
}

func TestEntityAdapterConfidence(t *testing.T) {
	adapter := NewEntityAdapter(logger.Nop())
	tokens := []Token{
		{Label: "B-PER", Text: "John", Start: 0, End: 4, Score: score(0.9)},
		{Label: "I-PER", Text: "Smith", Start: 5, End: 10, Score: score(0.7)},
	}

	got := adapter.Detect("John Smith", tokens, policyOf(Conservative, false))
	if len(got) != 1 {
		t.Fatalf("Expected 1 detection, got %d", len(got))
	}
	if math.Abs(got[0].Confidence-0.8) > 1e-9 {
		t.Errorf("Expected mean confidence 0.8, got %f", got[0].Confidence)
	}
}

func TestEntityAdapterLocationPromotion(t *testing.T) {
	adapter := NewEntityAdapter(logger.Nop())

	t.Run("address term nearby promotes to address", func(t *testing.T) {
		const text = "He lives on Baker Street in London"
		tokens := []Token{{Label: "B-LOC", Text: "Baker", Start: 12, End: 17}}

		got := adapter.Detect(text, tokens, policyOf(Conservative, false, Address))
		if len(got) != 1 || got[0].Category != Address || got[0].RuleID != "ner.loc.address" {
			t.Fatalf("Expected promoted address detection, got %+v", got)
		}

		if got := adapter.Detect(text, tokens, policyOf(Conservative, false, Location)); len(got) != 0 {
			t.Errorf("Promoted location should not be reported as Location, got %+v", got)
		}
	})

	t.Run("no address context stays location", func(t *testing.T) {
		const text = "Location: Springfield"
		tokens := []Token{{Label: "B-LOC", Text: "Springfield", Start: 10, End: 21}}

		if got := adapter.Detect(text, tokens, policyOf(Conservative, false, Address)); len(got) != 0 {
			t.Errorf("Expected no address detection, got %+v", got)
		}
		got := adapter.Detect(text, tokens, policyOf(Conservative, false, Location))
		if len(got) != 1 || got[0].Category != Location {
			t.Errorf("Expected location detection, got %+v", got)
		}
	})

	t.Run("word cut at window edge is ignored", func(t *testing.T) {
		// the window starts inside "first", leaving "st"
		const text = "first we all went into Paris today"
		tokens := []Token{{Label: "B-LOC", Text: "Paris", Start: 23, End: 28}}

		if got := adapter.Detect(text, tokens, policyOf(Conservative, false, Address)); len(got) != 0 {
			t.Errorf("Expected no address detection, got %+v", got)
		}
	})

	t.Run("window counts runes", func(t *testing.T) {
		// "ave" is 20 runes but 28 bytes before Paris
		const text = "ave é é é é é é é é Paris"
		tokens := []Token{{Label: "B-LOC", Text: "Paris", Start: 28, End: 33}}

		got := adapter.Detect(text, tokens, policyOf(Conservative, false, Address))
		if len(got) != 1 || got[0].Category != Address {
			t.Errorf("Expected promoted address detection, got %+v", got)
		}
	})
}

func TestSplitLabel(t *testing.T) {
	tests := []struct {
		label, prefix, kind string
	}{
		{"B-PER", "B", "PER"},
		{"i-loc", "I", "LOC"},
		{"ORG", "", "ORG"},
		{"O", "", ""},
		{"", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			prefix, kind := splitLabel(tt.label)
			if prefix != tt.prefix || kind != tt.kind {
				t.Errorf("splitLabel(%q) = (%q, %q), want (%q, %q)", tt.label, prefix, kind, tt.prefix, tt.kind)
			}
		})
	}
}
