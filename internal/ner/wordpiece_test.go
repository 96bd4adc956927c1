package ner

import (
	"strings"
	"testing"
)

const testVocab = "[PAD]\n[UNK]\n[CLS]\n[SEP]\nJohn\nSmith\nSpring\n##field\nlives\nin\n.\n"

func newTestTokenizer(t *testing.T, maxLength int) *WordPiece {
	t.Helper()
	vocab, err := LoadVocab(strings.NewReader(testVocab))
	if err != nil {
		t.Fatalf("LoadVocab failed: %v", err)
	}
	w, err := NewWordPiece(vocab, maxLength)
	if err != nil {
		t.Fatalf("NewWordPiece failed: %v", err)
	}
	return w
}

func TestWordPieceTokenize(t *testing.T) {
	w := newTestTokenizer(t, 32)
	text := "John Smith lives in Springfield."

	pieces := w.Tokenize(text)
	want := []string{"John", "Smith", "lives", "in", "Spring", "##field", "."}
	if len(pieces) != len(want) {
		t.Fatalf("Expected %d pieces, got %d: %+v", len(want), len(pieces), pieces)
	}
	for i, p := range pieces {
		if p.text != want[i] {
			t.Errorf("Piece %d = %q, want %q", i, p.text, want[i])
		}
	}

	// offsets point back into the original text
	if got := text[pieces[5].start:pieces[5].end]; got != "field" {
		t.Errorf("Expected ##field to cover \"field\", got %q", got)
	}
	if got := text[pieces[6].start:pieces[6].end]; got != "." {
		t.Errorf("Expected punctuation piece, got %q", got)
	}

	ids, mask := w.encode(pieces)
	if len(ids) != len(pieces)+2 || ids[0] != 2 || ids[len(ids)-1] != 3 {
		t.Errorf("Expected [CLS] ... [SEP], got %v", ids)
	}
	if len(mask) != len(ids) {
		t.Errorf("Mask length %d != ids length %d", len(mask), len(ids))
	}
}

func TestWordPieceUnknownAndTruncation(t *testing.T) {
	w := newTestTokenizer(t, 4)

	pieces := w.Tokenize("Zebra John Smith")
	if len(pieces) != 2 {
		t.Fatalf("Expected truncation to 2 pieces, got %d", len(pieces))
	}
	if pieces[0].id != 1 || pieces[0].text != "Zebra" {
		t.Errorf("Expected whole-word [UNK] for Zebra, got %+v", pieces[0])
	}
}

func TestNewWordPieceRequiresSpecialTokens(t *testing.T) {
	vocab, _ := LoadVocab(strings.NewReader("[PAD]\nhello\n"))
	if _, err := NewWordPiece(vocab, 16); err == nil {
		t.Error("Expected error for vocab without special tokens")
	}
}
