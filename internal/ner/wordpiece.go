package ner

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"unicode"
	"unicode/utf8"
)

// BERT special tokens
const (
	tokenPAD = "[PAD]"
	tokenUNK = "[UNK]"
	tokenCLS = "[CLS]"
	tokenSEP = "[SEP]"

	maxWordBytes = 100
)

// LoadVocab reads a BERT vocab.txt: one token per line, id = line number.
func LoadVocab(r io.Reader) (map[string]int64, error) {
	vocab := make(map[string]int64)
	scanner := bufio.NewScanner(r)
	var id int64
	for scanner.Scan() {
		token := strings.TrimRight(scanner.Text(), "\r")
		if token != "" {
			vocab[token] = id
		}
		id++
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read vocab: %w", err)
	}
	return vocab, nil
}

// WordPiece is a cased BERT tokenizer that keeps byte offsets into the
// original text for every piece.
type WordPiece struct {
	vocab     map[string]int64
	unkID     int64
	clsID     int64
	sepID     int64
	padID     int64
	maxLength int
}

type piece struct {
	id    int64
	text  string
	start int
	end   int
}

// NewWordPiece creates a tokenizer. maxLength includes [CLS] and [SEP].
func NewWordPiece(vocab map[string]int64, maxLength int) (*WordPiece, error) {
	w := &WordPiece{vocab: vocab, maxLength: maxLength}
	for _, special := range []struct {
		name string
		dst  *int64
	}{
		{tokenUNK, &w.unkID},
		{tokenCLS, &w.clsID},
		{tokenSEP, &w.sepID},
	} {
		id, ok := vocab[special.name]
		if !ok {
			return nil, fmt.Errorf("vocab is missing %s", special.name)
		}
		*special.dst = id
	}
	w.padID = vocab[tokenPAD]
	if w.maxLength < 3 {
		w.maxLength = 512
	}
	return w, nil
}

// Tokenize splits text into word pieces, truncated so that the pieces plus
// [CLS] and [SEP] fit maxLength.
func (w *WordPiece) Tokenize(text string) []piece {
	limit := w.maxLength - 2
	var pieces []piece

	for _, word := range splitWords(text) {
		for _, p := range w.wordPieces(text[word[0]:word[1]], word[0]) {
			if len(pieces) >= limit {
				return pieces
			}
			pieces = append(pieces, p)
		}
	}
	return pieces
}

// encode wraps piece ids with [CLS] and [SEP] and returns ids and mask.
func (w *WordPiece) encode(pieces []piece) (ids, mask []int64) {
	ids = make([]int64, 0, len(pieces)+2)
	mask = make([]int64, 0, len(pieces)+2)

	ids = append(ids, w.clsID)
	for _, p := range pieces {
		ids = append(ids, p.id)
	}
	ids = append(ids, w.sepID)

	for range ids {
		mask = append(mask, 1)
	}
	return ids, mask
}

// wordPieces runs greedy longest-match-first over one word.
func (w *WordPiece) wordPieces(word string, offset int) []piece {
	if len(word) > maxWordBytes {
		return []piece{{id: w.unkID, text: word, start: offset, end: offset + len(word)}}
	}

	var out []piece
	start := 0
	for start < len(word) {
		end := len(word)
		found := false
		for end > start {
			sub := word[start:end]
			if start > 0 {
				sub = "##" + sub
			}
			if id, ok := w.vocab[sub]; ok {
				out = append(out, piece{id: id, text: sub, start: offset + start, end: offset + end})
				found = true
				break
			}
			_, size := utf8.DecodeLastRuneInString(word[start:end])
			end -= size
		}
		if !found {
			return []piece{{id: w.unkID, text: word, start: offset, end: offset + len(word)}}
		}
		start = end
	}
	return out
}

// splitWords returns [start, end) byte ranges of whitespace separated words,
// with every punctuation or symbol rune split into its own word.
func splitWords(text string) [][2]int {
	var words [][2]int
	start := -1

	for i, r := range text {
		switch {
		case unicode.IsSpace(r):
			if start >= 0 {
				words = append(words, [2]int{start, i})
				start = -1
			}
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			if start >= 0 {
				words = append(words, [2]int{start, i})
				start = -1
			}
			words = append(words, [2]int{i, i + utf8.RuneLen(r)})
		default:
			if start < 0 {
				start = i
			}
		}
	}
	if start >= 0 {
		words = append(words, [2]int{start, len(text)})
	}
	return words
}
