package redaction

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/raaihank/scan-redactor/internal/logger"
	"go.uber.org/zap"
)

// addressWindow is how many runes around a location entity the adapter
// searches for address terms before promoting it to Address.
const addressWindow = 20

var addressTerms = map[string]bool{
	"street": true, "st": true, "avenue": true, "ave": true, "road": true, "rd": true,
	"boulevard": true, "blvd": true, "lane": true, "ln": true, "drive": true, "dr": true,
	"court": true, "ct": true, "way": true, "place": true, "pl": true, "terrace": true,
	"highway": true, "hwy": true, "parkway": true, "pkwy": true,
	"apt": true, "apartment": true, "suite": true, "ste": true, "unit": true, "floor": true,
	"zip": true, "po": true, "box": true, "address": true,
}

// entityCategories maps recognizer entity types to categories.
var entityCategories = map[string]Category{
	"PER":  PersonName,
	"ORG":  Organization,
	"LOC":  Location,
	"MISC": Other,
}

// EntityAdapter turns recognizer tokens into Detections.
type EntityAdapter struct {
	logger *logger.Logger
}

// NewEntityAdapter creates an entity adapter.
func NewEntityAdapter(log *logger.Logger) *EntityAdapter {
	if log == nil {
		log = logger.Nop()
	}
	return &EntityAdapter{logger: log.WithComponent("entities")}
}

type entityGroup struct {
	kind   string
	start  int
	end    int
	scores float64
	scored int
}

// Detect merges adjacent same-entity tokens into single detections and
// keeps those whose category the policy enables.
func (a *EntityAdapter) Detect(text string, tokens []Token, p Policy) []Detection {
	if text == "" || len(tokens) == 0 || !p.wantsEntities() {
		return nil
	}

	var (
		detections []Detection
		current    *entityGroup
	)

	flush := func() {
		if current == nil {
			return
		}
		if d, ok := a.toDetection(text, current, p); ok {
			detections = append(detections, d)
		}
		current = nil
	}

	for _, tok := range tokens {
		if !(Span{Start: tok.Start, End: tok.End}).Valid(len(text)) {
			a.logger.Debug("Discarding token with invalid offsets",
				zap.Int("start", tok.Start),
				zap.Int("end", tok.End),
				zap.Int("text_length", len(text)),
			)
			flush()
			continue
		}

		prefix, kind := splitLabel(tok.Label)
		if kind == "" {
			flush()
			continue
		}

		if current != nil && current.kind == kind && tok.Start >= current.end &&
			continues(prefix, tok.Text) && onlySpace(text[current.end:tok.Start]) {
			current.end = tok.End
			current.addScore(tok.Score)
			continue
		}

		flush()
		current = &entityGroup{kind: kind, start: tok.Start, end: tok.End}
		current.addScore(tok.Score)
	}
	flush()

	return detections
}

func (g *entityGroup) addScore(score *float64) {
	if score == nil {
		return
	}
	g.scores += *score
	g.scored++
}

func (a *EntityAdapter) toDetection(text string, g *entityGroup, p Policy) (Detection, bool) {
	category, ok := entityCategories[g.kind]
	if !ok {
		a.logger.Debug("Ignoring unknown entity type", zap.String("entity", g.kind))
		return Detection{}, false
	}

	ruleID := "ner." + strings.ToLower(g.kind)
	if category == Location && nearAddressTerm(text, g.start, g.end) {
		category = Address
		ruleID = "ner.loc.address"
	}
	if !p.Categories.Has(category) {
		return Detection{}, false
	}

	confidence := 1.0
	if g.scored > 0 {
		confidence = g.scores / float64(g.scored)
	}

	return Detection{
		Span:       Span{Start: g.start, End: g.end},
		Category:   category,
		Source:     SourceNER,
		Confidence: clamp(confidence),
		RuleID:     ruleID,
	}, true
}

// splitLabel splits "B-PER" into ("B", "PER"). Bare labels such as "PER"
// return an empty prefix; "O" and empty labels return an empty kind.
func splitLabel(label string) (prefix, kind string) {
	label = strings.ToUpper(strings.TrimSpace(label))
	if label == "" || label == "O" {
		return "", ""
	}
	if len(label) > 2 && label[1] == '-' {
		return label[:1], label[2:]
	}
	return "", label
}

// continues reports whether a token extends the entity in progress.
func continues(prefix, tokenText string) bool {
	if strings.HasPrefix(tokenText, "##") {
		return true
	}
	return prefix == "I" || prefix == ""
}

func onlySpace(s string) bool {
	for _, r := range s {
		if !unicode.IsSpace(r) {
			return false
		}
	}
	return true
}

// nearAddressTerm reports whether an address term lies within
// addressWindow runes of [start, end). Words cut by the window edge are not
// considered.
func nearAddressTerm(text string, start, end int) bool {
	lo := start
	for n := 0; n < addressWindow && lo > 0; n++ {
		_, size := utf8.DecodeLastRuneInString(text[:lo])
		lo -= size
	}
	hi := end
	for n := 0; n < addressWindow && hi < len(text); n++ {
		_, size := utf8.DecodeRuneInString(text[hi:])
		hi += size
	}

	if lo > 0 {
		if r, _ := utf8.DecodeLastRuneInString(text[:lo]); unicode.IsLetter(r) {
			for lo < start {
				r, size := utf8.DecodeRuneInString(text[lo:])
				if !unicode.IsLetter(r) {
					break
				}
				lo += size
			}
		}
	}
	if hi < len(text) {
		if r, _ := utf8.DecodeRuneInString(text[hi:]); unicode.IsLetter(r) {
			for hi > end {
				r, size := utf8.DecodeLastRuneInString(text[:hi])
				if !unicode.IsLetter(r) {
					break
				}
				hi -= size
			}
		}
	}

	words := strings.FieldsFunc(strings.ToLower(text[lo:hi]), func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	for _, w := range words {
		if addressTerms[w] {
			return true
		}
	}
	return false
}
