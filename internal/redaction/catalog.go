package redaction

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/raaihank/scan-redactor/internal/logger"
	"go.uber.org/zap"
)

// Tier groups rules by how much context they require.
type Tier int

const (
	TierAnchored      Tier = iota // value follows a literal cue
	TierStructural                // bare digit-group or street shapes
	TierAnchoredFuzzy             // cue plus OCR-confused value
	TierFuzzy                     // bare OCR-confused shapes
	TierPermissive                // plain digit runs, lowest confidence
)

func (t Tier) String() string {
	switch t {
	case TierAnchored:
		return "anchored"
	case TierStructural:
		return "structural"
	case TierAnchoredFuzzy:
		return "anchored_fuzzy"
	case TierFuzzy:
		return "fuzzy"
	case TierPermissive:
		return "permissive"
	default:
		return fmt.Sprintf("tier(%d)", int(t))
	}
}

func (t Tier) enabled(p Policy) bool {
	switch t {
	case TierAnchored:
		return true
	case TierStructural, TierPermissive:
		return p.Mode == Aggressive
	case TierAnchoredFuzzy, TierFuzzy:
		return p.Mode == Aggressive && p.OCRTolerance
	default:
		return false
	}
}

// Base confidences per tier.
const (
	ConfidenceAnchored   = 0.95
	ConfidenceStructural = 0.85
	ConfidenceFuzzy      = 0.60
	ConfidencePermissive = 0.50

	luhnBonus   = 0.05
	luhnPenalty = 0.25
)

// Rule is one matcher in the catalog. Capture group 1 of the pattern is the
// reported value; everything outside it (cues) is context only.
type Rule struct {
	ID         string
	Category   Category
	Tier       Tier
	Confidence float64

	re    *regexp.Regexp
	score func(value []byte, base float64) (float64, bool)
}

// Pattern returns the rule's regular expression source.
func (r Rule) Pattern() string {
	if r.re == nil {
		return ""
	}
	return r.re.String()
}

// Value classes. None of them match the NUL mask byte or square brackets,
// so claimed spans and placeholder tokens are never matched again.
const (
	fuzzyDigit = `[0-9OolI]`
	fuzzySep   = `[-<>. ]`

	ssnCue    = `(?i:\b(?:SSN|SS#|Social\s+Security(?:\s+(?:No|Number|Num))?))\.?\s*[:#]?\s*\b`
	cardCue   = `(?i:\b(?:Credit\s+Card(?:\s+(?:No|Number|Num))?|Card\s+(?:No|Number|Num)))\.?\s*[:#]?\s*\b`
	addrCue   = `(?i:\bAddress)\s*:\s*\b`
	postalCue = `(?i:\b(?:ZIP(?:\s*Code)?|Postal\s*Code|Postcode))\s*[:#]?\s*\b`

	streetSuffix = `(?i:Street|St|Avenue|Ave|Road|Rd|Boulevard|Blvd|Lane|Ln|Drive|Dr|Court|Ct|Way|Place|Pl|Terrace|Ter|Circle|Cir|Highway|Hwy|Parkway|Pkwy|Square|Sq)`
	streetUnit   = `(?:,?\s+(?i:Apt|Apartment|Suite|Ste|Unit)\.?\s*#?\s*[A-Za-z0-9-]*[A-Za-z0-9])?`
	cityStateZip = `(?:,\s*[A-Z][A-Za-z]+(?:\s+[A-Z][A-Za-z]+){0,2},?\s+[A-Z]{2}\s+\d{5}(?:-\d{4})?)?`
	streetShape  = `\d{1,6}(?:\s+(?:[A-Z][A-Za-z'.-]*|\d{1,3}(?:st|nd|rd|th))){1,4}\s+` + streetSuffix + `\b\.?` + streetUnit + cityStateZip
)

// defaultRules lists every rule in scan order: the exact pass (anchored and
// structural), then the fuzzy pass, then the permissive pass. Within a pass
// the category order is SSN, CreditCard, Address, PostalCode.
var defaultRules = []Rule{
	{
		ID: "ssn.anchored", Category: SSN, Tier: TierAnchored, Confidence: ConfidenceAnchored,
		re: regexp.MustCompile(ssnCue + `(\d{3}[- ]?\d{2}[- ]?\d{4})\b`),
	},
	{
		ID: "ssn.structural", Category: SSN, Tier: TierStructural, Confidence: ConfidenceStructural,
		re: regexp.MustCompile(`\b(\d{3}-\d{2}-\d{4}|\d{3} \d{2} \d{4})\b`),
	},
	{
		ID: "card.anchored", Category: CreditCard, Tier: TierAnchored, Confidence: ConfidenceAnchored,
		re: regexp.MustCompile(cardCue + `(\d(?:[ -]?\d){12,18})\b`),
	},
	{
		ID: "card.structural", Category: CreditCard, Tier: TierStructural, Confidence: ConfidenceStructural,
		re:    regexp.MustCompile(`\b(\d{4}(?:[ -]\d{4}){3}|\d{4}[ -]\d{6}[ -]\d{5})\b`),
		score: luhnScore,
	},
	{
		ID: "address.anchored", Category: Address, Tier: TierAnchored, Confidence: ConfidenceAnchored,
		re: regexp.MustCompile(addrCue +
			`([A-Za-z0-9][^\n\x00\[\];]{0,80}?\b\d{5}(?:-\d{4})?|[A-Za-z0-9](?:[^\n\x00\[\];]{0,78}[A-Za-z0-9])?)\b`),
	},
	{
		ID: "address.structural", Category: Address, Tier: TierStructural, Confidence: ConfidenceStructural,
		re: regexp.MustCompile(`\b(` + streetShape + `)\b`),
	},
	{
		ID: "postal.anchored", Category: PostalCode, Tier: TierAnchored, Confidence: ConfidenceAnchored,
		re: regexp.MustCompile(postalCue + `(\d{5}(?:-\d{4})?)\b`),
	},
	{
		ID: "postal.structural", Category: PostalCode, Tier: TierStructural, Confidence: ConfidenceStructural,
		re: regexp.MustCompile(`\b(\d{5}(?:-\d{4})?)\b`),
	},

	{
		ID: "ssn.anchored.fuzzy", Category: SSN, Tier: TierAnchoredFuzzy, Confidence: ConfidenceFuzzy,
		re:    regexp.MustCompile(ssnCue + `(` + fuzzyDigit + `{3}` + fuzzySep + `?` + fuzzyDigit + `{2}` + fuzzySep + `?` + fuzzyDigit + `{4})\b`),
		score: fuzzyScore(false, 9),
	},
	{
		ID: "ssn.fuzzy", Category: SSN, Tier: TierFuzzy, Confidence: ConfidenceFuzzy,
		re: regexp.MustCompile(`\b(` + fuzzyDigit + `{3}` + fuzzySep + fuzzyDigit + `{2}` + fuzzySep + fuzzyDigit + `{4}|` +
			fuzzyDigit + `{9})\b`),
		score: fuzzyScore(true, 9),
	},
	{
		ID: "card.anchored.fuzzy", Category: CreditCard, Tier: TierAnchoredFuzzy, Confidence: ConfidenceFuzzy,
		re:    regexp.MustCompile(cardCue + `(` + fuzzyDigit + `(?:` + fuzzySep + `?` + fuzzyDigit + `){12,18})\b`),
		score: fuzzyScore(false, 13, 14, 15, 16, 17, 18, 19),
	},
	{
		ID: "card.fuzzy", Category: CreditCard, Tier: TierFuzzy, Confidence: ConfidenceFuzzy,
		re:    regexp.MustCompile(`\b(` + fuzzyDigit + `{4}(?:` + fuzzySep + fuzzyDigit + `{4}){3})\b`),
		score: fuzzyScore(true, 16),
	},
	{
		ID: "postal.anchored.fuzzy", Category: PostalCode, Tier: TierAnchoredFuzzy, Confidence: ConfidenceFuzzy,
		re:    regexp.MustCompile(postalCue + `(` + fuzzyDigit + `{5}(?:[-<>.]` + fuzzyDigit + `{4})?)\b`),
		score: fuzzyScore(false, 5, 9),
	},
	{
		ID: "postal.fuzzy", Category: PostalCode, Tier: TierFuzzy, Confidence: ConfidenceFuzzy,
		re:    regexp.MustCompile(`\b(` + fuzzyDigit + `{5}(?:[-<>.]` + fuzzyDigit + `{4})?)\b`),
		score: fuzzyScore(true, 5, 9),
	},

	{
		ID: "ssn.permissive", Category: SSN, Tier: TierPermissive, Confidence: ConfidencePermissive,
		re: regexp.MustCompile(`\b(\d{9})\b`),
	},
	{
		ID: "card.permissive", Category: CreditCard, Tier: TierPermissive, Confidence: ConfidencePermissive,
		re:    regexp.MustCompile(`\b(\d{13,19})\b`),
		score: permissiveCardScore,
	},
}

var placeholderPattern = regexp.MustCompile(`\[REDACTED(?: [A-Z]+)*\]`)

// Catalog is the fixed, ordered set of pattern rules. It holds no mutable
// state and is safe for concurrent use.
type Catalog struct {
	rules  []Rule
	logger *logger.Logger
}

// NewCatalog creates a catalog with the built-in rules.
func NewCatalog(log *logger.Logger) *Catalog {
	return newCatalog(log, defaultRules)
}

func newCatalog(log *logger.Logger, rules []Rule) *Catalog {
	if log == nil {
		log = logger.Nop()
	}
	c := &Catalog{
		rules:  append([]Rule(nil), rules...),
		logger: log.WithComponent("catalog"),
	}
	c.logger.Debug("Pattern catalog initialized", zap.Int("total_rules", len(c.rules)))
	return c
}

// Rules returns the catalog's rules in scan order.
func (c *Catalog) Rules() []Rule {
	return append([]Rule(nil), c.rules...)
}

// Detect runs every rule enabled by the policy over text. Rules run in scan
// order against a working copy in which earlier claims and existing
// placeholder tokens are masked, so a later rule never reports a span that
// overlaps an earlier one.
func (c *Catalog) Detect(text string, p Policy) []Detection {
	if text == "" {
		return nil
	}

	work := []byte(text)
	for _, loc := range placeholderPattern.FindAllIndex(work, -1) {
		mask(work, loc[0], loc[1])
	}

	var detections []Detection
	for i := range c.rules {
		rule := &c.rules[i]
		if !p.Categories.Has(rule.Category) || !rule.Tier.enabled(p) {
			continue
		}

		found := c.run(rule, work)
		for _, d := range found {
			mask(work, d.Start, d.End)
		}
		detections = append(detections, found...)
	}

	return detections
}

// run applies one rule. A panicking rule is logged and reports nothing.
func (c *Catalog) run(rule *Rule, work []byte) (found []Detection) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Warn("Pattern rule failed, skipping",
				zap.String("rule_id", rule.ID),
				zap.String("error", fmt.Sprint(r)),
			)
			found = nil
		}
	}()

	for _, m := range rule.re.FindAllSubmatchIndex(work, -1) {
		if len(m) < 4 || m[2] < 0 || m[3] <= m[2] {
			continue
		}
		start, end := m[2], m[3]

		confidence := rule.Confidence
		if rule.score != nil {
			var ok bool
			confidence, ok = rule.score(work[start:end], confidence)
			if !ok {
				continue
			}
		}

		found = append(found, Detection{
			Span:       Span{Start: start, End: end},
			Category:   rule.Category,
			Source:     SourcePattern,
			Confidence: clamp(confidence),
			RuleID:     rule.ID,
		})
	}
	return found
}

func mask(work []byte, start, end int) {
	for i := start; i < end && i < len(work); i++ {
		work[i] = 0
	}
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func luhnScore(value []byte, base float64) (float64, bool) {
	if luhnValid(digitsOf(value)) {
		return base + luhnBonus, true
	}
	return base - luhnPenalty, true
}

// permissiveCardScore accepts an unseparated digit run when it passes Luhn,
// or, penalized, when it has the 16 digits of a typical card number.
func permissiveCardScore(value []byte, base float64) (float64, bool) {
	digits := digitsOf(value)
	if luhnValid(digits) {
		return base, true
	}
	return base - luhnPenalty, len(digits) == 16
}

// fuzzyScore accepts an OCR-confused value when its normalized digit count
// is one of counts and at least two thirds of it are real digits. With
// needNoise set, values that carry no confusion at all are left to the
// exact and permissive rules.
func fuzzyScore(needNoise bool, counts ...int) func([]byte, float64) (float64, bool) {
	return func(value []byte, base float64) (float64, bool) {
		norm := normalizeDigits(value)
		ok := false
		for _, n := range counts {
			if len(norm) == n {
				ok = true
				break
			}
		}
		if !ok {
			return 0, false
		}

		real := len(digitsOf(value))
		if real < len(norm)-len(norm)/3 {
			return 0, false
		}

		if needNoise && !hasOCRNoise(value) {
			return 0, false
		}
		return base, true
	}
}

// normalizeDigits maps OCR confusions to digits and drops separators.
func normalizeDigits(value []byte) string {
	var b strings.Builder
	for _, ch := range value {
		switch {
		case ch >= '0' && ch <= '9':
			b.WriteByte(ch)
		case ch == 'O' || ch == 'o':
			b.WriteByte('0')
		case ch == 'l' || ch == 'I':
			b.WriteByte('1')
		}
	}
	return b.String()
}

func hasOCRNoise(value []byte) bool {
	var dash, space bool
	for _, ch := range value {
		switch ch {
		case 'O', 'o', 'l', 'I', '<', '>', '.':
			return true
		case '-':
			dash = true
		case ' ':
			space = true
		}
	}
	return dash && space
}

func digitsOf(value []byte) string {
	var b strings.Builder
	for _, ch := range value {
		if ch >= '0' && ch <= '9' {
			b.WriteByte(ch)
		}
	}
	return b.String()
}

// luhnValid reports whether a digit string passes the Luhn checksum.
func luhnValid(digits string) bool {
	if len(digits) < 2 {
		return false
	}
	sum := 0
	double := false
	for i := len(digits) - 1; i >= 0; i-- {
		d := int(digits[i] - '0')
		if d < 0 || d > 9 {
			return false
		}
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}
