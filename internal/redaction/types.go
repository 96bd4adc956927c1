package redaction

import (
	"fmt"
	"strings"
)

// Span is a half-open byte range [Start, End) into a source text.
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Len returns the number of bytes covered by the span.
func (s Span) Len() int {
	return s.End - s.Start
}

// Overlaps reports whether the two spans share at least one byte.
func (s Span) Overlaps(o Span) bool {
	return s.Start < o.End && o.Start < s.End
}

// Contains reports whether o lies entirely within s.
func (s Span) Contains(o Span) bool {
	return s.Start <= o.Start && o.End <= s.End
}

// Valid reports whether the span is non-empty and fits a text of n bytes.
func (s Span) Valid(n int) bool {
	return s.Start >= 0 && s.Start < s.End && s.End <= n
}

// Category is the closed set of sensitivity classes. The declaration order
// is also the merge priority: lower values win ties.
type Category int

const (
	SSN Category = iota
	CreditCard
	Address
	PostalCode
	PersonName
	Organization
	Location
	Other
)

// NumCategories is the number of defined categories.
const NumCategories = int(Other) + 1

var categoryNames = [...]string{
	SSN:          "ssn",
	CreditCard:   "credit_card",
	Address:      "address",
	PostalCode:   "postal_code",
	PersonName:   "person_name",
	Organization: "organization",
	Location:     "location",
	Other:        "other",
}

var placeholders = [...]string{
	SSN:          "[REDACTED SSN]",
	CreditCard:   "[REDACTED CREDIT CARD]",
	Address:      "[REDACTED ADDRESS]",
	PostalCode:   "[REDACTED POSTAL CODE]",
	PersonName:   "[REDACTED NAME]",
	Organization: "[REDACTED ORGANIZATION]",
	Location:     "[REDACTED LOCATION]",
	Other:        "[REDACTED]",
}

// accepted spellings for ParseCategory, keyed by lowercased name with
// separators removed
var categoryAliases = map[string]Category{
	"ssn":            SSN,
	"socialsecurity": SSN,
	"creditcard":     CreditCard,
	"card":           CreditCard,
	"address":        Address,
	"postalcode":     PostalCode,
	"zip":            PostalCode,
	"zipcode":        PostalCode,
	"personname":     PersonName,
	"person":         PersonName,
	"name":           PersonName,
	"per":            PersonName,
	"organization":   Organization,
	"organisation":   Organization,
	"org":            Organization,
	"location":       Location,
	"loc":            Location,
	"other":          Other,
	"misc":           Other,
}

func (c Category) valid() bool {
	return c >= SSN && c <= Other
}

// String returns the snake_case name of the category.
func (c Category) String() string {
	if !c.valid() {
		return fmt.Sprintf("category(%d)", int(c))
	}
	return categoryNames[c]
}

// Placeholder returns the fixed replacement token for the category.
func (c Category) Placeholder() string {
	if !c.valid() {
		return placeholders[Other]
	}
	return placeholders[c]
}

// Priority orders categories for tie-breaking; lower is stronger.
func (c Category) Priority() int {
	return int(c)
}

// ParseCategory converts a user-facing name into a Category.
func ParseCategory(name string) (Category, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	key = strings.NewReplacer("_", "", "-", "", " ", "").Replace(key)
	if c, ok := categoryAliases[key]; ok {
		return c, nil
	}
	return 0, fmt.Errorf("unknown category: %q", name)
}

func (c Category) MarshalText() ([]byte, error) {
	if !c.valid() {
		return nil, fmt.Errorf("invalid category: %d", int(c))
	}
	return []byte(c.String()), nil
}

func (c *Category) UnmarshalText(text []byte) error {
	parsed, err := ParseCategory(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Source identifies which detector produced a Detection.
type Source int

const (
	SourcePattern Source = iota
	SourceNER
)

func (s Source) String() string {
	if s == SourceNER {
		return "ner"
	}
	return "pattern"
}

func (s Source) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Source) UnmarshalText(text []byte) error {
	switch strings.ToLower(string(text)) {
	case "pattern":
		*s = SourcePattern
	case "ner":
		*s = SourceNER
	default:
		return fmt.Errorf("unknown source: %q", text)
	}
	return nil
}

// Detection is a candidate sensitive span before conflict resolution.
type Detection struct {
	Span
	Category   Category `json:"category"`
	Source     Source   `json:"source"`
	Confidence float64  `json:"confidence"`
	RuleID     string   `json:"rule_id"`
}

// AcceptedSpan is a Detection that survived reconciliation.
type AcceptedSpan struct {
	Detection
}

// Token is one tagged token emitted by a named-entity recognizer. Offsets
// are byte offsets into the tagged text. Score is nil when the recognizer
// does not expose one.
type Token struct {
	Label string   `json:"label"`
	Text  string   `json:"text"`
	Start int      `json:"start"`
	End   int      `json:"end"`
	Score *float64 `json:"score,omitempty"`
}

// AuditEntry records one redaction without the redacted value.
type AuditEntry struct {
	Category Category `json:"category"`
	Length   int      `json:"length"`
	Position int      `json:"position"`
}

// Result is the output of one redaction call.
type Result struct {
	RedactedText string       `json:"redacted_text"`
	Audit        []AuditEntry `json:"audit"`
}

// NoSensitiveContent reports whether nothing was redacted.
func (r Result) NoSensitiveContent() bool {
	return len(r.Audit) == 0
}

// Counts returns the number of redactions per category name.
func (r Result) Counts() map[string]int {
	counts := make(map[string]int)
	for _, e := range r.Audit {
		counts[e.Category.String()]++
	}
	return counts
}
