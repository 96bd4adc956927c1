package redaction

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/raaihank/scan-redactor/internal/config"
)

// Mode selects the strictness of pattern matching.
type Mode int

const (
	// Conservative fires only label-anchored rules.
	Conservative Mode = iota
	// Aggressive adds structural rules and, with OCRTolerance, fuzzy variants.
	Aggressive
)

func (m Mode) String() string {
	if m == Aggressive {
		return "aggressive"
	}
	return "conservative"
}

// ParseMode converts a mode name into a Mode.
func ParseMode(name string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "conservative", "labeled", "":
		return Conservative, nil
	case "aggressive", "pattern":
		return Aggressive, nil
	default:
		return 0, fmt.Errorf("unknown mode: %q", name)
	}
}

func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *Mode) UnmarshalText(text []byte) error {
	parsed, err := ParseMode(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// CategorySet is a bitset of enabled categories.
type CategorySet uint16

// NewCategorySet builds a set from the given categories.
func NewCategorySet(cats ...Category) CategorySet {
	var s CategorySet
	for _, c := range cats {
		s = s.With(c)
	}
	return s
}

// AllCategories returns the set of every category.
func AllCategories() CategorySet {
	return CategorySet(1<<NumCategories - 1)
}

// ParseCategorySet parses category names; "all" enables every category.
func ParseCategorySet(names []string) (CategorySet, error) {
	var s CategorySet
	for _, name := range names {
		for _, part := range strings.Split(name, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if strings.EqualFold(part, "all") {
				s = AllCategories()
				continue
			}
			c, err := ParseCategory(part)
			if err != nil {
				return 0, err
			}
			s = s.With(c)
		}
	}
	return s, nil
}

func (s CategorySet) With(c Category) CategorySet {
	if !c.valid() {
		return s
	}
	return s | 1<<uint(c)
}

func (s CategorySet) Has(c Category) bool {
	return c.valid() && s&(1<<uint(c)) != 0
}

// Any reports whether at least one of cats is enabled.
func (s CategorySet) Any(cats ...Category) bool {
	for _, c := range cats {
		if s.Has(c) {
			return true
		}
	}
	return false
}

// List returns the enabled categories in priority order.
func (s CategorySet) List() []Category {
	var out []Category
	for c := SSN; c <= Other; c++ {
		if s.Has(c) {
			out = append(out, c)
		}
	}
	return out
}

func (s CategorySet) String() string {
	names := make([]string, 0, NumCategories)
	for _, c := range s.List() {
		names = append(names, c.String())
	}
	return strings.Join(names, ",")
}

func (s CategorySet) MarshalJSON() ([]byte, error) {
	names := make([]string, 0, NumCategories)
	for _, c := range s.List() {
		names = append(names, c.String())
	}
	return json.Marshal(names)
}

func (s *CategorySet) UnmarshalJSON(data []byte) error {
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return fmt.Errorf("categories must be a list of names: %w", err)
	}
	parsed, err := ParseCategorySet(names)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Policy selects what one redaction call looks for. It is a plain value
// owned by the caller.
type Policy struct {
	Mode         Mode        `json:"mode"`
	Categories   CategorySet `json:"categories"`
	OCRTolerance bool        `json:"ocr_tolerance"`
}

// DefaultPolicy is conservative with every category enabled.
func DefaultPolicy() Policy {
	return Policy{Mode: Conservative, Categories: AllCategories()}
}

// PolicyFromConfig builds a Policy from the redaction config section.
func PolicyFromConfig(cfg config.RedactionConfig) (Policy, error) {
	mode, err := ParseMode(cfg.Mode)
	if err != nil {
		return Policy{}, fmt.Errorf("%w: %v", ErrInvalidPolicy, err)
	}
	cats, err := ParseCategorySet(cfg.Categories)
	if err != nil {
		return Policy{}, fmt.Errorf("%w: %v", ErrInvalidPolicy, err)
	}
	return Policy{Mode: mode, Categories: cats, OCRTolerance: cfg.OCRTolerance}, nil
}

func (p Policy) wantsEntities() bool {
	return p.Categories.Any(PersonName, Organization, Location, Address, Other)
}
