package redaction

import "strings"

// Apply replaces each accepted span with its category placeholder in a
// single left-to-right pass. Spans must be sorted by start; spans that are
// invalid for text or overlap an earlier span are skipped.
func Apply(text string, spans []AcceptedSpan) Result {
	audit := make([]AuditEntry, 0, len(spans))
	if text == "" || len(spans) == 0 {
		return Result{RedactedText: text, Audit: audit}
	}

	var b strings.Builder
	b.Grow(len(text))

	cursor := 0
	for _, s := range spans {
		if !s.Span.Valid(len(text)) || s.Start < cursor {
			continue
		}
		b.WriteString(text[cursor:s.Start])
		b.WriteString(s.Category.Placeholder())
		audit = append(audit, AuditEntry{
			Category: s.Category,
			Length:   s.Len(),
			Position: s.Start,
		})
		cursor = s.End
	}
	b.WriteString(text[cursor:])

	return Result{RedactedText: b.String(), Audit: audit}
}
