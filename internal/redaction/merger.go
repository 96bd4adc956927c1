package redaction

import "sort"

// replaceMargin is how much more confident a containing span must be to
// displace the span it contains.
const replaceMargin = 0.15

// Reconcile resolves overlaps between detections from every source and
// returns pairwise non-overlapping spans sorted by start. The result does
// not depend on the order of the input.
func Reconcile(detections []Detection) []AcceptedSpan {
	if len(detections) == 0 {
		return nil
	}

	sorted := make([]Detection, 0, len(detections))
	for _, d := range detections {
		if d.Start < 0 || d.End <= d.Start {
			continue
		}
		sorted = append(sorted, d)
	}
	sort.Slice(sorted, func(i, j int) bool {
		return before(sorted[i], sorted[j])
	})

	return sweep(sorted)
}

// before is the total order used by Reconcile: start ascending, then
// longer first, more confident first, higher category priority first, and
// finally rule ID and source so equal keys never depend on input order.
func before(a, b Detection) bool {
	if a.Start != b.Start {
		return a.Start < b.Start
	}
	if a.Len() != b.Len() {
		return a.Len() > b.Len()
	}
	if a.Confidence != b.Confidence {
		return a.Confidence > b.Confidence
	}
	if a.Category != b.Category {
		return a.Category.Priority() < b.Category.Priority()
	}
	if a.RuleID != b.RuleID {
		return a.RuleID < b.RuleID
	}
	return a.Source < b.Source
}

// sweep accepts detections left to right. An overlapping candidate is
// rejected unless it strictly contains the last accepted span and beats its
// confidence by more than replaceMargin, in which case it takes its place.
func sweep(ordered []Detection) []AcceptedSpan {
	var (
		accepted []AcceptedSpan
		cursor   int
	)

	for _, d := range ordered {
		if d.Start >= cursor {
			accepted = append(accepted, AcceptedSpan{Detection: d})
			cursor = d.End
			continue
		}

		// Reconcile's order puts a container before anything it contains, so
		// from there a container is accepted first and this replacement only
		// fires for input in other orders.
		if len(accepted) == 0 {
			continue
		}
		last := accepted[len(accepted)-1]
		if !strictlyContains(d.Span, last.Span) || d.Confidence-last.Confidence <= replaceMargin {
			continue
		}
		if n := len(accepted); n > 1 && accepted[n-2].End > d.Start {
			continue
		}

		accepted[len(accepted)-1] = AcceptedSpan{Detection: d}
		cursor = d.End
	}

	return accepted
}

func strictlyContains(outer, inner Span) bool {
	return outer.Contains(inner) && outer.Len() > inner.Len()
}
