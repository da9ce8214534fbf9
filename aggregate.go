package reportcard

import "reflect"

// Aggregate reduces parsed questions to whole-report totals. Non-finite
// values count as zero and a question whose possible points are non-finite
// falls back to its declared mark. Sums saturate instead of overflowing.
// The result does not depend on order.
func Aggregate(questions []Question) Totals {
	var t Totals
	for _, q := range questions {
		t.Obtained = addPoints(t.Obtained, q.ObtainedPoints)
		possible := q.PossiblePoints
		if !finite(possible) {
			possible = q.DeclaredPoints.Or(0)
		}
		t.Possible = addPoints(t.Possible, possible)
	}
	return t
}

// Derive runs the whole pipeline over one snapshot of report text.
func Derive(raw string) Report {
	questions := Parse(raw)
	return Report{
		Questions: questions,
		Totals:    Aggregate(questions),
	}
}

// Equal reports whether two reports are structurally equal.
func (r Report) Equal(other Report) bool {
	return reflect.DeepEqual(r, other)
}

// Percentage returns obtained/possible as a percentage, or 0 for an empty report.
func (t Totals) Percentage() float64 {
	if t.Possible <= 0 {
		return 0
	}
	return t.Obtained / t.Possible * 100
}
