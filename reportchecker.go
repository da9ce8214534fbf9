package reportcard

import "fmt"

// IssueKind names a data-quality problem found in a parsed report
type IssueKind string

const (
	IssueMissingMarks         IssueKind = "missing_marks"
	IssueScoreExceedsPossible IssueKind = "score_exceeds_possible"
	IssueDenominatorMismatch  IssueKind = "denominator_mismatch"
	IssueAllocationMismatch   IssueKind = "allocation_mismatch"
	IssueDuplicateNumber      IssueKind = "duplicate_number"
	IssueUnattempted          IssueKind = "unattempted"
)

// Severity represents how much an issue should worry a reader
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
)

// Issue is one finding of the report checker. Issues describe upstream
// inconsistencies that the parser passes through unchanged.
type Issue struct {
	Kind           IssueKind `json:"kind"`
	Severity       Severity  `json:"severity"`
	QuestionNumber int       `json:"question_number"`
	PartTitle      string    `json:"part_title,omitempty"`
	Reason         string    `json:"reason"`
}

// CheckReport inspects a parsed report and returns its issues in question order.
func CheckReport(r Report) []Issue {
	var issues []Issue
	seen := make(map[int]bool)

	for _, q := range r.Questions {
		if seen[q.Number] {
			issues = append(issues, Issue{
				Kind:           IssueDuplicateNumber,
				Severity:       SeverityWarning,
				QuestionNumber: q.Number,
				Reason:         fmt.Sprintf("question %d appears more than once", q.Number),
			})
		}
		seen[q.Number] = true

		if !q.DeclaredPoints.Valid {
			issues = append(issues, Issue{
				Kind:           IssueMissingMarks,
				Severity:       SeverityWarning,
				QuestionNumber: q.Number,
				Reason:         fmt.Sprintf("header mark missing or unreadable, using part total %s", FormatPoints(q.PossiblePoints)),
			})
		}

		issues = append(issues, checkParts(q)...)

		if !q.Attempted {
			issues = append(issues, Issue{
				Kind:           IssueUnattempted,
				Severity:       SeverityInfo,
				QuestionNumber: q.Number,
				Reason:         "no answer and no points awarded",
			})
		}
	}

	VerboseLog("Checked report: %d questions, %d issues", len(r.Questions), len(issues))
	return issues
}

func checkParts(q Question) []Issue {
	var issues []Issue
	var allocated float64
	multiPart := q.MultiPart

	for _, p := range q.Parts {
		allocated += p.AllocatedPoints

		if p.ObtainedPoints > p.PossiblePoints {
			issues = append(issues, Issue{
				Kind:           IssueScoreExceedsPossible,
				Severity:       SeverityWarning,
				QuestionNumber: q.Number,
				PartTitle:      p.Title,
				Reason: fmt.Sprintf("scored %s out of %s",
					FormatPoints(p.ObtainedPoints), FormatPoints(p.PossiblePoints)),
			})
		}

		if multiPart && p.PossiblePoints != p.AllocatedPoints {
			issues = append(issues, Issue{
				Kind:           IssueDenominatorMismatch,
				Severity:       SeverityInfo,
				QuestionNumber: q.Number,
				PartTitle:      p.Title,
				Reason: fmt.Sprintf("score denominator %s differs from allocation %s",
					FormatPoints(p.PossiblePoints), FormatPoints(p.AllocatedPoints)),
			})
		}
	}

	if multiPart && q.DeclaredPoints.Valid && allocated != q.DeclaredPoints.Value {
		issues = append(issues, Issue{
			Kind:           IssueAllocationMismatch,
			Severity:       SeverityInfo,
			QuestionNumber: q.Number,
			Reason: fmt.Sprintf("parts allocate %s of %s declared marks",
				FormatPoints(allocated), FormatPoints(q.DeclaredPoints.Value)),
		})
	}
	return issues
}
