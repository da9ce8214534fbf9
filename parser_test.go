package reportcard

import (
	"encoding/json"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const multiPartReport = `Question 1 (Marks: 5) :: What is water?
Student Answer: H2O
Evaluation:
- Definition (Allocated: 5 marks):
Student Answer: "It's H2O"
Evaluation: Correct and concise
Score: 5/5
Overall Score: 5/5`

const singlePartReport = `Question 1 (Marks: 5) :: What is water?
Student Answer: H2O
Evaluation:
Student Answer: "It's H2O"
Evaluation: Correct and concise
Score: 5/5
Overall Score: 5/5`

const mixedReport = `Here is the evaluation you asked for.

Question 1 (Marks: 4)::
Define an ecosystem.

Student Answer:
A community of living things and their environment.

Evaluation:
Score: 3/4
Suggestion: Mention the interaction between biotic and abiotic parts.

Question 2 (Marks: 10)::
Explain human-made ecosystems.

Student Answer:
Farms and aquariums.

Evaluation:
* Definition (Allocated: 4 marks):
  Student Answer: "Ecosystems made by humans"
  Evaluation: Accurate.
  Score: 4 out of 4
* Examples (Allocated: 6 mark):
  Student Answer: "Farms"
  Evaluation: Only one example given.
  Score: 2/4

Overall Score: 6/10
Suggestion: Give more examples.

Question 3 (Marks: 6)::
Draw the water cycle.

Student Answer:

Evaluation:
Score: 0/6
Suggestion: Attempt every question.
`

func TestParse_MultiPart(t *testing.T) {
	questions := Parse(multiPartReport)
	require.Len(t, questions, 1)

	q := questions[0]
	assert.Equal(t, 1, q.Number)
	assert.Equal(t, MarksOf(5), q.DeclaredPoints)
	assert.Equal(t, "What is water?", q.Prompt)
	assert.Equal(t, "H2O", q.AnswerText)
	require.Len(t, q.Parts, 1)

	p := q.Parts[0]
	assert.Equal(t, "Definition", p.Title)
	assert.Equal(t, 5.0, p.AllocatedPoints)
	assert.Equal(t, "It's H2O", p.AnswerText)
	assert.Equal(t, "Correct and concise", p.Feedback)
	assert.Equal(t, 5.0, p.ObtainedPoints)
	assert.Equal(t, 5.0, p.PossiblePoints)

	assert.Equal(t, 5.0, q.ObtainedPoints)
	assert.Equal(t, 5.0, q.PossiblePoints)
	assert.True(t, q.Attempted)
	assert.True(t, q.MultiPart)
	assert.Nil(t, q.Feedback)
}

func TestParse_SinglePartFallback(t *testing.T) {
	questions := Parse(singlePartReport)
	require.Len(t, questions, 1)

	q := questions[0]
	require.Len(t, q.Parts, 1)
	p := q.Parts[0]
	assert.Equal(t, OverallPartTitle, p.Title)
	assert.Equal(t, `"It's H2O"`, p.AnswerText, "evaluation-scoped answer is preferred")
	assert.Contains(t, p.Feedback, "Correct and concise")
	assert.NotContains(t, p.Feedback, "Score")
	assert.Equal(t, 5.0, p.ObtainedPoints)
	assert.Equal(t, 5.0, p.PossiblePoints)
	assert.Equal(t, 5.0, p.AllocatedPoints)
	assert.Equal(t, 5.0, q.ObtainedPoints)
	assert.True(t, q.Attempted)
	assert.False(t, q.MultiPart)
}

func TestParse_SinglePartWithoutScoreUsesDeclaredMarks(t *testing.T) {
	questions := Parse("Question 7 (Marks: 3) :: Name a gas.\nStudent Answer: Oxygen\nEvaluation:\nLooks right.\n")
	require.Len(t, questions, 1)

	q := questions[0]
	require.Len(t, q.Parts, 1)
	assert.Equal(t, "Oxygen", q.Parts[0].AnswerText)
	assert.Equal(t, "Looks right.", q.Parts[0].Feedback)
	assert.Equal(t, 0.0, q.Parts[0].ObtainedPoints)
	assert.Equal(t, 3.0, q.Parts[0].PossiblePoints)
	assert.Equal(t, 3.0, q.PossiblePoints)
	assert.True(t, q.Attempted, "a non-empty answer counts as attempted")
}

func TestParse_MixedReport(t *testing.T) {
	questions := Parse(mixedReport)
	require.Len(t, questions, 3)

	q1 := questions[0]
	assert.Equal(t, 1, q1.Number)
	assert.Equal(t, "Define an ecosystem.", q1.Prompt)
	assert.Equal(t, "A community of living things and their environment.", q1.AnswerText)
	require.Len(t, q1.Parts, 1)
	assert.Equal(t, OverallPartTitle, q1.Parts[0].Title)
	assert.Equal(t, 3.0, q1.ObtainedPoints)
	assert.Equal(t, 4.0, q1.PossiblePoints)
	require.NotNil(t, q1.Feedback)
	assert.Equal(t, "Mention the interaction between biotic and abiotic parts.", *q1.Feedback)

	q2 := questions[1]
	require.Len(t, q2.Parts, 2)
	assert.Equal(t, "Definition", q2.Parts[0].Title)
	assert.Equal(t, "Ecosystems made by humans", q2.Parts[0].AnswerText)
	assert.Equal(t, "Accurate.", q2.Parts[0].Feedback)
	assert.Equal(t, 4.0, q2.Parts[0].ObtainedPoints)
	assert.Equal(t, 4.0, q2.Parts[0].PossiblePoints)

	examples := q2.Parts[1]
	assert.Equal(t, "Examples", examples.Title)
	assert.Equal(t, 6.0, examples.AllocatedPoints)
	assert.Equal(t, 2.0, examples.ObtainedPoints)
	assert.Equal(t, 4.0, examples.PossiblePoints, "explicit score denominator wins over the allocation")

	assert.Equal(t, 6.0, q2.ObtainedPoints)
	assert.Equal(t, 10.0, q2.PossiblePoints)
	require.NotNil(t, q2.Feedback)
	assert.Equal(t, "Give more examples.", *q2.Feedback)

	q3 := questions[2]
	assert.Equal(t, "", q3.AnswerText)
	assert.Equal(t, 0.0, q3.ObtainedPoints)
	assert.Equal(t, 6.0, q3.PossiblePoints)
	assert.False(t, q3.Attempted)
}

func TestParse_OverallScoreAndSuggestionNeverBecomePartContent(t *testing.T) {
	questions := Parse(mixedReport)
	require.Len(t, questions, 3)

	last := questions[1].Parts[1]
	assert.NotContains(t, last.Feedback, "Overall")
	assert.NotContains(t, last.AnswerText, "Overall")
	assert.NotContains(t, last.Feedback, "Give more examples")
}

func TestParse_HeaderAuthority(t *testing.T) {
	text := `Question 4 (Marks: 10) :: Two parts.
Student Answer: something
Evaluation:
- First (Allocated: 4 marks):
Student Answer: a
Evaluation: ok
Score: 2/4
- Second (Allocated: 4 marks):
Student Answer: b
Evaluation: ok
Score: 3/4
`
	questions := Parse(text)
	require.Len(t, questions, 1)
	q := questions[0]
	require.Len(t, q.Parts, 2)
	assert.Equal(t, 8.0, q.Parts[0].PossiblePoints+q.Parts[1].PossiblePoints)
	assert.Equal(t, 10.0, q.PossiblePoints)
	assert.Equal(t, 5.0, q.ObtainedPoints)
}

func TestParse_PartWithoutScoreFallsBackToAllocation(t *testing.T) {
	text := `Question 2 (Marks: 3) :: Q
Student Answer: x
Evaluation:
- Only part (Allocated: 3 marks):
Student Answer: x
Evaluation: not graded
`
	questions := Parse(text)
	require.Len(t, questions, 1)
	p := questions[0].Parts[0]
	assert.Equal(t, 0.0, p.ObtainedPoints)
	assert.Equal(t, 3.0, p.PossiblePoints)
	assert.Equal(t, "", p.Feedback, "feedback needs a closing Score marker")
}

func TestParse_MissingMarksStaysFinite(t *testing.T) {
	text := `Question 1 (Marks: ) :: No marks here
Student Answer: x
Evaluation:
- A (Allocated: 2 marks):
Student Answer: x
Evaluation: fine
Score: 1/2
- B (Allocated: 3 marks):
Student Answer: y
Evaluation: fine
Score: 3/3

Question 2 (Marks: lots) :: Unreadable marks
Student Answer:
Evaluation:
nothing
`
	questions := Parse(text)
	require.Len(t, questions, 2)

	q1 := questions[0]
	assert.False(t, q1.DeclaredPoints.Valid)
	assert.Equal(t, 5.0, q1.PossiblePoints, "part denominators are used when the header has no mark")
	assert.Equal(t, 4.0, q1.ObtainedPoints)

	q2 := questions[1]
	assert.False(t, q2.DeclaredPoints.Valid)
	require.Len(t, q2.Parts, 1)
	assert.Equal(t, 0.0, q2.Parts[0].PossiblePoints)
	assert.Equal(t, 0.0, q2.PossiblePoints)

	totals := Aggregate(questions)
	assert.Equal(t, Totals{Obtained: 4, Possible: 5}, totals)
}

func TestParse_DiscardsLeadingTextAndHeaderlessInput(t *testing.T) {
	assert.Empty(t, Parse(""))
	assert.Empty(t, Parse("no questions in here\nScore: 5/5\n"))

	questions := Parse("preamble Score: 9/9\n" + multiPartReport)
	require.Len(t, questions, 1)
	assert.Equal(t, 5.0, questions[0].ObtainedPoints)
}

func TestParse_DuplicateNumbersAreKeptInOrder(t *testing.T) {
	text := "Question 1 (Marks: 2) :: first\nStudent Answer: a\nEvaluation:\nScore: 1/2\n" +
		"Question 1 (Marks: 3) :: again\nStudent Answer: b\nEvaluation:\nScore: 2/3\n"
	questions := Parse(text)
	require.Len(t, questions, 2)
	assert.Equal(t, "first", questions[0].Prompt)
	assert.Equal(t, "again", questions[1].Prompt)
	assert.Equal(t, 1, questions[0].Number)
	assert.Equal(t, 1, questions[1].Number)
}

func TestParse_CaseInsensitiveAndCRLF(t *testing.T) {
	text := strings.ReplaceAll(multiPartReport, "\n", "\r\n")
	text = strings.ToUpper(text[:len("Question 1 (Marks: 5)")]) + text[len("Question 1 (Marks: 5)"):]
	text = strings.Replace(text, "Score: 5/5", "score: 4 OUT OF 5", 1)

	questions := Parse(text)
	require.Len(t, questions, 1)
	require.Len(t, questions[0].Parts, 1)
	assert.Equal(t, "Definition", questions[0].Parts[0].Title)
	assert.Equal(t, 4.0, questions[0].Parts[0].ObtainedPoints)
	assert.NotContains(t, questions[0].Parts[0].Feedback, "\r")

	assert.Equal(t, Parse(multiPartReport)[0].Prompt, questions[0].Prompt)

	oldMac := strings.ReplaceAll(multiPartReport, "\n", "\r")
	assert.Equal(t, Parse(multiPartReport), Parse(oldMac))
}

func TestParse_OverReportedScoreIsPassedThrough(t *testing.T) {
	questions := Parse("Question 1 (Marks: 3) :: Q\nStudent Answer: a\nEvaluation:\nScore: 5/3\n")
	require.Len(t, questions, 1)
	// upstream inconsistency, not corrected by the parser
	assert.Equal(t, 5.0, questions[0].ObtainedPoints)
	assert.Equal(t, 3.0, questions[0].PossiblePoints)
}

func TestParse_Deterministic(t *testing.T) {
	inputs := []string{"", multiPartReport, singlePartReport, mixedReport, "Question 1 (Marks: x) ::"}
	for _, in := range inputs {
		first := Derive(in)
		second := Derive(in)
		assert.True(t, first.Equal(second))
		assert.Equal(t, first, second)
	}
}

func TestParse_Invariants(t *testing.T) {
	questions := Parse(mixedReport + "\n" + multiPartReport + "\nQuestion 9 (Marks: 2) ::\n")
	for _, q := range questions {
		assert.NotEmpty(t, q.Parts, "question %d has no parts", q.Number)
		assert.GreaterOrEqual(t, q.ObtainedPoints, 0.0)
		assert.True(t, finite(q.PossiblePoints))
		assert.LessOrEqual(t, q.ObtainedPoints, q.PossiblePoints, "question %d", q.Number)
		for _, p := range q.Parts {
			assert.True(t, finite(p.PossiblePoints))
			assert.True(t, finite(p.ObtainedPoints))
		}
	}
}

func TestParse_UntitledPartGetsPlaceholder(t *testing.T) {
	text := `Question 1 (Marks: 5) :: Q
Student Answer: x
Evaluation:
-  (Allocated: 2 marks):
Student Answer: a
Evaluation: ok
Score: 2/2
- Named (Allocated: 3 marks):
Student Answer: b
Evaluation: ok
Score: 1/3
`
	questions := Parse(text)
	require.Len(t, questions, 1)
	require.Len(t, questions[0].Parts, 2)
	assert.Equal(t, "Part 1", questions[0].Parts[0].Title)
	assert.Equal(t, 2.0, questions[0].Parts[0].AllocatedPoints)
	assert.Equal(t, "Named", questions[0].Parts[1].Title)
}

func TestParse_PartTitledOverallIsStillMultiPart(t *testing.T) {
	text := `Question 1 (Marks: 6) :: Q
Student Answer: x
Evaluation:
- Overall (Allocated: 4 marks):
Student Answer: x
Evaluation: ok
Score: 3/5
`
	questions := Parse(text)
	require.Len(t, questions, 1)
	assert.True(t, questions[0].MultiPart)
	assert.Equal(t, OverallPartTitle, questions[0].Parts[0].Title)
}

func TestParse_HugeMarksNeverOverflow(t *testing.T) {
	huge := "1" + strings.Repeat("0", 308)
	block := "Question %d (Marks: " + huge + ") :: big\nStudent Answer: a\nEvaluation:\nScore: " + huge + "/" + huge + "\n"
	text := strings.Replace(block, "%d", "1", 1) + strings.Replace(block, "%d", "2", 1)

	report := Derive(text)
	require.Len(t, report.Questions, 2)
	assert.Equal(t, 1e308, report.Questions[0].PossiblePoints)
	assert.False(t, math.IsInf(report.Totals.Obtained, 0))
	assert.False(t, math.IsInf(report.Totals.Possible, 0))
	assert.Equal(t, math.MaxFloat64, report.Totals.Possible)

	_, err := json.Marshal(report)
	assert.NoError(t, err)
}

func TestParse_ExponentMarksAreAbsent(t *testing.T) {
	questions := Parse("Question 1 (Marks: 1e308) :: q\nStudent Answer: a\nEvaluation:\nScore: 1e308/1e308\n")
	require.Len(t, questions, 1)
	q := questions[0]
	assert.False(t, q.DeclaredPoints.Valid)
	assert.Equal(t, 0.0, q.ObtainedPoints)
	assert.Equal(t, 0.0, q.PossiblePoints)
}
