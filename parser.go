package reportcard

import (
	"fmt"
	"strconv"
	"strings"
)

// OverallPartTitle is the title of the synthetic part given to questions
// that have no sub-part headers.
const OverallPartTitle = "Overall"

// Parse converts raw evaluator text into its ordered questions.
//
// Parse never fails. Text before the first question header is discarded and
// every marker that cannot be found degrades to a default: empty text, a zero
// score, an absent mark or a placeholder part title. The same input always
// yields an equal result.
func Parse(raw string) []Question {
	text := normalizeNewlines(raw)

	headers := questionHeaderRule.findAll(text)
	questions := make([]Question, 0, len(headers))
	for i, header := range headers {
		end := len(text)
		if i+1 < len(headers) {
			end = headers[i+1].start
		}
		questions = append(questions, parseBlock(text[header.start:end], header))
	}
	return questions
}

func normalizeNewlines(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}

// parseBlock extracts one question from the text of its block. The header
// match offsets are relative to the whole report and only its groups are used.
func parseBlock(block string, header ruleMatch) Question {
	q := Question{}
	if n, err := strconv.Atoi(header.groups["number"]); err == nil {
		q.Number = n
	}
	if marks, ok := number(header.groups["marks"]); ok {
		q.DeclaredPoints = MarksOf(marks)
	}

	q.Prompt, _ = promptRule.capture(block, "prompt")
	q.AnswerText, _ = answerRule.capture(block, "answer")

	section := evaluationSection(block)
	if partHeaders := partHeaderRule.findAll(section); len(partHeaders) > 0 {
		q.Parts = parseParts(section, partHeaders)
		q.MultiPart = true
	} else {
		q.Parts = []Part{overallPart(block, section, q)}
	}

	if suggestion, ok := suggestionRule.capture(block, "suggestion"); ok {
		q.Feedback = &suggestion
	}

	derivePoints(&q)
	return q
}

// parseParts reads one part per header. A part's span runs from the end of
// its header to the start of the next header, or the end of the section.
func parseParts(section string, headers []ruleMatch) []Part {
	parts := make([]Part, 0, len(headers))
	for i, h := range headers {
		end := len(section)
		if i+1 < len(headers) {
			end = headers[i+1].start
		}
		span := section[h.end:end]

		p := Part{Title: strings.TrimSpace(h.groups["title"])}
		if p.Title == "" {
			p.Title = fmt.Sprintf("Part %d", i+1)
		}
		p.AllocatedPoints, _ = number(h.groups["allocated"])

		answer, _ := answerRule.capture(span, "answer")
		p.AnswerText = trimQuotes(answer)
		p.Feedback, _ = partFeedbackRule.capture(span, "feedback")

		// An explicit score denominator wins over the allocation.
		if obtained, possible, ok := scorePair(span); ok {
			p.ObtainedPoints = obtained
			p.PossiblePoints = possible
		} else {
			p.PossiblePoints = p.AllocatedPoints
		}
		parts = append(parts, p)
	}
	return parts
}

// overallPart synthesizes the single part of a question without sub-parts.
func overallPart(block, section string, q Question) Part {
	p := Part{Title: OverallPartTitle}

	p.AnswerText = q.AnswerText
	if scoped, ok := answerRule.capture(section, "answer"); ok && scoped != "" {
		p.AnswerText = scoped
	}
	p.Feedback, _ = sectionFeedbackRule.capture(section, "feedback")

	declared := q.DeclaredPoints.Or(0)
	if obtained, possible, ok := scorePair(section); ok {
		p.ObtainedPoints = obtained
		p.PossiblePoints = possible
		p.AllocatedPoints = possible
	} else {
		p.PossiblePoints = declared
		p.AllocatedPoints = declared
	}
	return p
}

// derivePoints fills the question's totals and attempted flag from its parts.
// The header mark is authoritative for the question's weight; part
// denominators only decide how that weight is distributed.
func derivePoints(q *Question) {
	var obtained, possible float64
	partScored := false
	for _, p := range q.Parts {
		obtained = addPoints(obtained, p.ObtainedPoints)
		possible = addPoints(possible, p.PossiblePoints)
		if p.ObtainedPoints > 0 {
			partScored = true
		}
	}

	q.ObtainedPoints = obtained
	q.PossiblePoints = q.DeclaredPoints.Or(possible)
	q.Attempted = obtained > 0 || partScored || q.AnswerText != ""
}
