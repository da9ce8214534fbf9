package reportcard

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
)

var (
	attemptedColor   = color.New(color.FgGreen).SprintFunc()
	unattemptedColor = color.New(color.FgRed).SprintFunc()
	headingColor     = color.New(color.Bold).SprintFunc()
)

// StatusLabel returns the display label for a question's attempted status
func StatusLabel(q Question) string {
	if q.Attempted {
		return "Attempted"
	}
	return "Not attempted"
}

// WriteText renders a report as plain text: one summary row per question
// with the report totals, followed by the detail of every question.
func WriteText(w io.Writer, r Report) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "Question\tObtained\tPossible\tStatus")
	for _, q := range r.Questions {
		fmt.Fprintf(tw, "Q%d\t%s\t%s\t%s\n", q.Number,
			FormatPoints(q.ObtainedPoints), FormatPoints(q.PossiblePoints), StatusLabel(q))
	}
	fmt.Fprintf(tw, "Total\t%s\t%s\t%.1f%%\n",
		FormatPoints(r.Totals.Obtained), FormatPoints(r.Totals.Possible), r.Totals.Percentage())
	if err := tw.Flush(); err != nil {
		return err
	}

	for _, q := range r.Questions {
		if err := writeQuestion(w, q); err != nil {
			return err
		}
	}
	return nil
}

func writeQuestion(w io.Writer, q Question) error {
	status := attemptedColor(StatusLabel(q))
	if !q.Attempted {
		status = unattemptedColor(StatusLabel(q))
	}

	var sb strings.Builder
	sb.WriteString("\n")
	sb.WriteString(headingColor(fmt.Sprintf("Question %d", q.Number)))
	sb.WriteString(fmt.Sprintf("  %s/%s  %s\n",
		FormatPoints(q.ObtainedPoints), FormatPoints(q.PossiblePoints), status))
	if q.Prompt != "" {
		sb.WriteString(fmt.Sprintf("Prompt: %s\n", q.Prompt))
	}
	if q.AnswerText != "" {
		sb.WriteString(fmt.Sprintf("Answer: %s\n", q.AnswerText))
	}
	if _, err := io.WriteString(w, sb.String()); err != nil {
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "  Part\tAllocated\tObtained\tPossible\tAnswer\tFeedback")
	for _, p := range q.Parts {
		fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\t%s\t%s\n", oneLine(p.Title),
			FormatPoints(p.AllocatedPoints), FormatPoints(p.ObtainedPoints), FormatPoints(p.PossiblePoints),
			oneLine(p.AnswerText), oneLine(p.Feedback))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if q.Feedback != nil && *q.Feedback != "" {
		if _, err := fmt.Fprintf(w, "Feedback: %s\n", *q.Feedback); err != nil {
			return err
		}
	}
	return nil
}

// oneLine folds multi-line text into a single table cell
func oneLine(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if s == "" {
		return "-"
	}
	return s
}
