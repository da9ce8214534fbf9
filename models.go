package reportcard

import (
	"encoding/json"
	"math"
	"strconv"
	"time"
)

// Marks is a point value that may be missing from the report text.
// The zero value is an absent mark.
type Marks struct {
	Value float64
	Valid bool
}

// MarksOf returns a valid mark for finite values and an absent one otherwise.
func MarksOf(v float64) Marks {
	if !finite(v) {
		return Marks{}
	}
	return Marks{Value: v, Valid: true}
}

// Or returns the mark value, or fallback when the mark is absent.
func (m Marks) Or(fallback float64) float64 {
	if !m.Valid || !finite(m.Value) {
		return fallback
	}
	return m.Value
}

func (m Marks) MarshalJSON() ([]byte, error) {
	if !m.Valid || !finite(m.Value) {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatFloat(m.Value, 'f', -1, 64)), nil
}

func (m *Marks) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*m = Marks{}
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*m = MarksOf(v)
	return nil
}

// Part is one scored sub-unit of a question. Questions without sub-parts
// carry a single synthetic part titled "Overall".
type Part struct {
	Title           string  `json:"title"`
	AllocatedPoints float64 `json:"allocated_points"`
	AnswerText      string  `json:"answer_text"`
	Feedback        string  `json:"feedback"`
	ObtainedPoints  float64 `json:"obtained_points"`
	PossiblePoints  float64 `json:"possible_points"`
}

// Question represents one graded question block of an evaluator report
type Question struct {
	Number         int     `json:"number"`
	DeclaredPoints Marks   `json:"declared_points"`
	Prompt         string  `json:"prompt"`
	AnswerText     string  `json:"answer_text"`
	Parts          []Part  `json:"parts"`
	MultiPart      bool    `json:"multi_part"`
	ObtainedPoints float64 `json:"obtained_points"`
	PossiblePoints float64 `json:"possible_points"`
	Feedback       *string `json:"feedback,omitempty"`
	Attempted      bool    `json:"attempted"`
}

// Totals is the whole-report score
type Totals struct {
	Obtained float64 `json:"obtained"`
	Possible float64 `json:"possible"`
}

// Report is the parsed model of one evaluator report together with its totals
type Report struct {
	Questions []Question `json:"questions"`
	Totals    Totals     `json:"totals"`
}

// ReportStatus represents the state of a stored report
type ReportStatus string

const (
	StatusPending    ReportStatus = "pending"
	StatusEvaluating ReportStatus = "evaluating"
	StatusReady      ReportStatus = "ready"
	StatusFailed     ReportStatus = "failed"
)

// EvaluationRequest carries the documents an evaluator grades
type EvaluationRequest struct {
	ReportID      string `json:"report_id"`
	Subject       string `json:"subject,omitempty"`
	QuestionPaper string `json:"question_paper,omitempty"`
	AnswerSheet   string `json:"answer_sheet,omitempty"`
	DocumentURL   string `json:"document_url,omitempty"`
}

// Submission is one unit of work queued for batch evaluation
type Submission struct {
	ID        string            `json:"id"`
	Title     string            `json:"title"`
	Request   EvaluationRequest `json:"request"`
	Attempts  int               `json:"attempts"`
	QueuedAt  time.Time         `json:"queued_at"`
	LastError string            `json:"last_error,omitempty"`
}

// FormatPoints renders a point value in its shortest form ("5", "2.5").
func FormatPoints(v float64) string {
	if !finite(v) {
		return "0"
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// addPoints adds two point values. Non-finite inputs count as zero and a sum
// that overflows saturates at the largest finite float64.
func addPoints(a, b float64) float64 {
	sum := finiteOr0(a) + finiteOr0(b)
	switch {
	case math.IsInf(sum, 1):
		return math.MaxFloat64
	case math.IsInf(sum, -1):
		return -math.MaxFloat64
	}
	return sum
}

// finiteOr0 returns v, or 0 when v is NaN or infinite.
func finiteOr0(v float64) float64 {
	if !finite(v) {
		return 0
	}
	return v
}
