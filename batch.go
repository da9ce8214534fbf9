package reportcard

import (
	"context"
	"fmt"
	"log"
)

// DefaultMaxAttempts bounds how often a failing submission is retried
const DefaultMaxAttempts = 3

// BatchResult is the outcome of evaluating one submission
type BatchResult struct {
	Submission Submission `json:"submission"`
	RawText    string     `json:"raw_text"`
	Report     Report     `json:"report"`
	Issues     []Issue    `json:"issues,omitempty"`
	Err        error      `json:"-"`
}

// BatchEvaluator evaluates many submissions, retrying failed ones
type BatchEvaluator struct {
	evaluator   Evaluator
	pool        *SubmissionPool
	MaxAttempts int
	// LogDir receives one transcript per submission when the evaluator
	// supports transcripts. Empty disables them.
	LogDir string
}

// NewBatchEvaluator creates a new batch evaluator
func NewBatchEvaluator(evaluator Evaluator) *BatchEvaluator {
	return &BatchEvaluator{
		evaluator:   evaluator,
		pool:        NewSubmissionPool(),
		MaxAttempts: DefaultMaxAttempts,
	}
}

// EvaluateAll evaluates every submission and returns one result per
// submission in input order. Failed submissions go back into the pool until
// they have been tried MaxAttempts times; a cancelled context stops the batch
// and marks what is left as failed.
func (be *BatchEvaluator) EvaluateAll(ctx context.Context, subs []Submission) []BatchResult {
	log.Printf("Starting batch evaluation of %d submissions", len(subs))

	results := make(map[string]*BatchResult, len(subs))
	for i := range subs {
		sub := subs[i]
		sub.Attempts = 0
		be.pool.Add(&sub)
	}

	maxAttempts := be.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	for !be.pool.IsEmpty() {
		if err := ctx.Err(); err != nil {
			for _, sub := range be.pool.Pending() {
				be.pool.Remove(sub.ID)
				results[sub.ID] = &BatchResult{Submission: *sub, Err: fmt.Errorf("batch cancelled: %w", err)}
			}
			break
		}

		sub := be.pool.Get()
		if sub == nil {
			break
		}
		sub.Attempts++

		logger := be.openTranscript(sub)
		raw, err := be.evaluator.Evaluate(ctx, sub.Request)
		if err != nil {
			if logger != nil {
				logger.Logf("Attempt %d failed: %v\n", sub.Attempts, err)
			}
			be.closeTranscript(logger)
			sub.LastError = err.Error()
			if sub.Attempts < maxAttempts {
				log.Printf("Error evaluating submission %s (attempt %d/%d): %v", sub.ID, sub.Attempts, maxAttempts, err)
				be.pool.Add(sub)
				continue
			}
			log.Printf("Giving up on submission %s after %d attempts: %v", sub.ID, sub.Attempts, err)
			results[sub.ID] = &BatchResult{Submission: *sub, Err: err}
			continue
		}

		report := Derive(raw)
		issues := CheckReport(report)
		if logger != nil {
			logger.LogReportResult(report, issues)
		}
		be.closeTranscript(logger)
		results[sub.ID] = &BatchResult{
			Submission: *sub,
			RawText:    raw,
			Report:     report,
			Issues:     issues,
		}
		VerboseLog("Submission %s evaluated: %s/%s", sub.ID,
			FormatPoints(report.Totals.Obtained), FormatPoints(report.Totals.Possible))
	}

	ordered := make([]BatchResult, 0, len(subs))
	failed := 0
	for _, sub := range subs {
		r, ok := results[sub.ID]
		if !ok {
			r = &BatchResult{Submission: sub, Err: fmt.Errorf("submission %s was not evaluated", sub.ID)}
		}
		if r.Err != nil {
			failed++
		}
		ordered = append(ordered, *r)
	}

	log.Printf("Batch evaluation complete: %d evaluated, %d failed", len(ordered)-failed, failed)
	return ordered
}

// openTranscript attaches a transcript for sub to the evaluator. It returns
// nil when transcripts are disabled or unsupported.
func (be *BatchEvaluator) openTranscript(sub *Submission) *LLMLogger {
	if be.LogDir == "" {
		return nil
	}
	tw, ok := be.evaluator.(transcriptWriter)
	if !ok {
		return nil
	}
	logger, err := NewLLMLogger(be.LogDir, sub.Request)
	if err != nil {
		log.Printf("Failed to create transcript for submission %s: %v", sub.ID, err)
		return nil
	}
	tw.SetLogger(logger)
	return logger
}

// closeTranscript detaches logger from the evaluator and closes it
func (be *BatchEvaluator) closeTranscript(logger *LLMLogger) {
	if logger == nil {
		return
	}
	if tw, ok := be.evaluator.(transcriptWriter); ok {
		tw.SetLogger(nil)
	}
	if err := logger.Close(); err != nil {
		log.Printf("Failed to close transcript: %v", err)
	}
}

// StaticEvaluator returns report text that is already known, e.g. a report
// file produced by an earlier evaluation.
type StaticEvaluator struct{}

// Evaluate returns the answer sheet unchanged
func (StaticEvaluator) Evaluate(_ context.Context, req EvaluationRequest) (string, error) {
	if req.AnswerSheet == "" {
		return "", fmt.Errorf("report %s is empty", req.ReportID)
	}
	return req.AnswerSheet, nil
}
