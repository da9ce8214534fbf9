package reportcard

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// DefaultLogDir is where evaluation transcripts are written
const DefaultLogDir = "log"

// LLMLogger writes the transcript of one report evaluation to its own file
type LLMLogger struct {
	file     *os.File
	mu       sync.Mutex
	reportID string
}

// NewLLMLogger opens <dir>/<reportID>.log for appending and writes the
// request header. Retries of the same report add to one transcript.
func NewLLMLogger(dir string, req EvaluationRequest) (*LLMLogger, error) {
	if dir == "" {
		dir = DefaultLogDir
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	filename := filepath.Join(dir, fmt.Sprintf("%s.log", req.ReportID))
	file, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to create log file: %w", err)
	}

	logger := &LLMLogger{
		file:     file,
		reportID: req.ReportID,
	}

	logger.Logf("=== Report Evaluation Log ===\n")
	logger.Logf("Report ID: %s\n", req.ReportID)
	if req.Subject != "" {
		logger.Logf("Subject: %s\n", req.Subject)
	}
	logger.Logf("Question Paper Length: %d characters\n", len(req.QuestionPaper))
	logger.Logf("Answer Sheet Length: %d characters\n", len(req.AnswerSheet))
	if req.DocumentURL != "" {
		logger.Logf("Document URL: %s\n", req.DocumentURL)
	}
	logger.Logf("Started: %s\n", time.Now().Format(time.RFC3339))
	logger.Logf("=============================\n\n")

	return logger, nil
}

// Logf writes a formatted log entry with timestamp
func (ll *LLMLogger) Logf(format string, args ...interface{}) {
	ll.mu.Lock()
	defer ll.mu.Unlock()
	ll.writef(format, args...)
}

func (ll *LLMLogger) writef(format string, args ...interface{}) {
	if ll.file == nil {
		return
	}
	timestamp := time.Now().Format("15:04:05.000")
	fmt.Fprintf(ll.file, "[%s] %s", timestamp, fmt.Sprintf(format, args...))
	ll.file.Sync()
}

// LogLLMRequest logs an outbound evaluation request
func (ll *LLMLogger) LogLLMRequest(module, prompt string) {
	ll.Logf("=== LLM REQUEST (%s) ===\n", module)
	ll.Logf("Prompt:\n%s\n", prompt)
	ll.Logf("=====================\n\n")
}

// LogLLMResponse logs the evaluator's report text
func (ll *LLMLogger) LogLLMResponse(module, response string) {
	ll.Logf("=== LLM RESPONSE (%s) ===\n", module)
	ll.Logf("Response:\n%s\n", response)
	ll.Logf("======================\n\n")
}

// LogReportResult logs the parsed outcome of the evaluation
func (ll *LLMLogger) LogReportResult(report Report, issues []Issue) {
	ll.Logf("Parsed %d questions, total %s/%s\n", len(report.Questions),
		FormatPoints(report.Totals.Obtained), FormatPoints(report.Totals.Possible))
	for _, issue := range issues {
		if issue.PartTitle != "" {
			ll.Logf("Question %d [%s]: %s - %s\n", issue.QuestionNumber, issue.PartTitle, issue.Kind, issue.Reason)
		} else {
			ll.Logf("Question %d: %s - %s\n", issue.QuestionNumber, issue.Kind, issue.Reason)
		}
	}
}

// Close closes the log file
func (ll *LLMLogger) Close() error {
	ll.mu.Lock()
	defer ll.mu.Unlock()

	if ll.file == nil {
		return nil
	}
	ll.writef("=== Evaluation Complete ===\n")
	ll.writef("Completed: %s\n", time.Now().Format(time.RFC3339))
	ll.writef("===========================\n")
	err := ll.file.Close()
	ll.file = nil
	return err
}
