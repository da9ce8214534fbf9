package reportcard

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// ErrReportNotFound is returned when a report id is unknown
var ErrReportNotFound = errors.New("report not found")

// DB represents a report database connection
type DB struct {
	db *sql.DB
}

// DBReport represents a report in the database
type DBReport struct {
	ID        string       `json:"id"`
	Title     string       `json:"title"`
	Subject   string       `json:"subject"`
	Source    string       `json:"source"` // "upload", "llm", "remote", "import"
	RawText   string       `json:"raw_text"`
	Status    ReportStatus `json:"status"`
	Error     string       `json:"error,omitempty"`
	Obtained  float64      `json:"obtained"`
	Possible  float64      `json:"possible"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// DBQuestion represents a parsed question in the database
type DBQuestion struct {
	ReportID   string          `json:"report_id"`
	Position   int             `json:"position"`
	Number     int             `json:"number"`
	Declared   sql.NullFloat64 `json:"declared"`
	Prompt     string          `json:"prompt"`
	AnswerText string          `json:"answer_text"`
	Parts      string          `json:"parts"` // JSON array of parts
	MultiPart  bool            `json:"multi_part"`
	Obtained   float64         `json:"obtained"`
	Possible   float64         `json:"possible"`
	Feedback   sql.NullString  `json:"feedback"`
	Attempted  bool            `json:"attempted"`
}

// OpenDB opens a new database connection
func OpenDB(dbPath string) (*DB, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{db: db}, nil
}

// CloseDB closes the database connection
func (db *DB) CloseDB() error {
	return db.db.Close()
}

// CreateTables creates the necessary tables if they don't exist
func (db *DB) CreateTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS reports (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			subject TEXT,
			source TEXT NOT NULL,
			raw_text TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'pending',
			error TEXT,
			obtained REAL NOT NULL DEFAULT 0,
			possible REAL NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS questions (
			report_id TEXT NOT NULL,
			position INTEGER NOT NULL,
			number INTEGER NOT NULL,
			declared REAL,
			prompt TEXT NOT NULL,
			answer_text TEXT NOT NULL,
			parts TEXT NOT NULL,
			multi_part INTEGER NOT NULL DEFAULT 0,
			obtained REAL NOT NULL,
			possible REAL NOT NULL,
			feedback TEXT,
			attempted INTEGER NOT NULL,
			PRIMARY KEY (report_id, position),
			FOREIGN KEY (report_id) REFERENCES reports(id)
		)`,
	}

	for _, query := range queries {
		if _, err := db.db.Exec(query); err != nil {
			return fmt.Errorf("failed to execute %s: %w", query, err)
		}
	}
	return nil
}

// CreateReport creates a new report in the database
func (db *DB) CreateReport(report *DBReport) error {
	if report.Status == "" {
		report.Status = StatusPending
	}
	if report.UpdatedAt.IsZero() {
		report.UpdatedAt = report.CreatedAt
	}
	_, err := db.db.Exec(
		"INSERT INTO reports (id, title, subject, source, raw_text, status, error, obtained, possible, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		report.ID, report.Title, report.Subject, report.Source, report.RawText, string(report.Status), report.Error,
		report.Obtained, report.Possible, report.CreatedAt, report.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create report: %w", err)
	}
	return nil
}

const reportColumns = "id, title, subject, source, raw_text, status, error, obtained, possible, created_at, updated_at"

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanReport(row rowScanner) (*DBReport, error) {
	var report DBReport
	var subject, errText sql.NullString
	var status string
	err := row.Scan(&report.ID, &report.Title, &subject, &report.Source, &report.RawText, &status, &errText,
		&report.Obtained, &report.Possible, &report.CreatedAt, &report.UpdatedAt)
	if err != nil {
		return nil, err
	}
	report.Subject = subject.String
	report.Error = errText.String
	report.Status = ReportStatus(status)
	return &report, nil
}

// GetReport retrieves a report by ID
func (db *DB) GetReport(id string) (*DBReport, error) {
	report, err := scanReport(db.db.QueryRow("SELECT "+reportColumns+" FROM reports WHERE id = ?", id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%w: %s", ErrReportNotFound, id)
		}
		return nil, fmt.Errorf("failed to get report: %w", err)
	}
	return report, nil
}

// GetReports retrieves all reports, newest first, optionally limited by count
func (db *DB) GetReports(limit int) ([]DBReport, error) {
	query := "SELECT " + reportColumns + " FROM reports ORDER BY created_at DESC"
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := db.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to get reports: %w", err)
	}
	defer rows.Close()

	var reports []DBReport
	for rows.Next() {
		report, err := scanReport(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan report: %w", err)
		}
		reports = append(reports, *report)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating reports: %w", err)
	}

	return reports, nil
}

// UpdateReportStatus updates the status of a report and its error message
func (db *DB) UpdateReportStatus(id string, status ReportStatus, errText string) error {
	res, err := db.db.Exec("UPDATE reports SET status = ?, error = ?, updated_at = ? WHERE id = ?",
		string(status), errText, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update report status: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrReportNotFound, id)
	}
	return nil
}

// SaveReport stores the raw text and the parsed model of a report, replacing
// any previously stored questions, and marks it ready.
func (db *DB) SaveReport(id, raw string, report Report) error {
	tx, err := db.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(
		"UPDATE reports SET raw_text = ?, obtained = ?, possible = ?, status = ?, error = '', updated_at = ? WHERE id = ?",
		raw, report.Totals.Obtained, report.Totals.Possible, string(StatusReady), time.Now(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update report: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrReportNotFound, id)
	}

	if _, err := tx.Exec("DELETE FROM questions WHERE report_id = ?", id); err != nil {
		return fmt.Errorf("failed to clear questions: %w", err)
	}

	for i, q := range report.Questions {
		dbq, err := toDBQuestion(id, i, q)
		if err != nil {
			return err
		}
		_, err = tx.Exec(
			"INSERT INTO questions (report_id, position, number, declared, prompt, answer_text, parts, multi_part, obtained, possible, feedback, attempted) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
			dbq.ReportID, dbq.Position, dbq.Number, dbq.Declared, dbq.Prompt, dbq.AnswerText, dbq.Parts, dbq.MultiPart,
			dbq.Obtained, dbq.Possible, dbq.Feedback, dbq.Attempted,
		)
		if err != nil {
			return fmt.Errorf("failed to store question %d: %w", q.Number, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit report: %w", err)
	}
	return nil
}

// GetQuestions retrieves the stored questions of a report in source order
func (db *DB) GetQuestions(reportID string) ([]DBQuestion, error) {
	rows, err := db.db.Query(
		"SELECT report_id, position, number, declared, prompt, answer_text, parts, multi_part, obtained, possible, feedback, attempted FROM questions WHERE report_id = ? ORDER BY position",
		reportID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get questions: %w", err)
	}
	defer rows.Close()

	var questions []DBQuestion
	for rows.Next() {
		var q DBQuestion
		err := rows.Scan(&q.ReportID, &q.Position, &q.Number, &q.Declared, &q.Prompt, &q.AnswerText, &q.Parts, &q.MultiPart,
			&q.Obtained, &q.Possible, &q.Feedback, &q.Attempted)
		if err != nil {
			return nil, fmt.Errorf("failed to scan question: %w", err)
		}
		questions = append(questions, q)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating questions: %w", err)
	}

	return questions, nil
}

// LoadReport rebuilds the parsed model of a stored report
func (db *DB) LoadReport(id string) (Report, error) {
	stored, err := db.GetReport(id)
	if err != nil {
		return Report{}, err
	}

	dbQuestions, err := db.GetQuestions(id)
	if err != nil {
		return Report{}, err
	}

	questions := make([]Question, 0, len(dbQuestions))
	for _, dbq := range dbQuestions {
		q, err := fromDBQuestion(dbq)
		if err != nil {
			return Report{}, err
		}
		questions = append(questions, q)
	}

	return Report{
		Questions: questions,
		Totals:    Totals{Obtained: stored.Obtained, Possible: stored.Possible},
	}, nil
}

func toDBQuestion(reportID string, position int, q Question) (DBQuestion, error) {
	parts, err := PartsToJSON(q.Parts)
	if err != nil {
		return DBQuestion{}, err
	}
	dbq := DBQuestion{
		ReportID:   reportID,
		Position:   position,
		Number:     q.Number,
		Declared:   sql.NullFloat64{Float64: q.DeclaredPoints.Value, Valid: q.DeclaredPoints.Valid},
		Prompt:     q.Prompt,
		AnswerText: q.AnswerText,
		Parts:      parts,
		MultiPart:  q.MultiPart,
		Obtained:   q.ObtainedPoints,
		Possible:   q.PossiblePoints,
		Attempted:  q.Attempted,
	}
	if q.Feedback != nil {
		dbq.Feedback = sql.NullString{String: *q.Feedback, Valid: true}
	}
	return dbq, nil
}

func fromDBQuestion(dbq DBQuestion) (Question, error) {
	parts, err := JSONToParts(dbq.Parts)
	if err != nil {
		return Question{}, err
	}
	q := Question{
		Number:         dbq.Number,
		Prompt:         dbq.Prompt,
		AnswerText:     dbq.AnswerText,
		Parts:          parts,
		MultiPart:      dbq.MultiPart,
		ObtainedPoints: dbq.Obtained,
		PossiblePoints: dbq.Possible,
		Attempted:      dbq.Attempted,
	}
	if dbq.Declared.Valid {
		q.DeclaredPoints = MarksOf(dbq.Declared.Float64)
	}
	if dbq.Feedback.Valid {
		feedback := dbq.Feedback.String
		q.Feedback = &feedback
	}
	return q, nil
}

// PartsToJSON converts parts to a JSON string
func PartsToJSON(parts []Part) (string, error) {
	data, err := json.Marshal(parts)
	if err != nil {
		return "", fmt.Errorf("failed to marshal parts: %w", err)
	}
	return string(data), nil
}

// JSONToParts converts a JSON string to parts
func JSONToParts(partsJSON string) ([]Part, error) {
	var parts []Part
	if err := json.Unmarshal([]byte(partsJSON), &parts); err != nil {
		return nil, fmt.Errorf("failed to unmarshal parts: %w", err)
	}
	return parts, nil
}

// EvaluateReport runs an evaluation for a stored report and saves the parsed
// result. It is meant to run in the background: progress is recorded in the
// report's status rather than returned.
func (db *DB) EvaluateReport(ctx context.Context, evaluator Evaluator, req EvaluationRequest, logDir string) {
	reportID := req.ReportID

	logger, err := NewLLMLogger(logDir, req)
	if err != nil {
		log.Printf("Failed to create logger for report %s: %v", reportID, err)
	} else {
		defer logger.Close()
		if tw, ok := evaluator.(transcriptWriter); ok {
			tw.SetLogger(logger)
		}
	}

	if err := db.UpdateReportStatus(reportID, StatusEvaluating, ""); err != nil {
		log.Printf("Failed to update report status %s: %v", reportID, err)
		return
	}

	raw, err := evaluator.Evaluate(ctx, req)
	if err != nil {
		log.Printf("Failed to evaluate report %s: %v", reportID, err)
		if err := db.UpdateReportStatus(reportID, StatusFailed, err.Error()); err != nil {
			log.Printf("Failed to update report status %s: %v", reportID, err)
		}
		return
	}

	report := Derive(raw)
	if logger != nil {
		logger.LogReportResult(report, CheckReport(report))
	}

	if err := db.SaveReport(reportID, raw, report); err != nil {
		log.Printf("Failed to store report %s: %v", reportID, err)
		if err := db.UpdateReportStatus(reportID, StatusFailed, err.Error()); err != nil {
			log.Printf("Failed to update report status %s: %v", reportID, err)
		}
		return
	}

	log.Printf("Report %s ready: %d questions, %s/%s", reportID, len(report.Questions),
		FormatPoints(report.Totals.Obtained), FormatPoints(report.Totals.Possible))
}
