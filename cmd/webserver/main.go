package main

import (
	"context"
	"embed"
	"encoding/gob"
	"encoding/json"
	"errors"
	"flag"
	"html/template"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"reportcard"
	"reportcard/internal/util"

	"github.com/gorilla/sessions"
	"github.com/peterbourgon/ff/v3"
)

//go:embed templates/*.html
var templateFS embed.FS

const (
	sessionName = "reportcard-session"
	maxRecent   = 5
)

// recentReports holds the ids of the reports a visitor looked at, newest first
type recentReports []string

func init() {
	gob.Register(recentReports{})
}

type Config struct {
	APIKey    string
	Model     string
	RemoteURL string
	LogDir    string
	Timeout   time.Duration
}

type Server struct {
	db        *reportcard.DB
	store     *sessions.CookieStore
	templates map[string]*template.Template
	cache     *reportcard.ReportCache
	cfg       Config
}

func main() {
	fs := flag.NewFlagSet("webserver", flag.ExitOnError)
	var (
		_          = fs.String("config", "", "config file (optional), json format")
		port       = fs.String("port", "", "Port to listen on (default: $PORT or 8180)")
		dbPath     = fs.String("db", "./reports.db", "Database path")
		sessionKey = fs.String("session-key", "", "Secret used to sign session cookies")
		apiKey     = fs.String("api-key", "", "OpenAI API key (or set OPENAI_API_KEY env var)")
		model      = fs.String("model", "", "Chat model used for evaluation")
		remoteURL  = fs.String("remote", "", "Base URL of a remote evaluation service (optional)")
		logDir     = fs.String("log-dir", reportcard.DefaultLogDir, "Directory for evaluation transcripts")
		timeout    = fs.Duration("timeout", 10*time.Minute, "Timeout for a background evaluation")
		verbose    = fs.Bool("verbose", true, "Enable verbose output")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithConfigFileFlag("config"),
		ff.WithConfigFileParser(ff.JSONParser),
		ff.WithEnvVarPrefix("REPORTCARD_WEB"),
	); err != nil {
		log.Fatalf("Failed to parse configuration: %v", err)
	}

	reportcard.SetVerbose(*verbose)

	if *apiKey == "" {
		*apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if *apiKey == "" {
		log.Printf("OPENAI_API_KEY not set, LLM evaluation is disabled")
	}
	if *sessionKey == "" {
		*sessionKey = util.GenerateID()
		log.Printf("No session key configured, sessions will not survive a restart")
	}

	// Initialize database
	db, err := reportcard.OpenDB(*dbPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.CloseDB()

	if err := db.CreateTables(); err != nil {
		log.Fatalf("Failed to create tables: %v", err)
	}

	server, err := NewServer(db, sessions.NewCookieStore([]byte(*sessionKey)), Config{
		APIKey:    *apiKey,
		Model:     *model,
		RemoteURL: *remoteURL,
		LogDir:    *logDir,
		Timeout:   *timeout,
	})
	if err != nil {
		log.Fatalf("Failed to load templates: %v", err)
	}

	if *port == "" {
		*port = os.Getenv("PORT")
		if *port == "" {
			*port = "8180"
		}
	}

	log.Printf("Starting server on port %s", *port)
	log.Fatal(http.ListenAndServe(":"+*port, server.Routes()))
}

// NewServer loads the page templates and wires the report store
func NewServer(db *reportcard.DB, store *sessions.CookieStore, cfg Config) (*Server, error) {
	funcMap := template.FuncMap{
		"points": reportcard.FormatPoints,
		"status": reportcard.StatusLabel,
		"deref": func(s *string) string {
			if s == nil {
				return ""
			}
			return *s
		},
	}

	templates := make(map[string]*template.Template)
	templateFiles := []struct {
		name string
		file string
	}{
		{"home", "templates/home.html"},
		{"new_report", "templates/new_report.html"},
		{"report", "templates/report.html"},
	}

	for _, tmpl := range templateFiles {
		t, err := template.New(tmpl.name).Funcs(funcMap).ParseFS(templateFS, "templates/base.html", tmpl.file)
		if err != nil {
			return nil, err
		}
		templates[tmpl.name] = t
	}

	return &Server{
		db:        db,
		store:     store,
		templates: templates,
		cache:     reportcard.NewReportCache(),
		cfg:       cfg,
	}, nil
}

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleHome)
	mux.HandleFunc("/report/new", s.handleNewReport)
	mux.HandleFunc("/report/", s.handleReport)
	return mux
}

func (s *Server) render(w http.ResponseWriter, name string, data map[string]interface{}) {
	if err := s.templates[name].ExecuteTemplate(w, "base.html", data); err != nil {
		log.Printf("Template error in %s: %v", name, err)
		http.Error(w, "Template error", http.StatusInternalServerError)
	}
}

// session returns the visitor's session and consumes its queued flash
// messages. Callers save the session before writing the body.
func (s *Server) session(r *http.Request) (*sessions.Session, []string) {
	session, err := s.store.Get(r, sessionName)
	if err != nil {
		reportcard.VerboseLog("Discarding invalid session: %v", err)
	}

	var flashes []string
	for _, f := range session.Flashes() {
		if msg, ok := f.(string); ok {
			flashes = append(flashes, msg)
		}
	}
	return session, flashes
}

func (s *Server) saveSession(w http.ResponseWriter, r *http.Request, session *sessions.Session) {
	if err := session.Save(r, w); err != nil {
		log.Printf("Session save error: %v", err)
	}
}

func (s *Server) flash(w http.ResponseWriter, r *http.Request, msg string) {
	session, _ := s.store.Get(r, sessionName)
	session.AddFlash(msg)
	s.saveSession(w, r, session)
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	reports, err := s.db.GetReports(0)
	if err != nil {
		log.Printf("Failed to get reports: %v", err)
		http.Error(w, "Failed to get reports", http.StatusInternalServerError)
		return
	}

	session, flashes := s.session(r)
	recent, _ := session.Values["recent"].(recentReports)
	s.saveSession(w, r, session)

	s.render(w, "home", map[string]interface{}{
		"Reports": reports,
		"Recent":  recent,
		"Flashes": flashes,
	})
}

func (s *Server) handleNewReport(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet {
		session, flashes := s.session(r)
		s.saveSession(w, r, session)
		s.render(w, "new_report", map[string]interface{}{
			"Flashes":   flashes,
			"CanLLM":    s.cfg.APIKey != "",
			"CanRemote": s.cfg.RemoteURL != "",
		})
		return
	}

	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := r.ParseForm(); err != nil {
		http.Error(w, "Failed to parse form", http.StatusBadRequest)
		return
	}

	mode := r.FormValue("mode")
	title := strings.TrimSpace(r.FormValue("title"))
	if title == "" {
		title = "Untitled report"
	}
	req := reportcard.EvaluationRequest{
		ReportID:      util.GenerateID(),
		Subject:       strings.TrimSpace(r.FormValue("subject")),
		QuestionPaper: r.FormValue("question_paper"),
		AnswerSheet:   r.FormValue("text"),
		DocumentURL:   strings.TrimSpace(r.FormValue("pdf_url")),
	}

	var evaluator reportcard.Evaluator
	source := "upload"
	switch mode {
	case "", "text":
		if strings.TrimSpace(req.AnswerSheet) == "" {
			s.flash(w, r, "Report text is required")
			http.Redirect(w, r, "/report/new", http.StatusSeeOther)
			return
		}
	case "evaluate":
		if s.cfg.APIKey == "" {
			http.Error(w, "LLM evaluation is not configured", http.StatusBadRequest)
			return
		}
		if strings.TrimSpace(req.AnswerSheet) == "" {
			s.flash(w, r, "Answer sheet is required")
			http.Redirect(w, r, "/report/new", http.StatusSeeOther)
			return
		}
		evaluator = s.newLLMEvaluator()
		source = "llm"
	case "remote":
		if s.cfg.RemoteURL == "" {
			http.Error(w, "Remote evaluation is not configured", http.StatusBadRequest)
			return
		}
		if req.DocumentURL == "" {
			s.flash(w, r, "Document URL is required")
			http.Redirect(w, r, "/report/new", http.StatusSeeOther)
			return
		}
		evaluator = reportcard.NewRemoteEvaluator(s.cfg.RemoteURL)
		source = "remote"
	default:
		http.Error(w, "Unknown mode", http.StatusBadRequest)
		return
	}

	stored := &reportcard.DBReport{
		ID:        req.ReportID,
		Title:     title,
		Subject:   req.Subject,
		Source:    source,
		CreatedAt: time.Now(),
	}
	if err := s.db.CreateReport(stored); err != nil {
		log.Printf("Failed to create report: %v", err)
		http.Error(w, "Failed to create report", http.StatusInternalServerError)
		return
	}

	if evaluator == nil {
		report, _ := s.cache.Derive(stored.ID, req.AnswerSheet)
		if err := s.db.SaveReport(stored.ID, req.AnswerSheet, report); err != nil {
			log.Printf("Failed to store report %s: %v", stored.ID, err)
			http.Error(w, "Failed to store report", http.StatusInternalServerError)
			return
		}
	} else {
		// Evaluate in background, the report page polls the status
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Timeout)
			defer cancel()
			s.db.EvaluateReport(ctx, evaluator, req, s.cfg.LogDir)
		}()
	}

	http.Redirect(w, r, "/report/"+stored.ID, http.StatusSeeOther)
}

func (s *Server) newLLMEvaluator() *reportcard.LLMEvaluator {
	var opts []reportcard.EvaluatorOption
	if s.cfg.Model != "" {
		opts = append(opts, reportcard.WithModel(s.cfg.Model))
	}
	return reportcard.NewLLMEvaluator(s.cfg.APIKey, opts...)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/report/")
	parts := strings.Split(path, "/")
	if parts[0] == "" {
		http.NotFound(w, r)
		return
	}

	reportID := parts[0]
	switch {
	case len(parts) == 1:
		s.handleReportPage(w, r, reportID)
	case len(parts) == 2 && parts[1] == "json":
		s.handleReportJSON(w, r, reportID)
	case len(parts) == 2 && parts[1] == "reparse":
		s.handleReparse(w, r, reportID)
	default:
		http.NotFound(w, r)
	}
}

// loadReport returns the stored row and, once it is ready, its parsed model
func (s *Server) loadReport(w http.ResponseWriter, r *http.Request, reportID string) (*reportcard.DBReport, *reportcard.Report, bool) {
	stored, err := s.db.GetReport(reportID)
	if errors.Is(err, reportcard.ErrReportNotFound) {
		http.NotFound(w, r)
		return nil, nil, false
	}
	if err != nil {
		log.Printf("Failed to get report %s: %v", reportID, err)
		http.Error(w, "Failed to get report", http.StatusInternalServerError)
		return nil, nil, false
	}
	if stored.Status != reportcard.StatusReady {
		return stored, nil, true
	}

	report, err := s.db.LoadReport(reportID)
	if err != nil {
		log.Printf("Failed to load report %s: %v", reportID, err)
		http.Error(w, "Failed to load report", http.StatusInternalServerError)
		return nil, nil, false
	}
	s.cache.Put(reportID, report)
	return stored, &report, true
}

func (s *Server) handleReportPage(w http.ResponseWriter, r *http.Request, reportID string) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	stored, report, ok := s.loadReport(w, r, reportID)
	if !ok {
		return
	}

	session, flashes := s.session(r)
	recent, _ := session.Values["recent"].(recentReports)
	session.Values["recent"] = rememberReport(recent, reportID)
	s.saveSession(w, r, session)

	data := map[string]interface{}{
		"Stored":  stored,
		"Flashes": flashes,
	}
	if report != nil {
		data["Report"] = report
		data["Issues"] = reportcard.CheckReport(*report)
	}
	s.render(w, "report", data)
}

func (s *Server) handleReportJSON(w http.ResponseWriter, r *http.Request, reportID string) {
	stored, report, ok := s.loadReport(w, r, reportID)
	if !ok {
		return
	}

	payload := struct {
		ID     string                  `json:"id"`
		Title  string                  `json:"title"`
		Status reportcard.ReportStatus `json:"status"`
		Error  string                  `json:"error,omitempty"`
		Report *reportcard.Report      `json:"report,omitempty"`
		Issues []reportcard.Issue      `json:"issues,omitempty"`
	}{
		ID:     stored.ID,
		Title:  stored.Title,
		Status: stored.Status,
		Error:  stored.Error,
		Report: report,
	}
	if report != nil {
		payload.Issues = reportcard.CheckReport(*report)
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("Failed to encode report %s: %v", reportID, err)
	}
}

// handleReparse derives the report again from its stored text and only
// writes it back when the result differs from what is stored.
func (s *Server) handleReparse(w http.ResponseWriter, r *http.Request, reportID string) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	stored, _, ok := s.loadReport(w, r, reportID)
	if !ok {
		return
	}
	if stored.Status != reportcard.StatusReady {
		s.flash(w, r, "Report is not ready yet")
		http.Redirect(w, r, "/report/"+reportID, http.StatusSeeOther)
		return
	}

	report, changed := s.cache.Derive(reportID, stored.RawText)
	if !changed {
		s.flash(w, r, "Report is up to date")
		http.Redirect(w, r, "/report/"+reportID, http.StatusSeeOther)
		return
	}

	if err := s.db.SaveReport(reportID, stored.RawText, report); err != nil {
		log.Printf("Failed to store report %s: %v", reportID, err)
		http.Error(w, "Failed to store report", http.StatusInternalServerError)
		return
	}
	s.flash(w, r, "Report re-parsed")
	http.Redirect(w, r, "/report/"+reportID, http.StatusSeeOther)
}

func rememberReport(recent recentReports, id string) recentReports {
	out := recentReports{id}
	for _, other := range recent {
		if other != id && len(out) < maxRecent {
			out = append(out, other)
		}
	}
	return out
}
