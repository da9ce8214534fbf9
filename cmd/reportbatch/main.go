package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"reportcard"
	"reportcard/internal/util"

	"github.com/peterbourgon/ff/v3"
)

func main() {
	fs := flag.NewFlagSet("reportbatch", flag.ExitOnError)
	var (
		_           = fs.String("config", "", "config file (optional), json format")
		dir         = fs.String("dir", ".", "Directory of *.txt reports or answer sheets")
		dbPath      = fs.String("db", "./reports.db", "Database path")
		evaluate    = fs.Bool("evaluate", false, "Treat files as answer sheets and evaluate them with the LLM")
		subject     = fs.String("subject", "", "Subject passed to the evaluator (optional)")
		apiKey      = fs.String("api-key", "", "OpenAI API key (or set OPENAI_API_KEY env var)")
		model       = fs.String("model", "", "Chat model used for evaluation")
		maxAttempts = fs.Int("attempts", reportcard.DefaultMaxAttempts, "Attempts per submission before giving up")
		logDir      = fs.String("log-dir", reportcard.DefaultLogDir, "Directory for evaluation transcripts")
		timeout     = fs.Duration("timeout", 30*time.Minute, "Timeout for the whole batch")
		list        = fs.Bool("list", false, "List stored reports and exit")
		limit       = fs.Int("limit", 0, "Maximum number of reports to list (0 = all)")
		verbose     = fs.Bool("verbose", false, "Enable verbose output")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithConfigFileFlag("config"),
		ff.WithConfigFileParser(ff.JSONParser),
		ff.WithEnvVarPrefix("REPORTCARD_BATCH"),
	); err != nil {
		log.Fatalf("Failed to parse configuration: %v", err)
	}

	reportcard.SetVerbose(*verbose)

	// Initialize database
	db, err := reportcard.OpenDB(*dbPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.CloseDB()

	if err := db.CreateTables(); err != nil {
		log.Fatalf("Failed to create tables: %v", err)
	}

	if *list {
		listReports(db, *limit)
		return
	}

	files, err := filepath.Glob(filepath.Join(*dir, "*.txt"))
	if err != nil {
		log.Fatalf("Failed to list %s: %v", *dir, err)
	}
	sort.Strings(files)
	if len(files) == 0 {
		fmt.Printf("No *.txt files found in %s\n", *dir)
		return
	}

	var evaluator reportcard.Evaluator = reportcard.StaticEvaluator{}
	source := "import"
	if *evaluate {
		if *apiKey == "" {
			*apiKey = os.Getenv("OPENAI_API_KEY")
			if *apiKey == "" {
				log.Fatal("OpenAI API key is required. Use -api-key flag or set OPENAI_API_KEY environment variable.")
			}
		}
		var opts []reportcard.EvaluatorOption
		if *model != "" {
			opts = append(opts, reportcard.WithModel(*model))
		}
		evaluator = reportcard.NewLLMEvaluator(*apiKey, opts...)
		source = "llm"
	}

	fmt.Printf("📚 Found %d files in %s\n", len(files), *dir)

	subs := make([]reportcard.Submission, 0, len(files))
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			log.Printf("Skipping %s: %v", file, err)
			continue
		}
		title := strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))
		id := util.GenerateID()

		if err := db.CreateReport(&reportcard.DBReport{
			ID:        id,
			Title:     title,
			Subject:   *subject,
			Source:    source,
			CreatedAt: time.Now(),
		}); err != nil {
			log.Fatalf("Failed to create report for '%s': %v", title, err)
		}

		subs = append(subs, reportcard.Submission{
			ID:    id,
			Title: title,
			Request: reportcard.EvaluationRequest{
				ReportID:    id,
				Subject:     *subject,
				AnswerSheet: string(data),
			},
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	start := time.Now()
	batch := reportcard.NewBatchEvaluator(evaluator)
	batch.MaxAttempts = *maxAttempts
	batch.LogDir = *logDir
	results := batch.EvaluateAll(ctx, subs)

	stored := 0
	for _, res := range results {
		id := res.Submission.ID
		if res.Err != nil {
			fmt.Printf("❌ %s: %v\n", res.Submission.Title, res.Err)
			if err := db.UpdateReportStatus(id, reportcard.StatusFailed, res.Err.Error()); err != nil {
				log.Printf("Failed to update report status %s: %v", id, err)
			}
			continue
		}
		if err := db.SaveReport(id, res.RawText, res.Report); err != nil {
			fmt.Printf("❌ %s: %v\n", res.Submission.Title, err)
			continue
		}
		stored++
		fmt.Printf("✅ %s: %s/%s (%d questions, %d issues)\n", res.Submission.Title,
			reportcard.FormatPoints(res.Report.Totals.Obtained),
			reportcard.FormatPoints(res.Report.Totals.Possible),
			len(res.Report.Questions), len(res.Issues))
		if reportcard.IsVerbose() {
			for _, issue := range res.Issues {
				fmt.Printf("   Q%d %s: %s\n", issue.QuestionNumber, issue.Kind, issue.Reason)
			}
		}
	}

	fmt.Printf("🎉 Stored %d of %d reports. %s\n", stored, len(results), util.TimeTrack(start, "Batch"))
}

func listReports(db *reportcard.DB, limit int) {
	reports, err := db.GetReports(limit)
	if err != nil {
		log.Fatalf("Failed to get reports: %v", err)
	}
	if len(reports) == 0 {
		fmt.Println("No reports stored yet")
		return
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTitle\tStatus\tScore\tCreated")
	for _, r := range reports {
		score := "-"
		if r.Status == reportcard.StatusReady {
			score = reportcard.FormatPoints(r.Obtained) + "/" + reportcard.FormatPoints(r.Possible)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.ID, r.Title, r.Status, score, r.CreatedAt.Format(time.RFC3339))
	}
	tw.Flush()
}
