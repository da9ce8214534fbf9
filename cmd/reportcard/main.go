package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"reportcard"
	"reportcard/internal/util"

	"github.com/fatih/color"
	"github.com/peterbourgon/ff/v3"
)

func main() {
	fs := flag.NewFlagSet("reportcard", flag.ExitOnError)
	var (
		_             = fs.String("config", "", "config file (optional), json format")
		jsonOut       = fs.Bool("json", false, "Print the report as JSON instead of a table")
		check         = fs.Bool("check", false, "List consistency issues found in the report")
		outputFile    = fs.String("output", "", "Output file (default: stdout)")
		answersFile   = fs.String("answers", "", "Student answer sheet to evaluate with the LLM")
		questionsFile = fs.String("questions", "", "Question paper to send along with -answers (optional)")
		subject       = fs.String("subject", "", "Subject of the exam (optional)")
		apiKey        = fs.String("api-key", "", "OpenAI API key (or set OPENAI_API_KEY env var)")
		model         = fs.String("model", "", "Chat model used for evaluation")
		baseURL       = fs.String("base-url", "", "Base URL of an OpenAI compatible API")
		remoteURL     = fs.String("remote", "", "Base URL of a remote evaluation service")
		pdfURL        = fs.String("pdf-url", "", "Document URL for the remote evaluation service")
		logDir        = fs.String("log-dir", reportcard.DefaultLogDir, "Directory for evaluation transcripts")
		timeout       = fs.Duration("timeout", 10*time.Minute, "Evaluation timeout")
		noColor       = fs.Bool("no-color", false, "Disable colored output")
		verbose       = fs.Bool("verbose", false, "Enable verbose debugging output")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithConfigFileFlag("config"),
		ff.WithConfigFileParser(ff.JSONParser),
		ff.WithEnvVarPrefix("REPORTCARD"),
	); err != nil {
		log.Fatalf("Failed to parse configuration: %v", err)
	}

	reportcard.SetVerbose(*verbose)
	if *noColor {
		color.NoColor = true
	}

	var raw string
	switch {
	case *answersFile != "":
		req := reportcard.EvaluationRequest{
			ReportID:    util.GenerateID(),
			Subject:     *subject,
			AnswerSheet: mustRead(*answersFile),
		}
		if *questionsFile != "" {
			req.QuestionPaper = mustRead(*questionsFile)
		}
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
		if *baseURL != "" {
			opts = append(opts, reportcard.WithBaseURL(*baseURL))
		}
		evaluator := reportcard.NewLLMEvaluator(*apiKey, opts...)

		logger, err := reportcard.NewLLMLogger(*logDir, req)
		if err != nil {
			log.Printf("Failed to create transcript log: %v", err)
		} else {
			defer logger.Close()
			evaluator.SetLogger(logger)
		}
		raw = evaluate(evaluator, req, *timeout)

	case *remoteURL != "":
		if *pdfURL == "" {
			log.Fatal("Document URL is required for remote evaluation. Use -pdf-url flag.")
		}
		req := reportcard.EvaluationRequest{
			ReportID:    util.GenerateID(),
			Subject:     *subject,
			DocumentURL: *pdfURL,
		}
		raw = evaluate(reportcard.NewRemoteEvaluator(*remoteURL), req, *timeout)

	default:
		raw = readInput(fs.Args())
	}

	report := reportcard.Derive(raw)
	reportcard.VerboseLog("Parsed %d questions", len(report.Questions))

	out := io.Writer(os.Stdout)
	if *outputFile != "" {
		f, err := os.Create(*outputFile)
		if err != nil {
			log.Fatalf("Failed to create output file: %v", err)
		}
		defer f.Close()
		out = f
	}

	if *jsonOut {
		var payload interface{} = report
		if *check {
			payload = struct {
				reportcard.Report
				Issues []reportcard.Issue `json:"issues"`
			}{report, reportcard.CheckReport(report)}
		}
		output, err := json.MarshalIndent(payload, "", "  ")
		if err != nil {
			log.Fatalf("Failed to marshal report: %v", err)
		}
		fmt.Fprintln(out, string(output))
	} else {
		if err := reportcard.WriteText(out, report); err != nil {
			log.Fatalf("Failed to write report: %v", err)
		}
		if *check {
			writeIssues(out, reportcard.CheckReport(report))
		}
	}

	if *outputFile != "" {
		log.Printf("Report saved to: %s", *outputFile)
	}
}

func evaluate(evaluator reportcard.Evaluator, req reportcard.EvaluationRequest, timeout time.Duration) string {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	start := time.Now()
	raw, err := evaluator.Evaluate(ctx, req)
	if err != nil {
		log.Fatalf("Failed to evaluate answers: %v", err)
	}
	reportcard.VerboseLog("%s", util.TimeTrack(start, "evaluation "+req.ReportID))
	return raw
}

// readInput returns the report text from the first argument, or stdin when
// there is none or it is "-".
func readInput(args []string) string {
	if len(args) == 0 || args[0] == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			log.Fatalf("Failed to read stdin: %v", err)
		}
		return string(data)
	}
	return mustRead(args[0])
}

func mustRead(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		log.Fatalf("Failed to read %s: %v", path, err)
	}
	return string(data)
}

func writeIssues(w io.Writer, issues []reportcard.Issue) {
	fmt.Fprintln(w)
	if len(issues) == 0 {
		fmt.Fprintln(w, color.GreenString("No issues found"))
		return
	}
	fmt.Fprintf(w, "%d issues:\n", len(issues))
	for _, issue := range issues {
		label := color.YellowString(string(issue.Severity))
		if issue.Severity == reportcard.SeverityInfo {
			label = color.CyanString(string(issue.Severity))
		}
		where := fmt.Sprintf("Q%d", issue.QuestionNumber)
		if issue.PartTitle != "" {
			where += " " + issue.PartTitle
		}
		fmt.Fprintf(w, "  [%s] %s %s: %s\n", label, where, issue.Kind, issue.Reason)
	}
}
