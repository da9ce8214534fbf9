package reportcard

import (
	"context"
	"fmt"
	"log"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// Evaluator grades a student's answers and returns the free-form evaluator
// report that Parse understands.
type Evaluator interface {
	Evaluate(ctx context.Context, req EvaluationRequest) (string, error)
}

// transcriptWriter is implemented by evaluators that can record a transcript
type transcriptWriter interface {
	SetLogger(logger *LLMLogger)
}

// LLMEvaluator asks an OpenAI-compatible chat model to grade the answers
type LLMEvaluator struct {
	client *openai.Client
	model  string
	logger *LLMLogger
}

// EvaluatorOption configures an LLMEvaluator
type EvaluatorOption func(*evaluatorConfig)

type evaluatorConfig struct {
	model   string
	baseURL string
}

// WithModel selects the chat model (default GPT-4o)
func WithModel(model string) EvaluatorOption {
	return func(c *evaluatorConfig) {
		if model != "" {
			c.model = model
		}
	}
}

// WithBaseURL points the client at another OpenAI-compatible endpoint
func WithBaseURL(baseURL string) EvaluatorOption {
	return func(c *evaluatorConfig) {
		c.baseURL = baseURL
	}
}

// NewLLMEvaluator creates a new evaluator with an OpenAI client
func NewLLMEvaluator(apiKey string, opts ...EvaluatorOption) *LLMEvaluator {
	cfg := evaluatorConfig{model: openai.GPT4o}
	for _, opt := range opts {
		opt(&cfg)
	}

	clientConfig := openai.DefaultConfig(apiKey)
	if cfg.baseURL != "" {
		clientConfig.BaseURL = cfg.baseURL
	}

	return &LLMEvaluator{
		client: openai.NewClientWithConfig(clientConfig),
		model:  cfg.model,
	}
}

// SetLogger sets the transcript logger used for subsequent evaluations
func (le *LLMEvaluator) SetLogger(logger *LLMLogger) {
	le.logger = logger
}

// Evaluate sends the documents to the model and returns its report text
func (le *LLMEvaluator) Evaluate(ctx context.Context, req EvaluationRequest) (string, error) {
	if strings.TrimSpace(req.AnswerSheet) == "" {
		return "", fmt.Errorf("answer sheet is required")
	}
	log.Printf("Evaluating report %s with %s", req.ReportID, le.model)

	prompt := BuildEvaluationPrompt(req)
	if le.logger != nil {
		le.logger.LogLLMRequest("LLMEvaluator", prompt)
	}

	resp, err := le.client.CreateChatCompletion(
		ctx,
		openai.ChatCompletionRequest{
			Model: le.model,
			Messages: []openai.ChatCompletionMessage{
				{
					Role:    openai.ChatMessageRoleSystem,
					Content: "You are an intelligent exam evaluation assistant. Grade student answers strictly in the requested response format.",
				},
				{
					Role:    openai.ChatMessageRoleUser,
					Content: prompt,
				},
			},
		},
	)
	if err != nil {
		return "", fmt.Errorf("failed to evaluate answers: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response from %s", le.model)
	}

	text := resp.Choices[0].Message.Content
	if le.logger != nil {
		le.logger.LogLLMResponse("LLMEvaluator", text)
	}
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("empty evaluation from %s", le.model)
	}

	VerboseLog("Report %s: received %d characters of evaluation", req.ReportID, len(text))
	return text, nil
}

// BuildEvaluationPrompt renders the grading instructions and the response
// format the report parser expects.
func BuildEvaluationPrompt(req EvaluationRequest) string {
	var sb strings.Builder

	sb.WriteString("Evaluate the student answers in the answer document against the questions and their allocated marks.\n\n")

	if req.Subject != "" {
		sb.WriteString(fmt.Sprintf("Subject: %s\n\n", req.Subject))
	}

	sb.WriteString("Question Paper:\n")
	sb.WriteString(orNA(req.QuestionPaper))
	sb.WriteString("\n\n")

	sb.WriteString("Student's Answers:\n")
	sb.WriteString(orNA(req.AnswerSheet))
	sb.WriteString("\n\n")

	sb.WriteString("--- INSTRUCTIONS ---\n")
	sb.WriteString("1. Extract each question, the marks allocated to it, and the student's answer.\n")
	sb.WriteString("   For multi-part questions extract every sub-question with its allocated marks and answer.\n")
	sb.WriteString("2. Compare the student's answer against the ideal answer for correctness, completeness and clarity.\n")
	sb.WriteString("3. For single-part questions give a score out of the allocated marks and suggestions for improvement.\n")
	sb.WriteString("4. For multi-part questions divide the marks among the sub-questions and score each one.\n")
	sb.WriteString("   Unattempted sub-questions score 0.\n")
	sb.WriteString("5. At the end give the overall score out of the question's marks and summary feedback.\n\n")

	sb.WriteString("--- RESPONSE FORMAT ---\n")
	sb.WriteString("Question {number} (Marks: {allocated_marks})::\n")
	sb.WriteString("[Extracted question]\n\n")
	sb.WriteString("Student Answer:\n")
	sb.WriteString("[Extracted student answer]\n\n")
	sb.WriteString("Evaluation:\n")
	sb.WriteString("Score: [score]/{allocated_marks}\n\n")
	sb.WriteString("For multi-part questions, inside Evaluation:\n")
	sb.WriteString("- {sub-question title} (Allocated: {marks} marks):\n")
	sb.WriteString("Student Answer: ...\n")
	sb.WriteString("Evaluation: ...\n")
	sb.WriteString("Score: [score]/{marks}\n\n")
	sb.WriteString("Overall Score: [total score]/{allocated_marks}\n")
	sb.WriteString("Suggestion: [General feedback or 'None']\n")

	return sb.String()
}

func orNA(s string) string {
	if strings.TrimSpace(s) == "" {
		return "N/A"
	}
	return s
}
