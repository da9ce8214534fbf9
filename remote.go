package reportcard

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/pkg/errors"
	"github.com/tidwall/gjson"

	"reportcard/internal/util"
)

// EvaluatePath is the endpoint of the remote evaluation service
const EvaluatePath = "/evaluation/evaluate-exam"

// RemoteEvaluator delegates grading to a remote evaluation service that
// accepts a document URL and answers with an envelope of the form
// {"status": "success", "data": {"text_response": "..."}}.
type RemoteEvaluator struct {
	baseURL string
	headers map[string]string
}

// NewRemoteEvaluator creates a client for the service at baseURL
func NewRemoteEvaluator(baseURL string) *RemoteEvaluator {
	return &RemoteEvaluator{
		baseURL: strings.TrimRight(baseURL, "/"),
		headers: map[string]string{
			"Content-Type": "application/json",
			"Accept":       "application/json",
		},
	}
}

// SetHeader adds a header sent with every request, e.g. Authorization
func (re *RemoteEvaluator) SetHeader(key, value string) {
	re.headers[key] = value
}

// Evaluate posts the document URL and returns the service's report text
func (re *RemoteEvaluator) Evaluate(ctx context.Context, req EvaluationRequest) (string, error) {
	if req.DocumentURL == "" {
		return "", errors.New("document url is required")
	}

	payload, err := json.Marshal(map[string]string{"pdf_url": req.DocumentURL})
	if err != nil {
		return "", errors.Wrap(err, "cannot encode evaluation request")
	}

	VerboseLog("Report %s: requesting remote evaluation of %s", req.ReportID, req.DocumentURL)
	res, err := util.Fetch(ctx, http.MethodPost, re.baseURL+EvaluatePath, re.headers, bytes.NewReader(payload))
	if err != nil {
		var statusErr *util.StatusError
		if errors.As(err, &statusErr) {
			return "", errors.Errorf("remote evaluation failed (%d): %s", statusErr.Code, remoteErrorMessage(statusErr.Body))
		}
		return "", errors.Wrap(err, "remote evaluation failed")
	}

	text := gjson.GetBytes(res, "data.text_response")
	if !text.Exists() {
		return "", errors.New("remote evaluation returned no text_response")
	}
	return text.String(), nil
}

// remoteErrorMessage digs the most useful message out of an error payload
func remoteErrorMessage(body []byte) string {
	for _, path := range []string{"detail.error", "detail.message", "error.message", "message", "detail"} {
		if v := gjson.GetBytes(body, path); v.Exists() && v.Type == gjson.String && v.String() != "" {
			return v.String()
		}
	}
	if s := strings.TrimSpace(string(body)); s != "" {
		return s
	}
	return "no details"
}
