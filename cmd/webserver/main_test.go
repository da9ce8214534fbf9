package main

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"reportcard"

	"github.com/gorilla/sessions"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleReport = `Question 1 (Marks: 5) :: Define photosynthesis.
Student Answer: Plants make food from sunlight.
Evaluation:
Score: 4/5
Suggestion: Mention chlorophyll.

Question 2 (Marks: 3) :: Name a gas plants release.
Student Answer:
Evaluation:
Score: 0/3
`

type reportPayload struct {
	ID     string                  `json:"id"`
	Status reportcard.ReportStatus `json:"status"`
	Error  string                  `json:"error"`
	Report *reportcard.Report      `json:"report"`
	Issues []reportcard.Issue      `json:"issues"`
}

func newTestServer(t *testing.T, cfg Config) (*httptest.Server, *http.Client) {
	t.Helper()
	db, err := reportcard.OpenDB(filepath.Join(t.TempDir(), "reports.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.CloseDB() })
	require.NoError(t, db.CreateTables())

	if cfg.LogDir == "" {
		cfg.LogDir = t.TempDir()
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = time.Minute
	}
	server, err := NewServer(db, sessions.NewCookieStore([]byte("test-secret")), cfg)
	require.NoError(t, err)

	srv := httptest.NewServer(server.Routes())
	t.Cleanup(srv.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return srv, &http.Client{Jar: jar}
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(body)
}

func getJSON(t *testing.T, client *http.Client, u string) (int, reportPayload) {
	t.Helper()
	resp, err := client.Get(u)
	require.NoError(t, err)
	defer resp.Body.Close()

	var payload reportPayload
	if resp.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	}
	return resp.StatusCode, payload
}

func TestServer_UploadAndView(t *testing.T) {
	srv, client := newTestServer(t, Config{})

	resp, err := client.PostForm(srv.URL+"/report/new", url.Values{
		"mode":  {"text"},
		"title": {"Biology mock"},
		"text":  {sampleReport},
	})
	require.NoError(t, err)
	page := readBody(t, resp)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.True(t, strings.HasPrefix(resp.Request.URL.Path, "/report/"))
	reportID := strings.TrimPrefix(resp.Request.URL.Path, "/report/")

	assert.Contains(t, page, "Biology mock")
	assert.Contains(t, page, "Total: 4/8")
	assert.Contains(t, page, "Mention chlorophyll.")
	assert.Contains(t, page, "Not attempted")

	code, payload := getJSON(t, client, srv.URL+"/report/"+reportID+"/json")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, reportcard.StatusReady, payload.Status)
	require.NotNil(t, payload.Report)
	assert.Len(t, payload.Report.Questions, 2)
	assert.Equal(t, reportcard.Totals{Obtained: 4, Possible: 8}, payload.Report.Totals)
	assert.NotEmpty(t, payload.Issues)

	resp, err = client.Post(srv.URL+"/report/"+reportID+"/reparse", "application/x-www-form-urlencoded", nil)
	require.NoError(t, err)
	assert.Contains(t, readBody(t, resp), "Report is up to date")

	resp, err = client.Get(srv.URL + "/")
	require.NoError(t, err)
	home := readBody(t, resp)
	assert.Contains(t, home, "Biology mock")
	assert.Contains(t, home, "Recently viewed")
}

func TestServer_Validation(t *testing.T) {
	srv, client := newTestServer(t, Config{})

	resp, err := client.PostForm(srv.URL+"/report/new", url.Values{"mode": {"text"}, "text": {"  "}})
	require.NoError(t, err)
	assert.Contains(t, readBody(t, resp), "Report text is required")

	resp, err = client.PostForm(srv.URL+"/report/new", url.Values{"mode": {"evaluate"}, "text": {"x"}})
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	code, _ := getJSON(t, client, srv.URL+"/report/missing/json")
	assert.Equal(t, http.StatusNotFound, code)

	resp, err = client.Get(srv.URL + "/report/missing/unknown")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_RemoteEvaluation(t *testing.T) {
	remote := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != reportcard.EvaluatePath {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status": "success",
			"data":   map[string]interface{}{"text_response": sampleReport},
		})
	}))
	defer remote.Close()

	srv, client := newTestServer(t, Config{RemoteURL: remote.URL})

	// stop at the redirect so the report id is known before evaluation ends
	client.CheckRedirect = func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }
	resp, err := client.PostForm(srv.URL+"/report/new", url.Values{
		"mode":    {"remote"},
		"title":   {"Scanned exam"},
		"pdf_url": {"https://example.com/exam.pdf"},
	})
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	reportID := strings.TrimPrefix(resp.Header.Get("Location"), "/report/")
	require.NotEmpty(t, reportID)

	var payload reportPayload
	require.Eventually(t, func() bool {
		_, payload = getJSON(t, client, srv.URL+"/report/"+reportID+"/json")
		return payload.Status == reportcard.StatusReady
	}, 5*time.Second, 20*time.Millisecond)

	require.NotNil(t, payload.Report)
	assert.Equal(t, 4.0, payload.Report.Totals.Obtained)
}

func TestRememberReport(t *testing.T) {
	recent := recentReports{"a", "b", "c", "d", "e"}
	assert.Equal(t, recentReports{"c", "a", "b", "d", "e"}, rememberReport(recent, "c"))
	assert.Equal(t, recentReports{"f", "a", "b", "c", "d"}, rememberReport(recent, "f"))
	assert.Equal(t, recentReports{"a"}, rememberReport(nil, "a"))
}
