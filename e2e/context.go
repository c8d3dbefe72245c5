// Package e2e drives a running kycgate server through its public HTTP API.
// Scenarios live in features/ and run with `go test ./...` from this module
// when E2E_BASE_URL is set.
package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// TestContext carries per-scenario state: credentials, saved ids and the last
// response.
type TestContext struct {
	BaseURL        string
	ServiceToken   string
	ReviewerToken  string
	HTTPClient     *http.Client
	bearer         string
	saved          map[string]string
	LastStatusCode int
	LastBody       []byte
}

// NewTestContext reads E2E_BASE_URL, E2E_SERVICE_TOKEN and E2E_REVIEWER_TOKEN.
func NewTestContext() *TestContext {
	return &TestContext{
		BaseURL:       strings.TrimRight(getenv("E2E_BASE_URL", "http://localhost:8080"), "/"),
		ServiceToken:  os.Getenv("E2E_SERVICE_TOKEN"),
		ReviewerToken: os.Getenv("E2E_REVIEWER_TOKEN"),
		HTTPClient:    &http.Client{Timeout: 30 * time.Second},
		saved:         map[string]string{},
	}
}

// Reset clears scenario state between scenarios.
func (tc *TestContext) Reset() {
	tc.bearer = ""
	tc.saved = map[string]string{}
	tc.LastStatusCode = 0
	tc.LastBody = nil
}

func (tc *TestContext) UseServiceToken()  { tc.bearer = tc.ServiceToken }
func (tc *TestContext) UseReviewerToken() { tc.bearer = tc.ReviewerToken }
func (tc *TestContext) ClearToken()       { tc.bearer = "" }

func (tc *TestContext) Save(key, value string) { tc.saved[key] = value }

func (tc *TestContext) Saved(key string) (string, error) {
	v, ok := tc.saved[key]
	if !ok {
		return "", fmt.Errorf("nothing saved under %q", key)
	}
	return v, nil
}

func (tc *TestContext) POST(path string, body interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	return tc.do(http.MethodPost, path, "application/json", bytes.NewReader(payload))
}

func (tc *TestContext) PUT(path, contentType string, body []byte) error {
	return tc.do(http.MethodPut, path, contentType, bytes.NewReader(body))
}

func (tc *TestContext) GET(path string) error {
	return tc.do(http.MethodGet, path, "", nil)
}

func (tc *TestContext) do(method, path, contentType string, body io.Reader) error {
	req, err := http.NewRequest(method, tc.BaseURL+path, body)
	if err != nil {
		return err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if tc.bearer != "" {
		req.Header.Set("Authorization", "Bearer "+tc.bearer)
	}
	resp, err := tc.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	tc.LastStatusCode = resp.StatusCode
	tc.LastBody, err = io.ReadAll(resp.Body)
	return err
}

func (tc *TestContext) StatusCode() int { return tc.LastStatusCode }

// GetResponseField returns a top-level field of the last JSON response.
func (tc *TestContext) GetResponseField(field string) (interface{}, error) {
	var data map[string]interface{}
	if err := json.Unmarshal(tc.LastBody, &data); err != nil {
		return nil, fmt.Errorf("response is not a JSON object: %w (body: %s)", err, tc.LastBody)
	}
	v, ok := data[field]
	if !ok {
		return nil, fmt.Errorf("field %q not in response: %s", field, tc.LastBody)
	}
	return v, nil
}

func (tc *TestContext) ResponseBody() []byte { return tc.LastBody }

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
