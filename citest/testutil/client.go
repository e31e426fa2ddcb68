package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// TestClient provides HTTP client utilities for testing
type TestClient struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewTestClient creates a new test HTTP client
func NewTestClient(baseURL string) *TestClient {
	return &TestClient{
		BaseURL: baseURL,
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// RequestOption configures HTTP requests
type RequestOption func(*http.Request)

// WithHeader adds a header to the request
func WithHeader(key, value string) RequestOption {
	return func(r *http.Request) {
		r.Header.Set(key, value)
	}
}

// WithQuery adds query parameters
func WithQuery(params map[string]string) RequestOption {
	return func(r *http.Request) {
		q := r.URL.Query()
		for k, v := range params {
			q.Set(k, v)
		}
		r.URL.RawQuery = q.Encode()
	}
}

// Response wraps HTTP response with helpers
type Response struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
}

// JSON unmarshals response body into v
func (r *Response) JSON(v any) error {
	return json.Unmarshal(r.Body, v)
}

// String returns response body as string
func (r *Response) String() string {
	return string(r.Body)
}

// IsSuccess returns true if status code is 2xx
func (r *Response) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// ErrorCode returns error.code from an error envelope, or "".
func (r *Response) ErrorCode() string {
	var env struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	_ = json.Unmarshal(r.Body, &env)
	return env.Error.Code
}

// Get performs HTTP GET request
func (c *TestClient) Get(ctx context.Context, path string, opts ...RequestOption) (*Response, error) {
	return c.do(ctx, http.MethodGet, path, nil, opts...)
}

// Post performs HTTP POST request with JSON body
func (c *TestClient) Post(ctx context.Context, path string, body any, opts ...RequestOption) (*Response, error) {
	return c.do(ctx, http.MethodPost, path, body, opts...)
}

// do performs the actual HTTP request
func (c *TestClient) do(ctx context.Context, method, path string, body any, opts ...RequestOption) (*Response, error) {
	fullURL := c.BaseURL + path

	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	for _, opt := range opts {
		opt(req)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       respBody,
	}, nil
}

// ---- Domain helpers ----

// Decision mirrors the /select response.
type Decision struct {
	ID           string      `json:"id"`
	RegistryID   string      `json:"registryID"`
	Agent        string      `json:"agent"`
	Score        *int        `json:"score"`
	Explicit     bool        `json:"explicit"`
	Ambiguous    bool        `json:"ambiguous"`
	Candidates   []Candidate `json:"candidates"`
	DefaultAgent string      `json:"defaultAgent"`
}

// Candidate is one ranked agent in a Decision.
type Candidate struct {
	Name  string `json:"name"`
	Tier  string `json:"tier"`
	Score int    `json:"score"`
}

// AgentSummary mirrors one /agent list entry.
type AgentSummary struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Tier        string   `json:"tier"`
	Category    string   `json:"category"`
	Status      string   `json:"status"`
	DelegatesTo []string `json:"delegatesTo"`
}

// RegistryInfo mirrors the /registry response.
type RegistryInfo struct {
	ID         string   `json:"id"`
	Agents     int      `json:"agents"`
	Strategic  int      `json:"strategic"`
	Tactical   int      `json:"tactical"`
	Categories []string `json:"categories"`
}

// Select routes task, optionally naming an agent.
func (c *TestClient) Select(ctx context.Context, task, agent string) (*Decision, *Response, error) {
	body := map[string]any{"task": task}
	if agent != "" {
		body["agent"] = agent
	}
	resp, err := c.Post(ctx, "/select", body)
	if err != nil {
		return nil, nil, err
	}
	if !resp.IsSuccess() {
		return nil, resp, nil
	}
	var d Decision
	if err := resp.JSON(&d); err != nil {
		return nil, resp, err
	}
	return &d, resp, nil
}

// ListAgents lists agents matching query.
func (c *TestClient) ListAgents(ctx context.Context, query map[string]string) ([]AgentSummary, error) {
	resp, err := c.Get(ctx, "/agent", WithQuery(query))
	if err != nil {
		return nil, err
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("list agents: status %d: %s", resp.StatusCode, resp.String())
	}
	var out []AgentSummary
	return out, resp.JSON(&out)
}

// Registry returns the serving snapshot.
func (c *TestClient) Registry(ctx context.Context) (*RegistryInfo, error) {
	resp, err := c.Get(ctx, "/registry")
	if err != nil {
		return nil, err
	}
	var info RegistryInfo
	return &info, resp.JSON(&info)
}

// ContainsString checks if slice contains val
func ContainsString(slice []string, val string) bool {
	for _, s := range slice {
		if s == val {
			return true
		}
	}
	return false
}
