// Package analysis is the HTTP client for the remote market-analysis service.
package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const maxResponseSize = 10 << 20 // 10MB

// ErrNotStarted is returned by Submit when the service accepted the request
// but did not hand back a job id.
var ErrNotStarted = errors.New("failed to start analysis, please try again")

// Client communicates with the analysis service over HTTP.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// New creates a Client targeting baseURL. token is sent as a bearer token
// when non-empty.
func New(baseURL, token string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// NewWithHTTPClient creates a Client that uses hc for every request.
func NewWithHTTPClient(baseURL, token string, hc *http.Client) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: hc,
	}
}

// BaseURL returns the service root the client talks to.
func (c *Client) BaseURL() string { return c.baseURL }

// Submit posts a product idea for analysis and returns the assigned job id.
func (c *Client) Submit(ctx context.Context, req SubmitRequest) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshalling submit request: %w", err)
	}

	var resp SubmitResponse
	if err := c.do(ctx, http.MethodPost, "/analyze", body, "Failed to submit analysis", &resp); err != nil {
		return "", err
	}
	if !resp.Success || resp.JobID == "" {
		return "", ErrNotStarted
	}
	return resp.JobID, nil
}

// Results performs exactly one read of a job's current state. The decoded
// body is returned as-is; interpreting the status is up to the caller.
func (c *Client) Results(ctx context.Context, jobID string) (*Snapshot, error) {
	var snap Snapshot
	path := "/results/" + url.PathEscape(jobID)
	if err := c.do(ctx, http.MethodGet, path, nil, "Failed to fetch results", &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// Health returns true if GET /health answers with a 2xx status.
func (c *Client) Health(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return false
	}
	c.authorize(req)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

func (c *Client) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

// do sends one request and decodes a 2xx JSON body into out. Anything that
// prevents reading a JSON body is reported as a transport failure.
func (c *Client) do(ctx context.Context, method, path string, body []byte, fallback string, out any) error {
	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return transportError(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return transportError(fmt.Errorf("reading response: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return serviceError(resp.StatusCode, raw, fallback)
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return transportError(fmt.Errorf("decoding response: %w", err))
	}
	return nil
}

func serviceError(status int, raw []byte, fallback string) *ServiceError {
	e := &ServiceError{StatusCode: status, Message: fallback}

	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil {
		return e
	}
	e.Body = body

	switch detail := body["detail"].(type) {
	case string:
		if detail != "" {
			e.Message = detail
		}
	case nil:
	default:
		if b, err := json.Marshal(detail); err == nil {
			e.Message = string(b)
		}
	}
	return e
}
