// Package backend はジョブAPI（text-forge バックエンド）の HTTP クライアントです。
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/yourusername/text-forge/internal/jobapi"
)

const defaultTimeout = 30 * time.Second

// HTTPError は 2xx 以外のレスポンスを表します。Detail はレスポンスの detail です。
type HTTPError struct {
	StatusCode int
	Detail     string
}

func (e *HTTPError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("backend returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("backend returned status %d: %s", e.StatusCode, e.Detail)
}

// Client はジョブAPIのクライアントです。
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient は Client を作成します。baseURL は /api までを含めます（例: http://localhost:8080/api）。
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// CreateSource は POST /sources でソーステキストを登録します。
func (c *Client) CreateSource(ctx context.Context, req jobapi.CreateSourceRequest) (*jobapi.Source, error) {
	var out jobapi.Source
	if err := c.do(ctx, http.MethodPost, "/sources", req, http.StatusCreated, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateJob は POST /jobs でジョブを作成します。
func (c *Client) CreateJob(ctx context.Context, req jobapi.CreateJobRequest) (*jobapi.JobCreated, error) {
	var out jobapi.JobCreated
	if err := c.do(ctx, http.MethodPost, "/jobs", req, http.StatusCreated, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetJob は GET /jobs/{id} でジョブの状態を取得します。
func (c *Client) GetJob(ctx context.Context, id string) (*jobapi.JobStatus, error) {
	var out jobapi.JobStatus
	if err := c.do(ctx, http.MethodGet, "/jobs/"+url.PathEscape(id), nil, http.StatusOK, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetResults は GET /jobs/{id}/results で結果を取得します。
func (c *Client) GetResults(ctx context.Context, id string) (*jobapi.JobResults, error) {
	var out jobapi.JobResults
	if err := c.do(ctx, http.MethodGet, "/jobs/"+url.PathEscape(id)+"/results", nil, http.StatusOK, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListJobs は GET /jobs でジョブ一覧を取得します。
func (c *Client) ListJobs(ctx context.Context, page, pageSize int) (*jobapi.JobList, error) {
	q := url.Values{}
	if page > 0 {
		q.Set("page", strconv.Itoa(page))
	}
	if pageSize > 0 {
		q.Set("page_size", strconv.Itoa(pageSize))
	}
	path := "/jobs"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var out jobapi.JobList
	if err := c.do(ctx, http.MethodGet, path, nil, http.StatusOK, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path string, in any, wantStatus int, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call backend: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != wantStatus {
		return &HTTPError{StatusCode: resp.StatusCode, Detail: parseDetail(data)}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func parseDetail(data []byte) string {
	var body jobapi.ErrorBody
	if err := json.Unmarshal(data, &body); err == nil && body.Detail != "" {
		return body.Detail
	}
	return strings.TrimSpace(string(data))
}
