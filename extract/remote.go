package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hazyhaar/sitesync/horosafe"
)

// RemoteExtractor delegates extraction and merging to an HTTP service.
//
//	POST {base}/extract  {"content": "...", "base_url": "..."}  -> {"candidates": [...]}
//	POST {base}/merge    {"question", "current_answer", "website_answer"} -> {"answer": "..."}
type RemoteExtractor struct {
	base     string
	client   *http.Client
	maxBytes int64
}

// NewRemote returns a RemoteExtractor for the service at baseURL.
// A nil client gets a 60s timeout.
func NewRemote(baseURL string, client *http.Client) *RemoteExtractor {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &RemoteExtractor{
		base:     strings.TrimRight(baseURL, "/"),
		client:   client,
		maxBytes: horosafe.MaxResponseBody,
	}
}

type extractRequest struct {
	Content string `json:"content"`
	BaseURL string `json:"base_url"`
}

type extractResponse struct {
	Candidates []map[string]any `json:"candidates"`
}

type mergeRequest struct {
	Question      string `json:"question"`
	CurrentAnswer string `json:"current_answer"`
	WebsiteAnswer string `json:"website_answer"`
}

type mergeResponse struct {
	Answer string `json:"answer"`
}

// Extract sends the page content to the remote extractor.
func (r *RemoteExtractor) Extract(ctx context.Context, content []byte, baseURL string) ([]map[string]any, error) {
	var resp extractResponse
	if err := r.post(ctx, "/extract", extractRequest{Content: string(content), BaseURL: baseURL}, &resp); err != nil {
		return nil, err
	}
	return resp.Candidates, nil
}

// Merge asks the remote service to combine two answers.
func (r *RemoteExtractor) Merge(ctx context.Context, question, current, website string) (string, error) {
	var resp mergeResponse
	err := r.post(ctx, "/merge", mergeRequest{Question: question, CurrentAnswer: current, WebsiteAnswer: website}, &resp)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(resp.Answer) == "" {
		return "", fmt.Errorf("extract: remote merge returned an empty answer")
	}
	return resp.Answer, nil
}

func (r *RemoteExtractor) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("extract: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.base+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("extract: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("extract: %s: %w", path, err)
	}
	defer resp.Body.Close()

	data, err := horosafe.LimitedReadAll(resp.Body, r.maxBytes)
	if err != nil {
		return fmt.Errorf("extract: read %s response: %w", path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("extract: %s: HTTP %d: %s", path, resp.StatusCode, truncate(string(data), 200))
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("extract: decode %s response: %w", path, err)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
