// Package backend talks to the upstream rule parser service over HTTP.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"rule-core/internal/rules"
)

// Client fetches parsed playbook definitions from the backend and pushes the
// engine's derived context requirements back to it.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient builds a backend client. Token is optional bearer auth.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *Client) do(req *http.Request) (*http.Response, error) {
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, fmt.Errorf("backend %s %s: status %d: %s", req.Method, req.URL.Path, resp.StatusCode, body)
	}
	return resp, nil
}

// FetchPlaybook retrieves the parsed playbook definition document by name.
func (c *Client) FetchPlaybook(ctx context.Context, name string) ([]byte, error) {
	u := c.baseURL + "/api/playbooks/" + url.PathEscape(name)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

// PushContextRequest reports the engine's context requirements for a playbook,
// so the backend can show traders what data their rules consume.
func (c *Client) PushContextRequest(ctx context.Context, name string, creq *rules.ContextRequest) error {
	body, err := json.Marshal(creq)
	if err != nil {
		return err
	}
	u := c.baseURL + "/api/playbooks/" + url.PathEscape(name) + "/context"
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, u, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// ReportResult forwards one evaluation result to the backend.
func (c *Client) ReportResult(ctx context.Context, result any) error {
	body, err := json.Marshal(result)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/rule-results", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}
