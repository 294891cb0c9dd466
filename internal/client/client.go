// Package client talks to a running authcap control surface.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/steveyegge/authcap/internal/capture"
	"github.com/steveyegge/authcap/internal/exitcode"
	"github.com/steveyegge/authcap/internal/supervisor"
)

// Client is an HTTP client for the /api/setup-auth endpoints.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a client for the server at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// BaseURL returns the server URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Start asks the server to start a capture. The returned error covers
// transport failures only; a refused start is reported in the Result.
func (c *Client) Start(ctx context.Context, mode capture.Mode, targetIndex *int) (supervisor.Result, error) {
	body := map[string]interface{}{"mode": string(mode)}
	if targetIndex != nil {
		body["targetIndex"] = *targetIndex
	}
	var res supervisor.Result
	err := c.do(ctx, http.MethodPost, "/api/setup-auth/start", body, &res)
	return res, err
}

// Continue sends the continuation signal.
func (c *Client) Continue(ctx context.Context) (supervisor.Result, error) {
	var res supervisor.Result
	err := c.do(ctx, http.MethodPost, "/api/setup-auth/continue", nil, &res)
	return res, err
}

// Cancel requests termination of the running capture.
func (c *Client) Cancel(ctx context.Context) (supervisor.Result, error) {
	var res supervisor.Result
	err := c.do(ctx, http.MethodPost, "/api/setup-auth/cancel", nil, &res)
	return res, err
}

// Status fetches the capture state.
func (c *Client) Status(ctx context.Context) (supervisor.Status, error) {
	var st supervisor.Status
	err := c.do(ctx, http.MethodGet, "/api/setup-auth/status", nil, &st)
	return st, err
}

type sourcesBody struct {
	Indices []int  `json:"indices"`
	Current *int   `json:"current"`
	Error   string `json:"error"`
}

// Sources lists the credentials loaded by the server.
func (c *Client) Sources(ctx context.Context) (indices []int, current *int, err error) {
	var resp sourcesBody
	if err := c.do(ctx, http.MethodGet, "/api/auth/sources", nil, &resp); err != nil {
		return nil, nil, err
	}
	return resp.Indices, resp.Current, nil
}

// SwitchSource selects the loaded credential index on the server, or the
// next one when index is nil. An index the server has not loaded is reported
// as a credential-not-found error.
func (c *Client) SwitchSource(ctx context.Context, index *int) (indices []int, current *int, err error) {
	var body interface{}
	if index != nil {
		body = map[string]int{"index": *index}
	}
	var resp sourcesBody
	if err := c.do(ctx, http.MethodPost, "/api/auth/sources/switch", body, &resp); err != nil {
		return nil, nil, err
	}
	if resp.Error != "" {
		return resp.Indices, resp.Current, exitcode.New(exitcode.ErrCredentialNotFound, resp.Error)
	}
	return resp.Indices, resp.Current, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return exitcode.Wrap(exitcode.ErrNetwork, "contacting "+c.baseURL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return exitcode.Wrap(exitcode.ErrNetwork, "reading response", err)
	}
	if resp.StatusCode == http.StatusNotFound {
		return exitcode.Newf(exitcode.ErrNetwork, "%s %s: %s", method, path, resp.Status)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding %s response (%s): %w", path, resp.Status, err)
	}
	return nil
}
