package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// Delivery is the outcome of a best-effort call. Callers log a failed
// Delivery and carry on; it is never turned into an error.
type Delivery struct {
	Target string
	Err    error
}

func (d Delivery) OK() bool { return d.Err == nil }

func delivered(target string, err error) Delivery {
	return Delivery{Target: target, Err: err}
}

// serviceClient posts JSON to a sibling service with the shared service token.
type serviceClient struct {
	BaseURL string
	Token   string
	Client  *http.Client
}

func (c *serviceClient) postJSON(ctx context.Context, path string, body, out interface{}) error {
	return c.do(ctx, http.MethodPost, path, body, out)
}

func (c *serviceClient) getJSON(ctx context.Context, path string, out interface{}) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

func (c *serviceClient) do(ctx context.Context, method, path string, body, out interface{}) error {
	base, err := url.Parse(c.BaseURL)
	if err != nil || base.Host == "" {
		return fmt.Errorf("invalid base URL %q", c.BaseURL)
	}
	endpoint := base.JoinPath(path).String()

	var payload io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request for %s: %w", endpoint, err)
		}
		payload = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, payload)
	if err != nil {
		return fmt.Errorf("failed to create request to %s: %w", endpoint, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.Token != "" {
		req.Header.Set("X-Service-Token", c.Token)
	}

	resp, err := c.Client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, endpoint, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &StatusError{Method: method, Endpoint: endpoint, Code: resp.StatusCode, Body: string(bytes.TrimSpace(msg))}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response from %s: %w", endpoint, err)
		}
	}
	return nil
}

// StatusError is a non-2xx answer from a sibling service.
type StatusError struct {
	Method   string
	Endpoint string
	Code     int
	Body     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s returned %d: %s", e.Method, e.Endpoint, e.Code, e.Body)
}
