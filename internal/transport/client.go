// Package transport provides the authenticated HTTP client used to talk to
// the item-tracking service.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/agentstation/itemtype/pkg/constants"
	"github.com/agentstation/itemtype/pkg/errors"
)

// ServiceName labels errors raised by this package.
const ServiceName = "jama"

// DefaultHTTPTimeout is the default timeout for HTTP requests.
var DefaultHTTPTimeout = constants.DefaultHTTPTimeout

// Client provides HTTP client functionality with authentication.
type Client struct {
	http *http.Client
	auth Authenticator
}

// NewWithHTTPClient creates a transport client around an existing http.Client.
func NewWithHTTPClient(auth Authenticator, httpClient *http.Client) *Client {
	if auth == nil {
		auth = &NoAuth{}
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &Client{http: httpClient, auth: auth}
}

// Do performs an HTTP request with authentication applied.
func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if err := c.auth.Apply(ctx, req); err != nil {
		return nil, err
	}

	req.Header.Set("Accept", "application/json")
	if req.Method == http.MethodPost || req.Method == http.MethodPut || req.Method == http.MethodPatch {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.http.Do(req)
}

// Get performs a GET request.
func (c *Client) Get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.WrapResource("create", "request", "GET "+url, err)
	}
	return c.Do(ctx, req)
}

// Patch performs a PATCH request with body encoded as JSON.
func (c *Client) Patch(ctx context.Context, url string, body any) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, errors.WrapParse("json", "request body", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, url, bytes.NewReader(payload))
	if err != nil {
		return nil, errors.WrapResource("create", "request", "PATCH "+url, err)
	}
	return c.Do(ctx, req)
}

// DecodeResponse checks the status code and decodes a JSON body into target.
// target may be nil when only the status matters. The body is always closed.
func DecodeResponse(resp *http.Response, target any) error {
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.WrapIO("read", "response body", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		endpoint := ""
		if resp.Request != nil && resp.Request.URL != nil {
			endpoint = resp.Request.Method + " " + resp.Request.URL.Path
		}
		return &errors.APIError{
			Service:    ServiceName,
			StatusCode: resp.StatusCode,
			Message:    errorMessage(body, resp.Status),
			Endpoint:   endpoint,
		}
	}

	if target == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, target); err != nil {
		return errors.WrapParse("json", "response", err)
	}
	return nil
}

// errorMessage pulls meta.message out of a service error envelope, falling
// back to the raw (truncated) body or the HTTP status.
func errorMessage(body []byte, status string) string {
	var envelope struct {
		Meta struct {
			Status  string `json:"status"`
			Message string `json:"message"`
		} `json:"meta"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Meta.Message != "" {
		return envelope.Meta.Message
	}
	if msg := truncate(string(bytes.TrimSpace(body))); msg != "" {
		return msg
	}
	return status
}

func truncate(s string) string {
	if len(s) > constants.MaxErrorBodyLength {
		return s[:constants.MaxErrorBodyLength] + "..."
	}
	return s
}
