// Package backendapi talks to the external ETL backend and its
// natural-language query endpoint. Calls are single-shot: no retries and no
// timeouts beyond what the transport is configured with.
package backendapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

type Config struct {
	// BaseURL is the backend origin, e.g. http://etl:8000.
	BaseURL string
	// Token is sent as a bearer token when set.
	Token string
	// Timeout of zero leaves requests bounded only by their context.
	Timeout   time.Duration
	Transport http.RoundTripper
	UserAgent string
}

// APIError is a non-2xx answer from the backend.
type APIError struct {
	Op         string
	StatusCode int
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("%s returned status %d", e.Op, e.StatusCode)
}

// IsNotFound reports whether err is a 404 from the backend.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

type caller struct {
	baseURL    string
	token      string
	userAgent  string
	httpClient *http.Client
}

func newCaller(cfg Config, prefix string) *caller {
	ua := cfg.UserAgent
	if ua == "" {
		ua = "excelchat-dashboard/1.0"
	}
	return &caller{
		baseURL:   strings.TrimSuffix(strings.TrimSpace(cfg.BaseURL), "/") + prefix,
		token:     cfg.Token,
		userAgent: ua,
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: cfg.Transport,
		},
	}
}

type request struct {
	op          string
	method      string
	path        string
	body        io.Reader
	contentType string
}

// do executes req and decodes a 2xx JSON body into out (when out is non-nil).
func (c *caller) do(ctx context.Context, req request, out any) error {
	httpReq, err := http.NewRequestWithContext(ctx, req.method, c.baseURL+req.path, req.body)
	if err != nil {
		// the client closes the body once a request exists; before that it is ours
		if closer, ok := req.body.(io.Closer); ok {
			closer.Close()
		}
		return fmt.Errorf("%s: build request: %w", req.op, err)
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", c.userAgent)
	if req.contentType != "" {
		httpReq.Header.Set("Content-Type", req.contentType)
	}
	if c.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%s: %w", req.op, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s: read response: %w", req.op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{
			Op:         req.op,
			StatusCode: resp.StatusCode,
			Message:    errorMessage(data),
			Body:       string(data),
		}
	}

	if out == nil || len(strings.TrimSpace(string(data))) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%s: decode response: %w", req.op, err)
	}
	return nil
}

// errorMessage pulls the human readable part out of an error body. FastAPI
// puts it in detail (a string, or a list of {msg} for validation errors).
func errorMessage(body []byte) string {
	text := strings.TrimSpace(string(body))
	if text == "" {
		return ""
	}
	if !gjson.ValidBytes(body) {
		return text
	}
	for _, path := range []string{"detail.0.msg", "detail", "error", "message"} {
		res := gjson.GetBytes(body, path)
		if res.Exists() && res.Type == gjson.String && res.String() != "" {
			return res.String()
		}
	}
	return text
}

func jsonBody(v any) (io.Reader, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return strings.NewReader(string(data)), nil
}
