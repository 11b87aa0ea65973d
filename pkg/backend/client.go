// Package backend is the HTTP client for the assessment service. The service
// clones repositories and produces assessments; this package only calls it.
package backend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/greg-hellings/portal/pkg/assessment"
)

// Endpoint paths relative to the base URL.
const (
	ClonePath      = "/api/git/clone"
	AssessmentPath = "/api/git/assessment"

	// FileField is the multipart field carrying the uploaded CSV.
	FileField = "file"
)

// ErrUnexpectedStatus is returned when the service answers outside 2xx.
var ErrUnexpectedStatus = errors.New("backend: unexpected HTTP status")

// Config holds client settings.
type Config struct {
	// BaseURL is the scheme://host[:port] of the assessment service.
	BaseURL string
	// Timeout bounds each request. Zero means no client-side limit.
	Timeout time.Duration
	// HTTPClient overrides the default client (tests).
	HTTPClient *http.Client
}

// Client talks to the assessment service.
type Client struct {
	base *url.URL
	http *http.Client
}

// NewClient validates cfg and builds a Client.
func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.New("backend: base URL is required")
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("backend: invalid base URL: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("backend: base URL must be absolute: %s", cfg.BaseURL)
	}

	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{base: base, http: hc}, nil
}

func (c *Client) endpoint(path string, query url.Values) string {
	u := *c.base
	u.Path = c.base.Path + path
	if query != nil {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

// Clone asks the service to clone repoURL with accessToken. Any 2xx answer
// is success; the body is not inspected.
func (c *Client) Clone(ctx context.Context, repoURL, accessToken string) error {
	endpoint := c.endpoint(ClonePath, url.Values{
		"repoUrl":     {repoURL},
		"accessToken": {accessToken},
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to build clone request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("clone request failed: %w", err)
	}
	defer closeBody(resp)

	if !ok(resp.StatusCode) {
		return fmt.Errorf("%w: clone returned %d", ErrUnexpectedStatus, resp.StatusCode)
	}
	return nil
}

// Assess uploads the CSV as multipart field "file" and decodes the
// per-repository results.
func (c *Client) Assess(ctx context.Context, filename string, content []byte) (assessment.Set, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile(FileField, filename)
	if err != nil {
		return nil, fmt.Errorf("failed to create multipart part: %w", err)
	}
	if _, err := part.Write(content); err != nil {
		return nil, fmt.Errorf("failed to write multipart part: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(AssessmentPath, nil), &body)
	if err != nil {
		return nil, fmt.Errorf("failed to build assessment request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("assessment request failed: %w", err)
	}
	defer closeBody(resp)

	if !ok(resp.StatusCode) {
		return nil, fmt.Errorf("%w: assessment returned %d", ErrUnexpectedStatus, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read assessment response: %w", err)
	}
	set, err := assessment.Decode(data)
	if err != nil {
		return nil, err
	}
	slog.Debug("Assessment response decoded", "repositories", len(set))
	return set, nil
}

func ok(code int) bool {
	return code >= 200 && code <= 299
}

func closeBody(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	if err := resp.Body.Close(); err != nil {
		slog.Warn("failed to close response body", "error", err)
	}
}
