// Package backend talks to the image processing service that performs the accounting.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	// DefaultBaseURL is used when no backend URL is configured
	DefaultBaseURL = "http://localhost:8000"

	// BinarizePath is the route the selected image is posted to
	BinarizePath = "/process/binarize"

	tracerName = "github.com/zombor/auto-accounting/internal/backend"
)

// StatusError is returned when the backend answers with a non-2xx status
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("backend error (status %d): %s", e.StatusCode, e.Body)
}

// Result is a successful backend response
type Result struct {
	StatusCode int
	Body       []byte
	// Fields holds the decoded body when it is a JSON object
	Fields map[string]any
}

// Client posts images to the backend
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient creates a Client. A zero timeout means calls wait for the backend indefinitely.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return NewClientWithHTTP(baseURL, &http.Client{Timeout: timeout})
}

// NewClientWithHTTP creates a Client with a custom http.Client
func NewClientWithHTTP(baseURL string, httpClient *http.Client) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  httpClient,
	}
}

// BaseURL returns the configured backend base URL
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Binarize uploads an image as multipart field "file" to the binarize route
func (c *Client) Binarize(ctx context.Context, filename string, data []byte) (*Result, error) {
	url := c.baseURL + BinarizePath

	ctx, span := otel.Tracer(tracerName).Start(ctx, "backend.Binarize")
	defer span.End()
	span.SetAttributes(
		attribute.String("http.url", url),
		attribute.String("file.name", filename),
		attribute.Int("file.size", len(data)),
	)

	result, err := c.binarize(ctx, url, filename, data)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("http.status_code", result.StatusCode))
	return result, nil
}

func (c *Client) binarize(ctx context.Context, url, filename string, data []byte) (*Result, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("creating form file: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, fmt.Errorf("writing form file: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("closing multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling backend: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	result := &Result{StatusCode: resp.StatusCode, Body: respBody}
	var fields map[string]any
	if err := json.Unmarshal(respBody, &fields); err == nil {
		result.Fields = fields
	} else {
		slog.Debug("Backend response is not a JSON object", "error", err)
	}
	return result, nil
}
