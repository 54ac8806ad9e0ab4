// Package httpclient implements the HTTP dispatch capability the workflow
// engine consumes: build the request, perform it with a per-request timeout
// and redirect policy, and hand back status, headers, body, cookies and
// duration.
package httpclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

const (
	defaultTimeout  = 30 * time.Second
	maxResponseSize = 10 << 20 // 10 MiB
)

// Request describes a single HTTP dispatch.
type Request struct {
	Method          string
	URL             string
	Headers         map[string]string
	Body            string
	Timeout         time.Duration
	FollowRedirects bool
	Files           []File
}

// File is a multipart upload attached to a request.
type File struct {
	FieldName string
	FileName  string
	MimeType  string
	Content   []byte
}

// Response is the outcome of a successful dispatch. Transport-level failures
// are returned as errors, not responses.
type Response struct {
	StatusCode int
	Headers    map[string]string
	Body       string
	Cookies    map[string]string
	DurationMs int64
}

// Dispatcher performs HTTP requests on behalf of node executors.
type Dispatcher interface {
	Dispatch(ctx context.Context, req Request) (*Response, error)
}

// Client is the net/http-backed Dispatcher.
type Client struct{}

// NewClient creates a Client.
func NewClient() *Client {
	return &Client{}
}

// Dispatch performs the request and measures its duration.
func (c *Client) Dispatch(ctx context.Context, req Request) (*Response, error) {
	method := strings.ToUpper(req.Method)
	if method == "" {
		method = http.MethodGet
	}

	body, contentType, err := buildBody(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	for key, value := range req.Headers {
		httpReq.Header.Set(key, value)
	}

	if contentType != "" && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", contentType)
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	client := &http.Client{Timeout: timeout}
	if !req.FollowRedirects {
		client.CheckRedirect = func(_ *http.Request, _ []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}

	start := time.Now()

	httpResp, err := client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	defer func() {
		_ = httpResp.Body.Close()
	}()

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	duration := time.Since(start)

	headers := make(map[string]string, len(httpResp.Header))
	for key := range httpResp.Header {
		headers[key] = httpResp.Header.Get(key)
	}

	cookies := make(map[string]string)
	for _, cookie := range httpResp.Cookies() {
		cookies[cookie.Name] = cookie.Value
	}

	return &Response{
		StatusCode: httpResp.StatusCode,
		Headers:    headers,
		Body:       string(respBody),
		Cookies:    cookies,
		DurationMs: duration.Milliseconds(),
	}, nil
}

func buildBody(req Request) (io.Reader, string, error) {
	if len(req.Files) == 0 {
		if req.Body == "" {
			return nil, "", nil
		}

		return strings.NewReader(req.Body), "", nil
	}

	var buf bytes.Buffer

	writer := multipart.NewWriter(&buf)

	for _, file := range req.Files {
		fileName := file.FileName
		if fileName == "" {
			fileName = file.FieldName
		}

		part, err := writer.CreateFormFile(file.FieldName, fileName)
		if err != nil {
			return nil, "", fmt.Errorf("failed to create form file %q: %w", file.FieldName, err)
		}

		if _, err := part.Write(file.Content); err != nil {
			return nil, "", fmt.Errorf("failed to write form file %q: %w", file.FieldName, err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to finalize multipart body: %w", err)
	}

	return &buf, writer.FormDataContentType(), nil
}
