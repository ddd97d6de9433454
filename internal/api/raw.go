package api

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
)

// DefaultContentType is sent for payloads without a declared mime type.
const DefaultContentType = "application/octet-stream"

// RawResponse is a fully buffered response whose status code is not
// interpreted. Callers negotiate its meaning from StatusCode and headers.
type RawResponse struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// ContentType returns the declared Content-Type header value.
func (r *RawResponse) ContentType() string {
	return r.Header.Get("Content-Type")
}

// Disposition returns the Content-Disposition header value.
func (r *RawResponse) Disposition() string {
	return r.Header.Get("Content-Disposition")
}

// IsJSON reports whether the declared content type is application/json.
func (r *RawResponse) IsJSON() bool {
	ct := r.ContentType()
	if ct == "" {
		return false
	}

	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return false
	}

	return mt == "application/json"
}

// IsSuccess reports a 2xx status.
func (r *RawResponse) IsSuccess() bool {
	return r.StatusCode >= http.StatusOK && r.StatusCode < http.StatusMultipleChoices
}

// IsRedirect reports a 3xx status.
func (r *RawResponse) IsRedirect() bool {
	return r.StatusCode >= http.StatusMultipleChoices && r.StatusCode < http.StatusBadRequest
}

// DoRaw executes a single authenticated request and buffers the whole
// response body, whatever the status code. Only transport faults are
// returned as errors, wrapped with ErrNetwork. Redirects are followed.
// Raw requests are never retried.
func (c *Client) DoRaw(ctx context.Context, method, path, contentType string, body io.Reader) (*RawResponse, error) {
	return c.doRaw(ctx, c.httpClient, method, path, contentType, body)
}

// doRaw is DoRaw with an explicit http.Client, so callers can opt out of
// redirect following.
func (c *Client) doRaw(
	ctx context.Context, hc *http.Client, method, path, contentType string, body io.Reader,
) (*RawResponse, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("api: creating raw request: %w", err)
	}

	if err := c.authorize(req); err != nil {
		return nil, err
	}

	req.Header.Set("User-Agent", c.userAgent)

	if body != nil && contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := hc.Do(req)
	if err != nil {
		c.logger.Debug("raw request failed",
			slog.String("method", method),
			slog.String("path", path),
			slog.String("error", err.Error()),
		)

		return nil, fmt.Errorf("%w: %s %s: %w", ErrNetwork, method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s %s response: %w", ErrNetwork, method, path, err)
	}

	c.logger.Debug("raw request complete",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", resp.StatusCode),
		slog.Int("bytes", len(data)),
	)

	return &RawResponse{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       data,
	}, nil
}

// PutPresigned uploads raw bytes to a backend-issued presigned URL.
// The URL carries its own time-limited authorization, so no Authorization
// header is sent, and the URL itself is never logged.
// An empty contentType is sent as DefaultContentType.
func (c *Client) PutPresigned(ctx context.Context, uploadURL, contentType string, r io.Reader, size int64) error {
	if contentType == "" {
		contentType = DefaultContentType
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, uploadURL, r)
	if err != nil {
		return fmt.Errorf("api: creating presigned upload request: %w", err)
	}

	req.Header.Set("Content-Type", contentType)
	req.Header.Set("User-Agent", c.userAgent)

	if size >= 0 {
		req.ContentLength = size
	}

	c.logger.Debug("presigned upload",
		slog.Int64("size", size),
		slog.String("content_type", contentType),
	)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: presigned upload: %w", ErrNetwork, err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return errorFromResponse(resp)
	}

	drainAndClose(resp)

	return nil
}

// FetchURL streams an absolute, pre-authorized URL (a redirect target
// issued by the backend) to w without sending credentials. Returns the
// number of bytes written and the response's Content-Disposition.
func (c *Client) FetchURL(ctx context.Context, target string, w io.Writer) (int64, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, http.NoBody)
	if err != nil {
		return 0, "", fmt.Errorf("api: creating redirect request: %w", err)
	}

	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, "", fmt.Errorf("%w: fetching redirect target: %w", ErrNetwork, err)
	}

	if resp.StatusCode != http.StatusOK {
		return 0, "", errorFromResponse(resp)
	}
	defer resp.Body.Close()

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		c.logger.Error("streaming redirect content failed",
			slog.String("error", err.Error()),
			slog.Int64("bytes_before_error", n),
		)

		return n, "", fmt.Errorf("api: streaming redirect content: %w", err)
	}

	return n, resp.Header.Get("Content-Disposition"), nil
}
