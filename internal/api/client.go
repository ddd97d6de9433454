package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand/v2"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Retry and backoff constants.
const (
	maxRetries       = 3
	baseBackoff      = 1 * time.Second
	maxBackoff       = 30 * time.Second
	backoffFactor    = 2.0
	jitterFraction   = 0.25
	DefaultUserAgent = "vaultbox/0.1"
)

// maxErrorMessage caps how much of a non-JSON error body is kept in Error.Message.
const maxErrorMessage = 512

// TokenSource provides bearer tokens for authenticated calls. An empty
// token means the call is sent anonymously.
type TokenSource interface {
	Token() (string, error)
}

// Anonymous is a TokenSource for callers without a session.
type Anonymous struct{}

// Token always returns the empty token.
func (Anonymous) Token() (string, error) { return "", nil }

// Client is an HTTP client for the vaultbox backend.
// It handles request construction, authentication, retry with
// exponential backoff, and error classification.
type Client struct {
	baseURL    string
	httpClient *http.Client
	// noRedirect shares httpClient's transport but returns 3xx responses
	// to the caller instead of following them.
	noRedirect *http.Client
	token      TokenSource
	logger     *slog.Logger
	userAgent  string

	// sleepFunc is called to wait between retries. Defaults to timeSleep.
	// Tests override this to avoid real delays.
	sleepFunc func(ctx context.Context, d time.Duration) error
}

// NewClient creates a backend client.
// baseURL is the server root, e.g. "http://localhost:8080".
func NewClient(baseURL string, httpClient *http.Client, token TokenSource, logger *slog.Logger, userAgent string) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	if token == nil {
		token = Anonymous{}
	}

	if userAgent == "" {
		userAgent = DefaultUserAgent
	}

	noRedirect := *httpClient
	noRedirect.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		noRedirect: &noRedirect,
		token:      token,
		logger:     logger,
		userAgent:  userAgent,
		sleepFunc:  timeSleep,
	}
}

// Do executes an authenticated request against the backend.
// The path is appended to the client's base URL.
// For non-nil bodies, Content-Type is set to application/json.
// Idempotent methods are retried on network errors and retryable statuses;
// a retried body must implement io.Seeker.
// The caller is responsible for closing the response body on success.
func (c *Client) Do(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	url := c.baseURL + path
	retries := 0

	if isIdempotent(method) && (body == nil || isSeeker(body)) {
		retries = maxRetries
	}

	var attempt int
	for {
		if attempt > 0 {
			if err := rewindBody(body); err != nil {
				return nil, err
			}
		}

		resp, err := c.doOnce(ctx, method, url, "application/json", body)
		if err != nil {
			// Context cancellation is not retryable.
			if ctx.Err() != nil {
				return nil, fmt.Errorf("api: request canceled: %w", ctx.Err())
			}

			if attempt < retries {
				backoff := c.calcBackoff(attempt)
				c.logger.Warn("retrying after network error",
					slog.String("method", method),
					slog.String("path", path),
					slog.Int("attempt", attempt+1),
					slog.Duration("backoff", backoff),
					slog.String("error", err.Error()),
				)

				if sleepErr := c.sleepFunc(ctx, backoff); sleepErr != nil {
					return nil, fmt.Errorf("api: request canceled: %w", sleepErr)
				}

				attempt++

				continue
			}

			return nil, fmt.Errorf("%w: %s %s: %w", ErrNetwork, method, path, err)
		}

		// 2xx: success.
		if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
			c.logger.Debug("request succeeded",
				slog.String("method", method),
				slog.String("path", path),
				slog.Int("status", resp.StatusCode),
			)

			return resp, nil
		}

		if isRetryable(resp.StatusCode) && attempt < retries {
			backoff := c.retryBackoff(resp, attempt)
			drainAndClose(resp)

			c.logger.Warn("retrying after HTTP error",
				slog.String("method", method),
				slog.String("path", path),
				slog.Int("status", resp.StatusCode),
				slog.Int("attempt", attempt+1),
				slog.Duration("backoff", backoff),
			)

			if err := c.sleepFunc(ctx, backoff); err != nil {
				return nil, fmt.Errorf("api: request canceled: %w", err)
			}

			attempt++

			continue
		}

		apiErr := errorFromResponse(resp)

		if attempt > 0 {
			c.logger.Error("request failed after retries",
				slog.String("method", method),
				slog.String("path", path),
				slog.Int("status", resp.StatusCode),
				slog.Int("attempts", attempt+1),
			)
		}

		return nil, apiErr
	}
}

// doJSON runs Do and decodes a JSON response body into out (when non-nil).
func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader

	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("api: encoding %s %s request: %w", method, path, err)
		}

		body = bytes.NewReader(data)
	}

	resp, err := c.Do(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer drainAndClose(resp)

	if out == nil {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("api: decoding %s %s response: %w", method, path, err)
	}

	return nil
}

// doOnce executes a single authenticated HTTP request (no retry).
func (c *Client) doOnce(ctx context.Context, method, url, contentType string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	if err := c.authorize(req); err != nil {
		return nil, err
	}

	req.Header.Set("User-Agent", c.userAgent)

	if body != nil {
		req.Header.Set("Content-Type", contentType)
	}

	return c.httpClient.Do(req)
}

// authorize attaches the bearer token when the token source has one.
func (c *Client) authorize(req *http.Request) error {
	tok, err := c.token.Token()
	if err != nil {
		return fmt.Errorf("obtaining token: %w", err)
	}

	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	return nil
}

// errorFromResponse reads and closes an error response, building an *Error.
// JSON bodies of the form {"error": "..."} contribute their message.
func errorFromResponse(resp *http.Response) *Error {
	data, readErr := io.ReadAll(io.LimitReader(resp.Body, maxResponseError))
	resp.Body.Close()

	msg := ""
	if readErr == nil {
		msg = errorMessage(data)
	}

	return &Error{
		StatusCode: resp.StatusCode,
		Message:    msg,
		Err:        classifyStatus(resp.StatusCode),
	}
}

// maxResponseError bounds how much of an error body is read.
const maxResponseError = 64 * 1024

// errorMessage extracts {"error": "..."} from body, or returns the
// trimmed body text when it is not such a document.
func errorMessage(body []byte) string {
	var payload struct {
		Error string `json:"error"`
	}

	if err := json.Unmarshal(body, &payload); err == nil && payload.Error != "" {
		return payload.Error
	}

	text := strings.TrimSpace(string(body))
	if len(text) > maxErrorMessage {
		text = text[:maxErrorMessage]
	}

	return text
}

// drainAndClose discards the rest of the body so the connection is reused.
func drainAndClose(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body) //nolint:errcheck // best-effort drain
	resp.Body.Close()
}

func isSeeker(r io.Reader) bool {
	_, ok := r.(io.Seeker)
	return ok
}

// rewindBody seeks a retried request body back to its start.
func rewindBody(body io.Reader) error {
	if body == nil {
		return nil
	}

	s, ok := body.(io.Seeker)
	if !ok {
		return errors.New("api: request body cannot be replayed")
	}

	if _, err := s.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("api: rewinding request body: %w", err)
	}

	return nil
}

// retryBackoff returns the backoff duration for a retryable response.
// For 429 responses with a Retry-After header, that value is used.
func (c *Client) retryBackoff(resp *http.Response, attempt int) time.Duration {
	if resp.StatusCode == http.StatusTooManyRequests {
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if seconds, err := strconv.Atoi(ra); err == nil && seconds > 0 {
				return time.Duration(seconds) * time.Second
			}
		}
	}

	return c.calcBackoff(attempt)
}

// calcBackoff computes exponential backoff with ±25% jitter.
func (c *Client) calcBackoff(attempt int) time.Duration {
	backoff := float64(baseBackoff) * math.Pow(backoffFactor, float64(attempt))
	if backoff > float64(maxBackoff) {
		backoff = float64(maxBackoff)
	}

	jitter := backoff * jitterFraction * (rand.Float64()*2 - 1) //nolint:gosec // jitter does not need crypto rand
	backoff += jitter

	return time.Duration(backoff)
}

// timeSleep waits for the given duration or until the context is canceled.
// It is the default sleepFunc for Client.
func timeSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
