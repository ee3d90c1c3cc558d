// Package matrix is a minimal Matrix client-server v3 API client: just the
// request/response shapes a simulated chat user needs. It is not a full
// SDK; no E2EE, no push rules, no device-list tracking.
package matrix

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/bnema/mxload/internal/metrics"
)

const (
	clientPrefix = "/_matrix/client/v3"
	mediaPrefix  = "/_matrix/media/v3"

	maxResponseBytes = 1 << 22
)

// Client issues Matrix client-server API calls against one homeserver. It
// is safe for concurrent use by many sessions.
type Client struct {
	BaseURL        string
	HTTPClient     *http.Client
	RequestTimeout time.Duration
}

// APIError is a non-2xx Matrix response, carrying the standard errcode and
// error fields when the body was parseable.
type APIError struct {
	StatusCode int
	Errcode    string
	Message    string
}

func (e *APIError) Error() string {
	if e.Errcode == "" {
		return fmt.Sprintf("matrix api: status %d", e.StatusCode)
	}
	return fmt.Sprintf("matrix api: status %d %s: %s", e.StatusCode, e.Errcode, e.Message)
}

func (e *APIError) RateLimited() bool { return e.StatusCode == http.StatusTooManyRequests }

// RateLimited reports whether err is a 429 response.
func RateLimited(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.RateLimited()
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func (c *Client) endpoint(path string) (string, error) {
	if c.BaseURL == "" {
		return "", errors.New("homeserver base url is required")
	}
	parsed, err := url.Parse(c.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parse homeserver url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", errors.New("homeserver url must use http or https")
	}
	endpoint, err := parsed.Parse(path)
	if err != nil {
		return "", fmt.Errorf("parse api path: %w", err)
	}
	return endpoint.String(), nil
}

func (c *Client) requestContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, hasDeadline := ctx.Deadline(); hasDeadline {
		return ctx, func() {}
	}
	timeout := c.RequestTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return context.WithTimeout(ctx, timeout)
}

// do issues one API call. label is the cardinality-bounded endpoint name
// recorded in metrics (room ids and user ids collapsed to "_"). out may be
// nil when the caller does not care about the body.
func (c *Client) do(ctx context.Context, method, path, label, accessToken string, body, out any) error {
	endpoint, err := c.endpoint(path)
	if err != nil {
		return err
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s request: %w", label, err)
		}
		reader = bytes.NewReader(encoded)
	}

	requestCtx, cancel := c.requestContext(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(requestCtx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("create %s request: %w", label, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}

	resp, err := c.httpClient().Do(req)
	if err != nil {
		metrics.ObserveRequest(label, metrics.ResultError)
		return fmt.Errorf("request %s: %w", label, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		metrics.ObserveRequest(label, strconv.Itoa(resp.StatusCode))
		return decodeAPIError(resp)
	}
	metrics.ObserveRequest(label, metrics.ResultOK)

	if out == nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		return nil
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", label, err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}

	var payload struct {
		Errcode string `json:"errcode"`
		Message string `json:"error"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&payload); err == nil {
		apiErr.Errcode = payload.Errcode
		apiErr.Message = payload.Message
	}
	return apiErr
}
