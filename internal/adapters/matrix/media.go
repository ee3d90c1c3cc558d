package matrix

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/bnema/mxload/internal/metrics"
)

// UploadMedia uploads raw bytes and returns the MXC reference the server
// assigned.
func (c *Client) UploadMedia(ctx context.Context, accessToken, contentType string, data []byte) (string, error) {
	const label = mediaPrefix + "/upload"

	endpoint, err := c.endpoint(mediaPrefix + "/upload")
	if err != nil {
		return "", err
	}

	requestCtx, cancel := c.requestContext(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(requestCtx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("create upload request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.httpClient().Do(req)
	if err != nil {
		metrics.ObserveRequest(label, metrics.ResultError)
		return "", fmt.Errorf("request upload: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		metrics.ObserveRequest(label, fmt.Sprintf("%d", resp.StatusCode))
		return "", decodeAPIError(resp)
	}
	metrics.ObserveRequest(label, metrics.ResultOK)

	var result struct {
		ContentURI string `json:"content_uri"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&result); err != nil {
		return "", fmt.Errorf("decode upload response: %w", err)
	}
	if result.ContentURI == "" {
		return "", fmt.Errorf("upload response missing content_uri")
	}
	return result.ContentURI, nil
}

// DownloadMedia resolves an mxc:// reference and downloads it, discarding
// the bytes; the load generator only cares that the server served them.
func (c *Client) DownloadMedia(ctx context.Context, accessToken, mxc string) error {
	const label = mediaPrefix + "/download"

	serverName, mediaID, err := splitMXC(mxc)
	if err != nil {
		return err
	}

	path := mediaPrefix + "/download/" + serverName + "/" + mediaID
	return c.do(ctx, http.MethodGet, path, label, accessToken, nil, nil)
}

func splitMXC(mxc string) (serverName, mediaID string, err error) {
	toks := strings.Split(mxc, "/")
	if len(toks) < 2 {
		return "", "", fmt.Errorf("unparseable mxc url %q", mxc)
	}
	return toks[len(toks)-2], toks[len(toks)-1], nil
}
