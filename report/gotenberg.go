// Package report talks to Gotenberg for HTML rendering and PDF merging.
package report

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

// ErrNothingToMerge is returned by Merge when no parts are supplied.
var ErrNothingToMerge = errors.New("report: nothing to merge")

// Client wraps interactions with the Gotenberg API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient constructs a new client.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// WithHTTPClient swaps the transport, mostly for tests.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	if hc != nil {
		c.httpClient = hc
	}
	return c
}

// Ping checks if the remote Gotenberg service is available.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/health", c.baseURL), nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("gotenberg returned status %d", resp.StatusCode)
	}
	return nil
}

// RenderHTML converts raw HTML into an A4 PDF document. Page margins are left
// to the document's own @page rule.
func (c *Client) RenderHTML(ctx context.Context, html string) ([]byte, error) {
	fields := map[string]string{
		"paperWidth":        "8.27",
		"paperHeight":       "11.7",
		"marginTop":         "0",
		"marginBottom":      "0",
		"marginLeft":        "0",
		"marginRight":       "0",
		"printBackground":   "true",
		"preferCssPageSize": "true",
	}
	files := []formFile{{name: "index.html", data: []byte(html)}}
	pdf, err := c.post(ctx, "/forms/chromium/convert/html", fields, files)
	if err != nil {
		return nil, fmt.Errorf("render failed: %w", err)
	}
	return pdf, nil
}

// Merge concatenates PDF documents in the given order. Gotenberg merges files
// alphabetically, so each part is named with a zero-padded sequence number.
func (c *Client) Merge(ctx context.Context, parts [][]byte) ([]byte, error) {
	if len(parts) == 0 {
		return nil, ErrNothingToMerge
	}
	if len(parts) == 1 {
		return parts[0], nil
	}
	files := make([]formFile, 0, len(parts))
	for i, part := range parts {
		files = append(files, formFile{name: fmt.Sprintf("%05d.pdf", i+1), data: part})
	}
	pdf, err := c.post(ctx, "/forms/pdfengines/merge", nil, files)
	if err != nil {
		return nil, fmt.Errorf("merge failed: %w", err)
	}
	return pdf, nil
}

type formFile struct {
	name string
	data []byte
}

func (c *Client) post(ctx context.Context, path string, fields map[string]string, files []formFile) ([]byte, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for _, f := range files {
		part, err := writer.CreateFormFile("files", f.name)
		if err != nil {
			return nil, err
		}
		if _, err := io.Copy(part, bytes.NewReader(f.data)); err != nil {
			return nil, err
		}
	}
	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			return nil, err
		}
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 400 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<10))
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return io.ReadAll(resp.Body)
}
