// Package attachments downloads the PDF attachments referenced by forms.
package attachments

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"github.com/odyssey-erp/formreports/internal/observability"
)

// DefaultMaxBytes caps a single attachment download.
const DefaultMaxBytes int64 = 25 << 20

var (
	// ErrNotFound marks a 404 from the attachment server.
	ErrNotFound = errors.New("attachments: not found")
	// ErrNotPDF marks a payload that does not sniff as application/pdf.
	ErrNotPDF = errors.New("attachments: payload is not a pdf")
	// ErrTooLarge marks a payload over the configured cap.
	ErrTooLarge = errors.New("attachments: payload too large")
	// ErrNoName marks a form without an attachment file name.
	ErrNoName = errors.New("attachments: empty file name")
)

// Attachment is a fetched PDF.
type Attachment struct {
	Name string
	Data []byte
}

// Fetcher pulls attachments from a static file server.
type Fetcher struct {
	baseURL    string
	maxBytes   int64
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// Option customises a Fetcher.
type Option func(*Fetcher)

// WithHTTPClient swaps the transport.
func WithHTTPClient(hc *http.Client) Option {
	return func(f *Fetcher) {
		if hc != nil {
			f.httpClient = hc
		}
	}
}

// WithMaxBytes overrides the size cap.
func WithMaxBytes(n int64) Option {
	return func(f *Fetcher) {
		if n > 0 {
			f.maxBytes = n
		}
	}
}

// WithMetrics records attachment outcomes.
func WithMetrics(m *observability.Metrics) Option {
	return func(f *Fetcher) { f.metrics = m }
}

// NewFetcher constructs a fetcher rooted at baseURL.
func NewFetcher(baseURL string, logger *slog.Logger, opts ...Option) *Fetcher {
	if logger == nil {
		logger = slog.Default()
	}
	f := &Fetcher{
		baseURL:    strings.TrimRight(baseURL, "/"),
		maxBytes:   DefaultMaxBytes,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch downloads name. It returns ErrNotFound on 404 and ErrNoName when
// name is empty; other failures are returned wrapped.
func (f *Fetcher) Fetch(ctx context.Context, name string) (Attachment, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Attachment{}, ErrNoName
	}
	endpoint := f.baseURL + "/" + escapePath(name)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Attachment{}, err
	}
	req.Header.Set("Accept", "application/pdf")
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return Attachment{}, fmt.Errorf("attachments: get %s: %w", name, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return Attachment{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return Attachment{}, fmt.Errorf("attachments: get %s: status %d", name, resp.StatusCode)
	}
	if resp.ContentLength > f.maxBytes {
		return Attachment{}, fmt.Errorf("%w: %s is %d bytes", ErrTooLarge, name, resp.ContentLength)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return Attachment{}, fmt.Errorf("attachments: read %s: %w", name, err)
	}
	if int64(len(data)) > f.maxBytes {
		return Attachment{}, fmt.Errorf("%w: %s exceeds %d bytes", ErrTooLarge, name, f.maxBytes)
	}
	if !mimetype.Detect(data).Is("application/pdf") {
		return Attachment{}, fmt.Errorf("%w: %s", ErrNotPDF, name)
	}
	return Attachment{Name: name, Data: data}, nil
}

// Optional fetches name and folds every failure into a warning. The boolean
// reports whether an attachment was returned.
func (f *Fetcher) Optional(ctx context.Context, name string) (Attachment, string, bool) {
	att, err := f.Fetch(ctx, name)
	switch {
	case err == nil:
		f.metrics.AttachmentOutcome(observability.AttachmentAttached)
		return att, "", true
	case errors.Is(err, ErrNoName):
		f.metrics.AttachmentOutcome(observability.AttachmentSkipped)
		return Attachment{}, "", false
	case errors.Is(err, ErrNotFound):
		f.metrics.AttachmentOutcome(observability.AttachmentMissing)
		f.logger.Warn("attachment not found", slog.String("file", name))
		return Attachment{}, fmt.Sprintf("attachment %s not found", name), false
	case errors.Is(err, ErrNotPDF), errors.Is(err, ErrTooLarge):
		f.metrics.AttachmentOutcome(observability.AttachmentSkipped)
		f.logger.Warn("attachment rejected", slog.String("file", name), slog.Any("error", err))
		return Attachment{}, fmt.Sprintf("attachment %s skipped: %v", name, err), false
	case ctx.Err() != nil:
		// cancelled; the caller observes ctx.Err()
		return Attachment{}, "", false
	default:
		f.metrics.AttachmentOutcome(observability.AttachmentFailed)
		f.logger.Error("attachment fetch failed", slog.String("file", name), slog.Any("error", err))
		return Attachment{}, fmt.Sprintf("attachment %s could not be fetched", name), false
	}
}

// escapePath escapes each segment of name, keeping sub-directories intact.
func escapePath(name string) string {
	segments := strings.Split(strings.TrimLeft(name, "/"), "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return strings.Join(segments, "/")
}
