// Package api reads fiscal-year options, month options and forms from the
// backend HTTP API.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/odyssey-erp/formreports/internal/forms"
)

// Endpoints lists the backend paths used by the client.
type Endpoints struct {
	FiscalYears string
	Months      string
	ByPeriod    string
	DateFilter  string
}

// DefaultEndpoints mirrors the routes exposed by the forms backend.
var DefaultEndpoints = Endpoints{
	FiscalYears: "/fy_year",
	Months:      "/month",
	ByPeriod:    "/forms/filter",
	DateFilter:  "/date_filter",
}

// Client implements forms.Source over HTTP.
type Client struct {
	baseURL    string
	endpoints  Endpoints
	httpClient *http.Client
}

// NewClient constructs a client for the backend at baseURL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		endpoints:  DefaultEndpoints,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// WithEndpoints overrides the backend routes.
func (c *Client) WithEndpoints(e Endpoints) *Client {
	c.endpoints = e
	return c
}

// WithHTTPClient swaps the transport, mostly for tests.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	if hc != nil {
		c.httpClient = hc
	}
	return c
}

type fiscalYearItem struct {
	FiscalYear *forms.FiscalYear `json:"fy_year"`
}

type monthItem struct {
	Month *forms.Month `json:"month"`
}

// FiscalYears returns the fiscal-year options.
func (c *Client) FiscalYears(ctx context.Context) ([]forms.FiscalYear, error) {
	var items []fiscalYearItem
	if err := c.get(ctx, c.endpoints.FiscalYears, nil, &items); err != nil {
		return nil, err
	}
	out := make([]forms.FiscalYear, 0, len(items))
	for _, item := range items {
		if item.FiscalYear == nil {
			continue
		}
		out = append(out, *item.FiscalYear)
	}
	return out, nil
}

// Months returns the month options.
func (c *Client) Months(ctx context.Context) ([]forms.Month, error) {
	var items []monthItem
	if err := c.get(ctx, c.endpoints.Months, nil, &items); err != nil {
		return nil, err
	}
	out := make([]forms.Month, 0, len(items))
	for _, item := range items {
		if item.Month == nil {
			continue
		}
		out = append(out, *item.Month)
	}
	return out, nil
}

// ByPeriod returns the forms booked in the given fiscal year and month.
func (c *Client) ByPeriod(ctx context.Context, period forms.Period) ([]forms.Form, error) {
	q := url.Values{}
	q.Set("fy_year", period.FiscalYear)
	q.Set("month", period.Month)
	var out []forms.Form
	if err := c.get(ctx, c.endpoints.ByPeriod, q, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ByDateRange returns the forms dated within rng.
func (c *Client) ByDateRange(ctx context.Context, rng forms.DateRange) ([]forms.Form, error) {
	q := url.Values{}
	q.Set("from_date", rng.FromParam())
	q.Set("to_date", rng.ToParam())
	var out []forms.Form
	if err := c.get(ctx, c.endpoints.DateFilter, q, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, target any) error {
	if c.baseURL == "" {
		return fmt.Errorf("%w: api client not configured", forms.ErrUnavailable)
	}
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", forms.ErrUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return fmt.Errorf("%w: GET %s returned %d: %s", forms.ErrUnavailable, path, resp.StatusCode, strings.TrimSpace(string(data)))
	}
	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Errorf("forms api: decode %s: %w", path, err)
	}
	return nil
}
