// Package cli implements the formctl subcommands.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/odyssey-erp/formreports/internal/forms"
	"github.com/odyssey-erp/formreports/internal/reports"
)

// ReportService is the report behaviour formctl drives.
type ReportService interface {
	Options(ctx context.Context) (reports.Options, error)
	Summary(ctx context.Context, period forms.Period) (reports.Result, error)
	Consolidated(ctx context.Context, period forms.Period) (reports.Result, error)
	Filter(ctx context.Context, rng forms.DateRange) (reports.Listing, error)
}

// ReportsCLI runs report generation from the command line.
type ReportsCLI struct {
	service ReportService
}

// NewReportsCLI constructs the helper.
func NewReportsCLI(service ReportService) *ReportsCLI {
	return &ReportsCLI{service: service}
}

// GenerateOptions are the flags of the summary and consolidate commands.
type GenerateOptions struct {
	FiscalYear string
	Month      string
	// Output is the destination file; "-" writes the PDF to Stdout and an
	// empty value uses the report's download name.
	Output string
	Stdout io.Writer
	Stderr io.Writer
}

// FilterOptions are the flags of the filter command. Dates use YYYY-MM-DD.
type FilterOptions struct {
	From       string
	To         string
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

// SummaryCommand writes the summary PDF.
func (c *ReportsCLI) SummaryCommand(ctx context.Context, opts GenerateOptions) int {
	return c.generate(ctx, "summary", opts, c.service.Summary)
}

// ConsolidateCommand writes the consolidated PDF.
func (c *ReportsCLI) ConsolidateCommand(ctx context.Context, opts GenerateOptions) int {
	return c.generate(ctx, "consolidate", opts, c.service.Consolidated)
}

func (c *ReportsCLI) generate(ctx context.Context, name string, opts GenerateOptions, produce func(context.Context, forms.Period) (reports.Result, error)) int {
	stdout, stderr := streams(opts.Stdout, opts.Stderr)
	period := forms.Period{FiscalYear: strings.TrimSpace(opts.FiscalYear), Month: strings.TrimSpace(opts.Month)}
	if period.FiscalYear == "" || period.Month == "" {
		_, _ = fmt.Fprintf(stderr, "%s: --fy-year and --month are required\n", name)
		return 2
	}
	res, err := produce(ctx, period)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "%s: %v\n", name, err)
		return 1
	}
	for _, warning := range res.Warnings {
		_, _ = fmt.Fprintf(stderr, "warning: %s\n", warning)
	}

	if opts.Output == "-" {
		if _, err := stdout.Write(res.PDF); err != nil {
			_, _ = fmt.Fprintf(stderr, "%s: write: %v\n", name, err)
			return 1
		}
		return 0
	}
	path := opts.Output
	if path == "" {
		path = res.Filename
	}
	if err := os.WriteFile(path, res.PDF, 0o644); err != nil {
		_, _ = fmt.Fprintf(stderr, "%s: write %s: %v\n", name, path, err)
		return 1
	}
	_, _ = fmt.Fprintf(stdout, "wrote %s (%d records, %d parts, %d bytes)\n", path, res.Records, res.Parts, len(res.PDF))
	return 0
}

// FilterCommand prints the forms dated within the range.
func (c *ReportsCLI) FilterCommand(ctx context.Context, opts FilterOptions) int {
	stdout, stderr := streams(opts.Stdout, opts.Stderr)
	var rng forms.DateRange
	for _, bound := range []struct {
		flag  string
		value string
		dst   *time.Time
	}{
		{"--from", opts.From, &rng.From},
		{"--to", opts.To, &rng.To},
	} {
		if strings.TrimSpace(bound.value) == "" {
			continue
		}
		t, err := time.Parse("2006-01-02", strings.TrimSpace(bound.value))
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "filter: invalid %s %q (expected YYYY-MM-DD)\n", bound.flag, bound.value)
			return 2
		}
		*bound.dst = t
	}

	listing, err := c.service.Filter(ctx, rng)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "filter: %v\n", err)
		return 1
	}
	if opts.JSONOutput {
		if err := json.NewEncoder(stdout).Encode(listing.Rows); err != nil {
			_, _ = fmt.Fprintf(stderr, "filter: encode json: %v\n", err)
			return 1
		}
		return 0
	}
	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "S.No\tDate\tParticulars\tAmount")
	for _, row := range listing.Rows {
		_, _ = fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", row.Serial, row.Date, row.Particulars, row.Amount)
	}
	_ = tw.Flush()
	return 0
}

// OptionsCommand prints the fiscal years and months known to the backend.
func (c *ReportsCLI) OptionsCommand(ctx context.Context, jsonOutput bool, stdout, stderr io.Writer) int {
	stdout, stderr = streams(stdout, stderr)
	opts, err := c.service.Options(ctx)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "options: %v\n", err)
		if len(opts.FiscalYears) == 0 && len(opts.Months) == 0 {
			return 1
		}
	}
	if jsonOutput {
		if err := json.NewEncoder(stdout).Encode(opts); err != nil {
			_, _ = fmt.Fprintf(stderr, "options: encode json: %v\n", err)
			return 1
		}
		return 0
	}
	years := make([]string, len(opts.FiscalYears))
	for i, fy := range opts.FiscalYears {
		years[i] = fy.Name
	}
	months := make([]string, len(opts.Months))
	for i, m := range opts.Months {
		months[i] = m.Name
	}
	_, _ = fmt.Fprintf(stdout, "Fiscal years: %s\n", strings.Join(years, ", "))
	_, _ = fmt.Fprintf(stdout, "Months: %s\n", strings.Join(months, ", "))
	return 0
}

func streams(stdout, stderr io.Writer) (io.Writer, io.Writer) {
	if stdout == nil {
		stdout = os.Stdout
	}
	if stderr == nil {
		stderr = os.Stderr
	}
	return stdout, stderr
}
