// Package reports assembles the summary and consolidated PDF reports and the
// date-range listing over forms.
package reports

import (
	"errors"
	"time"

	"github.com/odyssey-erp/formreports/internal/forms"
)

// Kind identifies a report flavour.
type Kind string

const (
	KindSummary      Kind = "summary"
	KindConsolidated Kind = "consolidated"
	KindFilter       Kind = "filter"
)

const (
	// SummaryFilename is the download name of the summary report.
	SummaryFilename = "summary-report.pdf"
	// ConsolidatedFilename is the download name of the consolidated report.
	ConsolidatedFilename = "consolidated-report.pdf"

	summaryTitle   = "SUMMARY REPORT"
	detailTitle    = "CONSOLIDATE REPORT %d"
	missingValue   = "N/A"
	bannerColour   = "#32348c"
	bodyTextColour = "#323232"
)

var (
	// ErrIncompletePeriod is returned when fiscal year or month is blank.
	ErrIncompletePeriod = errors.New("reports: fiscal year and month are required")
	// ErrRendererMissing is returned when the service is not wired.
	ErrRendererMissing = errors.New("reports: renderer not configured")
)

// Row is one line of the summary table.
type Row struct {
	Serial      int
	Date        string
	Particulars string
	Amount      string
}

// Summary is the data behind the summary PDF.
type Summary struct {
	Title       string
	Period      forms.Period
	Rows        []Row
	Banner      string
	TextColour  string
	GeneratedAt time.Time
}

// Field is a label/value pair on a detail page.
type Field struct {
	Label string
	Value string
}

// Detail is the data behind one consolidated detail page.
type Detail struct {
	Index      int
	Title      string
	Fields     []Field
	Attachment string
	Banner     string
}

// Result is a produced document.
type Result struct {
	Kind     Kind
	Filename string
	PDF      []byte
	Records  int
	Parts    int
	Warnings []string
}

// Listing is the date-range filter outcome.
type Listing struct {
	Range forms.DateRange
	Rows  []Row
}

// Options holds the selector lists for the report screen.
type Options struct {
	FiscalYears []forms.FiscalYear `json:"fy_years"`
	Months      []forms.Month      `json:"months"`
}
