package forms

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the wire format the backend expects for date filters.
const DateLayout = "02-01-2006"

// FiscalYear is a selectable fiscal year option.
type FiscalYear struct {
	ID   int64  `json:"id"`
	Name string `json:"fy_name"`
}

// Month is a selectable month option.
type Month struct {
	ID   int64  `json:"id"`
	Name string `json:"month_name"`
}

// HeadCategory is the top-level expense category of a form.
type HeadCategory struct {
	Name string `json:"head_cat_name"`
}

// SubCategory refines the head category.
type SubCategory struct {
	Name string `json:"sub_cat_name"`
}

// Department owns the expense.
type Department struct {
	FullName string `json:"dept_full_name"`
}

// Vehicle is the optional vehicle an expense is booked against.
type Vehicle struct {
	Name string `json:"vehicle_name"`
}

// Form is a single financial record as served by the backend.
type Form struct {
	ID          int64               `json:"id"`
	Date        string              `json:"date"`
	Particulars string              `json:"particulars"`
	Amount      decimal.NullDecimal `json:"amount"`
	HeadCat     *HeadCategory       `json:"head_cat"`
	SubCat      *SubCategory        `json:"sub_cat"`
	Department  *Department         `json:"departments"`
	Vehicle     *Vehicle            `json:"vehicles"`
	Files       string              `json:"files"`
}

// AttachmentName returns the attachment file name or an empty string when the
// record carries none.
func (f Form) AttachmentName() string {
	name := strings.TrimSpace(f.Files)
	switch strings.ToLower(name) {
	case "null", "undefined":
		return ""
	}
	return name
}

// Period selects records by fiscal year and month names.
type Period struct {
	FiscalYear string `json:"fy_year"`
	Month      string `json:"month"`
}

// Key returns a stable identifier for the period.
func (p Period) Key() string {
	return strings.TrimSpace(p.FiscalYear) + "|" + strings.TrimSpace(p.Month)
}

// DateRange bounds a date filter. Zero values mean "unbounded" and are sent
// as empty strings.
type DateRange struct {
	From time.Time
	To   time.Time
}

// FromParam formats the lower bound for the backend.
func (r DateRange) FromParam() string {
	return formatDateParam(r.From)
}

// ToParam formats the upper bound for the backend.
func (r DateRange) ToParam() string {
	return formatDateParam(r.To)
}

// Validate rejects inverted ranges.
func (r DateRange) Validate() error {
	if !r.From.IsZero() && !r.To.IsZero() && r.From.After(r.To) {
		return ErrInvertedRange
	}
	return nil
}

func formatDateParam(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(DateLayout)
}

// Source provides option lists and records. Implementations talk to the
// backend API or directly to its database.
type Source interface {
	FiscalYears(ctx context.Context) ([]FiscalYear, error)
	Months(ctx context.Context) ([]Month, error)
	ByPeriod(ctx context.Context, period Period) ([]Form, error)
	ByDateRange(ctx context.Context, rng DateRange) ([]Form, error)
}

var (
	// ErrInvertedRange is returned when the lower bound is after the upper bound.
	ErrInvertedRange = errors.New("forms: from date after to date")
	// ErrUnavailable signals the backend could not be reached or answered badly.
	ErrUnavailable = errors.New("forms: backend unavailable")
)
