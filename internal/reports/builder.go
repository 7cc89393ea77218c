package reports

import (
	"fmt"
	"strings"
	"time"

	"github.com/odyssey-erp/formreports/internal/forms"
)

// Builder turns forms into report data.
type Builder struct {
	amounts *AmountFormatter
	now     func() time.Time
}

// NewBuilder constructs a Builder.
func NewBuilder(amounts *AmountFormatter) *Builder {
	if amounts == nil {
		amounts = NewAmountFormatter("en")
	}
	return &Builder{amounts: amounts, now: time.Now}
}

// WithNow overrides the clock for deterministic tests.
func (b *Builder) WithNow(now func() time.Time) {
	if now != nil {
		b.now = now
	}
}

// Summary builds the summary table. S.No is the 1-based position.
func (b *Builder) Summary(period forms.Period, records []forms.Form) Summary {
	return Summary{
		Title:       summaryTitle,
		Period:      period,
		Rows:        b.Rows(records),
		Banner:      bannerColour,
		TextColour:  bodyTextColour,
		GeneratedAt: b.now(),
	}
}

// Rows converts records into table rows.
func (b *Builder) Rows(records []forms.Form) []Row {
	rows := make([]Row, 0, len(records))
	for i, rec := range records {
		amount, _ := b.amounts.Format(rec.Amount)
		rows = append(rows, Row{
			Serial:      i + 1,
			Date:        rec.Date,
			Particulars: rec.Particulars,
			Amount:      amount,
		})
	}
	return rows
}

// Detail builds the detail page for the record at 1-based position index.
func (b *Builder) Detail(index int, rec forms.Form) Detail {
	amount, ok := b.amounts.Format(rec.Amount)
	if !ok {
		amount = missingValue
	}
	var headCat, subCat, dept, vehicle string
	if rec.HeadCat != nil {
		headCat = rec.HeadCat.Name
	}
	if rec.SubCat != nil {
		subCat = rec.SubCat.Name
	}
	if rec.Department != nil {
		dept = rec.Department.FullName
	}
	if rec.Vehicle != nil {
		vehicle = rec.Vehicle.Name
	}
	return Detail{
		Index: index,
		Title: fmt.Sprintf(detailTitle, index),
		Fields: []Field{
			{Label: "Particulars:", Value: orMissing(rec.Particulars)},
			{Label: "Amount:", Value: amount},
			{Label: "Head Cat:", Value: orMissing(headCat)},
			{Label: "Sub Cat:", Value: orMissing(subCat)},
			{Label: "Departments:", Value: orMissing(dept)},
			{Label: "Vehicles:", Value: orMissing(vehicle)},
		},
		Attachment: rec.AttachmentName(),
		Banner:     bannerColour,
	}
}

func orMissing(v string) string {
	if strings.TrimSpace(v) == "" {
		return missingValue
	}
	return v
}
