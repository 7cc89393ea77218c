// Package native renders report pages in-process with fpdf.
package native

import (
	"bytes"
	"context"
	"strconv"
	"strings"

	"github.com/go-pdf/fpdf"

	"github.com/odyssey-erp/formreports/internal/reports"
)

const (
	margin       = 10.0
	lineHeight   = 5.0
	bannerHeight = 25.0
	fontFamily   = "Helvetica"
)

type rgb struct{ r, g, b int }

var (
	white       = rgb{255, 255, 255}
	defaultBand = rgb{50, 52, 140}
	defaultText = rgb{50, 50, 50}
	gridColour  = rgb{200, 200, 200}
)

// Renderer implements reports.Renderer without an external service.
type Renderer struct{}

// NewRenderer constructs a Renderer.
func NewRenderer() *Renderer {
	return &Renderer{}
}

type page struct {
	pdf       *fpdf.Fpdf
	tr        func(string) string
	width     float64
	pageWidth float64
}

func newPage() *page {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(margin, margin, margin)
	pdf.SetAutoPageBreak(false, margin)
	pdf.SetCreator("formreports", true)
	w, _ := pdf.GetPageSize()
	return &page{
		pdf:       pdf,
		tr:        pdf.UnicodeTranslatorFromDescriptor(""),
		width:     w - 2*margin,
		pageWidth: w,
	}
}

func (p *page) output() ([]byte, error) {
	var buf bytes.Buffer
	if err := p.pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// banner fills the top of the page edge to edge, ignoring the side margins.
func (p *page) banner(title string, fill rgb) {
	p.pdf.SetFillColor(fill.r, fill.g, fill.b)
	p.pdf.Rect(0, 0, p.pageWidth, bannerHeight, "F")
	p.pdf.SetTextColor(white.r, white.g, white.b)
	p.pdf.SetFont(fontFamily, "B", 20)
	p.pdf.SetXY(0, 0)
	p.pdf.CellFormat(p.pageWidth, bannerHeight, p.tr(title), "", 0, "CM", false, 0, "")
	p.pdf.SetXY(margin, bannerHeight+5)
}

var (
	summaryWidths = []float64{15, 30, 0, 35}
	summaryAligns = []string{"C", "L", "L", "R"}
	summaryHeads  = []string{"S.No", "Date", "Particulars", "Amount"}
)

// RenderSummary draws the banner and the S.No/Date/Particulars/Amount grid,
// repeating the header row on every page.
func (r *Renderer) RenderSummary(ctx context.Context, summary reports.Summary) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return r.summary(summary).output()
}

// RenderDetail draws one consolidated detail page.
func (r *Renderer) RenderDetail(ctx context.Context, detail reports.Detail) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return r.detail(detail).output()
}

func (r *Renderer) summary(summary reports.Summary) *page {
	p := newPage()
	band := parseHex(summary.Banner, defaultBand)
	text := parseHex(summary.TextColour, defaultText)

	widths := append([]float64(nil), summaryWidths...)
	widths[2] = p.width - widths[0] - widths[1] - widths[3]

	header := func() {
		p.pdf.SetFont(fontFamily, "B", 12)
		p.pdf.SetFillColor(band.r, band.g, band.b)
		p.pdf.SetTextColor(white.r, white.g, white.b)
		p.pdf.SetDrawColor(gridColour.r, gridColour.g, gridColour.b)
		for i, head := range summaryHeads {
			p.pdf.CellFormat(widths[i], 8, head, "1", 0, "C", true, 0, "")
		}
		p.pdf.Ln(-1)
		p.pdf.SetFont(fontFamily, "", 10)
		p.pdf.SetTextColor(text.r, text.g, text.b)
	}

	p.pdf.AddPage()
	p.banner(summary.Title, band)
	header()
	_, pageHeight := p.pdf.GetPageSize()
	for _, row := range summary.Rows {
		cells := []string{strconv.Itoa(row.Serial), row.Date, row.Particulars, row.Amount}
		height := p.rowHeight(widths, cells)
		if p.pdf.GetY()+height > pageHeight-margin {
			p.pdf.AddPage()
			header()
		}
		p.row(widths, summaryAligns, cells, height)
	}
	return p
}

func (r *Renderer) detail(detail reports.Detail) *page {
	p := newPage()
	p.pdf.AddPage()
	p.banner(detail.Title, parseHex(detail.Banner, defaultBand))

	const labelWidth = 40.0
	const padding = 4.0
	valueWidth := p.width - labelWidth - 2*padding
	top := p.pdf.GetY()
	p.pdf.SetY(top + padding)
	p.pdf.SetTextColor(defaultText.r, defaultText.g, defaultText.b)
	for _, field := range detail.Fields {
		y := p.pdf.GetY()
		p.pdf.SetXY(margin+padding, y)
		p.pdf.SetFont(fontFamily, "B", 12)
		p.pdf.CellFormat(labelWidth, 7, p.tr(field.Label), "", 0, "L", false, 0, "")
		p.pdf.SetFont(fontFamily, "", 12)
		p.pdf.MultiCell(valueWidth, 7, p.tr(field.Value), "", "L", false)
		p.pdf.SetY(p.pdf.GetY() + 2)
	}
	p.pdf.SetDrawColor(0, 0, 0)
	p.pdf.Rect(margin, top, p.width, p.pdf.GetY()-top+padding-2, "D")
	return p
}

func (p *page) rowHeight(widths []float64, cells []string) float64 {
	lines := 1
	for i, cell := range cells {
		n := len(p.pdf.SplitText(p.tr(cell), widths[i]-2))
		if n > lines {
			lines = n
		}
	}
	return float64(lines)*lineHeight + 2
}

func (p *page) row(widths []float64, aligns, cells []string, height float64) {
	x, y := p.pdf.GetXY()
	for i, cell := range cells {
		p.pdf.Rect(x, y, widths[i], height, "D")
		p.pdf.SetXY(x+1, y+1)
		p.pdf.MultiCell(widths[i]-2, lineHeight, p.tr(cell), "", aligns[i], false)
		x += widths[i]
	}
	p.pdf.SetXY(margin, y+height)
}

func parseHex(v string, fallback rgb) rgb {
	v = strings.TrimPrefix(strings.TrimSpace(v), "#")
	if len(v) != 6 {
		return fallback
	}
	n, err := strconv.ParseUint(v, 16, 32)
	if err != nil {
		return fallback
	}
	return rgb{int(n >> 16 & 0xff), int(n >> 8 & 0xff), int(n & 0xff)}
}
