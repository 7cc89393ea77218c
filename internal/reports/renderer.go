package reports

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"time"

	"github.com/odyssey-erp/formreports/web"
)

// Renderer produces the PDF pages of a report.
type Renderer interface {
	RenderSummary(ctx context.Context, summary Summary) ([]byte, error)
	RenderDetail(ctx context.Context, detail Detail) ([]byte, error)
}

// Merger concatenates PDF documents in order.
type Merger interface {
	Merge(ctx context.Context, parts [][]byte) ([]byte, error)
}

// PDFClient exposes the subset of the Gotenberg client used by HTMLRenderer.
type PDFClient interface {
	RenderHTML(ctx context.Context, html string) ([]byte, error)
}

// HTMLRenderer executes the report templates and converts them to PDF.
type HTMLRenderer struct {
	tpl    *template.Template
	client PDFClient
}

// NewHTMLRenderer parses the report PDF templates and wires the PDF client.
func NewHTMLRenderer(client PDFClient) (*HTMLRenderer, error) {
	if client == nil {
		return nil, fmt.Errorf("reports renderer: pdf client required")
	}
	funcMap := template.FuncMap{
		"formatTimestamp": func(t time.Time) string {
			if t.IsZero() {
				return ""
			}
			return t.Format("02-01-2006 15:04")
		},
		"safeCSS": func(v string) template.CSS {
			return template.CSS(v)
		},
	}
	tpl, err := template.New("reports").Funcs(funcMap).ParseFS(web.Templates,
		"templates/reports/summary_pdf.html",
		"templates/reports/detail_pdf.html",
	)
	if err != nil {
		return nil, err
	}
	return &HTMLRenderer{tpl: tpl, client: client}, nil
}

// RenderSummary renders the summary table.
func (r *HTMLRenderer) RenderSummary(ctx context.Context, summary Summary) ([]byte, error) {
	return r.render(ctx, "summary_pdf.html", summary)
}

// RenderDetail renders one detail page.
func (r *HTMLRenderer) RenderDetail(ctx context.Context, detail Detail) ([]byte, error) {
	return r.render(ctx, "detail_pdf.html", detail)
}

// HTML executes a template without converting it, for previews and tests.
func (r *HTMLRenderer) HTML(name string, data any) (string, error) {
	if r == nil || r.tpl == nil {
		return "", ErrRendererMissing
	}
	buf := &bytes.Buffer{}
	if err := r.tpl.ExecuteTemplate(buf, name, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func (r *HTMLRenderer) render(ctx context.Context, name string, data any) ([]byte, error) {
	html, err := r.HTML(name, data)
	if err != nil {
		return nil, err
	}
	return r.client.RenderHTML(ctx, html)
}
