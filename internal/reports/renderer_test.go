package reports

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/formreports/internal/forms"
)

type captureClient struct {
	html []string
}

func (c *captureClient) RenderHTML(ctx context.Context, html string) ([]byte, error) {
	c.html = append(c.html, html)
	return []byte("%PDF-" + string(rune('0'+len(c.html)))), nil
}

func TestHTMLRendererSummary(t *testing.T) {
	client := &captureClient{}
	renderer, err := NewHTMLRenderer(client)
	require.NoError(t, err)

	summary := NewBuilder(nil).Summary(forms.Period{FiscalYear: "2024-25", Month: "April"}, sampleForms())
	pdf, err := renderer.RenderSummary(context.Background(), summary)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1", string(pdf))

	html := client.html[0]
	assert.Contains(t, html, "SUMMARY REPORT")
	assert.Contains(t, html, "background: #32348c")
	assert.Contains(t, html, "<th class=\"sno\">S.No</th>")
	assert.Contains(t, html, "Diesel")
	assert.Contains(t, html, "1,500.50")

	// the band runs edge to edge; only the table keeps side margins
	assert.Contains(t, html, "@page { size: A4; margin: 10mm 0; }")
	assert.Contains(t, html, "@page :first { margin-top: 0; }")
	assert.Contains(t, html, "height: 25mm")
	assert.Contains(t, html, ".content { margin: 0 10mm; }")
}

func TestHTMLRendererDetailEscapes(t *testing.T) {
	client := &captureClient{}
	renderer, err := NewHTMLRenderer(client)
	require.NoError(t, err)

	rec := forms.Form{Particulars: "<script>alert(1)</script>"}
	_, err = renderer.RenderDetail(context.Background(), NewBuilder(nil).Detail(3, rec))
	require.NoError(t, err)

	html := client.html[0]
	assert.Contains(t, html, "CONSOLIDATE REPORT 3")
	assert.Contains(t, html, "Vehicles:")
	assert.Contains(t, html, "color: #323232")
	assert.Contains(t, html, "@page :first { margin-top: 0; }")
	assert.NotContains(t, html, "<script>")
}

func TestNewHTMLRendererRequiresClient(t *testing.T) {
	_, err := NewHTMLRenderer(nil)
	require.Error(t, err)
}
