package view

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/formreports/internal/reports"
	"github.com/odyssey-erp/formreports/internal/shared"
)

func TestNewEngine(t *testing.T) {
	engine, err := NewEngine()
	assert.NoError(t, err, "Templates should parse without error")
	assert.NotNil(t, engine)
}

func TestRenderFlashCarriesAutoHide(t *testing.T) {
	engine, err := NewEngine()
	require.NoError(t, err)

	rr := httptest.NewRecorder()
	err = engine.Render(rr, http.StatusOK, "pages/pack.html", TemplateData{
		Title: "Consolidated pack",
		Flash: &shared.FlashMessage{Kind: shared.FlashSuccess, Message: "Queued"},
		Data:  map[string]any{"Pack": reports.Pack{ID: "abc", Status: reports.PackPending}},
	})
	require.NoError(t, err)
	body := rr.Body.String()
	assert.Contains(t, body, `data-autohide="3000"`)
	assert.Contains(t, body, "Queued")
}

func TestRenderUnknownTemplateWritesNothing(t *testing.T) {
	engine, err := NewEngine()
	require.NoError(t, err)

	rr := httptest.NewRecorder()
	require.Error(t, engine.Render(rr, http.StatusOK, "pages/missing.html", TemplateData{}))
	assert.Empty(t, rr.Body.String())
}
