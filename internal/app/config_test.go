package app

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("CSRF_SECRET", "csrf-secret")
}

func TestLoadConfigDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.AppAddr)
	assert.Equal(t, 120*time.Second, cfg.AppWriteTimeout)
	assert.Equal(t, EngineGotenberg, cfg.RenderEngine)
	assert.Equal(t, SourceAPI, cfg.FormsSource)
	assert.Equal(t, "http://localhost:1111/merged_pdfs", cfg.AttachmentBaseURL)
	assert.Equal(t, int64(25<<20), cfg.AttachmentMaxBytes)
	assert.Equal(t, "en-IN", cfg.ReportLocale)
	assert.Equal(t, 72*time.Hour, cfg.PackTTL)
	assert.False(t, cfg.IsProduction())
}

func TestLoadConfigRejectsUnknownChoices(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("RENDER_ENGINE", "wkhtmltopdf")
	_, err := LoadConfig()
	require.Error(t, err)

	t.Setenv("RENDER_ENGINE", EngineNative)
	t.Setenv("FORMS_SOURCE", "csv")
	_, err = LoadConfig()
	require.Error(t, err)
}

func TestLoadConfigRequiresCSRFSecret(t *testing.T) {
	t.Setenv("CSRF_SECRET", "")
	_, err := LoadConfig()
	require.Error(t, err)
}

func TestLoggerFormat(t *testing.T) {
	var buf bytes.Buffer
	newLogger(&Config{LogFormat: "json"}, &buf).Info("hello")
	assert.Contains(t, buf.String(), `"msg":"hello"`)

	buf.Reset()
	newLogger(&Config{LogFormat: "pretty"}, &buf).Info("hello")
	assert.Contains(t, buf.String(), "msg=hello")
}

func TestBuildReportsNativeEngine(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("RENDER_ENGINE", EngineNative)
	cfg, err := LoadConfig()
	require.NoError(t, err)

	stack, err := BuildReports(context.Background(), cfg, nil, nil, nil)
	require.NoError(t, err)
	defer stack.Close()
	assert.NotNil(t, stack.Service)
	assert.NotNil(t, stack.Source)
	assert.NotNil(t, stack.Gotenberg)
}

func TestLoadToolConfigSkipsSecrets(t *testing.T) {
	t.Setenv("CSRF_SECRET", "")
	t.Setenv("FORMS_SOURCE", SourcePostgres)

	cfg, err := LoadToolConfig()
	require.NoError(t, err)
	assert.Equal(t, SourcePostgres, cfg.FormsSource)
}
