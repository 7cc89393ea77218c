package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/odyssey-erp/formreports/internal/app"
	_ "github.com/odyssey-erp/formreports/testing"
)

func TestMainReturnsInTestMode(t *testing.T) {
	app.RefreshTestMode()
	assert.True(t, app.InTestMode())
	assert.NotPanics(t, main)
}

func TestRootCommandRegistersSubcommands(t *testing.T) {
	root := newRootCommand()
	names := make([]string, 0, len(root.Commands()))
	for _, cmd := range root.Commands() {
		names = append(names, cmd.Name())
	}
	assert.Subset(t, names, []string{"summary", "consolidate", "filter", "options", "enqueue", "queue"})

	summary, _, err := root.Find([]string{"summary"})
	assert.NoError(t, err)
	assert.NotNil(t, summary.Flags().Lookup("fy-year"))
	assert.NotNil(t, summary.Flags().Lookup("output"))
}

func TestExitCodes(t *testing.T) {
	assert.NoError(t, exit(0))
	err := exit(2)
	assert.Equal(t, exitError(2), err)
	assert.Equal(t, "exit status 2", err.Error())
}

func TestRunReportsUsageErrors(t *testing.T) {
	cases := []struct {
		name string
		args []string
		want []string
	}{
		{"unknown flag", []string{"summary", "--bogus"}, []string{"unknown flag: --bogus", "formctl summary --help"}},
		{"unknown command", []string{"bogus"}, []string{`unknown command "bogus"`, "formctl --help"}},
		{"stray argument", []string{"options", "extra"}, []string{`unknown command "extra"`, "formctl options --help"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			code := run(context.Background(), tc.args, &stdout, &stderr)
			assert.Equal(t, 2, code)
			for _, want := range tc.want {
				assert.Contains(t, stderr.String(), want)
			}
		})
	}
}

func TestRunReportsConfigErrors(t *testing.T) {
	t.Setenv("RENDER_ENGINE", "weird")

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"summary", "--fy-year", "2023-24", "--month", "April"}, &stdout, &stderr)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), `formctl: load config: unknown render engine "weird"`)
	assert.Empty(t, stdout.String())
}

func TestRunWithoutArgumentsPrintsHelp(t *testing.T) {
	var stdout, stderr bytes.Buffer
	assert.Equal(t, 0, run(context.Background(), nil, &stdout, &stderr))
	assert.Contains(t, stdout.String(), "formctl produces the summary and consolidated PDFs")
	assert.Empty(t, stderr.String())
}
