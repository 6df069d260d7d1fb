package report

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/reportpipe/api/schemas"
	"github.com/xkilldash9x/reportpipe/internal/results"
)

var renderStamp = time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

func sampleBundle() schemas.ScanBundle {
	return schemas.ScanBundle{
		Outcomes: map[schemas.ToolKind]schemas.ToolOutcome{
			schemas.ToolSAST: {
				Tool:   schemas.ToolSAST,
				Status: schemas.StatusCompleted,
				Findings: []schemas.Finding{
					{Tool: schemas.ToolSAST, Severity: schemas.SeverityHigh, Title: "B602 shell injection",
						Location: &schemas.Location{File: "app/views.py", Line: 42}},
					{Tool: schemas.ToolSAST, Severity: schemas.SeverityMedium, Title: "B105 hardcoded password"},
				},
			},
			schemas.ToolDeps: {Tool: schemas.ToolDeps, Status: schemas.StatusParseFailed, RawPath: "report/deps.txt"},
		},
		Tests: []schemas.TestResult{
			{Name: "tests/test_app.py::test_home", Outcome: schemas.TestPassed, Duration: 30 * time.Millisecond},
			{Name: "tests/test_app.py::test_login", Outcome: schemas.TestFailed},
		},
	}
}

func TestRenderProducesBothArtifacts(t *testing.T) {
	dir := t.TempDir()
	bundle := sampleBundle()
	summary := results.Summarize(bundle)

	r := NewRenderer(dir, "webapp", zaptest.NewLogger(t))
	artifacts, err := r.Render(summary, bundle, renderStamp)
	require.NoError(t, err)
	require.Len(t, artifacts, 2)

	assert.Equal(t, schemas.FormatHTML, artifacts[0].Format)
	assert.Equal(t, filepath.Join(dir, "report_20260314T092653Z.html"), artifacts[0].Path)
	assert.Equal(t, schemas.FormatStorage, artifacts[1].Format)
	assert.Equal(t, filepath.Join(dir, "report_20260314T092653Z.xhtml"), artifacts[1].Path)

	htmlDoc, err := os.ReadFile(artifacts[0].Path)
	require.NoError(t, err)
	storageDoc, err := os.ReadFile(artifacts[1].Path)
	require.NoError(t, err)

	// Both documents carry the same verdict and the same numbers.
	for _, doc := range []string{string(htmlDoc), string(storageDoc)} {
		assert.Contains(t, doc, "FAIL")
		assert.Contains(t, doc, "Unparseable tool reports")
		assert.Contains(t, doc, "50.0%")
	}
	assert.Contains(t, string(htmlDoc), "B602 shell injection")
	assert.Contains(t, string(htmlDoc), "app/views.py")
	assert.Contains(t, string(storageDoc), `ac:structured-macro`)
}

func TestRenderIsByteDeterministic(t *testing.T) {
	bundle := sampleBundle()
	summary := results.Summarize(bundle)

	render := func(dir string) (html, storage []byte) {
		r := NewRenderer(dir, "webapp", zaptest.NewLogger(t))
		artifacts, err := r.Render(summary, bundle, renderStamp)
		require.NoError(t, err)
		html, err = os.ReadFile(artifacts[0].Path)
		require.NoError(t, err)
		storage, err = os.ReadFile(artifacts[1].Path)
		require.NoError(t, err)
		return html, storage
	}

	html1, storage1 := render(t.TempDir())
	html2, storage2 := render(t.TempDir())

	assert.Equal(t, html1, html2, "HTML artifact must be byte-identical across reruns")
	assert.Equal(t, storage1, storage2, "storage artifact must be byte-identical across reruns")
}

func TestRenderEmptyBundle(t *testing.T) {
	var bundle schemas.ScanBundle
	summary := results.Summarize(bundle)

	r := NewRenderer(t.TempDir(), "webapp", zaptest.NewLogger(t))
	artifacts, err := r.Render(summary, bundle, renderStamp)
	require.NoError(t, err, "an all-NotRun bundle still renders")

	htmlDoc, err := os.ReadFile(artifacts[0].Path)
	require.NoError(t, err)
	assert.Contains(t, string(htmlDoc), "No scans executed")
	assert.Contains(t, string(htmlDoc), "PASS")
}

func TestRenderFailsOnUnwritableOutputDir(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("directory permissions are not enforced for root")
	}
	parent := t.TempDir()
	require.NoError(t, os.Chmod(parent, 0o555))
	t.Cleanup(func() { _ = os.Chmod(parent, 0o755) })

	r := NewRenderer(filepath.Join(parent, "out"), "webapp", zaptest.NewLogger(t))
	_, err := r.Render(schemas.Summary{}, schemas.ScanBundle{}, renderStamp)
	assert.Error(t, err, "an unwritable output directory is a fatal render failure")
}
