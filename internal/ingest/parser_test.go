package ingest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/reportpipe/api/schemas"
)

func writeArtifact(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const sastFixture = `<html><body>
<h1>Static Analysis Report</h1>
<table id="issues">
  <tr><th>Severity</th><th>Issue</th><th>Location</th><th>Details</th></tr>
  <tr class="issue"><td>HIGH</td><td>B602 subprocess_popen_with_shell_equals_true</td><td>app/views.py:42</td><td>shell=True detected</td></tr>
  <tr class="issue"><td>MEDIUM</td><td>B105 hardcoded_password_string</td><td>app/config.py:7</td><td>possible hardcoded password</td></tr>
  <tr class="issue"><td>sketchy</td><td>B000 custom_rule</td><td>app/main.py:1</td><td>vendor extension</td></tr>
</table>
</body></html>`

func TestSASTParser(t *testing.T) {
	p := NewSASTParser(Options{})

	t.Run("missing artifact is NotRun", func(t *testing.T) {
		o := p.Parse(filepath.Join(t.TempDir(), "nope.html"))
		assert.Equal(t, schemas.StatusNotRun, o.Status)
		assert.Empty(t, o.Findings)
	})

	t.Run("empty configured path is NotRun", func(t *testing.T) {
		o := p.Parse("")
		assert.Equal(t, schemas.StatusNotRun, o.Status)
	})

	t.Run("artifact without issues marker is ParseFailed", func(t *testing.T) {
		path := writeArtifact(t, "bandit.html", "<html><body><p>nothing here</p></body></html>")
		o := p.Parse(path)
		assert.Equal(t, schemas.StatusParseFailed, o.Status)
		assert.Empty(t, o.Findings)
		assert.Equal(t, path, o.RawPath, "raw path must survive for manual inspection")
	})

	t.Run("parses issues in source order with mapped severities", func(t *testing.T) {
		path := writeArtifact(t, "bandit.html", sastFixture)
		o := p.Parse(path)

		require.Equal(t, schemas.StatusCompleted, o.Status)
		require.Len(t, o.Findings, 3)

		assert.Equal(t, schemas.SeverityHigh, o.Findings[0].Severity)
		assert.Equal(t, "B602 subprocess_popen_with_shell_equals_true", o.Findings[0].Title)
		require.NotNil(t, o.Findings[0].Location)
		assert.Equal(t, "app/views.py", o.Findings[0].Location.File)
		assert.Equal(t, 42, o.Findings[0].Location.Line)

		assert.Equal(t, schemas.SeverityMedium, o.Findings[1].Severity)
		assert.Empty(t, o.Findings[1].Note)

		// Unknown vocabulary falls back to the default band with a note.
		assert.Equal(t, schemas.SeverityMedium, o.Findings[2].Severity)
		assert.NotEmpty(t, o.Findings[2].Note)
	})

	t.Run("unknown band is configurable", func(t *testing.T) {
		path := writeArtifact(t, "bandit.html", sastFixture)
		o := NewSASTParser(Options{UnknownBand: schemas.SeverityLow}).Parse(path)
		require.Len(t, o.Findings, 3)
		assert.Equal(t, schemas.SeverityLow, o.Findings[2].Severity)
	})

	t.Run("empty issues section is a clean completed scan", func(t *testing.T) {
		path := writeArtifact(t, "bandit.html", `<html><table id="issues"><tr><th>Severity</th></tr></table></html>`)
		o := p.Parse(path)
		assert.Equal(t, schemas.StatusCompleted, o.Status)
		assert.Empty(t, o.Findings)
	})
}

const depsFixture = `Package | Installed | Affected | Advisory | Severity
--------+-----------+----------+----------+---------
flask   | 0.12      | <1.0     | CVE-2018-1000656 | high
pyyaml  | 3.12      | <5.4     | CVE-2020-14343   |
requests| 2.19      | <2.20    | CVE-2018-18074   | moderate
`

func TestDepsParser(t *testing.T) {
	p := NewDepsParser(Options{})

	t.Run("missing artifact is NotRun", func(t *testing.T) {
		o := p.Parse("")
		assert.Equal(t, schemas.StatusNotRun, o.Status)
	})

	t.Run("empty file is a clean scan", func(t *testing.T) {
		path := writeArtifact(t, "deps.txt", "\n\n")
		o := p.Parse(path)
		assert.Equal(t, schemas.StatusCompleted, o.Status)
		assert.Empty(t, o.Findings)
	})

	t.Run("free text without delimited rows is ParseFailed", func(t *testing.T) {
		path := writeArtifact(t, "deps.txt", "scan did not finish\nsee logs\n")
		o := p.Parse(path)
		assert.Equal(t, schemas.StatusParseFailed, o.Status)
	})

	t.Run("parses delimited rows, header and rulers skipped", func(t *testing.T) {
		path := writeArtifact(t, "deps.txt", depsFixture)
		o := p.Parse(path)

		require.Equal(t, schemas.StatusCompleted, o.Status)
		require.Len(t, o.Findings, 3)

		assert.Equal(t, schemas.SeverityHigh, o.Findings[0].Severity)
		assert.Contains(t, o.Findings[0].Title, "flask 0.12")
		assert.Equal(t, "CVE-2018-1000656", o.Findings[0].Description)
		assert.Empty(t, o.Findings[0].Note)

		// Missing severity column: default band, flagged.
		assert.Equal(t, schemas.SeverityMedium, o.Findings[1].Severity)
		assert.NotEmpty(t, o.Findings[1].Note)

		// "moderate" resolves through the tool table.
		assert.Equal(t, schemas.SeverityMedium, o.Findings[2].Severity)
		assert.Empty(t, o.Findings[2].Note)
	})
}

const imageFixture = `<html><body>
<table>
  <caption>webapp:latest (debian 12)</caption>
  <tr><th>Vulnerability ID</th><th>Package</th><th>Severity</th><th>Title</th></tr>
  <tr><td>CVE-2023-1111</td><td>openssl</td><td>CRITICAL</td><td>buffer overflow</td></tr>
  <tr><td>CVE-2023-2222</td><td>zlib</td><td>negligible</td><td>minor issue</td></tr>
</table>
</body></html>`

func TestImageParser(t *testing.T) {
	p := NewImageParser(Options{})

	t.Run("missing artifact is NotRun", func(t *testing.T) {
		o := p.Parse("")
		assert.Equal(t, schemas.StatusNotRun, o.Status)
	})

	t.Run("no severity table is ParseFailed", func(t *testing.T) {
		path := writeArtifact(t, "trivy.html", `<html><table><tr><th>Name</th></tr><tr><td>x</td></tr></table></html>`)
		o := p.Parse(path)
		assert.Equal(t, schemas.StatusParseFailed, o.Status)
	})

	t.Run("parses vulnerability rows with target location", func(t *testing.T) {
		path := writeArtifact(t, "trivy.html", imageFixture)
		o := p.Parse(path)

		require.Equal(t, schemas.StatusCompleted, o.Status)
		require.Len(t, o.Findings, 2)

		assert.Equal(t, schemas.SeverityCritical, o.Findings[0].Severity)
		assert.Equal(t, "CVE-2023-1111", o.Findings[0].Title)
		assert.Contains(t, o.Findings[0].Description, "openssl")
		require.NotNil(t, o.Findings[0].Location)
		assert.Equal(t, "webapp:latest (debian 12)", o.Findings[0].Location.ImageLayer)

		assert.Equal(t, schemas.SeverityInfo, o.Findings[1].Severity)
	})
}

const dastFixture = `<html><body>
<table class="alerts">
  <tr><th>Risk</th><th>Alert</th><th>URL</th></tr>
  <tr><td>High</td><td>SQL Injection</td><td>http://demo/login</td></tr>
  <tr><td>Medium</td><td>X-Content-Type-Options Missing</td><td>http://demo/</td></tr>
  <tr><td>Informational</td><td>Comment in HTML</td><td>http://demo/about</td></tr>
</table>
</body></html>`

func TestDASTParser(t *testing.T) {
	p := NewDASTParser(Options{})

	t.Run("missing artifact is NotRun", func(t *testing.T) {
		o := p.Parse("")
		assert.Equal(t, schemas.StatusNotRun, o.Status)
	})

	t.Run("no alerts marker is ParseFailed", func(t *testing.T) {
		path := writeArtifact(t, "zap.html", "<html><body>scan aborted</body></html>")
		o := p.Parse(path)
		assert.Equal(t, schemas.StatusParseFailed, o.Status)
	})

	t.Run("parses alerts with mapped risks", func(t *testing.T) {
		path := writeArtifact(t, "zap.html", dastFixture)
		o := p.Parse(path)

		require.Equal(t, schemas.StatusCompleted, o.Status)
		require.Len(t, o.Findings, 3)
		assert.Equal(t, schemas.SeverityHigh, o.Findings[0].Severity)
		assert.Equal(t, "SQL Injection", o.Findings[0].Title)
		assert.Equal(t, "http://demo/login", o.Findings[0].Description)
		assert.Equal(t, schemas.SeverityInfo, o.Findings[2].Severity)
	})
}

func TestFindingParsersCoverEveryFindingKind(t *testing.T) {
	parsers := FindingParsers(Options{})
	kinds := map[schemas.ToolKind]bool{}
	for _, p := range parsers {
		kinds[p.Kind()] = true
	}
	// Every kind except the test runner produces findings.
	for _, kind := range schemas.AllToolKinds() {
		if kind == schemas.ToolTests {
			continue
		}
		assert.True(t, kinds[kind], "missing parser for %s", kind)
	}
}
