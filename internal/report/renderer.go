// Package report renders a summarized ScanBundle into the run's two
// artifacts: a print-styled HTML document for attachment and a Confluence
// storage-format document for wiki embedding. Both are produced from the
// same prepared view so their numbers can never drift apart.
package report

import (
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/reportpipe/api/schemas"
)

// Renderer writes the run artifacts into the output directory with
// deterministic, timestamp-derived file names.
type Renderer struct {
	outputDir string
	project   string
	logger    *zap.Logger
}

func NewRenderer(outputDir, project string, logger *zap.Logger) *Renderer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Renderer{outputDir: outputDir, project: project, logger: logger.Named("render")}
}

// Render produces both artifacts. Any failure here is fatal to the run:
// a report that cannot be written is the one error this pipeline does not
// absorb.
func (r *Renderer) Render(summary schemas.Summary, bundle schemas.ScanBundle, generatedAt time.Time) ([]schemas.Artifact, error) {
	if err := os.MkdirAll(r.outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output directory %q: %w", r.outputDir, err)
	}

	view := buildView(r.project, summary, bundle, generatedAt)
	stamp := generatedAt.UTC().Format("20060102T150405Z")

	artifacts := make([]schemas.Artifact, 0, 2)
	for _, spec := range []struct {
		format schemas.ArtifactFormat
		name   string
		tmpl   *template.Template
	}{
		{schemas.FormatHTML, fmt.Sprintf("report_%s.html", stamp), htmlTmpl},
		{schemas.FormatStorage, fmt.Sprintf("report_%s.xhtml", stamp), storageTmpl},
	} {
		path := filepath.Join(r.outputDir, spec.name)
		if err := writeTemplate(path, spec.tmpl, view); err != nil {
			return nil, fmt.Errorf("rendering %s artifact: %w", spec.format, err)
		}
		r.logger.Info("Rendered artifact", zap.String("format", string(spec.format)), zap.String("path", path))
		artifacts = append(artifacts, schemas.Artifact{Format: spec.format, Path: path})
	}

	return artifacts, nil
}

func writeTemplate(path string, tmpl *template.Template, view reportView) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := tmpl.Execute(f, view); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// -- View model --
// Everything both templates show is precomputed here, once, so the two
// artifacts always agree.

type reportView struct {
	Project     string
	Generated   string
	Verdict     schemas.Verdict
	VerdictCSS  string
	PassRate    string
	Summary     schemas.Summary
	Severities  []severityRow
	Unparseable int
	Tools       []toolSection
	Tests       []schemas.TestResult
	NoScans     bool
}

type severityRow struct {
	Label schemas.Severity
	Count int
	CSS   string
}

type toolSection struct {
	Name        string
	Status      schemas.ToolStatus
	StatusLabel string
	RawPath     string
	Findings    []schemas.Finding
}

func buildView(project string, summary schemas.Summary, bundle schemas.ScanBundle, generatedAt time.Time) reportView {
	view := reportView{
		Project:     project,
		Generated:   generatedAt.UTC().Format("2006-01-02 15:04:05 UTC"),
		Verdict:     summary.Verdict,
		VerdictCSS:  verdictCSS(summary.Verdict),
		PassRate:    fmt.Sprintf("%.1f%%", summary.PassRate()),
		Summary:     summary,
		Unparseable: summary.UnparseableTools,
		Tests:       bundle.Tests,
		NoScans:     true,
	}

	// Severity rows, highest first.
	all := schemas.AllSeverities()
	for i := len(all) - 1; i >= 0; i-- {
		view.Severities = append(view.Severities, severityRow{
			Label: all[i],
			Count: summary.BySeverity[all[i]],
			CSS:   "sev-" + string(all[i]),
		})
	}

	for _, kind := range schemas.AllToolKinds() {
		outcome := bundle.OutcomeFor(kind)
		if outcome.Status != schemas.StatusNotRun {
			view.NoScans = false
		}
		view.Tools = append(view.Tools, toolSection{
			Name:        kind.DisplayName(),
			Status:      outcome.Status,
			StatusLabel: statusLabel(outcome.Status),
			RawPath:     outcome.RawPath,
			Findings:    outcome.Findings,
		})
	}

	return view
}

func verdictCSS(v schemas.Verdict) string {
	switch v {
	case schemas.VerdictPass:
		return "verdict-pass"
	case schemas.VerdictWarn:
		return "verdict-warn"
	default:
		return "verdict-fail"
	}
}

func statusLabel(s schemas.ToolStatus) string {
	switch s {
	case schemas.StatusCompleted:
		return "Completed"
	case schemas.StatusParseFailed:
		return "Artifact unparseable"
	default:
		return "Not run"
	}
}
