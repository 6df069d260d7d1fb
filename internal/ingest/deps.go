package ingest

import (
	"fmt"
	"strings"

	"github.com/xkilldash9x/reportpipe/api/schemas"
)

// depsSeverities covers the dependency scanner's occasional fifth column.
// Most Safety-style reports omit a severity entirely, which falls through
// to the configured default band with a note.
var depsSeverities = map[string]schemas.Severity{
	"CRITICAL": schemas.SeverityCritical,
	"HIGH":     schemas.SeverityHigh,
	"MODERATE": schemas.SeverityMedium,
	"MEDIUM":   schemas.SeverityMedium,
	"LOW":      schemas.SeverityLow,
}

// DepsParser reads a Safety-style pipe-delimited text report. Each data
// line is "package | installed | affected | advisory [| severity]".
// Comment lines (#), separator rulers and a header row are skipped.
type DepsParser struct {
	opts Options
}

func NewDepsParser(opts Options) *DepsParser {
	return &DepsParser{opts: opts}
}

func (p *DepsParser) Kind() schemas.ToolKind { return schemas.ToolDeps }

func (p *DepsParser) Parse(path string) schemas.ToolOutcome {
	data, status, ok := readArtifact(path)
	if !ok {
		return schemas.ToolOutcome{Tool: p.Kind(), Status: status, Findings: []schemas.Finding{}, RawPath: path}
	}

	content := strings.TrimSpace(string(data))
	if content == "" {
		// An empty report is a clean scan, not a damaged artifact.
		return completed(p.Kind(), path, nil)
	}

	var findings []schemas.Finding
	sawDelimited := false
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") || isRuler(line) {
			continue
		}
		fields := splitPipes(line)
		if len(fields) < 4 {
			continue
		}
		sawDelimited = true
		if strings.EqualFold(fields[0], "package") {
			continue // header row
		}

		name, installed, affected, advisory := fields[0], fields[1], fields[2], fields[3]
		var sev schemas.Severity
		var note string
		if len(fields) > 4 && fields[4] != "" {
			sev, note = mapSeverity(depsSeverities, fields[4], p.opts.unknownBand())
		} else {
			sev = p.opts.unknownBand()
			note = fmt.Sprintf("no severity reported; defaulted to %s", sev)
		}

		findings = append(findings, schemas.Finding{
			Tool:        p.Kind(),
			Severity:    sev,
			Title:       fmt.Sprintf("%s %s (affected %s)", name, installed, affected),
			Description: advisory,
			RawRef:      path,
			Note:        note,
		})
	}

	// Content was present but nothing looked like the delimited format.
	if !sawDelimited {
		return parseFailed(p.Kind(), path)
	}

	return completed(p.Kind(), path, findings)
}

func splitPipes(line string) []string {
	parts := strings.Split(strings.Trim(line, "|"), "|")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		out = append(out, strings.TrimSpace(p))
	}
	return out
}

// isRuler matches decorative separator lines like "----+----" or "====".
func isRuler(line string) bool {
	for _, r := range line {
		switch r {
		case '-', '=', '+', '|', ' ':
		default:
			return false
		}
	}
	return true
}
