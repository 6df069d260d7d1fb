package ingest

import (
	"strconv"
	"strings"

	"github.com/xkilldash9x/reportpipe/api/schemas"
)

// sastSeverities maps the static analyzer's own vocabulary onto the
// canonical scale. Bandit-style reports use LOW/MEDIUM/HIGH plus
// UNDEFINED for rules without a rating.
var sastSeverities = map[string]schemas.Severity{
	"HIGH":      schemas.SeverityHigh,
	"MEDIUM":    schemas.SeverityMedium,
	"LOW":       schemas.SeverityLow,
	"UNDEFINED": schemas.SeverityInfo,
}

// SASTParser reads a Bandit-style HTML report: an "issues" section whose
// rows carry the class "issue" with cells
// [severity, test id/title, location, description].
type SASTParser struct {
	opts Options
}

func NewSASTParser(opts Options) *SASTParser {
	return &SASTParser{opts: opts}
}

func (p *SASTParser) Kind() schemas.ToolKind { return schemas.ToolSAST }

func (p *SASTParser) Parse(path string) schemas.ToolOutcome {
	data, status, ok := readArtifact(path)
	if !ok {
		return schemas.ToolOutcome{Tool: p.Kind(), Status: status, Findings: []schemas.Finding{}, RawPath: path}
	}

	root, err := parseHTML(data)
	if err != nil {
		return parseFailed(p.Kind(), path)
	}

	// The issues section is the required marker. A clean scan still has
	// the section, just with no rows; its absence means the artifact is
	// not the format we expect.
	section := findMarked(root, "", "issues")
	if section == nil {
		return parseFailed(p.Kind(), path)
	}

	var findings []schemas.Finding
	for _, tr := range elementsByTag(section, "tr") {
		if !hasClass(tr, "issue") {
			continue
		}
		cells := rowCells(tr)
		if len(cells) < 2 {
			continue
		}

		sev, note := mapSeverity(sastSeverities, cells[0], p.opts.unknownBand())
		f := schemas.Finding{
			Tool:     p.Kind(),
			Severity: sev,
			Title:    cells[1],
			RawRef:   path,
			Note:     note,
		}
		if len(cells) > 2 {
			f.Location = parseFileLine(cells[2])
		}
		if len(cells) > 3 {
			f.Description = cells[3]
		}
		findings = append(findings, f)
	}

	return completed(p.Kind(), path, findings)
}

// parseFileLine splits a "path/to/file.py:42" location cell.
func parseFileLine(s string) *schemas.Location {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	loc := &schemas.Location{File: s}
	if i := strings.LastIndex(s, ":"); i > 0 {
		if line, err := strconv.Atoi(strings.TrimSpace(s[i+1:])); err == nil {
			loc.File = s[:i]
			loc.Line = line
		}
	}
	return loc
}
