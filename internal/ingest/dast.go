package ingest

import (
	"github.com/xkilldash9x/reportpipe/api/schemas"
)

// dastSeverities maps the dynamic scanner's risk levels. ZAP-style
// reports rate alerts High/Medium/Low/Informational.
var dastSeverities = map[string]schemas.Severity{
	"HIGH":           schemas.SeverityHigh,
	"MEDIUM":         schemas.SeverityMedium,
	"LOW":            schemas.SeverityLow,
	"INFORMATIONAL":  schemas.SeverityInfo,
	"FALSE POSITIVE": schemas.SeverityInfo,
}

// DASTParser reads a ZAP-style HTML report: an element marked "alerts"
// containing one row per alert with cells [risk, name, url?].
type DASTParser struct {
	opts Options
}

func NewDASTParser(opts Options) *DASTParser {
	return &DASTParser{opts: opts}
}

func (p *DASTParser) Kind() schemas.ToolKind { return schemas.ToolDAST }

func (p *DASTParser) Parse(path string) schemas.ToolOutcome {
	data, status, ok := readArtifact(path)
	if !ok {
		return schemas.ToolOutcome{Tool: p.Kind(), Status: status, Findings: []schemas.Finding{}, RawPath: path}
	}

	root, err := parseHTML(data)
	if err != nil {
		return parseFailed(p.Kind(), path)
	}

	section := findMarked(root, "", "alerts")
	if section == nil {
		return parseFailed(p.Kind(), path)
	}

	var findings []schemas.Finding
	for _, tr := range elementsByTag(section, "tr") {
		if rowIsHeader(tr) {
			continue
		}
		cells := rowCells(tr)
		if len(cells) < 2 {
			continue
		}

		sev, note := mapSeverity(dastSeverities, cells[0], p.opts.unknownBand())
		f := schemas.Finding{
			Tool:     p.Kind(),
			Severity: sev,
			Title:    cells[1],
			RawRef:   path,
			Note:     note,
		}
		if len(cells) > 2 {
			f.Description = cells[2]
		}
		findings = append(findings, f)
	}

	return completed(p.Kind(), path, findings)
}
