package ingest

import (
	"strings"

	"golang.org/x/net/html"

	"github.com/xkilldash9x/reportpipe/api/schemas"
)

// imageSeverities maps the container scanner's vocabulary. Trivy-style
// reports rate vulnerabilities CRITICAL down to UNKNOWN.
var imageSeverities = map[string]schemas.Severity{
	"CRITICAL":   schemas.SeverityCritical,
	"HIGH":       schemas.SeverityHigh,
	"MEDIUM":     schemas.SeverityMedium,
	"LOW":        schemas.SeverityLow,
	"NEGLIGIBLE": schemas.SeverityInfo,
	"UNKNOWN":    schemas.SeverityInfo,
}

// ImageParser reads a Trivy-style HTML report: one or more vulnerability
// tables whose header row names a Severity column. The scanned target
// (image or layer) comes from the table caption when present.
type ImageParser struct {
	opts Options
}

func NewImageParser(opts Options) *ImageParser {
	return &ImageParser{opts: opts}
}

func (p *ImageParser) Kind() schemas.ToolKind { return schemas.ToolImage }

func (p *ImageParser) Parse(path string) schemas.ToolOutcome {
	data, status, ok := readArtifact(path)
	if !ok {
		return schemas.ToolOutcome{Tool: p.Kind(), Status: status, Findings: []schemas.Finding{}, RawPath: path}
	}

	root, err := parseHTML(data)
	if err != nil {
		return parseFailed(p.Kind(), path)
	}

	var findings []schemas.Finding
	sawVulnTable := false
	for _, table := range elementsByTag(root, "table") {
		cols, rows := splitVulnTable(table)
		if cols == nil {
			continue
		}
		sawVulnTable = true

		target := ""
		if captions := elementsByTag(table, "caption"); len(captions) > 0 {
			target = nodeText(captions[0])
		}

		for _, cells := range rows {
			if cols.severity >= len(cells) {
				continue
			}
			sev, note := mapSeverity(imageSeverities, cells[cols.severity], p.opts.unknownBand())
			f := schemas.Finding{
				Tool:     p.Kind(),
				Severity: sev,
				Title:    cellAt(cells, cols.id),
				RawRef:   path,
				Note:     note,
			}
			if pkg := cellAt(cells, cols.pkg); pkg != "" {
				f.Description = "package " + pkg
			}
			if title := cellAt(cells, cols.title); title != "" {
				if f.Description != "" {
					f.Description += ": " + title
				} else {
					f.Description = title
				}
			}
			if f.Title == "" {
				f.Title = cellAt(cells, cols.title)
			}
			if target != "" {
				f.Location = &schemas.Location{ImageLayer: target}
			}
			findings = append(findings, f)
		}
	}

	if !sawVulnTable {
		return parseFailed(p.Kind(), path)
	}

	return completed(p.Kind(), path, findings)
}

// vulnColumns records where the interesting columns live in one table.
type vulnColumns struct {
	severity int
	id       int
	pkg      int
	title    int
}

// splitVulnTable identifies a vulnerability table by its header row and
// returns the column layout plus the data rows. A table without a
// Severity header is not a vulnerability table.
func splitVulnTable(table *html.Node) (*vulnColumns, [][]string) {
	cols := &vulnColumns{severity: -1, id: -1, pkg: -1, title: -1}
	var rows [][]string

	for _, tr := range elementsByTag(table, "tr") {
		cells := rowCells(tr)
		if len(cells) == 0 {
			continue
		}
		if rowIsHeader(tr) {
			for i, h := range cells {
				switch {
				case strings.EqualFold(h, "severity"):
					cols.severity = i
				case strings.EqualFold(h, "vulnerability id") || strings.EqualFold(h, "id") || strings.EqualFold(h, "vulnerability"):
					cols.id = i
				case strings.EqualFold(h, "package") || strings.EqualFold(h, "library"):
					cols.pkg = i
				case strings.EqualFold(h, "title") || strings.EqualFold(h, "description"):
					cols.title = i
				}
			}
			continue
		}
		rows = append(rows, cells)
	}

	if cols.severity < 0 {
		return nil, nil
	}
	return cols, rows
}

func cellAt(cells []string, idx int) string {
	if idx < 0 || idx >= len(cells) {
		return ""
	}
	return cells[idx]
}
