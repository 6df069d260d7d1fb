// Package ingest turns raw tool artifacts into normalized ToolOutcomes.
//
// Every parser follows the same contract: a missing artifact is a normal
// NotRun outcome, a malformed artifact is a ParseFailed outcome with the
// raw path preserved, and neither ever crosses the component boundary as
// an error. Findings keep their source order so report output is
// deterministic across reruns on the same input.
package ingest

import (
	"fmt"
	"os"
	"strings"

	"github.com/xkilldash9x/reportpipe/api/schemas"
)

// Options carries shared parsing policy.
type Options struct {
	// UnknownBand is the severity assigned when a tool's vocabulary is
	// absent from both its own table and the canonical mapping. Such
	// findings carry a note; they are never dropped.
	UnknownBand schemas.Severity
}

func (o Options) unknownBand() schemas.Severity {
	if o.UnknownBand == "" {
		return schemas.SeverityMedium
	}
	return o.UnknownBand
}

// Parser converts one tool's raw artifact into a ToolOutcome.
type Parser interface {
	Kind() schemas.ToolKind
	Parse(path string) schemas.ToolOutcome
}

// FindingParsers returns one parser per finding-producing tool kind.
// Adding a tool means adding a variant here plus its severity table;
// nothing dispatches on format strings at call sites.
func FindingParsers(opts Options) []Parser {
	return []Parser{
		NewSASTParser(opts),
		NewDepsParser(opts),
		NewImageParser(opts),
		NewDASTParser(opts),
	}
}

// readArtifact loads the artifact, distinguishing absence from damage.
// The bool reports whether content is available to parse.
func readArtifact(path string) ([]byte, schemas.ToolStatus, bool) {
	if path == "" {
		return nil, schemas.StatusNotRun, false
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, schemas.StatusNotRun, false
		}
		// The artifact exists but cannot be read; treat like a format
		// violation and keep the path for manual inspection.
		return nil, schemas.StatusParseFailed, false
	}
	return data, schemas.StatusCompleted, true
}

func notRun(kind schemas.ToolKind, path string) schemas.ToolOutcome {
	return schemas.ToolOutcome{Tool: kind, Status: schemas.StatusNotRun, Findings: []schemas.Finding{}, RawPath: path}
}

func parseFailed(kind schemas.ToolKind, path string) schemas.ToolOutcome {
	return schemas.ToolOutcome{Tool: kind, Status: schemas.StatusParseFailed, Findings: []schemas.Finding{}, RawPath: path}
}

func completed(kind schemas.ToolKind, path string, findings []schemas.Finding) schemas.ToolOutcome {
	if findings == nil {
		findings = []schemas.Finding{}
	}
	return schemas.ToolOutcome{Tool: kind, Status: schemas.StatusCompleted, Findings: findings, RawPath: path}
}

// mapSeverity resolves a raw severity through the tool's own table first,
// then the canonical mapping, then the configured default band. The
// returned note is non-empty only when the fallback fired.
func mapSeverity(table map[string]schemas.Severity, raw string, fallback schemas.Severity) (schemas.Severity, string) {
	key := strings.ToUpper(strings.TrimSpace(raw))
	if sev, ok := table[key]; ok {
		return sev, ""
	}
	if sev, ok := schemas.ParseSeverity(key); ok {
		return sev, ""
	}
	return fallback, fmt.Sprintf("severity %q is not in the mapping table; defaulted to %s", raw, fallback)
}
