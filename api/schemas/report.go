package schemas

import (
	"strings"
	"time"
)

// -- Core Report Models --
// These types represent the normalized entities a single pipeline run
// produces from the raw tool artifacts. Everything here is created fresh
// per run; nothing is persisted beyond the run's artifact directory.

// Severity is the canonical five-level scale all tool vocabularies
// collapse onto.
type Severity string

const (
	SeverityInfo     Severity = "INFO"
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// AllSeverities lists the canonical levels in ascending order.
func AllSeverities() []Severity {
	return []Severity{SeverityInfo, SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical}
}

// Rank returns the ordinal position of the severity, Info lowest.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

// ParseSeverity maps a raw severity string from any tool onto the
// canonical scale. This is the central place to absorb vocabulary
// variations ("moderate", "important", CVSS-ish words) so the per-tool
// tables only need to cover what the canonical mapping does not.
func ParseSeverity(raw string) (Severity, bool) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "CRITICAL", "FATAL":
		return SeverityCritical, true
	case "HIGH", "IMPORTANT", "ERROR":
		return SeverityHigh, true
	case "MEDIUM", "MODERATE", "WARN", "WARNING":
		return SeverityMedium, true
	case "LOW", "MINOR":
		return SeverityLow, true
	case "INFO", "INFORMATIONAL", "NEGLIGIBLE", "NOTE", "UNDEFINED":
		return SeverityInfo, true
	default:
		return SeverityMedium, false
	}
}

// ToolKind identifies one of the fixed set of integrated tools.
type ToolKind string

const (
	ToolTests ToolKind = "tests"
	ToolSAST  ToolKind = "sast"
	ToolDeps  ToolKind = "deps"
	ToolImage ToolKind = "image"
	ToolDAST  ToolKind = "dast"
)

// AllToolKinds lists every known tool in report order. Bundle assembly and
// rendering iterate this slice, never a map, so output stays deterministic.
func AllToolKinds() []ToolKind {
	return []ToolKind{ToolTests, ToolSAST, ToolDeps, ToolImage, ToolDAST}
}

// DisplayName returns the human label used in report sections and the
// email summary table.
func (k ToolKind) DisplayName() string {
	switch k {
	case ToolTests:
		return "Unit Tests"
	case ToolSAST:
		return "Static Analysis (SAST)"
	case ToolDeps:
		return "Dependency Scan"
	case ToolImage:
		return "Container Image Scan"
	case ToolDAST:
		return "Dynamic Scan (DAST)"
	default:
		return string(k)
	}
}

// ToolStatus describes how a tool's artifact fared during ingestion.
type ToolStatus string

const (
	// StatusCompleted means the artifact existed and parsed cleanly.
	StatusCompleted ToolStatus = "completed"
	// StatusNotRun means the tool never produced an artifact. A skipped or
	// disabled scan stage is a normal outcome, not an error.
	StatusNotRun ToolStatus = "not_run"
	// StatusParseFailed means an artifact existed but violated the
	// expected format. The raw path is preserved for manual inspection.
	StatusParseFailed ToolStatus = "parse_failed"
)

// Location pins a finding to a source position or an image layer.
type Location struct {
	File       string `json:"file,omitempty"`
	Line       int    `json:"line,omitempty"`
	ImageLayer string `json:"image_layer,omitempty"`
}

// Finding is a single reported issue from one tool. Immutable once parsed.
type Finding struct {
	Tool        ToolKind  `json:"tool"`
	Severity    Severity  `json:"severity"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Location    *Location `json:"location,omitempty"`
	// RawRef points back at the artifact the finding came from.
	RawRef string `json:"raw_ref,omitempty"`
	// Note flags anything the parser had to decide on its own, e.g. an
	// unmapped severity that fell back to the default band.
	Note string `json:"note,omitempty"`
}

// TestOutcome classifies a single test case result.
type TestOutcome string

const (
	TestPassed  TestOutcome = "passed"
	TestFailed  TestOutcome = "failed"
	TestSkipped TestOutcome = "skipped"
	TestErrored TestOutcome = "error"
)

// TestResult is one test case from the test-runner artifact. Immutable.
type TestResult struct {
	Name     string        `json:"name"`
	Outcome  TestOutcome   `json:"outcome"`
	Duration time.Duration `json:"duration,omitempty"`
	Message  string        `json:"message,omitempty"`
}

// ToolOutcome is the per-tool ingestion result: status plus the findings
// in stable source order.
type ToolOutcome struct {
	Tool     ToolKind   `json:"tool"`
	Status   ToolStatus `json:"status"`
	Findings []Finding  `json:"findings"`
	RawPath  string     `json:"raw_artifact_path,omitempty"`
}

// ScanBundle is the aggregate root for one run: exactly one ToolOutcome
// per known ToolKind plus the ordered test results.
type ScanBundle struct {
	Outcomes map[ToolKind]ToolOutcome `json:"outcomes"`
	Tests    []TestResult             `json:"tests"`
}

// OutcomeFor returns the outcome slot for a kind. An unassembled kind
// reads as NotRun so callers always see a well-formed outcome.
func (b ScanBundle) OutcomeFor(kind ToolKind) ToolOutcome {
	if o, ok := b.Outcomes[kind]; ok {
		return o
	}
	return ToolOutcome{Tool: kind, Status: StatusNotRun, Findings: []Finding{}}
}

// TotalFindings counts findings across completed outcomes.
func (b ScanBundle) TotalFindings() int {
	n := 0
	for _, kind := range AllToolKinds() {
		n += len(b.OutcomeFor(kind).Findings)
	}
	return n
}

// Verdict is the rolled-up classification for a run.
type Verdict string

const (
	VerdictPass Verdict = "PASS"
	VerdictWarn Verdict = "WARN"
	VerdictFail Verdict = "FAIL"
)

// Summary is derived from a ScanBundle, never stored independently.
type Summary struct {
	BySeverity map[Severity]int `json:"findings_by_severity"`
	// UnparseableTools counts tools whose artifact existed but could not
	// be parsed. Their findings are surfaced here, not in BySeverity.
	UnparseableTools int     `json:"unparseable_tools"`
	TestsPassed      int     `json:"tests_passed"`
	TestsFailed      int     `json:"tests_failed"`
	TestsSkipped     int     `json:"tests_skipped"`
	TestsErrored     int     `json:"tests_errored"`
	Verdict          Verdict `json:"overall_verdict"`
}

// TestsTotal returns the tally across all test outcomes.
func (s Summary) TestsTotal() int {
	return s.TestsPassed + s.TestsFailed + s.TestsSkipped + s.TestsErrored
}

// PassRate returns the passed percentage, 0 when no tests ran.
func (s Summary) PassRate() float64 {
	total := s.TestsTotal()
	if total == 0 {
		return 0
	}
	return float64(s.TestsPassed) / float64(total) * 100
}

// ArtifactFormat identifies a rendered output flavor.
type ArtifactFormat string

const (
	// FormatHTML is the print-styled document for attachment.
	FormatHTML ArtifactFormat = "html"
	// FormatStorage is the wiki storage-format markup for page embedding.
	FormatStorage ArtifactFormat = "storage"
)

// Artifact is one rendered output file.
type Artifact struct {
	Format ArtifactFormat `json:"format"`
	Path   string         `json:"path"`
}

// ReportDocument is everything a publisher needs: the summary, the bundle
// it was derived from, and the rendered artifacts on disk. Owned solely by
// the pipeline run that created it.
type ReportDocument struct {
	RunID       string     `json:"run_id"`
	GeneratedAt time.Time  `json:"generated_at"`
	Project     string     `json:"project"`
	Summary     Summary    `json:"summary"`
	Bundle      ScanBundle `json:"bundle"`
	Artifacts   []Artifact `json:"rendered_artifacts"`
}

// ArtifactByFormat returns the artifact for a format, if rendered.
func (d ReportDocument) ArtifactByFormat(format ArtifactFormat) (Artifact, bool) {
	for _, a := range d.Artifacts {
		if a.Format == format {
			return a, true
		}
	}
	return Artifact{}, false
}

// Sink names a delivery target.
type Sink string

const (
	SinkEmail Sink = "email"
	SinkWiki  Sink = "wiki"
)

// ReceiptStatus classifies a publish attempt's outcome.
type ReceiptStatus string

const (
	ReceiptSent    ReceiptStatus = "sent"
	ReceiptSkipped ReceiptStatus = "skipped"
	ReceiptFailed  ReceiptStatus = "failed"
)

// PublishReceipt records one sink's delivery outcome for one run.
type PublishReceipt struct {
	Sink     Sink          `json:"sink"`
	Status   ReceiptStatus `json:"status"`
	Attempts int           `json:"attempt_count"`
	// ExternalRef is sink-specific, e.g. the wiki page ID.
	ExternalRef string `json:"external_ref,omitempty"`
	LastError   string `json:"last_error,omitempty"`
	// Warnings carries partial-success detail, e.g. an attachment that
	// failed to upload after the page body write succeeded.
	Warnings []string `json:"warnings,omitempty"`
}
