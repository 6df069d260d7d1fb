package ingest

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/xkilldash9x/reportpipe/api/schemas"
)

var (
	// testLineRe matches verbose per-test lines:
	//   tests/test_app.py::test_login PASSED [ 12%] (0.03s)
	testLineRe = regexp.MustCompile(`^(\S+::\S+)\s+(PASSED|FAILED|SKIPPED|ERROR|XFAIL|XPASS)\b(?:\s+\[[^\]]*\])?(?:\s+\(([0-9.]+)s\))?`)

	// Summary-line tallies, the terse "5 passed, 1 failed in 2.34s" form.
	summaryPassedRe  = regexp.MustCompile(`(?i)(\d+)\s+passed`)
	summaryFailedRe  = regexp.MustCompile(`(?i)(\d+)\s+failed`)
	summaryErrorRe   = regexp.MustCompile(`(?i)(\d+)\s+errors?`)
	summarySkippedRe = regexp.MustCompile(`(?i)(\d+)\s+skipped`)
)

// TestLogParser reads the test runner's terminal log. Per-test lines are
// preferred; when only the summary line is present the tallies are
// reconstructed as unnamed results so the rollup still counts them.
type TestLogParser struct{}

func NewTestLogParser() *TestLogParser { return &TestLogParser{} }

func (p *TestLogParser) Kind() schemas.ToolKind { return schemas.ToolTests }

// Parse returns the tests ToolOutcome (status bookkeeping, no findings)
// and the ordered test results.
func (p *TestLogParser) Parse(path string) (schemas.ToolOutcome, []schemas.TestResult) {
	data, status, ok := readArtifact(path)
	if !ok {
		return schemas.ToolOutcome{Tool: p.Kind(), Status: status, Findings: []schemas.Finding{}, RawPath: path}, nil
	}

	text := string(data)
	var results []schemas.TestResult
	for _, line := range strings.Split(text, "\n") {
		m := testLineRe.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		r := schemas.TestResult{Name: m[1], Outcome: outcomeFor(m[2])}
		if m[3] != "" {
			if secs, err := strconv.ParseFloat(m[3], 64); err == nil {
				r.Duration = time.Duration(secs * float64(time.Second))
			}
		}
		results = append(results, r)
	}

	if len(results) > 0 {
		return completed(p.Kind(), path, nil), results
	}

	// No per-test lines. Fall back to the summary tallies.
	if strings.Contains(strings.ToLower(text), "no tests ran") {
		return completed(p.Kind(), path, nil), nil
	}
	results = reconstructFromSummary(text)
	if results == nil {
		// The artifact existed but carried no recognizable pytest output.
		return parseFailed(p.Kind(), path), nil
	}
	return completed(p.Kind(), path, nil), results
}

func outcomeFor(word string) schemas.TestOutcome {
	switch word {
	case "PASSED", "XPASS":
		return schemas.TestPassed
	case "FAILED":
		return schemas.TestFailed
	case "ERROR":
		return schemas.TestErrored
	default: // SKIPPED, XFAIL
		return schemas.TestSkipped
	}
}

// reconstructFromSummary expands "5 passed, 1 failed" style tallies into
// unnamed results. Returns nil when no tally is present at all.
func reconstructFromSummary(text string) []schemas.TestResult {
	counts := []struct {
		re      *regexp.Regexp
		outcome schemas.TestOutcome
	}{
		{summaryPassedRe, schemas.TestPassed},
		{summaryFailedRe, schemas.TestFailed},
		{summaryErrorRe, schemas.TestErrored},
		{summarySkippedRe, schemas.TestSkipped},
	}

	var results []schemas.TestResult
	matched := false
	for _, c := range counts {
		m := c.re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		matched = true
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		for i := 0; i < n; i++ {
			results = append(results, schemas.TestResult{
				Name:    string(c.outcome) + " (from summary line)",
				Outcome: c.outcome,
				Message: "reconstructed from the runner's summary line",
			})
		}
	}
	if !matched {
		return nil
	}
	if results == nil {
		results = []schemas.TestResult{}
	}
	return results
}
