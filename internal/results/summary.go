package results

import (
	"github.com/xkilldash9x/reportpipe/api/schemas"
)

// Summarize rolls a bundle up into a Summary. Deterministic and pure:
// the same bundle always yields the same summary.
//
// Verdict policy, in fixed precedence order (Fail beats Warn beats Pass):
//   - Fail: any Critical or High finding, or any failed/errored test.
//   - Warn: any Medium finding, any unparseable tool artifact, or any
//     skipped test.
//   - Pass: everything else.
func Summarize(bundle schemas.ScanBundle) schemas.Summary {
	s := schemas.Summary{BySeverity: make(map[schemas.Severity]int, 5)}
	for _, sev := range schemas.AllSeverities() {
		s.BySeverity[sev] = 0
	}

	for _, kind := range schemas.AllToolKinds() {
		outcome := bundle.OutcomeFor(kind)
		if outcome.Status == schemas.StatusParseFailed {
			// Surfaced as a distinct counter, not folded into the
			// severity totals and never silently ignored.
			s.UnparseableTools++
			continue
		}
		for _, f := range outcome.Findings {
			s.BySeverity[f.Severity]++
		}
	}

	for _, r := range bundle.Tests {
		switch r.Outcome {
		case schemas.TestPassed:
			s.TestsPassed++
		case schemas.TestFailed:
			s.TestsFailed++
		case schemas.TestSkipped:
			s.TestsSkipped++
		case schemas.TestErrored:
			s.TestsErrored++
		}
	}

	s.Verdict = verdict(s)
	return s
}

func verdict(s schemas.Summary) schemas.Verdict {
	if s.BySeverity[schemas.SeverityCritical] > 0 || s.BySeverity[schemas.SeverityHigh] > 0 {
		return schemas.VerdictFail
	}
	if s.TestsFailed > 0 || s.TestsErrored > 0 {
		return schemas.VerdictFail
	}
	if s.BySeverity[schemas.SeverityMedium] > 0 || s.UnparseableTools > 0 || s.TestsSkipped > 0 {
		return schemas.VerdictWarn
	}
	return schemas.VerdictPass
}
