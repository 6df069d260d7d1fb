package ingest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/reportpipe/api/schemas"
)

const pytestVerboseFixture = `============================= test session starts ==============================
collected 4 items

tests/test_app.py::test_home PASSED [ 25%] (0.03s)
tests/test_app.py::test_login FAILED [ 50%] (0.10s)
tests/test_app.py::test_logout SKIPPED [ 75%]
tests/test_auth.py::test_token ERROR [100%]

=========================== short test summary info ============================
1 failed, 1 passed, 1 skipped, 1 error in 0.45s
`

func TestTestLogParser(t *testing.T) {
	p := NewTestLogParser()

	t.Run("missing log is NotRun with no results", func(t *testing.T) {
		outcome, results := p.Parse("")
		assert.Equal(t, schemas.StatusNotRun, outcome.Status)
		assert.Nil(t, results)
	})

	t.Run("verbose log yields per-test results in source order", func(t *testing.T) {
		path := writeArtifact(t, "pytest_output.txt", pytestVerboseFixture)
		outcome, results := p.Parse(path)

		assert.Equal(t, schemas.StatusCompleted, outcome.Status)
		assert.Empty(t, outcome.Findings, "the test runner contributes results, not findings")
		require.Len(t, results, 4)

		assert.Equal(t, "tests/test_app.py::test_home", results[0].Name)
		assert.Equal(t, schemas.TestPassed, results[0].Outcome)
		assert.Equal(t, 30*time.Millisecond, results[0].Duration)

		assert.Equal(t, schemas.TestFailed, results[1].Outcome)
		assert.Equal(t, schemas.TestSkipped, results[2].Outcome)
		assert.Equal(t, schemas.TestErrored, results[3].Outcome)
	})

	t.Run("summary-only log reconstructs tallies", func(t *testing.T) {
		path := writeArtifact(t, "pytest_output.txt", "===== 3 passed, 1 skipped in 1.02s =====\n")
		outcome, results := p.Parse(path)

		assert.Equal(t, schemas.StatusCompleted, outcome.Status)
		require.Len(t, results, 4)

		passed, skipped := 0, 0
		for _, r := range results {
			switch r.Outcome {
			case schemas.TestPassed:
				passed++
			case schemas.TestSkipped:
				skipped++
			}
		}
		assert.Equal(t, 3, passed)
		assert.Equal(t, 1, skipped)
	})

	t.Run("no tests ran is a clean empty outcome", func(t *testing.T) {
		path := writeArtifact(t, "pytest_output.txt", "============ no tests ran in 0.01s ============\n")
		outcome, results := p.Parse(path)
		assert.Equal(t, schemas.StatusCompleted, outcome.Status)
		assert.Empty(t, results)
	})

	t.Run("unrecognizable content is ParseFailed", func(t *testing.T) {
		path := writeArtifact(t, "pytest_output.txt", "Traceback (most recent call last):\n  boom\n")
		outcome, results := p.Parse(path)
		assert.Equal(t, schemas.StatusParseFailed, outcome.Status)
		assert.Nil(t, results)
	})
}
