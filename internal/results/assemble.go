// Package results assembles raw artifacts into a ScanBundle and rolls the
// bundle up into a Summary. Parsing problems never escape as errors; they
// are encoded in the outcomes so downstream stages always see well-formed
// input.
package results

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/reportpipe/api/schemas"
	"github.com/xkilldash9x/reportpipe/internal/ingest"
)

// Inputs maps each tool to its artifact path. Empty or absent entries are
// valid and degrade to NotRun outcomes.
type Inputs struct {
	Paths   map[schemas.ToolKind]string
	TestLog string
}

// Assembler builds ScanBundles from raw inputs.
type Assembler struct {
	parsers    []ingest.Parser
	testParser *ingest.TestLogParser
	logger     *zap.Logger
}

func NewAssembler(opts ingest.Options, logger *zap.Logger) *Assembler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Assembler{
		parsers:    ingest.FindingParsers(opts),
		testParser: ingest.NewTestLogParser(),
		logger:     logger.Named("assemble"),
	}
}

// Assemble runs every parser and guarantees exactly one ToolOutcome per
// known ToolKind, regardless of how many artifacts were supplied.
//
// Parsing of independent artifacts has no data dependency, so the parses
// run concurrently as a latency optimization. Each goroutine writes into
// a fixed per-kind slot; assembly order never depends on completion order.
func (a *Assembler) Assemble(ctx context.Context, in Inputs) (schemas.ScanBundle, error) {
	outcomes := make(map[schemas.ToolKind]schemas.ToolOutcome, len(schemas.AllToolKinds()))
	slots := make(map[schemas.ToolKind]*schemas.ToolOutcome)
	for _, kind := range schemas.AllToolKinds() {
		o := schemas.ToolOutcome{Tool: kind, Status: schemas.StatusNotRun, Findings: []schemas.Finding{}}
		slots[kind] = &o
	}
	var tests []schemas.TestResult

	g, ctx := errgroup.WithContext(ctx)
	for _, p := range a.parsers {
		parser := p
		g.Go(func() error {
			select {
			case <-ctx.Done():
				return fmt.Errorf("assembly cancelled: %w", ctx.Err())
			default:
			}
			*slots[parser.Kind()] = parser.Parse(in.Paths[parser.Kind()])
			return nil
		})
	}
	g.Go(func() error {
		select {
		case <-ctx.Done():
			return fmt.Errorf("assembly cancelled: %w", ctx.Err())
		default:
		}
		outcome, results := a.testParser.Parse(in.TestLog)
		*slots[schemas.ToolTests] = outcome
		tests = results
		return nil
	})

	if err := g.Wait(); err != nil {
		return schemas.ScanBundle{}, err
	}

	for _, kind := range schemas.AllToolKinds() {
		o := *slots[kind]
		switch o.Status {
		case schemas.StatusParseFailed:
			a.logger.Warn("Artifact could not be parsed",
				zap.String("tool", string(kind)), zap.String("path", o.RawPath))
		case schemas.StatusNotRun:
			a.logger.Info("No artifact supplied, tool recorded as not run",
				zap.String("tool", string(kind)))
		default:
			a.logger.Info("Artifact parsed",
				zap.String("tool", string(kind)), zap.Int("findings", len(o.Findings)))
		}
		outcomes[kind] = o
	}

	return schemas.ScanBundle{Outcomes: outcomes, Tests: tests}, nil
}
