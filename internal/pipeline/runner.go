// Package pipeline orchestrates one end-to-end run: assemble the raw
// artifacts, summarize, render, then hand the document to every
// configured sink. Rendering is the only stage whose failure fails the
// run; delivery outcomes are reported, never propagated.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/reportpipe/api/schemas"
	"github.com/xkilldash9x/reportpipe/internal/config"
	"github.com/xkilldash9x/reportpipe/internal/ingest"
	"github.com/xkilldash9x/reportpipe/internal/publish"
	"github.com/xkilldash9x/reportpipe/internal/report"
	"github.com/xkilldash9x/reportpipe/internal/results"
)

// RunResult is everything a run produced: the document and one receipt
// per configured sink.
type RunResult struct {
	Document *schemas.ReportDocument
	Receipts []schemas.PublishReceipt
}

// Runner drives the pipeline stages in order.
type Runner struct {
	cfg        *config.Config
	assembler  *results.Assembler
	renderer   *report.Renderer
	publishers []publish.Publisher
	logger     *zap.Logger
	// now is swapped in tests for deterministic artifact names.
	now func() time.Time
}

func NewRunner(cfg *config.Config, publishers []publish.Publisher, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts := ingest.Options{UnknownBand: cfg.UnknownSeverityBand()}
	return &Runner{
		cfg:        cfg,
		assembler:  results.NewAssembler(opts, logger),
		renderer:   report.NewRenderer(cfg.Report.OutputDir, cfg.Project.Name, logger),
		publishers: publishers,
		logger:     logger.Named("pipeline"),
		now:        time.Now,
	}
}

// Run executes one pipeline pass. The returned error is non-nil only when
// assembly was cancelled or the report could not be rendered; sink
// failures live in the receipts.
func (r *Runner) Run(ctx context.Context) (*RunResult, error) {
	generatedAt := r.now().UTC()
	runID := uuid.NewString()
	r.logger.Info("Pipeline run starting",
		zap.String("run_id", runID), zap.String("project", r.cfg.Project.Name))

	inputs := results.Inputs{
		Paths:   make(map[schemas.ToolKind]string),
		TestLog: r.cfg.Inputs.Tests,
	}
	for _, kind := range schemas.AllToolKinds() {
		if kind == schemas.ToolTests {
			continue
		}
		inputs.Paths[kind] = r.cfg.Inputs.PathFor(kind)
	}

	bundle, err := r.assembler.Assemble(ctx, inputs)
	if err != nil {
		return nil, fmt.Errorf("assembling results: %w", err)
	}

	summary := results.Summarize(bundle)
	r.logger.Info("Results summarized",
		zap.String("verdict", string(summary.Verdict)),
		zap.Int("findings", bundle.TotalFindings()),
		zap.Int("tests_failed", summary.TestsFailed),
		zap.Int("unparseable_tools", summary.UnparseableTools))

	artifacts, err := r.renderer.Render(summary, bundle, generatedAt)
	if err != nil {
		return nil, err
	}

	doc := &schemas.ReportDocument{
		RunID:       runID,
		GeneratedAt: generatedAt,
		Project:     r.cfg.Project.Name,
		Summary:     summary,
		Bundle:      bundle,
		Artifacts:   artifacts,
	}

	receipts := r.publishAll(ctx, doc)
	r.writeReceipts(receipts, generatedAt)

	return &RunResult{Document: doc, Receipts: receipts}, nil
}

// publishAll fans the document out to every sink concurrently. Sinks are
// independent: one sink's failure is invisible to its siblings, and the
// receipt slice preserves registration order.
func (r *Runner) publishAll(ctx context.Context, doc *schemas.ReportDocument) []schemas.PublishReceipt {
	receipts := make([]schemas.PublishReceipt, len(r.publishers))

	var g errgroup.Group
	for i, p := range r.publishers {
		i, p := i, p
		g.Go(func() error {
			receipts[i] = p.Publish(ctx, doc)
			return nil
		})
	}
	_ = g.Wait()

	for _, receipt := range receipts {
		field := zap.String("sink", string(receipt.Sink))
		switch receipt.Status {
		case schemas.ReceiptSent:
			r.logger.Info("Sink delivery succeeded", field, zap.Int("attempts", receipt.Attempts))
		case schemas.ReceiptSkipped:
			r.logger.Info("Sink disabled, delivery skipped", field)
		default:
			r.logger.Error("Sink delivery failed", field,
				zap.Int("attempts", receipt.Attempts), zap.String("error", receipt.LastError))
		}
	}
	return receipts
}

// writeReceipts drops a machine-readable delivery record next to the
// artifacts. Failing to write it degrades the run record, not the run.
func (r *Runner) writeReceipts(receipts []schemas.PublishReceipt, generatedAt time.Time) {
	path := filepath.Join(r.cfg.Report.OutputDir,
		fmt.Sprintf("receipts_%s.json", generatedAt.UTC().Format("20060102T150405Z")))
	data, err := json.MarshalIndent(receipts, "", "  ")
	if err == nil {
		err = os.WriteFile(path, data, 0o644)
	}
	if err != nil {
		r.logger.Warn("Could not write delivery receipts", zap.String("path", path), zap.Error(err))
		return
	}
	r.logger.Info("Delivery receipts written", zap.String("path", path))
}
