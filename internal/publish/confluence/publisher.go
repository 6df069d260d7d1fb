package confluence

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/xkilldash9x/reportpipe/api/schemas"
	"github.com/xkilldash9x/reportpipe/internal/config"
	"github.com/xkilldash9x/reportpipe/internal/publish"
)

// API abstracts the REST client so the publish state machine is testable
// against a scripted server.
type API interface {
	FindPage(ctx context.Context, title string) (*Page, error)
	CreatePage(ctx context.Context, title, body, parentID string) (*Page, error)
	UpdatePage(ctx context.Context, page *Page, body string) (*Page, error)
	UploadAttachment(ctx context.Context, pageID, path string) error
}

// Publisher is the wiki sink. Page writes follow lookup, then create or
// update with version+1; a lost optimistic check is retried exactly once
// against a re-fetched version.
type Publisher struct {
	cfg    config.ConfluenceConfig
	api    API
	logger *zap.Logger
}

func NewPublisher(cfg config.ConfluenceConfig, logger *zap.Logger) *Publisher {
	return newPublisher(cfg, NewClient(cfg, logger), logger)
}

func newPublisher(cfg config.ConfluenceConfig, api API, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{cfg: cfg, api: api, logger: logger.Named("wiki")}
}

func (p *Publisher) Sink() schemas.Sink { return schemas.SinkWiki }

func (p *Publisher) Publish(ctx context.Context, doc *schemas.ReportDocument) schemas.PublishReceipt {
	if !p.cfg.Enabled {
		return publish.Skipped(p.Sink())
	}

	receipt := schemas.PublishReceipt{Sink: p.Sink()}

	storage, ok := doc.ArtifactByFormat(schemas.FormatStorage)
	if !ok {
		receipt.Status = schemas.ReceiptFailed
		receipt.LastError = "no storage-format artifact was rendered"
		return receipt
	}
	body, err := os.ReadFile(storage.Path)
	if err != nil {
		receipt.Status = schemas.ReceiptFailed
		receipt.LastError = fmt.Sprintf("reading storage artifact: %v", err)
		return receipt
	}

	page, err := p.writePage(ctx, string(body), &receipt)
	if err != nil {
		receipt.Status = schemas.ReceiptFailed
		receipt.LastError = err.Error()
		p.logger.Error("Wiki publish failed",
			zap.Int("attempts", receipt.Attempts), zap.Error(err))
		return receipt
	}

	// Attachments ride after the page body. A failed upload degrades the
	// page but does not undo it; the receipt carries the loss as warnings.
	for _, a := range doc.Artifacts {
		if ctx.Err() != nil {
			receipt.Warnings = append(receipt.Warnings,
				fmt.Sprintf("attachment %s: skipped, run cancelled", filepath.Base(a.Path)))
			continue
		}
		if err := p.api.UploadAttachment(ctx, page.ID, a.Path); err != nil {
			warning := fmt.Sprintf("attachment %s: %v", filepath.Base(a.Path), err)
			receipt.Warnings = append(receipt.Warnings, warning)
			p.logger.Warn("Attachment upload failed",
				zap.String("file", filepath.Base(a.Path)), zap.Error(err))
		}
	}

	receipt.Status = schemas.ReceiptSent
	receipt.ExternalRef = page.ID
	p.logger.Info("Report published to wiki",
		zap.String("page_id", page.ID), zap.Int("version", page.Version),
		zap.Int("attachment_warnings", len(receipt.Warnings)))
	return receipt
}

// writePage resolves the title-keyed page and lands the body on it. The
// page identity is the title: reruns update the same page in place.
// Cancellation is checked between steps only; a request already on the
// wire runs to completion.
func (p *Publisher) writePage(ctx context.Context, body string, receipt *schemas.PublishReceipt) (*Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("publish cancelled: %w", err)
	}
	receipt.Attempts++
	page, err := p.api.FindPage(ctx, p.cfg.PageTitle)
	if err != nil {
		return nil, err
	}

	if page == nil {
		parentID, err := p.resolveParent(ctx)
		if err != nil {
			return nil, err
		}
		return p.api.CreatePage(ctx, p.cfg.PageTitle, body, parentID)
	}

	updated, err := p.api.UpdatePage(ctx, page, body)
	if !errors.Is(err, ErrVersionConflict) {
		return updated, err
	}

	// Lost the version race. Re-fetch once and retry once; a second
	// conflict means a live contender and we yield.
	p.logger.Warn("Page version conflict, re-fetching",
		zap.String("page_id", page.ID), zap.Int("stale_version", page.Version))
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("publish cancelled: %w", err)
	}
	receipt.Attempts++
	page, err = p.api.FindPage(ctx, p.cfg.PageTitle)
	if err != nil {
		return nil, fmt.Errorf("re-fetch after version conflict: %w", err)
	}
	if page == nil {
		return nil, fmt.Errorf("page %q vanished during conflict retry", p.cfg.PageTitle)
	}
	updated, err = p.api.UpdatePage(ctx, page, body)
	if errors.Is(err, ErrVersionConflict) {
		return nil, fmt.Errorf("update of %q: %w after retry", p.cfg.PageTitle, ErrVersionConflict)
	}
	return updated, err
}

// resolveParent finds the configured index page, creating it on demand.
func (p *Publisher) resolveParent(ctx context.Context) (string, error) {
	if p.cfg.ParentTitle == "" {
		return "", nil
	}
	parent, err := p.api.FindPage(ctx, p.cfg.ParentTitle)
	if err != nil {
		return "", fmt.Errorf("parent lookup: %w", err)
	}
	if parent == nil {
		parent, err = p.api.CreatePage(ctx, p.cfg.ParentTitle,
			"<p>Automated security reports.</p>", "")
		if err != nil {
			return "", fmt.Errorf("parent create: %w", err)
		}
	}
	return parent.ID, nil
}
