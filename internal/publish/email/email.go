// Package email delivers the rendered report over SMTP. Transient
// transport failures are retried with exponential backoff up to a fixed
// bound; permanent failures (rejected auth, bad recipient) fail fast.
package email

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/textproto"
	"strings"
	"syscall"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"gopkg.in/gomail.v2"

	"github.com/xkilldash9x/reportpipe/api/schemas"
	"github.com/xkilldash9x/reportpipe/internal/config"
	"github.com/xkilldash9x/reportpipe/internal/publish"
)

// Sender abstracts the SMTP session so the retry policy is testable
// without a live server.
type Sender interface {
	Send(m *gomail.Message) error
}

type dialerSender struct {
	dialer *gomail.Dialer
}

func (d *dialerSender) Send(m *gomail.Message) error {
	return d.dialer.DialAndSend(m)
}

// Publisher is the SMTP sink.
type Publisher struct {
	cfg    config.EmailConfig
	sender Sender
	logger *zap.Logger
	// newBackOff builds the per-publish retry schedule. Tests swap in a
	// zero-interval schedule.
	newBackOff func() backoff.BackOff
}

// NewPublisher wires a gomail dialer from the configuration. STARTTLS is
// negotiated automatically on the submission port.
func NewPublisher(cfg config.EmailConfig, logger *zap.Logger) *Publisher {
	dialer := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	return newPublisher(cfg, &dialerSender{dialer: dialer}, logger)
}

func newPublisher(cfg config.EmailConfig, sender Sender, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{
		cfg:    cfg,
		sender: sender,
		logger: logger.Named("email"),
		newBackOff: func() backoff.BackOff {
			return backoff.NewExponentialBackOff()
		},
	}
}

func (p *Publisher) Sink() schemas.Sink { return schemas.SinkEmail }

// Publish sends one message per run and reports the outcome. A failed
// send never aborts the pipeline or blocks the wiki sink.
func (p *Publisher) Publish(ctx context.Context, doc *schemas.ReportDocument) schemas.PublishReceipt {
	if !p.cfg.Enabled {
		return publish.Skipped(p.Sink())
	}

	receipt := schemas.PublishReceipt{Sink: p.Sink()}
	msg := p.buildMessage(doc)

	// A budget below one would underflow into unbounded retries.
	maxAttempts := p.cfg.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	bo := backoff.WithContext(
		backoff.WithMaxRetries(p.newBackOff(), uint64(maxAttempts-1)),
		ctx,
	)
	err := backoff.Retry(func() error {
		receipt.Attempts++
		sendErr := p.sender.Send(msg)
		if sendErr == nil {
			return nil
		}
		if !isTransient(sendErr) {
			// Auth rejections and malformed recipients will not get
			// better on a retry.
			return backoff.Permanent(sendErr)
		}
		p.logger.Warn("Transient email transport failure, will retry",
			zap.Int("attempt", receipt.Attempts), zap.Error(sendErr))
		return sendErr
	}, bo)

	if err != nil {
		receipt.Status = schemas.ReceiptFailed
		receipt.LastError = err.Error()
		p.logger.Error("Email delivery failed",
			zap.Int("attempts", receipt.Attempts), zap.Error(err))
		return receipt
	}

	receipt.Status = schemas.ReceiptSent
	receipt.ExternalRef = fmt.Sprintf("message to %s", strings.Join(p.cfg.To, ", "))
	p.logger.Info("Email delivered",
		zap.Int("attempts", receipt.Attempts), zap.Strings("to", p.cfg.To))
	return receipt
}

func (p *Publisher) buildMessage(doc *schemas.ReportDocument) *gomail.Message {
	m := gomail.NewMessage()
	m.SetHeader("From", p.cfg.From)
	m.SetHeader("To", p.cfg.To...)
	m.SetHeader("Subject", fmt.Sprintf("[%s] %s security report %s",
		doc.Summary.Verdict, doc.Project, doc.GeneratedAt.UTC().Format("2006-01-02 15:04")))

	m.SetBody("text/plain", plainBody(doc))
	m.AddAlternative("text/html", htmlBody(doc))

	// Artifacts are attached by reference; paths resolve at send time.
	for _, a := range doc.Artifacts {
		m.Attach(a.Path)
	}
	return m
}

func plainBody(doc *schemas.ReportDocument) string {
	s := doc.Summary
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s pipeline report\n", doc.Project)
	fmt.Fprintf(&sb, "Generated: %s\n\n", doc.GeneratedAt.UTC().Format("2006-01-02 15:04:05 UTC"))
	fmt.Fprintf(&sb, "Verdict: %s\n", s.Verdict)
	fmt.Fprintf(&sb, "Tests: %d passed, %d failed, %d errors, %d skipped (pass rate %.1f%%)\n",
		s.TestsPassed, s.TestsFailed, s.TestsErrored, s.TestsSkipped, s.PassRate())
	sb.WriteString("\nFindings by severity:\n")
	all := schemas.AllSeverities()
	for i := len(all) - 1; i >= 0; i-- {
		fmt.Fprintf(&sb, "  %-8s %d\n", all[i], s.BySeverity[all[i]])
	}
	if s.UnparseableTools > 0 {
		fmt.Fprintf(&sb, "  unparseable tool reports: %d\n", s.UnparseableTools)
	}
	sb.WriteString("\nThe full report is attached.\n")
	return sb.String()
}

func htmlBody(doc *schemas.ReportDocument) string {
	s := doc.Summary
	color := map[schemas.Verdict]string{
		schemas.VerdictPass: "green",
		schemas.VerdictWarn: "orange",
		schemas.VerdictFail: "red",
	}[s.Verdict]

	var rows strings.Builder
	all := schemas.AllSeverities()
	for i := len(all) - 1; i >= 0; i-- {
		fmt.Fprintf(&rows, "<tr><td>%s</td><td align=\"center\">%d</td></tr>", all[i], s.BySeverity[all[i]])
	}
	if s.UnparseableTools > 0 {
		fmt.Fprintf(&rows, "<tr><td><i>Unparseable tool reports</i></td><td align=\"center\">%d</td></tr>", s.UnparseableTools)
	}

	return fmt.Sprintf(`<html><body style="font-family:Arial,sans-serif;color:#222;">
<h2>%s pipeline report: <span style="color:%s;font-weight:bold;">%s</span></h2>
<p><b>Tests:</b> %d passed, %d failed, %d errors, %d skipped (pass rate %.1f%%)</p>
<table border="1" cellpadding="6" cellspacing="0" style="border-collapse:collapse;">
<tr style="background-color:#f2f2f2;"><th>Severity</th><th>Count</th></tr>%s</table>
<p>The full report is attached.</p>
<p style="font-size:0.9em;color:#777;">Generated automatically on %s.</p>
</body></html>`,
		doc.Project, color, s.Verdict,
		s.TestsPassed, s.TestsFailed, s.TestsErrored, s.TestsSkipped, s.PassRate(),
		rows.String(),
		doc.GeneratedAt.UTC().Format("2006-01-02 15:04:05 UTC"))
}

// isTransient classifies transport errors. Connection-level trouble
// (refused, reset, timeouts) and 4xx SMTP responses are retryable;
// everything else, auth rejections included, is permanent.
func isTransient(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ETIMEDOUT) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var protoErr *textproto.Error
	if errors.As(err, &protoErr) {
		return protoErr.Code >= 400 && protoErr.Code < 500
	}
	return false
}
