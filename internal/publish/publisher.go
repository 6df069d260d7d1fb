// Package publish defines the delivery-sink contract. Publishers absorb
// their own failures: a sink reports its outcome through a receipt and
// never returns an error that could abort the run or a sibling sink.
package publish

import (
	"context"

	"github.com/xkilldash9x/reportpipe/api/schemas"
)

// Publisher delivers a rendered report to one external sink.
type Publisher interface {
	Sink() schemas.Sink
	Publish(ctx context.Context, doc *schemas.ReportDocument) schemas.PublishReceipt
}

// Skipped builds the receipt for a sink that is disabled by configuration.
func Skipped(sink schemas.Sink) schemas.PublishReceipt {
	return schemas.PublishReceipt{Sink: sink, Status: schemas.ReceiptSkipped}
}
