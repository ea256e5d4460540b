package checkout

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"

	"github.com/safar/farmstand/internal/store"
	"go.opentelemetry.io/otel/trace"
)

// Status is a checkout lifecycle state as written to the audit log.
type Status string

const (
	StatusStarted      Status = "STARTED"
	StatusStepDone     Status = "STEP_DONE"
	StatusCompensating Status = "COMPENSATING"
	StatusCompleted    Status = "COMPLETED"
	StatusFailed       Status = "FAILED"
)

// Recorder persists checkout log entries. Implementations must not fail the
// checkout; write errors are theirs to report.
type Recorder interface {
	Record(ctx context.Context, entry *store.CheckoutLog)
}

// NewEntry builds a log entry stamped with the trace of the active span.
func NewEntry(ctx context.Context, checkoutID string, status Status, step string, payload json.RawMessage, errs []string) *store.CheckoutLog {
	entry := &store.CheckoutLog{
		CheckoutID:    checkoutID,
		Status:        string(status),
		CurrentStep:   step,
		Payload:       payload,
		ErrorMessages: errs,
	}

	sc := trace.SpanFromContext(ctx).SpanContext()
	if sc.IsValid() {
		entry.TraceID = sc.TraceID().String()
		entry.SpanID = sc.SpanID().String()
	}
	return entry
}

// DBRecorder appends entries to the checkout_logs table.
type DBRecorder struct {
	db *sql.DB
}

func NewDBRecorder(db *sql.DB) *DBRecorder {
	return &DBRecorder{db: db}
}

func (r *DBRecorder) Record(ctx context.Context, entry *store.CheckoutLog) {
	if err := store.AppendCheckoutLog(context.WithoutCancel(ctx), r.db, entry); err != nil {
		slog.ErrorContext(ctx, "failed to write checkout log",
			"checkout_id", entry.CheckoutID,
			"status", entry.Status,
			"error", err,
		)
	}
}
