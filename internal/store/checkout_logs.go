package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/safar/farmstand/internal/database"
)

// CheckoutLog is one row of the append-only checkout audit trail.
type CheckoutLog struct {
	ID            int64           `json:"id"`
	CheckoutID    string          `json:"checkout_id"`
	Status        string          `json:"status"`
	CurrentStep   string          `json:"current_step"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	ErrorMessages []string        `json:"error_messages"`
	TraceID       string          `json:"trace_id,omitempty"`
	SpanID        string          `json:"span_id,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

func AppendCheckoutLog(ctx context.Context, q database.Querier, entry *CheckoutLog) error {
	errs := entry.ErrorMessages
	if errs == nil {
		errs = []string{}
	}
	errJSON, err := json.Marshal(errs)
	if err != nil {
		return fmt.Errorf("encode checkout log errors: %w", err)
	}

	var payload any
	if len(entry.Payload) > 0 {
		payload = []byte(entry.Payload)
	}

	err = q.QueryRowContext(ctx, `
		INSERT INTO checkout_logs (checkout_id, status, current_step, payload, error_messages, trace_id, span_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		RETURNING id, created_at`,
		entry.CheckoutID, entry.Status, entry.CurrentStep, payload, errJSON, entry.TraceID, entry.SpanID,
	).Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("append checkout log: %w", err)
	}

	return nil
}

func ListCheckoutLogs(ctx context.Context, q database.Querier, checkoutID string) ([]CheckoutLog, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, checkout_id, status, current_step, payload, error_messages, trace_id, span_id, created_at
		FROM checkout_logs
		WHERE checkout_id = $1
		ORDER BY created_at, id`,
		checkoutID)
	if err != nil {
		return nil, fmt.Errorf("list checkout logs: %w", err)
	}
	defer rows.Close()

	logs := []CheckoutLog{}
	for rows.Next() {
		var entry CheckoutLog
		var payload, errJSON []byte
		if err := rows.Scan(&entry.ID, &entry.CheckoutID, &entry.Status, &entry.CurrentStep,
			&payload, &errJSON, &entry.TraceID, &entry.SpanID, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan checkout log: %w", err)
		}
		if len(payload) > 0 {
			entry.Payload = json.RawMessage(payload)
		}
		if err := json.Unmarshal(errJSON, &entry.ErrorMessages); err != nil {
			return nil, fmt.Errorf("decode checkout log errors: %w", err)
		}
		logs = append(logs, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return logs, nil
}
