package payment

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"

	"github.com/safar/farmstand/internal/database"
	"github.com/safar/farmstand/internal/store"
)

// Deduplicator remembers processed event ids across deliveries.
type Deduplicator interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	MarkSeen(ctx context.Context, eventID string) error
}

// Synchronizer applies processor events to the orders they refer to.
type Synchronizer struct {
	db    *sql.DB
	dedup Deduplicator
}

// NewSynchronizer builds a Synchronizer. dedup may be nil; event
// application is idempotent on its own and the cache only saves a
// round-trip to the database.
func NewSynchronizer(db *sql.DB, dedup Deduplicator) *Synchronizer {
	return &Synchronizer{db: db, dedup: dedup}
}

// Handle applies ev to its order. An event for an unknown transaction is
// logged and acknowledged.
func (s *Synchronizer) Handle(ctx context.Context, ev *Event) error {
	if ev == nil {
		return nil
	}

	logger := slog.With("event_id", ev.ID, "event_kind", ev.Kind, "transaction_id", ev.TransactionID)

	if s.dedup != nil {
		seen, err := s.dedup.Seen(ctx, ev.ID)
		if err != nil {
			logger.WarnContext(ctx, "event dedup lookup failed", "error", err)
		} else if seen {
			logger.DebugContext(ctx, "duplicate payment event skipped")
			return nil
		}
	}

	err := database.WithRetry(ctx, s.db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		order, err := store.GetOrderByTransactionForUpdate(ctx, tx, ev.TransactionID)
		if err != nil {
			return err
		}

		if !Apply(order, *ev) {
			logger.InfoContext(ctx, "payment event already reflected", "order_id", order.ID)
			return nil
		}

		if err := store.UpdateOrderPayment(ctx, tx, order); err != nil {
			return err
		}

		logger.InfoContext(ctx, "payment event applied",
			"order_id", order.ID,
			"status", order.Status,
			"payment_status", order.PaymentStatus,
		)
		return nil
	})
	if errors.Is(err, database.ErrOrderNotFound) {
		logger.WarnContext(ctx, "no order for payment event")
		err = nil
	}
	if err != nil {
		return err
	}

	if s.dedup != nil {
		if err := s.dedup.MarkSeen(ctx, ev.ID); err != nil {
			logger.WarnContext(ctx, "event dedup mark failed", "error", err)
		}
	}
	return nil
}
