//go:build integration

package payment_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/safar/farmstand/internal/cache"
	"github.com/safar/farmstand/internal/database"
	"github.com/safar/farmstand/internal/dbtest"
	"github.com/safar/farmstand/internal/models"
	"github.com/safar/farmstand/internal/payment"
	"github.com/safar/farmstand/internal/store"
	"github.com/shopspring/decimal"
)

func seedOrder(t *testing.T, db *sql.DB, transactionID string) *models.Order {
	t.Helper()
	farmer := dbtest.CreateAccount(t, db, models.RoleFarmer)
	consumer := dbtest.CreateAccount(t, db, models.RoleConsumer)
	p := dbtest.CreateProduct(t, db, farmer.ID, "Eggs", "10.00", 10)

	total := decimal.RequireFromString("20.00")
	o := &models.Order{
		ConsumerID:      &consumer.ID,
		ShippingAddress: models.ShippingAddress{Street: "1 Lane", City: "Town", State: "ST", ZipCode: "1", Country: "US"},
		Status:          models.OrderStatusPending,
		PaymentStatus:   models.PaymentStatusProcessing,
		TotalAmount:     total,
		Currency:        "usd",
		Payment:         models.PaymentDetails{TransactionID: transactionID, Processor: "stripe"},
		Groups: []models.OrderItemGroup{{
			FarmerID: farmer.ID,
			Status:   models.ItemStatusPending,
			Subtotal: total,
			Lines: []models.OrderProductLine{{
				ProductID: p.ID, ProductName: p.Name, Quantity: 2, UnitPrice: p.Price, Subtotal: total,
			}},
		}},
	}
	err := database.WithTransaction(context.Background(), db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		return store.InsertOrder(context.Background(), tx, o)
	})
	if err != nil {
		t.Fatalf("Insert order: %v", err)
	}
	return o
}

func TestSynchronizerAppliesEventsIdempotently(t *testing.T) {
	db := dbtest.SetupDB(t)
	ctx := context.Background()
	order := seedOrder(t, db, "pi_sync_1")
	sync := payment.NewSynchronizer(db, nil)

	at := time.Now().UTC().Truncate(time.Second)
	succeeded := &payment.Event{ID: "evt_1", Kind: payment.EventSucceeded, TransactionID: "pi_sync_1", Amount: 2000, OccurredAt: at}

	for i := 0; i < 2; i++ {
		if err := sync.Handle(ctx, succeeded); err != nil {
			t.Fatalf("Handle attempt %d: %v", i+1, err)
		}
	}

	got, err := store.GetOrder(ctx, db, order.ID)
	if err != nil {
		t.Fatalf("Get order: %v", err)
	}
	if got.PaymentStatus != models.PaymentStatusPaid || got.Status != models.OrderStatusProcessing {
		t.Errorf("Expected paid/processing, got %s/%s", got.PaymentStatus, got.Status)
	}
	if got.Payment.PaidAt == nil || !got.Payment.PaidAt.Equal(at) {
		t.Errorf("Expected paid_at %v, got %v", at, got.Payment.PaidAt)
	}

	refund := &payment.Event{ID: "evt_2", Kind: payment.EventRefunded, TransactionID: "pi_sync_1", Amount: 2000, AmountRefunded: 500, OccurredAt: at.Add(time.Minute)}
	for i := 0; i < 2; i++ {
		if err := sync.Handle(ctx, refund); err != nil {
			t.Fatalf("Handle refund %d: %v", i+1, err)
		}
	}

	got, err = store.GetOrder(ctx, db, order.ID)
	if err != nil {
		t.Fatalf("Get order: %v", err)
	}
	if got.PaymentStatus != models.PaymentStatusPartiallyRefunded {
		t.Errorf("Expected partially_refunded, got %s", got.PaymentStatus)
	}
	if !got.Payment.RefundAmount.Equal(decimal.RequireFromString("5.00")) {
		t.Errorf("Expected refund 5.00, got %s", got.Payment.RefundAmount)
	}

	// An older delivery arriving late must not rewind the refund.
	if err := sync.Handle(ctx, succeeded); err != nil {
		t.Fatalf("Handle late event: %v", err)
	}
	got, _ = store.GetOrder(ctx, db, order.ID)
	if got.PaymentStatus != models.PaymentStatusPartiallyRefunded {
		t.Errorf("Late event rewound payment status to %s", got.PaymentStatus)
	}
}

func TestSynchronizerUnknownTransactionIsAcknowledged(t *testing.T) {
	db := dbtest.SetupDB(t)
	sync := payment.NewSynchronizer(db, nil)

	err := sync.Handle(context.Background(), &payment.Event{
		ID: "evt_9", Kind: payment.EventSucceeded, TransactionID: "pi_missing", OccurredAt: time.Now(),
	})
	if err != nil {
		t.Errorf("Expected unknown transaction to be acknowledged, got: %v", err)
	}
}

func TestSynchronizerWithRedisDeduplication(t *testing.T) {
	db := dbtest.SetupDB(t)
	rdb := cache.NewRedisClient(dbtest.SetupRedis(t), "", 0)
	t.Cleanup(func() { _ = rdb.Close() })
	ctx := context.Background()

	events := cache.NewEventStore(rdb, "farmstand-test", time.Hour)
	order := seedOrder(t, db, "pi_sync_2")
	sync := payment.NewSynchronizer(db, events)

	ev := &payment.Event{ID: "evt_dup", Kind: payment.EventFailed, TransactionID: "pi_sync_2", OccurredAt: time.Now().UTC().Truncate(time.Second)}
	if err := sync.Handle(ctx, ev); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	seen, err := events.Seen(ctx, "evt_dup")
	if err != nil {
		t.Fatalf("Seen: %v", err)
	}
	if !seen {
		t.Error("Expected event to be marked as seen")
	}

	// A redelivery is skipped before touching the database, even after a
	// manual correction.
	if _, err := db.Exec(`UPDATE orders SET payment_status = 'processing' WHERE id = $1`, order.ID); err != nil {
		t.Fatalf("Reset payment status: %v", err)
	}
	if err := sync.Handle(ctx, ev); err != nil {
		t.Fatalf("Handle duplicate: %v", err)
	}
	got, _ := store.GetOrder(ctx, db, order.ID)
	if got.PaymentStatus != models.PaymentStatusProcessing {
		t.Errorf("Duplicate event should have been skipped, got %s", got.PaymentStatus)
	}
}
