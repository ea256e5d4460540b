package checkout

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/safar/farmstand/internal/apperr"
	"github.com/safar/farmstand/internal/database"
	"github.com/safar/farmstand/internal/models"
	"github.com/safar/farmstand/internal/payment"
	"github.com/safar/farmstand/internal/store"
)

// stockRequest is the total quantity of one product needed by a checkout.
type stockRequest struct {
	ProductID int64
	Quantity  int
}

// stockRequests sums quantities per product across every order line, sorted
// by product id.
func stockRequests(groups []models.OrderItemGroup) []stockRequest {
	totals := make(map[int64]int)
	for _, g := range groups {
		for _, l := range g.Lines {
			totals[l.ProductID] += l.Quantity
		}
	}

	reqs := make([]stockRequest, 0, len(totals))
	for id, qty := range totals {
		reqs = append(reqs, stockRequest{ProductID: id, Quantity: qty})
	}
	sort.Slice(reqs, func(i, j int) bool { return reqs[i].ProductID < reqs[j].ProductID })
	return reqs
}

// --- reserveStockStep ---

type reserveStockStep struct {
	db       *sql.DB
	requests []stockRequest
}

func (s *reserveStockStep) Name() string { return "Reserve_Stock_Step" }

// Execute validates every product before touching any of them, then
// decrements each one conditionally. Everything happens in a single
// transaction holding row locks taken in product id order.
func (s *reserveStockStep) Execute(ctx context.Context) error {
	ids := make([]int64, len(s.requests))
	for i, r := range s.requests {
		ids[i] = r.ProductID
	}

	err := database.WithRetry(ctx, s.db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		products, err := store.LockProducts(ctx, tx, ids)
		if err != nil {
			return err
		}

		var shortfalls []apperr.StockShortfall
		for _, r := range s.requests {
			p, ok := products[r.ProductID]
			if !ok {
				return apperr.NotFound("product %d not found", r.ProductID)
			}
			if !p.IsAvailable {
				return apperr.Conflict("product %s is no longer available", p.Name)
			}
			if p.Stock < r.Quantity {
				shortfalls = append(shortfalls, apperr.StockShortfall{
					ProductID: p.ID,
					Name:      p.Name,
					Available: p.Stock,
					Requested: r.Quantity,
				})
			}
		}
		if len(shortfalls) > 0 {
			return apperr.InsufficientStock(shortfalls)
		}

		for _, r := range s.requests {
			if err := store.DecrementStock(ctx, tx, r.ProductID, r.Quantity); err != nil {
				if errors.Is(err, database.ErrInsufficientStock) {
					p := products[r.ProductID]
					return apperr.InsufficientStock([]apperr.StockShortfall{{
						ProductID: p.ID, Name: p.Name, Available: p.Stock, Requested: r.Quantity,
					}})
				}
				return err
			}
		}
		return nil
	})
	if errors.Is(err, database.ErrLockTimeout) {
		return apperr.Conflict("products are busy with another checkout, try again")
	}
	return err
}

func (s *reserveStockStep) Compensate(ctx context.Context) error {
	return database.WithRetry(ctx, s.db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		for _, r := range s.requests {
			if err := store.RestoreStock(ctx, tx, r.ProductID, r.Quantity); err != nil {
				return err
			}
		}
		return nil
	})
}

// --- capturePaymentStep ---

type capturePaymentStep struct {
	gateway payment.Gateway
	timeout time.Duration
	request payment.IntentRequest

	intent  *payment.Intent
	display *models.PaymentMethodSnapshot
}

func (s *capturePaymentStep) Name() string { return "Payment_Capture_Step" }

// Execute creates the intent, then confirms it. Once the intent exists any
// failure releases it here, since a failing step is not compensated.
func (s *capturePaymentStep) Execute(ctx context.Context) error {
	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	created, err := s.gateway.CreatePaymentIntent(callCtx, s.request)
	if err != nil {
		return captureError(callCtx, err)
	}

	intent, err := s.gateway.ConfirmPaymentIntent(callCtx, created.ID)
	if err != nil {
		s.releaseQuietly(ctx, created.ID)
		return captureError(callCtx, err)
	}

	switch intent.Status {
	case "requires_payment_method", "requires_action", "canceled":
		s.releaseQuietly(ctx, intent.ID)
		return apperr.Payment(nil, true, "payment was not accepted (%s)", intent.Status)
	}
	s.intent = intent

	display, err := s.gateway.RetrievePaymentMethod(callCtx, s.request.PaymentMethodToken)
	if err != nil {
		slog.WarnContext(ctx, "payment method display info unavailable", "transaction_id", intent.ID, "error", err)
	} else {
		s.display = display
	}
	return nil
}

func captureError(callCtx context.Context, err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded):
		return apperr.Payment(err, false, "payment processor timed out")
	case errors.Is(err, payment.ErrDeclined):
		return apperr.Payment(err, true, "payment was declined")
	default:
		return apperr.Payment(err, false, "payment processor error")
	}
}

func (s *capturePaymentStep) Compensate(ctx context.Context) error {
	if s.intent == nil {
		return nil
	}
	return s.release(ctx, s.intent.ID)
}

// release cancels the intent, or refunds it when it already captured funds.
func (s *capturePaymentStep) release(ctx context.Context, intentID string) error {
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	cancelErr := s.gateway.CancelPaymentIntent(callCtx, intentID)
	if cancelErr == nil {
		return nil
	}
	if err := s.gateway.RefundPaymentIntent(callCtx, intentID); err != nil {
		return fmt.Errorf("release payment intent %s: %w", intentID, errors.Join(cancelErr, err))
	}
	slog.InfoContext(ctx, "payment intent refunded", "transaction_id", intentID)
	return nil
}

func (s *capturePaymentStep) releaseQuietly(ctx context.Context, intentID string) {
	if err := s.release(ctx, intentID); err != nil {
		slog.ErrorContext(ctx, "failed to release payment intent", "transaction_id", intentID, "error", err)
	}
}

// --- persistOrderStep ---

type persistOrderStep struct {
	db      *sql.DB
	order   *models.Order
	payment *capturePaymentStep
	// cart is converted in the same transaction; nil for guest checkouts.
	cart *models.Cart
}

func (s *persistOrderStep) Name() string { return "Persist_Order_Step" }

func (s *persistOrderStep) Execute(ctx context.Context) error {
	intent := s.payment.intent
	s.order.PaymentStatus = payment.InitialPaymentStatus(intent.Status)
	s.order.Payment.TransactionID = intent.ID
	s.order.Payment.Processor = s.payment.gateway.Name()
	s.order.Payment.ProcessorToken = s.payment.request.PaymentMethodToken
	s.order.Payment.MethodSnapshot = s.payment.display
	if intent.Status == "succeeded" {
		// The settlement webhook may race ahead of this insert and find no
		// order, so record the outcome the processor already reported.
		payment.Apply(s.order, payment.Event{
			Kind:          payment.EventSucceeded,
			TransactionID: intent.ID,
			OccurredAt:    time.Now().UTC().Truncate(time.Second),
		})
	}

	return database.WithTransaction(ctx, s.db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		if err := store.InsertOrder(ctx, tx, s.order); err != nil {
			return err
		}
		if s.cart == nil {
			return nil
		}
		if err := store.ConvertCart(ctx, tx, s.cart.ID, s.cart.Version); err != nil {
			if errors.Is(err, database.ErrOptimisticLockFailed) {
				return apperr.Conflict("cart changed during checkout, please review it and try again")
			}
			return err
		}
		return nil
	})
}

func (s *persistOrderStep) Compensate(ctx context.Context) error {
	return nil
}
