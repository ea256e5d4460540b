package fulfillment

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/safar/farmstand/internal/apperr"
	"github.com/safar/farmstand/internal/database"
	"github.com/safar/farmstand/internal/models"
	"github.com/safar/farmstand/internal/payment"
	"github.com/safar/farmstand/internal/store"
)

type Service struct {
	db      *sql.DB
	gateway payment.Gateway
}

func NewService(db *sql.DB, gateway payment.Gateway) *Service {
	return &Service{db: db, gateway: gateway}
}

// TransitionItemStatus moves one farmer's item group to a new status and
// re-derives the order status, all under the order row lock.
func (s *Service) TransitionItemStatus(ctx context.Context, orderID, groupID, actorFarmerID int64, to models.ItemStatus) (*models.Order, error) {
	var order *models.Order

	err := database.WithRetry(ctx, s.db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		var err error
		order, err = store.GetOrderForUpdate(ctx, tx, orderID)
		if err != nil {
			return err
		}

		group := findGroup(order, groupID)
		if group == nil {
			return apperr.NotFound("order item %d not found in order %d", groupID, orderID)
		}
		if group.FarmerID != actorFarmerID {
			return apperr.Forbidden("you are not authorized to update this order item")
		}
		if order.Status == models.OrderStatusCancelled || order.Status == models.OrderStatusRefunded {
			return apperr.Conflict("order %s is %s", order.OrderNumber, order.Status)
		}

		from := group.Status
		if err := Transition(group, to); err != nil {
			return err
		}
		if err := store.CompareAndSetGroupStatus(ctx, tx, group.ID, from, to); err != nil {
			return err
		}
		if to == models.ItemStatusCancelled && from != models.ItemStatusSent {
			if err := restoreGroupStock(ctx, tx, group); err != nil {
				return err
			}
		}

		next := AggregateOrderStatus(order.Status, order.Groups)
		if next != order.Status {
			if err := store.UpdateOrderStatus(ctx, tx, order.ID, next); err != nil {
				return err
			}
			order.Status = next
		}
		return nil
	})
	if err != nil {
		return nil, translate(err)
	}

	slog.InfoContext(ctx, "order item status changed",
		"order_id", orderID,
		"group_id", groupID,
		"farmer_id", actorFarmerID,
		"status", to,
		"order_status", order.Status,
	)
	return onlyFarmer(order, actorFarmerID), nil
}

// CancelOrder lets a consumer cancel an order nothing of which has shipped.
// Open groups are cancelled, their stock restored, and an unsettled payment
// intent is cancelled with the processor.
func (s *Service) CancelOrder(ctx context.Context, orderID, consumerID int64) (*models.Order, error) {
	var order *models.Order
	var intentToCancel string

	err := database.WithRetry(ctx, s.db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		var err error
		order, err = store.GetOrderForUpdate(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if order.ConsumerID == nil || *order.ConsumerID != consumerID {
			return apperr.Forbidden("you are not authorized to cancel this order")
		}

		switch order.Status {
		case models.OrderStatusPending, models.OrderStatusProcessing:
		default:
			return apperr.Conflict("order cannot be cancelled while %s", order.Status)
		}
		for _, g := range order.Groups {
			if g.Status == models.ItemStatusSent || g.Status == models.ItemStatusDelivered {
				return apperr.Conflict("order cannot be cancelled, items have already shipped")
			}
		}

		for gi := range order.Groups {
			group := &order.Groups[gi]
			if group.Status == models.ItemStatusCancelled {
				continue
			}
			from := group.Status
			if err := Transition(group, models.ItemStatusCancelled); err != nil {
				return err
			}
			if err := store.CompareAndSetGroupStatus(ctx, tx, group.ID, from, models.ItemStatusCancelled); err != nil {
				return err
			}
			if err := restoreGroupStock(ctx, tx, group); err != nil {
				return err
			}
		}

		intentToCancel = ""
		if order.Payment.TransactionID != "" && !order.PaymentStatus.Settled() {
			intentToCancel = order.Payment.TransactionID
		}

		order.Status = models.OrderStatusCancelled
		if !order.PaymentStatus.Settled() {
			order.PaymentStatus = models.PaymentStatusCancelled
		}
		return store.UpdateOrderPayment(ctx, tx, order)
	})
	if err != nil {
		return nil, translate(err)
	}

	if intentToCancel != "" && s.gateway != nil {
		if err := s.gateway.CancelPaymentIntent(ctx, intentToCancel); err != nil {
			slog.ErrorContext(ctx, "failed to cancel payment intent for cancelled order",
				"order_id", order.ID,
				"transaction_id", intentToCancel,
				"error", err,
			)
		}
	}

	slog.InfoContext(ctx, "order cancelled", "order_id", order.ID, "consumer_id", consumerID)
	return order, nil
}

// restoreGroupStock returns a cancelled group's quantities to inventory. A
// group cancelled after it was sent keeps its stock out; the goods left the farm.
func restoreGroupStock(ctx context.Context, tx *sql.Tx, group *models.OrderItemGroup) error {
	for _, line := range group.Lines {
		if err := store.RestoreStock(ctx, tx, line.ProductID, line.Quantity); err != nil {
			return err
		}
	}
	return nil
}

// UpdateOrderStatus is an administrative override of the order status.
func (s *Service) UpdateOrderStatus(ctx context.Context, orderID int64, status models.OrderStatus) (*models.Order, error) {
	if !status.Valid() {
		return nil, apperr.Validation("unknown order status %q", status)
	}

	var order *models.Order
	err := database.WithRetry(ctx, s.db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		var err error
		order, err = store.GetOrderForUpdate(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if err := store.UpdateOrderStatus(ctx, tx, order.ID, status); err != nil {
			return err
		}
		order.Status = status
		return nil
	})
	if err != nil {
		return nil, translate(err)
	}

	slog.InfoContext(ctx, "order status overridden", "order_id", orderID, "status", status)
	return order, nil
}

// UpdatePaymentStatus is an administrative override of the payment status.
func (s *Service) UpdatePaymentStatus(ctx context.Context, orderID int64, status models.PaymentStatus) (*models.Order, error) {
	if !status.Valid() {
		return nil, apperr.Validation("unknown payment status %q", status)
	}

	var order *models.Order
	err := database.WithRetry(ctx, s.db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		var err error
		order, err = store.GetOrderForUpdate(ctx, tx, orderID)
		if err != nil {
			return err
		}
		order.PaymentStatus = status
		if status == models.PaymentStatusPaid && order.Payment.PaidAt == nil {
			now := time.Now().UTC()
			order.Payment.PaidAt = &now
		}
		return store.UpdateOrderPayment(ctx, tx, order)
	})
	if err != nil {
		return nil, translate(err)
	}

	slog.InfoContext(ctx, "payment status overridden", "order_id", orderID, "payment_status", status)
	return order, nil
}

// GetOrder returns the order if actor may see it. Farmers only see their
// own item groups.
func (s *Service) GetOrder(ctx context.Context, actor models.Identity, orderID int64) (*models.Order, error) {
	order, err := store.GetOrder(ctx, s.db, orderID)
	if err != nil {
		return nil, translate(err)
	}

	switch actor.Role {
	case models.RoleAdmin:
		return order, nil
	case models.RoleConsumer:
		if order.ConsumerID != nil && *order.ConsumerID == actor.UserID {
			return order, nil
		}
	case models.RoleFarmer:
		if order.HasFarmer(actor.UserID) {
			return onlyFarmer(order, actor.UserID), nil
		}
	}
	return nil, apperr.Forbidden("you are not authorized to view this order")
}

func (s *Service) ListConsumerOrders(ctx context.Context, consumerID int64, cursor string, limit int) (*store.CursorPage, error) {
	if _, err := store.DecodeCursor(cursor); err != nil {
		return nil, apperr.Validation("invalid cursor")
	}
	return store.ListConsumerOrders(ctx, s.db, consumerID, cursor, limit)
}

func (s *Service) ListFarmerOrders(ctx context.Context, farmerID int64, page, pageSize int) (*store.OffsetPage, error) {
	return store.ListFarmerOrders(ctx, s.db, farmerID, page, pageSize)
}

func (s *Service) ListAllOrders(ctx context.Context, status models.OrderStatus, page, pageSize int) (*store.OffsetPage, error) {
	if status != "" && !status.Valid() {
		return nil, apperr.Validation("unknown order status %q", status)
	}
	return store.ListOrders(ctx, s.db, status, page, pageSize)
}

func findGroup(o *models.Order, groupID int64) *models.OrderItemGroup {
	for i := range o.Groups {
		if o.Groups[i].ID == groupID {
			return &o.Groups[i]
		}
	}
	return nil
}

func onlyFarmer(o *models.Order, farmerID int64) *models.Order {
	filtered := *o
	filtered.Groups = nil
	for _, g := range o.Groups {
		if g.FarmerID == farmerID {
			filtered.Groups = append(filtered.Groups, g)
		}
	}
	return &filtered
}

func translate(err error) error {
	switch {
	case errors.Is(err, database.ErrOrderNotFound):
		return apperr.NotFound("order not found")
	case errors.Is(err, database.ErrOptimisticLockFailed):
		return apperr.Conflict("order item was modified concurrently, please retry")
	}
	return err
}
