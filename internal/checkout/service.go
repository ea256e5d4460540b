// Package checkout turns a consumer's cart, or a guest's item list, into an
// order: stock is reserved, payment is initiated and the order snapshot is
// persisted, with earlier steps compensated when a later one fails.
package checkout

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/safar/farmstand/internal/apperr"
	"github.com/safar/farmstand/internal/cart"
	"github.com/safar/farmstand/internal/database"
	"github.com/safar/farmstand/internal/models"
	"github.com/safar/farmstand/internal/notify"
	"github.com/safar/farmstand/internal/payment"
	"github.com/safar/farmstand/internal/store"
	"github.com/shopspring/decimal"
)

type CheckoutRequest struct {
	ShippingAddressID  int64  `json:"shipping_address_id" validate:"required,gt=0"`
	PaymentMethodToken string `json:"payment_method_id" validate:"required"`
	Notes              string `json:"notes" validate:"max=1000"`
}

type GuestItem struct {
	ProductID int64 `json:"product_id" validate:"required,gt=0"`
	Quantity  int   `json:"quantity" validate:"required,gte=1"`
}

type GuestCheckoutRequest struct {
	Items              []GuestItem            `json:"items" validate:"required,min=1,dive"`
	Address            models.ShippingAddress `json:"shipping_address" validate:"required"`
	Contact            models.Contact         `json:"contact" validate:"required"`
	PaymentMethodToken string                 `json:"payment_method_id" validate:"required"`
	Notes              string                 `json:"notes" validate:"max=1000"`
}

type Service struct {
	db             *sql.DB
	gateway        payment.Gateway
	notifier       notify.Notifier
	recorder       Recorder
	currency       string
	captureTimeout time.Duration
	now            func() time.Time
}

func NewService(db *sql.DB, gateway payment.Gateway, notifier notify.Notifier, recorder Recorder, currency string, captureTimeout time.Duration) *Service {
	return &Service{
		db:             db,
		gateway:        gateway,
		notifier:       notifier,
		recorder:       recorder,
		currency:       currency,
		captureTimeout: captureTimeout,
		now:            time.Now,
	}
}

// ConvertCartToOrder checks out the consumer's active cart.
func (s *Service) ConvertCartToOrder(ctx context.Context, consumerID int64, req CheckoutRequest) (*models.Order, error) {
	if req.ShippingAddressID <= 0 || req.PaymentMethodToken == "" {
		return nil, apperr.Validation("payment method and shipping address are required")
	}

	c, err := store.GetActiveCart(ctx, s.db, consumerID)
	if err != nil && !errors.Is(err, database.ErrCartNotFound) {
		return nil, err
	}
	if c == nil || c.IsEmpty() || !c.ExpiresAt.After(s.now()) {
		return nil, apperr.Validation("cart is empty")
	}

	addr, err := store.GetAddressForAccount(ctx, s.db, req.ShippingAddressID, consumerID)
	if err != nil {
		if errors.Is(err, database.ErrAddressNotFound) {
			return nil, apperr.NotFound("shipping address not found")
		}
		return nil, err
	}

	acct, err := store.GetAccount(ctx, s.db, consumerID)
	if err != nil {
		if errors.Is(err, database.ErrAccountNotFound) {
			return nil, apperr.NotFound("consumer not found")
		}
		return nil, err
	}
	if acct.Role != models.RoleConsumer {
		return nil, apperr.Forbidden("only consumers can check out a cart")
	}

	order := orderFromCart(c, addr.Snapshot(), s.currency)
	order.ConsumerID = &consumerID
	order.Notes = req.Notes

	var customerID string
	if acct.Consumer != nil {
		customerID = acct.Consumer.PaymentCustomerID
	}

	if err := s.run(ctx, order, c, customerID, req.PaymentMethodToken); err != nil {
		return nil, err
	}

	s.sendConfirmation(ctx, acct.Email, acct.Name, order)
	return order, nil
}

// GuestCheckout checks out a plain item list at live catalog prices.
func (s *Service) GuestCheckout(ctx context.Context, req GuestCheckoutRequest) (*models.Order, error) {
	if len(req.Items) == 0 {
		return nil, apperr.Validation("at least one item is required")
	}
	if req.PaymentMethodToken == "" {
		return nil, apperr.Validation("payment method is required")
	}
	if req.Contact.Email == "" || req.Contact.Name == "" {
		return nil, apperr.Validation("contact name and email are required")
	}

	ids := make([]int64, 0, len(req.Items))
	for _, it := range req.Items {
		if it.ProductID <= 0 || it.Quantity < 1 {
			return nil, apperr.Validation("every item needs a product id and a quantity of at least 1")
		}
		ids = append(ids, it.ProductID)
	}

	products, err := store.GetProducts(ctx, s.db, ids)
	if err != nil {
		return nil, err
	}

	draft, err := guestCart(req.Items, products)
	if err != nil {
		return nil, err
	}

	order := orderFromCart(draft, req.Address, s.currency)
	contact := req.Contact
	order.Guest = &contact
	order.Notes = req.Notes

	if err := s.run(ctx, order, nil, "", req.PaymentMethodToken); err != nil {
		return nil, err
	}

	s.sendConfirmation(ctx, contact.Email, contact.Name, order)
	return order, nil
}

func (s *Service) run(ctx context.Context, order *models.Order, c *models.Cart, customerID, token string) error {
	checkoutID := uuid.NewString()

	capture := &capturePaymentStep{
		gateway: s.gateway,
		timeout: s.captureTimeout,
		request: payment.IntentRequest{
			Amount:             order.TotalAmount,
			Currency:           s.currency,
			CustomerID:         customerID,
			PaymentMethodToken: token,
			Reference:          checkoutID,
			IdempotencyKey:     checkoutID,
		},
	}

	steps := []Step{
		&reserveStockStep{db: s.db, requests: stockRequests(order.Groups)},
		capture,
		&persistOrderStep{db: s.db, order: order, payment: capture, cart: c},
	}

	payload := map[string]any{"total_amount": order.TotalAmount, "groups": len(order.Groups)}
	if order.ConsumerID != nil {
		payload["consumer_id"] = *order.ConsumerID
	} else {
		payload["guest_email"] = order.Guest.Email
	}

	// Once started a checkout runs to completion or compensation; the
	// capture timeout bounds the only external call.
	ctx = context.WithoutCancel(ctx)
	if err := NewOrchestrator(checkoutID, steps, s.recorder, payload).Start(ctx); err != nil {
		return err
	}

	slog.InfoContext(ctx, "order created",
		"checkout_id", checkoutID,
		"order_id", order.ID,
		"order_number", order.OrderNumber,
		"total", order.TotalAmount.StringFixed(2),
		"payment_status", order.PaymentStatus,
	)
	return nil
}

// sendConfirmation notifies the buyer in the background. A failure is
// logged and never affects the order.
func (s *Service) sendConfirmation(ctx context.Context, email, name string, order *models.Order) {
	if s.notifier == nil {
		return
	}
	snapshot := *order
	bg := context.WithoutCancel(ctx)
	go func() {
		if err := s.notifier.SendOrderConfirmation(bg, email, name, &snapshot); err != nil {
			slog.ErrorContext(bg, "order confirmation failed", "order_id", snapshot.ID, "error", err)
		}
	}()
}

// orderFromCart freezes the cart's groups and prices into a new order.
func orderFromCart(c *models.Cart, addr models.ShippingAddress, currency string) *models.Order {
	order := &models.Order{
		ShippingAddress: addr,
		Status:          models.OrderStatusPending,
		PaymentStatus:   models.PaymentStatusPending,
		Currency:        currency,
		Payment:         models.PaymentDetails{RefundAmount: decimal.Zero},
		Groups:          make([]models.OrderItemGroup, 0, len(c.Groups)),
	}

	total := decimal.Zero
	for _, cg := range c.Groups {
		group := models.OrderItemGroup{
			FarmerID: cg.FarmerID,
			Status:   models.ItemStatusPending,
			Lines:    make([]models.OrderProductLine, 0, len(cg.Lines)),
		}
		subtotal := decimal.Zero
		for _, cl := range cg.Lines {
			line := models.OrderProductLine{
				ProductID:   cl.ProductID,
				ProductName: cl.ProductName,
				Quantity:    cl.Quantity,
				UnitPrice:   cl.UnitPrice,
				Subtotal:    cl.UnitPrice.Mul(decimal.NewFromInt(int64(cl.Quantity))),
			}
			subtotal = subtotal.Add(line.Subtotal)
			group.Lines = append(group.Lines, line)
		}
		group.Subtotal = subtotal
		total = total.Add(subtotal)
		order.Groups = append(order.Groups, group)
	}
	order.TotalAmount = total

	return order
}

// guestCart groups a guest's items by farmer the same way a cart would.
func guestCart(items []GuestItem, products map[int64]models.Product) (*models.Cart, error) {
	draft := &models.Cart{}
	for _, it := range items {
		p, ok := products[it.ProductID]
		if !ok {
			return nil, apperr.NotFound("product %d not found", it.ProductID)
		}
		if !p.IsAvailable {
			return nil, apperr.Conflict("product %s is not available", p.Name)
		}
		if err := cart.AddLine(draft, p, it.Quantity); err != nil {
			return nil, err
		}
	}
	return draft, nil
}
