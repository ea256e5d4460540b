package payment

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/safar/farmstand/internal/models"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
)

type StripeGateway struct {
	api *client.API
}

func NewStripeGateway(secretKey string) *StripeGateway {
	return newStripeGateway(secretKey, nil)
}

func newStripeGateway(secretKey string, backends *stripe.Backends) *StripeGateway {
	return &StripeGateway{api: client.New(secretKey, backends)}
}

func (g *StripeGateway) Name() string { return "stripe" }

// CreatePaymentIntent creates an unconfirmed intent. Redirect based methods
// are disabled so confirmation settles synchronously.
func (g *StripeGateway) CreatePaymentIntent(ctx context.Context, req IntentRequest) (*Intent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(ToMinorUnits(req.Amount)),
		Currency:      stripe.String(req.Currency),
		PaymentMethod: stripe.String(req.PaymentMethodToken),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled:        stripe.Bool(true),
			AllowRedirects: stripe.String("never"),
		},
	}
	params.Context = ctx
	if req.CustomerID != "" {
		params.Customer = stripe.String(req.CustomerID)
	}
	if req.Reference != "" {
		params.AddMetadata("checkout_id", req.Reference)
	}
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}

	pi, err := g.api.PaymentIntents.New(params)
	if err != nil {
		return nil, classifyStripeError("create payment intent", err)
	}

	return &Intent{ID: pi.ID, Status: string(pi.Status)}, nil
}

func (g *StripeGateway) ConfirmPaymentIntent(ctx context.Context, intentID string) (*Intent, error) {
	params := &stripe.PaymentIntentConfirmParams{}
	params.Context = ctx

	pi, err := g.api.PaymentIntents.Confirm(intentID, params)
	if err != nil {
		return nil, classifyStripeError("confirm payment intent", err)
	}

	return &Intent{ID: pi.ID, Status: string(pi.Status)}, nil
}

func (g *StripeGateway) RetrievePaymentMethod(ctx context.Context, token string) (*models.PaymentMethodSnapshot, error) {
	params := &stripe.PaymentMethodParams{}
	params.Context = ctx

	pm, err := g.api.PaymentMethods.Get(token, params)
	if err != nil {
		return nil, classifyStripeError("retrieve payment method", err)
	}

	return methodSnapshot(pm), nil
}

func (g *StripeGateway) CancelPaymentIntent(ctx context.Context, intentID string) error {
	params := &stripe.PaymentIntentCancelParams{}
	params.Context = ctx

	if _, err := g.api.PaymentIntents.Cancel(intentID, params); err != nil {
		return classifyStripeError("cancel payment intent", err)
	}
	return nil
}

// RefundPaymentIntent refunds everything captured on the intent.
func (g *StripeGateway) RefundPaymentIntent(ctx context.Context, intentID string) error {
	params := &stripe.RefundParams{PaymentIntent: stripe.String(intentID)}
	params.Context = ctx
	params.SetIdempotencyKey("refund-" + intentID)

	if _, err := g.api.Refunds.New(params); err != nil {
		return classifyStripeError("refund payment intent", err)
	}
	return nil
}

// CreateCustomer is keyed on the account id, so concurrent calls for one
// account within the processor's idempotency window yield one customer.
func (g *StripeGateway) CreateCustomer(ctx context.Context, req CustomerRequest) (string, error) {
	params := &stripe.CustomerParams{
		Email: stripe.String(req.Email),
		Name:  stripe.String(req.Name),
	}
	params.Context = ctx
	params.AddMetadata("account_id", strconv.FormatInt(req.AccountID, 10))
	params.SetIdempotencyKey("customer-" + strconv.FormatInt(req.AccountID, 10))

	c, err := g.api.Customers.New(params)
	if err != nil {
		return "", classifyStripeError("create customer", err)
	}
	return c.ID, nil
}

func (g *StripeGateway) CreateSetupIntent(ctx context.Context, customerID string) (*SetupIntent, error) {
	params := &stripe.SetupIntentParams{
		Customer: stripe.String(customerID),
		AutomaticPaymentMethods: &stripe.SetupIntentAutomaticPaymentMethodsParams{
			Enabled:        stripe.Bool(true),
			AllowRedirects: stripe.String("never"),
		},
	}
	params.Context = ctx

	si, err := g.api.SetupIntents.New(params)
	if err != nil {
		return nil, classifyStripeError("create setup intent", err)
	}
	return &SetupIntent{ID: si.ID, ClientSecret: si.ClientSecret}, nil
}

// ListPaymentMethods returns the cards saved on the customer, flagging the
// customer's default one.
func (g *StripeGateway) ListPaymentMethods(ctx context.Context, customerID string) ([]models.SavedPaymentMethod, error) {
	custParams := &stripe.CustomerParams{}
	custParams.Context = ctx
	cust, err := g.api.Customers.Get(customerID, custParams)
	if err != nil {
		return nil, classifyStripeError("retrieve customer", err)
	}
	var defaultID string
	if cust.InvoiceSettings != nil && cust.InvoiceSettings.DefaultPaymentMethod != nil {
		defaultID = cust.InvoiceSettings.DefaultPaymentMethod.ID
	}

	params := &stripe.PaymentMethodListParams{
		Customer: stripe.String(customerID),
		Type:     stripe.String(string(stripe.PaymentMethodTypeCard)),
	}
	params.Context = ctx

	methods := []models.SavedPaymentMethod{}
	iter := g.api.PaymentMethods.List(params)
	for iter.Next() {
		pm := iter.PaymentMethod()
		methods = append(methods, models.SavedPaymentMethod{
			ID:                    pm.ID,
			PaymentMethodSnapshot: *methodSnapshot(pm),
			IsDefault:             pm.ID == defaultID,
		})
	}
	if err := iter.Err(); err != nil {
		return nil, classifyStripeError("list payment methods", err)
	}
	return methods, nil
}

func methodSnapshot(pm *stripe.PaymentMethod) *models.PaymentMethodSnapshot {
	snapshot := &models.PaymentMethodSnapshot{Type: string(pm.Type)}
	if pm.Card != nil {
		snapshot.LastFour = pm.Card.Last4
		snapshot.CardBrand = string(pm.Card.Brand)
		snapshot.ExpiryMonth = int(pm.Card.ExpMonth)
		snapshot.ExpiryYear = int(pm.Card.ExpYear)
	}
	return snapshot
}

func classifyStripeError(op string, err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) && stripeErr.Type == stripe.ErrorTypeCard {
		return fmt.Errorf("%s: %w: %s", op, ErrDeclined, stripeErr.Msg)
	}
	return fmt.Errorf("%s: %w", op, err)
}
