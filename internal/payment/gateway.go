// Package payment talks to the external payment processor and folds its
// asynchronous lifecycle events back into orders.
package payment

import (
	"context"
	"errors"

	"github.com/safar/farmstand/internal/models"
	"github.com/shopspring/decimal"
)

// ErrDeclined marks a rejection caused by the payment method itself, as
// opposed to a processor or network failure.
var ErrDeclined = errors.New("payment declined")

type IntentRequest struct {
	Amount             decimal.Decimal
	Currency           string
	CustomerID         string
	PaymentMethodToken string
	// Reference ties the intent back to a checkout in the processor dashboard.
	Reference string
	// IdempotencyKey makes a repeated create return the intent of the first call.
	IdempotencyKey string
}

type Intent struct {
	ID     string
	Status string
}

// Gateway is the slice of the processor used by checkout and cancellation.
// Intents are created unconfirmed and confirmed separately, so the intent id
// is known before any money can move.
type Gateway interface {
	CreatePaymentIntent(ctx context.Context, req IntentRequest) (*Intent, error)
	ConfirmPaymentIntent(ctx context.Context, intentID string) (*Intent, error)
	RetrievePaymentMethod(ctx context.Context, token string) (*models.PaymentMethodSnapshot, error)
	CancelPaymentIntent(ctx context.Context, intentID string) error
	RefundPaymentIntent(ctx context.Context, intentID string) error
	Name() string
}

// InitialPaymentStatus maps the status the processor reports when an intent
// is created onto the order's starting payment status.
func InitialPaymentStatus(intentStatus string) models.PaymentStatus {
	switch intentStatus {
	case "processing":
		return models.PaymentStatusProcessing
	case "requires_capture":
		return models.PaymentStatusAuthorized
	default:
		return models.PaymentStatusPending
	}
}

// ToMinorUnits converts a two-decimal currency amount into cents.
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

func FromMinorUnits(amount int64) decimal.Decimal {
	return decimal.New(amount, -2)
}
