package payment

import (
	"context"
	"time"

	"github.com/safar/farmstand/internal/models"
)

type CustomerRequest struct {
	AccountID int64
	Email     string
	Name      string
}

// SetupIntent lets the client save a payment method without charging it.
type SetupIntent struct {
	ID           string `json:"id"`
	ClientSecret string `json:"client_secret"`
}

// CustomerVault is the processor-side customer record and the payment
// methods saved on it.
type CustomerVault interface {
	CreateCustomer(ctx context.Context, req CustomerRequest) (string, error)
	CreateSetupIntent(ctx context.Context, customerID string) (*SetupIntent, error)
	ListPaymentMethods(ctx context.Context, customerID string) ([]models.SavedPaymentMethod, error)
}

// ActiveMethods drops cards that expired before now. A card stays valid
// through the last day of its expiry month.
func ActiveMethods(methods []models.SavedPaymentMethod, now time.Time) []models.SavedPaymentMethod {
	active := make([]models.SavedPaymentMethod, 0, len(methods))
	for _, m := range methods {
		if m.ExpiryYear == 0 || m.ExpiryMonth == 0 {
			active = append(active, m)
			continue
		}
		firstInvalid := time.Date(m.ExpiryYear, time.Month(m.ExpiryMonth)+1, 1, 0, 0, 0, 0, time.UTC)
		if now.Before(firstInvalid) {
			active = append(active, m)
		}
	}
	return active
}
