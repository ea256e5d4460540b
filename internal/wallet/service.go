// Package wallet keeps each consumer's processor customer and the payment
// methods saved on it.
package wallet

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

// Methods is a consumer's usable saved payment methods.
type Methods struct {
	HasPaymentMethods bool                        `json:"has_payment_methods"`
	PaymentMethods    []models.SavedPaymentMethod `json:"payment_methods"`
	Default           *models.SavedPaymentMethod  `json:"default_payment_method"`
}

type Service struct {
	db    *sql.DB
	vault payment.CustomerVault
	now   func() time.Time
}

func NewService(db *sql.DB, vault payment.CustomerVault) *Service {
	return &Service{db: db, vault: vault, now: time.Now}
}

// ListPaymentMethods returns the consumer's unexpired saved cards. A consumer
// without a processor customer has none.
func (s *Service) ListPaymentMethods(ctx context.Context, consumerID int64) (*Methods, error) {
	acct, err := s.consumer(ctx, consumerID)
	if err != nil {
		return nil, err
	}

	view := &Methods{PaymentMethods: []models.SavedPaymentMethod{}}
	customerID := acct.Consumer.PaymentCustomerID
	if customerID == "" {
		return view, nil
	}

	methods, err := s.vault.ListPaymentMethods(ctx, customerID)
	if err != nil {
		return nil, apperr.Payment(err, false, "could not load saved payment methods")
	}

	view.PaymentMethods = payment.ActiveMethods(methods, s.now())
	view.HasPaymentMethods = len(view.PaymentMethods) > 0
	for i := range view.PaymentMethods {
		if view.PaymentMethods[i].IsDefault {
			view.Default = &view.PaymentMethods[i]
			break
		}
	}
	return view, nil
}

// CreateSetupIntent starts saving a new payment method for the consumer,
// creating their processor customer first when they have none.
func (s *Service) CreateSetupIntent(ctx context.Context, consumerID int64) (*payment.SetupIntent, error) {
	customerID, err := s.EnsureCustomer(ctx, consumerID)
	if err != nil {
		return nil, err
	}

	si, err := s.vault.CreateSetupIntent(ctx, customerID)
	if err != nil {
		return nil, apperr.Payment(err, false, "could not start saving the payment method")
	}
	return si, nil
}

// EnsureCustomer returns the consumer's processor customer id, creating and
// storing one on first use. When two requests race, the first stored id wins.
func (s *Service) EnsureCustomer(ctx context.Context, consumerID int64) (string, error) {
	acct, err := s.consumer(ctx, consumerID)
	if err != nil {
		return "", err
	}
	if id := acct.Consumer.PaymentCustomerID; id != "" {
		return id, nil
	}

	created, err := s.vault.CreateCustomer(ctx, payment.CustomerRequest{
		AccountID: acct.ID,
		Email:     acct.Email,
		Name:      acct.Name,
	})
	if err != nil {
		return "", apperr.Payment(err, false, "could not register the consumer with the payment processor")
	}

	stored, err := store.SetPaymentCustomerID(ctx, s.db, acct.ID, created)
	if err != nil {
		return "", err
	}
	if stored != created {
		slog.WarnContext(ctx, "processor customer already recorded, discarding the new one",
			"consumer_id", acct.ID, "kept", stored, "discarded", created)
	}
	return stored, nil
}

func (s *Service) consumer(ctx context.Context, consumerID int64) (*models.Account, error) {
	acct, err := store.GetAccount(ctx, s.db, consumerID)
	if err != nil {
		if errors.Is(err, database.ErrAccountNotFound) {
			return nil, apperr.NotFound("consumer not found")
		}
		return nil, err
	}
	if acct.Role != models.RoleConsumer {
		return nil, apperr.Forbidden("only consumers can save payment methods")
	}
	if acct.Consumer == nil {
		acct.Consumer = &models.ConsumerProfile{}
	}
	return acct, nil
}
