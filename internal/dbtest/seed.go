package dbtest

import (
	"context"
	"database/sql"
	"testing"

	"github.com/google/uuid"
	"github.com/safar/farmstand/internal/models"
	"github.com/safar/farmstand/internal/store"
	"github.com/shopspring/decimal"
)

// CreateAccount inserts an account with a unique email.
func CreateAccount(t *testing.T, db *sql.DB, role models.Role) *models.Account {
	t.Helper()
	acct := models.Account{
		Email: uuid.NewString() + "@example.com",
		Name:  "Test " + string(role),
		Role:  role,
	}
	switch role {
	case models.RoleFarmer:
		acct.Farmer = &models.FarmerProfile{FarmName: "Test Farm"}
	case models.RoleConsumer:
		acct.Consumer = &models.ConsumerProfile{PaymentCustomerID: "cus_test"}
	}

	created, err := store.CreateAccount(context.Background(), db, acct)
	if err != nil {
		t.Fatalf("Create account: %v", err)
	}
	return created
}

func CreateProduct(t *testing.T, db *sql.DB, farmerID int64, name, price string, stock int) *models.Product {
	t.Helper()
	p, err := store.CreateProduct(context.Background(), db, farmerID, store.ProductInput{
		Name:        name,
		Price:       decimal.RequireFromString(price),
		Stock:       stock,
		IsAvailable: true,
	})
	if err != nil {
		t.Fatalf("Create product: %v", err)
	}
	return p
}

func CreateAddress(t *testing.T, db *sql.DB, accountID int64) *models.Address {
	t.Helper()
	addr, err := store.CreateAddress(context.Background(), db, accountID, models.ShippingAddress{
		Street:  "1 Orchard Lane",
		City:    "Springfield",
		State:   "OR",
		ZipCode: "97477",
		Country: "US",
	}, true)
	if err != nil {
		t.Fatalf("Create address: %v", err)
	}
	return addr
}

// Stock reads a product's current stock level.
func Stock(t *testing.T, db *sql.DB, productID int64) int {
	t.Helper()
	p, err := store.GetProduct(context.Background(), db, productID)
	if err != nil {
		t.Fatalf("Get product: %v", err)
	}
	return p.Stock
}
