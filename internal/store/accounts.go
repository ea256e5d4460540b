package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/safar/farmstand/internal/database"
	"github.com/safar/farmstand/internal/models"
)

const accountColumns = `id, email, name, role, payment_customer_id, farm_name, created_at, updated_at, version`

// CreateAccount persists acct. The role payload matching acct.Role is
// stored; any other payload is ignored.
func CreateAccount(ctx context.Context, q database.Querier, acct models.Account) (*models.Account, error) {
	if !acct.Role.Valid() || acct.Role == models.RoleGuest {
		return nil, fmt.Errorf("create account: invalid role %q", acct.Role)
	}

	var customerID, farmName sql.NullString
	switch acct.Role {
	case models.RoleConsumer:
		if acct.Consumer != nil && acct.Consumer.PaymentCustomerID != "" {
			customerID = sql.NullString{String: acct.Consumer.PaymentCustomerID, Valid: true}
		}
	case models.RoleFarmer:
		if acct.Farmer != nil {
			farmName = sql.NullString{String: acct.Farmer.FarmName, Valid: true}
		}
	}

	query := `
		INSERT INTO accounts (email, name, role, payment_customer_id, farm_name, created_at, updated_at, version)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW(), 1)
		RETURNING ` + accountColumns

	created, err := scanAccount(q.QueryRowContext(ctx, query, acct.Email, acct.Name, acct.Role, customerID, farmName))
	if err != nil {
		return nil, fmt.Errorf("create account: %w", err)
	}

	return created, nil
}

func GetAccount(ctx context.Context, q database.Querier, id int64) (*models.Account, error) {
	acct, err := scanAccount(q.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrAccountNotFound
		}
		return nil, fmt.Errorf("get account: %w", err)
	}

	return acct, nil
}

// SetPaymentCustomerID records customerID on a consumer unless one is already
// set, and returns the id the account ends up with.
func SetPaymentCustomerID(ctx context.Context, q database.Querier, accountID int64, customerID string) (string, error) {
	var current string
	err := q.QueryRowContext(ctx, `
		UPDATE accounts
		SET payment_customer_id = COALESCE(NULLIF(payment_customer_id, ''), $1),
		    updated_at = NOW(),
		    version = version + 1
		WHERE id = $2 AND role = 'consumer'
		RETURNING payment_customer_id`,
		customerID, accountID).Scan(&current)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", database.ErrAccountNotFound
		}
		return "", fmt.Errorf("set payment customer: %w", err)
	}

	return current, nil
}

func scanAccount(row *sql.Row) (*models.Account, error) {
	acct := &models.Account{}
	var customerID, farmName sql.NullString

	err := row.Scan(
		&acct.ID,
		&acct.Email,
		&acct.Name,
		&acct.Role,
		&customerID,
		&farmName,
		&acct.CreatedAt,
		&acct.UpdatedAt,
		&acct.Version,
	)
	if err != nil {
		return nil, err
	}

	switch acct.Role {
	case models.RoleConsumer:
		acct.Consumer = &models.ConsumerProfile{PaymentCustomerID: customerID.String}
	case models.RoleFarmer:
		acct.Farmer = &models.FarmerProfile{FarmName: farmName.String}
	}

	return acct, nil
}
