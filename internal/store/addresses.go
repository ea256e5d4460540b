package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/safar/farmstand/internal/database"
	"github.com/safar/farmstand/internal/models"
)

const addressColumns = `id, account_id, street, city, state, zip_code, country, is_default, created_at`

func scanAddress(row interface{ Scan(...any) error }, addr *models.Address) error {
	return row.Scan(
		&addr.ID,
		&addr.AccountID,
		&addr.Street,
		&addr.City,
		&addr.State,
		&addr.ZipCode,
		&addr.Country,
		&addr.IsDefault,
		&addr.CreatedAt,
	)
}

// CreateAddress stores a new address for accountID. When the address is the
// new default the previous default is cleared in the same transaction; two
// concurrent default writes surface as ErrDuplicateDefault.
func CreateAddress(ctx context.Context, db *sql.DB, accountID int64, addr models.ShippingAddress, isDefault bool) (*models.Address, error) {
	created := &models.Address{}

	err := database.WithTransaction(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		if isDefault {
			if _, err := tx.ExecContext(ctx,
				`UPDATE addresses SET is_default = FALSE WHERE account_id = $1 AND is_default`,
				accountID); err != nil {
				return fmt.Errorf("clear default address: %w", err)
			}
		}

		query := `
			INSERT INTO addresses (account_id, street, city, state, zip_code, country, is_default, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
			RETURNING ` + addressColumns

		err := scanAddress(tx.QueryRowContext(ctx, query,
			accountID, addr.Street, addr.City, addr.State, addr.ZipCode, addr.Country, isDefault), created)
		if err != nil {
			if database.IsUniqueViolation(err, "addresses_one_default_idx") {
				return database.ErrDuplicateDefault
			}
			return fmt.Errorf("create address: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return created, nil
}

// GetAddressForAccount returns the address only when accountID owns it.
func GetAddressForAccount(ctx context.Context, q database.Querier, id, accountID int64) (*models.Address, error) {
	addr := &models.Address{}

	err := scanAddress(q.QueryRowContext(ctx,
		`SELECT `+addressColumns+` FROM addresses WHERE id = $1 AND account_id = $2`,
		id, accountID), addr)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrAddressNotFound
		}
		return nil, fmt.Errorf("get address: %w", err)
	}

	return addr, nil
}

func ListAddresses(ctx context.Context, q database.Querier, accountID int64) ([]models.Address, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+addressColumns+` FROM addresses WHERE account_id = $1 ORDER BY is_default DESC, created_at DESC`,
		accountID)
	if err != nil {
		return nil, fmt.Errorf("list addresses: %w", err)
	}
	defer rows.Close()

	addresses := []models.Address{}
	for rows.Next() {
		var addr models.Address
		if err := scanAddress(rows, &addr); err != nil {
			return nil, fmt.Errorf("scan address: %w", err)
		}
		addresses = append(addresses, addr)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return addresses, nil
}
