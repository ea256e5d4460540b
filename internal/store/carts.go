package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/safar/farmstand/internal/database"
	"github.com/safar/farmstand/internal/models"
)

const cartColumns = `id, consumer_id, status, groups, total_amount, expires_at, created_at, updated_at, version`

func scanCart(row interface{ Scan(...any) error }) (*models.Cart, error) {
	c := &models.Cart{}
	var groups []byte

	err := row.Scan(
		&c.ID,
		&c.ConsumerID,
		&c.Status,
		&groups,
		&c.TotalAmount,
		&c.ExpiresAt,
		&c.CreatedAt,
		&c.UpdatedAt,
		&c.Version,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(groups, &c.Groups); err != nil {
		return nil, fmt.Errorf("decode cart groups: %w", err)
	}
	if c.Groups == nil {
		c.Groups = []models.CartLineGroup{}
	}

	return c, nil
}

func GetActiveCart(ctx context.Context, q database.Querier, consumerID int64) (*models.Cart, error) {
	c, err := scanCart(q.QueryRowContext(ctx,
		`SELECT `+cartColumns+` FROM carts WHERE consumer_id = $1 AND status = 'active'`,
		consumerID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrCartNotFound
		}
		return nil, fmt.Errorf("get active cart: %w", err)
	}

	return c, nil
}

// GetActiveCartForUpdate locks the consumer's active cart row.
func GetActiveCartForUpdate(ctx context.Context, tx *sql.Tx, consumerID int64) (*models.Cart, error) {
	c, err := scanCart(tx.QueryRowContext(ctx,
		`SELECT `+cartColumns+` FROM carts WHERE consumer_id = $1 AND status = 'active' FOR UPDATE`,
		consumerID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrCartNotFound
		}
		return nil, fmt.Errorf("lock active cart: %w", err)
	}

	return c, nil
}

// CreateActiveCart inserts an empty active cart. When another request won
// the race for the consumer's single active slot, that cart is returned.
func CreateActiveCart(ctx context.Context, q database.Querier, consumerID int64, expiresAt time.Time) (*models.Cart, error) {
	c, err := scanCart(q.QueryRowContext(ctx, `
		INSERT INTO carts (consumer_id, status, groups, total_amount, expires_at, created_at, updated_at, version)
		VALUES ($1, 'active', '[]', 0, $2, NOW(), NOW(), 1)
		ON CONFLICT (consumer_id) WHERE status = 'active' DO NOTHING
		RETURNING `+cartColumns,
		consumerID, expiresAt))
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("create cart: %w", err)
	}

	return GetActiveCart(ctx, q, consumerID)
}

// SaveCart writes the cart document back if nobody else changed it since it
// was loaded. On success c.Version and c.UpdatedAt reflect the new row.
func SaveCart(ctx context.Context, q database.Querier, c *models.Cart, expiresAt time.Time) error {
	groups, err := json.Marshal(c.Groups)
	if err != nil {
		return fmt.Errorf("encode cart groups: %w", err)
	}

	err = q.QueryRowContext(ctx, `
		UPDATE carts
		SET groups = $1, total_amount = $2, expires_at = $3, updated_at = NOW(), version = version + 1
		WHERE id = $4 AND version = $5 AND status = 'active'
		RETURNING version, updated_at, expires_at`,
		groups, c.TotalAmount, expiresAt, c.ID, c.Version).Scan(&c.Version, &c.UpdatedAt, &c.ExpiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return database.ErrOptimisticLockFailed
		}
		return fmt.Errorf("save cart: %w", err)
	}

	return nil
}

// SetCartStatus moves an active cart to a terminal status. It reports
// ErrCartNotFound when the cart is no longer active.
func SetCartStatus(ctx context.Context, q database.Querier, cartID int64, status models.CartStatus) error {
	result, err := q.ExecContext(ctx, `
		UPDATE carts
		SET status = $1, updated_at = NOW(), version = version + 1
		WHERE id = $2 AND status = 'active'`,
		status, cartID)
	if err != nil {
		return fmt.Errorf("set cart status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return database.ErrCartNotFound
	}

	return nil
}

// ConvertCart marks the cart converted provided it is still active and has
// not changed since version was read.
func ConvertCart(ctx context.Context, q database.Querier, cartID int64, version int) error {
	result, err := q.ExecContext(ctx, `
		UPDATE carts
		SET status = 'converted', updated_at = NOW(), version = version + 1
		WHERE id = $1 AND version = $2 AND status = 'active'`,
		cartID, version)
	if err != nil {
		return fmt.Errorf("convert cart: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return database.ErrOptimisticLockFailed
	}

	return nil
}

// AbandonExpiredCarts marks every active cart past its expiry as abandoned.
func AbandonExpiredCarts(ctx context.Context, q database.Querier, now time.Time) (int64, error) {
	result, err := q.ExecContext(ctx, `
		UPDATE carts
		SET status = 'abandoned', updated_at = NOW(), version = version + 1
		WHERE status = 'active' AND expires_at <= $1`,
		now)
	if err != nil {
		return 0, fmt.Errorf("abandon expired carts: %w", err)
	}

	return result.RowsAffected()
}
