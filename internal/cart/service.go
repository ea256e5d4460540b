package cart

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/safar/farmstand/internal/apperr"
	"github.com/safar/farmstand/internal/database"
	"github.com/safar/farmstand/internal/models"
	"github.com/safar/farmstand/internal/store"
)

// View is a cart together with its per-farmer projection.
type View struct {
	*models.Cart
	FarmerTotals []models.FarmerTotal `json:"farmer_totals"`
}

func newView(c *models.Cart) *View {
	return &View{Cart: c, FarmerTotals: FarmerTotals(c)}
}

type Service struct {
	db  *sql.DB
	ttl time.Duration
	now func() time.Time
}

func NewService(db *sql.DB, ttl time.Duration) *Service {
	return &Service{db: db, ttl: ttl, now: time.Now}
}

// GetOrCreateActiveCart returns the consumer's active cart, replacing an
// expired one with a fresh empty cart.
func (s *Service) GetOrCreateActiveCart(ctx context.Context, consumerID int64) (*View, error) {
	var c *models.Cart

	err := database.WithRetry(ctx, s.db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		var err error
		c, err = s.loadOrCreate(ctx, tx, consumerID)
		return err
	})
	if err != nil {
		return nil, err
	}

	return newView(c), nil
}

func (s *Service) AddLine(ctx context.Context, consumerID, productID int64, quantity int) (*View, error) {
	if productID <= 0 {
		return nil, apperr.Validation("product id is required")
	}
	if quantity < 1 {
		return nil, apperr.Validation("quantity must be at least 1")
	}

	return s.mutate(ctx, consumerID, func(tx *sql.Tx, c *models.Cart) error {
		product, err := store.GetProduct(ctx, tx, productID)
		if err != nil {
			if errors.Is(err, database.ErrProductNotFound) {
				return apperr.NotFound("product %d not found", productID)
			}
			return err
		}
		if !product.IsAvailable {
			return apperr.Conflict("product %s is not available", product.Name)
		}
		return AddLine(c, *product, quantity)
	})
}

func (s *Service) UpdateLineQuantity(ctx context.Context, consumerID int64, groupID string, productID int64, quantity int) (*View, error) {
	return s.mutate(ctx, consumerID, func(_ *sql.Tx, c *models.Cart) error {
		return UpdateLineQuantity(c, groupID, productID, quantity)
	})
}

// RemoveLine decrements or drops a line; quantity 0 drops it.
func (s *Service) RemoveLine(ctx context.Context, consumerID int64, groupID string, productID int64, quantity int) (*View, error) {
	return s.mutate(ctx, consumerID, func(_ *sql.Tx, c *models.Cart) error {
		return RemoveLine(c, groupID, productID, quantity)
	})
}

func (s *Service) ClearCart(ctx context.Context, consumerID int64) (*View, error) {
	return s.mutate(ctx, consumerID, func(_ *sql.Tx, c *models.Cart) error {
		Clear(c)
		return nil
	})
}

// SweepExpiredCarts abandons every active cart whose expiry has passed.
func (s *Service) SweepExpiredCarts(ctx context.Context) (int64, error) {
	n, err := store.AbandonExpiredCarts(ctx, s.db, s.now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		slog.InfoContext(ctx, "abandoned expired carts", "count", n)
	}
	return n, nil
}

// mutate loads the active cart, applies fn and writes the document back
// guarded by its version. A concurrent writer makes the whole attempt retry.
func (s *Service) mutate(ctx context.Context, consumerID int64, fn func(*sql.Tx, *models.Cart) error) (*View, error) {
	var c *models.Cart

	err := database.WithRetry(ctx, s.db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		var err error
		c, err = s.loadOrCreate(ctx, tx, consumerID)
		if err != nil {
			return err
		}

		if err := fn(tx, c); err != nil {
			return err
		}

		return store.SaveCart(ctx, tx, c, s.now().Add(s.ttl))
	})
	if err != nil {
		if errors.Is(err, database.ErrOptimisticLockFailed) {
			return nil, apperr.Conflict("cart was modified concurrently, please retry")
		}
		return nil, err
	}

	return newView(c), nil
}

func (s *Service) loadOrCreate(ctx context.Context, q database.Querier, consumerID int64) (*models.Cart, error) {
	c, err := store.GetActiveCart(ctx, q, consumerID)
	switch {
	case err == nil:
		if !c.ExpiresAt.After(s.now()) {
			if err := store.SetCartStatus(ctx, q, c.ID, models.CartStatusAbandoned); err != nil && !errors.Is(err, database.ErrCartNotFound) {
				return nil, err
			}
			slog.InfoContext(ctx, "cart expired", "cart_id", c.ID, "consumer_id", consumerID)
			return store.CreateActiveCart(ctx, q, consumerID, s.now().Add(s.ttl))
		}
		return c, nil
	case errors.Is(err, database.ErrCartNotFound):
		return store.CreateActiveCart(ctx, q, consumerID, s.now().Add(s.ttl))
	default:
		return nil, err
	}
}
