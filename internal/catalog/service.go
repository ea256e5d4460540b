// Package catalog manages farmers' products. Stock levels are adjusted by
// checkout and cancellation, not here.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/safar/farmstand/internal/apperr"
	"github.com/safar/farmstand/internal/database"
	"github.com/safar/farmstand/internal/models"
	"github.com/safar/farmstand/internal/store"
	"github.com/shopspring/decimal"
)

type ProductRequest struct {
	Name        string          `json:"name" validate:"required,max=200"`
	Description string          `json:"description" validate:"max=5000"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock" validate:"gte=0"`
	IsAvailable *bool           `json:"is_available"`
}

type UpdateProductRequest struct {
	ProductRequest
	Version int `json:"version" validate:"required,gte=1"`
}

type Service struct {
	db *sql.DB
}

func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

func (r ProductRequest) input() (store.ProductInput, error) {
	name := strings.TrimSpace(r.Name)
	if name == "" {
		return store.ProductInput{}, apperr.Validation("product name is required")
	}
	if !r.Price.IsPositive() {
		return store.ProductInput{}, apperr.Validation("price must be positive")
	}
	if r.Price.Exponent() < -2 {
		return store.ProductInput{}, apperr.Validation("price has more than two decimal places")
	}
	if r.Stock < 0 {
		return store.ProductInput{}, apperr.Validation("stock cannot be negative")
	}
	available := true
	if r.IsAvailable != nil {
		available = *r.IsAvailable
	}
	return store.ProductInput{
		Name:        name,
		Description: r.Description,
		Price:       r.Price,
		Stock:       r.Stock,
		IsAvailable: available,
	}, nil
}

// CreateProduct lists a new product for the calling farmer.
func (s *Service) CreateProduct(ctx context.Context, actor models.Identity, req ProductRequest) (*models.Product, error) {
	if actor.Role != models.RoleFarmer {
		return nil, apperr.Forbidden("only farmers can create products")
	}
	in, err := req.input()
	if err != nil {
		return nil, err
	}
	return store.CreateProduct(ctx, s.db, actor.UserID, in)
}

func (s *Service) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	p, err := store.GetProduct(ctx, s.db, id)
	if err != nil {
		if errors.Is(err, database.ErrProductNotFound) {
			return nil, apperr.NotFound("product not found")
		}
		return nil, err
	}
	return p, nil
}

// ListProducts pages through the catalog. farmerID narrows it to one farmer.
func (s *Service) ListProducts(ctx context.Context, farmerID *int64, page, pageSize int) (*store.OffsetPage, error) {
	return store.ListProducts(ctx, s.db, farmerID, page, pageSize)
}

// UpdateProduct overwrites a product the caller owns, or any product for an
// admin, provided the version the caller read is still current.
func (s *Service) UpdateProduct(ctx context.Context, actor models.Identity, id int64, req UpdateProductRequest) (*models.Product, error) {
	in, err := req.input()
	if err != nil {
		return nil, err
	}
	if _, err := s.owned(ctx, actor, id); err != nil {
		return nil, err
	}

	p, err := store.UpdateProduct(ctx, s.db, id, req.Version, in)
	if err != nil {
		if errors.Is(err, database.ErrOptimisticLockFailed) {
			return nil, apperr.Conflict("product was modified by another request, reload and retry")
		}
		return nil, err
	}
	return p, nil
}

// DeleteProduct removes a product. Products already sold stay referenced by
// their order lines and cannot be deleted.
func (s *Service) DeleteProduct(ctx context.Context, actor models.Identity, id int64) error {
	if _, err := s.owned(ctx, actor, id); err != nil {
		return err
	}

	if err := store.DeleteProduct(ctx, s.db, id); err != nil {
		switch {
		case errors.Is(err, database.ErrProductNotFound):
			return apperr.NotFound("product not found")
		case database.IsForeignKeyViolation(err):
			return apperr.Conflict("product is referenced by existing orders, mark it unavailable instead")
		}
		return err
	}
	return nil
}

func (s *Service) owned(ctx context.Context, actor models.Identity, id int64) (*models.Product, error) {
	p, err := s.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}
	switch actor.Role {
	case models.RoleAdmin:
		return p, nil
	case models.RoleFarmer:
		if p.FarmerID == actor.UserID {
			return p, nil
		}
	}
	return nil, apperr.Forbidden("you do not own this product")
}
