package httpapi

import (
	"context"
	"database/sql"
	"errors"
	"net/http"

	"github.com/safar/farmstand/internal/apperr"
	"github.com/safar/farmstand/internal/database"
	"github.com/safar/farmstand/internal/models"
	"github.com/safar/farmstand/internal/store"
)

type addAddressRequest struct {
	models.ShippingAddress
	IsDefault bool `json:"is_default"`
}

// StoreAddressBook serves addresses straight from the database.
type StoreAddressBook struct {
	db *sql.DB
}

func NewStoreAddressBook(db *sql.DB) *StoreAddressBook {
	return &StoreAddressBook{db: db}
}

func (b *StoreAddressBook) CreateAddress(ctx context.Context, accountID int64, addr models.ShippingAddress, isDefault bool) (*models.Address, error) {
	created, err := store.CreateAddress(ctx, b.db, accountID, addr, isDefault)
	if err != nil {
		if errors.Is(err, database.ErrDuplicateDefault) {
			return nil, apperr.Conflict("another default address was set at the same time, please retry")
		}
		return nil, err
	}
	return created, nil
}

func (b *StoreAddressBook) ListAddresses(ctx context.Context, accountID int64) ([]models.Address, error) {
	return store.ListAddresses(ctx, b.db, accountID)
}

func (h *Handler) ListAddresses(w http.ResponseWriter, r *http.Request) {
	addrs, err := h.addresses.ListAddresses(r.Context(), IdentityFrom(r.Context()).UserID)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeData(w, http.StatusOK, "", addrs)
}

func (h *Handler) AddAddress(w http.ResponseWriter, r *http.Request) {
	var req addAddressRequest
	if err := decode(r, &req); err != nil {
		writeError(r.Context(), w, err)
		return
	}
	addr, err := h.addresses.CreateAddress(r.Context(), IdentityFrom(r.Context()).UserID, req.ShippingAddress, req.IsDefault)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeData(w, http.StatusCreated, "address added", addr)
}
