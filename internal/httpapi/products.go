package httpapi

import (
	"net/http"
	"strconv"

	"github.com/safar/farmstand/internal/apperr"
	"github.com/safar/farmstand/internal/catalog"
)

func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	var farmerID *int64
	if v := r.URL.Query().Get("farmer_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil || id <= 0 {
			writeError(r.Context(), w, apperr.Validation("invalid farmer_id"))
			return
		}
		farmerID = &id
	}

	page, err := h.catalog.ListProducts(r.Context(), farmerID, queryInt(r, "page", 1), queryInt(r, "page_size", 0))
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeData(w, http.StatusOK, "", page)
}

func (h *Handler) ListMyProducts(w http.ResponseWriter, r *http.Request) {
	farmerID := IdentityFrom(r.Context()).UserID
	page, err := h.catalog.ListProducts(r.Context(), &farmerID, queryInt(r, "page", 1), queryInt(r, "page_size", 0))
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeData(w, http.StatusOK, "", page)
}

func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	product, err := h.catalog.GetProduct(r.Context(), id)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeData(w, http.StatusOK, "", product)
}

func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req catalog.ProductRequest
	if err := decode(r, &req); err != nil {
		writeError(r.Context(), w, err)
		return
	}
	product, err := h.catalog.CreateProduct(r.Context(), IdentityFrom(r.Context()), req)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeData(w, http.StatusCreated, "product created", product)
}

func (h *Handler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	var req catalog.UpdateProductRequest
	if err := decode(r, &req); err != nil {
		writeError(r.Context(), w, err)
		return
	}
	product, err := h.catalog.UpdateProduct(r.Context(), IdentityFrom(r.Context()), id, req)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeData(w, http.StatusOK, "product updated", product)
}

func (h *Handler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	if err := h.catalog.DeleteProduct(r.Context(), IdentityFrom(r.Context()), id); err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeData(w, http.StatusOK, "product deleted", nil)
}
