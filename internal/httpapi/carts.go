package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

type addCartItemRequest struct {
	ProductID int64 `json:"product_id" validate:"required,gt=0"`
	Quantity  int   `json:"quantity" validate:"required,gte=1"`
}

type updateCartItemRequest struct {
	Quantity int `json:"quantity" validate:"required,gte=1"`
}

func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	view, err := h.carts.GetOrCreateActiveCart(r.Context(), IdentityFrom(r.Context()).UserID)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeData(w, http.StatusOK, "", view)
}

func (h *Handler) AddCartItem(w http.ResponseWriter, r *http.Request) {
	var req addCartItemRequest
	if err := decode(r, &req); err != nil {
		writeError(r.Context(), w, err)
		return
	}
	view, err := h.carts.AddLine(r.Context(), IdentityFrom(r.Context()).UserID, req.ProductID, req.Quantity)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeData(w, http.StatusOK, "item added to cart", view)
}

func (h *Handler) UpdateCartItem(w http.ResponseWriter, r *http.Request) {
	productID, err := pathID(r, "productID")
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	var req updateCartItemRequest
	if err := decode(r, &req); err != nil {
		writeError(r.Context(), w, err)
		return
	}
	view, err := h.carts.UpdateLineQuantity(r.Context(), IdentityFrom(r.Context()).UserID, chi.URLParam(r, "groupID"), productID, req.Quantity)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeData(w, http.StatusOK, "cart item updated", view)
}

// RemoveCartItem removes ?quantity= units of a line, or the whole line
// when quantity is absent.
func (h *Handler) RemoveCartItem(w http.ResponseWriter, r *http.Request) {
	productID, err := pathID(r, "productID")
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	view, err := h.carts.RemoveLine(r.Context(), IdentityFrom(r.Context()).UserID, chi.URLParam(r, "groupID"), productID, queryInt(r, "quantity", 0))
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeData(w, http.StatusOK, "item removed from cart", view)
}

func (h *Handler) ClearCart(w http.ResponseWriter, r *http.Request) {
	view, err := h.carts.ClearCart(r.Context(), IdentityFrom(r.Context()).UserID)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeData(w, http.StatusOK, "cart cleared", view)
}
