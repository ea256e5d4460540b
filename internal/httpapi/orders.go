package httpapi

import (
	"net/http"

	"github.com/safar/farmstand/internal/apperr"
	"github.com/safar/farmstand/internal/checkout"
	"github.com/safar/farmstand/internal/models"
)

type itemStatusRequest struct {
	Status models.ItemStatus `json:"status" validate:"required,oneof=pending accepted sent delivered cancelled"`
}

type orderStatusRequest struct {
	Status models.OrderStatus `json:"status" validate:"required"`
}

type paymentStatusRequest struct {
	Status models.PaymentStatus `json:"payment_status" validate:"required"`
}

func (h *Handler) CheckoutCart(w http.ResponseWriter, r *http.Request) {
	var req checkout.CheckoutRequest
	if err := decode(r, &req); err != nil {
		writeError(r.Context(), w, err)
		return
	}
	order, err := h.checkouts.ConvertCartToOrder(r.Context(), IdentityFrom(r.Context()).UserID, req)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeData(w, http.StatusCreated, "order created", order)
}

func (h *Handler) GuestCheckout(w http.ResponseWriter, r *http.Request) {
	var req checkout.GuestCheckoutRequest
	if err := decode(r, &req); err != nil {
		writeError(r.Context(), w, err)
		return
	}
	order, err := h.checkouts.GuestCheckout(r.Context(), req)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeData(w, http.StatusCreated, "order created", order)
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	order, err := h.orders.GetOrder(r.Context(), IdentityFrom(r.Context()), id)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeData(w, http.StatusOK, "", order)
}

func (h *Handler) ListMyOrders(w http.ResponseWriter, r *http.Request) {
	page, err := h.orders.ListConsumerOrders(r.Context(), IdentityFrom(r.Context()).UserID, r.URL.Query().Get("cursor"), queryInt(r, "limit", 0))
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeData(w, http.StatusOK, "", page)
}

func (h *Handler) ListFarmerOrders(w http.ResponseWriter, r *http.Request) {
	page, err := h.orders.ListFarmerOrders(r.Context(), IdentityFrom(r.Context()).UserID, queryInt(r, "page", 1), queryInt(r, "page_size", 0))
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeData(w, http.StatusOK, "", page)
}

func (h *Handler) ListAllOrders(w http.ResponseWriter, r *http.Request) {
	status := models.OrderStatus(r.URL.Query().Get("status"))
	if status != "" && !status.Valid() {
		writeError(r.Context(), w, apperr.Validation("unknown order status %q", status))
		return
	}
	page, err := h.orders.ListAllOrders(r.Context(), status, queryInt(r, "page", 1), queryInt(r, "page_size", 0))
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeData(w, http.StatusOK, "", page)
}

func (h *Handler) UpdateItemStatus(w http.ResponseWriter, r *http.Request) {
	orderID, err := pathID(r, "id")
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	groupID, err := pathID(r, "groupID")
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	var req itemStatusRequest
	if err := decode(r, &req); err != nil {
		writeError(r.Context(), w, err)
		return
	}

	order, err := h.orders.TransitionItemStatus(r.Context(), orderID, groupID, IdentityFrom(r.Context()).UserID, req.Status)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeData(w, http.StatusOK, "order item status updated", order)
}

func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	order, err := h.orders.CancelOrder(r.Context(), id, IdentityFrom(r.Context()).UserID)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeData(w, http.StatusOK, "order cancelled", order)
}

func (h *Handler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	var req orderStatusRequest
	if err := decode(r, &req); err != nil {
		writeError(r.Context(), w, err)
		return
	}
	order, err := h.orders.UpdateOrderStatus(r.Context(), id, req.Status)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeData(w, http.StatusOK, "order status updated", order)
}

func (h *Handler) UpdatePaymentStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	var req paymentStatusRequest
	if err := decode(r, &req); err != nil {
		writeError(r.Context(), w, err)
		return
	}
	order, err := h.orders.UpdatePaymentStatus(r.Context(), id, req.Status)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeData(w, http.StatusOK, "payment status updated", order)
}
