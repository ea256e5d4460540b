package httpapi

import "net/http"

func (h *Handler) ListPaymentMethods(w http.ResponseWriter, r *http.Request) {
	methods, err := h.wallet.ListPaymentMethods(r.Context(), IdentityFrom(r.Context()).UserID)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeData(w, http.StatusOK, "", methods)
}

// CreateSetupIntent returns the client secret the browser uses to save a card.
func (h *Handler) CreateSetupIntent(w http.ResponseWriter, r *http.Request) {
	si, err := h.wallet.CreateSetupIntent(r.Context(), IdentityFrom(r.Context()).UserID)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeData(w, http.StatusCreated, "setup intent created", si)
}
