package httpapi

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/safar/farmstand/internal/apperr"
)

const maxWebhookBody = 64 << 10

// PaymentWebhook receives processor events. Anything but a 2xx makes the
// processor redeliver, so only signature problems and storage failures
// are reported as errors.
func (h *Handler) PaymentWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		writeError(r.Context(), w, apperr.Validation("unreadable webhook body"))
		return
	}

	ev, err := h.webhooks.Parse(payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		slog.WarnContext(r.Context(), "rejected payment webhook", "error", err)
		writeError(r.Context(), w, err)
		return
	}

	if err := h.events.Handle(r.Context(), ev); err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeData(w, http.StatusOK, "received", nil)
}
