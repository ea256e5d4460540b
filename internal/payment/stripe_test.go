package payment

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/safar/farmstand/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v76"
)

// newTestStripeGateway points the Stripe client at handler instead of the
// live API.
func newTestStripeGateway(t *testing.T, handler http.HandlerFunc) *StripeGateway {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	backend := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
		URL:               stripe.String(srv.URL),
		HTTPClient:        srv.Client(),
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelNull},
	})
	return newStripeGateway("sk_test_123", &stripe.Backends{API: backend, Connect: backend, Uploads: backend})
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func TestStripeCreatePaymentIntentIsUnconfirmedAndKeyed(t *testing.T) {
	gw := newTestStripeGateway(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/payment_intents", r.URL.Path)
		assert.Equal(t, "chk_1", r.Header.Get("Idempotency-Key"))
		assert.Equal(t, "2000", r.PostForm.Get("amount"))
		assert.Equal(t, "usd", r.PostForm.Get("currency"))
		assert.Equal(t, "pm_card_visa", r.PostForm.Get("payment_method"))
		assert.Equal(t, "chk_1", r.PostForm.Get("metadata[checkout_id]"))
		assert.Empty(t, r.PostForm.Get("confirm"))
		writeJSON(w, http.StatusOK, `{"id":"pi_1","object":"payment_intent","status":"requires_confirmation"}`)
	})

	intent, err := gw.CreatePaymentIntent(context.Background(), IntentRequest{
		Amount:             decimal.RequireFromString("20.00"),
		Currency:           "usd",
		PaymentMethodToken: "pm_card_visa",
		Reference:          "chk_1",
		IdempotencyKey:     "chk_1",
	})
	require.NoError(t, err)
	assert.Equal(t, "pi_1", intent.ID)
	assert.Equal(t, "requires_confirmation", intent.Status)
}

func TestStripeConfirmPaymentIntent(t *testing.T) {
	gw := newTestStripeGateway(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/payment_intents/pi_1/confirm", r.URL.Path)
		writeJSON(w, http.StatusOK, `{"id":"pi_1","object":"payment_intent","status":"succeeded"}`)
	})

	intent, err := gw.ConfirmPaymentIntent(context.Background(), "pi_1")
	require.NoError(t, err)
	assert.Equal(t, "succeeded", intent.Status)
}

func TestStripeCardErrorIsDeclined(t *testing.T) {
	gw := newTestStripeGateway(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusPaymentRequired,
			`{"error":{"type":"card_error","code":"card_declined","message":"Your card was declined."}}`)
	})

	_, err := gw.ConfirmPaymentIntent(context.Background(), "pi_1")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDeclined)
}

func TestStripeServerErrorIsNotDeclined(t *testing.T) {
	gw := newTestStripeGateway(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusInternalServerError, `{"error":{"type":"api_error","message":"boom"}}`)
	})

	err := gw.CancelPaymentIntent(context.Background(), "pi_1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrDeclined)
}

func TestStripeRefundPaymentIntent(t *testing.T) {
	gw := newTestStripeGateway(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "/v1/refunds", r.URL.Path)
		assert.Equal(t, "pi_1", r.PostForm.Get("payment_intent"))
		assert.Equal(t, "refund-pi_1", r.Header.Get("Idempotency-Key"))
		writeJSON(w, http.StatusOK, `{"id":"re_1","object":"refund","status":"succeeded"}`)
	})

	require.NoError(t, gw.RefundPaymentIntent(context.Background(), "pi_1"))
}

func TestStripeCreateCustomerKeyedOnAccount(t *testing.T) {
	gw := newTestStripeGateway(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "/v1/customers", r.URL.Path)
		assert.Equal(t, "customer-7", r.Header.Get("Idempotency-Key"))
		assert.Equal(t, "wren@example.com", r.PostForm.Get("email"))
		assert.Equal(t, "7", r.PostForm.Get("metadata[account_id]"))
		writeJSON(w, http.StatusOK, `{"id":"cus_1","object":"customer"}`)
	})

	id, err := gw.CreateCustomer(context.Background(), CustomerRequest{AccountID: 7, Email: "wren@example.com", Name: "Wren"})
	require.NoError(t, err)
	assert.Equal(t, "cus_1", id)
}

func TestStripeCreateSetupIntent(t *testing.T) {
	gw := newTestStripeGateway(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "/v1/setup_intents", r.URL.Path)
		assert.Equal(t, "cus_1", r.PostForm.Get("customer"))
		writeJSON(w, http.StatusOK, `{"id":"seti_1","object":"setup_intent","client_secret":"seti_1_secret_x"}`)
	})

	si, err := gw.CreateSetupIntent(context.Background(), "cus_1")
	require.NoError(t, err)
	assert.Equal(t, "seti_1", si.ID)
	assert.Equal(t, "seti_1_secret_x", si.ClientSecret)
}

func TestStripeListPaymentMethodsFlagsDefault(t *testing.T) {
	gw := newTestStripeGateway(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/customers/cus_1":
			writeJSON(w, http.StatusOK,
				`{"id":"cus_1","object":"customer","invoice_settings":{"default_payment_method":"pm_2"}}`)
		case "/v1/payment_methods":
			assert.Equal(t, "cus_1", r.URL.Query().Get("customer"))
			assert.Equal(t, "card", r.URL.Query().Get("type"))
			writeJSON(w, http.StatusOK, `{"object":"list","url":"/v1/payment_methods","has_more":false,"data":[
				{"id":"pm_1","object":"payment_method","type":"card","card":{"brand":"visa","last4":"4242","exp_month":12,"exp_year":2030}},
				{"id":"pm_2","object":"payment_method","type":"card","card":{"brand":"mastercard","last4":"4444","exp_month":3,"exp_year":2031}}]}`)
		default:
			t.Errorf("Unexpected request %s %s", r.Method, r.URL.Path)
			writeJSON(w, http.StatusNotFound, `{"error":{"type":"invalid_request_error"}}`)
		}
	})

	methods, err := gw.ListPaymentMethods(context.Background(), "cus_1")
	require.NoError(t, err)
	require.Len(t, methods, 2)
	assert.False(t, methods[0].IsDefault)
	assert.True(t, methods[1].IsDefault)
	assert.Equal(t, "4444", methods[1].LastFour)
	assert.Equal(t, "mastercard", methods[1].CardBrand)
	assert.Equal(t, 3, methods[1].ExpiryMonth)
}

func TestActiveMethodsKeepsCardThroughExpiryMonth(t *testing.T) {
	card := func(id string, month, year int) models.SavedPaymentMethod {
		return models.SavedPaymentMethod{
			ID:                    id,
			PaymentMethodSnapshot: models.PaymentMethodSnapshot{Type: "card", ExpiryMonth: month, ExpiryYear: year},
		}
	}
	methods := []models.SavedPaymentMethod{
		card("pm_last_month", 9, 2026),
		card("pm_this_month", 10, 2026),
		card("pm_december", 12, 2026),
		{ID: "pm_no_expiry", PaymentMethodSnapshot: models.PaymentMethodSnapshot{Type: "link"}},
	}

	active := ActiveMethods(methods, time.Date(2026, 10, 31, 23, 59, 0, 0, time.UTC))
	var ids []string
	for _, m := range active {
		ids = append(ids, m.ID)
	}
	assert.Equal(t, []string{"pm_this_month", "pm_december", "pm_no_expiry"}, ids)

	active = ActiveMethods(methods, time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC))
	require.Len(t, active, 1)
	assert.Equal(t, "pm_no_expiry", active[0].ID)
}
