package checkout

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/safar/farmstand/internal/apperr"
	"github.com/safar/farmstand/internal/models"
	"github.com/safar/farmstand/internal/payment"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeGateway decides the outcome of a payment in createFn: the intent it
// returns is what confirmation reports.
type fakeGateway struct {
	createFn  func(ctx context.Context, req payment.IntentRequest) (*payment.Intent, error)
	confirmFn func(ctx context.Context, intentID string) (*payment.Intent, error)
	display   *models.PaymentMethodSnapshot
	cancelErr error
	refundErr error

	mu        sync.Mutex
	outcomes  map[string]*payment.Intent
	cancelled []string
	refunded  []string
}

func (g *fakeGateway) CreatePaymentIntent(ctx context.Context, req payment.IntentRequest) (*payment.Intent, error) {
	intent, err := g.createFn(ctx, req)
	if err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.outcomes == nil {
		g.outcomes = map[string]*payment.Intent{}
	}
	g.outcomes[intent.ID] = intent
	return &payment.Intent{ID: intent.ID, Status: "requires_confirmation"}, nil
}

func (g *fakeGateway) ConfirmPaymentIntent(ctx context.Context, intentID string) (*payment.Intent, error) {
	if g.confirmFn != nil {
		return g.confirmFn(ctx, intentID)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.outcomes[intentID], nil
}

func (g *fakeGateway) RetrievePaymentMethod(ctx context.Context, token string) (*models.PaymentMethodSnapshot, error) {
	if g.display == nil {
		return nil, errors.New("not found")
	}
	return g.display, nil
}

func (g *fakeGateway) CancelPaymentIntent(ctx context.Context, intentID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cancelled = append(g.cancelled, intentID)
	return g.cancelErr
}

func (g *fakeGateway) RefundPaymentIntent(ctx context.Context, intentID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.refunded = append(g.refunded, intentID)
	return g.refundErr
}

func (g *fakeGateway) Name() string { return "fake" }

func intentWith(status string) func(context.Context, payment.IntentRequest) (*payment.Intent, error) {
	return func(context.Context, payment.IntentRequest) (*payment.Intent, error) {
		return &payment.Intent{ID: "pi_1", Status: status}, nil
	}
}

func newCapture(gw payment.Gateway) *capturePaymentStep {
	return &capturePaymentStep{
		gateway: gw,
		timeout: time.Second,
		request: payment.IntentRequest{Amount: decimal.RequireFromString("20.00"), Currency: "usd", PaymentMethodToken: "pm_card"},
	}
}

func TestCapturePaymentSuccess(t *testing.T) {
	gw := &fakeGateway{
		createFn: intentWith("processing"),
		display:  &models.PaymentMethodSnapshot{Type: "card", LastFour: "4242", CardBrand: "visa"},
	}
	step := newCapture(gw)

	require.NoError(t, step.Execute(context.Background()))
	require.NotNil(t, step.intent)
	assert.Equal(t, "pi_1", step.intent.ID)
	assert.Equal(t, "4242", step.display.LastFour)
	assert.Empty(t, gw.cancelled)
}

func TestCapturePaymentMissingDisplayIsNotFatal(t *testing.T) {
	step := newCapture(&fakeGateway{createFn: intentWith("succeeded")})

	require.NoError(t, step.Execute(context.Background()))
	assert.Nil(t, step.display)
}

func TestCapturePaymentTimeout(t *testing.T) {
	gw := &fakeGateway{createFn: func(ctx context.Context, _ payment.IntentRequest) (*payment.Intent, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	step := newCapture(gw)
	step.timeout = 10 * time.Millisecond

	err := step.Execute(context.Background())

	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindPayment))
	var appErr *apperr.Error
	require.ErrorAs(t, err, &appErr)
	assert.False(t, appErr.Declined)
	assert.Nil(t, step.intent)
}

func TestCapturePaymentDeclined(t *testing.T) {
	gw := &fakeGateway{createFn: func(context.Context, payment.IntentRequest) (*payment.Intent, error) {
		return nil, errors.Join(payment.ErrDeclined, errors.New("card_declined"))
	}}

	err := newCapture(gw).Execute(context.Background())

	var appErr *apperr.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperr.KindPayment, appErr.Kind)
	assert.True(t, appErr.Declined)
}

func TestCapturePaymentProcessorError(t *testing.T) {
	gw := &fakeGateway{createFn: func(context.Context, payment.IntentRequest) (*payment.Intent, error) {
		return nil, errors.New("503 service unavailable")
	}}

	err := newCapture(gw).Execute(context.Background())

	var appErr *apperr.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperr.KindPayment, appErr.Kind)
	assert.False(t, appErr.Declined)
}

func TestCapturePaymentRejectedStatusCancelsIntent(t *testing.T) {
	for _, status := range []string{"requires_payment_method", "requires_action", "canceled"} {
		t.Run(status, func(t *testing.T) {
			gw := &fakeGateway{createFn: intentWith(status)}
			step := newCapture(gw)

			err := step.Execute(context.Background())

			var appErr *apperr.Error
			require.ErrorAs(t, err, &appErr)
			assert.True(t, appErr.Declined)
			assert.Equal(t, []string{"pi_1"}, gw.cancelled)
			assert.Nil(t, step.intent)
		})
	}
}

func TestCapturePaymentCompensateCancelsIntent(t *testing.T) {
	gw := &fakeGateway{createFn: intentWith("processing")}
	step := newCapture(gw)
	require.NoError(t, step.Execute(context.Background()))

	require.NoError(t, step.Compensate(context.Background()))
	assert.Equal(t, []string{"pi_1"}, gw.cancelled)
	assert.Empty(t, gw.refunded)
}

func TestCapturePaymentCompensateRefundsCapturedIntent(t *testing.T) {
	gw := &fakeGateway{createFn: intentWith("succeeded"), cancelErr: errors.New("intent already succeeded")}
	step := newCapture(gw)
	require.NoError(t, step.Execute(context.Background()))

	require.NoError(t, step.Compensate(context.Background()))
	assert.Equal(t, []string{"pi_1"}, gw.refunded)

	gw.refundErr = errors.New("processor down")
	assert.ErrorContains(t, step.Compensate(context.Background()), "pi_1")
}

func TestCapturePaymentConfirmTimeoutReleasesIntent(t *testing.T) {
	gw := &fakeGateway{
		createFn: intentWith("processing"),
		confirmFn: func(ctx context.Context, _ string) (*payment.Intent, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	step := newCapture(gw)
	step.timeout = 10 * time.Millisecond

	err := step.Execute(context.Background())

	var appErr *apperr.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperr.KindPayment, appErr.Kind)
	assert.False(t, appErr.Declined)
	assert.Equal(t, []string{"pi_1"}, gw.cancelled)
	assert.Nil(t, step.intent)
}

func TestCapturePaymentConfirmDeclineReleasesIntent(t *testing.T) {
	gw := &fakeGateway{
		createFn: intentWith("processing"),
		confirmFn: func(context.Context, string) (*payment.Intent, error) {
			return nil, fmt.Errorf("confirm payment intent: %w", payment.ErrDeclined)
		},
	}

	err := newCapture(gw).Execute(context.Background())

	var appErr *apperr.Error
	require.ErrorAs(t, err, &appErr)
	assert.True(t, appErr.Declined)
	assert.Equal(t, []string{"pi_1"}, gw.cancelled)
}

func TestCapturePaymentCompensateWithoutIntent(t *testing.T) {
	gw := &fakeGateway{}
	step := newCapture(gw)

	require.NoError(t, step.Compensate(context.Background()))
	assert.Empty(t, gw.cancelled)
}

func TestStockRequestsSumsAcrossGroups(t *testing.T) {
	groups := []models.OrderItemGroup{
		{FarmerID: 1, Lines: []models.OrderProductLine{{ProductID: 7, Quantity: 2}, {ProductID: 3, Quantity: 1}}},
		{FarmerID: 2, Lines: []models.OrderProductLine{{ProductID: 7, Quantity: 1}}},
	}

	assert.Equal(t, []stockRequest{{ProductID: 3, Quantity: 1}, {ProductID: 7, Quantity: 3}}, stockRequests(groups))
}

func TestOrderFromCart(t *testing.T) {
	c := &models.Cart{
		ID: 5,
		Groups: []models.CartLineGroup{
			{ID: "g1", FarmerID: 10, Lines: []models.CartProductLine{
				{ProductID: 1, ProductName: "Eggs", Quantity: 2, UnitPrice: decimal.RequireFromString("5.00")},
			}},
			{ID: "g2", FarmerID: 20, Lines: []models.CartProductLine{
				{ProductID: 2, ProductName: "Honey", Quantity: 1, UnitPrice: decimal.RequireFromString("10.00")},
			}},
		},
	}
	addr := models.ShippingAddress{Street: "1 Lane", City: "Town", State: "ST", ZipCode: "00001", Country: "US"}

	o := orderFromCart(c, addr, "usd")

	assert.Equal(t, models.OrderStatusPending, o.Status)
	assert.Equal(t, models.PaymentStatusPending, o.PaymentStatus)
	assert.Equal(t, addr, o.ShippingAddress)
	assert.Equal(t, "20.00", o.TotalAmount.StringFixed(2))
	require.Len(t, o.Groups, 2)
	assert.Equal(t, int64(10), o.Groups[0].FarmerID)
	assert.Equal(t, "10.00", o.Groups[0].Subtotal.StringFixed(2))
	assert.Equal(t, models.ItemStatusPending, o.Groups[1].Status)
	assert.Equal(t, "Honey", o.Groups[1].Lines[0].ProductName)
}

func TestGuestCartGroupsByFarmer(t *testing.T) {
	products := map[int64]models.Product{
		1: {ID: 1, FarmerID: 10, Name: "Eggs", Price: decimal.RequireFromString("5.00"), IsAvailable: true},
		2: {ID: 2, FarmerID: 20, Name: "Honey", Price: decimal.RequireFromString("10.00"), IsAvailable: true},
		3: {ID: 3, FarmerID: 10, Name: "Milk", Price: decimal.RequireFromString("2.50"), IsAvailable: true},
	}

	draft, err := guestCart([]GuestItem{{ProductID: 1, Quantity: 2}, {ProductID: 2, Quantity: 1}, {ProductID: 3, Quantity: 2}}, products)

	require.NoError(t, err)
	require.Len(t, draft.Groups, 2)
	assert.Len(t, draft.Groups[0].Lines, 2)
	assert.Equal(t, "25.00", draft.TotalAmount.StringFixed(2))
}

func TestGuestCartRejectsUnknownAndUnavailable(t *testing.T) {
	products := map[int64]models.Product{
		1: {ID: 1, FarmerID: 10, Name: "Eggs", Price: decimal.RequireFromString("5.00"), IsAvailable: false},
	}

	_, err := guestCart([]GuestItem{{ProductID: 9, Quantity: 1}}, products)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	_, err = guestCart([]GuestItem{{ProductID: 1, Quantity: 1}}, products)
	assert.True(t, apperr.Is(err, apperr.KindConflict))
}
