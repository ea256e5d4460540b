package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func NewRouter(h *Handler, auth *Authenticator, serviceName string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeData(w, http.StatusOK, "ok", nil)
	})

	// Signed by the processor, not by a user token.
	r.Post("/api/payments/webhook", h.PaymentWebhook)

	r.Route("/api", func(r chi.Router) {
		r.Use(auth.Middleware)

		r.Route("/products", func(r chi.Router) {
			r.With(Require(PermGetAllProducts)).Get("/", h.ListProducts)
			r.With(Require(PermGetMyProducts)).Get("/mine", h.ListMyProducts)
			r.With(Require(PermCreateProduct)).Post("/", h.CreateProduct)
			r.With(Require(PermGetProductByID)).Get("/{id}", h.GetProduct)
			r.With(Require(PermUpdateProduct)).Put("/{id}", h.UpdateProduct)
			r.With(Require(PermDeleteProduct)).Delete("/{id}", h.DeleteProduct)
		})

		r.Route("/cart", func(r chi.Router) {
			r.With(Require(PermGetOrCreateCart)).Get("/", h.GetCart)
			r.With(Require(PermClearCart)).Delete("/", h.ClearCart)
			r.With(Require(PermAddToCart)).Post("/items", h.AddCartItem)
			r.With(Require(PermUpdateCartItem)).Put("/items/{groupID}/{productID}", h.UpdateCartItem)
			r.With(Require(PermRemoveFromCart)).Delete("/items/{groupID}/{productID}", h.RemoveCartItem)
		})

		r.Route("/orders", func(r chi.Router) {
			r.With(Require(PermGetAllOrders)).Get("/", h.ListAllOrders)
			r.With(Require(PermGetOrdersByConsumer)).Get("/my-orders", h.ListMyOrders)
			r.With(Require(PermGetOrdersByFarmer)).Get("/farmer-orders", h.ListFarmerOrders)
			r.With(Require(PermCreateOrderFromCart)).Post("/from-cart", h.CheckoutCart)
			r.With(Require(PermCreateGuestOrder)).Post("/guest", h.GuestCheckout)
			r.With(Require(PermGetOrderByID)).Get("/{id}", h.GetOrder)
			r.With(Require(PermUpdateOrderStatus)).Patch("/{id}/status", h.UpdateOrderStatus)
			r.With(Require(PermUpdatePaymentStatus)).Patch("/{id}/payment", h.UpdatePaymentStatus)
			r.With(Require(PermCancelOrder)).Post("/{id}/cancel", h.CancelOrder)
			r.With(Require(PermUpdateOrderItemStatus)).Patch("/{id}/items/{groupID}/status", h.UpdateItemStatus)
		})

		r.Route("/addresses", func(r chi.Router) {
			r.With(Require(PermGetAddresses)).Get("/", h.ListAddresses)
			r.With(Require(PermAddAddress)).Post("/", h.AddAddress)
		})

		r.Route("/payment-methods", func(r chi.Router) {
			r.With(Require(PermListPaymentMethods)).Get("/", h.ListPaymentMethods)
			r.With(Require(PermCreateSetupIntent)).Post("/setup-intent", h.CreateSetupIntent)
		})
	})

	return otelhttp.NewHandler(r, serviceName)
}
