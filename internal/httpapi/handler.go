// Package httpapi exposes the marketplace over HTTP: chi routing, bearer
// token identities, the role permission table and the JSON envelope.
package httpapi

import (
	"context"

	"github.com/safar/farmstand/internal/cart"
	"github.com/safar/farmstand/internal/catalog"
	"github.com/safar/farmstand/internal/checkout"
	"github.com/safar/farmstand/internal/models"
	"github.com/safar/farmstand/internal/payment"
	"github.com/safar/farmstand/internal/store"
	"github.com/safar/farmstand/internal/wallet"
)

type CartService interface {
	GetOrCreateActiveCart(ctx context.Context, consumerID int64) (*cart.View, error)
	AddLine(ctx context.Context, consumerID, productID int64, quantity int) (*cart.View, error)
	UpdateLineQuantity(ctx context.Context, consumerID int64, groupID string, productID int64, quantity int) (*cart.View, error)
	RemoveLine(ctx context.Context, consumerID int64, groupID string, productID int64, quantity int) (*cart.View, error)
	ClearCart(ctx context.Context, consumerID int64) (*cart.View, error)
}

type CheckoutService interface {
	ConvertCartToOrder(ctx context.Context, consumerID int64, req checkout.CheckoutRequest) (*models.Order, error)
	GuestCheckout(ctx context.Context, req checkout.GuestCheckoutRequest) (*models.Order, error)
}

type OrderService interface {
	GetOrder(ctx context.Context, actor models.Identity, orderID int64) (*models.Order, error)
	ListConsumerOrders(ctx context.Context, consumerID int64, cursor string, limit int) (*store.CursorPage, error)
	ListFarmerOrders(ctx context.Context, farmerID int64, page, pageSize int) (*store.OffsetPage, error)
	ListAllOrders(ctx context.Context, status models.OrderStatus, page, pageSize int) (*store.OffsetPage, error)
	TransitionItemStatus(ctx context.Context, orderID, groupID, actorFarmerID int64, to models.ItemStatus) (*models.Order, error)
	CancelOrder(ctx context.Context, orderID, consumerID int64) (*models.Order, error)
	UpdateOrderStatus(ctx context.Context, orderID int64, status models.OrderStatus) (*models.Order, error)
	UpdatePaymentStatus(ctx context.Context, orderID int64, status models.PaymentStatus) (*models.Order, error)
}

type CatalogService interface {
	CreateProduct(ctx context.Context, actor models.Identity, req catalog.ProductRequest) (*models.Product, error)
	GetProduct(ctx context.Context, id int64) (*models.Product, error)
	ListProducts(ctx context.Context, farmerID *int64, page, pageSize int) (*store.OffsetPage, error)
	UpdateProduct(ctx context.Context, actor models.Identity, id int64, req catalog.UpdateProductRequest) (*models.Product, error)
	DeleteProduct(ctx context.Context, actor models.Identity, id int64) error
}

type AddressBook interface {
	CreateAddress(ctx context.Context, accountID int64, addr models.ShippingAddress, isDefault bool) (*models.Address, error)
	ListAddresses(ctx context.Context, accountID int64) ([]models.Address, error)
}

type PaymentMethodService interface {
	ListPaymentMethods(ctx context.Context, consumerID int64) (*wallet.Methods, error)
	CreateSetupIntent(ctx context.Context, consumerID int64) (*payment.SetupIntent, error)
}

type WebhookParser interface {
	Parse(payload []byte, signatureHeader string) (*payment.Event, error)
}

type PaymentEventHandler interface {
	Handle(ctx context.Context, ev *payment.Event) error
}

// Handler serves every API route. All services are required.
type Handler struct {
	carts     CartService
	checkouts CheckoutService
	orders    OrderService
	catalog   CatalogService
	addresses AddressBook
	wallet    PaymentMethodService
	webhooks  WebhookParser
	events    PaymentEventHandler
}

type Services struct {
	Carts     CartService
	Checkouts CheckoutService
	Orders    OrderService
	Catalog   CatalogService
	Addresses AddressBook
	Wallet    PaymentMethodService
	Webhooks  WebhookParser
	Events    PaymentEventHandler
}

func NewHandler(s Services) *Handler {
	return &Handler{
		carts:     s.Carts,
		checkouts: s.Checkouts,
		orders:    s.Orders,
		catalog:   s.Catalog,
		addresses: s.Addresses,
		wallet:    s.Wallet,
		webhooks:  s.Webhooks,
		events:    s.Events,
	}
}
