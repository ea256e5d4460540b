package httpapi

import (
	"slices"

	"github.com/safar/farmstand/internal/models"
)

type Permission string

const (
	PermCreateProduct   Permission = "createProduct"
	PermUpdateProduct   Permission = "updateProduct"
	PermDeleteProduct   Permission = "deleteProduct"
	PermGetMyProducts   Permission = "getMyProducts"
	PermGetProductByID  Permission = "getProductById"
	PermGetAllProducts  Permission = "getAllProducts"
	PermGetOrCreateCart Permission = "getOrCreateCart"
	PermAddToCart       Permission = "addToCart"
	PermUpdateCartItem  Permission = "updateCartItem"
	PermRemoveFromCart  Permission = "removeFromCart"
	PermClearCart       Permission = "clearCart"

	PermCreateOrderFromCart   Permission = "createOrderFromCart"
	PermCreateGuestOrder      Permission = "createGuestOrder"
	PermGetAllOrders          Permission = "getAllOrders"
	PermGetOrderByID          Permission = "getOrderById"
	PermGetOrdersByConsumer   Permission = "getOrdersByConsumer"
	PermGetOrdersByFarmer     Permission = "getOrdersByFarmer"
	PermUpdateOrderItemStatus Permission = "updateOrderItemStatus"
	PermUpdateOrderStatus     Permission = "updateOrderStatus"
	PermUpdatePaymentStatus   Permission = "updatePaymentStatus"
	PermCancelOrder           Permission = "cancelOrder"

	PermAddAddress   Permission = "addAddress"
	PermGetAddresses Permission = "getAddresses"

	PermListPaymentMethods Permission = "listPaymentMethods"
	PermCreateSetupIntent  Permission = "createSetupIntent"
)

var (
	anyone  = []models.Role{models.RoleAdmin, models.RoleFarmer, models.RoleConsumer, models.RoleGuest}
	sellers = []models.Role{models.RoleAdmin, models.RoleFarmer}
)

var permissions = map[Permission][]models.Role{
	PermCreateProduct:  {models.RoleFarmer},
	PermUpdateProduct:  sellers,
	PermDeleteProduct:  sellers,
	PermGetMyProducts:  {models.RoleFarmer},
	PermGetProductByID: anyone,
	PermGetAllProducts: anyone,

	PermGetOrCreateCart: {models.RoleConsumer},
	PermAddToCart:       {models.RoleConsumer},
	PermUpdateCartItem:  {models.RoleConsumer},
	PermRemoveFromCart:  {models.RoleConsumer},
	PermClearCart:       {models.RoleConsumer},

	PermCreateOrderFromCart:   {models.RoleConsumer},
	PermCreateGuestOrder:      {models.RoleGuest},
	PermGetAllOrders:          {models.RoleAdmin},
	PermGetOrderByID:          {models.RoleAdmin, models.RoleFarmer, models.RoleConsumer},
	PermGetOrdersByConsumer:   {models.RoleConsumer},
	PermGetOrdersByFarmer:     {models.RoleFarmer},
	PermUpdateOrderItemStatus: {models.RoleFarmer},
	PermUpdateOrderStatus:     {models.RoleAdmin},
	PermUpdatePaymentStatus:   {models.RoleAdmin},
	PermCancelOrder:           {models.RoleConsumer},

	PermAddAddress:   {models.RoleConsumer, models.RoleFarmer},
	PermGetAddresses: {models.RoleConsumer, models.RoleFarmer},

	PermListPaymentMethods: {models.RoleConsumer},
	PermCreateSetupIntent:  {models.RoleConsumer},
}

// Allowed reports whether role holds p. Unknown permissions are denied.
func Allowed(p Permission, role models.Role) bool {
	return slices.Contains(permissions[p], role)
}
