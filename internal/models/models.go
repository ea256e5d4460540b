package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Role string

const (
	RoleAdmin    Role = "admin"
	RoleFarmer   Role = "farmer"
	RoleConsumer Role = "consumer"
	RoleGuest    Role = "guest"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleFarmer, RoleConsumer, RoleGuest:
		return true
	}
	return false
}

// Identity is the authenticated caller. Guests have a zero UserID.
type Identity struct {
	UserID int64
	Role   Role
}

// Account is a single user record discriminated by Role. Exactly one of the
// role payloads is set for farmers and consumers; admins carry none.
type Account struct {
	ID        int64            `json:"id"`
	Email     string           `json:"email"`
	Name      string           `json:"name"`
	Role      Role             `json:"role"`
	Consumer  *ConsumerProfile `json:"consumer,omitempty"`
	Farmer    *FarmerProfile   `json:"farmer,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
	Version   int              `json:"version"`
}

type ConsumerProfile struct {
	// PaymentCustomerID is the processor-side customer identity.
	PaymentCustomerID string `json:"payment_customer_id,omitempty"`
}

type FarmerProfile struct {
	FarmName string `json:"farm_name"`
}

type Product struct {
	ID          int64           `json:"id"`
	FarmerID    int64           `json:"farmer_id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
	IsAvailable bool            `json:"is_available"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	Version     int             `json:"version"`
}

type Address struct {
	ID        int64     `json:"id"`
	AccountID int64     `json:"account_id"`
	Street    string    `json:"street"`
	City      string    `json:"city"`
	State     string    `json:"state"`
	ZipCode   string    `json:"zip_code"`
	Country   string    `json:"country"`
	IsDefault bool      `json:"is_default"`
	CreatedAt time.Time `json:"created_at"`
}

func (a Address) Snapshot() ShippingAddress {
	return ShippingAddress{
		Street:  a.Street,
		City:    a.City,
		State:   a.State,
		ZipCode: a.ZipCode,
		Country: a.Country,
	}
}

// ShippingAddress is the address frozen into an order.
type ShippingAddress struct {
	Street  string `json:"street" validate:"required"`
	City    string `json:"city" validate:"required"`
	State   string `json:"state" validate:"required"`
	ZipCode string `json:"zip_code" validate:"required"`
	Country string `json:"country" validate:"required"`
}

type Contact struct {
	Name  string `json:"name" validate:"required"`
	Email string `json:"email" validate:"required,email"`
}

type CartStatus string

const (
	CartStatusActive    CartStatus = "active"
	CartStatusAbandoned CartStatus = "abandoned"
	CartStatusConverted CartStatus = "converted"
)

type Cart struct {
	ID          int64           `json:"id"`
	ConsumerID  int64           `json:"consumer_id"`
	Status      CartStatus      `json:"status"`
	Groups      []CartLineGroup `json:"items"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	ExpiresAt   time.Time       `json:"expires_at"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	Version     int             `json:"version"`
}

func (c *Cart) IsEmpty() bool {
	return len(c.Groups) == 0
}

type CartLineGroup struct {
	ID       string            `json:"id"`
	FarmerID int64             `json:"farmer_id"`
	Lines    []CartProductLine `json:"products"`
	Subtotal decimal.Decimal   `json:"subtotal"`
}

type CartProductLine struct {
	ProductID   int64           `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Subtotal    decimal.Decimal `json:"subtotal"`
}

// FarmerTotal is a read-side projection over one cart line group.
type FarmerTotal struct {
	FarmerID    int64           `json:"farmer_id"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	ItemCount   int             `json:"item_count"`
}

type OrderStatus string

const (
	OrderStatusPending           OrderStatus = "pending"
	OrderStatusProcessing        OrderStatus = "processing"
	OrderStatusShipped           OrderStatus = "shipped"
	OrderStatusDelivered         OrderStatus = "delivered"
	OrderStatusCancelled         OrderStatus = "cancelled"
	OrderStatusRefunded          OrderStatus = "refunded"
	OrderStatusPartiallyRefunded OrderStatus = "partially_refunded"
)

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusProcessing, OrderStatusShipped, OrderStatusDelivered,
		OrderStatusCancelled, OrderStatusRefunded, OrderStatusPartiallyRefunded:
		return true
	}
	return false
}

type PaymentStatus string

const (
	PaymentStatusPending           PaymentStatus = "pending"
	PaymentStatusProcessing        PaymentStatus = "processing"
	PaymentStatusAuthorized        PaymentStatus = "authorized"
	PaymentStatusPaid              PaymentStatus = "paid"
	PaymentStatusFailed            PaymentStatus = "failed"
	PaymentStatusRefunded          PaymentStatus = "refunded"
	PaymentStatusPartiallyRefunded PaymentStatus = "partially_refunded"
	PaymentStatusCancelled         PaymentStatus = "cancelled"
)

func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentStatusPending, PaymentStatusProcessing, PaymentStatusAuthorized, PaymentStatusPaid,
		PaymentStatusFailed, PaymentStatusRefunded, PaymentStatusPartiallyRefunded, PaymentStatusCancelled:
		return true
	}
	return false
}

// Settled reports whether funds have moved, after which cancelling the
// intent is no longer possible.
func (s PaymentStatus) Settled() bool {
	switch s {
	case PaymentStatusPaid, PaymentStatusRefunded, PaymentStatusPartiallyRefunded:
		return true
	}
	return false
}

type ItemStatus string

const (
	ItemStatusPending   ItemStatus = "pending"
	ItemStatusAccepted  ItemStatus = "accepted"
	ItemStatusSent      ItemStatus = "sent"
	ItemStatusDelivered ItemStatus = "delivered"
	ItemStatusCancelled ItemStatus = "cancelled"
)

func (s ItemStatus) Valid() bool {
	switch s {
	case ItemStatusPending, ItemStatusAccepted, ItemStatusSent, ItemStatusDelivered, ItemStatusCancelled:
		return true
	}
	return false
}

func (s ItemStatus) IsTerminal() bool {
	return s == ItemStatusDelivered || s == ItemStatusCancelled
}

type Order struct {
	ID              int64            `json:"id"`
	OrderNumber     string           `json:"order_number"`
	ConsumerID      *int64           `json:"consumer_id,omitempty"`
	Guest           *Contact         `json:"guest,omitempty"`
	ShippingAddress ShippingAddress  `json:"shipping_address"`
	Status          OrderStatus      `json:"status"`
	PaymentStatus   PaymentStatus    `json:"payment_status"`
	TotalAmount     decimal.Decimal  `json:"total_amount"`
	Currency        string           `json:"currency"`
	Payment         PaymentDetails   `json:"payment_details"`
	Notes           string           `json:"notes,omitempty"`
	Groups          []OrderItemGroup `json:"order_items"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
	Version         int              `json:"version"`
}

type PaymentDetails struct {
	TransactionID  string                 `json:"transaction_id,omitempty"`
	Processor      string                 `json:"processor,omitempty"`
	ProcessorToken string                 `json:"-"`
	MethodSnapshot *PaymentMethodSnapshot `json:"payment_method_snapshot,omitempty"`
	PaidAt         *time.Time             `json:"payment_date,omitempty"`
	RefundAmount   decimal.Decimal        `json:"refund_amount"`
	RefundedAt     *time.Time             `json:"refund_date,omitempty"`
	LastEventAt    *time.Time             `json:"-"`
}

// PaymentMethodSnapshot freezes masked display info at checkout time.
type PaymentMethodSnapshot struct {
	Type        string `json:"type,omitempty"`
	LastFour    string `json:"last_four_digits,omitempty"`
	CardBrand   string `json:"card_type,omitempty"`
	ExpiryMonth int    `json:"expiry_month,omitempty"`
	ExpiryYear  int    `json:"expiry_year,omitempty"`
}

// SavedPaymentMethod is a payment method stored with the processor for reuse.
type SavedPaymentMethod struct {
	ID string `json:"id"`
	PaymentMethodSnapshot
	IsDefault bool `json:"is_default"`
}

type OrderItemGroup struct {
	ID        int64              `json:"id"`
	OrderID   int64              `json:"order_id"`
	FarmerID  int64              `json:"farmer_id"`
	Lines     []OrderProductLine `json:"products"`
	Subtotal  decimal.Decimal    `json:"subtotal"`
	Status    ItemStatus         `json:"status"`
	UpdatedAt time.Time          `json:"updated_at"`
}

type OrderProductLine struct {
	ID          int64           `json:"id"`
	ProductID   int64           `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Subtotal    decimal.Decimal `json:"subtotal"`
}

// HasFarmer reports whether any item group in the order belongs to farmerID.
func (o *Order) HasFarmer(farmerID int64) bool {
	for _, g := range o.Groups {
		if g.FarmerID == farmerID {
			return true
		}
	}
	return false
}
