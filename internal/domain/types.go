package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus tracks the order through its payment-driven lifecycle.
type OrderStatus string

const (
	// OrderStatusPendingPayment is the only legal creation state.
	OrderStatusPendingPayment OrderStatus = "Pending Payment"
	// OrderStatusPaymentDone is reached only once the embedded payment succeeded.
	OrderStatusPaymentDone OrderStatus = "Payment Done"
	// OrderStatusProcessing mirrors the delivery pipeline entering fulfilment.
	OrderStatusProcessing OrderStatus = "Processing"
	// OrderStatusDelivered marks a fulfilled order.
	OrderStatusDelivered OrderStatus = "Delivered"
	// OrderStatusCancelled marks an abandoned or failed order. Cancelled orders are retained.
	OrderStatusCancelled OrderStatus = "Cancelled"
)

// DeliveryStatus tracks fulfilment independently of the payment axis and is
// mutated only by admin action after payment.
type DeliveryStatus string

const (
	DeliveryStatusProcessing DeliveryStatus = "Processing"
	DeliveryStatusDelivered  DeliveryStatus = "Delivered"
	DeliveryStatusCancelled  DeliveryStatus = "Cancelled"
)

// ValidDeliveryStatus reports whether the value is a member of the delivery enum.
func ValidDeliveryStatus(value DeliveryStatus) bool {
	switch value {
	case DeliveryStatusProcessing, DeliveryStatusDelivered, DeliveryStatusCancelled:
		return true
	}
	return false
}

// PaymentStatus is the payment sub-state axis. Success and Failed are terminal;
// a successful payment is never transitioned again.
type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "pending"
	PaymentStatusSuccess PaymentStatus = "success"
	PaymentStatusFailed  PaymentStatus = "failed"
)

// Payment is the sub-record embedded in an order document.
type Payment struct {
	// Reference correlates the order to a gateway transaction. Set exactly once
	// at initialization and unique per order.
	Reference         string
	Status            PaymentStatus
	ExternalReference string
	CheckoutURL       string
	Method            string
	PaidAt            *time.Time
	InitializedAt     *time.Time
	GatewayMessage    string
	Amount            decimal.Decimal
}

// LineItem references a catalog product with a positive quantity.
type LineItem struct {
	ProductRef string
	Quantity   int
}

// Order is the persisted order header with its embedded payment state.
type Order struct {
	ID             string
	UserID         string
	Items          []LineItem
	TotalAmount    decimal.Decimal
	Address        string
	Status         OrderStatus
	DeliveryStatus DeliveryStatus
	Payment        Payment
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// PaymentSucceeded reports whether the order's payment reached its terminal success state.
func (o Order) PaymentSucceeded() bool {
	return o.Payment.Status == PaymentStatusSuccess
}

// Role constants stored on user documents.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// CartItem is a product reference with quantity inside a user's cart.
type CartItem struct {
	ProductRef string
	Quantity   int
}

// User holds the customer profile together with their cart and favourites.
type User struct {
	ID         string
	Name       string
	Email      string
	Role       string
	Image      string
	Cart       []CartItem
	Favourites []string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// IsAdmin reports whether the user carries the admin role.
func (u User) IsAdmin() bool { return u.Role == RoleAdmin }

// FoodPrice carries the original price, list price, and discount percentage.
type FoodPrice struct {
	Org decimal.Decimal
	Mrp decimal.Decimal
	Off int
}

// Food is a catalog item.
type Food struct {
	ID          string
	Name        string
	Description string
	Image       string
	Price       FoodPrice
	Categories  []string
	Ingredients []string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
