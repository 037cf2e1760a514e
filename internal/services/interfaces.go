package services

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/foodeli/api/internal/domain"
)

// CreateOrderCommand carries the checkout payload for a new order.
type CreateOrderCommand struct {
	UserID      string
	Items       []domain.LineItem
	TotalAmount decimal.Decimal
	Address     string
}

// CreateOrderResult reports the created (or reused) order.
type CreateOrderResult struct {
	Order domain.Order
	// DuplicateSuppressed is true when a recent identical unpaid order was
	// returned instead of inserting a new one.
	DuplicateSuppressed bool
}

// InitializePaymentCommand starts (or resumes) a hosted checkout session.
type InitializePaymentCommand struct {
	OrderID     string
	UserID      string
	Email       string
	Amount      decimal.Decimal
	CallbackURL string
}

// InitializePaymentResult carries the checkout handle for the client.
type InitializePaymentResult struct {
	AuthorizationURL string
	Reference        string
	// Reused is true when an in-flight pending reference was returned instead
	// of opening a new session.
	Reused bool
}

// VerifyPaymentResult reports the order state after verification.
type VerifyPaymentResult struct {
	Order domain.Order
	// AlreadyConfirmed is true when a prior channel had already recorded the
	// success and this call performed no writes.
	AlreadyConfirmed bool
}

// UpdateDeliveryStatusCommand is the admin-side fulfilment transition.
type UpdateDeliveryStatusCommand struct {
	OrderID string
	Status  domain.DeliveryStatus
}

// OrderService drives the order and payment state machine.
type OrderService interface {
	CreateOrder(ctx context.Context, cmd CreateOrderCommand) (CreateOrderResult, error)
	InitializePayment(ctx context.Context, cmd InitializePaymentCommand) (InitializePaymentResult, error)
	VerifyPayment(ctx context.Context, reference string, userID string) (VerifyPaymentResult, error)
	HandleWebhook(ctx context.Context, rawBody []byte, signature string) error
	CompleteOrder(ctx context.Context, orderID string, userID string) (domain.Order, error)
	UpdateDeliveryStatus(ctx context.Context, cmd UpdateDeliveryStatusCommand) (domain.Order, error)
	GetOrder(ctx context.Context, orderID string, userID string) (domain.Order, error)
	ListOrders(ctx context.Context, userID string) ([]domain.Order, error)
	ListAllOrders(ctx context.Context) ([]domain.Order, error)
}

// CartService manages the cart embedded on the user document.
type CartService interface {
	GetCart(ctx context.Context, userID string) ([]domain.CartItem, error)
	ReplaceCart(ctx context.Context, userID string, items []domain.CartItem) ([]domain.CartItem, error)
	AddItem(ctx context.Context, userID string, item domain.CartItem) ([]domain.CartItem, error)
	RemoveItem(ctx context.Context, userID string, productRef string) ([]domain.CartItem, error)
}

// FavouriteService manages the favourites list on the user document.
type FavouriteService interface {
	ListFavourites(ctx context.Context, userID string) ([]domain.Food, error)
	AddFavourite(ctx context.Context, userID string, foodID string) error
	RemoveFavourite(ctx context.Context, userID string, foodID string) error
}

// CatalogFilter narrows catalog listings.
type CatalogFilter struct {
	Category string
	Search   string
}

// CreateFoodCommand is the admin-side catalog insert.
type CreateFoodCommand struct {
	Name        string
	Description string
	Image       string
	Price       domain.FoodPrice
	Categories  []string
	Ingredients []string
}

// CatalogService reads and maintains the food catalog.
type CatalogService interface {
	ListFoods(ctx context.Context, filter CatalogFilter) ([]domain.Food, error)
	GetFood(ctx context.Context, foodID string) (domain.Food, error)
	CreateFood(ctx context.Context, cmd CreateFoodCommand) (domain.Food, error)
}

// OrderEventMessage is the payload published for order lifecycle events.
type OrderEventMessage struct {
	Event      string    `json:"event"`
	OrderID    string    `json:"orderId"`
	UserID     string    `json:"userId"`
	Reference  string    `json:"reference,omitempty"`
	Amount     string    `json:"amount,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}

// OrderEventPublisher publishes order domain events for downstream consumers.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, message OrderEventMessage) (string, error)
}
