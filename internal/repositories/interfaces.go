package repositories

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/foodeli/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Orders() OrderRepository
	Users() UserRepository
	Foods() FoodRepository
	Health() HealthRepository
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// PaymentOutcome describes the stored payment state after a confirmation attempt.
type PaymentOutcome int

const (
	// PaymentApplied means this call performed the pending to terminal transition.
	PaymentApplied PaymentOutcome = iota
	// PaymentAlreadySucceeded means a prior writer already recorded success.
	PaymentAlreadySucceeded
	// PaymentAlreadyFailed means a prior writer already recorded failure.
	PaymentAlreadyFailed
)

// PaymentConfirmation carries the verified gateway result applied to an order.
type PaymentConfirmation struct {
	Reference         string
	ExternalReference string
	Method            string
	GatewayMessage    string
	PaidAt            time.Time
	// ClearCartUserID names the user whose cart is emptied in the same transaction.
	ClearCartUserID string
}

// ConfirmResult reports the order state after a confirmation attempt and whether
// this call was the winning writer.
type ConfirmResult struct {
	Order   domain.Order
	Outcome PaymentOutcome
}

// OrderRepository persists orders and drives payment state transitions.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	FindByPaymentReference(ctx context.Context, reference string) (domain.Order, error)
	// FindPendingDuplicate returns the most recent order for the user that is
	// still awaiting payment, matches the given total, and was created at or
	// after the cutoff.
	FindPendingDuplicate(ctx context.Context, userID string, total decimal.Decimal, cutoff time.Time) (domain.Order, bool, error)
	ListByUser(ctx context.Context, userID string) ([]domain.Order, error)
	ListAll(ctx context.Context) ([]domain.Order, error)

	// AttachPaymentReference records the gateway reference and checkout URL state
	// on an order whose payment is still pending.
	AttachPaymentReference(ctx context.Context, orderID string, payment domain.Payment) (domain.Order, error)

	// ConfirmPaymentSuccess applies the verified gateway result inside a single
	// transaction. Only a writer observing a pending payment performs the
	// transition; later writers receive the already-decided order.
	ConfirmPaymentSuccess(ctx context.Context, orderID string, confirm PaymentConfirmation) (ConfirmResult, error)

	// MarkPaymentFailed records a terminal failure for a pending payment.
	MarkPaymentFailed(ctx context.Context, orderID string, gatewayMessage string, failedAt time.Time) (ConfirmResult, error)

	// DeleteStalePending removes the user's other unpaid orders created at or
	// after the cutoff, keeping the order that just completed payment.
	DeleteStalePending(ctx context.Context, userID string, keepOrderID string, cutoff time.Time) (int, error)

	UpdateStatus(ctx context.Context, orderID string, status domain.OrderStatus, updatedAt time.Time) (domain.Order, error)
	UpdateDeliveryStatus(ctx context.Context, orderID string, status domain.DeliveryStatus, updatedAt time.Time) (domain.Order, error)
}

// UserRepository persists user accounts, carts and favourites.
type UserRepository interface {
	Insert(ctx context.Context, user domain.User) error
	FindByID(ctx context.Context, userID string) (domain.User, error)
	FindByEmail(ctx context.Context, email string) (domain.User, error)
	ReplaceCart(ctx context.Context, userID string, items []domain.CartItem) (domain.User, error)
	ClearCart(ctx context.Context, userID string) error
	AddFavourite(ctx context.Context, userID string, foodID string) (domain.User, error)
	RemoveFavourite(ctx context.Context, userID string, foodID string) (domain.User, error)
}

// FoodFilter narrows catalog listings.
type FoodFilter struct {
	Category string
	Search   string
	Limit    int
}

// FoodRepository persists the food catalog.
type FoodRepository interface {
	Insert(ctx context.Context, food domain.Food) error
	List(ctx context.Context, filter FoodFilter) ([]domain.Food, error)
	FindByID(ctx context.Context, foodID string) (domain.Food, error)
	FindByIDs(ctx context.Context, foodIDs []string) ([]domain.Food, error)
}

// HealthStatus reports the outcome of a dependency probe sweep.
type HealthStatus struct {
	Healthy bool
	Details map[string]string
}

// HealthRepository evaluates backing dependencies for readiness probes.
type HealthRepository interface {
	Check(ctx context.Context) (HealthStatus, error)
}
