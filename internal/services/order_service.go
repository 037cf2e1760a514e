package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"

	domain "github.com/foodeli/api/internal/domain"
	"github.com/foodeli/api/internal/gateway"
	"github.com/foodeli/api/internal/repositories"
)

const (
	orderEventCreated          = "order.created"
	orderEventPaymentSucceeded = "order.payment.succeeded"
	orderEventPaymentFailed    = "order.payment.failed"
	orderEventDeliveryUpdated  = "order.delivery.updated"

	orderIDPrefix = "ord_"

	// duplicateWindow bounds the recency heuristic that suppresses repeated
	// order submissions.
	duplicateWindow = 10 * time.Minute
	// siblingCleanupWindow bounds the sweep of abandoned unpaid duplicates
	// after a successful payment.
	siblingCleanupWindow = 30 * time.Minute

	webhookEventChargeSuccess = "charge.success"
)

// amountEpsilon is the tolerance applied when comparing the provider's
// reported amount against the stored order total.
var amountEpsilon = decimal.RequireFromString("0.01")

var (
	// ErrOrderInvalidInput signals the caller provided invalid data.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderNotFound indicates the order could not be located.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderInvalidState indicates an operation against an incompatible order state.
	ErrOrderInvalidState = errors.New("order: invalid state")
	// ErrOrderConflict indicates concurrent updates collided.
	ErrOrderConflict = errors.New("order: conflict")
	// ErrAmountMismatch indicates the provider reported an amount that does not
	// match the stored order total. Terminal for the verification attempt.
	ErrAmountMismatch = errors.New("order: amount mismatch")
	// ErrPaymentFailed indicates the provider reported a failed transaction.
	ErrPaymentFailed = errors.New("order: payment failed")
	// ErrWebhookSignature indicates the webhook body did not match its signature.
	ErrWebhookSignature = errors.New("order: invalid webhook signature")
)

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders      repositories.OrderRepository
	Users       repositories.UserRepository
	Gateway     gateway.Adapter
	Clock       func() time.Time
	IDGenerator func() string
	Events      OrderEventPublisher
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders  repositories.OrderRepository
	users   repositories.UserRepository
	gateway gateway.Adapter
	clock   func() time.Time
	newID   func() string
	events  OrderEventPublisher
	logger  func(context.Context, string, map[string]any)
}

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Users == nil {
		return nil, errors.New("order service: user repository is required")
	}
	if deps.Gateway == nil {
		return nil, errors.New("order service: gateway adapter is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return orderIDPrefix + ulid.Make().String()
		}
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &orderService{
		orders:  deps.Orders,
		users:   deps.Users,
		gateway: deps.Gateway,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		events: deps.Events,
		logger: logger,
	}, nil
}

func (s *orderService) CreateOrder(ctx context.Context, cmd CreateOrderCommand) (CreateOrderResult, error) {
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return CreateOrderResult{}, fmt.Errorf("%w: user id is required", ErrOrderInvalidInput)
	}
	if len(cmd.Items) == 0 {
		return CreateOrderResult{}, fmt.Errorf("%w: order must contain at least one item", ErrOrderInvalidInput)
	}
	for _, item := range cmd.Items {
		if strings.TrimSpace(item.ProductRef) == "" {
			return CreateOrderResult{}, fmt.Errorf("%w: item product reference is required", ErrOrderInvalidInput)
		}
		if item.Quantity <= 0 {
			return CreateOrderResult{}, fmt.Errorf("%w: item quantity must be positive", ErrOrderInvalidInput)
		}
	}
	if cmd.TotalAmount.Sign() <= 0 {
		return CreateOrderResult{}, fmt.Errorf("%w: total amount must be positive", ErrOrderInvalidInput)
	}

	now := s.clock()

	existing, found, err := s.orders.FindPendingDuplicate(ctx, userID, cmd.TotalAmount, now.Add(-duplicateWindow))
	if err != nil {
		return CreateOrderResult{}, s.mapRepositoryError(err)
	}
	if found {
		s.logger(ctx, "order.duplicate.suppressed", map[string]any{
			"order": existing.ID,
			"user":  userID,
		})
		return CreateOrderResult{Order: existing, DuplicateSuppressed: true}, nil
	}

	order := domain.Order{
		ID:          s.newID(),
		UserID:      userID,
		Items:       append([]domain.LineItem(nil), cmd.Items...),
		TotalAmount: cmd.TotalAmount,
		Address:     strings.TrimSpace(cmd.Address),
		Status:      domain.OrderStatusPendingPayment,
		Payment: domain.Payment{
			Status: domain.PaymentStatusPending,
			Amount: cmd.TotalAmount,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.orders.Insert(ctx, order); err != nil {
		return CreateOrderResult{}, s.mapRepositoryError(err)
	}

	s.publishEvent(ctx, OrderEventMessage{
		Event:      orderEventCreated,
		OrderID:    order.ID,
		UserID:     userID,
		Amount:     order.TotalAmount.String(),
		OccurredAt: now,
	})

	return CreateOrderResult{Order: order}, nil
}

func (s *orderService) InitializePayment(ctx context.Context, cmd InitializePaymentCommand) (InitializePaymentResult, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	userID := strings.TrimSpace(cmd.UserID)
	if orderID == "" || userID == "" {
		return InitializePaymentResult{}, fmt.Errorf("%w: order id and user id are required", ErrOrderInvalidInput)
	}
	if strings.TrimSpace(cmd.Email) == "" {
		return InitializePaymentResult{}, fmt.Errorf("%w: email is required", ErrOrderInvalidInput)
	}

	order, err := s.ownedOrder(ctx, orderID, userID)
	if err != nil {
		return InitializePaymentResult{}, err
	}
	if order.Payment.Status != domain.PaymentStatusPending {
		return InitializePaymentResult{}, fmt.Errorf("%w: payment already decided", ErrOrderInvalidState)
	}
	if !cmd.Amount.IsZero() && !cmd.Amount.Equal(order.TotalAmount) {
		return InitializePaymentResult{}, fmt.Errorf("%w: amount does not match order total", ErrOrderInvalidInput)
	}

	// A reference already in flight is returned as-is so the client cannot
	// open two checkout sessions for one order.
	if order.Payment.Reference != "" {
		return InitializePaymentResult{
			AuthorizationURL: order.Payment.CheckoutURL,
			Reference:        order.Payment.Reference,
			Reused:           true,
		}, nil
	}

	session, err := s.gateway.InitializeTransaction(ctx, gateway.InitializeRequest{
		Email:       strings.TrimSpace(cmd.Email),
		Amount:      order.TotalAmount,
		OrderID:     order.ID,
		CallbackURL: strings.TrimSpace(cmd.CallbackURL),
	})
	if err != nil {
		return InitializePaymentResult{}, err
	}

	now := s.clock()
	if _, err := s.orders.AttachPaymentReference(ctx, order.ID, domain.Payment{
		Reference:     session.Reference,
		Status:        domain.PaymentStatusPending,
		CheckoutURL:   session.AuthorizationURL,
		Amount:        order.TotalAmount,
		InitializedAt: &now,
	}); err != nil {
		return InitializePaymentResult{}, s.mapRepositoryError(err)
	}

	return InitializePaymentResult{
		AuthorizationURL: session.AuthorizationURL,
		Reference:        session.Reference,
	}, nil
}

func (s *orderService) VerifyPayment(ctx context.Context, reference string, userID string) (VerifyPaymentResult, error) {
	ref := strings.TrimSpace(reference)
	uid := strings.TrimSpace(userID)
	if ref == "" {
		return VerifyPaymentResult{}, fmt.Errorf("%w: reference is required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByPaymentReference(ctx, ref)
	if err != nil {
		return VerifyPaymentResult{}, s.mapRepositoryError(err)
	}
	// A forged or stale reference scoped to another user reads as absent.
	if uid != "" && order.UserID != uid {
		return VerifyPaymentResult{}, fmt.Errorf("%w: no order for reference", ErrOrderNotFound)
	}

	if order.PaymentSucceeded() {
		return VerifyPaymentResult{Order: order, AlreadyConfirmed: true}, nil
	}

	result, err := s.gateway.VerifyTransaction(ctx, ref)
	if err != nil {
		return VerifyPaymentResult{}, err
	}

	if !result.Succeeded {
		return s.recordPaymentFailure(ctx, order, result.Message)
	}

	if result.Amount.Sub(order.TotalAmount).Abs().GreaterThan(amountEpsilon) {
		s.logger(ctx, "order.payment.amount_mismatch", map[string]any{
			"order":    order.ID,
			"expected": order.TotalAmount.String(),
			"reported": result.Amount.String(),
		})
		return VerifyPaymentResult{}, fmt.Errorf("%w: provider reported %s, order total %s",
			ErrAmountMismatch, result.Amount.String(), order.TotalAmount.String())
	}

	return s.applySuccess(ctx, order, successTransition{
		ExternalReference: result.ExternalReference,
		Method:            result.Channel,
		GatewayMessage:    result.Message,
		PaidAt:            result.PaidAt,
	})
}

// webhookEvent is the provider notification envelope.
type webhookEvent struct {
	Event string `json:"event"`
	Data  struct {
		ID              int64  `json:"id"`
		Reference       string `json:"reference"`
		Amount          int64  `json:"amount"`
		Channel         string `json:"channel"`
		GatewayResponse string `json:"gateway_response"`
		PaidAt          string `json:"paid_at"`
	} `json:"data"`
}

func (s *orderService) HandleWebhook(ctx context.Context, rawBody []byte, signature string) error {
	if !s.gateway.VerifyWebhookSignature(rawBody, signature) {
		return ErrWebhookSignature
	}

	var event webhookEvent
	if err := json.Unmarshal(rawBody, &event); err != nil {
		return fmt.Errorf("%w: malformed webhook body", ErrOrderInvalidInput)
	}

	if event.Event != webhookEventChargeSuccess {
		s.logger(ctx, "order.webhook.ignored", map[string]any{"event": event.Event})
		return nil
	}

	ref := strings.TrimSpace(event.Data.Reference)
	if ref == "" {
		return fmt.Errorf("%w: webhook event missing reference", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByPaymentReference(ctx, ref)
	if err != nil {
		return s.mapRepositoryError(err)
	}
	if order.PaymentSucceeded() {
		// A sibling channel already confirmed. Nothing left to do.
		return nil
	}

	if event.Data.Amount > 0 {
		reported := decimal.NewFromInt(event.Data.Amount).Div(decimal.NewFromInt(100))
		if reported.Sub(order.TotalAmount).Abs().GreaterThan(amountEpsilon) {
			return fmt.Errorf("%w: webhook reported %s, order total %s",
				ErrAmountMismatch, reported.String(), order.TotalAmount.String())
		}
	}

	paidAt := s.clock()
	if event.Data.PaidAt != "" {
		if parsed, parseErr := time.Parse(time.RFC3339, event.Data.PaidAt); parseErr == nil {
			paidAt = parsed
		}
	}

	_, err = s.applySuccess(ctx, order, successTransition{
		ExternalReference: fmt.Sprintf("%d", event.Data.ID),
		Method:            event.Data.Channel,
		GatewayMessage:    event.Data.GatewayResponse,
		PaidAt:            paidAt,
	})
	return err
}

func (s *orderService) CompleteOrder(ctx context.Context, orderID string, userID string) (domain.Order, error) {
	order, err := s.ownedOrder(ctx, strings.TrimSpace(orderID), strings.TrimSpace(userID))
	if err != nil {
		return domain.Order{}, err
	}
	if !order.PaymentSucceeded() {
		return domain.Order{}, fmt.Errorf("%w: payment not confirmed", ErrOrderInvalidState)
	}

	now := s.clock()
	if _, err := s.orders.UpdateStatus(ctx, order.ID, domain.OrderStatusProcessing, now); err != nil {
		return domain.Order{}, s.mapRepositoryError(err)
	}
	updated, err := s.orders.UpdateDeliveryStatus(ctx, order.ID, domain.DeliveryStatusProcessing, now)
	if err != nil {
		return domain.Order{}, s.mapRepositoryError(err)
	}
	return updated, nil
}

func (s *orderService) UpdateDeliveryStatus(ctx context.Context, cmd UpdateDeliveryStatusCommand) (domain.Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return domain.Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	if !domain.ValidDeliveryStatus(cmd.Status) {
		return domain.Order{}, fmt.Errorf("%w: unknown delivery status %q", ErrOrderInvalidInput, cmd.Status)
	}

	now := s.clock()
	updated, err := s.orders.UpdateDeliveryStatus(ctx, orderID, cmd.Status, now)
	if err != nil {
		return domain.Order{}, s.mapRepositoryError(err)
	}

	s.publishEvent(ctx, OrderEventMessage{
		Event:      orderEventDeliveryUpdated,
		OrderID:    updated.ID,
		UserID:     updated.UserID,
		OccurredAt: now,
	})
	return updated, nil
}

func (s *orderService) GetOrder(ctx context.Context, orderID string, userID string) (domain.Order, error) {
	return s.ownedOrder(ctx, strings.TrimSpace(orderID), strings.TrimSpace(userID))
}

func (s *orderService) ListOrders(ctx context.Context, userID string) ([]domain.Order, error) {
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrOrderInvalidInput)
	}
	orders, err := s.orders.ListByUser(ctx, uid)
	if err != nil {
		return nil, s.mapRepositoryError(err)
	}
	return orders, nil
}

func (s *orderService) ListAllOrders(ctx context.Context) ([]domain.Order, error) {
	orders, err := s.orders.ListAll(ctx)
	if err != nil {
		return nil, s.mapRepositoryError(err)
	}
	return orders, nil
}

type successTransition struct {
	ExternalReference string
	Method            string
	GatewayMessage    string
	PaidAt            time.Time
}

// applySuccess drives the compare-and-swap transition shared by client-side
// verification and the webhook channel.
func (s *orderService) applySuccess(ctx context.Context, order domain.Order, t successTransition) (VerifyPaymentResult, error) {
	paidAt := t.PaidAt
	if paidAt.IsZero() {
		paidAt = s.clock()
	}

	result, err := s.orders.ConfirmPaymentSuccess(ctx, order.ID, repositories.PaymentConfirmation{
		Reference:         order.Payment.Reference,
		ExternalReference: t.ExternalReference,
		Method:            t.Method,
		GatewayMessage:    t.GatewayMessage,
		PaidAt:            paidAt,
		ClearCartUserID:   order.UserID,
	})
	if err != nil {
		return VerifyPaymentResult{}, s.mapRepositoryError(err)
	}

	switch result.Outcome {
	case repositories.PaymentAlreadySucceeded:
		return VerifyPaymentResult{Order: result.Order, AlreadyConfirmed: true}, nil
	case repositories.PaymentAlreadyFailed:
		return VerifyPaymentResult{}, fmt.Errorf("%w: payment already recorded as failed", ErrOrderInvalidState)
	}

	// Winning writer sweeps abandoned duplicate checkouts.
	if deleted, cleanErr := s.orders.DeleteStalePending(ctx, order.UserID, order.ID, paidAt.Add(-siblingCleanupWindow)); cleanErr != nil {
		s.logger(ctx, "order.cleanup.failed", map[string]any{
			"order": order.ID,
			"error": cleanErr.Error(),
		})
	} else if deleted > 0 {
		s.logger(ctx, "order.cleanup.stale_pending", map[string]any{
			"order":   order.ID,
			"deleted": deleted,
		})
	}

	s.publishEvent(ctx, OrderEventMessage{
		Event:      orderEventPaymentSucceeded,
		OrderID:    result.Order.ID,
		UserID:     result.Order.UserID,
		Reference:  result.Order.Payment.Reference,
		Amount:     result.Order.TotalAmount.String(),
		OccurredAt: paidAt,
	})

	return VerifyPaymentResult{Order: result.Order}, nil
}

func (s *orderService) recordPaymentFailure(ctx context.Context, order domain.Order, message string) (VerifyPaymentResult, error) {
	now := s.clock()
	result, err := s.orders.MarkPaymentFailed(ctx, order.ID, message, now)
	if err != nil {
		return VerifyPaymentResult{}, s.mapRepositoryError(err)
	}
	if result.Outcome == repositories.PaymentAlreadySucceeded {
		// A successful confirmation raced ahead of this failure report.
		return VerifyPaymentResult{Order: result.Order, AlreadyConfirmed: true}, nil
	}

	s.publishEvent(ctx, OrderEventMessage{
		Event:      orderEventPaymentFailed,
		OrderID:    result.Order.ID,
		UserID:     result.Order.UserID,
		Reference:  result.Order.Payment.Reference,
		OccurredAt: now,
	})

	return VerifyPaymentResult{Order: result.Order}, fmt.Errorf("%w: %s", ErrPaymentFailed, strings.TrimSpace(message))
}

func (s *orderService) ownedOrder(ctx context.Context, orderID string, userID string) (domain.Order, error) {
	if orderID == "" {
		return domain.Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return domain.Order{}, s.mapRepositoryError(err)
	}
	if userID != "" && order.UserID != userID {
		// Ownership failures read as absence to avoid leaking other users' orders.
		return domain.Order{}, fmt.Errorf("%w: no order %s", ErrOrderNotFound, orderID)
	}
	return order, nil
}

func (s *orderService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrOrderConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("order: repository unavailable: %w", err)
		}
	}

	return err
}

func (s *orderService) publishEvent(ctx context.Context, message OrderEventMessage) {
	if s.events == nil {
		return
	}
	if _, err := s.events.PublishOrderEvent(ctx, message); err != nil {
		s.logger(ctx, "order.event.publish.failed", map[string]any{
			"event": message.Event,
			"order": message.OrderID,
			"error": err.Error(),
		})
	}
}
