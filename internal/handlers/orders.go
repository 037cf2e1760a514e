package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	domain "github.com/foodeli/api/internal/domain"
	"github.com/foodeli/api/internal/platform/auth"
	"github.com/foodeli/api/internal/platform/httpx"
	"github.com/foodeli/api/internal/services"
)

const (
	maxOrderBodySize   = 64 * 1024
	maxWebhookBodySize = 256 * 1024

	// webhookSignatureHeader carries the provider's HMAC over the raw body.
	webhookSignatureHeader = "X-Provider-Signature"
)

// OrderHandlers exposes order, payment and fulfilment endpoints.
type OrderHandlers struct {
	authn  *auth.Authenticator
	orders services.OrderService

	// callbackURL is handed to the provider so hosted checkout returns to the client.
	callbackURL string
}

// NewOrderHandlers constructs handlers backed by the order service.
func NewOrderHandlers(authn *auth.Authenticator, orders services.OrderService, callbackURL string) *OrderHandlers {
	return &OrderHandlers{
		authn:       authn,
		orders:      orders,
		callbackURL: callbackURL,
	}
}

// OrderRoutes wires the authenticated /order endpoints.
func (h *OrderHandlers) OrderRoutes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireAuth())
	}
	r.Post("/", h.createOrder)
	r.Get("/", h.listOrders)
	r.Get("/{orderId}", h.getOrder)
	r.Post("/complete", h.completeOrder)
}

// PaymentRoutes wires the authenticated /payment endpoints.
func (h *OrderHandlers) PaymentRoutes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireAuth())
	}
	r.Post("/initialize", h.initializePayment)
	r.Get("/verify/{reference}", h.verifyPayment)
}

// WebhookRoutes wires the unauthenticated provider callback.
func (h *OrderHandlers) WebhookRoutes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/webhook", h.handleWebhook)
}

// AdminRoutes wires the admin-only order management endpoints.
func (h *OrderHandlers) AdminRoutes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireAuth(auth.RoleAdmin))
	}
	r.Get("/orders", h.listAllOrders)
	r.Patch("/orders/{orderId}/delivery-status", h.updateDeliveryStatus)
}

type lineItemPayload struct {
	ProductRef string `json:"productRef"`
	Quantity   int    `json:"quantity"`
}

type createOrderRequest struct {
	Items       []lineItemPayload `json:"items"`
	TotalAmount string            `json:"totalAmount"`
	Address     string            `json:"address"`
}

type paymentPayload struct {
	Reference         string `json:"reference,omitempty"`
	Status            string `json:"status"`
	Amount            string `json:"amount"`
	CheckoutURL       string `json:"checkoutUrl,omitempty"`
	ExternalReference string `json:"externalReference,omitempty"`
	Method            string `json:"method,omitempty"`
	GatewayMessage    string `json:"gatewayMessage,omitempty"`
	PaidAt            string `json:"paidAt,omitempty"`
}

type orderPayload struct {
	ID             string            `json:"id"`
	UserID         string            `json:"userId"`
	Items          []lineItemPayload `json:"items"`
	TotalAmount    string            `json:"totalAmount"`
	Address        string            `json:"address,omitempty"`
	Status         string            `json:"status"`
	DeliveryStatus string            `json:"deliveryStatus,omitempty"`
	Payment        paymentPayload    `json:"payment"`
	CreatedAt      string            `json:"createdAt"`
	UpdatedAt      string            `json:"updatedAt"`
}

func buildOrderPayload(order domain.Order) orderPayload {
	items := make([]lineItemPayload, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, lineItemPayload{ProductRef: item.ProductRef, Quantity: item.Quantity})
	}

	payment := paymentPayload{
		Reference:         order.Payment.Reference,
		Status:            string(order.Payment.Status),
		Amount:            order.Payment.Amount.String(),
		CheckoutURL:       order.Payment.CheckoutURL,
		ExternalReference: order.Payment.ExternalReference,
		Method:            order.Payment.Method,
		GatewayMessage:    order.Payment.GatewayMessage,
	}
	if order.Payment.PaidAt != nil {
		payment.PaidAt = formatTime(*order.Payment.PaidAt)
	}

	return orderPayload{
		ID:             order.ID,
		UserID:         order.UserID,
		Items:          items,
		TotalAmount:    order.TotalAmount.String(),
		Address:        order.Address,
		Status:         string(order.Status),
		DeliveryStatus: string(order.DeliveryStatus),
		Payment:        payment,
		CreatedAt:      formatTime(order.CreatedAt),
		UpdatedAt:      formatTime(order.UpdatedAt),
	}
}

func (h *OrderHandlers) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	body, err := readLimitedBody(r, maxOrderBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req createOrderRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "malformed JSON body", http.StatusBadRequest))
		return
	}

	total, err := decimal.NewFromString(strings.TrimSpace(req.TotalAmount))
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "totalAmount must be a decimal string", http.StatusBadRequest))
		return
	}

	items := make([]domain.LineItem, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, domain.LineItem{ProductRef: item.ProductRef, Quantity: item.Quantity})
	}

	result, err := h.orders.CreateOrder(ctx, services.CreateOrderCommand{
		UserID:      identity.UserID,
		Items:       items,
		TotalAmount: total,
		Address:     req.Address,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	status := http.StatusCreated
	message := "order created"
	if result.DuplicateSuppressed {
		status = http.StatusOK
		message = "existing pending order returned"
	}
	writeMessage(w, status, message, buildOrderPayload(result.Order))
}

func (h *OrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	orders, err := h.orders.ListOrders(ctx, identity.UserID)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	payload := make([]orderPayload, 0, len(orders))
	for _, order := range orders {
		payload = append(payload, buildOrderPayload(order))
	}
	writeData(w, http.StatusOK, payload)
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	// Admins can read any order.
	userScope := identity.UserID
	if identity.IsAdmin() {
		userScope = ""
	}

	order, err := h.orders.GetOrder(ctx, chi.URLParam(r, "orderId"), userScope)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeData(w, http.StatusOK, buildOrderPayload(order))
}

type initializePaymentRequest struct {
	OrderID     string `json:"orderId"`
	Amount      string `json:"amount,omitempty"`
	CallbackURL string `json:"callbackUrl,omitempty"`
}

type initializePaymentResponse struct {
	AuthorizationURL string `json:"authorizationUrl"`
	Reference        string `json:"reference"`
	Reused           bool   `json:"reused"`
}

func (h *OrderHandlers) initializePayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	body, err := readLimitedBody(r, maxOrderBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req initializePaymentRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "malformed JSON body", http.StatusBadRequest))
		return
	}

	cmd := services.InitializePaymentCommand{
		OrderID:     req.OrderID,
		UserID:      identity.UserID,
		Email:       identity.Email,
		CallbackURL: strings.TrimSpace(req.CallbackURL),
	}
	if cmd.CallbackURL == "" {
		cmd.CallbackURL = h.callbackURL
	}
	if raw := strings.TrimSpace(req.Amount); raw != "" {
		amount, parseErr := decimal.NewFromString(raw)
		if parseErr != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "amount must be a decimal string", http.StatusBadRequest))
			return
		}
		cmd.Amount = amount
	}

	result, err := h.orders.InitializePayment(ctx, cmd)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeData(w, http.StatusOK, initializePaymentResponse{
		AuthorizationURL: result.AuthorizationURL,
		Reference:        result.Reference,
		Reused:           result.Reused,
	})
}

type verifyPaymentResponse struct {
	Order            orderPayload `json:"order"`
	AlreadyConfirmed bool         `json:"alreadyConfirmed"`
}

func (h *OrderHandlers) verifyPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	reference := chi.URLParam(r, "reference")
	result, err := h.orders.VerifyPayment(ctx, reference, identity.UserID)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeData(w, http.StatusOK, verifyPaymentResponse{
		Order:            buildOrderPayload(result.Order),
		AlreadyConfirmed: result.AlreadyConfirmed,
	})
}

type completeOrderRequest struct {
	OrderID string `json:"orderId"`
}

func (h *OrderHandlers) completeOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	body, err := readLimitedBody(r, maxOrderBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req completeOrderRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "malformed JSON body", http.StatusBadRequest))
		return
	}

	order, err := h.orders.CompleteOrder(ctx, req.OrderID, identity.UserID)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeMessage(w, http.StatusOK, "order moved to processing", buildOrderPayload(order))
}

func (h *OrderHandlers) handleWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := readLimitedBody(r, maxWebhookBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	signature := strings.TrimSpace(r.Header.Get(webhookSignatureHeader))
	if signature == "" {
		httpx.WriteError(ctx, w, httpx.NewError("missing_signature", fmt.Sprintf("%s header is required", webhookSignatureHeader), http.StatusBadRequest))
		return
	}

	if err := h.orders.HandleWebhook(ctx, body, signature); err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeMessage(w, http.StatusOK, "webhook processed", nil)
}

func (h *OrderHandlers) listAllOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	orders, err := h.orders.ListAllOrders(ctx)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	payload := make([]orderPayload, 0, len(orders))
	for _, order := range orders {
		payload = append(payload, buildOrderPayload(order))
	}
	writeData(w, http.StatusOK, payload)
}

type updateDeliveryStatusRequest struct {
	Status string `json:"status"`
}

func (h *OrderHandlers) updateDeliveryStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := readLimitedBody(r, maxOrderBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req updateDeliveryStatusRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "malformed JSON body", http.StatusBadRequest))
		return
	}

	order, err := h.orders.UpdateDeliveryStatus(ctx, services.UpdateDeliveryStatusCommand{
		OrderID: chi.URLParam(r, "orderId"),
		Status:  domain.DeliveryStatus(strings.TrimSpace(req.Status)),
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeMessage(w, http.StatusOK, "delivery status updated", buildOrderPayload(order))
}

func requireIdentity(w http.ResponseWriter, r *http.Request) (*auth.Identity, bool) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok || identity == nil || strings.TrimSpace(identity.UserID) == "" {
		httpx.WriteError(r.Context(), w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return nil, false
	}
	return identity, true
}
