package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/foodeli/api/internal/domain"
	"github.com/foodeli/api/internal/platform/auth"
	"github.com/foodeli/api/internal/services"
)

type stubVerifier struct {
	identities map[string]*auth.Identity
}

func (v *stubVerifier) Verify(raw string) (*auth.Identity, error) {
	if identity, ok := v.identities[raw]; ok {
		return identity, nil
	}
	return nil, auth.ErrTokenInvalid
}

func testAuthenticator() *auth.Authenticator {
	return auth.NewAuthenticator(&stubVerifier{identities: map[string]*auth.Identity{
		"user-token":  {UserID: "user-1", Email: "jane@example.com", Role: auth.RoleUser},
		"admin-token": {UserID: "admin-1", Email: "ops@example.com", Role: auth.RoleAdmin},
	}})
}

type stubOrderService struct {
	createResult services.CreateOrderResult
	createErr    error
	createCmd    services.CreateOrderCommand

	initResult services.InitializePaymentResult
	initErr    error

	verifyResult services.VerifyPaymentResult
	verifyErr    error
	verifiedRef  string

	webhookErr  error
	webhookBody []byte
	webhookSig  string

	completeOrder domain.Order
	completeErr   error

	deliveryOrder domain.Order
	deliveryErr   error
	deliveryCmd   services.UpdateDeliveryStatusCommand

	orders []domain.Order
}

func (s *stubOrderService) CreateOrder(_ context.Context, cmd services.CreateOrderCommand) (services.CreateOrderResult, error) {
	s.createCmd = cmd
	return s.createResult, s.createErr
}

func (s *stubOrderService) InitializePayment(_ context.Context, cmd services.InitializePaymentCommand) (services.InitializePaymentResult, error) {
	return s.initResult, s.initErr
}

func (s *stubOrderService) VerifyPayment(_ context.Context, reference string, _ string) (services.VerifyPaymentResult, error) {
	s.verifiedRef = reference
	return s.verifyResult, s.verifyErr
}

func (s *stubOrderService) HandleWebhook(_ context.Context, rawBody []byte, signature string) error {
	s.webhookBody = rawBody
	s.webhookSig = signature
	return s.webhookErr
}

func (s *stubOrderService) CompleteOrder(context.Context, string, string) (domain.Order, error) {
	return s.completeOrder, s.completeErr
}

func (s *stubOrderService) UpdateDeliveryStatus(_ context.Context, cmd services.UpdateDeliveryStatusCommand) (domain.Order, error) {
	s.deliveryCmd = cmd
	return s.deliveryOrder, s.deliveryErr
}

func (s *stubOrderService) GetOrder(context.Context, string, string) (domain.Order, error) {
	if len(s.orders) == 0 {
		return domain.Order{}, services.ErrOrderNotFound
	}
	return s.orders[0], nil
}

func (s *stubOrderService) ListOrders(context.Context, string) ([]domain.Order, error) {
	return s.orders, nil
}

func (s *stubOrderService) ListAllOrders(context.Context) ([]domain.Order, error) {
	return s.orders, nil
}

func testOrder() domain.Order {
	paidAt := time.Date(2026, time.March, 14, 9, 35, 0, 0, time.UTC)
	return domain.Order{
		ID:          "ord_01ABCDEF",
		UserID:      "user-1",
		Items:       []domain.LineItem{{ProductRef: "food-1", Quantity: 2}},
		TotalAmount: decimal.RequireFromString("3500.00"),
		Status:      domain.OrderStatusPaymentDone,
		Payment: domain.Payment{
			Reference: "order_ord_01ABCDEF_1773999000000",
			Status:    domain.PaymentStatusSuccess,
			Amount:    decimal.RequireFromString("3500.00"),
			PaidAt:    &paidAt,
		},
		CreatedAt: paidAt.Add(-5 * time.Minute),
		UpdatedAt: paidAt,
	}
}

func newOrderRouter(service *stubOrderService) http.Handler {
	handlers := NewOrderHandlers(testAuthenticator(), service, "https://app.example.com/payment/callback")
	return NewRouter(
		WithOrderRoutes(handlers.OrderRoutes),
		WithPaymentRoutes(handlers.PaymentRoutes),
		WithWebhookRoutes(handlers.WebhookRoutes),
		WithAdminRoutes(handlers.AdminRoutes),
	)
}

func doRequest(t *testing.T, handler http.Handler, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

func TestCreateOrderEndpoint(t *testing.T) {
	service := &stubOrderService{createResult: services.CreateOrderResult{Order: testOrder()}}
	router := newOrderRouter(service)

	rr := doRequest(t, router, http.MethodPost, "/user/order", "user-token",
		`{"items":[{"productRef":"food-1","quantity":2}],"totalAmount":"3500.00","address":"12 Allen Avenue"}`)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if service.createCmd.UserID != "user-1" {
		t.Fatalf("expected identity user id, got %q", service.createCmd.UserID)
	}
	if !service.createCmd.TotalAmount.Equal(decimal.RequireFromString("3500.00")) {
		t.Fatalf("unexpected total %s", service.createCmd.TotalAmount)
	}

	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if body["success"] != true {
		t.Fatalf("expected success envelope, got %v", body)
	}
}

func TestCreateOrderDuplicateReturns200(t *testing.T) {
	service := &stubOrderService{createResult: services.CreateOrderResult{Order: testOrder(), DuplicateSuppressed: true}}
	router := newOrderRouter(service)

	rr := doRequest(t, router, http.MethodPost, "/user/order", "user-token",
		`{"items":[{"productRef":"food-1","quantity":2}],"totalAmount":"3500.00"}`)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 for suppressed duplicate, got %d", rr.Code)
	}
}

func TestCreateOrderRequiresAuth(t *testing.T) {
	router := newOrderRouter(&stubOrderService{})

	rr := doRequest(t, router, http.MethodPost, "/user/order", "", `{"totalAmount":"10"}`)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestCreateOrderValidationMapsTo400(t *testing.T) {
	service := &stubOrderService{createErr: fmt.Errorf("%w: order must contain at least one item", services.ErrOrderInvalidInput)}
	router := newOrderRouter(service)

	rr := doRequest(t, router, http.MethodPost, "/user/order", "user-token", `{"items":[],"totalAmount":"10"}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestInitializePaymentEndpoint(t *testing.T) {
	service := &stubOrderService{initResult: services.InitializePaymentResult{
		AuthorizationURL: "https://checkout.paystack.com/abc123",
		Reference:        "order_ord_01ABCDEF_1773999000000",
	}}
	router := newOrderRouter(service)

	rr := doRequest(t, router, http.MethodPost, "/user/payment/initialize", "user-token", `{"orderId":"ord_01ABCDEF"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var body struct {
		Data initializePaymentResponse `json:"data"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if body.Data.AuthorizationURL != "https://checkout.paystack.com/abc123" {
		t.Fatalf("unexpected checkout URL %q", body.Data.AuthorizationURL)
	}
}

func TestVerifyPaymentEndpoint(t *testing.T) {
	service := &stubOrderService{verifyResult: services.VerifyPaymentResult{Order: testOrder()}}
	router := newOrderRouter(service)

	rr := doRequest(t, router, http.MethodGet, "/user/payment/verify/order_ord_01ABCDEF_1773999000000", "user-token", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if service.verifiedRef != "order_ord_01ABCDEF_1773999000000" {
		t.Fatalf("unexpected reference %q", service.verifiedRef)
	}
}

func TestVerifyPaymentAmountMismatchMapsTo400(t *testing.T) {
	service := &stubOrderService{verifyErr: fmt.Errorf("%w: provider reported 3400", services.ErrAmountMismatch)}
	router := newOrderRouter(service)

	rr := doRequest(t, router, http.MethodGet, "/user/payment/verify/ref-1", "user-token", "")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}

	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if body["error"] != "amount_mismatch" {
		t.Fatalf("expected amount_mismatch code, got %v", body["error"])
	}
}

func TestVerifyPaymentFailedMapsTo402(t *testing.T) {
	service := &stubOrderService{verifyErr: fmt.Errorf("%w: declined", services.ErrPaymentFailed)}
	router := newOrderRouter(service)

	rr := doRequest(t, router, http.MethodGet, "/user/payment/verify/ref-1", "user-token", "")
	if rr.Code != http.StatusPaymentRequired {
		t.Fatalf("expected 402, got %d", rr.Code)
	}
}

func TestWebhookEndpointSkipsAuth(t *testing.T) {
	service := &stubOrderService{}
	router := newOrderRouter(service)

	body := `{"event":"charge.success","data":{"reference":"ref-1","amount":350000}}`
	req := httptest.NewRequest(http.MethodPost, "/user/payment/webhook", strings.NewReader(body))
	req.Header.Set(webhookSignatureHeader, "cafe0123")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if string(service.webhookBody) != body {
		t.Fatal("handler must pass through the raw body unchanged")
	}
	if service.webhookSig != "cafe0123" {
		t.Fatalf("unexpected signature %q", service.webhookSig)
	}
}

func TestWebhookMissingSignature(t *testing.T) {
	router := newOrderRouter(&stubOrderService{})

	req := httptest.NewRequest(http.MethodPost, "/user/payment/webhook", strings.NewReader(`{"event":"charge.success"}`))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestWebhookBadSignatureMapsTo400(t *testing.T) {
	service := &stubOrderService{webhookErr: services.ErrWebhookSignature}
	router := newOrderRouter(service)

	req := httptest.NewRequest(http.MethodPost, "/user/payment/webhook", strings.NewReader(`{"event":"charge.success"}`))
	req.Header.Set(webhookSignatureHeader, "deadbeef")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestCompleteOrderInvalidStateMapsTo409(t *testing.T) {
	service := &stubOrderService{completeErr: fmt.Errorf("%w: payment not confirmed", services.ErrOrderInvalidState)}
	router := newOrderRouter(service)

	rr := doRequest(t, router, http.MethodPost, "/user/order/complete", "user-token", `{"orderId":"ord_01ABCDEF"}`)
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rr.Code)
	}
}

func TestAdminRoutesRequireAdminRole(t *testing.T) {
	router := newOrderRouter(&stubOrderService{})

	rr := doRequest(t, router, http.MethodGet, "/user/admin/orders", "user-token", "")
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-admin, got %d", rr.Code)
	}

	rr = doRequest(t, router, http.MethodGet, "/user/admin/orders", "admin-token", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 for admin, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestUpdateDeliveryStatusEndpoint(t *testing.T) {
	order := testOrder()
	order.DeliveryStatus = domain.DeliveryStatusDelivered
	service := &stubOrderService{deliveryOrder: order}
	router := newOrderRouter(service)

	rr := doRequest(t, router, http.MethodPatch, "/user/admin/orders/ord_01ABCDEF/delivery-status", "admin-token", `{"status":"Delivered"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if service.deliveryCmd.OrderID != "ord_01ABCDEF" || service.deliveryCmd.Status != domain.DeliveryStatusDelivered {
		t.Fatalf("unexpected command %+v", service.deliveryCmd)
	}
}

func TestOrderNotFoundMapsTo404(t *testing.T) {
	service := &stubOrderService{}
	router := newOrderRouter(service)

	rr := doRequest(t, router, http.MethodGet, "/user/order/ord_missing", "user-token", "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}
