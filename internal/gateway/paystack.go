package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"

	"github.com/foodeli/api/internal/platform/config"
)

const (
	initializePath = "/transaction/initialize"
	verifyPath     = "/transaction/verify/%s"

	statusSuccess = "success"
)

var minorUnitFactor = decimal.NewFromInt(100)

// PaystackClient talks to a Paystack-style hosted checkout provider.
type PaystackClient struct {
	http    *resty.Client
	breaker *gobreaker.CircuitBreaker
	secret  []byte
	now     func() time.Time
}

// PaystackOption customises client construction.
type PaystackOption func(*PaystackClient)

// WithClock injects a custom clock, primarily for tests.
func WithClock(now func() time.Time) PaystackOption {
	return func(c *PaystackClient) {
		if now != nil {
			c.now = now
		}
	}
}

// NewPaystackClient constructs the provider client with a bounded request
// timeout and a circuit breaker around every call.
func NewPaystackClient(cfg config.GatewayConfig, opts ...PaystackOption) (*PaystackClient, error) {
	secret := strings.TrimSpace(cfg.SecretKey)
	if secret == "" {
		return nil, errors.New("gateway: secret key is required")
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("gateway: base url is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(0).
		SetAuthToken(secret).
		SetHeader("Content-Type", "application/json")

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "payment-gateway",
		MaxRequests: 3,
		Interval:    15 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
	})

	client := &PaystackClient{
		http:    httpClient,
		breaker: breaker,
		secret:  []byte(secret),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

type initializePayload struct {
	Email       string `json:"email"`
	Amount      int64  `json:"amount"`
	Reference   string `json:"reference"`
	CallbackURL string `json:"callback_url,omitempty"`
}

type providerEnvelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type initializeData struct {
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Reference        string `json:"reference"`
}

type verifyData struct {
	ID              int64  `json:"id"`
	Status          string `json:"status"`
	Reference       string `json:"reference"`
	Amount          int64  `json:"amount"`
	Channel         string `json:"channel"`
	GatewayResponse string `json:"gateway_response"`
	PaidAt          string `json:"paid_at"`
}

// InitializeTransaction opens a hosted checkout session. The generated
// reference embeds the order id and a millisecond timestamp so retries never
// collide.
func (c *PaystackClient) InitializeTransaction(ctx context.Context, req InitializeRequest) (InitializeResult, error) {
	if c == nil || c.http == nil {
		return InitializeResult{}, errors.New("gateway: client not initialised")
	}
	orderID := strings.TrimSpace(req.OrderID)
	if orderID == "" {
		return InitializeResult{}, &Error{Op: "initialize", Message: "order id is required"}
	}
	if req.Amount.Sign() <= 0 {
		return InitializeResult{}, &Error{Op: "initialize", Message: "amount must be positive"}
	}

	reference := buildReference(orderID, c.now())
	payload := initializePayload{
		Email:       strings.TrimSpace(req.Email),
		Amount:      toMinorUnits(req.Amount),
		Reference:   reference,
		CallbackURL: strings.TrimSpace(req.CallbackURL),
	}

	raw, err := c.breaker.Execute(func() (interface{}, error) {
		return c.http.R().
			SetContext(ctx).
			SetBody(payload).
			Post(initializePath)
	})
	if err != nil {
		return InitializeResult{}, transportError("initialize", err)
	}

	resp := raw.(*resty.Response)
	envelope, err := decodeEnvelope("initialize", resp)
	if err != nil {
		return InitializeResult{}, err
	}

	var data initializeData
	if err := json.Unmarshal(envelope.Data, &data); err != nil {
		return InitializeResult{}, &Error{Op: "initialize", Message: "malformed provider response", Err: err}
	}
	if data.AuthorizationURL == "" {
		return InitializeResult{}, &Error{Op: "initialize", Message: "provider returned no authorization url"}
	}
	if data.Reference == "" {
		data.Reference = reference
	}

	return InitializeResult{
		AuthorizationURL: data.AuthorizationURL,
		AccessCode:       data.AccessCode,
		Reference:        data.Reference,
	}, nil
}

// VerifyTransaction fetches the provider's record for the reference. Amounts
// come back in minor units and are converted to major units here.
func (c *PaystackClient) VerifyTransaction(ctx context.Context, reference string) (VerifyResult, error) {
	if c == nil || c.http == nil {
		return VerifyResult{}, errors.New("gateway: client not initialised")
	}
	ref := strings.TrimSpace(reference)
	if ref == "" {
		return VerifyResult{}, &Error{Op: "verify", Message: "reference is required"}
	}

	raw, err := c.breaker.Execute(func() (interface{}, error) {
		return c.http.R().
			SetContext(ctx).
			Get(fmt.Sprintf(verifyPath, ref))
	})
	if err != nil {
		return VerifyResult{}, transportError("verify", err)
	}

	resp := raw.(*resty.Response)
	envelope, err := decodeEnvelope("verify", resp)
	if err != nil {
		return VerifyResult{}, err
	}

	var data verifyData
	if err := json.Unmarshal(envelope.Data, &data); err != nil {
		return VerifyResult{}, &Error{Op: "verify", Message: "malformed provider response", Err: err}
	}

	result := VerifyResult{
		Succeeded:         strings.EqualFold(data.Status, statusSuccess),
		Status:            strings.ToLower(data.Status),
		Amount:            fromMinorUnits(data.Amount),
		Reference:         data.Reference,
		ExternalReference: fmt.Sprintf("%d", data.ID),
		Channel:           data.Channel,
		Message:           data.GatewayResponse,
	}
	if data.PaidAt != "" {
		if paidAt, parseErr := time.Parse(time.RFC3339, data.PaidAt); parseErr == nil {
			result.PaidAt = paidAt
		}
	}
	return result, nil
}

// VerifyWebhookSignature checks the hex-encoded HMAC-SHA512 of the raw body
// against the provider signature header in constant time.
func (c *PaystackClient) VerifyWebhookSignature(body []byte, signature string) bool {
	if c == nil || len(c.secret) == 0 {
		return false
	}
	signature = strings.TrimSpace(signature)
	if signature == "" {
		return false
	}

	mac := hmac.New(sha512.New, c.secret)
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(signature)))
}

func decodeEnvelope(op string, resp *resty.Response) (providerEnvelope, error) {
	if resp == nil {
		return providerEnvelope{}, &Error{Op: op, Message: "empty provider response", retryable: true}
	}

	var envelope providerEnvelope
	if err := json.Unmarshal(resp.Body(), &envelope); err != nil {
		if resp.IsError() {
			return providerEnvelope{}, statusError(op, resp.StatusCode(), strings.TrimSpace(resp.Status()))
		}
		return providerEnvelope{}, &Error{Op: op, Message: "malformed provider response", Err: err}
	}

	if resp.IsError() || !envelope.Status {
		message := strings.TrimSpace(envelope.Message)
		if message == "" {
			message = strings.TrimSpace(resp.Status())
		}
		return providerEnvelope{}, statusError(op, resp.StatusCode(), message)
	}
	return envelope, nil
}

// buildReference embeds the order id and a millisecond timestamp so that
// repeated initializations for the same order stay unique.
func buildReference(orderID string, at time.Time) string {
	return fmt.Sprintf("order_%s_%d", orderID, at.UnixMilli())
}

// toMinorUnits converts a major-unit amount to the provider's integer minor
// units, rounding to the nearest unit.
func toMinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(minorUnitFactor).Round(0).IntPart()
}

// fromMinorUnits converts the provider's integer minor units back to a
// major-unit decimal.
func fromMinorUnits(amount int64) decimal.Decimal {
	return decimal.NewFromInt(amount).Div(minorUnitFactor)
}

var _ Adapter = (*PaystackClient)(nil)
