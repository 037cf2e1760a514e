package gateway

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// InitializeRequest starts a hosted checkout session for an order.
type InitializeRequest struct {
	Email       string
	Amount      decimal.Decimal
	OrderID     string
	CallbackURL string
}

// InitializeResult carries the hosted checkout handle returned by the provider.
type InitializeResult struct {
	AuthorizationURL string
	AccessCode       string
	Reference        string
}

// VerifyResult is the provider's authoritative view of a transaction.
type VerifyResult struct {
	Succeeded         bool
	Status            string
	Amount            decimal.Decimal
	Reference         string
	ExternalReference string
	Channel           string
	Message           string
	PaidAt            time.Time
}

// Adapter is the payment provider boundary used by the order service.
type Adapter interface {
	// InitializeTransaction opens a checkout session and returns the hosted
	// authorization URL together with the generated reference.
	InitializeTransaction(ctx context.Context, req InitializeRequest) (InitializeResult, error)

	// VerifyTransaction fetches the provider's record for the reference.
	VerifyTransaction(ctx context.Context, reference string) (VerifyResult, error)

	// VerifyWebhookSignature checks the provider's HMAC signature over the raw
	// webhook body.
	VerifyWebhookSignature(body []byte, signature string) bool
}
