package confirm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const verifyTimeout = 30 * time.Second

// VerifyError reports a failed verification call.
type VerifyError struct {
	StatusCode int
	Message    string
	Err        error
	transient  bool
}

func (e *VerifyError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("verify payment: %v", e.Err)
	}
	return fmt.Sprintf("verify payment: status %d: %s", e.StatusCode, e.Message)
}

func (e *VerifyError) Unwrap() error { return e.Err }

// Transient reports whether retrying the call could succeed.
func (e *VerifyError) Transient() bool { return e.transient }

// IsTransient classifies errors the retry helper should back off and retry.
func IsTransient(err error) bool {
	var verifyErr *VerifyError
	if errors.As(err, &verifyErr) {
		return verifyErr.Transient()
	}
	return false
}

// HTTPVerifier calls the order API's verification endpoint.
type HTTPVerifier struct {
	http *resty.Client
}

// NewHTTPVerifier constructs a Verifier against the given API base URL,
// authenticating with the provided bearer token.
func NewHTTPVerifier(baseURL, token string) (*HTTPVerifier, error) {
	base := strings.TrimSpace(baseURL)
	if base == "" {
		return nil, errors.New("http verifier: base URL is required")
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(base, "/")).
		SetTimeout(verifyTimeout).
		SetRetryCount(0).
		SetAuthToken(strings.TrimSpace(token))

	return &HTTPVerifier{http: client}, nil
}

type verifyEnvelope struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Verify calls GET /user/payment/verify/{reference}. Network failures and
// provider-side 5xx responses are transient; everything else is terminal.
func (v *HTTPVerifier) Verify(ctx context.Context, reference string) error {
	ref := strings.TrimSpace(reference)
	if ref == "" {
		return &VerifyError{Message: "reference is required"}
	}

	var envelope verifyEnvelope
	resp, err := v.http.R().
		SetContext(ctx).
		SetResult(&envelope).
		SetError(&envelope).
		Get("/user/payment/verify/" + ref)
	if err != nil {
		return &VerifyError{Err: err, transient: true}
	}

	if resp.IsSuccess() && envelope.Success {
		return nil
	}

	message := strings.TrimSpace(envelope.Message)
	if message == "" {
		message = resp.Status()
	}
	return &VerifyError{
		StatusCode: resp.StatusCode(),
		Message:    message,
		transient:  resp.StatusCode() >= http.StatusInternalServerError || resp.StatusCode() == http.StatusServiceUnavailable,
	}
}
