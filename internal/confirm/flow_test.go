package confirm

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubOrderClient struct {
	orderID   string
	reference string
	url       string
}

func (c *stubOrderClient) CreateOrder(context.Context) (string, error) {
	return c.orderID, nil
}

func (c *stubOrderClient) InitializePayment(_ context.Context, orderID string) (string, string, error) {
	return c.url, c.reference, nil
}

func TestFlowVerifiesWhenMessageArrives(t *testing.T) {
	verifier := &countingVerifier{}
	store := NewMemoryResultStore()
	clock := &manualClock{now: time.Date(2026, time.March, 14, 9, 30, 0, 0, time.UTC)}
	coordinator := newTestCoordinator(t, verifier, store, clock)

	window := &fakeWindow{}
	flow, err := NewFlow(FlowDeps{
		Orders:      &stubOrderClient{orderID: "ord_1", reference: "ref-flow", url: "https://checkout.example.com/x"},
		Coordinator: coordinator,
		OpenWindow:  func(string) (CheckoutWindow, error) { return window, nil },
		Clock:       clock.Now,
	})
	require.NoError(t, err)

	done := make(chan Outcome, 1)
	go func() {
		outcome, runErr := flow.Run(context.Background())
		assert.NoError(t, runErr)
		done <- outcome
	}()

	// Simulate the callback page posting its message to the opener.
	require.Eventually(t, func() bool {
		outcome, dispatchErr := flow.Deliver(context.Background(), Event{Type: EventSuccess, Reference: "ref-flow"})
		return dispatchErr == nil && outcome == OutcomeVerified
	}, time.Second, 10*time.Millisecond)

	// The run loop itself resolves via the store or closure channel; closing
	// the window after verification ends the session as a duplicate signal.
	window.close()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("flow did not finish")
	}
	assert.Equal(t, 1, verifier.count())
	assert.True(t, coordinator.Completed("ref-flow"))
}

func TestFlowFallsBackToRedirectWhenBlocked(t *testing.T) {
	verifier := &countingVerifier{}
	clock := &manualClock{now: time.Date(2026, time.March, 14, 9, 30, 0, 0, time.UTC)}
	coordinator := newTestCoordinator(t, verifier, NewMemoryResultStore(), clock)

	var redirected atomic.Value
	flow, err := NewFlow(FlowDeps{
		Orders:      &stubOrderClient{orderID: "ord_1", reference: "ref-blocked", url: "https://checkout.example.com/x"},
		Coordinator: coordinator,
		OpenWindow:  func(string) (CheckoutWindow, error) { return nil, ErrWindowBlocked },
		Redirect:    func(url string) { redirected.Store(url) },
		Clock:       clock.Now,
	})
	require.NoError(t, err)

	outcome, err := flow.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, outcome)
	assert.Equal(t, "https://checkout.example.com/x", redirected.Load())
	assert.Equal(t, 0, verifier.count())
}
