package confirm

import (
	"context"
	"errors"
	"strings"
	"time"
)

// OrderClient is the slice of the order API the payment flow drives.
type OrderClient interface {
	// CreateOrder places the order and returns its id.
	CreateOrder(ctx context.Context) (string, error)
	// InitializePayment opens a hosted checkout session for the order and
	// returns the checkout URL with its payment reference.
	InitializePayment(ctx context.Context, orderID string) (checkoutURL string, reference string, err error)
}

// WindowOpener opens the hosted checkout. ErrWindowBlocked signals the popup
// could not be opened and the flow must fall back to a full redirect.
type WindowOpener func(url string) (CheckoutWindow, error)

// ErrWindowBlocked is returned by a WindowOpener when the checkout window
// cannot be opened.
var ErrWindowBlocked = errors.New("checkout window blocked")

// Redirector performs a full-page navigation to the hosted checkout. In
// redirect mode only the callback channel can resolve the session.
type Redirector func(url string)

// FlowDeps bundles collaborators required to construct a payment flow.
type FlowDeps struct {
	Orders      OrderClient
	Coordinator *Coordinator
	OpenWindow  WindowOpener
	Redirect    Redirector
	Clock       func() time.Time
}

// Flow drives one checkout session: create the order, open the hosted
// checkout, then wait for whichever confirmation channel fires first.
type Flow struct {
	orders      OrderClient
	coordinator *Coordinator
	openWindow  WindowOpener
	redirect    Redirector
	clock       func() time.Time
}

// NewFlow wires dependencies into a payment flow.
func NewFlow(deps FlowDeps) (*Flow, error) {
	if deps.Orders == nil {
		return nil, errors.New("flow: order client is required")
	}
	if deps.Coordinator == nil {
		return nil, errors.New("flow: coordinator is required")
	}
	if deps.OpenWindow == nil {
		return nil, errors.New("flow: window opener is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Flow{
		orders:      deps.Orders,
		coordinator: deps.Coordinator,
		openWindow:  deps.OpenWindow,
		redirect:    deps.Redirect,
		clock:       clock,
	}, nil
}

// Run executes the checkout session end to end and reports its outcome. The
// order id must be known before initialization is attempted, so the two calls
// are strictly sequenced.
func (f *Flow) Run(ctx context.Context) (Outcome, error) {
	orderID, err := f.orders.CreateOrder(ctx)
	if err != nil {
		return OutcomeIgnored, err
	}

	checkoutURL, reference, err := f.orders.InitializePayment(ctx, orderID)
	if err != nil {
		return OutcomeIgnored, err
	}
	reference = strings.TrimSpace(reference)

	window, err := f.openWindow(checkoutURL)
	if err != nil {
		if errors.Is(err, ErrWindowBlocked) && f.redirect != nil {
			// Redirect mode: the callback page is the only remaining channel.
			f.redirect(checkoutURL)
			return OutcomeIgnored, nil
		}
		return OutcomeIgnored, err
	}

	sessionCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	events := make(chan Event, 8)
	go WatchWindow(sessionCtx, window, reference, events, f.clock)
	go f.coordinator.WatchStore(sessionCtx, reference, events)

	outcome, err := f.coordinator.Run(sessionCtx, reference, events)
	window.Close()
	return outcome, err
}

// Deliver feeds an externally received signal (window message or callback
// notification) into the session's coordinator.
func (f *Flow) Deliver(ctx context.Context, event Event) (Outcome, error) {
	return f.coordinator.Dispatch(ctx, event)
}
