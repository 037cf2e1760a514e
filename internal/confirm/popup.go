package confirm

import (
	"context"
	"time"
)

const (
	// closureCheckInterval is how often the checkout window is probed for closure.
	closureCheckInterval = time.Second
	// closureGrace gives the final channel a moment to land after the window closes.
	closureGrace = time.Second
	// sessionTimeout caps a checkout session. After it the window is force-closed
	// and all polling stops.
	sessionTimeout = 10 * time.Minute
)

// CheckoutWindow abstracts the external checkout surface the user completes
// payment in. Closure is observable only by polling.
type CheckoutWindow interface {
	Closed() bool
	Close()
}

// WatchWindow polls the checkout window and delivers a single EventClosed for
// the reference once the window is gone. The session timeout force-closes the
// window. WatchWindow returns when the closed event is delivered, the session
// expires, or ctx is cancelled.
func WatchWindow(ctx context.Context, window CheckoutWindow, reference string, events chan<- Event, clock func() time.Time) {
	if window == nil || events == nil {
		return
	}
	if clock == nil {
		clock = time.Now
	}

	deadline := clock().Add(sessionTimeout)
	ticker := time.NewTicker(closureCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		now := clock()
		if now.After(deadline) {
			window.Close()
			deliverClosed(ctx, events, reference, now)
			return
		}

		if window.Closed() {
			// Grace period lets a late callback or message win over the
			// ambiguous closed signal.
			if err := sleepContext(ctx, closureGrace); err != nil {
				return
			}
			deliverClosed(ctx, events, reference, clock())
			return
		}
	}
}

func deliverClosed(ctx context.Context, events chan<- Event, reference string, at time.Time) {
	select {
	case events <- Event{Type: EventClosed, Reference: reference, Source: "closure", At: at}:
	case <-ctx.Done():
	}
}
