package confirm

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
)

const (
	// debounceWindow collapses rapid repeats of the same (type, reference) signal.
	debounceWindow = 300 * time.Millisecond
	// storePollInterval is the reduced cadence for probing the shared result store.
	storePollInterval = 3 * time.Second
)

// Outcome is the terminal disposition of a confirmation session.
type Outcome int

const (
	// OutcomeIgnored means the event was filtered, debounced or already handled.
	OutcomeIgnored Outcome = iota
	// OutcomeVerified means the server confirmed the payment exactly once.
	OutcomeVerified
	// OutcomeFailed means the payment failed or was cancelled; verify was not called.
	OutcomeFailed
	// OutcomeAmbiguous means the window closed without any channel firing.
	OutcomeAmbiguous
)

// Verifier performs the server-side payment verification call.
type Verifier interface {
	Verify(ctx context.Context, reference string) error
}

// CoordinatorDeps bundles collaborators required to construct a Coordinator.
type CoordinatorDeps struct {
	Verifier Verifier
	Store    ResultStore
	Clock    func() time.Time
	// Retryable classifies verify failures worth retrying with backoff.
	Retryable RetryableFunc
	Logger    func(event string, fields map[string]any)
}

// Coordinator folds every notification channel into at most one verification
// per payment reference. A single instance is shared process-wide so that two
// channels firing near-simultaneously still result in one server call.
type Coordinator struct {
	verifier  Verifier
	store     ResultStore
	clock     func() time.Time
	retryable RetryableFunc
	logger    func(string, map[string]any)
	sleep     func(context.Context, time.Duration) error

	mu         sync.Mutex
	completed  map[string]struct{}
	inProgress map[string]struct{}
	lastSeen   map[dedupeKey]time.Time
}

type dedupeKey struct {
	eventType EventType
	reference string
}

// NewCoordinator wires dependencies into a Coordinator.
func NewCoordinator(deps CoordinatorDeps) (*Coordinator, error) {
	if deps.Verifier == nil {
		return nil, errors.New("coordinator: verifier is required")
	}
	if deps.Store == nil {
		return nil, errors.New("coordinator: result store is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(string, map[string]any) {}
	}

	return &Coordinator{
		verifier:   deps.Verifier,
		store:      deps.Store,
		clock:      clock,
		retryable:  deps.Retryable,
		logger:     logger,
		sleep:      sleepContext,
		completed:  map[string]struct{}{},
		inProgress: map[string]struct{}{},
		lastSeen:   map[dedupeKey]time.Time{},
	}, nil
}

// Dispatch handles one normalized event. Duplicate, debounced and stale
// signals resolve to OutcomeIgnored without touching the server.
func (c *Coordinator) Dispatch(ctx context.Context, event Event) (Outcome, error) {
	reference := strings.TrimSpace(event.Reference)
	if reference == "" && event.Type != EventClosed {
		return OutcomeIgnored, nil
	}

	if c.debounced(event.Type, reference) {
		return OutcomeIgnored, nil
	}

	switch event.Type {
	case EventSuccess:
		return c.confirmSuccess(ctx, reference)
	case EventFailed:
		return c.confirmFailure(reference)
	case EventClosed:
		return c.resolveClosure(ctx, reference)
	default:
		return OutcomeIgnored, nil
	}
}

// Run consumes events for one reference until a terminal outcome is reached
// or ctx is cancelled. A reference confirmed out-of-band (for example by a
// message delivered straight to Dispatch) also ends the session.
func (c *Coordinator) Run(ctx context.Context, reference string, events <-chan Event) (Outcome, error) {
	if c.Completed(reference) {
		return OutcomeVerified, nil
	}
	for {
		select {
		case <-ctx.Done():
			return OutcomeAmbiguous, ctx.Err()
		case event, ok := <-events:
			if !ok {
				return OutcomeAmbiguous, nil
			}
			outcome, err := c.Dispatch(ctx, event)
			if err != nil {
				return outcome, err
			}
			if outcome != OutcomeIgnored {
				return outcome, nil
			}
			if c.Completed(reference) {
				return OutcomeVerified, nil
			}
		}
	}
}

// WatchStore polls the shared result store at a reduced cadence and forwards a
// fresh record for the reference as an event. It returns when the reference is
// resolved or ctx is cancelled.
func (c *Coordinator) WatchStore(ctx context.Context, reference string, events chan<- Event) {
	if events == nil {
		return
	}

	ticker := time.NewTicker(storePollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if c.Completed(reference) {
			return
		}

		result, ok, err := c.store.Get(reference)
		if err != nil || !ok {
			continue
		}
		now := c.clock()
		if result.Stale(now) {
			continue
		}

		eventType := EventSuccess
		if result.Outcome == EventFailed {
			eventType = EventFailed
		}
		select {
		case events <- Event{Type: eventType, Reference: reference, Source: "store", At: now}:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Completed reports whether the reference has already been confirmed.
func (c *Coordinator) Completed(reference string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, done := c.completed[strings.TrimSpace(reference)]
	return done
}

func (c *Coordinator) debounced(eventType EventType, reference string) bool {
	key := dedupeKey{eventType: eventType, reference: reference}
	now := c.clock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if last, ok := c.lastSeen[key]; ok && now.Sub(last) < debounceWindow {
		return true
	}
	c.lastSeen[key] = now
	return false
}

func (c *Coordinator) confirmSuccess(ctx context.Context, reference string) (Outcome, error) {
	c.mu.Lock()
	if _, done := c.completed[reference]; done {
		c.mu.Unlock()
		return OutcomeIgnored, nil
	}
	if _, busy := c.inProgress[reference]; busy {
		c.mu.Unlock()
		return OutcomeIgnored, nil
	}
	c.inProgress[reference] = struct{}{}
	c.mu.Unlock()

	err := retryWithBackoff(ctx, c.sleep, c.retryable, func(ctx context.Context) error {
		return c.verifier.Verify(ctx, reference)
	})

	c.mu.Lock()
	delete(c.inProgress, reference)
	if err == nil {
		c.completed[reference] = struct{}{}
	}
	c.mu.Unlock()

	if err != nil {
		// In-progress tracking is reset above so the user can retry.
		c.logger("confirm.verify.failed", map[string]any{
			"reference": reference,
			"error":     err.Error(),
		})
		return OutcomeIgnored, err
	}

	if clearErr := c.store.Clear(); clearErr != nil {
		c.logger("confirm.store.clear_failed", map[string]any{"error": clearErr.Error()})
	}
	return OutcomeVerified, nil
}

func (c *Coordinator) confirmFailure(reference string) (Outcome, error) {
	c.mu.Lock()
	_, done := c.completed[reference]
	c.mu.Unlock()
	if done {
		return OutcomeIgnored, nil
	}

	if err := c.store.Clear(); err != nil {
		c.logger("confirm.store.clear_failed", map[string]any{"error": err.Error()})
	}
	return OutcomeFailed, nil
}

// resolveClosure handles a window that closed without an explicit signal: the
// shared store is the only remaining evidence.
func (c *Coordinator) resolveClosure(ctx context.Context, reference string) (Outcome, error) {
	if c.Completed(reference) {
		return OutcomeIgnored, nil
	}

	var (
		result Result
		ok     bool
		err    error
	)
	if reference != "" {
		result, ok, err = c.store.Get(reference)
	} else {
		result, ok, err = c.store.Latest()
	}
	if err != nil || !ok {
		return OutcomeAmbiguous, nil
	}
	if result.Stale(c.clock()) {
		return OutcomeAmbiguous, nil
	}

	switch result.Outcome {
	case EventSuccess:
		return c.confirmSuccess(ctx, result.Reference)
	case EventFailed:
		return c.confirmFailure(result.Reference)
	}
	return OutcomeAmbiguous, nil
}
