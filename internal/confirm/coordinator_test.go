package confirm

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingVerifier struct {
	mu    sync.Mutex
	calls int
	refs  []string
	errs  []error
}

func (v *countingVerifier) Verify(_ context.Context, reference string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.calls++
	v.refs = append(v.refs, reference)
	if len(v.errs) > 0 {
		err := v.errs[0]
		v.errs = v.errs[1:]
		return err
	}
	return nil
}

func (v *countingVerifier) count() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.calls
}

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestCoordinator(t *testing.T, verifier Verifier, store ResultStore, clock *manualClock) *Coordinator {
	t.Helper()

	coordinator, err := NewCoordinator(CoordinatorDeps{
		Verifier:  verifier,
		Store:     store,
		Clock:     clock.Now,
		Retryable: IsTransient,
	})
	require.NoError(t, err)
	// Tests must not spend real time in backoff.
	coordinator.sleep = func(context.Context, time.Duration) error { return nil }
	return coordinator
}

func TestThreeRacingChannelsSingleVerify(t *testing.T) {
	verifier := &countingVerifier{}
	store := NewMemoryResultStore()
	clock := &manualClock{now: time.Date(2026, time.March, 14, 9, 30, 0, 0, time.UTC)}
	coordinator := newTestCoordinator(t, verifier, store, clock)

	const ref = "order_ord_01_1773999000000"
	require.NoError(t, store.Put(Result{Reference: ref, Outcome: EventSuccess, StoredAt: clock.Now()}))

	events := []Event{
		{Type: EventSuccess, Reference: ref, Source: "message"},
		{Type: EventSuccess, Reference: ref, Source: "store"},
		{Type: EventClosed, Reference: ref, Source: "closure"},
	}

	var wg sync.WaitGroup
	var verified atomic.Int32
	for _, event := range events {
		wg.Add(1)
		go func(event Event) {
			defer wg.Done()
			outcome, err := coordinator.Dispatch(context.Background(), event)
			assert.NoError(t, err)
			if outcome == OutcomeVerified {
				verified.Add(1)
			}
		}(event)
	}
	wg.Wait()

	assert.Equal(t, 1, verifier.count(), "exactly one verify call must reach the server")
	assert.Equal(t, int32(1), verified.Load(), "exactly one channel resolves the session")
	assert.True(t, coordinator.Completed(ref))
}

func TestDebounceCollapsesRapidRepeats(t *testing.T) {
	verifier := &countingVerifier{}
	clock := &manualClock{now: time.Date(2026, time.March, 14, 9, 30, 0, 0, time.UTC)}
	coordinator := newTestCoordinator(t, verifier, NewMemoryResultStore(), clock)

	const ref = "ref-debounce"
	first, err := coordinator.Dispatch(context.Background(), Event{Type: EventSuccess, Reference: ref})
	require.NoError(t, err)
	assert.Equal(t, OutcomeVerified, first)

	// Within the debounce window even a fresh reference-equal signal is dropped.
	clock.Advance(100 * time.Millisecond)
	second, err := coordinator.Dispatch(context.Background(), Event{Type: EventSuccess, Reference: ref})
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, second)
	assert.Equal(t, 1, verifier.count())
}

func TestCompletedReferenceNeverReverified(t *testing.T) {
	verifier := &countingVerifier{}
	clock := &manualClock{now: time.Date(2026, time.March, 14, 9, 30, 0, 0, time.UTC)}
	coordinator := newTestCoordinator(t, verifier, NewMemoryResultStore(), clock)

	const ref = "ref-completed"
	_, err := coordinator.Dispatch(context.Background(), Event{Type: EventSuccess, Reference: ref})
	require.NoError(t, err)

	clock.Advance(time.Minute)
	outcome, err := coordinator.Dispatch(context.Background(), Event{Type: EventSuccess, Reference: ref})
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, outcome)
	assert.Equal(t, 1, verifier.count())
}

func TestClosedWithoutSignalIsAmbiguous(t *testing.T) {
	verifier := &countingVerifier{}
	clock := &manualClock{now: time.Date(2026, time.March, 14, 9, 30, 0, 0, time.UTC)}
	coordinator := newTestCoordinator(t, verifier, NewMemoryResultStore(), clock)

	outcome, err := coordinator.Dispatch(context.Background(), Event{Type: EventClosed, Reference: "ref-silent"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeAmbiguous, outcome)
	assert.Equal(t, 0, verifier.count(), "ambiguous closure must not call verify")
}

func TestClosedDiscoversStoredSuccess(t *testing.T) {
	verifier := &countingVerifier{}
	store := NewMemoryResultStore()
	clock := &manualClock{now: time.Date(2026, time.March, 14, 9, 30, 0, 0, time.UTC)}
	coordinator := newTestCoordinator(t, verifier, store, clock)

	const ref = "ref-stored"
	require.NoError(t, store.Put(Result{Reference: ref, Outcome: EventSuccess, StoredAt: clock.Now()}))

	outcome, err := coordinator.Dispatch(context.Background(), Event{Type: EventClosed, Reference: ref})
	require.NoError(t, err)
	assert.Equal(t, OutcomeVerified, outcome)
	assert.Equal(t, 1, verifier.count())
}

func TestStaleStoredResultIgnored(t *testing.T) {
	verifier := &countingVerifier{}
	store := NewMemoryResultStore()
	clock := &manualClock{now: time.Date(2026, time.March, 14, 9, 30, 0, 0, time.UTC)}
	coordinator := newTestCoordinator(t, verifier, store, clock)

	const ref = "ref-stale"
	require.NoError(t, store.Put(Result{Reference: ref, Outcome: EventSuccess, StoredAt: clock.Now()}))
	clock.Advance(6 * time.Minute)

	outcome, err := coordinator.Dispatch(context.Background(), Event{Type: EventClosed, Reference: ref})
	require.NoError(t, err)
	assert.Equal(t, OutcomeAmbiguous, outcome)
	assert.Equal(t, 0, verifier.count(), "stale store entries must not trigger verification")
}

func TestFailedSignalSkipsVerify(t *testing.T) {
	verifier := &countingVerifier{}
	store := NewMemoryResultStore()
	clock := &manualClock{now: time.Date(2026, time.March, 14, 9, 30, 0, 0, time.UTC)}
	coordinator := newTestCoordinator(t, verifier, store, clock)

	require.NoError(t, store.Put(Result{Reference: "ref-f", Outcome: EventFailed, StoredAt: clock.Now()}))

	outcome, err := coordinator.Dispatch(context.Background(), Event{Type: EventFailed, Reference: "ref-f"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, outcome)
	assert.Equal(t, 0, verifier.count())

	// Failure clears the shared store.
	_, ok, err := store.Get("ref-f")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVerifyRetriesTransientFailures(t *testing.T) {
	transient := &VerifyError{StatusCode: 503, Message: "upstream unavailable", transient: true}
	verifier := &countingVerifier{errs: []error{transient, transient}}
	clock := &manualClock{now: time.Date(2026, time.March, 14, 9, 30, 0, 0, time.UTC)}
	coordinator := newTestCoordinator(t, verifier, NewMemoryResultStore(), clock)

	outcome, err := coordinator.Dispatch(context.Background(), Event{Type: EventSuccess, Reference: "ref-retry"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeVerified, outcome)
	assert.Equal(t, 3, verifier.count(), "two transient failures then success")
}

func TestVerifyDoesNotRetryTerminalFailures(t *testing.T) {
	terminal := &VerifyError{StatusCode: 400, Message: "amount mismatch"}
	verifier := &countingVerifier{errs: []error{terminal}}
	clock := &manualClock{now: time.Date(2026, time.March, 14, 9, 30, 0, 0, time.UTC)}
	coordinator := newTestCoordinator(t, verifier, NewMemoryResultStore(), clock)

	_, err := coordinator.Dispatch(context.Background(), Event{Type: EventSuccess, Reference: "ref-terminal"})
	require.Error(t, err)
	assert.Equal(t, 1, verifier.count())

	// In-progress tracking is reset so a later retry can run.
	clock.Advance(time.Second)
	outcome, err := coordinator.Dispatch(context.Background(), Event{Type: EventSuccess, Reference: "ref-terminal"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeVerified, outcome)
}

func TestRetryGivesUpAfterThreeAttempts(t *testing.T) {
	transient := &VerifyError{StatusCode: 503, Message: "upstream unavailable", transient: true}
	verifier := &countingVerifier{errs: []error{transient, transient, transient}}
	clock := &manualClock{now: time.Date(2026, time.March, 14, 9, 30, 0, 0, time.UTC)}
	coordinator := newTestCoordinator(t, verifier, NewMemoryResultStore(), clock)

	_, err := coordinator.Dispatch(context.Background(), Event{Type: EventSuccess, Reference: "ref-exhausted"})
	require.Error(t, err)
	assert.True(t, IsTransient(err))
	assert.Equal(t, 3, verifier.count())
}

func TestRunStopsAtTerminalOutcome(t *testing.T) {
	verifier := &countingVerifier{}
	clock := &manualClock{now: time.Date(2026, time.March, 14, 9, 30, 0, 0, time.UTC)}
	coordinator := newTestCoordinator(t, verifier, NewMemoryResultStore(), clock)

	events := make(chan Event, 3)
	events <- Event{Type: EventSuccess, Reference: ""}
	events <- Event{Type: EventSuccess, Reference: "ref-run"}
	events <- Event{Type: EventSuccess, Reference: "ref-run"}

	outcome, err := coordinator.Run(context.Background(), "ref-run", events)
	require.NoError(t, err)
	assert.Equal(t, OutcomeVerified, outcome)
	assert.Equal(t, 1, verifier.count())
}

func TestNormalizeMessageFiltersForeignSources(t *testing.T) {
	now := time.Now()

	_, ok := NormalizeMessage(Message{Type: "PAYMENT_SUCCESS", Source: "react-devtools-bridge", Reference: "ref"}, now)
	assert.False(t, ok, "known non-payment sources are rejected")

	_, ok = NormalizeMessage(Message{Type: "ANALYTICS_PING", Reference: "ref"}, now)
	assert.False(t, ok, "messages without the payment prefix are rejected")

	event, ok := NormalizeMessage(Message{Type: "payment_success", Reference: " ref-1 "}, now)
	require.True(t, ok)
	assert.Equal(t, EventSuccess, event.Type)
	assert.Equal(t, "ref-1", event.Reference)

	event, ok = NormalizeMessage(Message{Type: "PAYMENT_CANCELLED", Reference: "ref-2"}, now)
	require.True(t, ok)
	assert.Equal(t, EventFailed, event.Type)
}

func TestNormalizeCallback(t *testing.T) {
	now := time.Now()

	event, ok := NormalizeCallback("ref-1", "", now)
	require.True(t, ok)
	assert.Equal(t, EventSuccess, event.Type, "missing status parameter means the success path")

	event, ok = NormalizeCallback("ref-1", "cancelled", now)
	require.True(t, ok)
	assert.Equal(t, EventFailed, event.Type)

	_, ok = NormalizeCallback("  ", "success", now)
	assert.False(t, ok)
}

func TestWatchWindowDeliversClosedEvent(t *testing.T) {
	window := &fakeWindow{}
	events := make(chan Event, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	go func() {
		time.Sleep(10 * time.Millisecond)
		window.close()
	}()

	WatchWindow(ctx, window, "ref-window", events, nil)

	select {
	case event := <-events:
		assert.Equal(t, EventClosed, event.Type)
		assert.Equal(t, "ref-window", event.Reference)
	default:
		t.Fatal("expected a closed event")
	}
}

type fakeWindow struct {
	mu     sync.Mutex
	closed bool
}

func (w *fakeWindow) Closed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed
}

func (w *fakeWindow) Close() {
	w.close()
}

func (w *fakeWindow) close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
}

func TestVerifyRetriesConcurrentDispatchSingleInFlight(t *testing.T) {
	block := make(chan struct{})
	verifier := &blockingVerifier{release: block}
	clock := &manualClock{now: time.Date(2026, time.March, 14, 9, 30, 0, 0, time.UTC)}
	coordinator := newTestCoordinator(t, verifier, NewMemoryResultStore(), clock)

	const ref = "ref-inflight"
	done := make(chan Outcome, 1)
	go func() {
		outcome, _ := coordinator.Dispatch(context.Background(), Event{Type: EventSuccess, Reference: ref})
		done <- outcome
	}()

	// Wait until the first dispatch holds the in-progress slot.
	require.Eventually(t, func() bool { return verifier.started.Load() > 0 }, time.Second, 5*time.Millisecond)

	clock.Advance(time.Second)
	outcome, err := coordinator.Dispatch(context.Background(), Event{Type: EventSuccess, Reference: ref})
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, outcome, "second dispatch must not start while the first is in flight")

	close(block)
	assert.Equal(t, OutcomeVerified, <-done)
	assert.Equal(t, int32(1), verifier.started.Load())
}

type blockingVerifier struct {
	started atomic.Int32
	release chan struct{}
}

func (v *blockingVerifier) Verify(ctx context.Context, _ string) error {
	v.started.Add(1)
	select {
	case <-v.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
