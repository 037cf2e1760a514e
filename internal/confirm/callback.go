package confirm

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"
)

// Callback receives the hosted checkout's redirect and persists the outcome
// to the shared result store so the waiting coordinator can observe it even
// when the direct message channel is unavailable.
type Callback struct {
	store ResultStore
	clock func() time.Time
}

// NewCallback constructs the callback receiver.
func NewCallback(store ResultStore, clock func() time.Time) (*Callback, error) {
	if store == nil {
		return nil, errors.New("callback: result store is required")
	}
	if clock == nil {
		clock = time.Now
	}
	return &Callback{store: store, clock: clock}, nil
}

// Record normalizes the redirect parameters and persists the outcome.
func (cb *Callback) Record(reference, status string) (Event, bool) {
	event, ok := NormalizeCallback(reference, status, cb.clock())
	if !ok {
		return Event{}, false
	}

	_ = cb.store.Put(Result{
		Reference: event.Reference,
		Outcome:   event.Type,
		StoredAt:  event.At,
	})
	return event, true
}

// Handler serves the provider redirect endpoint. It persists the outcome and
// answers with a small JSON document the callback page renders.
func (cb *Callback) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		reference := query.Get("reference")
		if reference == "" {
			reference = query.Get("trxref")
		}

		event, ok := cb.Record(reference, query.Get("status"))
		w.Header().Set("Content-Type", "application/json")
		if !ok {
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"success": false,
				"message": "missing payment reference",
			})
			return
		}

		_ = json.NewEncoder(w).Encode(map[string]any{
			"success":   event.Type == EventSuccess,
			"reference": event.Reference,
			"outcome":   string(event.Type),
		})
	}
}
