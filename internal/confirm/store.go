package confirm

import (
	"strings"
	"sync"
	"time"
)

// resultStaleAfter bounds how long a stored outcome stays actionable. Older
// records belong to an abandoned session and are discarded.
const resultStaleAfter = 5 * time.Minute

// Result is the outcome record the callback page shares with the opener.
type Result struct {
	Reference string
	Outcome   EventType
	StoredAt  time.Time
}

// Stale reports whether the record is too old to act on at the given time.
func (r Result) Stale(now time.Time) bool {
	return now.Sub(r.StoredAt) > resultStaleAfter
}

// ResultStore is the shared key-value transport between the callback page and
// the waiting coordinator. It is best-effort and offers no ordering guarantee.
type ResultStore interface {
	Put(result Result) error
	Get(reference string) (Result, bool, error)
	// Latest returns the most recently stored result regardless of reference.
	Latest() (Result, bool, error)
	Clear() error
}

// MemoryResultStore is an in-process ResultStore.
type MemoryResultStore struct {
	mu      sync.Mutex
	results map[string]Result
	latest  string
}

// NewMemoryResultStore constructs an empty store.
func NewMemoryResultStore() *MemoryResultStore {
	return &MemoryResultStore{results: map[string]Result{}}
}

func (s *MemoryResultStore) Put(result Result) error {
	reference := strings.TrimSpace(result.Reference)
	if reference == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[reference] = result
	s.latest = reference
	return nil
}

func (s *MemoryResultStore) Get(reference string) (Result, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	result, ok := s.results[strings.TrimSpace(reference)]
	return result, ok, nil
}

func (s *MemoryResultStore) Latest() (Result, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.latest == "" {
		return Result{}, false, nil
	}
	result, ok := s.results[s.latest]
	return result, ok, nil
}

func (s *MemoryResultStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = map[string]Result{}
	s.latest = ""
	return nil
}
