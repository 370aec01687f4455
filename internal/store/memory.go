package store

import (
	"errors"
	"sync"
	"time"

	"github.com/wunderlog/wunderlog/internal/weather"
)

var (
	// ErrNotFound is returned when no cycle history exists for a location.
	ErrNotFound = errors.New("no cycle history for location")
)

// RunHistory holds a time-ordered list of cycle results for a location.
type RunHistory struct {
	Runs []weather.CycleResult
}

// MemoryStore is a concurrency-safe in-memory run store.
type MemoryStore struct {
	mu sync.RWMutex

	// key: location key, value: history
	data map[string]*RunHistory

	// retention configuration
	maxHistory int           // max number of runs per location
	maxAge     time.Duration // optional max age for runs
}

// NewMemoryStore creates a new MemoryStore with optional limits.
// If maxHistory is <= 0, it is treated as unlimited.
func NewMemoryStore(maxHistory int, maxAge time.Duration) *MemoryStore {
	return &MemoryStore{
		data:       make(map[string]*RunHistory),
		maxHistory: maxHistory,
		maxAge:     maxAge,
	}
}

// SaveRun appends a cycle result for a location and enforces retention.
func (s *MemoryStore) SaveRun(loc weather.Location, run weather.CycleResult) {
	key := loc.Key()

	s.mu.Lock()
	defer s.mu.Unlock()

	history, ok := s.data[key]
	if !ok {
		history = &RunHistory{}
		s.data[key] = history
	}

	history.Runs = append(history.Runs, run)

	// Enforce retention by count.
	if s.maxHistory > 0 && len(history.Runs) > s.maxHistory {
		over := len(history.Runs) - s.maxHistory
		history.Runs = history.Runs[over:]
	}

	// Enforce retention by age.
	if s.maxAge > 0 {
		cutoff := time.Now().Add(-s.maxAge)
		i := 0
		for ; i < len(history.Runs); i++ {
			if !history.Runs[i].StartedAt.Before(cutoff) {
				break
			}
		}
		if i > 0 && i < len(history.Runs) {
			history.Runs = history.Runs[i:]
		}
	}
}

// LatestRun returns the most recent cycle result for a location.
func (s *MemoryStore) LatestRun(loc weather.Location) (weather.CycleResult, error) {
	key := loc.Key()

	s.mu.RLock()
	defer s.mu.RUnlock()

	history, ok := s.data[key]
	if !ok || len(history.Runs) == 0 {
		return weather.CycleResult{}, ErrNotFound
	}
	return history.Runs[len(history.Runs)-1], nil
}

// RunRange returns all cycle results for a location started between from and
// to (inclusive).
func (s *MemoryStore) RunRange(loc weather.Location, from, to time.Time) ([]weather.CycleResult, error) {
	key := loc.Key()

	s.mu.RLock()
	defer s.mu.RUnlock()

	history, ok := s.data[key]
	if !ok || len(history.Runs) == 0 {
		return nil, ErrNotFound
	}

	var result []weather.CycleResult
	for _, run := range history.Runs {
		if !run.StartedAt.Before(from) && !run.StartedAt.After(to) {
			result = append(result, run)
		}
	}

	if len(result) == 0 {
		return nil, ErrNotFound
	}

	return result, nil
}
