package memory

import (
	"context"
	"sync"

	"curve-lp-lab/internal/domain"
	"curve-lp-lab/internal/storage"
)

// ObservationStore is an in-memory implementation of storage.ObservationStore.
type ObservationStore struct {
	mu      sync.RWMutex
	name    string
	rows    []domain.Observation
	saves   int
	saved   bool
	saveErr error
}

// NewObservationStore creates an empty in-memory store.
func NewObservationStore(name string) *ObservationStore {
	return &ObservationStore{name: name}
}

// Compile-time interface checks.
var (
	_ storage.ObservationStore = (*ObservationStore)(nil)
	_ storage.ExistenceChecker = (*ObservationStore)(nil)
)

// Load returns a copy of the stored rows.
func (s *ObservationStore) Load(_ context.Context) ([]domain.Observation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Observation, len(s.rows))
	copy(out, s.rows)
	return out, nil
}

// Save replaces the stored rows with a copy of rows.
func (s *ObservationStore) Save(_ context.Context, rows []domain.Observation) error {
	if err := storage.ValidateRows(rows); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.saves++
	if s.saveErr != nil {
		return s.saveErr
	}

	s.rows = make([]domain.Observation, len(rows))
	copy(s.rows, rows)
	s.saved = true
	return nil
}

// Exists reports whether the store was ever saved.
func (s *ObservationStore) Exists(_ context.Context) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saved, nil
}

// Location returns the store name.
func (s *ObservationStore) Location() string {
	return "memory:" + s.name
}

// Saves returns how many times Save was called.
func (s *ObservationStore) Saves() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saves
}

// FailSaves makes subsequent saves fail with err. A nil err restores normal saves.
func (s *ObservationStore) FailSaves(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saveErr = err
}

// RevenueStore is an in-memory implementation of storage.RevenueStore.
type RevenueStore struct {
	mu     sync.RWMutex
	points []domain.RevenuePoint
}

// NewRevenueStore creates an empty in-memory revenue store.
func NewRevenueStore() *RevenueStore {
	return &RevenueStore{}
}

// Compile-time interface check.
var _ storage.RevenueStore = (*RevenueStore)(nil)

// Save replaces the stored points.
func (s *RevenueStore) Save(_ context.Context, points []domain.RevenuePoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.points = make([]domain.RevenuePoint, len(points))
	copy(s.points, points)
	return nil
}

// Points returns a copy of the stored points.
func (s *RevenueStore) Points() []domain.RevenuePoint {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.RevenuePoint, len(s.points))
	copy(out, s.points)
	return out
}

// Location returns the store name.
func (s *RevenueStore) Location() string {
	return "memory:revenue"
}
