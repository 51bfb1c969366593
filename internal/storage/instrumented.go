package storage

import (
	"context"
	"time"

	"curve-lp-lab/internal/domain"
	"curve-lp-lab/internal/observability"
)

// instrumentedStore records operation latency and errors of an ObservationStore.
type instrumentedStore struct {
	next    ObservationStore
	backend string
	metrics *observability.Metrics
}

// Instrument wraps store so that Load and Save are recorded under backend.
// A nil metrics returns store unchanged.
func Instrument(store ObservationStore, backend string, metrics *observability.Metrics) ObservationStore {
	if metrics == nil {
		return store
	}
	return &instrumentedStore{next: store, backend: backend, metrics: metrics}
}

func (s *instrumentedStore) Load(ctx context.Context) ([]domain.Observation, error) {
	start := time.Now()
	rows, err := s.next.Load(ctx)
	s.metrics.RecordStoreOp(s.backend, "load", time.Since(start).Seconds(), err)
	return rows, err
}

func (s *instrumentedStore) Save(ctx context.Context, rows []domain.Observation) error {
	start := time.Now()
	err := s.next.Save(ctx, rows)
	s.metrics.RecordStoreOp(s.backend, "save", time.Since(start).Seconds(), err)
	return err
}

// Exists forwards to the wrapped store. Stores that cannot tell report true.
func (s *instrumentedStore) Exists(ctx context.Context) (bool, error) {
	ec, ok := s.next.(ExistenceChecker)
	if !ok {
		return true, nil
	}
	start := time.Now()
	exists, err := ec.Exists(ctx)
	s.metrics.RecordStoreOp(s.backend, "exists", time.Since(start).Seconds(), err)
	return exists, err
}

func (s *instrumentedStore) Location() string {
	return s.next.Location()
}
