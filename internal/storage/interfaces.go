package storage

import (
	"context"

	"curve-lp-lab/internal/domain"
)

// ObservationStore persists one result table (a dataset) as a whole.
type ObservationStore interface {
	// Load returns the persisted observations in the order they were saved.
	// A dataset that was never saved loads as empty, not as an error.
	Load(ctx context.Context) ([]domain.Observation, error)

	// Save replaces the persisted dataset with rows atomically.
	// A failed Save leaves the previous contents intact.
	Save(ctx context.Context, rows []domain.Observation) error

	// Location describes where the dataset lives, for logs and errors.
	Location() string
}

// ExistenceChecker is implemented by stores that can tell a dataset that was
// never saved from one that was saved empty.
type ExistenceChecker interface {
	Exists(ctx context.Context) (bool, error)
}

// RevenueStore persists derived revenue points.
type RevenueStore interface {
	// Save replaces the persisted revenue series with points atomically.
	Save(ctx context.Context, points []domain.RevenuePoint) error

	// Location describes where the series lives, for logs and errors.
	Location() string
}

// ObservationKey identifies an observation: one per (block, pool).
type ObservationKey struct {
	BlockNumber uint64
	PoolName    string
}

// KeyOf returns the identifying key of an observation.
func KeyOf(o domain.Observation) ObservationKey {
	return ObservationKey{BlockNumber: o.BlockNumber, PoolName: o.PoolName}
}

// ValidateRows rejects rows with an empty pool name or a repeated key.
func ValidateRows(rows []domain.Observation) error {
	seen := make(map[ObservationKey]struct{}, len(rows))
	for _, r := range rows {
		if r.PoolName == "" {
			return ErrInvalidInput
		}
		k := KeyOf(r)
		if _, dup := seen[k]; dup {
			return ErrDuplicateKey
		}
		seen[k] = struct{}{}
	}
	return nil
}
