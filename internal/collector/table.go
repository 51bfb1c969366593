package collector

import (
	"context"
	"fmt"

	"curve-lp-lab/internal/domain"
	"curve-lp-lab/internal/storage"
)

// Table is the in-memory result table: observations in append order plus
// an index on (block, pool). Rows are never mutated or removed.
// A Table is owned by one collector and is not safe for concurrent writers.
type Table struct {
	rows  []domain.Observation
	index map[storage.ObservationKey]struct{}
}

// NewTable returns an empty table.
func NewTable() *Table {
	return &Table{index: make(map[storage.ObservationKey]struct{})}
}

// NewTableFrom builds a table from persisted rows, keeping their order.
// Returns storage.ErrDuplicateKey if two rows share a (block, pool) key.
func NewTableFrom(rows []domain.Observation) (*Table, error) {
	t := &Table{
		rows:  make([]domain.Observation, 0, len(rows)),
		index: make(map[storage.ObservationKey]struct{}, len(rows)),
	}
	for _, r := range rows {
		if err := t.Add(r); err != nil {
			return nil, fmt.Errorf("block %d pool %s: %w", r.BlockNumber, r.PoolName, err)
		}
	}
	return t, nil
}

// LoadTable loads the table persisted in store. A store with nothing saved yields an empty table.
func LoadTable(ctx context.Context, store storage.ObservationStore) (*Table, error) {
	rows, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", store.Location(), err)
	}
	t, err := NewTableFrom(rows)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", store.Location(), err)
	}
	return t, nil
}

// Exists reports whether an observation for (block, poolName) is recorded.
func (t *Table) Exists(block uint64, poolName string) bool {
	_, ok := t.index[storage.ObservationKey{BlockNumber: block, PoolName: poolName}]
	return ok
}

// Add appends an observation. Returns storage.ErrDuplicateKey if its key is already recorded.
func (t *Table) Add(o domain.Observation) error {
	k := storage.KeyOf(o)
	if _, ok := t.index[k]; ok {
		return storage.ErrDuplicateKey
	}
	t.index[k] = struct{}{}
	t.rows = append(t.rows, o)
	return nil
}

// Len returns the number of rows.
func (t *Table) Len() int {
	return len(t.rows)
}

// Rows returns a copy of the rows in append order.
func (t *Table) Rows() []domain.Observation {
	out := make([]domain.Observation, len(t.rows))
	copy(out, t.rows)
	return out
}
