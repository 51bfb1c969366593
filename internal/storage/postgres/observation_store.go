package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"curve-lp-lab/internal/domain"
	"curve-lp-lab/internal/storage"
)

var observationColumns = []string{
	"dataset", "seq", "timestamp", "block_number", "pool_name", "pool_addr",
	"lp_token_addr", "lp_token_virtual_price", "total_supply_lp_token",
}

// ObservationStore implements storage.ObservationStore using PostgreSQL.
// Each dataset is an independent result table within pool_observations.
type ObservationStore struct {
	pool    *Pool
	dataset string
}

// NewObservationStore creates a store for one dataset.
func NewObservationStore(pool *Pool, dataset string) *ObservationStore {
	return &ObservationStore{pool: pool, dataset: dataset}
}

// Compile-time interface checks.
var (
	_ storage.ObservationStore = (*ObservationStore)(nil)
	_ storage.ExistenceChecker = (*ObservationStore)(nil)
)

// Load returns the dataset in append order. An unknown dataset is empty.
func (s *ObservationStore) Load(ctx context.Context) ([]domain.Observation, error) {
	query := `
		SELECT timestamp, block_number, pool_name, pool_addr, lp_token_addr,
		       lp_token_virtual_price, total_supply_lp_token
		FROM pool_observations
		WHERE dataset = $1
		ORDER BY seq ASC
	`

	rows, err := s.pool.Query(ctx, query, s.dataset)
	if err != nil {
		return nil, fmt.Errorf("load observations: %w", err)
	}
	defer rows.Close()

	return scanObservations(rows)
}

// Save replaces the dataset in one transaction.
func (s *ObservationStore) Save(ctx context.Context, rows []domain.Observation) error {
	if err := storage.ValidateRows(rows); err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM pool_observations WHERE dataset = $1`, s.dataset); err != nil {
		return fmt.Errorf("clear dataset %s: %w", s.dataset, err)
	}

	_, err = tx.CopyFrom(ctx,
		pgx.Identifier{"pool_observations"},
		observationColumns,
		pgx.CopyFromSlice(len(rows), func(i int) ([]any, error) {
			o := rows[i]
			return []any{
				s.dataset, int64(i), o.Timestamp, int64(o.BlockNumber), o.PoolName,
				o.PoolAddress, o.LPTokenAddress, o.VirtualPrice, o.TotalSupply,
			}, nil
		}),
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("copy observations: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

// Exists reports whether the dataset has any rows.
func (s *ObservationStore) Exists(ctx context.Context) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM pool_observations WHERE dataset = $1)`, s.dataset,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check dataset %s: %w", s.dataset, err)
	}
	return exists, nil
}

// Location returns the dataset reference.
func (s *ObservationStore) Location() string {
	return "postgres:pool_observations/" + s.dataset
}

// scanObservations scans multiple rows into a slice of Observation.
func scanObservations(rows pgx.Rows) ([]domain.Observation, error) {
	var out []domain.Observation

	for rows.Next() {
		var o domain.Observation
		var block int64

		err := rows.Scan(
			&o.Timestamp,
			&block,
			&o.PoolName,
			&o.PoolAddress,
			&o.LPTokenAddress,
			&o.VirtualPrice,
			&o.TotalSupply,
		)
		if err != nil {
			return nil, fmt.Errorf("scan observation: %w", err)
		}
		o.BlockNumber = uint64(block)

		out = append(out, o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate observations: %w", err)
	}

	return out, nil
}
