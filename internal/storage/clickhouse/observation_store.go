package clickhouse

import (
	"context"
	"fmt"

	"curve-lp-lab/internal/domain"
	"curve-lp-lab/internal/storage"
)

// ObservationStore implements storage.ObservationStore using ClickHouse.
//
// The table is a ReplacingMergeTree keyed by (dataset, block_number, pool_name).
// Save inserts only rows whose key is not yet stored, so the dataset only
// grows. A save that would remove a stored key fails with
// storage.ErrRowsRemoved and leaves the dataset untouched.
type ObservationStore struct {
	conn    *Conn
	dataset string
}

// NewObservationStore creates a store for one dataset.
func NewObservationStore(conn *Conn, dataset string) *ObservationStore {
	return &ObservationStore{conn: conn, dataset: dataset}
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
		FROM pool_observations FINAL
		WHERE dataset = ?
		ORDER BY seq ASC
	`

	rows, err := s.conn.Query(ctx, query, s.dataset)
	if err != nil {
		return nil, fmt.Errorf("load observations: %w", err)
	}
	defer rows.Close()

	return scanObservations(rows)
}

// Save makes the stored dataset equal to rows, which must include every
// stored key.
func (s *ObservationStore) Save(ctx context.Context, rows []domain.Observation) error {
	if err := storage.ValidateRows(rows); err != nil {
		return err
	}

	stored, err := s.storedKeys(ctx)
	if err != nil {
		return err
	}

	wanted := make(map[storage.ObservationKey]struct{}, len(rows))
	for _, r := range rows {
		wanted[storage.KeyOf(r)] = struct{}{}
	}

	missing := 0
	for k := range stored {
		if _, ok := wanted[k]; !ok {
			missing++
		}
	}
	if missing > 0 {
		return fmt.Errorf("%w: dataset %s holds %d keys absent from the save",
			storage.ErrRowsRemoved, s.dataset, missing)
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO pool_observations (
			dataset, seq, timestamp, block_number, pool_name, pool_addr,
			lp_token_addr, lp_token_virtual_price, total_supply_lp_token
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	appended := 0
	for i, o := range rows {
		if _, ok := stored[storage.KeyOf(o)]; ok {
			continue
		}
		err = batch.Append(
			s.dataset, uint64(i), o.Timestamp, o.BlockNumber, o.PoolName,
			o.PoolAddress, o.LPTokenAddress, o.VirtualPrice, o.TotalSupply,
		)
		if err != nil {
			_ = batch.Abort()
			return fmt.Errorf("append to batch: %w", err)
		}
		appended++
	}

	if appended == 0 {
		return batch.Abort()
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// Exists reports whether the dataset has any rows.
func (s *ObservationStore) Exists(ctx context.Context) (bool, error) {
	var n uint64
	if err := s.conn.QueryRow(ctx,
		`SELECT count() FROM pool_observations WHERE dataset = ?`, s.dataset,
	).Scan(&n); err != nil {
		return false, fmt.Errorf("check dataset %s: %w", s.dataset, err)
	}
	return n > 0, nil
}

// Location returns the dataset reference.
func (s *ObservationStore) Location() string {
	return "clickhouse:pool_observations/" + s.dataset
}

// storedKeys returns the keys currently stored for the dataset.
func (s *ObservationStore) storedKeys(ctx context.Context) (map[storage.ObservationKey]struct{}, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT block_number, pool_name
		FROM pool_observations FINAL
		WHERE dataset = ?
	`, s.dataset)
	if err != nil {
		return nil, fmt.Errorf("query stored keys: %w", err)
	}
	defer rows.Close()

	keys := make(map[storage.ObservationKey]struct{})
	for rows.Next() {
		var k storage.ObservationKey
		if err := rows.Scan(&k.BlockNumber, &k.PoolName); err != nil {
			return nil, fmt.Errorf("scan stored key: %w", err)
		}
		keys[k] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stored keys: %w", err)
	}
	return keys, nil
}

// scanObservations scans multiple rows.
func scanObservations(rows chRows) ([]domain.Observation, error) {
	var out []domain.Observation

	for rows.Next() {
		var o domain.Observation
		if err := rows.Scan(
			&o.Timestamp,
			&o.BlockNumber,
			&o.PoolName,
			&o.PoolAddress,
			&o.LPTokenAddress,
			&o.VirtualPrice,
			&o.TotalSupply,
		); err != nil {
			return nil, fmt.Errorf("scan observation: %w", err)
		}
		out = append(out, o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate observations: %w", err)
	}

	return out, nil
}
