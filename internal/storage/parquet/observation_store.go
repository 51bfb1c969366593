package parquet

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"curve-lp-lab/internal/domain"
	"curve-lp-lab/internal/storage"
)

// observationRow is the on-disk layout of an observation.
type observationRow struct {
	Timestamp      int64   `parquet:"timestamp"`
	BlockNumber    uint64  `parquet:"block_number"`
	PoolName       string  `parquet:"pool_name,dict"`
	PoolAddress    string  `parquet:"pool_addr,dict"`
	LPTokenAddress string  `parquet:"lp_token_addr,dict"`
	VirtualPrice   float64 `parquet:"lp_token_virtual_price"`
	TotalSupply    float64 `parquet:"total_supply_lp_token"`
}

func toObservationRow(o domain.Observation) observationRow {
	return observationRow{
		Timestamp:      o.Timestamp,
		BlockNumber:    o.BlockNumber,
		PoolName:       o.PoolName,
		PoolAddress:    o.PoolAddress,
		LPTokenAddress: o.LPTokenAddress,
		VirtualPrice:   o.VirtualPrice,
		TotalSupply:    o.TotalSupply,
	}
}

func (r observationRow) toDomain() domain.Observation {
	return domain.Observation{
		Timestamp:      r.Timestamp,
		BlockNumber:    r.BlockNumber,
		PoolName:       r.PoolName,
		PoolAddress:    r.PoolAddress,
		LPTokenAddress: r.LPTokenAddress,
		VirtualPrice:   r.VirtualPrice,
		TotalSupply:    r.TotalSupply,
	}
}

// ObservationStore implements storage.ObservationStore on a single parquet file.
type ObservationStore struct {
	path string
}

// NewObservationStore creates a store for the file at path.
func NewObservationStore(path string) *ObservationStore {
	return &ObservationStore{path: path}
}

// Compile-time interface checks.
var (
	_ storage.ObservationStore = (*ObservationStore)(nil)
	_ storage.ExistenceChecker = (*ObservationStore)(nil)
)

// Load reads the file. A missing file is an empty table.
func (s *ObservationStore) Load(ctx context.Context) ([]domain.Observation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rows, err := readRows[observationRow](s.path)
	if err != nil {
		return nil, err
	}

	out := make([]domain.Observation, len(rows))
	for i, r := range rows {
		out[i] = r.toDomain()
	}
	return out, nil
}

// Save replaces the file with rows.
func (s *ObservationStore) Save(_ context.Context, rows []domain.Observation) error {
	if err := storage.ValidateRows(rows); err != nil {
		return fmt.Errorf("save %s: %w", s.path, err)
	}

	out := make([]observationRow, len(rows))
	for i, o := range rows {
		out[i] = toObservationRow(o)
	}
	return writeRowsAtomic(s.path, out)
}

// Exists reports whether the file is present.
func (s *ObservationStore) Exists(_ context.Context) (bool, error) {
	_, err := os.Stat(s.path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("stat %s: %w", s.path, err)
}

// Location returns the file path.
func (s *ObservationStore) Location() string {
	return s.path
}
